package session

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/identkit/identcli/api"
	"github.com/identkit/identcli/credstore"
	"github.com/pkg/errors"
)

// Renewer obtains a fresh credential pair, serializing concurrent
// attempts. *Manager implements it.
type Renewer interface {
	Renew(ctx context.Context) (*api.AuthTokens, error)
}

// renewalExemptPaths never trigger a renewal on 401. A 401 from the
// renewal endpoint means the refresh credential is dead; one from
// change-password means the supplied current password was wrong.
var renewalExemptPaths = []string{
	"/auth/refresh",
	"/auth/logout",
	"/auth/change-password",
}

var _ http.RoundTripper = (*Authenticator)(nil)

// Authenticator attaches the current access credential to every
// outbound request and, on a 401, renews once and resends the request
// exactly once with the new credential.
type Authenticator struct {
	base       http.RoundTripper
	store      credstore.Store
	renewer    Renewer
	pathPrefix string
}

// NewAuthenticator wraps base. A nil base uses http.DefaultTransport.
// pathPrefix is the API root's path component ("" when the API lives at
// the host root); the renewal exemption matches exact paths beneath it.
func NewAuthenticator(base http.RoundTripper, store credstore.Store, renewer Renewer, pathPrefix string) *Authenticator {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Authenticator{
		base:       base,
		store:      store,
		renewer:    renewer,
		pathPrefix: strings.TrimRight(pathPrefix, "/"),
	}
}

func (a *Authenticator) renewalExempt(path string) bool {
	if a.pathPrefix != "" {
		trimmed := strings.TrimPrefix(path, a.pathPrefix)
		if trimmed == path {
			return false
		}
		path = trimmed
	}
	for _, exempt := range renewalExemptPaths {
		if path == exempt {
			return true
		}
	}
	return false
}

// RoundTrip implements http.RoundTripper.
func (a *Authenticator) RoundTrip(req *http.Request) (*http.Response, error) {
	authed := req
	if access, ok, err := a.store.Get(credstore.AccessToken); err == nil && ok {
		authed = req.Clone(req.Context())
		authed.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := a.base.RoundTrip(authed)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || a.renewalExempt(req.URL.Path) {
		return resp, nil
	}

	tokens, renewErr := a.renewer.Renew(req.Context())
	if renewErr != nil {
		// The renewal's failure supersedes the original 401.
		drain(resp)
		return nil, renewErr
	}

	retry, retryErr := cloneForRetry(req, tokens.AccessToken)
	if retryErr != nil {
		// Body already consumed and not replayable; surface the 401.
		return resp, nil
	}
	drain(resp)
	return a.base.RoundTrip(retry)
}

// cloneForRetry rebuilds the original request with the new credential.
func cloneForRetry(req *http.Request, access string) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body != nil {
		if req.GetBody == nil {
			return nil, errors.Wrap(ErrBodyNotReplayable, "[Authenticator.cloneForRetry]")
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, errors.Wrap(err, "[Authenticator.cloneForRetry] GetBody")
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+access)
	return retry, nil
}

// drain releases the response body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()
}

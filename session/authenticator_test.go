package session_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identkit/identcli/api"
	"github.com/identkit/identcli/credstore"
	"github.com/identkit/identcli/session"
)

// stubRenewer records Renew calls and returns a fixed outcome.
type stubRenewer struct {
	tokens *api.AuthTokens
	err    error
	calls  int
}

func (s *stubRenewer) Renew(_ context.Context) (*api.AuthTokens, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.tokens, nil
}

type authenticatorFixture struct {
	server  *httptest.Server
	store   *credstore.Memory
	renewer *stubRenewer
	client  *http.Client

	requests []*http.Request
	bodies   []string
	statuses []int
}

// setupAuthenticator builds a server that answers each request with the
// next queued status and records what arrived.
func setupAuthenticator(t *testing.T, statuses ...int) *authenticatorFixture {
	t.Helper()

	f := &authenticatorFixture{
		store:    credstore.NewMemory(),
		renewer:  &stubRenewer{tokens: &api.AuthTokens{AccessToken: "renewed-access"}},
		statuses: statuses,
	}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.requests = append(f.requests, r.Clone(context.Background()))
		f.bodies = append(f.bodies, string(body))

		status := http.StatusOK
		if len(f.statuses) > 0 {
			status = f.statuses[0]
			f.statuses = f.statuses[1:]
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(f.server.Close)

	f.client = &http.Client{
		Transport: session.NewAuthenticator(nil, f.store, f.renewer, ""),
	}
	return f
}

func (f *authenticatorFixture) authHeader(i int) string {
	return f.requests[i].Header.Get("Authorization")
}

func TestAuthenticatorAttachesCredential(t *testing.T) {
	f := setupAuthenticator(t, http.StatusOK)
	require.NoError(t, f.store.Set(credstore.AccessToken, "stored-access"))

	resp, err := f.client.Get(f.server.URL + "/user/profile")
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, f.requests, 1)
	assert.Equal(t, "Bearer stored-access", f.authHeader(0))
	assert.Zero(t, f.renewer.calls)
}

func TestAuthenticatorSendsBareRequestWithoutCredential(t *testing.T) {
	f := setupAuthenticator(t, http.StatusOK)

	resp, err := f.client.Get(f.server.URL + "/auth/login")
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, f.requests, 1)
	assert.Empty(t, f.authHeader(0))
}

func TestAuthenticatorRetriesWithRenewedCredential(t *testing.T) {
	f := setupAuthenticator(t, http.StatusUnauthorized, http.StatusOK)
	require.NoError(t, f.store.Set(credstore.AccessToken, "stale-access"))

	resp, err := f.client.Post(f.server.URL+"/user/profile", "application/json", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, f.renewer.calls)
	require.Len(t, f.requests, 2)
	assert.Equal(t, "Bearer stale-access", f.authHeader(0))
	assert.Equal(t, "Bearer renewed-access", f.authHeader(1))
	// The body is replayed intact on the retry.
	assert.Equal(t, `{"a":1}`, f.bodies[1])
}

func TestAuthenticatorRetriesExactlyOnce(t *testing.T) {
	f := setupAuthenticator(t, http.StatusUnauthorized, http.StatusUnauthorized)

	resp, err := f.client.Get(f.server.URL + "/user/profile")
	require.NoError(t, err)
	resp.Body.Close()

	// A second 401 passes through; no renewal loop.
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 1, f.renewer.calls)
	assert.Len(t, f.requests, 2)
}

func TestAuthenticatorSkipsRenewalOnExemptPaths(t *testing.T) {
	for _, path := range []string{"/auth/refresh", "/auth/logout", "/auth/change-password"} {
		t.Run(path, func(t *testing.T) {
			f := setupAuthenticator(t, http.StatusUnauthorized)

			resp, err := f.client.Get(f.server.URL + path)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Zero(t, f.renewer.calls)
			assert.Len(t, f.requests, 1)
		})
	}
}

func TestAuthenticatorExemptionRequiresExactPath(t *testing.T) {
	f := setupAuthenticator(t, http.StatusUnauthorized, http.StatusOK)

	// A lookalike path that merely ends in an exempt segment still goes
	// through the renewal flow.
	resp, err := f.client.Get(f.server.URL + "/payments/auth/refresh")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, f.renewer.calls)
	assert.Len(t, f.requests, 2)
}

func TestAuthenticatorExemptionHonoursBasePathPrefix(t *testing.T) {
	f := setupAuthenticator(t, http.StatusUnauthorized)
	f.client = &http.Client{
		Transport: session.NewAuthenticator(nil, f.store, f.renewer, "/api"),
	}

	resp, err := f.client.Get(f.server.URL + "/api/auth/refresh")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, f.renewer.calls)
	assert.Len(t, f.requests, 1)
}

func TestAuthenticatorPropagatesRenewerError(t *testing.T) {
	f := setupAuthenticator(t, http.StatusUnauthorized)
	f.renewer.err = session.ErrRefreshExpired

	_, err := f.client.Get(f.server.URL + "/user/profile")
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrRefreshExpired)
	assert.Len(t, f.requests, 1)
}

func TestAuthenticatorSurfaces401ForNonReplayableBody(t *testing.T) {
	f := setupAuthenticator(t, http.StatusUnauthorized, http.StatusOK)

	// A raw request built around a bare reader has no GetBody, so the
	// retry cannot reconstruct it.
	pipeReader, pipeWriter := io.Pipe()
	go func() {
		pipeWriter.Write([]byte("streamed"))
		pipeWriter.Close()
	}()
	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/user/profile", pipeReader)
	require.NoError(t, err)
	require.Nil(t, req.GetBody)

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 1, f.renewer.calls)
	assert.Len(t, f.requests, 1)
}

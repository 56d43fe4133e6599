package api

import (
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// OAuthProviders are the federated login providers exposed by the
// identity API.
var OAuthProviders = []string{"google", "microsoft", "github", "linkedin"}

var ErrUnknownProvider = errors.New("unknown oauth provider")

// OAuthLoginURL builds the browser URL that starts a federated login
// through the identity API. The API performs the provider dance and
// delivers tokens to redirectURI; state is echoed back for CSRF
// checking by the caller.
func (c *Client) OAuthLoginURL(provider, state, redirectURI string) (string, error) {
	known := false
	for _, p := range OAuthProviders {
		if p == provider {
			known = true
			break
		}
	}
	if !known {
		return "", errors.Wrapf(ErrUnknownProvider, "[Client.OAuthLoginURL] %q", provider)
	}

	conf := oauth2.Config{
		Endpoint:    oauth2.Endpoint{AuthURL: c.baseURL + "/oauth/" + provider},
		RedirectURL: redirectURI,
	}
	return conf.AuthCodeURL(state), nil
}

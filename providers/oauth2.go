package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-forward-auth/internal/errors"
	"golang.org/x/oauth2"
)

// OAuth2 is the generic authorization-code provider. It exchanges the
// callback code and resolves the subject id from a configured user-info
// endpoint. The named Google kind reuses it with fixed endpoints.
type OAuth2 struct {
	meta
	config    *oauth2.Config
	userURL   string
	userField string
}

func newOAuth2(instance string, env Settings, baseURL, prefix string) (Provider, error) {
	authURL := env.Get("AUTH_URL", "")
	tokenURL := env.Get("TOKEN_URL", "")
	clientID := env.Get("CLIENT_ID", "")
	userURL := env.Get("USER_URL", env.Get("PROFILE_URL", ""))
	if authURL == "" || tokenURL == "" || clientID == "" || userURL == "" {
		return nil, fmt.Errorf("oauth2 provider requires AUTH_URL, TOKEN_URL, CLIENT_ID and USER_URL")
	}

	m := newMeta("oauth2", instance, prefix, env, "fas fa-key")

	scopes := env.List("SCOPE")
	if len(scopes) == 0 {
		scopes = []string{"profile", "email"}
	}

	return &OAuth2{
		meta: m,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: env.Get("CLIENT_SECRET", ""),
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
			RedirectURL: baseURL + m.callbackPath,
			Scopes:      scopes,
		},
		userURL:   userURL,
		userField: env.Get("USER_FIELD", "email"),
	}, nil
}

func (o *OAuth2) AuthCodeURL(state string) string {
	return o.config.AuthCodeURL(state)
}

func (o *OAuth2) Verify(ctx context.Context, r *http.Request) (*Identity, error) {
	if upstreamErr := r.FormValue("error"); upstreamErr != "" {
		return nil, fmt.Errorf("%w: %s", errors.ErrProviderUnavailable, upstreamErr)
	}
	code := r.FormValue("code")
	if code == "" {
		return nil, errors.ErrInvalidCredentials
	}

	tok, err := o.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %v", errors.ErrProviderUnavailable, err)
	}

	profile, err := fetchProfile(ctx, o.config.Client(ctx, tok), o.userURL)
	if err != nil {
		return nil, err
	}

	id, _ := profile[o.userField].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: profile missing %q", errors.ErrInvalidCredentials, o.userField)
	}

	return &Identity{ID: id, Strategy: o.Name(), Profile: profile}, nil
}

// fetchProfile reads the user profile from an OAuth2 user-info endpoint.
// Both transport failure and a non-success upstream status collapse into
// the provider-unavailable category.
func fetchProfile(ctx context.Context, client *http.Client, url string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrProviderUnavailable, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch profile: %v", errors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: profile endpoint returned %d", errors.ErrProviderUnavailable, resp.StatusCode)
	}

	var profile map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%w: decode profile: %v", errors.ErrProviderUnavailable, err)
	}
	return profile, nil
}

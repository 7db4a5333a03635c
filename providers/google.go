package providers

import (
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// newGoogle builds the named Google provider: the generic OAuth2 flow with
// Google's fixed endpoints and user-info URL baked in.
func newGoogle(instance string, env Settings, baseURL, prefix string) (Provider, error) {
	clientID := env.Get("CLIENT_ID", "")
	clientSecret := env.Get("CLIENT_SECRET", "")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("google provider requires CLIENT_ID and CLIENT_SECRET")
	}

	m := newMeta("google", instance, prefix, env, "fab fa-google")

	scopes := env.List("SCOPE")
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}

	return &OAuth2{
		meta: m,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  baseURL + m.callbackPath,
			Scopes:       scopes,
		},
		userURL:   googleUserInfoURL,
		userField: env.Get("USER_FIELD", "email"),
	}, nil
}

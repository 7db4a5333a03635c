package providers

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-forward-auth/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// OIDC is the OpenID-Connect provider. Endpoint discovery runs lazily on
// first use so that configuring an instance does not require the issuer to
// be reachable at boot.
type OIDC struct {
	meta
	issuer       string
	clientID     string
	clientSecret string
	scopes       []string
	redirectURL  string

	mu       sync.Mutex
	provider *oidc.Provider
	config   *oauth2.Config
}

func newOIDC(instance string, env Settings, baseURL, prefix string) (Provider, error) {
	issuer := env.Get("ISSUER", "")
	clientID := env.Get("CLIENT_ID", "")
	if issuer == "" || clientID == "" {
		return nil, fmt.Errorf("oidc provider requires ISSUER and CLIENT_ID")
	}

	m := newMeta("oidc", instance, prefix, env, "fas fa-user")

	scopes := env.List("SCOPE")
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &OIDC{
		meta:         m,
		issuer:       issuer,
		clientID:     clientID,
		clientSecret: env.Get("CLIENT_SECRET", ""),
		scopes:       scopes,
		redirectURL:  baseURL + m.callbackPath,
	}, nil
}

// ensure performs issuer discovery once and caches the result
func (o *OIDC) ensure(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.provider != nil {
		return nil
	}

	provider, err := oidc.NewProvider(ctx, o.issuer)
	if err != nil {
		return fmt.Errorf("%w: discovery %s: %v", errors.ErrProviderUnavailable, o.issuer, err)
	}

	o.provider = provider
	o.config = &oauth2.Config{
		ClientID:     o.clientID,
		ClientSecret: o.clientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  o.redirectURL,
		Scopes:       o.scopes,
	}
	return nil
}

func (o *OIDC) AuthCodeURL(state string) string {
	if err := o.ensure(context.Background()); err != nil {
		log.Err(err).Str("provider", o.Name()).Msg("OIDC discovery failed")
		return ""
	}
	return o.config.AuthCodeURL(state)
}

func (o *OIDC) Verify(ctx context.Context, r *http.Request) (*Identity, error) {
	if upstreamErr := r.FormValue("error"); upstreamErr != "" {
		return nil, fmt.Errorf("%w: %s", errors.ErrProviderUnavailable, upstreamErr)
	}
	code := r.FormValue("code")
	if code == "" {
		return nil, errors.ErrInvalidCredentials
	}

	if err := o.ensure(ctx); err != nil {
		return nil, err
	}

	tok, err := o.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %v", errors.ErrProviderUnavailable, err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("%w: no id_token in response", errors.ErrProviderUnavailable)
	}

	idToken, err := o.provider.Verifier(&oidc.Config{ClientID: o.clientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.ErrInvalidCredentials
	}

	var claims struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.ErrInvalidCredentials
	}

	id := claims.Email
	if id == "" {
		id = claims.Sub
	}

	return &Identity{
		ID:       id,
		Strategy: o.Name(),
		Profile: map[string]any{
			"sub":     claims.Sub,
			"email":   claims.Email,
			"name":    claims.Name,
			"picture": claims.Picture,
		},
	}, nil
}

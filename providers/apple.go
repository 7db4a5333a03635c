package providers

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-forward-auth/internal/errors"
)

const appleIssuer = "https://appleid.apple.com"

// Apple is the native mobile SSO provider. The app performs the Apple
// sign-in round trip itself and posts the resulting identity token to the
// callback; Verify checks it against Apple's published signing keys.
type Apple struct {
	meta
	issuer   string
	clientID string

	mu       sync.Mutex
	provider *oidc.Provider
}

func newApple(instance string, env Settings, _, prefix string) (Provider, error) {
	clientID := env.Get("CLIENT_ID", "")
	if clientID == "" {
		return nil, fmt.Errorf("apple provider requires CLIENT_ID")
	}

	m := newMeta("apple", instance, prefix, env, "fab fa-apple")
	m.callbackMethod = http.MethodPost

	return &Apple{
		meta: m,
		// ISSUER is only overridable to point tests at a stub
		issuer:   env.Get("ISSUER", appleIssuer),
		clientID: clientID,
	}, nil
}

func (a *Apple) ensure(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.provider != nil {
		return nil
	}
	provider, err := oidc.NewProvider(ctx, a.issuer)
	if err != nil {
		return fmt.Errorf("%w: discovery %s: %v", errors.ErrProviderUnavailable, a.issuer, err)
	}
	a.provider = provider
	return nil
}

func (a *Apple) Verify(ctx context.Context, r *http.Request) (*Identity, error) {
	if err := r.ParseForm(); err != nil {
		return nil, errors.ErrInvalidCredentials
	}
	rawIDToken := r.PostFormValue("id_token")
	if rawIDToken == "" {
		return nil, errors.ErrInvalidCredentials
	}

	if err := a.ensure(ctx); err != nil {
		return nil, err
	}

	idToken, err := a.provider.Verifier(&oidc.Config{ClientID: a.clientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.ErrInvalidCredentials
	}

	var claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
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
		Strategy: a.Name(),
		Profile:  map[string]any{"sub": claims.Sub, "email": claims.Email},
	}, nil
}

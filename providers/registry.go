package providers

import (
	"context"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/jrsteele09/go-forward-auth/internal/errors"
)

// factory builds one provider instance from its scanned settings
type factory func(instance string, env Settings, baseURL, prefix string) (Provider, error)

// factories maps every supported kind to its constructor
var factories = map[string]factory{
	"local":  newLocal,
	"ldap":   newLDAP,
	"oauth2": newOAuth2,
	"oidc":   newOIDC,
	"google": newGoogle,
	"apple":  newApple,
}

// Registry holds one immutable entry per configured provider instance. It
// is built once at startup and passed by reference into the decision
// middleware and session controller; it is never mutated after boot.
type Registry struct {
	providers []Provider
	byName    map[string]Provider
}

var instanceIDPattern = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeInstance turns a raw env instance segment into a stable id
func normalizeInstance(raw string) string {
	return instanceIDPattern.ReplaceAllString(strings.ToLower(raw), "-")
}

// Load scans environ (os.Environ-style "KEY=value" pairs) for every
// {KIND}_{INSTANCE}_{FIELD} entry of a supported kind and builds the
// registry. Multiple instances of the same kind may coexist. baseURL is the
// external URL of the auth host, used for absolute callback URLs.
func Load(baseURL, prefix string, environ []string) (*Registry, error) {
	grouped := make(map[string]map[string]Settings) // kind -> instance -> settings
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		parts := strings.SplitN(key, "_", 3)
		if len(parts) < 3 {
			continue
		}
		kind := strings.ToLower(parts[0])
		if _, supported := factories[kind]; !supported {
			continue
		}
		instance := normalizeInstance(parts[1])
		if instance == "" {
			continue
		}
		if grouped[kind] == nil {
			grouped[kind] = make(map[string]Settings)
		}
		if grouped[kind][instance] == nil {
			grouped[kind][instance] = make(Settings)
		}
		grouped[kind][instance][parts[2]] = value
	}

	reg := &Registry{byName: make(map[string]Provider)}
	for kind, instances := range grouped {
		for instance, env := range instances {
			p, err := factories[kind](instance, env, baseURL, prefix)
			if err != nil {
				return nil, errors.Wrapf(err, "provider %s/%s", kind, instance)
			}
			reg.providers = append(reg.providers, p)
			reg.byName[p.Name()] = p
		}
	}

	// Deterministic iteration order for routes and login listings
	sort.Slice(reg.providers, func(i, j int) bool {
		return reg.providers[i].Name() < reg.providers[j].Name()
	})
	return reg, nil
}

// All returns every configured provider in name order
func (r *Registry) All() []Provider {
	return r.providers
}

// Lookup returns the provider with the given strategy name
func (r *Registry) Lookup(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Paths returns every provider login and callback path. The decision
// endpoint allows these unconditionally so login can bootstrap.
func (r *Registry) Paths() []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, p := range r.providers {
		for _, path := range []string{p.LoginPath(), p.CallbackPath()} {
			if _, ok := seen[path]; ok {
				continue
			}
			seen[path] = struct{}{}
			paths = append(paths, path)
		}
	}
	return paths
}

// Authenticate runs a provider's verify step and then enforces the
// configured allow-lists, uniformly and independent of provider kind. An
// identity only counts as authenticated once both have passed.
func (r *Registry) Authenticate(ctx context.Context, p Provider, req *http.Request) (*Identity, error) {
	identity, err := p.Verify(ctx, req)
	if err != nil {
		return nil, err
	}
	if guarded, ok := p.(restricted); ok {
		domains, users := guarded.whitelists()
		if err := checkWhitelists(identity, domains, users); err != nil {
			return nil, err
		}
	}
	return identity, nil
}

package providers

import (
	"context"
	"net/http"
	"strings"
)

// Provider is one configured identity-provider instance. Implementations
// are immutable after construction; Verify is the only operation that may
// touch the network.
type Provider interface {
	// Name is the unique strategy name, e.g. "oauth2_tenant-a"
	Name() string
	// Kind is the provider kind, e.g. "oauth2"
	Kind() string
	// Instance is the configured instance identifier
	Instance() string

	LoginPath() string
	CallbackPath() string
	CallbackMethod() string

	DisplayName() string
	Icon() string

	// Verify converts the provider's native callback request into a
	// canonical Identity. Upstream transport failures and non-success
	// upstream statuses surface as ErrProviderUnavailable.
	Verify(ctx context.Context, r *http.Request) (*Identity, error)
}

// RedirectProvider is implemented by kinds whose login step redirects the
// browser to an external authorization endpoint. The state parameter makes
// the round trip opaquely and comes back on the callback.
type RedirectProvider interface {
	Provider
	AuthCodeURL(state string) string
}

// restricted is implemented by every provider carrying allow-lists
type restricted interface {
	whitelists() (domains, users []string)
}

// meta holds the fields common to all provider kinds
type meta struct {
	name            string
	kind            string
	instance        string
	loginPath       string
	callbackPath    string
	callbackMethod  string
	displayName     string
	icon            string
	domainWhitelist []string
	userWhitelist   []string
}

// newMeta derives the route paths from kind and instance id and reads the
// uniform field set shared by every kind
func newMeta(kind, instance, prefix string, env Settings, defaultIcon string) meta {
	login := prefix + "/_" + kind + "/" + instance
	return meta{
		name:            kind + "_" + instance,
		kind:            kind,
		instance:        instance,
		loginPath:       login,
		callbackPath:    login + "/callback",
		callbackMethod:  http.MethodGet,
		displayName:     env.Get("DISPLAY_NAME", instance),
		icon:            env.Get("ICON", defaultIcon),
		domainWhitelist: env.List("DOMAIN_WHITELIST"),
		userWhitelist:   env.List("USER_WHITELIST"),
	}
}

func (m meta) Name() string           { return m.name }
func (m meta) Kind() string           { return m.kind }
func (m meta) Instance() string       { return m.instance }
func (m meta) LoginPath() string      { return m.loginPath }
func (m meta) CallbackPath() string   { return m.callbackPath }
func (m meta) CallbackMethod() string { return m.callbackMethod }
func (m meta) DisplayName() string    { return m.displayName }
func (m meta) Icon() string           { return m.icon }

func (m meta) whitelists() (domains, users []string) {
	return m.domainWhitelist, m.userWhitelist
}

// Settings is the uniform per-instance field set scanned from the
// environment, keyed by the FIELD part of {KIND}_{INSTANCE}_{FIELD}
type Settings map[string]string

// Get returns the value for field, or fallback when unset
func (s Settings) Get(field, fallback string) string {
	if v, ok := s[field]; ok && v != "" {
		return v
	}
	return fallback
}

// List returns a comma-separated field as a slice, empty when unset
func (s Settings) List(field string) []string {
	raw := s[field]
	if raw == "" {
		return nil
	}
	var values []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

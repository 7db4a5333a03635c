package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the full service configuration, loaded once at startup.
// Provider instances are discovered separately by the providers package.
type Config struct {
	AppName string `env:"APP_NAME" envDefault:"Forward Auth"`
	Port    string `env:"PORT" envDefault:"8080"`
	Env     string `env:"ENV" envDefault:"DEV"`

	// AuthHost is the canonical host serving the login surface. Requests to
	// controller routes on other hosts are bounced here first.
	AuthHost   string `env:"AUTH_HOST" envDefault:"localhost"`
	AuthPrefix string `env:"AUTH_PREFIX"`

	AccessTokenName    string        `env:"ACCESS_TOKEN_NAME" envDefault:"_access_token"`
	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_EXPIRATION" envDefault:"15m"`
	RefreshTokenName   string        `env:"REFRESH_TOKEN_NAME" envDefault:"_refresh_token"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_EXPIRATION" envDefault:"168h"`

	CookieSecure   bool   `env:"COOKIE_SECURE"`
	CookieSameSite string `env:"COOKIE_SAMESITE" envDefault:"lax"`

	// CookieHosts lists every host that must observe the session cookies.
	// Defaults to just the auth host.
	CookieHosts        []string `env:"COOKIE_HOSTS" envSeparator:","`
	CookieHostsUseRoot bool     `env:"COOKIE_HOSTS_USE_ROOT"`
	CookieModifySecret string   `env:"COOKIE_MODIFY_SECRET"`

	SessionSecret string        `env:"SESSION_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_EXPIRATION" envDefault:"10m"`

	LongLivedTokensEnabled bool   `env:"LONG_LIVED_TOKENS_ENABLED"`
	LongLivedTokensNumber  int    `env:"LONG_LIVED_TOKENS_NUMBER" envDefault:"6"`
	LongLivedTokensRaw     string `env:"LONG_LIVED_TOKENS"`
	LongLivedTokens        map[string]string

	RBACEnabled bool   `env:"RBAC_ENABLED"`
	DefaultRole string `env:"DEFAULT_ROLE" envDefault:"user"`
	RolesConfig string `env:"ROLES_CONFIG"`
	RolesFile   string `env:"ROLES_CONFIG_FILE"`

	// RoutePermissions maps a forwarded path prefix to the permissions a
	// caller must hold, e.g. "/admin=admin:read,admin:write;/api=api:use".
	RoutePermissionsRaw string `env:"ROUTE_PERMISSIONS"`
	RoutePermissions    map[string][]string

	FormTitle      string `env:"FORM_TITLE" envDefault:"Login"`
	FormAdminEmail string `env:"FORM_ADMIN_EMAIL"`

	// DebugErrors includes stack detail in generic failure responses.
	DebugErrors bool `env:"DEBUG_ERRORS"`
}

// Load parses the environment into a Config and fills derived fields.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config parse env: %w", err)
	}

	cfg.AuthHost = NormalizeHost(cfg.AuthHost)

	if len(cfg.CookieHosts) == 0 {
		cfg.CookieHosts = []string{cfg.AuthHost}
	}
	for i, h := range cfg.CookieHosts {
		cfg.CookieHosts[i] = NormalizeHost(h)
	}

	// Secrets fall back to random values, matching the reference behavior.
	// A multi-instance deployment must configure them explicitly.
	if cfg.AccessTokenSecret == "" {
		cfg.AccessTokenSecret = randomSecret()
	}
	if cfg.RefreshTokenSecret == "" {
		cfg.RefreshTokenSecret = randomSecret()
	}
	if cfg.CookieModifySecret == "" {
		cfg.CookieModifySecret = randomSecret()
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = randomSecret()
	}

	cfg.LongLivedTokens = parseLongLivedTokens(cfg.LongLivedTokensRaw)
	if cfg.LongLivedTokensEnabled && len(cfg.LongLivedTokens) == 0 {
		cfg.LongLivedTokens = generateLongLivedTokens(cfg.LongLivedTokensNumber)
	}

	var err error
	cfg.RoutePermissions, err = parseRoutePermissions(cfg.RoutePermissionsRaw)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// SameSite maps the configured sameSite string onto the http constant.
func (c *Config) SameSite() http.SameSite {
	switch strings.ToLower(c.CookieSameSite) {
	case "strict":
		return http.SameSiteStrictMode
	default:
		return http.SameSiteLaxMode
	}
}

// IsLongLivedToken reports whether value matches a configured token.
func (c *Config) IsLongLivedToken(value string) bool {
	if !c.LongLivedTokensEnabled || value == "" {
		return false
	}
	for _, v := range c.LongLivedTokens {
		if v == value {
			return true
		}
	}
	return false
}

// NormalizeHost reduces a host value to "hostname" or "hostname:port",
// tolerating values given with a scheme.
func NormalizeHost(host string) string {
	if host == "" {
		return "localhost"
	}
	raw := host
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "localhost"
	}
	if u.Port() != "" {
		return u.Hostname() + ":" + u.Port()
	}
	return u.Hostname()
}

// parseLongLivedTokens parses "name:value,name:value" pairs.
func parseLongLivedTokens(raw string) map[string]string {
	tokens := make(map[string]string)
	if raw == "" {
		return tokens
	}
	for _, pair := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(pair, ":")
		if !ok || name == "" || value == "" {
			continue
		}
		tokens[name] = value
	}
	return tokens
}

func generateLongLivedTokens(n int) map[string]string {
	tokens := make(map[string]string, n)
	for i := 0; i < n; i++ {
		tokens[fmt.Sprintf("Token %d", i+1)] = "token_" + randomSecret()
	}
	return tokens
}

// parseRoutePermissions parses "prefix=perm,perm;prefix=perm" declarations.
func parseRoutePermissions(raw string) (map[string][]string, error) {
	perms := make(map[string][]string)
	if raw == "" {
		return perms, nil
	}
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		prefix, list, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("config: invalid ROUTE_PERMISSIONS entry %q", entry)
		}
		var required []string
		for _, p := range strings.Split(list, ",") {
			if p = strings.TrimSpace(p); p != "" {
				required = append(required, p)
			}
		}
		perms[prefix] = required
	}
	return perms, nil
}

func randomSecret() string {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("config: crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(b)
}

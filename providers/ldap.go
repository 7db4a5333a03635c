package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	ldaplib "github.com/go-ldap/ldap/v3"
	"github.com/jrsteele09/go-forward-auth/internal/errors"
)

// LDAP is the directory-bind provider: a username/password form verified
// with a search-then-bind against an external directory. Transport failures
// are normalized to ErrProviderUnavailable; a failed user bind is an
// ordinary credential failure.
type LDAP struct {
	meta
	url          string
	bindDN       string
	bindPassword string
	searchBase   string
	searchFilter string
	usernameAttr string
}

func newLDAP(instance string, env Settings, _, prefix string) (Provider, error) {
	url := env.Get("URL", "")
	if url == "" {
		return nil, fmt.Errorf("ldap provider requires URL")
	}

	m := newMeta("ldap", instance, prefix, env, "fas fa-server")
	m.callbackMethod = http.MethodPost

	return &LDAP{
		meta:         m,
		url:          url,
		bindDN:       env.Get("BIND_DN", ""),
		bindPassword: env.Get("BIND_CREDENTIALS", ""),
		searchBase:   env.Get("SEARCH_BASE", ""),
		searchFilter: env.Get("SEARCH_FILTER", "(uid={{username}})"),
		usernameAttr: env.Get("USERNAME_ATTRIBUTE", "uid"),
	}, nil
}

func (l *LDAP) Verify(_ context.Context, r *http.Request) (*Identity, error) {
	if err := r.ParseForm(); err != nil {
		return nil, errors.ErrInvalidCredentials
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		return nil, errors.ErrInvalidCredentials
	}

	conn, err := ldaplib.DialURL(l.url)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", errors.ErrProviderUnavailable, l.url, err)
	}
	defer conn.Close()

	if l.bindDN != "" {
		if err := conn.Bind(l.bindDN, l.bindPassword); err != nil {
			return nil, fmt.Errorf("%w: service bind: %v", errors.ErrProviderUnavailable, err)
		}
	}

	filter := strings.ReplaceAll(l.searchFilter, "{{username}}", ldaplib.EscapeFilter(username))
	result, err := conn.Search(ldaplib.NewSearchRequest(
		l.searchBase,
		ldaplib.ScopeWholeSubtree, ldaplib.NeverDerefAliases,
		1, 0, false,
		filter,
		[]string{"dn", l.usernameAttr, "mail", "cn"},
		nil,
	))
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", errors.ErrProviderUnavailable, err)
	}
	if len(result.Entries) != 1 {
		return nil, errors.ErrInvalidCredentials
	}

	entry := result.Entries[0]
	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, errors.ErrInvalidCredentials
	}

	id := entry.GetAttributeValue(l.usernameAttr)
	if id == "" {
		id = username
	}

	profile := map[string]any{"dn": entry.DN}
	for _, attr := range entry.Attributes {
		if len(attr.Values) == 1 {
			profile[attr.Name] = attr.Values[0]
		}
	}

	return &Identity{ID: id, Strategy: l.Name(), Profile: profile}, nil
}

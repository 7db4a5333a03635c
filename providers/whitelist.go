package providers

import (
	"slices"
	"strings"

	"github.com/jrsteele09/go-forward-auth/internal/errors"
)

// checkWhitelists applies the domain and user allow-lists to a verified
// identity. The domain list only applies when the id looks like an email
// address; the user list matches the id verbatim. The two rejections carry
// distinct reasons, separate from a raw verify failure.
func checkWhitelists(identity *Identity, domains, users []string) error {
	if len(domains) > 0 {
		if _, domain, ok := strings.Cut(identity.ID, "@"); ok {
			if !slices.Contains(domains, domain) {
				return errors.ErrDomainNotAllowed
			}
		}
	}
	if len(users) > 0 && !slices.Contains(users, identity.ID) {
		return errors.ErrUserNotAllowed
	}
	return nil
}

package server

import (
	"net/http"
	"net/url"
	"strings"
)

// AuthorizeHandler is the authorization decision endpoint the edge gateway
// calls once per proxied request. It answers with a status code and
// identity headers only. It never issues a redirect.
//
// Decision order: control-plane allow-list, long-lived token bypass, access
// cookie verification, then route-level permission requirements.
func (s *Server) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fwd := forwarded(r)
		path := fwd.Path(r.URL.Path)

		// Control-plane routes must stay reachable with no session so the
		// login flow can bootstrap
		if s.isControlPath(path) {
			w.WriteHeader(http.StatusOK)
			return
		}

		if s.config.LongLivedTokensEnabled {
			if s.config.IsLongLivedToken(bearerToken(r, fwd)) {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		claims, err := s.codec.VerifyAccess(s.cookieValue(r, s.config.AccessTokenName))
		if err != nil {
			// Absent and invalid collapse into the same answer
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		if required, ok := s.requiredPermissions(path); ok {
			if !s.codec.HasPermission(claims, required...) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
		}

		w.Header().Set(headerForwardedUser, claims.User)
		if s.config.RBACEnabled {
			w.Header().Set(headerForwardedRole, claims.Role)
			w.Header().Set(headerForwardedPermissions, strings.Join(claims.Permissions, ","))
		}
		w.WriteHeader(http.StatusOK)
	}
}

// requiredPermissions resolves the permission set declared for the longest
// configured route prefix matching path
func (s *Server) requiredPermissions(path string) ([]string, bool) {
	var (
		best  string
		found bool
	)
	for prefix := range s.config.RoutePermissions {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
			best = prefix
			found = true
		}
	}
	if !found {
		return nil, false
	}
	return s.config.RoutePermissions[best], true
}

// bearerToken extracts a long-lived token candidate, in priority order:
// the tkn query parameter, the forwarded original URI's query string, a
// token form field, then an Authorization bearer header.
func bearerToken(r *http.Request, fwd ForwardedRequest) string {
	if v := r.URL.Query().Get("tkn"); v != "" {
		return v
	}
	if fwd.URI != "" {
		if u, err := url.Parse(fwd.URI); err == nil {
			if v := u.Query().Get("tkn"); v != "" {
				return v
			}
		}
	}
	if v := r.PostFormValue("token"); v != "" {
		return v
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return ""
}

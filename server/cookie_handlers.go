package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-forward-auth/cookiesync"
	"github.com/rs/zerolog/log"
)

// CookieSyncHandler executes one hop of a cookie mutation chain. The signed
// job token is the sole trust anchor: a payload failing verification is
// answered with a structured 400 and never processed.
func (s *Server) CookieSyncHandler(endpoint string) http.HandlerFunc {
	removing := endpoint == cookiesync.EndpointRemove

	return func(w http.ResponseWriter, r *http.Request) {
		job, err := s.cookies.Verify(r.URL.Query().Get(cookiesync.QueryParam))
		if err != nil {
			log.Warn().Err(err).Str("host", r.Host).Msg("rejected cookie sync token")
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid token"})
			return
		}

		domain := s.cookies.CookieDomain(r.Host)
		for _, op := range job.Operations {
			s.applyCookie(w, op, domain, removing)
		}

		next, final, err := s.cookies.NextHop(scheme(r), endpoint, job)
		if err != nil {
			log.Err(err).Msg("Failed to sign next cookie sync hop")
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		if final {
			target := job.RedirectURL
			if target == "" {
				target = s.controllerURL(scheme(r), "/", nil)
			}
			s.redirect(w, r, target)
			return
		}
		s.redirect(w, r, next)
	}
}

// applyCookie sets or deletes one cookie scoped to this hop's domain.
// Deletion reuses the exact attribute set used when setting, otherwise the
// browser treats it as a different cookie.
func (s *Server) applyCookie(w http.ResponseWriter, op cookiesync.Operation, domain string, removing bool) {
	cookie := &http.Cookie{
		Name:     op.Name,
		Value:    op.Value,
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: s.config.SameSite(),
		MaxAge:   op.MaxAge,
	}
	if removing || op.Remove {
		cookie.Value = ""
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
	}
	http.SetCookie(w, cookie)
}

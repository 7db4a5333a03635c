package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-forward-auth/cookiesync"
	"github.com/jrsteele09/go-forward-auth/server/loginsession"
	"github.com/rs/zerolog/log"
)

// RootHandler drives the session state machine: exactly one of {no tokens,
// access valid, access invalid + refresh present, access invalid + refresh
// invalid} holds, and it determines the next transition.
func (s *Server) RootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fwd := forwarded(r)
		access := s.cookieValue(r, s.config.AccessTokenName)
		refresh := s.cookieValue(r, s.config.RefreshTokenName)

		if access != "" {
			if claims, err := s.codec.VerifyAccess(access); err == nil {
				// Authenticated: never mutate cookies here
				w.Header().Set(headerForwardedUser, claims.User)
				if target := r.URL.Query().Get("redirect_url"); target != "" {
					s.redirect(w, r, target)
					return
				}
				respondJSON(w, http.StatusOK, map[string]any{
					"authenticated": true,
					"user":          claims.User,
					"strategy":      claims.Strategy,
					"role":          claims.Role,
				})
				return
			}
		}

		redirectURL := s.pendingRedirectURL(r)
		if refresh != "" {
			s.redirect(w, r, s.controllerURL(fwd.Proto, RouteRefresh, withRedirect(redirectURL)))
			return
		}
		s.redirect(w, r, s.controllerURL(fwd.Proto, RouteLogin, withRedirect(redirectURL)))
	}
}

// LoginHandler stashes the pending redirect_url and presents the provider
// choices. An already-authenticated caller bounces straight back to root.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fwd := forwarded(r)

		if access := s.cookieValue(r, s.config.AccessTokenName); access != "" {
			if _, err := s.codec.VerifyAccess(access); err == nil {
				s.redirect(w, r, s.controllerURL(fwd.Proto, "/", withRedirect(s.pendingRedirectURL(r))))
				return
			}
		}

		redirectURL := s.pendingRedirectURL(r)
		s.stashRedirectURL(w, r, redirectURL)

		if fwd.Host != s.config.AuthHost {
			s.redirect(w, r, s.controllerURL(fwd.Proto, RouteLogin, withRedirect(redirectURL)))
			return
		}

		type providerChoice struct {
			DisplayName string `json:"displayName"`
			LoginURL    string `json:"loginUrl"`
			Icon        string `json:"icon"`
			Kind        string `json:"kind"`
		}
		choices := make([]providerChoice, 0)
		for _, p := range s.registry.All() {
			choices = append(choices, providerChoice{
				DisplayName: p.DisplayName(),
				LoginURL:    p.LoginPath(),
				Icon:        p.Icon(),
				Kind:        p.Kind(),
			})
		}

		respondJSON(w, http.StatusOK, map[string]any{
			"title":      s.config.FormTitle,
			"adminEmail": s.config.FormAdminEmail,
			"providers":  choices,
			"error":      r.URL.Query().Get("error"),
		})
	}
}

// RefreshHandler verifies the refresh token and reissues the access token,
// syncing it across every cookie host. The refresh token itself is never
// rotated here. On failure only the refresh cookie is removed; the stale
// access cookie is left to expire naturally.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fwd := forwarded(r)
		if fwd.Host != s.config.AuthHost {
			s.redirect(w, r, s.controllerURL(fwd.Proto, RouteRefresh, withRedirect(s.pendingRedirectURL(r))))
			return
		}

		redirectURL := s.pendingRedirectURL(r)
		claims, err := s.codec.VerifyRefresh(s.cookieValue(r, s.config.RefreshTokenName))
		if err != nil {
			log.Warn().Str("host", fwd.Host).Msg("refresh token rejected, clearing refresh cookie")
			s.startCookieChain(w, r, cookiesync.EndpointRemove,
				s.controllerURL(fwd.Proto, RouteLogin, withRedirect(redirectURL)),
				[]cookiesync.Operation{
					{Name: s.config.RefreshTokenName, Remove: true},
				})
			return
		}

		access, err := s.codec.IssueAccess(claims.User, claims.Strategy, claims.Role)
		if err != nil {
			log.Err(err).Msg("Failed to issue access token on refresh")
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}

		landing := redirectURL
		if landing == "" {
			landing = s.controllerURL(fwd.Proto, "/", nil)
		}
		s.startCookieChain(w, r, cookiesync.EndpointSet, landing,
			[]cookiesync.Operation{
				{Name: s.config.AccessTokenName, Value: access, MaxAge: int(s.config.AccessTokenTTL.Seconds())},
			})
	}
}

// LogoutHandler always removes both cookies on every host
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fwd := forwarded(r)
		if fwd.Host != s.config.AuthHost {
			s.redirect(w, r, s.controllerURL(fwd.Proto, RouteLogout, withRedirect(s.pendingRedirectURL(r))))
			return
		}

		s.destroyLoginSession(w, r)
		s.startCookieChain(w, r, cookiesync.EndpointRemove,
			s.controllerURL(fwd.Proto, "/", withRedirect(r.URL.Query().Get("redirect_url"))),
			[]cookiesync.Operation{
				{Name: s.config.AccessTokenName, Remove: true},
				{Name: s.config.RefreshTokenName, Remove: true},
			})
	}
}

// startCookieChain starts a cookie mutation chain. A browser is redirected
// into the first hop and follows the chain; an XHR caller receives every
// hop URL at once and applies each host itself.
func (s *Server) startCookieChain(w http.ResponseWriter, r *http.Request, endpoint, finalURL string, ops []cookiesync.Operation) {
	proto := forwarded(r).Proto

	if isXHR(r) {
		urls, err := s.cookies.AllHops(proto, endpoint, finalURL, ops)
		if err != nil {
			log.Err(err).Msg("Failed to build cookie sync chain")
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"cookieUrls": urls})
		return
	}

	first, err := s.cookies.FirstHop(proto, endpoint, finalURL, ops)
	if err != nil {
		log.Err(err).Msg("Failed to build cookie sync chain")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	s.redirect(w, r, first)
}

// pendingRedirectURL resolves where the client should land after the flow:
// the explicit query value, else the session-stashed value, else the
// forwarded original destination.
func (s *Server) pendingRedirectURL(r *http.Request) string {
	if v := r.URL.Query().Get("redirect_url"); v != "" {
		return v
	}
	if cookie, err := r.Cookie(loginSessionCookie); err == nil {
		if session, err := s.loginSessions.Get(cookie.Value); err == nil && session.RedirectURL != "" {
			return session.RedirectURL
		}
	}
	return forwarded(r).Destination()
}

// stashRedirectURL stores the pending redirect_url server-side, keyed by a
// session cookie. The stash never holds a credential.
func (s *Server) stashRedirectURL(w http.ResponseWriter, r *http.Request, redirectURL string) {
	if redirectURL == "" {
		return
	}

	sessionID := ""
	if cookie, err := r.Cookie(loginSessionCookie); err == nil {
		sessionID = cookie.Value
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	now := time.Now()
	if err := s.loginSessions.Upsert(sessionID, loginsession.Session{
		RedirectURL: redirectURL,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.config.SessionTTL),
	}); err != nil {
		log.Err(err).Msg("Failed to stash redirect_url")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     loginSessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: s.config.SameSite(),
		MaxAge:   int(s.config.SessionTTL.Seconds()),
	})
}

// consumeStashedRedirectURL reads and deletes the stashed redirect_url
func (s *Server) consumeStashedRedirectURL(r *http.Request) string {
	cookie, err := r.Cookie(loginSessionCookie)
	if err != nil {
		return ""
	}
	session, err := s.loginSessions.Get(cookie.Value)
	if err != nil {
		return ""
	}
	_ = s.loginSessions.Delete(cookie.Value)
	return session.RedirectURL
}

// destroyLoginSession drops the stash and expires its cookie
func (s *Server) destroyLoginSession(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(loginSessionCookie); err == nil {
		_ = s.loginSessions.Delete(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     loginSessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Server) cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

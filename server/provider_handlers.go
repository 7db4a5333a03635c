package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-forward-auth/cookiesync"
	"github.com/jrsteele09/go-forward-auth/internal/errors"
	"github.com/jrsteele09/go-forward-auth/providers"
	"github.com/rs/zerolog/log"
)

// stateBlob rides the provider round trip on the opaque state parameter,
// carrying the pending redirect_url without server-side storage
type stateBlob struct {
	RedirectURL string `json:"redirect_url,omitempty"`
	Nonce       string `json:"nonce"`
}

func encodeState(redirectURL string) string {
	blob, err := json.Marshal(stateBlob{
		RedirectURL: redirectURL,
		Nonce:       uuid.New().String(),
	})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(blob)
}

func decodeState(state string) stateBlob {
	raw, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return stateBlob{}
	}
	var blob stateBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return stateBlob{}
	}
	return blob
}

// ProviderLoginHandler starts a provider's login flow. Redirect-based kinds
// bounce the browser to the external authorization endpoint; other kinds
// describe where the client must post its credentials.
func (s *Server) ProviderLoginHandler(p providers.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rp, ok := p.(providers.RedirectProvider); ok {
			authURL := rp.AuthCodeURL(encodeState(s.pendingRedirectURL(r)))
			if authURL == "" {
				s.redirectLoginError(w, r, errors.ErrProviderUnavailable)
				return
			}
			s.redirect(w, r, authURL)
			return
		}

		respondJSON(w, http.StatusOK, map[string]string{
			"name":           p.Name(),
			"displayName":    p.DisplayName(),
			"callbackUrl":    p.CallbackPath(),
			"callbackMethod": p.CallbackMethod(),
		})
	}
}

// ProviderCallbackHandler completes a provider's login flow: verify,
// whitelist, issue both tokens, and sync them onto every cookie host before
// landing on the resolved redirect_url.
func (s *Server) ProviderCallbackHandler(p providers.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fwd := forwarded(r)

		identity, err := s.registry.Authenticate(r.Context(), p, r)
		if err != nil {
			log.Warn().Err(err).Str("provider", p.Name()).Msg("provider login rejected")
			s.redirectLoginError(w, r, err)
			return
		}

		// The state blob takes precedence over the session stash
		redirectURL := decodeState(r.FormValue("state")).RedirectURL
		if stashed := s.consumeStashedRedirectURL(r); redirectURL == "" {
			redirectURL = stashed
		}

		landing := redirectURL
		if landing == "" {
			landing = s.controllerURL(fwd.Proto, "/", nil)
		}

		access, err := s.codec.IssueAccess(identity.ID, identity.Strategy, "")
		if err != nil {
			log.Err(err).Msg("Failed to issue access token")
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		refresh, err := s.codec.IssueRefresh(identity.ID, identity.Strategy, "")
		if err != nil {
			log.Err(err).Msg("Failed to issue refresh token")
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}

		s.startCookieChain(w, r, cookiesync.EndpointSet, landing, []cookiesync.Operation{
			{Name: s.config.AccessTokenName, Value: access, MaxAge: int(s.config.AccessTokenTTL.Seconds())},
			{Name: s.config.RefreshTokenName, Value: refresh, MaxAge: int(s.config.RefreshTokenTTL.Seconds())},
		})
	}
}

// redirectLoginError routes a failed login back to the login page with an
// encoded error reason; a raw server error never reaches the end user
func (s *Server) redirectLoginError(w http.ResponseWriter, r *http.Request, cause error) {
	reason := "Invalid credentials"
	switch {
	case errors.Is(cause, errors.ErrDomainNotAllowed):
		reason = "Unauthorized domain"
	case errors.Is(cause, errors.ErrUserNotAllowed):
		reason = "Unauthorized user"
	case errors.Is(cause, errors.ErrProviderUnavailable):
		reason = "Provider unavailable"
	}

	query := url.Values{"error": []string{reason}}
	if redirectURL := s.pendingRedirectURL(r); redirectURL != "" {
		query.Set("redirect_url", redirectURL)
	}
	s.redirect(w, r, s.controllerURL(forwarded(r).Proto, RouteLogin, query))
}

package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json"

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("Failed to encode response body")
	}
}

// isXHR reports whether the client asked for a JSON answer instead of a
// browser redirect
func isXHR(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}

// redirect sends the client to target, as JSON for XHR callers and as a 302
// otherwise
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, target string) {
	if isXHR(r) {
		respondJSON(w, http.StatusOK, map[string]string{"redirectUrl": target})
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// controllerURL builds an absolute URL for one of the controller's own
// routes on the auth host, appending the query values when present
func (s *Server) controllerURL(proto, subpath string, query url.Values) string {
	if proto == "" {
		proto = "http"
	}
	u := url.URL{
		Scheme: proto,
		Host:   s.config.AuthHost,
		Path:   s.config.AuthPrefix + subpath,
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// withRedirect builds the query carrying a pending redirect_url, empty when
// there is none
func withRedirect(redirectURL string) url.Values {
	if redirectURL == "" {
		return nil
	}
	return url.Values{"redirect_url": []string{redirectURL}}
}

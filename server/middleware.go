package server

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"
)

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

// RequestLogMiddleware logs every request with its forwarded origin
func (s *Server) RequestLogMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fwd := forwarded(r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("forwarded_uri", fwd.URI).
			Str("forwarded_host", fwd.Host).
			Str("ip", fwd.IP).
			Msg("request")
		next(w, r)
	}
}

// RecoverMiddleware is the last-resort handler: it destroys the login
// session and renders a generic failure, with internal detail only when
// debug errors are enabled. Token-level failures never reach here; they
// degrade toward re-authentication instead.
func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			stack := debug.Stack()
			log.Error().Interface("panic", rec).Bytes("stack", stack).Msg("recovered from handler panic")

			s.destroyLoginSession(w, r)

			body := map[string]any{"error": "internal error"}
			if s.config.DebugErrors {
				body["detail"] = rec
				body["stack"] = string(stack)
			}
			respondJSON(w, http.StatusInternalServerError, body)
		}()
		next(w, r)
	}
}

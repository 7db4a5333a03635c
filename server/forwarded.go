package server

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// contextKeyForwarded stores the resolved forwarded-request view
const contextKeyForwarded ContextKey = "forwarded"

// ForwardedRequest is the canonical view of the request the edge gateway is
// asking about, resolved from the x-forwarded-* headers. Forwarded values
// are preferred over direct connection values whenever present; URI stays
// empty when the gateway did not forward one.
type ForwardedRequest struct {
	Host   string
	Proto  string
	Method string
	URI    string
	IP     string
}

// Destination rebuilds the original URL the client asked for, or "" when
// the request did not come through the gateway.
func (f ForwardedRequest) Destination() string {
	if f.Host == "" || f.Proto == "" || f.URI == "" {
		return ""
	}
	return f.Proto + "://" + f.Host + f.URI
}

// Path returns the forwarded URI with its query stripped, falling back to
// localPath when no URI was forwarded.
func (f ForwardedRequest) Path(localPath string) string {
	path := f.URI
	if path == "" {
		return localPath
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

// resolveForwarded builds the forwarded view for a request
func resolveForwarded(r *http.Request) ForwardedRequest {
	h := r.Header
	fwd := ForwardedRequest{
		Host:   h.Get("X-Forwarded-Host"),
		Proto:  h.Get("X-Forwarded-Proto"),
		Method: h.Get("X-Forwarded-Method"),
		URI:    h.Get("X-Forwarded-Uri"),
		IP:     h.Get("X-Forwarded-For"),
	}
	if fwd.Host == "" {
		fwd.Host = r.Host
	}
	if fwd.Proto == "" {
		fwd.Proto = scheme(r)
	}
	if fwd.Method == "" {
		fwd.Method = r.Method
	}
	if fwd.IP == "" {
		fwd.IP = r.RemoteAddr
	}
	return fwd
}

// ForwardedHeadersMiddleware resolves the forwarded view once per request
func (s *Server) ForwardedHeadersMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), contextKeyForwarded, resolveForwarded(r))
		next(w, r.WithContext(ctx))
	}
}

// forwarded returns the request's forwarded view
func forwarded(r *http.Request) ForwardedRequest {
	if fwd, ok := r.Context().Value(contextKeyForwarded).(ForwardedRequest); ok {
		return fwd
	}
	return resolveForwarded(r)
}

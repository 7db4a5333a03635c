package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/go-forward-auth/cookiesync"
	"github.com/jrsteele09/go-forward-auth/internal/config"
	"github.com/jrsteele09/go-forward-auth/providers"
	"github.com/jrsteele09/go-forward-auth/server/loginsession"
	"github.com/jrsteele09/go-forward-auth/token"
	"github.com/rs/zerolog/log"
)

// Server is the forward-auth HTTP surface: the authorization decision
// endpoint consumed by the edge gateway, the cookie-sync endpoints, and the
// session controller hosting the interactive login flow. All authoritative
// session state lives in the signed cookies, so the server itself is
// stateless apart from the short-lived redirect_url stash.
type Server struct {
	env           string
	mux           *http.ServeMux
	handler       http.Handler
	routes        []string
	config        *config.Config
	codec         *token.Codec
	registry      *providers.Registry
	cookies       *cookiesync.Protocol
	loginSessions loginsession.Repo

	// controlPaths is the fixed control-plane allow-list checked by the
	// decision endpoint; built once from config and the provider registry.
	controlPaths map[string]struct{}
}

func New(cfg *config.Config, codec *token.Codec, registry *providers.Registry, cookies *cookiesync.Protocol, loginSessionRepo loginsession.Repo) *Server {
	s := &Server{
		env:           cfg.Env,
		mux:           http.NewServeMux(),
		config:        cfg,
		codec:         codec,
		registry:      registry,
		cookies:       cookies,
		loginSessions: loginSessionRepo,
	}

	s.initRoutes()
	s.initControlPaths()
	s.logRoutes()

	s.handler = ChainMiddleware(s.mux.ServeHTTP,
		s.RecoverMiddleware,
		s.ForwardedHeadersMiddleware,
		s.RequestLogMiddleware,
	)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// initControlPaths collects every route that must stay reachable with no
// session so login can bootstrap: the health check, the controller's own
// routes, and every provider's login and callback path.
func (s *Server) initControlPaths() {
	prefix := s.config.AuthPrefix
	paths := []string{
		RouteHealthz,
		prefix + "/",
		prefix + RouteLogin,
		prefix + RouteRefresh,
		prefix + RouteLogout,
		prefix + cookiesync.EndpointSet,
		prefix + cookiesync.EndpointRemove,
	}
	if prefix != "" {
		paths = append(paths, prefix)
	}
	paths = append(paths, s.registry.Paths()...)

	s.controlPaths = make(map[string]struct{}, len(paths))
	for _, p := range paths {
		s.controlPaths[p] = struct{}{}
	}
}

func (s *Server) isControlPath(path string) bool {
	_, ok := s.controlPaths[path]
	return ok
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			log.Info().Str("method", parts[0]).Str("path", parts[1]).Msg("route")
		} else {
			log.Info().Str("path", parts[0]).Msg("route")
		}
	}
}

// scheme determines the request scheme (http/https)
func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if s := r.Header.Get("X-Forwarded-Proto"); s != "" {
		return s
	}
	return "http"
}

package server

import (
	"net/http"

	"github.com/jrsteele09/go-forward-auth/cookiesync"
)

func (s *Server) initRoutes() {
	prefix := s.config.AuthPrefix

	s.RegisterRouteFunc("GET "+RouteHealthz, s.HealthzHandler())

	// Session controller
	if prefix == "" {
		s.RegisterRouteFunc("GET /{$}", s.RootHandler())
	} else {
		s.RegisterRouteFunc("GET "+prefix, s.RootHandler())
		s.RegisterRouteFunc("GET "+prefix+"/{$}", s.RootHandler())
	}
	s.RegisterRouteFunc("GET "+prefix+RouteLogin, s.LoginHandler())
	s.RegisterRouteFunc("GET "+prefix+RouteRefresh, s.RefreshHandler())
	s.RegisterRouteFunc("GET "+prefix+RouteLogout, s.LogoutHandler())

	// Cookie sync hops
	s.RegisterRouteFunc("GET "+prefix+cookiesync.EndpointSet, s.CookieSyncHandler(cookiesync.EndpointSet))
	s.RegisterRouteFunc("GET "+prefix+cookiesync.EndpointRemove, s.CookieSyncHandler(cookiesync.EndpointRemove))

	// Provider routes, derived from the registry
	for _, p := range s.registry.All() {
		if p.LoginPath() != p.CallbackPath() {
			s.RegisterRouteFunc("GET "+p.LoginPath(), s.ProviderLoginHandler(p))
		}
		s.RegisterRouteFunc(p.CallbackMethod()+" "+p.CallbackPath(), s.ProviderCallbackHandler(p))
	}

	// Everything else is a proxied request forwarded by the edge gateway
	s.RegisterRouteFunc("/", s.AuthorizeHandler())
}

// HealthzHandler answers the gateway health check (GET /healthz)
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

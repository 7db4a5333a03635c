package server

// Route path constants, relative to the configured auth prefix unless noted
const (
	// RouteHealthz lives outside the prefix
	RouteHealthz = "/healthz"

	RouteLogin   = "/login"
	RouteRefresh = "/refresh"
	RouteLogout  = "/logout"
)

const (
	// loginSessionCookie carries the id of the server-side redirect stash
	loginSessionCookie = "_login_session"

	headerForwardedUser        = "X-Forwarded-User"
	headerForwardedRole        = "X-Forwarded-Role"
	headerForwardedPermissions = "X-Forwarded-Permissions"
)

package server

const (
	RouteLogin         = "/auth/provider/emailPassword/login"
	RouteRegister      = "/auth/provider/emailPassword/register"
	RouteAuthorise     = "/auth/provider/{provider}/authorise"
	RouteCallback      = "/auth/provider/{provider}/callback"
	RouteSession       = "/auth/session"
	RouteSessionRotate = "/auth/session/rotate"
	RoutePassword      = "/auth/password"
	RouteHealth        = "/auth/health"
)

func (s *Server) initRoutes() {
	// LOCAL PROVIDER
	s.RegisterRouteFunc("POST "+RouteLogin, s.LoginHandler())
	s.RegisterRouteFunc("POST "+RouteRegister, s.RegisterHandler())

	// OIDC PROVIDERS
	s.RegisterRouteFunc("GET "+RouteAuthorise, s.AuthoriseHandler())
	s.RegisterRouteFunc("GET "+RouteCallback, s.OIDCCallbackHandler())

	// SESSION
	s.RegisterRouteFunc("GET "+RouteSession, s.SessionHandler())
	s.RegisterRouteFunc("POST "+RouteSessionRotate, s.RotateSessionHandler())
	s.RegisterRouteFunc("DELETE "+RouteSession, s.LogoutHandler())
	s.RegisterRouteFunc("PUT "+RoutePassword, s.ChangePasswordHandler())

	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
}

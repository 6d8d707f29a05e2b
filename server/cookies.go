package server

import "net/http"

const (
	// sessionCookieName carries the opaque bearer token of a live session.
	sessionCookieName = "session"
	// stateCookieName carries the signed state payload during an OIDC
	// authorization round trip.
	stateCookieName = "authkit_state"
	// verifierCookieName carries the PKCE code verifier during an OIDC
	// authorization round trip. It never appears in any URL.
	verifierCookieName = "authkit_verifier"

	// flowCookieMaxAge bounds how long an authorization round trip may take.
	flowCookieMaxAge = 600
)

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: s.config.Options.SameSiteMode(),
		MaxAge:   int(s.config.Options.IdleTTL.Seconds()),
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: s.config.Options.SameSiteMode(),
		MaxAge:   -1,
	})
}

func (s *Server) setFlowCookies(w http.ResponseWriter, r *http.Request, stateCookie, verifier string) {
	isSecure := getScheme(r) == "https"

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    stateCookie,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: s.config.Options.SameSiteMode(),
		MaxAge:   flowCookieMaxAge,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     verifierCookieName,
		Value:    verifier,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: s.config.Options.SameSiteMode(),
		MaxAge:   flowCookieMaxAge,
	})
}

func (s *Server) clearFlowCookies(w http.ResponseWriter, r *http.Request) {
	isSecure := getScheme(r) == "https"

	for _, name := range []string{stateCookieName, verifierCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   isSecure,
			SameSite: s.config.Options.SameSiteMode(),
			MaxAge:   -1,
		})
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

package server

import (
	"fmt"
	"net/http"

	"github.com/authkit-go/authkit/auth"
	apperrors "github.com/authkit-go/authkit/internal/errors"
	"github.com/authkit-go/authkit/providers/oidc"
)

func (s *Server) AuthoriseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := r.PathValue("provider")

		provider, err := s.auth.Provider(providerID)
		if err != nil || provider.Type != auth.ProviderTypeOIDC {
			s.respondError(w, http.StatusNotFound, fmt.Sprintf("unknown provider %q", providerID))
			return
		}

		authz, err := provider.OIDC.BeginAuthorization(r.Context(), r.URL.Query().Get("redirectTo"))
		if err != nil {
			s.log.Error().Err(err).Str("provider", providerID).Msg("failed to begin authorization")
			s.respondError(w, http.StatusBadGateway, "provider unavailable")
			return
		}

		s.setFlowCookies(w, r, authz.StateCookie, authz.CodeVerifier)
		http.Redirect(w, r, authz.URL, http.StatusFound)
	}
}

func (s *Server) OIDCCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := r.PathValue("provider")

		provider, err := s.auth.Provider(providerID)
		if err != nil || provider.Type != auth.ProviderTypeOIDC {
			s.respondError(w, http.StatusNotFound, fmt.Sprintf("unknown provider %q", providerID))
			return
		}

		if errParam := r.URL.Query().Get("error"); errParam != "" {
			s.log.Warn().Str("provider", providerID).Str("error", errParam).Msg("provider returned an authorization error")
			s.clearFlowCookies(w, r)
			s.respondError(w, http.StatusUnauthorized, "authentication failed")
			return
		}

		result, err := provider.OIDC.HandleCallback(r.Context(), oidcCallbackRequest(r))
		// The round-trip cookies are single use regardless of outcome.
		s.clearFlowCookies(w, r)
		if err != nil {
			s.log.Warn().Err(err).Str("provider", providerID).Msg("callback rejected")
			s.respondError(w, callbackStatus(err), "authentication failed")
			return
		}

		session, redirectTo, err := s.auth.CompleteOIDCLogin(r.Context(), providerID, result)
		if err != nil {
			s.log.Error().Err(err).Str("provider", providerID).Msg("failed to complete login")
			s.respondError(w, http.StatusInternalServerError, "authentication failed")
			return
		}

		s.setSessionCookie(w, r, session.Token)
		http.Redirect(w, r, redirectTo, http.StatusSeeOther)
	}
}

func oidcCallbackRequest(r *http.Request) oidc.CallbackRequest {
	return oidc.CallbackRequest{
		Code:         r.URL.Query().Get("code"),
		State:        r.URL.Query().Get("state"),
		StateCookie:  cookieValue(r, stateCookieName),
		CodeVerifier: cookieValue(r, verifierCookieName),
	}
}

// callbackStatus maps a callback validation failure to its response status.
// Client-caused failures (tampered state, bad code) are 401s; an unreachable
// provider is a 502.
func callbackStatus(err error) int {
	if apperrors.Is(err, apperrors.ErrDiscoveryUnavailable) {
		return http.StatusBadGateway
	}
	return http.StatusUnauthorized
}

package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/authkit-go/authkit/providers/credentials"
	"github.com/authkit-go/authkit/sessions"
	"github.com/authkit-go/authkit/users"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
}

type userResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Username      string     `json:"username,omitempty"`
	Name          string     `json:"name,omitempty"`
	Image         string     `json:"image,omitempty"`
	EmailVerified *time.Time `json:"emailVerified,omitempty"`
	Roles         []string   `json:"roles"`
}

type sessionResponse struct {
	ID        string       `json:"id"`
	User      userResponse `json:"user"`
	CreatedAt time.Time    `json:"createdAt"`
}

func newSessionResponse(session *sessions.Session) sessionResponse {
	return sessionResponse{
		ID: session.ID,
		User: userResponse{
			ID:            session.User.ID,
			Email:         session.User.Email,
			Username:      session.User.Username,
			Name:          session.User.Name,
			Image:         session.User.Image,
			EmailVerified: session.User.EmailVerified,
			Roles:         session.User.Roles,
		},
		CreatedAt: session.CreatedAt,
	}
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		provider, err := s.auth.Provider(credentials.ProviderID)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, "provider unavailable")
			return
		}

		user, err := provider.Credentials.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			s.log.Error().Err(err).Msg("login lookup failed")
			s.respondError(w, http.StatusInternalServerError, "authentication failed")
			return
		}
		if user == nil {
			// One message for every negative outcome.
			s.respondError(w, http.StatusUnauthorized, "authentication failed")
			return
		}

		session, err := s.auth.Sessions().Create(r.Context(), *user)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to create session")
			s.respondError(w, http.StatusInternalServerError, "authentication failed")
			return
		}

		s.setSessionCookie(w, r, session.Token)
		s.respondJSON(w, http.StatusOK, newSessionResponse(session))
	}
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Email == "" || req.Password == "" {
			s.respondError(w, http.StatusBadRequest, "email and password are required")
			return
		}

		provider, err := s.auth.Provider(credentials.ProviderID)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, "provider unavailable")
			return
		}

		username := req.Username
		if username == "" {
			username = req.Email
			if i := strings.IndexByte(req.Email, '@'); i > 0 {
				username = req.Email[:i]
			}
		}

		user, err := provider.Credentials.Register(r.Context(), users.NewUser{
			Email:    req.Email,
			Username: username,
			Name:     req.Name,
			Roles:    []string{users.RoleUser},
		}, req.Password)
		if err != nil {
			s.log.Warn().Err(err).Str("email", req.Email).Msg("registration failed")
			s.respondError(w, http.StatusConflict, "registration failed")
			return
		}

		session, err := s.auth.Sessions().Create(r.Context(), *user)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to create session")
			s.respondError(w, http.StatusInternalServerError, "registration failed")
			return
		}

		s.setSessionCookie(w, r, session.Token)
		s.respondJSON(w, http.StatusCreated, newSessionResponse(session))
	}
}

func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := s.sessionFromRequest(r)
		if session == nil {
			s.respondError(w, http.StatusUnauthorized, "authentication failed")
			return
		}
		s.respondJSON(w, http.StatusOK, newSessionResponse(session))
	}
}

func (s *Server) RotateSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := s.sessionFromRequest(r)
		if session == nil {
			s.respondError(w, http.StatusUnauthorized, "authentication failed")
			return
		}

		rotated, err := s.auth.RotateSession(r.Context(), session.ID)
		if err != nil {
			s.log.Error().Err(err).Str("session_id", session.ID).Msg("rotation failed")
			s.respondError(w, http.StatusInternalServerError, "rotation failed")
			return
		}
		if rotated == nil {
			s.respondError(w, http.StatusUnauthorized, "authentication failed")
			return
		}

		s.setSessionCookie(w, r, rotated.Token)
		s.respondJSON(w, http.StatusOK, newSessionResponse(rotated))
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := s.sessionFromRequest(r)
		if session != nil {
			if err := s.auth.Sessions().Delete(r.Context(), session.ID); err != nil {
				s.log.Error().Err(err).Str("session_id", session.ID).Msg("session delete failed")
			}
		}

		// Logout always clears the cookie, even for an unknown token.
		s.clearSessionCookie(w, r)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) ChangePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := s.sessionFromRequest(r)
		if session == nil {
			s.respondError(w, http.StatusUnauthorized, "authentication failed")
			return
		}

		var req struct {
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
			s.respondError(w, http.StatusBadRequest, "password is required")
			return
		}

		rotated, err := s.auth.UpdatePassword(r.Context(), session, req.Password)
		if err != nil {
			s.log.Error().Err(err).Str("session_id", session.ID).Msg("password change failed")
			s.respondError(w, http.StatusInternalServerError, "password change failed")
			return
		}

		s.setSessionCookie(w, r, rotated.Token)
		s.respondJSON(w, http.StatusOK, newSessionResponse(rotated))
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": s.auth.Sessions().Len(),
		})
	}
}

// sessionFromRequest resolves the caller's session from the session cookie,
// falling back to an Authorization bearer token.
func (s *Server) sessionFromRequest(r *http.Request) *sessions.Session {
	token := cookieValue(r, sessionCookieName)
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		return nil
	}

	session, err := s.auth.Authenticate(r.Context(), token)
	if err != nil {
		s.log.Error().Err(err).Msg("session lookup failed")
		return nil
	}
	return session
}

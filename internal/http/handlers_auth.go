package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/splax/technews/internal/domain"
	"github.com/splax/technews/internal/service/auth"
	"github.com/splax/technews/pkg/locale"
)

type sessionResponse struct {
	User        domain.Identity `json:"user"`
	AccessToken string          `json:"access_token"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

func newSessionResponse(s *auth.Session) sessionResponse {
	return sessionResponse{User: s.Identity, AccessToken: s.AccessToken, ExpiresAt: s.ExpiresAt.UTC()}
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		DisplayName     string `json:"display_name"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		r.badRequest(w)
		return
	}
	session, err := r.auth.Signup(req.Context(), auth.SignupInput{
		DisplayName:     payload.DisplayName,
		Email:           payload.Email,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
	})
	if err != nil {
		r.writeServiceError(w, req, err, locale.CodeSignupFailed)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		r.badRequest(w)
		return
	}
	session, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.writeServiceError(w, req, err, locale.CodeGeneric)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, locale.CodeUnauthenticated)
		return
	}
	if err := r.auth.Logout(req.Context(), info.Claims); err != nil {
		r.writeServiceError(w, req, err, locale.CodeGeneric)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	identity := identityFromContext(req.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, locale.CodeUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

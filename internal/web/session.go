package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	apiclient "github.com/splax/technews/pkg/api/client"
)

// Session is the view of the signed-in user available to every page.
type Session interface {
	Current(r *http.Request) (*apiclient.Identity, string)
	Login(w http.ResponseWriter, r *http.Request, email, password string) error
	Signup(w http.ResponseWriter, r *http.Request, in apiclient.SignupInput) error
	Logout(w http.ResponseWriter, r *http.Request) error
}

type cookieSession struct {
	api     *apiclient.Client
	name    string
	secure  bool
	timeout time.Duration
}

func newCookieSession(api *apiclient.Client, name string, secure bool, timeout time.Duration) *cookieSession {
	if strings.TrimSpace(name) == "" {
		name = "technews_session"
	}
	return &cookieSession{api: api, name: name, secure: secure, timeout: timeout}
}

// Current resolves the cookie token against the API. A missing, expired or
// revoked token yields no identity.
func (s *cookieSession) Current(r *http.Request) (*apiclient.Identity, string) {
	cookie, err := r.Cookie(s.name)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return nil, ""
	}
	ctx, cancel := s.context(r)
	defer cancel()
	identity, err := s.api.Me(ctx, cookie.Value)
	if err != nil {
		return nil, ""
	}
	return &identity, cookie.Value
}

func (s *cookieSession) Login(w http.ResponseWriter, r *http.Request, email, password string) error {
	ctx, cancel := s.context(r)
	defer cancel()
	session, err := s.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	http.SetCookie(w, s.cookie(session))
	return nil
}

func (s *cookieSession) Signup(w http.ResponseWriter, r *http.Request, in apiclient.SignupInput) error {
	ctx, cancel := s.context(r)
	defer cancel()
	session, err := s.api.Signup(ctx, in)
	if err != nil {
		return err
	}
	http.SetCookie(w, s.cookie(session))
	return nil
}

// Logout revokes the token server side and always clears the cookie.
func (s *cookieSession) Logout(w http.ResponseWriter, r *http.Request) error {
	defer http.SetCookie(w, s.expired())
	cookie, err := r.Cookie(s.name)
	if err != nil || cookie.Value == "" {
		return nil
	}
	ctx, cancel := s.context(r)
	defer cancel()
	return s.api.Logout(ctx, cookie.Value)
}

func (s *cookieSession) context(r *http.Request) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.timeout)
}

func (s *cookieSession) cookie(session apiclient.Session) *http.Cookie {
	return &http.Cookie{
		Name:     s.name,
		Value:    session.AccessToken,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *cookieSession) expired() *http.Cookie {
	return &http.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

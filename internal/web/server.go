package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/splax/technews/internal/domain"
	"github.com/splax/technews/internal/service/auth"
	apiclient "github.com/splax/technews/pkg/api/client"
	"github.com/splax/technews/pkg/config"
	"github.com/splax/technews/pkg/locale"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server hosts the Persian web front end on top of the API.
type Server struct {
	cfg       config.WebConfig
	api       *apiclient.Client
	sessions  Session
	theme     Theme
	templates *template.Template
	mux       *http.ServeMux
	logger    *slog.Logger
	loc       *time.Location
}

// New constructs a configured server ready to serve HTTP traffic.
func New(cfg config.WebConfig, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	apiClient, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		logger.Warn("unknown display timezone, using local time", "timezone", cfg.DisplayTimezone, "error", err)
		loc = time.Local
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 5_000_000
	}
	srv := &Server{
		cfg:      cfg,
		api:      apiClient,
		sessions: newCookieSession(apiClient, cfg.CookieName, cfg.CookieSecure, cfg.RequestTimeout),
		theme:    cookieTheme{name: cfg.ThemeCookieName, secure: cfg.CookieSecure},
		mux:      http.NewServeMux(),
		logger:   logger,
		loc:      loc,
	}
	templates, err := template.New("base").Funcs(srv.funcs()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	srv.templates = templates
	srv.registerRoutes()
	return srv, nil
}

// ServeHTTP conforms to http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleHome)
	s.mux.HandleFunc("GET /articles", s.handleArticles)
	s.mux.HandleFunc("GET /article/{id}", s.handleArticle)
	s.mux.HandleFunc("GET /article/{id}/stream", s.handleArticleStream)
	s.mux.HandleFunc("POST /article/{id}/comments", s.handleSubmitComment)
	s.mux.HandleFunc("POST /article/{id}/like", s.requireAuth(s.handleLike))
	s.mux.HandleFunc("POST /comments/{id}/delete", s.requireAuth(s.handleDeleteComment))
	s.mux.HandleFunc("GET /write", s.requireAuth(s.handleWriteForm))
	s.mux.HandleFunc("POST /write", s.requireAuth(s.handleWrite))
	s.mux.HandleFunc("GET /profile", s.requireAuth(s.handleProfile))
	s.mux.HandleFunc("GET /login", s.handleLoginForm)
	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("GET /signup", s.handleSignupForm)
	s.mux.HandleFunc("POST /signup", s.handleSignup)
	s.mux.HandleFunc("POST /logout", s.handleLogout)
	s.mux.HandleFunc("POST /theme", s.handleTheme)
}

type viewerKey struct{}

type viewer struct {
	Identity *apiclient.Identity
	Token    string
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, token := s.sessions.Current(r)
		if identity == nil {
			target := "/login?next=" + url.QueryEscape(r.URL.Path)
			if r.Method != http.MethodGet {
				target = "/login?next=" + url.QueryEscape(refererPath(r, "/"))
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		ctx := context.WithValue(r.Context(), viewerKey{}, viewer{Identity: identity, Token: token})
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) viewer(r *http.Request) viewer {
	if v, ok := r.Context().Value(viewerKey{}).(viewer); ok {
		return v
	}
	identity, token := s.sessions.Current(r)
	return viewer{Identity: identity, Token: token}
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
}

func (s *Server) page(r *http.Request, v viewer, title string) map[string]any {
	return map[string]any{
		"Title":      title,
		"Flash":      flashFromRequest(r),
		"Viewer":     v.Identity,
		"Dark":       s.theme.Dark(r),
		"Categories": domain.Categories,
		"Path":       r.URL.Path,
	}
}

func (s *Server) render(w http.ResponseWriter, status int, tpl string, data map[string]any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, tpl, data); err != nil {
		s.logger.Error("template render failed", "template", tpl, "error", err)
		http.Error(w, locale.Message(locale.CodeGeneric), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, code string) {
	s.logger.Warn("web error", "status", status, "code", code, "path", r.URL.Path)
	data := s.page(r, s.viewer(r), locale.Message(code))
	data["Message"] = locale.Message(code)
	s.render(w, status, "error", data)
}

// apiFailure renders the error an API call returned, keeping the API's
// status for 4xx and treating everything else as a bad gateway.
func (s *Server) apiFailure(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		code := apiErr.Code
		if code == "" {
			code = locale.CodeGeneric
		}
		s.renderError(w, r, apiErr.Status, code)
		return
	}
	s.logger.Error("api call failed", "path", r.URL.Path, "error", err)
	s.renderError(w, r, http.StatusBadGateway, locale.CodeGeneric)
}

// errorCode returns the API error code carried by err, or fallback.
func errorCode(err error, fallback string) string {
	var apiErr apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		return apiErr.Code
	}
	return fallback
}

func signupCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingFields):
		return locale.CodeMissingFields
	case errors.Is(err, auth.ErrPasswordMismatch):
		return locale.CodePasswordMismatch
	case errors.Is(err, auth.ErrPasswordTooShort):
		return locale.CodePasswordTooShort
	default:
		return errorCode(err, locale.CodeSignupFailed)
	}
}

func (s *Server) funcs() template.FuncMap {
	return template.FuncMap{
		"datetime": func(t time.Time) string { return locale.FormatDateTime(t, s.loc) },
		"date":     func(t time.Time) string { return locale.FormatDate(t, s.loc) },
		"category": locale.CategoryName,
		"number":   locale.Number,
		"role":     locale.RoleName,
		"canDelete": func(c apiclient.Comment, v *apiclient.Identity) bool {
			return v != nil && v.ID == c.AuthorID
		},
		"liked": func(a apiclient.Article, v *apiclient.Identity) bool {
			return v != nil && a.LikedBy(v.ID)
		},
		"count": func(items []string) int { return len(items) },
	}
}

func flashFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("flash"))
}

func refererPath(r *http.Request, fallback string) string {
	ref, err := url.Parse(r.Header.Get("Referer"))
	if err != nil || ref.Path == "" || !strings.HasPrefix(ref.Path, "/") {
		return fallback
	}
	return ref.Path
}

// safeNext accepts only local absolute paths.
func safeNext(next string) string {
	next = strings.TrimSpace(next)
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/"
	}
	return next
}

func redirectWithFlash(w http.ResponseWriter, r *http.Request, target, message string) {
	if strings.TrimSpace(target) == "" {
		target = "/"
	}
	if strings.TrimSpace(message) == "" {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	u, err := url.Parse(target)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	q := u.Query()
	q.Set("flash", message)
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}

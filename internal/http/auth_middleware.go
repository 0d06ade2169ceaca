package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/splax/technews/internal/domain"
	"github.com/splax/technews/internal/service/auth"
	"github.com/splax/technews/pkg/locale"
	jwtpkg "github.com/splax/technews/pkg/jwt"
)

type authContextKey string

type authInfo struct {
	UserID   string
	Role     string
	Identity *domain.Identity
	Claims   *jwtpkg.Claims
}

const contextKeyAuth authContextKey = "technews-auth-info"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request has a valid bearer token before invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// optionalAuth attaches the caller's identity when a token is sent and lets
// anonymous requests through. A bad token is still rejected.
func (r *Router) optionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if strings.TrimSpace(req.Header.Get("Authorization")) == "" {
			next(w, req)
			return
		}
		r.requireAuth(next)(w, req)
	}
}

// ensureAuth validates the Authorization header and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, authInfo, bool) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, locale.CodeUnauthenticated)
		return req.Context(), authInfo{}, false
	}
	identity, claims, err := r.auth.Authorize(req.Context(), token)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenRevoked), errors.Is(err, auth.ErrTokenRequired):
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, locale.CodeUnauthenticated)
		return req.Context(), authInfo{}, false
	default:
		// Store outages must not log the caller out.
		r.logger.Error("authorize request", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, locale.CodeGeneric)
		return req.Context(), authInfo{}, false
	}
	info := authInfo{UserID: identity.ID, Role: identity.Role, Identity: identity, Claims: claims}
	ctx := context.WithValue(req.Context(), contextKeyAuth, info)
	return ctx, info, true
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

// identityFromContext returns the signed-in identity or nil.
func identityFromContext(ctx context.Context) *domain.Identity {
	if info, ok := authInfoFromContext(ctx); ok {
		return info.Identity
	}
	return nil
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}

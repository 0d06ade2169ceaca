package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/splax/technews/internal/repository"
	"github.com/splax/technews/internal/service/article"
	"github.com/splax/technews/internal/service/auth"
	"github.com/splax/technews/internal/service/comment"
	"github.com/splax/technews/pkg/locale"
)

// apiError is the body of every non-2xx JSON response.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends the localized message for code.
func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, apiError{Error: locale.Message(code), Code: code})
}

// errorMapping pairs a sentinel error with its HTTP status and error code.
type errorMapping struct {
	err    error
	status int
	code   string
}

var errorTable = []errorMapping{
	{auth.ErrMissingFields, http.StatusBadRequest, locale.CodeMissingFields},
	{auth.ErrPasswordMismatch, http.StatusBadRequest, locale.CodePasswordMismatch},
	{auth.ErrPasswordTooShort, http.StatusBadRequest, locale.CodePasswordTooShort},
	{auth.ErrTokenRequired, http.StatusUnauthorized, locale.CodeUnauthenticated},
	{auth.ErrTokenRevoked, http.StatusUnauthorized, locale.CodeUnauthenticated},
	{comment.ErrUnauthenticated, http.StatusUnauthorized, locale.CodeCommentUnauth},
	{comment.ErrEmptyContent, http.StatusBadRequest, locale.CodeCommentEmpty},
	{article.ErrUnauthenticated, http.StatusUnauthorized, locale.CodeArticleUnauth},
	{article.ErrMissingTitleOrContent, http.StatusBadRequest, locale.CodeArticleMissing},
	{article.ErrInvalidCategory, http.StatusBadRequest, locale.CodeInvalidCategory},
	{article.ErrImageTooLarge, http.StatusRequestEntityTooLarge, locale.CodeImageTooLarge},
	{article.ErrInvalidImage, http.StatusUnsupportedMediaType, locale.CodeInvalidImage},
	{repository.ErrNotFound, http.StatusNotFound, locale.CodeNotFound},
	{repository.ErrForbidden, http.StatusForbidden, locale.CodeCommentForbidden},
}

var providerStatus = map[string]int{
	locale.CodeEmailInUse:        http.StatusConflict,
	locale.CodeInvalidEmail:      http.StatusBadRequest,
	locale.CodeWeakPassword:      http.StatusBadRequest,
	locale.CodeInvalidCredential: http.StatusUnauthorized,
}

// classifyError resolves err to a status and code, using fallback for anything unrecognized.
func classifyError(err error, fallback string) (int, string) {
	if code := auth.ProviderCode(err); code != "" {
		if status, ok := providerStatus[code]; ok {
			return status, code
		}
		return http.StatusBadRequest, locale.CodeSignupFailed
	}
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	if fallback == "" {
		fallback = locale.CodeGeneric
	}
	return http.StatusInternalServerError, fallback
}

// writeServiceError maps a service error onto the response.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error, fallback string) {
	status, code := classifyError(err, fallback)
	if status >= http.StatusInternalServerError {
		r.logger.Error("request failed", "path", req.URL.Path, "code", code, "error", err)
	}
	writeError(w, status, code)
}

package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/splax/technews/pkg/locale"
)

func (r *Router) handleListComments(w http.ResponseWriter, req *http.Request) {
	comments, err := r.comments.List(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeServiceError(w, req, err, locale.CodeGeneric)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (r *Router) handleSubmitComment(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		r.badRequest(w)
		return
	}
	created, err := r.comments.Submit(req.Context(), req.PathValue("id"), payload.Content, identityFromContext(req.Context()))
	if err != nil {
		r.writeServiceError(w, req, err, locale.CodeCommentSubmitFailed)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (r *Router) handleDeleteComment(w http.ResponseWriter, req *http.Request) {
	if err := r.comments.Delete(req.Context(), req.PathValue("id"), identityFromContext(req.Context())); err != nil {
		r.writeServiceError(w, req, err, locale.CodeCommentDeleteFailed)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/splax/technews/internal/domain"
	"github.com/splax/technews/internal/service/article"
	"github.com/splax/technews/pkg/locale"
)

// multipartOverhead leaves room for the text fields next to a maximum-size image.
const multipartOverhead = 1 << 20

func (r *Router) handleListArticles(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	filter := domain.ArticleFilter{
		Category: strings.TrimSpace(query.Get("category")),
		AuthorID: strings.TrimSpace(query.Get("author_id")),
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			r.badRequest(w)
			return
		}
		filter.Limit = limit
	}
	if filter.Limit == 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	articles, err := r.articles.List(req.Context(), filter)
	if err != nil {
		r.writeServiceError(w, req, err, locale.CodeGeneric)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": articles})
}

func (r *Router) handleGetArticle(w http.ResponseWriter, req *http.Request) {
	a, err := r.articles.Get(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeServiceError(w, req, err, locale.CodeGeneric)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (r *Router) handleCreateArticle(w http.ResponseWriter, req *http.Request) {
	identity := identityFromContext(req.Context())
	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))

	var (
		input article.CreateInput
		image *article.Image
	)
	switch mediaType {
	case "multipart/form-data":
		req.Body = http.MaxBytesReader(w, req.Body, r.maxImageBytes+multipartOverhead)
		if err := req.ParseMultipartForm(multipartOverhead); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, locale.CodeImageTooLarge)
				return
			}
			r.badRequest(w)
			return
		}
		defer req.MultipartForm.RemoveAll()
		input = article.CreateInput{
			Title:    req.FormValue("title"),
			Content:  req.FormValue("content"),
			Category: req.FormValue("category"),
			Excerpt:  req.FormValue("excerpt"),
		}
		file, header, err := req.FormFile("image")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			r.badRequest(w)
			return
		default:
			defer file.Close()
			contentType, err := imageContentType(file, header)
			if err != nil {
				r.badRequest(w)
				return
			}
			image = &article.Image{
				Filename:    header.Filename,
				ContentType: contentType,
				Size:        header.Size,
				Body:        file,
			}
		}
	default:
		var payload struct {
			Title    string `json:"title"`
			Content  string `json:"content"`
			Category string `json:"category"`
			Excerpt  string `json:"excerpt"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			r.badRequest(w)
			return
		}
		input = article.CreateInput(payload)
	}

	created, err := r.articles.Create(req.Context(), input, identity, image)
	if err != nil {
		r.writeServiceError(w, req, err, locale.CodePublishFailed)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// imageContentType trusts the part header when present and sniffs otherwise.
func imageContentType(file multipart.File, header *multipart.FileHeader) (string, error) {
	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct, nil
	}
	buf := make([]byte, 512)
	n, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}

func (r *Router) handleToggleLike(w http.ResponseWriter, req *http.Request) {
	updated, err := r.articles.ToggleLike(req.Context(), req.PathValue("id"), identityFromContext(req.Context()))
	if err != nil {
		r.writeServiceError(w, req, err, locale.CodeGeneric)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

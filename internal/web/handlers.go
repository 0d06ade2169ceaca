package web

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/splax/technews/internal/domain"
	"github.com/splax/technews/internal/service/auth"
	apiclient "github.com/splax/technews/pkg/api/client"
	"github.com/splax/technews/pkg/locale"
)

const homeArticleLimit = 6

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()
	articles, err := s.api.ListArticles(ctx, apiclient.ArticleQuery{Limit: homeArticleLimit})
	if err != nil {
		s.apiFailure(w, r, err)
		return
	}
	data := s.page(r, s.viewer(r), "تک‌نیوز")
	data["Articles"] = articles
	s.render(w, http.StatusOK, "home", data)
}

func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if category != "" && !domain.ValidCategory(category) {
		category = ""
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()
	articles, err := s.api.ListArticles(ctx, apiclient.ArticleQuery{Category: category})
	if err != nil {
		s.apiFailure(w, r, err)
		return
	}
	data := s.page(r, s.viewer(r), "مقالات")
	data["Articles"] = articles
	data["Category"] = category
	s.render(w, http.StatusOK, "articles", data)
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx, cancel := s.requestContext(r)
	defer cancel()
	a, err := s.api.GetArticle(ctx, id)
	if err != nil {
		s.apiFailure(w, r, err)
		return
	}
	comments, err := s.api.ListComments(ctx, id)
	if err != nil {
		s.apiFailure(w, r, err)
		return
	}
	v := s.viewer(r)
	data := s.page(r, v, a.Title)
	data["Article"] = a
	data["Comments"] = comments
	data["ArticleID"] = a.ID
	s.render(w, http.StatusOK, "article", data)
}

func (s *Server) handleSubmitComment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	back := "/article/" + url.PathEscape(id)
	v := s.viewer(r)
	if v.Identity == nil {
		redirectWithFlash(w, r, back, locale.Message(locale.CodeCommentUnauth))
		return
	}
	content := r.PostFormValue("content")
	if strings.TrimSpace(content) == "" {
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()
	if _, err := s.api.SubmitComment(ctx, v.Token, id, content); err != nil {
		s.logger.Warn("comment submit failed", "article_id", id, "error", err)
		redirectWithFlash(w, r, back, locale.Message(errorCode(err, locale.CodeCommentSubmitFailed)))
		return
	}
	http.Redirect(w, r, back+"#comments", http.StatusSeeOther)
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	back := "/"
	if articleID := strings.TrimSpace(r.PostFormValue("article_id")); articleID != "" {
		back = "/article/" + url.PathEscape(articleID)
	}
	v := s.viewer(r)
	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.api.DeleteComment(ctx, v.Token, id); err != nil {
		s.logger.Warn("comment delete failed", "comment_id", id, "error", err)
		redirectWithFlash(w, r, back, locale.Message(errorCode(err, locale.CodeCommentDeleteFailed)))
		return
	}
	http.Redirect(w, r, back+"#comments", http.StatusSeeOther)
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	back := "/article/" + url.PathEscape(id)
	v := s.viewer(r)
	ctx, cancel := s.requestContext(r)
	defer cancel()
	if _, err := s.api.ToggleLike(ctx, v.Token, id); err != nil {
		s.logger.Warn("like toggle failed", "article_id", id, "error", err)
		redirectWithFlash(w, r, back, locale.Message(errorCode(err, locale.CodeGeneric)))
		return
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func (s *Server) handleWriteForm(w http.ResponseWriter, r *http.Request) {
	data := s.page(r, s.viewer(r), "نوشتن مقاله")
	data["Form"] = apiclient.CreateArticleInput{Category: domain.DefaultCategory}
	s.render(w, http.StatusOK, "write", data)
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	v := s.viewer(r)
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxImageBytes+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeFormError(w, r, v, apiclient.CreateArticleInput{}, http.StatusRequestEntityTooLarge, locale.CodeImageTooLarge)
			return
		}
		s.writeFormError(w, r, v, apiclient.CreateArticleInput{}, http.StatusBadRequest, locale.CodeBadRequest)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	input := apiclient.CreateArticleInput{
		Title:    r.FormValue("title"),
		Content:  r.FormValue("content"),
		Category: r.FormValue("category"),
		Excerpt:  r.FormValue("excerpt"),
	}
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.Content) == "" {
		s.writeFormError(w, r, v, input, http.StatusBadRequest, locale.CodeArticleMissing)
		return
	}

	var image *apiclient.ImageUpload
	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		s.writeFormError(w, r, v, input, http.StatusBadRequest, locale.CodeBadRequest)
		return
	default:
		defer file.Close()
		if code := s.checkImage(header); code != "" {
			status := http.StatusBadRequest
			if code == locale.CodeImageTooLarge {
				status = http.StatusRequestEntityTooLarge
			}
			s.writeFormError(w, r, v, input, status, code)
			return
		}
		image = &apiclient.ImageUpload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Body:        io.LimitReader(file, s.cfg.MaxImageBytes),
		}
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	created, err := s.api.CreateArticle(ctx, v.Token, input, image)
	if err != nil {
		s.logger.Warn("article publish failed", "user_id", v.Identity.ID, "error", err)
		s.writeFormError(w, r, v, input, http.StatusOK, errorCode(err, locale.CodePublishFailed))
		return
	}
	http.Redirect(w, r, "/article/"+url.PathEscape(created.ID), http.StatusSeeOther)
}

// checkImage rejects oversized or non-image files before anything is sent to the API.
func (s *Server) checkImage(header *multipart.FileHeader) string {
	if header.Size > s.cfg.MaxImageBytes {
		return locale.CodeImageTooLarge
	}
	if ct := header.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return locale.CodeInvalidImage
	}
	return ""
}

func (s *Server) writeFormError(w http.ResponseWriter, r *http.Request, v viewer, input apiclient.CreateArticleInput, status int, code string) {
	data := s.page(r, v, "نوشتن مقاله")
	data["Form"] = input
	data["Error"] = locale.Message(code)
	s.render(w, status, "write", data)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	v := s.viewer(r)
	ctx, cancel := s.requestContext(r)
	defer cancel()
	articles, err := s.api.ListArticles(ctx, apiclient.ArticleQuery{AuthorID: v.Identity.ID})
	if err != nil {
		s.apiFailure(w, r, err)
		return
	}
	data := s.page(r, v, "پروفایل")
	data["Articles"] = articles
	s.render(w, http.StatusOK, "profile", data)
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	v := s.viewer(r)
	if v.Identity != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data := s.page(r, v, "ورود")
	data["Email"] = ""
	data["Next"] = safeNext(r.URL.Query().Get("next"))
	s.render(w, http.StatusOK, "login", data)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.PostFormValue("email"))
	next := safeNext(r.PostFormValue("next"))
	if err := s.sessions.Login(w, r, email, r.PostFormValue("password")); err != nil {
		s.logger.Warn("login failed", "error", err)
		data := s.page(r, viewer{}, "ورود")
		data["Error"] = locale.Message(errorCode(err, locale.CodeInvalidCredential))
		data["Email"] = email
		data["Next"] = next
		s.render(w, http.StatusOK, "login", data)
		return
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (s *Server) handleSignupForm(w http.ResponseWriter, r *http.Request) {
	v := s.viewer(r)
	if v.Identity != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data := s.page(r, v, "ثبت نام")
	data["DisplayName"] = ""
	data["Email"] = ""
	s.render(w, http.StatusOK, "signup", data)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	input := apiclient.SignupInput{
		DisplayName:     r.PostFormValue("display_name"),
		Email:           strings.TrimSpace(r.PostFormValue("email")),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	form := auth.SignupInput{
		DisplayName:     input.DisplayName,
		Email:           input.Email,
		Password:        input.Password,
		ConfirmPassword: input.ConfirmPassword,
	}
	err := form.Validate()
	if err == nil {
		err = s.sessions.Signup(w, r, input)
	}
	if err != nil {
		s.logger.Info("signup rejected", "error", err)
		data := s.page(r, viewer{}, "ثبت نام")
		data["Error"] = locale.SignupMessage(signupCode(err))
		data["DisplayName"] = input.DisplayName
		data["Email"] = input.Email
		s.render(w, http.StatusOK, "signup", data)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(w, r); err != nil {
		s.logger.Warn("logout failed", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	s.theme.Toggle(w, r)
	http.Redirect(w, r, refererPath(r, "/"), http.StatusSeeOther)
}

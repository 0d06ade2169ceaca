package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client provides typed access to the technews API for the web front end and terminal tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// BaseURL returns the normalized API origin.
func (c *Client) BaseURL() string { return c.baseURL }

// APIError represents an error response from the API. Message is already localized.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return e.Message
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return c.send(ctx, method, path, reader, contentType, token, v)
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return extractError(resp.StatusCode, resp.Body)
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(status int, body io.Reader) APIError {
	apiErr := APIError{Status: status}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(payload.Error)
	apiErr.Code = payload.Code
	return apiErr
}

// Identity reflects the signed-in user.
type Identity struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// Session is returned by signup and login.
type Session struct {
	User        Identity  `json:"user"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Article reflects API article payloads.
type Article struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Category      string    `json:"category"`
	Excerpt       string    `json:"excerpt"`
	ImageURL      string    `json:"image_url"`
	AuthorID      string    `json:"author_id"`
	AuthorName    string    `json:"author_name"`
	Likes         []string  `json:"likes"`
	CommentsCount int       `json:"comments_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// LikedBy reports whether userID liked the article.
func (a Article) LikedBy(userID string) bool {
	for _, id := range a.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

// Comment reflects API comment payloads.
type Comment struct {
	ID         string    `json:"id"`
	ArticleID  string    `json:"article_id"`
	Content    string    `json:"content"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// SignupInput mirrors the signup form.
type SignupInput struct {
	DisplayName     string `json:"display_name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Signup registers an account and returns its first session.
func (c *Client) Signup(ctx context.Context, input SignupInput) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "/auth/signup", input, "", &resp)
	return resp, err
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	payload := map[string]string{"email": email, "password": password}
	var resp Session
	err := c.do(ctx, http.MethodPost, "/auth/login", payload, "", &resp)
	return resp, err
}

// Logout revokes the token.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, token, nil)
}

// Me returns the identity behind token.
func (c *Client) Me(ctx context.Context, token string) (Identity, error) {
	var identity Identity
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, token, &identity)
	return identity, err
}

// ArticleQuery narrows ListArticles.
type ArticleQuery struct {
	Category string
	AuthorID string
	Limit    int
}

// ListArticles returns articles newest first.
func (c *Client) ListArticles(ctx context.Context, q ArticleQuery) ([]Article, error) {
	values := url.Values{}
	if q.Category != "" {
		values.Set("category", q.Category)
	}
	if q.AuthorID != "" {
		values.Set("author_id", q.AuthorID)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/articles"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp struct {
		Articles []Article `json:"articles"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Articles, nil
}

// GetArticle fetches one article.
func (c *Client) GetArticle(ctx context.Context, id string) (Article, error) {
	var a Article
	err := c.do(ctx, http.MethodGet, "/articles/"+url.PathEscape(id), nil, "", &a)
	return a, err
}

// CreateArticleInput is the authoring form.
type CreateArticleInput struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
	Excerpt  string `json:"excerpt,omitempty"`
}

// ImageUpload is an optional image attached to a new article.
type ImageUpload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// CreateArticle publishes an article, sending multipart form data when an image is attached.
func (c *Client) CreateArticle(ctx context.Context, token string, input CreateArticleInput, image *ImageUpload) (Article, error) {
	var created Article
	if image == nil {
		err := c.do(ctx, http.MethodPost, "/articles", input, token, &created)
		return created, err
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{{"title", input.Title}, {"content", input.Content}, {"category", input.Category}, {"excerpt", input.Excerpt}}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return created, fmt.Errorf("encode form: %w", err)
		}
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, image.Filename))
	if image.ContentType != "" {
		header.Set("Content-Type", image.ContentType)
	} else {
		header.Set("Content-Type", "application/octet-stream")
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		return created, fmt.Errorf("encode image: %w", err)
	}
	if _, err := io.Copy(part, image.Body); err != nil {
		return created, fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return created, fmt.Errorf("encode form: %w", err)
	}
	err = c.send(ctx, http.MethodPost, "/articles", &buf, mw.FormDataContentType(), token, &created)
	return created, err
}

// ToggleLike adds or removes the caller's like.
func (c *Client) ToggleLike(ctx context.Context, token, articleID string) (Article, error) {
	var a Article
	err := c.do(ctx, http.MethodPost, "/articles/"+url.PathEscape(articleID)+"/like", nil, token, &a)
	return a, err
}

// ListComments fetches an article's comments once.
func (c *Client) ListComments(ctx context.Context, articleID string) ([]Comment, error) {
	var resp struct {
		Comments []Comment `json:"comments"`
	}
	if err := c.do(ctx, http.MethodGet, "/articles/"+url.PathEscape(articleID)+"/comments", nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Comments, nil
}

// SubmitComment posts a comment. An empty token is sent anonymously and rejected by the API.
func (c *Client) SubmitComment(ctx context.Context, token, articleID, content string) (Comment, error) {
	var created Comment
	payload := map[string]string{"content": content}
	err := c.do(ctx, http.MethodPost, "/articles/"+url.PathEscape(articleID)+"/comments", payload, token, &created)
	return created, err
}

// DeleteComment removes one of the caller's comments.
func (c *Client) DeleteComment(ctx context.Context, token, commentID string) error {
	return c.do(ctx, http.MethodDelete, "/comments/"+url.PathEscape(commentID), nil, token, nil)
}

package article

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/technews/internal/domain"
	"github.com/splax/technews/internal/repository"
	"github.com/splax/technews/internal/storage"
	"github.com/splax/technews/pkg/locale"
)

// DefaultMaxImageBytes caps uploaded article images.
const DefaultMaxImageBytes int64 = 5_000_000

var (
	// ErrUnauthenticated is returned when no author is signed in.
	ErrUnauthenticated = errors.New("article: must be signed in")
	// ErrMissingTitleOrContent is returned when title or content is blank.
	ErrMissingTitleOrContent = errors.New("article: title and content are required")
	// ErrInvalidCategory is returned for categories outside the fixed set.
	ErrInvalidCategory = errors.New("article: invalid category")
	// ErrImageTooLarge is returned for images over the size cap.
	ErrImageTooLarge = errors.New("article: image too large")
	// ErrInvalidImage is returned for uploads that are not images.
	ErrInvalidImage = errors.New("article: file is not an image")
)

// CreateInput is the authoring form.
type CreateInput struct {
	Title    string
	Content  string
	Category string
	Excerpt  string
}

// Image is an optional upload attached to a new article.
type Image struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Service implements the authoring flow and article reads.
type Service struct {
	articles      repository.ArticleRepository
	blobs         storage.Store
	logger        *slog.Logger
	maxImageBytes int64
	now           func() time.Time
}

// New constructs a Service. maxImageBytes <= 0 selects DefaultMaxImageBytes.
func New(articles repository.ArticleRepository, blobs storage.Store, logger *slog.Logger, maxImageBytes int64) Service {
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Service{articles: articles, blobs: blobs, logger: logger, maxImageBytes: maxImageBytes, now: time.Now}
}

// Create validates the form, uploads the image when present and writes the article.
func (s Service) Create(ctx context.Context, in CreateInput, author *domain.Identity, image *Image) (*domain.Article, error) {
	if author == nil || author.ID == "" {
		return nil, ErrUnauthenticated
	}
	title := locale.Normalize(in.Title)
	content := locale.Normalize(in.Content)
	if title == "" || content == "" {
		return nil, ErrMissingTitleOrContent
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = domain.DefaultCategory
	}
	if !domain.ValidCategory(category) {
		return nil, ErrInvalidCategory
	}
	if image != nil {
		if image.Size > s.maxImageBytes {
			return nil, ErrImageTooLarge
		}
		if !strings.HasPrefix(strings.ToLower(image.ContentType), "image/") {
			return nil, ErrInvalidImage
		}
	}

	now := s.now().UTC()
	article := &domain.Article{
		ID:         uuid.NewString(),
		Title:      title,
		Content:    content,
		Category:   category,
		Excerpt:    locale.Normalize(in.Excerpt),
		AuthorID:   author.ID,
		AuthorName: author.DisplayName,
		Likes:      []string{},
		CreatedAt:  now,
	}

	var imageKey string
	if image != nil {
		if s.blobs == nil {
			return nil, errors.New("article: image uploads are not configured")
		}
		imageKey = storage.ArticleImageKey(now, image.Filename)
		body := io.LimitReader(image.Body, s.maxImageBytes+1)
		url, err := s.blobs.Put(ctx, imageKey, image.ContentType, body, image.Size)
		if err != nil {
			return nil, fmt.Errorf("upload image: %w", err)
		}
		article.ImageURL = url
	}

	if err := s.articles.CreateArticle(ctx, article); err != nil {
		if imageKey != "" {
			if derr := s.blobs.Delete(ctx, imageKey); derr != nil {
				s.logger.Warn("failed to remove orphaned image", "key", imageKey, "error", derr)
			}
		}
		return nil, fmt.Errorf("create article: %w", err)
	}
	s.logger.Info("article published", "article_id", article.ID, "user_id", author.ID, "category", category)
	return article, nil
}

// Get returns one article.
func (s Service) Get(ctx context.Context, id string) (*domain.Article, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}
	return s.articles.GetArticleByID(ctx, id)
}

// List returns articles newest first.
func (s Service) List(ctx context.Context, filter domain.ArticleFilter) ([]domain.Article, error) {
	if filter.Category != "" && !domain.ValidCategory(filter.Category) {
		return nil, ErrInvalidCategory
	}
	if filter.AuthorID != "" {
		if _, err := uuid.Parse(filter.AuthorID); err != nil {
			return []domain.Article{}, nil
		}
	}
	return s.articles.ListArticles(ctx, filter)
}

// ListByAuthor returns the articles written by authorID, newest first.
func (s Service) ListByAuthor(ctx context.Context, authorID string) ([]domain.Article, error) {
	return s.List(ctx, domain.ArticleFilter{AuthorID: authorID})
}

// ToggleLike flips the user's membership in the article's like set.
func (s Service) ToggleLike(ctx context.Context, articleID string, user *domain.Identity) (*domain.Article, error) {
	if user == nil || user.ID == "" {
		return nil, ErrUnauthenticated
	}
	current, err := s.Get(ctx, articleID)
	if err != nil {
		return nil, err
	}
	updated, err := s.articles.SetArticleLike(ctx, articleID, user.ID, !current.LikedBy(user.ID))
	if err != nil {
		return nil, fmt.Errorf("toggle like: %w", err)
	}
	return updated, nil
}

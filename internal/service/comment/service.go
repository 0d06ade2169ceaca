package comment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/technews/internal/domain"
	"github.com/splax/technews/internal/repository"
	"github.com/splax/technews/pkg/locale"
)

var (
	// ErrUnauthenticated is returned when a visitor tries to comment without signing in.
	ErrUnauthenticated = errors.New("comment: must be signed in")
	// ErrEmptyContent is returned for blank comments.
	ErrEmptyContent = errors.New("comment: content is empty")
)

// Notifier is told which article's comments changed.
type Notifier interface {
	Notify(ctx context.Context, articleID string)
}

// NopNotifier ignores change signals; used when the database trigger drives the feed.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(context.Context, string) {}

// Service writes and reads comments.
type Service struct {
	comments repository.CommentRepository
	articles repository.ArticleRepository
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs a Service.
func New(comments repository.CommentRepository, articles repository.ArticleRepository, notifier Notifier, logger *slog.Logger) Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Service{comments: comments, articles: articles, notifier: notifier, logger: logger, now: time.Now}
}

// Submit writes a comment stamped with the current time. Subscribers see it
// through the next feed snapshot.
func (s Service) Submit(ctx context.Context, articleID, content string, user *domain.Identity) (*domain.Comment, error) {
	if user == nil || user.ID == "" {
		return nil, ErrUnauthenticated
	}
	content = locale.Normalize(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if _, err := uuid.Parse(articleID); err != nil {
		return nil, repository.ErrNotFound
	}
	if _, err := s.articles.GetArticleByID(ctx, articleID); err != nil {
		return nil, err
	}
	comment := &domain.Comment{
		ID:         uuid.NewString(),
		ArticleID:  articleID,
		Content:    content,
		AuthorID:   user.ID,
		AuthorName: user.DisplayName,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.comments.CreateComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	s.logger.Info("comment submitted", "comment_id", comment.ID, "article_id", articleID, "user_id", user.ID)
	s.notifier.Notify(ctx, articleID)
	return comment, nil
}

// Delete removes a comment. The store only deletes rows owned by requester.
func (s Service) Delete(ctx context.Context, commentID string, requester *domain.Identity) error {
	if requester == nil || requester.ID == "" {
		return ErrUnauthenticated
	}
	deleted, err := s.comments.DeleteComment(ctx, commentID, requester.ID)
	if err != nil {
		if errors.Is(err, repository.ErrForbidden) {
			s.logger.Warn("comment delete refused", "comment_id", commentID, "user_id", requester.ID)
		}
		return err
	}
	s.logger.Info("comment deleted", "comment_id", commentID, "article_id", deleted.ArticleID, "user_id", requester.ID)
	s.notifier.Notify(ctx, deleted.ArticleID)
	return nil
}

// List returns an article's comments newest first.
func (s Service) List(ctx context.Context, articleID string) ([]domain.Comment, error) {
	if _, err := uuid.Parse(articleID); err != nil {
		return nil, repository.ErrNotFound
	}
	return s.comments.ListCommentsByArticle(ctx, articleID)
}

// CanDelete reports whether viewer should be offered the delete action.
func CanDelete(c domain.Comment, viewer *domain.Identity) bool {
	return c.DeletableBy(viewer)
}

package repository

import (
	"context"

	"github.com/splax/technews/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// ArticleRepository persists articles.
type ArticleRepository interface {
	CreateArticle(ctx context.Context, article *domain.Article) error
	GetArticleByID(ctx context.Context, id string) (*domain.Article, error)
	ListArticles(ctx context.Context, filter domain.ArticleFilter) ([]domain.Article, error)
	SetArticleLike(ctx context.Context, articleID, userID string, liked bool) (*domain.Article, error)
}

// CommentRepository persists comments and keeps the owning article's counter in step.
type CommentRepository interface {
	CreateComment(ctx context.Context, comment *domain.Comment) error
	GetCommentByID(ctx context.Context, id string) (*domain.Comment, error)
	// DeleteComment removes the comment only when authorID owns it.
	// It returns ErrNotFound for unknown ids and ErrForbidden for other authors.
	DeleteComment(ctx context.Context, commentID, authorID string) (*domain.Comment, error)
	// ListCommentsByArticle returns comments newest first.
	ListCommentsByArticle(ctx context.Context, articleID string) ([]domain.Comment, error)
}

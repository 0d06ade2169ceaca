package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/splax/technews/internal/domain"
)

const articleColumns = `id, title, content, category, excerpt, image_url, author_id, author_name, likes, comments_count, created_at`

// CreateArticle inserts an article. Likes and the comment counter start empty.
func (r *Repository) CreateArticle(ctx context.Context, article *domain.Article) error {
	if article == nil {
		return fmt.Errorf("article required")
	}
	const query = `INSERT INTO articles (id, title, content, category, excerpt, image_url, author_id, author_name, likes, comments_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '{}', 0, $9)`
	_, err := r.pool.Exec(ctx, query,
		article.ID,
		article.Title,
		article.Content,
		article.Category,
		article.Excerpt,
		article.ImageURL,
		article.AuthorID,
		article.AuthorName,
		article.CreatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	article.Likes = []string{}
	article.CommentsCount = 0
	return nil
}

// GetArticleByID returns a single article.
func (r *Repository) GetArticleByID(ctx context.Context, id string) (*domain.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id = $1`
	return scanArticle(r.pool.QueryRow(ctx, query, id))
}

// ListArticles returns articles newest first, optionally narrowed by category and author.
func (r *Repository) ListArticles(ctx context.Context, filter domain.ArticleFilter) ([]domain.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles
		WHERE ($1 = '' OR category = $1)
		  AND ($2 = '' OR author_id::text = $2)
		ORDER BY created_at DESC, id DESC`
	args := []any{filter.Category, filter.AuthorID}
	if filter.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, filter.Limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	articles := make([]domain.Article, 0)
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *article)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return articles, nil
}

// SetArticleLike adds or removes userID from the article's like set and returns the updated row.
func (r *Repository) SetArticleLike(ctx context.Context, articleID, userID string, liked bool) (*domain.Article, error) {
	var query string
	if liked {
		query = `UPDATE articles
			SET likes = CASE WHEN $2 = ANY(likes) THEN likes ELSE array_append(likes, $2) END
			WHERE id = $1 RETURNING ` + articleColumns
	} else {
		query = `UPDATE articles SET likes = array_remove(likes, $2)
			WHERE id = $1 RETURNING ` + articleColumns
	}
	return scanArticle(r.pool.QueryRow(ctx, query, articleID, userID))
}

func scanArticle(row pgx.Row) (*domain.Article, error) {
	var a domain.Article
	if err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Content,
		&a.Category,
		&a.Excerpt,
		&a.ImageURL,
		&a.AuthorID,
		&a.AuthorName,
		&a.Likes,
		&a.CommentsCount,
		&a.CreatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	if a.Likes == nil {
		a.Likes = []string{}
	}
	return &a, nil
}

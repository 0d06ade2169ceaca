package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/splax/technews/internal/domain"
	"github.com/splax/technews/internal/repository"
)

const commentColumns = `id, article_id, content, author_id, author_name, created_at`

// CreateComment inserts a comment and bumps the article's counter in one transaction.
func (r *Repository) CreateComment(ctx context.Context, comment *domain.Comment) error {
	if comment == nil {
		return fmt.Errorf("comment required")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insert = `INSERT INTO comments (id, article_id, content, author_id, author_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.Exec(ctx, insert,
		comment.ID,
		comment.ArticleID,
		comment.Content,
		comment.AuthorID,
		comment.AuthorName,
		comment.CreatedAt,
	); err != nil {
		return mapError(err)
	}
	tag, err := tx.Exec(ctx, `UPDATE articles SET comments_count = comments_count + 1 WHERE id = $1`, comment.ArticleID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return tx.Commit(ctx)
}

// GetCommentByID returns a single comment.
func (r *Repository) GetCommentByID(ctx context.Context, id string) (*domain.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE id = $1`
	return scanComment(r.pool.QueryRow(ctx, query, id))
}

// DeleteComment removes a comment owned by authorID and decrements the article's counter.
func (r *Repository) DeleteComment(ctx context.Context, commentID, authorID string) (*domain.Comment, error) {
	if _, err := uuid.Parse(commentID); err != nil {
		return nil, repository.ErrNotFound
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `DELETE FROM comments WHERE id = $1 AND author_id::text = $2 RETURNING ` + commentColumns
	comment, err := scanComment(tx.QueryRow(ctx, query, commentID, authorID))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		// Nothing deleted: tell a missing comment apart from someone else's.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM comments WHERE id = $1)`, commentID).Scan(&exists); err != nil {
			return nil, mapError(err)
		}
		if exists {
			return nil, repository.ErrForbidden
		}
		return nil, repository.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `UPDATE articles SET comments_count = GREATEST(comments_count - 1, 0) WHERE id = $1`, comment.ArticleID); err != nil {
		return nil, mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return comment, nil
}

// ListCommentsByArticle returns an article's comments newest first.
func (r *Repository) ListCommentsByArticle(ctx context.Context, articleID string) ([]domain.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments
		WHERE article_id = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, articleID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	comments := make([]domain.Comment, 0)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *comment)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return comments, nil
}

func scanComment(row pgx.Row) (*domain.Comment, error) {
	var c domain.Comment
	if err := row.Scan(&c.ID, &c.ArticleID, &c.Content, &c.AuthorID, &c.AuthorName, &c.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}

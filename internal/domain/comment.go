package domain

import "time"

// Comment belongs to exactly one article. AuthorName is copied at write time.
type Comment struct {
	ID         string    `json:"id"`
	ArticleID  string    `json:"article_id"`
	Content    string    `json:"content"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// DeletableBy reports whether the identity may delete the comment.
// Only the author may; callers use this for presentation, the store enforces it.
func (c Comment) DeletableBy(identity *Identity) bool {
	return identity != nil && identity.ID != "" && identity.ID == c.AuthorID
}

package domain

import "time"

// DefaultCategory is used when an article is submitted without a category.
const DefaultCategory = "programming"

// Categories is the fixed, ordered set of article categories.
var Categories = []string{"programming", "ai", "mobile", "security", "news"}

// ValidCategory reports whether id belongs to Categories.
func ValidCategory(id string) bool {
	for _, c := range Categories {
		if c == id {
			return true
		}
	}
	return false
}

// Article is a published post. AuthorName is copied from the author at write time.
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

// LikedBy reports whether userID is in the article's like set.
func (a Article) LikedBy(userID string) bool {
	for _, id := range a.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

// ArticleFilter narrows article listings. Zero values mean "any".
type ArticleFilter struct {
	Category string
	AuthorID string
	Limit    int
}

// Package models - category.go defines the news and podcast categories editors manage.
package models

import "time"

// Category kinds
const (
	CategoryKindNews    = "news"
	CategoryKindPodcast = "podcast"
)

// Category groups news articles or podcast episodes
type Category struct {
	ID          int64     `json:"category_id" db:"category_id"`
	Kind        string    `json:"kind" db:"kind"`
	Name        string    `json:"name" db:"name"`
	Slug        string    `json:"slug" db:"slug"`
	Description *string   `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// EntityType returns the activity log entity type for this category's kind
func (c *Category) EntityType() string {
	if c.Kind == CategoryKindPodcast {
		return "podcast_category"
	}
	return "news_category"
}

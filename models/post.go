package models

import "time"

// Post statuses. Only published posts appear in public lists and category counts.
const (
	PostStatusDraft     = "draft"
	PostStatusPublished = "published"
	PostStatusArchived  = "archived"
)

// ValidPostStatus reports whether s is one of the known status values.
func ValidPostStatus(s string) bool {
	return s == PostStatusDraft || s == PostStatusPublished || s == PostStatusArchived
}

// Post represents an article created by a user. Author name and avatar are
// denormalized for read efficiency and refreshed when the owner edits their profile.
type Post struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UserID       uint           `gorm:"index;not null" json:"user_id"`
	Title        string         `gorm:"size:255;not null" json:"title"`
	Slug         string         `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Excerpt      string         `gorm:"size:512;not null" json:"excerpt"`
	Body         string         `gorm:"type:mediumtext;not null" json:"body"`
	CoverImage   string         `gorm:"type:text" json:"cover_image"` // URL or inline data URI
	Status       string         `gorm:"size:16;not null;default:'draft';index" json:"status"`
	PublishedAt  time.Time      `gorm:"index" json:"published_at"`
	// Free-text label supplied by the author, e.g. "5 min read"; never computed.
	ReadingTime  string         `gorm:"size:64;not null" json:"reading_time"`
	AuthorName   string         `gorm:"size:64" json:"author_name"`
	AuthorAvatar string         `gorm:"size:512" json:"author_avatar"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	User         User           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Categories   []PostCategory `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"categories"`
}

// PostCategory is one entry of a post's ordered category list. Categories are
// not a stored entity of their own; the public category index is always derived
// by grouping these rows.
type PostCategory struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	PostID   uint   `gorm:"index;uniqueIndex:uniq_post_category;not null" json:"-"`
	Position int    `gorm:"not null" json:"-"`
	Name     string `gorm:"size:64;not null" json:"name"`
	Slug     string `gorm:"size:64;index;uniqueIndex:uniq_post_category;not null" json:"slug"`
}

package models

import "time"

// Notification types.
const (
	NotificationTypeComment = "comment"
	NotificationTypeLike    = "like"
	NotificationTypeReply   = "reply"
)

// Notification is an in-app message delivered to a registered recipient after an
// interaction on their content. Recipients are keyed by email; a notification is
// never created for the acting user themselves or for unknown recipients.
type Notification struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Type           string    `gorm:"size:16;not null;index" json:"type"`
	Title          string    `gorm:"size:64;not null" json:"title"`
	Message        string    `gorm:"size:512;not null" json:"message"`
	PostSlug       string    `gorm:"size:255" json:"post_slug"`
	PostTitle      string    `gorm:"size:255" json:"post_title"`
	CommentID      *uint     `gorm:"index" json:"comment_id,omitempty"`
	ActorName      string    `gorm:"size:64" json:"actor_name"`
	ActorEmail     string    `gorm:"size:191;not null" json:"actor_email"`
	RecipientEmail string    `gorm:"size:191;not null;index" json:"recipient_email"`
	IsRead         bool      `gorm:"not null;default:false;index" json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

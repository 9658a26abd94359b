package models

import "time"

// Comment represents a reply to a post. Author identity is denormalized so the
// comment stays renderable and notifiable even without joining users.
type Comment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PostID      uint      `gorm:"index;not null" json:"post_id"`
	ParentID    *uint     `gorm:"index" json:"parent_id,omitempty"`
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	AuthorName  string    `gorm:"size:64;not null" json:"author_name"`
	AuthorEmail string    `gorm:"size:191;not null" json:"author_email"`
	Body        string    `gorm:"type:text;not null" json:"body"`
	LikeCount   int       `gorm:"not null;default:0" json:"like_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	User        User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
}

// CommentLike records one viewer's like on a comment. The unique index makes the
// toggle idempotent: a like can exist at most once per (comment, user), and the
// counter on Comment only ever moves by atomic server-side deltas.
type CommentLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CommentID uint      `gorm:"uniqueIndex:uniq_comment_like;not null" json:"comment_id"`
	UserID    uint      `gorm:"uniqueIndex:uniq_comment_like;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

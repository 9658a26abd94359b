package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a platform author. Passwords are stored as bcrypt hashes only.
// Emails are stored lowercased and are unique case-insensitively. The admin role
// is never persisted here; it is recomputed from the configured allow-list on
// every session restore.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Email        string         `gorm:"size:191;uniqueIndex;not null" json:"email"`
	DisplayName  string         `gorm:"size:64;not null" json:"display_name"`
	AvatarURL    string         `gorm:"size:512" json:"avatar_url"`
	PasswordHash string         `gorm:"size:255" json:"-"`
	Provider     string         `gorm:"size:32;uniqueIndex:uniq_provider_identity" json:"provider"`
	ProviderID   *string        `gorm:"size:191;uniqueIndex:uniq_provider_identity" json:"provider_id,omitempty"`
	PostCount    int            `gorm:"default:0" json:"post_count"`
	LastLoginAt  *time.Time     `json:"last_login_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Posts        []Post         `json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}

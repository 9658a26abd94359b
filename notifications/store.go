package notifications

import (
	"errors"
	"strings"
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/inkwell-app/inkwell-backend/models"
	"github.com/inkwell-app/inkwell-backend/realtime"
)

// ErrNotFound is returned when a notification does not exist or belongs to a
// different recipient.
var ErrNotFound = errors.New("notification not found")

// Store persists notifications and serves snapshot queries for the realtime
// hub. Snapshots report not-ready until schema migration completed, so a
// subscriber connecting during boot gets a retryable error instead of a
// confusing empty list.
type Store struct {
	db    *gorm.DB
	ready atomic.Bool
}

// NewStore creates a store. Call SetReady once migrations have run.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// SetReady marks the backing index as queryable.
func (s *Store) SetReady() {
	s.ready.Store(true)
}

// Snapshot implements realtime.SnapshotSource. Rows come back newest first;
// the recent scope is bounded by limit, the all scope is unbounded.
func (s *Store) Snapshot(email, scope string, limit int) (interface{}, error) {
	if !s.ready.Load() {
		return nil, realtime.ErrNotReady
	}

	q := s.db.Model(&models.Notification{}).
		Where("recipient_email = ?", strings.ToLower(email)).
		Order("created_at DESC, id DESC")
	if scope == realtime.ScopeRecent && limit > 0 {
		q = q.Limit(limit)
	}

	var rows []models.Notification
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Create inserts a notification row.
func (s *Store) Create(n *models.Notification) error {
	n.RecipientEmail = strings.ToLower(n.RecipientEmail)
	return s.db.Create(n).Error
}

// List returns notifications for a recipient, newest first. limit <= 0 means
// unbounded.
func (s *Store) List(email string, limit int) ([]models.Notification, error) {
	q := s.db.Where("recipient_email = ?", strings.ToLower(email)).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.Notification
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UnreadCount counts unread notifications for a recipient.
func (s *Store) UnreadCount(email string) (int64, error) {
	var count int64
	err := s.db.Model(&models.Notification{}).
		Where("recipient_email = ? AND is_read = ?", strings.ToLower(email), false).
		Count(&count).Error
	return count, err
}

// MarkRead flags a single notification owned by the recipient. Marking an
// already-read notification again succeeds.
func (s *Store) MarkRead(email string, id uint) error {
	res := s.db.Model(&models.Notification{}).
		Where("id = ? AND recipient_email = ? AND is_read = ?", id, strings.ToLower(email), false).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// MySQL reports changed rows, not matched rows, so check whether the
		// notification exists before treating this as a miss.
		var count int64
		err := s.db.Model(&models.Notification{}).
			Where("id = ? AND recipient_email = ?", id, strings.ToLower(email)).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// MarkAllRead flags every unread notification for the recipient. Running it
// twice is a no-op: the filter only touches unread rows.
func (s *Store) MarkAllRead(email string) (int64, error) {
	res := s.db.Model(&models.Notification{}).
		Where("recipient_email = ? AND is_read = ?", strings.ToLower(email), false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// Delete removes a notification, scoped to the recipient so one account can
// never delete another account's rows.
func (s *Store) Delete(email string, id uint) error {
	res := s.db.Where("id = ? AND recipient_email = ?", id, strings.ToLower(email)).
		Delete(&models.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// recipientRegistered checks the recipient has an account. Comments carry
// free-form author emails, so a notification target may not exist at all.
func (s *Store) recipientRegistered(email string) (bool, error) {
	var count int64
	err := s.db.Model(&models.User{}).
		Where("email = ?", strings.ToLower(email)).
		Count(&count).Error
	return count > 0, err
}

package notifications

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-app/inkwell-backend/models"
	"github.com/inkwell-app/inkwell-backend/realtime"
)

func seedNotifications(t *testing.T, store *Store, email string, count int) {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < count; i++ {
		n := &models.Notification{
			Type:           models.NotificationTypeComment,
			Title:          "New Comment",
			Message:        "someone commented",
			ActorEmail:     "actor@example.com",
			RecipientEmail: email,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.Create(n))
	}
}

func TestSnapshotNotReadyBeforeMigrationSignal(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)

	_, err := store.Snapshot("bob@example.com", realtime.ScopeRecent, 10)
	assert.ErrorIs(t, err, realtime.ErrNotReady)

	store.SetReady()
	_, err = store.Snapshot("bob@example.com", realtime.ScopeRecent, 10)
	assert.NoError(t, err)
}

func TestSnapshotScopes(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	store.SetReady()
	seedNotifications(t, store, "bob@example.com", 5)

	recent, err := store.Snapshot("bob@example.com", realtime.ScopeRecent, 3)
	require.NoError(t, err)
	recentRows := recent.([]models.Notification)
	require.Len(t, recentRows, 3)
	// Newest first.
	assert.True(t, recentRows[0].CreatedAt.After(recentRows[1].CreatedAt))

	all, err := store.Snapshot("bob@example.com", realtime.ScopeAll, 0)
	require.NoError(t, err)
	assert.Len(t, all.([]models.Notification), 5)
}

func TestSnapshotScopedToRecipient(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	store.SetReady()
	seedNotifications(t, store, "bob@example.com", 2)
	seedNotifications(t, store, "carol@example.com", 1)

	rows, err := store.Snapshot("Bob@Example.com", realtime.ScopeAll, 0)
	require.NoError(t, err)
	assert.Len(t, rows.([]models.Notification), 2)
}

func TestMarkAllReadIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	store.SetReady()
	seedNotifications(t, store, "bob@example.com", 3)

	updated, err := store.MarkAllRead("bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)

	// Second run touches nothing.
	updated, err = store.MarkAllRead("bob@example.com")
	require.NoError(t, err)
	assert.Zero(t, updated)

	unread, err := store.UnreadCount("bob@example.com")
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestMarkReadScopedToRecipient(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	store.SetReady()
	seedNotifications(t, store, "bob@example.com", 1)

	var n models.Notification
	require.NoError(t, db.First(&n).Error)

	err := store.MarkRead("carol@example.com", n.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.MarkRead("bob@example.com", n.ID))
}

func TestDeleteScopedToRecipient(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	store.SetReady()
	seedNotifications(t, store, "bob@example.com", 1)

	var n models.Notification
	require.NoError(t, db.First(&n).Error)

	err := store.Delete("carol@example.com", n.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete("bob@example.com", n.ID))
	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	assert.Zero(t, count)
}

package controllers

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorm.io/gorm"

	"github.com/inkwell-app/inkwell-backend/models"
)

func seedNotification(t *testing.T, db *gorm.DB, recipient string, createdAt time.Time) models.Notification {
	t.Helper()
	n := models.Notification{
		Type:           models.NotificationTypeComment,
		Title:          "New Comment",
		Message:        "someone commented",
		ActorEmail:     "actor@example.com",
		RecipientEmail: recipient,
		CreatedAt:      createdAt,
	}
	require.NoError(t, db.Create(&n).Error)
	return n
}

func TestListNotificationsScopes(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, token := createTestUser(t, db, "bob@example.com", "Bob")

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 25; i++ {
		seedNotification(t, db, "bob@example.com", base.Add(time.Duration(i)*time.Minute))
	}

	// Default scope is recent and bounded.
	w := doJSON(r, http.MethodGet, "/api/v1/notifications", nil, token)
	mustStatus(t, w, http.StatusOK)
	items := decodeData(t, w)["items"].([]interface{})
	assert.Len(t, items, 20)

	// scope=all is unbounded.
	w = doJSON(r, http.MethodGet, "/api/v1/notifications?scope=all", nil, token)
	mustStatus(t, w, http.StatusOK)
	items = decodeData(t, w)["items"].([]interface{})
	assert.Len(t, items, 25)

	w = doJSON(r, http.MethodGet, "/api/v1/notifications?scope=bogus", nil, token)
	mustStatus(t, w, http.StatusBadRequest)
}

func TestMarkAllReadTwiceOverHTTP(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, token := createTestUser(t, db, "bob@example.com", "Bob")
	seedNotification(t, db, "bob@example.com", time.Now())
	seedNotification(t, db, "bob@example.com", time.Now())

	w := doJSON(r, http.MethodPost, "/api/v1/notifications/read-all", nil, token)
	mustStatus(t, w, http.StatusOK)
	assert.Equal(t, float64(2), decodeData(t, w)["updated"])

	w = doJSON(r, http.MethodPost, "/api/v1/notifications/read-all", nil, token)
	mustStatus(t, w, http.StatusOK)
	assert.Equal(t, float64(0), decodeData(t, w)["updated"])

	w = doJSON(r, http.MethodGet, "/api/v1/notifications/unread-count", nil, token)
	mustStatus(t, w, http.StatusOK)
	assert.Equal(t, float64(0), decodeData(t, w)["unread"])
}

func TestDeleteNotificationScopedToOwner(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, bobToken := createTestUser(t, db, "bob@example.com", "Bob")
	_, carolToken := createTestUser(t, db, "carol@example.com", "Carol")

	n := seedNotification(t, db, "bob@example.com", time.Now())
	url := fmt.Sprintf("/api/v1/notifications/%d", n.ID)

	// Another account cannot see or delete it.
	mustStatus(t, doJSON(r, http.MethodDelete, url, nil, carolToken), http.StatusNotFound)
	mustStatus(t, doJSON(r, http.MethodDelete, url, nil, bobToken), http.StatusOK)

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	assert.Zero(t, count)
}

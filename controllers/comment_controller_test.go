package controllers

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-app/inkwell-backend/models"
	"github.com/inkwell-app/inkwell-backend/notifications"
)

func createPublishedPost(t *testing.T, r *gin.Engine, token, title string) {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/api/v1/posts", validPostPayload(title, "published"), token)
	mustStatus(t, w, http.StatusOK)
}

func TestCreateCommentNotifiesPostAuthor(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, aliceToken := createTestUser(t, db, "alice@example.com", "Alice")
	_, bobToken := createTestUser(t, db, "bob@example.com", "Bob")
	createPublishedPost(t, r, aliceToken, "Commented Post")

	w := doJSON(r, http.MethodPost, "/api/v1/posts/commented-post/comments", map[string]interface{}{
		"body": "nice post",
	}, bobToken)
	mustStatus(t, w, http.StatusOK)

	// Delivery is asynchronous and best effort.
	require.Eventually(t, func() bool {
		var count int64
		db.Model(&models.Notification{}).
			Where("recipient_email = ?", "alice@example.com").
			Count(&count)
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)

	var n models.Notification
	require.NoError(t, db.Where("recipient_email = ?", "alice@example.com").First(&n).Error)
	assert.Equal(t, models.NotificationTypeComment, n.Type)
	assert.Equal(t, "New Comment", n.Title)
	assert.Equal(t, `Bob commented on your post "Commented Post"`, n.Message)
	assert.Equal(t, "commented-post", n.PostSlug)
}

func TestCommentOnOwnPostCreatesNoNotification(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, aliceToken := createTestUser(t, db, "alice@example.com", "Alice")
	createPublishedPost(t, r, aliceToken, "Own Post")

	w := doJSON(r, http.MethodPost, "/api/v1/posts/own-post/comments", map[string]interface{}{
		"body": "talking to myself",
	}, aliceToken)
	mustStatus(t, w, http.StatusOK)

	// Give the async dispatch a moment; nothing must land.
	time.Sleep(100 * time.Millisecond)
	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReplyNotifiesParentAuthor(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, aliceToken := createTestUser(t, db, "alice@example.com", "Alice")
	_, bobToken := createTestUser(t, db, "bob@example.com", "Bob")
	_, carolToken := createTestUser(t, db, "carol@example.com", "Carol")
	createPublishedPost(t, r, aliceToken, "Thread Post")

	mustStatus(t, doJSON(r, http.MethodPost, "/api/v1/posts/thread-post/comments", map[string]interface{}{
		"body": "first",
	}, bobToken), http.StatusOK)

	var parent models.Comment
	require.NoError(t, db.First(&parent).Error)

	mustStatus(t, doJSON(r, http.MethodPost, "/api/v1/posts/thread-post/comments", map[string]interface{}{
		"body":      "replying",
		"parent_id": parent.ID,
	}, carolToken), http.StatusOK)

	require.Eventually(t, func() bool {
		var count int64
		db.Model(&models.Notification{}).
			Where("recipient_email = ? AND type = ?", "bob@example.com", models.NotificationTypeReply).
			Count(&count)
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestToggleLikeMovesCounterWithRows(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, aliceToken := createTestUser(t, db, "alice@example.com", "Alice")
	_, bobToken := createTestUser(t, db, "bob@example.com", "Bob")
	createPublishedPost(t, r, aliceToken, "Liked Post")

	mustStatus(t, doJSON(r, http.MethodPost, "/api/v1/posts/liked-post/comments", map[string]interface{}{
		"body": "like me",
	}, aliceToken), http.StatusOK)

	var comment models.Comment
	require.NoError(t, db.First(&comment).Error)
	likeURL := fmt.Sprintf("/api/v1/comments/%d/like", comment.ID)

	// Like.
	w := doJSON(r, http.MethodPost, likeURL, nil, bobToken)
	mustStatus(t, w, http.StatusOK)
	data := decodeData(t, w)
	assert.Equal(t, true, data["liked"])
	assert.Equal(t, float64(1), data["like_count"])

	// Unlike returns the counter to the number of like rows: zero.
	w = doJSON(r, http.MethodPost, likeURL, nil, bobToken)
	mustStatus(t, w, http.StatusOK)
	data = decodeData(t, w)
	assert.Equal(t, false, data["liked"])
	assert.Equal(t, float64(0), data["like_count"])

	var likeRows int64
	require.NoError(t, db.Model(&models.CommentLike{}).Count(&likeRows).Error)
	assert.Zero(t, likeRows)
}

func TestListCommentsMarksViewerLikes(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, aliceToken := createTestUser(t, db, "alice@example.com", "Alice")
	_, bobToken := createTestUser(t, db, "bob@example.com", "Bob")
	createPublishedPost(t, r, aliceToken, "Feedback Post")

	mustStatus(t, doJSON(r, http.MethodPost, "/api/v1/posts/feedback-post/comments", map[string]interface{}{
		"body": "comment one",
	}, aliceToken), http.StatusOK)

	var comment models.Comment
	require.NoError(t, db.First(&comment).Error)
	mustStatus(t, doJSON(r, http.MethodPost, fmt.Sprintf("/api/v1/comments/%d/like", comment.ID), nil, bobToken), http.StatusOK)

	w := doJSON(r, http.MethodGet, "/api/v1/posts/feedback-post/comments", nil, bobToken)
	mustStatus(t, w, http.StatusOK)
	items := decodeData(t, w)["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, true, items[0].(map[string]interface{})["liked"])

	// Anonymous viewers see no liked flag set.
	w = doJSON(r, http.MethodGet, "/api/v1/posts/feedback-post/comments", nil, "")
	mustStatus(t, w, http.StatusOK)
	items = decodeData(t, w)["items"].([]interface{})
	assert.Equal(t, false, items[0].(map[string]interface{})["liked"])
}

func TestListCommentsHidesUnpublishedPosts(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, aliceToken := createTestUser(t, db, "alice@example.com", "Alice")
	_, bobToken := createTestUser(t, db, "bob@example.com", "Bob")

	w := doJSON(r, http.MethodPost, "/api/v1/posts", validPostPayload("Secret Draft", "draft"), aliceToken)
	mustStatus(t, w, http.StatusOK)

	// Same answer as fetching the draft itself: not found for everyone but
	// the owner, whether or not they are signed in.
	mustStatus(t, doJSON(r, http.MethodGet, "/api/v1/posts/secret-draft/comments", nil, ""), http.StatusNotFound)
	mustStatus(t, doJSON(r, http.MethodGet, "/api/v1/posts/secret-draft/comments", nil, bobToken), http.StatusNotFound)
	mustStatus(t, doJSON(r, http.MethodGet, "/api/v1/posts/secret-draft/comments", nil, aliceToken), http.StatusOK)
}

func TestRemoveLikeSkipsCounterWhenRowAlreadyGone(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, aliceToken := createTestUser(t, db, "alice@example.com", "Alice")
	bob, bobToken := createTestUser(t, db, "bob@example.com", "Bob")
	createPublishedPost(t, r, aliceToken, "Raced Post")

	mustStatus(t, doJSON(r, http.MethodPost, "/api/v1/posts/raced-post/comments", map[string]interface{}{
		"body": "race me",
	}, aliceToken), http.StatusOK)

	var comment models.Comment
	require.NoError(t, db.First(&comment).Error)
	mustStatus(t, doJSON(r, http.MethodPost, fmt.Sprintf("/api/v1/comments/%d/like", comment.ID), nil, bobToken), http.StatusOK)

	// A second unlike arriving after the row is gone must not decrement again.
	stale := models.CommentLike{ID: 999, CommentID: comment.ID, UserID: bob.ID}
	store := notifications.NewStore(db)
	controller := NewCommentController(db, notifications.NewDispatcher(store, nil))
	require.NoError(t, controller.removeLike(db, &stale))

	var current models.Comment
	require.NoError(t, db.First(&current, comment.ID).Error)
	assert.Equal(t, 1, current.LikeCount)
}

func TestDeleteCommentPermissions(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, aliceToken := createTestUser(t, db, "alice@example.com", "Alice")
	_, bobToken := createTestUser(t, db, "bob@example.com", "Bob")
	_, carolToken := createTestUser(t, db, "carol@example.com", "Carol")
	createPublishedPost(t, r, aliceToken, "Moderated Post")

	mustStatus(t, doJSON(r, http.MethodPost, "/api/v1/posts/moderated-post/comments", map[string]interface{}{
		"body": "to be removed",
	}, bobToken), http.StatusOK)

	var comment models.Comment
	require.NoError(t, db.First(&comment).Error)
	deleteURL := fmt.Sprintf("/api/v1/comments/%d", comment.ID)

	// A bystander may not delete it.
	mustStatus(t, doJSON(r, http.MethodDelete, deleteURL, nil, carolToken), http.StatusForbidden)
	// The post owner may.
	mustStatus(t, doJSON(r, http.MethodDelete, deleteURL, nil, aliceToken), http.StatusOK)

	var count int64
	require.NoError(t, db.Model(&models.Comment{}).Count(&count).Error)
	assert.Zero(t, count)
}

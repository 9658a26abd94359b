package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/inkwell-app/inkwell-backend/middleware"
	"github.com/inkwell-app/inkwell-backend/models"
	"github.com/inkwell-app/inkwell-backend/notifications"
	"github.com/inkwell-app/inkwell-backend/utils"
)

// CommentController handles comments and likes on articles. Interactions feed
// the notification dispatcher; delivery failures never fail the request.
type CommentController struct {
	db         *gorm.DB
	dispatcher *notifications.Dispatcher
}

// NewCommentController creates a CommentController.
func NewCommentController(db *gorm.DB, dispatcher *notifications.Dispatcher) *CommentController {
	return &CommentController{db: db, dispatcher: dispatcher}
}

// CreateComment adds a comment or a reply to a published post. The post
// author is notified of comments, the parent comment author of replies.
func (c *CommentController) CreateComment(ctx *gin.Context) {
	userID := middleware.CurrentUserID(ctx)
	if userID == 0 {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var req struct {
		Body     string `json:"body"`
		ParentID *uint  `json:"parent_id"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	body := strings.TrimSpace(utils.Sanitize(req.Body))
	if body == "" {
		utils.FieldErrors(ctx, 40021, map[string]string{"body": "comment body is required"})
		return
	}
	if len([]rune(body)) > 2000 {
		utils.FieldErrors(ctx, 40021, map[string]string{"body": "comment must be at most 2000 characters"})
		return
	}

	post, found := c.findPost(ctx.Param("ref"))
	if !found {
		utils.Error(ctx, http.StatusNotFound, 40420, "post not found")
		return
	}
	if post.Status != models.PostStatusPublished {
		utils.Error(ctx, http.StatusNotFound, 40420, "post not found")
		return
	}

	var user models.User
	if err := c.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var parent *models.Comment
	if req.ParentID != nil {
		var pc models.Comment
		if err := c.db.First(&pc, *req.ParentID).Error; err != nil || pc.PostID != post.ID {
			utils.Error(ctx, http.StatusBadRequest, 40022, "parent comment not found on this post")
			return
		}
		parent = &pc
	}

	comment := models.Comment{
		PostID:      post.ID,
		ParentID:    req.ParentID,
		UserID:      user.ID,
		AuthorName:  user.DisplayName,
		AuthorEmail: user.Email,
		Body:        body,
	}
	if err := c.db.Create(&comment).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to create comment")
		return
	}

	if parent != nil {
		c.dispatcher.Dispatch(notifications.Event{
			Type:           models.NotificationTypeReply,
			ActorName:      user.DisplayName,
			ActorEmail:     user.Email,
			RecipientEmail: parent.AuthorEmail,
			PostSlug:       post.Slug,
			PostTitle:      post.Title,
			CommentID:      &parent.ID,
		})
	} else {
		var author models.User
		if err := c.db.First(&author, post.UserID).Error; err == nil {
			c.dispatcher.Dispatch(notifications.Event{
				Type:           models.NotificationTypeComment,
				ActorName:      user.DisplayName,
				ActorEmail:     user.Email,
				RecipientEmail: author.Email,
				PostSlug:       post.Slug,
				PostTitle:      post.Title,
				CommentID:      &comment.ID,
			})
		}
	}

	utils.Success(ctx, comment)
}

// ListComments returns all comments of a post, oldest first so threads read
// top to bottom.
func (c *CommentController) ListComments(ctx *gin.Context) {
	post, found := c.findPost(ctx.Param("ref"))
	if !found {
		utils.Error(ctx, http.StatusNotFound, 40420, "post not found")
		return
	}
	if post.Status != models.PostStatusPublished {
		userID := middleware.CurrentUserID(ctx)
		if userID != post.UserID && !middleware.IsAdmin(ctx) {
			// Hide existence of unpublished posts from other users.
			utils.Error(ctx, http.StatusNotFound, 40420, "post not found")
			return
		}
	}

	var comments []models.Comment
	if err := c.db.Where("post_id = ?", post.ID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to retrieve comments")
		return
	}

	// Mark which comments the current viewer liked, when authenticated.
	likedByViewer := map[uint]bool{}
	if userID := middleware.CurrentUserID(ctx); userID != 0 && len(comments) > 0 {
		ids := make([]uint, 0, len(comments))
		for _, cm := range comments {
			ids = append(ids, cm.ID)
		}
		var likes []models.CommentLike
		if err := c.db.Where("user_id = ? AND comment_id IN ?", userID, ids).Find(&likes).Error; err == nil {
			for _, l := range likes {
				likedByViewer[l.CommentID] = true
			}
		}
	}

	items := make([]gin.H, 0, len(comments))
	for _, cm := range comments {
		items = append(items, gin.H{
			"id":           cm.ID,
			"post_id":      cm.PostID,
			"parent_id":    cm.ParentID,
			"user_id":      cm.UserID,
			"author_name":  cm.AuthorName,
			"author_email": cm.AuthorEmail,
			"body":         cm.Body,
			"like_count":   cm.LikeCount,
			"liked":        likedByViewer[cm.ID],
			"created_at":   cm.CreatedAt,
		})
	}

	utils.Success(ctx, gin.H{"items": items})
}

// ToggleLike flips the caller's like on a comment. The like row and the
// counter move together in one transaction, so the count always equals the
// number of like rows no matter how the toggle is raced.
func (c *CommentController) ToggleLike(ctx *gin.Context) {
	userID := middleware.CurrentUserID(ctx)
	if userID == 0 {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	commentID, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("commentId")), 10, 64)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40023, "invalid comment id")
		return
	}

	var comment models.Comment
	if err := c.db.First(&comment, commentID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40421, "comment not found")
		return
	}

	var liked bool
	err = c.db.Transaction(func(tx *gorm.DB) error {
		var existing models.CommentLike
		findErr := tx.Where("comment_id = ? AND user_id = ?", comment.ID, userID).First(&existing).Error
		switch {
		case findErr == nil:
			liked = false
			return c.removeLike(tx, &existing)
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			like := models.CommentLike{CommentID: comment.ID, UserID: userID}
			if err := tx.Create(&like).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					// Concurrent like already landed; the unique index keeps
					// the counter honest.
					liked = true
					return nil
				}
				return err
			}
			liked = true
			return tx.Model(&models.Comment{}).
				Where("id = ?", comment.ID).
				Update("like_count", gorm.Expr("like_count + 1")).Error
		default:
			return findErr
		}
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to toggle like")
		return
	}

	if liked {
		var actor models.User
		if err := c.db.First(&actor, userID).Error; err == nil {
			var post models.Post
			_ = c.db.First(&post, comment.PostID).Error
			c.dispatcher.Dispatch(notifications.Event{
				Type:           models.NotificationTypeLike,
				ActorName:      actor.DisplayName,
				ActorEmail:     actor.Email,
				RecipientEmail: comment.AuthorEmail,
				PostSlug:       post.Slug,
				PostTitle:      post.Title,
				CommentID:      &comment.ID,
			})
		}
	}

	var current models.Comment
	if err := c.db.First(&current, comment.ID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to toggle like")
		return
	}

	utils.Success(ctx, gin.H{"liked": liked, "like_count": current.LikeCount})
}

// DeleteComment removes a comment. Allowed for the comment author, the post
// owner and admins.
func (c *CommentController) DeleteComment(ctx *gin.Context) {
	userID := middleware.CurrentUserID(ctx)
	if userID == 0 {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	commentID, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("commentId")), 10, 64)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40023, "invalid comment id")
		return
	}

	var comment models.Comment
	if err := c.db.First(&comment, commentID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40421, "comment not found")
		return
	}

	if comment.UserID != userID && !middleware.IsAdmin(ctx) {
		var post models.Post
		if err := c.db.First(&post, comment.PostID).Error; err != nil || post.UserID != userID {
			utils.Error(ctx, http.StatusForbidden, 40301, "permission denied")
			return
		}
	}

	err = c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("comment_id = ?", comment.ID).Delete(&models.CommentLike{}).Error; err != nil {
			return err
		}
		// Replies keep their rows but lose the parent; clients render them as
		// top-level comments.
		if err := tx.Model(&models.Comment{}).
			Where("parent_id = ?", comment.ID).
			Update("parent_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Comment{}, comment.ID).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to delete comment")
		return
	}

	utils.Success(ctx, gin.H{"message": "comment deleted"})
}

// removeLike deletes a like row and decrements the counter only when the row
// was actually removed. A concurrent unlike may have deleted the row after we
// read it; its delete already moved the counter, so decrementing again here
// would push the count below the real number of like rows.
func (c *CommentController) removeLike(tx *gorm.DB, like *models.CommentLike) error {
	res := tx.Delete(like)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	return tx.Model(&models.Comment{}).
		Where("id = ? AND like_count > 0", like.CommentID).
		Update("like_count", gorm.Expr("like_count - 1")).Error
}

func (c *CommentController) findPost(ref string) (*models.Post, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, false
	}
	var post models.Post
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		if err := c.db.First(&post, id).Error; err == nil {
			return &post, true
		}
	}
	if err := c.db.Where("slug = ?", ref).First(&post).Error; err != nil {
		return nil, false
	}
	return &post, true
}

package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/inkwell-app/inkwell-backend/middleware"
	"github.com/inkwell-app/inkwell-backend/notifications"
	"github.com/inkwell-app/inkwell-backend/realtime"
	"github.com/inkwell-app/inkwell-backend/utils"
)

// NotificationController exposes the authenticated user's notification feed.
// All queries are scoped by the recipient email from the token; there is no
// way to address another account's rows.
type NotificationController struct {
	store *notifications.Store
}

// NewNotificationController creates a NotificationController.
func NewNotificationController(store *notifications.Store) *NotificationController {
	return &NotificationController{store: store}
}

// List returns the caller's notifications, newest first. scope=recent (the
// default) bounds the result; scope=all returns everything.
func (n *NotificationController) List(ctx *gin.Context) {
	email := middleware.CurrentEmail(ctx)
	if email == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	scope := strings.TrimSpace(ctx.DefaultQuery("scope", realtime.ScopeRecent))
	limit := 0
	switch scope {
	case realtime.ScopeRecent:
		limit = realtime.DefaultRecentLimit
		if v := strings.TrimSpace(ctx.Query("limit")); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 100 {
				limit = parsed
			}
		}
	case realtime.ScopeAll:
	default:
		utils.Error(ctx, http.StatusBadRequest, 40025, "unknown scope")
		return
	}

	items, err := n.store.List(email, limit)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to retrieve notifications")
		return
	}

	utils.Success(ctx, gin.H{"items": items})
}

// UnreadCount returns how many unread notifications the caller has.
func (n *NotificationController) UnreadCount(ctx *gin.Context) {
	email := middleware.CurrentEmail(ctx)
	if email == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	count, err := n.store.UnreadCount(email)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50026, "failed to count notifications")
		return
	}

	utils.Success(ctx, gin.H{"unread": count})
}

// MarkRead flags one notification as read.
func (n *NotificationController) MarkRead(ctx *gin.Context) {
	email := middleware.CurrentEmail(ctx)
	if email == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	id, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("id")), 10, 64)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40026, "invalid notification id")
		return
	}

	if err := n.store.MarkRead(email, uint(id)); err != nil {
		if errors.Is(err, notifications.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40425, "notification not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to mark notification")
		return
	}

	utils.Success(ctx, gin.H{"message": "marked read"})
}

// MarkAllRead flags every unread notification for the caller. Safe to call
// repeatedly; the second call touches zero rows.
func (n *NotificationController) MarkAllRead(ctx *gin.Context) {
	email := middleware.CurrentEmail(ctx)
	if email == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	updated, err := n.store.MarkAllRead(email)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to mark notifications")
		return
	}

	utils.Success(ctx, gin.H{"updated": updated})
}

// Delete removes one notification owned by the caller.
func (n *NotificationController) Delete(ctx *gin.Context) {
	email := middleware.CurrentEmail(ctx)
	if email == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	id, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("id")), 10, 64)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40026, "invalid notification id")
		return
	}

	if err := n.store.Delete(email, uint(id)); err != nil {
		if errors.Is(err, notifications.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40425, "notification not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50028, "failed to delete notification")
		return
	}

	utils.Success(ctx, gin.H{"message": "notification deleted"})
}

package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/inkwell-app/inkwell-backend/models"
	"github.com/inkwell-app/inkwell-backend/utils"
)

// StatsController exposes public platform counters.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a StatsController.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// GetStats returns platform-wide totals: authors, published posts and comments.
func (s *StatsController) GetStats(ctx *gin.Context) {
	if b, ok := utils.CacheGetBytes("cache:stats"); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	var users, posts, comments int64
	if err := s.db.Model(&models.User{}).Count(&users).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50070, "failed to load stats")
		return
	}
	if err := s.db.Model(&models.Post{}).
		Where("status = ?", models.PostStatusPublished).
		Count(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50070, "failed to load stats")
		return
	}
	if err := s.db.Model(&models.Comment{}).Count(&comments).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50070, "failed to load stats")
		return
	}

	data := gin.H{
		"authors":  users,
		"posts":    posts,
		"comments": comments,
	}
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: data}
	utils.CacheSetJSON("cache:stats", wrapper, 5*time.Minute)
	utils.Success(ctx, data)
}

package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/inkwell-app/inkwell-backend/config"
	"github.com/inkwell-app/inkwell-backend/controllers"
	"github.com/inkwell-app/inkwell-backend/middleware"
	"github.com/inkwell-app/inkwell-backend/notifications"
	"github.com/inkwell-app/inkwell-backend/realtime"
	"github.com/inkwell-app/inkwell-backend/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, hub *realtime.Hub, store *notifications.Store, dispatcher *notifications.Dispatcher) *gin.Engine {
	// Load config and set Gin mode from configuration
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	ginLogPath := cfg.GinPath
	// Use application log level as reference
	gl, err := utils.NewRollingFileLogger(ginLogPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authController := controllers.NewAuthController(db)
	postController := controllers.NewPostController(db)
	commentController := controllers.NewCommentController(db, dispatcher)
	notificationController := controllers.NewNotificationController(store)
	statsController := controllers.NewStatsController(db)

	// Live query endpoint; the token travels in the query string.
	r.GET("/ws", hub.HandleWS)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/oauth/:provider/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)
	authGroup.PATCH("/profile", middleware.AuthRequired(), authController.UpdateProfile)

	// Public reads. Optional auth personalizes comment listings.
	api.GET("/posts", postController.ListPosts)
	api.GET("/posts/:ref", middleware.AuthOptional(), postController.GetPost)
	api.GET("/posts/:ref/comments", middleware.AuthOptional(), commentController.ListComments)
	api.GET("/categories", postController.ListCategories)
	api.GET("/authors", authController.ListAuthors)
	api.GET("/authors/:id", authController.GetAuthorPublic)
	api.GET("/stats", statsController.GetStats)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())
	protected.POST("/posts", postController.CreatePost)
	protected.PUT("/posts/:ref", postController.UpdatePost)
	protected.DELETE("/posts/:ref", postController.DeletePost)
	protected.POST("/posts/:ref/comments", commentController.CreateComment)
	protected.POST("/comments/:commentId/like", commentController.ToggleLike)
	protected.DELETE("/comments/:commentId", commentController.DeleteComment)
	protected.GET("/users/me/posts", postController.ListMyPosts)
	protected.POST("/upload/cover", postController.UploadCover)

	notifGroup := protected.Group("/notifications")
	notifGroup.GET("", notificationController.List)
	notifGroup.GET("/unread-count", notificationController.UnreadCount)
	notifGroup.POST("/read-all", notificationController.MarkAllRead)
	notifGroup.POST("/:id/read", notificationController.MarkRead)
	notifGroup.DELETE("/:id", notificationController.Delete)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		ctx.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	})

	return r
}

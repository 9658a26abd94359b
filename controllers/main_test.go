package controllers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/inkwell-app/inkwell-backend/middleware"
	"github.com/inkwell-app/inkwell-backend/models"
	"github.com/inkwell-app/inkwell-backend/notifications"
	"github.com/inkwell-app/inkwell-backend/utils"
)

func TestMain(m *testing.M) {
	if os.Getenv("JWT_SECRET") == "" {
		os.Setenv("JWT_SECRET", "test-secret")
	}
	gin.SetMode(gin.TestMode)
	utils.Logger = zap.NewNop()
	utils.Sugar = utils.Logger.Sugar()
	os.Exit(m.Run())
}

// newTestDB opens an in-memory SQLite database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	// A pooled second connection to :memory: would see an empty database.
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.PostCategory{},
		&models.Comment{},
		&models.CommentLike{},
		&models.Notification{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// newTestRouter wires the controllers under test onto a bare engine, skipping
// the access logger and rate limiter.
func newTestRouter(db *gorm.DB) *gin.Engine {
	store := notifications.NewStore(db)
	store.SetReady()
	dispatcher := notifications.NewDispatcher(store, nil)

	authController := NewAuthController(db)
	postController := NewPostController(db)
	commentController := NewCommentController(db, dispatcher)
	notificationController := NewNotificationController(store)

	r := gin.New()
	api := r.Group("/api/v1")

	api.POST("/auth/register", authController.Register)
	api.POST("/auth/login", authController.Login)
	api.GET("/auth/me", middleware.AuthRequired(), authController.Me)
	api.PATCH("/auth/profile", middleware.AuthRequired(), authController.UpdateProfile)
	api.GET("/authors", authController.ListAuthors)
	api.GET("/authors/:id", authController.GetAuthorPublic)

	api.GET("/posts", postController.ListPosts)
	api.GET("/posts/:ref", middleware.AuthOptional(), postController.GetPost)
	api.GET("/categories", postController.ListCategories)
	api.POST("/posts", middleware.AuthRequired(), postController.CreatePost)
	api.PUT("/posts/:ref", middleware.AuthRequired(), postController.UpdatePost)
	api.DELETE("/posts/:ref", middleware.AuthRequired(), postController.DeletePost)
	api.GET("/users/me/posts", middleware.AuthRequired(), postController.ListMyPosts)

	api.GET("/posts/:ref/comments", middleware.AuthOptional(), commentController.ListComments)
	api.POST("/posts/:ref/comments", middleware.AuthRequired(), commentController.CreateComment)
	api.POST("/comments/:commentId/like", middleware.AuthRequired(), commentController.ToggleLike)
	api.DELETE("/comments/:commentId", middleware.AuthRequired(), commentController.DeleteComment)

	notifGroup := api.Group("/notifications", middleware.AuthRequired())
	notifGroup.GET("", notificationController.List)
	notifGroup.GET("/unread-count", notificationController.UnreadCount)
	notifGroup.POST("/read-all", notificationController.MarkAllRead)
	notifGroup.POST("/:id/read", notificationController.MarkRead)
	notifGroup.DELETE("/:id", notificationController.Delete)

	return r
}

// createTestUser inserts a user and returns it with a valid bearer token.
func createTestUser(t *testing.T, db *gorm.DB, email, name string) (models.User, string) {
	t.Helper()
	hash, err := utils.HashPassword("password123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := models.User{
		Email:        email,
		DisplayName:  name,
		PasswordHash: hash,
		Provider:     "local",
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := utils.GenerateToken(user.ID, user.Email, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return user, token
}

// doJSON performs a request with an optional JSON body and bearer token.
func doJSON(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// decodeData unmarshals the data field of the response envelope.
func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp struct {
		Code    int                    `json:"code"`
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return resp.Data
}

func mustStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

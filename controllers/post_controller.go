package controllers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/inkwell-app/inkwell-backend/middleware"
	"github.com/inkwell-app/inkwell-backend/models"
	"github.com/inkwell-app/inkwell-backend/utils"
)

// maxCoverImageBytes bounds inline cover uploads. Covers are stored as data
// URIs in the post row, so the limit keeps rows small.
const maxCoverImageBytes = 100 * 1024

// PostController handles article CRUD, listing and the derived category index.
type PostController struct {
	db *gorm.DB
}

// NewPostController creates a PostController.
func NewPostController(db *gorm.DB) *PostController {
	return &PostController{db: db}
}

type postRequest struct {
	Title       string   `json:"title"`
	Excerpt     string   `json:"excerpt"`
	Body        string   `json:"body"`
	CoverImage  string   `json:"cover_image"`
	Status      string   `json:"status"`
	PublishedAt string   `json:"published_at"`
	ReadingTime string   `json:"reading_time"`
	Categories  []string `json:"categories"`
}

// validatePostRequest checks the required create/update fields and returns the
// parsed published date. Title, excerpt, body, cover image, published date and
// reading-time label are all mandatory; the reading-time label is free text
// supplied by the author, never computed here.
func validatePostRequest(req *postRequest) (time.Time, map[string]string) {
	fields := map[string]string{}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		fields["title"] = "title is required"
	} else if len([]rune(title)) > 200 {
		fields["title"] = "title must be at most 200 characters"
	}
	if strings.TrimSpace(req.Excerpt) == "" {
		fields["excerpt"] = "excerpt is required"
	} else if len([]rune(req.Excerpt)) > 500 {
		fields["excerpt"] = "excerpt must be at most 500 characters"
	}
	if strings.TrimSpace(req.Body) == "" {
		fields["body"] = "body is required"
	}
	if req.Status != "" && !models.ValidPostStatus(req.Status) {
		fields["status"] = "status must be draft, published or archived"
	}
	if strings.TrimSpace(req.CoverImage) == "" {
		fields["cover_image"] = "cover image is required"
	} else if len(req.CoverImage) > maxCoverImageBytes*2 {
		fields["cover_image"] = "cover image is too large"
	}
	var publishedAt time.Time
	if raw := strings.TrimSpace(req.PublishedAt); raw == "" {
		fields["published_at"] = "published date is required"
	} else {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fields["published_at"] = "published date must be an RFC 3339 timestamp"
		} else {
			publishedAt = parsed
		}
	}
	if rt := strings.TrimSpace(req.ReadingTime); rt == "" {
		fields["reading_time"] = "reading time label is required"
	} else if len([]rune(rt)) > 64 {
		fields["reading_time"] = "reading time label must be at most 64 characters"
	}
	if len(req.Categories) > 10 {
		fields["categories"] = "at most 10 categories are allowed"
	}
	for _, c := range req.Categories {
		if strings.TrimSpace(c) == "" {
			fields["categories"] = "categories cannot be empty"
			break
		}
	}
	return publishedAt, fields
}

// CreatePost creates an article owned by the authenticated user. The slug is
// derived from the title and disambiguated with a numeric suffix on
// collision; the author's post counter moves in the same transaction.
func (p *PostController) CreatePost(ctx *gin.Context) {
	userID := middleware.CurrentUserID(ctx)
	if userID == 0 {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var req postRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid request payload")
		return
	}
	publishedAt, fields := validatePostRequest(&req)
	if len(fields) > 0 {
		utils.FieldErrors(ctx, 40011, fields)
		return
	}

	var user models.User
	if err := p.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	status := req.Status
	if status == "" {
		status = models.PostStatusDraft
	}

	title := strings.TrimSpace(req.Title)
	baseSlug := utils.Slugify(title)
	slug, err := p.ensureUniqueSlug(baseSlug)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to derive slug")
		return
	}

	post := models.Post{
		UserID:       user.ID,
		Title:        title,
		Slug:         slug,
		Excerpt:      strings.TrimSpace(req.Excerpt),
		Body:         utils.Sanitize(req.Body),
		CoverImage:   strings.TrimSpace(req.CoverImage),
		Status:       status,
		PublishedAt:  publishedAt,
		ReadingTime:  strings.TrimSpace(req.ReadingTime),
		AuthorName:   user.DisplayName,
		AuthorAvatar: user.AvatarURL,
		Categories:   buildCategories(req.Categories),
	}

	if err := p.createWithUniqueSlug(&post, baseSlug); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to create post")
		return
	}

	utils.InvalidateByPrefix("cache:posts:")
	utils.InvalidateByPrefix("cache:categories")
	utils.InvalidateByPrefix("cache:author:" + strconv.Itoa(int(user.ID)))
	utils.InvalidateByPrefix("cache:authors:")

	utils.Success(ctx, post)
}

// UpdatePost modifies an article. Only the owner or an allow-listed admin may
// edit; the slug never changes after creation so shared links stay stable.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	post, ok := p.loadPostForWrite(ctx)
	if !ok {
		return
	}

	var req postRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid request payload")
		return
	}
	publishedAt, fields := validatePostRequest(&req)
	if len(fields) > 0 {
		utils.FieldErrors(ctx, 40011, fields)
		return
	}

	post.Title = strings.TrimSpace(req.Title)
	post.Excerpt = strings.TrimSpace(req.Excerpt)
	post.Body = utils.Sanitize(req.Body)
	post.CoverImage = strings.TrimSpace(req.CoverImage)
	post.PublishedAt = publishedAt
	post.ReadingTime = strings.TrimSpace(req.ReadingTime)
	if req.Status != "" {
		post.Status = req.Status
	}

	err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.PostCategory{}).Error; err != nil {
			return err
		}
		cats := buildCategories(req.Categories)
		for i := range cats {
			cats[i].PostID = post.ID
		}
		if len(cats) > 0 {
			if err := tx.Create(&cats).Error; err != nil {
				return err
			}
		}
		post.Categories = cats
		return tx.Model(&models.Post{}).Where("id = ?", post.ID).Updates(map[string]interface{}{
			"title":        post.Title,
			"excerpt":      post.Excerpt,
			"body":         post.Body,
			"cover_image":  post.CoverImage,
			"status":       post.Status,
			"published_at": post.PublishedAt,
			"reading_time": post.ReadingTime,
		}).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50012, "failed to update post")
		return
	}

	utils.InvalidateByPrefix("cache:posts:")
	utils.InvalidateByPrefix("cache:categories")

	utils.Success(ctx, post)
}

// DeletePost removes an article together with its categories and decrements
// the author's post counter in the same transaction.
func (p *PostController) DeletePost(ctx *gin.Context) {
	post, ok := p.loadPostForWrite(ctx)
	if !ok {
		return
	}

	err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.PostCategory{}).Error; err != nil {
			return err
		}
		if err := tx.Where("comment_id IN (?)", tx.Model(&models.Comment{}).
			Select("id").Where("post_id = ?", post.ID)).
			Delete(&models.CommentLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Post{}, post.ID).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ? AND post_count > 0", post.UserID).
			Update("post_count", gorm.Expr("post_count - 1")).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50013, "failed to delete post")
		return
	}

	utils.InvalidateByPrefix("cache:posts:")
	utils.InvalidateByPrefix("cache:categories")
	utils.InvalidateByPrefix("cache:author:" + strconv.Itoa(int(post.UserID)))
	utils.InvalidateByPrefix("cache:authors:")

	utils.Success(ctx, gin.H{"message": "post deleted"})
}

// ListPosts returns published articles with optional author and category
// filters. Drafts and archived posts never appear here regardless of filters.
func (p *PostController) ListPosts(ctx *gin.Context) {
	page, pageSize := paginationParams(ctx)
	author := strings.TrimSpace(ctx.Query("author"))
	category := strings.TrimSpace(ctx.Query("category"))

	cacheKey := fmt.Sprintf("cache:posts:list:%d:%d:%s:%s", page, pageSize, author, category)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	q := p.db.Model(&models.Post{}).Where("status = ?", models.PostStatusPublished)
	if author != "" {
		q = q.Where("user_id = ?", author)
	}
	if category != "" {
		q = q.Where("id IN (?)", p.db.Model(&models.PostCategory{}).
			Select("post_id").Where("slug = ?", utils.Slugify(category)))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50014, "failed to count posts")
		return
	}

	var posts []models.Post
	if err := q.Preload("Categories").
		Order("published_at DESC, id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50015, "failed to retrieve posts")
		return
	}

	data := gin.H{
		"items": posts,
		"pagination": gin.H{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	}
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: data}
	utils.CacheSetJSON(cacheKey, wrapper, 5*time.Minute)
	utils.Success(ctx, data)
}

// ListMyPosts returns every post of the authenticated user including drafts,
// optionally filtered by status.
func (p *PostController) ListMyPosts(ctx *gin.Context) {
	userID := middleware.CurrentUserID(ctx)
	if userID == 0 {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	page, pageSize := paginationParams(ctx)

	q := p.db.Model(&models.Post{}).Where("user_id = ?", userID)
	if status := strings.TrimSpace(ctx.Query("status")); status != "" {
		if !models.ValidPostStatus(status) {
			utils.Error(ctx, http.StatusBadRequest, 40012, "unknown status filter")
			return
		}
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50014, "failed to count posts")
		return
	}

	var posts []models.Post
	if err := q.Preload("Categories").
		Order("updated_at DESC, id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50015, "failed to retrieve posts")
		return
	}

	utils.Success(ctx, gin.H{
		"items": posts,
		"pagination": gin.H{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	})
}

// GetPost returns one article by numeric ID or slug. Non-published posts are
// only visible to their owner or an admin.
func (p *PostController) GetPost(ctx *gin.Context) {
	post, found := p.findPostByRef(ctx.Param("ref"))
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

	utils.Success(ctx, post)
}

// ListCategories returns the derived category index: distinct categories of
// published posts with their usage counts. Categories have no table of their
// own; they always reflect what posts currently declare.
func (p *PostController) ListCategories(ctx *gin.Context) {
	if b, ok := utils.CacheGetBytes("cache:categories"); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	type categoryRow struct {
		Name  string `json:"name"`
		Slug  string `json:"slug"`
		Count int64  `json:"count"`
	}
	var rows []categoryRow
	err := p.db.Model(&models.PostCategory{}).
		Select("post_categories.name AS name, post_categories.slug AS slug, COUNT(*) AS count").
		Joins("JOIN posts ON posts.id = post_categories.post_id").
		Where("posts.status = ?", models.PostStatusPublished).
		Group("post_categories.slug, post_categories.name").
		Order("count DESC, slug ASC").
		Scan(&rows).Error
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50016, "failed to derive categories")
		return
	}

	data := gin.H{"items": rows}
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: data}
	utils.CacheSetJSON("cache:categories", wrapper, 10*time.Minute)
	utils.Success(ctx, data)
}

// UploadCover accepts a small image upload and returns it as an inline data
// URI for use as a post cover.
func (p *PostController) UploadCover(ctx *gin.Context) {
	file, header, err := ctx.Request.FormFile("file")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40013, "missing file")
		return
	}
	defer file.Close()

	if header.Size > maxCoverImageBytes {
		utils.Error(ctx, http.StatusBadRequest, 40014, "cover image must be at most 100KB")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxCoverImageBytes+1))
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50017, "failed to read upload")
		return
	}
	if len(data) > maxCoverImageBytes {
		utils.Error(ctx, http.StatusBadRequest, 40014, "cover image must be at most 100KB")
		return
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		utils.Error(ctx, http.StatusBadRequest, 40015, "only image uploads are accepted")
		return
	}

	uri := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
	utils.Success(ctx, gin.H{"cover_image": uri})
}

// loadPostForWrite fetches the post named in the route and checks the caller
// owns it or is an admin. Writes are authorized on the server regardless of
// what the client UI shows.
func (p *PostController) loadPostForWrite(ctx *gin.Context) (*models.Post, bool) {
	userID := middleware.CurrentUserID(ctx)
	if userID == 0 {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return nil, false
	}

	post, found := p.findPostByRef(ctx.Param("ref"))
	if !found {
		utils.Error(ctx, http.StatusNotFound, 40420, "post not found")
		return nil, false
	}

	if post.UserID != userID && !middleware.IsAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40301, "permission denied")
		return nil, false
	}
	return post, true
}

// findPostByRef resolves a route parameter that may be a numeric ID or a slug.
func (p *PostController) findPostByRef(ref string) (*models.Post, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, false
	}

	var post models.Post
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		if err := p.db.Preload("Categories").First(&post, id).Error; err == nil {
			return &post, true
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false
		}
	}
	if err := p.db.Preload("Categories").Where("slug = ?", ref).First(&post).Error; err != nil {
		return nil, false
	}
	return &post, true
}

// createWithUniqueSlug inserts the post and bumps the author's post counter in
// one transaction. When a concurrent create wins the slug between the
// availability check and the insert, the unique index rejects the row; retry
// with the next free suffix instead of failing the request.
func (p *PostController) createWithUniqueSlug(post *models.Post, base string) error {
	for attempt := 0; attempt < 5; attempt++ {
		err := p.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(post).Error; err != nil {
				return err
			}
			return tx.Model(&models.User{}).
				Where("id = ?", post.UserID).
				Update("post_count", gorm.Expr("post_count + 1")).Error
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		next, slugErr := p.ensureUniqueSlug(base)
		if slugErr != nil {
			return slugErr
		}
		post.ID = 0
		for i := range post.Categories {
			post.Categories[i].ID = 0
			post.Categories[i].PostID = 0
		}
		post.Slug = next
	}
	return gorm.ErrDuplicatedKey
}

// ensureUniqueSlug appends a numeric suffix until the slug is free.
func (p *PostController) ensureUniqueSlug(base string) (string, error) {
	if base == "" {
		base = "post"
	}
	candidate := base
	suffix := 2
	for {
		var count int64
		if err := p.db.Model(&models.Post{}).Where("slug = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, suffix)
		suffix++
	}
}

func buildCategories(names []string) []models.PostCategory {
	out := make([]models.PostCategory, 0, len(names))
	seen := map[string]bool{}
	for i, name := range names {
		name = strings.TrimSpace(name)
		slug := utils.Slugify(name)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		out = append(out, models.PostCategory{
			Position: i,
			Name:     name,
			Slug:     slug,
		})
	}
	return out
}

func paginationParams(ctx *gin.Context) (int, int) {
	page, pageSize := 1, 10
	if v := strings.TrimSpace(ctx.Query("page")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := strings.TrimSpace(ctx.Query("page_size")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			pageSize = n
		}
	}
	return page, pageSize
}

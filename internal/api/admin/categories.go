// categories.go implements CRUD handlers for news and podcast categories. Every
// successful mutation is recorded in the activity log.
package admin

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/radiowave/station-backend/internal/audit"
	"github.com/radiowave/station-backend/internal/db/models"
	"github.com/radiowave/station-backend/internal/db/repositories"
	"github.com/radiowave/station-backend/internal/middleware"
)

// CategoryHandlers handles category management endpoints
type CategoryHandlers struct {
	repo     *repositories.CategoryRepository
	recorder *audit.Recorder
}

// NewCategoryHandlers creates a new CategoryHandlers instance
func NewCategoryHandlers(db *sqlx.DB, recorder *audit.Recorder) *CategoryHandlers {
	return &CategoryHandlers{
		repo:     repositories.NewCategoryRepository(db),
		recorder: recorder,
	}
}

// CreateCategoryRequest represents the request to create a category
type CreateCategoryRequest struct {
	Kind        string  `json:"kind" binding:"required,category_kind"`
	Name        string  `json:"name" binding:"required,max=100"`
	Slug        string  `json:"slug" binding:"omitempty,max=100"`
	Description *string `json:"description" binding:"omitempty,max=500"`
}

// UpdateCategoryRequest represents a partial category update
type UpdateCategoryRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=100"`
	Slug        *string `json:"slug" binding:"omitempty,min=1,max=100"`
	Description *string `json:"description" binding:"omitempty,max=500"`
}

func categoryID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category id"})
		return 0, false
	}
	return id, true
}

// ListCategoriesHandler lists categories, optionally of one kind
// GET /api/v1/categories?kind=news|podcast
func (h *CategoryHandlers) ListCategoriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		kind := c.Query("kind")
		if kind != "" && kind != models.CategoryKindNews && kind != models.CategoryKindPodcast {
			c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be news or podcast"})
			return
		}

		categories, err := h.repo.ListCategories(c.Request.Context(), kind)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list categories"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"categories": categories})
	}
}

// GetCategoryHandler retrieves a category
// GET /api/v1/categories/:id
func (h *CategoryHandlers) GetCategoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := categoryID(c)
		if !ok {
			return
		}

		category, err := h.repo.GetCategory(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve category"})
			return
		}
		if category == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"category": category})
	}
}

// CreateCategoryHandler creates a category
// POST /api/v1/categories
func (h *CategoryHandlers) CreateCategoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.MarkAudited(c)

		var req CreateCategoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		category := &models.Category{
			Kind:        req.Kind,
			Name:        strings.TrimSpace(req.Name),
			Slug:        req.Slug,
			Description: req.Description,
		}
		if category.Slug == "" {
			category.Slug = slugify(category.Name)
		}

		if err := h.repo.CreateCategory(c.Request.Context(), category); err != nil {
			slog.Error("failed to create category", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create category"})
			return
		}

		h.recorder.Record(c.Request.Context(), middleware.AuditEntry(c, models.ActionCreate, category.EntityType(), &category.ID, map[string]any{
			"name": category.Name,
			"slug": category.Slug,
		}))

		c.JSON(http.StatusCreated, gin.H{"category": category})
	}
}

// UpdateCategoryHandler applies a partial update
// PUT /api/v1/categories/:id
func (h *CategoryHandlers) UpdateCategoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.MarkAudited(c)

		id, ok := categoryID(c)
		if !ok {
			return
		}

		var req UpdateCategoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		category, err := h.repo.GetCategory(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve category"})
			return
		}
		if category == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
			return
		}

		before := categoryFields(category)
		if req.Name != nil {
			category.Name = strings.TrimSpace(*req.Name)
		}
		if req.Slug != nil {
			category.Slug = *req.Slug
		}
		if req.Description != nil {
			category.Description = req.Description
		}
		changes := audit.DiffChanges([]string{"name", "slug", "description"}, before, categoryFields(category))

		found, err := h.repo.UpdateCategory(c.Request.Context(), category)
		if err != nil {
			slog.Error("failed to update category", "category_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update category"})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
			return
		}

		h.recorder.Record(c.Request.Context(), middleware.AuditEntry(c, models.ActionUpdate, category.EntityType(), &category.ID, map[string]any{
			"name":    category.Name,
			"changes": changes,
		}))

		c.JSON(http.StatusOK, gin.H{"category": category})
	}
}

// DeleteCategoryHandler removes a category
// DELETE /api/v1/categories/:id
func (h *CategoryHandlers) DeleteCategoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.MarkAudited(c)

		id, ok := categoryID(c)
		if !ok {
			return
		}

		category, err := h.repo.GetCategory(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve category"})
			return
		}
		if category == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
			return
		}

		deleted, err := h.repo.DeleteCategory(c.Request.Context(), id)
		if err != nil {
			slog.Error("failed to delete category", "category_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete category"})
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
			return
		}

		h.recorder.Record(c.Request.Context(), middleware.AuditEntry(c, models.ActionDelete, category.EntityType(), &category.ID, map[string]any{
			"name": category.Name,
		}))

		c.JSON(http.StatusOK, gin.H{"message": "Category deleted successfully"})
	}
}

func categoryFields(c *models.Category) map[string]any {
	var description any
	if c.Description != nil {
		description = *c.Description
	}
	return map[string]any{
		"name":        c.Name,
		"slug":        c.Slug,
		"description": description,
	}
}

// slugify lowercases s and joins its letter/digit runs with single hyphens
func slugify(s string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

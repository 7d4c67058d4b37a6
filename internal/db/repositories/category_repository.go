// category_repository.go implements CategoryRepository for news and podcast categories.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/radiowave/station-backend/internal/db/models"
)

// CategoryRepository handles category database operations
type CategoryRepository struct {
	db *sqlx.DB
}

// NewCategoryRepository creates a new CategoryRepository
func NewCategoryRepository(db *sqlx.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

const categoryColumns = `category_id, kind, name, slug, description, created_at, updated_at`

// CreateCategory inserts a category and fills in the generated id and timestamps
func (r *CategoryRepository) CreateCategory(ctx context.Context, c *models.Category) error {
	query := `
		INSERT INTO categories (kind, name, slug, description)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + categoryColumns

	if err := r.db.QueryRowxContext(ctx, query, c.Kind, c.Name, c.Slug, c.Description).StructScan(c); err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// GetCategory retrieves a category by id, or nil when absent
func (r *CategoryRepository) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	c := &models.Category{}
	err := r.db.GetContext(ctx, c, `SELECT `+categoryColumns+` FROM categories WHERE category_id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return c, nil
}

// ListCategories returns categories of one kind, or all kinds when kind is empty, ordered by name
func (r *CategoryRepository) ListCategories(ctx context.Context, kind string) ([]*models.Category, error) {
	p := &predicate{}
	if kind != "" {
		p.add("kind = $%d", kind)
	}
	categories := make([]*models.Category, 0)
	query := `SELECT ` + categoryColumns + ` FROM categories` + p.where() + ` ORDER BY name ASC, category_id ASC`
	if err := r.db.SelectContext(ctx, &categories, query, p.args...); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// UpdateCategory writes name, slug and description and refreshes updated_at.
// It returns false when the category does not exist.
func (r *CategoryRepository) UpdateCategory(ctx context.Context, c *models.Category) (bool, error) {
	query := `
		UPDATE categories
		SET name = $2, slug = $3, description = $4, updated_at = NOW()
		WHERE category_id = $1
		RETURNING ` + categoryColumns

	err := r.db.QueryRowxContext(ctx, query, c.ID, c.Name, c.Slug, c.Description).StructScan(c)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to update category: %w", err)
	}
	return true, nil
}

// DeleteCategory removes a category. It returns false when nothing was deleted.
func (r *CategoryRepository) DeleteCategory(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE category_id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete category: %w", err)
	}
	return n > 0, nil
}

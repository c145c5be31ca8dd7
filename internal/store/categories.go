package store

import (
	"context"
	"database/sql"

	"shop-service/internal/models"
)

// ListCategories retrieves all categories, newest first
func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.db.SelectContext(ctx, &categories,
		"SELECT * FROM categories ORDER BY created_at DESC")
	return categories, err
}

// GetCategoryByID retrieves a category by ID
func (s *Store) GetCategoryByID(ctx context.Context, id int64) (*models.Category, error) {
	var c models.Category
	err := s.db.GetContext(ctx, &c, "SELECT * FROM categories WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCategory inserts a category and fills in its generated fields
func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	return s.db.GetContext(ctx, c, `
		INSERT INTO categories (name, description)
		VALUES ($1, $2)
		RETURNING id, created_at`,
		c.Name, c.Description)
}

// UpdateCategory updates a category and returns the updated row
func (s *Store) UpdateCategory(ctx context.Context, c *models.Category) (*models.Category, error) {
	var updated models.Category
	err := s.db.GetContext(ctx, &updated, `
		UPDATE categories
		SET name        = COALESCE(NULLIF($2, ''), name),
		    description = COALESCE(NULLIF($3, ''), description)
		WHERE id = $1
		RETURNING *`,
		c.ID, c.Name, c.Description)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteCategory removes a category
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM categories WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

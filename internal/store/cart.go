package store

import (
	"context"

	"shop-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetCart retrieves a user's cart lines joined with their products,
// newest first.
func (s *Store) GetCart(ctx context.Context, userID int64) ([]models.CartEntry, error) {
	var entries []models.CartEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT c.id, c.user_id, c.product_id, c.quantity, c.created_at,
		       p.name  AS product_name,
		       p.price AS product_price,
		       p.stock AS product_stock,
		       p.image AS product_image
		FROM cart c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.created_at DESC`, userID)
	return entries, err
}

// UpsertCartLine adds a product to a cart. An existing (user, product)
// line gets its quantity incremented instead of a second row.
func (s *Store) UpsertCartLine(ctx context.Context, userID, productID int64, quantity int) (*models.CartLine, error) {
	var line models.CartLine
	err := s.db.GetContext(ctx, &line, `
		INSERT INTO cart (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart.quantity + EXCLUDED.quantity
		RETURNING *`,
		userID, productID, quantity)
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// RemoveCartLine deletes one (user, product) line
func (s *Store) RemoveCartLine(ctx context.Context, userID, productID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart WHERE user_id = $1 AND product_id = $2", userID, productID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearCart removes every line of a user's cart
func (s *Store) ClearCart(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart WHERE user_id = $1", userID)
	return err
}

// RemoveCartLinesForProducts deletes the user's lines for the given
// products. Used by checkout to drop purchased items from the cart.
func (s *Store) RemoveCartLinesForProducts(ctx context.Context, userID int64, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In(
		"DELETE FROM cart WHERE user_id = ? AND product_id IN (?)", userID, productIDs)
	if err != nil {
		return err
	}
	query = s.db.Rebind(query)

	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// CountCartLines counts a user's cart lines
func (s *Store) CountCartLines(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM cart WHERE user_id = $1", userID)
	return count, err
}

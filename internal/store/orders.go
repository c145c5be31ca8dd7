package store

import (
	"context"
	"database/sql"
	"fmt"

	"shop-service/internal/models"
)

// CreateOrderTx persists an order header, its items, and the matching
// stock decrements in a single transaction. Every decrement is
// conditional on sufficient stock; a conflict on any line rolls back
// the whole order and surfaces as *StockConflictError. On success the
// order's generated fields are filled in and the remaining stock per
// product is returned so callers can detect sold-out products.
func (s *Store) CreateOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem) (map[int64]int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin checkout: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (user_id, shipping_address, total_amount, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	if err := tx.GetContext(ctx, order, query,
		order.UserID, order.ShippingAddress, order.TotalAmount, order.Status, order.IdempotencyKey); err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	remaining := make(map[int64]int, len(items))
	for i := range items {
		items[i].OrderID = order.ID

		if err := tx.GetContext(ctx, &items[i].ID, `
			INSERT INTO order_items (order_id, product_id, product_name, price, quantity)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			items[i].OrderID, items[i].ProductID, items[i].ProductName, items[i].Price, items[i].Quantity); err != nil {
			return nil, fmt.Errorf("failed to insert order item for product %d: %w", items[i].ProductID, err)
		}

		left, err := decrementStock(ctx, tx, items[i].ProductID, items[i].Quantity)
		if err != nil {
			return nil, err
		}
		remaining[items[i].ProductID] = left
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit checkout: %w", err)
	}
	return remaining, nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey returns nil without error when the key is unseen.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders retrieves all orders, newest first
func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, "SELECT * FROM orders ORDER BY created_at DESC")
	return orders, err
}

// GetOrdersByUserID retrieves orders for a user, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// CountOrdersByUserAndStatus counts a user's orders in a given status
func (s *Store) CountOrdersByUserAndStatus(ctx context.Context, userID int64, status string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status = $2", userID, status)
	return count, err
}

// UpdateOrderStatus updates order status and returns the updated row
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING *",
		status, orderID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// DeleteOrder removes an order and its items
func (s *Store) DeleteOrder(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM order_items WHERE order_id = $1", id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

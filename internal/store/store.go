package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shop-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("not found")

// StockConflictError is returned by the checkout transaction when the
// conditional decrement affects zero rows, meaning another order drained
// the stock between validation and commit.
type StockConflictError struct {
	ProductID int64
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d", e.ProductID)
}

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// ProductFilter narrows the product listing.
type ProductFilter struct {
	Name       string
	CategoryID int64
	Limit      int
	Offset     int
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves products matching the filter, newest first.
// An empty name matches everything; a zero category matches all categories.
func (s *Store) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var products []models.Product
	err := s.db.SelectContext(ctx, &products, `
		SELECT * FROM products
		WHERE ($1 = '' OR name ILIKE '%'||$1||'%')
		  AND ($2 = 0 OR category_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		f.Name, f.CategoryID, limit, offset)
	return products, err
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// CreateProduct inserts a product and fills in its generated fields.
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (name, description, price, stock, category_id, image)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, p, query,
		p.Name, p.Description, p.Price, p.Stock, p.CategoryID, p.Image)
}

// UpdateProduct applies a partial update; empty strings and nil values
// leave the current column untouched.
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product, updatePrice, updateStock bool) (*models.Product, error) {
	var price interface{}
	if updatePrice {
		price = p.Price
	}
	var stock interface{}
	if updateStock {
		stock = p.Stock
	}

	var updated models.Product
	err := s.db.GetContext(ctx, &updated, `
		UPDATE products
		SET name        = COALESCE(NULLIF($2, ''), name),
		    description = COALESCE(NULLIF($3, ''), description),
		    price       = COALESCE($4, price),
		    stock       = COALESCE($5, stock),
		    category_id = COALESCE($6, category_id),
		    image       = COALESCE($7, image),
		    updated_at  = NOW()
		WHERE id = $1
		RETURNING *`,
		p.ID, p.Name, p.Description, price, stock, p.CategoryID, p.Image)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteProduct removes a product
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// decrementStock runs the conditional decrement inside tx. Zero rows
// affected means the remaining stock is below qty.
func decrementStock(ctx context.Context, tx *sqlx.Tx, productID int64, qty int) (remaining int, err error) {
	err = tx.GetContext(ctx, &remaining, `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
		RETURNING stock`,
		productID, qty)
	if err == sql.ErrNoRows {
		return 0, &StockConflictError{ProductID: productID}
	}
	return remaining, err
}

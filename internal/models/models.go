package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog entry. Price is NUMERIC in Postgres.
type Product struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description,omitempty"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Stock       int             `db:"stock" json:"stock"`
	CategoryID  *int64          `db:"category_id" json:"category_id,omitempty"`
	Image       *string         `db:"image" json:"image,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Category groups products
type Category struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// User represents an account. PasswordHash never leaves the service layer.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// CartLine is one (user, product) pair in a cart. The pair is unique.
type CartLine struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CartEntry is a cart line joined with its product for display.
type CartEntry struct {
	CartLine
	ProductName  string          `db:"product_name" json:"product_name"`
	ProductPrice decimal.Decimal `db:"product_price" json:"product_price"`
	ProductStock int             `db:"product_stock" json:"product_stock"`
	ProductImage *string         `db:"product_image" json:"product_image,omitempty"`
}

// Order represents a customer order header
type Order struct {
	ID              int64           `db:"id" json:"id"`
	UserID          int64           `db:"user_id" json:"user_id"`
	ShippingAddress string          `db:"shipping_address" json:"shipping_address"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status          string          `db:"status" json:"status"`
	IdempotencyKey  *string         `db:"idempotency_key" json:"-"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem is one purchased line. Name and price are snapshotted at
// purchase time and must not change when the product record changes.
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Quantity    int             `db:"quantity" json:"quantity"`
}

// OrderItemView is an order item with the product's current image attached,
// used by the per-user order listing.
type OrderItemView struct {
	OrderItem
	Image *string `json:"image"`
}

// OrderWithItems is the shape returned by the per-user order listing.
type OrderWithItems struct {
	Order
	Items []OrderItemView `json:"items"`
}

// Order statuses. "pending" is the only status the checkout flow writes;
// the rest are driven by the status-update endpoint.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

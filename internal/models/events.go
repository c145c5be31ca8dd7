package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeStockDepleted      = "STOCK_DEPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderLineData is the per-line payload carried by order events.
type OrderLineData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderPlacedEvent published after a checkout transaction commits
type OrderPlacedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	UserID      int64           `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderLineData `json:"items"`
}

// OrderStatusChangedEvent published when an order moves to a new status
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

// StockDepletedEvent published when a checkout drains a product to zero
type StockDepletedEvent struct {
	BaseEvent
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderStore is the persistence surface the order workflow needs.
// *store.Store satisfies it.
type OrderStore interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	CreateOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem) (map[int64]int, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	CountOrdersByUserAndStatus(ctx context.Context, userID int64, status string) (int, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*models.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	RemoveCartLinesForProducts(ctx context.Context, userID int64, productIDs []int64) error
}

// OrderCache is the cache surface the order workflow invalidates.
type OrderCache interface {
	InvalidateProducts(ctx context.Context, ids []int64) error
	InvalidateCartCount(ctx context.Context, userID int64) error
}

// OrderEvents publishes order domain events.
type OrderEvents interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishStockDepleted(ctx context.Context, event *models.StockDepletedEvent) error
}

// OrderService handles order business logic
type OrderService struct {
	store  OrderStore
	cache  OrderCache
	events OrderEvents
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store OrderStore, cache OrderCache, events OrderEvents) *OrderService {
	return &OrderService{
		store:  store,
		cache:  cache,
		events: events,
		logger: util.GetLogger(),
	}
}

// PlaceOrderRequest represents a checkout request
type PlaceOrderRequest struct {
	UserID          int64              `json:"user_id" binding:"required"`
	ShippingAddress string             `json:"shipping_address" binding:"required"`
	Items           []OrderLineRequest `json:"items"`
	IdempotencyKey  string             `json:"idempotency_key,omitempty"`
}

// OrderLineRequest is one (product, quantity) pair in a checkout request
type OrderLineRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required"`
}

// PlaceOrder validates the requested lines against the catalog, snapshots
// prices, and persists the order header, its items, and the stock
// decrements in one transaction. Validation failures leave no writes
// behind; a stock conflict detected at commit time rolls the whole order
// back. Cart cleanup, cache invalidation, and event publishing run after
// the commit and are best effort.
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	existing, err := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing != nil {
		s.logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("order_id", existing.ID))
		return existing, nil
	}

	products, err := s.validateLines(ctx, req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	total := decimal.Zero
	items := make([]models.OrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		product := products[line.ProductID]
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		items = append(items, models.OrderItem{
			ProductID:   line.ProductID,
			ProductName: product.Name,
			Price:       product.Price,
			Quantity:    line.Quantity,
		})
	}

	order := &models.Order{
		UserID:          req.UserID,
		ShippingAddress: req.ShippingAddress,
		TotalAmount:     total,
		Status:          models.OrderStatusPending,
		IdempotencyKey:  &req.IdempotencyKey,
	}

	start := time.Now()
	remaining, err := s.store.CreateOrderTx(ctx, order, items)
	util.CheckoutLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		var conflict *store.StockConflictError
		if errors.As(err, &conflict) {
			util.OrdersFailedTotal.WithLabelValues("stock_conflict").Inc()
			name := ""
			if p, ok := products[conflict.ProductID]; ok {
				name = p.Name
			}
			return nil, &InsufficientStockError{ProductID: conflict.ProductID, Name: name}
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("checkout failed: %w", err)
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.String("total", order.TotalAmount.String()))

	s.finishCheckout(ctx, order, items, products, remaining)

	return order, nil
}

// validateLines checks the requested lines against current catalog state.
// It returns the products keyed by id so the pricing pass reuses the
// same reads.
func (s *OrderService) validateLines(ctx context.Context, lines []OrderLineRequest) (map[int64]*models.Product, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}

	productIDs := make([]int64, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
		productIDs = append(productIDs, line.ProductID)
	}

	products, err := s.store.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	productMap := make(map[int64]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	for _, line := range lines {
		product, ok := productMap[line.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		if line.Quantity > product.Stock {
			return nil, &InsufficientStockError{ProductID: product.ID, Name: product.Name}
		}
	}

	return productMap, nil
}

// finishCheckout runs the post-commit steps. The order is already
// durable; failures here are logged and counted, never surfaced.
func (s *OrderService) finishCheckout(
	ctx context.Context,
	order *models.Order,
	items []models.OrderItem,
	products map[int64]*models.Product,
	remaining map[int64]int,
) {
	productIDs := make([]int64, len(items))
	eventLines := make([]models.OrderLineData, len(items))
	for i, it := range items {
		productIDs[i] = it.ProductID
		eventLines[i] = models.OrderLineData{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
		}
	}

	if err := s.store.RemoveCartLinesForProducts(ctx, order.UserID, productIDs); err != nil {
		util.CheckoutCleanupFailures.WithLabelValues("cart").Inc()
		s.logger.Error("Failed to clear purchased cart lines",
			zap.Int64("order_id", order.ID), zap.Error(err))
	}

	if err := s.cache.InvalidateProducts(ctx, productIDs); err != nil {
		util.CheckoutCleanupFailures.WithLabelValues("cache").Inc()
		s.logger.Warn("Failed to invalidate product cache", zap.Error(err))
	}
	if err := s.cache.InvalidateCartCount(ctx, order.UserID); err != nil {
		util.CheckoutCleanupFailures.WithLabelValues("cache").Inc()
		s.logger.Warn("Failed to invalidate cart count", zap.Error(err))
	}

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       eventLines,
	}
	if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
		util.CheckoutCleanupFailures.WithLabelValues("publish").Inc()
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}

	for id, left := range remaining {
		if left > 0 {
			continue
		}
		util.ProductsSoldOutTotal.Inc()
		name := ""
		if p, ok := products[id]; ok {
			name = p.Name
		}
		depleted := &models.StockDepletedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeStockDepleted,
				Timestamp: time.Now(),
			},
			ProductID: id,
			Name:      name,
		}
		if err := s.events.PublishStockDepleted(ctx, depleted); err != nil {
			s.logger.Warn("Failed to publish StockDepleted event",
				zap.Int64("product_id", id), zap.Error(err))
		}
	}
}

// GetOrder retrieves an order header and its items
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

// ListOrders retrieves all orders, newest first
func (s *OrderService) ListOrders(ctx context.Context) ([]models.Order, error) {
	return s.store.ListOrders(ctx)
}

// ListOrdersByUser retrieves a user's orders with their items embedded.
// Each item carries the product's current image when the product still
// exists; items of deleted products come back without one.
func (s *OrderService) ListOrdersByUser(ctx context.Context, userID int64) ([]models.OrderWithItems, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrdersByUser")
	defer span.End()

	orders, err := s.store.GetOrdersByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]models.OrderWithItems, 0, len(orders))
	var productIDs []int64
	itemsByOrder := make(map[int64][]models.OrderItem, len(orders))

	for _, o := range orders {
		items, err := s.store.GetOrderItemsByOrderID(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		itemsByOrder[o.ID] = items
		for _, it := range items {
			productIDs = append(productIDs, it.ProductID)
		}
	}

	images := make(map[int64]*string)
	if len(productIDs) > 0 {
		products, err := s.store.GetProductsByIDs(ctx, productIDs)
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			images[p.ID] = p.Image
		}
	}

	for _, o := range orders {
		views := make([]models.OrderItemView, 0, len(itemsByOrder[o.ID]))
		for _, it := range itemsByOrder[o.ID] {
			views = append(views, models.OrderItemView{
				OrderItem: it,
				Image:     images[it.ProductID],
			})
		}
		out = append(out, models.OrderWithItems{Order: o, Items: views})
	}

	return out, nil
}

// CountPendingOrders counts a user's pending orders
func (s *OrderService) CountPendingOrders(ctx context.Context, userID int64) (int, error) {
	return s.store.CountOrdersByUserAndStatus(ctx, userID, models.OrderStatusPending)
}

// UpdateStatus moves an order to a new status and publishes the change
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, status string) (*models.Order, error) {
	order, err := s.store.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		return nil, err
	}

	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		Status:  order.Status,
	}
	if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event",
			zap.Int64("order_id", order.ID), zap.Error(err))
	}

	return order, nil
}

// DeleteOrder removes an order and its items
func (s *OrderService) DeleteOrder(ctx context.Context, orderID int64) error {
	return s.store.DeleteOrder(ctx, orderID)
}

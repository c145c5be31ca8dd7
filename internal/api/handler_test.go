package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shop-service/internal/auth"
	"shop-service/internal/models"
	"shop-service/internal/service"
	"shop-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubOrderStore backs the order endpoints with a single in-memory
// product and no persisted orders.
type stubOrderStore struct {
	product models.Product
	orders  map[int64]*models.Order
	nextID  int64
}

func newStubOrderStore() *stubOrderStore {
	return &stubOrderStore{
		product: models.Product{
			ID:    1,
			Name:  "Widget",
			Price: decimal.RequireFromString("10.00"),
			Stock: 5,
		},
		orders: make(map[int64]*models.Order),
		nextID: 1,
	}
}

func (s *stubOrderStore) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	var out []models.Product
	for _, id := range ids {
		if id == s.product.ID {
			out = append(out, s.product)
		}
	}
	return out, nil
}

func (s *stubOrderStore) CreateOrderTx(_ context.Context, order *models.Order, items []models.OrderItem) (map[int64]int, error) {
	order.ID = s.nextID
	s.nextID++
	s.orders[order.ID] = order

	remaining := make(map[int64]int)
	for _, it := range items {
		s.product.Stock -= it.Quantity
		remaining[it.ProductID] = s.product.Stock
	}
	return remaining, nil
}

func (s *stubOrderStore) GetOrderByIdempotencyKey(_ context.Context, _ string) (*models.Order, error) {
	return nil, nil
}

func (s *stubOrderStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return o, nil
}

func (s *stubOrderStore) ListOrders(_ context.Context) ([]models.Order, error) { return nil, nil }
func (s *stubOrderStore) GetOrdersByUserID(_ context.Context, _ int64) ([]models.Order, error) {
	return nil, nil
}
func (s *stubOrderStore) CountOrdersByUserAndStatus(_ context.Context, _ int64, _ string) (int, error) {
	return 0, nil
}
func (s *stubOrderStore) UpdateOrderStatus(_ context.Context, _ int64, _ string) (*models.Order, error) {
	return nil, store.ErrNotFound
}
func (s *stubOrderStore) DeleteOrder(_ context.Context, _ int64) error { return nil }
func (s *stubOrderStore) GetOrderItemsByOrderID(_ context.Context, _ int64) ([]models.OrderItem, error) {
	return nil, nil
}
func (s *stubOrderStore) RemoveCartLinesForProducts(_ context.Context, _ int64, _ []int64) error {
	return nil
}

type noopCache struct{}

func (noopCache) InvalidateProducts(_ context.Context, _ []int64) error { return nil }
func (noopCache) InvalidateCartCount(_ context.Context, _ int64) error  { return nil }

type noopEvents struct{}

func (noopEvents) PublishOrderPlaced(_ context.Context, _ *models.OrderPlacedEvent) error { return nil }
func (noopEvents) PublishOrderStatusChanged(_ context.Context, _ *models.OrderStatusChangedEvent) error {
	return nil
}
func (noopEvents) PublishStockDepleted(_ context.Context, _ *models.StockDepletedEvent) error {
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *auth.TokenManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	orders := service.NewOrderService(newStubOrderStore(), noopCache{}, noopEvents{})

	handler := NewHandler(nil, nil, nil, orders, tokens)
	router := gin.New()
	handler.SetupRoutes(router)
	return router, tokens
}

func TestPlaceOrderEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"user_id": 42, "shipping_address": "1 Main St", "items": [{"product_id": 1, "quantity": 2}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Order   struct {
			ID          int64  `json:"id"`
			TotalAmount string `json:"total_amount"`
			Status      string `json:"status"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, models.OrderStatusPending, resp.Order.Status)
	assert.Equal(t, "20", resp.Order.TotalAmount)
}

func TestPlaceOrderEndpointEmptyItems(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"user_id": 42, "shipping_address": "1 Main St", "items": []}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestPlaceOrderEndpointInsufficientStock(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"user_id": 42, "shipping_address": "1 Main St", "items": [{"product_id": 1, "quantity": 10}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient stock")
}

func TestPlaceOrderEndpointUnknownProduct(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"user_id": 42, "shipping_address": "1 Main St", "items": [{"product_id": 99, "quantity": 1}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	router, tokens := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	token, err := tokens.Issue(&models.User{ID: 1, Email: "a@b.c"})
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

package service

import (
	"context"
	"errors"
	"fmt"

	"shop-service/internal/models"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"go.uber.org/zap"
)

// CartStore is the persistence surface for carts.
type CartStore interface {
	GetCart(ctx context.Context, userID int64) ([]models.CartEntry, error)
	UpsertCartLine(ctx context.Context, userID, productID int64, quantity int) (*models.CartLine, error)
	RemoveCartLine(ctx context.Context, userID, productID int64) error
	ClearCart(ctx context.Context, userID int64) error
	CountCartLines(ctx context.Context, userID int64) (int, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
}

// CartCache caches cart counts.
type CartCache interface {
	GetCartCount(ctx context.Context, userID int64) (int, bool, error)
	SetCartCount(ctx context.Context, userID int64, count int) error
	InvalidateCartCount(ctx context.Context, userID int64) error
}

// CartService handles cart operations
type CartService struct {
	store  CartStore
	cache  CartCache
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store CartStore, cache CartCache) *CartService {
	return &CartService{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// GetCart returns a user's cart lines with product data attached
func (s *CartService) GetCart(ctx context.Context, userID int64) ([]models.CartEntry, error) {
	return s.store.GetCart(ctx, userID)
}

// AddToCart adds a product to the cart. Adding a product already in the
// cart increments the existing line's quantity.
func (s *CartService) AddToCart(ctx context.Context, userID, productID int64, quantity int) (*models.CartLine, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddToCart")
	defer span.End()

	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &ProductNotFoundError{ProductID: productID}
		}
		return nil, err
	}

	line, err := s.store.UpsertCartLine(ctx, userID, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to add to cart: %w", err)
	}

	util.CartMutationsTotal.WithLabelValues("add").Inc()
	s.invalidateCount(ctx, userID)
	return line, nil
}

// RemoveFromCart deletes one (user, product) line
func (s *CartService) RemoveFromCart(ctx context.Context, userID, productID int64) error {
	if err := s.store.RemoveCartLine(ctx, userID, productID); err != nil {
		return err
	}
	util.CartMutationsTotal.WithLabelValues("remove").Inc()
	s.invalidateCount(ctx, userID)
	return nil
}

// ClearCart empties a user's cart
func (s *CartService) ClearCart(ctx context.Context, userID int64) error {
	if err := s.store.ClearCart(ctx, userID); err != nil {
		return err
	}
	util.CartMutationsTotal.WithLabelValues("clear").Inc()
	s.invalidateCount(ctx, userID)
	return nil
}

// CountCart returns the number of lines in a user's cart, served from
// cache when possible
func (s *CartService) CountCart(ctx context.Context, userID int64) (int, error) {
	count, hit, err := s.cache.GetCartCount(ctx, userID)
	if err != nil {
		s.logger.Warn("Cart count cache read failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	if hit {
		util.CacheRequestsTotal.WithLabelValues("cart_count", "hit").Inc()
		return count, nil
	}
	util.CacheRequestsTotal.WithLabelValues("cart_count", "miss").Inc()

	count, err = s.store.CountCartLines(ctx, userID)
	if err != nil {
		return 0, err
	}

	if err := s.cache.SetCartCount(ctx, userID, count); err != nil {
		s.logger.Warn("Cart count cache write failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	return count, nil
}

func (s *CartService) invalidateCount(ctx context.Context, userID int64) {
	if err := s.cache.InvalidateCartCount(ctx, userID); err != nil {
		s.logger.Warn("Cart count invalidation failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shop-service/internal/models"

	"github.com/go-redis/redis/v8"
)

// Client wraps Redis as a read-through cache for catalog and cart data.
// Postgres stays authoritative; every cached value carries a TTL and is
// invalidated on writes, so a cold or flushed cache only costs latency.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, ttl: ttl}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func productKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

func cartCountKey(userID int64) string {
	return fmt.Sprintf("cart:count:%d", userID)
}

// GetProduct returns a cached product, or nil on a miss.
func (c *Client) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	data, err := c.rdb.Get(ctx, productKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var p models.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode cached product %d: %w", id, err)
	}
	return &p, nil
}

// SetProduct stores a product with the configured TTL
func (c *Client) SetProduct(ctx context.Context, p *models.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode product %d: %w", p.ID, err)
	}
	return c.rdb.Set(ctx, productKey(p.ID), data, c.ttl).Err()
}

// InvalidateProduct drops a product from the cache
func (c *Client) InvalidateProduct(ctx context.Context, id int64) error {
	return c.rdb.Del(ctx, productKey(id)).Err()
}

// InvalidateProducts drops multiple products from the cache
func (c *Client) InvalidateProducts(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// GetCartCount returns a cached cart count. The bool reports a hit.
func (c *Client) GetCartCount(ctx context.Context, userID int64) (int, bool, error) {
	count, err := c.rdb.Get(ctx, cartCountKey(userID)).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

// SetCartCount stores a cart count with the configured TTL
func (c *Client) SetCartCount(ctx context.Context, userID int64, count int) error {
	return c.rdb.Set(ctx, cartCountKey(userID), count, c.ttl).Err()
}

// InvalidateCartCount drops a user's cart count from the cache
func (c *Client) InvalidateCartCount(ctx context.Context, userID int64) error {
	return c.rdb.Del(ctx, cartCountKey(userID)).Err()
}

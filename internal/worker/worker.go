package worker

import (
	"context"

	"shop-service/internal/broker"
	"shop-service/internal/models"
	"shop-service/internal/util"

	"go.uber.org/zap"
)

// EventStore records which events have been handled.
type EventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// CacheInvalidator drops stale cache entries after an order commits.
type CacheInvalidator interface {
	InvalidateProducts(ctx context.Context, ids []int64) error
	InvalidateCartCount(ctx context.Context, userID int64) error
}

// CatalogWorker consumes order events and keeps the cache honest. The
// order service already invalidates on the request path; this worker
// covers other service instances whose local request never saw the
// order, and logs sold-out products.
type CatalogWorker struct {
	consumer *broker.Consumer
	handler  *broker.EventHandler
	store    EventStore
	cache    CacheInvalidator
	logger   *zap.Logger
}

// NewCatalogWorker creates a new catalog worker
func NewCatalogWorker(consumer *broker.Consumer, store EventStore, cache CacheInvalidator) *CatalogWorker {
	w := &CatalogWorker{
		consumer: consumer,
		store:    store,
		cache:    cache,
		logger:   util.GetLogger(),
	}

	handler := broker.NewEventHandler()
	handler.OnOrderPlaced(w.handleOrderPlaced)
	handler.OnStockDepleted(w.handleStockDepleted)
	w.handler = handler

	return w
}

// Start starts the worker
func (w *CatalogWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting catalog worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *CatalogWorker) Stop() error {
	w.logger.Info("Stopping catalog worker")
	return w.consumer.Close()
}

func (w *CatalogWorker) handleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		return nil
	}

	productIDs := make([]int64, len(event.Items))
	for i, item := range event.Items {
		productIDs[i] = item.ProductID
	}

	if err := w.cache.InvalidateProducts(ctx, productIDs); err != nil {
		w.logger.Warn("Failed to invalidate products from event",
			zap.String("event_id", event.EventID), zap.Error(err))
	}
	if err := w.cache.InvalidateCartCount(ctx, event.UserID); err != nil {
		w.logger.Warn("Failed to invalidate cart count from event",
			zap.String("event_id", event.EventID), zap.Error(err))
	}

	return w.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

func (w *CatalogWorker) handleStockDepleted(ctx context.Context, event *models.StockDepletedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		return nil
	}

	w.logger.Warn("Product sold out",
		zap.Int64("product_id", event.ProductID),
		zap.String("name", event.Name))

	return w.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

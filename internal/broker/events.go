package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"shop-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderPlaced publishes an OrderPlaced event
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishOrderStatusChanged publishes an OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishStockDepleted publishes a StockDepleted event
func (ep *EventPublisher) PublishStockDepleted(ctx context.Context, event *models.StockDepletedEvent) error {
	key := fmt.Sprintf("product-%d", event.ProductID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming events to registered callbacks
type EventHandler struct {
	onOrderPlaced   func(context.Context, *models.OrderPlacedEvent) error
	onStockDepleted func(context.Context, *models.StockDepletedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnOrderPlaced registers a handler for OrderPlaced events
func (eh *EventHandler) OnOrderPlaced(handler func(context.Context, *models.OrderPlacedEvent) error) {
	eh.onOrderPlaced = handler
}

// OnStockDepleted registers a handler for StockDepleted events
func (eh *EventHandler) OnStockDepleted(handler func(context.Context, *models.StockDepletedEvent) error) {
	eh.onStockDepleted = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeOrderPlaced:
		if eh.onOrderPlaced != nil {
			var event models.OrderPlacedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderPlaced event: %w", err)
			}
			return eh.onOrderPlaced(ctx, &event)
		}

	case models.EventTypeStockDepleted:
		if eh.onStockDepleted != nil {
			var event models.StockDepletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal StockDepleted event: %w", err)
			}
			return eh.onStockDepleted(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}

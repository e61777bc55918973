// Package event publishes storefront cart and order events to Kafka.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/engine"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
)

// Kafka topics for storefront events.
const (
	TopicCartUpdated    = "storefront.cart.updated"
	TopicCartCleared    = "storefront.cart.cleared"
	TopicOrderSubmitted = "storefront.order.submitted"
)

// Aggregate types and source.
const (
	AggregateTypeCart  = "cart"
	AggregateTypeOrder = "order"
	SourceStorefront   = "storefront"
)

// CartUpdatedData is the payload of a cart.updated event.
type CartUpdatedData struct {
	CartKey   string             `json:"cart_key"`
	Operation string             `json:"operation"`
	Items     []domain.CartLine  `json:"items"`
	ItemCount int                `json:"item_count"`
	Totals    domain.OrderTotals `json:"totals"`
}

// CartClearedData is the payload of a cart.cleared event.
type CartClearedData struct {
	CartKey string `json:"cart_key"`
}

// OrderSubmittedData is the payload of an order.submitted event.
type OrderSubmittedData struct {
	OrderID   string             `json:"order_id"`
	CartKey   string             `json:"cart_key"`
	Items     []domain.CartLine  `json:"items"`
	ItemCount int                `json:"item_count"`
	Totals    domain.OrderTotals `json:"totals"`
}

// EventPublisher sends one envelope to a topic. *pkgkafka.Producer satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Publisher turns cart changes and placed orders into Kafka events.
type Publisher struct {
	kafka  EventPublisher
	logger *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(kafka EventPublisher, logger *slog.Logger) *Publisher {
	return &Publisher{kafka: kafka, logger: logger}
}

// CartChanged implements engine.Observer. Publish failures are logged and
// never reach the engine.
func (p *Publisher) CartChanged(ctx context.Context, change engine.Change) {
	var err error
	if change.Op == engine.OpClear {
		err = p.PublishCartCleared(ctx, change.Key)
	} else {
		err = p.PublishCartUpdated(ctx, change)
	}
	if err != nil {
		p.logger.WarnContext(ctx, "cart event dropped",
			slog.String("cart_key", change.Key),
			slog.String("op", string(change.Op)),
			slog.String("error", err.Error()),
		)
	}
}

// PublishCartUpdated publishes a cart.updated event for change.
func (p *Publisher) PublishCartUpdated(ctx context.Context, change engine.Change) error {
	data := CartUpdatedData{
		CartKey:   change.Key,
		Operation: string(change.Op),
		Items:     change.Lines,
		ItemCount: change.Count,
		Totals:    change.Totals,
	}
	return p.publish(ctx, TopicCartUpdated, change.Key, AggregateTypeCart, data)
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Publisher) PublishCartCleared(ctx context.Context, cartKey string) error {
	return p.publish(ctx, TopicCartCleared, cartKey, AggregateTypeCart, CartClearedData{CartKey: cartKey})
}

// PublishOrderSubmitted publishes an order.submitted event.
func (p *Publisher) PublishOrderSubmitted(ctx context.Context, data OrderSubmittedData) error {
	return p.publish(ctx, TopicOrderSubmitted, data.OrderID, AggregateTypeOrder, data)
}

func (p *Publisher) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	evt, err := pkgkafka.NewEvent(ctx, topicEventType(topic), aggregateID, aggregateType, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

// topicEventType strips the "storefront." prefix: "storefront.cart.updated"
// becomes "cart.updated".
func topicEventType(topic string) string {
	const prefix = SourceStorefront + "."
	if len(topic) > len(prefix) && topic[:len(prefix)] == prefix {
		return topic[len(prefix):]
	}
	return topic
}

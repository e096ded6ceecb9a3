package event

import (
	"context"
	"fmt"
	"time"

	"github.com/utafrali/ordercore/internal/domain"
	pkgkafka "github.com/utafrali/ordercore/pkg/kafka"
	"github.com/utafrali/ordercore/pkg/logger"
)

// AggregateTypeOrder is the aggregate type of every order event.
const AggregateTypeOrder = "order"

// Source identifies events emitted by this service.
const Source = "ordercore"

// Kafka topics for order events.
var (
	TopicOrderCreated  = pkgkafka.Topic("order", "created")
	TopicOrderCanceled = pkgkafka.Topic("order", "canceled")
)

// TopicFor maps an order event type to its topic.
func TopicFor(eventType string) (string, error) {
	switch eventType {
	case domain.EventOrderCreated:
		return TopicOrderCreated, nil
	case domain.EventOrderCanceled:
		return TopicOrderCanceled, nil
	default:
		return "", fmt.Errorf("no topic for event type %q", eventType)
	}
}

// NewOrderOutboxEvent wraps a snapshot of o in an event envelope ready to be
// written to the outbox in the same transaction as o.
func NewOrderOutboxEvent(ctx context.Context, eventType string, o *domain.Order, paymentMethod string, now time.Time) (*domain.OutboxEvent, error) {
	topic, err := TopicFor(eventType)
	if err != nil {
		return nil, err
	}

	env, err := pkgkafka.NewEvent(eventType, AggregateTypeOrder, o.ID, Source, domain.NewOrderEvent(o, paymentMethod, now))
	if err != nil {
		return nil, err
	}
	env.WithCorrelationID(logger.CorrelationIDFromContext(ctx))

	payload, err := env.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}

	return &domain.OutboxEvent{
		ID:            env.EventID,
		AggregateType: AggregateTypeOrder,
		AggregateID:   o.ID,
		EventType:     eventType,
		Topic:         topic,
		Payload:       payload,
		Status:        domain.OutboxStatusPending,
		CreatedAt:     now,
	}, nil
}

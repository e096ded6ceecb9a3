package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/event"
	pkgkafka "github.com/utafrali/ordercore/pkg/kafka"
)

// ConsumerGroupID is the group the confirmation consumer joins.
const ConsumerGroupID = "ordercore-notification"

var emailsSent = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ordercore_notification_emails_total",
		Help: "Order confirmation emails by result",
	},
	[]string{"result"},
)

// ConsumerHandler turns order events into emails.
type ConsumerHandler struct {
	sender EmailSender
	logger *slog.Logger
}

// NewConsumerHandler creates a handler.
func NewConsumerHandler(sender EmailSender, logger *slog.Logger) *ConsumerHandler {
	return &ConsumerHandler{sender: sender, logger: logger}
}

// Handle processes one event. A send failure is returned so the consumer
// retries it and eventually dead-letters it.
func (h *ConsumerHandler) Handle(ctx context.Context, evt *pkgkafka.Event) error {
	if evt.EventType != domain.EventOrderCreated {
		h.logger.DebugContext(ctx, "ignoring event",
			slog.String("event_type", evt.EventType),
			slog.String("event_id", evt.EventID),
		)
		return nil
	}

	var payload domain.OrderEvent
	if err := evt.UnmarshalData(&payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.EventType, err)
	}

	if payload.ContactEmail == "" {
		emailsSent.WithLabelValues("skipped").Inc()
		h.logger.InfoContext(ctx, "order has no contact email, skipping confirmation",
			slog.String("order_id", payload.OrderID),
		)
		return nil
	}

	if err := h.sender.SendOrderConfirmation(ctx, NewOrderConfirmation(payload)); err != nil {
		emailsSent.WithLabelValues("error").Inc()
		h.logger.WarnContext(ctx, "order confirmation failed",
			slog.String("order_id", payload.OrderID),
			slog.String("error", err.Error()),
		)
		return err
	}

	emailsSent.WithLabelValues("sent").Inc()
	h.logger.InfoContext(ctx, "order confirmation sent",
		slog.String("order_id", payload.OrderID),
		slog.String("order_number", payload.OrderNumber),
	)
	return nil
}

// ConsumerOptions configures NewConsumer.
type ConsumerOptions struct {
	Brokers []string
	// Seen deduplicates redelivered events; nil disables deduplication.
	Seen pkgkafka.IdempotencyStore
	// DLQ receives events that keep failing; nil drops them after logging.
	DLQ pkgkafka.DeadLetterPublisher
	// RetryDelay is the pause between attempts on one message.
	RetryDelay time.Duration
}

// NewConsumer subscribes h to the order.created topic.
func NewConsumer(opts ConsumerOptions, h *ConsumerHandler, logger *slog.Logger) *pkgkafka.Consumer {
	cfg := pkgkafka.ConsumerConfig{
		Brokers:    opts.Brokers,
		GroupID:    ConsumerGroupID,
		Topic:      event.TopicOrderCreated,
		RetryDelay: opts.RetryDelay,
	}
	return pkgkafka.NewConsumer(cfg, wrap(opts, h, logger), opts.DLQ, logger)
}

func wrap(opts ConsumerOptions, h *ConsumerHandler, logger *slog.Logger) pkgkafka.Handler {
	if opts.Seen == nil {
		return h.Handle
	}
	return pkgkafka.IdempotentHandler(opts.Seen, event.TopicOrderCreated, ConsumerGroupID, h.Handle, logger)
}

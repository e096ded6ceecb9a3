package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/utafrali/ordercore/internal/repository"
	pkgkafka "github.com/utafrali/ordercore/pkg/kafka"
)

// Publisher writes an event envelope to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// RelayConfig controls how the outbox is drained.
type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// DefaultRelayConfig polls every second, 100 events at a time, and gives
// up on an event after 10 failed attempts.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{Interval: time.Second, BatchSize: 100, MaxAttempts: 10}
}

// Relay moves committed outbox rows to Kafka. Delivery is at least once:
// a crash between publish and commit republishes the batch, and consumers
// dedupe on the event ID.
type Relay struct {
	uow    repository.UnitOfWork
	pub    Publisher
	cfg    RelayConfig
	logger *slog.Logger
}

// NewRelay creates an outbox relay.
func NewRelay(uow repository.UnitOfWork, pub Publisher, cfg RelayConfig, logger *slog.Logger) *Relay {
	def := DefaultRelayConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Relay{uow: uow, pub: pub, cfg: cfg, logger: logger}
}

// Run drains the outbox until ctx is canceled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "outbox relay started", slog.Duration("interval", r.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			for {
				n, err := r.RelayOnce(ctx)
				if err != nil {
					if ctx.Err() == nil {
						r.logger.ErrorContext(ctx, "outbox relay batch failed", slog.String("error", err.Error()))
					}
					break
				}
				if n < r.cfg.BatchSize {
					break
				}
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many events were sent.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	sent := 0
	err := r.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		events, err := repos.Outbox.LockPending(ctx, r.cfg.BatchSize)
		if err != nil {
			return err
		}

		for _, e := range events {
			env, err := pkgkafka.UnmarshalEvent(e.Payload)
			if err != nil {
				outboxPublished.WithLabelValues(e.EventType, "poison").Inc()
				r.logger.ErrorContext(ctx, "undecodable outbox event",
					slog.String("event_id", e.ID),
					slog.String("error", err.Error()),
				)
				if err := repos.Outbox.MarkFailed(ctx, e.ID, err.Error(), 1); err != nil {
					return err
				}
				continue
			}

			if err := r.pub.Publish(ctx, e.Topic, env); err != nil {
				outboxPublished.WithLabelValues(e.EventType, "error").Inc()
				r.logger.WarnContext(ctx, "outbox publish failed",
					slog.String("event_id", e.ID),
					slog.String("topic", e.Topic),
					slog.Int("attempt", e.Attempts+1),
					slog.String("error", err.Error()),
				)
				if err := repos.Outbox.MarkFailed(ctx, e.ID, err.Error(), r.cfg.MaxAttempts); err != nil {
					return err
				}
				continue
			}

			outboxPublished.WithLabelValues(e.EventType, "sent").Inc()
			if err := repos.Outbox.MarkSent(ctx, e.ID); err != nil {
				return err
			}
			sent++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sent, nil
}

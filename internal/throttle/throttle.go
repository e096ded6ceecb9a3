// Package throttle limits how often a caller may attempt checkout. Each key
// gets a sliding log in a Redis sorted set; what happens when Redis is
// unreachable is a configured policy.
package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// Store failure policies.
const (
	FailOpen   = "open"
	FailClosed = "closed"
	FailLocal  = "local"
)

// Defaults for order creation.
const (
	DefaultLimit     = 10
	DefaultWindow    = 10 * time.Minute
	DefaultKeyPrefix = "throttle:orders:"
)

// Config holds throttle settings.
type Config struct {
	Limit       int
	Window      time.Duration
	FailureMode string
	KeyPrefix   string
}

// ValidFailureMode reports whether mode is a known store failure policy.
func ValidFailureMode(mode string) bool {
	return mode == FailOpen || mode == FailClosed || mode == FailLocal
}

// Decision is the outcome of one admission attempt.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Throttle admits at most Limit attempts per key within any Window.
type Throttle struct {
	client redis.Cmdable
	cfg    Config
	local  *localLimiter
	logger *slog.Logger
	now    func() time.Time
}

// New creates a throttle backed by client.
func New(client redis.Cmdable, cfg Config, logger *slog.Logger) *Throttle {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if !ValidFailureMode(cfg.FailureMode) {
		cfg.FailureMode = FailOpen
	}

	t := &Throttle{client: client, cfg: cfg, logger: logger, now: time.Now}
	if cfg.FailureMode == FailLocal {
		t.local = newLocalLimiter(cfg.Limit, cfg.Window, t.clock)
	}
	return t
}

func (t *Throttle) clock() time.Time { return t.now() }

// Limit returns the number of attempts allowed per window.
func (t *Throttle) Limit() int { return t.cfg.Limit }

// Admit records an attempt for key and reports whether it may proceed. An
// error is returned only when the store is down and the policy is closed.
func (t *Throttle) Admit(ctx context.Context, key string) (Decision, error) {
	d, err := t.admitRedis(ctx, key)
	if err == nil {
		decisions.WithLabelValues(sourceRedis, result(d)).Inc()
		return d, nil
	}

	switch t.cfg.FailureMode {
	case FailClosed:
		decisions.WithLabelValues(sourceFailClosed, resultRejected).Inc()
		t.logger.ErrorContext(ctx, "throttle store unavailable, rejecting",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		appErr := apperrors.ServiceUnavailable("Checkout is temporarily unavailable, please try again")
		appErr.Err = fmt.Errorf("%w: %w", apperrors.ErrServiceUnavail, err)
		return Decision{}, appErr

	case FailLocal:
		d := t.local.admit(key)
		decisions.WithLabelValues(sourceLocal, result(d)).Inc()
		t.logger.WarnContext(ctx, "throttle store unavailable, using local limiter",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return d, nil

	default:
		decisions.WithLabelValues(sourceFailOpen, resultAllowed).Inc()
		t.logger.WarnContext(ctx, "throttle store unavailable, allowing request",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return Decision{Allowed: true, Remaining: -1}, nil
	}
}

// admitRedis trims expired attempts, counts the rest and records this one
// in a single MULTI. A rejected attempt is removed again so it does not
// extend the caller's penalty.
func (t *Throttle) admitRedis(ctx context.Context, key string) (Decision, error) {
	now := t.now()
	redisKey := t.cfg.KeyPrefix + key
	windowStart := now.Add(-t.cfg.Window).UnixMilli()
	member := strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()

	var count *redis.IntCmd
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(windowStart, 10))
		count = pipe.ZCard(ctx, redisKey)
		pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		pipe.PExpire(ctx, redisKey, t.cfg.Window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("throttle pipeline: %w", err)
	}

	used := int(count.Val())
	if used < t.cfg.Limit {
		return Decision{Allowed: true, Remaining: t.cfg.Limit - used - 1}, nil
	}

	// The count above is authoritative. Failures past this point only cost
	// precision in Retry-After, never the rejection.
	retry := t.cfg.Window
	if err := t.client.ZRem(ctx, redisKey, member).Err(); err != nil {
		t.logger.WarnContext(ctx, "throttle could not drop rejected attempt",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	oldest, err := t.client.ZRangeWithScores(ctx, redisKey, 0, 0).Result()
	if err != nil {
		t.logger.WarnContext(ctx, "throttle could not read oldest attempt",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}
	if len(oldest) == 1 {
		expires := time.UnixMilli(int64(oldest[0].Score)).Add(t.cfg.Window)
		retry = max(expires.Sub(now), time.Second)
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}

// retryAfterSeconds renders d for a Retry-After header, rounding up.
func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(max(d, time.Second).Seconds())))
}

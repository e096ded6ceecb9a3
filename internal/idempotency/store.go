// Package idempotency makes retried POST requests safe. A client sends an
// Idempotency-Key header; the first request with a key runs, later ones get
// the stored response back.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record states.
const (
	StatePending = "pending"
	StateDone    = "done"
)

// Defaults.
const (
	DefaultTTL        = 24 * time.Hour
	DefaultPendingTTL = time.Minute
	DefaultPrefix     = "idem:"
)

// Record is what is stored under a key.
type Record struct {
	State       string `json:"state"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Store keeps idempotency records in Redis. A reservation lives for
// pendingTTL so a crashed request frees its key; a completed response
// lives for ttl.
type Store struct {
	client     redis.Cmdable
	prefix     string
	ttl        time.Duration
	pendingTTL time.Duration
}

// NewStore creates a store.
func NewStore(client redis.Cmdable, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, prefix: DefaultPrefix, ttl: ttl, pendingTTL: min(DefaultPendingTTL, ttl)}
}

func (s *Store) key(scope, key string) string {
	return s.prefix + scope + ":" + key
}

// Reserve claims key for a new request. When the key is already taken it
// returns the existing record and false.
func (s *Store) Reserve(ctx context.Context, scope, key, fingerprint string) (*Record, bool, error) {
	pending, err := json.Marshal(Record{State: StatePending, Fingerprint: fingerprint})
	if err != nil {
		return nil, false, fmt.Errorf("marshal reservation: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(scope, key), pending, s.pendingTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return nil, true, nil
	}

	raw, err := s.client.Get(ctx, s.key(scope, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; try once more.
		ok, err = s.client.SetNX(ctx, s.key(scope, key), pending, s.pendingTTL).Result()
		if err != nil {
			return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if ok {
			return nil, true, nil
		}
		return &Record{State: StatePending, Fingerprint: fingerprint}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get idempotency record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &rec, false, nil
}

// Complete stores the final response for key.
func (s *Store) Complete(ctx context.Context, scope, key string, rec Record) error {
	rec.State = StateDone
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(scope, key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store idempotency record: %w", err)
	}
	return nil
}

// Release drops a reservation so the client can retry with the same key.
func (s *Store) Release(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, s.key(scope, key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

package event

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository/memory"
	pkgkafka "github.com/utafrali/ordercore/pkg/kafka"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []*pkgkafka.Event
	topics    []string
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, e *pkgkafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, e)
	p.topics = append(p.topics, topic)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func enqueue(t *testing.T, store *memory.Store, eventType string) *domain.OutboxEvent {
	t.Helper()
	evt, err := NewOrderOutboxEvent(context.Background(), eventType, sampleOrder(), "card", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.Repositories().Outbox.Insert(context.Background(), evt))
	return evt
}

func TestRelayOnce_PublishesPendingEvents(t *testing.T) {
	store := memory.New()
	created := enqueue(t, store, domain.EventOrderCreated)
	canceled := enqueue(t, store, domain.EventOrderCanceled)
	pub := &fakePublisher{}

	relay := NewRelay(store, pub, RelayConfig{BatchSize: 10}, newTestLogger())
	sent, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	require.Len(t, pub.published, 2)
	assert.Equal(t, created.ID, pub.published[0].EventID)
	assert.Equal(t, TopicOrderCreated, pub.topics[0])
	assert.Equal(t, canceled.ID, pub.published[1].EventID)
	assert.Equal(t, TopicOrderCanceled, pub.topics[1])

	for _, e := range store.OutboxEvents() {
		assert.Equal(t, domain.OutboxStatusSent, e.Status)
		assert.NotNil(t, e.SentAt)
	}

	sent, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent, "sent events are not published again")
}

func TestRelayOnce_RespectsBatchSize(t *testing.T) {
	store := memory.New()
	for range 3 {
		enqueue(t, store, domain.EventOrderCreated)
	}
	pub := &fakePublisher{}

	relay := NewRelay(store, pub, RelayConfig{BatchSize: 2}, newTestLogger())
	sent, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	sent, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestRelayOnce_PublishFailureRetriesThenGivesUp(t *testing.T) {
	store := memory.New()
	enqueue(t, store, domain.EventOrderCreated)
	pub := &fakePublisher{err: errors.New("broker unreachable")}

	relay := NewRelay(store, pub, RelayConfig{BatchSize: 10, MaxAttempts: 2}, newTestLogger())

	sent, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	events := store.OutboxEvents()
	assert.Equal(t, domain.OutboxStatusPending, events[0].Status)
	assert.Equal(t, 1, events[0].Attempts)
	assert.Equal(t, "broker unreachable", events[0].LastError)

	_, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxStatusFailed, store.OutboxEvents()[0].Status)

	pub.err = nil
	sent, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent, "failed events are parked")
}

func TestRelayOnce_PoisonPayload(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Repositories().Outbox.Insert(context.Background(), &domain.OutboxEvent{
		ID: "bad", EventType: domain.EventOrderCreated, Topic: TopicOrderCreated,
		Payload: []byte(`not json`), Status: domain.OutboxStatusPending,
	}))
	pub := &fakePublisher{}

	sent, err := NewRelay(store, pub, RelayConfig{}, newTestLogger()).RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Zero(t, pub.count())
	assert.Equal(t, domain.OutboxStatusFailed, store.OutboxEvents()[0].Status)
}

func TestRelayOnce_StoreFailure(t *testing.T) {
	store := memory.New()
	enqueue(t, store, domain.EventOrderCreated)
	store.FailOn("Outbox.LockPending", errors.New("db down"))

	_, err := NewRelay(store, &fakePublisher{}, RelayConfig{}, newTestLogger()).RelayOnce(context.Background())
	assert.Error(t, err)
}

func TestRelay_RunDrainsUntilCanceled(t *testing.T) {
	store := memory.New()
	for range 5 {
		enqueue(t, store, domain.EventOrderCreated)
	}
	pub := &fakePublisher{}
	relay := NewRelay(store, pub, RelayConfig{Interval: 5 * time.Millisecond, BatchSize: 2}, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return pub.count() == 5 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

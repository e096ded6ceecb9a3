package throttle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeClock is a settable time source.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setupThrottle(t *testing.T, cfg Config) (*Throttle, *miniredis.Miniredis, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	clock := newFakeClock()
	th := New(client, cfg, newTestLogger())
	th.now = clock.now
	return th, mr, clock
}

func TestAdmit_AllowsUpToLimit(t *testing.T) {
	th, mr, _ := setupThrottle(t, Config{Limit: 3, Window: time.Minute})
	ctx := context.Background()

	for i := range 3 {
		d, err := th.Admit(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d", i+1)
		assert.Equal(t, 3-i-1, d.Remaining)
	}

	d, err := th.Admit(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)

	members, err := mr.ZMembers("throttle:orders:user:1")
	require.NoError(t, err)
	assert.Len(t, members, 3, "rejected attempts are not recorded")
	assert.True(t, mr.TTL("throttle:orders:user:1") > 0)
}

func TestAdmit_WindowSlides(t *testing.T) {
	th, _, clock := setupThrottle(t, Config{Limit: 2, Window: 10 * time.Minute})
	ctx := context.Background()

	_, err := th.Admit(ctx, "user:1")
	require.NoError(t, err)
	clock.advance(4 * time.Minute)
	_, err = th.Admit(ctx, "user:1")
	require.NoError(t, err)

	clock.advance(time.Minute)
	d, err := th.Admit(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 5*time.Minute, d.RetryAfter, "the first attempt expires five minutes from now")

	clock.advance(5*time.Minute + time.Second)
	d, err = th.Admit(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAdmit_KeysAreIndependent(t *testing.T) {
	th, _, _ := setupThrottle(t, Config{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	d, err := th.Admit(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = th.Admit(ctx, "user:2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = th.Admit(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestNew_Defaults(t *testing.T) {
	th := New(nil, Config{FailureMode: "sideways"}, newTestLogger())
	assert.Equal(t, DefaultLimit, th.cfg.Limit)
	assert.Equal(t, DefaultWindow, th.cfg.Window)
	assert.Equal(t, DefaultKeyPrefix, th.cfg.KeyPrefix)
	assert.Equal(t, FailOpen, th.cfg.FailureMode)
}

// --- Store failures ---

// failCommands fails the named commands outside pipelines.
type failCommands map[string]bool

func (h failCommands) DialHook(next goredis.DialHook) goredis.DialHook { return next }

func (h failCommands) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if h[cmd.Name()] {
			err := errors.New("READONLY You can't write against a read only replica")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (h failCommands) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

func TestAdmit_OverLimitStaysRejectedWhenCleanupFails(t *testing.T) {
	for _, mode := range []string{FailOpen, FailLocal} {
		t.Run(mode, func(t *testing.T) {
			th, _, _ := setupThrottle(t, Config{Limit: 1, Window: time.Minute, FailureMode: mode})
			ctx := context.Background()

			d, err := th.Admit(ctx, "user:1")
			require.NoError(t, err)
			require.True(t, d.Allowed)

			th.client.(*goredis.Client).AddHook(failCommands{"zrem": true, "zrange": true})

			d, err = th.Admit(ctx, "user:1")
			require.NoError(t, err)
			assert.False(t, d.Allowed)
			assert.Equal(t, time.Minute, d.RetryAfter)
		})
	}
}

func TestAdmit_StoreDown_FailOpen(t *testing.T) {
	th, mr, _ := setupThrottle(t, Config{Limit: 1, Window: time.Minute, FailureMode: FailOpen})
	mr.SetError("LOADING redis is loading")

	for range 3 {
		d, err := th.Admit(context.Background(), "user:1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
}

func TestAdmit_StoreDown_FailClosed(t *testing.T) {
	th, mr, _ := setupThrottle(t, Config{Limit: 1, Window: time.Minute, FailureMode: FailClosed})
	mr.SetError("LOADING redis is loading")

	_, err := th.Admit(context.Background(), "user:1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
	assert.Equal(t, 503, apperrors.HTTPStatus(err))
}

func TestAdmit_StoreDown_FailLocal(t *testing.T) {
	th, mr, clock := setupThrottle(t, Config{Limit: 2, Window: time.Minute, FailureMode: FailLocal})
	mr.SetError("LOADING redis is loading")
	ctx := context.Background()

	for range 2 {
		d, err := th.Admit(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := th.Admit(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.InDelta(t, float64(30*time.Second), float64(d.RetryAfter), float64(time.Millisecond), "one token refills every window/limit")

	clock.advance(31 * time.Second)
	d, err = th.Admit(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLocalLimiter_SweepsIdleKeys(t *testing.T) {
	clock := newFakeClock()
	l := newLocalLimiter(5, time.Minute, clock.now)

	l.admit("a")
	l.admit("b")
	assert.Equal(t, 2, l.len())

	clock.advance(2 * time.Minute)
	l.admit("c")
	assert.Equal(t, 1, l.len())
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, "1", retryAfterSeconds(0))
	assert.Equal(t, "1", retryAfterSeconds(300*time.Millisecond))
	assert.Equal(t, "2", retryAfterSeconds(1500*time.Millisecond))
	assert.Equal(t, "600", retryAfterSeconds(10*time.Minute))
}

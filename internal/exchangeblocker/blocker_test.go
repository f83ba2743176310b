package exchangeblocker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mmbcore/engine/internal/domain"
)

func testExchange() domain.ExchangeAccountId {
	return domain.NewExchangeAccountId("binance", 0)
}

func newTestBlocker() *ExchangeBlocker {
	return New([]domain.ExchangeAccountId{testExchange()}, zerolog.Nop())
}

func TestBlockUnblockManual(t *testing.T) {
	eb := newTestBlocker()
	defer eb.Stop(context.Background())

	exchange := testExchange()
	reason := BlockReason("reason")

	require.False(t, eb.IsBlocked(exchange))

	eb.Block(exchange, reason, Manual())
	require.True(t, eb.IsBlocked(exchange))
	require.True(t, eb.IsBlockedByReason(exchange, reason))

	eb.Unblock(exchange, reason)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, eb.WaitUnblock(ctx, exchange))
	require.False(t, eb.IsBlocked(exchange))
}

func TestBlockUnblockFuture(t *testing.T) {
	eb := newTestBlocker()
	defer eb.Stop(context.Background())

	exchange := testExchange()
	reason := BlockReason("reason")

	eb.Block(exchange, reason, Manual())
	require.True(t, eb.IsBlocked(exchange))

	var signaled atomic.Bool
	done := make(chan struct{})
	go func() {
		_ = eb.WaitUnblock(context.Background(), exchange)
		signaled.Store(true)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	require.False(t, signaled.Load())

	eb.Unblock(exchange, reason)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitUnblock never returned")
	}
	require.True(t, signaled.Load())
	require.False(t, eb.IsBlocked(exchange))
}

func TestBlockDuration(t *testing.T) {
	eb := newTestBlocker()
	defer eb.Stop(context.Background())

	exchange := testExchange()
	duration := 50 * time.Millisecond

	start := time.Now()
	eb.Block(exchange, "timer_test_reason", Timed(duration))
	require.True(t, eb.IsBlocked(exchange))

	ctx, cancel := context.WithTimeout(context.Background(), duration+500*time.Millisecond)
	defer cancel()
	require.NoError(t, eb.WaitUnblock(ctx, exchange))

	require.GreaterOrEqual(t, time.Since(start), duration)
	require.False(t, eb.IsBlocked(exchange))
}

func TestReblockBeforeTimeIsUp(t *testing.T) {
	eb := newTestBlocker()
	defer eb.Stop(context.Background())

	exchange := testExchange()
	duration := 50 * time.Millisecond
	sleepBeforeReblock := 20 * time.Millisecond

	start := time.Now()
	eb.Block(exchange, "timer_test_reason", Timed(duration))
	require.True(t, eb.IsBlocked(exchange))

	time.Sleep(sleepBeforeReblock)
	eb.Block(exchange, "timer_test_reason", Timed(duration))
	require.True(t, eb.IsBlocked(exchange))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, eb.WaitUnblock(ctx, exchange))

	require.GreaterOrEqual(t, time.Since(start), sleepBeforeReblock+duration)
}

func TestBlockWithMultipleReasons(t *testing.T) {
	eb := newTestBlocker()
	defer eb.Stop(context.Background())

	exchange := testExchange()
	reason1 := BlockReason("reason1")
	reason2 := BlockReason("reason2")

	require.False(t, eb.IsBlocked(exchange))

	eb.Block(exchange, reason1, Manual())
	require.True(t, eb.IsBlockedByReason(exchange, reason1))
	require.False(t, eb.IsBlockedByReason(exchange, reason2))
	require.True(t, eb.IsBlocked(exchange))

	eb.Block(exchange, reason2, Manual())
	require.True(t, eb.IsBlockedByReason(exchange, reason1))
	require.True(t, eb.IsBlockedByReason(exchange, reason2))
	require.True(t, eb.IsBlocked(exchange))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	eb.Unblock(exchange, reason1)
	require.NoError(t, eb.WaitUnblockWithReason(ctx, exchange, reason1))
	require.False(t, eb.IsBlockedByReason(exchange, reason1))
	require.True(t, eb.IsBlockedByReason(exchange, reason2))
	require.True(t, eb.IsBlocked(exchange))

	eb.Unblock(exchange, reason2)
	require.NoError(t, eb.WaitUnblock(ctx, exchange))
	require.False(t, eb.IsBlockedByReason(exchange, reason1))
	require.False(t, eb.IsBlockedByReason(exchange, reason2))
	require.False(t, eb.IsBlocked(exchange))
}

func TestBlockWithHandler(t *testing.T) {
	eb := newTestBlocker()
	defer eb.Stop(context.Background())

	exchange := testExchange()
	var timesBlocked atomic.Int32
	eb.RegisterHandler(Blocked, func(_ context.Context, event Event) error {
		if event.ExchangeAccountId == exchange {
			timesBlocked.Add(1)
		}
		return nil
	})

	reason := BlockReason("reason")
	eb.Block(exchange, reason, Manual())
	eb.Unblock(exchange, reason)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, eb.WaitUnblock(ctx, exchange))

	require.False(t, eb.IsBlocked(exchange))
	require.Equal(t, int32(1), timesBlocked.Load())
}

func TestBlockWithFirstLongHandler(t *testing.T) {
	eb := newTestBlocker()
	defer eb.Stop(context.Background())

	exchange := testExchange()
	var mu sync.Mutex
	var order []Moment

	eb.RegisterHandler(Blocked, func(_ context.Context, event Event) error {
		time.Sleep(40 * time.Millisecond)
		mu.Lock()
		order = append(order, event.Moment)
		mu.Unlock()
		return nil
	})
	eb.RegisterHandler(BeforeUnblocked, func(_ context.Context, event Event) error {
		mu.Lock()
		order = append(order, event.Moment)
		mu.Unlock()
		return nil
	})

	reason := BlockReason("reason")
	eb.Block(exchange, reason, Manual())
	eb.Unblock(exchange, reason)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, eb.WaitUnblock(ctx, exchange))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []Moment{Blocked, BeforeUnblocked}, order)
}

func TestStopBlocker(t *testing.T) {
	eb := newTestBlocker()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, eb.Stop(ctx))
}

func TestBlockWithHandlerAfterStop(t *testing.T) {
	eb := newTestBlocker()
	exchange := testExchange()

	var timesBlocked atomic.Int32
	eb.RegisterHandler(Blocked, func(_ context.Context, event Event) error {
		if event.ExchangeAccountId == exchange {
			timesBlocked.Add(1)
		}
		return nil
	})

	require.NoError(t, eb.Stop(context.Background()))

	reason := BlockReason("reason")
	eb.Block(exchange, reason, Manual())
	eb.Unblock(exchange, reason)

	time.Sleep(20 * time.Millisecond)

	require.True(t, eb.IsBlocked(exchange))
	require.Equal(t, int32(0), timesBlocked.Load())
}

func TestIsBlockedExceptReason(t *testing.T) {
	eb := newTestBlocker()
	defer eb.Stop(context.Background())

	exchange := testExchange()
	reason1 := BlockReason("reason1")
	reason2 := BlockReason("reason2")

	require.False(t, eb.IsBlockedExceptReason(exchange, reason1))

	eb.Block(exchange, reason1, Manual())
	require.False(t, eb.IsBlockedExceptReason(exchange, reason1))
	require.True(t, eb.IsBlockedExceptReason(exchange, reason2))

	eb.Block(exchange, reason2, Manual())
	require.True(t, eb.IsBlockedExceptReason(exchange, reason1))
	require.True(t, eb.IsBlockedExceptReason(exchange, reason2))
}

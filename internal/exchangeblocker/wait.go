package exchangeblocker

import (
	"context"

	"github.com/mmbcore/engine/internal/domain"
)

// WaitUnblockWithReason blocks until exchange's block under reason clears,
// ctx is done, or there was never a live block under that reason to begin
// with (a no-op return, not an error).
func (eb *ExchangeBlocker) WaitUnblockWithReason(ctx context.Context, exchange domain.ExchangeAccountId, reason BlockReason) error {
	b := eb.lookupBlocker(blockerId{exchange: exchange, reason: reason})
	if b == nil {
		return nil
	}

	select {
	case <-b.unblocked:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitUnblock blocks until exchange is blocked for no reason at all, or
// ctx is done. A reblock under a different reason that lands while the
// caller was waiting on the first set of blockers keeps it waiting rather
// than returning early.
func (eb *ExchangeBlocker) WaitUnblock(ctx context.Context, exchange domain.ExchangeAccountId) error {
	for {
		channels := eb.liveUnblockedChannels(exchange)
		if len(channels) == 0 {
			return nil
		}

		if err := waitAllClosed(ctx, channels); err != nil {
			return err
		}

		if !eb.IsBlocked(exchange) {
			return nil
		}
	}
}

func (eb *ExchangeBlocker) liveUnblockedChannels(exchange domain.ExchangeAccountId) []chan struct{} {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	reasons, ok := eb.blockers[exchange]
	if !ok {
		return nil
	}
	channels := make([]chan struct{}, 0, len(reasons))
	for _, b := range reasons {
		channels = append(channels, b.unblocked)
	}
	return channels
}

// waitAllClosed blocks until every channel in channels is closed, or ctx is
// done first.
func waitAllClosed(ctx context.Context, channels []chan struct{}) error {
	done := make(chan struct{})
	go func() {
		for _, ch := range channels {
			<-ch
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

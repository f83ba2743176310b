// Package exchangeblocker implements ExchangeBlocker: the
// concurrent half of the core. Where BRM is a plain single-owner struct,
// ExchangeBlocker is built to be shared across every goroutine that talks to
// an exchange connector — one goroutine can block an exchange mid-incident
// while others wait for it to clear, with the whole block/unblock lifecycle
// fanned out to registered observers.
package exchangeblocker

import (
	"context"
	"fmt"
	"time"

	"github.com/mmbcore/engine/internal/domain"
)

// Moment identifies which point of the unblock lifecycle a Handler is being
// invoked for.
type Moment int

const (
	// Blocked fires once, right after a block takes effect.
	Blocked Moment = iota
	// BeforeUnblocked fires once unblock has been requested and every
	// Blocked handler has returned, but before the block is actually lifted
	// — the last chance for a handler to finish work that assumed the
	// exchange was unavailable.
	BeforeUnblocked
	// Unblocked fires once the block has been fully lifted and removed.
	Unblocked
)

func (m Moment) String() string {
	switch m {
	case Blocked:
		return "blocked"
	case BeforeUnblocked:
		return "before_unblocked"
	case Unblocked:
		return "unblocked"
	default:
		return fmt.Sprintf("moment(%d)", int(m))
	}
}

// BlockReason names why an exchange is blocked — e.g. "rate_limited",
// "websocket_reconnecting", "maintenance". A given exchange can be blocked
// under more than one reason simultaneously; it is blocked as long as any
// reason's entry is still live.
type BlockReason string

// BlockType selects whether a block lifts only on an explicit Unblock call
// (Manual) or on its own after a fixed duration (Timed).
type BlockType struct {
	timed    bool
	duration time.Duration
}

// Manual returns a BlockType that only clears on an explicit Unblock call.
func Manual() BlockType { return BlockType{} }

// Timed returns a BlockType that clears itself after d elapses, unless
// unblocked earlier.
func Timed(d time.Duration) BlockType { return BlockType{timed: true, duration: d} }

// Event is published to every registered Handler at each Moment of a
// block's lifecycle.
type Event struct {
	ExchangeAccountId domain.ExchangeAccountId
	Reason            BlockReason
	Moment            Moment
}

// Handler observes block lifecycle events for one Moment, registered via
// RegisterHandler. It receives a context that is canceled if the blocker is
// stopped mid-dispatch; handlers that need to do meaningful work should
// respect ctx.Done(). An error return is logged but never aborts sibling
// handlers or the transition itself — a misbehaving observer must not wedge
// the state machine.
type Handler func(ctx context.Context, event Event) error

type blockerId struct {
	exchange domain.ExchangeAccountId
	reason   BlockReason
}

func (id blockerId) String() string {
	return fmt.Sprintf("%s %s", id.exchange, id.reason)
}

package exchangeblocker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mmbcore/engine/internal/domain"
)

// ExchangeBlocker tracks, per exchange account, every reason it is
// currently blocked for, and drives registered Handlers through the
// Blocked -> BeforeUnblocked -> Unblocked lifecycle as each block clears.
// Unlike brm.Manager it is safe for concurrent use: any goroutine talking
// to an exchange connector can call Block/Unblock/WaitUnblock at once.
type ExchangeBlocker struct {
	mu       sync.RWMutex
	blockers map[domain.ExchangeAccountId]map[BlockReason]*blocker

	handlersMu sync.RWMutex
	handlers   map[Moment][]Handler

	events chan internalEvent

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	log zerolog.Logger
}

// New returns an ExchangeBlocker that will track blocks for exactly the
// given exchange accounts. Block/Unblock calls for any other exchange
// account are rejected with a logged error rather than a panic — unlike the
// source, which treats this as an unrecoverable programmer error, a long-
// running Go service should keep serving every other exchange account
// rather than crash over one misconfigured caller.
func New(exchangeAccountIds []domain.ExchangeAccountId, logger zerolog.Logger) *ExchangeBlocker {
	blockers := make(map[domain.ExchangeAccountId]map[BlockReason]*blocker, len(exchangeAccountIds))
	for _, id := range exchangeAccountIds {
		blockers[id] = make(map[BlockReason]*blocker)
	}

	ctx, cancel := context.WithCancel(context.Background())
	eb := &ExchangeBlocker{
		blockers: blockers,
		handlers: make(map[Moment][]Handler),
		events:   make(chan internalEvent, 20000),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		log:      logger,
	}
	go eb.processEvents()
	return eb
}

// IsBlocked reports whether exchange is blocked for any reason at all.
func (eb *ExchangeBlocker) IsBlocked(exchange domain.ExchangeAccountId) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	reasons, ok := eb.blockers[exchange]
	return ok && len(reasons) > 0
}

// IsBlockedByReason reports whether exchange is currently blocked under
// reason specifically.
func (eb *ExchangeBlocker) IsBlockedByReason(exchange domain.ExchangeAccountId, reason BlockReason) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	reasons, ok := eb.blockers[exchange]
	if !ok {
		return false
	}
	_, exists := reasons[reason]
	return exists
}

// IsBlockedExceptReason reports whether exchange would still be blocked if
// reason's block were lifted — used by a handler reacting to its own
// block's BeforeUnblocked moment to tell whether some other reason is still
// keeping the exchange down.
func (eb *ExchangeBlocker) IsBlockedExceptReason(exchange domain.ExchangeAccountId, reason BlockReason) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	reasons, ok := eb.blockers[exchange]
	if !ok {
		return false
	}
	_, exists := reasons[reason]
	count := len(reasons)
	return (exists && count > 1) || (!exists && count > 0)
}

// BlockedReasons returns every reason exchange is currently blocked under,
// for reporting purposes (e.g. internal/rpc's read-only blocker-state
// endpoint).
func (eb *ExchangeBlocker) BlockedReasons(exchange domain.ExchangeAccountId) []BlockReason {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	reasons, ok := eb.blockers[exchange]
	if !ok {
		return nil
	}
	out := make([]BlockReason, 0, len(reasons))
	for reason := range reasons {
		out = append(out, reason)
	}
	return out
}

// Block starts (or extends) a block on exchange under reason. A second
// Block call for a reason already live resets its timeout rather than
// stacking a new one.
func (eb *ExchangeBlocker) Block(exchange domain.ExchangeAccountId, reason BlockReason, blockType BlockType) {
	eb.mu.Lock()
	reasons, ok := eb.blockers[exchange]
	if !ok {
		eb.mu.Unlock()
		eb.log.Error().Str("exchange", exchange.String()).Msg("exchangeblocker: Block called for an unregistered exchange account")
		return
	}

	if existing, exists := reasons[reason]; exists {
		eb.mu.Unlock()
		eb.timeoutResetIfExists(existing, blockType)
		return
	}

	id := blockerId{exchange: exchange, reason: reason}
	b := eb.createBlocker(id, blockType)
	reasons[reason] = b
	eb.mu.Unlock()

	eb.addEvent(internalEvent{id: id, eventType: evMoveToBlocked})
}

// createBlocker builds the initial timeout state for a brand-new blocker: a
// Manual block starts ready to unblock immediately; a Timed block starts an
// actual timer that unblocks the reason on its own once it fires.
func (eb *ExchangeBlocker) createBlocker(id blockerId, blockType BlockType) *blocker {
	if !blockType.timed {
		return newBlocker(id, timeoutState{readyUnblock: true})
	}

	endTime := time.Now().Add(blockType.duration)
	timer := time.AfterFunc(blockType.duration, func() { eb.onTimerFire(id) })
	return newBlocker(id, timeoutState{endTime: endTime, timer: timer})
}

// timeoutResetIfExists applies a repeat Block call to an already-live
// blocker. A shorter Timed duration than
// the one already running is ignored — a block can only be extended, never
// shortened, by a later Block call; a Manual block over a still-running
// Timed one is rejected outright (the operator must wait out or explicitly
// Unblock the timer first).
func (eb *ExchangeBlocker) timeoutResetIfExists(b *blocker, blockType BlockType) {
	if blockType.timed {
		expectedEnd := time.Now().Add(blockType.duration)

		b.mu.Lock()
		inProgress := !b.timeout.readyUnblock
		if inProgress {
			if expectedEnd.Before(b.timeout.endTime) {
				b.mu.Unlock()
				return
			}
			if b.timeout.timer != nil {
				b.timeout.timer.Stop()
			}
		}
		b.mu.Unlock()

		b.rollbackToBlockedProgress()

		timer := time.AfterFunc(blockType.duration, func() { eb.onTimerFire(b.id) })
		b.mu.Lock()
		b.timeout = timeoutState{endTime: expectedEnd, timer: timer}
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	readyUnblock := b.timeout.readyUnblock
	b.mu.Unlock()

	if readyUnblock {
		b.rollbackToBlockedProgress()
		return
	}
	eb.log.Error().Str("blocker", b.id.String()).Msg("exchangeblocker: can't block manually while a timed block is still in progress")
}

// onTimerFire runs when a Timed block's timer elapses: it marks the
// timeout ready and requests an unblock exactly as an explicit Unblock call
// would.
func (eb *ExchangeBlocker) onTimerFire(id blockerId) {
	b := eb.lookupBlocker(id)
	if b == nil {
		eb.log.Error().Str("blocker", id.String()).Msg("exchangeblocker: timer fired for a blocker that no longer exists")
		return
	}

	b.mu.Lock()
	b.timeout.readyUnblock = true
	b.mu.Unlock()

	eb.Unblock(id.exchange, id.reason)
}

// Unblock requests that exchange's block under reason be lifted. The block
// doesn't clear synchronously: BeforeUnblocked handlers still run first.
func (eb *ExchangeBlocker) Unblock(exchange domain.ExchangeAccountId, reason BlockReason) {
	b := eb.lookupBlocker(blockerId{exchange: exchange, reason: reason})
	if b == nil {
		eb.mu.RLock()
		_, registered := eb.blockers[exchange]
		eb.mu.RUnlock()
		if !registered {
			eb.log.Error().Str("exchange", exchange.String()).Msg("exchangeblocker: Unblock called for an unregistered exchange account")
		}
		return
	}

	b.mu.Lock()
	b.isUnblockRequested = true
	b.mu.Unlock()

	eb.addEvent(internalEvent{id: b.id, eventType: evUnblockRequested})
}

// RegisterHandler adds fn to the set of handlers invoked at moment, for
// every block on every exchange account this blocker tracks.
func (eb *ExchangeBlocker) RegisterHandler(moment Moment, fn Handler) {
	eb.handlersMu.Lock()
	defer eb.handlersMu.Unlock()
	eb.handlers[moment] = append(eb.handlers[moment], fn)
}

// Stop cancels event processing and waits for the processing goroutine to
// exit, or for ctx to expire first.
func (eb *ExchangeBlocker) Stop(ctx context.Context) error {
	eb.cancel()
	select {
	case <-eb.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

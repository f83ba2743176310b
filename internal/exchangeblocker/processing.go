package exchangeblocker

import (
	"golang.org/x/sync/errgroup"
)

// internalEventType is one transition trigger in the blocker state machine.
type internalEventType int

const (
	evMoveToBlocked internalEventType = iota
	evUnblockRequested
	evMoveBlockedToBeforeUnblocked
	evMoveBeforeUnblockedToUnblocked
)

// internalEvent is what flows through ExchangeBlocker.events. All state
// transitions happen on the single goroutine draining this channel, so
// blocker.status never needs to be read-modify-written racily between
// transitions — only against concurrent Block/Unblock/query calls, which is
// what blocker.mu guards.
type internalEvent struct {
	id        blockerId
	eventType internalEventType
}

func (e internalEvent) withType(t internalEventType) internalEvent {
	return internalEvent{id: e.id, eventType: t}
}

// addEvent enqueues event, or drops it if the blocker has already been
// asked to stop. Unlike a bounded channel that panics on a full queue under
// backpressure, this blocks the caller until either the processing
// goroutine drains a slot or shutdown begins — 20000 pending events is far
// more than any realistic block/unblock burst produces.
func (eb *ExchangeBlocker) addEvent(event internalEvent) {
	select {
	case eb.events <- event:
	case <-eb.ctx.Done():
		eb.log.Trace().Str("blocker", event.id.String()).Msg("exchangeblocker: dropping event after shutdown")
	}
}

func (eb *ExchangeBlocker) processEvents() {
	defer close(eb.done)
	for {
		select {
		case event, ok := <-eb.events:
			if !ok {
				return
			}
			eb.moveNextBlockerStateIfCan(event)
		case <-eb.ctx.Done():
			return
		}
	}
}

// lookupBlocker returns the live blocker for id, or nil if it was never
// created or has already been removed.
func (eb *ExchangeBlocker) lookupBlocker(id blockerId) *blocker {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	reasons, ok := eb.blockers[id.exchange]
	if !ok {
		return nil
	}
	return reasons[id.reason]
}

// removeBlocker deletes id's blocker from the map and closes its unblocked
// channel, waking every WaitUnblock/WaitUnblockWithReason caller.
func (eb *ExchangeBlocker) removeBlocker(id blockerId) *blocker {
	eb.mu.Lock()
	reasons, ok := eb.blockers[id.exchange]
	if !ok {
		eb.mu.Unlock()
		eb.log.Error().Str("exchange", id.exchange.String()).Msg("exchangeblocker: removeBlocker for an unregistered exchange account")
		return nil
	}
	b, ok := reasons[id.reason]
	if ok {
		delete(reasons, id.reason)
	}
	eb.mu.Unlock()

	if !ok {
		eb.log.Error().Str("blocker", id.String()).Msg("exchangeblocker: blocker already removed")
		return nil
	}
	close(b.unblocked)
	return b
}

// moveNextBlockerStateIfCan is the state machine's single decision point:
// event only drives a transition if the blocker is still in the state that
// event expects. A stale event for a blocker that has already moved on (or
// been removed) is silently ignored — this is how a Timed block's timer
// firing after the block was already manually unblocked is a no-op rather
// than a double-unblock.
func (eb *ExchangeBlocker) moveNextBlockerStateIfCan(event internalEvent) {
	b := eb.lookupBlocker(event.id)
	if b == nil {
		return
	}

	switch status := b.currentStatus(); {
	case status == waitBlockedMove && event.eventType == evMoveToBlocked:
		go eb.onMoveToBlocked(event, b)

	case status == progressBlocked && event.eventType == evUnblockRequested:
		b.withProgress(func(_ *bool, s *progressStatus) { *s = waitBeforeUnblockedMove })
		eb.addEvent(event.withType(evMoveBlockedToBeforeUnblocked))

	case status == waitBeforeUnblockedMove && event.eventType == evMoveBlockedToBeforeUnblocked:
		go eb.onMoveBlockedToBeforeUnblocked(event, b)

	case status == waitUnblockedMove && event.eventType == evMoveBeforeUnblockedToUnblocked:
		eb.removeBlocker(event.id)
		go eb.runHandlers(event.id, Unblocked)
	}
}

// onMoveToBlocked runs Blocked handlers, then advances the blocker either
// to progressBlocked (the common case: still blocked, waiting on an
// Unblock) or straight on toward BeforeUnblocked if Unblock already arrived
// while the Blocked handlers were still running.
func (eb *ExchangeBlocker) onMoveToBlocked(event internalEvent, b *blocker) {
	eb.runHandlers(event.id, Blocked)

	var skipToBeforeUnblocked bool
	b.withProgress(func(isUnblockRequested *bool, status *progressStatus) {
		if *isUnblockRequested {
			*status = waitBeforeUnblockedMove
			skipToBeforeUnblocked = true
		} else {
			*status = progressBlocked
		}
	})

	if skipToBeforeUnblocked {
		eb.addEvent(event.withType(evMoveBlockedToBeforeUnblocked))
	}
}

// onMoveBlockedToBeforeUnblocked runs BeforeUnblocked handlers, then
// unconditionally advances to waitUnblockedMove — there's no "cancel the
// unblock" path once BeforeUnblocked has started.
func (eb *ExchangeBlocker) onMoveBlockedToBeforeUnblocked(event internalEvent, b *blocker) {
	eb.runHandlers(event.id, BeforeUnblocked)
	b.withProgress(func(_ *bool, status *progressStatus) { *status = waitUnblockedMove })
	eb.addEvent(event.withType(evMoveBeforeUnblockedToUnblocked))
}

// runHandlers fans event out to every Handler registered for moment
// concurrently and waits for all of them to return before the state
// machine advances past this moment. A handler returning an error only gets
// logged: one observer's failure must never block the transition or take
// down its siblings.
func (eb *ExchangeBlocker) runHandlers(id blockerId, moment Moment) {
	eb.handlersMu.RLock()
	handlers := append([]Handler(nil), eb.handlers[moment]...)
	eb.handlersMu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	pubEvent := Event{ExchangeAccountId: id.exchange, Reason: id.reason, Moment: moment}

	g, ctx := errgroup.WithContext(eb.ctx)
	for _, h := range handlers {
		h := h
		g.Go(func() error {
			if err := h(ctx, pubEvent); err != nil {
				eb.log.Error().Err(err).Str("blocker", id.String()).Str("moment", moment.String()).
					Msg("exchangeblocker: handler returned an error")
			}
			return nil
		})
	}
	_ = g.Wait()
}

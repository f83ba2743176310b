package exchangeblocker

import (
	"sync"
	"time"
)

// progressStatus is one blocker's position in the block -> unblock state
// machine. It moves forward, except that rollbackToBlockedProgress sends it
// back to progressBlocked when a block is renewed; once it reaches
// waitUnblockedMove the blocker is about to be removed entirely.
type progressStatus int

const (
	waitBlockedMove progressStatus = iota
	progressBlocked
	waitBeforeUnblockedMove
	waitUnblockedMove
)

// timeoutState tracks a Timed block's countdown. readyUnblock is set once
// the timer has fired (or the block was created Manual); a live timer is
// kept so a re-Block call on a blocker whose timer is still running can
// cancel and replace it.
type timeoutState struct {
	readyUnblock bool
	endTime      time.Time
	timer        *time.Timer
}

// blocker is the live state for one (exchange, reason) block. mu guards
// every field; the blocker is shared between the goroutine that called
// Block/Unblock and the event-processing goroutine.
type blocker struct {
	id blockerId

	mu                 sync.Mutex
	status             progressStatus
	isUnblockRequested bool
	timeout            timeoutState

	// unblocked is closed exactly once, when the blocker is removed — every
	// goroutine waiting in WaitUnblock/WaitUnblockWithReason observes this
	// as a broadcast.
	unblocked chan struct{}
}

func newBlocker(id blockerId, timeout timeoutState) *blocker {
	return &blocker{
		id:        id,
		status:    waitBlockedMove,
		timeout:   timeout,
		unblocked: make(chan struct{}),
	}
}

// withProgress runs f under the blocker's lock, guarding every read and
// mutation of the blocker's progress fields.
func (b *blocker) withProgress(f func(isUnblockRequested *bool, status *progressStatus)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f(&b.isUnblockRequested, &b.status)
}

func (b *blocker) currentStatus() progressStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// rollbackToBlockedProgress reopens a blocker that was partway toward
// unblocking (or further) back to progressBlocked and clears its unblock
// request — used when a fresh Block call arrives before the previous
// unblock sequence actually finished.
func (b *blocker) rollbackToBlockedProgress() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status >= progressBlocked {
		b.status = progressBlocked
	}
	b.isUnblockRequested = false
}

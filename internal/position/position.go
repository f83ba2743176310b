// Package position implements the fill-amount position ledger kept on top of
// VirtualBalanceHolder. Every fill the balance reservation manager processes
// in a pair's amount currency nudges the position here, on spot and
// derivative pairs alike; only derivative pairs use it to offset
// reservation cost.
package position

import (
	"fmt"
	"sort"
	"time"

	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
)

// Key identifies one exchange/currency-pair position line.
type Key struct {
	ExchangeAccountId domain.ExchangeAccountId
	CurrencyPair       domain.CurrencyPair
}

// Change is one recorded fill-driven move of a position, kept so callers can
// ask "what was the position immediately before some point in time" for
// reporting and PnL-period calculations.
type Change struct {
	Time          time.Time
	Amount        decimal.Decimal
	ClientOrderFillId *domain.ClientOrderId
}

type line struct {
	value   decimal.Decimal
	changes []Change
}

// Tracker owns every exchange/pair position line. Like the rest of the core
// value stores it has no internal locking: the balance reservation manager
// is its sole caller and serializes access.
type Tracker struct {
	lines map[Key]*line
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{lines: make(map[Key]*line)}
}

// Get returns the current position for key and whether a line exists yet.
func (t *Tracker) Get(key Key) (decimal.Decimal, bool) {
	l, ok := t.lines[key]
	if !ok {
		return decimal.Zero, false
	}
	return l.value, true
}

// GetOrZero returns the current position for key, or zero if no fill has
// ever touched it.
func (t *Tracker) GetOrZero(key Key) decimal.Decimal {
	v, _ := t.Get(key)
	return v
}

// Add applies a fill-driven position change: the position moves by amount
// and the change is appended to the line's history for later lookup by
// GetLastPositionChangeBeforePeriod.
func (t *Tracker) Add(key Key, amount decimal.Decimal, clientOrderFillId *domain.ClientOrderId, now time.Time) {
	l, ok := t.lines[key]
	if !ok {
		l = &line{}
		t.lines[key] = l
	}
	l.value = l.value.Add(amount)
	l.changes = append(l.changes, Change{Time: now, Amount: l.value, ClientOrderFillId: clientOrderFillId})
}

// Set overwrites the position for key outright — used to restore a position
// snapshot taken from the exchange rather than accumulated from fills.
// previous, if non-nil, must match the currently stored value; this mirrors
// the optimistic-concurrency check the original restore path performs.
func (t *Tracker) Set(key Key, previous *decimal.Decimal, newValue decimal.Decimal, clientOrderFillId *domain.ClientOrderId, now time.Time) error {
	l, ok := t.lines[key]
	if !ok {
		l = &line{}
		t.lines[key] = l
	}
	if previous != nil && !l.value.Equal(*previous) {
		return fmt.Errorf("position for %v changed concurrently: expected %s, found %s", key, previous, l.value)
	}
	l.value = newValue
	l.changes = append(l.changes, Change{Time: now, Amount: newValue, ClientOrderFillId: clientOrderFillId})
	return nil
}

// GetLastPositionChangeBeforePeriod returns the most recent recorded change
// for key with a timestamp strictly before startOfPeriod, or false if none
// exists (either no fills yet, or all fills happened at or after the
// period start).
func (t *Tracker) GetLastPositionChangeBeforePeriod(key Key, startOfPeriod time.Time) (Change, bool) {
	l, ok := t.lines[key]
	if !ok {
		return Change{}, false
	}
	for i := len(l.changes) - 1; i >= 0; i-- {
		if l.changes[i].Time.Before(startOfPeriod) {
			return l.changes[i], true
		}
	}
	return Change{}, false
}

// Keys returns every key with a tracked position, sorted for deterministic
// snapshot/log output.
func (t *Tracker) Keys() []Key {
	keys := make([]Key, 0, len(t.lines))
	for k := range t.lines {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ExchangeAccountId != keys[j].ExchangeAccountId {
			return keys[i].ExchangeAccountId.String() < keys[j].ExchangeAccountId.String()
		}
		return keys[i].CurrencyPair.String() < keys[j].CurrencyPair.String()
	})
	return keys
}

// Clone returns an independent deep copy, used for snapshotting and for the
// clone-for-dry-run pattern the reservation manager uses to pre-check a
// batch reserve without mutating live state.
func (t *Tracker) Clone() *Tracker {
	out := New()
	for k, l := range t.lines {
		changes := make([]Change, len(l.changes))
		copy(changes, l.changes)
		out.lines[k] = &line{value: l.value, changes: changes}
	}
	return out
}

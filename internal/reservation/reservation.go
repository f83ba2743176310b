// Package reservation implements ReservationStore and the BalanceReservation
// / ApprovedPart value types. The store is a plain map
// owned exclusively by the balance reservation manager — it does no locking
// of its own; the manager serializes all access.
package reservation

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
)

// Id is a monotonically increasing reservation identifier.
type Id uint64

// IdGenerator hands out unique, increasing Ids. A BalanceReservationManager
// owns one generator per engine instance — no process-wide singleton.
type IdGenerator struct {
	next uint64
}

// Next returns a fresh Id, safe to call from a single owner without extra
// synchronization (atomic only guards against accidental concurrent use).
func (g *IdGenerator) Next() Id {
	return Id(atomic.AddUint64(&g.next, 1))
}

// ApprovedPart is a slice of a reservation bound to a specific client order
// id once the order is live on the exchange.
type ApprovedPart struct {
	DateTime         time.Time
	ClientOrderId    domain.ClientOrderId
	Amount           decimal.Decimal
	UnreservedAmount decimal.Decimal
	IsCanceled       bool
}

// BalanceReservation is the live state of one reserved order slot.
// Invariants, enforced by the manager rather than this struct:
//   - unreserved_amount >= 0 up to the symbol margin error.
//   - not_approved_amount + sum(approved_parts[*].unreserved_amount) ==
//     unreserved_amount, up to the symbol margin error.
//   - amount >= unreserved_amount initially; amount only changes during
//     price updates and transfers.
type BalanceReservation struct {
	ConfigurationDescriptor domain.ConfigurationDescriptor
	ExchangeAccountId       domain.ExchangeAccountId
	CurrencyPairMetadata    *domain.CurrencyPairMetadata
	OrderSide               domain.OrderSide
	Price                   decimal.Decimal

	Amount           decimal.Decimal
	TakenFreeAmount  decimal.Decimal
	Cost             decimal.Decimal
	ReservationCurrencyCode domain.CurrencyCode

	UnreservedAmount decimal.Decimal
	NotApprovedAmount decimal.Decimal
	ApprovedParts    map[domain.ClientOrderId]*ApprovedPart
}

// BalanceRequest rebuilds the canonical lookup key for this reservation's
// reserved-amount tree entry: reservation currency on this exchange/pair.
func (r *BalanceReservation) BalanceRequest() domain.BalanceRequest {
	return domain.NewBalanceRequest(
		r.ConfigurationDescriptor,
		r.ExchangeAccountId,
		r.CurrencyPairMetadata.CurrencyPair(),
		r.ReservationCurrencyCode,
	)
}

// ConvertInReservationCurrency converts an amount-currency amount into this
// reservation's currency at its current price — used by transfer to compare
// cost across two reservations that may be quoted at different prices.
func (r *BalanceReservation) ConvertInReservationCurrency(amountInAmountCurrency decimal.Decimal) decimal.Decimal {
	return r.CurrencyPairMetadata.FromAmountCurrency(r.ReservationCurrencyCode, amountInAmountCurrency, r.Price)
}

// NotApprovedInReservationCurrency converts not_approved_amount (amount
// currency) into the reservation currency at the current price.
func (r *BalanceReservation) NotApprovedInReservationCurrency() decimal.Decimal {
	return r.ConvertInReservationCurrency(r.NotApprovedAmount)
}

// GetProportionalCostAmount scales Cost by the same ratio amountDiff bears
// to the reservation's current unreserved amount. Every partial unreserve or
// transfer shrinks (or grows) a reservation's unreserved_amount without
// knowing the per-unit price that produced Cost, so cost is kept
// proportional to the remaining amount rather than recomputed from scratch.
// When the reservation has no unreserved amount to take a ratio against, it
// returns the full Cost.
func (r *BalanceReservation) GetProportionalCostAmount(amountDiffInAmountCurrency decimal.Decimal) decimal.Decimal {
	if r.UnreservedAmount.IsZero() {
		// Nothing has been charged against this reservation yet (the state
		// right after construction, before the first add-reserved-amount
		// call folds its preset cost in): the diff represents the whole
		// cost rather than a fraction of it.
		return r.Cost
	}
	return r.Cost.Mul(amountDiffInAmountCurrency).Div(r.UnreservedAmount)
}

// SortedApprovedOrderIds returns the client order ids with an approved part,
// sorted for deterministic logging/test output.
func (r *BalanceReservation) SortedApprovedOrderIds() []domain.ClientOrderId {
	ids := make([]domain.ClientOrderId, 0, len(r.ApprovedParts))
	for id := range r.ApprovedParts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Store owns all live reservations, keyed by Id. It performs no locking: the
// balance reservation manager is the sole caller and serializes access.
type Store struct {
	reservations map[Id]*BalanceReservation
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{reservations: make(map[Id]*BalanceReservation)}
}

// Add inserts or overwrites the reservation for id.
func (s *Store) Add(id Id, reservation *BalanceReservation) {
	s.reservations[id] = reservation
}

// Remove deletes the reservation for id, if present.
func (s *Store) Remove(id Id) {
	delete(s.reservations, id)
}

// TryGet returns the reservation for id, or nil if it doesn't exist.
func (s *Store) TryGet(id Id) *BalanceReservation {
	return s.reservations[id]
}

// GetAllRawReservations returns a snapshot of every live reservation,
// suitable for iteration without risk of mutation during the walk.
func (s *Store) GetAllRawReservations() map[Id]*BalanceReservation {
	out := make(map[Id]*BalanceReservation, len(s.reservations))
	for id, r := range s.reservations {
		out[id] = r
	}
	return out
}

// GetReservationIds returns every live reservation id, sorted, for logging.
func (s *Store) GetReservationIds() []Id {
	ids := make([]Id, 0, len(s.reservations))
	for id := range s.reservations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clear removes every reservation from the store.
func (s *Store) Clear() {
	s.reservations = make(map[Id]*BalanceReservation)
}

// Len reports how many reservations are currently live.
func (s *Store) Len() int {
	return len(s.reservations)
}

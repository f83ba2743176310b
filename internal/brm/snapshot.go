package brm

import (
	"fmt"

	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
	"github.com/mmbcore/engine/internal/position"
	"github.com/mmbcore/engine/internal/reservation"
	"github.com/mmbcore/engine/internal/valuetree"
)

// Balances is a point-in-time snapshot of everything BRM needs to resume
// after a restart without replaying history: raw exchange balances, the
// virtual diff ledger, the reserved-amount and amount-limit trees, every
// derivative position, and every live reservation.
type Balances struct {
	RawBalances         map[domain.ExchangeAccountId]map[domain.CurrencyCode]decimal.Decimal
	VirtualBalanceDiffs *valuetree.Tree
	ReservedAmount      *valuetree.Tree
	AmountLimits        *valuetree.Tree
	Positions           map[position.Key]decimal.Decimal
	Reservations        map[reservation.Id]*reservation.BalanceReservation
}

// GetState returns a snapshot of the manager's current state, suitable for
// persistence ahead of a hot restart.
func (m *Manager) GetState() Balances {
	positions := make(map[position.Key]decimal.Decimal)
	for _, key := range m.positions.Keys() {
		positions[key] = m.positions.GetOrZero(key)
	}

	return Balances{
		RawBalances:         m.balances.GetRawExchangeBalances(),
		VirtualBalanceDiffs: m.balances.GetVirtualBalanceDiffs(),
		ReservedAmount:      m.reservedAmount.Clone(),
		AmountLimits:        m.amountLimits.Clone(),
		Positions:           positions,
		Reservations:        m.reservations.GetAllRawReservations(),
	}
}

// UpdateReservedBalances replaces the live reservation set wholesale — the
// entry point a hot restart uses to repopulate reservations from a prior
// Balances snapshot — then rebuilds the reserved-amount tree to match.
func (m *Manager) UpdateReservedBalances(reservations map[reservation.Id]*reservation.BalanceReservation) {
	m.reservations.Clear()
	for id, r := range reservations {
		m.reservations.Add(id, r)
	}
	m.SyncReservationAmounts()
}

// SyncReservationAmounts rebuilds the reserved-amount tree from scratch by
// summing every live reservation's unreserved_amount into its
// BalanceRequest bucket. Useful both after
// UpdateReservedBalances and as a standalone consistency check.
func (m *Manager) SyncReservationAmounts() {
	grouped := make(map[domain.BalanceRequest]decimal.Decimal)
	for _, r := range m.reservations.GetAllRawReservations() {
		req := domain.NewBalanceRequest(r.ConfigurationDescriptor, r.ExchangeAccountId, r.CurrencyPairMetadata.CurrencyPair(), r.CurrencyPairMetadata.TradeCode(r.OrderSide, domain.Before))
		grouped[req] = grouped[req].Add(r.UnreservedAmount)
	}

	tree := valuetree.New()
	for req, amount := range grouped {
		tree.Set(req, amount)
	}
	m.reservedAmount = tree
}

// RestoreFillAmountLimits installs a previously-snapshotted amount-limits
// tree and position tracker wholesale, the counterpart of UpdateReservedBalances
// for the limit/position half of a Balances snapshot.
func (m *Manager) RestoreFillAmountLimits(amountLimits *valuetree.Tree, positions *position.Tracker) {
	m.amountLimits = amountLimits
	m.positions = positions
}

// RestoreFillAmountPosition overwrites the tracked position for a
// derivative market, used to reconcile against an authoritative position
// figure fetched from the exchange. Returns ErrRestorationOnSpot for a
// non-derivative market.
func (m *Manager) RestoreFillAmountPosition(exchange domain.ExchangeAccountId, metadata *domain.CurrencyPairMetadata, newPosition decimal.Decimal) error {
	if !metadata.IsDerivative {
		return fmt.Errorf("%w: %s", ErrRestorationOnSpot, metadata.CurrencyPair())
	}

	key := position.Key{ExchangeAccountId: exchange, CurrencyPair: metadata.CurrencyPair()}
	var previousPtr *decimal.Decimal
	if previous, ok := m.positions.Get(key); ok {
		previousPtr = &previous
	}

	now := m.clock()
	return m.positions.Set(key, previousPtr, newPosition, nil, now)
}

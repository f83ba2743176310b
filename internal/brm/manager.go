// Package brm implements the BalanceReservationManager: the
// single-owner component that turns exchange balances plus a caller-supplied
// reservation request into a reserve/unreserve/approve/transfer/fill
// lifecycle, enforcing per-market amount limits and derivative position
// accounting along the way.
//
// A Manager is not safe for concurrent use. Callers serialize every call
// themselves — by owning the Manager from a single goroutine, or by holding
// a mutex/actor mailbox around it — the same way the engine's strategy loop
// owns its order book. BRM is deliberately the inexpensive, non-concurrent
// half of the core; ExchangeBlocker is the concurrent half.
package brm

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/mmbcore/engine/internal/balance"
	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
	"github.com/mmbcore/engine/internal/position"
	"github.com/mmbcore/engine/internal/reservation"
	"github.com/mmbcore/engine/internal/valuetree"
)

// untouchableDerivativeFraction is the hard-coded 5% buffer withheld from a
// derivative market's available balance. A production deployment should
// expose this as configuration rather than a constant.
var untouchableDerivativeFraction = decimal.NewFromFloat(0.05)

type marketKey struct {
	Exchange domain.ExchangeAccountId
	Pair     domain.CurrencyPair
}

// Manager is the balance reservation manager for one engine instance. Build
// one per engine — it carries no process-wide state.
type Manager struct {
	clock func() time.Time
	log   zerolog.Logger

	leverage map[marketKey]decimal.Decimal
	metadata map[marketKey]*domain.CurrencyPairMetadata

	reservedAmount *valuetree.Tree
	amountLimits   *valuetree.Tree
	positions      *position.Tracker
	balances       *balance.Holder
	reservations   *reservation.Store
	idGen          reservation.IdGenerator
}

// NewManager returns an empty Manager. clock is injected so tests can
// control reservation/approval timestamps deterministically; production
// callers pass time.Now. logger receives position/limit overrun warnings.
func NewManager(clock func() time.Time, logger zerolog.Logger) *Manager {
	return &Manager{
		clock:          clock,
		log:            logger,
		leverage:       make(map[marketKey]decimal.Decimal),
		metadata:       make(map[marketKey]*domain.CurrencyPairMetadata),
		reservedAmount: valuetree.New(),
		amountLimits:   valuetree.New(),
		positions:      position.New(),
		balances:       balance.New(),
		reservations:   reservation.NewStore(),
	}
}

// RegisterMarket records a currency pair's metadata for an exchange so
// position/state queries that only have (exchange, pair) to go on — without
// a ReserveParameters in hand — can still resolve it.
func (m *Manager) RegisterMarket(exchange domain.ExchangeAccountId, metadata *domain.CurrencyPairMetadata) {
	m.metadata[marketKey{Exchange: exchange, Pair: metadata.CurrencyPair()}] = metadata
}

// Metadata returns the metadata registered for (exchange, pair), if any.
func (m *Manager) Metadata(exchange domain.ExchangeAccountId, pair domain.CurrencyPair) (*domain.CurrencyPairMetadata, bool) {
	md, ok := m.metadata[marketKey{Exchange: exchange, Pair: pair}]
	return md, ok
}

// SetLeverage registers the leverage in effect for a market. Until this has
// been called at least once for that (exchange, pair), available-balance
// queries on the market report ok=false (so reservations don't fit), and
// derivative fills and commission handling fail with ErrLeverageMissing.
func (m *Manager) SetLeverage(exchange domain.ExchangeAccountId, pair domain.CurrencyPair, leverage decimal.Decimal) {
	m.leverage[marketKey{Exchange: exchange, Pair: pair}] = leverage
}

func (m *Manager) getLeverage(exchange domain.ExchangeAccountId, pair domain.CurrencyPair) (decimal.Decimal, bool) {
	l, ok := m.leverage[marketKey{Exchange: exchange, Pair: pair}]
	return l, ok
}

// SetRawBalance installs the exchange-reported balance for a currency, as
// reported by an account snapshot or balance-update stream.
func (m *Manager) SetRawBalance(exchange domain.ExchangeAccountId, currency domain.CurrencyCode, amount decimal.Decimal) {
	m.balances.SetRawBalance(exchange, currency, amount)
}

// SetTargetAmountLimit sets the amount-currency position limit for a market,
// applied against both of its trade codes (base and quote), matching
// set_target_amount_limit: a limit always binds both sides of a pair.
func (m *Manager) SetTargetAmountLimit(cfg domain.ConfigurationDescriptor, exchange domain.ExchangeAccountId, metadata *domain.CurrencyPairMetadata, limit decimal.Decimal) {
	for _, code := range [2]domain.CurrencyCode{metadata.Base, metadata.Quote} {
		req := domain.NewBalanceRequest(cfg, exchange, metadata.CurrencyPair(), code)
		m.amountLimits.Set(req, limit)
	}
}

// GetPosition returns the signed fill-amount position for (exchange, pair)
// from the requesting side's point of view: negated for a sell lookup, so
// callers can read "how much of this would a fill on this side add to my
// exposure" directly. Returns 0 if metadata isn't registered or no fill has
// ever touched the position.
func (m *Manager) GetPosition(exchange domain.ExchangeAccountId, pair domain.CurrencyPair, side domain.OrderSide) decimal.Decimal {
	metadata, ok := m.Metadata(exchange, pair)
	if !ok {
		return decimal.Zero
	}
	positionValue := m.positions.GetOrZero(position.Key{ExchangeAccountId: exchange, CurrencyPair: pair})
	if metadata.TradeCode(side, domain.Before) == metadata.Base {
		return positionValue.Neg()
	}
	return positionValue
}

package brm

import (
	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
	"github.com/mmbcore/engine/internal/position"
)

// TryGetAvailableBalance is the full available-balance pipeline: virtual
// balance, plus an optional offsetting-position free amount, minus the
// derivative untouchable buffer, clamped by any registered amount limit,
// optionally re-expressed with leverage applied.
// Returns ok=false when the underlying virtual balance lookup fails, when no
// leverage is registered for the market (spot markets included), or when an
// amount limit applies but the market was never registered with
// RegisterMarket.
func (m *Manager) TryGetAvailableBalance(
	cfg domain.ConfigurationDescriptor,
	exchange domain.ExchangeAccountId,
	metadata *domain.CurrencyPairMetadata,
	side domain.OrderSide,
	price decimal.Decimal,
	includeFreeAmount bool,
	isLeveraged bool,
) (decimal.Decimal, bool) {
	currencyCode := metadata.TradeCode(side, domain.Before)
	req := domain.NewBalanceRequest(cfg, exchange, metadata.CurrencyPair(), currencyCode)

	balanceInCurrency, ok := m.balances.VirtualBalance(req, metadata, &price)
	if !ok {
		return decimal.Zero, false
	}

	leverage, hasLeverage := m.getLeverage(exchange, metadata.CurrencyPair())
	if !hasLeverage {
		return decimal.Zero, false
	}

	if metadata.IsDerivative {
		if includeFreeAmount {
			freeAmountInAmountCurrency := m.getUnreservedPositionInAmountCurrency(exchange, metadata, side)
			freeAmountInCurrency := metadata.FromAmountCurrency(currencyCode, freeAmountInAmountCurrency, price)
			freeAmountInCurrency = freeAmountInCurrency.Div(leverage).Mul(metadata.AmountMultiplier)
			balanceInCurrency = balanceInCurrency.Add(freeAmountInCurrency)
		}
		balanceInCurrency = balanceInCurrency.Sub(getUntouchableAmount(metadata, balanceInCurrency))
	}

	if _, hasLimit := m.amountLimits.Get(req); hasLimit {
		var ok2 bool
		balanceInCurrency, ok2 = m.getBalanceWithAppliedLimits(cfg, req, metadata, side, balanceInCurrency, price, leverage)
		if !ok2 {
			return decimal.Zero, false
		}
	}

	if isLeveraged {
		balanceInCurrency = balanceInCurrency.Mul(leverage).Div(metadata.AmountMultiplier)
	}

	return balanceInCurrency, true
}

// TryGetAvailableBalanceWithUnknownSide resolves which side currencyCode
// belongs to (base/sell or quote/buy) and delegates to
// TryGetAvailableBalance; if currencyCode is neither trade code (e.g. a
// bystander currency on the same exchange) it falls back to a plain virtual
// balance lookup with no limit/leverage pipeline applied.
func (m *Manager) TryGetAvailableBalanceWithUnknownSide(
	cfg domain.ConfigurationDescriptor,
	exchange domain.ExchangeAccountId,
	metadata *domain.CurrencyPairMetadata,
	currencyCode domain.CurrencyCode,
	price decimal.Decimal,
) (decimal.Decimal, bool) {
	for _, side := range [2]domain.OrderSide{domain.OrderSideBuy, domain.OrderSideSell} {
		if metadata.TradeCode(side, domain.Before) == currencyCode {
			return m.TryGetAvailableBalance(cfg, exchange, metadata, side, price, true, false)
		}
	}
	req := domain.NewBalanceRequest(cfg, exchange, metadata.CurrencyPair(), currencyCode)
	return m.balances.VirtualBalance(req, metadata, &price)
}

// GetAvailableLeveragedBalance is TryGetAvailableBalance with free-amount
// offsetting and leverage both applied — the figure a strategy checks
// before sizing a new order.
func (m *Manager) GetAvailableLeveragedBalance(
	cfg domain.ConfigurationDescriptor,
	exchange domain.ExchangeAccountId,
	metadata *domain.CurrencyPairMetadata,
	side domain.OrderSide,
	price decimal.Decimal,
) (decimal.Decimal, bool) {
	return m.TryGetAvailableBalance(cfg, exchange, metadata, side, price, true, true)
}

// getAvailableBalance is the internal, error-swallowing variant used by the
// reserve pipeline: missing leverage or a missing conversion price reads as
// zero available balance rather than aborting the caller.
func (m *Manager) getAvailableBalance(p *ReserveParameters, includeFreeAmount bool) decimal.Decimal {
	balance, ok := m.TryGetAvailableBalance(p.ConfigurationDescriptor, p.ExchangeAccountId, p.CurrencyPairMetadata, p.OrderSide, p.Price, includeFreeAmount, false)
	if !ok {
		return decimal.Zero
	}
	return balance
}

// getBalanceWithAppliedLimits clamps balanceInCurrency so that
// reserved + position + this balance never exceeds the registered amount
// limit. Returns ok=false if the position lookup needed
// for the clamp isn't available.
func (m *Manager) getBalanceWithAppliedLimits(
	cfg domain.ConfigurationDescriptor,
	req domain.BalanceRequest,
	metadata *domain.CurrencyPairMetadata,
	side domain.OrderSide,
	balanceInCurrency decimal.Decimal,
	price decimal.Decimal,
	leverage decimal.Decimal,
) (decimal.Decimal, bool) {
	positionAmount, limit, ok := m.getPositionValues(cfg, req.ExchangeAccountId, metadata, side)
	if !ok {
		return decimal.Zero, false
	}

	reservedAmount := m.reservedAmount.GetOrZero(req)
	reservationWithFills := reservedAmount.Add(positionAmount)
	limitLeft := limit.Sub(reservationWithFills)

	balanceInCurrency = balanceInCurrency.Mul(leverage).Div(metadata.AmountMultiplier)
	balanceInAmountCurrency := metadata.ToAmountCurrency(req.CurrencyCode, balanceInCurrency, price)

	limitedBalanceInAmountCurrency := decimal.Min(balanceInAmountCurrency, limitLeft)
	limitedBalance := metadata.FromAmountCurrency(req.CurrencyCode, limitedBalanceInAmountCurrency, price)

	// converting back to pure balance
	limitedBalance = limitedBalance.Div(leverage).Mul(metadata.AmountMultiplier)

	return decimal.ClampNonNegative(limitedBalance), true
}

// getPositionValues returns the current signed position and the configured
// limit for the trade-code side of req, or ok=false if no market is
// registered for (exchange, pair).
func (m *Manager) getPositionValues(cfg domain.ConfigurationDescriptor, exchange domain.ExchangeAccountId, metadata *domain.CurrencyPairMetadata, side domain.OrderSide) (positionAmount decimal.Decimal, limit decimal.Decimal, ok bool) {
	if _, registered := m.Metadata(exchange, metadata.CurrencyPair()); !registered {
		return decimal.Zero, decimal.Zero, false
	}

	currencyCode := metadata.TradeCode(side, domain.Before)
	req := domain.NewBalanceRequest(cfg, exchange, metadata.CurrencyPair(), currencyCode)
	limit = m.amountLimits.GetOrZero(req)
	positionAmount = m.GetPosition(exchange, metadata.CurrencyPair(), side)
	return positionAmount, limit, true
}

// getUntouchableAmount is the hard-coded 5% derivative buffer kept aside so
// a position can never be reserved down to exactly zero margin.
func getUntouchableAmount(metadata *domain.CurrencyPairMetadata, amount decimal.Decimal) decimal.Decimal {
	if !metadata.IsDerivative {
		return decimal.Zero
	}
	return amount.Mul(untouchableDerivativeFraction)
}

// getPositionInAmountCurrency returns how much of tradeSide's exposure the
// current position already covers: for a buy, how short we are (position
// negative); for a sell, how long we are. Spot markets never offset.
func (m *Manager) getPositionInAmountCurrency(exchange domain.ExchangeAccountId, metadata *domain.CurrencyPairMetadata, tradeSide domain.OrderSide) decimal.Decimal {
	if !metadata.IsDerivative {
		return decimal.Zero
	}
	current := m.positions.GetOrZero(position.Key{ExchangeAccountId: exchange, CurrencyPair: metadata.CurrencyPair()})
	if tradeSide == domain.OrderSideBuy {
		return decimal.Max(decimal.Zero, current.Neg())
	}
	return decimal.Max(decimal.Zero, current)
}

// getUnreservedPositionInAmountCurrency subtracts amounts already claimed by
// other live reservations on the same side from the offsetting position, so
// a fresh reservation only gets credit for what's actually still free.
func (m *Manager) getUnreservedPositionInAmountCurrency(exchange domain.ExchangeAccountId, metadata *domain.CurrencyPairMetadata, tradeSide domain.OrderSide) decimal.Decimal {
	freePosition := m.getPositionInAmountCurrency(exchange, metadata, tradeSide)

	takenAmount := decimal.Zero
	for _, r := range m.reservations.GetAllRawReservations() {
		if r.ExchangeAccountId == exchange && r.CurrencyPairMetadata.CurrencyPair() == metadata.CurrencyPair() && r.OrderSide == tradeSide {
			takenAmount = takenAmount.Add(r.TakenFreeAmount)
		}
	}

	return decimal.Max(decimal.Zero, freePosition.Sub(takenAmount))
}

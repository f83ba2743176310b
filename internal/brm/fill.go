package brm

import (
	"fmt"
	"time"

	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
	"github.com/mmbcore/engine/internal/position"
)

// HandlePositionFillAmountChange applies one exchange fill to the virtual
// balance and, when currencyCode is the market's amount currency, to the
// fill-amount position ledger (spot and derivative markets alike).
// It returns the change expressed in currencyCode, which callers use to
// reconcile against the exchange's own fill report.
func (m *Manager) HandlePositionFillAmountChange(
	tradeSide domain.OrderSide,
	clientOrderFillId *domain.ClientOrderId,
	fillAmount decimal.Decimal,
	price decimal.Decimal,
	cfg domain.ConfigurationDescriptor,
	exchange domain.ExchangeAccountId,
	metadata *domain.CurrencyPairMetadata,
	currencyCode domain.CurrencyCode,
) (decimal.Decimal, error) {
	req := domain.NewBalanceRequest(cfg, exchange, metadata.CurrencyPair(), currencyCode)
	changeAmountInCurrency := decimal.Zero

	if !metadata.IsDerivative {
		if err := m.addVirtualBalance(req, metadata, price, fillAmount.Neg()); err != nil {
			return decimal.Zero, err
		}
		changeAmountInCurrency = metadata.FromAmountCurrency(currencyCode, fillAmount, price)
	}

	if metadata.AmountCurrencyCode() != currencyCode {
		return changeAmountInCurrency, nil
	}

	positionChange := fillAmount
	if metadata.IsDerivative {
		freeAmount := m.getPositionInAmountCurrency(exchange, metadata, tradeSide)
		moveAmount := decimal.Abs(fillAmount)

		var addAmount, subAmount decimal.Decimal
		if freeAmount.Sub(moveAmount).GreaterThanOrEqual(decimal.Zero) {
			addAmount, subAmount = moveAmount, decimal.Zero
		} else {
			addAmount, subAmount = freeAmount, decimal.Abs(freeAmount.Sub(moveAmount))
		}

		leverage, ok := m.getLeverage(exchange, metadata.CurrencyPair())
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %s %s", ErrLeverageMissing, exchange, metadata.CurrencyPair())
		}

		diffInAmountCurrency := addAmount.Sub(subAmount).Div(leverage).Mul(metadata.AmountMultiplier)
		if err := m.addVirtualBalance(req, metadata, price, diffInAmountCurrency); err != nil {
			return decimal.Zero, err
		}
		changeAmountInCurrency = metadata.FromAmountCurrency(currencyCode, diffInAmountCurrency, price)

		// Amount currency is always base in this model (see CurrencyPairMetadata
		// .AmountCurrencyCode), so a derivative fill's position change always
		// carries the opposite sign of the raw fill — the "reversed derivative"
		// case is the only case here, not a special one.
		positionChange = positionChange.Neg()
	}

	now := m.clock()
	m.positions.Add(position.Key{ExchangeAccountId: exchange, CurrencyPair: metadata.CurrencyPair()}, positionChange, clientOrderFillId, now)
	m.validatePositionAndLimits(cfg, exchange, metadata, currencyCode)

	return changeAmountInCurrency, nil
}

// validatePositionAndLimits logs, but never fails, a position that has
// crept past its configured limit: overruns never block a fill, since the
// engine must still record what the exchange actually did.
func (m *Manager) validatePositionAndLimits(cfg domain.ConfigurationDescriptor, exchange domain.ExchangeAccountId, metadata *domain.CurrencyPairMetadata, currencyCode domain.CurrencyCode) {
	req := domain.NewBalanceRequest(cfg, exchange, metadata.CurrencyPair(), currencyCode)
	limit, ok := m.amountLimits.Get(req)
	if !ok {
		return
	}
	positionAmount, ok := m.positions.Get(position.Key{ExchangeAccountId: exchange, CurrencyPair: metadata.CurrencyPair()})
	if !ok {
		return
	}
	if decimal.Abs(positionAmount).GreaterThan(limit) {
		m.log.Error().
			Str("exchange", exchange.String()).
			Str("pair", metadata.CurrencyPair().String()).
			Str("position", positionAmount.String()).
			Str("limit", limit.String()).
			Msg("position exceeds configured limit")
	}
}

// HandlePositionFillAmountChangeCommission debits a fill's commission from
// the virtual balance, converting it through the amount currency first when
// it was charged in a currency other than the derivative's balance
// currency.
func (m *Manager) HandlePositionFillAmountChangeCommission(
	commissionCurrencyCode domain.CurrencyCode,
	commissionAmount decimal.Decimal,
	convertedCommissionCurrencyCode domain.CurrencyCode,
	convertedCommissionAmount decimal.Decimal,
	price decimal.Decimal,
	cfg domain.ConfigurationDescriptor,
	exchange domain.ExchangeAccountId,
	metadata *domain.CurrencyPairMetadata,
) error {
	leverage, ok := m.getLeverage(exchange, metadata.CurrencyPair())
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrLeverageMissing, exchange, metadata.CurrencyPair())
	}

	if !metadata.IsDerivative || metadata.BalanceCurrencyCode == commissionCurrencyCode {
		req := domain.NewBalanceRequest(cfg, exchange, metadata.CurrencyPair(), commissionCurrencyCode)
		resCommission := commissionAmount.Div(leverage)
		m.balances.AddBalance(req, resCommission.Neg())
		return nil
	}

	req := domain.NewBalanceRequest(cfg, exchange, metadata.CurrencyPair(), convertedCommissionCurrencyCode)
	commissionInAmountCurrency := metadata.ToAmountCurrency(convertedCommissionCurrencyCode, convertedCommissionAmount, price)
	resCommissionInAmountCurrency := commissionInAmountCurrency.Div(leverage)
	return m.addVirtualBalance(req, metadata, price, resCommissionInAmountCurrency.Neg())
}

// GetFillAmountPositionPercent reports how much of its configured limit a
// market's current position occupies, clamped to [0, 1]. Returns ok=false
// if no limit is configured for the side.
func (m *Manager) GetFillAmountPositionPercent(cfg domain.ConfigurationDescriptor, exchange domain.ExchangeAccountId, metadata *domain.CurrencyPairMetadata, side domain.OrderSide) (decimal.Decimal, bool) {
	positionAmount, limit, ok := m.getPositionValues(cfg, exchange, metadata, side)
	if !ok || limit.IsZero() {
		return decimal.Zero, false
	}
	percent := positionAmount.Div(limit)
	return decimal.Min(decimal.NewFromInt(1), decimal.Max(decimal.Zero, percent)), true
}

// GetLastPositionChangeBeforePeriod returns the most recent fill-driven
// position change recorded for (exchange, pair) strictly before
// startOfPeriod, used to compute PnL over a reporting window.
func (m *Manager) GetLastPositionChangeBeforePeriod(exchange domain.ExchangeAccountId, pair domain.CurrencyPair, startOfPeriod time.Time) (position.Change, bool) {
	return m.positions.GetLastPositionChangeBeforePeriod(position.Key{ExchangeAccountId: exchange, CurrencyPair: pair}, startOfPeriod)
}

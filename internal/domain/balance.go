package domain

import (
	"fmt"

	"github.com/mmbcore/engine/internal/decimal"
)

// CurrencyCode is an interned short string such as "BTC" or "USDT".
type CurrencyCode string

// CurrencyPair is a base/quote pair, e.g. BTC/USDT.
type CurrencyPair struct {
	Base  CurrencyCode
	Quote CurrencyCode
}

func NewCurrencyPair(base, quote CurrencyCode) CurrencyPair {
	return CurrencyPair{Base: base, Quote: quote}
}

func (p CurrencyPair) String() string {
	return fmt.Sprintf("%s/%s", p.Base, p.Quote)
}

// ExchangeAccountId identifies one logical connection to an exchange: the
// exchange name plus an instance index, so the same exchange can be
// connected to more than once (e.g. two API keys).
type ExchangeAccountId struct {
	ExchangeName  string
	InstanceIndex uint32
}

func NewExchangeAccountId(exchangeName string, instanceIndex uint32) ExchangeAccountId {
	return ExchangeAccountId{ExchangeName: exchangeName, InstanceIndex: instanceIndex}
}

func (e ExchangeAccountId) String() string {
	return fmt.Sprintf("%s_%d", e.ExchangeName, e.InstanceIndex)
}

// ConfigurationDescriptor is an opaque tenant tag isolating multiple
// strategies that may share the same BalanceReservationManager instance.
type ConfigurationDescriptor struct {
	value string
}

func NewConfigurationDescriptor(value string) ConfigurationDescriptor {
	return ConfigurationDescriptor{value: value}
}

func (c ConfigurationDescriptor) String() string { return c.value }

// BeforeAfter selects which side of a fill/transfer a trade-code lookup
// refers to. Spot reservation accounting only ever uses Before; it stays an
// explicit parameter so a future derivative trade-code rule can change
// post-fill behavior without touching TradeCode's signature.
type BeforeAfter int

const (
	Before BeforeAfter = iota
	After
)

// ClientOrderId is the exchange-facing order identifier an ApprovedPart is
// bound to once an order is live.
type ClientOrderId string

// BalanceRequest is the canonical key for every balance-indexed map: it
// pins a configuration scope, exchange account, currency pair and the
// specific currency within that pair being queried.
type BalanceRequest struct {
	ConfigurationDescriptor ConfigurationDescriptor
	ExchangeAccountId       ExchangeAccountId
	CurrencyPair            CurrencyPair
	CurrencyCode            CurrencyCode
}

func NewBalanceRequest(cfg ConfigurationDescriptor, exchange ExchangeAccountId, pair CurrencyPair, code CurrencyCode) BalanceRequest {
	return BalanceRequest{
		ConfigurationDescriptor: cfg,
		ExchangeAccountId:       exchange,
		CurrencyPair:            pair,
		CurrencyCode:            code,
	}
}

// CurrencyPairMetadata is the immutable descriptor for a tradeable pair:
// spot vs. derivative, the conversion rules between amount currency and
// either side of the pair, and the rounding rules applied at symbol
// boundaries.
type CurrencyPairMetadata struct {
	IsDerivative bool
	Base         CurrencyCode
	Quote        CurrencyCode

	// BalanceCurrencyCode is only meaningful for derivatives: the currency
	// the exchange actually settles PnL and margin in. Spot markets leave
	// this empty — the balance currency is always the amount currency.
	BalanceCurrencyCode CurrencyCode
	AmountMultiplier    decimal.Decimal

	// AmountPrecision is the number of fractional digits an order amount
	// is rounded to; it also defines the symbol margin error (ε) below
	// which a remaining amount is treated as fully consumed.
	AmountPrecision int32
	// PricePrecision is the number of fractional digits a price is
	// rounded to.
	PricePrecision int32
}

func (m *CurrencyPairMetadata) CurrencyPair() CurrencyPair {
	return CurrencyPair{Base: m.Base, Quote: m.Quote}
}

// AmountCurrencyCode is the currency order sizes are expressed in: base for
// every pair the core supports, spot or derivative.
func (m *CurrencyPairMetadata) AmountCurrencyCode() CurrencyCode {
	return m.Base
}

// BalanceCurrency returns the currency a derivative market settles in, or
// the amount currency for spot markets (where there is no separate balance
// currency concept).
func (m *CurrencyPairMetadata) BalanceCurrency() CurrencyCode {
	if m.IsDerivative && m.BalanceCurrencyCode != "" {
		return m.BalanceCurrencyCode
	}
	return m.AmountCurrencyCode()
}

// TradeCode returns the reservation currency for a side: base for sell,
// quote for buy. BeforeAfter is accepted for parity with the original
// two-phase (pre/post fill) lookup; spot accounting only ever asks for
// Before.
func (m *CurrencyPairMetadata) TradeCode(side OrderSide, _ BeforeAfter) CurrencyCode {
	if side.IsSell() {
		return m.Base
	}
	return m.Quote
}

// ToAmountCurrency converts an amount denominated in code into the amount
// currency (base) at the given price.
func (m *CurrencyPairMetadata) ToAmountCurrency(code CurrencyCode, amount, price decimal.Decimal) decimal.Decimal {
	if code == m.Base || amount.IsZero() {
		return amount
	}
	if price.IsZero() {
		return decimal.Zero
	}
	return amount.Div(price)
}

// FromAmountCurrency converts an amount currency (base) value into code at
// the given price.
func (m *CurrencyPairMetadata) FromAmountCurrency(code CurrencyCode, amount, price decimal.Decimal) decimal.Decimal {
	if code == m.Base || amount.IsZero() {
		return amount
	}
	return amount.Mul(price)
}

// ConvertFromAmountCurrency is an alias of FromAmountCurrency kept because
// the reservation preset computation names it that way.
func (m *CurrencyPairMetadata) ConvertFromAmountCurrency(code CurrencyCode, amount, price decimal.Decimal) decimal.Decimal {
	return m.FromAmountCurrency(code, amount, price)
}

// RoundToRemoveAmountPrecisionError rounds amount to AmountPrecision digits,
// which is how the core treats "equal up to rounding error."
func (m *CurrencyPairMetadata) RoundToRemoveAmountPrecisionError(amount decimal.Decimal) (decimal.Decimal, error) {
	if m.AmountPrecision < 0 {
		return decimal.Zero, fmt.Errorf("invalid amount precision %d for pair %s", m.AmountPrecision, m.CurrencyPair())
	}
	return amount.Round(m.AmountPrecision), nil
}

// SymbolMarginError returns ε: two amounts within this margin are
// considered equal.
func (m *CurrencyPairMetadata) SymbolMarginError() decimal.Decimal {
	return decimal.New(1, -m.AmountPrecision)
}

// IsAmountWithinSymbolMarginError reports whether amount is within ε of
// zero.
func (m *CurrencyPairMetadata) IsAmountWithinSymbolMarginError(amount decimal.Decimal) bool {
	return decimal.Abs(amount).LessThanOrEqual(m.SymbolMarginError())
}

// Package balance implements VirtualBalanceHolder: the
// component that tracks raw exchange balances plus the virtual diffs BRM
// layers on top of them, and answers "what is the effective balance of
// this currency" queries across spot and derivative markets.
package balance

import (
	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
	"github.com/mmbcore/engine/internal/valuetree"
)

// rawKey is the raw-balance lookup key: exchange account + currency, with
// no currency-pair component, since the exchange reports one balance per
// currency regardless of which pair a caller is reasoning about.
type rawKey struct {
	Exchange domain.ExchangeAccountId
	Currency domain.CurrencyCode
}

// Holder owns the raw balance snapshot and the virtual diff ledger BRM
// mutates on every reserve/unreserve/fill. It has no internal locking: BRM
// serializes all access itself.
type Holder struct {
	raw   map[rawKey]decimal.Decimal
	diffs *valuetree.Tree
}

// New returns an empty Holder.
func New() *Holder {
	return &Holder{
		raw:   make(map[rawKey]decimal.Decimal),
		diffs: valuetree.New(),
	}
}

// SetRawBalance installs the exchange-reported balance for a currency,
// typically from an account snapshot or a websocket balance update.
func (h *Holder) SetRawBalance(exchange domain.ExchangeAccountId, currency domain.CurrencyCode, amount decimal.Decimal) {
	h.raw[rawKey{Exchange: exchange, Currency: currency}] = amount
}

// RawBalance returns the last reported exchange balance for a currency, or
// zero if none has ever been reported.
func (h *Holder) RawBalance(exchange domain.ExchangeAccountId, currency domain.CurrencyCode) decimal.Decimal {
	return h.raw[rawKey{Exchange: exchange, Currency: currency}]
}

// AddBalance adjusts the virtual diff ledger for req by delta. This is how
// reservations and fills move the "effective" balance without touching the
// raw exchange-reported figure.
func (h *Holder) AddBalance(req domain.BalanceRequest, delta decimal.Decimal) {
	h.diffs.Add(req, delta)
}

// VirtualBalance computes raw balance plus virtual diffs, converted through
// the derivative's balance currency when the requested currency differs
// from it. Returns ok=false only when a derivative conversion needs a
// price that wasn't supplied, or when a derivative market has no balance
// currency configured to look the ledger up under.
func (h *Holder) VirtualBalance(req domain.BalanceRequest, metadata *domain.CurrencyPairMetadata, price *decimal.Decimal) (decimal.Decimal, bool) {
	if metadata == nil || !metadata.IsDerivative {
		raw := h.RawBalance(req.ExchangeAccountId, req.CurrencyCode)
		return raw.Add(h.diffs.GetOrZero(req)), true
	}

	if metadata.BalanceCurrencyCode == "" {
		// Derivative market with no configured balance currency: don't
		// silently report a balance in the wrong currency.
		return decimal.Zero, false
	}

	// The ledger always stores a derivative's balance in balanceCurrency
	// terms (see brm.addVirtualBalance), regardless of which currency the
	// caller asked about, so the raw/diff lookup must use that currency's
	// key too, not req.CurrencyCode.
	balanceCurrency := metadata.BalanceCurrency()
	balanceReq := req
	balanceReq.CurrencyCode = balanceCurrency
	raw := h.RawBalance(req.ExchangeAccountId, balanceCurrency)
	result := raw.Add(h.diffs.GetOrZero(balanceReq))

	if balanceCurrency == req.CurrencyCode {
		return result, true
	}

	if price == nil {
		return decimal.Zero, false
	}

	// Translate the balance-currency figure through the amount currency to
	// express it in the requested currency.
	inAmountCurrency := metadata.ToAmountCurrency(balanceCurrency, result, *price)
	return metadata.FromAmountCurrency(req.CurrencyCode, inAmountCurrency, *price), true
}

// GetRawExchangeBalances exposes the raw balance snapshot for Balances
// serialization.
func (h *Holder) GetRawExchangeBalances() map[domain.ExchangeAccountId]map[domain.CurrencyCode]decimal.Decimal {
	out := make(map[domain.ExchangeAccountId]map[domain.CurrencyCode]decimal.Decimal)
	for k, v := range h.raw {
		byCurrency, ok := out[k.Exchange]
		if !ok {
			byCurrency = make(map[domain.CurrencyCode]decimal.Decimal)
			out[k.Exchange] = byCurrency
		}
		byCurrency[k.Currency] = v
	}
	return out
}

// GetVirtualBalanceDiffs exposes the diff ledger for snapshotting.
func (h *Holder) GetVirtualBalanceDiffs() *valuetree.Tree {
	return h.diffs.Clone()
}

// Package priceconv reports USD-denominated prices for portfolio reporting.
// BRM itself never calls into this package — price conversion is an
// external collaborator whose output is reported through internal/rpc's
// portfolio endpoint.
package priceconv

import (
	"sync"

	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
)

// PriceConverter reports a currency's USD price, so a read-only reporting
// layer can value a portfolio without BRM needing to know anything about
// USD at all.
type PriceConverter interface {
	// ConvertToUSD returns amount of code priced in USD, or ok=false if no
	// price is currently known for code.
	ConvertToUSD(code domain.CurrencyCode, amount decimal.Decimal) (decimal.Decimal, bool)
	// PriceInUSD returns the current USD price of one unit of code.
	PriceInUSD(code domain.CurrencyCode) (decimal.Decimal, bool)
}

// Denominator is a mutex-guarded snapshot of per-currency USD prices,
// refreshed wholesale by whatever price feed calls SetPrices, minus any
// auto-refresh timer of its own: refresh scheduling is left to the
// out-of-core price feed, which already owns a ticker loop in
// internal/pricefeed.
type Denominator struct {
	mu     sync.RWMutex
	prices map[domain.CurrencyCode]decimal.Decimal
}

// NewDenominator returns a Denominator with no prices known yet.
func NewDenominator() *Denominator {
	return &Denominator{prices: make(map[domain.CurrencyCode]decimal.Decimal)}
}

// SetPrices replaces the whole price snapshot in one wholesale swap.
func (d *Denominator) SetPrices(prices map[domain.CurrencyCode]decimal.Decimal) {
	snapshot := make(map[domain.CurrencyCode]decimal.Decimal, len(prices))
	for code, price := range prices {
		snapshot[code] = price
	}

	d.mu.Lock()
	d.prices = snapshot
	d.mu.Unlock()
}

// SetPrice updates a single currency's USD price without touching the rest
// of the snapshot.
func (d *Denominator) SetPrice(code domain.CurrencyCode, price decimal.Decimal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prices[code] = price
}

// PriceInUSD returns the current USD price of one unit of code.
func (d *Denominator) PriceInUSD(code domain.CurrencyCode) (decimal.Decimal, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	price, ok := d.prices[code]
	return price, ok
}

// AllPricesInUSD returns a copy of the full price snapshot.
func (d *Denominator) AllPricesInUSD() map[domain.CurrencyCode]decimal.Decimal {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[domain.CurrencyCode]decimal.Decimal, len(d.prices))
	for code, price := range d.prices {
		out[code] = price
	}
	return out
}

// ConvertToUSD converts amount of code into USD at the current known price.
func (d *Denominator) ConvertToUSD(code domain.CurrencyCode, amount decimal.Decimal) (decimal.Decimal, bool) {
	price, ok := d.PriceInUSD(code)
	if !ok {
		return decimal.Zero, false
	}
	return amount.Mul(price), true
}

// USDToCurrency converts amountInUSD into units of code at the current
// known price.
func (d *Denominator) USDToCurrency(code domain.CurrencyCode, amountInUSD decimal.Decimal) (decimal.Decimal, bool) {
	price, ok := d.PriceInUSD(code)
	if !ok || price.IsZero() {
		return decimal.Zero, false
	}
	return amountInUSD.Div(price), true
}

var _ PriceConverter = (*Denominator)(nil)

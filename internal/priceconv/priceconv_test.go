package priceconv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
)

func TestPriceInUSDUnknownCurrency(t *testing.T) {
	d := NewDenominator()
	_, ok := d.PriceInUSD("BTC")
	require.False(t, ok)
}

func TestSetPricesAndConvertToUSD(t *testing.T) {
	d := NewDenominator()
	d.SetPrices(map[domain.CurrencyCode]decimal.Decimal{
		"BTC": decimal.NewFromInt(20000),
	})

	usd, ok := d.ConvertToUSD("BTC", decimal.NewFromFloat(0.5))
	require.True(t, ok)
	require.True(t, usd.Equal(decimal.NewFromInt(10000)))

	_, ok = d.ConvertToUSD("ETH", decimal.NewFromInt(1))
	require.False(t, ok)
}

func TestSetPriceUpdatesSingleEntry(t *testing.T) {
	d := NewDenominator()
	d.SetPrices(map[domain.CurrencyCode]decimal.Decimal{"BTC": decimal.NewFromInt(20000)})
	d.SetPrice("ETH", decimal.NewFromInt(3000))

	btc, ok := d.PriceInUSD("BTC")
	require.True(t, ok)
	require.True(t, btc.Equal(decimal.NewFromInt(20000)))

	eth, ok := d.PriceInUSD("ETH")
	require.True(t, ok)
	require.True(t, eth.Equal(decimal.NewFromInt(3000)))
}

func TestUSDToCurrency(t *testing.T) {
	d := NewDenominator()
	d.SetPrice("BTC", decimal.NewFromInt(20000))

	amount, ok := d.USDToCurrency("BTC", decimal.NewFromInt(10000))
	require.True(t, ok)
	require.True(t, amount.Equal(decimal.NewFromFloat(0.5)))

	_, ok = d.USDToCurrency("DOGE", decimal.NewFromInt(100))
	require.False(t, ok)
}

func TestAllPricesInUSDReturnsIndependentCopy(t *testing.T) {
	d := NewDenominator()
	d.SetPrice("BTC", decimal.NewFromInt(20000))

	snapshot := d.AllPricesInUSD()
	snapshot["BTC"] = decimal.NewFromInt(1)

	btc, ok := d.PriceInUSD("BTC")
	require.True(t, ok)
	require.True(t, btc.Equal(decimal.NewFromInt(20000)))
}

package balance

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestVirtualBalanceSpotIsRawPlusDiffs(t *testing.T) {
	h := New()
	exchange := domain.NewExchangeAccountId("binance", 0)
	req := domain.NewBalanceRequest(domain.NewConfigurationDescriptor("default"), exchange, domain.NewCurrencyPair("BTC", "USDT"), "USDT")

	h.SetRawBalance(exchange, "USDT", d("1000"))
	h.AddBalance(req, d("-250"))

	balance, ok := h.VirtualBalance(req, nil, nil)
	require.True(t, ok)
	require.True(t, balance.Equal(d("750")), "expected 750, got %s", balance)
}

func TestVirtualBalanceDerivativeSameCurrencyNeedsNoPrice(t *testing.T) {
	h := New()
	exchange := domain.NewExchangeAccountId("bitmex", 0)
	metadata := &domain.CurrencyPairMetadata{
		IsDerivative:        true,
		Base:                "BTC",
		Quote:               "USD",
		BalanceCurrencyCode: "BTC",
		AmountMultiplier:    decimal.NewFromInt(1),
	}
	req := domain.NewBalanceRequest(domain.NewConfigurationDescriptor("default"), exchange, metadata.CurrencyPair(), "BTC")
	h.SetRawBalance(exchange, "BTC", d("5"))

	balance, ok := h.VirtualBalance(req, metadata, nil)
	require.True(t, ok)
	require.True(t, balance.Equal(d("5")))
}

func TestVirtualBalanceDerivativeCrossCurrencyNeedsPrice(t *testing.T) {
	h := New()
	exchange := domain.NewExchangeAccountId("bitmex", 0)
	metadata := &domain.CurrencyPairMetadata{
		IsDerivative:        true,
		Base:                "BTC",
		Quote:               "USD",
		BalanceCurrencyCode: "BTC",
		AmountMultiplier:    decimal.NewFromInt(1),
	}
	req := domain.NewBalanceRequest(domain.NewConfigurationDescriptor("default"), exchange, metadata.CurrencyPair(), "USD")
	h.SetRawBalance(exchange, "BTC", d("2"))

	_, ok := h.VirtualBalance(req, metadata, nil)
	require.False(t, ok, "missing price should fail the conversion")

	price := d("20000")
	balance, ok := h.VirtualBalance(req, metadata, &price)
	require.True(t, ok)
	require.True(t, balance.Equal(d("40000")), "expected 2 BTC at 20000 == 40000 USD, got %s", balance)
}

func TestVirtualBalanceDerivativeWithoutBalanceCurrencyFails(t *testing.T) {
	h := New()
	exchange := domain.NewExchangeAccountId("bitmex", 0)
	metadata := &domain.CurrencyPairMetadata{
		IsDerivative:     true,
		Base:             "BTC",
		Quote:            "USD",
		AmountMultiplier: decimal.NewFromInt(1),
	}
	req := domain.NewBalanceRequest(domain.NewConfigurationDescriptor("default"), exchange, metadata.CurrencyPair(), "BTC")
	h.SetRawBalance(exchange, "BTC", d("5"))

	_, ok := h.VirtualBalance(req, metadata, nil)
	require.False(t, ok, "derivative market with no configured balance currency must not report a balance")
}

func TestGetRawExchangeBalancesGroupsByExchange(t *testing.T) {
	h := New()
	binance := domain.NewExchangeAccountId("binance", 0)
	bitmex := domain.NewExchangeAccountId("bitmex", 0)

	h.SetRawBalance(binance, "USDT", d("100"))
	h.SetRawBalance(binance, "BTC", d("1"))
	h.SetRawBalance(bitmex, "BTC", d("2"))

	snapshot := h.GetRawExchangeBalances()
	require.True(t, snapshot[binance]["USDT"].Equal(d("100")))
	require.True(t, snapshot[binance]["BTC"].Equal(d("1")))
	require.True(t, snapshot[bitmex]["BTC"].Equal(d("2")))
}

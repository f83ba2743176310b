package valuetree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
)

func sampleRequest() domain.BalanceRequest {
	return domain.NewBalanceRequest(
		domain.NewConfigurationDescriptor("default"),
		domain.NewExchangeAccountId("binance", 0),
		domain.NewCurrencyPair("BTC", "USDT"),
		"USDT",
	)
}

func TestGetOrZeroOnMissingKey(t *testing.T) {
	tree := New()
	require.True(t, tree.GetOrZero(sampleRequest()).IsZero())
	_, ok := tree.Get(sampleRequest())
	require.False(t, ok)
}

func TestAddAccumulates(t *testing.T) {
	tree := New()
	req := sampleRequest()

	tree.Add(req, decimal.NewFromInt(5))
	tree.Add(req, decimal.NewFromInt(3))

	require.True(t, tree.GetOrZero(req).Equal(decimal.NewFromInt(8)))
}

func TestSetOverwrites(t *testing.T) {
	tree := New()
	req := sampleRequest()

	tree.Add(req, decimal.NewFromInt(5))
	tree.Set(req, decimal.NewFromInt(1))

	require.True(t, tree.GetOrZero(req).Equal(decimal.NewFromInt(1)))
}

func TestCloneIsIndependent(t *testing.T) {
	tree := New()
	req := sampleRequest()
	tree.Set(req, decimal.NewFromInt(10))

	clone := tree.Clone()
	clone.Add(req, decimal.NewFromInt(5))

	require.True(t, tree.GetOrZero(req).Equal(decimal.NewFromInt(10)), "original must be unaffected by clone mutation")
	require.True(t, clone.GetOrZero(req).Equal(decimal.NewFromInt(15)))
}

func TestLenAndIter(t *testing.T) {
	tree := New()
	require.Equal(t, 0, tree.Len())

	req1 := sampleRequest()
	req2 := domain.NewBalanceRequest(
		domain.NewConfigurationDescriptor("default"),
		domain.NewExchangeAccountId("binance", 0),
		domain.NewCurrencyPair("BTC", "USDT"),
		"BTC",
	)
	tree.Set(req1, decimal.NewFromInt(1))
	tree.Set(req2, decimal.NewFromInt(2))
	require.Equal(t, 2, tree.Len())

	seen := make(map[domain.CurrencyCode]decimal.Decimal)
	tree.Iter(func(req domain.BalanceRequest, v decimal.Decimal) {
		seen[req.CurrencyCode] = v
	})
	require.True(t, seen["USDT"].Equal(decimal.NewFromInt(1)))
	require.True(t, seen["BTC"].Equal(decimal.NewFromInt(2)))
}

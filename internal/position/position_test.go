package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
)

func sampleKey() Key {
	return Key{
		ExchangeAccountId: domain.NewExchangeAccountId("bitmex", 0),
		CurrencyPair:      domain.NewCurrencyPair("BTC", "USD"),
	}
}

func TestGetOrZeroOnMissingKey(t *testing.T) {
	tracker := New()
	require.True(t, tracker.GetOrZero(sampleKey()).IsZero())
	_, ok := tracker.Get(sampleKey())
	require.False(t, ok)
}

func TestAddAccumulatesAndRecordsHistory(t *testing.T) {
	tracker := New()
	key := sampleKey()
	base := time.Unix(1000, 0)

	tracker.Add(key, decimal.NewFromFloat(0.5), nil, base)
	tracker.Add(key, decimal.NewFromFloat(-0.2), nil, base.Add(time.Minute))

	require.True(t, tracker.GetOrZero(key).Equal(decimal.NewFromFloat(0.3)))
}

func TestSetRejectsStalePrevious(t *testing.T) {
	tracker := New()
	key := sampleKey()
	now := time.Unix(2000, 0)

	tracker.Add(key, decimal.NewFromFloat(1), nil, now)

	wrongPrevious := decimal.NewFromFloat(5)
	err := tracker.Set(key, &wrongPrevious, decimal.NewFromFloat(2), nil, now)
	require.Error(t, err)
	require.True(t, tracker.GetOrZero(key).Equal(decimal.NewFromFloat(1)), "failed Set must not mutate the line")

	correctPrevious := decimal.NewFromFloat(1)
	require.NoError(t, tracker.Set(key, &correctPrevious, decimal.NewFromFloat(2), nil, now))
	require.True(t, tracker.GetOrZero(key).Equal(decimal.NewFromFloat(2)))
}

func TestGetLastPositionChangeBeforePeriod(t *testing.T) {
	tracker := New()
	key := sampleKey()
	t0 := time.Unix(1000, 0)
	t1 := t0.Add(time.Hour)
	t2 := t0.Add(2 * time.Hour)

	tracker.Add(key, decimal.NewFromFloat(1), nil, t0)
	tracker.Add(key, decimal.NewFromFloat(1), nil, t1)
	tracker.Add(key, decimal.NewFromFloat(1), nil, t2)

	change, ok := tracker.GetLastPositionChangeBeforePeriod(key, t2)
	require.True(t, ok)
	require.True(t, change.Time.Equal(t1))
	require.True(t, change.Amount.Equal(decimal.NewFromFloat(2)))

	_, ok = tracker.GetLastPositionChangeBeforePeriod(key, t0)
	require.False(t, ok, "nothing precedes the very first change")
}

func TestKeysSorted(t *testing.T) {
	tracker := New()
	now := time.Unix(0, 0)

	keyETH := Key{ExchangeAccountId: domain.NewExchangeAccountId("binance", 0), CurrencyPair: domain.NewCurrencyPair("ETH", "USDT")}
	keyBTC := Key{ExchangeAccountId: domain.NewExchangeAccountId("binance", 0), CurrencyPair: domain.NewCurrencyPair("BTC", "USDT")}

	tracker.Add(keyETH, decimal.NewFromInt(1), nil, now)
	tracker.Add(keyBTC, decimal.NewFromInt(1), nil, now)

	keys := tracker.Keys()
	require.Len(t, keys, 2)
	require.Equal(t, keyBTC, keys[0], "BTC/USDT sorts before ETH/USDT")
	require.Equal(t, keyETH, keys[1])
}

func TestCloneIsIndependent(t *testing.T) {
	tracker := New()
	key := sampleKey()
	now := time.Unix(0, 0)
	tracker.Add(key, decimal.NewFromInt(1), nil, now)

	clone := tracker.Clone()
	clone.Add(key, decimal.NewFromInt(1), nil, now)

	require.True(t, tracker.GetOrZero(key).Equal(decimal.NewFromInt(1)))
	require.True(t, clone.GetOrZero(key).Equal(decimal.NewFromInt(2)))
}

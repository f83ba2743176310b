package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Service.Port)
	require.Equal(t, "info", cfg.Service.LogLevel)
}

func TestLoadParsesMarketsAndAccounts(t *testing.T) {
	path := writeTempConfig(t, `
service:
  port: "9090"
  log_level: debug
accounts:
  - binance
markets:
  - exchange: binance
    instance_index: 0
    base: BTC
    quote: USDT
    amount_precision: 8
    price_precision: 2
    amount_limit: "0.4"
  - exchange: bitmex
    instance_index: 0
    base: BTC
    quote: USD
    is_derivative: true
    balance_currency: BTC
    amount_precision: 3
    price_precision: 1
    leverage: "10"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Service.Port)
	require.Equal(t, "debug", cfg.Service.LogLevel)
	require.Len(t, cfg.Markets, 2)

	spot := cfg.Markets[0]
	metadata, err := spot.Metadata()
	require.NoError(t, err)
	require.False(t, metadata.IsDerivative)
	require.True(t, metadata.AmountMultiplier.Equal(decimal.NewFromInt(1)))

	limit, ok, err := spot.AmountLimitDecimal()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, limit.Equal(decimal.NewFromFloat(0.4)))

	_, ok, err = spot.LeverageDecimal()
	require.NoError(t, err)
	require.False(t, ok)

	deriv := cfg.Markets[1]
	leverage, ok, err := deriv.LeverageDecimal()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, leverage.Equal(decimal.NewFromInt(10)))
}

func TestExchangeAccountIdsDeduplicates(t *testing.T) {
	cfg := &Config{
		Accounts: []string{"binance"},
		Markets: []MarketConfig{
			{Exchange: "binance", InstanceIndex: 0, Base: "BTC", Quote: "USDT"},
			{Exchange: "bitmex", InstanceIndex: 0, Base: "BTC", Quote: "USD"},
		},
	}

	ids := cfg.ExchangeAccountIds()
	require.Equal(t, []domain.ExchangeAccountId{
		domain.NewExchangeAccountId("binance", 0),
		domain.NewExchangeAccountId("bitmex", 0),
	}, ids)
}

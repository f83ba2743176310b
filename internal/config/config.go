// Package config loads the engine's startup configuration: which exchange
// accounts and markets BRM should track, their leverage and per-market
// amount limits, and the ambient service settings (log level, listen
// addresses, connection strings) previously read straight from
// environment variables one at a time.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
)

// MarketConfig describes one (exchange account, currency pair) market BRM
// should know about at startup.
type MarketConfig struct {
	Exchange         string `yaml:"exchange"`
	InstanceIndex    uint32 `yaml:"instance_index"`
	Base             string `yaml:"base"`
	Quote            string `yaml:"quote"`
	IsDerivative     bool   `yaml:"is_derivative"`
	BalanceCurrency  string `yaml:"balance_currency"`
	AmountMultiplier string `yaml:"amount_multiplier"`
	AmountPrecision  int32  `yaml:"amount_precision"`
	PricePrecision   int32  `yaml:"price_precision"`
	Leverage         string `yaml:"leverage"`
	AmountLimit      string `yaml:"amount_limit"`
}

// ExchangeAccountId resolves this market's (exchange, instance) pair into
// the domain type BRM and ExchangeBlocker key off of.
func (m MarketConfig) ExchangeAccountId() domain.ExchangeAccountId {
	return domain.NewExchangeAccountId(m.Exchange, m.InstanceIndex)
}

// Metadata builds the domain.CurrencyPairMetadata this market entry
// describes, defaulting AmountMultiplier to 1 when left blank.
func (m MarketConfig) Metadata() (*domain.CurrencyPairMetadata, error) {
	multiplier := decimal.NewFromInt(1)
	if m.AmountMultiplier != "" {
		parsed, err := decimal.NewFromString(m.AmountMultiplier)
		if err != nil {
			return nil, fmt.Errorf("market %s/%s: amount_multiplier: %w", m.Base, m.Quote, err)
		}
		multiplier = parsed
	}

	return &domain.CurrencyPairMetadata{
		IsDerivative:        m.IsDerivative,
		Base:                domain.CurrencyCode(m.Base),
		Quote:               domain.CurrencyCode(m.Quote),
		BalanceCurrencyCode: domain.CurrencyCode(m.BalanceCurrency),
		AmountMultiplier:    multiplier,
		AmountPrecision:     m.AmountPrecision,
		PricePrecision:      m.PricePrecision,
	}, nil
}

// LeverageDecimal parses Leverage, returning ok=false when the market has
// none configured (spot markets leave this blank).
func (m MarketConfig) LeverageDecimal() (decimal.Decimal, bool, error) {
	if m.Leverage == "" {
		return decimal.Zero, false, nil
	}
	v, err := decimal.NewFromString(m.Leverage)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("market %s/%s: leverage: %w", m.Base, m.Quote, err)
	}
	return v, true, nil
}

// AmountLimitDecimal parses AmountLimit, returning ok=false when the market
// has no target amount limit configured.
func (m MarketConfig) AmountLimitDecimal() (decimal.Decimal, bool, error) {
	if m.AmountLimit == "" {
		return decimal.Zero, false, nil
	}
	v, err := decimal.NewFromString(m.AmountLimit)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("market %s/%s: amount_limit: %w", m.Base, m.Quote, err)
	}
	return v, true, nil
}

// ServiceConfig holds the ambient settings previously read one at a time
// via getEnv calls in the entry point.
type ServiceConfig struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
	LogLevel    string `yaml:"log_level"`
	LogPretty   bool   `yaml:"log_pretty"`
}

// Config is the engine's full startup configuration file shape.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Markets  []MarketConfig `yaml:"markets"`
	Accounts []string       `yaml:"accounts"`
}

func defaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Port:        "8080",
		DatabaseURL: "sqlite://./hft_exchange.db",
		RedisURL:    "redis://localhost:6379/0",
		LogLevel:    "info",
		LogPretty:   true,
	}
}

// Load reads and parses the YAML config file at path. A missing file is not
// an error: Load returns defaults (mirroring the old "no .env file found,
// using defaults" tolerance), since most of the engine's ambient settings
// have a reasonable development default.
func Load(path string) (*Config, error) {
	cfg := &Config{Service: defaultServiceConfig()}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if cfg.Service.Port == "" {
		cfg.Service.Port = defaultServiceConfig().Port
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaultServiceConfig().LogLevel
	}

	return cfg, nil
}

// ExchangeAccountIds returns the distinct set of exchange accounts named by
// either Accounts or the markets list, in the order first seen — the set
// ExchangeBlocker.New needs to pre-register every tracked exchange account.
func (c *Config) ExchangeAccountIds() []domain.ExchangeAccountId {
	seen := make(map[domain.ExchangeAccountId]bool)
	var ids []domain.ExchangeAccountId

	add := func(id domain.ExchangeAccountId) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, name := range c.Accounts {
		add(domain.NewExchangeAccountId(name, 0))
	}
	for _, m := range c.Markets {
		add(m.ExchangeAccountId())
	}
	return ids
}

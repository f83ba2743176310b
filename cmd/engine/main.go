package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mmbcore/engine/internal/api"
	"github.com/mmbcore/engine/internal/appmanager"
	"github.com/mmbcore/engine/internal/bot"
	"github.com/mmbcore/engine/internal/brm"
	"github.com/mmbcore/engine/internal/cache"
	"github.com/mmbcore/engine/internal/config"
	"github.com/mmbcore/engine/internal/database"
	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
	"github.com/mmbcore/engine/internal/engine"
	"github.com/mmbcore/engine/internal/exchangeblocker"
	"github.com/mmbcore/engine/internal/logging"
	"github.com/mmbcore/engine/internal/priceconv"
	"github.com/mmbcore/engine/internal/pricefeed"
	"github.com/mmbcore/engine/internal/repository"
	"github.com/mmbcore/engine/internal/rpc"
	"github.com/mmbcore/engine/internal/websocket"
)

// defaultMarkets is what AddSymbol registers when the config file declares
// no markets of its own.
func defaultMarkets() []config.MarketConfig {
	return []config.MarketConfig{
		{Exchange: "simulated", Base: "BTC", Quote: "USD", BalanceCurrency: "USD", AmountPrecision: 8, PricePrecision: 2},
		{Exchange: "simulated", Base: "ETH", Quote: "USD", BalanceCurrency: "USD", AmountPrecision: 8, PricePrecision: 2},
		{Exchange: "simulated", Base: "SOL", Quote: "USD", BalanceCurrency: "USD", AmountPrecision: 8, PricePrecision: 2},
		{Exchange: "simulated", Base: "USDC", Quote: "USD", BalanceCurrency: "USD", AmountPrecision: 8, PricePrecision: 4},
	}
}

// configLeverageSource adapts config.Config's market list to
// engine.LeverageSource, pulling whatever leverage the engine's own config
// file declares rather than querying a real exchange.
type configLeverageSource struct {
	byPair map[domain.CurrencyPair]decimal.Decimal
}

func newConfigLeverageSource(markets []config.MarketConfig) (*configLeverageSource, error) {
	src := &configLeverageSource{byPair: make(map[domain.CurrencyPair]decimal.Decimal)}
	for _, m := range markets {
		leverage, ok, err := m.LeverageDecimal()
		if err != nil {
			return nil, err
		}
		if ok {
			src.byPair[domain.NewCurrencyPair(domain.CurrencyCode(m.Base), domain.CurrencyCode(m.Quote))] = leverage
		}
	}
	return src, nil
}

func (s *configLeverageSource) LeverageByCurrencyPair(pair domain.CurrencyPair) (decimal.Decimal, bool) {
	leverage, ok := s.byPair[pair]
	return leverage, ok
}

var _ engine.LeverageSource = (*configLeverageSource)(nil)

func main() {
	if err := godotenv.Load(); err != nil {
		os.Stderr.WriteString("engine: no .env file found, using environment as-is\n")
	}

	configPath := getEnv("CONFIG_PATH", "config.yaml")
	cfg, err := config.Load(configPath)
	if err != nil {
		panic(err)
	}

	log := logging.Init(cfg.Service.LogLevel, cfg.Service.LogPretty)
	log.Info().Str("config", configPath).Msg("engine: starting")

	markets := cfg.Markets
	if len(markets) == 0 {
		markets = defaultMarkets()
	}

	db, err := database.NewDB(envOr(cfg.Service.DatabaseURL, "DATABASE_URL"))
	if err != nil {
		log.Fatal().Err(err).Msg("engine: failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("engine: failed to initialize schema")
	}
	if err := db.SeedData(); err != nil {
		log.Warn().Err(err).Msg("engine: failed to seed demo data")
	}

	redisCache, err := cache.NewRedisCache(envOr(cfg.Service.RedisURL, "REDIS_URL"))
	if err != nil {
		log.Warn().Err(err).Msg("engine: failed to connect to redis, continuing without cache")
		redisCache = nil
	}

	orderRepo := repository.NewOrderRepository(db.DB)
	tradeRepo := repository.NewTradeRepository(db.DB)
	balanceRepo := repository.NewBalanceRepository(db.DB)
	tickerRepo := repository.NewTickerRepository(db.DB)
	positionRepo := repository.NewPositionRepository(db.DB)

	ctx, cancel := context.WithCancel(context.Background())
	appMgr := appmanager.New(cancel, log)

	brmMgr := brm.NewManager(time.Now, log.With().Str("component", "brm").Logger())
	blocker := exchangeblocker.New(cfg.ExchangeAccountIds(), log.With().Str("component", "exchangeblocker").Logger())

	exchangeAccountId := domain.NewExchangeAccountId("simulated", 0)
	if ids := cfg.ExchangeAccountIds(); len(ids) > 0 {
		exchangeAccountId = ids[0]
	}

	leverageSource, err := newConfigLeverageSource(markets)
	if err != nil {
		log.Fatal().Err(err).Msg("engine: invalid leverage configuration")
	}

	ex := engine.NewExchange(tradeRepo, orderRepo, brmMgr, blocker, exchangeAccountId, leverageSource, log.With().Str("component", "engine").Logger())

	seedHouseBalances(brmMgr, balanceRepo, exchangeAccountId, markets, log)

	for _, stored := range loadPositions(positionRepo, log) {
		if stored.ExchangeAccountId != exchangeAccountId.String() {
			continue
		}
		restorePosition(brmMgr, exchangeAccountId, markets, stored, log)
	}

	for _, m := range markets {
		metadata, err := m.Metadata()
		if err != nil {
			log.Fatal().Err(err).Str("base", m.Base).Str("quote", m.Quote).Msg("engine: invalid market configuration")
		}
		ex.AddSymbol(m.Base+"-"+m.Quote, metadata)
	}

	ex.Start()

	hub := websocket.NewHub()
	go hub.Run()

	ex.SetOnTradeCallback(func(trade *domain.Trade) {
		hub.BroadcastTrade(trade)
	})

	priceSimulator := pricefeed.NewPriceSimulator(tickerRepo)
	priceSimulator.Start()

	denominator := priceconv.NewDenominator()
	priceSimulator.AddUpdateHandler(func(symbol string, price decimal.Decimal) {
		ex.UpdatePrice(symbol, price)
		denominator.SetPrice(domain.CurrencyCode(symbolBase(symbol)), price)

		if ticker, err := tickerRepo.GetTicker(symbol); err == nil {
			hub.BroadcastTicker(ticker)
		} else {
			log.Error().Err(err).Str("symbol", symbol).Msg("engine: failed to get ticker")
		}

		orderBook := ex.GetOrderBook(symbol, 20)
		if redisCache != nil {
			_ = redisCache.CacheOrderBook(symbol, orderBook)
		}
		hub.BroadcastOrderBook(symbol, orderBook)
	})
	denominator.SetPrice("USD", decimal.NewFromInt(1))

	marketMaker := bot.NewMarketMaker("market-maker", ex, priceSimulator)
	marketMaker.Start()

	tradingHandler := api.NewHandler(ex, orderRepo, tradeRepo, tickerRepo)
	tradingRouter := api.NewRouter(tradingHandler, hub)

	rpcHandler := rpc.NewHandler(brmMgr, blocker, denominator, log.With().Str("component", "rpc").Logger())
	rpcRouter := rpc.NewRouter(rpcHandler)

	tradingServer := newServer(getEnv("PORT", cfg.Service.Port), tradingRouter)
	rpcServer := newServer(getEnv("RPC_PORT", "9090"), rpcRouter)

	go serve(tradingServer, log, "trading API")
	go serve(rpcServer, log, "rpc reporting API")

	// Shutdown order matters: stop taking new HTTP traffic first, then stop
	// the bot and the matching engine from generating more fills, then
	// checkpoint what's left, then tear down pricefeed and cache last.
	appMgr.RegisterShutdownStep("trading-http", func(ctx context.Context) error {
		return tradingServer.Shutdown(ctx)
	})
	appMgr.RegisterShutdownStep("rpc-http", func(ctx context.Context) error {
		return rpcServer.Shutdown(ctx)
	})
	appMgr.RegisterShutdownStep("marketmaker", func(ctx context.Context) error {
		marketMaker.Stop()
		return nil
	})
	appMgr.RegisterShutdownStep("engine", func(ctx context.Context) error {
		ex.Stop()
		return nil
	})
	appMgr.RegisterShutdownStep("exchangeblocker", func(ctx context.Context) error {
		return blocker.Stop(ctx)
	})
	appMgr.RegisterShutdownStep("positions", func(ctx context.Context) error {
		return checkpointPositions(brmMgr, positionRepo, exchangeAccountId, markets)
	})
	appMgr.RegisterShutdownStep("pricefeed", func(ctx context.Context) error {
		priceSimulator.Stop()
		return nil
	})
	if redisCache != nil {
		appMgr.RegisterShutdownStep("cache", func(ctx context.Context) error {
			return redisCache.Close()
		})
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := appMgr.RunGracefulShutdown(shutdownCtx, "signal"); err != nil {
		log.Error().Err(err).Msg("engine: graceful shutdown finished with errors")
	}

	<-ctx.Done()
	log.Info().Msg("engine: stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envOr lets an environment variable override whatever the config file (or
// its defaults) already set.
func envOr(fromConfig, envKey string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	return fromConfig
}

func symbolBase(symbol string) string {
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '-' || symbol[i] == '/' {
			return symbol[:i]
		}
	}
	return symbol
}

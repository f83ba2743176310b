package main

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mmbcore/engine/internal/brm"
	"github.com/mmbcore/engine/internal/config"
	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
	"github.com/mmbcore/engine/internal/position"
	"github.com/mmbcore/engine/internal/repository"
)

// houseBalanceSeed is what a freshly-seeded (never-persisted) currency gets
// in the shared simulated account, large enough for the demo market maker
// and synthetic order flow to operate without starving.
var houseBalanceSeed = decimal.NewFromInt(1_000_000)

// seedHouseBalances loads every currency a configured market touches from
// balanceRepo, falling back to houseBalanceSeed the first time a currency is
// seen, and installs the result into brmMgr via SetRawBalance. Every user's
// ConfigurationDescriptor draws against this one shared pool: there is no
// per-user balances row, just the one shared account row.
func seedHouseBalances(brmMgr *brm.Manager, balanceRepo *repository.BalanceRepository, exchangeAccountId domain.ExchangeAccountId, markets []config.MarketConfig, log zerolog.Logger) {
	currencies := make(map[domain.CurrencyCode]bool)
	for _, m := range markets {
		currencies[domain.CurrencyCode(m.Base)] = true
		currencies[domain.CurrencyCode(m.Quote)] = true
	}

	owner := exchangeAccountId.String()
	for currency := range currencies {
		stored, err := balanceRepo.GetBalance(owner, string(currency))
		if err != nil {
			log.Error().Err(err).Str("currency", string(currency)).Msg("engine: failed to load house balance, seeding default")
			stored = &repository.Balance{Amount: houseBalanceSeed}
		}

		amount := stored.Amount
		if amount.IsZero() {
			amount = houseBalanceSeed
			if err := balanceRepo.SetBalance(owner, string(currency), amount); err != nil {
				log.Error().Err(err).Str("currency", string(currency)).Msg("engine: failed to persist seeded house balance")
			}
		}

		brmMgr.SetRawBalance(exchangeAccountId, currency, amount)
	}
}

// loadPositions reads every persisted position row, logging (but not
// failing startup on) a read error — a flat restart is always a safe
// fallback for a synthetic exchange.
func loadPositions(positionRepo *repository.PositionRepository, log zerolog.Logger) []repository.StoredPosition {
	positions, err := positionRepo.LoadPositions()
	if err != nil {
		log.Error().Err(err).Msg("engine: failed to load persisted positions, starting flat")
		return nil
	}
	return positions
}

// restorePosition finds the market stored.Symbol names and, if it's a
// derivative, installs stored.Quantity via RestoreFillAmountPosition.
func restorePosition(brmMgr *brm.Manager, exchangeAccountId domain.ExchangeAccountId, markets []config.MarketConfig, stored repository.StoredPosition, log zerolog.Logger) {
	for _, m := range markets {
		if m.Base+"-"+m.Quote != stored.Symbol {
			continue
		}
		metadata, err := m.Metadata()
		if err != nil || !metadata.IsDerivative {
			return
		}
		if err := brmMgr.RestoreFillAmountPosition(exchangeAccountId, metadata, stored.Quantity); err != nil {
			log.Error().Err(err).Str("symbol", stored.Symbol).Msg("engine: failed to restore position")
		}
		return
	}
}

// checkpointPositions snapshots brmMgr's current derivative positions back
// to positionRepo, the counterpart loadPositions/restorePosition read on the
// next startup.
func checkpointPositions(brmMgr *brm.Manager, positionRepo *repository.PositionRepository, exchangeAccountId domain.ExchangeAccountId, markets []config.MarketConfig) error {
	state := brmMgr.GetState()
	for _, m := range markets {
		metadata, err := m.Metadata()
		if err != nil || !metadata.IsDerivative {
			continue
		}
		key := position.Key{ExchangeAccountId: exchangeAccountId, CurrencyPair: metadata.CurrencyPair()}
		quantity, ok := state.Positions[key]
		if !ok {
			continue
		}
		if err := positionRepo.SavePosition(exchangeAccountId.String(), m.Base+"-"+m.Quote, quantity); err != nil {
			return err
		}
	}
	return nil
}

func newServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func serve(server *http.Server, log zerolog.Logger, name string) {
	log.Info().Str("addr", server.Addr).Str("server", name).Msg("engine: listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Str("server", name).Msg("engine: server failed")
	}
}

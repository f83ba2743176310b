package pricefeed

import (
	"context"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
)

type PriceUpdateHandler func(symbol string, price decimal.Decimal)

type PriceSimulator struct {
	prices         map[string]decimal.Decimal
	mu             sync.RWMutex
	updateHandlers []PriceUpdateHandler
	tickerRepo     TickerRepository
	ctx            context.Context
	cancel         context.CancelFunc
}

type TickerRepository interface {
	GetTicker(symbol string) (*domain.Ticker, error)
	UpdateTicker(ticker *domain.Ticker) error
}

func NewPriceSimulator(tickerRepo TickerRepository) *PriceSimulator {
	ctx, cancel := context.WithCancel(context.Background())
	return &PriceSimulator{
		prices:         make(map[string]decimal.Decimal),
		updateHandlers: make([]PriceUpdateHandler, 0),
		tickerRepo:     tickerRepo,
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (ps *PriceSimulator) Start() {
	symbols := []string{"BTC-USD", "ETH-USD", "SOL-USD", "USDC-USD"}

	// Initialize prices from database
	for _, symbol := range symbols {
		ticker, err := ps.tickerRepo.GetTicker(symbol)
		if err == nil {
			ps.mu.Lock()
			ps.prices[symbol] = ticker.Price
			ps.mu.Unlock()
		}
	}

	// Start price simulation for each symbol
	for _, symbol := range symbols {
		go ps.simulatePrice(symbol)
	}

	log.Println("Price simulator started")
}

// simulatePrice runs a geometric Brownian motion in float64 (the
// random-walk math has no fixed-point equivalent worth the complexity for a
// synthetic feed) and converts back to decimal at the point the price
// enters the rest of the engine — BRM and the matching engine never see a
// float.
func (ps *PriceSimulator) simulatePrice(symbol string) {
	ticker := time.NewTicker(3 * time.Second) // Slower updates for demo (was 100ms)
	defer ticker.Stop()

	volatility := ps.getVolatility(symbol)

	for {
		select {
		case <-ps.ctx.Done():
			return
		case <-ticker.C:
			ps.mu.Lock()
			currentPrice, _ := ps.prices[symbol].Float64()

			dt := 0.1 / 3600
			drift := 0.0

			randomShock := rand.NormFloat64()
			priceChange := currentPrice * (drift*dt + volatility*math.Sqrt(dt)*randomShock)
			newPrice := currentPrice + priceChange

			if newPrice < currentPrice*0.95 {
				newPrice = currentPrice * 0.95
			}
			if newPrice > currentPrice*1.05 {
				newPrice = currentPrice * 1.05
			}

			if symbol == "USDC-USD" {
				newPrice = 1.0 + (rand.Float64()-0.5)*0.001
			}

			newPriceDecimal := decimal.NewFromFloat(newPrice).Round(8)
			ps.prices[symbol] = newPriceDecimal
			ps.mu.Unlock()

			// Update database FIRST (synchronously) before notifying handlers
			ps.updateTickerInDB(symbol, newPriceDecimal)

			// Notify handlers AFTER DB is updated
			for _, handler := range ps.updateHandlers {
				go handler(symbol, newPriceDecimal)
			}
		}
	}
}

func (ps *PriceSimulator) getVolatility(symbol string) float64 {
	switch symbol {
	case "BTC-USD":
		return 0.02
	case "ETH-USD":
		return 0.025
	case "SOL-USD":
		return 0.03
	case "USDC-USD":
		return 0.0001
	default:
		return 0.02
	}
}

func (ps *PriceSimulator) updateTickerInDB(symbol string, price decimal.Decimal) {
	ticker, err := ps.tickerRepo.GetTicker(symbol)
	if err != nil {
		log.Printf("failed to get ticker %s: %v", symbol, err)
		return
	}

	oldPrice := ticker.Price
	ticker.Price = price
	ticker.UpdatedAt = time.Now()

	if price.GreaterThan(ticker.High24h) || ticker.High24h.IsZero() {
		ticker.High24h = price
	}
	if price.LessThan(ticker.Low24h) || ticker.Low24h.IsZero() {
		ticker.Low24h = price
	}

	// Calculate 24h change percentage: use the midpoint of 24h range as
	// baseline, falling back to the last update's price when there isn't
	// one yet.
	if ticker.High24h.IsPositive() && ticker.Low24h.IsPositive() {
		baseline := ticker.High24h.Add(ticker.Low24h).Div(decimal.NewFromInt(2))
		if baseline.IsPositive() {
			ticker.Change24h = price.Sub(baseline).Div(baseline).Mul(decimal.NewFromInt(100))
		}
	} else if oldPrice.IsPositive() {
		ticker.Change24h = price.Sub(oldPrice).Div(oldPrice).Mul(decimal.NewFromInt(100))
	}

	if err := ps.tickerRepo.UpdateTicker(ticker); err != nil {
		log.Printf("failed to update ticker %s: %v", symbol, err)
	}
}

func (ps *PriceSimulator) GetCurrentPrice(symbol string) decimal.Decimal {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.prices[symbol]
}

func (ps *PriceSimulator) AddUpdateHandler(handler PriceUpdateHandler) {
	ps.updateHandlers = append(ps.updateHandlers, handler)
}

func (ps *PriceSimulator) Stop() {
	ps.cancel()
}

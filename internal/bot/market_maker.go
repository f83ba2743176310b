package bot

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
)

type MarketMaker struct {
	userID         string
	exchange       ExchangeInterface
	priceSimulator PriceSimulator
	ctx            context.Context
	cancel         context.CancelFunc
}

type ExchangeInterface interface {
	SubmitOrder(order *domain.Order) error
	GetOrderBook(symbol string, depth int) *domain.OrderBook
}

type PriceSimulator interface {
	GetCurrentPrice(symbol string) decimal.Decimal
}

func NewMarketMaker(userID string, exchange ExchangeInterface, priceSimulator PriceSimulator) *MarketMaker {
	ctx, cancel := context.WithCancel(context.Background())
	return &MarketMaker{
		userID:         userID,
		exchange:       exchange,
		priceSimulator: priceSimulator,
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (mm *MarketMaker) Start() {
	symbols := []string{"BTC-USD", "ETH-USD", "SOL-USD"}

	for _, symbol := range symbols {
		go mm.makeMarket(symbol)
	}

	log.Printf("market maker started for user: %s", mm.userID)
}

func (mm *MarketMaker) makeMarket(symbol string) {
	ticker := time.NewTicker(15 * time.Second) // Slower market making for demo (was 5s)
	defer ticker.Stop()

	for {
		select {
		case <-mm.ctx.Done():
			return
		case <-ticker.C:
			mm.placeOrders(symbol)
		}
	}
}

func (mm *MarketMaker) placeOrders(symbol string) {
	currentPrice := mm.priceSimulator.GetCurrentPrice(symbol)
	if currentPrice.IsZero() {
		return
	}

	spread := mm.getSpread(symbol)
	orderCount := 1 // Place 1 order on each side (reduced from 3 for demo)

	for i := 0; i < orderCount; i++ {
		offset := spread.Mul(decimal.NewFromInt(int64(i + 1)))

		buyPrice := currentPrice.Mul(decimal.NewFromInt(1).Sub(offset))
		buyQuantity := mm.getRandomQuantity(symbol)

		buyOrder := domain.NewOrder(
			mm.userID,
			symbol,
			domain.OrderSideBuy,
			domain.OrderTypeLimit,
			buyQuantity,
			mm.roundPrice(buyPrice),
		)

		if err := mm.exchange.SubmitOrder(buyOrder); err != nil {
			log.Printf("MM failed to place buy order: %v", err)
		}

		sellPrice := currentPrice.Mul(decimal.NewFromInt(1).Add(offset))
		sellQuantity := mm.getRandomQuantity(symbol)

		sellOrder := domain.NewOrder(
			mm.userID,
			symbol,
			domain.OrderSideSell,
			domain.OrderTypeLimit,
			sellQuantity,
			mm.roundPrice(sellPrice),
		)

		if err := mm.exchange.SubmitOrder(sellOrder); err != nil {
			log.Printf("MM failed to place sell order: %v", err)
		}
	}
}

func (mm *MarketMaker) getSpread(symbol string) decimal.Decimal {
	switch symbol {
	case "BTC-USD":
		return decimal.NewFromFloat(0.001) // 0.1% spread
	case "ETH-USD":
		return decimal.NewFromFloat(0.0015) // 0.15% spread
	case "SOL-USD":
		return decimal.NewFromFloat(0.002) // 0.2% spread
	default:
		return decimal.NewFromFloat(0.002)
	}
}

func (mm *MarketMaker) getRandomQuantity(symbol string) decimal.Decimal {
	base := 0.01
	if symbol == "SOL-USD" {
		base = 0.1
	}
	return decimal.NewFromFloat(base * (1 + rand.Float64())).Round(8)
}

func (mm *MarketMaker) roundPrice(price decimal.Decimal) decimal.Decimal {
	return price.Round(2)
}

func (mm *MarketMaker) Stop() {
	mm.cancel()
	log.Printf("market maker stopped for user: %s", mm.userID)
}

package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mmbcore/engine/internal/brm"
	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
	"github.com/mmbcore/engine/internal/exchangeblocker"
	"github.com/mmbcore/engine/internal/reservation"
)

// LeverageSource is the per-market leverage lookup a reservation or fill
// needs for a derivative pair (`leverage_by_currency_pair`), kept as its own
// interface rather than named Exchange to avoid colliding with this
// package's matching-engine dispatcher of the same name. AddSymbol consults
// it once per derivative market.
type LeverageSource interface {
	LeverageByCurrencyPair(pair domain.CurrencyPair) (decimal.Decimal, bool)
}

// Exchange fans orders out across one MatchingEngine per symbol and never
// mutates a balances table directly: every order is reserved and every fill
// applied through a brm.Manager, with submission gated on an
// exchangeblocker.ExchangeBlocker the way a real connector would gate on a
// detected outage.
type Exchange struct {
	engines map[string]*MatchingEngine
	mu      sync.RWMutex

	tradeStore TradeStore
	orderStore OrderStore

	brmMgr            *brm.Manager
	blocker           *exchangeblocker.ExchangeBlocker
	exchangeAccountId domain.ExchangeAccountId
	leverageSource    LeverageSource

	metadata map[string]*domain.CurrencyPairMetadata

	reservationsMu sync.Mutex
	reservations   map[string]reservation.Id

	ctx    context.Context
	cancel context.CancelFunc

	onTrade func(*domain.Trade) // Callback when trade executes

	log zerolog.Logger
}

type TradeStore interface {
	SaveTrade(trade *domain.Trade) error
}

type OrderStore interface {
	SaveOrder(order *domain.Order) error
	UpdateOrder(order *domain.Order) error
	GetOrderByID(orderID string) (*domain.Order, error)
}

func NewExchange(
	tradeStore TradeStore,
	orderStore OrderStore,
	brmMgr *brm.Manager,
	blocker *exchangeblocker.ExchangeBlocker,
	exchangeAccountId domain.ExchangeAccountId,
	leverageSource LeverageSource,
	logger zerolog.Logger,
) *Exchange {
	ctx, cancel := context.WithCancel(context.Background())
	ex := &Exchange{
		engines:           make(map[string]*MatchingEngine),
		tradeStore:        tradeStore,
		orderStore:        orderStore,
		brmMgr:            brmMgr,
		blocker:           blocker,
		exchangeAccountId: exchangeAccountId,
		leverageSource:    leverageSource,
		metadata:          make(map[string]*domain.CurrencyPairMetadata),
		reservations:      make(map[string]reservation.Id),
		ctx:               ctx,
		cancel:            cancel,
		log:               logger,
	}
	return ex
}

func (ex *Exchange) Start() {
	go ex.processAllTrades()
	go ex.processAllOrderUpdates()
}

// AddSymbol registers symbol's matching engine plus the market metadata BRM
// needs to reserve/fill against it. Derivative markets also pull their
// leverage from leverageSource; reservation and fill accounting on that
// market fails until that lookup succeeds.
func (ex *Exchange) AddSymbol(symbol string, metadata *domain.CurrencyPairMetadata) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if _, exists := ex.engines[symbol]; exists {
		return
	}

	engine := NewMatchingEngine(symbol)
	ex.engines[symbol] = engine
	ex.metadata[symbol] = metadata

	ex.brmMgr.RegisterMarket(ex.exchangeAccountId, metadata)
	if metadata.IsDerivative && ex.leverageSource != nil {
		if leverage, ok := ex.leverageSource.LeverageByCurrencyPair(metadata.CurrencyPair()); ok {
			ex.brmMgr.SetLeverage(ex.exchangeAccountId, metadata.CurrencyPair(), leverage)
		} else {
			ex.log.Error().Str("symbol", symbol).Msg("engine: no leverage available for derivative market")
		}
	}

	ex.log.Info().Str("symbol", symbol).Bool("derivative", metadata.IsDerivative).Msg("engine: added trading pair")
}

// SubmitOrder reserves order's balance through BRM before it ever reaches
// the matching engine; a blocked exchange or a reservation that doesn't fit
// rejects the order outright with no side effects.
func (ex *Exchange) SubmitOrder(order *domain.Order) error {
	if ex.blocker != nil && ex.blocker.IsBlocked(ex.exchangeAccountId) {
		return fmt.Errorf("engine: exchange account %s is blocked", ex.exchangeAccountId)
	}

	ex.mu.RLock()
	engine, exists := ex.engines[order.Symbol]
	metadata := ex.metadata[order.Symbol]
	ex.mu.RUnlock()

	if !exists {
		return fmt.Errorf("engine: unknown symbol %s", order.Symbol)
	}

	cfg := domain.NewConfigurationDescriptor(order.UserID)
	params := &brm.ReserveParameters{
		ConfigurationDescriptor: cfg,
		ExchangeAccountId:       ex.exchangeAccountId,
		CurrencyPairMetadata:    metadata,
		OrderSide:               order.Side,
		Price:                   order.Price,
		Amount:                  order.Quantity,
	}

	id, ok := ex.brmMgr.TryReserve(params)
	if !ok {
		return brm.ErrInsufficientBalance
	}

	clientOrderId := domain.ClientOrderId(order.ID)
	if err := ex.brmMgr.ApproveReservation(id, clientOrderId, order.Quantity); err != nil {
		_ = ex.brmMgr.Unreserve(id, order.Quantity, nil)
		return fmt.Errorf("engine: approve reservation: %w", err)
	}

	ex.reservationsMu.Lock()
	ex.reservations[order.ID] = id
	ex.reservationsMu.Unlock()

	if err := ex.orderStore.SaveOrder(order); err != nil {
		return err
	}

	go engine.ProcessOrder(order)
	return nil
}

// CancelOrder cancels orderID on symbol's book and releases whatever
// balance its unfilled remainder still has reserved.
func (ex *Exchange) CancelOrder(orderID, symbol string) bool {
	ex.mu.RLock()
	engine, exists := ex.engines[symbol]
	ex.mu.RUnlock()

	if !exists {
		return false
	}

	order, err := ex.orderStore.GetOrderByID(orderID)
	cancelled := engine.CancelOrder(orderID)
	if !cancelled {
		return false
	}

	ex.reservationsMu.Lock()
	id, ok := ex.reservations[orderID]
	if ok {
		delete(ex.reservations, orderID)
	}
	ex.reservationsMu.Unlock()

	if ok && err == nil {
		clientOrderId := domain.ClientOrderId(orderID)
		if uerr := ex.brmMgr.Unreserve(id, order.RemainingQty, &clientOrderId); uerr != nil {
			ex.log.Error().Err(uerr).Str("order", orderID).Msg("engine: failed to release reservation on cancel")
		}
	}

	return true
}

func (ex *Exchange) GetOrderBook(symbol string, depth int) *domain.OrderBook {
	ex.mu.RLock()
	engine, exists := ex.engines[symbol]
	ex.mu.RUnlock()

	if !exists {
		return &domain.OrderBook{
			Symbol:    symbol,
			Bids:      []domain.OrderBookLevel{},
			Asks:      []domain.OrderBookLevel{},
			Timestamp: time.Now(),
		}
	}

	return engine.GetOrderBook(depth)
}

func (ex *Exchange) processAllTrades() {
	for {
		select {
		case <-ex.ctx.Done():
			return
		default:
			ex.mu.RLock()
			for _, engine := range ex.engines {
				select {
				case trade := <-engine.TradeChan():
					if err := ex.tradeStore.SaveTrade(trade); err != nil {
						ex.log.Error().Err(err).Msg("engine: failed to save trade")
					}
					if err := ex.settleTrade(trade); err != nil {
						ex.log.Error().Err(err).Str("trade", trade.ID).Msg("engine: failed to settle trade against BRM")
					}
					if ex.onTrade != nil {
						ex.onTrade(trade)
					}
				default:
				}
			}
			ex.mu.RUnlock()
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (ex *Exchange) processAllOrderUpdates() {
	for {
		select {
		case <-ex.ctx.Done():
			return
		default:
			ex.mu.RLock()
			for _, engine := range ex.engines {
				select {
				case order := <-engine.OrderUpdatesChan():
					if err := ex.orderStore.UpdateOrder(order); err != nil {
						ex.log.Error().Err(err).Msg("engine: failed to update order")
					}
				default:
				}
			}
			ex.mu.RUnlock()
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (ex *Exchange) UpdatePrice(symbol string, price decimal.Decimal) {
	ex.mu.RLock()
	engine, exists := ex.engines[symbol]
	ex.mu.RUnlock()

	if exists {
		engine.CheckStopOrders(price)
	}
}

func (ex *Exchange) Stop() {
	ex.cancel()
}

// SetOnTradeCallback sets the callback to be called when a trade executes
func (ex *Exchange) SetOnTradeCallback(callback func(*domain.Trade)) {
	ex.onTrade = callback
}

// settleTrade settles a matched trade through BRM's fill path: each side's
// reservation is unreserved by the filled quantity and
// HandlePositionFillAmountChange books the virtual balance move on both
// currency legs (and the position move on the amount-currency leg).
func (ex *Exchange) settleTrade(trade *domain.Trade) error {
	ex.mu.RLock()
	metadata, ok := ex.metadata[trade.Symbol]
	ex.mu.RUnlock()
	if !ok {
		return fmt.Errorf("engine: no metadata registered for symbol %s", trade.Symbol)
	}

	ex.applyFill(trade.BuyOrderID, trade.BuyerID, domain.OrderSideBuy, metadata, trade.Quantity, trade.Price)
	ex.applyFill(trade.SellOrderID, trade.SellerID, domain.OrderSideSell, metadata, trade.Quantity, trade.Price)
	return nil
}

func (ex *Exchange) applyFill(orderID, userID string, side domain.OrderSide, metadata *domain.CurrencyPairMetadata, quantity, price decimal.Decimal) {
	cfg := domain.NewConfigurationDescriptor(userID)
	clientOrderId := domain.ClientOrderId(orderID)

	ex.reservationsMu.Lock()
	id, hasReservation := ex.reservations[orderID]
	ex.reservationsMu.Unlock()

	if hasReservation {
		if err := ex.brmMgr.Unreserve(id, quantity, &clientOrderId); err != nil {
			ex.log.Error().Err(err).Str("order", orderID).Msg("engine: failed to unreserve filled amount")
		}
	}

	fillAmount := quantity
	if side.IsSell() {
		fillAmount = quantity.Neg()
	}

	for _, code := range [2]domain.CurrencyCode{metadata.Base, metadata.Quote} {
		if _, err := ex.brmMgr.HandlePositionFillAmountChange(side, &clientOrderId, fillAmount, price, cfg, ex.exchangeAccountId, metadata, code); err != nil {
			ex.log.Error().Err(err).Str("order", orderID).Str("currency", string(code)).Msg("engine: fill amount change failed")
		}
	}
}

func (ex *Exchange) GetAllSymbols() []string {
	ex.mu.RLock()
	defer ex.mu.RUnlock()

	symbols := make([]string, 0, len(ex.engines))
	for symbol := range ex.engines {
		symbols = append(symbols, symbol)
	}
	return symbols
}

package engine

import (
	"container/heap"
	"log"
	"sync"
	"time"

	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
)

type MatchingEngine struct {
	symbol          string
	buyOrders       *OrderHeap
	sellOrders      *OrderHeap
	mu              sync.RWMutex
	tradeChan       chan *domain.Trade
	orderUpdates    chan *domain.Order
	stopLimitOrders []*domain.Order
}

func NewMatchingEngine(symbol string) *MatchingEngine {
	me := &MatchingEngine{
		symbol:          symbol,
		buyOrders:       &OrderHeap{isBuy: true},
		sellOrders:      &OrderHeap{isBuy: false},
		tradeChan:       make(chan *domain.Trade, 1000),
		orderUpdates:    make(chan *domain.Order, 1000),
		stopLimitOrders: make([]*domain.Order, 0),
	}
	heap.Init(me.buyOrders)
	heap.Init(me.sellOrders)
	return me
}

func (me *MatchingEngine) ProcessOrder(order *domain.Order) {
	me.mu.Lock()
	defer me.mu.Unlock()

	if order.Type == domain.OrderTypeStopLimit {
		log.Printf("stop-limit order placed: %s %s %s @ stop:%s limit:%s",
			order.Side, order.Symbol, order.Quantity, order.StopPrice, order.Price)
		me.stopLimitOrders = append(me.stopLimitOrders, order)
		return
	}

	if order.Type == domain.OrderTypeMarket {
		log.Printf("market order: %s %s %s", order.Side, order.Symbol, order.Quantity)
		me.matchMarketOrder(order)
	} else {
		log.Printf("limit order: %s %s %s @ %s", order.Side, order.Symbol, order.Quantity, order.Price)
		me.matchLimitOrder(order)
	}
}

func (me *MatchingEngine) matchLimitOrder(order *domain.Order) {
	var oppositeBook *OrderHeap
	if order.Side == domain.OrderSideBuy {
		oppositeBook = me.sellOrders
	} else {
		oppositeBook = me.buyOrders
	}

	for oppositeBook.Len() > 0 && order.RemainingQty.IsPositive() {
		topOrder := oppositeBook.orders[0]

		canMatch := false
		if order.Side == domain.OrderSideBuy {
			canMatch = order.Price.GreaterThanOrEqual(topOrder.Price)
		} else {
			canMatch = order.Price.LessThanOrEqual(topOrder.Price)
		}

		if !canMatch {
			break
		}

		matchQty := decimal.Min(order.RemainingQty, topOrder.RemainingQty)
		tradePrice := topOrder.Price

		me.executeTrade(order, topOrder, matchQty, tradePrice)

		if topOrder.RemainingQty.IsZero() {
			heap.Pop(oppositeBook)
		} else {
			heap.Fix(oppositeBook, 0)
		}
	}

	if order.RemainingQty.IsPositive() && order.TimeInForce == "GTC" {
		if order.Side == domain.OrderSideBuy {
			heap.Push(me.buyOrders, order)
		} else {
			heap.Push(me.sellOrders, order)
		}
		me.orderUpdates <- order
	} else if order.RemainingQty.IsPositive() {
		order.Status = domain.OrderStatusCancelled
		me.orderUpdates <- order
	}
}

func (me *MatchingEngine) matchMarketOrder(order *domain.Order) {
	var oppositeBook *OrderHeap
	if order.Side == domain.OrderSideBuy {
		oppositeBook = me.sellOrders
	} else {
		oppositeBook = me.buyOrders
	}

	for oppositeBook.Len() > 0 && order.RemainingQty.IsPositive() {
		topOrder := oppositeBook.orders[0]
		matchQty := decimal.Min(order.RemainingQty, topOrder.RemainingQty)
		tradePrice := topOrder.Price

		me.executeTrade(order, topOrder, matchQty, tradePrice)

		if topOrder.RemainingQty.IsZero() {
			heap.Pop(oppositeBook)
		} else {
			heap.Fix(oppositeBook, 0)
		}
	}

	if order.RemainingQty.IsPositive() {
		order.Status = domain.OrderStatusPartial
	}
	me.orderUpdates <- order
}

func (me *MatchingEngine) executeTrade(order1, order2 *domain.Order, quantity, price decimal.Decimal) {
	order1.FilledQuantity = order1.FilledQuantity.Add(quantity)
	order1.RemainingQty = order1.RemainingQty.Sub(quantity)
	order2.FilledQuantity = order2.FilledQuantity.Add(quantity)
	order2.RemainingQty = order2.RemainingQty.Sub(quantity)

	if order1.RemainingQty.IsZero() {
		order1.Status = domain.OrderStatusFilled
	} else {
		order1.Status = domain.OrderStatusPartial
	}

	if order2.RemainingQty.IsZero() {
		order2.Status = domain.OrderStatusFilled
	} else {
		order2.Status = domain.OrderStatusPartial
	}

	order1.UpdatedAt = time.Now()
	order2.UpdatedAt = time.Now()

	var buyOrderID, sellOrderID, buyerID, sellerID string
	if order1.Side == domain.OrderSideBuy {
		buyOrderID = order1.ID
		sellOrderID = order2.ID
		buyerID = order1.UserID
		sellerID = order2.UserID
	} else {
		buyOrderID = order2.ID
		sellOrderID = order1.ID
		buyerID = order2.UserID
		sellerID = order1.UserID
	}

	makerOrderID := order2.ID
	takerOrderID := order1.ID

	trade := domain.NewTrade(me.symbol, buyOrderID, sellOrderID, buyerID, sellerID, price, quantity, makerOrderID, takerOrderID)
	me.tradeChan <- trade
	me.orderUpdates <- order1
	me.orderUpdates <- order2
}

func (me *MatchingEngine) CancelOrder(orderID string) bool {
	me.mu.Lock()
	defer me.mu.Unlock()

	if me.cancelFromHeap(me.buyOrders, orderID) {
		return true
	}
	if me.cancelFromHeap(me.sellOrders, orderID) {
		return true
	}
	return false
}

func (me *MatchingEngine) cancelFromHeap(h *OrderHeap, orderID string) bool {
	for i, order := range h.orders {
		if order.ID == orderID {
			heap.Remove(h, i)
			order.Status = domain.OrderStatusCancelled
			order.UpdatedAt = time.Now()
			me.orderUpdates <- order
			return true
		}
	}
	return false
}

func (me *MatchingEngine) GetOrderBook(depth int) *domain.OrderBook {
	me.mu.RLock()
	defer me.mu.RUnlock()

	bids := make([]domain.OrderBookLevel, 0)
	asks := make([]domain.OrderBookLevel, 0)

	bidMap := make(map[string]*domain.OrderBookLevel)
	for _, order := range me.buyOrders.orders {
		key := order.Price.String()
		if level, exists := bidMap[key]; exists {
			level.Quantity = level.Quantity.Add(order.RemainingQty)
			level.Orders++
		} else {
			bidMap[key] = &domain.OrderBookLevel{
				Price:    order.Price,
				Quantity: order.RemainingQty,
				Orders:   1,
			}
		}
	}

	askMap := make(map[string]*domain.OrderBookLevel)
	for _, order := range me.sellOrders.orders {
		key := order.Price.String()
		if level, exists := askMap[key]; exists {
			level.Quantity = level.Quantity.Add(order.RemainingQty)
			level.Orders++
		} else {
			askMap[key] = &domain.OrderBookLevel{
				Price:    order.Price,
				Quantity: order.RemainingQty,
				Orders:   1,
			}
		}
	}

	for _, level := range bidMap {
		bids = append(bids, *level)
		if len(bids) >= depth {
			break
		}
	}

	for _, level := range askMap {
		asks = append(asks, *level)
		if len(asks) >= depth {
			break
		}
	}

	return &domain.OrderBook{
		Symbol:    me.symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: time.Now(),
	}
}

func (me *MatchingEngine) CheckStopOrders(currentPrice decimal.Decimal) {
	me.mu.Lock()

	triggered := make([]*domain.Order, 0)
	remaining := make([]*domain.Order, 0)

	for _, order := range me.stopLimitOrders {
		shouldTrigger := false
		if order.Side == domain.OrderSideBuy && currentPrice.GreaterThanOrEqual(order.StopPrice) {
			shouldTrigger = true
		} else if order.Side == domain.OrderSideSell && currentPrice.LessThanOrEqual(order.StopPrice) {
			shouldTrigger = true
		}

		if shouldTrigger {
			log.Printf("stop-limit triggered: %s %s %s @ stop:%s -> limit:%s (current:%s)",
				order.Side, order.Symbol, order.Quantity, order.StopPrice, order.Price, currentPrice)
			order.Type = domain.OrderTypeLimit
			triggered = append(triggered, order)
		} else {
			remaining = append(remaining, order)
		}
	}

	me.stopLimitOrders = remaining

	me.mu.Unlock()
	for _, order := range triggered {
		me.ProcessOrder(order)
	}
}

func (me *MatchingEngine) TradeChan() <-chan *domain.Trade {
	return me.tradeChan
}

func (me *MatchingEngine) OrderUpdatesChan() <-chan *domain.Order {
	return me.orderUpdates
}

package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/mmbcore/engine/internal/decimal"
)

type OrderSide string
type OrderType string
type OrderStatus string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// IsSell reports whether the side is a sell, the only distinction the
// balance-reservation core cares about when picking a reservation currency.
func (s OrderSide) IsSell() bool { return s == OrderSideSell }

const (
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

type Order struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Symbol         string          `json:"symbol"`
	Side           OrderSide       `json:"side"`
	Type           OrderType       `json:"type"`
	Quantity       decimal.Decimal `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	StopPrice      decimal.Decimal `json:"stop_price,omitempty"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	RemainingQty   decimal.Decimal `json:"remaining_qty"`
	Status         OrderStatus     `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	TimeInForce    string          `json:"time_in_force"` // GTC, IOC, FOK
}

type Trade struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	BuyOrderID   string          `json:"buy_order_id"`
	SellOrderID  string          `json:"sell_order_id"`
	BuyerID      string          `json:"buyer_id"`
	SellerID     string          `json:"seller_id"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	ExecutedAt   time.Time       `json:"executed_at"`
	MakerOrderID string          `json:"maker_order_id"`
	TakerOrderID string          `json:"taker_order_id"`
}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Ticker struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	High24h   decimal.Decimal `json:"high_24h"`
	Low24h    decimal.Decimal `json:"low_24h"`
	Volume24h decimal.Decimal `json:"volume_24h"`
	Change24h decimal.Decimal `json:"change_24h"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type OrderBook struct {
	Symbol    string           `json:"symbol"`
	Bids      []OrderBookLevel `json:"bids"`
	Asks      []OrderBookLevel `json:"asks"`
	Timestamp time.Time        `json:"timestamp"`
}

type OrderBookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}

func NewOrder(userID, symbol string, side OrderSide, orderType OrderType, quantity, price decimal.Decimal) *Order {
	now := time.Now()
	return &Order{
		ID:             uuid.New().String(),
		UserID:         userID,
		Symbol:         symbol,
		Side:           side,
		Type:           orderType,
		Quantity:       quantity,
		Price:          price,
		FilledQuantity: decimal.Zero,
		RemainingQty:   quantity,
		Status:         OrderStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		TimeInForce:    "GTC",
	}
}

func NewTrade(symbol, buyOrderID, sellOrderID, buyerID, sellerID string, price, quantity decimal.Decimal, makerOrderID, takerOrderID string) *Trade {
	return &Trade{
		ID:           uuid.New().String(),
		Symbol:       symbol,
		BuyOrderID:   buyOrderID,
		SellOrderID:  sellOrderID,
		BuyerID:      buyerID,
		SellerID:     sellerID,
		Price:        price,
		Quantity:     quantity,
		ExecutedAt:   time.Now(),
		MakerOrderID: makerOrderID,
		TakerOrderID: takerOrderID,
	}
}

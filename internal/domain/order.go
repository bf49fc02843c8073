package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType selects limit or market execution.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderStatus tracks the order lifecycle on the venue.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// Terminal reports whether the status is final on the venue.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// OrderRequest is everything a venue needs to place one order. Price is
// ignored for market orders.
type OrderRequest struct {
	Venue  string
	Symbol Symbol
	Side   OrderSide
	Type   OrderType
	Amount decimal.Decimal
	Price  decimal.Decimal
}

// OrderState is a venue's view of an order at one poll.
type OrderState struct {
	OrderID      string
	Status       OrderStatus
	FilledAmount decimal.Decimal
	AvgPrice     decimal.Decimal
	Fee          decimal.Decimal // quote-currency fee charged so far
	UpdatedAt    time.Time
}

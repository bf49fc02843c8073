package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a single price+size entry in an orderbook. Immutable once
// built by a venue adapter.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// QuoteBook is a point-in-time snapshot of one symbol's depth on one venue.
// Bids are best-first (descending price), asks best-first (ascending price).
// The feed replaces the whole snapshot on update; readers never mutate it.
type QuoteBook struct {
	Venue     string
	Symbol    Symbol
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// BestBid returns the highest bid, or false if the bid side is empty.
func (b QuoteBook) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask, or false if the ask side is empty.
func (b QuoteBook) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Mid returns the midpoint of best bid and best ask, or false when either
// side is empty.
func (b QuoteBook) Mid() (decimal.Decimal, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Decimal{}, false
	}
	return bid.Price.Add(ask.Price).Div(two), true
}

// TopBids returns at most n best bid levels without copying level data.
func (b QuoteBook) TopBids(n int) []PriceLevel {
	if len(b.Bids) < n {
		return b.Bids
	}
	return b.Bids[:n]
}

// TopAsks returns at most n best ask levels.
func (b QuoteBook) TopAsks(n int) []PriceLevel {
	if len(b.Asks) < n {
		return b.Asks
	}
	return b.Asks[:n]
}

var two = decimal.NewFromInt(2)

// BookUpdate is an incremental orderbook level update from a feed.
// Size zero means the level was removed.
type BookUpdate struct {
	Venue     string
	Symbol    Symbol
	Side      OrderSide
	Price     decimal.Decimal
	Size      decimal.Decimal
	Timestamp time.Time
}

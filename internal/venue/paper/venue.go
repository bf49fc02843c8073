// Package paper implements a simulated order venue for paper trading.
// Quotes come from a real data feed; orders fill against the live book
// without touching an exchange.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// Config holds the simulation parameters for one paper venue.
type Config struct {
	// Name is the venue identifier, e.g. "paper-binance".
	Name string
	// FeeRate is the taker fee charged on every fill, as a fraction.
	FeeRate decimal.Decimal
	// Balances seeds the starting free balance per asset.
	Balances map[string]decimal.Decimal
}

// Venue is a simulated exchange. It implements domain.OrderVenue and
// domain.BalanceSource against live quotes from the given source. Limit
// orders fill when they cross the book, checked at placement and again on
// every state poll, so the executor's fill-wait loop behaves as it would
// against a real venue.
type Venue struct {
	cfg    Config
	quotes domain.QuoteSource
	logger *slog.Logger

	mu       sync.Mutex
	balances map[string]decimal.Decimal
	orders   map[string]*paperOrder
	seq      int64
}

type paperOrder struct {
	req   domain.OrderRequest
	state domain.OrderState

	// Funds locked at placement, returned on cancel or consumed at fill.
	reservedAsset  string
	reservedAmount decimal.Decimal
}

// NewVenue creates a paper venue seeded with the configured balances.
func NewVenue(cfg Config, quotes domain.QuoteSource, logger *slog.Logger) *Venue {
	balances := make(map[string]decimal.Decimal, len(cfg.Balances))
	for asset, amount := range cfg.Balances {
		balances[asset] = amount
	}
	return &Venue{
		cfg:      cfg,
		quotes:   quotes,
		logger:   logger.With(slog.String("component", "paper_venue"), slog.String("venue", cfg.Name)),
		balances: balances,
		orders:   make(map[string]*paperOrder),
	}
}

var (
	_ domain.OrderVenue    = (*Venue)(nil)
	_ domain.BalanceSource = (*Venue)(nil)
)

// Name returns the venue identifier.
func (v *Venue) Name() string { return v.cfg.Name }

// GetAvailableBalance returns the free balance of the asset.
func (v *Venue) GetAvailableBalance(_ context.Context, _ string, asset string) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[asset], nil
}

// PlaceOrder validates funds, records the order, and tries to fill it
// against the current book.
func (v *Venue) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("paper: place order: %w: amount must be positive", domain.ErrOrderRejected)
	}
	if req.Type == domain.OrderTypeLimit && !req.Price.IsPositive() {
		return "", fmt.Errorf("paper: place order: %w: limit price must be positive", domain.ErrOrderRejected)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.seq++
	id := "paper-" + strconv.FormatInt(v.seq, 10)
	order := &paperOrder{
		req: req,
		state: domain.OrderState{
			OrderID:   id,
			Status:    domain.OrderStatusOpen,
			UpdatedAt: time.Now().UTC(),
		},
	}
	if err := v.reserveFunds(order); err != nil {
		return "", err
	}
	v.orders[id] = order

	v.tryFill(ctx, order)

	v.logger.InfoContext(ctx, "paper order placed",
		slog.String("order_id", id),
		slog.String("symbol", req.Symbol.String()),
		slog.String("side", string(req.Side)),
		slog.String("status", string(order.state.Status)),
	)
	return id, nil
}

// GetOrderState re-checks open orders against the book and returns the
// current state.
func (v *Venue) GetOrderState(ctx context.Context, _ string, _ domain.Symbol, orderID string) (domain.OrderState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	order, ok := v.orders[orderID]
	if !ok {
		return domain.OrderState{}, fmt.Errorf("paper: order %s: %w", orderID, domain.ErrNotFound)
	}
	if order.state.Status == domain.OrderStatusOpen {
		v.tryFill(ctx, order)
	}
	return order.state, nil
}

// CancelOrder cancels an open order and releases its funds. Cancelling a
// terminal order is a no-op.
func (v *Venue) CancelOrder(_ context.Context, _ string, _ domain.Symbol, orderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	order, ok := v.orders[orderID]
	if !ok {
		return fmt.Errorf("paper: cancel order %s: %w", orderID, domain.ErrNotFound)
	}
	if order.state.Status.Terminal() {
		return nil
	}

	v.releaseFunds(order)
	order.state.Status = domain.OrderStatusCancelled
	order.state.UpdatedAt = time.Now().UTC()
	return nil
}

// GetFeeSchedule returns the configured flat taker rate. Satisfies the fee
// manager's schedule source.
func (v *Venue) GetFeeSchedule(_ context.Context, venue string) (domain.FeeSchedule, error) {
	return domain.FeeSchedule{
		Venue:     venue,
		MakerRate: v.cfg.FeeRate,
		TakerRate: v.cfg.FeeRate,
	}, nil
}

// --------------------------------------------------------------------------
// Fill simulation. Caller must hold v.mu.
// --------------------------------------------------------------------------

// tryFill fills the order completely when it crosses the current book.
// Market orders fill at the best opposite level; limit orders fill at their
// own price once the book crosses it.
func (v *Venue) tryFill(ctx context.Context, order *paperOrder) {
	book, err := v.quotes.GetOrderBook(ctx, v.cfg.Name, order.req.Symbol)
	if err != nil || book == nil {
		return
	}

	var fillPrice decimal.Decimal
	switch order.req.Side {
	case domain.OrderSideBuy:
		ask, ok := book.BestAsk()
		if !ok {
			return
		}
		if order.req.Type == domain.OrderTypeMarket {
			fillPrice = ask.Price
		} else if order.req.Price.GreaterThanOrEqual(ask.Price) {
			fillPrice = order.req.Price
		} else {
			return
		}
	case domain.OrderSideSell:
		bid, ok := book.BestBid()
		if !ok {
			return
		}
		if order.req.Type == domain.OrderTypeMarket {
			fillPrice = bid.Price
		} else if order.req.Price.LessThanOrEqual(bid.Price) {
			fillPrice = order.req.Price
		} else {
			return
		}
	default:
		return
	}

	v.settle(order, fillPrice)
}

// settle moves balances for a complete fill at the given price.
func (v *Venue) settle(order *paperOrder, price decimal.Decimal) {
	req := order.req
	notional := price.Mul(req.Amount)
	fee := notional.Mul(v.cfg.FeeRate)

	// The reservation was taken at the limit price; return it and charge
	// the actual fill.
	v.releaseFunds(order)

	base, quote := req.Symbol.Base(), req.Symbol.Quote()
	switch req.Side {
	case domain.OrderSideBuy:
		v.balances[quote] = v.balances[quote].Sub(notional).Sub(fee)
		v.balances[base] = v.balances[base].Add(req.Amount)
	case domain.OrderSideSell:
		v.balances[base] = v.balances[base].Sub(req.Amount)
		v.balances[quote] = v.balances[quote].Add(notional).Sub(fee)
	}

	order.state.Status = domain.OrderStatusFilled
	order.state.FilledAmount = req.Amount
	order.state.AvgPrice = price
	order.state.Fee = fee
	order.state.UpdatedAt = time.Now().UTC()
}

// reserveFunds checks and locks the funds an order needs. Market buys
// reserve nothing up front since the fill price is unknown; they settle at
// fill time and may drive the balance negative, which paper mode tolerates.
func (v *Venue) reserveFunds(order *paperOrder) error {
	req := order.req
	base, quote := req.Symbol.Base(), req.Symbol.Quote()
	switch req.Side {
	case domain.OrderSideBuy:
		if req.Type == domain.OrderTypeMarket {
			return nil
		}
		needed := req.Price.Mul(req.Amount)
		if v.balances[quote].LessThan(needed) {
			return fmt.Errorf("paper: place order: %w: insufficient %s balance", domain.ErrOrderRejected, quote)
		}
		v.balances[quote] = v.balances[quote].Sub(needed)
		order.reservedAsset, order.reservedAmount = quote, needed
	case domain.OrderSideSell:
		if v.balances[base].LessThan(req.Amount) {
			return fmt.Errorf("paper: place order: %w: insufficient %s balance", domain.ErrOrderRejected, base)
		}
		v.balances[base] = v.balances[base].Sub(req.Amount)
		order.reservedAsset, order.reservedAmount = base, req.Amount
	}
	return nil
}

// releaseFunds returns an order's reservation to the free balance.
func (v *Venue) releaseFunds(order *paperOrder) {
	if order.reservedAsset == "" {
		return
	}
	v.balances[order.reservedAsset] = v.balances[order.reservedAsset].Add(order.reservedAmount)
	order.reservedAsset, order.reservedAmount = "", decimal.Decimal{}
}

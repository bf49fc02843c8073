// Package venue routes venue-keyed calls to the adapter registered for
// that venue, so the scanner and executor can treat a fleet of exchanges
// as one surface.
package venue

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// Target is the adapter surface one venue must provide to be routable.
// Both the Binance REST client and the paper venue satisfy it.
type Target interface {
	domain.OrderVenue
	domain.BalanceSource
	GetFeeSchedule(ctx context.Context, venue string) (domain.FeeSchedule, error)
}

// Router dispatches on the venue name. Registration happens during wiring;
// after that the router is read-only.
type Router struct {
	mu      sync.RWMutex
	targets map[string]Target
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{targets: make(map[string]Target)}
}

var (
	_ domain.OrderVenue    = (*Router)(nil)
	_ domain.BalanceSource = (*Router)(nil)
)

// Register adds or replaces the adapter for a venue.
func (r *Router) Register(name string, target Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[name] = target
}

// Venues returns the registered venue names.
func (r *Router) Venues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.targets))
	for name := range r.targets {
		names = append(names, name)
	}
	return names
}

func (r *Router) target(venue string) (Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[venue]
	if !ok {
		return nil, fmt.Errorf("venue %q: %w", venue, domain.ErrNotFound)
	}
	return t, nil
}

// PlaceOrder routes on the request's venue.
func (r *Router) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	t, err := r.target(req.Venue)
	if err != nil {
		return "", err
	}
	return t.PlaceOrder(ctx, req)
}

// GetOrderState routes on the venue name.
func (r *Router) GetOrderState(ctx context.Context, venue string, symbol domain.Symbol, orderID string) (domain.OrderState, error) {
	t, err := r.target(venue)
	if err != nil {
		return domain.OrderState{}, err
	}
	return t.GetOrderState(ctx, venue, symbol, orderID)
}

// CancelOrder routes on the venue name.
func (r *Router) CancelOrder(ctx context.Context, venue string, symbol domain.Symbol, orderID string) error {
	t, err := r.target(venue)
	if err != nil {
		return err
	}
	return t.CancelOrder(ctx, venue, symbol, orderID)
}

// GetAvailableBalance routes on the venue name.
func (r *Router) GetAvailableBalance(ctx context.Context, venue, asset string) (decimal.Decimal, error) {
	t, err := r.target(venue)
	if err != nil {
		return decimal.Zero, err
	}
	return t.GetAvailableBalance(ctx, venue, asset)
}

// GetFeeSchedule routes on the venue name. Satisfies the fee manager's
// schedule source.
func (r *Router) GetFeeSchedule(ctx context.Context, venue string) (domain.FeeSchedule, error) {
	t, err := r.target(venue)
	if err != nil {
		return domain.FeeSchedule{}, err
	}
	return t.GetFeeSchedule(ctx, venue)
}

// Package registry holds the in-process view of live market state: depth
// books, last-trade prices, and tradable pairs per venue. The feed is the
// only writer; scanners and the executor read concurrently.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// Registry implements domain.QuoteSource and domain.PairSource over
// in-memory state.
type Registry struct {
	mu     sync.RWMutex
	books  map[string]map[domain.Symbol]domain.QuoteBook
	last   map[string]map[domain.Symbol]decimal.Decimal
	pairs  map[string][]domain.Symbol
	limits map[string]map[domain.Symbol]domain.MarketLimits
}

var (
	_ domain.QuoteSource = (*Registry)(nil)
	_ domain.PairSource  = (*Registry)(nil)
)

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		books:  make(map[string]map[domain.Symbol]domain.QuoteBook),
		last:   make(map[string]map[domain.Symbol]decimal.Decimal),
		pairs:  make(map[string][]domain.Symbol),
		limits: make(map[string]map[domain.Symbol]domain.MarketLimits),
	}
}

// SetBook replaces a venue's book for one symbol with a fresh snapshot.
func (r *Registry) SetBook(book domain.QuoteBook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	venueBooks, ok := r.books[book.Venue]
	if !ok {
		venueBooks = make(map[domain.Symbol]domain.QuoteBook)
		r.books[book.Venue] = venueBooks
	}
	venueBooks[book.Symbol] = book
}

// SetLastPrice records a venue's last trade price for a symbol.
func (r *Registry) SetLastPrice(venue string, symbol domain.Symbol, price decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	venueLast, ok := r.last[venue]
	if !ok {
		venueLast = make(map[domain.Symbol]decimal.Decimal)
		r.last[venue] = venueLast
	}
	venueLast[symbol] = price
}

// SetPairs replaces a venue's tradable pair list.
func (r *Registry) SetPairs(venue string, pairs []domain.Symbol) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs[venue] = append([]domain.Symbol(nil), pairs...)
}

// SetLimits records a venue's order constraints for a symbol.
func (r *Registry) SetLimits(venue string, symbol domain.Symbol, limits domain.MarketLimits) {
	r.mu.Lock()
	defer r.mu.Unlock()
	venueLimits, ok := r.limits[venue]
	if !ok {
		venueLimits = make(map[domain.Symbol]domain.MarketLimits)
		r.limits[venue] = venueLimits
	}
	venueLimits[symbol] = limits
}

// GetOrderBook returns the current snapshot for a venue/symbol. The
// returned book is a copy of the stored value; levels are shared but
// treated as immutable throughout.
func (r *Registry) GetOrderBook(_ context.Context, venue string, symbol domain.Symbol) (*domain.QuoteBook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	book, ok := r.books[venue][symbol]
	if !ok {
		return nil, fmt.Errorf("registry: book %s on %s: %w", symbol, venue, domain.ErrQuoteUnavailable)
	}
	return &book, nil
}

// GetTickerPrice returns the last trade price, falling back to the book
// midpoint when no trade has been seen yet.
func (r *Registry) GetTickerPrice(_ context.Context, venue string, symbol domain.Symbol) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if price, ok := r.last[venue][symbol]; ok && price.IsPositive() {
		return price, nil
	}
	if book, ok := r.books[venue][symbol]; ok {
		if mid, ok := book.Mid(); ok {
			return mid, nil
		}
	}
	return decimal.Zero, fmt.Errorf("registry: ticker %s on %s: %w", symbol, venue, domain.ErrQuoteUnavailable)
}

// ListPairs returns the venue's tradable pairs.
func (r *Registry) ListPairs(_ context.Context, venue string) ([]domain.Symbol, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pairs, ok := r.pairs[venue]
	if !ok {
		return nil, fmt.Errorf("registry: pairs on %s: %w", venue, domain.ErrNotFound)
	}
	return append([]domain.Symbol(nil), pairs...), nil
}

// GetLimits returns the venue's order constraints for a symbol. Unknown
// symbols return the zero value without error; callers fall back to their
// own defaults.
func (r *Registry) GetLimits(_ context.Context, venue string, symbol domain.Symbol) (domain.MarketLimits, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limits[venue][symbol], nil
}

// Snapshot copies the full book state for offline analysis, such as the
// triangle detector.
func (r *Registry) Snapshot() map[string]map[domain.Symbol]domain.QuoteBook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]map[domain.Symbol]domain.QuoteBook, len(r.books))
	for venue, venueBooks := range r.books {
		copied := make(map[domain.Symbol]domain.QuoteBook, len(venueBooks))
		for symbol, book := range venueBooks {
			copied[symbol] = book
		}
		out[venue] = copied
	}
	return out
}

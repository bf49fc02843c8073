package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testBook() domain.QuoteBook {
	return domain.QuoteBook{
		Venue:     "alpha",
		Symbol:    "BTC/USDT",
		Bids:      []domain.PriceLevel{{Price: d("99"), Size: d("1")}},
		Asks:      []domain.PriceLevel{{Price: d("101"), Size: d("1")}},
		Timestamp: time.Now(),
	}
}

func TestBookRoundTrip(t *testing.T) {
	r := New()
	ctx := context.Background()

	if _, err := r.GetOrderBook(ctx, "alpha", "BTC/USDT"); !errors.Is(err, domain.ErrQuoteUnavailable) {
		t.Fatalf("missing book err = %v, want ErrQuoteUnavailable", err)
	}

	r.SetBook(testBook())
	book, err := r.GetOrderBook(ctx, "alpha", "BTC/USDT")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	bid, _ := book.BestBid()
	if !bid.Price.Equal(d("99")) {
		t.Fatalf("best bid = %s, want 99", bid.Price)
	}
}

func TestTickerFallsBackToMid(t *testing.T) {
	r := New()
	ctx := context.Background()
	r.SetBook(testBook())

	mid, err := r.GetTickerPrice(ctx, "alpha", "BTC/USDT")
	if err != nil {
		t.Fatalf("mid fallback: %v", err)
	}
	if !mid.Equal(d("100")) {
		t.Fatalf("mid = %s, want 100", mid)
	}

	r.SetLastPrice("alpha", "BTC/USDT", d("99.5"))
	last, err := r.GetTickerPrice(ctx, "alpha", "BTC/USDT")
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if !last.Equal(d("99.5")) {
		t.Fatalf("last = %s, want 99.5", last)
	}
}

func TestPairsAndLimits(t *testing.T) {
	r := New()
	ctx := context.Background()

	if _, err := r.ListPairs(ctx, "alpha"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing pairs err = %v, want ErrNotFound", err)
	}

	r.SetPairs("alpha", []domain.Symbol{"BTC/USDT", "ETH/USDT"})
	pairs, err := r.ListPairs(ctx, "alpha")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("got %d pairs, want 2", len(pairs))
	}

	// Unknown limits come back as the zero value, not an error.
	limits, err := r.GetLimits(ctx, "alpha", "BTC/USDT")
	if err != nil {
		t.Fatalf("limits: %v", err)
	}
	if limits != (domain.MarketLimits{}) {
		t.Fatalf("limits = %+v, want zero value", limits)
	}

	r.SetLimits("alpha", "BTC/USDT", domain.MarketLimits{AmountPrecision: 6, MinAmount: d("0.0001")})
	limits, err = r.GetLimits(ctx, "alpha", "BTC/USDT")
	if err != nil {
		t.Fatalf("limits: %v", err)
	}
	if limits.AmountPrecision != 6 {
		t.Fatalf("precision = %d, want 6", limits.AmountPrecision)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	r := New()
	r.SetBook(testBook())

	snap := r.Snapshot()
	delete(snap["alpha"], "BTC/USDT")

	if _, err := r.GetOrderBook(context.Background(), "alpha", "BTC/USDT"); err != nil {
		t.Fatal("mutating a snapshot must not affect the registry")
	}
}

package paper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeQuotes serves a fixed book per symbol.
type fakeQuotes struct {
	books map[domain.Symbol]*domain.QuoteBook
}

func (f *fakeQuotes) GetOrderBook(_ context.Context, _ string, symbol domain.Symbol) (*domain.QuoteBook, error) {
	book, ok := f.books[symbol]
	if !ok {
		return nil, domain.ErrQuoteUnavailable
	}
	return book, nil
}

func (f *fakeQuotes) GetTickerPrice(_ context.Context, _ string, symbol domain.Symbol) (decimal.Decimal, error) {
	book, ok := f.books[symbol]
	if !ok {
		return decimal.Zero, domain.ErrQuoteUnavailable
	}
	mid, _ := book.Mid()
	return mid, nil
}

func btcBook(bid, ask string) *domain.QuoteBook {
	return &domain.QuoteBook{
		Venue:  "paper",
		Symbol: "BTC/USDT",
		Bids:   []domain.PriceLevel{{Price: d(bid), Size: d("5")}},
		Asks:   []domain.PriceLevel{{Price: d(ask), Size: d("5")}},
	}
}

func testVenue(quotes domain.QuoteSource) *Venue {
	return NewVenue(Config{
		Name:    "paper",
		FeeRate: d("0.001"),
		Balances: map[string]decimal.Decimal{
			"USDT": d("1000"),
			"BTC":  d("1"),
		},
	}, quotes, discard())
}

func TestLimitBuyFillsWhenCrossing(t *testing.T) {
	quotes := &fakeQuotes{books: map[domain.Symbol]*domain.QuoteBook{
		"BTC/USDT": btcBook("99.5", "100"),
	}}
	v := testVenue(quotes)
	ctx := context.Background()

	id, err := v.PlaceOrder(ctx, domain.OrderRequest{
		Venue: "paper", Symbol: "BTC/USDT", Side: domain.OrderSideBuy,
		Type: domain.OrderTypeLimit, Amount: d("2"), Price: d("100.1"),
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	state, err := v.GetOrderState(ctx, "paper", "BTC/USDT", id)
	if err != nil {
		t.Fatalf("GetOrderState: %v", err)
	}
	if state.Status != domain.OrderStatusFilled {
		t.Fatalf("status = %s, want filled", state.Status)
	}
	// Limit crosses the 100 ask, fills at its own price 100.1.
	if !state.AvgPrice.Equal(d("100.1")) {
		t.Fatalf("avg price = %s, want 100.1", state.AvgPrice)
	}
	// Fee = 2 * 100.1 * 0.001 = 0.2002.
	if !state.Fee.Equal(d("0.2002")) {
		t.Fatalf("fee = %s, want 0.2002", state.Fee)
	}

	// USDT: 1000 - 200.2 - 0.2002 = 799.5998, BTC: 1 + 2 = 3.
	usdt, _ := v.GetAvailableBalance(ctx, "paper", "USDT")
	btc, _ := v.GetAvailableBalance(ctx, "paper", "BTC")
	if !usdt.Equal(d("799.5998")) {
		t.Errorf("USDT = %s, want 799.5998", usdt)
	}
	if !btc.Equal(d("3")) {
		t.Errorf("BTC = %s, want 3", btc)
	}
}

func TestLimitBuyRestsUntilBookCrosses(t *testing.T) {
	quotes := &fakeQuotes{books: map[domain.Symbol]*domain.QuoteBook{
		"BTC/USDT": btcBook("99.5", "100"),
	}}
	v := testVenue(quotes)
	ctx := context.Background()

	id, err := v.PlaceOrder(ctx, domain.OrderRequest{
		Venue: "paper", Symbol: "BTC/USDT", Side: domain.OrderSideBuy,
		Type: domain.OrderTypeLimit, Amount: d("1"), Price: d("99"),
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	state, _ := v.GetOrderState(ctx, "paper", "BTC/USDT", id)
	if state.Status != domain.OrderStatusOpen {
		t.Fatalf("status = %s, want open", state.Status)
	}

	// Reservation of 99 USDT is held while the order rests.
	usdt, _ := v.GetAvailableBalance(ctx, "paper", "USDT")
	if !usdt.Equal(d("901")) {
		t.Fatalf("USDT while resting = %s, want 901", usdt)
	}

	// Ask drops through the limit; the next poll fills.
	quotes.books["BTC/USDT"] = btcBook("98.5", "98.9")
	state, _ = v.GetOrderState(ctx, "paper", "BTC/USDT", id)
	if state.Status != domain.OrderStatusFilled {
		t.Fatalf("status after cross = %s, want filled", state.Status)
	}
	if !state.AvgPrice.Equal(d("99")) {
		t.Fatalf("avg price = %s, want 99", state.AvgPrice)
	}
}

func TestMarketSellFillsAtBid(t *testing.T) {
	quotes := &fakeQuotes{books: map[domain.Symbol]*domain.QuoteBook{
		"BTC/USDT": btcBook("99.5", "100"),
	}}
	v := testVenue(quotes)
	ctx := context.Background()

	id, err := v.PlaceOrder(ctx, domain.OrderRequest{
		Venue: "paper", Symbol: "BTC/USDT", Side: domain.OrderSideSell,
		Type: domain.OrderTypeMarket, Amount: d("0.5"),
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	state, _ := v.GetOrderState(ctx, "paper", "BTC/USDT", id)
	if state.Status != domain.OrderStatusFilled {
		t.Fatalf("status = %s, want filled", state.Status)
	}
	if !state.AvgPrice.Equal(d("99.5")) {
		t.Fatalf("avg price = %s, want 99.5", state.AvgPrice)
	}

	// USDT: 1000 + 49.75 - 0.04975 = 1049.70025, BTC: 0.5.
	usdt, _ := v.GetAvailableBalance(ctx, "paper", "USDT")
	btc, _ := v.GetAvailableBalance(ctx, "paper", "BTC")
	if !usdt.Equal(d("1049.70025")) {
		t.Errorf("USDT = %s, want 1049.70025", usdt)
	}
	if !btc.Equal(d("0.5")) {
		t.Errorf("BTC = %s, want 0.5", btc)
	}
}

func TestInsufficientBalanceRejected(t *testing.T) {
	quotes := &fakeQuotes{books: map[domain.Symbol]*domain.QuoteBook{
		"BTC/USDT": btcBook("99.5", "100"),
	}}
	v := testVenue(quotes)

	_, err := v.PlaceOrder(context.Background(), domain.OrderRequest{
		Venue: "paper", Symbol: "BTC/USDT", Side: domain.OrderSideSell,
		Type: domain.OrderTypeLimit, Amount: d("5"), Price: d("100"),
	})
	if !errors.Is(err, domain.ErrOrderRejected) {
		t.Fatalf("err = %v, want ErrOrderRejected", err)
	}
}

func TestCancelReleasesReservation(t *testing.T) {
	quotes := &fakeQuotes{books: map[domain.Symbol]*domain.QuoteBook{
		"BTC/USDT": btcBook("99.5", "100"),
	}}
	v := testVenue(quotes)
	ctx := context.Background()

	id, err := v.PlaceOrder(ctx, domain.OrderRequest{
		Venue: "paper", Symbol: "BTC/USDT", Side: domain.OrderSideBuy,
		Type: domain.OrderTypeLimit, Amount: d("1"), Price: d("99"),
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	if err := v.CancelOrder(ctx, "paper", "BTC/USDT", id); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	state, _ := v.GetOrderState(ctx, "paper", "BTC/USDT", id)
	if state.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %s, want cancelled", state.Status)
	}
	usdt, _ := v.GetAvailableBalance(ctx, "paper", "USDT")
	if !usdt.Equal(d("1000")) {
		t.Fatalf("USDT after cancel = %s, want 1000", usdt)
	}

	// Cancelling again is a no-op.
	if err := v.CancelOrder(ctx, "paper", "BTC/USDT", id); err != nil {
		t.Fatalf("second CancelOrder: %v", err)
	}
}

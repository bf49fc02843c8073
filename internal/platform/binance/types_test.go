package binance

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

func TestWireSymbol(t *testing.T) {
	if got := wireSymbol(domain.Symbol("BTC/USDT")); got != "BTCUSDT" {
		t.Fatalf("wireSymbol = %s, want BTCUSDT", got)
	}
}

func TestStatusToDomain(t *testing.T) {
	tests := []struct {
		wire string
		want domain.OrderStatus
	}{
		{"NEW", domain.OrderStatusOpen},
		{"PARTIALLY_FILLED", domain.OrderStatusOpen},
		{"FILLED", domain.OrderStatusFilled},
		{"CANCELED", domain.OrderStatusCancelled},
		{"EXPIRED", domain.OrderStatusCancelled},
		{"REJECTED", domain.OrderStatusRejected},
		{"SOMETHING_NEW", domain.OrderStatusOpen},
	}
	for _, tt := range tests {
		if got := statusToDomain(tt.wire); got != tt.want {
			t.Errorf("statusToDomain(%s) = %s, want %s", tt.wire, got, tt.want)
		}
	}
}

func TestDepthToBook(t *testing.T) {
	depth := depthResponse{
		Bids: [][2]string{{"59999.5", "0.4"}, {"59999.0", "1.2"}},
		Asks: [][2]string{{"60000.5", "0.3"}, {"60001.0", "0"}},
	}

	book, err := depthToBook("binance", "BTC/USDT", depth)
	if err != nil {
		t.Fatalf("depthToBook: %v", err)
	}

	if len(book.Bids) != 2 {
		t.Fatalf("bids = %d, want 2", len(book.Bids))
	}
	// Zero-size levels are dropped.
	if len(book.Asks) != 1 {
		t.Fatalf("asks = %d, want 1", len(book.Asks))
	}

	best, ok := book.BestBid()
	if !ok || !best.Price.Equal(decimal.RequireFromString("59999.5")) {
		t.Fatalf("best bid = %v", best.Price)
	}
}

func TestDepthToBookBadPrice(t *testing.T) {
	depth := depthResponse{Bids: [][2]string{{"oops", "1"}}}
	if _, err := depthToBook("binance", "BTC/USDT", depth); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLimitsFromFilters(t *testing.T) {
	filters := []symbolFilter{
		{FilterType: "PRICE_FILTER"},
		{FilterType: "LOT_SIZE", MinQty: "0.00010000", StepSize: "0.00010000"},
		{FilterType: "NOTIONAL", MinNotional: "5.00000000"},
	}

	limits := limitsFromFilters(filters)

	if limits.AmountPrecision != 4 {
		t.Errorf("precision = %d, want 4", limits.AmountPrecision)
	}
	if !limits.MinAmount.Equal(decimal.RequireFromString("0.0001")) {
		t.Errorf("min amount = %s", limits.MinAmount)
	}
	if !limits.MinNotional.Equal(decimal.NewFromInt(5)) {
		t.Errorf("min notional = %s", limits.MinNotional)
	}
}

func TestStepPrecision(t *testing.T) {
	tests := []struct {
		step string
		want int32
	}{
		{"1.00000000", 0},
		{"0.10000000", 1},
		{"0.00010000", 4},
		{"0.00000001", 8},
	}
	for _, tt := range tests {
		if got := stepPrecision(decimal.RequireFromString(tt.step)); got != tt.want {
			t.Errorf("stepPrecision(%s) = %d, want %d", tt.step, got, tt.want)
		}
	}
}

package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

func deepBook(venue string, symbol domain.Symbol, bidPrice, askPrice string) *domain.QuoteBook {
	return &domain.QuoteBook{
		Venue:     venue,
		Symbol:    symbol,
		Bids:      []domain.PriceLevel{{Price: d(bidPrice), Size: d("100")}},
		Asks:      []domain.PriceLevel{{Price: d(askPrice), Size: d("100")}},
		Timestamp: time.Now(),
	}
}

func newTriangularFixture() *fakeMarket {
	// 1 USDT -> 1/60000 BTC -> /0.05 ETH -> *3050 USDT = 1.01666...
	// Gross 1.667%, minus 3x 0.1% taker = ~1.37% net.
	return &fakeMarket{
		books: map[string]map[domain.Symbol]*domain.QuoteBook{
			"alpha": {
				"BTC/USDT": deepBook("alpha", "BTC/USDT", "59990", "60000"),
				"ETH/BTC":  deepBook("alpha", "ETH/BTC", "0.0499", "0.05"),
				"ETH/USDT": deepBook("alpha", "ETH/USDT", "3050", "3051"),
			},
		},
		fee:      d("0.001"),
		bookErrs: map[string]bool{},
	}
}

func newTriScanner(m *fakeMarket, paths ...domain.TriangularPath) *TriangularScanner {
	return NewTriangularScanner(
		TriangularConfig{Paths: paths},
		m, m,
		fixedThreshold{pct: d("0.5")},
		discard(),
	)
}

func TestTriangularScan(t *testing.T) {
	m := newTriangularFixture()
	s := newTriScanner(m, domain.TriangularPath{"BTC/USDT", "ETH/BTC", "ETH/USDT"})

	opps, audit, err := s.Scan(context.Background(), "alpha", d("400"))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1 (audit: %+v)", len(opps), audit)
	}

	opp := opps[0]
	if opp.Venue != "alpha" {
		t.Fatalf("venue = %s, want alpha", opp.Venue)
	}
	if opp.NetProfitPct.LessThan(d("1.36")) || opp.NetProfitPct.GreaterThan(d("1.37")) {
		t.Fatalf("net profit pct = %s, want ~1.367", opp.NetProfitPct)
	}
	if !opp.TradeValue.Equal(d("400")) {
		t.Fatalf("trade value = %s, want capital 400", opp.TradeValue)
	}
	if !opp.LegPrices[0].Equal(d("60000")) || !opp.LegPrices[1].Equal(d("0.05")) || !opp.LegPrices[2].Equal(d("3050")) {
		t.Fatalf("leg prices = %v", opp.LegPrices)
	}
}

func TestTriangularScanMissingBook(t *testing.T) {
	m := newTriangularFixture()
	delete(m.books["alpha"], "ETH/BTC")
	s := newTriScanner(m, domain.TriangularPath{"BTC/USDT", "ETH/BTC", "ETH/USDT"})

	opps, audit, err := s.Scan(context.Background(), "alpha", d("400"))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(opps) != 0 {
		t.Fatalf("got %d opportunities, want 0", len(opps))
	}
	if audit.Rejections[domain.ReasonQuoteUnavailable] != 1 {
		t.Fatalf("missing book not counted: %+v", audit.Rejections)
	}
}

func TestTriangularScanUnprofitableCycle(t *testing.T) {
	m := newTriangularFixture()
	// Exit leg priced at parity removes the edge entirely.
	m.books["alpha"]["ETH/USDT"] = deepBook("alpha", "ETH/USDT", "3000", "3001")
	s := newTriScanner(m, domain.TriangularPath{"BTC/USDT", "ETH/BTC", "ETH/USDT"})

	opps, audit, err := s.Scan(context.Background(), "alpha", d("400"))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(opps) != 0 {
		t.Fatalf("got %d opportunities, want 0", len(opps))
	}
	if audit.Rejections[domain.ReasonProfitBelowThreshold] != 1 {
		t.Fatalf("unprofitable cycle not counted: %+v", audit.Rejections)
	}
}

func TestDetectTriangles(t *testing.T) {
	books := map[string]map[domain.Symbol]domain.QuoteBook{
		"alpha": {
			"BTC/USDT": *deepBook("alpha", "BTC/USDT", "59990", "60000"),
			"ETH/BTC":  *deepBook("alpha", "ETH/BTC", "0.0499", "0.05"),
			"ETH/USDT": *deepBook("alpha", "ETH/USDT", "3050", "3051"),
		},
	}
	fees := map[string]decimal.Decimal{"alpha": d("0.001")}

	found := DetectTriangles(books, fees, d("0.5"))
	if len(found) == 0 {
		t.Fatal("profitable cycle not detected")
	}
	best := found[0]
	want := domain.TriangularPath{"BTC/USDT", "ETH/BTC", "ETH/USDT"}
	if best.Path != want {
		t.Fatalf("best path = %v, want %v", best.Path, want)
	}
	for i := 1; i < len(found); i++ {
		if found[i].NetProfitPct.GreaterThan(found[i-1].NetProfitPct) {
			t.Fatal("detector output not sorted descending")
		}
	}

	// With no schedule entry the detector falls back to the default taker
	// fee and the cycle stays profitable.
	found = DetectTriangles(books, nil, d("0.5"))
	if len(found) == 0 {
		t.Fatal("fallback fee dropped a profitable cycle")
	}
}

func TestDetectTrianglesRespectsMinimum(t *testing.T) {
	books := map[string]map[domain.Symbol]domain.QuoteBook{
		"alpha": {
			"BTC/USDT": *deepBook("alpha", "BTC/USDT", "59990", "60000"),
			"ETH/BTC":  *deepBook("alpha", "ETH/BTC", "0.0499", "0.05"),
			"ETH/USDT": *deepBook("alpha", "ETH/USDT", "3050", "3051"),
		},
	}
	found := DetectTriangles(books, map[string]decimal.Decimal{"alpha": d("0.001")}, d("5"))
	if len(found) != 0 {
		t.Fatalf("got %d cycles above a 5%% minimum, want 0", len(found))
	}
}

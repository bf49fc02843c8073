package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
	"github.com/halfmoonlabs/crossarb/internal/profit"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeMarket implements the quote, balance, fee, and pair contracts against
// in-memory fixtures.
type fakeMarket struct {
	books     map[string]map[domain.Symbol]*domain.QuoteBook
	last      map[string]decimal.Decimal
	balances  map[string]decimal.Decimal
	pairs     map[string][]domain.Symbol
	fee       decimal.Decimal
	bookErrs  map[string]bool
	listCalls int
}

func (f *fakeMarket) GetOrderBook(_ context.Context, venue string, symbol domain.Symbol) (*domain.QuoteBook, error) {
	if f.bookErrs[venue+"|"+symbol.String()] {
		return nil, domain.ErrQuoteUnavailable
	}
	book, ok := f.books[venue][symbol]
	if !ok {
		return nil, domain.ErrQuoteUnavailable
	}
	return book, nil
}

func (f *fakeMarket) GetTickerPrice(_ context.Context, venue string, symbol domain.Symbol) (decimal.Decimal, error) {
	if last, ok := f.last[venue+"|"+symbol.String()]; ok {
		return last, nil
	}
	return decimal.Zero, domain.ErrQuoteUnavailable
}

func (f *fakeMarket) GetAvailableBalance(_ context.Context, venue, asset string) (decimal.Decimal, error) {
	bal, ok := f.balances[venue+"|"+asset]
	if !ok {
		return decimal.Zero, nil
	}
	return bal, nil
}

func (f *fakeMarket) GetEffectiveFee(_ context.Context, _ string, _ decimal.Decimal, _ bool) (decimal.Decimal, error) {
	return f.fee, nil
}

func (f *fakeMarket) ListPairs(_ context.Context, venue string) ([]domain.Symbol, error) {
	f.listCalls++
	pairs, ok := f.pairs[venue]
	if !ok {
		return nil, errors.New("unknown venue")
	}
	return pairs, nil
}

func (f *fakeMarket) GetLimits(context.Context, string, domain.Symbol) (domain.MarketLimits, error) {
	return domain.MarketLimits{}, nil
}

type fixedThreshold struct{ pct decimal.Decimal }

func (t fixedThreshold) ThresholdPct() decimal.Decimal { return t.pct }

func book(venue string, symbol domain.Symbol, bidPrice, bidSize, askPrice, askSize string) *domain.QuoteBook {
	return &domain.QuoteBook{
		Venue:     venue,
		Symbol:    symbol,
		Bids:      []domain.PriceLevel{{Price: d(bidPrice), Size: d(bidSize)}},
		Asks:      []domain.PriceLevel{{Price: d(askPrice), Size: d(askSize)}},
		Timestamp: time.Now(),
	}
}

func newFakeMarket() *fakeMarket {
	btc := domain.Symbol("BTC/USDT")
	return &fakeMarket{
		books: map[string]map[domain.Symbol]*domain.QuoteBook{
			"alpha": {btc: book("alpha", btc, "99.9", "5", "100", "5")},
			"beta":  {btc: book("beta", btc, "102", "5", "102.1", "5")},
		},
		last: map[string]decimal.Decimal{
			"alpha|BTC/USDT": d("100"),
			"beta|BTC/USDT":  d("102"),
		},
		balances: map[string]decimal.Decimal{
			"alpha|USDT": d("1000"),
			"alpha|BTC":  d("1"),
			"beta|USDT":  d("1000"),
			"beta|BTC":   d("1"),
		},
		pairs: map[string][]domain.Symbol{
			"alpha": {btc},
			"beta":  {btc},
		},
		fee:      d("0.001"),
		bookErrs: map[string]bool{},
	}
}

func newScanner(m *fakeMarket) *Scanner {
	return NewScanner(
		Config{Venues: []string{"alpha", "beta"}},
		m, m, m, m,
		profit.NewCalculator(decimal.Zero),
		fixedThreshold{pct: d("0.5")},
		discard(),
	)
}

func TestScanCrossExchange(t *testing.T) {
	m := newFakeMarket()
	opps, audit, err := newScanner(m).ScanCrossExchange(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1 (audit: %+v)", len(opps), audit)
	}

	opp := opps[0]
	if opp.BuyVenue != "alpha" || opp.SellVenue != "beta" {
		t.Fatalf("direction = buy %s / sell %s, want alpha/beta", opp.BuyVenue, opp.SellVenue)
	}
	// Sized by min(quote on buy venue, base on sell venue at sell price):
	// min(1000, 1 * 102) = 102.
	if !opp.TradeValue.Equal(d("102")) {
		t.Fatalf("trade value = %s, want 102", opp.TradeValue)
	}
	if !opp.NetProfit.IsPositive() {
		t.Fatalf("net profit = %s, want positive", opp.NetProfit)
	}
	// The reverse direction (buy at 102.1, sell at 99.9) has a negative
	// spread and must be attributed to the profit threshold.
	if audit.Rejections[domain.ReasonProfitBelowThreshold] == 0 {
		t.Fatalf("reverse direction not counted: %+v", audit.Rejections)
	}
}

func TestScanSizingZeroQuoteBalance(t *testing.T) {
	// Zero quote balance on the buy venue is always the binding constraint,
	// regardless of base inventory on the sell venue.
	m := newFakeMarket()
	m.balances["alpha|USDT"] = decimal.Zero
	m.balances["beta|BTC"] = d("10")

	opps, audit, err := newScanner(m).ScanCrossExchange(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(opps) != 0 {
		t.Fatalf("got %d opportunities, want 0", len(opps))
	}
	if audit.Rejections[domain.ReasonNoBalance] == 0 {
		t.Fatalf("no balance rejection not counted: %+v", audit.Rejections)
	}
}

func TestScanSkipsFailingVenue(t *testing.T) {
	m := newFakeMarket()
	m.bookErrs["beta|BTC/USDT"] = true

	opps, audit, err := newScanner(m).ScanCrossExchange(context.Background())
	if err != nil {
		t.Fatalf("scan must not abort on one venue failure: %v", err)
	}
	if len(opps) != 0 {
		t.Fatalf("got %d opportunities, want 0", len(opps))
	}
	if audit.Rejections[domain.ReasonQuoteUnavailable] == 0 {
		t.Fatalf("venue failure not counted: %+v", audit.Rejections)
	}
}

func TestScanRanking(t *testing.T) {
	m := newFakeMarket()
	eth := domain.Symbol("ETH/USDT")
	// A second pair with a wider spread should rank first.
	m.books["alpha"][eth] = book("alpha", eth, "199", "50", "200", "50")
	m.books["beta"][eth] = book("beta", eth, "210", "50", "210.5", "50")
	m.last["alpha|ETH/USDT"] = d("200")
	m.last["beta|ETH/USDT"] = d("210")
	m.balances["beta|ETH"] = d("1")
	m.pairs["alpha"] = append(m.pairs["alpha"], eth)
	m.pairs["beta"] = append(m.pairs["beta"], eth)

	opps, _, err := newScanner(m).ScanCrossExchange(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(opps) != 2 {
		t.Fatalf("got %d opportunities, want 2", len(opps))
	}
	if opps[0].Symbol != eth {
		t.Fatalf("top candidate = %s, want ETH/USDT", opps[0].Symbol)
	}
	if opps[0].NetProfitPct.LessThan(opps[1].NetProfitPct) {
		t.Fatal("opportunities not sorted by net profit descending")
	}
}

func TestScanBelowMinNotional(t *testing.T) {
	m := newFakeMarket()
	m.balances["alpha|USDT"] = d("5") // under the $10 floor

	opps, audit, err := newScanner(m).ScanCrossExchange(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(opps) != 0 {
		t.Fatalf("got %d opportunities, want 0", len(opps))
	}
	if audit.Rejections[domain.ReasonBelowMinNotional] == 0 {
		t.Fatalf("min notional rejection not counted: %+v", audit.Rejections)
	}
}

func TestPairRefreshInterval(t *testing.T) {
	m := newFakeMarket()
	s := newScanner(m)
	ctx := context.Background()

	if _, _, err := s.ScanCrossExchange(ctx); err != nil {
		t.Fatalf("scan: %v", err)
	}
	first := m.listCalls
	if first == 0 {
		t.Fatal("pairs never fetched")
	}
	// A second cycle inside the refresh interval reuses the cached list.
	if _, _, err := s.ScanCrossExchange(ctx); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if m.listCalls != first {
		t.Fatalf("pair list refetched within interval: %d -> %d calls", first, m.listCalls)
	}
}

func TestPairIntersection(t *testing.T) {
	m := newFakeMarket()
	solo := domain.Symbol("DOGE/USDT")
	m.pairs["alpha"] = append(m.pairs["alpha"], solo) // only on one venue
	s := newScanner(m)

	if err := s.refreshPairs(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	for _, p := range s.pairs {
		if p == solo {
			t.Fatal("single-venue pair included in common list")
		}
	}
}

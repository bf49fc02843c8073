// Package scanner enumerates cross-exchange pairs and same-exchange
// triangular cycles, and turns raw depth into ranked, sized candidate
// trades.
package scanner

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/auction"
	"github.com/halfmoonlabs/crossarb/internal/domain"
	"github.com/halfmoonlabs/crossarb/internal/liquidity"
	"github.com/halfmoonlabs/crossarb/internal/profit"
)

// ThresholdSource yields the current minimum net-profit threshold in
// percent. Implemented by the threshold manager.
type ThresholdSource interface {
	ThresholdPct() decimal.Decimal
}

// Config holds the cross-exchange scan parameters.
type Config struct {
	Venues              []string
	PairRefreshInterval time.Duration   // common-pairs list refresh, not per cycle
	MaxSlippage         decimal.Decimal // VWAP drift bound for sizing
	MinNotional         decimal.Decimal // absolute floor in quote units
	MaxTradeValue       decimal.Decimal // per-trade capital cap in quote units
}

// Defaults fills zero fields.
func (c *Config) Defaults() {
	if c.PairRefreshInterval == 0 {
		c.PairRefreshInterval = 5 * time.Minute
	}
	if c.MaxSlippage.IsZero() {
		c.MaxSlippage = decimal.RequireFromString("0.002")
	}
	if c.MinNotional.IsZero() {
		c.MinNotional = decimal.NewFromInt(10)
	}
	if c.MaxTradeValue.IsZero() {
		c.MaxTradeValue = decimal.NewFromInt(500)
	}
}

// Scanner runs the cross-exchange scan cycle. It is single-writer on its
// pair cache and is meant to be driven by one loop.
type Scanner struct {
	cfg        Config
	quotes     domain.QuoteSource
	balances   domain.BalanceSource
	fees       domain.FeeSource
	pairSource domain.PairSource
	calc       *profit.Calculator
	thresholds ThresholdSource
	logger     *slog.Logger

	pairs          []domain.Symbol
	pairsRefreshed time.Time
}

// NewScanner creates a cross-exchange Scanner.
func NewScanner(
	cfg Config,
	quotes domain.QuoteSource,
	balances domain.BalanceSource,
	fees domain.FeeSource,
	pairSource domain.PairSource,
	calc *profit.Calculator,
	thresholds ThresholdSource,
	logger *slog.Logger,
) *Scanner {
	cfg.Defaults()
	return &Scanner{
		cfg:        cfg,
		quotes:     quotes,
		balances:   balances,
		fees:       fees,
		pairSource: pairSource,
		calc:       calc,
		thresholds: thresholds,
		logger:     logger.With(slog.String("component", "scanner")),
	}
}

// venueQuote bundles one venue's view of a pair for the current cycle.
type venueQuote struct {
	venue string
	book  *domain.QuoteBook
	ask   domain.PriceLevel
	bid   domain.PriceLevel
}

// ScanCrossExchange runs one scan cycle and returns surviving candidates
// ranked by net profit percent descending. Venue failures skip that venue
// for that pair; they never abort the cycle.
func (s *Scanner) ScanCrossExchange(ctx context.Context) ([]domain.Opportunity, domain.ScanAudit, error) {
	started := time.Now().UTC()
	audit := domain.ScanAudit{
		CycleID:    uuid.New().String(),
		Kind:       "cross_exchange",
		Rejections: make(map[domain.RejectReason]int),
		StartedAt:  started,
	}

	if err := s.refreshPairs(ctx); err != nil {
		return nil, audit, err
	}

	var candidates []domain.Opportunity
	for _, pair := range s.pairs {
		select {
		case <-ctx.Done():
			return nil, audit, ctx.Err()
		default:
		}
		quotes := s.fetchQuotes(ctx, pair, &audit)
		for _, buyQ := range quotes {
			for _, sellQ := range quotes {
				if buyQ.venue == sellQ.venue {
					continue
				}
				opp, reason := s.evaluate(ctx, pair, buyQ, sellQ)
				if reason != "" {
					audit.Rejections[reason]++
					continue
				}
				candidates = append(candidates, opp)
			}
		}
	}

	// Stable sort keeps venue-pair iteration order as the deterministic
	// tiebreak between equal profits.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].NetProfitPct.GreaterThan(candidates[j].NetProfitPct)
	})

	audit.Found = len(candidates)
	audit.Duration = time.Since(started)
	s.logger.InfoContext(ctx, "cross-exchange scan complete",
		slog.String("cycle_id", audit.CycleID),
		slog.Int("candidates", audit.Found),
		slog.Duration("duration", audit.Duration),
	)
	return candidates, audit, nil
}

// evaluate runs one ordered venue pair through sizing, fees, profit,
// auction de-risk, liquidity, and the notional floor. It returns either a
// sized opportunity or the single reason it was dropped.
func (s *Scanner) evaluate(ctx context.Context, pair domain.Symbol, buyQ, sellQ venueQuote) (domain.Opportunity, domain.RejectReason) {
	buyPrice := buyQ.ask.Price
	sellPrice := sellQ.bid.Price
	if !buyPrice.IsPositive() || !sellPrice.IsPositive() {
		return domain.Opportunity{}, domain.ReasonQuoteUnavailable
	}

	thresholdPct := s.thresholds.ThresholdPct()

	tradeValue := s.sizeTradeValue(ctx, pair, buyQ.venue, sellQ.venue, sellPrice)
	if !tradeValue.IsPositive() {
		return domain.Opportunity{}, domain.ReasonNoBalance
	}
	tradeValue = decimal.Min(tradeValue, s.cfg.MaxTradeValue)

	feeBuy, errBuy := s.fees.GetEffectiveFee(ctx, buyQ.venue, tradeValue, false)
	feeSell, errSell := s.fees.GetEffectiveFee(ctx, sellQ.venue, tradeValue, false)
	if errBuy != nil || errSell != nil {
		return domain.Opportunity{}, domain.ReasonQuoteUnavailable
	}

	slippage := decimal.Max(
		profit.EstimateSlippage(buyQ.book.Asks),
		profit.EstimateSlippage(sellQ.book.Bids),
	)

	amount := tradeValue.Div(buyPrice)
	netPct, err := s.calc.NetProfitPct(buyPrice, sellPrice, amount, feeBuy, feeSell, slippage, decimal.Zero)
	if err != nil {
		return domain.Opportunity{}, domain.ReasonCalculation
	}
	if netPct.LessThan(thresholdPct) {
		return domain.Opportunity{}, domain.ReasonProfitBelowThreshold
	}

	// Selling pressure on the exit venue widens the required edge and
	// shrinks the size instead of vetoing the trade outright.
	if res := s.classifySellSide(ctx, sellQ); res.State == auction.StateImbalancedSelling {
		thresholdScale, sizeScale := auction.ElasticAdjustment(res.Score)
		thresholdPct = thresholdPct.Mul(thresholdScale)
		tradeValue = tradeValue.Mul(sizeScale)
		if netPct.LessThan(thresholdPct) {
			return domain.Opportunity{}, domain.ReasonImbalanceDerisked
		}
	}

	// Cap at what both books absorb within the slippage budget.
	maxBuyBase := liquidity.MaxSizeWithSlippage(buyQ.book.Asks, s.cfg.MaxSlippage)
	maxSellBase := liquidity.MaxSizeWithSlippage(sellQ.book.Bids, s.cfg.MaxSlippage)
	maxBase := decimal.Min(maxBuyBase, maxSellBase)
	if !maxBase.IsPositive() {
		return domain.Opportunity{}, domain.ReasonInsufficientDepth
	}
	tradeValue = decimal.Min(tradeValue, maxBase.Mul(buyPrice))

	if tradeValue.LessThan(s.cfg.MinNotional) {
		return domain.Opportunity{}, domain.ReasonBelowMinNotional
	}

	amount = tradeValue.Div(buyPrice)
	netProfit, err := s.calc.NetProfit(buyPrice, sellPrice, amount, feeBuy, feeSell, slippage, decimal.Zero)
	if err != nil {
		return domain.Opportunity{}, domain.ReasonCalculation
	}
	if !netProfit.IsPositive() {
		return domain.Opportunity{}, domain.ReasonProfitBelowThreshold
	}

	return domain.Opportunity{
		ID:           uuid.New().String(),
		Symbol:       pair,
		BuyVenue:     buyQ.venue,
		SellVenue:    sellQ.venue,
		BuyPrice:     buyPrice,
		SellPrice:    sellPrice,
		TradeValue:   tradeValue,
		NetProfit:    netProfit,
		NetProfitPct: netPct,
		Timestamp:    time.Now().UTC(),
	}, ""
}

// sizeTradeValue computes min(quote balance on the buy venue, base balance
// on the sell venue valued at the sell price). The sizing is deliberately
// asset-agnostic: it works the same whether quoting in USDT, BTC, or ETH.
func (s *Scanner) sizeTradeValue(ctx context.Context, pair domain.Symbol, buyVenue, sellVenue string, sellPrice decimal.Decimal) decimal.Decimal {
	quoteBal, err := s.balances.GetAvailableBalance(ctx, buyVenue, pair.Quote())
	if err != nil {
		return decimal.Zero
	}
	baseBal, err := s.balances.GetAvailableBalance(ctx, sellVenue, pair.Base())
	if err != nil {
		return decimal.Zero
	}
	return decimal.Min(quoteBal, baseBal.Mul(sellPrice))
}

func (s *Scanner) classifySellSide(ctx context.Context, sellQ venueQuote) auction.Result {
	last, err := s.quotes.GetTickerPrice(ctx, sellQ.venue, sellQ.book.Symbol)
	if err != nil {
		last = decimal.Zero
	}
	return auction.Classify(sellQ.book.Bids, sellQ.book.Asks, last)
}

// fetchQuotes gathers per-venue books for one pair, skipping venues that
// fail or have an empty side.
func (s *Scanner) fetchQuotes(ctx context.Context, pair domain.Symbol, audit *domain.ScanAudit) []venueQuote {
	quotes := make([]venueQuote, 0, len(s.cfg.Venues))
	for _, venue := range s.cfg.Venues {
		book, err := s.quotes.GetOrderBook(ctx, venue, pair)
		if err != nil || book == nil {
			audit.Rejections[domain.ReasonQuoteUnavailable]++
			continue
		}
		bid, okBid := book.BestBid()
		ask, okAsk := book.BestAsk()
		if !okBid || !okAsk {
			audit.Rejections[domain.ReasonQuoteUnavailable]++
			continue
		}
		quotes = append(quotes, venueQuote{venue: venue, book: book, ask: ask, bid: bid})
	}
	return quotes
}

// refreshPairs rebuilds the list of pairs tradable on at least two venues,
// at most once per refresh interval. Recomputing the full intersection on
// every tick would eat the cycle-time budget.
func (s *Scanner) refreshPairs(ctx context.Context) error {
	if time.Since(s.pairsRefreshed) < s.cfg.PairRefreshInterval && len(s.pairs) > 0 {
		return nil
	}

	counts := make(map[domain.Symbol]int)
	for _, venue := range s.cfg.Venues {
		pairs, err := s.pairSource.ListPairs(ctx, venue)
		if err != nil {
			s.logger.WarnContext(ctx, "pair listing failed, venue skipped",
				slog.String("venue", venue),
				slog.String("error", err.Error()),
			)
			continue
		}
		seen := make(map[domain.Symbol]bool, len(pairs))
		for _, p := range pairs {
			if !seen[p] {
				seen[p] = true
				counts[p]++
			}
		}
	}

	s.pairs = s.pairs[:0]
	for p, n := range counts {
		if n >= 2 {
			s.pairs = append(s.pairs, p)
		}
	}
	sort.Slice(s.pairs, func(i, j int) bool { return s.pairs[i] < s.pairs[j] })
	s.pairsRefreshed = time.Now()

	s.logger.InfoContext(ctx, "refreshed common pairs",
		slog.Int("pairs", len(s.pairs)),
	)
	return nil
}

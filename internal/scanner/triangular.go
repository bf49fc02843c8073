package scanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
	"github.com/halfmoonlabs/crossarb/internal/liquidity"
)

// TriangularConfig holds the same-venue cycle scan parameters.
type TriangularConfig struct {
	Paths         []domain.TriangularPath
	MaxSlippage   decimal.Decimal
	MinNotional   decimal.Decimal
	MaxTradeValue decimal.Decimal // starting-currency cap per cycle
}

// Defaults fills zero fields. The default paths are the liquid
// BTC/ETH/SOL cycles quoted in the major stables.
func (c *TriangularConfig) Defaults() {
	if len(c.Paths) == 0 {
		c.Paths = []domain.TriangularPath{
			{"BTC/USDT", "ETH/BTC", "ETH/USDT"},
			{"BTC/USDC", "ETH/BTC", "ETH/USDC"},
			{"BTC/USDT", "SOL/BTC", "SOL/USDT"},
			{"ETH/USDT", "SOL/ETH", "SOL/USDT"},
		}
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

// TriangularScanner scans one venue's fixed cycle set.
type TriangularScanner struct {
	cfg        TriangularConfig
	quotes     domain.QuoteSource
	fees       domain.FeeSource
	thresholds ThresholdSource
	logger     *slog.Logger
}

// NewTriangularScanner creates a TriangularScanner.
func NewTriangularScanner(
	cfg TriangularConfig,
	quotes domain.QuoteSource,
	fees domain.FeeSource,
	thresholds ThresholdSource,
	logger *slog.Logger,
) *TriangularScanner {
	cfg.Defaults()
	return &TriangularScanner{
		cfg:        cfg,
		quotes:     quotes,
		fees:       fees,
		thresholds: thresholds,
		logger:     logger.With(slog.String("component", "triangular_scanner")),
	}
}

// Scan evaluates every configured cycle on one venue with the given
// starting-currency capital. Cycles with missing books are skipped.
func (s *TriangularScanner) Scan(ctx context.Context, venue string, capital decimal.Decimal) ([]domain.TriangularOpportunity, domain.ScanAudit, error) {
	started := time.Now().UTC()
	audit := domain.ScanAudit{
		CycleID:    uuid.New().String(),
		Kind:       "triangular",
		Rejections: make(map[domain.RejectReason]int),
		StartedAt:  started,
	}
	thresholdPct := s.thresholds.ThresholdPct()

	var found []domain.TriangularOpportunity
	for _, path := range s.cfg.Paths {
		select {
		case <-ctx.Done():
			return nil, audit, ctx.Err()
		default:
		}
		opp, reason := s.evaluatePath(ctx, venue, path, capital, thresholdPct)
		if reason != "" {
			audit.Rejections[reason]++
			continue
		}
		found = append(found, opp)
	}

	audit.Found = len(found)
	audit.Duration = time.Since(started)
	s.logger.InfoContext(ctx, "triangular scan complete",
		slog.String("venue", venue),
		slog.Int("candidates", audit.Found),
		slog.Duration("duration", audit.Duration),
	)
	return found, audit, nil
}

// evaluatePath prices a buy -> buy -> sell traversal of one cycle: spend
// the starting currency at ask1, convert through ask2, exit at bid3.
func (s *TriangularScanner) evaluatePath(ctx context.Context, venue string, path domain.TriangularPath, capital decimal.Decimal, thresholdPct decimal.Decimal) (domain.TriangularOpportunity, domain.RejectReason) {
	books := make([]*domain.QuoteBook, 3)
	for i, pair := range path {
		book, err := s.quotes.GetOrderBook(ctx, venue, pair)
		if err != nil || book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
			return domain.TriangularOpportunity{}, domain.ReasonQuoteUnavailable
		}
		books[i] = book
	}

	ask1 := books[0].Asks[0].Price
	ask2 := books[1].Asks[0].Price
	bid3 := books[2].Bids[0].Price
	if !ask1.IsPositive() || !ask2.IsPositive() || !bid3.IsPositive() {
		return domain.TriangularOpportunity{}, domain.ReasonCalculation
	}

	one := decimal.NewFromInt(1)
	grossMultiplier := one.Div(ask1).Div(ask2).Mul(bid3)
	grossPct := grossMultiplier.Sub(one).Mul(decimal.NewFromInt(100))

	feePerLeg, err := s.fees.GetEffectiveFee(ctx, venue, capital, false)
	if err != nil {
		return domain.TriangularOpportunity{}, domain.ReasonQuoteUnavailable
	}
	netPct := grossPct.Sub(feePerLeg.Mul(decimal.NewFromInt(3)).Mul(decimal.NewFromInt(100)))
	if netPct.LessThan(thresholdPct) {
		return domain.TriangularOpportunity{}, domain.ReasonProfitBelowThreshold
	}

	// Each leg trades a different base/quote unit, so size every leg
	// independently and convert its max size back to starting-currency
	// notional through the intervening prices.
	maxLeg1 := liquidity.MaxSizeWithSlippage(books[0].Asks, s.cfg.MaxSlippage).Mul(ask1)
	maxLeg2 := liquidity.MaxSizeWithSlippage(books[1].Asks, s.cfg.MaxSlippage).Mul(ask2).Mul(ask1)
	maxLeg3 := liquidity.MaxSizeWithSlippage(books[2].Bids, s.cfg.MaxSlippage).Mul(ask2).Mul(ask1)
	maxNotional := decimal.Min(maxLeg1, maxLeg2, maxLeg3)
	if !maxNotional.IsPositive() {
		return domain.TriangularOpportunity{}, domain.ReasonInsufficientDepth
	}

	tradeValue := decimal.Min(capital, s.cfg.MaxTradeValue, maxNotional)
	if tradeValue.LessThan(s.cfg.MinNotional) {
		return domain.TriangularOpportunity{}, domain.ReasonBelowMinNotional
	}

	return domain.TriangularOpportunity{
		ID:             uuid.New().String(),
		Venue:          venue,
		Path:           path,
		LegPrices:      [3]decimal.Decimal{ask1, ask2, bid3},
		GrossProfitPct: grossPct,
		NetProfitPct:   netPct,
		TradeValue:     tradeValue,
		Timestamp:      time.Now().UTC(),
	}, ""
}

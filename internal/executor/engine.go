// Package executor turns approved opportunities into orders. The engine is
// a per-trade state machine: it sizes and validates, walks the legs with
// fill verification, and falls into the emergency monitor when it is left
// holding inventory it meant to flip.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
	"github.com/halfmoonlabs/crossarb/internal/risk"
)

// Alerter escalates events that need an operator. Implemented by the
// notifier; may be nil.
type Alerter interface {
	NotifyAll(ctx context.Context, title, message string) error
}

// UnwindPolicy selects what happens to inventory acquired before a
// triangular leg fails.
type UnwindPolicy string

const (
	// UnwindReverse sells the stranded inventory back to the starting
	// currency at market.
	UnwindReverse UnwindPolicy = "unwind"
	// UnwindHold leaves the inventory in place and alerts the operator.
	UnwindHold UnwindPolicy = "hold"
)

// Config holds the engine's tunables.
type Config struct {
	SlippagePadPct   decimal.Decimal // limit price padding in percent
	FillTimeout      time.Duration   // per-leg wait before cancelling
	FillPollInterval time.Duration
	EmergencyPoll    time.Duration // stranded-position price check interval
	EmergencyMaxWait time.Duration // monitor gives up and escalates after this
	UnwindPolicy     UnwindPolicy

	// Venues lists every venue the emergency monitor may read prices from
	// and sell stranded inventory on. The opportunity's own venues are
	// always tried first, so an empty list restricts the monitor to them.
	Venues []string
}

// Defaults fills zero fields.
func (c *Config) Defaults() {
	if c.SlippagePadPct.IsZero() {
		c.SlippagePadPct = decimal.RequireFromString("0.1")
	}
	if c.FillTimeout == 0 {
		c.FillTimeout = 30 * time.Second
	}
	if c.FillPollInterval == 0 {
		c.FillPollInterval = 500 * time.Millisecond
	}
	if c.EmergencyPoll == 0 {
		c.EmergencyPoll = 10 * time.Second
	}
	if c.EmergencyMaxWait == 0 {
		c.EmergencyMaxWait = time.Hour
	}
	if c.UnwindPolicy == "" {
		c.UnwindPolicy = UnwindReverse
	}
}

// Engine executes cross-exchange and triangular trades.
type Engine struct {
	cfg    Config
	orders domain.OrderVenue
	quotes domain.QuoteSource
	pairs  domain.PairSource
	gate   *risk.Gate
	alerts Alerter
	logger *slog.Logger
}

// NewEngine creates an Engine. alerts may be nil.
func NewEngine(
	cfg Config,
	orders domain.OrderVenue,
	quotes domain.QuoteSource,
	pairs domain.PairSource,
	gate *risk.Gate,
	alerts Alerter,
	logger *slog.Logger,
) *Engine {
	cfg.Defaults()
	return &Engine{
		cfg:    cfg,
		orders: orders,
		quotes: quotes,
		pairs:  pairs,
		gate:   gate,
		alerts: alerts,
		logger: logger.With(slog.String("component", "executor")),
	}
}

// paddedBuy returns the highest limit price accepted for a buy leg.
func (e *Engine) paddedBuy(price decimal.Decimal) decimal.Decimal {
	pad := e.cfg.SlippagePadPct.Div(decimal.NewFromInt(100))
	return price.Mul(decimal.NewFromInt(1).Add(pad))
}

// paddedSell returns the lowest limit price accepted for a sell leg.
func (e *Engine) paddedSell(price decimal.Decimal) decimal.Decimal {
	pad := e.cfg.SlippagePadPct.Div(decimal.NewFromInt(100))
	return price.Mul(decimal.NewFromInt(1).Sub(pad))
}

// ExecuteCross runs a two-leg cross-exchange trade: limit buy on the buy
// venue, then limit sell of the actual filled amount on the sell venue.
// Business failures are reported in the result; the error is non-nil only
// when the run could not proceed at all.
func (e *Engine) ExecuteCross(ctx context.Context, opp domain.Opportunity) (domain.ExecutionResult, error) {
	res := domain.ExecutionResult{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		State:         domain.ExecSizing,
		StartedAt:     time.Now().UTC(),
	}
	log := e.logger.With(
		slog.String("execution_id", res.ID),
		slog.String("symbol", opp.Symbol.String()),
		slog.String("buy_venue", opp.BuyVenue),
		slog.String("sell_venue", opp.SellVenue),
	)

	if err := validateCross(opp); err != nil {
		res.State = domain.ExecFailed
		res.FailureReason = err.Error()
		res.CompletedAt = time.Now().UTC()
		return res, fmt.Errorf("executor: validate: %w", err)
	}

	buyLimits := e.limitsFor(ctx, opp.BuyVenue, opp.Symbol)
	amount := sizeOrder(opp.TradeValue.Div(opp.BuyPrice), buyLimits)

	// Leg 1: buy.
	buyID, err := e.orders.PlaceOrder(ctx, domain.OrderRequest{
		Venue:  opp.BuyVenue,
		Symbol: opp.Symbol,
		Side:   domain.OrderSideBuy,
		Type:   domain.OrderTypeLimit,
		Amount: amount,
		Price:  e.paddedBuy(opp.BuyPrice),
	})
	if err != nil {
		res.State = domain.ExecFailed
		res.FailureReason = "buy leg placement: " + err.Error()
		res.CompletedAt = time.Now().UTC()
		return res, nil
	}
	res.State = domain.ExecLeg1Placed

	buyState, err := e.waitForFill(ctx, opp.BuyVenue, opp.Symbol, buyID)
	if err != nil && ctx.Err() != nil {
		res.State = domain.ExecFailed
		res.FailureReason = "buy leg: " + err.Error()
		res.CompletedAt = time.Now().UTC()
		return res, ctx.Err()
	}
	if !buyState.FilledAmount.IsPositive() {
		log.Warn("buy leg did not fill", slog.String("order_id", buyID))
		res.State = domain.ExecFailed
		res.FailureReason = "buy leg did not fill"
		if err != nil {
			res.FailureReason = "buy leg did not fill: " + err.Error()
		}
		res.CompletedAt = time.Now().UTC()
		return res, nil
	}
	res.State = domain.ExecLeg1Filled
	res.LegFills = append(res.LegFills, domain.LegFill{
		OrderID: buyID,
		Venue:   opp.BuyVenue,
		Symbol:  opp.Symbol,
		Side:    domain.OrderSideBuy,
		Price:   buyState.AvgPrice,
		Amount:  buyState.FilledAmount,
		Fee:     buyState.Fee,
	})

	// Leg 2: sell exactly what leg 1 filled.
	sellAmount := buyState.FilledAmount.RoundDown(e.limitsFor(ctx, opp.SellVenue, opp.Symbol).AmountPrecision)
	sellID, err := e.orders.PlaceOrder(ctx, domain.OrderRequest{
		Venue:  opp.SellVenue,
		Symbol: opp.Symbol,
		Side:   domain.OrderSideSell,
		Type:   domain.OrderTypeLimit,
		Amount: sellAmount,
		Price:  e.paddedSell(opp.SellPrice),
	})
	if err != nil {
		log.Error("sell leg placement failed, position stranded",
			slog.String("error", err.Error()),
		)
		return e.runEmergency(ctx, res, opp, buyState.FilledAmount, log)
	}
	res.State = domain.ExecLeg2Placed

	sellState, err := e.waitForFill(ctx, opp.SellVenue, opp.Symbol, sellID)
	if err != nil && ctx.Err() != nil {
		res.State = domain.ExecFailed
		res.FailureReason = "sell leg: " + err.Error()
		res.CompletedAt = time.Now().UTC()
		return res, ctx.Err()
	}
	if !sellState.FilledAmount.IsPositive() {
		log.Warn("sell leg did not fill, position stranded",
			slog.String("order_id", sellID),
		)
		return e.runEmergency(ctx, res, opp, buyState.FilledAmount, log)
	}
	res.State = domain.ExecLeg2Filled
	res.LegFills = append(res.LegFills, domain.LegFill{
		OrderID: sellID,
		Venue:   opp.SellVenue,
		Symbol:  opp.Symbol,
		Side:    domain.OrderSideSell,
		Price:   sellState.AvgPrice,
		Amount:  sellState.FilledAmount,
		Fee:     sellState.Fee,
	})

	res.State = domain.ExecDone
	res.Success = true
	res.RealizedNetProfit = realizedProfit(res.LegFills)
	res.CompletedAt = time.Now().UTC()
	log.Info("execution complete",
		slog.String("realized_net_profit", res.RealizedNetProfit.String()),
		slog.Duration("execution_time", res.ExecutionTime()),
	)
	return res, nil
}

// runEmergency hands a stranded long position to the monitor and folds its
// outcome into the result.
func (e *Engine) runEmergency(ctx context.Context, res domain.ExecutionResult, opp domain.Opportunity, amount decimal.Decimal, log *slog.Logger) (domain.ExecutionResult, error) {
	res.State = domain.ExecEmergencyExit
	fill, exited, err := e.monitorStranded(ctx, opp, amount)
	if exited {
		res.LegFills = append(res.LegFills, fill)
		res.RealizedNetProfit = realizedProfit(res.LegFills)
		res.FailureReason = "sell leg failed, position exited by emergency monitor"
	} else {
		res.FailureReason = "sell leg failed, position still held after emergency monitoring"
	}
	res.CompletedAt = time.Now().UTC()
	log.Warn("emergency monitoring finished",
		slog.Bool("exited", exited),
		slog.String("realized_net_profit", res.RealizedNetProfit.String()),
	)
	if err != nil && ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, nil
}

// validateCross checks the preconditions that make a cross-exchange trade
// meaningful at all.
func validateCross(opp domain.Opportunity) error {
	switch {
	case !opp.BuyPrice.IsPositive() || !opp.SellPrice.IsPositive():
		return fmt.Errorf("non-positive leg price: %w", domain.ErrOrderRejected)
	case !opp.TradeValue.IsPositive():
		return fmt.Errorf("non-positive trade value: %w", domain.ErrOrderRejected)
	case opp.BuyVenue == opp.SellVenue:
		return fmt.Errorf("buy and sell venue identical: %w", domain.ErrOrderRejected)
	case !opp.SellPrice.GreaterThan(opp.BuyPrice):
		return fmt.Errorf("sell price does not exceed buy price: %w", domain.ErrOrderRejected)
	}
	return nil
}

// realizedProfit nets sell proceeds against buy cost and venue fees across
// the recorded fills.
func realizedProfit(fills []domain.LegFill) decimal.Decimal {
	total := decimal.Zero
	for _, f := range fills {
		notional := f.Price.Mul(f.Amount)
		if f.Side == domain.OrderSideSell {
			total = total.Add(notional)
		} else {
			total = total.Sub(notional)
		}
		total = total.Sub(f.Fee)
	}
	return total
}

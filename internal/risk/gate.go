// Package risk is the last-line pre-trade gate. It must stay fast,
// synchronous, and free of I/O so it can run on every candidate without
// adding latency.
package risk

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// Config holds the tunable limits for the gate.
type Config struct {
	MinProfitPct       decimal.Decimal // absolute floor, looser than the scanner's dynamic threshold
	MaxPositionValue   decimal.Decimal // quote units
	EmergencyLossFrac  decimal.Decimal // unrealized-loss fraction of allotted capital that forces liquidation
	BreakEvenBufferPct decimal.Decimal // exit once price recovers this far above the buy price
}

// Defaults fills zero fields with the standard limits.
func (c *Config) Defaults() {
	if c.MinProfitPct.IsZero() {
		c.MinProfitPct = decimal.RequireFromString("0.3")
	}
	if c.MaxPositionValue.IsZero() {
		c.MaxPositionValue = decimal.NewFromInt(10_000)
	}
	if c.EmergencyLossFrac.IsZero() {
		c.EmergencyLossFrac = decimal.RequireFromString("0.01")
	}
	if c.BreakEvenBufferPct.IsZero() {
		c.BreakEvenBufferPct = decimal.RequireFromString("0.1")
	}
}

// Gate approves or rejects sized opportunities.
type Gate struct {
	cfg    Config
	logger *slog.Logger
}

// NewGate creates a Gate.
func NewGate(cfg Config, logger *slog.Logger) *Gate {
	cfg.Defaults()
	return &Gate{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "risk_gate")),
	}
}

// Approve runs the final checks on one candidate. It returns ok=false with
// the single reason that failed first.
//
// Checks performed:
//  1. Profit strictly positive after fees
//  2. Profit percent above the absolute minimum
//  3. Position notional within the configured maximum
func (g *Gate) Approve(opp domain.Opportunity) (ok bool, reason domain.RejectReason) {
	if !opp.NetProfit.IsPositive() {
		return false, domain.ReasonNotProfitable
	}
	if opp.NetProfitPct.LessThan(g.cfg.MinProfitPct) {
		g.logger.Debug("candidate under absolute profit floor",
			slog.String("symbol", opp.Symbol.String()),
			slog.String("net_profit_pct", opp.NetProfitPct.String()),
			slog.String("min_pct", g.cfg.MinProfitPct.String()),
		)
		return false, domain.ReasonBelowMinProfit
	}
	if opp.TradeValue.GreaterThan(g.cfg.MaxPositionValue) {
		g.logger.Warn("candidate exceeds max position value",
			slog.String("symbol", opp.Symbol.String()),
			slog.String("trade_value", opp.TradeValue.String()),
			slog.String("max", g.cfg.MaxPositionValue.String()),
		)
		return false, domain.ReasonPositionTooLarge
	}
	return true, ""
}

// ShouldLiquidate reports whether a stranded position's unrealized loss has
// breached the emergency fraction of the capital allotted to the trade.
func (g *Gate) ShouldLiquidate(buyPrice, currentPrice, amount, allottedCapital decimal.Decimal) bool {
	if !allottedCapital.IsPositive() {
		return false
	}
	unrealized := currentPrice.Sub(buyPrice).Mul(amount)
	if !unrealized.IsNegative() {
		return false
	}
	return unrealized.Neg().Div(allottedCapital).GreaterThan(g.cfg.EmergencyLossFrac)
}

// RecoveryPrice returns the price at which a stranded position can exit
// with the break-even-plus buffer.
func (g *Gate) RecoveryPrice(buyPrice decimal.Decimal) decimal.Decimal {
	buffer := g.cfg.BreakEvenBufferPct.Div(decimal.NewFromInt(100))
	return buyPrice.Mul(decimal.NewFromInt(1).Add(buffer))
}

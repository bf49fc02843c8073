package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Symbol is a trading pair in "BASE/QUOTE" form, e.g. "BTC/USDT".
type Symbol string

// ParseSymbol validates and normalizes a "BASE/QUOTE" pair string.
func ParseSymbol(s string) (Symbol, error) {
	base, quote, ok := strings.Cut(s, "/")
	if !ok || base == "" || quote == "" {
		return "", fmt.Errorf("parse symbol %q: want BASE/QUOTE", s)
	}
	return Symbol(strings.ToUpper(base) + "/" + strings.ToUpper(quote)), nil
}

// Base returns the base asset ("BTC" for "BTC/USDT").
func (s Symbol) Base() string {
	base, _, _ := strings.Cut(string(s), "/")
	return base
}

// Quote returns the quote asset ("USDT" for "BTC/USDT").
func (s Symbol) Quote() string {
	_, quote, _ := strings.Cut(string(s), "/")
	return quote
}

func (s Symbol) String() string { return string(s) }

// Balance is the free (unlocked) amount of one asset on one venue.
type Balance struct {
	Venue string
	Asset string
	Free  decimal.Decimal
}

// FeeSchedule is a venue's published fee structure for one symbol tier.
type FeeSchedule struct {
	Venue         string
	MakerRate     decimal.Decimal
	TakerRate     decimal.Decimal
	TokenDiscount decimal.Decimal // discount fraction when paying fees in the venue token
}

// EffectiveTakerRate returns the taker rate with the venue-token discount
// applied when useToken is set. Arbitrage legs are taker orders.
func (f FeeSchedule) EffectiveTakerRate(useToken bool) decimal.Decimal {
	if useToken && f.TokenDiscount.IsPositive() {
		return f.TakerRate.Mul(decimal.NewFromInt(1).Sub(f.TokenDiscount))
	}
	return f.TakerRate
}

// MarketLimits are per-asset order constraints published by a venue.
type MarketLimits struct {
	AmountPrecision int32           // decimal places for order amounts
	MinAmount       decimal.Decimal // smallest accepted order amount
	MinNotional     decimal.Decimal // smallest accepted order value in quote units
}

// HealthState is the coarse system health reported by the health monitor.
type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
	HealthCritical HealthState = "critical"
)

// CycleStats summarizes recent scan cycle timings for threshold adaptation.
type CycleStats struct {
	Count         int
	MeanSeconds   float64
	StddevSeconds float64
}

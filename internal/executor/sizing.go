package executor

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// Conservative per-asset fallbacks used when a venue publishes no limits.
// Amounts are always rounded DOWN to the precision; rounding up could
// exceed the balance reserved for the trade.
var assetPrecision = map[string]int32{
	"BTC":  6,
	"ETH":  4,
	"USDT": 2,
	"USDC": 2,
	"USD":  2,
}

const fallbackPrecision int32 = 8

var assetMinAmount = map[string]decimal.Decimal{
	"BTC":  decimal.RequireFromString("0.0001"),
	"ETH":  decimal.RequireFromString("0.001"),
	"USDT": decimal.NewFromInt(10),
	"USDC": decimal.NewFromInt(10),
	"USD":  decimal.NewFromInt(10),
}

var fallbackMinAmount = decimal.RequireFromString("0.01")

// limitsFor resolves order constraints for a symbol, preferring what the
// venue publishes and falling back to the per-asset table.
func (e *Engine) limitsFor(ctx context.Context, venue string, symbol domain.Symbol) domain.MarketLimits {
	if e.pairs != nil {
		limits, err := e.pairs.GetLimits(ctx, venue, symbol)
		if err == nil && limits != (domain.MarketLimits{}) {
			return limits
		}
	}
	base := symbol.Base()
	precision, ok := assetPrecision[base]
	if !ok {
		precision = fallbackPrecision
	}
	minAmount, ok := assetMinAmount[base]
	if !ok {
		minAmount = fallbackMinAmount
	}
	return domain.MarketLimits{AmountPrecision: precision, MinAmount: minAmount}
}

// sizeOrder rounds the amount down to the venue's precision, then bumps it
// up to the venue minimum when the rounded amount is dust. Venues publish
// minimums at their own precision so the bumped value needs no re-round.
func sizeOrder(amount decimal.Decimal, limits domain.MarketLimits) decimal.Decimal {
	sized := amount.RoundDown(limits.AmountPrecision)
	if sized.LessThan(limits.MinAmount) {
		return limits.MinAmount
	}
	return sized
}

// Package liquidity sizes orders against live depth. All arithmetic is
// exact decimal.
package liquidity

import (
	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// InfiniteSlippage is the sentinel returned by VWAPForSize when the book
// cannot fill the requested size. Callers must treat it as "reject", never
// as a usable slippage figure.
var InfiniteSlippage = decimal.NewFromInt(100)

// MaxSizeWithSlippage accumulates volume level by level, tracking the
// running VWAP, and accepts a level in full only if including it keeps
// |vwap - best| / best within maxSlippage. The first level that would
// breach the bound stops the walk; the volume accumulated so far is
// returned with no partial-level inclusion. Under-sizing is preferred to
// overshooting the slippage budget.
//
// Returns zero for an empty book or a non-positive best price.
func MaxSizeWithSlippage(levels []domain.PriceLevel, maxSlippage decimal.Decimal) decimal.Decimal {
	if len(levels) == 0 {
		return decimal.Zero
	}
	best := levels[0].Price
	if !best.IsPositive() {
		return decimal.Zero
	}

	totalVolume := decimal.Zero
	totalCost := decimal.Zero
	for _, lvl := range levels {
		if !lvl.Size.IsPositive() {
			continue
		}
		newVolume := totalVolume.Add(lvl.Size)
		newCost := totalCost.Add(lvl.Price.Mul(lvl.Size))
		vwap := newCost.Div(newVolume)
		if vwap.Sub(best).Div(best).Abs().GreaterThan(maxSlippage) {
			break
		}
		totalVolume = newVolume
		totalCost = newCost
	}
	return totalVolume
}

// VWAPForSize walks levels consuming up to targetSize and returns the
// volume-weighted average price together with its drift from the best
// price. When the book is too shallow to fill targetSize it returns a zero
// VWAP and InfiniteSlippage rather than a VWAP over partial volume.
func VWAPForSize(levels []domain.PriceLevel, targetSize decimal.Decimal) (vwap, slippage decimal.Decimal) {
	if len(levels) == 0 || !targetSize.IsPositive() {
		return decimal.Zero, InfiniteSlippage
	}
	best := levels[0].Price
	if !best.IsPositive() {
		return decimal.Zero, InfiniteSlippage
	}

	remaining := targetSize
	cost := decimal.Zero
	for _, lvl := range levels {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, lvl.Size)
		cost = cost.Add(lvl.Price.Mul(take))
		remaining = remaining.Sub(take)
	}
	if remaining.IsPositive() {
		return decimal.Zero, InfiniteSlippage
	}

	vwap = cost.Div(targetSize)
	slippage = vwap.Sub(best).Div(best).Abs()
	return vwap, slippage
}

// Package profit computes arbitrage profit figures in exact decimal
// arithmetic. Margins routinely sit at 0.3-1.0%, where binary floating point
// error can flip a loss into an apparent profit, so float64 never appears
// here.
package profit

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// DefaultMinProfitFraction is the deadband floor: net results below this
// fraction of the buy notional read as zero, not as a noisy near-zero
// number that downstream ranking could mistake for an opportunity.
var DefaultMinProfitFraction = decimal.RequireFromString("0.005")

// Calculator is pure and stateless apart from its configured floor.
type Calculator struct {
	minProfitFraction decimal.Decimal
}

// NewCalculator creates a Calculator with the given deadband floor. A zero
// floor selects DefaultMinProfitFraction.
func NewCalculator(minProfitFraction decimal.Decimal) *Calculator {
	if minProfitFraction.IsZero() {
		minProfitFraction = DefaultMinProfitFraction
	}
	return &Calculator{minProfitFraction: minProfitFraction}
}

// GrossProfit returns (sellPrice - buyPrice) * amount.
func GrossProfit(buyPrice, sellPrice, amount decimal.Decimal) decimal.Decimal {
	return sellPrice.Sub(buyPrice).Mul(amount)
}

// NetProfit computes gross profit, charges both fee rates on the gross
// dollar value, charges the slippage rate on the after-fee value, then
// subtracts the absolute transfer cost. Whenever the result falls below the
// deadband floor relative to the buy notional, it returns exactly zero.
func (c *Calculator) NetProfit(buyPrice, sellPrice, amount, feeBuyRate, feeSellRate, slippageRate, transferCost decimal.Decimal) (decimal.Decimal, error) {
	notional := buyPrice.Mul(amount)
	if !notional.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("profit: buy notional %s not positive: %w", notional, domain.ErrCalculation)
	}

	gross := GrossProfit(buyPrice, sellPrice, amount)
	afterFees := gross.Sub(gross.Mul(feeBuyRate)).Sub(gross.Mul(feeSellRate))
	net := afterFees.Sub(afterFees.Mul(slippageRate)).Sub(transferCost)

	if net.Div(notional).LessThan(c.minProfitFraction) {
		return decimal.Zero, nil
	}
	return net, nil
}

// NetProfitPct returns the net profit as a percentage of the buy notional.
// The deadband applies, so a sub-floor result is 0%.
func (c *Calculator) NetProfitPct(buyPrice, sellPrice, amount, feeBuyRate, feeSellRate, slippageRate, transferCost decimal.Decimal) (decimal.Decimal, error) {
	net, err := c.NetProfit(buyPrice, sellPrice, amount, feeBuyRate, feeSellRate, slippageRate, transferCost)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return net.Div(buyPrice.Mul(amount)).Mul(hundred), nil
}

// EstimateSlippage approximates expected slippage for a marketable order as
// the drift of the top-5 average price from the best price. Empty or
// one-sided books estimate zero.
func EstimateSlippage(levels []domain.PriceLevel) decimal.Decimal {
	if len(levels) == 0 {
		return decimal.Zero
	}
	if len(levels) > 5 {
		levels = levels[:5]
	}
	best := levels[0].Price
	if !best.IsPositive() {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, lvl := range levels {
		sum = sum.Add(lvl.Price)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(levels))))
	return avg.Sub(best).Div(best).Abs()
}

var hundred = decimal.NewFromInt(100)

// Package auction derives a directional pressure signal from orderbook shape.
// The signal is a risk modifier for the scanner, not a hard filter.
package auction

import (
	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// State classifies the book's auction context.
type State string

const (
	StateBalanced          State = "balanced"
	StateImbalancedBuying  State = "imbalanced_buying"
	StateImbalancedSelling State = "imbalanced_selling"
	StateAccepting         State = "accepting"
	StateRejecting         State = "rejecting"
)

// Result is the classification of one book snapshot. Classification is a
// pure function of its inputs; equal inputs always produce equal Results.
type Result struct {
	Score decimal.Decimal // (bidVol - askVol) / (bidVol + askVol), in [-1, 1]
	State State
}

var (
	one            = decimal.NewFromInt(1)
	balancedBand   = decimal.RequireFromString("0.1")
	acceptanceBand = decimal.RequireFromString("0.001") // last within 0.1% of mid
	baseThreshold  = decimal.RequireFromString("0.3")

	// Thin books relax the imbalance threshold: on a sparse book a single
	// resting order should not read as panic flow. Deep books tighten it.
	thinBookValue   = decimal.NewFromInt(10_000)
	mediumBookValue = decimal.NewFromInt(50_000)
	deepBookValue   = decimal.NewFromInt(1_000_000)
	thinThreshold   = decimal.RequireFromString("0.65")
	mediumThreshold = decimal.RequireFromString("0.50")
	deepThreshold   = decimal.RequireFromString("0.25")
)

// Classify computes the top-5 volume imbalance and the auction state for one
// book side-pair and last traded price.
func Classify(bids, asks []domain.PriceLevel, lastPrice decimal.Decimal) Result {
	bidVol := volume(top5(bids))
	askVol := volume(top5(asks))

	score := decimal.Zero
	if total := bidVol.Add(askVol); total.IsPositive() {
		score = clamp(bidVol.Sub(askVol).Div(total))
	}

	res := Result{Score: score, State: StateBalanced}
	abs := score.Abs()
	if abs.LessThan(balancedBand) {
		return res
	}

	threshold := imbalanceThreshold(bids, asks, bidVol.Add(askVol), lastPrice)
	switch {
	case score.GreaterThan(threshold):
		res.State = StateImbalancedBuying
	case score.Neg().GreaterThan(threshold):
		res.State = StateImbalancedSelling
	default:
		res.State = acceptance(bids, asks, lastPrice, score)
	}
	return res
}

// acceptance splits the mid band: prices holding near mid are being
// accepted; a last trade that pierces the best level against the imbalance
// direction means the market is rejecting the move.
func acceptance(bids, asks []domain.PriceLevel, lastPrice, score decimal.Decimal) State {
	if len(bids) == 0 || len(asks) == 0 || !lastPrice.IsPositive() {
		return StateBalanced
	}
	bestBid := bids[0].Price
	bestAsk := asks[0].Price
	mid := bestBid.Add(bestAsk).Div(decimal.NewFromInt(2))
	if !mid.IsPositive() {
		return StateBalanced
	}

	switch {
	case lastPrice.Sub(mid).Div(mid).Abs().LessThan(acceptanceBand):
		return StateAccepting
	case lastPrice.GreaterThan(bestAsk) && score.IsNegative():
		return StateRejecting
	case lastPrice.LessThan(bestBid) && score.IsPositive():
		return StateRejecting
	default:
		return StateBalanced
	}
}

func imbalanceThreshold(bids, asks []domain.PriceLevel, totalVol, lastPrice decimal.Decimal) decimal.Decimal {
	price := lastPrice
	if !price.IsPositive() && len(bids) > 0 {
		price = bids[0].Price
	}
	if !price.IsPositive() {
		return baseThreshold
	}
	bookValue := totalVol.Mul(price)
	switch {
	case bookValue.LessThan(thinBookValue):
		return thinThreshold
	case bookValue.LessThan(mediumBookValue):
		return mediumThreshold
	case bookValue.GreaterThan(deepBookValue):
		return deepThreshold
	default:
		return baseThreshold
	}
}

// ElasticAdjustment returns the de-risk multipliers the scanner applies when
// the sell-side venue shows selling pressure: the required minimum profit
// scales up with severity and the trade size scales down. Outright
// rejection would lock small accounts out during normal volatility.
func ElasticAdjustment(score decimal.Decimal) (thresholdScale, sizeScale decimal.Decimal) {
	severity := clamp(score).Abs()
	thresholdScale = one.Add(severity)
	sizeScale = one.Sub(severity.Div(decimal.NewFromInt(2)))
	return thresholdScale, sizeScale
}

func top5(levels []domain.PriceLevel) []domain.PriceLevel {
	if len(levels) > 5 {
		return levels[:5]
	}
	return levels
}

func volume(levels []domain.PriceLevel) decimal.Decimal {
	vol := decimal.Zero
	for _, lvl := range levels {
		vol = vol.Add(lvl.Size)
	}
	return vol
}

func clamp(v decimal.Decimal) decimal.Decimal {
	switch {
	case v.GreaterThan(one):
		return one
	case v.LessThan(one.Neg()):
		return one.Neg()
	default:
		return v
	}
}

package scanner

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// maxDetectorPairs bounds the O(pairs^3) permutation blowup.
const maxDetectorPairs = 15

// defaultTakerFee is the per-leg fallback when a venue has no schedule.
var defaultTakerFee = decimal.RequireFromString("0.001")

// DetectTriangles enumerates 3-pair permutations over a registry snapshot
// and returns every cycle whose fee-adjusted profit clears minProfitPct,
// sorted by profit descending. It is decoupled from the live trading
// threshold and is used for drift and rebalancing analysis.
//
// books maps venue -> pair -> book; feeSchedule maps venue -> per-leg taker
// rate.
func DetectTriangles(
	books map[string]map[domain.Symbol]domain.QuoteBook,
	feeSchedule map[string]decimal.Decimal,
	minProfitPct decimal.Decimal,
) []domain.TriangularOpportunity {
	pairs := collectPairs(books)
	if len(pairs) > maxDetectorPairs {
		pairs = pairs[:maxDetectorPairs]
	}

	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)

	var found []domain.TriangularOpportunity
	for _, path := range permute3(pairs) {
		if !chainsToStart(path) {
			continue
		}
		for venue, venueBooks := range books {
			b1, ok1 := venueBooks[path[0]]
			b2, ok2 := venueBooks[path[1]]
			b3, ok3 := venueBooks[path[2]]
			if !ok1 || !ok2 || !ok3 {
				continue
			}
			if len(b1.Asks) == 0 || len(b2.Asks) == 0 || len(b3.Bids) == 0 {
				continue
			}
			ask1 := b1.Asks[0].Price
			ask2 := b2.Asks[0].Price
			bid3 := b3.Bids[0].Price
			if !ask1.IsPositive() || !ask2.IsPositive() || !bid3.IsPositive() {
				continue
			}

			fee, ok := feeSchedule[venue]
			if !ok {
				fee = defaultTakerFee
			}
			keep := one.Sub(fee)

			// Walk one unit of the starting currency through the cycle,
			// charging the taker fee multiplicatively on every leg.
			afterLeg1 := one.Div(ask1).Mul(keep)
			afterLeg2 := afterLeg1.Div(ask2).Mul(keep)
			final := afterLeg2.Mul(bid3).Mul(keep)
			profitPct := final.Sub(one).Mul(hundred)

			if profitPct.GreaterThan(minProfitPct) {
				found = append(found, domain.TriangularOpportunity{
					Venue:          venue,
					Path:           path,
					LegPrices:      [3]decimal.Decimal{ask1, ask2, bid3},
					GrossProfitPct: profitPct,
					NetProfitPct:   profitPct,
				})
			}
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].NetProfitPct.GreaterThan(found[j].NetProfitPct)
	})
	return found
}

// chainsToStart reports whether a buy -> buy -> sell traversal of the path
// returns to the starting currency: leg1 spends its quote, leg2 spends
// leg1's base, and leg3 sells leg2's base back into leg1's quote.
func chainsToStart(path domain.TriangularPath) bool {
	start := path[0].Quote()
	return path[1].Quote() == path[0].Base() &&
		path[2].Base() == path[1].Base() &&
		path[2].Quote() == start
}

// collectPairs returns the union of pairs across venues in deterministic
// order.
func collectPairs(books map[string]map[domain.Symbol]domain.QuoteBook) []domain.Symbol {
	seen := make(map[domain.Symbol]bool)
	var pairs []domain.Symbol
	for _, venueBooks := range books {
		for pair := range venueBooks {
			if !seen[pair] {
				seen[pair] = true
				pairs = append(pairs, pair)
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i] < pairs[j] })
	return pairs
}

// permute3 yields all ordered triples of distinct pairs.
func permute3(pairs []domain.Symbol) []domain.TriangularPath {
	var paths []domain.TriangularPath
	for i := range pairs {
		for j := range pairs {
			if j == i {
				continue
			}
			for k := range pairs {
				if k == i || k == j {
					continue
				}
				paths = append(paths, domain.TriangularPath{pairs[i], pairs[j], pairs[k]})
			}
		}
	}
	return paths
}

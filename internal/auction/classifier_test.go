package auction

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func levels(pairs ...string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, domain.PriceLevel{Price: d(pairs[i]), Size: d(pairs[i+1])})
	}
	return out
}

func TestClassifyStates(t *testing.T) {
	tests := []struct {
		name      string
		bids      []domain.PriceLevel
		asks      []domain.PriceLevel
		last      string
		wantState State
		wantScore string
	}{
		{
			name: "balanced volumes",
			bids: levels("100", "500"), asks: levels("100.2", "500"),
			last: "100.1", wantState: StateBalanced, wantScore: "0",
		},
		{
			name: "strong bid pressure",
			bids: levels("100", "700"), asks: levels("100.5", "300"),
			last: "100", wantState: StateImbalancedBuying, wantScore: "0.4",
		},
		{
			name: "strong ask pressure",
			bids: levels("100", "300"), asks: levels("100.5", "700"),
			last: "100", wantState: StateImbalancedSelling, wantScore: "-0.4",
		},
		{
			name: "mid band with price acceptance",
			bids: levels("100", "600"), asks: levels("100.2", "400"),
			last: "100.1", wantState: StateAccepting, wantScore: "0.2",
		},
		{
			name: "mid band with rejection below best bid",
			bids: levels("100", "600"), asks: levels("100.2", "400"),
			last: "99", wantState: StateRejecting, wantScore: "0.2",
		},
		{
			name: "mid band fallback",
			bids: levels("100", "600"), asks: levels("101", "400"),
			last: "100.8", wantState: StateBalanced, wantScore: "0.2",
		},
		{
			name: "empty book",
			bids: nil, asks: nil,
			last: "100", wantState: StateBalanced, wantScore: "0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Classify(tt.bids, tt.asks, d(tt.last))
			if res.State != tt.wantState {
				t.Fatalf("state = %s, want %s (score %s)", res.State, tt.wantState, res.Score)
			}
			if !res.Score.Equal(d(tt.wantScore)) {
				t.Fatalf("score = %s, want %s", res.Score, tt.wantScore)
			}
		})
	}
}

func TestClassifyScoreBounds(t *testing.T) {
	// One-sided books pin the score at the extremes, never beyond.
	res := Classify(levels("100", "900"), nil, d("100"))
	if !res.Score.Equal(d("1")) {
		t.Fatalf("bid-only score = %s, want 1", res.Score)
	}
	res = Classify(nil, levels("100", "900"), d("100"))
	if !res.Score.Equal(d("-1")) {
		t.Fatalf("ask-only score = %s, want -1", res.Score)
	}
}

func TestClassifyThinBookRelaxation(t *testing.T) {
	// A 0.6 imbalance on a sub-$10k book stays under the relaxed 0.65
	// threshold instead of reading as panic flow.
	res := Classify(levels("100", "8"), levels("101", "2"), d("100.5"))
	if !res.Score.Equal(d("0.6")) {
		t.Fatalf("score = %s, want 0.6", res.Score)
	}
	if res.State == StateImbalancedBuying {
		t.Fatalf("thin book classified as imbalanced at score %s", res.Score)
	}
}

func TestClassifyIdempotent(t *testing.T) {
	bids := levels("100", "700", "99.9", "100")
	asks := levels("100.5", "300")
	first := Classify(bids, asks, d("100"))
	second := Classify(bids, asks, d("100"))
	if first.State != second.State || !first.Score.Equal(second.Score) {
		t.Fatalf("classification not idempotent: %+v vs %+v", first, second)
	}
}

func TestElasticAdjustment(t *testing.T) {
	thresholdScale, sizeScale := ElasticAdjustment(d("-0.4"))
	if !thresholdScale.Equal(d("1.4")) {
		t.Fatalf("threshold scale = %s, want 1.4", thresholdScale)
	}
	if !sizeScale.Equal(d("0.8")) {
		t.Fatalf("size scale = %s, want 0.8", sizeScale)
	}

	// Scores beyond the valid range are clamped before scaling.
	thresholdScale, sizeScale = ElasticAdjustment(d("-3"))
	if !thresholdScale.Equal(d("2")) || !sizeScale.Equal(d("0.5")) {
		t.Fatalf("clamped scales = %s, %s, want 2 and 0.5", thresholdScale, sizeScale)
	}
}

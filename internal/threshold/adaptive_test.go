package threshold

import (
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

type stubHealth struct {
	state domain.HealthState
	stats domain.CycleStats
}

func (s stubHealth) OverallHealth() domain.HealthState   { return s.state }
func (s stubHealth) RecentCycleStats() domain.CycleStats { return s.stats }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestThresholdLadder(t *testing.T) {
	tests := []struct {
		name   string
		state  domain.HealthState
		stddev float64
		want   string
	}{
		{"healthy", domain.HealthHealthy, 0.1, "0.5"},
		{"degraded", domain.HealthDegraded, 0.1, "0.7"},
		{"critical", domain.HealthCritical, 0.1, "1.0"},
		{"healthy with jitter", domain.HealthHealthy, 3.5, "0.7"},
		// Jitter on top of critical would exceed the ceiling; the clamp
		// keeps the system from going permanently inert.
		{"critical with jitter", domain.HealthCritical, 3.5, "1.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(Config{}, stubHealth{
				state: tt.state,
				stats: domain.CycleStats{Count: 20, StddevSeconds: tt.stddev},
			}, discard())
			got := m.ThresholdPct()
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("threshold = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestThresholdNilHealth(t *testing.T) {
	m := NewManager(Config{}, nil, discard())
	if got := m.ThresholdPct(); !got.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("threshold = %s, want baseline 0.5", got)
	}
}

func TestThresholdClampFloor(t *testing.T) {
	cfg := Config{BaselinePct: decimal.RequireFromString("0.2")}
	m := NewManager(cfg, stubHealth{state: domain.HealthHealthy}, discard())
	if got := m.ThresholdPct(); !got.Equal(decimal.RequireFromString("0.4")) {
		t.Fatalf("threshold = %s, want clamped 0.4", got)
	}
}

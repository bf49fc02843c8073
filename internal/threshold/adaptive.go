// Package threshold adapts the scanner's minimum-profit threshold to system
// health. A stressed or slow system is more likely to act on stale prices,
// so it demands a larger margin of safety.
package threshold

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// Config holds the threshold ladder in percent of buy notional.
type Config struct {
	BaselinePct      decimal.Decimal // healthy systems
	DegradedPct      decimal.Decimal
	CriticalPct      decimal.Decimal
	JitterTriggerSec float64         // cycle-time stddev that counts as volatile
	JitterWidenPct   decimal.Decimal // additive widening when triggered
	MinPct           decimal.Decimal // absolute clamp floor
	MaxPct           decimal.Decimal // absolute clamp ceiling
}

// Defaults fills zero fields with the standard ladder.
func (c *Config) Defaults() {
	if c.BaselinePct.IsZero() {
		c.BaselinePct = decimal.RequireFromString("0.5")
	}
	if c.DegradedPct.IsZero() {
		c.DegradedPct = decimal.RequireFromString("0.7")
	}
	if c.CriticalPct.IsZero() {
		c.CriticalPct = decimal.RequireFromString("1.0")
	}
	if c.JitterTriggerSec == 0 {
		c.JitterTriggerSec = 2.0
	}
	if c.JitterWidenPct.IsZero() {
		c.JitterWidenPct = decimal.RequireFromString("0.2")
	}
	if c.MinPct.IsZero() {
		c.MinPct = decimal.RequireFromString("0.4")
	}
	if c.MaxPct.IsZero() {
		c.MaxPct = decimal.RequireFromString("1.0")
	}
}

// Manager derives the current minimum-profit threshold from the health
// signal. It holds no mutable state of its own.
type Manager struct {
	cfg    Config
	health domain.HealthSignal
	logger *slog.Logger
}

// NewManager creates a Manager. A nil health signal pins the threshold at
// the baseline.
func NewManager(cfg Config, health domain.HealthSignal, logger *slog.Logger) *Manager {
	cfg.Defaults()
	return &Manager{
		cfg:    cfg,
		health: health,
		logger: logger.With(slog.String("component", "threshold")),
	}
}

// ThresholdPct returns the current minimum net-profit threshold in percent,
// clamped to the configured absolute range.
func (m *Manager) ThresholdPct() decimal.Decimal {
	pct := m.cfg.BaselinePct
	if m.health != nil {
		switch m.health.OverallHealth() {
		case domain.HealthDegraded:
			pct = m.cfg.DegradedPct
		case domain.HealthCritical:
			pct = m.cfg.CriticalPct
		}
		if stats := m.health.RecentCycleStats(); stats.Count > 1 && stats.StddevSeconds > m.cfg.JitterTriggerSec {
			pct = pct.Add(m.cfg.JitterWidenPct)
			m.logger.Debug("cycle jitter widened threshold",
				slog.Float64("stddev_sec", stats.StddevSeconds),
				slog.String("threshold_pct", pct.String()),
			)
		}
	}
	return clamp(pct, m.cfg.MinPct, m.cfg.MaxPct)
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	switch {
	case v.LessThan(lo):
		return lo
	case v.GreaterThan(hi):
		return hi
	default:
		return v
	}
}

// Package health derives a coarse system health state from venue error
// streaks and scan cycle timings. The threshold manager consumes it to
// widen the profit floor when the system is struggling.
package health

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// Config holds the escalation points.
type Config struct {
	DegradedStreak int // consecutive errors on one venue before degraded
	CriticalStreak int
	CycleWindow    int // cycle duration samples retained for the stats
}

// Defaults fills zero fields.
func (c *Config) Defaults() {
	if c.DegradedStreak == 0 {
		c.DegradedStreak = 3
	}
	if c.CriticalStreak == 0 {
		c.CriticalStreak = 10
	}
	if c.CycleWindow == 0 {
		c.CycleWindow = 50
	}
}

// Monitor is safe for concurrent use: scan loops record, the threshold
// manager reads.
type Monitor struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	streaks map[string]int
	cycles  []time.Duration
}

var _ domain.HealthSignal = (*Monitor)(nil)

// NewMonitor creates a Monitor.
func NewMonitor(cfg Config, logger *slog.Logger) *Monitor {
	cfg.Defaults()
	return &Monitor{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "health_monitor")),
		streaks: make(map[string]int),
	}
}

// RecordVenueError extends the venue's error streak.
func (m *Monitor) RecordVenueError(venue string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streaks[venue]++
	if m.streaks[venue] == m.cfg.DegradedStreak || m.streaks[venue] == m.cfg.CriticalStreak {
		m.logger.Warn("venue error streak escalated",
			slog.String("venue", venue),
			slog.Int("streak", m.streaks[venue]),
		)
	}
}

// RecordVenueSuccess resets the venue's error streak. A single good call
// clears the streak; health tracks consecutive failures only.
func (m *Monitor) RecordVenueSuccess(venue string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streaks[venue] = 0
}

// RecordCycle appends a scan cycle duration to the rolling window.
func (m *Monitor) RecordCycle(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = append(m.cycles, d)
	if len(m.cycles) > m.cfg.CycleWindow {
		m.cycles = m.cycles[len(m.cycles)-m.cfg.CycleWindow:]
	}
}

// OverallHealth reports the worst venue's streak mapped to a state.
func (m *Monitor) OverallHealth() domain.HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	worst := 0
	for _, streak := range m.streaks {
		if streak > worst {
			worst = streak
		}
	}
	switch {
	case worst >= m.cfg.CriticalStreak:
		return domain.HealthCritical
	case worst >= m.cfg.DegradedStreak:
		return domain.HealthDegraded
	default:
		return domain.HealthHealthy
	}
}

// RecentCycleStats returns mean and population stddev of the retained
// cycle durations, in seconds.
func (m *Monitor) RecentCycleStats() domain.CycleStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.cycles)
	if n == 0 {
		return domain.CycleStats{}
	}

	var sum float64
	for _, c := range m.cycles {
		sum += c.Seconds()
	}
	mean := sum / float64(n)

	var sq float64
	for _, c := range m.cycles {
		diff := c.Seconds() - mean
		sq += diff * diff
	}
	return domain.CycleStats{
		Count:         n,
		MeanSeconds:   mean,
		StddevSeconds: math.Sqrt(sq / float64(n)),
	}
}

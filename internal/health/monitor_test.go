package health

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHealthEscalation(t *testing.T) {
	m := NewMonitor(Config{DegradedStreak: 2, CriticalStreak: 4}, discard())
	if got := m.OverallHealth(); got != domain.HealthHealthy {
		t.Fatalf("initial health = %s, want healthy", got)
	}

	m.RecordVenueError("alpha")
	if got := m.OverallHealth(); got != domain.HealthHealthy {
		t.Fatalf("health after 1 error = %s, want healthy", got)
	}
	m.RecordVenueError("alpha")
	if got := m.OverallHealth(); got != domain.HealthDegraded {
		t.Fatalf("health after 2 errors = %s, want degraded", got)
	}
	m.RecordVenueError("alpha")
	m.RecordVenueError("alpha")
	if got := m.OverallHealth(); got != domain.HealthCritical {
		t.Fatalf("health after 4 errors = %s, want critical", got)
	}

	// One good call clears the streak entirely.
	m.RecordVenueSuccess("alpha")
	if got := m.OverallHealth(); got != domain.HealthHealthy {
		t.Fatalf("health after success = %s, want healthy", got)
	}
}

func TestHealthWorstVenueWins(t *testing.T) {
	m := NewMonitor(Config{DegradedStreak: 2, CriticalStreak: 4}, discard())
	m.RecordVenueError("alpha")
	m.RecordVenueError("beta")
	m.RecordVenueError("beta")
	if got := m.OverallHealth(); got != domain.HealthDegraded {
		t.Fatalf("health = %s, want degraded from beta's streak", got)
	}
}

func TestCycleStats(t *testing.T) {
	m := NewMonitor(Config{}, discard())
	if stats := m.RecentCycleStats(); stats.Count != 0 {
		t.Fatalf("empty stats count = %d", stats.Count)
	}

	m.RecordCycle(1 * time.Second)
	m.RecordCycle(3 * time.Second)
	stats := m.RecentCycleStats()
	if stats.Count != 2 {
		t.Fatalf("count = %d, want 2", stats.Count)
	}
	if math.Abs(stats.MeanSeconds-2.0) > 1e-9 {
		t.Fatalf("mean = %f, want 2.0", stats.MeanSeconds)
	}
	if math.Abs(stats.StddevSeconds-1.0) > 1e-9 {
		t.Fatalf("stddev = %f, want 1.0", stats.StddevSeconds)
	}
}

func TestCycleWindowTrims(t *testing.T) {
	m := NewMonitor(Config{CycleWindow: 3}, discard())
	for i := 0; i < 10; i++ {
		m.RecordCycle(time.Duration(i) * time.Second)
	}
	stats := m.RecentCycleStats()
	if stats.Count != 3 {
		t.Fatalf("count = %d, want window of 3", stats.Count)
	}
	// Only 7s, 8s, 9s remain.
	if math.Abs(stats.MeanSeconds-8.0) > 1e-9 {
		t.Fatalf("mean = %f, want 8.0", stats.MeanSeconds)
	}
}

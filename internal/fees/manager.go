// Package fees caches per-venue fee schedules and resolves the effective
// rate for a trade. Profit math is exact, so fee rates flow through as
// decimals end to end.
package fees

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// ScheduleSource fetches a venue's published fee schedule. Implemented by
// venue adapters.
type ScheduleSource interface {
	GetFeeSchedule(ctx context.Context, venue string) (domain.FeeSchedule, error)
}

// DefaultTakerRate is the conservative fallback when a venue publishes no
// schedule or the fetch fails. Overestimating fees only costs missed
// trades; underestimating costs money.
var DefaultTakerRate = decimal.RequireFromString("0.001")

// Config holds the manager's tunables.
type Config struct {
	RefreshInterval time.Duration // schedule cache TTL
	UseVenueToken   bool          // apply the venue-token fee discount
}

// Defaults fills zero fields.
func (c *Config) Defaults() {
	if c.RefreshInterval == 0 {
		c.RefreshInterval = time.Hour
	}
}

type cachedSchedule struct {
	schedule  domain.FeeSchedule
	fetchedAt time.Time
}

// Manager implements domain.FeeSource over a ScheduleSource with a TTL
// cache. Safe for concurrent use.
type Manager struct {
	cfg    Config
	source ScheduleSource
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cachedSchedule
}

var _ domain.FeeSource = (*Manager)(nil)

// NewManager creates a Manager.
func NewManager(cfg Config, source ScheduleSource, logger *slog.Logger) *Manager {
	cfg.Defaults()
	return &Manager{
		cfg:    cfg,
		source: source,
		logger: logger.With(slog.String("component", "fee_manager")),
		cache:  make(map[string]cachedSchedule),
	}
}

// GetEffectiveFee returns the fee rate one order on the venue pays. The
// notional is accepted for venues with volume tiers; the schedule source
// already folds the account's tier into the published rates.
func (m *Manager) GetEffectiveFee(ctx context.Context, venue string, _ decimal.Decimal, isMaker bool) (decimal.Decimal, error) {
	schedule, ok := m.schedule(ctx, venue)
	if !ok {
		return DefaultTakerRate, nil
	}
	if isMaker {
		return schedule.MakerRate, nil
	}
	return schedule.EffectiveTakerRate(m.cfg.UseVenueToken), nil
}

// schedule returns the cached schedule, refreshing it past the TTL. A
// failed refresh falls back to the stale entry if one exists.
func (m *Manager) schedule(ctx context.Context, venue string) (domain.FeeSchedule, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, cached := m.cache[venue]
	if cached && time.Since(entry.fetchedAt) < m.cfg.RefreshInterval {
		return entry.schedule, true
	}

	fresh, err := m.source.GetFeeSchedule(ctx, venue)
	if err != nil {
		m.logger.WarnContext(ctx, "fee schedule fetch failed",
			slog.String("venue", venue),
			slog.String("error", err.Error()),
		)
		if cached {
			return entry.schedule, true
		}
		return domain.FeeSchedule{}, false
	}

	m.cache[venue] = cachedSchedule{schedule: fresh, fetchedAt: time.Now()}
	return fresh, true
}

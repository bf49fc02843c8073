package domain

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteSource provides current depth and last-trade prices per venue.
// A nil-book, non-error return means the venue has no book for the symbol.
type QuoteSource interface {
	GetOrderBook(ctx context.Context, venue string, symbol Symbol) (*QuoteBook, error)
	GetTickerPrice(ctx context.Context, venue string, symbol Symbol) (decimal.Decimal, error)
}

// BalanceSource provides free (not locked) balances per venue and asset.
type BalanceSource interface {
	GetAvailableBalance(ctx context.Context, venue, asset string) (decimal.Decimal, error)
}

// OrderVenue places, polls, and cancels orders on an exchange.
type OrderVenue interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (orderID string, err error)
	GetOrderState(ctx context.Context, venue string, symbol Symbol, orderID string) (OrderState, error)
	CancelOrder(ctx context.Context, venue string, symbol Symbol, orderID string) error
}

// FeeSource provides effective trading fee rates.
type FeeSource interface {
	GetEffectiveFee(ctx context.Context, venue string, notional decimal.Decimal, isMaker bool) (decimal.Decimal, error)
}

// PairSource lists tradable pairs and per-asset limits on a venue.
type PairSource interface {
	ListPairs(ctx context.Context, venue string) ([]Symbol, error)
	GetLimits(ctx context.Context, venue string, symbol Symbol) (MarketLimits, error)
}

// HealthSignal exposes overall health plus recent cycle-time statistics.
type HealthSignal interface {
	OverallHealth() HealthState
	RecentCycleStats() CycleStats
}

// BookCache stores live orderbook state keyed by venue and symbol.
type BookCache interface {
	SetSnapshot(ctx context.Context, book QuoteBook) error
	GetSnapshot(ctx context.Context, venue string, symbol Symbol) (QuoteBook, error)
	UpdateLevel(ctx context.Context, upd BookUpdate) error
	GetBBO(ctx context.Context, venue string, symbol Symbol) (bestBid, bestAsk decimal.Decimal, err error)
}

// ExecutionStore persists completed execution results.
type ExecutionStore interface {
	Create(ctx context.Context, res ExecutionResult) error
	GetByID(ctx context.Context, id string) (ExecutionResult, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionResult, error)
	SumRealizedProfit(ctx context.Context, since time.Time) (decimal.Decimal, error)
}

// ScanAudit summarizes one scan cycle for diagnostics.
type ScanAudit struct {
	CycleID    string
	Kind       string // "cross_exchange" or "triangular"
	Found      int
	Rejections map[RejectReason]int
	Duration   time.Duration
	StartedAt  time.Time
}

// AuditStore persists scan cycle summaries. Fire-and-forget from the
// scanner's perspective.
type AuditStore interface {
	Create(ctx context.Context, audit ScanAudit) error
	ListRecent(ctx context.Context, limit int) ([]ScanAudit, error)
}

// BlobInfo describes one stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves and enumerates objects in blob storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver offloads old execution and scan records to blob storage.
type Archiver interface {
	ArchiveExecutions(ctx context.Context, before time.Time) (int64, error)
	ArchiveScanAudits(ctx context.Context, before time.Time) (int64, error)
}

// RateLimiter provides distributed rate limiting for venue REST calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

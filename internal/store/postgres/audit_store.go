package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// AuditStore implements domain.AuditStore using PostgreSQL. Rejection
// counters go into a JSONB column so new reject reasons never need a
// schema change.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates an AuditStore backed by the given pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

var _ domain.AuditStore = (*AuditStore)(nil)

// Create inserts one scan cycle summary.
func (s *AuditStore) Create(ctx context.Context, audit domain.ScanAudit) error {
	rejections, err := json.Marshal(audit.Rejections)
	if err != nil {
		return fmt.Errorf("postgres: marshal rejections: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO scan_audits (cycle_id, kind, found, rejections, duration_ms, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		audit.CycleID, audit.Kind, audit.Found, rejections,
		audit.Duration.Milliseconds(), audit.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert scan audit %s: %w", audit.CycleID, err)
	}
	return nil
}

// ListRecent returns the most recent scan cycle summaries.
func (s *AuditStore) ListRecent(ctx context.Context, limit int) ([]domain.ScanAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT cycle_id, kind, found, rejections, duration_ms, started_at
		FROM scan_audits ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list scan audits: %w", err)
	}
	return collectAudits(rows)
}

// ListBefore returns all scan cycle summaries started strictly before the
// cutoff, oldest first. Used by the archiver.
func (s *AuditStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ScanAudit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT cycle_id, kind, found, rejections, duration_ms, started_at
		FROM scan_audits WHERE started_at < $1 ORDER BY started_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list scan audits before: %w", err)
	}
	return collectAudits(rows)
}

func collectAudits(rows pgx.Rows) ([]domain.ScanAudit, error) {
	defer rows.Close()

	var audits []domain.ScanAudit
	for rows.Next() {
		var (
			audit      domain.ScanAudit
			rejections []byte
			durationMs int64
		)
		if err := rows.Scan(&audit.CycleID, &audit.Kind, &audit.Found, &rejections, &durationMs, &audit.StartedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit row: %w", err)
		}
		if len(rejections) > 0 {
			if err := json.Unmarshal(rejections, &audit.Rejections); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal rejections: %w", err)
			}
		}
		audit.Duration = time.Duration(durationMs) * time.Millisecond
		audits = append(audits, audit)
	}
	return audits, rows.Err()
}

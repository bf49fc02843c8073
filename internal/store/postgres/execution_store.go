package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL. Money
// columns are NUMERIC and travel as strings so nothing is squeezed through
// a float on the way in or out.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore backed by the given pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)

// Create inserts an execution and its leg fills in one transaction.
func (s *ExecutionStore) Create(ctx context.Context, res domain.ExecutionResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO executions (id, opportunity_id, success, state, realized_net_profit, failure_reason, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.ID, res.OpportunityID, res.Success, string(res.State),
		res.RealizedNetProfit.String(), res.FailureReason, res.StartedAt, res.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution: %w", err)
	}

	for _, leg := range res.LegFills {
		_, err = tx.Exec(ctx, `
			INSERT INTO execution_legs (execution_id, order_id, venue, symbol, side, price, amount, fee)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			res.ID, leg.OrderID, leg.Venue, leg.Symbol.String(), string(leg.Side),
			leg.Price.String(), leg.Amount.String(), leg.Fee.String(),
		)
		if err != nil {
			return fmt.Errorf("postgres: insert execution leg: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID returns an execution with its legs.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.ExecutionResult, error) {
	res, err := scanExecution(s.pool.QueryRow(ctx, `
		SELECT id, opportunity_id, success, state, realized_net_profit::text, failure_reason, started_at, completed_at
		FROM executions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionResult{}, domain.ErrNotFound
		}
		return domain.ExecutionResult{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT order_id, venue, symbol, side, price::text, amount::text, fee::text
		FROM execution_legs WHERE execution_id = $1 ORDER BY id`, id)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("postgres: get execution legs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var leg domain.LegFill
		var symbol, side, priceStr, amountStr, fee string
		if err := rows.Scan(&leg.OrderID, &leg.Venue, &symbol, &side, &priceStr, &amountStr, &fee); err != nil {
			return domain.ExecutionResult{}, fmt.Errorf("postgres: scan execution leg: %w", err)
		}
		leg.Symbol = domain.Symbol(symbol)
		leg.Side = domain.OrderSide(side)
		if leg.Price, err = decimal.NewFromString(priceStr); err != nil {
			return domain.ExecutionResult{}, fmt.Errorf("postgres: parse leg price: %w", err)
		}
		if leg.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return domain.ExecutionResult{}, fmt.Errorf("postgres: parse leg amount: %w", err)
		}
		if leg.Fee, err = decimal.NewFromString(fee); err != nil {
			return domain.ExecutionResult{}, fmt.Errorf("postgres: parse leg fee: %w", err)
		}
		res.LegFills = append(res.LegFills, leg)
	}
	if err := rows.Err(); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("postgres: execution legs rows: %w", err)
	}
	return res, nil
}

// ListRecent returns the most recent executions, legs not included.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, opportunity_id, success, state, realized_net_profit::text, failure_reason, started_at, completed_at
		FROM executions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var list []domain.ExecutionResult
	for rows.Next() {
		res, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		list = append(list, res)
	}
	return list, rows.Err()
}

// ListBefore returns all executions started strictly before the cutoff,
// oldest first, legs not included. Used by the archiver.
func (s *ExecutionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, opportunity_id, success, state, realized_net_profit::text, failure_reason, started_at, completed_at
		FROM executions WHERE started_at < $1 ORDER BY started_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions before: %w", err)
	}
	defer rows.Close()

	var list []domain.ExecutionResult
	for rows.Next() {
		res, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		list = append(list, res)
	}
	return list, rows.Err()
}

// SumRealizedProfit sums realized profit across executions started at or
// after the given time.
func (s *ExecutionStore) SumRealizedProfit(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var sumStr string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(realized_net_profit), 0)::text FROM executions WHERE started_at >= $1`,
		since,
	).Scan(&sumStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: sum realized profit: %w", err)
	}
	sum, err := decimal.NewFromString(sumStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: parse realized profit sum: %w", err)
	}
	return sum, nil
}

func scanExecution(row pgx.Row) (domain.ExecutionResult, error) {
	var (
		res       domain.ExecutionResult
		state     string
		profitStr string
	)
	err := row.Scan(&res.ID, &res.OpportunityID, &res.Success, &state,
		&profitStr, &res.FailureReason, &res.StartedAt, &res.CompletedAt)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	res.State = domain.ExecState(state)
	if res.RealizedNetProfit, err = decimal.NewFromString(profitStr); err != nil {
		return domain.ExecutionResult{}, err
	}
	return res, nil
}

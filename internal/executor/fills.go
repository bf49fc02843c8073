package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// waitForFill polls an order until it reaches a terminal status or the fill
// timeout elapses. On timeout it cancels the order and returns the final
// venue state, so a partial fill is still visible to the caller alongside
// ErrFillTimeout.
func (e *Engine) waitForFill(ctx context.Context, venue string, symbol domain.Symbol, orderID string) (domain.OrderState, error) {
	deadline := time.Now().Add(e.cfg.FillTimeout)
	ticker := time.NewTicker(e.cfg.FillPollInterval)
	defer ticker.Stop()

	var last domain.OrderState
	for {
		state, err := e.orders.GetOrderState(ctx, venue, symbol, orderID)
		if err != nil {
			e.logger.Warn("order state poll failed",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
		} else {
			last = state
			if state.Status.Terminal() {
				if state.Status == domain.OrderStatusRejected {
					return state, fmt.Errorf("executor: order %s: %w", orderID, domain.ErrOrderRejected)
				}
				return state, nil
			}
		}

		if time.Now().After(deadline) {
			return e.cancelAndSettle(ctx, venue, symbol, orderID, last)
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

// cancelAndSettle cancels a timed-out order and fetches its final state.
// The cancel can race a late fill, so the post-cancel state wins.
func (e *Engine) cancelAndSettle(ctx context.Context, venue string, symbol domain.Symbol, orderID string, last domain.OrderState) (domain.OrderState, error) {
	if err := e.orders.CancelOrder(ctx, venue, symbol, orderID); err != nil {
		e.logger.Warn("cancel after fill timeout failed",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}
	final, err := e.orders.GetOrderState(ctx, venue, symbol, orderID)
	if err != nil {
		final = last
	}
	return final, fmt.Errorf("executor: order %s: %w", orderID, domain.ErrFillTimeout)
}

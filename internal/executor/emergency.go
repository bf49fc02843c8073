package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// liquidationDiscount prices the forced market sell far enough through the
// book to guarantee it crosses.
var liquidationDiscount = decimal.RequireFromString("0.95")

// monitorStranded watches a long position left on the buy venue after a
// failed sell leg. Every poll it reads the first available ticker across the
// exit venue set and exits at market when either the price has recovered
// past break-even-plus-buffer or the unrealized loss breaches the emergency
// bound. The loop is bounded: after EmergencyMaxWait it escalates to the
// operator and leaves the position in place.
func (e *Engine) monitorStranded(ctx context.Context, opp domain.Opportunity, amount decimal.Decimal) (domain.LegFill, bool, error) {
	log := e.logger.With(
		slog.String("opportunity_id", opp.ID),
		slog.String("symbol", opp.Symbol.String()),
		slog.String("venue", opp.BuyVenue),
	)
	venues := e.exitVenues(opp)
	recovery := e.gate.RecoveryPrice(opp.BuyPrice)
	log.Warn("emergency monitoring started",
		slog.String("amount", amount.String()),
		slog.String("buy_price", opp.BuyPrice.String()),
		slog.String("recovery_price", recovery.String()),
	)

	deadline := time.Now().Add(e.cfg.EmergencyMaxWait)
	ticker := time.NewTicker(e.cfg.EmergencyPoll)
	defer ticker.Stop()

	for {
		current, ok := e.firstTicker(ctx, venues, opp.Symbol)
		if !ok {
			log.Warn("stranded position price unavailable on every venue")
		} else {
			switch {
			case current.GreaterThanOrEqual(recovery):
				log.Info("price recovered, exiting position",
					slog.String("current", current.String()),
				)
				fill, err := e.sellAcross(ctx, venues, opp.Symbol, amount, current)
				return fill, err == nil, err

			case e.gate.ShouldLiquidate(opp.BuyPrice, current, amount, opp.TradeValue):
				log.Warn("loss bound breached, liquidating position",
					slog.String("current", current.String()),
				)
				fill, err := e.sellAcross(ctx, venues, opp.Symbol, amount, current.Mul(liquidationDiscount))
				return fill, err == nil, err
			}
		}

		if time.Now().After(deadline) {
			e.escalate(ctx, fmt.Sprintf(
				"stranded %s %s on %s not exited after %s; manual intervention required",
				amount, opp.Symbol, opp.BuyVenue, e.cfg.EmergencyMaxWait,
			))
			return domain.LegFill{}, false, nil
		}

		select {
		case <-ctx.Done():
			e.escalate(context.WithoutCancel(ctx), fmt.Sprintf(
				"emergency monitor cancelled while holding %s %s on %s",
				amount, opp.Symbol, opp.BuyVenue,
			))
			return domain.LegFill{}, false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// exitVenues orders the venues the monitor works through: the venue that
// refused the sell leg, the venue holding the inventory, then every other
// configured venue.
func (e *Engine) exitVenues(opp domain.Opportunity) []string {
	venues := []string{opp.SellVenue, opp.BuyVenue}
	seen := map[string]bool{opp.SellVenue: true, opp.BuyVenue: true}
	for _, v := range e.cfg.Venues {
		if seen[v] {
			continue
		}
		seen[v] = true
		venues = append(venues, v)
	}
	return venues
}

// firstTicker polls the venues in order and returns the first positive
// ticker price.
func (e *Engine) firstTicker(ctx context.Context, venues []string, symbol domain.Symbol) (decimal.Decimal, bool) {
	for _, venue := range venues {
		price, err := e.quotes.GetTickerPrice(ctx, venue, symbol)
		if err == nil && price.IsPositive() {
			return price, true
		}
	}
	return decimal.Zero, false
}

// sellAcross attempts the forced sell on each venue in order and returns the
// first fill. It escalates only once every venue has refused.
func (e *Engine) sellAcross(ctx context.Context, venues []string, symbol domain.Symbol, amount, price decimal.Decimal) (domain.LegFill, error) {
	var lastErr error
	for _, venue := range venues {
		fill, err := e.trySell(ctx, venue, symbol, amount, price)
		if err == nil {
			return fill, nil
		}
		lastErr = err
		e.logger.Warn("emergency sell attempt failed",
			slog.String("venue", venue),
			slog.String("error", err.Error()),
		)
	}
	e.escalate(ctx, fmt.Sprintf(
		"emergency sell of %s %s failed on every venue: %v",
		amount, symbol, lastErr,
	))
	return domain.LegFill{}, lastErr
}

// marketSell dumps a position on a single venue and escalates on failure.
func (e *Engine) marketSell(ctx context.Context, venue string, symbol domain.Symbol, amount, price decimal.Decimal) (domain.LegFill, error) {
	fill, err := e.trySell(ctx, venue, symbol, amount, price)
	if err != nil {
		e.escalate(ctx, fmt.Sprintf("emergency market sell on %s failed: %v", venue, err))
	}
	return fill, err
}

// trySell places a market sell and waits for the fill. The limit price is a
// crossing bound, not a quote; venues that support true market orders ignore
// it.
func (e *Engine) trySell(ctx context.Context, venue string, symbol domain.Symbol, amount, price decimal.Decimal) (domain.LegFill, error) {
	orderID, err := e.orders.PlaceOrder(ctx, domain.OrderRequest{
		Venue:  venue,
		Symbol: symbol,
		Side:   domain.OrderSideSell,
		Type:   domain.OrderTypeMarket,
		Amount: amount,
		Price:  price,
	})
	if err != nil {
		return domain.LegFill{}, fmt.Errorf("executor: emergency sell: %w", err)
	}
	state, err := e.waitForFill(ctx, venue, symbol, orderID)
	if !state.FilledAmount.IsPositive() {
		if err == nil {
			err = domain.ErrFillTimeout
		}
		return domain.LegFill{}, fmt.Errorf("executor: emergency sell: %w", err)
	}
	return domain.LegFill{
		OrderID: orderID,
		Venue:   venue,
		Symbol:  symbol,
		Side:    domain.OrderSideSell,
		Price:   state.AvgPrice,
		Amount:  state.FilledAmount,
		Fee:     state.Fee,
	}, nil
}

func (e *Engine) escalate(ctx context.Context, message string) {
	e.logger.Error("operator escalation", slog.String("message", message))
	if e.alerts == nil {
		return
	}
	if err := e.alerts.NotifyAll(ctx, "emergency exit", message); err != nil {
		e.logger.Error("escalation delivery failed", slog.String("error", err.Error()))
	}
}

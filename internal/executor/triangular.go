package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// ExecuteTriangular runs a buy -> buy -> sell cycle on one venue. Each leg
// is sized from the ACTUAL fill of the previous leg, never the planned
// amount, so partial fills shrink the rest of the cycle instead of
// overdrawing the balance. A failed middle or exit leg applies the
// configured unwind policy to whatever inventory the cycle acquired.
func (e *Engine) ExecuteTriangular(ctx context.Context, opp domain.TriangularOpportunity) (domain.ExecutionResult, error) {
	res := domain.ExecutionResult{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		State:         domain.ExecSizing,
		StartedAt:     time.Now().UTC(),
	}
	log := e.logger.With(
		slog.String("execution_id", res.ID),
		slog.String("venue", opp.Venue),
		slog.String("path", fmt.Sprintf("%s>%s>%s", opp.Path[0], opp.Path[1], opp.Path[2])),
	)

	if err := validateTriangular(opp); err != nil {
		res.State = domain.ExecFailed
		res.FailureReason = err.Error()
		res.CompletedAt = time.Now().UTC()
		return res, fmt.Errorf("executor: validate: %w", err)
	}

	placedStates := [3]domain.ExecState{domain.ExecLeg1Placed, domain.ExecLeg2Placed, domain.ExecLeg3Placed}
	filledStates := [3]domain.ExecState{domain.ExecLeg1Filled, domain.ExecLeg2Filled, domain.ExecLeg3Filled}

	// holding is the amount carried into the next leg, denominated in the
	// currency that leg spends (or sells, for the exit leg).
	holding := opp.TradeValue
	for leg := 0; leg < 3; leg++ {
		pair := opp.Path[leg]
		price := opp.LegPrices[leg]
		side := domain.OrderSideBuy
		limitPrice := e.paddedBuy(price)
		amount := holding.Div(price)
		if leg == 2 {
			side = domain.OrderSideSell
			limitPrice = e.paddedSell(price)
			amount = holding
		}
		amount = sizeOrder(amount, e.limitsFor(ctx, opp.Venue, pair))

		orderID, err := e.orders.PlaceOrder(ctx, domain.OrderRequest{
			Venue:  opp.Venue,
			Symbol: pair,
			Side:   side,
			Type:   domain.OrderTypeLimit,
			Amount: amount,
			Price:  limitPrice,
		})
		if err != nil {
			log.Error("cycle leg placement failed",
				slog.Int("leg", leg+1),
				slog.String("error", err.Error()),
			)
			return e.failCycle(ctx, res, opp, leg, log), nil
		}
		res.State = placedStates[leg]

		state, err := e.waitForFill(ctx, opp.Venue, pair, orderID)
		if err != nil && ctx.Err() != nil {
			res.State = domain.ExecFailed
			res.FailureReason = fmt.Sprintf("leg %d: %v", leg+1, err)
			res.CompletedAt = time.Now().UTC()
			return res, ctx.Err()
		}
		if !state.FilledAmount.IsPositive() {
			log.Warn("cycle leg did not fill",
				slog.Int("leg", leg+1),
				slog.String("order_id", orderID),
			)
			return e.failCycle(ctx, res, opp, leg, log), nil
		}
		res.State = filledStates[leg]
		res.LegFills = append(res.LegFills, domain.LegFill{
			OrderID: orderID,
			Venue:   opp.Venue,
			Symbol:  pair,
			Side:    side,
			Price:   state.AvgPrice,
			Amount:  state.FilledAmount,
			Fee:     state.Fee,
		})
		holding = state.FilledAmount
	}

	res.State = domain.ExecDone
	res.Success = true
	res.RealizedNetProfit = triangularProfit(res.LegFills)
	res.CompletedAt = time.Now().UTC()
	log.Info("cycle complete",
		slog.String("realized_net_profit", res.RealizedNetProfit.String()),
		slog.Duration("execution_time", res.ExecutionTime()),
	)
	return res, nil
}

// failCycle applies the unwind policy after leg failedLeg broke the cycle.
// Leg 1 failing leaves nothing to unwind.
func (e *Engine) failCycle(ctx context.Context, res domain.ExecutionResult, opp domain.TriangularOpportunity, failedLeg int, log *slog.Logger) domain.ExecutionResult {
	res.State = domain.ExecFailed
	res.FailureReason = fmt.Sprintf("leg %d failed", failedLeg+1)
	defer func() {
		res.CompletedAt = time.Now().UTC()
	}()

	if failedLeg == 0 || len(res.LegFills) == 0 {
		return res
	}

	if e.cfg.UnwindPolicy == UnwindHold {
		e.escalate(ctx, fmt.Sprintf(
			"cycle broke at leg %d on %s; holding acquired inventory per policy",
			failedLeg+1, opp.Venue,
		))
		res.FailureReason += ", inventory held"
		return res
	}

	// Walk the completed buy legs in reverse, market-selling each acquired
	// position through its own pair until back in the starting currency.
	// Each step chains on the actual unwind proceeds, not the original
	// fill, because the forced sells move the price.
	buys := res.LegFills
	amount := buys[len(buys)-1].Amount
	for i := len(buys) - 1; i >= 0; i-- {
		pair := buys[i].Symbol
		current, err := e.quotes.GetTickerPrice(ctx, opp.Venue, pair)
		if err != nil || !current.IsPositive() {
			current = buys[i].Price
		}
		sized := amount.RoundDown(e.limitsFor(ctx, opp.Venue, pair).AmountPrecision)
		fill, err := e.marketSell(ctx, opp.Venue, pair, sized, current.Mul(liquidationDiscount))
		if err != nil {
			log.Error("cycle unwind failed",
				slog.String("symbol", pair.String()),
				slog.String("error", err.Error()),
			)
			res.FailureReason += ", unwind failed"
			return res
		}
		res.LegFills = append(res.LegFills, fill)
		amount = fill.Price.Mul(fill.Amount)
	}
	res.FailureReason += ", inventory unwound"
	log.Warn("cycle unwound", slog.String("recovered", amount.String()))
	return res
}

func validateTriangular(opp domain.TriangularOpportunity) error {
	for i, p := range opp.LegPrices {
		if !p.IsPositive() {
			return fmt.Errorf("non-positive price on leg %d: %w", i+1, domain.ErrOrderRejected)
		}
	}
	if !opp.TradeValue.IsPositive() {
		return fmt.Errorf("non-positive trade value: %w", domain.ErrOrderRejected)
	}
	if opp.Path[0].Base() != opp.Path[1].Quote() ||
		opp.Path[1].Base() != opp.Path[2].Base() ||
		opp.Path[2].Quote() != opp.Path[0].Quote() {
		return fmt.Errorf("path does not return to starting currency: %w", domain.ErrOrderRejected)
	}
	return nil
}

// triangularProfit nets the exit proceeds against the entry cost in the
// starting currency. The middle leg's fee is charged in the intermediate
// currency and is converted through the entry price.
func triangularProfit(fills []domain.LegFill) decimal.Decimal {
	if len(fills) != 3 {
		return decimal.Zero
	}
	spent := fills[0].Price.Mul(fills[0].Amount).Add(fills[0].Fee)
	middleFee := fills[1].Fee.Mul(fills[0].Price)
	proceeds := fills[2].Price.Mul(fills[2].Amount).Sub(fills[2].Fee)
	return proceeds.Sub(spent).Sub(middleFee)
}

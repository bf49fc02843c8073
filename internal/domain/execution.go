package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecState is the execution engine's state machine position.
type ExecState string

const (
	ExecSizing        ExecState = "sizing"
	ExecLeg1Placed    ExecState = "leg1_placed"
	ExecLeg1Filled    ExecState = "leg1_filled"
	ExecLeg2Placed    ExecState = "leg2_placed"
	ExecLeg2Filled    ExecState = "leg2_filled"
	ExecLeg3Placed    ExecState = "leg3_placed"
	ExecLeg3Filled    ExecState = "leg3_filled"
	ExecDone          ExecState = "done"
	ExecEmergencyExit ExecState = "emergency_exit"
	ExecFailed        ExecState = "failed"
)

// LegFill records what one leg actually did on the venue.
type LegFill struct {
	OrderID string
	Venue   string
	Symbol  Symbol
	Side    OrderSide
	Price   decimal.Decimal
	Amount  decimal.Decimal
	Fee     decimal.Decimal
}

// ExecutionResult is the terminal record of one engine run. The engine
// returns it by value; there is no shared mutable state with the caller.
type ExecutionResult struct {
	ID                string
	OpportunityID     string
	Success           bool
	State             ExecState
	RealizedNetProfit decimal.Decimal
	LegFills          []LegFill
	FailureReason     string
	StartedAt         time.Time
	CompletedAt       time.Time
}

// ExecutionTime returns the wall-clock duration of the run.
func (r ExecutionResult) ExecutionTime() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

package domain

// RejectReason attributes a dropped or failed candidate to exactly one cause
// so aggregate counts can explain why no trade fired over a period.
type RejectReason string

const (
	ReasonProfitBelowThreshold RejectReason = "profit_below_threshold"
	ReasonInsufficientDepth    RejectReason = "insufficient_depth"
	ReasonBelowMinNotional     RejectReason = "below_min_notional"
	ReasonNoBalance            RejectReason = "no_balance"
	ReasonQuoteUnavailable     RejectReason = "quote_unavailable"
	ReasonCalculation          RejectReason = "calculation_error"
	ReasonImbalanceDerisked    RejectReason = "imbalance_derisked"
	ReasonNotProfitable        RejectReason = "not_profitable"
	ReasonBelowMinProfit       RejectReason = "below_min_profit"
	ReasonPositionTooLarge     RejectReason = "position_too_large"
)

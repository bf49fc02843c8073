package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity is a sized cross-exchange candidate trade. It is recomputed
// every scan cycle and never persisted by the scanner itself.
type Opportunity struct {
	ID           string
	Symbol       Symbol
	BuyVenue     string
	SellVenue    string
	BuyPrice     decimal.Decimal // best ask on the buy venue
	SellPrice    decimal.Decimal // best bid on the sell venue
	TradeValue   decimal.Decimal // sized notional in quote units
	NetProfit    decimal.Decimal // quote units, after fees and slippage
	NetProfitPct decimal.Decimal // percent of buy notional
	Timestamp    time.Time
}

// TriangularPath is an ordered triple of pairs on one venue whose
// buy/buy/sell traversal returns to the starting currency.
type TriangularPath [3]Symbol

// TriangularOpportunity is a sized intra-exchange cycle candidate.
type TriangularOpportunity struct {
	ID             string
	Venue          string
	Path           TriangularPath
	LegPrices      [3]decimal.Decimal
	GrossProfitPct decimal.Decimal
	NetProfitPct   decimal.Decimal
	TradeValue     decimal.Decimal // starting-currency notional
	Timestamp      time.Time
}

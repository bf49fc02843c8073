package binance

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// --------------------------------------------------------------------------
// Wire types for the Binance spot REST API. Prices and quantities arrive as
// JSON strings and are parsed into decimals at the boundary.
// --------------------------------------------------------------------------

// exchangeInfoResponse is the /api/v3/exchangeInfo payload, trimmed to the
// fields the adapter uses.
type exchangeInfoResponse struct {
	Symbols []symbolInfo `json:"symbols"`
}

type symbolInfo struct {
	Symbol     string         `json:"symbol"`
	Status     string         `json:"status"`
	BaseAsset  string         `json:"baseAsset"`
	QuoteAsset string         `json:"quoteAsset"`
	Filters    []symbolFilter `json:"filters"`
}

type symbolFilter struct {
	FilterType  string `json:"filterType"`
	MinQty      string `json:"minQty"`
	StepSize    string `json:"stepSize"`
	MinNotional string `json:"minNotional"`
}

// depthResponse is the /api/v3/depth payload.
type depthResponse struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// tickerPriceResponse is the /api/v3/ticker/price payload.
type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// accountResponse is the /api/v3/account payload, trimmed to balances.
type accountResponse struct {
	Balances []accountBalance `json:"balances"`
}

type accountBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// orderResponse covers both the POST /api/v3/order ack and the
// GET /api/v3/order query payloads.
type orderResponse struct {
	Symbol             string `json:"symbol"`
	OrderID            int64  `json:"orderId"`
	Status             string `json:"status"`
	ExecutedQty        string `json:"executedQty"`
	CummulativeQuoteQt string `json:"cummulativeQuoteQty"`
	UpdateTime         int64  `json:"updateTime"`
	TransactTime       int64  `json:"transactTime"`
}

// myTrade is one entry of the /api/v3/myTrades payload.
type myTrade struct {
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
}

// tradeFeeEntry is one entry of the /sapi/v1/asset/tradeFee payload.
type tradeFeeEntry struct {
	Symbol          string `json:"symbol"`
	MakerCommission string `json:"makerCommission"`
	TakerCommission string `json:"takerCommission"`
}

// apiError is the Binance error envelope, e.g. {"code":-2010,"msg":"..."}.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// --------------------------------------------------------------------------
// Converters
// --------------------------------------------------------------------------

// wireSymbol converts "BTC/USDT" to the Binance form "BTCUSDT".
func wireSymbol(s domain.Symbol) string {
	return strings.ReplaceAll(string(s), "/", "")
}

// statusToDomain maps a Binance order status onto the domain lifecycle.
func statusToDomain(status string) domain.OrderStatus {
	switch status {
	case "NEW", "PARTIALLY_FILLED", "PENDING_NEW":
		return domain.OrderStatusOpen
	case "FILLED":
		return domain.OrderStatusFilled
	case "CANCELED", "EXPIRED", "EXPIRED_IN_MATCH", "PENDING_CANCEL":
		return domain.OrderStatusCancelled
	case "REJECTED":
		return domain.OrderStatusRejected
	default:
		return domain.OrderStatusOpen
	}
}

// depthToBook converts a depth payload into a QuoteBook. Binance returns
// bids descending and asks ascending, which matches the domain ordering.
func depthToBook(venue string, symbol domain.Symbol, depth depthResponse) (domain.QuoteBook, error) {
	book := domain.QuoteBook{
		Venue:     venue,
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
	}

	var err error
	if book.Bids, err = parseLevels(depth.Bids); err != nil {
		return domain.QuoteBook{}, fmt.Errorf("bids: %w", err)
	}
	if book.Asks, err = parseLevels(depth.Asks); err != nil {
		return domain.QuoteBook{}, fmt.Errorf("asks: %w", err)
	}
	return book, nil
}

func parseLevels(raw [][2]string) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, entry := range raw {
		price, err := decimal.NewFromString(entry[0])
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", entry[0], err)
		}
		size, err := decimal.NewFromString(entry[1])
		if err != nil {
			return nil, fmt.Errorf("parse size %q: %w", entry[1], err)
		}
		if size.IsZero() {
			continue
		}
		levels = append(levels, domain.PriceLevel{Price: price, Size: size})
	}
	return levels, nil
}

// diffToUpdates flattens an incremental depth event into per-level updates.
// Unparseable entries are skipped; a zero size survives as a level removal.
func diffToUpdates(venue string, symbol domain.Symbol, diff diffEvent) []domain.BookUpdate {
	ts := time.UnixMilli(diff.EventTime).UTC()
	out := make([]domain.BookUpdate, 0, len(diff.Bids)+len(diff.Asks))
	out = appendUpdates(out, venue, symbol, domain.OrderSideBuy, diff.Bids, ts)
	out = appendUpdates(out, venue, symbol, domain.OrderSideSell, diff.Asks, ts)
	return out
}

func appendUpdates(out []domain.BookUpdate, venue string, symbol domain.Symbol, side domain.OrderSide, raw [][2]string, ts time.Time) []domain.BookUpdate {
	for _, entry := range raw {
		price, err := decimal.NewFromString(entry[0])
		if err != nil || !price.IsPositive() {
			continue
		}
		size, err := decimal.NewFromString(entry[1])
		if err != nil || size.IsNegative() {
			continue
		}
		out = append(out, domain.BookUpdate{
			Venue:     venue,
			Symbol:    symbol,
			Side:      side,
			Price:     price,
			Size:      size,
			Timestamp: ts,
		})
	}
	return out
}

// limitsFromFilters extracts order constraints from a symbol's filter list.
// StepSize "0.00010000" means 4 decimal places of amount precision.
func limitsFromFilters(filters []symbolFilter) domain.MarketLimits {
	var limits domain.MarketLimits
	for _, f := range filters {
		switch f.FilterType {
		case "LOT_SIZE":
			if minQty, err := decimal.NewFromString(f.MinQty); err == nil {
				limits.MinAmount = minQty
			}
			if step, err := decimal.NewFromString(f.StepSize); err == nil && step.IsPositive() {
				limits.AmountPrecision = stepPrecision(step)
			}
		case "NOTIONAL", "MIN_NOTIONAL":
			if minNotional, err := decimal.NewFromString(f.MinNotional); err == nil {
				limits.MinNotional = minNotional
			}
		}
	}
	return limits
}

// stepPrecision returns the decimal places implied by a lot step size.
// A step of "0.00010000" means amounts are quantized to 4 places.
func stepPrecision(step decimal.Decimal) int32 {
	for p := int32(0); p <= 12; p++ {
		if step.Shift(p).IsInteger() {
			return p
		}
	}
	return 12
}

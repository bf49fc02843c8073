// Package binance adapts the Binance spot REST and WebSocket APIs to the
// domain venue ports. The same adapter serves any Binance-compatible
// exchange via the BaseURL and WsURL settings.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/crypto"
	"github.com/halfmoonlabs/crossarb/internal/domain"
)

const (
	defaultDepthLimit = 20
	throttlePoll      = 25 * time.Millisecond
)

// ClientConfig holds connection settings for one Binance-compatible venue.
type ClientConfig struct {
	// Name is the venue identifier used throughout the system, e.g. "binance".
	Name string
	// BaseURL is the REST API root, e.g. "https://api.binance.com".
	BaseURL string
	// ApiKey and ApiSecret sign private endpoints. Public market data
	// endpoints work without them.
	ApiKey    string
	ApiSecret string
	// RateLimit is the request budget per second. Zero disables throttling.
	RateLimit int
}

// Client is the REST adapter for a Binance-compatible spot exchange. It
// implements domain.OrderVenue, domain.BalanceSource, domain.PairSource,
// domain.QuoteSource, and the fee ScheduleSource consumed by the fee
// manager.
type Client struct {
	cfg        ClientConfig
	auth       *crypto.HMACAuth
	httpClient *http.Client
	limiter    domain.RateLimiter
	logger     *slog.Logger

	mu     sync.RWMutex
	limits map[domain.Symbol]domain.MarketLimits
	pairs  []domain.Symbol
}

// NewClient creates a Binance REST adapter. The limiter may be nil, in
// which case requests are not throttled.
func NewClient(cfg ClientConfig, limiter domain.RateLimiter, logger *slog.Logger) *Client {
	return &Client{
		cfg:  cfg,
		auth: &crypto.HMACAuth{Key: cfg.ApiKey, Secret: cfg.ApiSecret},
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
		logger:  logger.With(slog.String("component", "binance"), slog.String("venue", cfg.Name)),
		limits:  make(map[domain.Symbol]domain.MarketLimits),
	}
}

var (
	_ domain.OrderVenue    = (*Client)(nil)
	_ domain.BalanceSource = (*Client)(nil)
	_ domain.PairSource    = (*Client)(nil)
	_ domain.QuoteSource   = (*Client)(nil)
)

// Name returns the venue identifier.
func (c *Client) Name() string { return c.cfg.Name }

// --------------------------------------------------------------------------
// PairSource
// --------------------------------------------------------------------------

// ListPairs fetches exchangeInfo and returns all symbols currently open for
// trading. Per-symbol limits are cached for GetLimits.
func (c *Client) ListPairs(ctx context.Context, _ string) ([]domain.Symbol, error) {
	body, err := c.doPublic(ctx, "/api/v3/exchangeInfo", nil)
	if err != nil {
		return nil, fmt.Errorf("binance: exchange info: %w", err)
	}

	var info exchangeInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("binance: decode exchange info: %w", err)
	}

	pairs := make([]domain.Symbol, 0, len(info.Symbols))
	limits := make(map[domain.Symbol]domain.MarketLimits, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		sym := domain.Symbol(s.BaseAsset + "/" + s.QuoteAsset)
		pairs = append(pairs, sym)
		limits[sym] = limitsFromFilters(s.Filters)
	}

	c.mu.Lock()
	c.pairs = pairs
	c.limits = limits
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "pairs refreshed", slog.Int("count", len(pairs)))
	return pairs, nil
}

// GetLimits returns cached order constraints for the symbol. Returns the
// zero value when the symbol has not been seen; callers fall back to their
// own defaults.
func (c *Client) GetLimits(_ context.Context, _ string, symbol domain.Symbol) (domain.MarketLimits, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.limits[symbol], nil
}

// --------------------------------------------------------------------------
// QuoteSource
// --------------------------------------------------------------------------

// GetOrderBook fetches a depth snapshot for the symbol.
func (c *Client) GetOrderBook(ctx context.Context, _ string, symbol domain.Symbol) (*domain.QuoteBook, error) {
	params := url.Values{}
	params.Set("symbol", wireSymbol(symbol))
	params.Set("limit", strconv.Itoa(defaultDepthLimit))

	body, err := c.doPublic(ctx, "/api/v3/depth", params)
	if err != nil {
		return nil, fmt.Errorf("binance: depth %s: %w", symbol, err)
	}

	var depth depthResponse
	if err := json.Unmarshal(body, &depth); err != nil {
		return nil, fmt.Errorf("binance: decode depth %s: %w", symbol, err)
	}

	book, err := depthToBook(c.cfg.Name, symbol, depth)
	if err != nil {
		return nil, fmt.Errorf("binance: depth %s: %w", symbol, err)
	}
	return &book, nil
}

// GetTickerPrice fetches the last trade price for the symbol.
func (c *Client) GetTickerPrice(ctx context.Context, _ string, symbol domain.Symbol) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", wireSymbol(symbol))

	body, err := c.doPublic(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: ticker %s: %w", symbol, err)
	}

	var ticker tickerPriceResponse
	if err := json.Unmarshal(body, &ticker); err != nil {
		return decimal.Zero, fmt.Errorf("binance: decode ticker %s: %w", symbol, err)
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: parse ticker %s: %w", symbol, err)
	}
	return price, nil
}

// --------------------------------------------------------------------------
// BalanceSource
// --------------------------------------------------------------------------

// GetAvailableBalance returns the free balance of the asset.
func (c *Client) GetAvailableBalance(ctx context.Context, _ string, asset string) (decimal.Decimal, error) {
	body, err := c.doSigned(ctx, http.MethodGet, "/api/v3/account", nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: account: %w", err)
	}

	var account accountResponse
	if err := json.Unmarshal(body, &account); err != nil {
		return decimal.Zero, fmt.Errorf("binance: decode account: %w", err)
	}

	for _, b := range account.Balances {
		if b.Asset != asset {
			continue
		}
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return decimal.Zero, fmt.Errorf("binance: parse balance %s: %w", asset, err)
		}
		return free, nil
	}
	return decimal.Zero, nil
}

// --------------------------------------------------------------------------
// OrderVenue
// --------------------------------------------------------------------------

// PlaceOrder submits a new order and returns the venue order ID.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	params := url.Values{}
	params.Set("symbol", wireSymbol(req.Symbol))
	params.Set("quantity", req.Amount.String())

	switch req.Side {
	case domain.OrderSideBuy:
		params.Set("side", "BUY")
	case domain.OrderSideSell:
		params.Set("side", "SELL")
	default:
		return "", fmt.Errorf("binance: place order: unknown side %q", req.Side)
	}

	switch req.Type {
	case domain.OrderTypeLimit:
		params.Set("type", "LIMIT")
		params.Set("timeInForce", "GTC")
		params.Set("price", req.Price.String())
	case domain.OrderTypeMarket:
		params.Set("type", "MARKET")
	default:
		return "", fmt.Errorf("binance: place order: unknown type %q", req.Type)
	}

	body, err := c.doSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return "", fmt.Errorf("binance: place order %s %s: %w", req.Side, req.Symbol, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("binance: decode order response: %w", err)
	}
	if statusToDomain(resp.Status) == domain.OrderStatusRejected {
		return "", fmt.Errorf("binance: place order %s %s: %w", req.Side, req.Symbol, domain.ErrOrderRejected)
	}

	c.logger.InfoContext(ctx, "order placed",
		slog.String("symbol", req.Symbol.String()),
		slog.String("side", string(req.Side)),
		slog.String("amount", req.Amount.String()),
		slog.Int64("order_id", resp.OrderID),
	)
	return strconv.FormatInt(resp.OrderID, 10), nil
}

// GetOrderState polls the current state of an order. Fees are summed from
// the order's trades, converted to quote units where the commission was
// charged in the base asset.
func (c *Client) GetOrderState(ctx context.Context, _ string, symbol domain.Symbol, orderID string) (domain.OrderState, error) {
	params := url.Values{}
	params.Set("symbol", wireSymbol(symbol))
	params.Set("orderId", orderID)

	body, err := c.doSigned(ctx, http.MethodGet, "/api/v3/order", params)
	if err != nil {
		return domain.OrderState{}, fmt.Errorf("binance: get order %s: %w", orderID, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderState{}, fmt.Errorf("binance: decode order %s: %w", orderID, err)
	}

	state := domain.OrderState{
		OrderID:   orderID,
		Status:    statusToDomain(resp.Status),
		UpdatedAt: time.UnixMilli(resp.UpdateTime).UTC(),
	}
	if state.FilledAmount, err = decimal.NewFromString(resp.ExecutedQty); err != nil {
		return domain.OrderState{}, fmt.Errorf("binance: parse executed qty: %w", err)
	}
	quoteQty, err := decimal.NewFromString(resp.CummulativeQuoteQt)
	if err != nil {
		return domain.OrderState{}, fmt.Errorf("binance: parse quote qty: %w", err)
	}
	if state.FilledAmount.IsPositive() {
		state.AvgPrice = quoteQty.Div(state.FilledAmount)

		fee, err := c.orderFee(ctx, symbol, orderID, state.AvgPrice)
		if err != nil {
			// Fee lookup is best effort; the order state is still usable.
			c.logger.WarnContext(ctx, "fee lookup failed",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
		} else {
			state.Fee = fee
		}
	}
	return state, nil
}

// CancelOrder cancels an open order. Cancelling an already-terminal order
// is treated as success so the fill-timeout path stays idempotent.
func (c *Client) CancelOrder(ctx context.Context, _ string, symbol domain.Symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", wireSymbol(symbol))
	params.Set("orderId", orderID)

	_, err := c.doSigned(ctx, http.MethodDelete, "/api/v3/order", params)
	if err != nil {
		var reqErr *requestError
		// -2011 UNKNOWN_ORDER: the order already reached a terminal state.
		if errors.As(err, &reqErr) && reqErr.code == -2011 {
			return nil
		}
		return fmt.Errorf("binance: cancel order %s: %w", orderID, err)
	}
	return nil
}

// orderFee sums commissions across the order's trades in quote units.
func (c *Client) orderFee(ctx context.Context, symbol domain.Symbol, orderID string, avgPrice decimal.Decimal) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", wireSymbol(symbol))
	params.Set("orderId", orderID)

	body, err := c.doSigned(ctx, http.MethodGet, "/api/v3/myTrades", params)
	if err != nil {
		return decimal.Zero, err
	}

	var trades []myTrade
	if err := json.Unmarshal(body, &trades); err != nil {
		return decimal.Zero, fmt.Errorf("decode trades: %w", err)
	}

	fee := decimal.Zero
	for _, t := range trades {
		commission, err := decimal.NewFromString(t.Commission)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse commission: %w", err)
		}
		switch t.CommissionAsset {
		case symbol.Quote():
			fee = fee.Add(commission)
		case symbol.Base():
			fee = fee.Add(commission.Mul(avgPrice))
		default:
			// Commission paid in the venue token (e.g. BNB) is already
			// discounted and not convertible without another quote. Skip.
		}
	}
	return fee, nil
}

// --------------------------------------------------------------------------
// Fee schedule
// --------------------------------------------------------------------------

// bnbTokenDiscount is the published discount for paying fees in BNB.
var bnbTokenDiscount = decimal.RequireFromString("0.25")

// GetFeeSchedule fetches the account's trade fee for a representative
// symbol. Binance publishes per-symbol rates; spot pairs in one tier share
// the same schedule.
func (c *Client) GetFeeSchedule(ctx context.Context, venue string) (domain.FeeSchedule, error) {
	params := url.Values{}
	params.Set("symbol", "BTCUSDT")

	body, err := c.doSigned(ctx, http.MethodGet, "/sapi/v1/asset/tradeFee", params)
	if err != nil {
		return domain.FeeSchedule{}, fmt.Errorf("binance: trade fee: %w", err)
	}

	var entries []tradeFeeEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return domain.FeeSchedule{}, fmt.Errorf("binance: decode trade fee: %w", err)
	}
	if len(entries) == 0 {
		return domain.FeeSchedule{}, fmt.Errorf("binance: trade fee: empty response")
	}

	maker, err := decimal.NewFromString(entries[0].MakerCommission)
	if err != nil {
		return domain.FeeSchedule{}, fmt.Errorf("binance: parse maker rate: %w", err)
	}
	taker, err := decimal.NewFromString(entries[0].TakerCommission)
	if err != nil {
		return domain.FeeSchedule{}, fmt.Errorf("binance: parse taker rate: %w", err)
	}

	return domain.FeeSchedule{
		Venue:         venue,
		MakerRate:     maker,
		TakerRate:     taker,
		TokenDiscount: bnbTokenDiscount,
	}, nil
}

// --------------------------------------------------------------------------
// HTTP plumbing
// --------------------------------------------------------------------------

// requestError carries the Binance error code alongside the HTTP status.
type requestError struct {
	status int
	code   int
	msg    string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("status %d code %d: %s", e.status, e.code, e.msg)
}

// doPublic issues an unauthenticated GET against a public endpoint.
func (c *Client) doPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	fullURL := c.cfg.BaseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.send(ctx, req)
}

// doSigned issues an authenticated request. Binance expects the signed
// query string on the URL for every method including POST and DELETE.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	fullURL := c.cfg.BaseURL + path + "?" + c.auth.SignQuery(params)

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(c.auth.HeaderKey(), c.cfg.ApiKey)
	return c.send(ctx, req)
}

// send throttles, executes, and reads one HTTP request, converting error
// payloads into requestError values.
func (c *Client) send(ctx context.Context, req *http.Request) ([]byte, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e apiError
		if json.Unmarshal(body, &e) == nil && e.Msg != "" {
			return nil, &requestError{status: resp.StatusCode, code: e.Code, msg: e.Msg}
		}
		return nil, &requestError{status: resp.StatusCode, msg: string(body)}
	}
	return body, nil
}

// throttle blocks until the shared limiter admits one request.
func (c *Client) throttle(ctx context.Context) error {
	if c.limiter == nil || c.cfg.RateLimit <= 0 {
		return nil
	}
	for {
		allowed, err := c.limiter.Allow(ctx, "venue:"+c.cfg.Name, c.cfg.RateLimit, time.Second)
		if err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
		if allowed {
			return nil
		}
		timer := time.NewTimer(throttlePoll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	// depthStreamSuffix selects the 20-level partial book at 100ms cadence.
	depthStreamSuffix = "@depth20@100ms"

	// diffStreamSuffix selects the incremental depth stream: only the levels
	// that changed since the previous event, at 100ms cadence.
	diffStreamSuffix = "@depth@100ms"

	// tradeStreamSuffix selects the raw trade stream.
	tradeStreamSuffix = "@trade"
)

// BookHandler is called for every depth snapshot received on a book stream.
type BookHandler func(domain.QuoteBook)

// DiffHandler is called for every level change received on an incremental
// depth stream. Size zero means the level was removed.
type DiffHandler func(update domain.BookUpdate)

// TradeHandler is called for every trade received on a trade stream.
type TradeHandler func(symbol domain.Symbol, price decimal.Decimal)

// WSClient is a WebSocket client for Binance combined market streams. It
// manages the connection lifecycle, subscriptions, and dispatches messages
// to registered handlers.
type WSClient struct {
	venue string
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool
	nextID int

	// Streams to restore on reconnect, and the reverse mapping from a
	// stream's lower-case wire symbol back to the domain pair.
	streams []string
	symbols map[string]domain.Symbol

	bookHandlers  []BookHandler
	diffHandlers  []DiffHandler
	tradeHandlers []TradeHandler
	handlerMu     sync.RWMutex

	// done is closed when the client is shut down.
	done chan struct{}
}

// wsCommand is the Binance stream management frame.
type wsCommand struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// streamEnvelope wraps every message on the combined stream endpoint.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// tradeEvent is the @trade stream payload, trimmed to price.
type tradeEvent struct {
	Price string `json:"p"`
}

// diffEvent is the @depth incremental stream payload: the bid and ask levels
// that changed since the previous event.
type diffEvent struct {
	EventTime int64       `json:"E"`
	Bids      [][2]string `json:"b"`
	Asks      [][2]string `json:"a"`
}

// NewWSClient creates a new WebSocket client for the given combined stream
// endpoint, e.g. "wss://stream.binance.com:9443/stream".
func NewWSClient(venue, wsURL string) *WSClient {
	return &WSClient{
		venue:   venue,
		wsURL:   wsURL,
		symbols: make(map[string]domain.Symbol),
		done:    make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and restores any previous
// subscriptions.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("binance/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("binance/ws: connect: %w", err)
	}

	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	if len(w.streams) > 0 {
		if err := w.sendCommand(wsCommand{Method: "SUBSCRIBE", Params: w.streams, ID: w.commandID()}); err != nil {
			return fmt.Errorf("binance/ws: restore subscriptions: %w", err)
		}
	}

	return nil
}

// Subscribe subscribes to depth and trade streams for the given symbols.
// The incremental depth stream is added only when a DiffHandler is
// registered, so register handlers before subscribing.
func (w *WSClient) Subscribe(ctx context.Context, symbols []domain.Symbol) error {
	w.handlerMu.RLock()
	wantDiffs := len(w.diffHandlers) > 0
	w.handlerMu.RUnlock()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("binance/ws: not connected")
	}

	var params []string
	for _, sym := range symbols {
		wire := strings.ToLower(wireSymbol(sym))
		w.symbols[wire] = sym
		params = append(params, wire+depthStreamSuffix, wire+tradeStreamSuffix)
		if wantDiffs {
			params = append(params, wire+diffStreamSuffix)
		}
	}

	if err := w.sendCommand(wsCommand{Method: "SUBSCRIBE", Params: params, ID: w.commandID()}); err != nil {
		return fmt.Errorf("binance/ws: subscribe: %w", err)
	}

	w.streams = append(w.streams, params...)
	return nil
}

// Close shuts down the WebSocket connection and stops the read loop.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// OnBook registers a handler called for every depth snapshot.
func (w *WSClient) OnBook(handler BookHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.bookHandlers = append(w.bookHandlers, handler)
}

// OnDiff registers a handler called for every incremental level change.
func (w *WSClient) OnDiff(handler DiffHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.diffHandlers = append(w.diffHandlers, handler)
}

// OnTrade registers a handler called for every trade.
func (w *WSClient) OnTrade(handler TradeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.tradeHandlers = append(w.tradeHandlers, handler)
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// commandID returns a fresh frame ID. Caller must hold w.mu.
func (w *WSClient) commandID() int {
	w.nextID++
	return w.nextID
}

// sendCommand sends a JSON frame to the WebSocket. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd wsCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages and dispatches them to handlers. On
// disconnect it attempts to reconnect with exponential backoff.
func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}

			w.reconnect()
			return // readLoop is restarted by reconnect -> Connect
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the WebSocket alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a combined-stream envelope and routes the payload by
// stream suffix. Frames without a stream name (subscribe acks) are dropped.
func (w *WSClient) handleMessage(raw []byte) {
	var envelope streamEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Stream == "" {
		return
	}

	wire, suffix, ok := strings.Cut(envelope.Stream, "@")
	if !ok {
		return
	}

	w.mu.RLock()
	symbol, known := w.symbols[wire]
	w.mu.RUnlock()
	if !known {
		return
	}

	switch "@" + suffix {
	case depthStreamSuffix:
		var depth depthResponse
		if err := json.Unmarshal(envelope.Data, &depth); err != nil {
			return
		}
		book, err := depthToBook(w.venue, symbol, depth)
		if err != nil {
			return
		}

		w.handlerMu.RLock()
		handlers := w.bookHandlers
		w.handlerMu.RUnlock()

		for _, h := range handlers {
			h(book)
		}

	case diffStreamSuffix:
		var diff diffEvent
		if err := json.Unmarshal(envelope.Data, &diff); err != nil {
			return
		}

		w.handlerMu.RLock()
		handlers := w.diffHandlers
		w.handlerMu.RUnlock()
		if len(handlers) == 0 {
			return
		}

		for _, upd := range diffToUpdates(w.venue, symbol, diff) {
			for _, h := range handlers {
				h(upd)
			}
		}

	case tradeStreamSuffix:
		var trade tradeEvent
		if err := json.Unmarshal(envelope.Data, &trade); err != nil {
			return
		}
		price, err := decimal.NewFromString(trade.Price)
		if err != nil {
			return
		}

		w.handlerMu.RLock()
		handlers := w.tradeHandlers
		w.handlerMu.RUnlock()

		for _, h := range handlers {
			h(symbol, price)
		}
	}
}

// reconnect attempts to re-establish the connection with exponential
// backoff. It blocks until successful or the client is closed.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

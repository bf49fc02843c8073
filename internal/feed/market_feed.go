// Package feed connects venue market data streams to the in-process quote
// registry and the shared Redis book cache.
package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
	"github.com/halfmoonlabs/crossarb/internal/platform/binance"
)

// cacheWriteTimeout bounds each Redis write triggered by a stream message.
const cacheWriteTimeout = 2 * time.Second

// BookSink receives live quote state. The registry satisfies this.
type BookSink interface {
	SetBook(book domain.QuoteBook)
	SetLastPrice(venue string, symbol domain.Symbol, price decimal.Decimal)
}

// VenueStream names one venue's stream endpoint and the symbols to watch.
type VenueStream struct {
	Venue   string
	WsURL   string
	Symbols []domain.Symbol
}

// MarketFeed owns one WebSocket client per venue and fans incoming depth
// snapshots, level diffs, and trades out to the sink and the book cache.
type MarketFeed struct {
	venues []VenueStream
	sink   BookSink
	cache  domain.BookCache // optional, nil disables cache writes
	logger *slog.Logger

	clients []*binance.WSClient
}

// NewMarketFeed creates a MarketFeed. The cache may be nil when running
// without Redis persistence.
func NewMarketFeed(venues []VenueStream, sink BookSink, cache domain.BookCache, logger *slog.Logger) *MarketFeed {
	return &MarketFeed{
		venues: venues,
		sink:   sink,
		cache:  cache,
		logger: logger.With(slog.String("component", "market_feed")),
	}
}

// Run connects every venue stream, subscribes the configured symbols, and
// blocks until ctx is cancelled. Each client reconnects on its own; Run only
// returns once the context ends.
func (f *MarketFeed) Run(ctx context.Context) error {
	for _, vs := range f.venues {
		if len(vs.Symbols) == 0 {
			continue
		}

		client := binance.NewWSClient(vs.Venue, vs.WsURL)
		client.OnBook(f.handleBook)
		client.OnTrade(f.tradeHandler(vs.Venue))
		if f.cache != nil {
			client.OnDiff(f.handleDiff)
		}

		connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := client.Connect(connCtx)
		cancel()
		if err != nil {
			f.closeAll()
			return err
		}
		if err := client.Subscribe(ctx, vs.Symbols); err != nil {
			f.closeAll()
			return err
		}

		f.clients = append(f.clients, client)
		f.logger.Info("venue stream subscribed",
			slog.String("venue", vs.Venue),
			slog.Int("symbols", len(vs.Symbols)),
		)
	}

	<-ctx.Done()
	f.closeAll()
	return ctx.Err()
}

// handleBook replaces the in-process book and mirrors it to the cache.
func (f *MarketFeed) handleBook(book domain.QuoteBook) {
	f.sink.SetBook(book)

	if f.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()
	if err := f.cache.SetSnapshot(ctx, book); err != nil {
		f.logger.Debug("book cache write failed",
			slog.String("venue", book.Venue),
			slog.String("symbol", book.Symbol.String()),
			slog.String("error", err.Error()),
		)
	}
}

// handleDiff applies one incremental level change to the cached book. The
// in-process registry is untouched; it is refreshed wholesale by snapshots.
func (f *MarketFeed) handleDiff(upd domain.BookUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()
	if err := f.cache.UpdateLevel(ctx, upd); err != nil {
		f.logger.Debug("book cache level update failed",
			slog.String("venue", upd.Venue),
			slog.String("symbol", upd.Symbol.String()),
			slog.String("error", err.Error()),
		)
	}
}

// tradeHandler binds the venue name into a last-price handler.
func (f *MarketFeed) tradeHandler(venue string) binance.TradeHandler {
	return func(symbol domain.Symbol, price decimal.Decimal) {
		f.sink.SetLastPrice(venue, symbol, price)
	}
}

func (f *MarketFeed) closeAll() {
	for _, c := range f.clients {
		_ = c.Close()
	}
	f.clients = nil
}

package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

// bookUpdateLua applies one level change and recomputes the touched side's
// best price atomically. Prices travel as exact decimal strings; the sorted
// set score is only used for ordering.
const bookUpdateLua = `
local price = ARGV[1]
local size = ARGV[2]
local side = ARGV[3]
if tonumber(size) > 0 then
    redis.call('ZADD', KEYS[1], tonumber(price), price)
    redis.call('HSET', KEYS[2], price, size)
else
    redis.call('ZREM', KEYS[1], price)
    redis.call('HDEL', KEYS[2], price)
end
local best
if side == 'bids' then
    best = redis.call('ZREVRANGE', KEYS[1], 0, 0)[1]
    if best then
        redis.call('HSET', KEYS[3], 'bid', best)
    else
        redis.call('HDEL', KEYS[3], 'bid')
    end
else
    best = redis.call('ZRANGE', KEYS[1], 0, 0)[1]
    if best then
        redis.call('HSET', KEYS[3], 'ask', best)
    else
        redis.call('HDEL', KEYS[3], 'ask')
    end
end
return 1
`

// BookCache implements domain.BookCache using Redis sorted sets and hashes
// per venue/symbol book, so every bot instance shares one live view of
// depth.
//
// Key schema:
//
//	book:{venue}:{symbol}:bids     - sorted set of bid prices (score = price)
//	book:{venue}:{symbol}:asks     - sorted set of ask prices
//	book:{venue}:{symbol}:bid:size - hash price -> size
//	book:{venue}:{symbol}:ask:size - hash price -> size
//	book:{venue}:{symbol}:bbo      - hash with "bid" and "ask" fields
//	book:{venue}:{symbol}:meta     - hash with "ts" field
type BookCache struct {
	rdb        *redis.Client
	bookUpdate *redis.Script
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{
		rdb:        c.Underlying(),
		bookUpdate: redis.NewScript(bookUpdateLua),
	}
}

var _ domain.BookCache = (*BookCache)(nil)

func bookKey(venue string, symbol domain.Symbol, suffix string) string {
	return "book:" + venue + ":" + symbol.String() + ":" + suffix
}

// SetSnapshot atomically replaces the book for one venue/symbol.
func (bc *BookCache) SetSnapshot(ctx context.Context, book domain.QuoteBook) error {
	bidsKey := bookKey(book.Venue, book.Symbol, "bids")
	asksKey := bookKey(book.Venue, book.Symbol, "asks")
	bidSizeKey := bookKey(book.Venue, book.Symbol, "bid:size")
	askSizeKey := bookKey(book.Venue, book.Symbol, "ask:size")
	bboKey := bookKey(book.Venue, book.Symbol, "bbo")
	metaKey := bookKey(book.Venue, book.Symbol, "meta")

	pipe := bc.rdb.TxPipeline()
	pipe.Del(ctx, bidsKey, asksKey, bidSizeKey, askSizeKey, bboKey, metaKey)

	for _, lvl := range book.Bids {
		priceStr := lvl.Price.String()
		pipe.ZAdd(ctx, bidsKey, redis.Z{Score: lvl.Price.InexactFloat64(), Member: priceStr})
		pipe.HSet(ctx, bidSizeKey, priceStr, lvl.Size.String())
	}
	for _, lvl := range book.Asks {
		priceStr := lvl.Price.String()
		pipe.ZAdd(ctx, asksKey, redis.Z{Score: lvl.Price.InexactFloat64(), Member: priceStr})
		pipe.HSet(ctx, askSizeKey, priceStr, lvl.Size.String())
	}

	if bid, ok := book.BestBid(); ok {
		pipe.HSet(ctx, bboKey, "bid", bid.Price.String())
	}
	if ask, ok := book.BestAsk(); ok {
		pipe.HSet(ctx, bboKey, "ask", ask.Price.String())
	}
	pipe.HSet(ctx, metaKey, "ts", strconv.FormatInt(book.Timestamp.UnixNano(), 10))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book %s %s: %w", book.Venue, book.Symbol, err)
	}
	return nil
}

// GetSnapshot reconstructs the full book for one venue/symbol. It returns
// domain.ErrNotFound when no snapshot has been written yet.
func (bc *BookCache) GetSnapshot(ctx context.Context, venue string, symbol domain.Symbol) (domain.QuoteBook, error) {
	pipe := bc.rdb.Pipeline()
	bidsCmd := pipe.ZRevRange(ctx, bookKey(venue, symbol, "bids"), 0, -1)
	asksCmd := pipe.ZRange(ctx, bookKey(venue, symbol, "asks"), 0, -1)
	bidSizeCmd := pipe.HGetAll(ctx, bookKey(venue, symbol, "bid:size"))
	askSizeCmd := pipe.HGetAll(ctx, bookKey(venue, symbol, "ask:size"))
	metaCmd := pipe.HGetAll(ctx, bookKey(venue, symbol, "meta"))

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return domain.QuoteBook{}, fmt.Errorf("redis: get book %s %s: %w", venue, symbol, err)
	}

	metaVals, _ := metaCmd.Result()
	if len(metaVals) == 0 {
		return domain.QuoteBook{}, domain.ErrNotFound
	}

	book := domain.QuoteBook{Venue: venue, Symbol: symbol}
	if tsNano, err := strconv.ParseInt(metaVals["ts"], 10, 64); err == nil {
		book.Timestamp = time.Unix(0, tsNano)
	}

	bidSizes, _ := bidSizeCmd.Result()
	bids, _ := bidsCmd.Result()
	book.Bids = buildLevels(bids, bidSizes)

	askSizes, _ := askSizeCmd.Result()
	asks, _ := asksCmd.Result()
	book.Asks = buildLevels(asks, askSizes)

	return book, nil
}

// buildLevels pairs sorted price members with their size hash entries,
// dropping anything that fails exact decimal parsing.
func buildLevels(prices []string, sizes map[string]string) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(prices))
	for _, priceStr := range prices {
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			continue
		}
		size := decimal.Zero
		if sizeStr, ok := sizes[priceStr]; ok {
			if parsed, err := decimal.NewFromString(sizeStr); err == nil {
				size = parsed
			}
		}
		levels = append(levels, domain.PriceLevel{Price: price, Size: size})
	}
	return levels
}

// UpdateLevel applies one incremental level change atomically. Size zero
// removes the level. The touched side's best price is recomputed in the
// same script run.
func (bc *BookCache) UpdateLevel(ctx context.Context, upd domain.BookUpdate) error {
	var zKey, hKey, sideArg string
	switch upd.Side {
	case domain.OrderSideBuy:
		zKey = bookKey(upd.Venue, upd.Symbol, "bids")
		hKey = bookKey(upd.Venue, upd.Symbol, "bid:size")
		sideArg = "bids"
	case domain.OrderSideSell:
		zKey = bookKey(upd.Venue, upd.Symbol, "asks")
		hKey = bookKey(upd.Venue, upd.Symbol, "ask:size")
		sideArg = "asks"
	default:
		return fmt.Errorf("redis: update level: unknown side %q", upd.Side)
	}

	keys := []string{zKey, hKey, bookKey(upd.Venue, upd.Symbol, "bbo")}
	args := []interface{}{upd.Price.String(), upd.Size.String(), sideArg}
	if err := bc.bookUpdate.Run(ctx, bc.rdb, keys, args...).Err(); err != nil {
		return fmt.Errorf("redis: update level %s %s %s@%s: %w",
			upd.Venue, upd.Symbol, sideArg, upd.Price, err)
	}
	return nil
}

// GetBBO reads the current best bid and ask without pulling full depth.
// It returns domain.ErrNotFound when no BBO has been written.
func (bc *BookCache) GetBBO(ctx context.Context, venue string, symbol domain.Symbol) (bestBid, bestAsk decimal.Decimal, err error) {
	vals, err := bc.rdb.HGetAll(ctx, bookKey(venue, symbol, "bbo")).Result()
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("redis: get bbo %s %s: %w", venue, symbol, err)
	}
	if len(vals) == 0 {
		return decimal.Zero, decimal.Zero, domain.ErrNotFound
	}

	if bidStr, ok := vals["bid"]; ok {
		if parsed, perr := decimal.NewFromString(bidStr); perr == nil {
			bestBid = parsed
		}
	}
	if askStr, ok := vals["ask"]; ok {
		if parsed, perr := decimal.NewFromString(askStr); perr == nil {
			bestAsk = parsed
		}
	}
	return bestBid, bestAsk, nil
}

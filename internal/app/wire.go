package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	s3blob "github.com/halfmoonlabs/crossarb/internal/blob/s3"
	"github.com/halfmoonlabs/crossarb/internal/cache/redis"
	"github.com/halfmoonlabs/crossarb/internal/config"
	"github.com/halfmoonlabs/crossarb/internal/domain"
	"github.com/halfmoonlabs/crossarb/internal/executor"
	"github.com/halfmoonlabs/crossarb/internal/feed"
	"github.com/halfmoonlabs/crossarb/internal/fees"
	"github.com/halfmoonlabs/crossarb/internal/health"
	"github.com/halfmoonlabs/crossarb/internal/notify"
	"github.com/halfmoonlabs/crossarb/internal/platform/binance"
	"github.com/halfmoonlabs/crossarb/internal/profit"
	"github.com/halfmoonlabs/crossarb/internal/registry"
	"github.com/halfmoonlabs/crossarb/internal/risk"
	"github.com/halfmoonlabs/crossarb/internal/scanner"
	"github.com/halfmoonlabs/crossarb/internal/store/postgres"
	"github.com/halfmoonlabs/crossarb/internal/threshold"
	"github.com/halfmoonlabs/crossarb/internal/venue"
	"github.com/halfmoonlabs/crossarb/internal/venue/paper"
)

// Dependencies bundles everything the mode loops need to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Registry *registry.Registry
	Router   *venue.Router

	// RestClients are the real REST adapters, used by the pair refresher.
	// Empty when every venue is simulated.
	RestClients []*binance.Client

	BookCache   domain.BookCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	ExecutionStore domain.ExecutionStore
	AuditStore     domain.AuditStore
	Archiver       domain.Archiver

	Notifier  *notify.Notifier
	Health    *health.Monitor
	Threshold *threshold.Manager
	Fees      *fees.Manager

	Gate       *risk.Gate
	Scanner    *scanner.Scanner
	Triangular *scanner.TriangularScanner
	Executor   *executor.Engine
	Feed       *feed.MarketFeed

	// WatchSymbols is the full set of pairs the system cares about: the
	// configured watchlist plus every triangular path leg.
	WatchSymbols []domain.Symbol

	// TriangularCapital is the starting-currency notional each triangular
	// scan is sized against.
	TriangularCapital decimal.Decimal
}

// defaultPaperBalances seeds simulated venues with enough inventory to
// exercise both sides of every watchlist pair.
var defaultPaperBalances = map[string]decimal.Decimal{
	"USDT": decimal.NewFromInt(10_000),
	"USDC": decimal.NewFromInt(10_000),
	"BTC":  decimal.NewFromInt(1),
	"ETH":  decimal.NewFromInt(10),
	"SOL":  decimal.NewFromInt(100),
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// must be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	dp := &decParser{}
	deps := &Dependencies{
		Registry: registry.New(),
		Router:   venue.NewRouter(),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	execStore := postgres.NewExecutionStore(pgClient.Pool())
	auditStore := postgres.NewAuditStore(pgClient.Pool())
	deps.ExecutionStore = execStore
	deps.AuditStore = auditStore

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.BookCache = redis.NewBookCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- Watchlist ---
	watch, triPaths, err := watchlist(cfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: watchlist: %w", err)
	}
	deps.WatchSymbols = watch

	// --- Venues and the data feed ---
	paperMode := strings.EqualFold(cfg.Mode, "paper")
	var streams []feed.VenueStream
	for _, vc := range cfg.Venues {
		if vc.WsURL != "" {
			streams = append(streams, feed.VenueStream{
				Venue:   vc.Name,
				WsURL:   vc.WsURL,
				Symbols: watch,
			})
		}

		switch {
		case vc.Kind == "paper" || paperMode:
			deps.Router.Register(vc.Name, paper.NewVenue(paper.Config{
				Name:     vc.Name,
				FeeRate:  fees.DefaultTakerRate,
				Balances: defaultPaperBalances,
			}, deps.Registry, logger))
			// Real market data still flows; only orders are simulated. The
			// REST client is kept for pair and limit refreshes.
			if vc.Kind == "binance" {
				deps.RestClients = append(deps.RestClients, binance.NewClient(binance.ClientConfig{
					Name:      vc.Name,
					BaseURL:   vc.BaseURL,
					RateLimit: vc.RateLimit,
				}, deps.RateLimiter, logger))
			}
		case vc.Kind == "binance":
			client := binance.NewClient(binance.ClientConfig{
				Name:      vc.Name,
				BaseURL:   vc.BaseURL,
				ApiKey:    vc.ApiKey,
				ApiSecret: vc.ApiSecret,
				RateLimit: vc.RateLimit,
			}, deps.RateLimiter, logger)
			deps.Router.Register(vc.Name, client)
			deps.RestClients = append(deps.RestClients, client)
		default:
			cleanup()
			return nil, nil, fmt.Errorf("wire: venue %s: unknown kind %q", vc.Name, vc.Kind)
		}
	}
	deps.Feed = feed.NewMarketFeed(streams, deps.Registry, deps.BookCache, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Health, threshold, fees ---
	deps.Health = health.NewMonitor(health.Config{}, logger)
	deps.Threshold = threshold.NewManager(threshold.Config{
		BaselinePct:      dp.parse("threshold.baseline_pct", cfg.Threshold.BaselinePct),
		DegradedPct:      dp.parse("threshold.degraded_pct", cfg.Threshold.DegradedPct),
		CriticalPct:      dp.parse("threshold.critical_pct", cfg.Threshold.CriticalPct),
		JitterTriggerSec: cfg.Threshold.JitterTriggerSec,
		JitterWidenPct:   dp.parse("threshold.jitter_widen_pct", cfg.Threshold.JitterWidenPct),
		MinPct:           dp.parse("threshold.min_pct", cfg.Threshold.MinPct),
		MaxPct:           dp.parse("threshold.max_pct", cfg.Threshold.MaxPct),
	}, deps.Health, logger)
	deps.Fees = fees.NewManager(fees.Config{
		RefreshInterval: cfg.Fees.RefreshInterval.Duration,
		UseVenueToken:   cfg.Fees.UseVenueToken,
	}, deps.Router, logger)

	// --- Scanners ---
	minProfitFraction := dp.parse("risk.min_profit_pct", cfg.Risk.MinProfitPct).Div(decimal.NewFromInt(100))
	calc := profit.NewCalculator(minProfitFraction)

	deps.Scanner = scanner.NewScanner(scanner.Config{
		Venues:              deps.Router.Venues(),
		PairRefreshInterval: cfg.Scanner.PairRefreshInterval.Duration,
		MaxSlippage:         dp.parse("scanner.max_slippage", cfg.Scanner.MaxSlippage),
		MinNotional:         dp.parse("scanner.min_notional", cfg.Scanner.MinNotional),
		MaxTradeValue:       dp.parse("scanner.max_trade_value", cfg.Scanner.MaxTradeValue),
	}, deps.Registry, deps.Router, deps.Fees, deps.Registry, calc, deps.Threshold, logger)

	if cfg.Scanner.TriangularEnabled {
		deps.TriangularCapital = dp.parse("scanner.triangular_capital", cfg.Scanner.TriangularCapital)
		deps.Triangular = scanner.NewTriangularScanner(scanner.TriangularConfig{
			Paths:         triPaths,
			MaxSlippage:   dp.parse("scanner.max_slippage", cfg.Scanner.MaxSlippage),
			MinNotional:   dp.parse("scanner.min_notional", cfg.Scanner.MinNotional),
			MaxTradeValue: dp.parse("scanner.triangular_capital", cfg.Scanner.TriangularCapital),
		}, deps.Registry, deps.Fees, deps.Threshold, logger)
	}

	// --- Risk gate and executor ---
	deps.Gate = risk.NewGate(risk.Config{
		MinProfitPct:       dp.parse("risk.min_profit_pct", cfg.Risk.MinProfitPct),
		MaxPositionValue:   dp.parse("risk.max_position_value", cfg.Risk.MaxPositionValue),
		EmergencyLossFrac:  dp.parse("risk.emergency_loss_frac", cfg.Risk.EmergencyLossFrac),
		BreakEvenBufferPct: dp.parse("risk.break_even_buffer_pct", cfg.Risk.BreakEvenBufferPct),
	}, logger)

	deps.Executor = executor.NewEngine(executor.Config{
		SlippagePadPct:   dp.parse("executor.slippage_pad_pct", cfg.Executor.SlippagePadPct),
		FillTimeout:      cfg.Executor.FillTimeout.Duration,
		FillPollInterval: cfg.Executor.FillPollInterval.Duration,
		EmergencyPoll:    cfg.Executor.EmergencyPoll.Duration,
		EmergencyMaxWait: cfg.Executor.EmergencyMaxWait.Duration,
		UnwindPolicy:     executor.UnwindPolicy(cfg.Executor.UnwindPolicy),
		Venues:           deps.Router.Venues(),
	}, deps.Router, deps.Registry, deps.Registry, deps.Gate, deps.Notifier, logger)

	// --- S3 archiver ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			execStore, auditStore, logger,
		)
	}

	if dp.err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", dp.err)
	}
	return deps, cleanup, nil
}

// watchlist merges the configured symbol list with every triangular path
// leg, returning the deduplicated set plus the parsed paths.
func watchlist(cfg *config.Config) ([]domain.Symbol, []domain.TriangularPath, error) {
	seen := make(map[domain.Symbol]bool)
	var watch []domain.Symbol

	add := func(raw string) error {
		sym, err := domain.ParseSymbol(raw)
		if err != nil {
			return err
		}
		if !seen[sym] {
			seen[sym] = true
			watch = append(watch, sym)
		}
		return nil
	}

	for _, raw := range cfg.Scanner.Symbols {
		if err := add(raw); err != nil {
			return nil, nil, err
		}
	}

	var paths []domain.TriangularPath
	for _, raw := range cfg.Scanner.TriangularPaths {
		legs := strings.Split(raw, ">")
		if len(legs) != 3 {
			return nil, nil, fmt.Errorf("triangular path %q: want 3 legs", raw)
		}
		var path domain.TriangularPath
		for i, leg := range legs {
			sym, err := domain.ParseSymbol(strings.TrimSpace(leg))
			if err != nil {
				return nil, nil, err
			}
			path[i] = sym
			if err := add(string(sym)); err != nil {
				return nil, nil, err
			}
		}
		paths = append(paths, path)
	}

	return watch, paths, nil
}

// decParser collects the first decimal parse failure across many config
// fields so Wire can report it once.
type decParser struct {
	err error
}

func (p *decParser) parse(field, value string) decimal.Decimal {
	if value == "" {
		return decimal.Decimal{}
	}
	d, err := decimal.NewFromString(value)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %q is not a decimal", field, value)
	}
	return d
}

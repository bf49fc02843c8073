package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/halfmoonlabs/crossarb/internal/domain"
	"github.com/halfmoonlabs/crossarb/internal/notify"
)

const (
	// executionLockTTL bounds how long a symbol stays locked if the
	// process dies mid-trade.
	executionLockTTL = 2 * time.Minute

	// persistTimeout caps fire-and-forget store writes so a slow
	// database never stalls the scan cadence.
	persistTimeout = 5 * time.Second

	// archiveRetention is how far back hot storage keeps records before
	// the archiver moves them to the blob store.
	archiveRetention = 7 * 24 * time.Hour
)

// runLoops starts the market feed, the pair refresher, and the scan loops,
// then blocks until the context is cancelled or a loop fails. When execute
// is true, approved opportunities are handed to the execution engine;
// otherwise they are only logged and audited.
func (a *App) runLoops(ctx context.Context, deps *Dependencies, execute bool) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Feed.Run(ctx)
	})
	g.Go(func() error {
		return a.pairRefreshLoop(ctx, deps)
	})
	g.Go(func() error {
		return a.scanLoop(ctx, deps, execute)
	})
	if deps.Triangular != nil {
		g.Go(func() error {
			return a.triangularLoop(ctx, deps, execute)
		})
	}
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps)
		})
	}

	return g.Wait()
}

// pairRefreshLoop keeps the registry's pair lists and market limits in
// sync with each venue's REST API. Runs once at startup, then on the
// configured interval.
func (a *App) pairRefreshLoop(ctx context.Context, deps *Dependencies) error {
	a.refreshPairs(ctx, deps)

	ticker := time.NewTicker(a.cfg.Scanner.PairRefreshInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.refreshPairs(ctx, deps)
		}
	}
}

func (a *App) refreshPairs(ctx context.Context, deps *Dependencies) {
	watch := make(map[domain.Symbol]bool, len(deps.WatchSymbols))
	for _, sym := range deps.WatchSymbols {
		watch[sym] = true
	}

	for _, client := range deps.RestClients {
		name := client.Name()
		listed, err := client.ListPairs(ctx, name)
		if err != nil {
			deps.Health.RecordVenueError(name)
			a.logger.Warn("pair refresh failed",
				slog.String("venue", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		deps.Health.RecordVenueSuccess(name)

		var pairs []domain.Symbol
		for _, sym := range listed {
			if !watch[sym] {
				continue
			}
			pairs = append(pairs, sym)
			if limits, err := client.GetLimits(ctx, name, sym); err == nil {
				deps.Registry.SetLimits(name, sym, limits)
			}
		}
		deps.Registry.SetPairs(name, pairs)
		a.logger.Debug("pairs refreshed",
			slog.String("venue", name),
			slog.Int("tradable", len(pairs)),
		)
	}
}

// scanLoop runs one cross-exchange scan cycle per tick. Each cycle's audit
// is persisted and the cycle duration feeds the health monitor's jitter
// stats.
func (a *App) scanLoop(ctx context.Context, deps *Dependencies, execute bool) error {
	ticker := time.NewTicker(a.cfg.Scanner.Interval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			started := time.Now()
			a.scanCrossOnce(ctx, deps, execute)
			deps.Health.RecordCycle(time.Since(started))
		}
	}
}

// triangularLoop runs the per-venue triangular passes on their own cadence.
// Triangular paths depend on intra-venue books only, so they need not follow
// the cross-exchange interval.
func (a *App) triangularLoop(ctx context.Context, deps *Dependencies, execute bool) error {
	interval := a.cfg.Scanner.TriangularInterval.Duration
	if interval <= 0 {
		interval = a.cfg.Scanner.Interval.Duration
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.scanTriangularOnce(ctx, deps, execute)
		}
	}
}

func (a *App) scanCrossOnce(ctx context.Context, deps *Dependencies, execute bool) {
	opps, audit, err := deps.Scanner.ScanCrossExchange(ctx)
	if err != nil {
		a.logger.Warn("cross-exchange scan failed", slog.String("error", err.Error()))
	}
	a.persistAudit(ctx, deps, audit)
	if len(opps) > 0 {
		best := opps[0]
		a.logger.Info("opportunity found",
			slog.String("symbol", best.Symbol.String()),
			slog.String("buy_venue", best.BuyVenue),
			slog.String("sell_venue", best.SellVenue),
			slog.String("net_profit", best.NetProfit.String()),
			slog.String("net_profit_pct", best.NetProfitPct.String()),
		)
		if execute {
			a.executeCross(ctx, deps, best)
		}
	}
}

func (a *App) scanTriangularOnce(ctx context.Context, deps *Dependencies, execute bool) {
	for _, venue := range deps.Router.Venues() {
		triOpps, triAudit, err := deps.Triangular.Scan(ctx, venue, deps.TriangularCapital)
		if err != nil {
			a.logger.Warn("triangular scan failed",
				slog.String("venue", venue),
				slog.String("error", err.Error()),
			)
		}
		a.persistAudit(ctx, deps, triAudit)
		if len(triOpps) > 0 && execute {
			a.executeTriangular(ctx, deps, triOpps[0])
		}
	}
}

func (a *App) executeCross(ctx context.Context, deps *Dependencies, opp domain.Opportunity) {
	if ok, reason := deps.Gate.Approve(opp); !ok {
		a.logger.Info("opportunity rejected",
			slog.String("symbol", opp.Symbol.String()),
			slog.String("reason", string(reason)),
		)
		return
	}

	unlock, err := deps.LockManager.Acquire(ctx, "exec:"+opp.Symbol.String(), executionLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.Debug("symbol locked by another run", slog.String("symbol", opp.Symbol.String()))
		} else {
			a.logger.Warn("execution lock failed", slog.String("error", err.Error()))
		}
		return
	}
	defer unlock()

	res, err := deps.Executor.ExecuteCross(ctx, opp)
	if err != nil {
		a.logger.Error("execution aborted", slog.String("error", err.Error()))
	}
	a.finishExecution(ctx, deps, res)
}

func (a *App) executeTriangular(ctx context.Context, deps *Dependencies, opp domain.TriangularOpportunity) {
	unlock, err := deps.LockManager.Acquire(ctx, "exec:tri:"+opp.Venue, executionLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.Debug("venue locked by another triangular run", slog.String("venue", opp.Venue))
		} else {
			a.logger.Warn("execution lock failed", slog.String("error", err.Error()))
		}
		return
	}
	defer unlock()

	res, err := deps.Executor.ExecuteTriangular(ctx, opp)
	if err != nil {
		a.logger.Error("triangular execution aborted", slog.String("error", err.Error()))
	}
	a.finishExecution(ctx, deps, res)
}

// finishExecution persists the result and notifies on completed trades.
func (a *App) finishExecution(ctx context.Context, deps *Dependencies, res domain.ExecutionResult) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := deps.ExecutionStore.Create(pctx, res); err != nil {
		a.logger.Error("persist execution failed",
			slog.String("execution_id", res.ID),
			slog.String("error", err.Error()),
		)
	}

	if res.Success {
		_ = deps.Notifier.Notify(pctx, notify.EventTradeExecuted,
			"Trade executed",
			"profit "+res.RealizedNetProfit.String()+" in "+res.ExecutionTime().String(),
		)
		return
	}
	a.logger.Warn("execution unsuccessful",
		slog.String("execution_id", res.ID),
		slog.String("state", string(res.State)),
		slog.String("reason", res.FailureReason),
	)
}

func (a *App) persistAudit(ctx context.Context, deps *Dependencies, audit domain.ScanAudit) {
	if audit.CycleID == "" {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := deps.AuditStore.Create(pctx, audit); err != nil {
		a.logger.Debug("persist scan audit failed", slog.String("error", err.Error()))
	}
}

// archiveLoop periodically moves old executions and scan audits from
// PostgreSQL to the blob store.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.S3.UploadInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-archiveRetention)
			if n, err := deps.Archiver.ArchiveExecutions(ctx, cutoff); err != nil {
				a.logger.Warn("archive executions failed", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.Info("executions archived", slog.Int64("count", n))
			}
			if n, err := deps.Archiver.ArchiveScanAudits(ctx, cutoff); err != nil {
				a.logger.Warn("archive scan audits failed", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.Info("scan audits archived", slog.Int64("count", n))
			}
		}
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jchenlabs/marketdrive/internal/dataset"
	"github.com/jchenlabs/marketdrive/internal/domain"
	"github.com/jchenlabs/marketdrive/internal/notify"
	"github.com/jchenlabs/marketdrive/internal/server"
	"github.com/jchenlabs/marketdrive/internal/server/handler"
	"github.com/jchenlabs/marketdrive/internal/server/ws"
	"github.com/jchenlabs/marketdrive/internal/sim"
)

// sessionLockTTL bounds how long a crashed writer can block a run before the
// lock expires on its own.
const sessionLockTTL = 30 * time.Second

// newService loads the configured dataset and builds the simulation service
// over it.
func (a *App) newService(ctx context.Context, deps *Dependencies) (*sim.Service, error) {
	candles, err := dataset.Resolve(ctx, deps.BlobReader, a.cfg.Dataset.Key)
	if err != nil {
		return nil, fmt.Errorf("app: load dataset: %w", err)
	}
	a.logger.InfoContext(ctx, "dataset loaded",
		slog.String("key", a.cfg.Dataset.Key),
		slog.Int("candles", len(candles)),
	)

	engine, err := sim.NewEngine(candles, sim.Config{
		InitialCapital:         a.cfg.Simulation.InitialCapital,
		MaxLeverage:            a.cfg.Simulation.MaxLeverage,
		DefaultLeverage:        a.cfg.Simulation.DefaultLeverage,
		MaxHedges:              a.cfg.Simulation.MaxHedges,
		PlayerLevel:            a.cfg.Simulation.PlayerLevel,
		HedgeCostReduction:     a.cfg.Simulation.HedgeCostReduction,
		HedgeCooldownReduction: a.cfg.Simulation.HedgeCooldownReduction,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: build engine: %w", err)
	}

	return sim.NewService(engine, a.cfg.Dataset.Key, sim.Deps{
		Runs:      deps.RunStore,
		Journal:   deps.JournalStore,
		Ticks:     deps.TickStore,
		Snapshots: deps.SnapshotCache,
		Bus:       deps.SignalBus,
	}, a.logger), nil
}

// ServerMode runs the interactive session: WebSocket hub, HTTP API, optional
// auto-advance clock, and the notification watcher.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	svc, err := a.newService(ctx, deps)
	if err != nil {
		return err
	}

	run, err := svc.StartRun(ctx)
	if err != nil {
		return fmt.Errorf("app: start run: %w", err)
	}

	// Make this process the run's single writer.
	if deps.SessionLock != nil {
		release, lockErr := deps.SessionLock.Acquire(ctx, run.ID, sessionLockTTL)
		if lockErr != nil {
			return fmt.Errorf("app: acquire session lock: %w", lockErr)
		}
		a.closers = append(a.closers, release)
	}

	g, ctx := errgroup.WithContext(ctx)

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:       a.cfg.Mode,
			DatasetKey: a.cfg.Dataset.Key,
			StartedAt:  time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})

		watcher := notify.NewWatcher(deps.SignalBus, deps.Notifier, a.logger)
		g.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	if a.cfg.Dataset.AutoAdvance {
		g.Go(func() error {
			return a.runClock(ctx, svc)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc, hub)
	}

	return g.Wait()
}

// runClock advances the session on a fixed interval until the dataset is
// exhausted. The HTTP tick endpoint keeps working alongside it; the service
// serializes both.
func (a *App) runClock(ctx context.Context, svc *sim.Service) error {
	ticker := time.NewTicker(a.cfg.Dataset.TickInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := svc.Advance(ctx, 1); err != nil {
				if errors.Is(err, domain.ErrEndOfDataset) {
					a.logger.InfoContext(ctx, "auto-advance complete, dataset exhausted")
					return nil
				}
				a.logger.WarnContext(ctx, "auto-advance failed", slog.String("error", err.Error()))
			}
		}
	}
}

// startHTTPServer adds the HTTP server goroutine plus a shutdown watcher to
// the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *sim.Service, hub *ws.Hub) {
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Pingers, a.logger),
		Session:   handler.NewSessionHandler(svc, a.cfg.Simulation.SavePassword, a.logger),
		Positions: handler.NewPositionHandler(svc, a.logger),
		Hedges:    handler.NewHedgeHandler(svc, a.logger),
		Market:    handler.NewMarketHandler(svc, a.logger),
	}
	if deps.RunStore != nil && deps.JournalStore != nil {
		handlers.Runs = handler.NewRunHandler(deps.RunStore, deps.JournalStore, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		RateLimitRPS: a.cfg.Server.RateLimitRPS,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// BacktestMode replays the whole dataset without interaction and logs the
// final figures. Useful for validating datasets and engine changes.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting backtest mode")

	svc, err := a.newService(ctx, deps)
	if err != nil {
		return err
	}
	if _, err := svc.StartRun(ctx); err != nil {
		return fmt.Errorf("app: start run: %w", err)
	}

	const batch = 500
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := svc.Advance(ctx, batch); err != nil {
			if errors.Is(err, domain.ErrEndOfDataset) {
				break
			}
			return fmt.Errorf("app: backtest advance: %w", err)
		}
		if current, total := svc.Progress(); current+1 >= total {
			break
		}
	}

	state := svc.Snapshot()
	a.logger.InfoContext(ctx, "backtest complete",
		slog.Float64("final_equity", state.Equity),
		slog.Float64("accumulated_return_pct", state.AccumulatedReturnPct),
		slog.Float64("max_drawdown", state.MaxDrawdown),
		slog.Int("closed_positions", len(state.ClosedPositions)),
	)
	return nil
}

// ArchiveMode sweeps finished runs into object storage and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires postgres and s3")
	}

	n, err := deps.Archiver.ArchiveFinished(ctx)
	if err != nil {
		return fmt.Errorf("app: archive sweep: %w", err)
	}
	a.logger.InfoContext(ctx, "archive sweep complete", slog.Int("runs_archived", n))
	return nil
}

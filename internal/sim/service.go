package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	savefile "github.com/jchenlabs/marketdrive/internal/crypto"
	"github.com/jchenlabs/marketdrive/internal/domain"
	"github.com/jchenlabs/marketdrive/internal/hedge"
)

// Pub/sub channels the service emits on. The WebSocket hub bridges these to
// the rendering client.
const (
	ChannelTicks     = "ticks"
	ChannelPositions = "positions"
	ChannelHedges    = "hedges"
	ChannelStatus    = "status"

	tickStream = "stream:ticks"
)

// Deps are the infrastructure collaborators of the Service. Every field is
// optional: a nil store or bus simply disables that side effect, so the
// simulation plays identically with or without Postgres/Redis attached.
type Deps struct {
	Runs      domain.RunStore
	Journal   domain.JournalStore
	Ticks     domain.TickStore
	Snapshots domain.SnapshotCache
	Bus       domain.SignalBus
}

// Service wraps the engine with run persistence, snapshot caching, and event
// publication. It serializes all access to the engine: the core assumes
// single-writer command application, and this mutex is where that contract
// is enforced.
type Service struct {
	mu         sync.Mutex
	engine     *Engine
	datasetKey string
	run        *domain.Run
	journaled  int // closed positions already written to the journal
	deps       Deps
	logger     *slog.Logger
}

// NewService creates a Service around an engine replaying the given dataset.
func NewService(engine *Engine, datasetKey string, deps Deps, logger *slog.Logger) *Service {
	return &Service{
		engine:     engine,
		datasetKey: datasetKey,
		deps:       deps,
		logger:     logger.With(slog.String("component", "sim_service")),
	}
}

// StartRun resets the engine and opens a new recorded run.
func (s *Service) StartRun(ctx context.Context) (domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.engine.Reset()
	s.journaled = 0

	run := domain.Run{
		ID:             uuid.NewString(),
		DatasetKey:     s.datasetKey,
		InitialCapital: s.engine.cfg.InitialCapital,
		Status:         domain.RunStatusActive,
		StartedAt:      time.Now().UTC(),
	}
	if s.deps.Runs != nil {
		if err := s.deps.Runs.Create(ctx, run); err != nil {
			return domain.Run{}, fmt.Errorf("sim_service: create run: %w", err)
		}
	}
	s.run = &run

	s.publish(ctx, ChannelStatus, map[string]any{
		"event":       "run_started",
		"run_id":      run.ID,
		"dataset_key": run.DatasetKey,
		"capital":     run.InitialCapital,
	})
	s.logger.InfoContext(ctx, "sim_service: run started",
		slog.String("run_id", run.ID),
		slog.String("dataset", run.DatasetKey),
	)
	return run, nil
}

// Run returns the active run, if any.
func (s *Service) Run() (domain.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return domain.Run{}, false
	}
	return *s.run, true
}

// Advance processes up to n ticks and fans the produced records out to the
// tick store, the snapshot cache, and the bus. When the dataset is exhausted
// the run is finalized automatically.
func (s *Service) Advance(ctx context.Context, n int) ([]domain.BacktestTick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run == nil {
		return nil, domain.ErrNoSession
	}

	ticks, err := s.engine.Advance(n)
	if err != nil {
		return nil, err
	}

	if s.deps.Ticks != nil && len(ticks) > 0 {
		if storeErr := s.deps.Ticks.InsertBatch(ctx, s.run.ID, ticks); storeErr != nil {
			s.logger.WarnContext(ctx, "sim_service: persist ticks failed",
				slog.String("run_id", s.run.ID),
				slog.String("error", storeErr.Error()),
			)
		}
	}

	for _, t := range ticks {
		payload, _ := json.Marshal(t)
		if s.deps.Bus != nil {
			if pubErr := s.deps.Bus.Publish(ctx, ChannelTicks, payload); pubErr != nil {
				s.logger.WarnContext(ctx, "sim_service: publish tick failed",
					slog.Int("tick", t.Index),
					slog.String("error", pubErr.Error()),
				)
			}
			_ = s.deps.Bus.StreamAppend(ctx, tickStream, payload)
		}
	}

	for _, exp := range s.engine.DrainHedgeExpiries() {
		s.publish(ctx, ChannelHedges, map[string]any{
			"event":       "hedge_expired",
			"type":        string(exp.Type),
			"position_id": exp.PositionID,
			"was_useful":  exp.WasUseful,
		})
	}

	s.journalNewCloses(ctx)
	s.cacheSnapshot(ctx)

	if s.engine.Done() {
		if _, finErr := s.finishRunLocked(ctx); finErr != nil {
			s.logger.WarnContext(ctx, "sim_service: finish run failed",
				slog.String("error", finErr.Error()),
			)
		}
	}
	return ticks, nil
}

// OpenPosition opens a directional position and returns the new snapshot
// with the created position id ("" when the request was a no-op).
func (s *Service) OpenPosition(ctx context.Context, dir domain.Direction, sizeFraction, leverage float64) (domain.PortfolioState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	if dir == domain.DirectionShort {
		id = s.engine.OpenShort(sizeFraction, leverage)
	} else {
		id = s.engine.OpenLong(sizeFraction, leverage)
	}

	if id != "" {
		if pos, ok := s.engine.state.FindPosition(id); ok {
			s.publish(ctx, ChannelPositions, map[string]any{
				"event":       "position_opened",
				"position_id": pos.ID,
				"direction":   string(pos.Direction),
				"entry_price": pos.EntryPrice,
				"size":        pos.Size,
				"leverage":    pos.Leverage,
			})
		}
		s.cacheSnapshot(ctx)
	}
	return s.engine.Snapshot(), id
}

// ClosePosition closes one position by id; unknown ids are silent no-ops.
func (s *Service) ClosePosition(ctx context.Context, id string) (domain.PortfolioState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	closed := s.engine.ClosePositionByID(id)
	if closed {
		s.journalNewCloses(ctx)
		s.cacheSnapshot(ctx)
	}
	return s.engine.Snapshot(), closed
}

// CloseAll closes every open position at the current price.
func (s *Service) CloseAll(ctx context.Context) (domain.PortfolioState, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.engine.CloseAllPositions()
	if n > 0 {
		s.journalNewCloses(ctx)
		s.cacheSnapshot(ctx)
	}
	return s.engine.Snapshot(), n
}

// ActivateHedge attempts a hedge activation and publishes the outcome.
// Rejections are part of normal play and surface as structured results.
func (s *Service) ActivateHedge(ctx context.Context, t domain.HedgeType) (hedge.Result, domain.PortfolioState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.engine.ActivateHedge(t)
	if res.Activated {
		s.publish(ctx, ChannelHedges, map[string]any{
			"event":       "hedge_activated",
			"type":        string(res.Hedge.Type),
			"position_id": res.Hedge.PositionID,
			"hedge_size":  res.Hedge.HedgeSize,
			"cost_paid":   res.CostPaid,
			"duration":    res.Hedge.RemainingCandles,
		})
		s.cacheSnapshot(ctx)
	} else {
		s.publish(ctx, ChannelHedges, map[string]any{
			"event":   "hedge_rejected",
			"reason":  string(res.Reason),
			"message": res.Message,
		})
	}
	return res, s.engine.Snapshot()
}

// Snapshot returns the current portfolio state.
func (s *Service) Snapshot() domain.PortfolioState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot()
}

// Ticks returns in-memory tick records newer than sinceIndex.
func (s *Service) Ticks(sinceIndex int) []domain.BacktestTick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Ticks(sinceIndex)
}

// IndicatorsNow returns the indicator set at the current candle.
func (s *Service) IndicatorsNow() domain.IndicatorSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.CurrentIndicators()
}

// Progress reports the replay position: last processed index and dataset size.
func (s *Service) Progress() (current, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.CurrentIndex(), s.engine.CandleCount()
}

// FinishRun finalizes the active run regardless of replay position.
func (s *Service) FinishRun(ctx context.Context) (domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishRunLocked(ctx)
}

func (s *Service) finishRunLocked(ctx context.Context) (domain.Run, error) {
	if s.run == nil {
		return domain.Run{}, domain.ErrNoSession
	}
	state := s.engine.state

	now := time.Now().UTC()
	s.run.Status = domain.RunStatusFinished
	s.run.FinishedAt = &now
	s.run.FinalEquity = state.Equity
	s.run.TotalRealizedPnL = state.TotalRealizedPnL
	s.run.MaxDrawdown = state.MaxDrawdown
	s.run.TickCount = s.engine.cursor

	if s.deps.Runs != nil {
		if err := s.deps.Runs.Finish(ctx, s.run.ID, state.Equity, state.TotalRealizedPnL, state.MaxDrawdown, s.engine.cursor); err != nil {
			return *s.run, fmt.Errorf("sim_service: finish run: %w", err)
		}
	}

	s.publish(ctx, ChannelStatus, map[string]any{
		"event":        "run_finished",
		"run_id":       s.run.ID,
		"final_equity": state.Equity,
		"realized_pnl": state.TotalRealizedPnL,
		"max_drawdown": state.MaxDrawdown,
		"ticks":        s.engine.cursor,
	})
	s.logger.InfoContext(ctx, "sim_service: run finished",
		slog.String("run_id", s.run.ID),
		slog.Float64("final_equity", state.Equity),
		slog.Float64("max_drawdown", state.MaxDrawdown),
	)
	return *s.run, nil
}

// ExportSave serializes the session and encrypts it with the password.
func (s *Service) ExportSave(password string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(s.engine.Export(s.datasetKey))
	if err != nil {
		return nil, fmt.Errorf("sim_service: marshal save: %w", err)
	}
	blob, err := savefile.EncryptSave(payload, password)
	if err != nil {
		return nil, fmt.Errorf("sim_service: encrypt save: %w", err)
	}
	return blob, nil
}

// ImportSave decrypts and restores a previously exported session. The active
// run keeps recording against the restored state.
func (s *Service) ImportSave(ctx context.Context, blob []byte, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := savefile.DecryptSave(blob, password)
	if err != nil {
		return fmt.Errorf("sim_service: decrypt save: %w", err)
	}
	var save SaveState
	if err := json.Unmarshal(payload, &save); err != nil {
		return fmt.Errorf("sim_service: parse save: %w", err)
	}
	if err := s.engine.Restore(save); err != nil {
		return err
	}
	s.journaled = len(save.Portfolio.ClosedPositions)
	s.cacheSnapshot(ctx)
	return nil
}

// journalNewCloses persists closed positions appended since the last call.
func (s *Service) journalNewCloses(ctx context.Context) {
	if s.run == nil {
		s.journaled = len(s.engine.state.ClosedPositions)
		return
	}
	closedNow := s.engine.state.ClosedPositions
	for _, cp := range closedNow[s.journaled:] {
		if s.deps.Journal != nil {
			if err := s.deps.Journal.Insert(ctx, s.run.ID, cp); err != nil {
				s.logger.WarnContext(ctx, "sim_service: journal insert failed",
					slog.String("position_id", cp.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		s.publish(ctx, ChannelPositions, map[string]any{
			"event":        "position_closed",
			"position_id":  cp.ID,
			"exit_price":   cp.ExitPrice,
			"realized_pnl": cp.RealizedPnL,
			"is_hedge":     cp.IsHedge,
			"held_ticks":   cp.HoldingPeriod,
		})
	}
	s.journaled = len(closedNow)
}

func (s *Service) cacheSnapshot(ctx context.Context) {
	if s.deps.Snapshots == nil || s.run == nil {
		return
	}
	if err := s.deps.Snapshots.SetSnapshot(ctx, s.run.ID, s.engine.state, s.engine.CurrentIndex()); err != nil {
		s.logger.WarnContext(ctx, "sim_service: cache snapshot failed",
			slog.String("run_id", s.run.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) publish(ctx context.Context, channel string, event map[string]any) {
	if s.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if pubErr := s.deps.Bus.Publish(ctx, channel, payload); pubErr != nil {
		s.logger.WarnContext(ctx, "sim_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", pubErr.Error()),
		)
	}
}

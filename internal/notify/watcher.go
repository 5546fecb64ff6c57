package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jchenlabs/marketdrive/internal/domain"
)

// drawdownAlertThreshold is the max-drawdown fraction above which a finished
// run triggers a drawdown alert in addition to the summary.
const drawdownAlertThreshold = 0.25

// statusEvent mirrors the envelopes the simulation service publishes on the
// status channel.
type statusEvent struct {
	Event       string  `json:"event"`
	RunID       string  `json:"run_id"`
	DatasetKey  string  `json:"dataset_key"`
	Capital     float64 `json:"capital"`
	FinalEquity float64 `json:"final_equity"`
	RealizedPnL float64 `json:"realized_pnl"`
	MaxDrawdown float64 `json:"max_drawdown"`
	Ticks       int     `json:"ticks"`
}

// Watcher subscribes to the status channel and turns run lifecycle events
// into operator notifications.
type Watcher struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewWatcher creates a Watcher over the given bus and notifier.
func NewWatcher(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Watcher {
	return &Watcher{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_watcher")),
	}
}

// Run consumes status events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	msgs, err := w.bus.Subscribe(ctx, "status")
	if err != nil {
		return fmt.Errorf("notify: subscribe status: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgs:
			if !ok {
				return nil
			}
			w.handle(ctx, data)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, data []byte) {
	var ev statusEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		w.logger.WarnContext(ctx, "bad status event", slog.String("error", err.Error()))
		return
	}

	switch ev.Event {
	case "run_started":
		_ = w.notifier.Notify(ctx, "run_started", "Run started",
			fmt.Sprintf("Run %s on dataset %s with $%.2f starting capital.", ev.RunID, ev.DatasetKey, ev.Capital))

	case "run_finished":
		_ = w.notifier.Notify(ctx, "run_finished", "Run finished",
			fmt.Sprintf("Run %s finished after %d ticks. Final equity $%.2f, realized P&L $%.2f, max drawdown %.1f%%.",
				ev.RunID, ev.Ticks, ev.FinalEquity, ev.RealizedPnL, ev.MaxDrawdown*100))

		if ev.MaxDrawdown >= drawdownAlertThreshold {
			_ = w.notifier.Notify(ctx, "drawdown_alert", "Drawdown alert",
				fmt.Sprintf("Run %s hit %.1f%% max drawdown.", ev.RunID, ev.MaxDrawdown*100))
		}
	}
}

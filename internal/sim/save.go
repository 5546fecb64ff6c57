package sim

import (
	"fmt"

	"github.com/jchenlabs/marketdrive/internal/domain"
)

// SaveState is the exportable snapshot of a session: the portfolio aggregate
// plus the replay cursor. Tick records are not carried; they are rebuilt as
// play continues or fetched from the tick store.
type SaveState struct {
	Version    int                   `json:"version"`
	DatasetKey string                `json:"datasetKey"`
	Cursor     int                   `json:"cursor"`
	Portfolio  domain.PortfolioState `json:"portfolio"`
}

// saveVersion is the current SaveState schema version.
const saveVersion = 1

// Export captures the engine's current session for a save file.
func (e *Engine) Export(datasetKey string) SaveState {
	return SaveState{
		Version:    saveVersion,
		DatasetKey: datasetKey,
		Cursor:     e.cursor,
		Portfolio:  e.state.Clone(),
	}
}

// Restore rewinds the engine onto a previously exported session. The save
// must have been taken against a dataset of at least the same length.
func (e *Engine) Restore(s SaveState) error {
	if s.Version != saveVersion {
		return fmt.Errorf("sim: unsupported save version %d", s.Version)
	}
	if s.Cursor < 0 || s.Cursor > len(e.candles) {
		return fmt.Errorf("sim: save cursor %d out of range for %d candles", s.Cursor, len(e.candles))
	}
	e.state = s.Portfolio.Clone()
	e.cursor = s.Cursor
	e.ticks = e.ticks[:0]
	e.expired = nil
	return nil
}

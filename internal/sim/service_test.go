package sim

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchenlabs/marketdrive/internal/domain"
)

// ---------------------------------------------------------------------------
// In-memory fakes for the service's collaborators.
// ---------------------------------------------------------------------------

type fakeRunStore struct {
	created  []domain.Run
	finished []string
}

func (f *fakeRunStore) Create(_ context.Context, run domain.Run) error {
	f.created = append(f.created, run)
	return nil
}

func (f *fakeRunStore) Finish(_ context.Context, id string, _, _, _ float64, _ int) error {
	f.finished = append(f.finished, id)
	return nil
}

func (f *fakeRunStore) SetArchiveKey(context.Context, string, string) error { return nil }

func (f *fakeRunStore) GetByID(context.Context, string) (domain.Run, error) {
	return domain.Run{}, domain.ErrNotFound
}

func (f *fakeRunStore) List(context.Context, domain.ListOpts) ([]domain.Run, error) {
	return nil, nil
}

type fakeJournal struct {
	inserted []domain.ClosedPosition
}

func (f *fakeJournal) Insert(_ context.Context, _ string, cp domain.ClosedPosition) error {
	f.inserted = append(f.inserted, cp)
	return nil
}

func (f *fakeJournal) ListByRun(context.Context, string, domain.ListOpts) ([]domain.ClosedPosition, error) {
	return f.inserted, nil
}

type fakeTickStore struct {
	batches [][]domain.BacktestTick
}

func (f *fakeTickStore) InsertBatch(_ context.Context, _ string, ticks []domain.BacktestTick) error {
	f.batches = append(f.batches, ticks)
	return nil
}

func (f *fakeTickStore) ListByRun(context.Context, string, int, int) ([]domain.BacktestTick, error) {
	return nil, nil
}

type fakeSnapshots struct {
	lastTick int
	writes   int
}

func (f *fakeSnapshots) SetSnapshot(_ context.Context, _ string, _ domain.PortfolioState, tickIndex int) error {
	f.lastTick = tickIndex
	f.writes++
	return nil
}

func (f *fakeSnapshots) GetSnapshot(context.Context, string) (domain.PortfolioState, int, error) {
	return domain.PortfolioState{}, 0, domain.ErrNotFound
}

type busEvent struct {
	Channel string
	Payload []byte
}

type fakeBus struct {
	events  []busEvent
	streams []busEvent
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.events = append(f.events, busEvent{channel, payload})
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (f *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	f.streams = append(f.streams, busEvent{stream, payload})
	return nil
}

func (f *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (f *fakeBus) eventsOn(channel string) []map[string]any {
	var out []map[string]any
	for _, e := range f.events {
		if e.Channel != channel {
			continue
		}
		var m map[string]any
		if json.Unmarshal(e.Payload, &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

// ---------------------------------------------------------------------------

type serviceFixture struct {
	svc       *Service
	runs      *fakeRunStore
	journal   *fakeJournal
	ticks     *fakeTickStore
	snapshots *fakeSnapshots
	bus       *fakeBus
}

func newServiceFixture(t *testing.T, candles []domain.Candle) *serviceFixture {
	t.Helper()
	engine, err := NewEngine(candles, Config{InitialCapital: 10_000}, testLogger())
	require.NoError(t, err)

	f := &serviceFixture{
		runs:      &fakeRunStore{},
		journal:   &fakeJournal{},
		ticks:     &fakeTickStore{},
		snapshots: &fakeSnapshots{},
		bus:       &fakeBus{},
	}
	f.svc = NewService(engine, "data/test.json", Deps{
		Runs:      f.runs,
		Journal:   f.journal,
		Ticks:     f.ticks,
		Snapshots: f.snapshots,
		Bus:       f.bus,
	}, testLogger())
	return f
}

func TestServiceStartRunRecordsAndAnnounces(t *testing.T) {
	f := newServiceFixture(t, flatCandles(4))
	ctx := context.Background()

	run, err := f.svc.StartRun(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, domain.RunStatusActive, run.Status)
	assert.Equal(t, "data/test.json", run.DatasetKey)

	require.Len(t, f.runs.created, 1)
	assert.Equal(t, run.ID, f.runs.created[0].ID)

	events := f.bus.eventsOn(ChannelStatus)
	require.Len(t, events, 1)
	assert.Equal(t, "run_started", events[0]["event"])
	assert.Equal(t, run.ID, events[0]["run_id"])

	got, ok := f.svc.Run()
	require.True(t, ok)
	assert.Equal(t, run.ID, got.ID)
}

func TestServiceAdvanceRequiresSession(t *testing.T) {
	f := newServiceFixture(t, flatCandles(4))
	_, err := f.svc.Advance(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrNoSession)
}

func TestServiceAdvanceFansOutTicks(t *testing.T) {
	f := newServiceFixture(t, flatCandles(4))
	ctx := context.Background()
	_, err := f.svc.StartRun(ctx)
	require.NoError(t, err)

	ticks, err := f.svc.Advance(ctx, 2)
	require.NoError(t, err)
	require.Len(t, ticks, 2)

	require.Len(t, f.ticks.batches, 1)
	assert.Len(t, f.ticks.batches[0], 2)
	assert.Len(t, f.bus.eventsOn(ChannelTicks), 2)
	assert.Len(t, f.bus.streams, 2)

	assert.Equal(t, 1, f.snapshots.lastTick)

	current, total := f.svc.Progress()
	assert.Equal(t, 1, current)
	assert.Equal(t, 4, total)
}

func TestServiceAdvanceFinishesRunAtDatasetEnd(t *testing.T) {
	f := newServiceFixture(t, flatCandles(3))
	ctx := context.Background()
	run, err := f.svc.StartRun(ctx)
	require.NoError(t, err)

	_, err = f.svc.Advance(ctx, 10)
	require.NoError(t, err)

	require.Len(t, f.runs.finished, 1)
	assert.Equal(t, run.ID, f.runs.finished[0])

	events := f.bus.eventsOn(ChannelStatus)
	require.Len(t, events, 2)
	assert.Equal(t, "run_finished", events[1]["event"])
	assert.InDelta(t, 3, events[1]["ticks"].(float64), 1e-9)
}

func TestServiceOpenAndClosePublishAndJournal(t *testing.T) {
	f := newServiceFixture(t, flatCandles(6))
	ctx := context.Background()
	_, err := f.svc.StartRun(ctx)
	require.NoError(t, err)

	state, id := f.svc.OpenPosition(ctx, domain.DirectionLong, 0.5, 1)
	require.NotEmpty(t, id)
	require.Len(t, state.Positions, 1)

	opened := f.bus.eventsOn(ChannelPositions)
	require.Len(t, opened, 1)
	assert.Equal(t, "position_opened", opened[0]["event"])
	assert.Equal(t, id, opened[0]["position_id"])

	state, closed := f.svc.ClosePosition(ctx, id)
	assert.True(t, closed)
	assert.Empty(t, state.Positions)

	require.Len(t, f.journal.inserted, 1)
	assert.Equal(t, id, f.journal.inserted[0].ID)

	events := f.bus.eventsOn(ChannelPositions)
	require.Len(t, events, 2)
	assert.Equal(t, "position_closed", events[1]["event"])

	// Closing again is a no-op and journals nothing new.
	_, closed = f.svc.ClosePosition(ctx, id)
	assert.False(t, closed)
	assert.Len(t, f.journal.inserted, 1)
}

func TestServiceOpenNoOpPublishesNothing(t *testing.T) {
	f := newServiceFixture(t, flatCandles(4))
	ctx := context.Background()
	_, err := f.svc.StartRun(ctx)
	require.NoError(t, err)

	_, id := f.svc.OpenPosition(ctx, domain.DirectionLong, 0, 1)
	assert.Empty(t, id)
	assert.Empty(t, f.bus.eventsOn(ChannelPositions))
	assert.Equal(t, 0, f.snapshots.writes)
}

func TestServiceHedgeOutcomesArePublished(t *testing.T) {
	f := newServiceFixture(t, flatCandles(8))
	ctx := context.Background()
	_, err := f.svc.StartRun(ctx)
	require.NoError(t, err)

	// No position yet: rejection still goes out on the hedges channel.
	res, _ := f.svc.ActivateHedge(ctx, domain.HedgeBasic)
	assert.False(t, res.Activated)

	events := f.bus.eventsOn(ChannelHedges)
	require.Len(t, events, 1)
	assert.Equal(t, "hedge_rejected", events[0]["event"])
	assert.Equal(t, string(domain.HedgeRejectNoPosition), events[0]["reason"])

	_, id := f.svc.OpenPosition(ctx, domain.DirectionLong, 0.5, 1)
	require.NotEmpty(t, id)

	res, state := f.svc.ActivateHedge(ctx, domain.HedgeBasic)
	require.True(t, res.Activated)
	require.Len(t, state.Hedges.ActiveHedges, 1)

	events = f.bus.eventsOn(ChannelHedges)
	require.Len(t, events, 2)
	assert.Equal(t, "hedge_activated", events[1]["event"])

	// Replay past the hedge's five-candle life: expiry goes out on the bus.
	_, err = f.svc.Advance(ctx, 5)
	require.NoError(t, err)

	events = f.bus.eventsOn(ChannelHedges)
	require.Len(t, events, 3)
	assert.Equal(t, "hedge_expired", events[2]["event"])
	assert.Equal(t, "basic", events[2]["type"])
}

func TestServiceCloseAllJournalsEverything(t *testing.T) {
	f := newServiceFixture(t, flatCandles(6))
	ctx := context.Background()
	_, err := f.svc.StartRun(ctx)
	require.NoError(t, err)

	_, id1 := f.svc.OpenPosition(ctx, domain.DirectionLong, 0.3, 1)
	_, id2 := f.svc.OpenPosition(ctx, domain.DirectionShort, 0.4, 1)
	require.NotEmpty(t, id1)
	require.NotEmpty(t, id2)

	state, n := f.svc.CloseAll(ctx)
	assert.Equal(t, 2, n)
	assert.Empty(t, state.Positions)
	assert.Len(t, f.journal.inserted, 2)
}

func TestServiceSaveRoundTrip(t *testing.T) {
	f := newServiceFixture(t, flatCandles(6))
	ctx := context.Background()
	_, err := f.svc.StartRun(ctx)
	require.NoError(t, err)

	_, err = f.svc.Advance(ctx, 2)
	require.NoError(t, err)
	_, id := f.svc.OpenPosition(ctx, domain.DirectionLong, 0.5, 1)
	require.NotEmpty(t, id)

	blob, err := f.svc.ExportSave("pw")
	require.NoError(t, err)

	_, err = f.svc.Advance(ctx, 2)
	require.NoError(t, err)
	_, n := f.svc.CloseAll(ctx)
	require.Equal(t, 1, n)

	require.NoError(t, f.svc.ImportSave(ctx, blob, "pw"))

	current, _ := f.svc.Progress()
	assert.Equal(t, 1, current)
	state := f.svc.Snapshot()
	require.Len(t, state.Positions, 1)
	assert.Equal(t, id, state.Positions[0].ID)

	// Wrong password surfaces the save-file error.
	err = f.svc.ImportSave(ctx, blob, "nope")
	assert.ErrorIs(t, err, domain.ErrBadSaveFile)
}

func TestServiceImportResetsJournalWatermark(t *testing.T) {
	f := newServiceFixture(t, flatCandles(6))
	ctx := context.Background()
	_, err := f.svc.StartRun(ctx)
	require.NoError(t, err)

	_, id := f.svc.OpenPosition(ctx, domain.DirectionLong, 0.5, 1)
	require.NotEmpty(t, id)
	_, closed := f.svc.ClosePosition(ctx, id)
	require.True(t, closed)
	require.Len(t, f.journal.inserted, 1)

	blob, err := f.svc.ExportSave("pw")
	require.NoError(t, err)
	require.NoError(t, f.svc.ImportSave(ctx, blob, "pw"))

	// The restored state already carries the close; nothing is re-journaled.
	_, id2 := f.svc.OpenPosition(ctx, domain.DirectionLong, 0.2, 1)
	require.NotEmpty(t, id2)
	_, closed = f.svc.ClosePosition(ctx, id2)
	require.True(t, closed)
	assert.Len(t, f.journal.inserted, 2)
}

package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/marginguard"
	"github.com/mirrordesk/perp-mirror/internal/pricetracker"
	"github.com/mirrordesk/perp-mirror/internal/testutil"
	"github.com/mirrordesk/perp-mirror/pkg/types"
)

type fillerFixture struct {
	mir     *testutil.MirrorStub
	clock   *testutil.FakeClock
	records *Records
	stats   *Stats
	filler  *Filler
}

func newFillerFixture(t *testing.T) *fillerFixture {
	t.Helper()
	src := testutil.NewSourceStub()
	mir := testutil.NewMirrorStub()
	src.SetTicker(100000)
	mir.SetTicker(99900)

	prices := pricetracker.New(&pricetracker.Config{Source: src, Mirror: mir, Logger: zap.NewNop()})
	prices.Refresh(context.Background())

	clock := testutil.NewFakeClock()
	records := NewRecords()
	stats := NewStats()

	guard := marginguard.New(&marginguard.Config{
		Mirror:   mir,
		Clock:    clock,
		Contract: "BTC_USDT",
		Logger:   zap.NewNop(),
	})

	return &fillerFixture{
		mir:     mir,
		clock:   clock,
		records: records,
		stats:   stats,
		filler: NewFiller(&FillerConfig{
			Mirror:         mir,
			Guard:          guard,
			Prices:         prices,
			Clock:          clock,
			Notifier:       &testutil.NotifierStub{},
			Records:        records,
			Locks:          NewKeyedLocks(),
			Stats:          stats,
			MirrorContract: "BTC_USDT",
			Logger:         zap.NewNop(),
		}),
	}
}

func liveRecord(sourceID, mirrorID string, side types.Side, contracts int64) *Record {
	return &Record{
		SourceOrderID: sourceID,
		MirrorOrderID: mirrorID,
		Source: &types.TriggerOrder{
			OrderID: sourceID, Contract: "BTCUSDT", Side: side,
			TriggerPrice: 100000, Size: 0.1, Leverage: 10,
		},
		Contracts: contracts,
		CreatedAt: time.Now(),
	}
}

func TestExecute_CancelsTriggerThenMarketFills(t *testing.T) {
	f := newFillerFixture(t)
	require.NoError(t, f.records.Insert(liveRecord("s1", "m1", types.SideOpenLong, 100)))

	require.NoError(t, f.filler.Execute(context.Background(), "s1"))

	assert.Equal(t, []string{"m1"}, f.mir.CanceledIDs)
	require.Len(t, f.mir.MarketOrders, 1)
	assert.Equal(t, 100.0, f.mir.MarketOrders[0].Size)
	assert.False(t, f.mir.MarketOrders[0].ReduceOnly)

	_, ok := f.records.BySource("s1")
	assert.False(t, ok)
	assert.Equal(t, int64(1), f.stats.Snapshot().ImmediateFills)
}

func TestExecute_ShortOpenSellsNegative(t *testing.T) {
	f := newFillerFixture(t)
	require.NoError(t, f.records.Insert(liveRecord("s1", "m1", types.SideOpenShort, 40)))

	require.NoError(t, f.filler.Execute(context.Background(), "s1"))

	require.Len(t, f.mir.MarketOrders, 1)
	assert.Equal(t, -40.0, f.mir.MarketOrders[0].Size)
}

func TestExecute_UnknownSourceIsNoop(t *testing.T) {
	f := newFillerFixture(t)
	require.NoError(t, f.filler.Execute(context.Background(), "ghost"))
	assert.Empty(t, f.mir.MarketOrders)
}

func TestExecute_ReduceOnlyClampedToPosition(t *testing.T) {
	f := newFillerFixture(t)
	f.mir.Positions = []*types.Position{{
		Contract: "BTC_USDT", Direction: types.DirectionLong, Size: 30, Leverage: 10,
	}}
	require.NoError(t, f.records.Insert(liveRecord("s1", "m1", types.SideCloseLong, 100)))

	require.NoError(t, f.filler.Execute(context.Background(), "s1"))

	require.Len(t, f.mir.MarketOrders, 1)
	assert.Equal(t, -30.0, f.mir.MarketOrders[0].Size)
	assert.True(t, f.mir.MarketOrders[0].ReduceOnly)
}

func TestExecute_ReduceOnlyWithNoPositionIsNoop(t *testing.T) {
	f := newFillerFixture(t)
	require.NoError(t, f.records.Insert(liveRecord("s1", "m1", types.SideCloseLong, 100)))

	require.NoError(t, f.filler.Execute(context.Background(), "s1"))

	assert.Empty(t, f.mir.MarketOrders)
	_, ok := f.records.BySource("s1")
	assert.False(t, ok)
}

func TestExecute_RetriesWithBackoffThenBackupTrigger(t *testing.T) {
	f := newFillerFixture(t)
	f.mir.MarketErr = errors.New("venue rejects market orders")
	require.NoError(t, f.records.Insert(liveRecord("s1", "m1", types.SideOpenLong, 100)))

	require.NoError(t, f.filler.Execute(context.Background(), "s1"))

	// Two 2s back-offs between three market attempts.
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, f.clock.Sleeps)

	// Buy intent: backup trigger sits above the mirror price so it fires
	// immediately.
	require.Len(t, f.mir.PlacedTriggers, 1)
	assert.Equal(t, 99950.0, f.mir.PlacedTriggers[0].TriggerPrice)
	assert.Equal(t, int64(1), f.stats.Snapshot().BackupFills)

	_, ok := f.records.BySource("s1")
	assert.False(t, ok)
}

func TestExecute_AllStagesFailKeepsRecord(t *testing.T) {
	f := newFillerFixture(t)
	f.mir.MarketErr = errors.New("venue rejects market orders")
	f.mir.PlaceErr = errors.New("venue rejects triggers")
	require.NoError(t, f.records.Insert(liveRecord("s1", "m1", types.SideOpenLong, 100)))

	err := f.filler.Execute(context.Background(), "s1")
	require.Error(t, err)

	// The record survives so the fill queue retries next drain.
	_, ok := f.records.BySource("s1")
	assert.True(t, ok)
	assert.Equal(t, int64(1), f.stats.Snapshot().ImmediateFillFailures)
}

func TestExecute_CoalescesConcurrentHandoffs(t *testing.T) {
	f := newFillerFixture(t)
	require.NoError(t, f.records.Insert(liveRecord("s1", "m1", types.SideOpenLong, 100)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.filler.Execute(context.Background(), "s1")
		}()
	}
	wg.Wait()

	// One cancel, one market order: duplicates were coalesced or saw the
	// record already gone.
	assert.Len(t, f.mir.CanceledIDs, 1)
	assert.Len(t, f.mir.MarketOrders, 1)
}

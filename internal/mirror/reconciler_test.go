package mirror

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/marginguard"
	"github.com/mirrordesk/perp-mirror/internal/testutil"
	"github.com/mirrordesk/perp-mirror/pkg/types"
)

type reconcilerFixture struct {
	src        *testutil.SourceStub
	mir        *testutil.MirrorStub
	notifier   *testutil.NotifierStub
	stats      *Stats
	reconciler *Reconciler
}

func newReconcilerFixture(t *testing.T, startup *StartupSet) *reconcilerFixture {
	t.Helper()
	src := testutil.NewSourceStub()
	mir := testutil.NewMirrorStub()
	notifier := &testutil.NotifierStub{}
	stats := NewStats()

	guard := marginguard.New(&marginguard.Config{
		Mirror:   mir,
		Clock:    testutil.NewFakeClock(),
		Contract: "BTC_USDT",
		Logger:   zap.NewNop(),
	})

	return &reconcilerFixture{
		src:      src,
		mir:      mir,
		notifier: notifier,
		stats:    stats,
		reconciler: NewReconciler(&ReconcilerConfig{
			Source:         src,
			Mirror:         mir,
			Guard:          guard,
			Notifier:       notifier,
			Startup:        startup,
			Stats:          stats,
			SourceContract: "BTCUSDT",
			MirrorContract: "BTC_USDT",
			Logger:         zap.NewNop(),
		}),
	}
}

func position(dir types.Direction, size float64) *types.Position {
	return &types.Position{Contract: "BTC_USDT", Direction: dir, Size: size, Leverage: 10, EntryPrice: 100000}
}

func TestSync_ClosesOrphanMirrorPosition(t *testing.T) {
	f := newReconcilerFixture(t, EmptyStartupSet())
	f.mir.Positions = []*types.Position{position(types.DirectionLong, 50)}
	// Source flat.

	require.NoError(t, f.reconciler.Sync(context.Background()))

	assert.Equal(t, 1, f.mir.CloseCalls)
	assert.Equal(t, int64(1), f.stats.Snapshot().ReconcilerCloses)
}

func TestSync_ClosesDirectionMismatch(t *testing.T) {
	f := newReconcilerFixture(t, EmptyStartupSet())
	f.src.Positions = []*types.Position{position(types.DirectionShort, 1)}
	f.mir.Positions = []*types.Position{position(types.DirectionLong, 50)}

	require.NoError(t, f.reconciler.Sync(context.Background()))

	assert.Equal(t, 1, f.mir.CloseCalls)
	// An inverted position goes out on the bypass channel; plain orphans
	// use the rate-limited one.
	assert.Equal(t, 1, f.notifier.CountCategory("critical:reconciler"))
}

func TestSync_MatchingDirectionsUntouched(t *testing.T) {
	f := newReconcilerFixture(t, EmptyStartupSet())
	f.src.Positions = []*types.Position{position(types.DirectionLong, 1)}
	f.mir.Positions = []*types.Position{position(types.DirectionLong, 50)}

	require.NoError(t, f.reconciler.Sync(context.Background()))

	assert.Equal(t, 0, f.mir.CloseCalls)
}

func TestSync_StartupPositionsExempt(t *testing.T) {
	startup := NewStartupSet(&StartupInputs{
		MirrorPositions: []*types.Position{position(types.DirectionLong, 50)},
	})
	f := newReconcilerFixture(t, startup)
	f.mir.Positions = []*types.Position{position(types.DirectionLong, 50)}

	require.NoError(t, f.reconciler.Sync(context.Background()))

	assert.Equal(t, 0, f.mir.CloseCalls)
}

func TestSync_NeverOpensPositions(t *testing.T) {
	f := newReconcilerFixture(t, EmptyStartupSet())
	f.src.Positions = []*types.Position{position(types.DirectionLong, 1)}
	// Mirror flat: nothing to do, and in particular no placement.

	require.NoError(t, f.reconciler.Sync(context.Background()))

	assert.Equal(t, 0, f.mir.CloseCalls)
	assert.Empty(t, f.mir.PlacedTriggers)
	assert.Empty(t, f.mir.MarketOrders)
}

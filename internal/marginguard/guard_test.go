package marginguard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/testutil"
	"github.com/mirrordesk/perp-mirror/pkg/types"
)

func newGuard(mirror *testutil.MirrorStub, notifier *testutil.NotifierStub) *Guard {
	return New(&Config{
		Mirror:   mirror,
		Notifier: notifier,
		Clock:    testutil.NewFakeClock(),
		Contract: "BTC_USDT",
		Leverage: 10,
		Logger:   zap.NewNop(),
	})
}

func TestEnsure_AlreadyCross(t *testing.T) {
	mirror := testutil.NewMirrorStub()
	g := newGuard(mirror, &testutil.NotifierStub{})

	assert.True(t, g.Ensure(context.Background()))
	assert.Equal(t, 0, mirror.ForceCrossCalls)
	assert.Equal(t, 0, g.Failures())
}

func TestEnsure_CoercesIsolated(t *testing.T) {
	mirror := testutil.NewMirrorStub()
	mirror.SetMarginMode(types.MarginModeIsolated)
	g := newGuard(mirror, &testutil.NotifierStub{})

	assert.True(t, g.Ensure(context.Background()))
	assert.GreaterOrEqual(t, mirror.ForceCrossCalls, 1)

	mode, at := g.LastMode()
	assert.Equal(t, types.MarginModeCross, mode)
	assert.False(t, at.IsZero())
}

func TestEnsure_AllStagesFail(t *testing.T) {
	mirror := testutil.NewMirrorStub()
	mirror.SetMarginMode(types.MarginModeIsolated)
	mirror.ForceCrossErr = errors.New("venue rejects")
	mirror.LeverageErr = errors.New("venue rejects")
	g := newGuard(mirror, &testutil.NotifierStub{})

	assert.False(t, g.Ensure(context.Background()))
	assert.Equal(t, 1, g.Failures())
}

func TestEnsure_NotifiesOnceAfterThreeFailures(t *testing.T) {
	mirror := testutil.NewMirrorStub()
	mirror.MarginModeErr = errors.New("unreachable")
	notifier := &testutil.NotifierStub{}
	g := newGuard(mirror, notifier)

	for i := 0; i < 5; i++ {
		assert.False(t, g.Ensure(context.Background()))
	}

	assert.Equal(t, 5, g.Failures())
	assert.Equal(t, 1, notifier.CountCategory("margin_mode"))
}

type failureCountStub struct{ failures int }

func (s *failureCountStub) MarginModeFailure() { s.failures++ }

func TestEnsure_FailuresReachEngineCounters(t *testing.T) {
	mirror := testutil.NewMirrorStub()
	mirror.MarginModeErr = errors.New("unreachable")
	stats := &failureCountStub{}
	g := New(&Config{
		Mirror:   mirror,
		Notifier: &testutil.NotifierStub{},
		Clock:    testutil.NewFakeClock(),
		Stats:    stats,
		Contract: "BTC_USDT",
		Leverage: 10,
		Logger:   zap.NewNop(),
	})

	g.Ensure(context.Background())
	g.Ensure(context.Background())
	assert.Equal(t, 2, stats.failures)

	// The engine counter is cumulative; recovery does not rewind it.
	mirror.MarginModeErr = nil
	assert.True(t, g.Ensure(context.Background()))
	assert.Equal(t, 2, stats.failures)
}

func TestEnsure_SuccessResetsFailureCountAndNotifyLatch(t *testing.T) {
	mirror := testutil.NewMirrorStub()
	mirror.MarginModeErr = errors.New("unreachable")
	notifier := &testutil.NotifierStub{}
	g := newGuard(mirror, notifier)

	for i := 0; i < 3; i++ {
		g.Ensure(context.Background())
	}
	assert.Equal(t, 1, notifier.CountCategory("margin_mode"))

	mirror.MarginModeErr = nil
	assert.True(t, g.Ensure(context.Background()))
	assert.Equal(t, 0, g.Failures())

	// The latch re-arms after a recovery.
	mirror.MarginModeErr = errors.New("unreachable")
	for i := 0; i < 3; i++ {
		g.Ensure(context.Background())
	}
	assert.Equal(t, 2, notifier.CountCategory("margin_mode"))
}

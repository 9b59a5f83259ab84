package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/pricetracker"
	"github.com/mirrordesk/perp-mirror/internal/testutil"
	"github.com/mirrordesk/perp-mirror/pkg/types"
)

type fixture struct {
	src      *testutil.SourceStub
	mir      *testutil.MirrorStub
	recently *testutil.MemorySet
	analyzer *Analyzer
}

func newFixture(t *testing.T, srcPrice, mirPrice float64) *fixture {
	t.Helper()
	src := testutil.NewSourceStub()
	mir := testutil.NewMirrorStub()
	src.SetTicker(srcPrice)
	mir.SetTicker(mirPrice)

	prices := pricetracker.New(&pricetracker.Config{Source: src, Mirror: mir, Logger: zap.NewNop()})
	prices.Refresh(context.Background())

	recently := testutil.NewMemorySet()
	return &fixture{
		src:      src,
		mir:      mir,
		recently: recently,
		analyzer: New(&Config{
			Source:         src,
			Prices:         prices,
			RecentlyFilled: recently,
			Contract:       "BTCUSDT",
			CloseThreshold: 200,
			Logger:         zap.NewNop(),
		}),
	}
}

func longOpen(id string, trigger float64) *types.TriggerOrder {
	return &types.TriggerOrder{
		OrderID: id, Contract: "BTCUSDT", Side: types.SideOpenLong,
		TriggerPrice: trigger, Size: 1, Leverage: 10,
	}
}

func TestAnalyze_DecisionTable_LongOpen(t *testing.T) {
	cases := []struct {
		name     string
		srcPrice float64
		mirPrice float64
		trigger  float64
		want     Decision
	}{
		// long_open reached means price <= trigger
		{"src reached mir not: filled", 99900, 100100, 100000, DecisionFilled},
		{"neither reached: canceled", 100500, 100400, 100000, DecisionCanceled},
		{"mir reached src not: uncertain", 100050, 99900, 99950, DecisionUncertain},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.srcPrice, tc.mirPrice)
			res := f.analyzer.Analyze(context.Background(), longOpen("o1", tc.trigger))
			assert.Equal(t, tc.want, res.Decision)
		})
	}
}

func TestAnalyze_BothReached_RecentFillsDecide(t *testing.T) {
	f := newFixture(t, 99900, 99800)
	order := longOpen("o1", 100000)

	// Not in recent fills: traditional case resolves to canceled.
	res := f.analyzer.Analyze(context.Background(), order)
	assert.Equal(t, DecisionCanceled, res.Decision)

	// Present in recent fills: filled, and the evidence is cached.
	f.src.Filled = []*types.FilledOrder{{OrderID: "o1", Contract: "BTCUSDT", Price: 100000, Size: 1}}
	res = f.analyzer.Analyze(context.Background(), order)
	assert.Equal(t, DecisionFilled, res.Decision)
	assert.True(t, res.FromRecent)
	assert.True(t, f.recently.Has("o1"))
}

func TestAnalyze_BothReached_LookupFailureWaits(t *testing.T) {
	f := newFixture(t, 99900, 99800)
	f.src.FilledErr = errors.New("source api down")

	// With the fill history unreachable the both-reached case cannot be
	// resolved either way; the order parks until the next tick.
	res := f.analyzer.Analyze(context.Background(), longOpen("o1", 100000))
	assert.Equal(t, DecisionUncertain, res.Decision)
}

func TestAnalyze_ShortOpenSemantics(t *testing.T) {
	f := newFixture(t, 100100, 99800)
	order := &types.TriggerOrder{
		OrderID: "s1", Contract: "BTCUSDT", Side: types.SideOpenShort,
		TriggerPrice: 100000, Size: 1, Leverage: 10,
	}

	// short_open reached means price >= trigger: src yes, mir no.
	res := f.analyzer.Analyze(context.Background(), order)
	assert.Equal(t, DecisionFilled, res.Decision)
	assert.True(t, res.SourceReached)
	assert.False(t, res.MirrorReached)
}

func TestAnalyze_CloseUsesThresholdBand(t *testing.T) {
	f := newFixture(t, 100150, 99000)
	order := &types.TriggerOrder{
		OrderID: "c1", Contract: "BTCUSDT", Side: types.SideCloseLong,
		TriggerPrice: 100000, Size: 1, Leverage: 10,
	}

	// |100150-100000| = 150 <= 200 so the source reached it; the mirror
	// at 99000 is 1000 away and did not.
	res := f.analyzer.Analyze(context.Background(), order)
	assert.Equal(t, DecisionFilled, res.Decision)
}

func TestAnalyze_RecentlyFilledCacheForcesFilled(t *testing.T) {
	// Prices alone would say canceled.
	f := newFixture(t, 100500, 100400)
	f.recently.Add("o1")

	res := f.analyzer.Analyze(context.Background(), longOpen("o1", 100000))
	assert.Equal(t, DecisionFilled, res.Decision)
	assert.True(t, res.FromRecent)
}

func TestAnalyze_DivergenceEscalates(t *testing.T) {
	// Diff 450 > 2*200; decision filled.
	f := newFixture(t, 99900, 100350)
	res := f.analyzer.Analyze(context.Background(), longOpen("o1", 100000))
	assert.Equal(t, DecisionFilled, res.Decision)
	assert.True(t, res.Escalate)
}

func TestAnalyze_NoValidPricesIsUncertain(t *testing.T) {
	src := testutil.NewSourceStub()
	mir := testutil.NewMirrorStub()
	prices := pricetracker.New(&pricetracker.Config{Source: src, Mirror: mir, Logger: zap.NewNop()})
	a := New(&Config{
		Source:         src,
		Prices:         prices,
		RecentlyFilled: testutil.NewMemorySet(),
		Contract:       "BTCUSDT",
		CloseThreshold: 200,
		Logger:         zap.NewNop(),
	})

	res := a.Analyze(context.Background(), longOpen("o1", 100000))
	assert.Equal(t, DecisionUncertain, res.Decision)
}

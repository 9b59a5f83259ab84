package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newController(onEnable func()) *Controller {
	return New(&Config{
		EnabledDefault: false,
		RatioDefault:   1.0,
		Logger:         zap.NewNop(),
		OnEnable:       onEnable,
	})
}

func TestSetRatio_ClampsToBounds(t *testing.T) {
	c := newController(nil)

	got, err := c.SetRatio(0.01, "test")
	require.NoError(t, err)
	assert.Equal(t, 0.1, got)

	got, err = c.SetRatio(50, "test")
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)

	got, err = c.SetRatio(2.5, "test")
	require.NoError(t, err)
	assert.Equal(t, 2.5, got)
	assert.Equal(t, 2.5, c.Ratio())
}

func TestSetRatio_RejectsInvalid(t *testing.T) {
	c := newController(nil)

	_, err := c.SetRatio(-1, "test")
	assert.Error(t, err)
	_, err = c.SetRatio(0, "test")
	assert.Error(t, err)
	assert.Equal(t, 1.0, c.Ratio())
}

func TestSetRatio_Audit(t *testing.T) {
	c := newController(nil)

	_, err := c.SetRatio(2.0, "alice")
	require.NoError(t, err)

	log := c.AuditLog()
	require.Len(t, log, 1)
	assert.Equal(t, 1.0, log[0].Old)
	assert.Equal(t, 2.0, log[0].New)
	assert.Equal(t, "alice", log[0].By)
	assert.InDelta(t, 100.0, log[0].DeltaPct, 1e-9)
	assert.False(t, log[0].At.IsZero())
}

func TestSetRatio_AuditRetentionCap(t *testing.T) {
	c := newController(nil)
	for i := 0; i < auditRetention+20; i++ {
		_, err := c.SetRatio(1.0+float64(i%5)*0.1, "test")
		require.NoError(t, err)
	}
	assert.Len(t, c.AuditLog(), auditRetention)
}

func TestSetEnabled_OffToOnRunsHook(t *testing.T) {
	calls := 0
	c := newController(func() { calls++ })

	c.SetEnabled(true, "test")
	assert.True(t, c.Enabled())
	assert.Equal(t, 1, calls)

	// on -> on is not a transition
	c.SetEnabled(true, "test")
	assert.Equal(t, 1, calls)

	c.SetEnabled(false, "test")
	c.SetEnabled(true, "test")
	assert.Equal(t, 2, calls)
}

func TestNew_BadDefaultRatioFallsBackToOne(t *testing.T) {
	c := New(&Config{RatioDefault: 99, Logger: zap.NewNop()})
	assert.Equal(t, 1.0, c.Ratio())
}

// Package controller holds the two operator-mutable knobs: the mirror
// enable flag and the margin-ratio multiplier. Writes are validated and
// audited; reads are cheap enough for the hot reconciliation path.
package controller

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/pkg/config"
)

// auditRetention caps how many ratio changes are kept in memory.
const auditRetention = 100

// RatioChange is one audit entry for a ratio update.
type RatioChange struct {
	Old      float64   `json:"old"`
	New      float64   `json:"new"`
	By       string    `json:"by"`
	At       time.Time `json:"at"`
	DeltaPct float64   `json:"delta_pct"`
}

type Config struct {
	EnabledDefault bool
	RatioDefault   float64
	Logger         *zap.Logger

	// OnEnable runs on every off-to-on transition. It must be idempotent;
	// the controller calls it outside its own lock.
	OnEnable func()
}

type Controller struct {
	logger   *zap.Logger
	onEnable func()

	mu      sync.RWMutex
	enabled bool
	ratio   float64
	audit   []RatioChange
}

func New(cfg *Config) *Controller {
	ratio := cfg.RatioDefault
	if ratio < config.RatioMin || ratio > config.RatioMax {
		ratio = 1.0
	}
	return &Controller{
		logger:   cfg.Logger.Named("controller"),
		onEnable: cfg.OnEnable,
		enabled:  cfg.EnabledDefault,
		ratio:    ratio,
	}
}

// Enabled reports whether mirroring is active. Reconciliation loops
// short-circuit when it returns false.
func (c *Controller) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// Ratio returns the current multiplier.
func (c *Controller) Ratio() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ratio
}

// SetEnabled flips the mirror flag. An off-to-on transition triggers the
// re-initialization hook.
func (c *Controller) SetEnabled(enabled bool, by string) {
	c.mu.Lock()
	transition := enabled && !c.enabled
	c.enabled = enabled
	c.mu.Unlock()

	enabledGauge.Set(boolToGauge(enabled))
	c.logger.Info("mirror-enabled-changed",
		zap.Bool("enabled", enabled),
		zap.String("by", by))

	if transition && c.onEnable != nil {
		c.onEnable()
	}
}

// SetRatio validates, clamps, and applies a new multiplier. The change
// affects the next placement only; live mirrors keep their sizing.
func (c *Controller) SetRatio(ratio float64, by string) (float64, error) {
	if ratio != ratio || ratio <= 0 {
		return 0, fmt.Errorf("invalid ratio %v", ratio)
	}
	clamped := ratio
	if clamped < config.RatioMin {
		clamped = config.RatioMin
	}
	if clamped > config.RatioMax {
		clamped = config.RatioMax
	}

	c.mu.Lock()
	old := c.ratio
	c.ratio = clamped
	change := RatioChange{
		Old: old,
		New: clamped,
		By:  by,
		At:  time.Now(),
	}
	if old != 0 {
		change.DeltaPct = (clamped - old) / old * 100
	}
	c.audit = append(c.audit, change)
	if len(c.audit) > auditRetention {
		c.audit = c.audit[len(c.audit)-auditRetention:]
	}
	c.mu.Unlock()

	ratioGauge.Set(clamped)
	ratioChangesTotal.Inc()
	c.logger.Info("ratio-changed",
		zap.Float64("old", old),
		zap.Float64("new", clamped),
		zap.String("by", by))
	return clamped, nil
}

// AuditLog returns a copy of the retained ratio changes, oldest first.
func (c *Controller) AuditLog() []RatioChange {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]RatioChange, len(c.audit))
	copy(out, c.audit)
	return out
}

func boolToGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

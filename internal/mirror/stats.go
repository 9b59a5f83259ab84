package mirror

import (
	"sync"
	"time"
)

// Stats are the process-wide reconciliation counters. Components mutate
// them under the internal lock; the operator surface reads snapshots.
type Stats struct {
	mu sync.Mutex

	successfulMirrors     int64
	failedMirrors         int64
	permissiveCloses      int64
	immediateFills        int64
	immediateFillFailures int64
	backupFills           int64
	cancels               int64
	cancelFailures        int64
	forcedCancelCleanups  int64
	reconcilerCloses      int64
	marginModeFailures    int64

	lastError   string
	lastErrorAt time.Time
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	SuccessfulMirrors     int64     `json:"successful_mirrors"`
	FailedMirrors         int64     `json:"failed_mirrors"`
	PermissiveCloses      int64     `json:"permissive_closes"`
	ImmediateFills        int64     `json:"immediate_fills"`
	ImmediateFillFailures int64     `json:"immediate_fill_failures"`
	BackupFills           int64     `json:"backup_fills"`
	Cancels               int64     `json:"cancels"`
	CancelFailures        int64     `json:"cancel_failures"`
	ForcedCancelCleanups  int64     `json:"forced_cancel_cleanups"`
	ReconcilerCloses      int64     `json:"reconciler_closes"`
	MarginModeFailures    int64     `json:"margin_mode_failures"`
	LastError             string    `json:"last_error,omitempty"`
	LastErrorAt           time.Time `json:"last_error_at,omitempty"`
}

func NewStats() *Stats { return &Stats{} }

func (s *Stats) MirrorPlaced() { s.inc(&s.successfulMirrors) }

func (s *Stats) MirrorFailed(err error) {
	s.mu.Lock()
	s.failedMirrors++
	if err != nil {
		s.lastError = err.Error()
		s.lastErrorAt = time.Now()
	}
	s.mu.Unlock()
}
func (s *Stats) PermissiveClose() { s.inc(&s.permissiveCloses) }

func (s *Stats) ImmediateFill() { s.inc(&s.immediateFills) }

func (s *Stats) ImmediateFillFailed(err error) {
	s.mu.Lock()
	s.immediateFillFailures++
	if err != nil {
		s.lastError = err.Error()
		s.lastErrorAt = time.Now()
	}
	s.mu.Unlock()
}
func (s *Stats) BackupFill() { s.inc(&s.backupFills) }

func (s *Stats) Cancel() { s.inc(&s.cancels) }

func (s *Stats) CancelFailed() { s.inc(&s.cancelFailures) }

func (s *Stats) ForcedCancelCleanup() { s.inc(&s.forcedCancelCleanups) }

func (s *Stats) ReconcilerClose() { s.inc(&s.reconcilerCloses) }

func (s *Stats) MarginModeFailure() { s.inc(&s.marginModeFailures) }

func (s *Stats) inc(field *int64) {
	s.mu.Lock()
	*field++
	s.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SuccessfulMirrors:     s.successfulMirrors,
		FailedMirrors:         s.failedMirrors,
		PermissiveCloses:      s.permissiveCloses,
		ImmediateFills:        s.immediateFills,
		ImmediateFillFailures: s.immediateFillFailures,
		BackupFills:           s.backupFills,
		Cancels:               s.cancels,
		CancelFailures:        s.cancelFailures,
		ForcedCancelCleanups:  s.forcedCancelCleanups,
		ReconcilerCloses:      s.reconcilerCloses,
		MarginModeFailures:    s.marginModeFailures,
		LastError:             s.lastError,
		LastErrorAt:           s.lastErrorAt,
	}
}

// Reset zeroes the counters. The daily report calls it after emission.
func (s *Stats) Reset() {
	s.mu.Lock()
	s.successfulMirrors = 0
	s.failedMirrors = 0
	s.permissiveCloses = 0
	s.immediateFills = 0
	s.immediateFillFailures = 0
	s.backupFills = 0
	s.cancels = 0
	s.cancelFailures = 0
	s.forcedCancelCleanups = 0
	s.reconcilerCloses = 0
	s.marginModeFailures = 0
	s.lastError = ""
	s.lastErrorAt = time.Time{}
	s.mu.Unlock()
}

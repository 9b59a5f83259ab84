// Package mirror implements the reconciliation core: the record of live
// mirrored orders, the placement pipeline, the immediate-fill executor,
// the cancel synchronizer, and the position reconciler.
package mirror

import (
	"fmt"
	"sync"
	"time"

	"github.com/mirrordesk/perp-mirror/pkg/types"
)

// Record describes one live mirrored source order.
type Record struct {
	SourceOrderID string
	MirrorOrderID string

	// Source is the snapshot of the source order at placement time.
	Source *types.TriggerOrder

	BaseMarginRatio        float64
	AppliedRatioMultiplier float64
	FinalMarginRatio       float64

	RequestedTriggerPrice float64
	AdjustedTriggerPrice  float64

	HasTPSL     bool
	TPSLApplied bool
	TPPrice     float64
	SLPrice     float64

	Contracts int64
	CreatedAt time.Time
}

// Records is the bijective source-to-mirror order mapping. Both lookup
// directions are kept in sync under one lock.
type Records struct {
	mu       sync.RWMutex
	bySource map[string]*Record
	byMirror map[string]*Record
}

func NewRecords() *Records {
	return &Records{
		bySource: make(map[string]*Record),
		byMirror: make(map[string]*Record),
	}
}

// Insert adds a record, rejecting any source or mirror ID already mapped.
func (r *Records) Insert(rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySource[rec.SourceOrderID]; ok {
		return fmt.Errorf("source order %s already mirrored", rec.SourceOrderID)
	}
	if _, ok := r.byMirror[rec.MirrorOrderID]; ok {
		return fmt.Errorf("mirror order %s already mapped", rec.MirrorOrderID)
	}
	r.bySource[rec.SourceOrderID] = rec
	r.byMirror[rec.MirrorOrderID] = rec
	recordsGauge.Set(float64(len(r.bySource)))
	return nil
}

// BySource looks up the record for a source order ID.
func (r *Records) BySource(sourceOrderID string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.bySource[sourceOrderID]
	return rec, ok
}

// ByMirror looks up the record for a mirror order ID.
func (r *Records) ByMirror(mirrorOrderID string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byMirror[mirrorOrderID]
	return rec, ok
}

// Remove deletes the record for a source order ID from both directions.
func (r *Records) Remove(sourceOrderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.bySource[sourceOrderID]
	if !ok {
		return false
	}
	delete(r.bySource, sourceOrderID)
	delete(r.byMirror, rec.MirrorOrderID)
	recordsGauge.Set(float64(len(r.bySource)))
	return true
}

// All returns a copy of every live record.
func (r *Records) All() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Record, 0, len(r.bySource))
	for _, rec := range r.bySource {
		out = append(out, rec)
	}
	return out
}

// Len reports the number of live records.
func (r *Records) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySource)
}

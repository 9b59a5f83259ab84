package mirror

import (
	"sync"

	"github.com/mirrordesk/perp-mirror/pkg/types"
)

// StartupSet is the snapshot of pre-existing state captured at init.
// Anything in it is exempt from reconciliation: never mirrored, never
// canceled, never counted as new. It is what makes cold restarts safe
// without persisted state. The set is rebuilt wholesale on re-enable;
// between rebuilds it is read-only.
type StartupSet struct {
	mu                  sync.RWMutex
	sourceTriggerIDs    map[string]struct{}
	sourceTriggerHashes map[string]struct{}
	mirrorTriggerHashes map[string]struct{}
	sourcePositions     map[types.Direction]float64
	mirrorPositions     map[types.Direction]float64
}

// StartupInputs carries the venue reads the snapshot is built from.
type StartupInputs struct {
	SourceTriggers  []*types.TriggerOrder
	SourcePositions []*types.Position
	MirrorPositions []*types.Position

	// Hash variant sets are precomputed by the caller so this package
	// stays ignorant of the hashing scheme.
	SourceTriggerHashes []string
	MirrorTriggerHashes []string
}

func NewStartupSet(in *StartupInputs) *StartupSet {
	s := &StartupSet{}
	s.Reset(in)
	return s
}

// EmptyStartupSet is for tests and pre-init wiring.
func EmptyStartupSet() *StartupSet {
	return NewStartupSet(&StartupInputs{})
}

// Reset replaces the whole snapshot. The supervisor calls it at init and
// on every off-to-on transition.
func (s *StartupSet) Reset(in *StartupInputs) {
	sourceIDs := make(map[string]struct{}, len(in.SourceTriggers))
	for _, o := range in.SourceTriggers {
		sourceIDs[o.OrderID] = struct{}{}
	}
	sourceHashes := make(map[string]struct{}, len(in.SourceTriggerHashes))
	for _, h := range in.SourceTriggerHashes {
		sourceHashes[h] = struct{}{}
	}
	mirrorHashes := make(map[string]struct{}, len(in.MirrorTriggerHashes))
	for _, h := range in.MirrorTriggerHashes {
		mirrorHashes[h] = struct{}{}
	}
	sourcePositions := make(map[types.Direction]float64)
	for _, p := range in.SourcePositions {
		if p != nil && !p.Flat() {
			sourcePositions[p.Direction] = p.Size
		}
	}
	mirrorPositions := make(map[types.Direction]float64)
	for _, p := range in.MirrorPositions {
		if p != nil && !p.Flat() {
			mirrorPositions[p.Direction] = p.Size
		}
	}

	s.mu.Lock()
	s.sourceTriggerIDs = sourceIDs
	s.sourceTriggerHashes = sourceHashes
	s.mirrorTriggerHashes = mirrorHashes
	s.sourcePositions = sourcePositions
	s.mirrorPositions = mirrorPositions
	s.mu.Unlock()
}

// IsStartupTrigger reports whether the source order ID existed at init.
func (s *StartupSet) IsStartupTrigger(orderID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sourceTriggerIDs[orderID]
	return ok
}

// HasHash reports whether any init-time trigger on either venue carried
// this canonical hash.
func (s *StartupSet) HasHash(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sourceTriggerHashes[hash]; ok {
		return true
	}
	_, ok := s.mirrorTriggerHashes[hash]
	return ok
}

// HasMirrorPosition reports whether the mirror held a position in this
// direction at init.
func (s *StartupSet) HasMirrorPosition(direction types.Direction) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.mirrorPositions[direction]
	return ok
}

// Cardinalities reports set sizes for the stats snapshot.
func (s *StartupSet) Cardinalities() (sourceTriggers, sourcePositions, mirrorPositions, mirrorHashes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sourceTriggerIDs), len(s.sourcePositions), len(s.mirrorPositions), len(s.mirrorTriggerHashes)
}

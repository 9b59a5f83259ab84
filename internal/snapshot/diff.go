// Package snapshot tracks the set of live source trigger orders between
// scans and reports which orders appeared and which disappeared.
package snapshot

import (
	"sync"

	"github.com/mirrordesk/perp-mirror/pkg/types"
)

// Tracker holds the previous scan's order-ID set together with the full
// payloads, so a disappeared order can still be classified after the
// venue no longer returns it.
type Tracker struct {
	mu       sync.Mutex
	previous map[string]*types.TriggerOrder
	primed   bool
}

// Diff is the result of comparing one scan against the previous one.
type Diff struct {
	Appeared    []*types.TriggerOrder
	Disappeared []*types.TriggerOrder
}

func NewTracker() *Tracker {
	return &Tracker{previous: make(map[string]*types.TriggerOrder)}
}

// Observe compares the current scan against the previous one and replaces
// the retained set. The first scan after startup primes the tracker and
// reports nothing, so a restart never misreads the existing book as a
// burst of new orders.
func (t *Tracker) Observe(current []*types.TriggerOrder) Diff {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(map[string]*types.TriggerOrder, len(current))
	for _, o := range current {
		next[o.OrderID] = o
	}

	if !t.primed {
		t.previous = next
		t.primed = true
		return Diff{}
	}

	var diff Diff
	for id, o := range next {
		if _, ok := t.previous[id]; !ok {
			diff.Appeared = append(diff.Appeared, o)
		}
	}
	for id, o := range t.previous {
		if _, ok := next[id]; !ok {
			diff.Disappeared = append(diff.Disappeared, o)
		}
	}
	t.previous = next
	return diff
}

// Previous returns the retained payload for an order ID from the last
// scan, if any.
func (t *Tracker) Previous(orderID string) (*types.TriggerOrder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.previous[orderID]
	return o, ok
}

// Size reports how many orders the last scan retained.
func (t *Tracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.previous)
}

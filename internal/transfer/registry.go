package transfer

import (
	"sync"
	"time"
)

// Registry is the in-memory index of transfers between initiation and
// terminal resolution, plus their watchdog timers. It is created empty at
// process start and never persisted: any transfer in flight across a restart
// is orphaned (see DESIGN.md).
//
// It is a scheduling aid, not a query source of truth; Status reads go to the
// store so a restart never serves stale in-memory state.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Snapshot
	timers  map[string]*time.Timer
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Snapshot),
		timers:  make(map[string]*time.Timer),
	}
}

// Add registers an in-flight transfer and arms its watchdog. When the timer
// fires, onExpire runs in its own goroutine; it must itself check whether the
// transfer is still registered (Resolve may have won the race).
func (r *Registry) Add(snap Snapshot, wait time.Duration, onExpire func(transferID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := snap.TransferID
	r.entries[id] = snap
	if onExpire != nil && wait > 0 {
		r.timers[id] = time.AfterFunc(wait, func() { onExpire(id) })
	}
}

// Resolve removes a transfer and disarms its watchdog in one step. It
// reports whether the transfer was still registered, which makes it the
// arbiter between a resolving caller and a firing watchdog: exactly one of
// them observes true.
func (r *Registry) Resolve(transferID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[transferID]
	if !ok {
		return false
	}
	delete(r.entries, transferID)
	if t, ok := r.timers[transferID]; ok {
		t.Stop()
		delete(r.timers, transferID)
	}
	return true
}

// Contains reports whether a transfer is still in flight.
func (r *Registry) Contains(transferID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[transferID]
	return ok
}

// SetStatus updates the advisory status of a registered snapshot. No-op if
// the transfer resolved meanwhile.
func (r *Registry) SetStatus(transferID string, s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if snap, ok := r.entries[transferID]; ok {
		snap.Status = s
		r.entries[transferID] = snap
	}
}

// List returns the current in-flight snapshots, ordered by initiation time.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.entries))
	for _, snap := range r.entries {
		out = append(out, snap)
	}
	// Insertion order is not preserved by the map; sort by initiated_at for
	// stable listing output.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].InitiatedAt.Before(out[j-1].InitiatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Len returns the number of in-flight transfers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

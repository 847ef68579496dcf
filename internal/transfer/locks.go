package transfer

import "sync"

// callLocks serializes lifecycle operations per call id. Operations on
// different calls proceed independently; Initiate/Complete/Cancel on the same
// call never interleave their validate/commit sections.
//
// Locks are never evicted: the set of hot call ids is bounded by concurrent
// calls, and a stale entry costs one mutex.
type callLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newCallLocks() *callLocks {
	return &callLocks{locks: make(map[string]*sync.Mutex)}
}

func (c *callLocks) get(callID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[callID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[callID] = l
	}
	return l
}

// lock acquires the per-call mutex and returns its unlock func.
func (c *callLocks) lock(callID string) func() {
	l := c.get(callID)
	l.Lock()
	return l.Unlock
}

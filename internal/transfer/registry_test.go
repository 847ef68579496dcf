package transfer

import (
	"context"
	"sync"
	"testing"
	"time"

	"warmtransfer/internal/agents"
	"warmtransfer/internal/calls"
)

func snap(id string, initiated time.Time) Snapshot {
	return Snapshot{
		TransferID:  id,
		CallID:      "call-" + id,
		Status:      StatusInitiated,
		InitiatedAt: initiated,
	}
}

func TestRegistryResolveIsExactlyOnce(t *testing.T) {
	r := NewRegistry()
	r.Add(snap("t1", time.Now()), 0, nil)

	if !r.Contains("t1") {
		t.Fatal("transfer should be registered")
	}
	if !r.Resolve("t1") {
		t.Fatal("first resolve should win")
	}
	if r.Resolve("t1") {
		t.Fatal("second resolve must observe the entry is gone")
	}
	if r.Contains("t1") {
		t.Fatal("resolved transfer must not remain registered")
	}
}

func TestRegistryWatchdogFires(t *testing.T) {
	r := NewRegistry()
	fired := make(chan string, 1)

	r.Add(snap("t1", time.Now()), 10*time.Millisecond, func(id string) { fired <- id })

	select {
	case id := <-fired:
		if id != "t1" {
			t.Errorf("watchdog fired for %s, want t1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog never fired")
	}
}

func TestRegistryResolveDisarmsWatchdog(t *testing.T) {
	r := NewRegistry()
	fired := make(chan string, 1)

	r.Add(snap("t1", time.Now()), 50*time.Millisecond, func(id string) { fired <- id })
	if !r.Resolve("t1") {
		t.Fatal("resolve failed")
	}

	select {
	case <-fired:
		t.Fatal("watchdog fired after resolve")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestRegistryListOrdersByInitiation(t *testing.T) {
	r := NewRegistry()
	base := time.Now()
	r.Add(snap("b", base.Add(2*time.Second)), 0, nil)
	r.Add(snap("a", base), 0, nil)
	r.Add(snap("c", base.Add(time.Second)), 0, nil)

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	want := []string{"a", "c", "b"}
	for i, id := range want {
		if list[i].TransferID != id {
			t.Errorf("list[%d] = %s, want %s", i, list[i].TransferID, id)
		}
	}
}

func TestRegistrySetStatus(t *testing.T) {
	r := NewRegistry()
	r.Add(snap("t1", time.Now()), 0, nil)

	r.SetStatus("t1", StatusInProgress)
	if got := r.List()[0].Status; got != StatusInProgress {
		t.Errorf("status = %s, want %s", got, StatusInProgress)
	}

	// No-op on unknown ids.
	r.SetStatus("missing", StatusCompleted)
	if r.Len() != 1 {
		t.Errorf("len = %d, want 1", r.Len())
	}
}

func TestRegistryConcurrentResolve(t *testing.T) {
	r := NewRegistry()
	const n = 50
	for i := 0; i < n; i++ {
		r.Add(snap(string(rune('A'+i)), time.Now()), 0, nil)
	}

	var wg sync.WaitGroup
	wins := make(chan bool, 2*n)
	for i := 0; i < n; i++ {
		id := string(rune('A' + i))
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				wins <- r.Resolve(id)
			}()
		}
	}
	wg.Wait()
	close(wins)

	won := 0
	for w := range wins {
		if w {
			won++
		}
	}
	if won != n {
		t.Errorf("exactly one resolver per transfer should win: got %d wins, want %d", won, n)
	}
	if r.Len() != 0 {
		t.Errorf("registry should be empty, has %d", r.Len())
	}
}

func TestCallLocksSerializePerCall(t *testing.T) {
	locks := newCallLocks()

	unlock := locks.lock("c1")
	acquired := make(chan struct{})
	go func() {
		u := locks.lock("c1")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}

	// A different call id must not block.
	done := make(chan struct{})
	go func() {
		u := locks.lock("c2")
		u()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different call blocked")
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after unlock")
	}
}

// terminalStore serves a single transfer that is already terminal; everything
// else is inert. Exercises the watchdog against store-resolved state.
type terminalStore struct{ tr Transfer }

func (s *terminalStore) GetCall(ctx context.Context, id string) (calls.Call, error) {
	return calls.Call{}, calls.ErrNotFound
}

func (s *terminalStore) GetAgent(ctx context.Context, id string) (agents.Agent, error) {
	return agents.Agent{}, agents.ErrNotFound
}

func (s *terminalStore) GetTransfer(ctx context.Context, id string) (Transfer, error) {
	if id != s.tr.ID {
		return Transfer{}, ErrTransferNotFound
	}
	return s.tr, nil
}

func (s *terminalStore) CreateTransfer(ctx context.Context, t Transfer) (Transfer, error) {
	return t, nil
}

func (s *terminalStore) UpdateCall(ctx context.Context, id string, patch calls.Patch) error {
	return nil
}

func (s *terminalStore) UpdateAgent(ctx context.Context, id string, patch agents.Patch) error {
	return nil
}

func (s *terminalStore) UpdateTransfer(ctx context.Context, id string, patch Patch) error {
	return nil
}

func (s *terminalStore) CountAgentCalls(ctx context.Context, agentID string, statuses []string) (int, error) {
	return 0, nil
}

func (s *terminalStore) ListAgentsByStatus(ctx context.Context, status agents.AgentStatus) ([]agents.Agent, error) {
	return nil, nil
}

func TestWatchdogClearsEntryForResolvedTransfer(t *testing.T) {
	now := time.Now()
	completed := now
	st := &terminalStore{tr: Transfer{
		ID: "t1", CallID: "c1", Status: StatusCompleted,
		InitiatedAt: now, CompletedAt: &completed,
	}}
	o := NewOrchestrator(st, nil, nil, Config{}, nil)

	// A registry entry that outlived its transfer's resolution must be dropped
	// when the watchdog fires and finds the transfer terminal.
	o.registry.Add(Snapshot{TransferID: "t1", CallID: "c1", Status: StatusInitiated, InitiatedAt: now}, time.Hour, nil)
	o.watchdogExpire("t1")

	if o.registry.Len() != 0 {
		t.Errorf("registry len = %d, want 0 after expiry of a resolved transfer", o.registry.Len())
	}

	// Unknown ids are equally benign.
	o.watchdogExpire("missing")
}

package transfer_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"warmtransfer/internal/agents"
	"warmtransfer/internal/calls"
	"warmtransfer/internal/rooms"
	"warmtransfer/internal/store"
	"warmtransfer/internal/summary"
	"warmtransfer/internal/transfer"
)

// fakeRooms implements rooms.Provider in memory and records teardown calls.
type fakeRooms struct {
	mu      sync.Mutex
	open    map[string]bool
	removed []string

	failCreate bool
	failToken  bool

	// createStarted/createRelease, when set, pause CreateRoom mid-flight so a
	// test can interleave other operations with provisioning.
	createStarted chan rooms.CreateRoomRequest
	createRelease chan struct{}
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{open: make(map[string]bool)}
}

func (f *fakeRooms) Name() string { return "fake" }

func (f *fakeRooms) CreateRoom(ctx context.Context, req rooms.CreateRoomRequest) (rooms.Room, error) {
	if f.createStarted != nil {
		f.createStarted <- req
		<-f.createRelease
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return rooms.Room{}, errors.New("room service unavailable")
	}
	f.open[req.Name] = true
	return rooms.Room{Name: req.Name, MaxParticipants: req.MaxParticipants}, nil
}

func (f *fakeRooms) GetRoom(ctx context.Context, roomName string) (rooms.Room, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open[roomName] {
		return rooms.Room{}, false, nil
	}
	return rooms.Room{Name: roomName}, true, nil
}

func (f *fakeRooms) CloseRoom(ctx context.Context, roomName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.open, roomName)
	return nil
}

func (f *fakeRooms) ListParticipants(ctx context.Context, roomName string) ([]rooms.Participant, error) {
	return nil, nil
}

func (f *fakeRooms) RemoveParticipant(ctx context.Context, roomName, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, roomName+"/"+identity)
	return nil
}

func (f *fakeRooms) MuteParticipant(ctx context.Context, roomName, identity string, muted bool) error {
	return nil
}

func (f *fakeRooms) IssueToken(req rooms.TokenRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failToken {
		return "", errors.New("signing failed")
	}
	return "token:" + req.ParticipantIdentity + "@" + req.RoomName, nil
}

func (f *fakeRooms) isOpen(roomName string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open[roomName]
}

type fixture struct {
	store *store.Memory
	rooms *fakeRooms
	orch  *transfer.Orchestrator

	call      calls.Call
	fromAgent agents.Agent
	toAgent   agents.Agent
}

func newFixture(t *testing.T, cfg transfer.Config) *fixture {
	t.Helper()
	if cfg.MaxWait == 0 {
		cfg.MaxWait = time.Minute
	}

	mem := store.NewMemory()
	fr := newFakeRooms()
	summarizer := summary.NewService(nil, time.Second, nil)

	f := &fixture{
		store: mem,
		rooms: fr,
		orch:  transfer.NewOrchestrator(mem, fr, summarizer, cfg, nil),
	}

	ctx := context.Background()
	f.fromAgent = mustCreateAgent(t, mem, agents.Agent{
		ID: "agent-a", Name: "Alice", Email: "alice@example.com",
		Status: agents.StatusBusy, CurrentRoomID: "call_room_1", MaxConcurrentCalls: 3,
	})
	f.toAgent = mustCreateAgent(t, mem, agents.Agent{
		ID: "agent-b", Name: "Bola", Email: "bola@example.com",
		Status: agents.StatusAvailable, MaxConcurrentCalls: 3,
		Skills: []string{"billing"},
	})

	c, err := mem.CreateCall(ctx, calls.Call{
		ID: "call-1", RoomID: "call_room_1",
		CallerName: "Pat", CallReason: "billing dispute",
		Priority: calls.PriorityNormal, Status: calls.StatusActive,
		AgentAID:   f.fromAgent.ID,
		Transcript: "customer disputes a charge",
	})
	if err != nil {
		t.Fatalf("create call: %v", err)
	}
	f.call = c
	return f
}

func mustCreateAgent(t *testing.T, mem *store.Memory, a agents.Agent) agents.Agent {
	t.Helper()
	created, err := mem.CreateAgent(context.Background(), a)
	if err != nil {
		t.Fatalf("create agent %s: %v", a.ID, err)
	}
	return created
}

func (f *fixture) initiateReq() transfer.InitiateRequest {
	return transfer.InitiateRequest{
		CallID:      f.call.ID,
		FromAgentID: f.fromAgent.ID,
		ToAgentID:   f.toAgent.ID,
		Reason:      "needs billing expert",
	}
}

func (f *fixture) mustInitiate(t *testing.T) transfer.InitiateResult {
	t.Helper()
	res, err := f.orch.Initiate(context.Background(), f.initiateReq())
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return res
}

func (f *fixture) assertUntouched(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	c, _ := f.store.GetCall(ctx, f.call.ID)
	if c.Status != calls.StatusActive {
		t.Errorf("call status = %s, want active", c.Status)
	}
	to, _ := f.store.GetAgent(ctx, f.toAgent.ID)
	if to.Status != agents.StatusAvailable {
		t.Errorf("to-agent status = %s, want available", to.Status)
	}
	if f.orch.Registry().Len() != 0 {
		t.Errorf("registry should be empty, has %d", f.orch.Registry().Len())
	}
}

func TestInitiateRejectsInactiveCall(t *testing.T) {
	f := newFixture(t, transfer.Config{})
	waiting := calls.StatusWaiting
	if err := f.store.UpdateCall(context.Background(), f.call.ID, calls.Patch{Status: &waiting}); err != nil {
		t.Fatal(err)
	}

	_, err := f.orch.Initiate(context.Background(), f.initiateReq())
	if !errors.Is(err, transfer.ErrCallNotActive) {
		t.Fatalf("err = %v, want ErrCallNotActive", err)
	}
	if err.Error() != "call is not in active state" {
		t.Errorf("reason = %q", err.Error())
	}

	c, _ := f.store.GetCall(context.Background(), f.call.ID)
	if c.Status != calls.StatusWaiting {
		t.Errorf("rejection must not mutate the call, status = %s", c.Status)
	}
	if f.orch.Registry().Len() != 0 {
		t.Error("rejection must not register a transfer")
	}
}

func TestInitiateRejectsUnknownEntities(t *testing.T) {
	f := newFixture(t, transfer.Config{})
	ctx := context.Background()

	req := f.initiateReq()
	req.CallID = "missing"
	if _, err := f.orch.Initiate(ctx, req); !errors.Is(err, transfer.ErrCallNotFound) {
		t.Errorf("unknown call: err = %v, want ErrCallNotFound", err)
	}

	req = f.initiateReq()
	req.ToAgentID = "missing"
	if _, err := f.orch.Initiate(ctx, req); !errors.Is(err, transfer.ErrAgentNotFound) {
		t.Errorf("unknown agent: err = %v, want ErrAgentNotFound", err)
	}
	f.assertUntouched(t)
}

func TestInitiateRejectsWrongOwner(t *testing.T) {
	f := newFixture(t, transfer.Config{})
	mustCreateAgent(t, f.store, agents.Agent{
		ID: "agent-c", Name: "Cem", Email: "cem@example.com",
		Status: agents.StatusBusy, MaxConcurrentCalls: 3,
	})

	req := f.initiateReq()
	req.FromAgentID = "agent-c"
	_, err := f.orch.Initiate(context.Background(), req)
	if !errors.Is(err, transfer.ErrNotAssignedToCall) {
		t.Fatalf("err = %v, want ErrNotAssignedToCall", err)
	}
	f.assertUntouched(t)
}

func TestInitiateRejectsBusyTarget(t *testing.T) {
	f := newFixture(t, transfer.Config{})
	busy := agents.StatusBusy
	if err := f.store.UpdateAgent(context.Background(), f.toAgent.ID, agents.Patch{Status: &busy}); err != nil {
		t.Fatal(err)
	}

	_, err := f.orch.Initiate(context.Background(), f.initiateReq())
	if !errors.Is(err, transfer.ErrTargetNotAvailable) {
		t.Fatalf("err = %v, want ErrTargetNotAvailable", err)
	}
	if err.Error() != "target agent is not available" {
		t.Errorf("reason = %q", err.Error())
	}

	c, _ := f.store.GetCall(context.Background(), f.call.ID)
	if c.Status != calls.StatusActive {
		t.Errorf("call status = %s, want active", c.Status)
	}
}

func TestInitiateRejectsSameAgent(t *testing.T) {
	f := newFixture(t, transfer.Config{})

	// The from-agent owns the call and is busy, so make the same-agent pair
	// pass the earlier checks by pointing both at an available owner.
	available := agents.StatusAvailable
	if err := f.store.UpdateAgent(context.Background(), f.fromAgent.ID, agents.Patch{Status: &available}); err != nil {
		t.Fatal(err)
	}

	req := f.initiateReq()
	req.ToAgentID = req.FromAgentID
	_, err := f.orch.Initiate(context.Background(), req)
	if !errors.Is(err, transfer.ErrSameAgent) {
		t.Fatalf("err = %v, want ErrSameAgent", err)
	}
}

func TestInitiateCapacityBoundary(t *testing.T) {
	f := newFixture(t, transfer.Config{})
	ctx := context.Background()

	max := 2
	if err := f.store.UpdateAgent(ctx, f.toAgent.ID, agents.Patch{MaxConcurrentCalls: &max}); err != nil {
		t.Fatal(err)
	}

	occupy := func(id string, status calls.CallStatus) {
		if _, err := f.store.CreateCall(ctx, calls.Call{
			ID: id, RoomID: "room_" + id, Status: status, AgentAID: f.toAgent.ID,
		}); err != nil {
			t.Fatal(err)
		}
	}

	// One below the cap: succeeds.
	occupy("busy-1", calls.StatusActive)
	res, err := f.orch.Initiate(ctx, f.initiateReq())
	if err != nil {
		t.Fatalf("at cap-1, initiate should succeed: %v", err)
	}
	if err := f.orch.Cancel(ctx, res.TransferID, "test reset"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	available := agents.StatusAvailable
	if err := f.store.UpdateAgent(ctx, f.toAgent.ID, agents.Patch{Status: &available}); err != nil {
		t.Fatal(err)
	}

	// At the cap: rejected.
	occupy("busy-2", calls.StatusTransferring)
	_, err = f.orch.Initiate(ctx, f.initiateReq())
	if !errors.Is(err, transfer.ErrMaxConcurrentCalls) {
		t.Fatalf("at cap, err = %v, want ErrMaxConcurrentCalls", err)
	}
	if err.Error() != "target agent has reached maximum concurrent calls" {
		t.Errorf("reason = %q", err.Error())
	}
}

func TestInitiateSuccess(t *testing.T) {
	f := newFixture(t, transfer.Config{})
	ctx := context.Background()

	res := f.mustInitiate(t)

	if res.TransferID == "" || res.TransferRoomID == "" {
		t.Fatalf("result missing ids: %+v", res)
	}
	if !strings.HasPrefix(res.TransferRoomID, "transfer_") {
		t.Errorf("transfer room id = %q, want transfer_ prefix", res.TransferRoomID)
	}
	if res.CallRoomID != f.call.RoomID {
		t.Errorf("call room id = %q, want %q", res.CallRoomID, f.call.RoomID)
	}
	if res.FromAgentToken == "" || res.ToAgentToken == "" {
		t.Error("both agent tokens must be issued")
	}
	if res.Summary == "" || res.TransferContext == "" {
		t.Error("summary and transfer context must be non-empty")
	}
	if !f.rooms.isOpen(res.TransferRoomID) {
		t.Error("side room should exist")
	}

	c, _ := f.store.GetCall(ctx, f.call.ID)
	if c.Status != calls.StatusTransferring {
		t.Errorf("call status = %s, want transferring", c.Status)
	}
	if c.Summary == "" {
		t.Error("generated summary should be cached on the call")
	}

	tr, err := f.orch.Status(ctx, res.TransferID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if tr.Status != transfer.StatusInitiated {
		t.Errorf("transfer status = %s, want initiated", tr.Status)
	}
	if tr.TransferRoomID != res.TransferRoomID {
		t.Errorf("persisted transfer room = %q, want %q", tr.TransferRoomID, res.TransferRoomID)
	}
	if tr.SummaryShared == "" {
		t.Error("summary snapshot should be persisted on the transfer")
	}

	from, _ := f.store.GetAgent(ctx, f.fromAgent.ID)
	to, _ := f.store.GetAgent(ctx, f.toAgent.ID)
	if from.Status != agents.StatusBusy || to.Status != agents.StatusBusy {
		t.Errorf("both agents should be busy, got %s/%s", from.Status, to.Status)
	}
	if to.CurrentRoomID != res.TransferRoomID {
		t.Errorf("to-agent room = %q, want side room %q", to.CurrentRoomID, res.TransferRoomID)
	}

	active := f.orch.ActiveTransfers()
	if len(active) != 1 || active[0].TransferID != res.TransferID {
		t.Errorf("active transfers = %+v, want the initiated one", active)
	}
}

func TestInitiateSecondTransferOnSameCallRejected(t *testing.T) {
	f := newFixture(t, transfer.Config{})
	f.mustInitiate(t)

	mustCreateAgent(t, f.store, agents.Agent{
		ID: "agent-c", Name: "Cem", Email: "cem@example.com",
		Status: agents.StatusAvailable, MaxConcurrentCalls: 3,
	})
	req := f.initiateReq()
	req.ToAgentID = "agent-c"
	_, err := f.orch.Initiate(context.Background(), req)
	if !errors.Is(err, transfer.ErrCallNotActive) {
		t.Fatalf("err = %v, want ErrCallNotActive while a transfer is in flight", err)
	}
}

func TestInitiateRoomFailureCleansUp(t *testing.T) {
	f := newFixture(t, transfer.Config{})
	f.rooms.failCreate = true
	ctx := context.Background()

	_, err := f.orch.Initiate(ctx, f.initiateReq())
	if err == nil {
		t.Fatal("expected error when room creation fails")
	}
	if transfer.IsRejection(err) {
		t.Errorf("dependency failure must not look like a validation rejection: %v", err)
	}

	c, _ := f.store.GetCall(ctx, f.call.ID)
	if c.Status != calls.StatusActive {
		t.Errorf("call should revert to active, got %s", c.Status)
	}
	to, _ := f.store.GetAgent(ctx, f.toAgent.ID)
	if to.Status != agents.StatusAvailable {
		t.Errorf("to-agent should stay available, got %s", to.Status)
	}
	if f.orch.Registry().Len() != 0 {
		t.Error("no transfer should remain registered")
	}
}

func TestCompleteRoundTrip(t *testing.T) {
	f := newFixture(t, transfer.Config{})
	ctx := context.Background()

	res := f.mustInitiate(t)
	done, err := f.orch.Complete(ctx, res.TransferID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if done.CallRoomID != f.call.RoomID {
		t.Errorf("call room = %q, want %q", done.CallRoomID, f.call.RoomID)
	}
	if done.ToAgentCallToken == "" {
		t.Error("to-agent call-room token must be issued")
	}
	if done.CompletedAt.IsZero() {
		t.Error("completed_at must be set")
	}

	c, _ := f.store.GetCall(ctx, f.call.ID)
	if c.AgentBID != f.toAgent.ID {
		t.Errorf("agent_b_id = %q, want %q", c.AgentBID, f.toAgent.ID)
	}
	if c.Status != calls.StatusActive {
		t.Errorf("call status = %s, want active", c.Status)
	}

	from, _ := f.store.GetAgent(ctx, f.fromAgent.ID)
	if from.Status != agents.StatusAvailable || from.CurrentRoomID != "" {
		t.Errorf("from-agent should be released, got %s room %q", from.Status, from.CurrentRoomID)
	}
	to, _ := f.store.GetAgent(ctx, f.toAgent.ID)
	if to.Status != agents.StatusBusy || to.CurrentRoomID != f.call.RoomID {
		t.Errorf("to-agent should be bound to the call room, got %s room %q", to.Status, to.CurrentRoomID)
	}

	tr, _ := f.orch.Status(ctx, res.TransferID)
	if tr.Status != transfer.StatusCompleted {
		t.Errorf("transfer status = %s, want completed", tr.Status)
	}
	if tr.CompletedAt == nil || tr.DurationSeconds < 0 {
		t.Errorf("completed_at/duration not recorded: %+v", tr)
	}

	if f.rooms.isOpen(res.TransferRoomID) {
		t.Error("side room should be closed")
	}
	found := false
	for _, r := range f.rooms.removed {
		if r == f.call.RoomID+"/"+f.fromAgent.ID {
			found = true
		}
	}
	if !found {
		t.Error("from-agent should be removed from the call room")
	}
	if len(f.orch.ActiveTransfers()) != 0 {
		t.Error("completed transfer should not be listed as active")
	}
}

func TestTerminalTransfersStayTerminal(t *testing.T) {
	f := newFixture(t, transfer.Config{})
	ctx := context.Background()

	res := f.mustInitiate(t)
	if _, err := f.orch.Complete(ctx, res.TransferID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := f.orch.Complete(ctx, res.TransferID); !errors.Is(err, transfer.ErrAlreadyResolved) {
		t.Errorf("second complete: err = %v, want ErrAlreadyResolved", err)
	}
	if err := f.orch.Cancel(ctx, res.TransferID, "late cancel"); !errors.Is(err, transfer.ErrAlreadyResolved) {
		t.Errorf("cancel after complete: err = %v, want ErrAlreadyResolved", err)
	}

	tr, _ := f.orch.Status(ctx, res.TransferID)
	if tr.Status != transfer.StatusCompleted {
		t.Errorf("terminal status mutated to %s", tr.Status)
	}
}

func TestCancelRevertsState(t *testing.T) {
	f := newFixture(t, transfer.Config{})
	ctx := context.Background()

	res := f.mustInitiate(t)
	if err := f.orch.Cancel(ctx, res.TransferID, "agent declined"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	tr, _ := f.orch.Status(ctx, res.TransferID)
	if tr.Status != transfer.StatusFailed {
		t.Errorf("transfer status = %s, want failed", tr.Status)
	}
	if tr.CompletedAt == nil {
		t.Error("completed_at must be stamped on cancellation")
	}

	c, _ := f.store.GetCall(ctx, f.call.ID)
	if c.Status != calls.StatusActive {
		t.Errorf("call status = %s, want active", c.Status)
	}
	if c.AgentBID != "" {
		t.Errorf("agent_b_id = %q, must stay empty on cancel", c.AgentBID)
	}

	from, _ := f.store.GetAgent(ctx, f.fromAgent.ID)
	if from.Status != agents.StatusBusy {
		t.Errorf("from-agent = %s, want busy (still owns the call)", from.Status)
	}
	to, _ := f.store.GetAgent(ctx, f.toAgent.ID)
	if to.Status != agents.StatusAvailable || to.CurrentRoomID != "" {
		t.Errorf("to-agent should be released, got %s room %q", to.Status, to.CurrentRoomID)
	}

	if f.rooms.isOpen(res.TransferRoomID) {
		t.Error("side room should be closed")
	}

	if err := f.orch.Cancel(ctx, res.TransferID, "again"); !errors.Is(err, transfer.ErrAlreadyResolved) {
		t.Errorf("double cancel: err = %v, want ErrAlreadyResolved", err)
	}
}

func TestCompleteUnknownTransfer(t *testing.T) {
	f := newFixture(t, transfer.Config{})
	if _, err := f.orch.Complete(context.Background(), "missing"); !errors.Is(err, transfer.ErrTransferNotFound) {
		t.Errorf("err = %v, want ErrTransferNotFound", err)
	}
}

func TestMarkInProgress(t *testing.T) {
	f := newFixture(t, transfer.Config{})
	ctx := context.Background()

	res := f.mustInitiate(t)
	if err := f.orch.MarkInProgress(ctx, res.TransferID); err != nil {
		t.Fatalf("mark in progress: %v", err)
	}

	tr, _ := f.orch.Status(ctx, res.TransferID)
	if tr.Status != transfer.StatusInProgress {
		t.Errorf("status = %s, want in_progress", tr.Status)
	}
	if f.orch.ActiveTransfers()[0].Status != transfer.StatusInProgress {
		t.Error("registry snapshot should track the in-progress status")
	}

	if _, err := f.orch.Complete(ctx, res.TransferID); err != nil {
		t.Fatalf("complete after in-progress: %v", err)
	}
	if err := f.orch.MarkInProgress(ctx, res.TransferID); !errors.Is(err, transfer.ErrAlreadyResolved) {
		t.Errorf("mark after resolve: err = %v, want ErrAlreadyResolved", err)
	}
}

func TestWatchdogCancelsExpiredTransfer(t *testing.T) {
	f := newFixture(t, transfer.Config{MaxWait: 30 * time.Millisecond})
	ctx := context.Background()

	res := f.mustInitiate(t)

	deadline := time.Now().Add(2 * time.Second)
	for {
		tr, err := f.orch.Status(ctx, res.TransferID)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if tr.Status == transfer.StatusFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("transfer never timed out, status = %s", tr.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	from, _ := f.store.GetAgent(ctx, f.fromAgent.ID)
	if from.Status != agents.StatusBusy {
		t.Errorf("from-agent = %s, want busy", from.Status)
	}
	to, _ := f.store.GetAgent(ctx, f.toAgent.ID)
	if to.Status != agents.StatusAvailable {
		t.Errorf("to-agent = %s, want available", to.Status)
	}
	if len(f.orch.ActiveTransfers()) != 0 {
		t.Error("timed-out transfer should leave the active list")
	}
	if f.rooms.isOpen(res.TransferRoomID) {
		t.Error("side room should be closed after timeout")
	}
}

func TestCompleteDisarmsWatchdog(t *testing.T) {
	f := newFixture(t, transfer.Config{MaxWait: 40 * time.Millisecond})
	ctx := context.Background()

	res := f.mustInitiate(t)
	if _, err := f.orch.Complete(ctx, res.TransferID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	time.Sleep(120 * time.Millisecond)

	tr, _ := f.orch.Status(ctx, res.TransferID)
	if tr.Status != transfer.StatusCompleted {
		t.Errorf("watchdog must not fire after completion, status = %s", tr.Status)
	}
	c, _ := f.store.GetCall(ctx, f.call.ID)
	if c.AgentBID != f.toAgent.ID {
		t.Errorf("completed assignment reverted: agent_b_id = %q", c.AgentBID)
	}
}

func TestConcurrentCompleteAndCancel(t *testing.T) {
	f := newFixture(t, transfer.Config{})
	ctx := context.Background()

	res := f.mustInitiate(t)

	var wg sync.WaitGroup
	var completeErr, cancelErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, completeErr = f.orch.Complete(ctx, res.TransferID)
	}()
	go func() {
		defer wg.Done()
		cancelErr = f.orch.Cancel(ctx, res.TransferID, "race")
	}()
	wg.Wait()

	if (completeErr == nil) == (cancelErr == nil) {
		t.Fatalf("exactly one resolution must win: complete=%v cancel=%v", completeErr, cancelErr)
	}
	loser := completeErr
	if loser == nil {
		loser = cancelErr
	}
	if !errors.Is(loser, transfer.ErrAlreadyResolved) {
		t.Errorf("loser err = %v, want ErrAlreadyResolved", loser)
	}

	tr, _ := f.orch.Status(ctx, res.TransferID)
	if !tr.Status.Terminal() {
		t.Errorf("transfer must be terminal, got %s", tr.Status)
	}
	if len(f.orch.ActiveTransfers()) != 0 {
		t.Error("resolved transfer should leave the active list")
	}
}

func TestInitiateLosesToConcurrentCancel(t *testing.T) {
	f := newFixture(t, transfer.Config{})
	ctx := context.Background()

	f.rooms.createStarted = make(chan rooms.CreateRoomRequest)
	f.rooms.createRelease = make(chan struct{})

	type outcome struct {
		res transfer.InitiateResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.orch.Initiate(ctx, f.initiateReq())
		done <- outcome{res, err}
	}()

	// The transfer record is committed before provisioning starts; cancel it
	// while room creation is paused, then let provisioning finish.
	req := <-f.rooms.createStarted
	transferID := req.Metadata["transfer_id"]
	if err := f.orch.Cancel(ctx, transferID, "caller hung up"); err != nil {
		t.Fatalf("cancel during provisioning: %v", err)
	}
	close(f.rooms.createRelease)

	out := <-done
	if !errors.Is(out.err, transfer.ErrAlreadyResolved) {
		t.Fatalf("initiate err = %v, want ErrAlreadyResolved (cancel won)", out.err)
	}

	// The cancel's outcome must survive the late commit.
	tr, _ := f.orch.Status(ctx, transferID)
	if tr.Status != transfer.StatusFailed {
		t.Errorf("transfer status = %s, want failed", tr.Status)
	}
	c, _ := f.store.GetCall(ctx, f.call.ID)
	if c.Status != calls.StatusActive {
		t.Errorf("call status = %s, want active", c.Status)
	}
	to, _ := f.store.GetAgent(ctx, f.toAgent.ID)
	if to.Status != agents.StatusAvailable || to.CurrentRoomID != "" {
		t.Errorf("to-agent must stay released, got %s room %q", to.Status, to.CurrentRoomID)
	}
	if len(f.orch.ActiveTransfers()) != 0 {
		t.Error("resolved transfer must not be registered")
	}
	if f.rooms.isOpen(req.Name) {
		t.Error("side room created mid-flight should be closed")
	}
}

func TestAgentAvailability(t *testing.T) {
	f := newFixture(t, transfer.Config{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.store.CreateCall(ctx, calls.Call{
			ID: fmt.Sprintf("extra-%d", i), RoomID: fmt.Sprintf("room_extra_%d", i),
			Status: calls.StatusActive, AgentAID: f.toAgent.ID,
		}); err != nil {
			t.Fatal(err)
		}
	}

	avail, err := f.orch.AgentAvailability(ctx)
	if err != nil {
		t.Fatalf("availability: %v", err)
	}

	// Only the available agent is listed; the busy call owner is not.
	if len(avail) != 1 {
		t.Fatalf("len = %d, want 1 (%+v)", len(avail), avail)
	}
	got := avail[0]
	if got.Agent.ID != f.toAgent.ID {
		t.Errorf("agent = %s, want %s", got.Agent.ID, f.toAgent.ID)
	}
	if got.ActiveCallCount != 2 {
		t.Errorf("active calls = %d, want 2", got.ActiveCallCount)
	}
	if got.AvailableCapacity != 1 {
		t.Errorf("capacity = %d, want 1", got.AvailableCapacity)
	}
}

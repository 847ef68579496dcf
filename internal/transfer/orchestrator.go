package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"warmtransfer/internal/agents"
	"warmtransfer/internal/calls"
	"warmtransfer/internal/rooms"
	"warmtransfer/internal/summary"
	"warmtransfer/pkg/utils"
)

// Config controls orchestration behavior; pass it explicitly so tests can run
// with short watchdog budgets.
type Config struct {
	// MaxWait is the watchdog budget: a transfer unresolved past it is
	// cancelled automatically.
	MaxWait time.Duration

	// SideRoomMaxParticipants caps the handoff room: both agents plus headroom.
	SideRoomMaxParticipants int
}

// Orchestrator owns the warm-transfer state machine. It decides status
// transitions and the order of dependent side effects (room creation, token
// issuance, agent status flips); the store owns durable identity.
//
// Lifecycle operations on the same call are serialized by a per-call lock.
// Provider calls run lock-free between the validation commit and the final
// commit.
type Orchestrator struct {
	store      Store
	rooms      rooms.Provider
	summarizer *summary.Service
	registry   *Registry
	locks      *callLocks

	cfg    Config
	logger *slog.Logger

	// now is injectable for deterministic tests.
	now func() time.Time
}

func NewOrchestrator(store Store, provider rooms.Provider, summarizer *summary.Service, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 5 * time.Minute
	}
	if cfg.SideRoomMaxParticipants <= 0 {
		cfg.SideRoomMaxParticipants = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:      store,
		rooms:      provider,
		summarizer: summarizer,
		registry:   NewRegistry(),
		locks:      newCallLocks(),
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Registry exposes the in-flight index for listing.
func (o *Orchestrator) Registry() *Registry { return o.registry }

type InitiateRequest struct {
	CallID      string `json:"call_id" binding:"required"`
	FromAgentID string `json:"from_agent_id" binding:"required"`
	ToAgentID   string `json:"to_agent_id" binding:"required"`
	Reason      string `json:"reason"`
}

type InitiateResult struct {
	TransferID     string `json:"transfer_id"`
	TransferRoomID string `json:"transfer_room_id"`
	CallRoomID     string `json:"call_room_id"`

	FromAgentToken string `json:"from_agent_token"`
	ToAgentToken   string `json:"to_agent_token"`

	Summary         string `json:"summary"`
	TransferContext string `json:"transfer_context"`
}

// Initiate validates the transfer preconditions, creates the side room and
// both join tokens, and arms the timeout watchdog. Validation rejections
// leave all state untouched; failures after the transfer record exists mark
// it failed and revert the call before returning.
func (o *Orchestrator) Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error) {
	unlock := o.locks.lock(req.CallID)

	call, fromAgent, toAgent, err := o.validateInitiate(ctx, req)
	if err != nil {
		unlock()
		return InitiateResult{}, err
	}

	now := o.now()
	t := Transfer{
		ID:          uuid.NewString(),
		CallID:      call.ID,
		FromAgentID: fromAgent.ID,
		ToAgentID:   toAgent.ID,
		Status:      StatusInitiated,
		Reason:      req.Reason,
		InitiatedAt: now,
	}

	// Commit the decision before releasing the lock: a concurrent initiator
	// now fails validation on call status instead of racing the providers.
	transferring := calls.StatusTransferring
	if err := o.store.UpdateCall(ctx, call.ID, calls.Patch{Status: &transferring}); err != nil {
		unlock()
		return InitiateResult{}, fmt.Errorf("mark call transferring: %w", err)
	}
	created, err := o.store.CreateTransfer(ctx, t)
	if err != nil {
		o.revertCallStatus(ctx, call.ID)
		unlock()
		return InitiateResult{}, fmt.Errorf("create transfer: %w", err)
	}
	t = created
	unlock()

	res, err := o.provision(ctx, call, fromAgent, toAgent, t)
	if err != nil {
		o.cleanupFailedInitiate(ctx, t, res.TransferRoomID)
		return InitiateResult{}, err
	}

	// Final commit under the lock: persist artifacts, flip agents, register
	// the watchdog. Cleanup re-acquires the lock, so every failure path must
	// release it first.
	unlock = o.locks.lock(req.CallID)

	// A cancel may have landed while the providers ran. Terminal state wins:
	// the canceller already reverted the call and both agents, so the only
	// thing left to undo is the side room we just created.
	cur, err := o.store.GetTransfer(ctx, t.ID)
	if err != nil {
		unlock()
		o.cleanupFailedInitiate(ctx, t, res.TransferRoomID)
		return InitiateResult{}, fmt.Errorf("recheck transfer: %w", err)
	}
	if cur.Status.Terminal() {
		unlock()
		if err := o.rooms.CloseRoom(context.WithoutCancel(ctx), res.TransferRoomID); err != nil {
			o.logger.Warn("failed to close transfer room", "room_id", res.TransferRoomID, "error", err)
		}
		o.logger.Info("transfer resolved during provisioning", "transfer_id", t.ID, "status", cur.Status)
		return InitiateResult{}, ErrAlreadyResolved
	}

	patch := Patch{
		SummaryShared:  &res.Summary,
		TransferRoomID: &res.TransferRoomID,
	}
	if err := o.store.UpdateTransfer(ctx, t.ID, patch); err != nil {
		unlock()
		o.cleanupFailedInitiate(ctx, t, res.TransferRoomID)
		return InitiateResult{}, fmt.Errorf("persist transfer artifacts: %w", err)
	}

	busy := agents.StatusBusy
	if err := o.store.UpdateAgent(ctx, fromAgent.ID, agents.Patch{Status: &busy}); err != nil {
		unlock()
		o.cleanupFailedInitiate(ctx, t, res.TransferRoomID)
		return InitiateResult{}, fmt.Errorf("mark from-agent busy: %w", err)
	}
	sideRoom := res.TransferRoomID
	if err := o.store.UpdateAgent(ctx, toAgent.ID, agents.Patch{Status: &busy, CurrentRoomID: &sideRoom}); err != nil {
		unlock()
		o.cleanupFailedInitiate(ctx, t, res.TransferRoomID)
		return InitiateResult{}, fmt.Errorf("mark to-agent busy: %w", err)
	}
	defer unlock()

	o.registry.Add(Snapshot{
		TransferID:     t.ID,
		CallID:         call.ID,
		TransferRoomID: res.TransferRoomID,
		FromAgentID:    fromAgent.ID,
		ToAgentID:      toAgent.ID,
		Status:         StatusInitiated,
		InitiatedAt:    t.InitiatedAt,
	}, o.cfg.MaxWait, o.watchdogExpire)

	o.logger.Info("transfer initiated",
		"transfer_id", t.ID,
		"call_id", call.ID,
		"from_agent_id", fromAgent.ID,
		"to_agent_id", toAgent.ID,
		"transfer_room_id", res.TransferRoomID,
	)
	return res, nil
}

// validateInitiate checks the preconditions in their mandated order; the
// first failure wins and nothing is mutated.
func (o *Orchestrator) validateInitiate(ctx context.Context, req InitiateRequest) (calls.Call, agents.Agent, agents.Agent, error) {
	var zc calls.Call
	var za agents.Agent

	call, err := o.store.GetCall(ctx, req.CallID)
	if err != nil {
		return zc, za, za, err
	}
	fromAgent, err := o.store.GetAgent(ctx, req.FromAgentID)
	if err != nil {
		return zc, za, za, err
	}
	toAgent, err := o.store.GetAgent(ctx, req.ToAgentID)
	if err != nil {
		return zc, za, za, err
	}

	if call.Status != calls.StatusActive {
		return zc, za, za, ErrCallNotActive
	}
	if call.AgentAID != fromAgent.ID {
		return zc, za, za, ErrNotAssignedToCall
	}
	if toAgent.Status != agents.StatusAvailable {
		return zc, za, za, ErrTargetNotAvailable
	}
	if fromAgent.ID == toAgent.ID {
		return zc, za, za, ErrSameAgent
	}

	count, err := o.store.CountAgentCalls(ctx, toAgent.ID, occupyingStatuses())
	if err != nil {
		return zc, za, za, fmt.Errorf("count agent calls: %w", err)
	}
	if count >= toAgent.MaxConcurrentCalls {
		return zc, za, za, ErrMaxConcurrentCalls
	}

	return call, fromAgent, toAgent, nil
}

// occupyingStatuses is the single definition of "counts against capacity".
// Initiate's capacity check and AgentAvailability must share it.
func occupyingStatuses() []string {
	return []string{string(calls.StatusActive), string(calls.StatusTransferring)}
}

// provision runs the slow, lock-free middle of Initiate: summary, side room,
// tokens, handoff message.
func (o *Orchestrator) provision(ctx context.Context, call calls.Call, fromAgent, toAgent agents.Agent, t Transfer) (InitiateResult, error) {
	callSummary := call.Summary
	if callSummary == "" {
		callSummary = o.summarizer.Summarize(ctx, summary.SummaryRequest{
			Transcript:      call.Transcript,
			CallerName:      call.CallerName,
			CallerPhone:     call.CallerPhone,
			CallReason:      call.CallReason,
			DurationSeconds: call.DurationSeconds,
		})
		generatedAt := o.now()
		if err := o.store.UpdateCall(ctx, call.ID, calls.Patch{Summary: &callSummary, SummaryGeneratedAt: &generatedAt}); err != nil {
			o.logger.Warn("failed to cache call summary", "call_id", call.ID, "error", err)
		}
	}

	roomID := utils.GenerateRoomID("transfer", o.now())
	room, err := o.rooms.CreateRoom(ctx, rooms.CreateRoomRequest{
		Name:            roomID,
		MaxParticipants: o.cfg.SideRoomMaxParticipants,
		Metadata: map[string]string{
			"transfer_id": t.ID,
			"call_id":     call.ID,
		},
	})
	if err != nil {
		return InitiateResult{}, fmt.Errorf("create transfer room: %w", err)
	}

	fromToken, err := o.rooms.IssueToken(rooms.TokenRequest{
		RoomName:            room.Name,
		ParticipantIdentity: fromAgent.ID,
		ParticipantName:     fromAgent.Name,
	})
	if err != nil {
		return InitiateResult{TransferRoomID: room.Name}, fmt.Errorf("issue from-agent token: %w", err)
	}
	toToken, err := o.rooms.IssueToken(rooms.TokenRequest{
		RoomName:            room.Name,
		ParticipantIdentity: toAgent.ID,
		ParticipantName:     toAgent.Name,
	})
	if err != nil {
		return InitiateResult{TransferRoomID: room.Name}, fmt.Errorf("issue to-agent token: %w", err)
	}

	transferContext := o.summarizer.HandoffMessage(ctx, summary.HandoffRequest{
		Summary: callSummary,
		Reason:  t.Reason,
		Skills:  toAgent.Skills,
	})

	return InitiateResult{
		TransferID:      t.ID,
		TransferRoomID:  room.Name,
		CallRoomID:      call.RoomID,
		FromAgentToken:  fromToken,
		ToAgentToken:    toToken,
		Summary:         callSummary,
		TransferContext: transferContext,
	}, nil
}

// cleanupFailedInitiate marks the transfer failed and reverts the call so no
// transfer is left dangling without a watchdog. Best effort: each failure is
// logged, never raised past the original error.
func (o *Orchestrator) cleanupFailedInitiate(ctx context.Context, t Transfer, sideRoomID string) {
	unlock := o.locks.lock(t.CallID)
	defer unlock()

	now := o.now()
	failed := StatusFailed
	duration := int(now.Sub(t.InitiatedAt).Seconds())
	if err := o.store.UpdateTransfer(ctx, t.ID, Patch{
		Status:          &failed,
		CompletedAt:     &now,
		DurationSeconds: &duration,
	}); err != nil {
		o.logger.Error("cleanup: failed to mark transfer failed", "transfer_id", t.ID, "error", err)
	}
	o.revertCallStatus(ctx, t.CallID)
	o.registry.Resolve(t.ID)

	if sideRoomID != "" {
		if err := o.rooms.CloseRoom(context.WithoutCancel(ctx), sideRoomID); err != nil {
			o.logger.Warn("cleanup: failed to close transfer room", "room_id", sideRoomID, "error", err)
		}
	}
}

func (o *Orchestrator) revertCallStatus(ctx context.Context, callID string) {
	active := calls.StatusActive
	if err := o.store.UpdateCall(ctx, callID, calls.Patch{Status: &active}); err != nil {
		o.logger.Error("failed to revert call status", "call_id", callID, "error", err)
	}
}

// MarkInProgress records that the receiving agent joined the side room.
func (o *Orchestrator) MarkInProgress(ctx context.Context, transferID string) error {
	t, err := o.store.GetTransfer(ctx, transferID)
	if err != nil {
		return err
	}

	unlock := o.locks.lock(t.CallID)
	defer unlock()

	t, err = o.store.GetTransfer(ctx, transferID)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return ErrAlreadyResolved
	}
	if !t.Status.CanTransition(StatusInProgress) {
		return fmt.Errorf("transfer %s cannot move from %s to %s", t.ID, t.Status, StatusInProgress)
	}

	inProgress := StatusInProgress
	if err := o.store.UpdateTransfer(ctx, transferID, Patch{Status: &inProgress}); err != nil {
		return fmt.Errorf("mark transfer in progress: %w", err)
	}
	o.registry.SetStatus(transferID, StatusInProgress)
	return nil
}

type CompleteResult struct {
	CallRoomID       string    `json:"call_room_id"`
	ToAgentCallToken string    `json:"to_agent_call_token"`
	CompletedAt      time.Time `json:"completed_at"`
}

// Complete hands the call to the receiving agent: binds them as agent B,
// issues their call-room token, releases the original agent, and tears down
// the side room. The one legal path by which agent_b_id becomes non-empty.
func (o *Orchestrator) Complete(ctx context.Context, transferID string) (CompleteResult, error) {
	t, err := o.store.GetTransfer(ctx, transferID)
	if err != nil {
		return CompleteResult{}, err
	}

	unlock := o.locks.lock(t.CallID)

	t, err = o.store.GetTransfer(ctx, transferID)
	if err != nil {
		unlock()
		return CompleteResult{}, err
	}
	if t.Status.Terminal() {
		unlock()
		return CompleteResult{}, ErrAlreadyResolved
	}

	call, err := o.store.GetCall(ctx, t.CallID)
	if err != nil {
		unlock()
		return CompleteResult{}, err
	}

	toToken, err := o.rooms.IssueToken(rooms.TokenRequest{
		RoomName:            call.RoomID,
		ParticipantIdentity: t.ToAgentID,
	})
	if err != nil {
		unlock()
		return CompleteResult{}, fmt.Errorf("issue call-room token: %w", err)
	}

	now := o.now()
	active := calls.StatusActive
	agentB := t.ToAgentID
	if err := o.store.UpdateCall(ctx, t.CallID, calls.Patch{Status: &active, AgentBID: &agentB}); err != nil {
		unlock()
		return CompleteResult{}, fmt.Errorf("reassign call: %w", err)
	}

	completed := StatusCompleted
	duration := int(now.Sub(t.InitiatedAt).Seconds())
	if err := o.store.UpdateTransfer(ctx, transferID, Patch{
		Status:          &completed,
		CompletedAt:     &now,
		DurationSeconds: &duration,
	}); err != nil {
		unlock()
		return CompleteResult{}, fmt.Errorf("mark transfer completed: %w", err)
	}

	available := agents.StatusAvailable
	noRoom := ""
	if err := o.store.UpdateAgent(ctx, t.FromAgentID, agents.Patch{Status: &available, CurrentRoomID: &noRoom}); err != nil {
		o.logger.Error("failed to release from-agent", "agent_id", t.FromAgentID, "error", err)
	}
	busy := agents.StatusBusy
	callRoom := call.RoomID
	if err := o.store.UpdateAgent(ctx, t.ToAgentID, agents.Patch{Status: &busy, CurrentRoomID: &callRoom}); err != nil {
		o.logger.Error("failed to bind to-agent", "agent_id", t.ToAgentID, "error", err)
	}

	o.registry.Resolve(transferID)
	unlock()

	// Room teardown happens outside the lock; a provider hiccup here must not
	// undo an already-committed completion.
	teardownCtx := context.WithoutCancel(ctx)
	if err := o.rooms.RemoveParticipant(teardownCtx, call.RoomID, t.FromAgentID); err != nil {
		o.logger.Warn("failed to remove from-agent from call room", "room_id", call.RoomID, "agent_id", t.FromAgentID, "error", err)
	}
	if t.TransferRoomID != "" {
		if err := o.rooms.CloseRoom(teardownCtx, t.TransferRoomID); err != nil {
			o.logger.Warn("failed to close transfer room", "room_id", t.TransferRoomID, "error", err)
		}
	}

	o.logger.Info("transfer completed",
		"transfer_id", transferID,
		"call_id", t.CallID,
		"to_agent_id", t.ToAgentID,
		"duration", utils.FormatDuration(duration),
	)
	return CompleteResult{CallRoomID: call.RoomID, ToAgentCallToken: toToken, CompletedAt: now}, nil
}

// Cancel marks the transfer failed and reverts both agents and the call to
// their pre-transfer state. The from-agent goes back to busy: it still owns
// the original call.
func (o *Orchestrator) Cancel(ctx context.Context, transferID, reason string) error {
	t, err := o.store.GetTransfer(ctx, transferID)
	if err != nil {
		return err
	}

	unlock := o.locks.lock(t.CallID)

	t, err = o.store.GetTransfer(ctx, transferID)
	if err != nil {
		unlock()
		return err
	}
	if t.Status.Terminal() {
		unlock()
		return ErrAlreadyResolved
	}

	now := o.now()
	failed := StatusFailed
	duration := int(now.Sub(t.InitiatedAt).Seconds())
	if err := o.store.UpdateTransfer(ctx, transferID, Patch{
		Status:          &failed,
		CompletedAt:     &now,
		DurationSeconds: &duration,
	}); err != nil {
		unlock()
		return fmt.Errorf("mark transfer failed: %w", err)
	}

	o.revertCallStatus(ctx, t.CallID)

	busy := agents.StatusBusy
	if err := o.store.UpdateAgent(ctx, t.FromAgentID, agents.Patch{Status: &busy}); err != nil {
		o.logger.Error("failed to revert from-agent", "agent_id", t.FromAgentID, "error", err)
	}
	available := agents.StatusAvailable
	noRoom := ""
	if err := o.store.UpdateAgent(ctx, t.ToAgentID, agents.Patch{Status: &available, CurrentRoomID: &noRoom}); err != nil {
		o.logger.Error("failed to revert to-agent", "agent_id", t.ToAgentID, "error", err)
	}

	o.registry.Resolve(transferID)
	unlock()

	if t.TransferRoomID != "" {
		if err := o.rooms.CloseRoom(context.WithoutCancel(ctx), t.TransferRoomID); err != nil {
			o.logger.Warn("failed to close transfer room", "room_id", t.TransferRoomID, "error", err)
		}
	}

	o.logger.Info("transfer cancelled", "transfer_id", transferID, "call_id", t.CallID, "reason", reason)
	return nil
}

// Status is a pure store read; it never consults the in-memory registry so a
// restart cannot serve stale state.
func (o *Orchestrator) Status(ctx context.Context, transferID string) (Transfer, error) {
	return o.store.GetTransfer(ctx, transferID)
}

// ActiveTransfers lists in-flight transfers from the registry. Advisory only.
func (o *Orchestrator) ActiveTransfers() []Snapshot {
	return o.registry.List()
}

// AgentAvailability reports remaining capacity per available agent.
type AgentAvailability struct {
	Agent             agents.Agent `json:"agent"`
	ActiveCallCount   int          `json:"active_call_count"`
	AvailableCapacity int          `json:"available_capacity"`
}

func (o *Orchestrator) AgentAvailability(ctx context.Context) ([]AgentAvailability, error) {
	available, err := o.store.ListAgentsByStatus(ctx, agents.StatusAvailable)
	if err != nil {
		return nil, fmt.Errorf("list available agents: %w", err)
	}

	out := make([]AgentAvailability, 0, len(available))
	for _, a := range available {
		count, err := o.store.CountAgentCalls(ctx, a.ID, occupyingStatuses())
		if err != nil {
			return nil, fmt.Errorf("count calls for agent %s: %w", a.ID, err)
		}
		capacity := a.MaxConcurrentCalls - count
		if capacity < 0 {
			capacity = 0
		}
		out = append(out, AgentAvailability{Agent: a, ActiveCallCount: count, AvailableCapacity: capacity})
	}
	return out, nil
}

// watchdogExpire fires when a transfer outlives its wait budget. It runs
// outside any request lifetime and must never panic: failures are logged and
// the registry entry is gone either way.
func (o *Orchestrator) watchdogExpire(transferID string) {
	if !o.registry.Contains(transferID) {
		return
	}

	err := o.Cancel(context.Background(), transferID, "transfer timed out")
	switch {
	case err == nil:
		o.logger.Warn("transfer timed out and was cancelled", "transfer_id", transferID)
	case errors.Is(err, ErrAlreadyResolved), errors.Is(err, ErrTransferNotFound):
		// Resolved while the watchdog was firing. Drop any registry entry so
		// a resolved transfer can never linger in the active list.
		o.registry.Resolve(transferID)
	default:
		o.logger.Error("watchdog failed to cancel transfer", "transfer_id", transferID, "error", err)
		o.registry.Resolve(transferID)
	}
}

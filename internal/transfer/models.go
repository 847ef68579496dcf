package transfer

import "time"

// Transfer records one warm-transfer attempt for a call. At most one transfer
// is active per call at a time. Created by Initiate, mutated only by the
// orchestrator, never resurrected after reaching a terminal status.
type Transfer struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	FromAgentID string `json:"from_agent_id" db:"from_agent_id"`
	ToAgentID   string `json:"to_agent_id" db:"to_agent_id"`

	Status Status `json:"status" db:"status"`
	Reason string `json:"reason,omitempty" db:"reason"`

	// SummaryShared snapshots the call summary at transfer time.
	SummaryShared string `json:"summary_shared,omitempty" db:"summary_shared"`

	// TransferRoomID is the side room for the agent-to-agent handoff,
	// empty until the room is created.
	TransferRoomID string `json:"transfer_room_id,omitempty" db:"transfer_room_id"`

	InitiatedAt     time.Time  `json:"initiated_at" db:"initiated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	DurationSeconds int        `json:"duration_seconds" db:"duration_seconds"`
}

type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the transfer is resolved; no transition leaves a
// terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether s -> to is a legal transfer transition.
func (s Status) CanTransition(to Status) bool {
	if !to.Valid() || s.Terminal() {
		return false
	}
	switch s {
	case StatusInitiated:
		return to == StatusInProgress || to == StatusCompleted || to == StatusFailed
	case StatusInProgress:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Patch is a partial update applied by the store; nil fields are untouched.
type Patch struct {
	Status          *Status
	SummaryShared   *string
	TransferRoomID  *string
	CompletedAt     *time.Time
	DurationSeconds *int
}

// Snapshot is the lightweight registry view of an in-flight transfer.
// The store remains the source of truth; snapshots exist for timeout
// bookkeeping and advisory listing only.
type Snapshot struct {
	TransferID     string    `json:"transfer_id"`
	CallID         string    `json:"call_id"`
	TransferRoomID string    `json:"transfer_room_id"`
	FromAgentID    string    `json:"from_agent_id"`
	ToAgentID      string    `json:"to_agent_id"`
	Status         Status    `json:"status"`
	InitiatedAt    time.Time `json:"initiated_at"`
}

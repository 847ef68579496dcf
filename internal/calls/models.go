package calls

import "time"

// Call represents one customer session and its room.
//
// Invariant: AgentBID is non-empty only if the call has passed through
// StatusTransferring at least once; the transfer orchestrator's complete path
// is the only writer of AgentBID.
//
// Transcript is append-only from the caller's perspective; Summary is cached
// once generated and reused by later transfers.
type Call struct {
	ID     string `json:"id" db:"id"`
	RoomID string `json:"room_id" db:"room_id"`

	CallerName  string `json:"caller_name,omitempty" db:"caller_name"`
	CallerPhone string `json:"caller_phone,omitempty" db:"caller_phone"`
	CallReason  string `json:"call_reason,omitempty" db:"call_reason"`

	Priority PriorityLevel `json:"priority" db:"priority"`
	Status   CallStatus    `json:"status" db:"status"`

	// AgentAID is the owning agent; AgentBID is set only by a completed transfer.
	AgentAID string `json:"agent_a_id,omitempty" db:"agent_a_id"`
	AgentBID string `json:"agent_b_id,omitempty" db:"agent_b_id"`

	Transcript string `json:"transcript,omitempty" db:"transcript"`

	Summary            string     `json:"summary,omitempty" db:"summary"`
	SummaryGeneratedAt *time.Time `json:"summary_generated_at,omitempty" db:"summary_generated_at"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`
}

type CallStatus string

const (
	StatusWaiting      CallStatus = "waiting"
	StatusActive       CallStatus = "active"
	StatusTransferring CallStatus = "transferring"
	StatusCompleted    CallStatus = "completed"
	StatusFailed       CallStatus = "failed"
)

func (s CallStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusActive, StatusTransferring, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition may leave this status.
func (s CallStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether s -> to is a legal call transition.
// Writers must check this instead of writing arbitrary status strings.
func (s CallStatus) CanTransition(to CallStatus) bool {
	if !to.Valid() || s.Terminal() {
		return false
	}
	switch s {
	case StatusWaiting:
		return to == StatusActive || to == StatusFailed
	case StatusActive:
		return to == StatusTransferring || to == StatusCompleted || to == StatusFailed
	case StatusTransferring:
		// Reverting to active covers both completed and cancelled transfers.
		return to == StatusActive || to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

type PriorityLevel string

const (
	PriorityLow    PriorityLevel = "low"
	PriorityNormal PriorityLevel = "normal"
	PriorityHigh   PriorityLevel = "high"
	PriorityUrgent PriorityLevel = "urgent"
)

func (p PriorityLevel) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Patch is a partial update applied by the store; nil fields are untouched.
type Patch struct {
	Status             *CallStatus
	AgentAID           *string
	AgentBID           *string
	Transcript         *string
	Summary            *string
	SummaryGeneratedAt *time.Time
	StartedAt          *time.Time
	EndedAt            *time.Time
	DurationSeconds    *int
}

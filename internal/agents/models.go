package agents

import "time"

// Agent represents a human agent who can take calls.
//
// Invariant: Status is busy whenever the agent is bound to a call in
// active/transferring state, and CurrentRoomID matches that call's (or
// transfer's) room while bound.
type Agent struct {
	ID    string `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`

	Status        AgentStatus `json:"status" db:"status"`
	CurrentRoomID string      `json:"current_room_id,omitempty" db:"current_room_id"`

	MaxConcurrentCalls int      `json:"max_concurrent_calls" db:"max_concurrent_calls"`
	Skills             []string `json:"skills" db:"skills"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type AgentStatus string

const (
	StatusAvailable AgentStatus = "available"
	StatusBusy      AgentStatus = "busy"
	StatusOffline   AgentStatus = "offline"
)

func (s AgentStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusBusy, StatusOffline:
		return true
	default:
		return false
	}
}

// Patch is a partial update applied by the store; nil fields are untouched.
// CurrentRoomID uses a pointer-to-string so "" can clear the binding.
type Patch struct {
	Name               *string
	Status             *AgentStatus
	CurrentRoomID      *string
	MaxConcurrentCalls *int
	Skills             *[]string
}

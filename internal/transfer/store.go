package transfer

import (
	"context"

	"warmtransfer/internal/agents"
	"warmtransfer/internal/calls"
)

// Store is the persistence contract the orchestrator depends on. It is the
// durable source of truth; the in-memory registry never outlives it.
//
// Implementations must reflect the caller's latest committed writes: the
// orchestrator serializes writers per call, so read-after-write within one
// operation must be consistent.
type Store interface {
	GetCall(ctx context.Context, id string) (calls.Call, error)
	GetAgent(ctx context.Context, id string) (agents.Agent, error)
	GetTransfer(ctx context.Context, id string) (Transfer, error)

	CreateTransfer(ctx context.Context, t Transfer) (Transfer, error)

	UpdateCall(ctx context.Context, id string, patch calls.Patch) error
	UpdateAgent(ctx context.Context, id string, patch agents.Patch) error
	UpdateTransfer(ctx context.Context, id string, patch Patch) error

	// CountAgentCalls counts calls bound to agentID as agent A or agent B
	// whose status is in statuses. Completion binds the receiving agent as
	// agent B, so their live call must keep consuming capacity. The capacity
	// precondition of Initiate and AgentAvailability must share this exact
	// counting path or the concurrency cap can be bypassed.
	//
	// Statuses are plain strings so callers that cannot import the call
	// status enum can still count.
	CountAgentCalls(ctx context.Context, agentID string, statuses []string) (int, error)

	// ListAgentsByStatus supports AgentAvailability.
	ListAgentsByStatus(ctx context.Context, status agents.AgentStatus) ([]agents.Agent, error)
}

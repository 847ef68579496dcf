package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"warmtransfer/internal/agents"
	"warmtransfer/internal/calls"
	"warmtransfer/internal/transfer"
)

// Memory is an in-memory store useful for tests and early development.
// It satisfies the call, agent, and transfer store contracts.
//
// NOTE: Not intended for production; replace with the Postgres implementation.
type Memory struct {
	mu        sync.RWMutex
	calls     map[string]calls.Call
	agents    map[string]agents.Agent
	transfers map[string]transfer.Transfer

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		calls:     make(map[string]calls.Call),
		agents:    make(map[string]agents.Agent),
		transfers: make(map[string]transfer.Transfer),
		now:       time.Now,
	}
}

// --- Calls ---

func (m *Memory) CreateCall(ctx context.Context, c calls.Call) (calls.Call, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.calls[c.ID] = c
	return c, nil
}

func (m *Memory) GetCall(ctx context.Context, id string) (calls.Call, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.calls[id]
	if !ok {
		return calls.Call{}, calls.ErrNotFound
	}
	return c, nil
}

func (m *Memory) GetCallByRoomID(ctx context.Context, roomID string) (calls.Call, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.calls {
		if c.RoomID == roomID {
			return c, nil
		}
	}
	return calls.Call{}, calls.ErrNotFound
}

func (m *Memory) UpdateCall(ctx context.Context, id string, p calls.Patch) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.calls[id]
	if !ok {
		return calls.ErrNotFound
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.AgentAID != nil {
		c.AgentAID = *p.AgentAID
	}
	if p.AgentBID != nil {
		c.AgentBID = *p.AgentBID
	}
	if p.Transcript != nil {
		c.Transcript = *p.Transcript
	}
	if p.Summary != nil {
		c.Summary = *p.Summary
	}
	if p.SummaryGeneratedAt != nil {
		c.SummaryGeneratedAt = p.SummaryGeneratedAt
	}
	if p.StartedAt != nil {
		c.StartedAt = p.StartedAt
	}
	if p.EndedAt != nil {
		c.EndedAt = p.EndedAt
	}
	if p.DurationSeconds != nil {
		c.DurationSeconds = *p.DurationSeconds
	}
	c.UpdatedAt = m.now()
	m.calls[id] = c
	return nil
}

func (m *Memory) ListCalls(ctx context.Context, filter calls.ListFilter) ([]calls.Call, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]calls.Call, 0, len(m.calls))
	for _, c := range m.calls {
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.AgentID != "" && c.AgentAID != filter.AgentID && c.AgentBID != filter.AgentID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) CountAgentCalls(ctx context.Context, agentID string, statuses []string) (int, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, c := range m.calls {
		if c.AgentAID != agentID && c.AgentBID != agentID {
			continue
		}
		for _, s := range statuses {
			if string(c.Status) == s {
				count++
				break
			}
		}
	}
	return count, nil
}

// --- Agents ---

func (m *Memory) CreateAgent(ctx context.Context, a agents.Agent) (agents.Agent, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.agents {
		if strings.EqualFold(existing.Email, a.Email) {
			return agents.Agent{}, agents.ErrEmailTaken
		}
	}

	now := m.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	m.agents[a.ID] = a
	return a, nil
}

func (m *Memory) GetAgent(ctx context.Context, id string) (agents.Agent, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[id]
	if !ok {
		return agents.Agent{}, agents.ErrNotFound
	}
	return a, nil
}

func (m *Memory) GetAgentByEmail(ctx context.Context, email string) (agents.Agent, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.agents {
		if strings.EqualFold(a.Email, email) {
			return a, nil
		}
	}
	return agents.Agent{}, agents.ErrNotFound
}

func (m *Memory) UpdateAgent(ctx context.Context, id string, p agents.Patch) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[id]
	if !ok {
		return agents.ErrNotFound
	}
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.CurrentRoomID != nil {
		a.CurrentRoomID = *p.CurrentRoomID
	}
	if p.MaxConcurrentCalls != nil {
		a.MaxConcurrentCalls = *p.MaxConcurrentCalls
	}
	if p.Skills != nil {
		a.Skills = *p.Skills
	}
	a.UpdatedAt = m.now()
	m.agents[id] = a
	return nil
}

func (m *Memory) ListAgents(ctx context.Context, status *agents.AgentStatus) ([]agents.Agent, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]agents.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		if status != nil && a.Status != *status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListAgentsByStatus(ctx context.Context, status agents.AgentStatus) ([]agents.Agent, error) {
	return m.ListAgents(ctx, &status)
}

// --- Transfers ---

func (m *Memory) CreateTransfer(ctx context.Context, t transfer.Transfer) (transfer.Transfer, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.InitiatedAt.IsZero() {
		t.InitiatedAt = m.now()
	}
	m.transfers[t.ID] = t
	return t, nil
}

func (m *Memory) GetTransfer(ctx context.Context, id string) (transfer.Transfer, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.transfers[id]
	if !ok {
		return transfer.Transfer{}, transfer.ErrTransferNotFound
	}
	return t, nil
}

func (m *Memory) UpdateTransfer(ctx context.Context, id string, p transfer.Patch) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transfers[id]
	if !ok {
		return transfer.ErrTransferNotFound
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.SummaryShared != nil {
		t.SummaryShared = *p.SummaryShared
	}
	if p.TransferRoomID != nil {
		t.TransferRoomID = *p.TransferRoomID
	}
	if p.CompletedAt != nil {
		t.CompletedAt = p.CompletedAt
	}
	if p.DurationSeconds != nil {
		t.DurationSeconds = *p.DurationSeconds
	}
	m.transfers[id] = t
	return nil
}

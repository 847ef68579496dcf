package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"warmtransfer/internal/agents"
	"warmtransfer/internal/calls"
	"warmtransfer/internal/transfer"
)

// Postgres implements the call, agent, and transfer store contracts over
// hand-written SQL. Assumes these tables exist:
// - calls
// - agents (UNIQUE lower(email); skills stored as jsonb)
// - transfers
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const callColumns = `id, room_id, caller_name, caller_phone, call_reason, priority, status,
       agent_a_id, agent_b_id, transcript, summary, summary_generated_at,
       created_at, updated_at, started_at, ended_at, duration_seconds`

func scanCall(row interface{ Scan(...any) error }) (calls.Call, error) {
	var c calls.Call
	var callerName, callerPhone, callReason, agentA, agentB, transcript, summary sql.NullString
	var summaryAt, startedAt, endedAt sql.NullTime

	err := row.Scan(
		&c.ID,
		&c.RoomID,
		&callerName,
		&callerPhone,
		&callReason,
		&c.Priority,
		&c.Status,
		&agentA,
		&agentB,
		&transcript,
		&summary,
		&summaryAt,
		&c.CreatedAt,
		&c.UpdatedAt,
		&startedAt,
		&endedAt,
		&c.DurationSeconds,
	)
	if err != nil {
		return calls.Call{}, err
	}

	c.CallerName = callerName.String
	c.CallerPhone = callerPhone.String
	c.CallReason = callReason.String
	c.AgentAID = agentA.String
	c.AgentBID = agentB.String
	c.Transcript = transcript.String
	c.Summary = summary.String
	if summaryAt.Valid {
		t := summaryAt.Time
		c.SummaryGeneratedAt = &t
	}
	if startedAt.Valid {
		t := startedAt.Time
		c.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		c.EndedAt = &t
	}
	return c, nil
}

func (p *Postgres) CreateCall(ctx context.Context, c calls.Call) (calls.Call, error) {
	const q = `
INSERT INTO calls (
  id, room_id, caller_name, caller_phone, call_reason, priority, status,
  agent_a_id, transcript, created_at, updated_at, started_at, duration_seconds
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9,$10,$10,$11,$12
)
`
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt

	_, err := p.db.ExecContext(ctx, q,
		c.ID,
		c.RoomID,
		c.CallerName,
		c.CallerPhone,
		c.CallReason,
		c.Priority,
		c.Status,
		c.AgentAID,
		c.Transcript,
		c.CreatedAt,
		c.StartedAt,
		c.DurationSeconds,
	)
	if err != nil {
		return calls.Call{}, fmt.Errorf("insert call: %w", err)
	}
	return c, nil
}

func (p *Postgres) GetCall(ctx context.Context, id string) (calls.Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	c, err := scanCall(p.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return calls.Call{}, calls.ErrNotFound
		}
		return calls.Call{}, err
	}
	return c, nil
}

func (p *Postgres) GetCallByRoomID(ctx context.Context, roomID string) (calls.Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE room_id = $1`
	c, err := scanCall(p.db.QueryRowContext(ctx, q, roomID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return calls.Call{}, calls.ErrNotFound
		}
		return calls.Call{}, err
	}
	return c, nil
}

func (p *Postgres) UpdateCall(ctx context.Context, id string, patch calls.Patch) error {
	set := []string{"updated_at = now()"}
	args := []any{id}

	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.AgentAID != nil {
		add("agent_a_id", nullable(*patch.AgentAID))
	}
	if patch.AgentBID != nil {
		add("agent_b_id", nullable(*patch.AgentBID))
	}
	if patch.Transcript != nil {
		add("transcript", *patch.Transcript)
	}
	if patch.Summary != nil {
		add("summary", *patch.Summary)
	}
	if patch.SummaryGeneratedAt != nil {
		add("summary_generated_at", *patch.SummaryGeneratedAt)
	}
	if patch.StartedAt != nil {
		add("started_at", *patch.StartedAt)
	}
	if patch.EndedAt != nil {
		add("ended_at", *patch.EndedAt)
	}
	if patch.DurationSeconds != nil {
		add("duration_seconds", *patch.DurationSeconds)
	}

	q := "UPDATE calls SET " + strings.Join(set, ", ") + " WHERE id = $1"
	res, err := p.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update call: %w", err)
	}
	return requireRow(res, calls.ErrNotFound)
}

func (p *Postgres) ListCalls(ctx context.Context, filter calls.ListFilter) ([]calls.Call, error) {
	where := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.AgentID != "" {
		args = append(args, filter.AgentID)
		where = append(where, fmt.Sprintf("(agent_a_id = $%d OR agent_b_id = $%d)", len(args), len(args)))
	}

	q := `SELECT ` + callColumns + ` FROM calls WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var out []calls.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) CountAgentCalls(ctx context.Context, agentID string, statuses []string) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	args := []any{agentID}
	placeholders := make([]string, 0, len(statuses))
	for _, s := range statuses {
		args = append(args, s)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	q := `SELECT count(*) FROM calls WHERE (agent_a_id = $1 OR agent_b_id = $1) AND status IN (` +
		strings.Join(placeholders, ",") + `)`

	var count int
	if err := p.db.QueryRowContext(ctx, q, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count agent calls: %w", err)
	}
	return count, nil
}

// --- Agents ---

const agentColumns = `id, name, email, status, current_room_id, max_concurrent_calls, skills, created_at, updated_at`

func scanAgent(row interface{ Scan(...any) error }) (agents.Agent, error) {
	var a agents.Agent
	var currentRoom sql.NullString
	var skills []byte

	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Email,
		&a.Status,
		&currentRoom,
		&a.MaxConcurrentCalls,
		&skills,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return agents.Agent{}, err
	}

	a.CurrentRoomID = currentRoom.String
	if len(skills) > 0 {
		if err := json.Unmarshal(skills, &a.Skills); err != nil {
			return agents.Agent{}, fmt.Errorf("decode agent skills: %w", err)
		}
	}
	return a, nil
}

func (p *Postgres) CreateAgent(ctx context.Context, a agents.Agent) (agents.Agent, error) {
	skills, err := json.Marshal(a.Skills)
	if err != nil {
		return agents.Agent{}, fmt.Errorf("encode agent skills: %w", err)
	}

	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt

	const q = `
INSERT INTO agents (
  id, name, email, status, current_room_id, max_concurrent_calls, skills, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,NULLIF($5,''),$6,$7,$8,$8
)
`
	_, err = p.db.ExecContext(ctx, q,
		a.ID,
		a.Name,
		a.Email,
		a.Status,
		a.CurrentRoomID,
		a.MaxConcurrentCalls,
		skills,
		a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return agents.Agent{}, agents.ErrEmailTaken
		}
		return agents.Agent{}, fmt.Errorf("insert agent: %w", err)
	}
	return a, nil
}

func (p *Postgres) GetAgent(ctx context.Context, id string) (agents.Agent, error) {
	q := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1`
	a, err := scanAgent(p.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return agents.Agent{}, agents.ErrNotFound
		}
		return agents.Agent{}, err
	}
	return a, nil
}

func (p *Postgres) GetAgentByEmail(ctx context.Context, email string) (agents.Agent, error) {
	q := `SELECT ` + agentColumns + ` FROM agents WHERE lower(email) = lower($1)`
	a, err := scanAgent(p.db.QueryRowContext(ctx, q, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return agents.Agent{}, agents.ErrNotFound
		}
		return agents.Agent{}, err
	}
	return a, nil
}

func (p *Postgres) UpdateAgent(ctx context.Context, id string, patch agents.Patch) error {
	set := []string{"updated_at = now()"}
	args := []any{id}

	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.CurrentRoomID != nil {
		add("current_room_id", nullable(*patch.CurrentRoomID))
	}
	if patch.MaxConcurrentCalls != nil {
		add("max_concurrent_calls", *patch.MaxConcurrentCalls)
	}
	if patch.Skills != nil {
		skills, err := json.Marshal(*patch.Skills)
		if err != nil {
			return fmt.Errorf("encode agent skills: %w", err)
		}
		add("skills", skills)
	}

	q := "UPDATE agents SET " + strings.Join(set, ", ") + " WHERE id = $1"
	res, err := p.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	return requireRow(res, agents.ErrNotFound)
}

func (p *Postgres) ListAgents(ctx context.Context, status *agents.AgentStatus) ([]agents.Agent, error) {
	q := `SELECT ` + agentColumns + ` FROM agents`
	args := []any{}
	if status != nil {
		q += ` WHERE status = $1`
		args = append(args, *status)
	}
	q += ` ORDER BY created_at`

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []agents.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) ListAgentsByStatus(ctx context.Context, status agents.AgentStatus) ([]agents.Agent, error) {
	return p.ListAgents(ctx, &status)
}

// --- Transfers ---

const transferColumns = `id, call_id, from_agent_id, to_agent_id, status, reason,
       summary_shared, transfer_room_id, initiated_at, completed_at, duration_seconds`

func scanTransfer(row interface{ Scan(...any) error }) (transfer.Transfer, error) {
	var t transfer.Transfer
	var reason, summaryShared, transferRoom sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&t.ID,
		&t.CallID,
		&t.FromAgentID,
		&t.ToAgentID,
		&t.Status,
		&reason,
		&summaryShared,
		&transferRoom,
		&t.InitiatedAt,
		&completedAt,
		&t.DurationSeconds,
	)
	if err != nil {
		return transfer.Transfer{}, err
	}

	t.Reason = reason.String
	t.SummaryShared = summaryShared.String
	t.TransferRoomID = transferRoom.String
	if completedAt.Valid {
		ct := completedAt.Time
		t.CompletedAt = &ct
	}
	return t, nil
}

func (p *Postgres) CreateTransfer(ctx context.Context, t transfer.Transfer) (transfer.Transfer, error) {
	const q = `
INSERT INTO transfers (
  id, call_id, from_agent_id, to_agent_id, status, reason, summary_shared,
  transfer_room_id, initiated_at, duration_seconds
) VALUES (
  $1,$2,$3,$4,$5,$6,NULLIF($7,''),NULLIF($8,''),$9,$10
)
`
	if t.InitiatedAt.IsZero() {
		t.InitiatedAt = time.Now()
	}

	_, err := p.db.ExecContext(ctx, q,
		t.ID,
		t.CallID,
		t.FromAgentID,
		t.ToAgentID,
		t.Status,
		t.Reason,
		t.SummaryShared,
		t.TransferRoomID,
		t.InitiatedAt,
		t.DurationSeconds,
	)
	if err != nil {
		return transfer.Transfer{}, fmt.Errorf("insert transfer: %w", err)
	}
	return t, nil
}

func (p *Postgres) GetTransfer(ctx context.Context, id string) (transfer.Transfer, error) {
	q := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`
	t, err := scanTransfer(p.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transfer.Transfer{}, transfer.ErrTransferNotFound
		}
		return transfer.Transfer{}, err
	}
	return t, nil
}

func (p *Postgres) UpdateTransfer(ctx context.Context, id string, patch transfer.Patch) error {
	set := []string{}
	args := []any{id}

	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.SummaryShared != nil {
		add("summary_shared", *patch.SummaryShared)
	}
	if patch.TransferRoomID != nil {
		add("transfer_room_id", *patch.TransferRoomID)
	}
	if patch.CompletedAt != nil {
		add("completed_at", *patch.CompletedAt)
	}
	if patch.DurationSeconds != nil {
		add("duration_seconds", *patch.DurationSeconds)
	}
	if len(set) == 0 {
		return nil
	}

	q := "UPDATE transfers SET " + strings.Join(set, ", ") + " WHERE id = $1"
	res, err := p.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update transfer: %w", err)
	}
	return requireRow(res, transfer.ErrTransferNotFound)
}

// --- helpers ---

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// isUniqueViolation matches Postgres error code 23505 without binding this
// package to the driver's error type.
func isUniqueViolation(err error) bool {
	var coder interface{ SQLState() string }
	if errors.As(err, &coder) {
		return coder.SQLState() == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key value")
}

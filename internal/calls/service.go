package calls

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"warmtransfer/internal/agents"
	"warmtransfer/internal/rooms"
	"warmtransfer/pkg/utils"
)

// Store is the persistence contract the call service depends on.
type Store interface {
	CreateCall(ctx context.Context, c Call) (Call, error)
	GetCall(ctx context.Context, id string) (Call, error)
	GetCallByRoomID(ctx context.Context, roomID string) (Call, error)
	UpdateCall(ctx context.Context, id string, patch Patch) error
	ListCalls(ctx context.Context, filter ListFilter) ([]Call, error)

	GetAgent(ctx context.Context, id string) (agents.Agent, error)
	UpdateAgent(ctx context.Context, id string, patch agents.Patch) error
	ListAgentsByStatus(ctx context.Context, status agents.AgentStatus) ([]agents.Agent, error)
}

// ListFilter narrows ListCalls output; zero values match everything.
type ListFilter struct {
	Status  *CallStatus
	AgentID string
	Limit   int
}

// Service owns call lifecycle outside of warm transfers: creation, joining,
// transcript updates, and teardown.
type Service struct {
	store  Store
	rooms  rooms.Provider
	logger *slog.Logger

	callRoomMaxParticipants int

	now func() time.Time
}

func NewService(store Store, provider rooms.Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:                   store,
		rooms:                   provider,
		logger:                  logger,
		callRoomMaxParticipants: 5,
		now:                     time.Now,
	}
}

type CreateRequest struct {
	CallerName  string        `json:"caller_name"`
	CallerPhone string        `json:"caller_phone"`
	CallReason  string        `json:"call_reason"`
	Priority    PriorityLevel `json:"priority"`

	// AssignAgent picks the first available agent and binds them to the call.
	AssignAgent bool `json:"assign_agent"`
}

type CreateResult struct {
	Call        Call   `json:"call"`
	CallerToken string `json:"access_token"`
}

// Create provisions a room, optionally assigns an available agent, persists
// the call record, and issues the caller's join token.
func (s *Service) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	priority := req.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if !priority.Valid() {
		return CreateResult{}, fmt.Errorf("%w: invalid priority %q", ErrInvalidStatus, priority)
	}

	now := s.now()
	roomID := utils.GenerateRoomID("call", now)
	if _, err := s.rooms.CreateRoom(ctx, rooms.CreateRoomRequest{
		Name:            roomID,
		MaxParticipants: s.callRoomMaxParticipants,
		Metadata: map[string]string{
			"type":        "customer_call",
			"caller_name": req.CallerName,
			"priority":    string(priority),
		},
	}); err != nil {
		return CreateResult{}, fmt.Errorf("create call room: %w", err)
	}

	c := Call{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		CallerName:  req.CallerName,
		CallerPhone: req.CallerPhone,
		CallReason:  req.CallReason,
		Priority:    priority,
		Status:      StatusWaiting,
		CreatedAt:   now,
	}

	if req.AssignAgent {
		if agent, ok := s.pickAvailableAgent(ctx); ok {
			c.AgentAID = agent.ID
			c.Status = StatusActive
			c.StartedAt = &now

			busy := agents.StatusBusy
			if err := s.store.UpdateAgent(ctx, agent.ID, agents.Patch{Status: &busy, CurrentRoomID: &roomID}); err != nil {
				return CreateResult{}, fmt.Errorf("assign agent %s: %w", agent.ID, err)
			}
		}
	}

	created, err := s.store.CreateCall(ctx, c)
	if err != nil {
		return CreateResult{}, fmt.Errorf("persist call: %w", err)
	}

	callerToken, err := s.rooms.IssueToken(rooms.TokenRequest{
		RoomName:            roomID,
		ParticipantIdentity: "caller_" + created.ID,
		ParticipantName:     callerDisplayName(req.CallerName),
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("issue caller token: %w", err)
	}

	s.logger.Info("call created", "call_id", created.ID, "room_id", roomID, "agent_a_id", created.AgentAID)
	return CreateResult{Call: created, CallerToken: callerToken}, nil
}

func (s *Service) pickAvailableAgent(ctx context.Context) (agents.Agent, bool) {
	available, err := s.store.ListAgentsByStatus(ctx, agents.StatusAvailable)
	if err != nil {
		s.logger.Warn("agent auto-assign lookup failed", "error", err)
		return agents.Agent{}, false
	}
	if len(available) == 0 {
		return agents.Agent{}, false
	}
	return available[0], true
}

type JoinRequest struct {
	RoomID              string `json:"room_id" binding:"required"`
	ParticipantIdentity string `json:"participant_identity" binding:"required"`
	ParticipantName     string `json:"participant_name"`
}

type JoinResult struct {
	AccessToken string     `json:"access_token"`
	RoomID      string     `json:"room_id"`
	CallStatus  CallStatus `json:"call_status"`
}

// Join issues a token for the call room. Identities of the form "agent_<id>"
// additionally mark that agent busy and bind them to the room.
func (s *Service) Join(ctx context.Context, req JoinRequest) (JoinResult, error) {
	c, err := s.store.GetCallByRoomID(ctx, req.RoomID)
	if err != nil {
		return JoinResult{}, err
	}

	token, err := s.rooms.IssueToken(rooms.TokenRequest{
		RoomName:            req.RoomID,
		ParticipantIdentity: req.ParticipantIdentity,
		ParticipantName:     req.ParticipantName,
	})
	if err != nil {
		return JoinResult{}, fmt.Errorf("issue join token: %w", err)
	}

	if agentID, ok := strings.CutPrefix(req.ParticipantIdentity, "agent_"); ok && agentID != "" {
		busy := agents.StatusBusy
		roomID := req.RoomID
		if err := s.store.UpdateAgent(ctx, agentID, agents.Patch{Status: &busy, CurrentRoomID: &roomID}); err != nil {
			s.logger.Warn("failed to bind joining agent", "agent_id", agentID, "error", err)
		}
	}

	return JoinResult{AccessToken: token, RoomID: req.RoomID, CallStatus: c.Status}, nil
}

func (s *Service) Get(ctx context.Context, id string) (Call, error) {
	return s.store.GetCall(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Call, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *filter.Status)
	}
	return s.store.ListCalls(ctx, filter)
}

type UpdateRequest struct {
	Status     *CallStatus `json:"status"`
	Transcript *string     `json:"transcript"`
}

// Update applies a status transition and/or transcript update. Completing a
// call stamps its end time, computes the duration, and releases both agents.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) error {
	c, err := s.store.GetCall(ctx, id)
	if err != nil {
		return err
	}

	patch := Patch{Transcript: req.Transcript}
	if req.Status != nil {
		to := *req.Status
		if !to.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
		}
		if !c.Status.CanTransition(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
		}
		patch.Status = &to

		if to == StatusCompleted {
			now := s.now()
			patch.EndedAt = &now
			if c.StartedAt != nil {
				d := int(now.Sub(*c.StartedAt).Seconds())
				patch.DurationSeconds = &d
			}
		}
	}

	if err := s.store.UpdateCall(ctx, id, patch); err != nil {
		return err
	}

	if patch.Status != nil && *patch.Status == StatusCompleted {
		s.releaseAgents(ctx, c)
	}
	return nil
}

// End completes a call: closes its room, stamps end time and duration, and
// releases both agents.
func (s *Service) End(ctx context.Context, id string) error {
	c, err := s.store.GetCall(ctx, id)
	if err != nil {
		return err
	}

	if err := s.rooms.CloseRoom(ctx, c.RoomID); err != nil {
		s.logger.Warn("failed to close call room", "room_id", c.RoomID, "error", err)
	}

	now := s.now()
	completed := StatusCompleted
	patch := Patch{Status: &completed, EndedAt: &now}
	if c.StartedAt != nil {
		d := int(now.Sub(*c.StartedAt).Seconds())
		patch.DurationSeconds = &d
	}
	if err := s.store.UpdateCall(ctx, id, patch); err != nil {
		return err
	}

	s.releaseAgents(ctx, c)
	s.logger.Info("call ended", "call_id", id, "room_id", c.RoomID)
	return nil
}

func (s *Service) releaseAgents(ctx context.Context, c Call) {
	available := agents.StatusAvailable
	noRoom := ""
	for _, agentID := range []string{c.AgentAID, c.AgentBID} {
		if agentID == "" {
			continue
		}
		if err := s.store.UpdateAgent(ctx, agentID, agents.Patch{Status: &available, CurrentRoomID: &noRoom}); err != nil {
			s.logger.Warn("failed to release agent", "agent_id", agentID, "error", err)
		}
	}
}

func callerDisplayName(name string) string {
	if name == "" {
		return "Customer"
	}
	return name
}

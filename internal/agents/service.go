package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence contract the agent service depends on.
type Store interface {
	CreateAgent(ctx context.Context, a Agent) (Agent, error)
	GetAgent(ctx context.Context, id string) (Agent, error)
	GetAgentByEmail(ctx context.Context, email string) (Agent, error)
	UpdateAgent(ctx context.Context, id string, patch Patch) error
	ListAgents(ctx context.Context, status *AgentStatus) ([]Agent, error)

	// CountAgentCalls takes call statuses as plain strings: this package is a
	// leaf and must not import the call status enum.
	CountAgentCalls(ctx context.Context, agentID string, statuses []string) (int, error)
}

// occupiedCallStatuses are the call statuses that bind an agent to a live
// call. Must stay in sync with the call status enum.
var occupiedCallStatuses = []string{"active", "transferring"}

type Service struct {
	store  Store
	logger *slog.Logger

	defaultMaxConcurrentCalls int

	now func() time.Time
}

func NewService(store Store, defaultMaxConcurrentCalls int, logger *slog.Logger) *Service {
	if defaultMaxConcurrentCalls <= 0 {
		defaultMaxConcurrentCalls = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:                     store,
		logger:                    logger,
		defaultMaxConcurrentCalls: defaultMaxConcurrentCalls,
		now:                       time.Now,
	}
}

type CreateRequest struct {
	Name               string   `json:"name" binding:"required"`
	Email              string   `json:"email" binding:"required,email"`
	Skills             []string `json:"skills"`
	MaxConcurrentCalls int      `json:"max_concurrent_calls"`
}

// Create registers a new agent; email must be unused.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Agent, error) {
	maxCalls := req.MaxConcurrentCalls
	if maxCalls <= 0 {
		maxCalls = s.defaultMaxConcurrentCalls
	}

	a := Agent{
		ID:                 uuid.NewString(),
		Name:               strings.TrimSpace(req.Name),
		Email:              strings.ToLower(strings.TrimSpace(req.Email)),
		Status:             StatusAvailable,
		MaxConcurrentCalls: maxCalls,
		Skills:             req.Skills,
		CreatedAt:          s.now(),
	}

	created, err := s.store.CreateAgent(ctx, a)
	if err != nil {
		return Agent{}, err
	}
	s.logger.Info("agent created", "agent_id", created.ID, "email", created.Email)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (Agent, error) {
	return s.store.GetAgent(ctx, id)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (Agent, error) {
	return s.store.GetAgentByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

func (s *Service) List(ctx context.Context, status *AgentStatus) ([]Agent, error) {
	if status != nil && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *status)
	}
	return s.store.ListAgents(ctx, status)
}

type UpdateRequest struct {
	Name               *string   `json:"name"`
	Skills             *[]string `json:"skills"`
	MaxConcurrentCalls *int      `json:"max_concurrent_calls"`
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (Agent, error) {
	patch := Patch{
		Name:   req.Name,
		Skills: req.Skills,
	}
	if req.MaxConcurrentCalls != nil {
		if *req.MaxConcurrentCalls <= 0 {
			return Agent{}, fmt.Errorf("max_concurrent_calls must be positive, got %d", *req.MaxConcurrentCalls)
		}
		patch.MaxConcurrentCalls = req.MaxConcurrentCalls
	}

	if err := s.store.UpdateAgent(ctx, id, patch); err != nil {
		return Agent{}, err
	}
	return s.store.GetAgent(ctx, id)
}

// UpdateStatus sets an agent's availability. Going offline requires the agent
// to have no active or transferring call bound to them.
func (s *Service) UpdateStatus(ctx context.Context, id string, status AgentStatus) (Agent, error) {
	if !status.Valid() {
		return Agent{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if _, err := s.store.GetAgent(ctx, id); err != nil {
		return Agent{}, err
	}

	if status == StatusOffline {
		count, err := s.store.CountAgentCalls(ctx, id, occupiedCallStatuses)
		if err != nil {
			return Agent{}, fmt.Errorf("count agent calls: %w", err)
		}
		if count > 0 {
			return Agent{}, ErrAgentOnCall
		}
	}

	patch := Patch{Status: &status}
	if status != StatusBusy {
		noRoom := ""
		patch.CurrentRoomID = &noRoom
	}
	if err := s.store.UpdateAgent(ctx, id, patch); err != nil {
		return Agent{}, err
	}
	return s.store.GetAgent(ctx, id)
}

package agents

import "errors"

var (
	ErrNotFound      = errors.New("agent not found")
	ErrEmailTaken    = errors.New("email already registered")
	ErrInvalidStatus = errors.New("invalid agent status")
	ErrAgentOnCall   = errors.New("agent is bound to an active call")
)

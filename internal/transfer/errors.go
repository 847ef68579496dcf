package transfer

import (
	"errors"

	"warmtransfer/internal/agents"
	"warmtransfer/internal/calls"
)

// Validation rejections carry stable reason strings; callers surface them
// verbatim. Not-found and already-resolved are distinct from rejections.
var (
	ErrCallNotFound     = calls.ErrNotFound
	ErrAgentNotFound    = agents.ErrNotFound
	ErrTransferNotFound = errors.New("transfer not found")

	ErrCallNotActive      = errors.New("call is not in active state")
	ErrNotAssignedToCall  = errors.New("agent is not assigned to this call")
	ErrTargetNotAvailable = errors.New("target agent is not available")
	ErrSameAgent          = errors.New("cannot transfer to the same agent")
	ErrMaxConcurrentCalls = errors.New("target agent has reached maximum concurrent calls")

	// ErrAlreadyResolved is returned by Complete/Cancel on a transfer that
	// already reached a terminal status. Terminal transfers stay terminal.
	ErrAlreadyResolved = errors.New("transfer already resolved")
)

// IsRejection reports whether err is a validation rejection (a normal
// "no" answer, not a dependency or internal failure).
func IsRejection(err error) bool {
	switch {
	case errors.Is(err, ErrCallNotActive),
		errors.Is(err, ErrNotAssignedToCall),
		errors.Is(err, ErrTargetNotAvailable),
		errors.Is(err, ErrSameAgent),
		errors.Is(err, ErrMaxConcurrentCalls):
		return true
	default:
		return false
	}
}

// IsNotFound reports whether err is any of the not-found variants.
func IsNotFound(err error) bool {
	switch {
	case errors.Is(err, ErrCallNotFound),
		errors.Is(err, ErrAgentNotFound),
		errors.Is(err, ErrTransferNotFound):
		return true
	default:
		return false
	}
}

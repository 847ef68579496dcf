package transfer

import "testing"

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusInitiated, StatusInProgress, true},
		{StatusInitiated, StatusCompleted, true},
		{StatusInitiated, StatusFailed, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusInitiated, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusFailed, StatusCompleted, false},
		{StatusInitiated, Status("resurrected"), false},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.ok {
			t.Errorf("%s -> %s = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusInitiated.Terminal() || StatusInProgress.Terminal() {
		t.Error("non-terminal statuses reported terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Error("terminal statuses not reported terminal")
	}
	if Status("bogus").Valid() {
		t.Error("unknown status reported valid")
	}
}

func TestIsRejection(t *testing.T) {
	for _, err := range []error{ErrCallNotActive, ErrNotAssignedToCall, ErrTargetNotAvailable, ErrSameAgent, ErrMaxConcurrentCalls} {
		if !IsRejection(err) {
			t.Errorf("%v should be a rejection", err)
		}
	}
	for _, err := range []error{ErrCallNotFound, ErrAgentNotFound, ErrTransferNotFound, ErrAlreadyResolved} {
		if IsRejection(err) {
			t.Errorf("%v should not be a rejection", err)
		}
	}
	for _, err := range []error{ErrCallNotFound, ErrAgentNotFound, ErrTransferNotFound} {
		if !IsNotFound(err) {
			t.Errorf("%v should be not-found", err)
		}
	}
}

package calls

import "errors"

var (
	ErrNotFound          = errors.New("call not found")
	ErrInvalidStatus     = errors.New("invalid call status")
	ErrInvalidTransition = errors.New("illegal call status transition")
)

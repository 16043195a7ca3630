package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a trigger is not allowed from the current status
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrGuardFailed is returned when a transition exists but the submission does not qualify
	ErrGuardFailed = errors.New("transition refused")
)

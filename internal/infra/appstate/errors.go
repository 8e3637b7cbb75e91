package appstate

import "errors"

var (
	// ErrInvalidStateTransition is returned for out-of-order lifecycle transitions.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrAlreadyTerminated is returned when mutating a terminated application.
	ErrAlreadyTerminated = errors.New("application already terminated")
)

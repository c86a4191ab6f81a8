package attendance

import "errors"

var (
	// ErrNotFound is returned when no attendance record matches.
	ErrNotFound = errors.New("attendance record not found")

	// ErrInvalidInput is returned when required fields are missing.
	ErrInvalidInput = errors.New("invalid attendance input")

	// ErrInvalidTransition is returned when an operation would move a
	// record to a state the transition table forbids.
	ErrInvalidTransition = errors.New("invalid attendance state transition")

	// ErrUnknownAction is returned for unlock actions other than
	// continue/submit.
	ErrUnknownAction = errors.New("unknown unlock action")
)

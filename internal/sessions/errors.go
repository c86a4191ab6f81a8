package sessions

import "errors"

var (
	// ErrNotFound is returned when no session or window matches the given id.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidInput is returned when required fields are missing or out of range.
	ErrInvalidInput = errors.New("invalid session input")

	// ErrInvalidWindow is returned for malformed or midnight-spanning
	// recurring windows. Windows are same-day only.
	ErrInvalidWindow = errors.New("recurring window end must be after start")
)

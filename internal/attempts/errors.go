package attempts

import "errors"

var (
	// ErrNotFound is returned when no attempt matches the given id.
	ErrNotFound = errors.New("attempt not found")

	// ErrInvalidInput is returned when required fields are missing.
	ErrInvalidInput = errors.New("invalid attempt input")

	// ErrNoSubmissions is returned by Complete on an attempt with an empty
	// submission list. Completion requires at least one submission.
	ErrNoSubmissions = errors.New("attempt has no submissions")

	// ErrAlreadyCompleted is returned when adding a submission to a
	// finalized attempt.
	ErrAlreadyCompleted = errors.New("attempt already completed")
)

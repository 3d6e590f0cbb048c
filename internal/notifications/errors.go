package notifications

import "errors"

// Queue errors.
var (
	// ErrUnknownKind is returned when a notification kind has no registered
	// template. Enqueue persists nothing in that case.
	ErrUnknownKind = errors.New("unknown notification kind")

	// ErrJobNotFound is returned for state transitions on an unknown job id.
	ErrJobNotFound = errors.New("notification job not found")

	// ErrJobNotFailed is returned when an operator retry targets a job that
	// is not terminally failed.
	ErrJobNotFailed = errors.New("notification job is not in failed status")

	// ErrJobNotPending is returned when a sent transition targets a failed
	// job. Failed jobs re-enter the pipeline only through an operator retry.
	ErrJobNotPending = errors.New("notification job is not in pending status")
)

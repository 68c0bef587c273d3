package jobs

import "errors"

var (
	// ErrNotFound is returned when a job record cannot be found
	ErrNotFound = errors.New("job record not found")

	// ErrPreconditionFailed is returned when a conditional update finds the
	// record in a state other than the one required. The RUNNING transition
	// relies on this to keep duplicate dispatch attempts from both winning.
	ErrPreconditionFailed = errors.New("job record precondition failed")
)

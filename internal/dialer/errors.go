package dialer

import "errors"

var (
	// ErrJobNotFound means the job id (or provider call id) has no record
	// in the ephemeral store, typically because the record expired.
	ErrJobNotFound = errors.New("call job not found")

	// ErrTerminalState means an update was attempted on a job that already
	// reached a terminal state. The update is discarded, not applied.
	ErrTerminalState = errors.New("call job is in a terminal state")

	// ErrQueueFull means the dispatch queue reached capacity.
	ErrQueueFull = errors.New("dispatch queue is full")

	// ErrQueueClosed means the manager is shutting down and no longer
	// accepts submissions.
	ErrQueueClosed = errors.New("dispatch queue is closed")
)

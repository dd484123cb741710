package entity

import "errors"

var (
	// ErrIndexOutOfBounds is raised by MessageLog operations (pin,
	// summarize) given an index outside the current log range. A state
	// violation per the spec's error table: an internal programmer
	// error, not a recoverable in-loop condition.
	ErrIndexOutOfBounds = errors.New("message index out of bounds")

	// ErrAlreadyRunning is raised when process_user_input is invoked
	// while the agent loop is already Running.
	ErrAlreadyRunning = errors.New("agent loop is already running")
)

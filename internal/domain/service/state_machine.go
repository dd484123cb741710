package service

import (
	"sync"

	"go.uber.org/zap"
)

// RunState is one of the agent loop's two states. The spec deliberately
// collapses the richer state machines this kind of loop often grows into
// just two: either a turn is in flight or it isn't.
type RunState string

const (
	StateIdle    RunState = "idle"
	StateRunning RunState = "running"
)

// StateMachine is AgentLoop's re-entrance guard: only one call to
// process_user_input may be in flight at a time. TryStart is the only
// way into StateRunning and is safe to call concurrently — exactly one
// caller ever receives true.
type StateMachine struct {
	mu        sync.Mutex
	state     RunState
	turnCount int
	logger    *zap.Logger
}

// NewStateMachine creates a state machine starting in Idle.
func NewStateMachine(logger *zap.Logger) *StateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateMachine{state: StateIdle, logger: logger}
}

// TryStart attempts the Idle -> Running transition, resetting the turn
// counter. Returns false if a turn is already running.
func (sm *StateMachine) TryStart() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state == StateRunning {
		return false
	}
	sm.state = StateRunning
	sm.turnCount = 0
	sm.logger.Debug("state transition", zap.String("from", string(StateIdle)), zap.String("to", string(StateRunning)))
	return true
}

// Finish transitions back to Idle. Callers must reach this exactly once
// per successful TryStart, from a deferred finalizer, regardless of how
// the turn ended (completion, error, or cancellation).
func (sm *StateMachine) Finish() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.logger.Debug("state transition", zap.String("from", string(sm.state)), zap.String("to", string(StateIdle)))
	sm.state = StateIdle
}

// State reports the current state.
func (sm *StateMachine) State() RunState {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// NextTurn increments and returns the turn counter.
func (sm *StateMachine) NextTurn() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.turnCount++
	return sm.turnCount
}

// TurnCount returns the current turn counter without incrementing it.
func (sm *StateMachine) TurnCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.turnCount
}

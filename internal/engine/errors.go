package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while a workflow runs.
//
// Runtime errors include:
//   - Stalls: no state can make progress and the workflow is not resting
//     in Idle or Terminal states
//   - Excess cycles: the run exceeded the dispatch-cycle ceiling
//   - Invalid transitions: an unknown name, an emitting state that is not an
//     origin of the transition, or any transition out of Terminal
//   - Handler failures returned by a state handler
//
// Message carries the diagnostic text (cycle, state names, last
// transitions and any pending composite progress).
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Cycle is the dispatch cycle the error was raised in.
	Cycle int

	// RunID identifies the affected run.
	RunID string

	// State is the state being dispatched, when one was.
	State string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStalledNoReady indicates the run stopped with no ready states
	// outside Idle/Terminal.
	ErrCodeStalledNoReady RuntimeErrorCode = "STALLED_NO_READY"

	// ErrCodeStalledSameTransitions indicates two cycles emitted identical
	// transitions while a non-idle state was active.
	ErrCodeStalledSameTransitions RuntimeErrorCode = "STALLED_SAME_TRANSITIONS"

	// ErrCodeIdleInNonIdleState indicates the run went idle while a state
	// outside Idle/Terminal was still set.
	ErrCodeIdleInNonIdleState RuntimeErrorCode = "IDLE_IN_NON_IDLE_STATE"

	// ErrCodePendingAtTerminal indicates Terminal was reached with Fork,
	// Sync or Merge progress outstanding.
	ErrCodePendingAtTerminal RuntimeErrorCode = "PENDING_AT_TERMINAL"

	// ErrCodeExcessCycles indicates the dispatch-cycle ceiling was hit.
	ErrCodeExcessCycles RuntimeErrorCode = "EXCESS_CYCLES"

	// ErrCodeNoReadyStates indicates a cycle started with nothing to run.
	ErrCodeNoReadyStates RuntimeErrorCode = "NO_READY_STATES"

	// ErrCodeTerminalTransition indicates a transition out of Terminal.
	ErrCodeTerminalTransition RuntimeErrorCode = "TERMINAL_TRANSITION"

	// ErrCodeInvalidOrigin indicates the emitting state is not an origin of
	// any emitted transition.
	ErrCodeInvalidOrigin RuntimeErrorCode = "INVALID_ORIGIN"

	// ErrCodeInvalidTransitionName indicates a handler emitted an unknown
	// transition name.
	ErrCodeInvalidTransitionName RuntimeErrorCode = "INVALID_TRANSITION_NAME"

	// ErrCodeInvalidStateName indicates an unknown state name or mask.
	ErrCodeInvalidStateName RuntimeErrorCode = "INVALID_STATE_NAME"

	// ErrCodeUndefinedHandler indicates no handler is registered for a state.
	ErrCodeUndefinedHandler RuntimeErrorCode = "UNDEFINED_HANDLER"

	// ErrCodeHandlerFailed indicates a state handler returned an error.
	ErrCodeHandlerFailed RuntimeErrorCode = "HANDLER_FAILED"

	// ErrCodeEngineFault indicates compiled tables the engine cannot follow.
	ErrCodeEngineFault RuntimeErrorCode = "ENGINE_FAULT"

	// ErrCodeAlreadyStarted indicates Run or Resume on a used engine.
	ErrCodeAlreadyStarted RuntimeErrorCode = "ALREADY_STARTED"

	// ErrCodeNotStarted indicates a run query before the run started.
	ErrCodeNotStarted RuntimeErrorCode = "NOT_STARTED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("%s: %s (run=%s)", e.Code, e.Message, e.RunID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsCode reports whether err is a RuntimeError with the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsStallError returns true for every kind of stall: no ready states,
// repeated transitions, or idling in a non-idle state.
func IsStallError(err error) bool {
	var re *RuntimeError
	if !errors.As(err, &re) {
		return false
	}
	switch re.Code {
	case ErrCodeStalledNoReady, ErrCodeStalledSameTransitions, ErrCodeIdleInNonIdleState, ErrCodeNoReadyStates:
		return true
	}
	return false
}

// IsExcessCyclesError returns true if the run exceeded its cycle ceiling.
// Matches both RuntimeError with ErrCodeExcessCycles and CyclesExceededError.
func IsExcessCyclesError(err error) bool {
	if IsCode(err, ErrCodeExcessCycles) {
		return true
	}
	var ce *CyclesExceededError
	return errors.As(err, &ce)
}

// IsTerminalTransitionError returns true if a transition left Terminal.
func IsTerminalTransitionError(err error) bool {
	return IsCode(err, ErrCodeTerminalTransition)
}

// IsInvalidOriginError returns true if a state emitted a transition it is
// not an origin of.
func IsInvalidOriginError(err error) bool {
	return IsCode(err, ErrCodeInvalidOrigin)
}

// statusForError maps a run error to the run's final status.
func statusForError(err error) Status {
	if IsStallError(err) {
		return StatusStalled
	}
	return StatusFailed
}

package compiler

import (
	"errors"
	"fmt"
)

// Compile error codes (E100-E199).
const (
	// Model shape errors (E100-E109)
	ErrMissingWorkflow        = "E100" // Workflow name is required
	ErrMissingTransitions     = "E101" // StateTransitions is required
	ErrMissingTerminalState   = "E102" // TerminalState is required
	ErrTerminalHasTransitions = "E103" // terminal state must not be an origin
	ErrUndeclaredTarget       = "E104" // state is never a transition target
	ErrModelTooLarge          = "E105" // too many states or transitions
	ErrUndefinedState         = "E106" // name does not resolve to a state
	ErrUndefinedTransition    = "E107" // name does not resolve to a transition
	ErrInvalidParameter       = "E108" // Parameters value out of range
	ErrReservedName           = "E109" // name of the implicit start state or transition

	// Sync errors (E110-E114)
	ErrTooFewSyncTransitions = "E110"
	ErrSyncNamesNotUnique    = "E111"
	ErrSyncTargetIsOrigin    = "E112"

	// Merge errors (E115-E119)
	ErrTooFewMergeOrigins  = "E115"
	ErrMergeTargetIsOrigin = "E116"

	// Fork errors (E120-E124)
	ErrUndefinedForkTransition = "E120"
	ErrForkNamesNotUnique      = "E121"
	ErrForkOriginIsTarget      = "E122"

	// Split errors (E125-E129)
	ErrSplitTransitionCount = "E125" // split must name exactly one transition
	ErrSplitTargetCount     = "E126" // split must reach at least two targets
)

// CompileError reports a defective model. Compilation stops at the first
// one; no partially compiled model is returned.
type CompileError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

func newError(code, field, format string, args ...any) *CompileError {
	return &CompileError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsCode reports whether err is a CompileError with the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code string) bool {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// UnknownNameError is returned by name lookups on a compiled model.
type UnknownNameError struct {
	Kind string // "state" or "transition"
	Name string
}

func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("invalid %s name: %s", e.Kind, e.Name)
}

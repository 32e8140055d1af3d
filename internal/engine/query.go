package engine

import (
	"maps"

	"github.com/roach88/stateengine/internal/compiler"
)

// Engine version pair, reported by the CLI and stored with every run.
const (
	EngineVersion = "1.0"
	EngineBuild   = "1"
)

// Cycle returns the current dispatch cycle; 0 before the first cycle.
func (e *Engine) Cycle() int {
	return e.cycle
}

// DispatchState returns the name of the state being executed.
func (e *Engine) DispatchState() string {
	return e.dispatchName
}

// DispatchStateMask returns the mask of the state being executed.
func (e *Engine) DispatchStateMask() uint64 {
	return e.dispatchMask
}

// EngineStateMask returns the states currently set, including changes made
// by transitions earlier in this cycle.
func (e *Engine) EngineStateMask() uint64 {
	return e.engineState
}

// WorkflowStateMask returns the states set at the start of this cycle.
func (e *Engine) WorkflowStateMask() uint64 {
	return e.workflowState
}

// ExecutedStatesMask returns the states executed so far this cycle.
func (e *Engine) ExecutedStatesMask() uint64 {
	return e.executed
}

// ReadyStatesMask returns the states set to run next cycle.
func (e *Engine) ReadyStatesMask() uint64 {
	return e.ready
}

// IsTerminal reports whether the workflow state is exactly Terminal.
func (e *Engine) IsTerminal() bool {
	return e.isTerminal()
}

// IsIdle reports whether only Idle states are set. Always false before the
// first cycle.
func (e *Engine) IsIdle() bool {
	if e.cycle == 0 {
		return false
	}
	return e.workflowState&^e.model.IdleMask == 0
}

// IsResumed reports whether the run was resumed rather than started.
func (e *Engine) IsResumed() bool {
	return e.resumeMask != 0
}

// IsResumedState reports whether any state of m was a resumed state.
func (e *Engine) IsResumedState(m uint64) bool {
	return e.resumeMask&m != 0
}

// TransitionHistory returns the transitions emitted so far this cycle, by
// origin state mask.
func (e *Engine) TransitionHistory() map[uint64]uint64 {
	return maps.Clone(e.history[e.cycle])
}

// LastTransitionHistory returns the transitions emitted in the previous
// cycle, by origin state mask. Empty before cycle 2.
func (e *Engine) LastTransitionHistory() map[uint64]uint64 {
	if e.cycle < 2 {
		return map[uint64]uint64{}
	}
	return maps.Clone(e.history[e.cycle-1])
}

// LastTransitions returns every transition emitted in the previous cycle.
// On the first cycle of a resumed run this is empty.
func (e *Engine) LastTransitions() uint64 {
	var tm uint64
	for _, t := range e.history[e.cycle-1] {
		tm |= t
	}
	return tm
}

// MatchesLastTransition reports whether every named transition was emitted
// in the previous cycle. Names may be comma-separated lists.
func (e *Engine) MatchesLastTransition(names ...string) (bool, error) {
	m, err := e.namesToMask(names)
	if err != nil {
		return false, err
	}
	return m != 0 && m&e.LastTransitions() == m, nil
}

// MatchesLastTransitionExact reports whether the previous cycle emitted
// exactly the named transitions.
func (e *Engine) MatchesLastTransitionExact(names ...string) (bool, error) {
	m, err := e.namesToMask(names)
	if err != nil {
		return false, err
	}
	return m != 0 && m == e.LastTransitions(), nil
}

func (e *Engine) namesToMask(names []string) (uint64, error) {
	if e.status == StatusNotStarted {
		return 0, &RuntimeError{Code: ErrCodeNotStarted, Message: "workflow has not started"}
	}
	m, err := e.model.TransitionNameToMask(names...)
	if err != nil {
		return 0, e.fail(ErrCodeInvalidTransitionName, "%v", err)
	}
	return m, nil
}

// State returns the compiled state for a name.
func (e *Engine) State(name string) (compiler.State, bool) {
	bit, ok := e.model.StateMask(name)
	if !ok || bit == 0 {
		return compiler.State{}, false
	}
	return e.model.StateByMask(bit)
}

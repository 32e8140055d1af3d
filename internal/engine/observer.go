package engine

import (
	"context"
	"errors"
)

// Step records one state execution.
type Step struct {
	Seq             int64    `json:"seq"`
	RunID           string   `json:"run_id"`
	Cycle           int      `json:"cycle"`
	State           string   `json:"state"`
	StateMask       uint64   `json:"state_mask"`
	Transitions     uint64   `json:"transitions"`
	TransitionNames []string `json:"transition_names,omitempty"`
	// EngineState is the engine state after the state's transitions.
	EngineState uint64 `json:"engine_state"`
	// WorkflowState is the engine state at the start of the cycle.
	WorkflowState uint64 `json:"workflow_state"`
}

// RunInfo describes a run as it starts.
type RunInfo struct {
	RunID      string
	Workflow   string
	Version    string
	Hash       string
	Resumed    bool
	ResumeMask uint64
}

// RunSummary describes a run as it ends.
type RunSummary struct {
	RunID         string
	Status        Status
	Cycles        int
	WorkflowState uint64
	// States is the workflow state formatted as names.
	States string
	Err    error
}

// Observer receives run lifecycle events. Errors returned by an observer are
// logged and do not affect the run.
type Observer interface {
	RunStarted(ctx context.Context, info RunInfo) error
	StateExecuted(ctx context.Context, step Step) error
	RunEnded(ctx context.Context, summary RunSummary) error
}

// Observers fans events out to several observers in order. Every observer
// sees every event; their errors are joined.
type Observers []Observer

// RunStarted notifies each observer that a run started.
func (obs Observers) RunStarted(ctx context.Context, info RunInfo) error {
	var errs []error
	for _, o := range obs {
		errs = append(errs, o.RunStarted(ctx, info))
	}
	return errors.Join(errs...)
}

// StateExecuted notifies each observer of one state execution.
func (obs Observers) StateExecuted(ctx context.Context, step Step) error {
	var errs []error
	for _, o := range obs {
		errs = append(errs, o.StateExecuted(ctx, step))
	}
	return errors.Join(errs...)
}

// RunEnded notifies each observer that a run ended.
func (obs Observers) RunEnded(ctx context.Context, summary RunSummary) error {
	var errs []error
	for _, o := range obs {
		errs = append(errs, o.RunEnded(ctx, summary))
	}
	return errors.Join(errs...)
}

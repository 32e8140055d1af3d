package store

import (
	"context"
	"fmt"

	"github.com/roach88/stateengine/internal/engine"
)

// Recorder writes the events of engine runs to a Store. It implements
// engine.Observer.
type Recorder struct {
	s           *Store
	resumedFrom string
}

// Recorder returns an observer that records new runs.
func (s *Store) Recorder() *Recorder {
	return &Recorder{s: s}
}

// ResumeRecorder returns an observer that records runs resumed from the
// given run.
func (s *Store) ResumeRecorder(from string) *Recorder {
	return &Recorder{s: s, resumedFrom: from}
}

// RunStarted implements engine.Observer.
func (r *Recorder) RunStarted(ctx context.Context, info engine.RunInfo) error {
	return r.s.WriteRunStart(ctx, info, r.resumedFrom)
}

// StateExecuted implements engine.Observer.
func (r *Recorder) StateExecuted(ctx context.Context, step engine.Step) error {
	return r.s.WriteStep(ctx, step)
}

// RunEnded implements engine.Observer.
func (r *Recorder) RunEnded(ctx context.Context, summary engine.RunSummary) error {
	return r.s.WriteRunEnd(ctx, summary)
}

// WriteRunStart inserts a run record with status running.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteRunStart(ctx context.Context, info engine.RunInfo, resumedFrom string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, workflow, version, model_hash, resumed_from, resume_mask, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		info.RunID,
		info.Workflow,
		info.Version,
		info.Hash,
		resumedFrom,
		maskToDB(info.ResumeMask),
		engine.StatusRunning.String(),
	)
	if err != nil {
		return fmt.Errorf("write run start: %w", err)
	}
	return nil
}

// WriteStep appends one state execution to the state log.
// Each (run, seq) pair is written once; duplicates are silently ignored.
//
// Note: The run referenced by step.RunID must exist (foreign key constraint).
func (s *Store) WriteStep(ctx context.Context, step engine.Step) error {
	names, err := marshalNames(step.TransitionNames)
	if err != nil {
		return fmt.Errorf("write step: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO state_log
		(run_id, seq, cycle, state, state_mask, transitions, transition_names, engine_state, workflow_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		step.RunID,
		step.Seq,
		step.Cycle,
		step.State,
		maskToDB(step.StateMask),
		maskToDB(step.Transitions),
		names,
		maskToDB(step.EngineState),
		maskToDB(step.WorkflowState),
	)
	if err != nil {
		return fmt.Errorf("write step: %w", err)
	}
	return nil
}

// WriteRunEnd records the final status of a run.
// Returns ErrRunNotFound if the run was never started in this store.
func (s *Store) WriteRunEnd(ctx context.Context, summary engine.RunSummary) error {
	code, msg := errorFields(summary.Err)
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, cycles = ?, workflow_state = ?, states = ?, error_code = ?, error = ?
		WHERE id = ?
	`,
		summary.Status.String(),
		summary.Cycles,
		maskToDB(summary.WorkflowState),
		summary.States,
		code,
		msg,
		summary.RunID,
	)
	if err != nil {
		return fmt.Errorf("write run end: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write run end: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("write run end %s: %w", summary.RunID, ErrRunNotFound)
	}
	return nil
}

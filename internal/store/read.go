package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/stateengine/internal/engine"
)

var (
	// ErrRunNotFound is returned when no run has the requested id.
	ErrRunNotFound = errors.New("run not found")

	// ErrNotResumable is returned when a run did not end idle.
	ErrNotResumable = errors.New("run is not resumable")
)

// Run is a stored run record.
type Run struct {
	ID            string        `json:"id"`
	Workflow      string        `json:"workflow"`
	Version       string        `json:"version,omitempty"`
	ModelHash     string        `json:"model_hash"`
	ResumedFrom   string        `json:"resumed_from,omitempty"`
	ResumeMask    uint64        `json:"resume_mask,omitempty"`
	Status        engine.Status `json:"-"`
	StatusName    string        `json:"status"`
	Cycles        int           `json:"cycles"`
	WorkflowState uint64        `json:"workflow_state"`
	States        string        `json:"states"`
	ErrorCode     string        `json:"error_code,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// ResumePoint is what a resumed run needs from the run it continues.
type ResumePoint struct {
	RunID     string
	Workflow  string
	ModelHash string
	// States is the workflow state the run went idle in.
	States uint64
	// Seq is the last logical clock value the run used.
	Seq int64
}

const runColumns = `id, workflow, version, model_hash, resumed_from, resume_mask, status, cycles, workflow_state, states, error_code, error`

// ReadRun retrieves a single run by id.
// Returns ErrRunNotFound if it does not exist.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	return run, err
}

// RunRow returns the stored columns of a run keyed by column name, with
// values as the driver returns them.
// Returns ErrRunNotFound if it does not exist.
func (s *Store) RunRow(ctx context.Context, id string) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT * FROM runs WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", id, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("run columns: %w", err)
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query run %s: %w", id, err)
		}
		return nil, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan run %s: %w", id, err)
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}
	return row, nil
}

// ListRuns returns the runs of a workflow in the order they started. An
// empty workflow lists every run.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context, workflow string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE ? = '' OR workflow = ?
		ORDER BY rowid ASC
	`, workflow, workflow)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadStateLog returns the recorded steps of a run.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC.
//
// Returns an empty slice (not nil) if the run has no steps.
func (s *Store) ReadStateLog(ctx context.Context, runID string) ([]engine.Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, cycle, state, state_mask, transitions, transition_names, engine_state, workflow_state
		FROM state_log
		WHERE run_id = ?
		ORDER BY seq ASC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query state log: %w", err)
	}
	defer rows.Close()

	steps := []engine.Step{}
	for rows.Next() {
		var (
			step                  engine.Step
			stateMask, tm, es, ws int64
			names                 string
		)
		if err := rows.Scan(&step.RunID, &step.Seq, &step.Cycle, &step.State, &stateMask, &tm, &names, &es, &ws); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		step.StateMask = maskFromDB(stateMask)
		step.Transitions = maskFromDB(tm)
		step.EngineState = maskFromDB(es)
		step.WorkflowState = maskFromDB(ws)
		if step.TransitionNames, err = unmarshalNames(names); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state log: %w", err)
	}
	return steps, nil
}

// LastSeq returns the highest seq logged for a run, 0 if none.
func (s *Store) LastSeq(ctx context.Context, runID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM state_log WHERE run_id = ?`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	return seq.Int64, nil
}

// ResumePoint returns where an idle run can be resumed from.
// Returns ErrNotResumable unless the run ended idle.
func (s *Store) ResumePoint(ctx context.Context, runID string) (ResumePoint, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return ResumePoint{}, err
	}
	if !run.Status.Resumable() {
		return ResumePoint{}, fmt.Errorf("resume %s (status %s): %w", runID, run.StatusName, ErrNotResumable)
	}
	seq, err := s.LastSeq(ctx, runID)
	if err != nil {
		return ResumePoint{}, err
	}
	return ResumePoint{
		RunID:     run.ID,
		Workflow:  run.Workflow,
		ModelHash: run.ModelHash,
		States:    run.WorkflowState,
		Seq:       seq,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run          Run
		resume, wfSt int64
	)
	err := row.Scan(&run.ID, &run.Workflow, &run.Version, &run.ModelHash, &run.ResumedFrom, &resume,
		&run.StatusName, &run.Cycles, &wfSt, &run.States, &run.ErrorCode, &run.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.ResumeMask = maskFromDB(resume)
	run.WorkflowState = maskFromDB(wfSt)
	if run.Status, err = engine.ParseStatus(run.StatusName); err != nil {
		return Run{}, fmt.Errorf("scan run %s: %w", run.ID, err)
	}
	return run, nil
}

package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/roach88/stateengine/internal/compiler"
	"github.com/roach88/stateengine/internal/engine"
	"github.com/roach88/stateengine/internal/store"
	"github.com/roach88/stateengine/internal/testutil"
	"github.com/roach88/stateengine/internal/workflow"
)

// Harness is the test execution engine.
// It runs a scenario's workflow with scripted handlers, records the run in
// a store and reads the trace back from it.
type Harness struct {
	store      *store.Store
	logger     *slog.Logger
	engineOpts []engine.EngineOption
	resume     *store.ResumePoint
}

// Option configures a scenario run.
type Option func(*Harness)

// WithStore records the run in st instead of a fresh in-memory database.
// The caller owns st.
func WithStore(st *store.Store) Option {
	return func(h *Harness) {
		h.store = st
	}
}

// WithLogger sets the logger for the harness and the engine.
// Default: logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// WithEngineOptions adds engine options applied after the harness's own,
// e.g. a different run id generator or a tracer.
func WithEngineOptions(opts ...engine.EngineOption) Option {
	return func(h *Harness) {
		h.engineOpts = append(h.engineOpts, opts...)
	}
}

// WithResumePoint resumes a stored idle run instead of starting one. The
// new run continues the stored run's seq and records where it came from.
func WithResumePoint(p store.ResumePoint) Option {
	return func(h *Harness) {
		h.resume = &p
	}
}

// Run executes a test scenario and returns the result.
//
// Unless WithStore is given, each scenario runs in a fresh in-memory
// database for isolation. Run ids come from the scenario name so traces
// are reproducible.
//
// A run that fails or stalls is not an error: its status and error code are
// part of the result and are checked against the expect block. Run returns
// an error only when the scenario cannot be executed at all.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Load the model and apply alter ops
// 3. Register scripted handlers for every state
// 4. Run (or resume) the workflow with the store recording it
// 5. Read the run back, check expect and assertions
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.store == nil {
		st, err := store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
		h.store = st
	}

	wf, err := h.setup(scenario)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	runID, err := h.execute(ctx, wf, scenario)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	result, err := ReadResult(ctx, h.store, runID)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	checkExpect(scenario.Expect, result)

	actx := &AssertionContext{
		Store: h.store,
		Ctx:   ctx,
		RunID: runID,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// setup loads and patches the model and registers a handler for each state.
func (h *Harness) setup(scenario *Scenario) (*workflow.Workflow, error) {
	m, err := compiler.LoadFile(scenario.Model, compiler.WithLogger(h.logger))
	if err != nil {
		return nil, err
	}

	wf := workflow.New(m, nil, workflow.WithLogger(h.logger))
	if len(scenario.Alter) > 0 {
		ops := make([]compiler.Op, 0, len(scenario.Alter))
		for i, spec := range scenario.Alter {
			op, err := spec.Build()
			if err != nil {
				return nil, fmt.Errorf("alter[%d]: %w", i, err)
			}
			ops = append(ops, op)
		}
		if err := wf.Alter(ops...); err != nil {
			return nil, err
		}
	}

	m = wf.Model()
	for name := range scenario.Script {
		if _, ok := m.StateMask(name); !ok {
			return nil, fmt.Errorf("script names unknown state %q", name)
		}
	}
	for _, state := range m.States {
		wf.Handlers().RegisterHandler(state.Handler, newScripted(scenario.Script[state.Name]))
	}
	return wf, nil
}

// execute runs the workflow and returns the id of the recorded run.
func (h *Harness) execute(ctx context.Context, wf *workflow.Workflow, scenario *Scenario) (string, error) {
	recorder := h.store.Recorder()
	opts := []engine.EngineOption{
		engine.WithRunIDGenerator(testutil.NewSequenceRunIDs(scenario.Name)),
	}
	if scenario.MaxCycles > 0 {
		opts = append(opts, engine.WithMaxCycles(scenario.MaxCycles))
	}

	var states uint64
	switch {
	case h.resume != nil:
		if h.resume.Workflow != wf.Name() {
			return "", fmt.Errorf("run %s is workflow %s, scenario model is %s", h.resume.RunID, h.resume.Workflow, wf.Name())
		}
		if h.resume.ModelHash != wf.Model().Hash {
			h.logger.Warn("model changed since run",
				"run_id", h.resume.RunID,
				"stored_hash", h.resume.ModelHash,
				"hash", wf.Model().Hash,
			)
		}
		recorder = h.store.ResumeRecorder(h.resume.RunID)
		states = h.resume.States
		opts = append(opts, engine.WithClock(engine.NewClockAt(h.resume.Seq)))
	case scenario.Resume != "":
		m, err := wf.Model().StatesMaskFromNames(scenario.Resume)
		if err != nil {
			return "", fmt.Errorf("resume: %w", err)
		}
		states = m
	}
	// Observers accumulate: engine options may add their own next to the recorder.
	opts = append(opts, engine.WithObserver(recorder))
	opts = append(opts, h.engineOpts...)

	app, err := wf.NewContext(nil)
	if err != nil {
		return "", err
	}

	var (
		res    *engine.Result
		runErr error
	)
	if states != 0 {
		res, runErr = wf.Resume(ctx, app, states, opts...)
	} else {
		res, runErr = wf.Run(ctx, app, opts...)
	}
	if res == nil {
		return "", runErr
	}

	h.logger.Info("scenario run finished",
		"scenario", scenario.Name,
		"run_id", res.RunID,
		"status", res.Status,
		"cycles", res.Cycles,
		"error", runErr,
	)
	return res.RunID, nil
}

// ReadResult builds a result from a stored run and its state log. Pass is
// true; nothing is checked.
func ReadResult(ctx context.Context, st *store.Store, runID string) (*Result, error) {
	run, err := st.ReadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	steps, err := st.ReadStateLog(ctx, runID)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.RunID = run.ID
	result.Workflow = run.Workflow
	result.Status = run.StatusName
	result.Cycles = run.Cycles
	result.States = run.States
	result.ErrorCode = run.ErrorCode
	result.Error = run.Error
	for _, step := range steps {
		result.Trace = append(result.Trace, TraceEvent{
			Seq:         step.Seq,
			Cycle:       step.Cycle,
			State:       step.State,
			Transitions: step.TransitionNames,
		})
	}
	return result, nil
}

// checkExpect compares the run outcome with the expect block.
func checkExpect(exp Expect, r *Result) {
	if r.Status != exp.Status {
		r.AddError(fmt.Sprintf("status: expected %s, got %s (%s)", exp.Status, r.Status, r.Error))
	}
	if r.ErrorCode != exp.ErrorCode {
		r.AddError(fmt.Sprintf("error_code: expected %q, got %q", exp.ErrorCode, r.ErrorCode))
	}
	if exp.ErrorContains != "" && !strings.Contains(r.Error, exp.ErrorContains) {
		r.AddError(fmt.Sprintf("error: expected to contain %q, got %q", exp.ErrorContains, r.Error))
	}
	if exp.Cycles > 0 && r.Cycles != exp.Cycles {
		r.AddError(fmt.Sprintf("cycles: expected %d, got %d", exp.Cycles, r.Cycles))
	}
	if exp.States != "" && r.States != exp.States {
		r.AddError(fmt.Sprintf("states: expected %s, got %s", exp.States, r.States))
	}
	if exp.Path != nil {
		if got := r.Path(); !slices.Equal(got, exp.Path) {
			r.AddError("path mismatch:\n" + pathDiff(exp.Path, got))
		}
	}
}

// pathDiff renders a unified diff between two state paths.
func pathDiff(expected, actual []string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.Join(expected, "\n")),
		B:        difflib.SplitLines(strings.Join(actual, "\n")),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	})
	if err != nil {
		return fmt.Sprintf("expected %v, got %v", expected, actual)
	}
	return diff
}

// scripted emits the next entry of a state's script on each execution.
type scripted struct {
	mu        sync.Mutex
	emissions [][]string
	next      int
}

func newScripted(entries []string) *scripted {
	s := &scripted{}
	for _, e := range entries {
		s.emissions = append(s.emissions, splitEmission(e))
	}
	return s
}

// Run implements workflow.Handler.
func (s *scripted) Run(_ context.Context, _ *engine.Engine, app engine.AppContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.emissions) == 0 {
		return nil
	}
	i := min(s.next, len(s.emissions)-1)
	s.next++
	app.Pending().Set(s.emissions[i]...)
	return nil
}

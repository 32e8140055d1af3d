package engine

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/stateengine/internal/compiler"
)

const tracerName = "github.com/roach88/stateengine/internal/engine"

// StateRunner executes the handler of one state. The handler records the
// transitions it emits on the run's AppContext Pending set.
type StateRunner interface {
	RunState(ctx context.Context, run *Engine, state compiler.State) error
}

// StateRunnerFunc adapts a function to StateRunner.
type StateRunnerFunc func(ctx context.Context, run *Engine, state compiler.State) error

// RunState implements StateRunner.
func (f StateRunnerFunc) RunState(ctx context.Context, run *Engine, state compiler.State) error {
	return f(ctx, run, state)
}

// Engine runs one workflow instance over a compiled model.
//
// A run proceeds in dispatch cycles. Every state ready at the start of a
// cycle executes once, in model order, and the transitions it emits decide
// which states are ready in the next cycle. Fork, Merge and Sync progress is
// carried across cycles until complete.
//
// An Engine is single use: Run or Resume may be called once. It is not safe
// for concurrent use; state handlers run on the caller's goroutine.
type Engine struct {
	model     *compiler.Model
	runner    StateRunner
	app       AppContext
	logger    *slog.Logger
	observers Observers
	runIDs    RunIDGenerator
	clock     *Clock
	tracer    trace.Tracer
	quota     *CycleQuota

	runID      string
	status     Status
	resumeMask uint64

	cycle         int
	engineState   uint64
	workflowState uint64
	ready         uint64
	deferred      uint64 // Terminal held back while other states are ready
	executed      uint64
	dispatchMask  uint64
	dispatchName  string

	// history[cycle][origin] is the transitions each executed state emitted.
	history map[int]map[uint64]uint64
	forks   map[forkKey]uint64
	merges  map[mergeKey]uint64
	syncs   map[syncKey]uint64

	steps []Step
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithObserver adds an observer notified of run events. Observers added by
// several options are all notified, in the order they were added.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithRunIDGenerator sets the run id source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithClock sets the clock that stamps steps. Used on resume so a run's
// state log continues from its last seq.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithMaxCycles overrides the dispatch-cycle ceiling compiled into the
// model. 0 means unlimited.
func WithMaxCycles(n int) EngineOption {
	return func(e *Engine) {
		e.quota = NewCycleQuota(n)
	}
}

// WithTracer sets the OpenTelemetry tracer. Default: the global provider's
// tracer for this package.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = t
	}
}

// New creates an Engine for one run of model m. A nil app gets a
// BasicContext.
func New(m *compiler.Model, runner StateRunner, app AppContext, opts ...EngineOption) *Engine {
	if app == nil {
		app = &BasicContext{}
	}
	e := &Engine{
		model:  m,
		runner: runner,
		app:    app,
		logger: slog.Default(),
		runIDs: UUIDv7Generator{},
		clock:  NewClock(),
		tracer: otel.Tracer(tracerName),
		quota:  NewCycleQuota(m.DispatchMaxCount),
		status: StatusNotStarted,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result summarizes a finished run. It is returned with the error when a
// run fails.
type Result struct {
	RunID  string
	Status Status
	Cycles int
	// WorkflowState is the engine state at the start of the last cycle:
	// Terminal for a completed run, the Idle states for a resumable one.
	WorkflowState   uint64
	EngineState     uint64
	LastTransitions string
	Steps           []Step
}

// Path returns the executed state names in order.
func (r *Result) Path() []string {
	out := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		out[i] = s.State
	}
	return out
}

// Run starts the workflow in its StartState and runs it until it reaches
// Terminal, goes idle, or fails.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	return e.start(ctx, 0)
}

// Resume runs the workflow from the given states, typically the Idle
// states a previous run stopped in. No initial transition is made.
func (e *Engine) Resume(ctx context.Context, states uint64) (*Result, error) {
	var all uint64
	for _, s := range e.model.States {
		all |= s.Mask
	}
	if states == 0 || states&^all != 0 {
		return nil, &RuntimeError{
			Code:    ErrCodeInvalidStateName,
			Message: fmt.Sprintf("invalid resume states mask %d", states),
		}
	}
	return e.start(ctx, states)
}

// ResumeStates resumes from a comma-separated list of state names.
func (e *Engine) ResumeStates(ctx context.Context, names string) (*Result, error) {
	m, err := e.model.StatesMaskFromNames(names)
	if err != nil {
		return nil, &RuntimeError{Code: ErrCodeInvalidStateName, Message: err.Error(), Err: err}
	}
	return e.Resume(ctx, m)
}

func (e *Engine) start(ctx context.Context, resume uint64) (*Result, error) {
	if e.status != StatusNotStarted {
		return nil, &RuntimeError{
			Code:    ErrCodeAlreadyStarted,
			Message: "engine has already run",
			RunID:   e.runID,
		}
	}
	e.runID = e.runIDs.Generate()
	e.status = StatusRunning
	e.resumeMask = resume
	e.history = map[int]map[uint64]uint64{0: {}}
	e.forks = make(map[forkKey]uint64)
	e.merges = make(map[mergeKey]uint64)
	e.syncs = make(map[syncKey]uint64)
	e.quota.Reset()

	ctx, span := e.tracer.Start(ctx, "workflow "+e.model.Name, trace.WithAttributes(
		attribute.String("workflow.name", e.model.Name),
		attribute.String("workflow.version", e.model.Version),
		attribute.String("workflow.run_id", e.runID),
		attribute.Bool("workflow.resumed", resume != 0),
	))
	defer span.End()

	e.logger.Info("run workflow",
		"workflow", e.model.Name,
		"run_id", e.runID,
		"state_prefix", e.model.StatePrefix,
		"resume", e.model.StateNamesFromMask(resume),
	)
	e.notify(ctx, "run started", func(o Observer) error {
		return o.RunStarted(ctx, RunInfo{
			RunID:      e.runID,
			Workflow:   e.model.Name,
			Version:    e.model.Version,
			Hash:       e.model.Hash,
			Resumed:    resume != 0,
			ResumeMask: resume,
		})
	})

	err := e.initialize()
	if err == nil {
		err = e.loop(ctx)
	}

	switch {
	case err != nil:
		e.status = statusForError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("workflow failed", "workflow", e.model.Name, "run_id", e.runID, "cycle", e.cycle, "error", err)
	case e.workflowState == e.model.TerminalMask:
		e.status = StatusCompleted
	default:
		e.status = StatusIdle
	}
	span.SetAttributes(attribute.String("workflow.status", e.status.String()), attribute.Int("workflow.cycles", e.cycle))

	res := &Result{
		RunID:           e.runID,
		Status:          e.status,
		Cycles:          e.cycle,
		WorkflowState:   e.workflowState,
		EngineState:     e.engineState,
		LastTransitions: e.formatLastTransitions(e.history[e.cycle]),
		Steps:           e.steps,
	}
	e.logger.Info("workflow ended",
		"workflow", e.model.Name,
		"run_id", e.runID,
		"status", e.status,
		"cycles", e.cycle,
		"states", e.model.StateNamesFromMask(e.workflowState),
	)
	e.notify(ctx, "run ended", func(o Observer) error {
		return o.RunEnded(ctx, RunSummary{
			RunID:         e.runID,
			Status:        e.status,
			Cycles:        e.cycle,
			WorkflowState: e.workflowState,
			States:        e.model.StateNamesFromMask(e.workflowState),
			Err:           err,
		})
	})
	return res, err
}

// initialize seeds the first cycle: the implicit start transition for a new
// run, the resumed states otherwise.
func (e *Engine) initialize() error {
	if e.resumeMask != 0 {
		e.ready = e.resumeMask
		return nil
	}
	e.dispatchMask = 0
	e.dispatchName = compiler.InitialState
	_, err := e.stateTransition(0)
	return err
}

// notify calls the observers, logging and dropping any error.
func (e *Engine) notify(ctx context.Context, event string, fn func(Observer) error) {
	if len(e.observers) == 0 {
		return
	}
	if err := fn(e.observers); err != nil {
		e.logger.WarnContext(ctx, "observer failed", "event", event, "run_id", e.runID, "error", err)
	}
}

// fail builds a RuntimeError for the current cycle and dispatch state.
func (e *Engine) fail(code RuntimeErrorCode, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cycle:   e.cycle,
		RunID:   e.runID,
		State:   e.dispatchName,
	}
}

// Model returns the compiled model being run.
func (e *Engine) Model() *compiler.Model {
	return e.model
}

// App returns the run's application context.
func (e *Engine) App() AppContext {
	return e.app
}

// RunID returns the id of the run, empty before it starts.
func (e *Engine) RunID() string {
	return e.runID
}

// Status returns the run's current status.
func (e *Engine) Status() Status {
	return e.status
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/stateengine/internal/compiler"
	"github.com/roach88/stateengine/internal/engine"
)

// ErrAbandoned is returned when the context factory declines to start a run.
var ErrAbandoned = errors.New("workflow abandoned before start")

// Workflow binds a compiled model to the handlers of its states. It runs any
// number of independent engines over the same model.
type Workflow struct {
	mu         sync.RWMutex
	model      *compiler.Model
	handlers   *Registry
	newContext ContextFactory
	logger     *slog.Logger
	engineOpts []engine.EngineOption
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithContextFactory sets how NewContext builds application contexts.
func WithContextFactory(f ContextFactory) Option {
	return func(w *Workflow) {
		w.newContext = f
	}
}

// WithLogger sets the logger passed to every engine. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = l
	}
}

// WithEngineOptions adds options applied to every engine the workflow
// creates, before per-run options.
func WithEngineOptions(opts ...engine.EngineOption) Option {
	return func(w *Workflow) {
		w.engineOpts = append(w.engineOpts, opts...)
	}
}

// New creates a workflow. A nil registry means an empty one.
func New(m *compiler.Model, handlers *Registry, opts ...Option) *Workflow {
	if handlers == nil {
		handlers = NewRegistry()
	}
	w := &Workflow{
		model:      m,
		handlers:   handlers,
		newContext: defaultContextFactory,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Load compiles the model file at path and creates a workflow for it.
func Load(path string, handlers *Registry, opts ...Option) (*Workflow, error) {
	w := New(nil, handlers, opts...)
	m, err := compiler.LoadFile(path, compiler.WithLogger(w.logger))
	if err != nil {
		return nil, err
	}
	w.model = m
	return w, nil
}

// Model returns the current compiled model.
func (w *Workflow) Model() *compiler.Model {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.model
}

// Name returns the workflow name.
func (w *Workflow) Name() string {
	return w.Model().Name
}

// Version returns the workflow version and build.
func (w *Workflow) Version() (version, build string) {
	m := w.Model()
	return m.Version, m.Build
}

// Handlers returns the handler registry.
func (w *Workflow) Handlers() *Registry {
	return w.handlers
}

// MissingHandlers returns the states, in model order, whose handler is not
// registered.
func (w *Workflow) MissingHandlers() []string {
	var out []string
	for _, st := range w.Model().States {
		if !w.handlers.Has(st.Handler) {
			out = append(out, st.Name)
		}
	}
	return out
}

// Alter replaces the model with a patched copy. Runs already in progress
// keep the model they started with.
func (w *Workflow) Alter(ops ...compiler.Op) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, err := compiler.Patch(w.model, ops...)
	if err != nil {
		return fmt.Errorf("alter workflow %s: %w", w.model.Name, err)
	}
	w.model = m
	return nil
}

// NewContext builds an application context from params.
func (w *Workflow) NewContext(params map[string]any) (engine.AppContext, error) {
	app, err := w.newContext(params)
	if err != nil {
		return nil, fmt.Errorf("create context for %s: %w", w.Name(), err)
	}
	if app == nil {
		return nil, ErrAbandoned
	}
	return app, nil
}

// NewEngine creates an engine for one run of the workflow.
func (w *Workflow) NewEngine(app engine.AppContext, opts ...engine.EngineOption) *engine.Engine {
	all := make([]engine.EngineOption, 0, len(w.engineOpts)+len(opts)+1)
	all = append(all, engine.WithLogger(w.logger))
	all = append(all, w.engineOpts...)
	all = append(all, opts...)
	return engine.New(w.Model(), w, app, all...)
}

// Run runs the workflow from its start state.
func (w *Workflow) Run(ctx context.Context, app engine.AppContext, opts ...engine.EngineOption) (*engine.Result, error) {
	return w.NewEngine(app, opts...).Run(ctx)
}

// Resume runs the workflow from the given states.
func (w *Workflow) Resume(ctx context.Context, app engine.AppContext, states uint64, opts ...engine.EngineOption) (*engine.Result, error) {
	return w.NewEngine(app, opts...).Resume(ctx, states)
}

// RunState implements engine.StateRunner: it looks up the state's handler
// and runs it on the run's context.
func (w *Workflow) RunState(ctx context.Context, run *engine.Engine, state compiler.State) error {
	h, err := w.handlers.Lookup(state.Handler, state.Singleton)
	if err != nil {
		var re *engine.RuntimeError
		if errors.As(err, &re) {
			re.State = state.Name
		}
		return err
	}
	w.logger.DebugContext(ctx, "run state",
		"state", state.Name,
		"handler", state.Handler,
		"singleton", state.Singleton,
		"run_id", run.RunID(),
	)
	return h.Run(ctx, run, run.App())
}

package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stateengine/internal/compiler"
	"github.com/roach88/stateengine/internal/engine"
	"github.com/roach88/stateengine/internal/model"
	"github.com/roach88/stateengine/internal/testutil"
)

const counterModel = `
Workflow: Counter
States:
  A: {prototype: true}
  B: {}
TerminalState: Done
StateTransitions:
  Start:
    - {Transition: ToA, TargetStates: [A]}
  A:
    - {Transition: ToB, TargetStates: [B]}
  B:
    - {Transition: BackA, TargetStates: [A]}
    - {Transition: Finish, TargetStates: [Done]}
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func compileSource(t *testing.T, src string) *compiler.Model {
	t.Helper()
	raw, err := model.DecodeYAML([]byte(src))
	require.NoError(t, err)
	m, err := compiler.Compile(raw)
	require.NoError(t, err)
	return m
}

// bouncer emits BackA on its first run and Finish afterwards.
type bouncer struct {
	runs int
}

func (b *bouncer) Run(_ context.Context, _ *engine.Engine, app engine.AppContext) error {
	b.runs++
	if b.runs == 1 {
		app.Pending().Set("BackA")
	} else {
		app.Pending().Set("Finish")
	}
	return nil
}

type counterBuilds struct {
	a, b int
}

func counterRegistry(builds *counterBuilds) *Registry {
	reg := NewRegistry()
	reg.RegisterHandler("CounterStartState", Emit("ToA"))
	reg.Register("CounterAState", func() (Handler, error) {
		builds.a++
		return Emit("ToB"), nil
	})
	reg.Register("CounterBState", func() (Handler, error) {
		builds.b++
		return &bouncer{}, nil
	})
	reg.RegisterFunc("CounterDoneState", func(context.Context, *engine.Engine, engine.AppContext) error {
		return nil
	})
	return reg
}

func newCounter(t *testing.T, builds *counterBuilds, opts ...Option) *Workflow {
	t.Helper()
	opts = append([]Option{
		WithLogger(quietLogger()),
		WithEngineOptions(engine.WithRunIDGenerator(engine.NewFixedGenerator("run-1", "run-2"))),
	}, opts...)
	return New(compileSource(t, counterModel), counterRegistry(builds), opts...)
}

// =============================================================================
// Running
// =============================================================================

func TestRun_HandlersDriveTheModel(t *testing.T) {
	builds := &counterBuilds{}
	wf := newCounter(t, builds)

	app, err := wf.NewContext(nil)
	require.NoError(t, err)
	res, err := wf.Run(context.Background(), app)
	require.NoError(t, err)

	assert.Equal(t, []string{"Start", "A", "B", "A", "B", "Done"}, res.Path())
	assert.Equal(t, engine.StatusCompleted, res.Status)
	assert.Equal(t, "run-1", res.RunID)
}

func TestRun_PrototypeAndSingletonHandlers(t *testing.T) {
	builds := &counterBuilds{}
	wf := newCounter(t, builds)

	_, err := wf.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, builds.a, "prototype state builds a handler per execution")
	assert.Equal(t, 1, builds.b, "singleton state reuses its handler")
}

func TestRun_SingletonSharedAcrossRuns(t *testing.T) {
	builds := &counterBuilds{}
	wf := newCounter(t, builds)

	_, err := wf.Run(context.Background(), nil)
	require.NoError(t, err)

	// The shared bouncer has already bounced, so the second run finishes
	// straight away.
	res, err := wf.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Start", "A", "B", "Done"}, res.Path())
	assert.Equal(t, "run-2", res.RunID)
	assert.Equal(t, 1, builds.b)
}

func TestRun_UndefinedHandler(t *testing.T) {
	builds := &counterBuilds{}
	reg := counterRegistry(builds)
	delete(reg.factories, "CounterBState")
	wf := New(compileSource(t, counterModel), reg, WithLogger(quietLogger()))

	res, err := wf.Run(context.Background(), nil)
	require.Error(t, err)

	var re *engine.RuntimeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, engine.ErrCodeUndefinedHandler, re.Code)
	assert.Equal(t, "B", re.State)
	assert.Equal(t, 3, re.Cycle)
	assert.Equal(t, engine.StatusFailed, res.Status)
}

func TestRun_FactoryError(t *testing.T) {
	builds := &counterBuilds{}
	wf := newCounter(t, builds)
	boom := errors.New("boom")
	wf.Handlers().Register("CounterAState", func() (Handler, error) { return nil, boom })

	_, err := wf.Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, engine.IsCode(err, engine.ErrCodeUndefinedHandler))
	assert.ErrorIs(t, err, boom)
}

func TestRun_HandlerSeesEngineQueries(t *testing.T) {
	builds := &counterBuilds{}
	wf := newCounter(t, builds)

	var seen []string
	wf.Handlers().RegisterFunc("CounterAState", func(_ context.Context, run *engine.Engine, app engine.AppContext) error {
		seen = append(seen, run.DispatchState())
		ok, err := run.MatchesLastTransition("BackA")
		if err != nil {
			return err
		}
		if ok {
			seen = append(seen, "after BackA")
		}
		app.Pending().Set("ToB")
		return nil
	})

	_, err := wf.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "A", "after BackA"}, seen)
}

func TestResume_FromIdleState(t *testing.T) {
	m, err := compiler.Compile(testutil.RawModel(t, testutil.Loop))
	require.NoError(t, err)

	reg := NewRegistry()
	reg.RegisterHandler("LoopDraftState", Emit("Submit"))
	reg.RegisterHandler("LoopReviewState", Emit("Approve"))
	reg.RegisterFunc("LoopWaitState", func(context.Context, *engine.Engine, engine.AppContext) error { return nil })
	reg.RegisterFunc("LoopDoneState", func(context.Context, *engine.Engine, engine.AppContext) error { return nil })
	wf := New(m, reg, WithLogger(quietLogger()))

	first, err := wf.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, engine.StatusIdle, first.Status)

	reg.RegisterHandler("LoopWaitState", Emit("Publish"))
	res, err := wf.Resume(context.Background(), nil, first.WorkflowState)
	require.NoError(t, err)
	assert.Equal(t, []string{"Wait", "Done"}, res.Path())
	assert.Equal(t, engine.StatusCompleted, res.Status)
}

// =============================================================================
// Contexts
// =============================================================================

func TestNewContext_Default(t *testing.T) {
	wf := newCounter(t, &counterBuilds{})
	params := map[string]any{"order": 42}

	app, err := wf.NewContext(params)
	require.NoError(t, err)
	c, ok := app.(*Context)
	require.True(t, ok)

	v, ok := c.Get("order")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	params["order"] = 7
	v, _ = c.Get("order")
	assert.Equal(t, 42, v, "params are copied")
}

func TestNewContext_Abandoned(t *testing.T) {
	wf := newCounter(t, &counterBuilds{}, WithContextFactory(func(map[string]any) (engine.AppContext, error) {
		return nil, nil
	}))

	_, err := wf.NewContext(nil)
	assert.ErrorIs(t, err, ErrAbandoned)
}

func TestNewContext_FactoryError(t *testing.T) {
	boom := errors.New("no database")
	wf := newCounter(t, &counterBuilds{}, WithContextFactory(func(map[string]any) (engine.AppContext, error) {
		return nil, boom
	}))

	_, err := wf.NewContext(nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "Counter")
}

func TestContext_ValuesSharedByStates(t *testing.T) {
	wf := newCounter(t, &counterBuilds{})
	wf.Handlers().RegisterFunc("CounterAState", func(_ context.Context, _ *engine.Engine, app engine.AppContext) error {
		c := app.(*Context)
		n, _ := c.Get("visits")
		visits, _ := n.(int)
		c.Set("visits", visits+1)
		app.Pending().Set("ToB")
		return nil
	})

	app, err := wf.NewContext(map[string]any{"visits": 0})
	require.NoError(t, err)
	_, err = wf.Run(context.Background(), app)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"visits": 2}, app.(*Context).Values())
}

// =============================================================================
// Model access
// =============================================================================

func TestWorkflow_NameAndVersion(t *testing.T) {
	m := compileSource(t, "Version: \"2.1\"\nBuild: \"7\"\n"+counterModel)
	wf := New(m, nil)

	assert.Equal(t, "Counter", wf.Name())
	version, build := wf.Version()
	assert.Equal(t, "2.1", version)
	assert.Equal(t, "7", build)
}

func TestWorkflow_MissingHandlers(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterHandler("CounterStartState", Emit("ToA"))
	wf := New(compileSource(t, counterModel), reg)

	assert.Equal(t, []string{"A", "B", "Done"}, wf.MissingHandlers())
}

func TestWorkflow_Alter(t *testing.T) {
	wf := newCounter(t, &counterBuilds{})
	before := wf.Model()

	require.NoError(t, wf.Alter(compiler.DeleteStateTransition{State: "B", Transition: "BackA"}))

	assert.NotSame(t, before, wf.Model())
	_, err := before.TransitionNameToMask("BackA")
	assert.NoError(t, err, "previous model is untouched")

	res, err := wf.Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, engine.IsCode(err, engine.ErrCodeInvalidOrigin), "got %v", err)
	assert.Equal(t, engine.StatusFailed, res.Status)
}

func TestWorkflow_AlterRejectsUnknownState(t *testing.T) {
	wf := newCounter(t, &counterBuilds{})
	before := wf.Model()

	err := wf.Alter(compiler.DeleteStateTransition{State: "Nowhere", Transition: "ToA"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alter workflow Counter")
	assert.Same(t, before, wf.Model())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "linear.yaml")
	require.NoError(t, os.WriteFile(path, testutil.ModelYAML(t, testutil.Linear), 0o644))

	wf, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "Linear", wf.Name())

	_, err = Load(filepath.Join(dir, "missing.yaml"), nil)
	assert.Error(t, err)
}

package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/stateengine/internal/testutil"
)

type recordingObserver struct {
	started []RunInfo
	steps   []Step
	ended   []RunSummary
	err     error
}

func (o *recordingObserver) RunStarted(_ context.Context, info RunInfo) error {
	o.started = append(o.started, info)
	return o.err
}

func (o *recordingObserver) StateExecuted(_ context.Context, step Step) error {
	o.steps = append(o.steps, step)
	return o.err
}

func (o *recordingObserver) RunEnded(_ context.Context, summary RunSummary) error {
	o.ended = append(o.ended, summary)
	return o.err
}

func TestObserver_ReceivesEveryStep(t *testing.T) {
	m := compileFixture(t, testutil.Pipeline)
	obs := &recordingObserver{}

	res, err := newTestEngine(m, newScriptRunner(nil), WithObserver(obs), WithClock(NewClockAt(10))).
		Run(context.Background())
	require.NoError(t, err)

	require.Len(t, obs.started, 1)
	assert.Equal(t, "run-1", obs.started[0].RunID)
	assert.Equal(t, "Pipeline", obs.started[0].Workflow)
	assert.Equal(t, m.Hash, obs.started[0].Hash)
	assert.False(t, obs.started[0].Resumed)

	assert.Equal(t, res.Steps, obs.steps)
	for i, s := range obs.steps {
		assert.Equal(t, int64(11+i), s.Seq)
		assert.Equal(t, "run-1", s.RunID)
	}

	p2 := obs.steps[1]
	assert.Equal(t, "P2", p2.State)
	assert.Equal(t, []string{"T2_3_4"}, p2.TransitionNames)
	p2mask, _ := m.StateMask("P2")
	p3, _ := m.StateMask("P3")
	p4, _ := m.StateMask("P4")
	assert.Equal(t, uint64(0), p2.EngineState&p2mask, "split clears its origin")
	assert.Equal(t, p3|p4, obs.steps[2].WorkflowState, "split targets start together")

	require.Len(t, obs.ended, 1)
	assert.Equal(t, StatusCompleted, obs.ended[0].Status)
	assert.Equal(t, "P7", obs.ended[0].States)
	assert.NoError(t, obs.ended[0].Err)
}

func TestObserver_ErrorsDoNotStopRun(t *testing.T) {
	m := compileFixture(t, testutil.Linear)
	obs := &recordingObserver{err: errors.New("disk full")}

	res, err := newTestEngine(m, newScriptRunner(nil), WithObserver(obs)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, res.Path())
	assert.Len(t, obs.steps, 3)
}

func TestObserver_RunEndedCarriesError(t *testing.T) {
	m := compileFixture(t, testutil.Reference)
	obs := &recordingObserver{}

	_, err := newTestEngine(m, newScriptRunner(map[string][]string{"S1": {"T1_8"}}), WithObserver(obs)).
		Run(context.Background())
	require.Error(t, err)

	require.Len(t, obs.ended, 1)
	assert.Equal(t, StatusFailed, obs.ended[0].Status)
	assert.Equal(t, err, obs.ended[0].Err)
}

func TestObservers_FanOut(t *testing.T) {
	m := compileFixture(t, testutil.Linear)
	a, b := &recordingObserver{}, &recordingObserver{}

	_, err := newTestEngine(m, newScriptRunner(nil), WithObserver(Observers{a, b})).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, a.steps, 3)
	assert.Equal(t, a.steps, b.steps)
}

func TestTracing_Spans(t *testing.T) {
	m := compileFixture(t, testutil.Linear)
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, err := newTestEngine(m, newScriptRunner(nil), WithTracer(tp.Tracer("test"))).Run(context.Background())
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 4)
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name()
	}
	assert.Equal(t, []string{"state A", "state B", "state C", "workflow Linear"}, names)

	root := spans[3]
	for _, s := range spans[:3] {
		assert.Equal(t, root.SpanContext().SpanID(), s.Parent().SpanID())
	}
}

func TestTracing_FailedRunSetsErrorStatus(t *testing.T) {
	m := compileFixture(t, testutil.Reference)
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, err := newTestEngine(m, newScriptRunner(map[string][]string{"S1": {"T1_8"}}), WithTracer(tp.Tracer("test"))).
		Run(context.Background())
	require.Error(t, err)

	spans := sr.Ended()
	require.NotEmpty(t, spans)
	root := spans[len(spans)-1]
	assert.Equal(t, "workflow Reference", root.Name())
	assert.Equal(t, "Error", root.Status().Code.String())
}

func TestObservers_FailingObserverDoesNotStarveOthers(t *testing.T) {
	m := compileFixture(t, testutil.Linear)
	bad := &recordingObserver{err: errors.New("disk full")}
	good := &recordingObserver{}

	_, err := newTestEngine(m, newScriptRunner(nil), WithObserver(Observers{bad, good})).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, bad.steps, 3)
	assert.Len(t, good.started, 1)
	assert.Len(t, good.steps, 3)
	assert.Len(t, good.ended, 1)
}

func TestObservers_JoinsErrors(t *testing.T) {
	first, second := errors.New("first"), errors.New("second")
	obs := Observers{&recordingObserver{err: first}, &recordingObserver{}, &recordingObserver{err: second}}

	err := obs.RunStarted(context.Background(), RunInfo{RunID: "run-1"})
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.NoError(t, Observers{&recordingObserver{}}.RunEnded(context.Background(), RunSummary{}))
}

func TestWithObserver_AddsToEarlierObservers(t *testing.T) {
	m := compileFixture(t, testutil.Linear)
	a, b := &recordingObserver{}, &recordingObserver{}

	_, err := newTestEngine(m, newScriptRunner(nil), WithObserver(a), WithObserver(nil), WithObserver(b)).
		Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, a.steps, 3)
	assert.Equal(t, a.steps, b.steps)
}

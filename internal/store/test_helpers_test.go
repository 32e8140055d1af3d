package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/roach88/stateengine/internal/compiler"
	"github.com/roach88/stateengine/internal/engine"
	"github.com/roach88/stateengine/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRunInfo creates run start info with minimal required fields.
func createTestRunInfo(id string) engine.RunInfo {
	return engine.RunInfo{
		RunID:    id,
		Workflow: "Test",
		Version:  "1.0",
		Hash:     "test-hash",
	}
}

// createTestStep creates a step with minimal required fields.
func createTestStep(runID string, seq int64, cycle int, state string, names ...string) engine.Step {
	return engine.Step{
		Seq:             seq,
		RunID:           runID,
		Cycle:           cycle,
		State:           state,
		StateMask:       1 << (cycle - 1),
		Transitions:     uint64(len(names)),
		TransitionNames: names,
		EngineState:     1 << cycle,
		WorkflowState:   1 << (cycle - 1),
	}
}

// emitScript runs handlers that emit the scripted transitions per state.
// The last entry repeats.
type emitScript map[string][]string

func (s emitScript) runner() engine.StateRunner {
	runs := make(map[string]int)
	return engine.StateRunnerFunc(func(_ context.Context, run *engine.Engine, st compiler.State) error {
		emits := s[st.Name]
		n := runs[st.Name]
		runs[st.Name]++
		if len(emits) > 0 {
			run.App().Pending().Set(emits[min(n, len(emits)-1)])
		}
		return nil
	})
}

// recordRun runs a fixture model with the store attached.
func recordRun(t *testing.T, s *Store, name string, script emitScript, opts ...engine.EngineOption) (*engine.Result, error) {
	t.Helper()
	m, err := compiler.Compile(testutil.RawModel(t, name))
	if err != nil {
		t.Fatalf("Compile(%s) failed: %v", name, err)
	}
	opts = append([]engine.EngineOption{
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithObserver(s.Recorder()),
		engine.WithRunIDGenerator(engine.NewFixedGenerator("run-1")),
	}, opts...)
	return engine.New(m, script.runner(), nil, opts...).Run(context.Background())
}

package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stateengine/internal/harness"
	"github.com/roach88/stateengine/internal/store"
)

// =============================================================================
// trace
// =============================================================================

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, err := execute(t, "trace", "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}

func TestTraceNonExistentDatabase(t *testing.T) {
	out, err := execute(t, "trace", "--db", filepath.Join(t.TempDir(), "nope.db"), "run-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestTraceUnknownRun(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	runToDB(t, db, loopIdleScenario(t, dir))

	out, err := execute(t, "trace", "--db", db, "no-such-run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeRunNotFound+"]")
}

func TestTraceRun(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	runID := runToDB(t, db, loopIdleScenario(t, dir))

	out, err := execute(t, "trace", "--db", db, runID)
	require.NoError(t, err)

	assert.Contains(t, out, "Run: "+runID+" (Loop)")
	assert.Contains(t, out, "Status: idle after 4 cycle(s), states: Wait")
	assert.Contains(t, out, "Timeline:")
	assert.Contains(t, out, "[1] cycle 1: Draft -> Submit")
	assert.Contains(t, out, "[2] cycle 2: Review -> Approve")
	assert.Contains(t, out, "[4] cycle 4: Wait -> null")
	assert.Contains(t, out, "Stats: 4 execution(s), 2 null")
}

func TestTraceRunJSON(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	runID := runToDB(t, db, loopIdleScenario(t, dir))

	out, err := execute(t, "--format", "json", "trace", "--db", db, runID)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		RunID  string `json:"run_id"`
		Data   struct {
			Workflow string               `json:"workflow"`
			Status   string               `json:"status"`
			Trace    []harness.TraceEvent `json:"trace"`
			Stats    TraceStats           `json:"stats"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, runID, resp.RunID)
	assert.Equal(t, "Loop", resp.Data.Workflow)
	assert.Equal(t, "idle", resp.Data.Status)
	require.Len(t, resp.Data.Trace, 4)
	assert.Equal(t, []string{"Submit"}, resp.Data.Trace[0].Transitions)
	assert.Equal(t, TraceStats{Executions: 4, Nulls: 2}, resp.Data.Stats)
}

func TestTraceStateFilter(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	runID := runToDB(t, db, loopIdleScenario(t, dir))

	out, err := execute(t, "trace", "--db", db, runID, "--state", "Wait")
	require.NoError(t, err)

	assert.Contains(t, out, "[3] cycle 3: Wait -> null")
	assert.NotContains(t, out, "Draft ->")
	assert.Contains(t, out, "Stats: 4 execution(s)", "stats cover the whole run")
}

func TestTraceStats(t *testing.T) {
	r := harness.NewResult()
	r.Status = "completed"
	r.Trace = []harness.TraceEvent{
		{Seq: 1, Cycle: 1, State: "A", Transitions: []string{"AB"}},
		{Seq: 2, Cycle: 2, State: "B"},
	}
	assert.Equal(t, TraceStats{Executions: 2, Nulls: 1, IsComplete: true}, traceStats(r))
	assert.Equal(t, []harness.TraceEvent{}, filterTrace(r.Trace, "C"))
}

// =============================================================================
// runs
// =============================================================================

func TestRunsEmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	st, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, "runs", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs found")
}

func TestRunsListsRuns(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	first := runToDB(t, db, loopIdleScenario(t, dir))
	second := runToDBResume(t, db, first, loopPublishScenario(t, dir))

	out, err := execute(t, "runs", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "RUN")
	assert.Contains(t, out, first)
	assert.Contains(t, out, second)
	assert.Contains(t, out, "idle")
	assert.Contains(t, out, "completed")
}

func TestRunsJSONWorkflowFilter(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	runToDB(t, db, loopIdleScenario(t, dir))

	out, err := execute(t, "--format", "json", "runs", "--db", db, "--workflow", "Loop")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   []store.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "idle", resp.Data[0].StatusName)
	assert.Equal(t, "Wait", resp.Data[0].States)

	out, err = execute(t, "--format", "json", "runs", "--db", db, "--workflow", "Other")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Empty(t, resp.Data)
}

package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stateengine/internal/testutil"
)

// =============================================================================
// Loops
// =============================================================================

func TestAnalyze_BoundedLoopIsQuiet(t *testing.T) {
	m := mustCompile(t, testutil.Loop)
	assert.Empty(t, Analyze(m))
}

func TestAnalyze_UnboundedLoop(t *testing.T) {
	raw := testutil.RawModel(t, testutil.Loop)
	raw.Parameters.MaxTransitionFactor = nil
	m, err := Compile(raw)
	require.NoError(t, err)

	warnings := Analyze(m)
	require.Len(t, warnings, 1)
	assert.Equal(t, "loop", warnings[0].Kind)
	assert.Equal(t, []string{"Draft", "Review", "Draft"}, warnings[0].States)
	assert.Equal(t, "unbounded loop: Draft -> Review -> Draft (set Parameters.MaxTransitionFactor)", warnings[0].Message)
}

func TestAnalyze_SelfLoop(t *testing.T) {
	m, err := compileYAML(t, `
Workflow: W
TerminalState: B
StateTransitions:
  A:
    - {Transition: Again, TargetStates: [A]}
    - {Transition: Done, TargetStates: [B]}
`)
	require.NoError(t, err)

	warnings := Analyze(m)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"A", "A"}, warnings[0].States)
}

// =============================================================================
// Dead ends and reachability
// =============================================================================

func TestAnalyze_DeadEnds(t *testing.T) {
	m := mustCompile(t, testutil.Reference)

	warnings := Analyze(m)
	require.Len(t, warnings, 2)
	assert.Equal(t, "dead_end", warnings[0].Kind)
	assert.Equal(t, []string{"SX"}, warnings[0].States)
	assert.Equal(t, []string{"SY"}, warnings[1].States)
	assert.Equal(t, "state SX emits no transitions and is not idle or terminal", warnings[0].Message)
}

func TestAnalyze_EmptyTransitionLists(t *testing.T) {
	m := mustCompile(t, testutil.ForkCombo)

	warnings := Analyze(m)
	require.Len(t, warnings, 2)
	assert.Equal(t, []string{"S2"}, warnings[0].States)
	assert.Equal(t, []string{"S4"}, warnings[1].States)
}

func TestAnalyze_UnreachableTerminal(t *testing.T) {
	m, err := compileYAML(t, `
Workflow: W
TerminalState: C
StateTransitions:
  A:
    - {Transition: AB, TargetStates: [B]}
  B:
    - {Transition: BB, TargetStates: [B]}
  X:
    - {Transition: XX, TargetStates: [X]}
    - {Transition: XC, TargetStates: [C]}
Parameters:
  MaxTransitionFactor: 1
`)
	require.NoError(t, err)

	warnings := Analyze(m)
	require.Len(t, warnings, 1)
	assert.Equal(t, "unreachable", warnings[0].Kind)
	assert.Equal(t, "terminal state C is not reachable from A", warnings[0].Message)
}

func TestAnalyze_ReachableModelsAreClean(t *testing.T) {
	for _, name := range []string{testutil.Linear, testutil.Pipeline, testutil.SyncCombo, testutil.IdleWait} {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, Analyze(mustCompile(t, name)))
		})
	}
}

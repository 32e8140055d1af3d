package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_ExampleScenarios(t *testing.T) {
	for _, name := range exampleScenarios {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadExample(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestFormatTrace(t *testing.T) {
	r := NewResult()
	r.Workflow = "Pair"
	r.RunID = "pair-1"
	r.Status = "failed"
	r.Cycles = 2
	r.States = "A"
	r.ErrorCode = "INVALID_ORIGIN"
	r.Trace = []TraceEvent{
		{Seq: 1, Cycle: 1, State: "A", Transitions: []string{"Left", "Right"}},
		{Seq: 2, Cycle: 2, State: "B"},
	}

	want := "scenario: pair\n" +
		"workflow: Pair\n" +
		"run: pair-1\n" +
		"status: failed\n" +
		"cycles: 2\n" +
		"states: A\n" +
		"error_code: INVALID_ORIGIN\n" +
		"trace:\n" +
		"  [1] cycle 1: A -> Left, Right\n" +
		"  [2] cycle 2: B -> null\n"
	assert.Equal(t, want, FormatTrace("pair", r))
}

func TestFormatTrace_NoErrorCodeLine(t *testing.T) {
	r := NewResult()
	r.Status = "completed"
	assert.NotContains(t, FormatTrace("ok", r), "error_code")
}

package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// FormatTrace renders a result as the text stored in golden files:
//
//	scenario: pipeline_complete
//	workflow: Pipeline
//	run: pipeline_complete-1
//	status: completed
//	cycles: 6
//	states: P7
//	trace:
//	  [1] cycle 1: P1 -> Pipe
//	  ...
//
// An error_code line follows states for failed runs. Error messages are
// left out; they embed run ids and are checked through expect instead.
func FormatTrace(scenarioName string, result *Result) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario: %s\n", scenarioName)
	fmt.Fprintf(&buf, "workflow: %s\n", result.Workflow)
	fmt.Fprintf(&buf, "run: %s\n", result.RunID)
	fmt.Fprintf(&buf, "status: %s\n", result.Status)
	fmt.Fprintf(&buf, "cycles: %d\n", result.Cycles)
	fmt.Fprintf(&buf, "states: %s\n", result.States)
	if result.ErrorCode != "" {
		fmt.Fprintf(&buf, "error_code: %s\n", result.ErrorCode)
	}
	buf.WriteString("trace:\n")
	for _, event := range result.Trace {
		fmt.Fprintf(&buf, "  %s\n", FormatEvent(event))
	}
	return buf.String()
}

// FormatEvent renders one trace line: "[seq] cycle c: State -> T1, T2".
func FormatEvent(event TraceEvent) string {
	return fmt.Sprintf("[%d] cycle %d: %s -> %s", event.Seq, event.Cycle, event.State, formatTransitions(event.Transitions))
}

func formatTransitions(names []string) string {
	if len(names) == 0 {
		return "null"
	}
	return strings.Join(names, ", ")
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass, or an error if the
// scenario could not be executed.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, []byte(FormatTrace(scenarioName, result)))
}

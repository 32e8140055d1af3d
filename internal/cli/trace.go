package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stateengine/internal/harness"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	State    string // optional - filter to one state's executions
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Executions int  `json:"executions"`
	Nulls      int  `json:"nulls"` // executions that emitted nothing
	IsComplete bool `json:"is_complete"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	*harness.Result
	Stats TraceStats `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <run-id>",
		Short: "Show the state log of a recorded run",
		Long: `Show the recorded state log of a run.

Each line is one state execution in logical-clock order: its seq, dispatch
cycle, state and the transitions it emitted ("null" for none).

Examples:
  stateengine trace --db ./runs.db 0192f3a4-...
  stateengine trace --db ./runs.db 0192f3a4-... --state Review
  stateengine trace --db ./runs.db 0192f3a4-... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.State, "state", "", "filter to executions of one state")

	return cmd
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return storeFailure(formatter, err)
	}
	defer st.Close()

	result, err := harness.ReadResult(cmd.Context(), st, runID)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}

	trace := TraceResult{Result: result, Stats: traceStats(result)}
	if opts.State != "" {
		trace.Trace = filterTrace(result.Trace, opts.State)
	}

	if formatter.Format == "json" {
		return json.NewEncoder(formatter.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   trace,
			RunID:  runID,
		})
	}
	outputTraceText(formatter, trace)
	return nil
}

// traceStats summarizes the unfiltered trace.
func traceStats(r *harness.Result) TraceStats {
	stats := TraceStats{
		Executions: len(r.Trace),
		IsComplete: r.Status == "completed",
	}
	for _, ev := range r.Trace {
		if len(ev.Transitions) == 0 {
			stats.Nulls++
		}
	}
	return stats
}

func filterTrace(events []harness.TraceEvent, state string) []harness.TraceEvent {
	out := []harness.TraceEvent{}
	for _, ev := range events {
		if ev.State == state {
			out = append(out, ev)
		}
	}
	return out
}

// outputTraceText outputs the trace in human-readable format.
func outputTraceText(formatter *OutputFormatter, t TraceResult) {
	w := formatter.Writer
	fmt.Fprintf(w, "Run: %s (%s)\n", t.RunID, t.Workflow)
	fmt.Fprintf(w, "Status: %s after %d cycle(s), states: %s\n", t.Status, t.Cycles, t.States)
	if t.ErrorCode != "" {
		fmt.Fprintf(w, "Error: %s\n", t.Error)
	}
	fmt.Fprintln(w)

	if len(t.Trace) == 0 {
		fmt.Fprintln(w, "No state executions recorded")
		return
	}
	fmt.Fprintln(w, "Timeline:")
	for _, ev := range t.Trace {
		fmt.Fprintf(w, "  %s\n", harness.FormatEvent(ev))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d execution(s), %d null\n", t.Stats.Executions, t.Stats.Nulls)
}

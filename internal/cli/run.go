package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/stateengine/internal/engine"
	"github.com/roach88/stateengine/internal/harness"
	"github.com/roach88/stateengine/internal/store"
	"github.com/roach88/stateengine/internal/tracing"
)

// ErrCodeScenarioFailed marks a run whose expectations were not met.
const ErrCodeScenarioFailed = "E_SCENARIO_FAILED"

// RunOptions holds flags for the run and resume commands.
type RunOptions struct {
	*RootOptions
	Database  string
	TraceFile string

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a workflow scenario",
		Long: `Run a workflow scenario and check its expectations.

The scenario names a model and scripts the transitions each state emits.
The run is recorded to the SQLite database given by --db (in memory if
omitted), so it can be inspected with trace or continued with resume.

Example:
  stateengine run --db ./runs.db ./scenarios/loop_idle.yaml
  stateengine run --trace-file spans.json ./scenarios/linear_complete.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], "", cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: in memory)")
	cmd.Flags().StringVar(&opts.TraceFile, "trace-file", "", "write OpenTelemetry spans to this file")

	return cmd
}

// NewResumeCommand creates the resume command.
func NewResumeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resume <run-id> <scenario>",
		Short: "Resume an idle run",
		Long: `Resume a recorded run that ended idle.

The new run starts from the workflow state the old run went idle in and
continues its logical clock. The scenario supplies the model and the
scripted emissions; its resume field is ignored.

Example:
  stateengine resume --db ./runs.db 0192f3a4-... ./scenarios/loop_publish.yaml`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[1], args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.TraceFile, "trace-file", "", "write OpenTelemetry spans to this file")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// runScenario runs path, resuming resumeFrom when it is set.
func runScenario(opts *RunOptions, path, resumeFrom string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return scenarioFailure(formatter, err)
	}
	formatter.VerboseLog("Loaded scenario %s (model %s)", scenario.Name, scenario.Model)

	st, err := openStore(opts.Database)
	if err != nil {
		return storeFailure(formatter, err)
	}
	defer st.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	hopts := []harness.Option{
		harness.WithStore(st),
		harness.WithLogger(newLogger(opts.RootOptions, formatter.GetErrWriter())),
		harness.WithEngineOptions(engine.WithRunIDGenerator(runIDs)),
	}

	if opts.TraceFile != "" {
		p, err := tracing.Open("stateengine", engine.EngineVersion, opts.TraceFile)
		if err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeWriteFailed, err)
		}
		defer func() {
			if err := p.Shutdown(context.Background()); err != nil {
				formatter.VerboseLog("trace shutdown: %v", err)
			}
		}()
		hopts = append(hopts, harness.WithEngineOptions(engine.WithTracer(p.Tracer())))
	}

	if resumeFrom != "" {
		point, err := st.ResumePoint(ctx, resumeFrom)
		if err != nil {
			return formatter.Fail(ExitCommandError, err)
		}
		formatter.VerboseLog("Resuming %s from %#x at seq %d", point.RunID, point.States, point.Seq)
		hopts = append(hopts, harness.WithResumePoint(point))
	}

	result, err := harness.Run(ctx, scenario, hopts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	return reportRun(formatter, scenario.Name, result)
}

// reportRun prints a scenario result. A result that did not pass is a
// failure (exit 1).
func reportRun(formatter *OutputFormatter, name string, result *harness.Result) error {
	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result, RunID: result.RunID}
		if !result.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeScenarioFailed,
				Message: strings.Join(result.Errors, "; "),
			}
		}
		if err := json.NewEncoder(formatter.Writer).Encode(resp); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		if result.Pass {
			fmt.Fprintf(w, "✓ %s passed\n", name)
		} else {
			fmt.Fprintf(w, "✗ %s failed\n", name)
		}
		fmt.Fprintf(w, "  run: %s\n", result.RunID)
		fmt.Fprintf(w, "  status: %s (%d cycles)\n", result.Status, result.Cycles)
		fmt.Fprintf(w, "  path: %s\n", strings.Join(result.Path(), " -> "))
		if result.ErrorCode != "" {
			fmt.Fprintf(w, "  error: %s\n", result.Error)
		}
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", name))
	}
	return nil
}

// openStore opens the database at path, or an in-memory one.
func openStore(path string) (*store.Store, error) {
	if path == "" {
		return store.Open(":memory:")
	}
	return store.Open(path)
}

// openExistingStore opens a database that must already exist.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database not found: %s: %w", path, os.ErrNotExist)
	}
	return store.Open(path)
}

func storeFailure(formatter *OutputFormatter, err error) error {
	code := ErrCodeStore
	if errors.Is(err, os.ErrNotExist) {
		code = ErrCodeNotFound
	}
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, code, err)
}

func scenarioFailure(formatter *OutputFormatter, err error) error {
	code := ErrCodeScenario
	if errors.Is(err, os.ErrNotExist) {
		code = ErrCodeNotFound
	}
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, code, err)
}

// signalContext cancels on interrupt. Uses the command's context if
// available (for testing).
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

package cli

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/stateengine/internal/compiler"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <model>",
		Short: "Compile a workflow model to its mask tables",
		Long: `Compile a workflow model to the bitmask lookup tables the engine runs on.

Text output summarizes states, transitions, composites and parameters.
JSON output (--format json or --output) is the full compiled model.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	m, err := loadModel(path)
	if err != nil {
		if formatter.Format != "json" {
			fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
			fmt.Fprintln(formatter.Writer)
		}
		// Compilation errors are command-level errors (exit code 2)
		return formatter.Fail(ExitCommandError, err)
	}
	formatter.VerboseLog("Compiled %s from %s", m.Name, path)

	if opts.Output != "" {
		if err := writeModelToFile(m, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, ErrCodeWriteFailed, err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(m)
	}
	printModel(formatter, m)
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote compiled model to %s\n", opts.Output)
	}
	return nil
}

// printModel writes the human-readable model summary.
func printModel(formatter *OutputFormatter, m *compiler.Model) {
	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %s (version %s build %s)\n", m.Name, m.Version, m.Build)
	fmt.Fprintf(w, "  hash: %s\n\n", m.Hash)

	fmt.Fprintln(w, "States:")
	for _, s := range m.States {
		flags := ""
		if s.Singleton {
			flags = " singleton"
		}
		if s.Mask == m.StartMask {
			flags += " start"
		}
		if s.Mask == m.TerminalMask {
			flags += " terminal"
		}
		fmt.Fprintf(w, "  %-2d %s mask=%#x handler=%s%s\n", s.Index, s.Name, s.Mask, s.Handler, flags)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Transitions:")
	for _, bit := range slices.Sorted(maps.Keys(m.Transitions)) {
		t := m.Transitions[bit]
		if t.Name == compiler.InitialTransition {
			continue
		}
		fmt.Fprintf(w, "  %s mask=%#x origins=%s\n", t.Name, t.Mask, m.StateNamesFromMask(t.OriginsMask))
	}

	if n := len(m.Syncs) + len(m.Merges) + len(m.Forks) + len(m.Splits); n > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Composites:")
		for _, s := range m.Syncs {
			fmt.Fprintf(w, "  sync  %s <- %v\n", s.TargetState, s.Transitions)
		}
		for _, mg := range m.Merges {
			fmt.Fprintf(w, "  merge %s <- %s from %s\n", mg.TargetState, mg.Transition, m.StateNamesFromMask(mg.OriginsMask))
		}
		for _, f := range m.Forks {
			fmt.Fprintf(w, "  fork  %s -> %v\n", f.OriginState, f.Transitions)
		}
		for _, s := range m.Splits {
			fmt.Fprintf(w, "  split %s -> %s\n", s.OriginState, s.Transition)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Parameters:")
	fmt.Fprintf(w, "  dispatch_max_count: %d\n", m.DispatchMaxCount)
	fmt.Fprintf(w, "  stall_cycles: %d\n", m.StallCycles)
}

// writeModelToFile writes the compiled model as indented JSON.
func writeModelToFile(m *compiler.Model, filename string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling model: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stateengine/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool               `json:"valid"`
	Workflow string             `json:"workflow,omitempty"`
	States   int                `json:"states,omitempty"`
	Warnings []compiler.Warning `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <model>",
		Short: "Validate a workflow model",
		Long: `Validate a workflow model (.yaml, .json or .cue) without running it.

Compiles the model, reporting the first compile error, then runs the
graph analysis and prints any warnings (loops, dead ends, unreachable
states). Warnings do not fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	m, err := loadModel(path)
	if err != nil {
		return validateFailure(formatter, err)
	}
	formatter.VerboseLog("Compiled %s: %d state(s), hash %s", m.Name, len(m.States), m.Hash)

	result := ValidationResult{
		Valid:    true,
		Workflow: m.Name,
		States:   len(m.States),
		Warnings: compiler.Analyze(m),
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ %s: valid (%d states)\n", m.Name, result.States)
	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "  warning [%s]: %s\n", w.Kind, w.Message)
	}
	return nil
}

// validateFailure reports a model that could not be validated. A defective
// model is a validation failure (exit 1); a file that could not be read or
// decoded is a command error (exit 2).
func validateFailure(formatter *OutputFormatter, err error) error {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		if formatter.Format != "json" {
			fmt.Fprintln(formatter.Writer, "✗ Validation failed")
			fmt.Fprintln(formatter.Writer)
		}
		return formatter.Fail(ExitFailure, err)
	}
	return formatter.Fail(ExitCommandError, err)
}

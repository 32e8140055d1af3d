package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/stateengine/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
	Workflow string
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Long: `List the runs recorded in a database in the order they started.

Idle runs can be continued with resume.

Examples:
  stateengine runs --db ./runs.db
  stateengine runs --db ./runs.db --workflow Loop --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Workflow, "workflow", "", "only list runs of this workflow")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return storeFailure(formatter, err)
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), opts.Workflow)
	if err != nil {
		return storeFailure(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(runs)
	}
	outputRunsText(formatter, runs)
	return nil
}

func outputRunsText(formatter *OutputFormatter, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs found")
		return
	}
	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tWORKFLOW\tSTATUS\tCYCLES\tSTATES\tRESUMED FROM")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", r.ID, r.Workflow, r.StatusName, r.Cycles, r.States, r.ResumedFrom)
	}
	_ = tw.Flush()
}

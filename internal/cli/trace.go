package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loomworks/gantry/internal/store"
	"github.com/loomworks/gantry/internal/trace"
)

// NewTraceCommand creates the trace command group.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded execution traces",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <trace-id>",
		Short: "Show the recorded steps of a trace",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraceShow(rootOpts, args[0], cmd)
		},
	})

	return cmd
}

func runTraceShow(opts *RootOptions, traceID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if _, err := os.Stat(opts.DBPath); err != nil {
		if ferr := formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.DBPath), nil); ferr != nil {
			return ferr
		}
		return NewExitError(ExitCommandError, "database not found")
	}

	db, err := store.Open(opts.DBPath)
	if err != nil {
		return storeError(formatter, err)
	}
	defer db.Close()

	steps, err := db.Read(cmd.Context(), traceID)
	if err != nil {
		return storeError(formatter, err)
	}
	if len(steps) == 0 {
		if ferr := formatter.Error(ErrCodeNotFound, fmt.Sprintf("trace %s not found", traceID), nil); ferr != nil {
			return ferr
		}
		return NewExitError(ExitFailure, "trace not found")
	}

	return formatter.SuccessText(renderTraceText(traceID, steps), steps)
}

func renderTraceText(traceID string, steps []trace.Step) string {
	var b strings.Builder
	fmt.Fprintf(&b, "trace %s: %d step(s)", traceID, len(steps))
	for _, s := range steps {
		fmt.Fprintf(&b, "\n  [%d] %s at %s", s.Seq, s.StepHash[:16], s.RecordedAt.Format("2006-01-02 15:04:05.000"))
	}
	return b.String()
}

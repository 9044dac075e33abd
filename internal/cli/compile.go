package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loomworks/gantry/internal/metric"
	"github.com/loomworks/gantry/internal/plan"
	"github.com/loomworks/gantry/internal/store"
)

// CompileResult is the structured output of the compile command.
type CompileResult struct {
	Plans      []plan.Plan               `json:"plans,omitempty"`
	Cached     []plan.Result             `json:"cached,omitempty"`
	ViewErrors map[string]*plan.ViewError `json:"view_errors,omitempty"`
	Advisories []string                  `json:"advisories,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	var forceRefresh bool

	cmd := &cobra.Command{
		Use:   "compile <spec.cue>",
		Short: "Compile a view/metric specification into execution plans",
		Long: `Compile a declarative CUE specification into bound execution plans.

Each view compiles independently: a rejected view is reported alongside
its siblings' plans, never in place of them. Views referencing a
persisted metric resolve against the database and may short-circuit to
a cached execution inside the metric's TTL.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(rootOpts, args[0], forceRefresh, cmd)
		},
	}

	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "bypass the metric execution cache")

	return cmd
}

func runCompile(opts *RootOptions, path string, forceRefresh bool, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	spec, reg, cliCode, err := LoadSpecFile(path)
	if err != nil {
		if ferr := formatter.Error(cliCode, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "load failed", err)
	}
	formatter.VerboseLog("Loaded %d view(s), %d capability contract(s) from %s",
		len(spec.Views), reg.Len(), path)

	compilerOpts := []plan.CompilerOption{}
	if db := openExistingStore(opts.DBPath, formatter); db != nil {
		defer db.Close()
		compilerOpts = append(compilerOpts,
			plan.WithMetricResolver(metric.NewResolver(db)),
			plan.WithConnectionStore(db),
		)
	}

	out := plan.NewCompiler(reg, compilerOpts...).Compile(cmd.Context(), spec, forceRefresh)
	result := CompileResult{
		Plans:      out.Plans,
		Cached:     out.Cached,
		ViewErrors: out.ViewErrors,
		Advisories: out.Advisories,
	}

	if len(out.ViewErrors) > 0 {
		if err := formatter.Error(ErrCodeCompile,
			fmt.Sprintf("%d view(s) failed to compile", len(out.ViewErrors)), result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "compilation had view errors")
	}

	return formatter.SuccessText(renderCompileText(result), result)
}

// openExistingStore opens the database only when the file already
// exists. Offline compilation without a database still works; metric
// references then fail per-view as unresolvable.
func openExistingStore(path string, formatter *OutputFormatter) *store.Store {
	if _, err := os.Stat(path); err != nil {
		formatter.VerboseLog("No database at %s, compiling without metric cache", path)
		return nil
	}
	db, err := store.Open(path)
	if err != nil {
		formatter.VerboseLog("Failed to open %s: %v", path, err)
		return nil
	}
	return db
}

func renderCompileText(result CompileResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "compiled %d plan(s), %d cached result(s)", len(result.Plans), len(result.Cached))
	for _, p := range result.Plans {
		fmt.Fprintf(&b, "\n  %s -> %s", p.ViewID, p.CapabilityID)
		if p.Synthesized {
			b.WriteString(" (synthesized)")
		}
		for _, w := range p.Warnings {
			fmt.Fprintf(&b, "\n    warning: %s", w)
		}
	}
	for _, r := range result.Cached {
		fmt.Fprintf(&b, "\n  %s <- cache (%s)", r.ViewID, r.Timestamp.Format("2006-01-02 15:04:05"))
	}
	for _, a := range result.Advisories {
		fmt.Fprintf(&b, "\n  advisory: %s", a)
	}
	return b.String()
}

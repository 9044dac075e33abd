package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/loomworks/gantry/internal/graph"
)

// graphFile is the on-disk YAML shape of an intent graph artifact: the
// graph itself plus an optional UI contract.
type graphFile struct {
	Nodes []graph.Node  `yaml:"nodes"`
	Edges []graph.Edge  `yaml:"edges"`
	UI    *graph.UIContract `yaml:"ui,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <graph.yaml>",
		Short: "Statically validate an intent graph",
		Long: `Validate an externally produced intent graph without executing it.

Checks topological soundness (cycle freedom, dangling edges), entry
kinds on root nodes, node types, capability references, and - when a
UI contract is attached - that every node is reachable from a declared
view's data source. Rejections carry a reason, the offending node, and
an auto-fix hint when one exists.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	gf, cliCode, err := loadGraphFile(path)
	if err != nil {
		if ferr := formatter.Error(cliCode, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "load failed", err)
	}
	formatter.VerboseLog("Loaded %d node(s), %d edge(s) from %s", len(gf.Nodes), len(gf.Edges), path)

	report := graph.Validate(graph.Graph{Nodes: gf.Nodes, Edges: gf.Edges}, gf.UI)
	if !report.OK {
		if err := formatter.Error(ErrCodeRejected, report.Error.Error(), report.Error); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "graph rejected")
	}

	return formatter.SuccessText(
		fmt.Sprintf("graph valid: %d node(s) walked, fingerprint %s", len(report.Logs)/2, report.Fingerprint),
		report,
	)
}

// loadGraphFile reads and strictly decodes a graph artifact. Unknown
// YAML fields are errors: a typo in an artifact must never validate.
// The second return is the CLI error code for rendering failures.
func loadGraphFile(path string) (*graphFile, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCodeNotFound, fmt.Errorf("graph file not found: %s", path)
		}
		return nil, ErrCodeGeneric, fmt.Errorf("reading graph file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var gf graphFile
	if err := dec.Decode(&gf); err != nil {
		return nil, ErrCodeParse, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &gf, "", nil
}

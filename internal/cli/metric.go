package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/loomworks/gantry/internal/capability"
	"github.com/loomworks/gantry/internal/engine"
	"github.com/loomworks/gantry/internal/metric"
	"github.com/loomworks/gantry/internal/plan"
	"github.com/loomworks/gantry/internal/store"
)

// metricFile is the on-disk YAML shape of a metric definition.
type metricFile struct {
	ID              string     `yaml:"id"`
	OrgID           string     `yaml:"org_id"`
	Name            string     `yaml:"name"`
	IntegrationID   string     `yaml:"integration_id"`
	Resource        string     `yaml:"resource"`
	CapabilityID    string     `yaml:"capability_id"`
	Query           plan.Query `yaml:"query"`
	Version         int        `yaml:"version"`
	Policy          string     `yaml:"policy"`
	CacheTTLSeconds int        `yaml:"cache_ttl_seconds"`
}

// NewMetricCommand creates the metric command group.
func NewMetricCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metric",
		Short: "Manage and run persisted metrics",
	}

	cmd.AddCommand(newMetricPutCommand(rootOpts))
	cmd.AddCommand(newMetricRunCommand(rootOpts))
	cmd.AddCommand(newMetricScheduleCommand(rootOpts))

	return cmd
}

func newMetricPutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <metric.yaml>",
		Short: "Create or replace a metric definition",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetricPut(rootOpts, args[0], cmd)
		},
	}
}

func newMetricRunCommand(rootOpts *RootOptions) *cobra.Command {
	var contracts string
	cmd := &cobra.Command{
		Use:   "run <metric-id>",
		Short: "Run a metric now, bypassing its cache",
		Long: `Run a metric immediately and record the execution row.

Capability contracts come from --contracts; executable adapters are
wired in-service, so offline runs of live capabilities record their
failure on the execution row rather than reaching an integration.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetricRun(rootOpts, args[0], contracts, cmd)
		},
	}
	cmd.Flags().StringVar(&contracts, "contracts", "", "CUE spec declaring capability contracts")
	return cmd
}

func newMetricScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	var contracts string
	cmd := &cobra.Command{
		Use:   "schedule <metric-id>",
		Short: "Run a metric only if its TTL has elapsed",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetricSchedule(rootOpts, args[0], contracts, cmd)
		},
	}
	cmd.Flags().StringVar(&contracts, "contracts", "", "CUE spec declaring capability contracts")
	return cmd
}

func runMetricPut(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		if ferr := formatter.Error(ErrCodeNotFound, fmt.Sprintf("metric file not found: %s", path), nil); ferr != nil {
			return ferr
		}
		return NewExitError(ExitCommandError, "metric file not found")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var mf metricFile
	if err := dec.Decode(&mf); err != nil {
		if ferr := formatter.Error(ErrCodeParse, fmt.Sprintf("parsing %s: %v", path, err), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "parse failed", err)
	}
	if mf.ID == "" || mf.OrgID == "" {
		if ferr := formatter.Error(ErrCodeParse, "metric id and org_id are required", nil); ferr != nil {
			return ferr
		}
		return NewExitError(ExitCommandError, "invalid metric definition")
	}

	db, err := store.Open(opts.DBPath)
	if err != nil {
		return storeError(formatter, err)
	}
	defer db.Close()

	m := metric.Metric{
		ID:              mf.ID,
		OrgID:           mf.OrgID,
		Name:            mf.Name,
		IntegrationID:   mf.IntegrationID,
		Resource:        mf.Resource,
		CapabilityID:    mf.CapabilityID,
		Query:           mf.Query,
		Version:         mf.Version,
		Policy:          metric.ExecutionPolicy(mf.Policy),
		CacheTTLSeconds: mf.CacheTTLSeconds,
	}
	if err := db.PutMetric(cmd.Context(), m); err != nil {
		return storeError(formatter, err)
	}

	return formatter.SuccessText(fmt.Sprintf("metric %s saved", m.ID), m)
}

func runMetricRun(opts *RootOptions, metricID, contracts string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	db, scheduler, err := openScheduler(opts, contracts, formatter)
	if err != nil {
		return err
	}
	defer db.Close()

	exec, err := scheduler.RunMetricExecution(cmd.Context(), metricID, "cli")
	if err != nil {
		code := ErrCodeStore
		if errors.Is(err, metric.ErrNotFound) {
			code = ErrCodeNotFound
		}
		if ferr := formatter.Error(code, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "metric run failed", err)
	}

	text := fmt.Sprintf("execution %s: %s", exec.ID, exec.Status)
	if exec.Status == metric.StatusFailed {
		text += " (" + exec.Error + ")"
	}
	return formatter.SuccessText(text, exec)
}

func runMetricSchedule(opts *RootOptions, metricID, contracts string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	db, scheduler, err := openScheduler(opts, contracts, formatter)
	if err != nil {
		return err
	}
	defer db.Close()

	ran, err := scheduler.ScheduleMetricExecution(cmd.Context(), metricID)
	if err != nil {
		code := ErrCodeStore
		if errors.Is(err, metric.ErrNotFound) {
			code = ErrCodeNotFound
		}
		if ferr := formatter.Error(code, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "metric schedule failed", err)
	}
	scheduler.Wait()

	text := "metric within ttl, no run triggered"
	if ran {
		text = "run triggered"
	}
	return formatter.SuccessText(text, map[string]any{"ran": ran})
}

// openScheduler assembles a scheduler over the database, with
// capability contracts loaded from an optional CUE artifact.
func openScheduler(opts *RootOptions, contracts string, formatter *OutputFormatter) (*store.Store, *metric.Scheduler, error) {
	reg := capability.NewRegistry()
	if contracts != "" {
		_, loaded, cliCode, err := LoadSpecFile(contracts)
		if err != nil {
			if ferr := formatter.Error(cliCode, err.Error(), nil); ferr != nil {
				return nil, nil, ferr
			}
			return nil, nil, WrapExitError(ExitCommandError, "load contracts failed", err)
		}
		reg = loaded
	}

	db, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, nil, storeError(formatter, err)
	}

	compiler := plan.NewCompiler(reg,
		plan.WithMetricResolver(metric.NewResolver(db)),
		plan.WithConnectionStore(db),
	)
	runner := plan.NewRunner(engine.NewExecutor(reg, db))
	scheduler := metric.NewScheduler(db, compiler, runner)

	return db, scheduler, nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func storeError(formatter *OutputFormatter, err error) error {
	if ferr := formatter.Error(ErrCodeStore, err.Error(), nil); ferr != nil {
		return ferr
	}
	return WrapExitError(ExitCommandError, "storage failure", err)
}

package metric

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loomworks/gantry/internal/capability"
	"github.com/loomworks/gantry/internal/engine"
	"github.com/loomworks/gantry/internal/plan"
)

// AlertEvaluator is the downstream alerting collaborator. Evaluation
// is fire-and-forget from the scheduler: failures are logged, never
// propagated to the metric run.
type AlertEvaluator interface {
	EvaluateAlerts(ctx context.Context, metricID string, result any, executionID string) error
}

// ContextFunc builds the execution context a metric runs under.
type ContextFunc func(m Metric) *capability.Context

// Scheduler runs persisted metrics through the plan compiler and
// records each run as an Execution row.
//
// Run failures are captured on the row, not returned: a failed
// scheduled run must never crash the scheduling loop.
type Scheduler struct {
	store      Store
	compiler   *plan.Compiler
	runner     *plan.Runner
	alerts     AlertEvaluator
	tokens     engine.TokenGenerator
	contextFor ContextFunc
	now        func() time.Time

	alertWG sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithAlertEvaluator wires the alerting collaborator.
func WithAlertEvaluator(a AlertEvaluator) SchedulerOption {
	return func(s *Scheduler) { s.alerts = a }
}

// WithSchedulerTokens overrides execution id generation.
func WithSchedulerTokens(g engine.TokenGenerator) SchedulerOption {
	return func(s *Scheduler) { s.tokens = g }
}

// WithContextFunc overrides how the per-metric execution context is
// built. The default grants full access scoped to the metric's org;
// deployments wanting tighter scheduled-run governance supply their
// own.
func WithContextFunc(f ContextFunc) SchedulerOption {
	return func(s *Scheduler) { s.contextFor = f }
}

// WithSchedulerNow overrides the lifecycle clock.
func WithSchedulerNow(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a Scheduler.
func NewScheduler(store Store, compiler *plan.Compiler, runner *plan.Runner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:    store,
		compiler: compiler,
		runner:   runner,
		tokens:   engine.UUIDv7Generator{},
		now:      time.Now,
		contextFor: func(m Metric) *capability.Context {
			// Access has no wildcard: a grant names read or write
			// exactly, so full access takes one entry per level.
			return &capability.Context{
				OrgID: m.OrgID,
				Permissions: []capability.Permission{
					{Integration: capability.Wildcard, Capability: capability.Wildcard, Access: capability.AccessRead},
					{Integration: capability.Wildcard, Capability: capability.Wildcard, Access: capability.AccessWrite},
				},
			}
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunMetricExecution runs a metric now, regardless of policy or cache
// state, and returns the finished execution row.
//
// The returned error covers setup only (unknown metric, storage
// failure creating the row). Execution failures land on the row as
// status failed.
func (s *Scheduler) RunMetricExecution(ctx context.Context, metricID, triggeredBy string) (*Execution, error) {
	m, err := s.store.GetMetric(ctx, metricID)
	if err != nil {
		return nil, fmt.Errorf("load metric %s: %w", metricID, err)
	}

	exec := NewExecution(s.tokens.Generate(), m.ID, triggeredBy)
	if err := s.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution for metric %s: %w", metricID, err)
	}

	if err := exec.Start(s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("mark execution %s running: %w", exec.ID, err)
	}

	slog.Info("metric execution started",
		"metric_id", m.ID,
		"execution_id", exec.ID,
		"triggered_by", triggeredBy)

	result := s.execute(ctx, m)
	if result.Status == plan.StatusError {
		if err := exec.Fail(result.Error, s.now()); err != nil {
			return nil, err
		}
		slog.Warn("metric execution failed",
			"metric_id", m.ID,
			"execution_id", exec.ID,
			"error", result.Error)
	} else {
		if err := exec.Complete(result.Data, s.now()); err != nil {
			return nil, err
		}
		slog.Info("metric execution completed",
			"metric_id", m.ID,
			"execution_id", exec.ID)
	}

	if err := s.store.UpdateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("persist execution %s: %w", exec.ID, err)
	}

	if exec.Status == StatusCompleted {
		s.triggerAlerts(m.ID, exec.Result, exec.ID)
	}
	return exec, nil
}

// execute compiles the metric as a single-view specification with the
// cache bypassed and runs the resulting plan.
func (s *Scheduler) execute(ctx context.Context, m Metric) plan.Result {
	view := m.View()
	out := s.compiler.Compile(ctx, plan.Spec{OrgID: m.OrgID, Views: []plan.View{view}}, true)

	if verr, ok := out.ViewErrors[view.ID]; ok {
		return plan.Result{
			ViewID:    view.ID,
			Status:    plan.StatusError,
			Error:     verr.Error(),
			Timestamp: s.now(),
			Source:    plan.SourceLive,
		}
	}
	if len(out.Plans) == 0 {
		return plan.Result{
			ViewID:    view.ID,
			Status:    plan.StatusError,
			Error:     fmt.Sprintf("metric %s compiled to no plan", m.ID),
			Timestamp: s.now(),
			Source:    plan.SourceLive,
		}
	}

	results := s.runner.Run(ctx, out.Plans, s.contextFor(m))
	return results[0]
}

// ScheduleMetricExecution runs the metric if its TTL policy says it is
// due. Returns whether a run was triggered.
//
// On-demand metrics never run from the scheduler. Scheduled metrics
// run immediately when no completed execution exists, otherwise only
// once the TTL has elapsed since the last completion.
func (s *Scheduler) ScheduleMetricExecution(ctx context.Context, metricID string) (bool, error) {
	m, err := s.store.GetMetric(ctx, metricID)
	if err != nil {
		return false, fmt.Errorf("load metric %s: %w", metricID, err)
	}
	if m.Policy == PolicyOnDemand {
		return false, nil
	}

	last, err := s.store.LatestCompletedExecution(ctx, metricID)
	if err != nil {
		return false, fmt.Errorf("load last execution for metric %s: %w", metricID, err)
	}
	if last != nil {
		elapsed := s.now().Sub(*last.CompletedAt)
		if elapsed < time.Duration(m.CacheTTLSeconds)*time.Second {
			slog.Debug("metric within ttl, skipping",
				"metric_id", metricID,
				"elapsed", elapsed)
			return false, nil
		}
	}

	if _, err := s.RunMetricExecution(ctx, metricID, "schedule"); err != nil {
		return false, err
	}
	return true, nil
}

// triggerAlerts fires alert evaluation in the background. A panicking
// or failing evaluator is logged and swallowed.
func (s *Scheduler) triggerAlerts(metricID string, result any, executionID string) {
	if s.alerts == nil {
		return
	}
	s.alertWG.Add(1)
	go func() {
		defer s.alertWG.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("alert evaluation panicked",
					"metric_id", metricID,
					"execution_id", executionID,
					"panic", r)
			}
		}()
		if err := s.alerts.EvaluateAlerts(context.Background(), metricID, result, executionID); err != nil {
			slog.Warn("alert evaluation failed",
				"metric_id", metricID,
				"execution_id", executionID,
				"error", err)
		}
	}()
}

// Wait blocks until in-flight alert evaluations finish. Callers use it
// to drain on shutdown.
func (s *Scheduler) Wait() {
	s.alertWG.Wait()
}

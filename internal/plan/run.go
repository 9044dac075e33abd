package plan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loomworks/gantry/internal/capability"
	"github.com/loomworks/gantry/internal/engine"
)

// Runner executes compiled plans through the governed engine pipeline.
//
// Plans run sequentially with a per-plan error boundary: one failing
// plan yields an error Result for its view and never affects siblings.
// Results are keyed by view id, so assembly order is irrelevant.
type Runner struct {
	executor    *engine.Executor
	credentials CredentialProvider
	now         func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithCredentialProvider wires the OAuth credential collaborator. When
// set, a bearer token is obtained before every plan execution; token
// failure is an execution-time error for that plan only and is never
// cached.
func WithCredentialProvider(p CredentialProvider) RunnerOption {
	return func(r *Runner) { r.credentials = p }
}

// WithRunnerNow overrides the result timestamp clock.
func WithRunnerNow(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner over the engine executor.
func NewRunner(executor *engine.Executor, opts ...RunnerOption) *Runner {
	r := &Runner{executor: executor, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes each plan and returns one Result per plan.
func (r *Runner) Run(ctx context.Context, plans []Plan, ec *capability.Context) []Result {
	results := make([]Result, 0, len(plans))
	for _, p := range plans {
		results = append(results, r.runOne(ctx, p, ec))
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, p Plan, ec *capability.Context) Result {
	if r.credentials != nil {
		token, err := r.credentials.GetValidAccessToken(ctx, ec.OrgID, p.IntegrationID)
		if err != nil {
			slog.Warn("credential acquisition failed",
				"view_id", p.ViewID,
				"integration_id", p.IntegrationID,
				"error", err)
			return Result{
				ViewID:    p.ViewID,
				Status:    StatusError,
				Error:     fmt.Sprintf("acquire credential for %s: %v", p.IntegrationID, err),
				Timestamp: r.now(),
				Source:    SourceLive,
			}
		}
		ec.BearerToken = token
	}

	out, err := r.executor.Execute(ctx, p.CapabilityID, p.Params, ec)
	if err != nil {
		return Result{
			ViewID:    p.ViewID,
			Status:    StatusError,
			Error:     err.Error(),
			Timestamp: r.now(),
			Source:    SourceLive,
		}
	}

	return Result{
		ViewID:    p.ViewID,
		Status:    StatusSuccess,
		Data:      out,
		Timestamp: r.now(),
		Source:    SourceLive,
	}
}

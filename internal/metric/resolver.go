package metric

import (
	"context"

	"github.com/loomworks/gantry/internal/plan"
)

// Resolver adapts a Store to the plan compiler's metric collaborator,
// so views referencing a persisted metric resolve its definition and
// its execution cache from the same storage the scheduler writes.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver over the store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveMetric loads the metric definition for a view reference.
func (r *Resolver) ResolveMetric(ctx context.Context, id string) (plan.MetricDefinition, error) {
	m, err := r.store.GetMetric(ctx, id)
	if err != nil {
		return plan.MetricDefinition{}, err
	}
	return plan.MetricDefinition{
		ID:              m.ID,
		OrgID:           m.OrgID,
		IntegrationID:   m.IntegrationID,
		Resource:        m.Resource,
		CapabilityID:    m.CapabilityID,
		Query:           m.Query,
		CacheTTLSeconds: m.CacheTTLSeconds,
	}, nil
}

// LatestCompleted surfaces the newest completed execution as a cache
// entry, or nil when the metric has never completed.
func (r *Resolver) LatestCompleted(ctx context.Context, metricID string) (*plan.CachedExecution, error) {
	e, err := r.store.LatestCompletedExecution(ctx, metricID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	return &plan.CachedExecution{
		Result:      e.Result,
		CompletedAt: *e.CompletedAt,
	}, nil
}

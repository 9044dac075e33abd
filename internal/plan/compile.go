package plan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loomworks/gantry/internal/capability"
)

// Compiler turns a declarative specification into validated execution
// plans bound to registered capabilities.
//
// Compilation is per-view: one bad view records a ViewError and never
// prevents sibling views from producing plans. Schema and connectivity
// checks are advisory only - they produce report strings, never
// failures.
type Compiler struct {
	registry    *capability.Registry
	metrics     MetricResolver
	schemas     SchemaDiscovery
	connections ConnectionStore
	normalizers map[string]Normalizer
	now         func() time.Time
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithMetricResolver wires the persisted-metric collaborator.
func WithMetricResolver(m MetricResolver) CompilerOption {
	return func(c *Compiler) { c.metrics = m }
}

// WithSchemaDiscovery wires the advisory schema collaborator.
func WithSchemaDiscovery(s SchemaDiscovery) CompilerOption {
	return func(c *Compiler) { c.schemas = s }
}

// WithConnectionStore wires the advisory connectivity collaborator.
func WithConnectionStore(s ConnectionStore) CompilerOption {
	return func(c *Compiler) { c.connections = s }
}

// WithNormalizer registers a capability-id-prefix normalizer on top of
// the defaults.
func WithNormalizer(prefix string, n Normalizer) CompilerOption {
	return func(c *Compiler) { c.normalizers[prefix] = n }
}

// WithNow overrides the clock used for cache staleness. Tests use a
// deterministic clock.
func WithNow(now func() time.Time) CompilerOption {
	return func(c *Compiler) { c.now = now }
}

// NewCompiler creates a Compiler over the capability registry.
func NewCompiler(reg *capability.Registry, opts ...CompilerOption) *Compiler {
	c := &Compiler{
		registry:    reg,
		normalizers: make(map[string]Normalizer),
		now:         time.Now,
	}
	for prefix, n := range defaultNormalizers {
		c.normalizers[prefix] = n
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Output is the result of compiling one specification.
type Output struct {
	// Plans are the validated, executable plans, in view declaration
	// order.
	Plans []Plan

	// Cached holds results served from the metric execution cache;
	// their views produced no plan.
	Cached []Result

	// ViewErrors maps failed view ids to their error. Sibling views
	// are unaffected.
	ViewErrors map[string]*ViewError

	// Advisories are non-blocking findings from schema/connectivity
	// validation.
	Advisories []string
}

// Compile processes every view of the specification.
//
// forceRefresh bypasses the metric execution cache, compiling a live
// plan even when a non-stale cached execution exists.
func (c *Compiler) Compile(ctx context.Context, spec Spec, forceRefresh bool) Output {
	out := Output{ViewErrors: make(map[string]*ViewError)}

	connected := c.loadConnected(ctx, spec.OrgID, &out)

	for _, view := range spec.Views {
		p, cached, verr := c.compileView(ctx, view, forceRefresh)
		if verr != nil {
			slog.Warn("view failed to compile",
				"view_id", view.ID,
				"code", string(verr.Code),
				"error", verr.Message)
			out.ViewErrors[view.ID] = verr
			continue
		}
		if cached != nil {
			out.Cached = append(out.Cached, *cached)
			continue
		}

		if verr := c.validatePlan(p); verr != nil {
			slog.Warn("plan rejected by validation",
				"view_id", view.ID,
				"capability_id", p.CapabilityID,
				"code", string(verr.Code))
			out.ViewErrors[view.ID] = verr
			continue
		}

		c.advise(p, connected, &out)
		out.Plans = append(out.Plans, *p)
	}

	return out
}

// compileView derives a single view's plan or cached result.
func (c *Compiler) compileView(ctx context.Context, view View, forceRefresh bool) (*Plan, *Result, *ViewError) {
	p := &Plan{ViewID: view.ID, Params: make(map[string]any)}

	// 1. Persisted metric reference: resolve, then short-circuit to the
	// cached execution when it is still fresh.
	if view.MetricID != "" {
		if c.metrics == nil {
			return nil, nil, NewMetricNotFoundError(view.ID, view.MetricID)
		}
		def, err := c.metrics.ResolveMetric(ctx, view.MetricID)
		if err != nil {
			return nil, nil, NewMetricNotFoundError(view.ID, view.MetricID)
		}

		if !forceRefresh {
			if cached := c.freshExecution(ctx, def); cached != nil {
				return nil, &Result{
					ViewID:    view.ID,
					Status:    StatusSuccess,
					Data:      cached.Result,
					Timestamp: cached.CompletedAt,
					Source:    SourceCache,
				}, nil
			}
		}

		p.IntegrationID = def.IntegrationID
		p.Resource = def.Resource
		p.CapabilityID = def.CapabilityID
		flattenQuery(def.Query, p.Params)
	} else if view.Metric != nil {
		// 2. Inline metric: inherit the target and query directly. Inline
		// metrics have no identity, so the execution cache never applies.
		p.IntegrationID = view.Metric.IntegrationID
		p.Resource = view.Metric.Resource
		p.CapabilityID = view.Metric.CapabilityID
		flattenQuery(view.Metric.Query, p.Params)
	} else {
		// 3. Explicit target or direct capability query.
		if view.IntegrationID == "" && view.CapabilityID == "" {
			return nil, nil, &ViewError{
				Code:    ErrCodeUnresolvableTarget,
				ViewID:  view.ID,
				Message: "view names no metric, no integration/resource, and no capability",
			}
		}
		p.IntegrationID = view.IntegrationID
		p.Resource = view.Resource
	}

	// View-level query and params overlay whatever the metric supplied.
	flattenQuery(view.Query, p.Params)
	for k, v := range view.Params {
		p.Params[k] = v
	}
	if view.CapabilityID != "" {
		p.CapabilityID = view.CapabilityID
	}

	// 4. Synthesize a capability id by convention when none is
	// explicit. Synthesis is a heuristic: validation still decides
	// whether the id exists, and the plan is marked so callers can
	// tell convention from declaration.
	if p.CapabilityID == "" {
		p.CapabilityID = fmt.Sprintf("%s_%s_list", p.IntegrationID, p.Resource)
		p.Synthesized = true
		p.Warnings = append(p.Warnings,
			fmt.Sprintf("capability id %q synthesized by convention", p.CapabilityID))
	}

	// Capability-specific normalization. Failures are warnings, not
	// rejections - unresolved fields surface at execution time.
	if n, ok := normalizerFor(c.normalizers, p.CapabilityID); ok {
		if err := n(p.Params); err != nil {
			p.Warnings = append(p.Warnings, fmt.Sprintf("normalization failed: %v", err))
		}
	}

	return p, nil, nil
}

// freshExecution returns the latest completed execution if it is inside
// the metric's TTL. Cache lookup failures are treated as stale, never
// as view failures.
func (c *Compiler) freshExecution(ctx context.Context, def MetricDefinition) *CachedExecution {
	cached, err := c.metrics.LatestCompleted(ctx, def.ID)
	if err != nil {
		slog.Warn("metric cache lookup failed, compiling live plan",
			"metric_id", def.ID, "error", err)
		return nil
	}
	if cached == nil || def.CacheTTLSeconds <= 0 {
		return nil
	}
	age := c.now().Sub(cached.CompletedAt)
	if age >= time.Duration(def.CacheTTLSeconds)*time.Second {
		return nil
	}
	return cached
}

// flattenQuery folds structured filters/sort/limit into the flat
// parameter map. Filter keys map directly; sort and limit use the
// conventional parameter names.
func flattenQuery(q Query, params map[string]any) {
	for k, v := range q.Filters {
		params[k] = v
	}
	if q.Sort != "" {
		params["sort"] = q.Sort
	}
	if q.Limit > 0 {
		params["limit"] = q.Limit
	}
}

// loadConnected fetches the org's connected integrations for advisory
// checks. Collaborator failure disables the check rather than failing
// compilation.
func (c *Compiler) loadConnected(ctx context.Context, orgID string, out *Output) map[string]bool {
	if c.connections == nil {
		return nil
	}
	ids, err := c.connections.ListConnectedIntegrations(ctx, orgID)
	if err != nil {
		slog.Warn("connection lookup failed, skipping connectivity advisories",
			"org_id", orgID, "error", err)
		return nil
	}
	connected := make(map[string]bool, len(ids))
	for _, id := range ids {
		connected[id] = true
	}
	return connected
}

// advise records advisory findings for one validated plan.
func (c *Compiler) advise(p *Plan, connected map[string]bool, out *Output) {
	if connected != nil && !connected[p.IntegrationID] {
		out.Advisories = append(out.Advisories,
			fmt.Sprintf("view %q references integration %q which is not connected", p.ViewID, p.IntegrationID))
	}
}

package plan

import "time"

// Query is the structured portion of a view: filters, sort, and limit.
// The compiler flattens it into the flat parameter map capabilities
// consume.
type Query struct {
	Filters map[string]any `json:"filters,omitempty" yaml:"filters,omitempty"`
	Sort    string         `json:"sort,omitempty" yaml:"sort,omitempty"`
	Limit   int            `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// InlineMetric is a metric definition embedded directly in a view.
// Unlike a persisted metric it has no identity, no TTL, and no
// execution cache - the view simply inherits its target and query.
type InlineMetric struct {
	IntegrationID string `json:"integration_id,omitempty" yaml:"integration_id,omitempty"`
	Resource      string `json:"resource,omitempty" yaml:"resource,omitempty"`
	CapabilityID  string `json:"capability_id,omitempty" yaml:"capability_id,omitempty"`
	Query         Query  `json:"query,omitempty" yaml:"query,omitempty"`
}

// View is one declarative unit of a specification. A view names exactly
// one of:
//   - a persisted metric (MetricID), inheriting the metric's target
//   - an inline metric definition (Metric)
//   - an explicit {IntegrationID, Resource} pair
//   - a direct capability call (CapabilityID + Params)
//
// Query and Params apply on top of whichever target is derived.
type View struct {
	ID            string         `json:"id" yaml:"id"`
	MetricID      string         `json:"metric_id,omitempty" yaml:"metric_id,omitempty"`
	Metric        *InlineMetric  `json:"metric,omitempty" yaml:"metric,omitempty"`
	IntegrationID string         `json:"integration_id,omitempty" yaml:"integration_id,omitempty"`
	Resource      string         `json:"resource,omitempty" yaml:"resource,omitempty"`
	CapabilityID  string         `json:"capability_id,omitempty" yaml:"capability_id,omitempty"`
	Query         Query          `json:"query,omitempty" yaml:"query,omitempty"`
	Params        map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Spec is a full declarative view/metric specification for one org.
type Spec struct {
	OrgID string `json:"org_id" yaml:"org_id"`
	Views []View `json:"views" yaml:"views"`
}

// Plan is one fully bound, independently executable unit. One plan is
// independently fallible: its failure never affects sibling plans.
type Plan struct {
	ViewID        string         `json:"view_id"`
	IntegrationID string         `json:"integration_id"`
	CapabilityID  string         `json:"capability_id"`
	Resource      string         `json:"resource"`
	Params        map[string]any `json:"params"`

	// Synthesized marks plans whose capability id came from the
	// {integration}_{resource}_list convention rather than an explicit
	// declaration.
	Synthesized bool `json:"synthesized,omitempty"`

	// Warnings collects non-fatal compile notes (dropped parameters,
	// failed normalization). Never fatal by policy.
	Warnings []string `json:"warnings,omitempty"`
}

// Result statuses and sources.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	SourceLive  = "live"
	SourceCache = "cache"
)

// Result is the outcome of one view, whether served live or from the
// metric execution cache. Results are keyed by ViewID; completion order
// is irrelevant.
type Result struct {
	ViewID    string    `json:"view_id"`
	Status    string    `json:"status"` // success | error
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // live | cache
}

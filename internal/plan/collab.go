package plan

import (
	"context"
	"time"
)

// SchemaField is one discovered field of an integration resource.
type SchemaField struct {
	Name string `json:"name"`
}

// Schema is one discovered integration resource shape.
type Schema struct {
	IntegrationID string        `json:"integration_id"`
	Resource      string        `json:"resource"`
	Fields        []SchemaField `json:"fields"`
}

// SchemaDiscovery reports the resource shapes discovered for an org's
// connected integrations. Consumed by spec validation to flag unknown
// resources - advisory only, never blocking.
type SchemaDiscovery interface {
	GetDiscoveredSchemas(ctx context.Context, orgID string) ([]Schema, error)
}

// ConnectionStore reports which integrations an org has connected.
// Consumed by spec validation to distinguish "unknown integration" from
// "connected but unschematized".
type ConnectionStore interface {
	ListConnectedIntegrations(ctx context.Context, orgID string) ([]string, error)
}

// CredentialProvider produces a valid bearer credential on demand.
// Consumed before any capability execution that requires OAuth; failure
// propagates as an execution-time error and is never cached.
type CredentialProvider interface {
	GetValidAccessToken(ctx context.Context, orgID, integrationID string) (string, error)
}

// MetricDefinition is the compiler's read-model of a persisted metric:
// the target and query a metric-referencing view inherits. The metric
// package owns the full record; this keeps the dependency pointing from
// metric to plan, not back.
type MetricDefinition struct {
	ID              string
	OrgID           string
	IntegrationID   string
	Resource        string
	CapabilityID    string // optional explicit capability
	Query           Query
	CacheTTLSeconds int
}

// CachedExecution is the latest completed run of a metric.
type CachedExecution struct {
	Result      any
	CompletedAt time.Time
}

// MetricResolver resolves persisted metric references during
// compilation. ResolveMetric fails with a METRIC_NOT_FOUND view error
// when the id is unknown; LatestCompleted returns nil when no completed
// execution exists.
type MetricResolver interface {
	ResolveMetric(ctx context.Context, metricID string) (MetricDefinition, error)
	LatestCompleted(ctx context.Context, metricID string) (*CachedExecution, error)
}

// Package metric schedules recurring executions of persisted metric
// definitions and records their lifecycle.
//
// A Metric is a named, versioned query definition. Each run is one
// Execution row moving through a strict lifecycle:
//
//	pending -> running -> completed | failed
//
// No other transition is valid. A completed execution always carries a
// result payload; a failed one always carries an error message.
package metric

import (
	"fmt"
	"time"

	"github.com/loomworks/gantry/internal/plan"
)

// ExecutionPolicy controls when the scheduler re-runs a metric.
type ExecutionPolicy string

const (
	// PolicyOnDemand metrics run only when explicitly requested.
	PolicyOnDemand ExecutionPolicy = "on_demand"

	// PolicyScheduled metrics re-run whenever their TTL has elapsed
	// since the last completed execution.
	PolicyScheduled ExecutionPolicy = "scheduled"
)

// Metric is a persisted, versioned query definition.
type Metric struct {
	ID            string
	OrgID         string
	Name          string
	IntegrationID string
	Resource      string
	CapabilityID  string
	Query         plan.Query
	Version       int
	Policy        ExecutionPolicy

	// CacheTTLSeconds bounds how long a completed execution satisfies
	// reads before the scheduler re-runs the metric. Zero disables
	// caching.
	CacheTTLSeconds int
}

// View wraps the metric in a single-view specification targeting the
// metric's own integration/resource/capability directly, so compiling
// it never re-enters the metric cache path.
func (m Metric) View() plan.View {
	return plan.View{
		ID:            m.ID,
		IntegrationID: m.IntegrationID,
		Resource:      m.Resource,
		CapabilityID:  m.CapabilityID,
		Query:         m.Query,
	}
}

// Status is an Execution's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// TransitionError reports an attempt to move an execution along an
// edge the lifecycle does not have.
type TransitionError struct {
	ExecutionID string
	From        Status
	To          Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("execution %s: invalid transition %s -> %s", e.ExecutionID, e.From, e.To)
}

// Execution is one run of a metric.
type Execution struct {
	ID          string
	MetricID    string
	Status      Status
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      any
	Error       string
	TriggeredBy string
}

// NewExecution creates a pending execution row.
func NewExecution(id, metricID, triggeredBy string) *Execution {
	return &Execution{
		ID:          id,
		MetricID:    metricID,
		Status:      StatusPending,
		TriggeredBy: triggeredBy,
	}
}

// Start moves a pending execution to running.
func (e *Execution) Start(now time.Time) error {
	if e.Status != StatusPending {
		return &TransitionError{ExecutionID: e.ID, From: e.Status, To: StatusRunning}
	}
	e.Status = StatusRunning
	e.StartedAt = now
	return nil
}

// Complete moves a running execution to completed with its result.
func (e *Execution) Complete(result any, now time.Time) error {
	if e.Status != StatusRunning {
		return &TransitionError{ExecutionID: e.ID, From: e.Status, To: StatusCompleted}
	}
	e.Status = StatusCompleted
	e.Result = result
	e.CompletedAt = &now
	return nil
}

// Fail moves a running execution to failed with the error message.
func (e *Execution) Fail(message string, now time.Time) error {
	if e.Status != StatusRunning {
		return &TransitionError{ExecutionID: e.ID, From: e.Status, To: StatusFailed}
	}
	if message == "" {
		message = "execution failed"
	}
	e.Status = StatusFailed
	e.Error = message
	e.CompletedAt = &now
	return nil
}

package plan

import (
	"errors"
	"fmt"
)

// ViewError represents a per-view compilation failure.
//
// Failures are per-view by policy: one bad view never prevents other
// views in the same specification from compiling and executing.
type ViewError struct {
	// Code identifies the error category.
	Code ViewErrorCode `json:"code"`

	// ViewID identifies the failed view.
	ViewID string `json:"view_id"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Key names the offending parameter (missing-parameter errors).
	Key string `json:"key,omitempty"`
}

// ViewErrorCode categorizes view compilation failures.
type ViewErrorCode string

const (
	// ErrCodeMetricNotFound indicates the view references an unknown
	// persisted metric.
	ErrCodeMetricNotFound ViewErrorCode = "METRIC_NOT_FOUND"

	// ErrCodeUnknownCapabilityID indicates the plan's capability id,
	// explicit or synthesized, is not registered.
	ErrCodeUnknownCapabilityID ViewErrorCode = "UNKNOWN_CAPABILITY_ID"

	// ErrCodeIntegrationMismatch indicates the plan's integration does
	// not match the registered capability's integration.
	ErrCodeIntegrationMismatch ViewErrorCode = "INTEGRATION_MISMATCH"

	// ErrCodeMissingRequiredParameter indicates a required parameter
	// declared by the capability's contract is absent from the plan.
	ErrCodeMissingRequiredParameter ViewErrorCode = "MISSING_REQUIRED_PARAMETER"

	// ErrCodeUnresolvableTarget indicates the view names no metric, no
	// integration/resource pair, and no explicit capability.
	ErrCodeUnresolvableTarget ViewErrorCode = "UNRESOLVABLE_TARGET"
)

// Error implements the error interface.
func (e *ViewError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (view=%s, key=%s)", e.Code, e.Message, e.ViewID, e.Key)
	}
	return fmt.Sprintf("%s: %s (view=%s)", e.Code, e.Message, e.ViewID)
}

// IsMetricNotFound returns true for metric-not-found errors.
// Uses errors.As to handle wrapped errors.
func IsMetricNotFound(err error) bool {
	var ve *ViewError
	if errors.As(err, &ve) {
		return ve.Code == ErrCodeMetricNotFound
	}
	return false
}

// NewMetricNotFoundError creates a ViewError for an unknown metric id.
func NewMetricNotFoundError(viewID, metricID string) *ViewError {
	return &ViewError{
		Code:    ErrCodeMetricNotFound,
		ViewID:  viewID,
		Message: fmt.Sprintf("metric %q not found", metricID),
	}
}

package engine

import (
	"errors"
	"fmt"
)

// ExecError represents an error raised by the execution pipeline.
//
// Pipeline errors include:
//   - Unknown capability: id not present in the registry
//   - Legacy capability: definition has no executor attached
//   - Permission denied: no granted permission admits the call
//   - Policy violation: an organization policy denied the call
//   - Trace not found / replay divergence: replay integrity
//   - Quota exceeded: chain exceeded max steps per trace
//
// ExecError includes structured fields for diagnostics; permission and
// policy denials always abort the entire call with no retry.
type ExecError struct {
	// Code identifies the error category.
	Code ExecErrorCode

	// Message is a human-readable description.
	Message string

	// CapabilityID identifies the capability involved, when known.
	CapabilityID string

	// IntegrationID identifies the owning integration, when known.
	IntegrationID string

	// TraceID identifies the affected trace (replay/quota errors).
	TraceID string

	// Reason carries the policy's stated reason (policy violations).
	Reason string
}

// ExecErrorCode categorizes pipeline errors.
type ExecErrorCode string

const (
	// ErrCodeUnknownCapability indicates the id is not registered.
	ErrCodeUnknownCapability ExecErrorCode = "UNKNOWN_CAPABILITY"

	// ErrCodeLegacyCapability indicates a metadata-only definition with
	// no executor attached.
	ErrCodeLegacyCapability ExecErrorCode = "LEGACY_CAPABILITY"

	// ErrCodePermissionDenied indicates no granted permission admits
	// the call.
	ErrCodePermissionDenied ExecErrorCode = "PERMISSION_DENIED"

	// ErrCodePolicyViolation indicates an organization policy denied
	// the call.
	ErrCodePolicyViolation ExecErrorCode = "POLICY_VIOLATION"

	// ErrCodeTraceNotFound indicates replay was requested for a trace
	// id with no recorded steps.
	ErrCodeTraceNotFound ExecErrorCode = "TRACE_NOT_FOUND"

	// ErrCodeReplayDivergence indicates the replay cursor ran past the
	// end of the recorded trace, or (in strict mode) a step hash
	// mismatch.
	ErrCodeReplayDivergence ExecErrorCode = "REPLAY_DIVERGENCE"

	// ErrCodeQuotaExceeded indicates the chain exceeded the max steps
	// allowed per trace.
	ErrCodeQuotaExceeded ExecErrorCode = "QUOTA_EXCEEDED"
)

// Error implements the error interface.
func (e *ExecError) Error() string {
	switch {
	case e.CapabilityID != "" && e.IntegrationID != "":
		return fmt.Sprintf("%s: %s (integration=%s, capability=%s)",
			e.Code, e.Message, e.IntegrationID, e.CapabilityID)
	case e.CapabilityID != "":
		return fmt.Sprintf("%s: %s (capability=%s)", e.Code, e.Message, e.CapabilityID)
	case e.TraceID != "":
		return fmt.Sprintf("%s: %s (trace=%s)", e.Code, e.Message, e.TraceID)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// codeIs reports whether err is an ExecError with the given code.
// Uses errors.As to handle wrapped errors.
func codeIs(err error, code ExecErrorCode) bool {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsUnknownCapability returns true for unknown-capability errors.
func IsUnknownCapability(err error) bool { return codeIs(err, ErrCodeUnknownCapability) }

// IsLegacyCapability returns true for legacy-capability errors.
func IsLegacyCapability(err error) bool { return codeIs(err, ErrCodeLegacyCapability) }

// IsPermissionDenied returns true for permission-denied errors.
func IsPermissionDenied(err error) bool { return codeIs(err, ErrCodePermissionDenied) }

// IsPolicyViolation returns true for policy-violation errors.
func IsPolicyViolation(err error) bool { return codeIs(err, ErrCodePolicyViolation) }

// IsTraceNotFound returns true for trace-not-found errors.
func IsTraceNotFound(err error) bool { return codeIs(err, ErrCodeTraceNotFound) }

// IsReplayDivergence returns true for replay-divergence errors.
func IsReplayDivergence(err error) bool { return codeIs(err, ErrCodeReplayDivergence) }

// IsQuotaExceeded returns true for quota-exceeded errors.
func IsQuotaExceeded(err error) bool { return codeIs(err, ErrCodeQuotaExceeded) }

// NewUnknownCapabilityError creates an ExecError for an unregistered id.
func NewUnknownCapabilityError(capabilityID string) *ExecError {
	return &ExecError{
		Code:         ErrCodeUnknownCapability,
		Message:      "capability is not registered",
		CapabilityID: capabilityID,
	}
}

// NewLegacyCapabilityError creates an ExecError for a definition with
// no executor.
func NewLegacyCapabilityError(capabilityID string) *ExecError {
	return &ExecError{
		Code:         ErrCodeLegacyCapability,
		Message:      "capability has no executor attached",
		CapabilityID: capabilityID,
	}
}

// NewPermissionDeniedError creates an ExecError for a denied call.
func NewPermissionDeniedError(integrationID, capabilityID string) *ExecError {
	return &ExecError{
		Code:          ErrCodePermissionDenied,
		Message:       "caller lacks required access",
		IntegrationID: integrationID,
		CapabilityID:  capabilityID,
	}
}

// NewPolicyViolationError creates an ExecError carrying the policy's
// stated reason.
func NewPolicyViolationError(integrationID, capabilityID, reason string) *ExecError {
	msg := "organization policy denied the call"
	if reason != "" {
		msg = msg + ": " + reason
	}
	return &ExecError{
		Code:          ErrCodePolicyViolation,
		Message:       msg,
		IntegrationID: integrationID,
		CapabilityID:  capabilityID,
		Reason:        reason,
	}
}

// NewTraceNotFoundError creates an ExecError for a missing trace.
func NewTraceNotFoundError(traceID string) *ExecError {
	return &ExecError{
		Code:    ErrCodeTraceNotFound,
		Message: "no recorded steps for trace",
		TraceID: traceID,
	}
}

// NewReplayDivergenceError creates an ExecError for replay running past
// the recorded trace or, in strict mode, a hash mismatch.
func NewReplayDivergenceError(traceID, message string) *ExecError {
	return &ExecError{
		Code:    ErrCodeReplayDivergence,
		Message: message,
		TraceID: traceID,
	}
}

// NewQuotaExceededError creates an ExecError for a chain exceeding the
// per-trace step quota.
func NewQuotaExceededError(traceID string, steps, limit int) *ExecError {
	return &ExecError{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("chain exceeded max steps quota: %d steps > %d limit", steps, limit),
		TraceID: traceID,
	}
}

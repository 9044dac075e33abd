package graph

import "fmt"

// Reason categorizes why a graph was rejected.
type Reason string

const (
	// ReasonUnreachableNode: a root lacks a recognized entry kind, a UI
	// contract references a missing node, or a node is orphaned from
	// every declared view.
	ReasonUnreachableNode Reason = "UnreachableNode"

	// ReasonDanglingEdge: an edge references an unknown node id.
	ReasonDanglingEdge Reason = "DanglingEdge"

	// ReasonCycleDetected: the graph is not a DAG.
	ReasonCycleDetected Reason = "CycleDetected"

	// ReasonInvalidActionType: a node's type is outside the accepted set.
	ReasonInvalidActionType Reason = "InvalidActionType"

	// ReasonMissingCapability: an integration_call node names no
	// capability.
	ReasonMissingCapability Reason = "MissingCapability"

	// ReasonSandboxExecutionFailed: the graph is structurally malformed
	// (no nodes, duplicate ids) and the sandbox walk cannot start.
	ReasonSandboxExecutionFailed Reason = "SandboxExecutionFailed"
)

// ValidationError is the terminal rejection of a graph. Every rejection
// carries enough structure (node id, details, optional auto-fix hint)
// for a caller to patch and resubmit; there is no partial acceptance.
type ValidationError struct {
	Type    string `json:"type"` // always "InvalidIntentGraph"
	Reason  Reason `json:"reason"`
	NodeID  string `json:"node_id,omitempty"`
	Details string `json:"details"`
	AutoFix string `json:"auto_fix,omitempty"`
	Status  string `json:"status"` // always "rejected"
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s/%s: %s (node=%s)", e.Type, e.Reason, e.Details, e.NodeID)
	}
	return fmt.Sprintf("%s/%s: %s", e.Type, e.Reason, e.Details)
}

func reject(reason Reason, nodeID, details, autoFix string) *ValidationError {
	return &ValidationError{
		Type:    "InvalidIntentGraph",
		Reason:  reason,
		NodeID:  nodeID,
		Details: details,
		AutoFix: autoFix,
		Status:  "rejected",
	}
}

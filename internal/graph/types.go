package graph

// NodeType classifies what an execution node does.
type NodeType string

const (
	NodeIntegrationCall NodeType = "integration_call"
	NodeTransform       NodeType = "transform"
	NodeCondition       NodeType = "condition"
	NodeEmitEvent       NodeType = "emit_event"
)

// validNodeTypes is the closed set of accepted node types.
var validNodeTypes = map[NodeType]bool{
	NodeIntegrationCall: true,
	NodeTransform:       true,
	NodeCondition:       true,
	NodeEmitEvent:       true,
}

// EntryKind classifies what may trigger a root node.
type EntryKind string

const (
	EntryLifecycle EntryKind = "lifecycle"
	EntryUI        EntryKind = "ui"
	EntrySynthetic EntryKind = "synthetic"
)

var validEntryKinds = map[EntryKind]bool{
	EntryLifecycle: true,
	EntryUI:        true,
	EntrySynthetic: true,
}

// Node is one action in an externally produced intent graph.
// CapabilityID is required for integration_call nodes. EntryKind is
// meaningful only on root nodes (zero in-degree).
type Node struct {
	ID           string         `json:"id" yaml:"id"`
	Type         NodeType       `json:"type" yaml:"type"`
	EntryKind    EntryKind      `json:"entry_kind,omitempty" yaml:"entry_kind,omitempty"`
	CapabilityID string         `json:"capability_id,omitempty" yaml:"capability_id,omitempty"`
	Params       map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Edge is a directed dependency between two nodes.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Graph is a directed action graph produced upstream (by the planning
// layer) and validated - never executed - by this package.
type Graph struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// UIView declares one rendered view and the node feeding it.
type UIView struct {
	ViewID           string `json:"view_id" yaml:"view_id"`
	DataSourceNodeID string `json:"data_source_node_id" yaml:"data_source_node_id"`
}

// UIContract references the graph nodes that feed declared views. When
// a contract is attached, every node in the graph must be connected
// (undirected) to at least one referenced data source - no action node
// may be orphaned from observable output.
type UIContract struct {
	Views []UIView `json:"views" yaml:"views"`
}

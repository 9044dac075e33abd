package graph

import (
	"fmt"

	"github.com/loomworks/gantry/internal/canon"
)

// LogEntry is one simulated sandbox event. The sandbox walk produces
// node_start/node_complete pairs per accepted node; no real integration
// call ever occurs during validation.
type LogEntry struct {
	Event  string `json:"event"` // "node_start" | "node_complete"
	NodeID string `json:"node_id"`
	Seq    int    `json:"seq"`
}

// Report is the outcome of validating one graph. Exactly one of
// OK+Logs or Error is meaningful: rejection is terminal, and a rejected
// report carries no partial logs.
type Report struct {
	OK          bool             `json:"ok"`
	Fingerprint string           `json:"fingerprint"`
	Logs        []LogEntry       `json:"logs,omitempty"`
	Error       *ValidationError `json:"error,omitempty"`
}

// Validate statically checks an externally produced intent graph before
// it is registered for execution.
//
// Checks, in order:
//  1. Structural presence (nodes exist, ids unique)
//  2. Edge integrity (DanglingEdge)
//  3. Acyclicity via Kahn's algorithm (CycleDetected)
//  4. Root entry kinds (UnreachableNode)
//  5. Node types and integration_call capabilities
//     (InvalidActionType, MissingCapability), walked in topological
//     order with simulated node_start/node_complete logs
//  6. UI connectivity: undirected reachability of every node from at
//     least one declared view data source (UnreachableNode)
//
// ui may be nil when no views are declared; step 6 is then skipped.
// The fingerprint is content-addressed over node ids and edges so a
// caller can tell whether a rejected graph actually changed before it
// was resubmitted.
func Validate(g Graph, ui *UIContract) Report {
	nodeIDs := make([]string, len(g.Nodes))
	edgePairs := make([][2]string, len(g.Edges))
	for i, n := range g.Nodes {
		nodeIDs[i] = n.ID
	}
	for i, e := range g.Edges {
		edgePairs[i] = [2]string{e.From, e.To}
	}
	report := Report{Fingerprint: canon.GraphFingerprint(nodeIDs, edgePairs)}

	fail := func(err *ValidationError) Report {
		report.OK = false
		report.Logs = nil
		report.Error = err
		return report
	}

	// 1. Structural presence.
	if len(g.Nodes) == 0 {
		return fail(reject(ReasonSandboxExecutionFailed, "", "graph has no nodes", ""))
	}
	byID := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return fail(reject(ReasonSandboxExecutionFailed, "", "node with empty id", ""))
		}
		if _, dup := byID[n.ID]; dup {
			return fail(reject(ReasonSandboxExecutionFailed, n.ID,
				fmt.Sprintf("duplicate node id %q", n.ID), ""))
		}
		byID[n.ID] = n
	}

	// 2. Edge integrity.
	for _, e := range g.Edges {
		if _, ok := byID[e.From]; !ok {
			return fail(reject(ReasonDanglingEdge, e.From,
				fmt.Sprintf("edge references unknown node %q", e.From), ""))
		}
		if _, ok := byID[e.To]; !ok {
			return fail(reject(ReasonDanglingEdge, e.To,
				fmt.Sprintf("edge references unknown node %q", e.To), ""))
		}
	}

	// 3. Kahn's algorithm. Queue seeded and drained in declaration
	// order for deterministic reports.
	inDegree := make(map[string]int, len(g.Nodes))
	successors := make(map[string][]string, len(g.Nodes))
	for _, n := range g.Nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range g.Edges {
		successors[e.From] = append(successors[e.From], e.To)
		inDegree[e.To]++
	}

	var queue []string
	for _, n := range g.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	roots := append([]string(nil), queue...)

	var sorted []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)
		for _, succ := range successors[id] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	if len(sorted) < len(g.Nodes) {
		return fail(reject(ReasonCycleDetected, "",
			fmt.Sprintf("graph contains a cycle: %d of %d nodes unsortable", len(g.Nodes)-len(sorted), len(g.Nodes)), ""))
	}

	// 4. Every root must carry a recognized trigger kind. A node with
	// no inbound edges and no recognized entry kind can never run.
	for _, id := range roots {
		if !validEntryKinds[byID[id].EntryKind] {
			return fail(reject(ReasonUnreachableNode, id,
				fmt.Sprintf("root node %q has no recognized entry kind (want lifecycle, ui, or synthetic)", id),
				"set entry_kind on the root or add an inbound edge"))
		}
	}

	// 5. Sandbox walk in topological order. No real side effects; each
	// accepted node emits a simulated start/complete pair.
	seq := 0
	for _, id := range sorted {
		n := byID[id]
		if !validNodeTypes[n.Type] {
			return fail(reject(ReasonInvalidActionType, id,
				fmt.Sprintf("node %q has invalid type %q", id, n.Type), ""))
		}
		if n.Type == NodeIntegrationCall && n.CapabilityID == "" {
			return fail(reject(ReasonMissingCapability, id,
				fmt.Sprintf("integration_call node %q names no capability", id), ""))
		}
		seq++
		report.Logs = append(report.Logs, LogEntry{Event: "node_start", NodeID: id, Seq: seq})
		seq++
		report.Logs = append(report.Logs, LogEntry{Event: "node_complete", NodeID: id, Seq: seq})
	}

	// 6. UI connectivity.
	if ui != nil && len(ui.Views) > 0 {
		if err := checkUIReachability(g, byID, ui); err != nil {
			return fail(err)
		}
	}

	report.OK = true
	return report
}

// checkUIReachability verifies every node is connected, via undirected
// traversal, to at least one declared view data source.
func checkUIReachability(g Graph, byID map[string]Node, ui *UIContract) *ValidationError {
	// Every referenced data source must exist.
	seeds := make([]string, 0, len(ui.Views))
	for _, v := range ui.Views {
		if _, ok := byID[v.DataSourceNodeID]; !ok {
			return reject(ReasonUnreachableNode, v.DataSourceNodeID,
				fmt.Sprintf("view %q references unknown data source node %q", v.ViewID, v.DataSourceNodeID),
				"")
		}
		seeds = append(seeds, v.DataSourceNodeID)
	}

	// Undirected BFS over the full edge set.
	neighbors := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		neighbors[e.From] = append(neighbors[e.From], e.To)
		neighbors[e.To] = append(neighbors[e.To], e.From)
	}

	visited := make(map[string]bool, len(g.Nodes))
	queue := seeds
	for _, s := range seeds {
		visited[s] = true
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, nb := range neighbors[id] {
			if !visited[nb] {
				visited[nb] = true
				queue = append(queue, nb)
			}
		}
	}

	// Declaration order makes the first orphan deterministic.
	for _, n := range g.Nodes {
		if !visited[n.ID] {
			return reject(ReasonUnreachableNode, n.ID,
				fmt.Sprintf("node %q is not connected to any declared UI view", n.ID),
				"connect it to a UI view's data source or remove it")
		}
	}
	return nil
}

package graph

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// Golden tests pin the full validation report shape - callers patch
// graphs based on these reports, so field layout is a contract.
//
// To regenerate golden files, run:
//
//	go test ./internal/graph -update

func assertGoldenReport(t *testing.T, name string, report Report) {
	t.Helper()

	data, err := json.MarshalIndent(report, "", "  ")
	require.NoError(t, err)
	data = append(data, '\n')

	g := goldie.New(t)
	g.Assert(t, name, data)
}

func TestGolden_ValidPipeline(t *testing.T) {
	g := Graph{
		Nodes: []Node{
			{ID: "a", Type: NodeIntegrationCall, EntryKind: EntryUI, CapabilityID: "github_issues_list"},
			{ID: "b", Type: NodeTransform},
		},
		Edges: []Edge{{From: "a", To: "b"}},
	}
	assertGoldenReport(t, "valid_pipeline", Validate(g, nil))
}

func TestGolden_CycleRejected(t *testing.T) {
	g := Graph{
		Nodes: []Node{
			{ID: "a", Type: NodeIntegrationCall, EntryKind: EntryUI, CapabilityID: "github_issues_list"},
			{ID: "b", Type: NodeTransform},
		},
		Edges: []Edge{{From: "a", To: "b"}, {From: "b", To: "a"}},
	}
	assertGoldenReport(t, "cycle_rejected", Validate(g, nil))
}

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validGraphYAML = `nodes:
  - id: fetch
    type: integration_call
    entry_kind: lifecycle
    capability_id: github_issues_list
  - id: shape
    type: transform
edges:
  - from: fetch
    to: shape
`

const cyclicGraphYAML = `nodes:
  - id: a
    type: transform
    entry_kind: lifecycle
  - id: b
    type: transform
edges:
  - from: a
    to: b
  - from: b
    to: a
`

func TestValidate_ValidGraph(t *testing.T) {
	path := writeTempFile(t, "graph.yaml", validGraphYAML)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "graph valid")
	assert.Contains(t, buf.String(), "fingerprint")
}

func TestValidate_ValidGraphJSON(t *testing.T) {
	path := writeTempFile(t, "graph.yaml", validGraphYAML)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestValidate_CyclicGraphRejected(t *testing.T) {
	path := writeTempFile(t, "graph.yaml", cyclicGraphYAML)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "CycleDetected")
}

func TestValidate_UnknownFieldRejected(t *testing.T) {
	path := writeTempFile(t, "graph.yaml", "nodes: []\nedgez: []\n")

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeParse)
}

func TestValidate_MissingFile(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/graph.yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "not found")
}

package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/gantry/internal/metric"
	"github.com/loomworks/gantry/internal/store"
)

const metricYAML = `id: m1
org_id: org-1
name: Open issues
integration_id: github
resource: issues
capability_id: github_issues_list
query:
  filters:
    owner: acme
    repo: widgets
version: 1
policy: scheduled
cache_ttl_seconds: 3600
`

func TestMetricPut_RoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gantry.db")
	path := writeTempFile(t, "metric.yaml", metricYAML)

	buf := &bytes.Buffer{}
	cmd := NewMetricCommand(&RootOptions{Format: "text", DBPath: dbPath})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"put", path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "metric m1 saved")

	db, err := store.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	m, err := db.GetMetric(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", m.OrgID)
	assert.Equal(t, metric.PolicyScheduled, m.Policy)
	assert.Equal(t, 3600, m.CacheTTLSeconds)
}

func TestMetricRun_RecordsExecutionRow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gantry.db")
	metricPath := writeTempFile(t, "metric.yaml", metricYAML)
	contractsPath := writeTempFile(t, "contracts.cue", validSpecCUE)

	opts := &RootOptions{Format: "text", DBPath: dbPath}

	put := NewMetricCommand(opts)
	put.SetOut(&bytes.Buffer{})
	put.SetArgs([]string{"put", metricPath})
	require.NoError(t, put.Execute())

	// Contract-only capabilities have no executor; the run records
	// its failure on the row instead of reaching an integration.
	buf := &bytes.Buffer{}
	run := NewMetricCommand(opts)
	run.SetOut(buf)
	run.SetArgs([]string{"run", "m1", "--contracts", contractsPath})
	require.NoError(t, run.Execute())
	assert.Contains(t, buf.String(), "failed")

	db, err := store.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	latest, err := db.LatestCompletedExecution(context.Background(), "m1")
	require.NoError(t, err)
	assert.Nil(t, latest, "failed run must not enter the completed cache")
}

func TestMetricRun_UnknownMetric(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gantry.db")

	buf := &bytes.Buffer{}
	cmd := NewMetricCommand(&RootOptions{Format: "text", DBPath: dbPath})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"run", "ghost"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeNotFound)
}

func TestTraceShow_NotFound(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gantry.db")
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	s.Close()

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text", DBPath: dbPath})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"show", "ghost"})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "not found")
}

package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/loomworks/gantry/internal/metric"
	"github.com/loomworks/gantry/internal/plan"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMetrics_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := metric.Metric{
		ID:            "m1",
		OrgID:         "org-1",
		Name:          "Open issues",
		IntegrationID: "github",
		Resource:      "issues",
		CapabilityID:  "github_issues_list",
		Query: plan.Query{
			Filters: map[string]any{"state": "open"},
			Sort:    "updated_at",
			Limit:   50,
		},
		Version:         2,
		Policy:          metric.PolicyScheduled,
		CacheTTLSeconds: 3600,
	}
	if err := s.PutMetric(ctx, m); err != nil {
		t.Fatalf("PutMetric() failed: %v", err)
	}

	got, err := s.GetMetric(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMetric() failed: %v", err)
	}
	if !reflect.DeepEqual(got, m) {
		t.Errorf("GetMetric() = %+v, expected %+v", got, m)
	}
}

func TestMetrics_PutReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := metric.Metric{ID: "m1", OrgID: "org-1", IntegrationID: "github", Resource: "issues"}
	if err := s.PutMetric(ctx, m); err != nil {
		t.Fatalf("PutMetric() failed: %v", err)
	}

	m.Version = 3
	m.Policy = metric.PolicyScheduled
	if err := s.PutMetric(ctx, m); err != nil {
		t.Fatalf("second PutMetric() failed: %v", err)
	}

	got, err := s.GetMetric(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMetric() failed: %v", err)
	}
	if got.Version != 3 || got.Policy != metric.PolicyScheduled {
		t.Errorf("replace did not stick: %+v", got)
	}
}

func TestMetrics_GetUnknown(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetMetric(context.Background(), "ghost")
	if !errors.Is(err, metric.ErrNotFound) {
		t.Errorf("GetMetric(ghost) = %v, expected ErrNotFound", err)
	}
}

func TestExecutions_Lifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if err := s.PutMetric(ctx, metric.Metric{ID: "m1", OrgID: "org-1", IntegrationID: "github", Resource: "issues"}); err != nil {
		t.Fatalf("PutMetric() failed: %v", err)
	}

	e := metric.NewExecution("exec-1", "m1", "manual")
	if err := s.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution() failed: %v", err)
	}

	if err := e.Start(now); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := s.UpdateExecution(ctx, e); err != nil {
		t.Fatalf("UpdateExecution(running) failed: %v", err)
	}

	if err := e.Complete(map[string]any{"count": float64(7)}, now.Add(time.Second)); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}
	if err := s.UpdateExecution(ctx, e); err != nil {
		t.Fatalf("UpdateExecution(completed) failed: %v", err)
	}

	got, err := s.GetExecution(ctx, "exec-1")
	if err != nil {
		t.Fatalf("GetExecution() failed: %v", err)
	}
	if got.Status != metric.StatusCompleted {
		t.Errorf("status = %s, expected completed", got.Status)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(now.Add(time.Second)) {
		t.Errorf("completed_at = %v, expected %v", got.CompletedAt, now.Add(time.Second))
	}
	if !reflect.DeepEqual(got.Result, map[string]any{"count": float64(7)}) {
		t.Errorf("result = %+v", got.Result)
	}
	if got.TriggeredBy != "manual" {
		t.Errorf("triggered_by = %q", got.TriggeredBy)
	}
}

func TestExecutions_LatestCompleted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if err := s.PutMetric(ctx, metric.Metric{ID: "m1", OrgID: "org-1", IntegrationID: "github", Resource: "issues"}); err != nil {
		t.Fatalf("PutMetric() failed: %v", err)
	}

	// No executions yet.
	got, err := s.LatestCompletedExecution(ctx, "m1")
	if err != nil {
		t.Fatalf("LatestCompletedExecution() failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for no completed executions, got %+v", got)
	}

	// Two completed runs and one failed run; the newest completed wins.
	for i, tc := range []struct {
		id     string
		offset time.Duration
		fail   bool
	}{
		{"exec-old", 0, false},
		{"exec-new", time.Hour, false},
		{"exec-bad", 2 * time.Hour, true},
	} {
		e := metric.NewExecution(tc.id, "m1", "schedule")
		if err := s.CreateExecution(ctx, e); err != nil {
			t.Fatalf("CreateExecution(%d) failed: %v", i, err)
		}
		if err := e.Start(base.Add(tc.offset)); err != nil {
			t.Fatalf("Start(%d) failed: %v", i, err)
		}
		if tc.fail {
			if err := e.Fail("boom", base.Add(tc.offset)); err != nil {
				t.Fatalf("Fail(%d) failed: %v", i, err)
			}
		} else {
			if err := e.Complete("ok", base.Add(tc.offset)); err != nil {
				t.Fatalf("Complete(%d) failed: %v", i, err)
			}
		}
		if err := s.UpdateExecution(ctx, e); err != nil {
			t.Fatalf("UpdateExecution(%d) failed: %v", i, err)
		}
	}

	got, err = s.LatestCompletedExecution(ctx, "m1")
	if err != nil {
		t.Fatalf("LatestCompletedExecution() failed: %v", err)
	}
	if got == nil || got.ID != "exec-new" {
		t.Errorf("latest completed = %+v, expected exec-new", got)
	}
}

func TestConnections_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"linear", "github"} {
		if err := s.ConnectIntegration(ctx, "org-1", id, "enc:"+id); err != nil {
			t.Fatalf("ConnectIntegration(%s) failed: %v", id, err)
		}
	}
	if err := s.ConnectIntegration(ctx, "org-2", "slack", "enc:slack"); err != nil {
		t.Fatalf("ConnectIntegration(org-2) failed: %v", err)
	}

	ids, err := s.ListConnectedIntegrations(ctx, "org-1")
	if err != nil {
		t.Fatalf("ListConnectedIntegrations() failed: %v", err)
	}
	want := []string{"github", "linear"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("connections = %v, expected %v", ids, want)
	}

	if err := s.DisconnectIntegration(ctx, "org-1", "linear"); err != nil {
		t.Fatalf("DisconnectIntegration() failed: %v", err)
	}
	ids, err = s.ListConnectedIntegrations(ctx, "org-1")
	if err != nil {
		t.Fatalf("ListConnectedIntegrations() after disconnect failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"github"}) {
		t.Errorf("connections after disconnect = %v", ids)
	}
}

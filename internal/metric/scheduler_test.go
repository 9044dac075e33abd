package metric

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/gantry/internal/capability"
	"github.com/loomworks/gantry/internal/engine"
	"github.com/loomworks/gantry/internal/plan"
	"github.com/loomworks/gantry/internal/testutil"
	"github.com/loomworks/gantry/internal/trace"
)

type schedulerFixture struct {
	store     *MemoryStore
	scheduler *Scheduler
	calls     *int
	now       time.Time
	clock     *testutil.Clock
}

// newSchedulerFixture wires a scheduler over a real compiler and
// runner with a counting capability, at a controllable clock.
func newSchedulerFixture(t *testing.T, opts ...SchedulerOption) *schedulerFixture {
	t.Helper()

	calls := 0
	reg := capability.NewRegistry()
	reg.Register(capability.Definition{
		ID:            "github_issues_list",
		IntegrationID: "github",
		Mode:          capability.ModeRead,
		Params: capability.ParameterContract{
			Required: []string{"owner", "repo"},
		},
		Execute: func(ctx context.Context, params map[string]any, ec *capability.Context) (any, error) {
			calls++
			return map[string]any{"count": 7}, nil
		},
	})
	reg.Register(capability.Definition{
		ID:            "github_pulls_list",
		IntegrationID: "github",
		Mode:          capability.ModeRead,
		Execute: func(ctx context.Context, params map[string]any, ec *capability.Context) (any, error) {
			return nil, errors.New("upstream 502")
		},
	})

	store := NewMemoryStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := testutil.NewClock(now)

	compiler := plan.NewCompiler(reg,
		plan.WithMetricResolver(NewResolver(store)),
		plan.WithNow(clock.Now))
	runner := plan.NewRunner(engine.NewExecutor(reg, trace.NewMemoryStore()),
		plan.WithRunnerNow(clock.Now))

	opts = append([]SchedulerOption{
		WithSchedulerNow(clock.Now),
		WithSchedulerTokens(engine.NewFixedGenerator("exec-1", "exec-2", "exec-3")),
	}, opts...)

	f := &schedulerFixture{store: store, calls: &calls, now: now, clock: clock}
	f.scheduler = NewScheduler(store, compiler, runner, opts...)
	return f
}

func healthyMetric(policy ExecutionPolicy) Metric {
	return Metric{
		ID:            "m1",
		OrgID:         "org-1",
		Name:          "Open issues",
		IntegrationID: "github",
		Resource:      "issues",
		CapabilityID:  "github_issues_list",
		Query:         plan.Query{Filters: map[string]any{"owner": "acme", "repo": "widgets"}},
		Version:       1,
		Policy:        policy,

		CacheTTLSeconds: 3600,
	}
}

// TestRunMetricExecution_Completes verifies the full lifecycle:
// pending row created, run live with the cache bypassed, completed
// with the payload.
func TestRunMetricExecution_Completes(t *testing.T) {
	f := newSchedulerFixture(t)
	require.NoError(t, f.store.PutMetric(context.Background(), healthyMetric(PolicyScheduled)))

	exec, err := f.scheduler.RunMetricExecution(context.Background(), "m1", "manual")
	require.NoError(t, err)

	assert.Equal(t, "exec-1", exec.ID)
	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, map[string]any{"count": 7}, exec.Result)
	assert.Equal(t, "manual", exec.TriggeredBy)
	require.NotNil(t, exec.CompletedAt)
	assert.Equal(t, 1, *f.calls)

	rows := f.store.Executions()
	require.Len(t, rows, 1)
	assert.Equal(t, StatusCompleted, rows[0].Status)
}

// TestRunMetricExecution_DefaultContext verifies the built-in execution
// context admits both read and write capabilities. Access grants name
// read or write exactly, so a default that admits everything must carry
// one entry per level.
func TestRunMetricExecution_DefaultContext(t *testing.T) {
	reg := capability.NewRegistry()
	reg.Register(capability.Definition{
		ID:            "github_labels_apply",
		IntegrationID: "github",
		Mode:          capability.ModeWrite,
		Execute: func(ctx context.Context, params map[string]any, ec *capability.Context) (any, error) {
			return map[string]any{"applied": true}, nil
		},
	})

	store := NewMemoryStore()
	compiler := plan.NewCompiler(reg, plan.WithMetricResolver(NewResolver(store)))
	runner := plan.NewRunner(engine.NewExecutor(reg, trace.NewMemoryStore()))
	s := NewScheduler(store, compiler, runner,
		WithSchedulerTokens(engine.NewFixedGenerator("exec-1")))

	m := Metric{
		ID:            "m-write",
		OrgID:         "org-1",
		Name:          "Apply triage labels",
		IntegrationID: "github",
		Resource:      "labels",
		CapabilityID:  "github_labels_apply",
		Policy:        PolicyOnDemand,
	}
	require.NoError(t, store.PutMetric(context.Background(), m))

	exec, err := s.RunMetricExecution(context.Background(), "m-write", "manual")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Empty(t, exec.Error)
	assert.Equal(t, map[string]any{"applied": true}, exec.Result)
}

// TestRunMetricExecution_FailureLandsOnRow verifies capability errors
// are captured as a failed row, never returned to the caller.
func TestRunMetricExecution_FailureLandsOnRow(t *testing.T) {
	f := newSchedulerFixture(t)
	m := healthyMetric(PolicyScheduled)
	m.CapabilityID = "github_pulls_list"
	require.NoError(t, f.store.PutMetric(context.Background(), m))

	exec, err := f.scheduler.RunMetricExecution(context.Background(), "m1", "schedule")
	require.NoError(t, err, "execution failure must not surface as a scheduler error")

	assert.Equal(t, StatusFailed, exec.Status)
	assert.Contains(t, exec.Error, "upstream 502")
	assert.Nil(t, exec.Result)
	require.NotNil(t, exec.CompletedAt)
}

// TestRunMetricExecution_UnknownMetric verifies setup failures do
// surface, with no row created.
func TestRunMetricExecution_UnknownMetric(t *testing.T) {
	f := newSchedulerFixture(t)

	_, err := f.scheduler.RunMetricExecution(context.Background(), "nope", "manual")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.store.Executions())
}

// TestScheduleMetricExecution_TTL verifies the TTL boundary: with a
// completion at T and TTL=3600s, T+1800s does not run and T+3601s
// does.
func TestScheduleMetricExecution_TTL(t *testing.T) {
	f := newSchedulerFixture(t)
	require.NoError(t, f.store.PutMetric(context.Background(), healthyMetric(PolicyScheduled)))

	// First schedule: no completed execution yet, runs immediately.
	ran, err := f.scheduler.ScheduleMetricExecution(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, *f.calls)

	f.clock.Set(f.now.Add(1800 * time.Second))
	ran, err = f.scheduler.ScheduleMetricExecution(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, ran, "inside the ttl no run is due")
	assert.Equal(t, 1, *f.calls)

	f.clock.Set(f.now.Add(3601 * time.Second))
	ran, err = f.scheduler.ScheduleMetricExecution(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 2, *f.calls)
}

// TestScheduleMetricExecution_OnDemand verifies on-demand metrics
// never run from the scheduler.
func TestScheduleMetricExecution_OnDemand(t *testing.T) {
	f := newSchedulerFixture(t)
	require.NoError(t, f.store.PutMetric(context.Background(), healthyMetric(PolicyOnDemand)))

	ran, err := f.scheduler.ScheduleMetricExecution(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, *f.calls)
}

type spyAlerts struct {
	mu    sync.Mutex
	calls []string
	err   error
	panic bool
}

func (s *spyAlerts) EvaluateAlerts(_ context.Context, metricID string, _ any, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, metricID+"/"+executionID)
	if s.panic {
		panic("alert store down")
	}
	return s.err
}

func (s *spyAlerts) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// TestAlerts_FiredOnCompletion verifies completed runs trigger alert
// evaluation with the metric and execution ids.
func TestAlerts_FiredOnCompletion(t *testing.T) {
	alerts := &spyAlerts{}
	f := newSchedulerFixture(t, WithAlertEvaluator(alerts))
	require.NoError(t, f.store.PutMetric(context.Background(), healthyMetric(PolicyScheduled)))

	_, err := f.scheduler.RunMetricExecution(context.Background(), "m1", "manual")
	require.NoError(t, err)
	f.scheduler.Wait()

	assert.Equal(t, []string{"m1/exec-1"}, alerts.seen())
}

// TestAlerts_FailuresSwallowed verifies evaluator errors and panics
// never affect the completed execution.
func TestAlerts_FailuresSwallowed(t *testing.T) {
	for _, tc := range []struct {
		name   string
		alerts *spyAlerts
	}{
		{"error", &spyAlerts{err: errors.New("webhook down")}},
		{"panic", &spyAlerts{panic: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newSchedulerFixture(t, WithAlertEvaluator(tc.alerts))
			require.NoError(t, f.store.PutMetric(context.Background(), healthyMetric(PolicyScheduled)))

			exec, err := f.scheduler.RunMetricExecution(context.Background(), "m1", "manual")
			require.NoError(t, err)
			f.scheduler.Wait()

			assert.Equal(t, StatusCompleted, exec.Status)
			assert.Len(t, tc.alerts.seen(), 1)
		})
	}
}

// TestAlerts_NotFiredOnFailure verifies failed runs skip alerting.
func TestAlerts_NotFiredOnFailure(t *testing.T) {
	alerts := &spyAlerts{}
	f := newSchedulerFixture(t, WithAlertEvaluator(alerts))
	m := healthyMetric(PolicyScheduled)
	m.CapabilityID = "github_pulls_list"
	require.NoError(t, f.store.PutMetric(context.Background(), m))

	_, err := f.scheduler.RunMetricExecution(context.Background(), "m1", "manual")
	require.NoError(t, err)
	f.scheduler.Wait()

	assert.Empty(t, alerts.seen())
}

// TestExecutionLifecycle verifies the strict transition set.
func TestExecutionLifecycle(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	e := NewExecution("e1", "m1", "manual")
	assert.Equal(t, StatusPending, e.Status)

	// pending cannot complete or fail directly.
	var terr *TransitionError
	err := e.Complete("x", now)
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StatusPending, terr.From)
	require.Error(t, e.Fail("x", now))

	require.NoError(t, e.Start(now))
	assert.Equal(t, StatusRunning, e.Status)
	require.Error(t, e.Start(now), "running cannot restart")

	require.NoError(t, e.Complete(map[string]any{"ok": true}, now))
	assert.Equal(t, StatusCompleted, e.Status)
	assert.NotNil(t, e.Result)
	require.Error(t, e.Fail("late", now), "completed is terminal")

	f := NewExecution("e2", "m1", "manual")
	require.NoError(t, f.Start(now))
	require.NoError(t, f.Fail("boom", now))
	assert.Equal(t, StatusFailed, f.Status)
	assert.Equal(t, "boom", f.Error)
	require.Error(t, f.Complete("x", now), "failed is terminal")
}

package metric

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound reports a metric id with no persisted definition.
var ErrNotFound = errors.New("metric not found")

// Store persists metric definitions and execution rows.
type Store interface {
	// GetMetric loads a metric definition. Unknown ids return
	// ErrNotFound.
	GetMetric(ctx context.Context, id string) (Metric, error)

	// PutMetric inserts or replaces a metric definition.
	PutMetric(ctx context.Context, m Metric) error

	// CreateExecution inserts a new execution row.
	CreateExecution(ctx context.Context, e *Execution) error

	// UpdateExecution persists a row's current lifecycle state.
	UpdateExecution(ctx context.Context, e *Execution) error

	// LatestCompletedExecution returns the most recently completed
	// execution for a metric, or nil when none exists.
	LatestCompletedExecution(ctx context.Context, metricID string) (*Execution, error)
}

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu         sync.Mutex
	metrics    map[string]Metric
	executions map[string]*Execution
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		metrics:    make(map[string]Metric),
		executions: make(map[string]*Execution),
	}
}

func (s *MemoryStore) GetMetric(_ context.Context, id string) (Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.metrics[id]
	if !ok {
		return Metric{}, ErrNotFound
	}
	return m, nil
}

func (s *MemoryStore) PutMetric(_ context.Context, m Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[m.ID] = m
	return nil
}

func (s *MemoryStore) CreateExecution(_ context.Context, e *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.executions[e.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateExecution(_ context.Context, e *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.executions[e.ID] = &cp
	return nil
}

func (s *MemoryStore) LatestCompletedExecution(_ context.Context, metricID string) (*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completed []*Execution
	for _, e := range s.executions {
		if e.MetricID == metricID && e.Status == StatusCompleted {
			completed = append(completed, e)
		}
	}
	if len(completed) == 0 {
		return nil, nil
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].CompletedAt.After(*completed[j].CompletedAt)
	})
	cp := *completed[0]
	return &cp, nil
}

// Executions returns every row, newest first by start time. Test
// helper.
func (s *MemoryStore) Executions() []*Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Execution, 0, len(s.executions))
	for _, e := range s.executions {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

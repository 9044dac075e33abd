package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/loomworks/gantry/internal/metric"
	"github.com/loomworks/gantry/internal/plan"
)

// GetMetric loads a metric definition. Unknown ids return
// metric.ErrNotFound.
func (s *Store) GetMetric(ctx context.Context, id string) (metric.Metric, error) {
	var (
		m     metric.Metric
		query string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, integration_id, resource, capability_id,
		       query, version, policy, cache_ttl_seconds
		FROM metrics
		WHERE id = ?
	`, id).Scan(
		&m.ID,
		&m.OrgID,
		&m.Name,
		&m.IntegrationID,
		&m.Resource,
		&m.CapabilityID,
		&query,
		&m.Version,
		(*string)(&m.Policy),
		&m.CacheTTLSeconds,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return metric.Metric{}, metric.ErrNotFound
	}
	if err != nil {
		return metric.Metric{}, fmt.Errorf("get metric %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(query), &m.Query); err != nil {
		return metric.Metric{}, fmt.Errorf("get metric %s: decode query: %w", id, err)
	}

	return m, nil
}

// PutMetric inserts or replaces a metric definition.
func (s *Store) PutMetric(ctx context.Context, m metric.Metric) error {
	query, err := json.Marshal(m.Query)
	if err != nil {
		return fmt.Errorf("put metric %s: marshal query: %w", m.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metrics
		(id, org_id, name, integration_id, resource, capability_id,
		 query, version, policy, cache_ttl_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			org_id = excluded.org_id,
			name = excluded.name,
			integration_id = excluded.integration_id,
			resource = excluded.resource,
			capability_id = excluded.capability_id,
			query = excluded.query,
			version = excluded.version,
			policy = excluded.policy,
			cache_ttl_seconds = excluded.cache_ttl_seconds
	`,
		m.ID,
		m.OrgID,
		m.Name,
		m.IntegrationID,
		m.Resource,
		m.CapabilityID,
		string(query),
		m.Version,
		string(m.Policy),
		m.CacheTTLSeconds,
	)
	if err != nil {
		return fmt.Errorf("put metric %s: %w", m.ID, err)
	}

	return nil
}

// ListMetrics returns an org's metric definitions ordered by id.
func (s *Store) ListMetrics(ctx context.Context, orgID string) ([]metric.Metric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM metrics WHERE org_id = ? ORDER BY id ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list metrics: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}

	metrics := make([]metric.Metric, 0, len(ids))
	for _, id := range ids {
		m, err := s.GetMetric(ctx, id)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

// CreateExecution inserts a new execution row.
func (s *Store) CreateExecution(ctx context.Context, e *metric.Execution) error {
	result, completedAt, err := executionColumns(e)
	if err != nil {
		return fmt.Errorf("create execution %s: %w", e.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metric_executions
		(id, metric_id, status, started_at, completed_at, result, error, triggered_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.MetricID,
		string(e.Status),
		formatTime(e.StartedAt),
		completedAt,
		result,
		e.Error,
		e.TriggeredBy,
	)
	if err != nil {
		return fmt.Errorf("create execution %s: %w", e.ID, err)
	}

	return nil
}

// UpdateExecution persists a row's current lifecycle state.
func (s *Store) UpdateExecution(ctx context.Context, e *metric.Execution) error {
	result, completedAt, err := executionColumns(e)
	if err != nil {
		return fmt.Errorf("update execution %s: %w", e.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE metric_executions
		SET status = ?, started_at = ?, completed_at = ?, result = ?, error = ?
		WHERE id = ?
	`,
		string(e.Status),
		formatTime(e.StartedAt),
		completedAt,
		result,
		e.Error,
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("update execution %s: %w", e.ID, err)
	}

	return nil
}

// LatestCompletedExecution returns the newest completed execution for
// a metric, or nil when none exists.
func (s *Store) LatestCompletedExecution(ctx context.Context, metricID string) (*metric.Execution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, metric_id, status, started_at, completed_at, result, error, triggered_by
		FROM metric_executions
		WHERE metric_id = ? AND status = ?
		ORDER BY completed_at DESC
		LIMIT 1
	`, metricID, string(metric.StatusCompleted))

	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest completed execution for %s: %w", metricID, err)
	}
	return e, nil
}

// GetExecution loads one execution row by id.
func (s *Store) GetExecution(ctx context.Context, id string) (*metric.Execution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, metric_id, status, started_at, completed_at, result, error, triggered_by
		FROM metric_executions
		WHERE id = ?
	`, id)

	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, metric.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", id, err)
	}
	return e, nil
}

// executionColumns serializes the nullable/JSON columns of a row.
// Results use canonical JSON so cached payloads are byte-stable.
func executionColumns(e *metric.Execution) (sql.NullString, sql.NullString, error) {
	var result sql.NullString
	if e.Result != nil {
		data, err := canonicalJSON(e.Result)
		if err != nil {
			return result, sql.NullString{}, fmt.Errorf("marshal result: %w", err)
		}
		result = sql.NullString{String: string(data), Valid: true}
	}

	var completedAt sql.NullString
	if e.CompletedAt != nil {
		completedAt = sql.NullString{String: formatTime(*e.CompletedAt), Valid: true}
	}

	return result, completedAt, nil
}

func scanExecution(row *sql.Row) (*metric.Execution, error) {
	var (
		e           metric.Execution
		startedAt   string
		completedAt sql.NullString
		result      sql.NullString
	)
	err := row.Scan(
		&e.ID,
		&e.MetricID,
		(*string)(&e.Status),
		&startedAt,
		&completedAt,
		&result,
		&e.Error,
		&e.TriggeredBy,
	)
	if err != nil {
		return nil, err
	}

	if startedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("decode started_at: %w", err)
		}
		e.StartedAt = t
	}
	if completedAt.Valid && completedAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("decode completed_at: %w", err)
		}
		e.CompletedAt = &t
	}
	if result.Valid && result.String != "" {
		if err := json.Unmarshal([]byte(result.String), &e.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}

	return &e, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// compile-time interface checks
var (
	_ metric.Store         = (*Store)(nil)
	_ plan.ConnectionStore = (*Store)(nil)
)

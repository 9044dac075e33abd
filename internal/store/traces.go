package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loomworks/gantry/internal/canon"
	"github.com/loomworks/gantry/internal/trace"
)

// canonicalJSON serializes v to canonical bytes, normalizing typed
// values through a JSON round trip first. Executors may return any
// json-marshalable value; what persists is the plain shape it decodes
// back to, the same shape trace.MemoryStore hands out after a restart.
func canonicalJSON(v any) ([]byte, error) {
	plain, err := canon.Normalize(v)
	if err != nil {
		return nil, err
	}
	return canon.MarshalCanonical(plain)
}

// Append inserts one recorded step.
//
// Uses ON CONFLICT(trace_id, seq) DO NOTHING for idempotency - a
// re-recorded step at the same position is silently ignored. Input and
// output are serialized to canonical JSON per RFC 8785 so a persisted
// trace replays byte-identically.
func (s *Store) Append(ctx context.Context, step trace.Step) error {
	input, err := canonicalJSON(step.Input)
	if err != nil {
		return fmt.Errorf("append step: marshal input: %w", err)
	}
	output, err := canonicalJSON(step.Output)
	if err != nil {
		return fmt.Errorf("append step: marshal output: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trace_steps
		(trace_id, seq, step_hash, input, output, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(trace_id, seq) DO NOTHING
	`,
		step.TraceID,
		step.Seq,
		step.StepHash,
		string(input),
		string(output),
		step.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append step: %w", err)
	}

	return nil
}

// Read returns a trace's steps ordered by seq ascending. An unknown
// trace id returns an empty slice, matching trace.Store semantics.
func (s *Store) Read(ctx context.Context, traceID string) ([]trace.Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, seq, step_hash, input, output, recorded_at
		FROM trace_steps
		WHERE trace_id = ?
		ORDER BY seq ASC
	`, traceID)
	if err != nil {
		return nil, fmt.Errorf("read trace %s: %w", traceID, err)
	}
	defer rows.Close()

	var steps []trace.Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("read trace %s: %w", traceID, err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read trace %s: %w", traceID, err)
	}

	return steps, nil
}

func scanStep(rows *sql.Rows) (trace.Step, error) {
	var (
		step       trace.Step
		input      string
		output     sql.NullString
		recordedAt string
	)
	if err := rows.Scan(&step.TraceID, &step.Seq, &step.StepHash, &input, &output, &recordedAt); err != nil {
		return trace.Step{}, err
	}

	if err := json.Unmarshal([]byte(input), &step.Input); err != nil {
		return trace.Step{}, fmt.Errorf("decode input: %w", err)
	}
	if output.Valid && output.String != "" {
		if err := json.Unmarshal([]byte(output.String), &step.Output); err != nil {
			return trace.Step{}, fmt.Errorf("decode output: %w", err)
		}
	}

	t, err := time.Parse(time.RFC3339Nano, recordedAt)
	if err != nil {
		return trace.Step{}, fmt.Errorf("decode recorded_at: %w", err)
	}
	step.RecordedAt = t

	return step, nil
}

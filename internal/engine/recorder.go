package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loomworks/gantry/internal/canon"
	"github.com/loomworks/gantry/internal/capability"
	"github.com/loomworks/gantry/internal/trace"
)

// Recorder is the determinism/replay middleware.
//
// Behavior per execution context replay mode:
//
//   - none: passthrough, no recording.
//   - record: executes next() normally, then appends
//     {stepHash, input, output, recordedAt} to the trace store for the
//     context's trace id. Failed calls are not recorded - a trace holds
//     only observed outputs.
//   - replay: does NOT execute next() (zero outbound side effects).
//     Serves the recorded step at the context's cursor position and
//     advances the cursor, so the next call in the same chain consumes
//     the next recorded step. A missing trace fails with
//     TRACE_NOT_FOUND; a cursor past the end of the trace fails with
//     REPLAY_DIVERGENCE. A step-hash mismatch (inputs changed since
//     recording) warns and still returns the recorded output, unless
//     strict mode is enabled, in which case it fails with
//     REPLAY_DIVERGENCE.
//
// The recorder is the OUTERMOST middleware. Replay therefore skips
// permission and policy checks along with the executor - the recorded
// trace exists only because enforcement admitted the original run, and
// replay must not re-observe mutable permission state.
type Recorder struct {
	traces trace.Store
	clock  *Clock
	strict bool
}

// NewRecorder creates a recorder backed by the given trace store.
// strict turns replay hash mismatches into hard failures.
func NewRecorder(traces trace.Store, strict bool) *Recorder {
	return &Recorder{
		traces: traces,
		clock:  NewClock(),
		strict: strict,
	}
}

// Middleware returns the recorder as a pipeline middleware.
func (r *Recorder) Middleware() Middleware {
	return r.run
}

func (r *Recorder) run(ctx context.Context, def capability.Definition, params map[string]any, ec *capability.Context, next Handler) (any, error) {
	switch ec.ReplayMode {
	case "", capability.ReplayNone:
		return next(ctx, def, params, ec)
	case capability.ReplayRecord:
		return r.record(ctx, def, params, ec, next)
	case capability.ReplayReplay:
		return r.replay(ctx, def, params, ec)
	default:
		return nil, fmt.Errorf("unknown replay mode: %q", ec.ReplayMode)
	}
}

func (r *Recorder) record(ctx context.Context, def capability.Definition, params map[string]any, ec *capability.Context, next Handler) (any, error) {
	out, err := next(ctx, def, params, ec)
	if err != nil {
		return nil, err
	}

	hash, err := canon.StepHash(def.ID, params)
	if err != nil {
		return nil, fmt.Errorf("record step: %w", err)
	}

	step := trace.Step{
		TraceID:    ec.TraceID,
		Seq:        r.clock.Next(),
		StepHash:   hash,
		Input:      params,
		Output:     out,
		RecordedAt: time.Now().UTC(),
	}
	if err := r.traces.Append(ctx, step); err != nil {
		return nil, fmt.Errorf("record step: %w", err)
	}

	slog.Debug("step recorded",
		"trace_id", ec.TraceID,
		"seq", step.Seq,
		"capability_id", def.ID,
		"step_hash", hash)

	return out, nil
}

func (r *Recorder) replay(ctx context.Context, def capability.Definition, params map[string]any, ec *capability.Context) (any, error) {
	steps, err := r.traces.Read(ctx, ec.TraceID)
	if err != nil {
		return nil, fmt.Errorf("replay step: %w", err)
	}
	if len(steps) == 0 {
		return nil, NewTraceNotFoundError(ec.TraceID)
	}

	if ec.Cursor == nil {
		ec.Cursor = trace.NewCursor()
	}
	pos := ec.Cursor.Pos()
	if pos >= len(steps) {
		return nil, NewReplayDivergenceError(ec.TraceID,
			fmt.Sprintf("no recorded step at position %d (trace has %d steps)", pos, len(steps)))
	}
	step := steps[pos]

	fresh, err := canon.StepHash(def.ID, params)
	if err != nil {
		return nil, fmt.Errorf("replay step: %w", err)
	}
	if fresh != step.StepHash {
		if r.strict {
			return nil, NewReplayDivergenceError(ec.TraceID,
				fmt.Sprintf("step %d hash mismatch: recorded %s, computed %s", pos, step.StepHash, fresh))
		}
		slog.Warn("replay divergence: inputs changed, returning recorded output",
			"trace_id", ec.TraceID,
			"position", pos,
			"capability_id", def.ID,
			"recorded_hash", step.StepHash,
			"computed_hash", fresh)
	}

	// Advance before returning so the next call in this chain consumes
	// the next recorded step.
	ec.Cursor.Advance()

	return step.Output, nil
}

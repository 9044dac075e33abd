package trace

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Step is one recorded capability call within a trace.
//
// Steps are append-only and strictly ordered by Seq within a trace.
// Replay consumes them in recording order; the step hash is the
// content-addressed identity of the call (see canon.StepHash).
type Step struct {
	TraceID    string         `json:"trace_id"`
	Seq        int64          `json:"seq"`
	StepHash   string         `json:"step_hash"`
	Input      map[string]any `json:"input"`
	Output     any            `json:"output"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Store is the append-only trace log consumed by the replay recorder.
//
// Read returns steps ordered by Seq ascending. An unknown trace id
// returns an empty slice, not an error - a recorded trace always has at
// least one step, so callers treat empty as "trace not found".
//
// Implemented by MemoryStore (tests) and store.Store (SQLite).
type Store interface {
	Append(ctx context.Context, step Step) error
	Read(ctx context.Context, traceID string) ([]Step, error)
}

// Cursor is the explicit replay position within one trace.
//
// One cursor serves one replayed chain: callers must reuse the same
// execution context (hence the same cursor) for every capability call in
// the chain, so consecutive calls consume consecutive recorded steps.
// The position is an explicit object rather than a mutated field on the
// context payload, so advancing it is visible in the type system.
//
// Cursor is not safe for concurrent use. Replay is strictly sequential;
// concurrent calls sharing one cursor must be serialized by the caller.
type Cursor struct {
	pos int
}

// NewCursor creates a cursor positioned at the first recorded step.
func NewCursor() *Cursor {
	return &Cursor{}
}

// NewCursorAt creates a cursor positioned at a specific step index.
// Used to resume replay of a partially consumed chain.
func NewCursorAt(pos int) *Cursor {
	return &Cursor{pos: pos}
}

// Pos returns the index of the next step to consume.
func (c *Cursor) Pos() int {
	return c.pos
}

// Advance moves the cursor past the step just consumed.
func (c *Cursor) Advance() {
	c.pos++
}

// Reset rewinds the cursor to the first step.
func (c *Cursor) Reset() {
	c.pos = 0
}

// MemoryStore is an in-process trace store.
//
// Used by tests and by callers that do not need traces to survive a
// restart. Appends to the same trace id are last-write-wins on Seq
// collisions only in the sense that both steps are kept; ordering is by
// Seq, with append order as tiebreaker.
type MemoryStore struct {
	mu     sync.Mutex
	traces map[string][]Step
}

// NewMemoryStore creates an empty in-memory trace store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{traces: make(map[string][]Step)}
}

// Append adds a step to the trace identified by step.TraceID.
func (m *MemoryStore) Append(_ context.Context, step Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traces[step.TraceID] = append(m.traces[step.TraceID], step)
	return nil
}

// Read returns all steps for a trace ordered by Seq ascending.
func (m *MemoryStore) Read(_ context.Context, traceID string) ([]Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	steps := m.traces[traceID]
	out := make([]Step, len(steps))
	copy(out, steps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Reset clears all traces. Used between test runs.
func (m *MemoryStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traces = make(map[string][]Step)
}

package trace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AppendRead(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, Step{TraceID: "t-1", Seq: 1, StepHash: "h1"}))
	require.NoError(t, s.Append(ctx, Step{TraceID: "t-1", Seq: 2, StepHash: "h2"}))
	require.NoError(t, s.Append(ctx, Step{TraceID: "t-2", Seq: 1, StepHash: "other"}))

	steps, err := s.Read(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "h1", steps[0].StepHash)
	assert.Equal(t, "h2", steps[1].StepHash)
}

// TestMemoryStore_ReadOrdersBySeq verifies out-of-order appends read back
// in seq order.
func TestMemoryStore_ReadOrdersBySeq(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, Step{TraceID: "t-1", Seq: 3, StepHash: "h3"}))
	require.NoError(t, s.Append(ctx, Step{TraceID: "t-1", Seq: 1, StepHash: "h1"}))
	require.NoError(t, s.Append(ctx, Step{TraceID: "t-1", Seq: 2, StepHash: "h2"}))

	steps, err := s.Read(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, []string{"h1", "h2", "h3"}, []string{steps[0].StepHash, steps[1].StepHash, steps[2].StepHash})
}

// TestMemoryStore_UnknownTrace verifies an unknown trace id reads as
// empty, not as an error.
func TestMemoryStore_UnknownTrace(t *testing.T) {
	s := NewMemoryStore()
	steps, err := s.Read(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, steps)
}

// TestMemoryStore_ReadIsolation verifies mutating returned slices does
// not corrupt the store.
func TestMemoryStore_ReadIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, Step{TraceID: "t-1", Seq: 1, StepHash: "h1", RecordedAt: time.Now()}))

	steps, err := s.Read(ctx, "t-1")
	require.NoError(t, err)
	steps[0].StepHash = "mutated"

	again, err := s.Read(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "h1", again[0].StepHash)
}

func TestMemoryStore_Reset(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, Step{TraceID: "t-1", Seq: 1}))

	s.Reset()

	steps, err := s.Read(ctx, "t-1")
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestCursor(t *testing.T) {
	c := NewCursor()
	assert.Equal(t, 0, c.Pos())

	c.Advance()
	c.Advance()
	assert.Equal(t, 2, c.Pos())

	c.Reset()
	assert.Equal(t, 0, c.Pos())

	resumed := NewCursorAt(5)
	assert.Equal(t, 5, resumed.Pos())
}

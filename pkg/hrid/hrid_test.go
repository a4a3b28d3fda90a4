package hrid_test

import (
	"context"
	"testing"

	"github.com/memg/memg-core/pkg/hrid"
	"github.com/stretchr/testify/require"
)

func TestNextMonotoneNoDuplicates(t *testing.T) {
	ctx := context.Background()
	a := hrid.New(hrid.NewMemStore())

	seen := map[string]bool{}
	var prevIdx uint64
	for i := 0; i < 1500; i++ {
		h, err := a.Next(ctx, "task", "u1")
		require.NoError(t, err)
		require.False(t, seen[h], "duplicate hrid %s", h)
		seen[h] = true
		require.NoError(t, a.Assign(ctx, h, h+"-id", "u1"))

		idx, err := hrid.ToIndex(h)
		require.NoError(t, err)
		require.Greater(t, idx, prevIdx)
		prevIdx = idx
	}
}

func TestNextRolloverFromNumericToAlpha(t *testing.T) {
	ctx := context.Background()
	a := hrid.New(hrid.NewMemStore())
	var last string
	for i := 0; i < 1000; i++ {
		h, err := a.Next(ctx, "note", "u1")
		require.NoError(t, err)
		require.NoError(t, a.Assign(ctx, h, h+"-id", "u1"))
		last = h
	}
	require.Equal(t, "NOTE_AAA999", last)

	next, err := a.Next(ctx, "note", "u1")
	require.NoError(t, err)
	require.Equal(t, "NOTE_AAB000", next)
}

func TestResolveAndForget(t *testing.T) {
	ctx := context.Background()
	a := hrid.New(hrid.NewMemStore())
	h, err := a.Next(ctx, "task", "u1")
	require.NoError(t, err)
	require.NoError(t, a.Assign(ctx, h, "internal-id-1", "u1"))

	id, err := a.Resolve(ctx, h, "u1")
	require.NoError(t, err)
	require.Equal(t, "internal-id-1", id)

	back, err := a.ResolveHRID(ctx, "internal-id-1", "u1")
	require.NoError(t, err)
	require.Equal(t, h, back)

	require.NoError(t, a.Forget(ctx, h, "u1"))
	_, err = a.Resolve(ctx, h, "u1")
	require.Error(t, err)

	// Forgetting again is idempotent.
	require.NoError(t, a.Forget(ctx, h, "u1"))
}

func TestPerUserScoping(t *testing.T) {
	ctx := context.Background()
	a := hrid.New(hrid.NewMemStore())
	h1, err := a.Next(ctx, "task", "u1")
	require.NoError(t, err)
	require.Equal(t, "TASK_AAA000", h1)

	h2, err := a.Next(ctx, "task", "u2")
	require.NoError(t, err)
	require.Equal(t, "TASK_AAA000", h2, "counters scope per user")
}

func TestParseRejectsMalformed(t *testing.T) {
	_, _, _, err := hrid.Parse("not-an-hrid")
	require.Error(t, err)
}

func TestRecoveryAfterRestart(t *testing.T) {
	ctx := context.Background()
	store := hrid.NewMemStore()
	a1 := hrid.New(store)
	h, err := a1.Next(ctx, "task", "u1")
	require.NoError(t, err)
	require.NoError(t, a1.Assign(ctx, h, "id-1", "u1"))

	// New allocator instance, same backing store: simulates process restart.
	a2 := hrid.New(store)
	next, err := a2.Next(ctx, "task", "u1")
	require.NoError(t, err)
	require.Equal(t, "TASK_AAA001", next)
}

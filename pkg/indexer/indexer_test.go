package indexer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/memg/memg-core/pkg/embed"
	"github.com/memg/memg-core/pkg/graphstore/badgerstore"
	"github.com/memg/memg-core/pkg/hrid"
	"github.com/memg/memg-core/pkg/indexer"
	"github.com/memg/memg-core/pkg/memerr"
	"github.com/memg/memg-core/pkg/schema"
	"github.com/memg/memg-core/pkg/vectorstore/memstore"
	"github.com/stretchr/testify/require"
)

const testRegistry = `
version: v1
id_policy:
  kind: uuid
  field: id
defaults:
  vector:
    metric: cosine
    normalize: true
    dim: 8
  timestamps:
    auto_create: true
    auto_update: true
entities:
  - name: note
    anchor: statement
    fields:
      statement: {type: string, required: true}
      importance: {type: int}
relations: []
`

func newTranslator(t *testing.T) *schema.Translator {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRegistry), 0o644))
	tr := schema.New()
	require.NoError(t, tr.Load(path))
	return tr
}

func newIndexer(t *testing.T) *indexer.Indexer {
	t.Helper()
	graph, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = graph.Close() })
	return indexer.New(newTranslator(t), hrid.New(graph), embed.NewStub(8), memstore.New(), graph)
}

func TestIndexWritesBothStores(t *testing.T) {
	ctx := context.Background()
	ix := newIndexer(t)

	mem := &indexer.Memory{
		ID:         "id-1",
		UserID:     "u1",
		MemoryType: "note",
		Payload:    map[string]any{"statement": "set up postgres with docker", "importance": 3},
		Tags:       []string{"infra"},
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	id, err := ix.Index(ctx, mem, "")
	require.NoError(t, err)
	require.Equal(t, "id-1", id)
	require.NotEmpty(t, mem.HRID)
	require.Len(t, mem.Vector, 8)

	point, found, err := ix.Vectors.Get(ctx, indexer.VectorCollection, "id-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "note", point.Payload["memory_type"])

	node, found, err := ix.Graph.GetNode(ctx, "note", "id-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "set up postgres with docker", node.Properties["statement"])
	require.EqualValues(t, 3, node.Properties["importance"])
	require.NotContains(t, node.Properties, "vector")
}

func TestIndexEmptyAnchorFails(t *testing.T) {
	ctx := context.Background()
	ix := newIndexer(t)
	mem := &indexer.Memory{
		ID: "id-1", UserID: "u1", MemoryType: "note",
		Payload: map[string]any{"statement": "   "},
	}
	_, err := ix.Index(ctx, mem, "")
	require.Error(t, err)
}

func TestIndexTextOverrideUsedAsAnchor(t *testing.T) {
	ctx := context.Background()
	ix := newIndexer(t)
	mem := &indexer.Memory{
		ID: "id-1", UserID: "u1", MemoryType: "note",
		Payload:   map[string]any{"statement": "original text"},
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	_, err := ix.Index(ctx, mem, "override text")
	require.NoError(t, err)

	expected, err := embed.NewStub(8).Embed(ctx, "override text")
	require.NoError(t, err)
	require.Equal(t, expected, mem.Vector)
}

func TestIndexIsDeterministic(t *testing.T) {
	ctx := context.Background()
	ix1 := newIndexer(t)
	ix2 := newIndexer(t)

	mem1 := &indexer.Memory{ID: "id-1", UserID: "u1", MemoryType: "note",
		Payload: map[string]any{"statement": "deterministic text"}, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	mem2 := &indexer.Memory{ID: "id-1", UserID: "u1", MemoryType: "note",
		Payload: map[string]any{"statement": "deterministic text"}, CreatedAt: mem1.CreatedAt, UpdatedAt: mem1.UpdatedAt}

	_, err := ix1.Index(ctx, mem1, "")
	require.NoError(t, err)
	_, err = ix2.Index(ctx, mem2, "")
	require.NoError(t, err)

	require.Equal(t, mem1.Vector, mem2.Vector)
}

func TestAnchorChanged(t *testing.T) {
	ix := newIndexer(t)
	changed, err := ix.AnchorChanged("note", map[string]any{"statement": "a"}, map[string]any{"statement": "b"})
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = ix.AnchorChanged("note", map[string]any{"statement": "a"}, map[string]any{"statement": "a", "importance": 5})
	require.NoError(t, err)
	require.False(t, changed)
}

func TestIndexFailsWhenGraphUnavailableAfterVectorWrite(t *testing.T) {
	ctx := context.Background()
	tr := newTranslator(t)
	hridGraph, err := badgerstore.OpenInMemory() // separate store so HRID allocation still succeeds
	require.NoError(t, err)
	t.Cleanup(func() { _ = hridGraph.Close() })

	failingGraph, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, failingGraph.Close()) // force subsequent graph calls to fail

	vectors := memstore.New()
	ix := indexer.New(tr, hrid.New(hridGraph), embed.NewStub(8), vectors, failingGraph)
	mem := &indexer.Memory{ID: "id-1", UserID: "u1", MemoryType: "note",
		Payload: map[string]any{"statement": "text"}, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}

	_, err = ix.Index(ctx, mem, "")
	require.Error(t, err)
	require.ErrorIs(t, err, memerr.ErrPartialWrite)

	// the vector point was written before the graph failure surfaced.
	_, found, getErr := vectors.Get(ctx, indexer.VectorCollection, "id-1")
	require.NoError(t, getErr)
	require.True(t, found)
}

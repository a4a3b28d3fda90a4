package retrieval_test

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
	"github.com/memg/memg-core/pkg/retrieval"
	"github.com/memg/memg-core/pkg/schema"
	"github.com/memg/memg-core/pkg/vectorstore/memstore"
	"github.com/stretchr/testify/require"
)

const registryYAML = `
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
  - name: task
    anchor: statement
    fields:
      statement: {type: string, required: true}
relations:
  - predicates: [RELATES_TO]
    source: note
    target: task
    directed: true
`

type harness struct {
	tr    *schema.Translator
	graph *badgerstore.Store
	vecs  *memstore.Store
	ix    *indexer.Indexer
	pipe  *retrieval.Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(registryYAML), 0o644))
	tr := schema.New()
	require.NoError(t, tr.Load(path))

	graph, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = graph.Close() })
	vecs := memstore.New()
	embedder := embed.NewStub(8)

	return &harness{
		tr:    tr,
		graph: graph,
		vecs:  vecs,
		ix:    indexer.New(tr, hrid.New(graph), embedder, vecs, graph),
		pipe:  retrieval.New(tr, embedder, vecs, graph),
	}
}

func (h *harness) addNote(t *testing.T, id, statement string) *indexer.Memory {
	t.Helper()
	mem := &indexer.Memory{
		ID: id, UserID: "u1", MemoryType: "note",
		Payload:   map[string]any{"statement": statement},
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	_, err := h.ix.Index(context.Background(), mem, "")
	require.NoError(t, err)
	return mem
}

func TestModeSelectionVectorByDefault(t *testing.T) {
	h := newHarness(t)
	h.addNote(t, "n1", "set up postgres with docker")

	results, err := h.pipe.Search(context.Background(), retrieval.Request{
		Query: "postgres docker", UserID: "u1", Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "vector", results[0].Source)
	require.Equal(t, "set up postgres with docker", results[0].Memory.Payload["statement"])
}

func TestModeSelectionGraphOnStructuralFilter(t *testing.T) {
	h := newHarness(t)
	h.addNote(t, "n1", "first note")
	h.addNote(t, "n2", "second note")

	results, err := h.pipe.Search(context.Background(), retrieval.Request{
		UserID: "u1", MemoType: "note", Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.Equal(t, "graph", r.Source)
		require.Equal(t, 1.0, r.Score)
	}
}

func TestModeSelectionErrorWithNoBasis(t *testing.T) {
	h := newHarness(t)
	_, err := h.pipe.Search(context.Background(), retrieval.Request{UserID: "u1", Limit: 10})
	require.Error(t, err)
}

func TestHybridMergesByID(t *testing.T) {
	h := newHarness(t)
	h.addNote(t, "n1", "docker compose setup")
	h.addNote(t, "n2", "unrelated gardening tips")

	results, err := h.pipe.Search(context.Background(), retrieval.Request{
		Query: "docker compose", UserID: "u1", MemoType: "note", Mode: retrieval.ModeHybrid, Limit: 10,
	})
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, r := range results {
		ids[r.Memory.ID] = true
	}
	require.True(t, ids["n1"])
	require.True(t, ids["n2"])
}

func TestNeighborExpansionDecaysScore(t *testing.T) {
	h := newHarness(t)
	note := h.addNote(t, "n1", "project kickoff notes")
	task := &indexer.Memory{
		ID: "t1", UserID: "u1", MemoryType: "task",
		Payload:   map[string]any{"statement": "follow up with vendor"},
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	_, err := h.ix.Index(context.Background(), task, "")
	require.NoError(t, err)

	require.NoError(t, h.graph.EnsureEdgeTable(context.Background(), "note", "relates_to", "task"))
	require.NoError(t, h.graph.AddEdge(context.Background(), "note", "task", "relates_to", note.ID, task.ID, nil))

	results, err := h.pipe.Search(context.Background(), retrieval.Request{
		Query: "project kickoff", UserID: "u1", MemoType: "note", Limit: 10, NeighborCap: 5,
	})
	require.NoError(t, err)

	var seedScore, neighborScore float64
	var sawNeighbor bool
	for _, r := range results {
		if r.Memory.ID == "n1" {
			seedScore = r.Score
		}
		if r.Memory.ID == "t1" {
			neighborScore = r.Score
			sawNeighbor = r.Source == "neighbor:relates_to"
		}
	}
	require.True(t, sawNeighbor)
	require.InDelta(t, seedScore*retrieval.NeighborDecay, neighborScore, 1e-6)
}

func TestGraphFallbackOnDatabaseError(t *testing.T) {
	h := newHarness(t)
	h.addNote(t, "n1", "fallback candidate")
	require.NoError(t, h.graph.Close())

	results, err := h.pipe.Search(context.Background(), retrieval.Request{
		UserID: "u1", MemoType: "note", Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "vector", results[0].Source)
}

func TestProjectionNoneReturnsAnchorOnly(t *testing.T) {
	h := newHarness(t)
	h.addNote(t, "n1", "anchor text only")

	results, err := h.pipe.Search(context.Background(), retrieval.Request{
		Query: "anchor text", UserID: "u1", Limit: 5, IncludeDetails: "none",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, map[string]any{"statement": "anchor text only"}, results[0].Memory.Payload)
}

func TestStableOrderingByScoreThenHRIDThenID(t *testing.T) {
	h := newHarness(t)
	h.addNote(t, "n1", "same score item one")
	h.addNote(t, "n2", "same score item two")

	results, err := h.pipe.Search(context.Background(), retrieval.Request{
		UserID: "u1", MemoType: "note", Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	// both have score 1.0 (graph path, no query); ordering falls back to
	// hrid_to_index, which is allocation order here.
	require.Equal(t, "n1", results[0].Memory.ID)
	require.Equal(t, "n2", results[1].Memory.ID)
}

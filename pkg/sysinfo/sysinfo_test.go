package sysinfo_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/memg/memg-core/pkg/embed"
	"github.com/memg/memg-core/pkg/graphstore"
	"github.com/memg/memg-core/pkg/graphstore/badgerstore"
	"github.com/memg/memg-core/pkg/schema"
	"github.com/memg/memg-core/pkg/sysinfo"
	"github.com/memg/memg-core/pkg/vectorstore/memstore"
	"github.com/stretchr/testify/require"
)

const registryYAML = `
version: v1
id_policy: {kind: uuid, field: id}
defaults:
  vector: {metric: cosine, normalize: true, dim: 4}
  timestamps: {auto_create: true, auto_update: true}
entities:
  - name: note
    anchor: statement
    fields:
      statement: {type: string, required: true}
relations:
  - predicates: [RELATES_TO]
    source: note
    target: note
    directed: true
`

func TestReportReflectsCountsAndHealth(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(registryYAML), 0o644))
	tr := schema.New()
	require.NoError(t, tr.Load(path))

	graph, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = graph.Close() })
	vecs := memstore.New()

	now := time.Now().UTC()
	require.NoError(t, graph.AddNode(ctx, "note", graphstore.Node{ID: "n1", Type: "note", UserID: "u1", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, vecs.EnsureCollection(ctx, "memories", 4))
	require.NoError(t, vecs.Upsert(ctx, "memories", "n1", []float32{1, 0, 0, 0}, nil))

	cached := embed.NewCachedEmbedder(embed.NewStub(4), 8)
	_, err = cached.Embed(ctx, "warm the cache")
	require.NoError(t, err)

	r := sysinfo.New(tr, vecs, "memories", graph, cached)
	res, err := r.Report(ctx)
	require.NoError(t, err)

	require.Equal(t, []string{"note"}, res.SchemaEntities)
	require.Equal(t, []string{"RELATES_TO"}, res.SchemaRelations)
	require.True(t, res.GraphHealthy)
	require.True(t, res.VectorHealthy)
	require.EqualValues(t, 1, res.GraphNodeCount)
	require.EqualValues(t, 1, res.VectorPointCount)
	require.NotNil(t, res.EmbeddingCache)
	require.EqualValues(t, 1, res.EmbeddingCache.Misses)
}

func TestReportMarksGraphUnhealthyWhenClosed(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(registryYAML), 0o644))
	tr := schema.New()
	require.NoError(t, tr.Load(path))

	graph, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, graph.Close())
	vecs := memstore.New()

	r := sysinfo.New(tr, vecs, "memories", graph, embed.NewStub(4))
	res, err := r.Report(ctx)
	require.NoError(t, err)
	require.False(t, res.GraphHealthy)
	require.Nil(t, res.EmbeddingCache)
}

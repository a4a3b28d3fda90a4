// Package sysinfo surfaces the schema summary, per-store counts, and
// per-store health flags: a read-only diagnostic surface, not a
// control path.
//
// Grounded on github.com/orneryd/nornicdb's pkg/nornicdb health-check
// helpers, which report per-backend reachability the same way.
package sysinfo

import (
	"context"

	"github.com/memg/memg-core/pkg/embed"
	"github.com/memg/memg-core/pkg/graphstore"
	"github.com/memg/memg-core/pkg/schema"
	"github.com/memg/memg-core/pkg/vectorstore"
)

// Result is the reported snapshot.
type Result struct {
	SchemaEntities   []string
	SchemaRelations  []string
	VectorHealthy    bool
	GraphHealthy     bool
	VectorPointCount int64
	GraphNodeCount   int64
	// EmbeddingCache is non-nil only when the configured embedder is a
	// *embed.CachedEmbedder (the stub embedder caches nothing).
	EmbeddingCache *embed.CacheStats
}

// Reporter composes the translator and both stores to produce a Result.
type Reporter struct {
	Translator *schema.Translator
	Vectors    vectorstore.Store
	VectorName string
	Graph      graphstore.Store
	Embedder   embed.Embedder
}

// statsEmbedder is implemented by *embed.CachedEmbedder.
type statsEmbedder interface {
	Stats() embed.CacheStats
}

// New builds a Reporter. vectorCollection names the collection whose
// point count is reported (the single shared collection every memory
// type writes into).
func New(translator *schema.Translator, vectors vectorstore.Store, vectorCollection string, graph graphstore.Store, embedder embed.Embedder) *Reporter {
	return &Reporter{Translator: translator, Vectors: vectors, VectorName: vectorCollection, Graph: graph, Embedder: embedder}
}

// Report gathers schema names, store health, and store counts. Store
// errors are folded into an unhealthy flag and a zero count rather than
// failing the whole call: system-info must stay available even when a
// backing store is down, exactly the scenario it exists to surface. The
// error return is reserved for a future fatal case (e.g. a translator
// that was never loaded) and is always nil today.
func (r *Reporter) Report(ctx context.Context) (Result, error) {
	res := Result{
		SchemaEntities:  r.Translator.EntityNames(),
		SchemaRelations: r.Translator.RelationNames(),
	}

	res.GraphHealthy = r.Graph.Healthy(ctx)
	if count, err := r.Graph.NodeCount(ctx); err == nil {
		res.GraphNodeCount = count
	} else {
		res.GraphHealthy = false
	}

	if points, err := r.Vectors.Search(ctx, r.VectorName, nil, 0, nil); err == nil {
		res.VectorHealthy = true
		res.VectorPointCount = int64(len(points))
	}

	if se, ok := r.Embedder.(statsEmbedder); ok {
		stats := se.Stats()
		res.EmbeddingCache = &stats
	}

	return res, nil
}

// Package obs is a thin tracing wrapper around pkg/indexer and
// pkg/retrieval: every Index/Search call opens one span carrying the
// caller-relevant attributes, so the facade layer's operations show up
// in any OpenTelemetry-compatible backend without either package taking
// a direct otel dependency of its own.
//
// Grounded on the tracer.Start/span.SetAttributes/defer span.End
// pattern used throughout the retrieved corpus's store layers (e.g.
// internal/memory.Store.Write in the other_examples pack), adapted to
// wrap this module's indexer and retrieval pipeline instead of a SQL
// store.
package obs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/memg/memg-core/pkg/indexer"
	"github.com/memg/memg-core/pkg/retrieval"
)

// tracerName is the instrumentation scope every span in this package is
// recorded under.
const tracerName = "github.com/memg/memg-core/pkg/obs"

var tracer = otel.Tracer(tracerName)

// TraceIndex wraps one Indexer.Index call in an "indexer.index" span,
// recording memory_type/user_id going in and the allocated hrid or
// error coming out.
func TraceIndex(ctx context.Context, ix *indexer.Indexer, mem *indexer.Memory, indexTextOverride string) (string, error) {
	ctx, span := tracer.Start(ctx, "indexer.index", trace.WithAttributes(
		attribute.String("memg.memory_type", mem.MemoryType),
		attribute.String("memg.user_id", mem.UserID),
	))
	defer span.End()

	id, err := ix.Index(ctx, mem, indexTextOverride)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("memg.hrid", mem.HRID))
	return id, nil
}

// TraceSearch wraps one Pipeline.Search call in a "retrieval.search"
// span, recording the resolved mode, limit, result count, and error.
func TraceSearch(ctx context.Context, p *retrieval.Pipeline, req retrieval.Request) ([]retrieval.SearchResult, error) {
	ctx, span := tracer.Start(ctx, "retrieval.search", trace.WithAttributes(
		attribute.String("memg.user_id", req.UserID),
		attribute.String("memg.mode", string(req.Mode)),
		attribute.Int("memg.limit", req.Limit),
	))
	defer span.End()

	results, err := p.Search(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("memg.result_count", len(results)))
	return results, nil
}

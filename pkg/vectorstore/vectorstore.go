// Package vectorstore defines the Vector Store Adapter contract:
// collection lifecycle, upsert, filtered cosine search, get,
// and delete. A real deployment points this at an external vector
// database; pkg/vectorstore/memstore provides an in-process reference
// implementation for tests and single-node use, grounded on
// github.com/orneryd/nornicdb's pkg/search/vector_index.go (brute-force
// cosine over normalized vectors).
package vectorstore

import (
	"context"
	"errors"
)

// ErrDimensionMismatch mirrors the pkg/search sentinel error.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// FilterOp is one conjunct of a search filter.
type FilterOp string

const (
	// OpEq matches an exact value.
	OpEq FilterOp = "eq"
	// OpAnyOf matches if the field's value is one of a list.
	OpAnyOf FilterOp = "any_of"
	OpGT    FilterOp = "gt"
	OpGTE   FilterOp = "gte"
	OpLT    FilterOp = "lt"
	OpLTE   FilterOp = "lte"
)

// Filter is one predicate over a payload field; a Filters slice is a
// conjunction (AND) of all its entries.
type Filter struct {
	Field string
	Op    FilterOp
	Value any // scalar for eq/gt/gte/lt/lte, []any for any_of
}

// Eq builds an exact-match filter.
func Eq(field string, value any) Filter { return Filter{Field: field, Op: OpEq, Value: value} }

// AnyOf builds an "any of" membership filter.
func AnyOf(field string, values []any) Filter {
	return Filter{Field: field, Op: OpAnyOf, Value: values}
}

// GTE builds a >= range filter (used for modified_within_days cutoffs).
func GTE(field string, value any) Filter { return Filter{Field: field, Op: OpGTE, Value: value} }

// Point is one stored vector plus its opaque payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a search hit: a Point plus its cosine similarity score
// in [-1, 1] (after a normalize-then-dot-product convention).
type ScoredPoint struct {
	Point
	Score float64
}

// Store is the Vector Store Adapter contract. Payloads are opaque to
// callers below pkg/indexer/pkg/retrieval: the adapter must round-trip
// arbitrary maps, with datetimes serialized as ISO-8601 strings.
type Store interface {
	// EnsureCollection idempotently creates the named collection with
	// cosine metric and the given dimensionality.
	EnsureCollection(ctx context.Context, name string, dim int) error

	// Upsert inserts or replaces the point with pointID.
	Upsert(ctx context.Context, collection, pointID string, vector []float32, payload map[string]any) error

	// Get returns the point, or found=false if it doesn't exist.
	Get(ctx context.Context, collection, pointID string) (Point, bool, error)

	// Delete removes points by id; idempotent.
	Delete(ctx context.Context, collection string, pointIDs []string) error

	// Search returns up to limit points matching the filter conjunction,
	// ranked by descending cosine similarity to vector.
	Search(ctx context.Context, collection string, vector []float32, limit int, filters []Filter) ([]ScoredPoint, error)
}

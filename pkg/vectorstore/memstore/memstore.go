// Package memstore is an in-process reference implementation of
// pkg/vectorstore.Store: brute-force cosine similarity over normalized
// vectors, with a small payload filter engine.
//
// Grounded on github.com/orneryd/nornicdb's pkg/search/vector_index.go
// (normalize-then-dot-product cosine, sort-then-limit search) and the
// range/membership filter shapes used throughout pkg/cypher's WHERE
// clause evaluation.
package memstore

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/memg/memg-core/pkg/vectorstore"
)

type collection struct {
	dim    int
	points map[string]vectorstore.Point
}

// Store is an in-memory, concurrency-safe vectorstore.Store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// New returns an empty Store.
func New() *Store {
	return &Store{collections: map[string]*collection{}}
}

func (s *Store) EnsureCollection(_ context.Context, name string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = &collection{dim: dim, points: map[string]vectorstore.Point{}}
	}
	return nil
}

func (s *Store) Upsert(_ context.Context, collectionName, pointID string, vector []float32, payload map[string]any) error {
	if len(vector) == 0 {
		return vectorstore.ErrDimensionMismatch
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collectionName]
	if !ok {
		c = &collection{dim: len(vector), points: map[string]vectorstore.Point{}}
		s.collections[collectionName] = c
	}
	if c.dim != 0 && len(vector) != c.dim {
		return vectorstore.ErrDimensionMismatch
	}
	clonedPayload := make(map[string]any, len(payload))
	for k, v := range payload {
		clonedPayload[k] = v
	}
	c.points[pointID] = vectorstore.Point{
		ID:      pointID,
		Vector:  normalize(vector),
		Payload: clonedPayload,
	}
	return nil
}

func (s *Store) Get(_ context.Context, collectionName, pointID string) (vectorstore.Point, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collectionName]
	if !ok {
		return vectorstore.Point{}, false, nil
	}
	p, ok := c.points[pointID]
	return p, ok, nil
}

func (s *Store) Delete(_ context.Context, collectionName string, pointIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collectionName]
	if !ok {
		return nil
	}
	for _, id := range pointIDs {
		delete(c.points, id)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, collectionName string, vector []float32, limit int, filters []vectorstore.Filter) ([]vectorstore.ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collectionName]
	if !ok {
		return nil, nil
	}
	if len(vector) != 0 && c.dim != 0 && len(vector) != c.dim {
		return nil, vectorstore.ErrDimensionMismatch
	}
	query := normalize(vector)

	results := make([]vectorstore.ScoredPoint, 0, len(c.points))
	for _, p := range c.points {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if !matchesAll(p.Payload, filters) {
			continue
		}
		score := dot(query, p.Vector)
		results = append(results, vectorstore.ScoredPoint{Point: clonePoint(p), Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func clonePoint(p vectorstore.Point) vectorstore.Point {
	payload := make(map[string]any, len(p.Payload))
	for k, v := range p.Payload {
		payload[k] = v
	}
	vec := make([]float32, len(p.Vector))
	copy(vec, p.Vector)
	return vectorstore.Point{ID: p.ID, Vector: vec, Payload: payload}
}

func matchesAll(payload map[string]any, filters []vectorstore.Filter) bool {
	for _, f := range filters {
		if !matchesOne(payload, f) {
			return false
		}
	}
	return true
}

func matchesOne(payload map[string]any, f vectorstore.Filter) bool {
	val, ok := payload[f.Field]
	switch f.Op {
	case vectorstore.OpEq:
		return ok && valuesEqual(val, f.Value)
	case vectorstore.OpAnyOf:
		if !ok {
			return false
		}
		list, isList := f.Value.([]any)
		if !isList {
			return false
		}
		for _, want := range list {
			if valuesEqual(val, want) {
				return true
			}
		}
		return false
	case vectorstore.OpGT, vectorstore.OpGTE, vectorstore.OpLT, vectorstore.OpLTE:
		if !ok {
			return false
		}
		return compareOrdered(val, f.Value, f.Op)
	default:
		return false
	}
}

func valuesEqual(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Equal(bt)
		}
	}
	return a == b
}

func compareOrdered(val, bound any, op vectorstore.FilterOp) bool {
	valF, okA := toFloat(val)
	boundF, okB := toFloat(bound)
	if okA && okB {
		return compareFloat(valF, boundF, op)
	}
	valT, okA := toTime(val)
	boundT, okB := toTime(bound)
	if okA && okB {
		return compareFloat(float64(valT.UnixNano()), float64(boundT.UnixNano()), op)
	}
	return false
}

func compareFloat(a, b float64, op vectorstore.FilterOp) bool {
	switch op {
	case vectorstore.OpGT:
		return a > b
	case vectorstore.OpGTE:
		return a >= b
	case vectorstore.OpLT:
		return a < b
	case vectorstore.OpLTE:
		return a <= b
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		t, err := time.Parse(time.RFC3339, x)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

func normalize(vec []float32) []float32 {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		return vec
	}
	norm := math.Sqrt(sumSquares)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Package retrieval implements the GraphRAG search pipeline: automatic
// mode selection between the vector and graph stores, neighbor
// expansion with score decay, and a deterministic stable ordering over
// results.
//
// Grounded on github.com/orneryd/nornicdb's pkg/search package (ranked
// result assembly, score-then-id tie-breaking) generalized from a
// single vector path to the vector/graph/hybrid selection this pipeline
// needs.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/memg/memg-core/pkg/embed"
	"github.com/memg/memg-core/pkg/graphstore"
	"github.com/memg/memg-core/pkg/hrid"
	"github.com/memg/memg-core/pkg/indexer"
	"github.com/memg/memg-core/pkg/memerr"
	"github.com/memg/memg-core/pkg/schema"
	"github.com/memg/memg-core/pkg/vectorstore"
)

// Mode selects which store(s) a search executes against.
type Mode string

const (
	ModeAuto   Mode = ""
	ModeVector Mode = "vector"
	ModeGraph  Mode = "graph"
	ModeHybrid Mode = "hybrid"
)

// NeighborDecay is the fixed per-hop score multiplier applied to
// neighbor-expansion results that don't already appear as a direct hit.
const NeighborDecay = 0.9

// SearchResult is one ranked hit, tagged with how it was found.
type SearchResult struct {
	Memory indexer.Memory
	Score  float64
	Source string // "vector", "graph", or "neighbor:<predicate>"
}

// Request is the full parameter set accepted by Pipeline.Search.
type Request struct {
	Query              string
	UserID             string
	Limit              int
	Filters            []vectorstore.Filter
	MemoType           string
	ModifiedWithinDays int
	Mode               Mode
	RelationNames      []string
	NeighborCap        int
	IncludeDetails     string // "none", "self", or "" (full)
	Projection         map[string][]string
}

// Pipeline executes searches against a translator-described schema over
// a vector store and a graph store.
type Pipeline struct {
	Translator *schema.Translator
	Embedder   embed.Embedder
	Vectors    vectorstore.Store
	Graph      graphstore.Store
}

// New builds a Pipeline from its collaborators.
func New(translator *schema.Translator, embedder embed.Embedder, vectors vectorstore.Store, graph graphstore.Store) *Pipeline {
	return &Pipeline{Translator: translator, Embedder: embedder, Vectors: vectors, Graph: graph}
}

// Search resolves the mode, executes the corresponding path(s), expands
// neighbors, projects payloads, and returns a stably-ordered result set.
func (p *Pipeline) Search(ctx context.Context, req Request) ([]SearchResult, error) {
	mode, err := p.resolveMode(req)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	switch mode {
	case ModeVector:
		results, err = p.vectorSearch(ctx, req)
		if err != nil {
			return nil, err
		}
	case ModeGraph:
		results, err = p.graphSearchWithFallback(ctx, req)
		if err != nil {
			return nil, err
		}
	case ModeHybrid:
		vecResults, err := p.vectorSearch(ctx, req)
		if err != nil {
			return nil, err
		}
		graphResults, err := p.graphSearchWithFallback(ctx, req)
		if err != nil {
			return nil, err
		}
		results = mergeByID(vecResults, graphResults)
	}

	if req.NeighborCap > 0 {
		// seeds must already be in rank order before expansion: "top
		// NeighborCap results" means top by score, not insertion order
		// (graph-mode hits all tie at 1.0, hybrid interleaves by source).
		sortResults(results)
		results, err = p.expandNeighbors(ctx, req, results)
		if err != nil {
			return nil, err
		}
	}

	for i := range results {
		results[i].Memory.Payload = p.project(results[i].Memory, req.IncludeDetails, req.Projection)
	}

	sortResults(results)

	if req.Limit > 0 && len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results, nil
}

// resolveMode implements the explicit/query/structural-filter/error
// cascade: an explicit mode always wins; otherwise a query implies
// vector search, a structural filter (type or recency) implies graph
// search, and having neither is a validation error with no search
// basis.
func (p *Pipeline) resolveMode(req Request) (Mode, error) {
	if req.Mode != ModeAuto {
		return req.Mode, nil
	}
	if req.Query != "" {
		return ModeVector, nil
	}
	if req.MemoType != "" || req.ModifiedWithinDays > 0 {
		return ModeGraph, nil
	}
	return "", memerr.Wrap(memerr.KindValidation, "retrieval.Search",
		fmt.Errorf("no query or structural filter provided: %w", memerr.ErrValidation))
}

func (p *Pipeline) vectorSearch(ctx context.Context, req Request) ([]SearchResult, error) {
	filters := p.baseFilters(req)
	vector, err := p.Embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindDatabase, "retrieval.vectorSearch", fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	points, err := p.Vectors.Search(ctx, indexer.VectorCollection, vector, req.Limit, filters)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindDatabase, "retrieval.vectorSearch", fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	out := make([]SearchResult, 0, len(points))
	for _, pt := range points {
		mem := memoryFromVectorPayload(pt.ID, pt.Payload)
		out = append(out, SearchResult{Memory: mem, Score: pt.Score, Source: "vector"})
	}
	return out, nil
}

func (p *Pipeline) baseFilters(req Request) []vectorstore.Filter {
	filters := []vectorstore.Filter{vectorstore.Eq("user_id", req.UserID)}
	if req.MemoType != "" {
		filters = append(filters, vectorstore.Eq("memory_type", req.MemoType))
	}
	if req.ModifiedWithinDays > 0 {
		cutoff := time.Now().UTC().Add(-time.Duration(req.ModifiedWithinDays) * 24 * time.Hour)
		filters = append(filters, vectorstore.GTE("updated_at", cutoff.Format(time.RFC3339)))
	}
	filters = append(filters, req.Filters...)
	return filters
}

// graphSearchWithFallback executes the graph path, but falls back to
// the vector path silently on a DatabaseError so an unreachable graph
// store never makes the whole pipeline unavailable.
func (p *Pipeline) graphSearchWithFallback(ctx context.Context, req Request) ([]SearchResult, error) {
	results, err := p.graphSearch(ctx, req)
	if err != nil {
		var merr *memerr.Error
		if errors.As(err, &merr) && merr.Kind == memerr.KindDatabase {
			return p.vectorSearch(ctx, req)
		}
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) graphSearch(ctx context.Context, req Request) ([]SearchResult, error) {
	filters := []graphstore.Filter{{Field: "user_id", Op: "eq", Value: req.UserID}}
	if req.ModifiedWithinDays > 0 {
		cutoff := time.Now().UTC().Add(-time.Duration(req.ModifiedWithinDays) * 24 * time.Hour)
		filters = append(filters, graphstore.Filter{Field: "updated_at", Op: "gte", Value: cutoff})
	}

	nodes, err := p.Graph.ListNodes(ctx, req.MemoType, filters, req.Limit, 0)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(nodes))
	for _, n := range nodes {
		results = append(results, SearchResult{Memory: memoryFromNode(n), Score: 1.0, Source: "graph"})
	}

	if req.Query == "" {
		return results, nil
	}

	// rerank by vector-scoring each candidate id.
	ids := make([]any, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Memory.ID)
	}
	if len(ids) == 0 {
		return results, nil
	}
	vector, err := p.Embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindDatabase, "retrieval.graphSearch", fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	points, err := p.Vectors.Search(ctx, indexer.VectorCollection, vector, len(ids), []vectorstore.Filter{vectorstore.AnyOf("id", ids)})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindDatabase, "retrieval.graphSearch", fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	scoreByID := make(map[string]float64, len(points))
	for _, pt := range points {
		scoreByID[pt.ID] = pt.Score
	}
	for i := range results {
		if s, ok := scoreByID[results[i].Memory.ID]; ok {
			results[i].Score = s
		}
	}
	return results, nil
}

// mergeByID merges vector and graph result sets, keeping the higher
// score when an id appears in both.
func mergeByID(a, b []SearchResult) []SearchResult {
	byID := make(map[string]SearchResult, len(a)+len(b))
	order := make([]string, 0, len(a)+len(b))
	for _, r := range append(append([]SearchResult{}, a...), b...) {
		if existing, ok := byID[r.Memory.ID]; ok {
			if r.Score > existing.Score {
				byID[r.Memory.ID] = r
			}
			continue
		}
		byID[r.Memory.ID] = r
		order = append(order, r.Memory.ID)
	}
	out := make([]SearchResult, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// expandNeighbors fetches immediate neighbors of the top NeighborCap
// results and merges them in, scored by the seed's score times
// NeighborDecay unless a higher score (e.g. a direct vector hit)
// already exists for that id.
func (p *Pipeline) expandNeighbors(ctx context.Context, req Request, seeds []SearchResult) ([]SearchResult, error) {
	relationNames := req.RelationNames
	if len(relationNames) == 0 {
		relationNames = p.Translator.RelationNames()
	}
	forwardOnly, anyDirection := splitByDirectedness(p.Translator, relationNames)

	byID := make(map[string]SearchResult, len(seeds))
	order := make([]string, 0, len(seeds))
	for _, r := range seeds {
		byID[r.Memory.ID] = r
		order = append(order, r.Memory.ID)
	}

	limit := req.NeighborCap
	if limit > len(seeds) {
		limit = len(seeds)
	}
	for _, seed := range seeds[:limit] {
		neighbors, err := neighborsByDirectedness(ctx, p.Graph, seed.Memory.MemoryType, seed.Memory.ID, forwardOnly, anyDirection)
		if err != nil {
			var merr *memerr.Error
			if errors.As(err, &merr) && merr.Kind == memerr.KindDatabase {
				continue // graph unreachable: skip expansion for this seed, don't fail the search.
			}
			return nil, err
		}
		for _, nb := range neighbors {
			mem := memoryFromNode(nb.Node)
			score := seed.Score * NeighborDecay
			source := "neighbor:" + nb.RelationType
			if existing, ok := byID[mem.ID]; ok {
				if existing.Score >= score {
					continue
				}
				source = existing.Source
				if existing.Source == "vector" || existing.Source == "graph" {
					source = existing.Source
				}
			} else {
				order = append(order, mem.ID)
			}
			byID[mem.ID] = SearchResult{Memory: mem, Score: maxFloat(score, byID[mem.ID].Score), Source: source}
		}
	}

	out := make([]SearchResult, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// splitByDirectedness partitions predicates by Translator.PredicateDirected:
// an undirected predicate's reverse adjacency index is the only record of
// the relationship from the far node's side, so traversal stays DirOut;
// a directed predicate is queried DirAny so the node on either end of the
// one-way edge still surfaces the other as a neighbor.
func splitByDirectedness(t *schema.Translator, names []string) (forwardOnly, anyDirection []string) {
	for _, n := range names {
		if t.PredicateDirected(n) {
			anyDirection = append(anyDirection, n)
		} else {
			forwardOnly = append(forwardOnly, n)
		}
	}
	return forwardOnly, anyDirection
}

// neighborsByDirectedness issues up to two Neighbors calls, one per
// direction group, and concatenates the results.
func neighborsByDirectedness(ctx context.Context, graph graphstore.Store, nodeType, nodeID string, forwardOnly, anyDirection []string) ([]graphstore.Neighbor, error) {
	var out []graphstore.Neighbor
	if len(forwardOnly) > 0 {
		ns, err := graph.Neighbors(ctx, nodeType, nodeID, forwardOnly, graphstore.DirOut, "", 0)
		if err != nil {
			return nil, err
		}
		out = append(out, ns...)
	}
	if len(anyDirection) > 0 {
		ns, err := graph.Neighbors(ctx, nodeType, nodeID, anyDirection, graphstore.DirAny, "", 0)
		if err != nil {
			return nil, err
		}
		out = append(out, ns...)
	}
	return out, nil
}

// project applies the include_details allow-list contract: "none"
// returns only the anchor field; "self" returns the anchor plus
// whatever projection[memory_type] allows (an unlisted type gets only
// the anchor, same as "none"); anything else (including "") returns
// the full payload unchanged.
func (p *Pipeline) project(mem indexer.Memory, includeDetails string, projection map[string][]string) map[string]any {
	if includeDetails != "none" && includeDetails != "self" {
		return mem.Payload
	}

	out := map[string]any{}
	anchorField, err := p.Translator.AnchorField(mem.MemoryType)
	if err == nil {
		if v, ok := mem.Payload[anchorField]; ok {
			out[anchorField] = v
		}
	}
	if includeDetails == "none" {
		return out
	}

	for _, f := range projection[mem.MemoryType] {
		if v, ok := mem.Payload[f]; ok {
			out[f] = v
		}
	}
	return out
}

// sortResults implements the stable total order: score desc, then
// hrid_to_index asc, then id asc.
func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		iIdx, iErr := hrid.ToIndex(results[i].Memory.HRID)
		jIdx, jErr := hrid.ToIndex(results[j].Memory.HRID)
		if iErr == nil && jErr == nil && iIdx != jIdx {
			return iIdx < jIdx
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
}

func memoryFromVectorPayload(id string, payload map[string]any) indexer.Memory {
	mem := indexer.Memory{ID: id}
	if v, ok := payload["hrid"].(string); ok {
		mem.HRID = v
	}
	if v, ok := payload["user_id"].(string); ok {
		mem.UserID = v
	}
	if v, ok := payload["memory_type"].(string); ok {
		mem.MemoryType = v
	}
	if v, ok := payload["payload"].(map[string]any); ok {
		mem.Payload = v
	} else {
		mem.Payload = map[string]any{}
	}
	mem.Tags = toStringSlice(payload["tags"])
	mem.CreatedAt = parseTimeField(payload["created_at"])
	mem.UpdatedAt = parseTimeField(payload["updated_at"])
	return mem
}

func memoryFromNode(n graphstore.Node) indexer.Memory {
	mem := indexer.Memory{
		ID:         n.ID,
		UserID:     n.UserID,
		MemoryType: n.Type,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
		Payload:    map[string]any{},
	}
	for k, v := range n.Properties {
		switch k {
		case "id", "user_id", "created_at", "updated_at":
			continue
		case "hrid":
			if s, ok := v.(string); ok {
				mem.HRID = s
			}
		case "tags":
			mem.Tags = toStringSlice(v)
		default:
			mem.Payload[k] = v
		}
	}
	return mem
}

func toStringSlice(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func parseTimeField(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x
	case string:
		t, err := time.Parse(time.RFC3339, x)
		if err == nil {
			return t
		}
	}
	return time.Time{}
}

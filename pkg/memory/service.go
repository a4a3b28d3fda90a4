// Package memory is the top-level façade: it composes the schema
// translator, hrid allocator, indexer, and retrieval pipeline into the
// add/get/update/delete/list/relationship operations every transport
// (pkg/server, pkg/mcp, cmd/memgctl) calls.
//
// Grounded on github.com/orneryd/nornicdb's pkg/nornicdb package, the
// single facade type that wraps the storage/schema/query layers behind
// one API surface.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memg/memg-core/pkg/graphstore"
	"github.com/memg/memg-core/pkg/hrid"
	"github.com/memg/memg-core/pkg/indexer"
	"github.com/memg/memg-core/pkg/memerr"
	"github.com/memg/memg-core/pkg/obs"
	"github.com/memg/memg-core/pkg/retrieval"
	"github.com/memg/memg-core/pkg/schema"
	"github.com/memg/memg-core/pkg/sysinfo"
)

// Memory is re-exported so callers only need to import pkg/memory.
type Memory = indexer.Memory

// SearchResult is re-exported from pkg/retrieval.
type SearchResult = retrieval.SearchResult

// SearchRequest is re-exported from pkg/retrieval.
type SearchRequest = retrieval.Request

// ListRequest is the parameter set accepted by Service.List.
type ListRequest struct {
	MemoType           string
	Filters            []graphstore.Filter
	ModifiedWithinDays int
	Limit              int
	Offset             int
	ExpandNeighbors    int
}

// AddRequest is one item accepted by Service.AddBatch; Service.Add is a
// thin wrapper over a single-item batch.
type AddRequest struct {
	MemoryType string
	Payload    map[string]any
	Tags       []string
}

// Service composes the schema translator, hrid allocator, indexer, and
// retrieval pipeline behind one set of memory operations.
type Service struct {
	Translator *schema.Translator
	Allocator  *hrid.Allocator
	Indexer    *indexer.Indexer
	Pipeline   *retrieval.Pipeline
	Graph      graphstore.Store
}

// New builds a Service from its collaborators.
func New(translator *schema.Translator, allocator *hrid.Allocator, ix *indexer.Indexer, pipeline *retrieval.Pipeline, graph graphstore.Store) *Service {
	return &Service{Translator: translator, Allocator: allocator, Indexer: ix, Pipeline: pipeline, Graph: graph}
}

// Add validates payload against the schema, allocates an id and hrid,
// indexes the memory in both stores, and returns the full record.
func (s *Service) Add(ctx context.Context, userID string, req AddRequest) (Memory, error) {
	cleaned, err := s.Translator.ValidatePayload(req.MemoryType, req.Payload)
	if err != nil {
		return Memory{}, err
	}

	now := time.Now().UTC()
	mem := &Memory{
		ID:         uuid.NewString(),
		UserID:     userID,
		MemoryType: strings.ToLower(req.MemoryType),
		Payload:    cleaned,
		Tags:       req.Tags,
		CreatedAt:  now,
		UpdatedAt:  now,
		IsValid:    true,
	}

	if _, err := obs.TraceIndex(ctx, s.Indexer, mem, ""); err != nil {
		return Memory{}, err
	}
	return *mem, nil
}

// AddBatch runs each item through the single-writer Add path
// sequentially, preserving the single-writer invariant across the
// batch, and reports one error slot per item (nil on success).
func (s *Service) AddBatch(ctx context.Context, userID string, reqs []AddRequest) ([]Memory, []error) {
	mems := make([]Memory, len(reqs))
	errs := make([]error, len(reqs))
	for i, req := range reqs {
		mem, err := s.Add(ctx, userID, req)
		mems[i] = mem
		errs[i] = err
	}
	return mems, errs
}

// Get resolves hrid to an internal id and reads the full record from
// the graph; if the graph is unreachable it falls back to the vector
// store's payload copy.
func (s *Service) Get(ctx context.Context, userID, memHRID string) (Memory, error) {
	id, err := s.Allocator.Resolve(ctx, memHRID, userID)
	if err != nil {
		return Memory{}, err
	}
	memType, _, _, err := hrid.Parse(memHRID)
	if err != nil {
		return Memory{}, err
	}
	memType = strings.ToLower(memType)

	node, found, err := s.Graph.GetNode(ctx, memType, id)
	if err == nil && found {
		return memoryFromGraphNode(node, memHRID), nil
	}
	if err != nil {
		var merr *memerr.Error
		if !(isDatabaseError(err, &merr)) {
			return Memory{}, err
		}
	}

	point, found, verr := s.Indexer.Vectors.Get(ctx, indexer.VectorCollection, id)
	if verr != nil {
		return Memory{}, verr
	}
	if !found {
		return Memory{}, memerr.Wrap(memerr.KindNotFound, "memory.Get",
			fmt.Errorf("memory %q not found: %w", memHRID, memerr.ErrNotFound))
	}
	return memoryFromVectorPoint(point.ID, point.Payload), nil
}

func isDatabaseError(err error, target **memerr.Error) bool {
	if e, ok := err.(*memerr.Error); ok {
		*target = e
		return e.Kind == memerr.KindDatabase
	}
	return false
}

// Update patch-merges patch into the existing payload, re-validates,
// re-resolves the anchor, and re-embeds only if the anchor text
// changed. created_at is preserved; updated_at advances.
func (s *Service) Update(ctx context.Context, userID, memHRID string, patch map[string]any) (Memory, error) {
	existing, err := s.Get(ctx, userID, memHRID)
	if err != nil {
		return Memory{}, err
	}
	if existing.UserID != userID {
		return Memory{}, memerr.Wrap(memerr.KindValidation, "memory.Update",
			fmt.Errorf("memory %q does not belong to user %q: %w", memHRID, userID, memerr.ErrValidation))
	}

	merged := make(map[string]any, len(existing.Payload)+len(patch))
	for k, v := range existing.Payload {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	cleaned, err := s.Translator.ValidatePayload(existing.MemoryType, merged)
	if err != nil {
		return Memory{}, err
	}

	anchorChanged, err := s.Indexer.AnchorChanged(existing.MemoryType, existing.Payload, cleaned)
	if err != nil {
		return Memory{}, err
	}

	updated := existing
	updated.Payload = cleaned
	updated.UpdatedAt = time.Now().UTC()

	if anchorChanged {
		if _, err := obs.TraceIndex(ctx, s.Indexer, &updated, ""); err != nil {
			return Memory{}, err
		}
		return updated, nil
	}

	if err := s.Graph.UpdateNode(ctx, existing.MemoryType, existing.ID, cleaned, updated.UpdatedAt); err != nil {
		return Memory{}, err
	}

	point, found, err := s.Indexer.Vectors.Get(ctx, indexer.VectorCollection, existing.ID)
	if err != nil {
		return Memory{}, err
	}
	if !found {
		return Memory{}, memerr.Wrap(memerr.KindNotFound, "memory.Update",
			fmt.Errorf("vector point for %q missing: %w", memHRID, memerr.ErrNotFound))
	}
	updated.Vector = point.Vector

	vectorPayload := map[string]any{
		"id": updated.ID, "hrid": updated.HRID, "user_id": updated.UserID,
		"memory_type": updated.MemoryType, "tags": updated.Tags,
		"created_at": updated.CreatedAt.Format(time.RFC3339),
		"updated_at": updated.UpdatedAt.Format(time.RFC3339),
		"payload":    cleaned,
	}
	if err := s.Indexer.Vectors.Upsert(ctx, indexer.VectorCollection, updated.ID, point.Vector, vectorPayload); err != nil {
		return Memory{}, err
	}
	return updated, nil
}

// Delete removes the node (and its edges), the vector point, and the
// hrid mapping. Idempotent: deleting an already-absent memory is not
// an error.
func (s *Service) Delete(ctx context.Context, userID, memHRID string) error {
	id, err := s.Allocator.Resolve(ctx, memHRID, userID)
	if err != nil {
		var merr *memerr.Error
		if isDatabaseError(err, &merr) {
			return err
		}
		return nil // already gone: idempotent.
	}
	memType, _, _, err := hrid.Parse(memHRID)
	if err != nil {
		return err
	}
	memType = strings.ToLower(memType)

	if err := s.Graph.DeleteNode(ctx, memType, id); err != nil {
		return err
	}
	if err := s.Indexer.Vectors.Delete(ctx, indexer.VectorCollection, []string{id}); err != nil {
		return err
	}
	return s.Allocator.Forget(ctx, memHRID, userID)
}

// List executes the graph path primary for efficient filtering and
// pagination, with optional neighbor expansion.
func (s *Service) List(ctx context.Context, userID string, req ListRequest) ([]Memory, error) {
	filters := append([]graphstore.Filter{{Field: "user_id", Op: "eq", Value: userID}}, req.Filters...)
	if req.ModifiedWithinDays > 0 {
		cutoff := time.Now().UTC().Add(-time.Duration(req.ModifiedWithinDays) * 24 * time.Hour)
		filters = append(filters, graphstore.Filter{Field: "updated_at", Op: "gte", Value: cutoff})
	}

	nodes, err := s.Graph.ListNodes(ctx, req.MemoType, filters, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}

	mems := make([]Memory, 0, len(nodes))
	for _, n := range nodes {
		hridVal, _ := s.Allocator.ResolveHRID(ctx, n.ID, userID)
		mems = append(mems, memoryFromGraphNode(n, hridVal))
	}

	if req.ExpandNeighbors > 0 {
		mems, err = s.expandNeighbors(ctx, userID, mems, req.ExpandNeighbors)
		if err != nil {
			return nil, err
		}
	}
	return mems, nil
}

// Search runs a GraphRAG query through the retrieval pipeline, scoping
// it to userID regardless of what the caller set on req.
func (s *Service) Search(ctx context.Context, userID string, req SearchRequest) ([]SearchResult, error) {
	req.UserID = userID
	return obs.TraceSearch(ctx, s.Pipeline, req)
}

// SystemInfo reports the schema summary and per-store health/counts.
func (s *Service) SystemInfo(ctx context.Context) (sysinfo.Result, error) {
	r := sysinfo.New(s.Translator, s.Indexer.Vectors, indexer.VectorCollection, s.Graph, s.Indexer.Embedder)
	return r.Report(ctx)
}

func (s *Service) expandNeighbors(ctx context.Context, userID string, mems []Memory, neighborCap int) ([]Memory, error) {
	seen := make(map[string]bool, len(mems))
	for _, m := range mems {
		seen[m.ID] = true
	}
	forwardOnly, anyDirection := splitByDirectedness(s.Translator, s.Translator.RelationNames())

	limit := neighborCap
	if limit > len(mems) {
		limit = len(mems)
	}
	for _, m := range mems[:limit] {
		neighbors, err := neighborsByDirectedness(ctx, s.Graph, m.MemoryType, m.ID, forwardOnly, anyDirection)
		if err != nil {
			continue
		}
		for _, nb := range neighbors {
			if seen[nb.Node.ID] {
				continue
			}
			seen[nb.Node.ID] = true
			hridVal, _ := s.Allocator.ResolveHRID(ctx, nb.Node.ID, userID)
			mems = append(mems, memoryFromGraphNode(nb.Node, hridVal))
		}
	}
	return mems, nil
}

// AddRelationship infers missing types from hrid prefixes, verifies the
// schema allows (from_type, predicate, to_type), verifies both nodes
// belong to userID, ensures the edge table, and adds the edge.
// Duplicate edges are idempotent.
func (s *Service) AddRelationship(ctx context.Context, userID, fromHRID, toHRID, predicate, fromType, toType string) error {
	fromType, toType, fromID, toID, err := s.resolveRelationshipEnds(ctx, userID, fromHRID, toHRID, fromType, toType)
	if err != nil {
		return err
	}
	if !s.Translator.RelationAllowed(fromType, predicate, toType) {
		return memerr.Wrap(memerr.KindSchema, "memory.AddRelationship",
			fmt.Errorf("relation (%s)-[%s]->(%s) is not declared: %w", fromType, predicate, toType, memerr.ErrSchema))
	}
	if err := s.Graph.EnsureEdgeTable(ctx, fromType, predicate, toType); err != nil {
		return err
	}
	return s.Graph.AddEdge(ctx, fromType, toType, predicate, fromID, toID, nil)
}

// DeleteRelationship mirrors AddRelationship; absence of the edge is
// not an error.
func (s *Service) DeleteRelationship(ctx context.Context, userID, fromHRID, toHRID, predicate, fromType, toType string) error {
	fromType, toType, fromID, toID, err := s.resolveRelationshipEnds(ctx, userID, fromHRID, toHRID, fromType, toType)
	if err != nil {
		return err
	}
	return s.Graph.DeleteEdge(ctx, fromType, toType, predicate, fromID, toID)
}

func (s *Service) resolveRelationshipEnds(ctx context.Context, userID, fromHRID, toHRID, fromType, toType string) (resolvedFromType, resolvedToType, fromID, toID string, err error) {
	if fromType == "" {
		fromType, _, _, err = hrid.Parse(fromHRID)
		if err != nil {
			return "", "", "", "", err
		}
	}
	if toType == "" {
		toType, _, _, err = hrid.Parse(toHRID)
		if err != nil {
			return "", "", "", "", err
		}
	}
	fromType = strings.ToLower(fromType)
	toType = strings.ToLower(toType)

	fromID, err = s.Allocator.Resolve(ctx, fromHRID, userID)
	if err != nil {
		return "", "", "", "", err
	}
	toID, err = s.Allocator.Resolve(ctx, toHRID, userID)
	if err != nil {
		return "", "", "", "", err
	}

	fromNode, found, err := s.Graph.GetNode(ctx, fromType, fromID)
	if err != nil {
		return "", "", "", "", err
	}
	if !found || fromNode.UserID != userID {
		return "", "", "", "", memerr.Wrap(memerr.KindValidation, "memory.resolveRelationshipEnds",
			fmt.Errorf("source %q does not belong to user %q: %w", fromHRID, userID, memerr.ErrValidation))
	}
	toNode, found, err := s.Graph.GetNode(ctx, toType, toID)
	if err != nil {
		return "", "", "", "", err
	}
	if !found || toNode.UserID != userID {
		return "", "", "", "", memerr.Wrap(memerr.KindValidation, "memory.resolveRelationshipEnds",
			fmt.Errorf("target %q does not belong to user %q: %w", toHRID, userID, memerr.ErrValidation))
	}

	return fromType, toType, fromID, toID, nil
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

func memoryFromGraphNode(n graphstore.Node, hridVal string) Memory {
	mem := Memory{
		ID: n.ID, UserID: n.UserID, MemoryType: n.Type,
		CreatedAt: n.CreatedAt, UpdatedAt: n.UpdatedAt,
		Payload: map[string]any{}, HRID: hridVal, IsValid: true,
	}
	for k, v := range n.Properties {
		switch k {
		case "id", "user_id", "created_at", "updated_at":
			continue
		case "hrid":
			if s, ok := v.(string); ok && mem.HRID == "" {
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

func memoryFromVectorPoint(id string, payload map[string]any) Memory {
	mem := Memory{ID: id, IsValid: true, Payload: map[string]any{}}
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
	}
	mem.Tags = toStringSlice(payload["tags"])
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

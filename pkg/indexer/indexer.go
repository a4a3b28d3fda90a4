// Package indexer is the single-writer that keeps the vector store and
// graph store consistent: it resolves anchor text, allocates a
// human-readable id, computes an embedding, and writes both stores in a
// fixed order so a partial failure always leaves the vector store as
// the surviving copy.
//
// Grounded on github.com/orneryd/nornicdb's pkg/nornicdb package, which
// plays the same "one writer coordinates several backing stores" role
// for that codebase's single in-process database handle.
package indexer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/memg/memg-core/pkg/embed"
	"github.com/memg/memg-core/pkg/graphstore"
	"github.com/memg/memg-core/pkg/hrid"
	"github.com/memg/memg-core/pkg/memerr"
	"github.com/memg/memg-core/pkg/schema"
	"github.com/memg/memg-core/pkg/vectorstore"
)

// Memory is the canonical persisted record. pkg/retrieval and
// pkg/memory both depend on this package for the type rather than the
// reverse, keeping the translator->indexer->retrieval->service dependency chain acyclic.
type Memory struct {
	ID           string
	HRID         string
	UserID       string
	MemoryType   string
	Payload      map[string]any
	Tags         []string
	Vector       []float32
	CreatedAt    time.Time
	UpdatedAt    time.Time
	IsValid      bool
	Supersedes   string
	SupersededBy string
}

// VectorCollection is the fixed vectorstore collection name every
// memory type shares; rows are disambiguated by the memory_type field
// in their payload, not by collection.
const VectorCollection = "memories"

// Indexer wires the schema translator, hrid allocator, embedder, and
// both stores into the write path described by the dual-store
// consistency contract.
type Indexer struct {
	Translator *schema.Translator
	Allocator  *hrid.Allocator
	Embedder   embed.Embedder
	Vectors    vectorstore.Store
	Graph      graphstore.Store
}

// New builds an Indexer from its collaborators.
func New(translator *schema.Translator, allocator *hrid.Allocator, embedder embed.Embedder, vectors vectorstore.Store, graph graphstore.Store) *Indexer {
	return &Indexer{Translator: translator, Allocator: allocator, Embedder: embedder, Vectors: vectors, Graph: graph}
}

// Index persists mem in both stores, allocating a hrid first if mem.HRID
// is unset. indexTextOverride, if non-empty, replaces the
// schema-resolved anchor text as the embedding input.
func (ix *Indexer) Index(ctx context.Context, mem *Memory, indexTextOverride string) (string, error) {
	anchorText, err := ix.resolveAnchorText(mem, indexTextOverride)
	if err != nil {
		return "", err
	}

	if mem.HRID == "" {
		h, err := ix.Allocator.Next(ctx, mem.MemoryType, mem.UserID)
		if err != nil {
			return "", err
		}
		mem.HRID = h
		if err := ix.Allocator.Assign(ctx, h, mem.ID, mem.UserID); err != nil {
			return "", err
		}
	}

	vector, err := ix.Embedder.Embed(ctx, anchorText)
	if err != nil {
		return "", memerr.Wrap(memerr.KindDatabase, "indexer.Index",
			fmt.Errorf("embedding anchor text: %w: %v", memerr.ErrDatabase, err))
	}
	if ix.Embedder.Dimensions() > 0 && len(vector) != ix.Embedder.Dimensions() {
		return "", memerr.Wrap(memerr.KindValidation, "indexer.Index",
			fmt.Errorf("embedder returned %d dimensions, want %d: %w", len(vector), ix.Embedder.Dimensions(), memerr.ErrValidation))
	}
	mem.Vector = vector

	vectorPayload := map[string]any{
		"id":          mem.ID,
		"hrid":        mem.HRID,
		"user_id":     mem.UserID,
		"memory_type": mem.MemoryType,
		"tags":        mem.Tags,
		"created_at":  mem.CreatedAt.Format(time.RFC3339),
		"updated_at":  mem.UpdatedAt.Format(time.RFC3339),
		"payload":     mem.Payload,
	}

	if err := ix.Vectors.EnsureCollection(ctx, VectorCollection, len(vector)); err != nil {
		return "", memerr.Wrap(memerr.KindDatabase, "indexer.Index", fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	if err := ix.Vectors.Upsert(ctx, VectorCollection, mem.ID, vector, vectorPayload); err != nil {
		return "", memerr.Wrap(memerr.KindDatabase, "indexer.Index", fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}

	nodeProps, err := ix.graphNodeProperties(mem)
	if err != nil {
		return "", err
	}
	if err := ix.Graph.EnsureNodeTable(ctx, mem.MemoryType); err != nil {
		return "", &memerr.PartialWriteError{SucceededStore: "vector", PointID: mem.ID, Cause: err}
	}
	node := graphstore.Node{
		ID:         mem.ID,
		Type:       mem.MemoryType,
		UserID:     mem.UserID,
		Properties: nodeProps,
		CreatedAt:  mem.CreatedAt,
		UpdatedAt:  mem.UpdatedAt,
	}
	if err := ix.Graph.AddNode(ctx, mem.MemoryType, node); err != nil {
		return "", &memerr.PartialWriteError{SucceededStore: "vector", PointID: mem.ID, Cause: err}
	}

	return mem.ID, nil
}

// resolveAnchorText implements the override-else-schema-resolution step.
func (ix *Indexer) resolveAnchorText(mem *Memory, override string) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	text, err := ix.Translator.AnchorText(schema.Memory{MemoryType: mem.MemoryType, Payload: mem.Payload})
	if err != nil {
		return "", err
	}
	return text, nil
}

// graphNodeProperties flattens core fields plus the fixed projection of
// primitive scalar payload fields; the vector itself is never stored on
// the graph node.
func (ix *Indexer) graphNodeProperties(mem *Memory) (map[string]any, error) {
	spec, err := ix.Translator.Entity(mem.MemoryType)
	if err != nil {
		return nil, err
	}

	props := map[string]any{
		"id":         mem.ID,
		"hrid":       mem.HRID,
		"user_id":    mem.UserID,
		"tags":       append([]string(nil), mem.Tags...),
		"created_at": mem.CreatedAt,
		"updated_at": mem.UpdatedAt,
	}
	for name, field := range spec.Fields {
		if field.System {
			continue
		}
		if !isScalarFieldType(field.Type) {
			continue
		}
		if val, ok := mem.Payload[name]; ok {
			props[name] = val
		}
	}
	return props, nil
}

func isScalarFieldType(t schema.FieldType) bool {
	switch t {
	case schema.FieldString, schema.FieldInt, schema.FieldFloat, schema.FieldBool, schema.FieldDatetime, schema.FieldDate, schema.FieldEnum:
		return true
	default:
		return false
	}
}

// AnchorChanged reports whether updating payload on mem's type would
// change the resolved anchor text, used by the update path (pkg/memory)
// to decide whether a re-embed is necessary.
func (ix *Indexer) AnchorChanged(memType string, oldPayload, newPayload map[string]any) (bool, error) {
	field, err := ix.Translator.AnchorField(memType)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(fmt.Sprint(oldPayload[field])) != strings.TrimSpace(fmt.Sprint(newPayload[field])), nil
}

// SortedPayloadKeys is a small determinism helper: it returns payload's
// keys in sorted order.
func SortedPayloadKeys(payload map[string]any) []string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

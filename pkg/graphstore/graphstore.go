// Package graphstore defines the Graph Store Adapter contract:
// dynamic node/edge tables, a small parametric query
// language, neighbor traversal, and deletes. pkg/graphstore/badgerstore
// provides the reference implementation, grounded on
// github.com/orneryd/nornicdb's pkg/storage/badger.go (key-prefix
// scheme, per-label secondary indexes) and pkg/storage/schema.go
// (dynamic property-type inference and widening policy).
package graphstore

import (
	"context"
	"time"
)

// ColumnType is the inferred storage type of a node/edge property,
// one of STRING/DOUBLE/INT64/BOOLEAN/TIMESTAMP.
type ColumnType string

const (
	ColumnString    ColumnType = "STRING"
	ColumnDouble    ColumnType = "DOUBLE"
	ColumnInt64     ColumnType = "INT64"
	ColumnBoolean   ColumnType = "BOOLEAN"
	ColumnTimestamp ColumnType = "TIMESTAMP"
)

// Direction constrains neighbor traversal relative to the seed node.
type Direction string

const (
	DirOut Direction = "out"
	DirIn  Direction = "in"
	DirAny Direction = "any"
)

// Node is one row of a dynamic node table.
type Node struct {
	ID         string
	Type       string
	UserID     string
	Properties map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Neighbor is one row returned by Neighbors: the neighbor node's
// properties plus the relation type that connects it to the seed,
// as a {neighbor_properties, relation_type} row.
type Neighbor struct {
	Node         Node
	RelationType string
}

// Filter is one WHERE-style predicate used by List/graph-path search.
type Filter struct {
	Field string
	Op    string // "eq", "any_of", "gte", "lte", "gt", "lt"
	Value any
}

// Store is the Graph Store Adapter contract. All mutation
// calls are idempotent where noted; reads return plain row maps/structs.
type Store interface {
	// EnsureNodeTable dynamically creates the node table on first use.
	// If a later call widens a property's inferred type, the adapter
	// either widens or deterministically rejects per its configured
	// policy (resolved in DESIGN.md).
	EnsureNodeTable(ctx context.Context, nodeType string) error

	// AddNode upserts a node by id.
	AddNode(ctx context.Context, nodeType string, node Node) error

	// GetNode returns the node, or found=false.
	GetNode(ctx context.Context, nodeType, id string) (Node, bool, error)

	// UpdateNode directly updates properties; must not touch the
	// system fields {id, user_id, created_at}.
	UpdateNode(ctx context.Context, nodeType, id string, properties map[string]any, updatedAt time.Time) error

	// DeleteNode deletes the node and all incident edges.
	DeleteNode(ctx context.Context, nodeType, id string) error

	// ListNodes returns up to limit nodes of nodeType matching filters,
	// ordered by UpdatedAt descending, after skipping offset matches.
	// This backs the graph-path primary execution of list/search.
	ListNodes(ctx context.Context, nodeType string, filters []Filter, limit, offset int) ([]Node, error)

	// EnsureEdgeTable idempotently creates the canonical
	// SOURCE_PREDICATE_TARGET edge table.
	EnsureEdgeTable(ctx context.Context, sourceType, predicate, targetType string) error

	// AddEdge idempotently creates an edge; re-adding an identical edge
	// is a no-op.
	AddEdge(ctx context.Context, sourceType, targetType, predicate, fromID, toID string, props map[string]any) error

	// DeleteEdge idempotently removes an edge; absence is not an error.
	DeleteEdge(ctx context.Context, sourceType, targetType, predicate, fromID, toID string) error

	// Neighbors fetches immediate neighbors of (nodeType, nodeID),
	// optionally restricted to predicates, in the given direction,
	// optionally restricted to neighborType, capped at limit.
	Neighbors(ctx context.Context, nodeType, nodeID string, predicates []string, direction Direction, neighborType string, limit int) ([]Neighbor, error)

	// Query executes a small parametric query (see query.go) and
	// returns plain row maps, satisfying a
	// `query(text, params) -> rows` contract.
	Query(ctx context.Context, text string, params map[string]any) ([]map[string]any, error)

	// NodeCount and Healthy back pkg/sysinfo.
	NodeCount(ctx context.Context) (int64, error)
	Healthy(ctx context.Context) bool

	Close() error
}

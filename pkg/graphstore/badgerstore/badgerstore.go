// Package badgerstore is the reference Graph Store Adapter,
// backing pkg/graphstore.Store with BadgerDB.
//
// Grounded on github.com/orneryd/nornicdb's pkg/storage/badger.go: a
// single-byte key-prefix scheme plus secondary indexes for label and
// adjacency lookups, and pkg/storage/schema.go's dynamic property-type
// inference (STRING/DOUBLE/INT64/BOOLEAN/TIMESTAMP).
package badgerstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/memg/memg-core/pkg/graphstore"
	"github.com/memg/memg-core/pkg/memerr"
)

// Key prefixes, following a single-byte prefix convention
// (pkg/storage/badger.go) generalized from fixed node/edge kinds to
// dynamic per-type tables.
const (
	prefixNode     = byte(0x01) // node:<type>:<id>           -> JSON(Node)
	prefixEdge     = byte(0x02) // edge:<table>:<from>:<to>    -> JSON(props)
	prefixOut      = byte(0x03) // out:<from>:<table>:<to>     -> empty
	prefixIn       = byte(0x04) // in:<to>:<table>:<from>      -> empty
	prefixHRIDFwd  = byte(0x05) // hridfwd:<user>:<hrid>       -> id
	prefixHRIDBack = byte(0x06) // hridback:<user>:<id>        -> hrid
)

const sep = byte(0x00)

// Store is a BadgerDB-backed graphstore.Store.
type Store struct {
	db *badger.DB

	mu          sync.RWMutex
	nodeTables  map[string]bool                        // known node types
	edgeTables  map[string]bool                        // known SOURCE_PREDICATE_TARGET names
	propTypes   map[string]map[string]graphstore.ColumnType // type -> field -> inferred column type
}

// Options configures the store.
type Options struct {
	DataDir    string
	InMemory   bool
	SyncWrites bool
}

// Open creates or opens a BadgerDB-backed store at opts.DataDir.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir).WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindDatabase, "badgerstore.Open",
			fmt.Errorf("opening badger db at %q: %w: %v", opts.DataDir, memerr.ErrDatabase, err))
	}
	return &Store{
		db:         db,
		nodeTables: map[string]bool{},
		edgeTables: map[string]bool{},
		propTypes:  map[string]map[string]graphstore.ColumnType{},
	}, nil
}

// OpenInMemory is a convenience for tests.
func OpenInMemory() (*Store, error) {
	return Open(Options{InMemory: true})
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return memerr.Wrap(memerr.KindDatabase, "badgerstore.Close", fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	return nil
}

// --- key encoding -----------------------------------------------------

func nodeKey(nodeType, id string) []byte {
	return join(prefixNode, strings.ToLower(nodeType), id)
}

func nodeTypePrefix(nodeType string) []byte {
	return join(prefixNode, strings.ToLower(nodeType), "")
}

func edgeKey(table, fromID, toID string) []byte {
	return join(prefixEdge, table, fromID, toID)
}

func outKey(fromID, table, toID string) []byte {
	return join(prefixOut, fromID, table, toID)
}

func outPrefix(fromID string) []byte {
	return join(prefixOut, fromID, "")
}

func inKey(toID, table, fromID string) []byte {
	return join(prefixIn, toID, table, fromID)
}

func inPrefix(toID string) []byte {
	return join(prefixIn, toID, "")
}

func hridFwdKey(userID, hrid string) []byte { return join(prefixHRIDFwd, userID, hrid) }
func hridBackKey(userID, id string) []byte  { return join(prefixHRIDBack, userID, id) }

func hridFwdPrefix(userID string) []byte { return join(prefixHRIDFwd, userID, "") }

func join(prefix byte, parts ...string) []byte {
	buf := bytes.NewBuffer(nil)
	buf.WriteByte(prefix)
	for _, p := range parts {
		buf.WriteByte(sep)
		buf.WriteString(p)
	}
	return buf.Bytes()
}

// --- node table lifecycle & dynamic typing -----------------------------

// EnsureNodeTable registers nodeType as known. No-op if already known.
func (s *Store) EnsureNodeTable(_ context.Context, nodeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodeType = strings.ToLower(nodeType)
	s.nodeTables[nodeType] = true
	if _, ok := s.propTypes[nodeType]; !ok {
		s.propTypes[nodeType] = map[string]graphstore.ColumnType{}
	}
	return nil
}

// inferColumnType infers a column's STRING/DOUBLE/INT64/BOOLEAN/TIMESTAMP
// type, following the same convention as pkg/storage/schema.go of
// inspecting the concrete Go value.
func inferColumnType(v any) graphstore.ColumnType {
	switch v.(type) {
	case string:
		return graphstore.ColumnString
	case bool:
		return graphstore.ColumnBoolean
	case int, int32, int64:
		return graphstore.ColumnInt64
	case float32, float64:
		return graphstore.ColumnDouble
	case time.Time:
		return graphstore.ColumnTimestamp
	default:
		return graphstore.ColumnString
	}
}

// widens reports whether "to" is a safe widening of "from" (INT64 -> DOUBLE
// only); every other mismatch is rejected deterministically rather than
// silently coerced.
func widens(from, to graphstore.ColumnType) bool {
	return from == graphstore.ColumnInt64 && to == graphstore.ColumnDouble
}

func (s *Store) checkAndRecordTypes(nodeType string, props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, ok := s.propTypes[nodeType]
	if !ok {
		table = map[string]graphstore.ColumnType{}
		s.propTypes[nodeType] = table
	}
	for field, val := range props {
		newType := inferColumnType(val)
		existing, seen := table[field]
		if !seen {
			table[field] = newType
			continue
		}
		if existing == newType {
			continue
		}
		if widens(existing, newType) {
			table[field] = newType
			continue
		}
		return memerr.Wrap(memerr.KindDatabase, "badgerstore.checkAndRecordTypes",
			fmt.Errorf("property %q on %q: column type %s conflicts with existing %s: %w",
				field, nodeType, newType, existing, memerr.ErrDatabase))
	}
	return nil
}

// --- node CRUD ----------------------------------------------------------

func (s *Store) AddNode(_ context.Context, nodeType string, node graphstore.Node) error {
	nodeType = strings.ToLower(nodeType)
	if err := s.checkAndRecordTypes(nodeType, node.Properties); err != nil {
		return err
	}
	data, err := json.Marshal(node)
	if err != nil {
		return memerr.Wrap(memerr.KindDatabase, "badgerstore.AddNode", fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nodeKey(nodeType, node.ID), data)
	})
	if err != nil {
		return memerr.Wrap(memerr.KindDatabase, "badgerstore.AddNode", fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	return nil
}

func (s *Store) GetNode(_ context.Context, nodeType, id string) (graphstore.Node, bool, error) {
	var node graphstore.Node
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(nodeType, id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &node); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return graphstore.Node{}, false, memerr.Wrap(memerr.KindDatabase, "badgerstore.GetNode", fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	return node, found, nil
}

func (s *Store) UpdateNode(ctx context.Context, nodeType, id string, properties map[string]any, updatedAt time.Time) error {
	node, found, err := s.GetNode(ctx, nodeType, id)
	if err != nil {
		return err
	}
	if !found {
		return memerr.Wrap(memerr.KindNotFound, "badgerstore.UpdateNode",
			fmt.Errorf("node %s/%s not found: %w", nodeType, id, memerr.ErrNotFound))
	}
	const systemID, systemUser, systemCreated = "id", "user_id", "created_at"
	merged := make(map[string]any, len(node.Properties)+len(properties))
	s.mu.RLock()
	types := s.propTypes[strings.ToLower(nodeType)]
	for k, v := range node.Properties {
		// Stored time values come back from JSON as strings; restore them
		// so the TIMESTAMP column recorded at AddNode still matches.
		if str, ok := v.(string); ok && types[k] == graphstore.ColumnTimestamp {
			if t, perr := time.Parse(time.RFC3339Nano, str); perr == nil {
				v = t
			}
		}
		merged[k] = v
	}
	s.mu.RUnlock()
	for k, v := range properties {
		if k == systemID || k == systemUser || k == systemCreated {
			continue
		}
		merged[k] = v
	}
	node.Properties = merged
	node.UpdatedAt = updatedAt
	return s.AddNode(ctx, nodeType, node)
}

func (s *Store) DeleteNode(ctx context.Context, nodeType, id string) error {
	if err := s.deleteIncidentEdges(id); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(nodeKey(nodeType, id))
	})
	if err != nil {
		return memerr.Wrap(memerr.KindDatabase, "badgerstore.DeleteNode", fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	return nil
}

func (s *Store) deleteIncidentEdges(nodeID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range [][]byte{outPrefix(nodeID), inPrefix(nodeID)} {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			var keys [][]byte
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				k := it.Item().KeyCopy(nil)
				keys = append(keys, k)
			}
			it.Close()
			for _, k := range keys {
				parts := strings.Split(string(k[2:]), string(sep))
				// parts: [selfID, table, otherID]
				if len(parts) != 3 {
					continue
				}
				table := parts[1]
				var fromID, toID string
				if bytes.HasPrefix(k, []byte{prefixOut}) {
					fromID, toID = nodeID, parts[2]
				} else {
					fromID, toID = parts[2], nodeID
				}
				if err := txn.Delete(edgeKey(table, fromID, toID)); err != nil && err != badger.ErrKeyNotFound {
					return err
				}
				if err := txn.Delete(outKey(fromID, table, toID)); err != nil && err != badger.ErrKeyNotFound {
					return err
				}
				if err := txn.Delete(inKey(toID, table, fromID)); err != nil && err != badger.ErrKeyNotFound {
					return err
				}
			}
		}
		return nil
	})
}

// ListNodes scans the node-type prefix, filters, sorts by UpdatedAt
// descending, and paginates. This is the graph path's primary
// execution vehicle for list/search.
func (s *Store) ListNodes(_ context.Context, nodeType string, filters []graphstore.Filter, limit, offset int) ([]graphstore.Node, error) {
	var nodes []graphstore.Node
	prefix := nodeTypePrefix(nodeType)
	if nodeType == "" {
		prefix = []byte{prefixNode}
	}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var node graphstore.Node
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &node)
			})
			if err != nil {
				return err
			}
			if matchesFilters(node, filters) {
				nodes = append(nodes, node)
			}
		}
		return nil
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindDatabase, "badgerstore.ListNodes", fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}

	sort.Slice(nodes, func(i, j int) bool {
		if !nodes[i].UpdatedAt.Equal(nodes[j].UpdatedAt) {
			return nodes[i].UpdatedAt.After(nodes[j].UpdatedAt)
		}
		return nodes[i].ID < nodes[j].ID
	})

	if offset > 0 {
		if offset >= len(nodes) {
			return nil, nil
		}
		nodes = nodes[offset:]
	}
	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes, nil
}

func matchesFilters(node graphstore.Node, filters []graphstore.Filter) bool {
	for _, f := range filters {
		if !matchesFilter(node, f) {
			return false
		}
	}
	return true
}

func matchesFilter(node graphstore.Node, f graphstore.Filter) bool {
	var val any
	switch f.Field {
	case "user_id":
		val = node.UserID
	case "updated_at":
		val = node.UpdatedAt
	case "created_at":
		val = node.CreatedAt
	default:
		val = node.Properties[f.Field]
	}
	return evalOp(val, f.Op, f.Value)
}

func evalOp(val any, op string, want any) bool {
	switch op {
	case "eq":
		return fmt.Sprint(val) == fmt.Sprint(want)
	case "any_of":
		list, ok := want.([]any)
		if !ok {
			return false
		}
		for _, w := range list {
			if fmt.Sprint(val) == fmt.Sprint(w) {
				return true
			}
		}
		return false
	case "gte", "lte", "gt", "lt":
		vt, vok := val.(time.Time)
		wt, wok := want.(time.Time)
		if !vok || !wok {
			return false
		}
		switch op {
		case "gte":
			return !vt.Before(wt)
		case "lte":
			return !vt.After(wt)
		case "gt":
			return vt.After(wt)
		default:
			return vt.Before(wt)
		}
	default:
		return false
	}
}

func (s *Store) NodeCount(_ context.Context) (int64, error) {
	var count int64
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte{prefixNode}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, memerr.Wrap(memerr.KindDatabase, "badgerstore.NodeCount", fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	return count, nil
}

func (s *Store) Healthy(_ context.Context) bool {
	return s.db != nil
}

// --- edge tables & traversal --------------------------------------------

func edgeTableName(sourceType, predicate, targetType string) string {
	return strings.ToUpper(sourceType) + "_" + strings.ToUpper(predicate) + "_" + strings.ToUpper(targetType)
}

func (s *Store) EnsureEdgeTable(_ context.Context, sourceType, predicate, targetType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edgeTables[edgeTableName(sourceType, predicate, targetType)] = true
	return nil
}

// AddEdge idempotently creates an edge row plus its two adjacency index
// entries. Re-adding an identical (table, from, to) pair overwrites the
// same keys, so it is a no-op for all but the property payload.
func (s *Store) AddEdge(_ context.Context, sourceType, targetType, predicate, fromID, toID string, props map[string]any) error {
	table := edgeTableName(sourceType, predicate, targetType)
	data, err := json.Marshal(props)
	if err != nil {
		return memerr.Wrap(memerr.KindDatabase, "badgerstore.AddEdge", fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(edgeKey(table, fromID, toID), data); err != nil {
			return err
		}
		if err := txn.Set(outKey(fromID, table, toID), nil); err != nil {
			return err
		}
		return txn.Set(inKey(toID, table, fromID), nil)
	})
	if err != nil {
		return memerr.Wrap(memerr.KindDatabase, "badgerstore.AddEdge", fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	return nil
}

// DeleteEdge idempotently removes an edge; absence of any of the three
// keys is not an error.
func (s *Store) DeleteEdge(_ context.Context, sourceType, targetType, predicate, fromID, toID string) error {
	table := edgeTableName(sourceType, predicate, targetType)
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, k := range [][]byte{edgeKey(table, fromID, toID), outKey(fromID, table, toID), inKey(toID, table, fromID)} {
			if err := txn.Delete(k); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return memerr.Wrap(memerr.KindDatabase, "badgerstore.DeleteEdge", fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	return nil
}

// Neighbors walks the out/in adjacency indexes of nodeID, optionally
// restricted to predicates, direction, and neighborType, capped at limit.
func (s *Store) Neighbors(ctx context.Context, nodeType, nodeID string, predicates []string, direction graphstore.Direction, neighborType string, limit int) ([]graphstore.Neighbor, error) {
	_ = nodeType
	wantPreds := map[string]bool{}
	for _, p := range predicates {
		wantPreds[strings.ToUpper(p)] = true
	}

	type edge struct {
		table string
		other string
		in    bool
	}
	var edges []edge

	err := s.db.View(func(txn *badger.Txn) error {
		if direction == graphstore.DirOut || direction == graphstore.DirAny {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			prefix := outPrefix(nodeID)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				parts := strings.Split(string(it.Item().Key()[2:]), string(sep))
				if len(parts) != 3 {
					continue
				}
				edges = append(edges, edge{table: parts[1], other: parts[2]})
			}
			it.Close()
		}
		if direction == graphstore.DirIn || direction == graphstore.DirAny {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			prefix := inPrefix(nodeID)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				parts := strings.Split(string(it.Item().Key()[2:]), string(sep))
				if len(parts) != 3 {
					continue
				}
				edges = append(edges, edge{table: parts[1], other: parts[2], in: true})
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindDatabase, "badgerstore.Neighbors", fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}

	var out []graphstore.Neighbor
	seen := map[string]bool{}
	for _, e := range edges {
		key := e.table + "|" + e.other
		if seen[key] {
			continue
		}
		seen[key] = true

		predicate, targetType, ok := splitEdgeTable(e.table)
		if !ok {
			continue
		}
		if len(wantPreds) > 0 && !wantPreds[predicate] {
			continue
		}
		// An in-edge's other end is the table's source type.
		otherType := targetType
		if e.in {
			otherType = strings.SplitN(e.table, "_", 2)[0]
		}
		if neighborType != "" && !strings.EqualFold(otherType, neighborType) {
			continue
		}
		node, found, err := s.GetNode(ctx, otherType, e.other)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		out = append(out, graphstore.Neighbor{Node: node, RelationType: strings.ToLower(predicate)})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// splitEdgeTable recovers (predicate, targetType) from a
// SOURCE_PREDICATE_TARGET table name. Source/target type names never
// contain underscores in this schema, so the predicate is whatever
// remains between the first and last segment.
func splitEdgeTable(table string) (predicate, targetType string, ok bool) {
	parts := strings.Split(table, "_")
	if len(parts) < 3 {
		return "", "", false
	}
	targetType = parts[len(parts)-1]
	predicate = strings.Join(parts[1:len(parts)-1], "_")
	return predicate, targetType, true
}

// --- parametric query execution ------------------------------------------

// Query executes the small MATCH/WHERE/RETURN/LIMIT language defined in
// query.go against the node table named by the parsed pattern, returning
// each matching node's properties as a plain row map.
func (s *Store) Query(ctx context.Context, text string, params map[string]any) ([]map[string]any, error) {
	parsed, err := graphstore.ParseQuery(text, params)
	if err != nil {
		return nil, err
	}

	filters := make([]graphstore.Filter, 0, len(parsed.Where))
	for _, c := range parsed.Where {
		op := map[string]string{"=": "eq", ">=": "gte", "<=": "lte", ">": "gt", "<": "lt"}[c.Op]
		if op == "" {
			op = c.Op
		}
		filters = append(filters, graphstore.Filter{Field: c.Field, Op: op, Value: c.Value})
	}

	nodes, err := s.ListNodes(ctx, parsed.NodeType, filters, parsed.Limit, 0)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		row := make(map[string]any, len(n.Properties)+4)
		for k, v := range n.Properties {
			row[k] = v
		}
		row["id"] = n.ID
		row["type"] = n.Type
		row["user_id"] = n.UserID
		row["created_at"] = n.CreatedAt
		row["updated_at"] = n.UpdatedAt
		rows = append(rows, row)
	}
	return rows, nil
}

// --- hrid.Store implementation -------------------------------------------
//
// The hrid<->id mapping is persisted as plain key/value pairs rather
// than node properties proper, but lives in the same BadgerDB instance
// as the graph tables so a restart recovers both together.

// MaxCounter scans the forward hrid index for userID/memType and
// returns the highest (alphaIndex, numeric) pair seen, for allocator
// recovery after a restart.
func (s *Store) MaxCounter(_ context.Context, userID, memType string) (int, int, bool, error) {
	prefix := hridFwdPrefix(userID)
	typePrefix := strings.ToUpper(memType) + "_"

	var bestAlpha, bestNumeric int
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			parts := bytes.SplitN(it.Item().Key()[2:], []byte{sep}, 2)
			if len(parts) != 2 {
				continue
			}
			h := string(parts[1])
			if !strings.HasPrefix(h, typePrefix) {
				continue
			}
			_, alphaStr, numeric, err := graphstoreParseHRID(h)
			if err != nil {
				continue
			}
			alphaIndex := 0
			for _, r := range alphaStr {
				alphaIndex = alphaIndex*26 + int(r-'A')
			}
			if !found || alphaIndex > bestAlpha || (alphaIndex == bestAlpha && numeric > bestNumeric) {
				bestAlpha, bestNumeric = alphaIndex, numeric
				found = true
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	return bestAlpha, bestNumeric, found, nil
}

func (s *Store) PutMapping(_ context.Context, userID, hrid, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(hridFwdKey(userID, hrid), []byte(id)); err != nil {
			return err
		}
		return txn.Set(hridBackKey(userID, id), []byte(hrid))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	return nil
}

func (s *Store) DeleteMapping(_ context.Context, userID, hrid string) error {
	id, found, err := s.ResolveID(context.Background(), userID, hrid)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(hridFwdKey(userID, hrid)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if found {
			if err := txn.Delete(hridBackKey(userID, id)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	return nil
}

func (s *Store) ResolveID(_ context.Context, userID, hrid string) (string, bool, error) {
	var id string
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(hridFwdKey(userID, hrid))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			found = true
			return nil
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	return id, found, nil
}

func (s *Store) ResolveHRID(_ context.Context, userID, id string) (string, bool, error) {
	var h string
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(hridBackKey(userID, id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			h = string(val)
			found = true
			return nil
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	return h, found, nil
}

// graphstoreParseHRID is a tiny local copy of hrid.Parse's pattern match,
// so this package does not import pkg/hrid.
func graphstoreParseHRID(h string) (memType, alpha string, numeric int, err error) {
	idx := strings.LastIndex(h, "_")
	if idx < 0 || len(h)-idx-1 != 6 {
		return "", "", 0, fmt.Errorf("malformed hrid %q", h)
	}
	suffix := h[idx+1:]
	alpha = suffix[:3]
	for _, r := range alpha {
		if r < 'A' || r > 'Z' {
			return "", "", 0, fmt.Errorf("malformed hrid %q", h)
		}
	}
	var num int
	if _, err := fmt.Sscanf(suffix[3:], "%03d", &num); err != nil {
		return "", "", 0, fmt.Errorf("malformed hrid %q", h)
	}
	return h[:idx], alpha, num, nil
}

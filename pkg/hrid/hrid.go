// Package hrid allocates and resolves human-readable ids of the form
// TYPE_AAA000. Counters are process-local under a single-writer model:
// the allocator lazily recovers its high-water mark from a persistence
// hook on first use per (user, type) rather than owning durable storage
// itself, since the hrid<->id mapping is meant to live alongside graph
// node properties.
//
// Grounded on github.com/orneryd/nornicdb's pkg/storage: NodeID/EdgeID
// as distinct string types, and the per-resource mutex pattern in
// pkg/storage/schema.go's SchemaManager.
package hrid

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/memg/memg-core/pkg/memerr"
)

const (
	alphaLen    = 3
	numericLen  = 3
	numericMax  = 999
	alphaBase   = 26
	maxPerAlpha = numericMax + 1
)

var hridPattern = regexp.MustCompile(`^([A-Z0-9_]+)_([A-Z]{3})([0-9]{3})$`)

// Store persists the hrid<->id mapping and lets the allocator recover
// its counters after a restart. pkg/graphstore/badgerstore provides
// one, persisting the mapping as key/value pairs in its Badger instance.
type Store interface {
	MaxCounter(ctx context.Context, userID, memType string) (alphaIndex, numeric int, found bool, err error)
	PutMapping(ctx context.Context, userID, hrid, id string) error
	DeleteMapping(ctx context.Context, userID, hrid string) error
	ResolveID(ctx context.Context, userID, hrid string) (id string, found bool, err error)
	ResolveHRID(ctx context.Context, userID, id string) (hrid string, found bool, err error)
}

// counterKey scopes a counter to one (user, type) pair.
type counterKey struct {
	userID  string
	memType string
}

type counter struct {
	alphaIndex int // 0-based, A=0
	numeric    int // next numeric to issue, 0-based
	recovered  bool
}

// Allocator issues and resolves HRIDs. Safe for concurrent use; each
// (user, type) pair is guarded by its own critical section so
// concurrent allocators never hand out duplicates.
type Allocator struct {
	store Store

	mu       sync.Mutex // guards counters map and per-key locks map
	counters map[counterKey]*counter
	locks    map[counterKey]*sync.Mutex
}

// New creates an Allocator backed by store for recovery and mapping
// persistence.
func New(store Store) *Allocator {
	return &Allocator{
		store:    store,
		counters: map[counterKey]*counter{},
		locks:    map[counterKey]*sync.Mutex{},
	}
}

func (a *Allocator) keyLock(key counterKey) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[key]
	if !ok {
		l = &sync.Mutex{}
		a.locks[key] = l
	}
	return l
}

// Next allocates and persists the next HRID for (memType, userID).
func (a *Allocator) Next(ctx context.Context, memType, userID string) (string, error) {
	memType = strings.ToLower(strings.TrimSpace(memType))
	key := counterKey{userID: userID, memType: memType}

	lock := a.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	a.mu.Lock()
	c, ok := a.counters[key]
	if !ok {
		c = &counter{}
		a.counters[key] = c
	}
	a.mu.Unlock()

	if !c.recovered {
		if alpha, num, found, err := a.store.MaxCounter(ctx, userID, memType); err != nil {
			return "", memerr.Wrap(memerr.KindDatabase, "hrid.Next",
				fmt.Errorf("recovering counter for %s/%s: %w: %v", userID, memType, memerr.ErrDatabase, err))
		} else if found {
			c.alphaIndex = alpha
			c.numeric = num + 1
			if c.numeric > numericMax {
				c.numeric = 0
				c.alphaIndex++
			}
		}
		c.recovered = true
	}

	if c.alphaIndex >= pow(alphaBase, alphaLen) {
		return "", memerr.Wrap(memerr.KindResourceExhausted, "hrid.Next",
			fmt.Errorf("hrid space exhausted for user=%s type=%s: %w", userID, memType, memerr.ErrResourceExhausted))
	}

	alpha := encodeAlpha(c.alphaIndex)
	numeric := c.numeric

	c.numeric++
	if c.numeric > numericMax {
		c.numeric = 0
		c.alphaIndex++
	}

	return fmt.Sprintf("%s_%s%03d", strings.ToUpper(memType), alpha, numeric), nil
}

// Assign records an explicit hrid<->id binding, for restoring a memory
// whose hrid was already allocated (e.g. replaying from the graph).
func (a *Allocator) Assign(ctx context.Context, hrid, id, userID string) error {
	if err := a.store.PutMapping(ctx, userID, hrid, id); err != nil {
		return memerr.Wrap(memerr.KindDatabase, "hrid.Assign",
			fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	return nil
}

// Resolve maps an hrid to its internal id within a user scope.
func (a *Allocator) Resolve(ctx context.Context, hrid, userID string) (string, error) {
	id, found, err := a.store.ResolveID(ctx, userID, hrid)
	if err != nil {
		return "", memerr.Wrap(memerr.KindDatabase, "hrid.Resolve",
			fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	if !found {
		return "", memerr.Wrap(memerr.KindNotFound, "hrid.Resolve",
			fmt.Errorf("hrid %q not found for user %q: %w", hrid, userID, memerr.ErrNotFound))
	}
	return id, nil
}

// ResolveHRID is the inverse lookup: internal id -> hrid.
func (a *Allocator) ResolveHRID(ctx context.Context, id, userID string) (string, error) {
	h, found, err := a.store.ResolveHRID(ctx, userID, id)
	if err != nil {
		return "", memerr.Wrap(memerr.KindDatabase, "hrid.ResolveHRID",
			fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	if !found {
		return "", memerr.Wrap(memerr.KindNotFound, "hrid.ResolveHRID",
			fmt.Errorf("id %q not found for user %q: %w", id, userID, memerr.ErrNotFound))
	}
	return h, nil
}

// Forget removes an hrid<->id binding. Idempotent: forgetting an
// already-absent hrid is not an error.
func (a *Allocator) Forget(ctx context.Context, hrid, userID string) error {
	if err := a.store.DeleteMapping(ctx, userID, hrid); err != nil {
		return memerr.Wrap(memerr.KindDatabase, "hrid.Forget",
			fmt.Errorf("%w: %v", memerr.ErrDatabase, err))
	}
	return nil
}

// Parse splits an HRID into (type, alpha, numeric). TYPE is returned
// uppercased.
func Parse(h string) (memType, alpha string, numeric int, err error) {
	m := hridPattern.FindStringSubmatch(h)
	if m == nil {
		return "", "", 0, memerr.Wrap(memerr.KindInvalidInput, "hrid.Parse",
			fmt.Errorf("malformed hrid %q: %w", h, memerr.ErrInvalidInput))
	}
	var num int
	_, err = fmt.Sscanf(m[3], "%03d", &num)
	if err != nil {
		return "", "", 0, memerr.Wrap(memerr.KindInvalidInput, "hrid.Parse",
			fmt.Errorf("malformed numeric suffix in %q: %w", h, memerr.ErrInvalidInput))
	}
	return m[1], m[2], num, nil
}

// ToIndex computes the deterministic cross-type ordering key from
// up to 8 type-name characters encoded base-37 (A-Z=1..26, 0-9=27..36)
// as the high bits, and alpha_index*1000+numeric as the low bits.
func ToIndex(h string) (uint64, error) {
	memType, alpha, numeric, err := Parse(h)
	if err != nil {
		return 0, err
	}
	alphaIndex := decodeAlpha(alpha)
	low := uint64(alphaIndex)*1000 + uint64(numeric)

	high := uint64(0)
	typeRunes := []rune(memType)
	if len(typeRunes) > 8 {
		typeRunes = typeRunes[:8]
	}
	for _, r := range typeRunes {
		high = high*37 + uint64(base37Digit(r))
	}

	// Low bits get a fixed 32-bit field so high-bit type encoding never
	// collides with the (alpha,numeric) range (max low value
	// (26^3-1)*1000+999 = 17575999, well under 2^32).
	return high<<32 | low, nil
}

func base37Digit(r rune) uint64 {
	switch {
	case r >= 'A' && r <= 'Z':
		return uint64(r-'A') + 1
	case r >= '0' && r <= '9':
		return uint64(r-'0') + 27
	default:
		return 0
	}
}

func encodeAlpha(index int) string {
	digits := make([]byte, alphaLen)
	for i := alphaLen - 1; i >= 0; i-- {
		digits[i] = byte('A' + index%alphaBase)
		index /= alphaBase
	}
	return string(digits)
}

func decodeAlpha(alpha string) int {
	index := 0
	for _, r := range alpha {
		index = index*alphaBase + int(r-'A')
	}
	return index
}

func pow(base, exp int) int {
	result := 1
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

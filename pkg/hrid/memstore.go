package hrid

import (
	"context"
	"sync"
)

// MemStore is an in-process Store, useful for tests and for the
// in-memory vector/graph reference stack (pkg/vectorstore/memstore,
// badgerstore.OpenInMemory) that doesn't need cross-restart recovery.
type MemStore struct {
	mu       sync.RWMutex
	idByHRID map[string]string // userID|hrid -> id
	hridByID map[string]string // userID|id -> hrid
	maxAlpha map[counterKey]int
	maxNum   map[counterKey]int
}

// NewMemStore returns an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{
		idByHRID: map[string]string{},
		hridByID: map[string]string{},
		maxAlpha: map[counterKey]int{},
		maxNum:   map[counterKey]int{},
	}
}

func scopeKey(userID, s string) string { return userID + "|" + s }

func (m *MemStore) MaxCounter(_ context.Context, userID, memType string) (int, int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := counterKey{userID: userID, memType: memType}
	alpha, ok := m.maxAlpha[key]
	if !ok {
		return 0, 0, false, nil
	}
	return alpha, m.maxNum[key], true, nil
}

func (m *MemStore) PutMapping(_ context.Context, userID, hrid, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idByHRID[scopeKey(userID, hrid)] = id
	m.hridByID[scopeKey(userID, id)] = hrid

	memType, alpha, numeric, err := Parse(hrid)
	if err == nil {
		key := counterKey{userID: userID, memType: lower(memType)}
		alphaIdx := decodeAlpha(alpha)
		if cur, ok := m.maxAlpha[key]; !ok || alphaIdx > cur || (alphaIdx == cur && numeric > m.maxNum[key]) {
			m.maxAlpha[key] = alphaIdx
			m.maxNum[key] = numeric
		}
	}
	return nil
}

func (m *MemStore) DeleteMapping(_ context.Context, userID, hrid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.idByHRID[scopeKey(userID, hrid)]
	if !ok {
		return nil
	}
	delete(m.idByHRID, scopeKey(userID, hrid))
	delete(m.hridByID, scopeKey(userID, id))
	return nil
}

func (m *MemStore) ResolveID(_ context.Context, userID, hrid string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.idByHRID[scopeKey(userID, hrid)]
	return id, ok, nil
}

func (m *MemStore) ResolveHRID(_ context.Context, userID, id string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hridByID[scopeKey(userID, id)]
	return h, ok, nil
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

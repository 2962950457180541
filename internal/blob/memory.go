// ABOUTME: In-memory blob store for tests
// ABOUTME: Map-backed implementation of the Store interface with optional failure injection

package blob

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemStore is a map-backed Store used by tests. Safe for concurrent use.
type MemStore struct {
	mu      sync.Mutex
	objects map[Kind]map[string]memObject

	// PutErr, when set, is returned by every Put. Lets tests exercise
	// upstream failure handling.
	PutErr error
	// DeleteErr, when set, is returned by every Delete.
	DeleteErr error
}

type memObject struct {
	data        []byte
	contentType string
}

// NewMemStore creates an empty in-memory blob store.
func NewMemStore() *MemStore {
	return &MemStore{
		objects: map[Kind]map[string]memObject{
			KindImage: {},
			KindFile:  {},
		},
	}
}

func (m *MemStore) Put(_ context.Context, kind Kind, key string, data []byte, contentType string) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[kind][key] = memObject{data: buf, contentType: contentType}
	return nil
}

func (m *MemStore) SignedGetURL(_ context.Context, kind Kind, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[kind][key]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Sprintf("https://blobs.invalid/%s/%s?signed=1", kind, key), nil
}

func (m *MemStore) List(_ context.Context, kind Kind, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.objects[kind] {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemStore) Delete(_ context.Context, kind Kind, keys []string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.objects[kind], key)
	}
	return nil
}

// Get returns a stored object's bytes, for test assertions.
func (m *MemStore) Get(kind Kind, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[kind][key]
	if !ok {
		return nil, false
	}
	return obj.data, true
}

// Len returns the number of stored objects of a kind, for test assertions.
func (m *MemStore) Len(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects[kind])
}

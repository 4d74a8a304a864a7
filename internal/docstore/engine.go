package docstore

import (
	"bytes"
	"errors"
	"sort"
	"sync"
)

// ErrKeyNotFound is returned by Engine.Get for a missing key.
var ErrKeyNotFound = errors.New("docstore: key not found")

// Mutation is a single write applied as part of an atomic Engine.Apply.
type Mutation struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Engine abstracts the key/value backend under the document store.
// Apply must be all-or-nothing.
type Engine interface {
	Get(key []byte) ([]byte, error)
	Scan(prefix []byte, fn func(key, value []byte) error) error
	Apply(muts []Mutation) error
	Close() error
}

// MemoryEngine is a thread-safe map engine. Scan visits keys in byte order.
type MemoryEngine struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{data: make(map[string][]byte)}
}

func (m *MemoryEngine) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryEngine) Scan(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	vals := make([][]byte, len(keys))
	for i, k := range keys {
		vals[i] = append([]byte(nil), m.data[k]...)
	}
	m.mu.RUnlock()

	for i, k := range keys {
		if err := fn([]byte(k), vals[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryEngine) Apply(muts []Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mu := range muts {
		if mu.Delete {
			delete(m.data, string(mu.Key))
			continue
		}
		m.data[string(mu.Key)] = append([]byte(nil), mu.Value...)
	}
	return nil
}

func (m *MemoryEngine) Close() error { return nil }

// prefixUpperBound returns the smallest key greater than every key with the prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

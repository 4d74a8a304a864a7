// Package docstore is a small document store over a pluggable key/value
// engine: collections of JSON documents with equality queries, single-field
// ordering gated by declared composite indexes, cursors and bounded atomic
// batch writes.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultMaxBatchSize mirrors the provider limit on documents per atomic commit.
const DefaultMaxBatchSize = 500

var (
	ErrNotFound      = errors.New("docstore: document not found")
	ErrBatchTooLarge = errors.New("docstore: batch exceeds maximum size")
	ErrInvalidID     = errors.New("docstore: invalid document id")
)

// Fields is the body of a document as decoded from JSON.
type Fields map[string]any

// Document is a stored document with its id.
type Document struct {
	ID     string
	Fields Fields
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	b, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", d.ID, err)
	}
	return nil
}

// Encode converts v into document fields through its JSON form.
func Encode(v any) (Fields, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	var f Fields
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return f, nil
}

// Index declares a composite index: equality filters on Fields ordered by OrderBy.
type Index struct {
	Fields  []string
	OrderBy string
}

func (i Index) key() string {
	fs := append([]string(nil), i.Fields...)
	sort.Strings(fs)
	return strings.Join(fs, ",") + "|" + i.OrderBy
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the server timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMaxBatchSize overrides DefaultMaxBatchSize.
func WithMaxBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

// Store owns the engine, the declared indexes and the server clock.
type Store struct {
	engine   Engine
	now      func() time.Time
	maxBatch int

	mu      sync.RWMutex
	indexes map[string]map[string]struct{}
}

func New(engine Engine, opts ...Option) *Store {
	s := &Store{
		engine:   engine,
		now:      func() time.Time { return time.Now().UTC() },
		maxBatch: DefaultMaxBatchSize,
		indexes:  make(map[string]map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Close() error { return s.engine.Close() }

// Now returns a server-assigned timestamp.
func (s *Store) Now() time.Time { return s.now() }

func (s *Store) MaxBatchSize() int { return s.maxBatch }

// DeclareIndex registers a composite index for a collection.
func (s *Store) DeclareIndex(collection string, idx Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.indexes[collection]
	if !ok {
		m = make(map[string]struct{})
		s.indexes[collection] = m
	}
	m[idx.key()] = struct{}{}
}

func (s *Store) hasIndex(collection string, idx Index) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indexes[collection][idx.key()]
	return ok
}

// Collection returns a handle on a named collection.
func (s *Store) Collection(name string) *Collection {
	return &Collection{store: s, name: name}
}

func docKey(collection, id string) []byte {
	return []byte(collection + "/" + id)
}

func collectionPrefix(collection string) []byte {
	return []byte(collection + "/")
}

func validID(id string) bool {
	return id != "" && !strings.Contains(id, "/")
}

func encodeFields(f Fields) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return b, nil
}

func decodeFields(b []byte) (Fields, error) {
	var f Fields
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return f, nil
}

// WriteBatch accumulates writes committed atomically by Commit.
type WriteBatch struct {
	store *Store
	muts  []Mutation
	err   error
}

func (s *Store) Batch() *WriteBatch {
	return &WriteBatch{store: s}
}

// Set queues a full document write. Errors surface at Commit.
func (b *WriteBatch) Set(collection, id string, f Fields) *WriteBatch {
	if b.err != nil {
		return b
	}
	if !validID(id) {
		b.err = fmt.Errorf("%w: %q", ErrInvalidID, id)
		return b
	}
	v, err := encodeFields(f)
	if err != nil {
		b.err = err
		return b
	}
	b.muts = append(b.muts, Mutation{Key: docKey(collection, id), Value: v})
	return b
}

// Delete queues a document removal.
func (b *WriteBatch) Delete(collection, id string) *WriteBatch {
	if b.err != nil {
		return b
	}
	b.muts = append(b.muts, Mutation{Key: docKey(collection, id), Delete: true})
	return b
}

func (b *WriteBatch) Len() int { return len(b.muts) }

// Commit applies every queued write or none of them.
func (b *WriteBatch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if len(b.muts) > b.store.maxBatch {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(b.muts), b.store.maxBatch)
	}
	if len(b.muts) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.store.engine.Apply(b.muts)
}

package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Collection is a named set of documents within a Store.
type Collection struct {
	store *Store
	name  string
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) Get(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if !validID(id) {
		return Document{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	v, err := c.store.engine.Get(docKey(c.name, id))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return Document{}, fmt.Errorf("%w: %s/%s", ErrNotFound, c.name, id)
		}
		return Document{}, fmt.Errorf("get %s/%s: %w", c.name, id, err)
	}
	f, err := decodeFields(v)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Fields: f}, nil
}

// Add stores a new document under a generated id.
func (c *Collection) Add(ctx context.Context, f Fields) (string, error) {
	id := uuid.NewString()
	if err := c.Set(ctx, id, f); err != nil {
		return "", err
	}
	return id, nil
}

// Set creates or replaces the document with the given id.
func (c *Collection) Set(ctx context.Context, id string, f Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	v, err := encodeFields(f)
	if err != nil {
		return err
	}
	if err := c.store.engine.Apply([]Mutation{{Key: docKey(c.name, id), Value: v}}); err != nil {
		return fmt.Errorf("set %s/%s: %w", c.name, id, err)
	}
	return nil
}

// Update merges top-level fields into an existing document.
func (c *Collection) Update(ctx context.Context, id string, patch Fields) (Document, error) {
	doc, err := c.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	for k, v := range patch {
		doc.Fields[k] = v
	}
	v, err := encodeFields(doc.Fields)
	if err != nil {
		return Document{}, err
	}
	if err := c.store.engine.Apply([]Mutation{{Key: docKey(c.name, id), Value: v}}); err != nil {
		return Document{}, fmt.Errorf("update %s/%s: %w", c.name, id, err)
	}
	// re-decode so patched values read back like stored ones
	if doc.Fields, err = decodeFields(v); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (c *Collection) Delete(ctx context.Context, id string) error {
	if _, err := c.Get(ctx, id); err != nil {
		return err
	}
	if err := c.store.engine.Apply([]Mutation{{Key: docKey(c.name, id), Delete: true}}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", c.name, id, err)
	}
	return nil
}

// Stream visits every document of the collection in id order.
func (c *Collection) Stream(ctx context.Context, fn func(Document) error) error {
	prefix := collectionPrefix(c.name)
	return c.store.engine.Scan(prefix, func(k, v []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := decodeFields(v)
		if err != nil {
			return err
		}
		return fn(Document{ID: string(k[len(prefix):]), Fields: f})
	})
}

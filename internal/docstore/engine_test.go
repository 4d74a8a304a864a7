package docstore

import (
	"errors"
	"testing"
)

func engines(t *testing.T) map[string]Engine {
	t.Helper()
	pe, err := NewPebbleEngine(t.TempDir())
	if err != nil {
		t.Fatalf("pebble open: %v", err)
	}
	t.Cleanup(func() { _ = pe.Close() })
	be, err := NewBadgerEngine(t.TempDir())
	if err != nil {
		t.Fatalf("badger open: %v", err)
	}
	t.Cleanup(func() { _ = be.Close() })
	return map[string]Engine{
		"memory": NewMemoryEngine(),
		"pebble": pe,
		"badger": be,
	}
}

func TestEngines_ApplyGetScan(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			err := e.Apply([]Mutation{
				{Key: []byte("products/b"), Value: []byte(`{"n":2}`)},
				{Key: []byte("products/a"), Value: []byte(`{"n":1}`)},
				{Key: []byte("productsx/z"), Value: []byte(`{}`)},
				{Key: []byte("orders/a"), Value: []byte(`{}`)},
			})
			if err != nil {
				t.Fatalf("apply: %v", err)
			}

			v, err := e.Get([]byte("products/a"))
			if err != nil || string(v) != `{"n":1}` {
				t.Fatalf("get a: %q %v", v, err)
			}
			if _, err := e.Get([]byte("products/missing")); !errors.Is(err, ErrKeyNotFound) {
				t.Fatalf("want ErrKeyNotFound, got %v", err)
			}

			var keys []string
			if err := e.Scan([]byte("products/"), func(k, _ []byte) error {
				keys = append(keys, string(k))
				return nil
			}); err != nil {
				t.Fatalf("scan: %v", err)
			}
			if len(keys) != 2 || keys[0] != "products/a" || keys[1] != "products/b" {
				t.Fatalf("scan keys=%v", keys)
			}

			if err := e.Apply([]Mutation{{Key: []byte("products/a"), Delete: true}}); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := e.Get([]byte("products/a")); !errors.Is(err, ErrKeyNotFound) {
				t.Fatalf("deleted key still readable: %v", err)
			}
		})
	}
}

func TestPrefixUpperBound(t *testing.T) {
	if got := string(prefixUpperBound([]byte("products/"))); got != "products0" {
		t.Fatalf("upper bound=%q", got)
	}
	if got := prefixUpperBound([]byte{0xff, 0xff}); got != nil {
		t.Fatalf("all-0xff prefix should be unbounded, got %v", got)
	}
}

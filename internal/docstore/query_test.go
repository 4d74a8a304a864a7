package docstore

import (
	"context"
	"errors"
	"testing"
)

func seedQueryStore(t *testing.T) *Collection {
	t.Helper()
	ctx := context.Background()
	c := newTestStore().Collection("products")
	docs := map[string]Fields{
		"p1": {"category": "silk", "price": 300, "featured": true, "inStock": 2, "createdAt": "2024-01-02T00:00:00Z"},
		"p2": {"category": "silk", "price": 100, "featured": false, "inStock": 0, "createdAt": "2024-01-10T00:00:00.5Z"},
		"p3": {"category": "silk", "price": 200, "featured": true, "inStock": 5, "createdAt": "2024-01-03T00:00:00Z"},
		"p4": {"category": "cotton", "price": 50, "featured": true, "inStock": 1, "createdAt": "2024-01-01T00:00:00Z"},
	}
	for id, f := range docs {
		if err := c.Set(ctx, id, f); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return c
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func equalIDs(a []string, b ...string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestQuery_FiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	c := seedQueryStore(t)

	cases := []struct {
		name string
		q    Query
		want []string
	}{
		{"equality", Query{Filters: []Filter{{"category", OpEqual, "silk"}}}, []string{"p1", "p2", "p3"}},
		{"two equalities", Query{Filters: []Filter{{"category", OpEqual, "silk"}, {"featured", OpEqual, true}}}, []string{"p1", "p3"}},
		{"greater than int", Query{Filters: []Filter{{"inStock", OpGreaterThan, 0}}}, []string{"p1", "p3", "p4"}},
		{"order asc", Query{OrderBy: "price"}, []string{"p4", "p2", "p3", "p1"}},
		{"order desc limit", Query{OrderBy: "price", Direction: Desc, Limit: 2}, []string{"p1", "p3"}},
		{"timestamps", Query{OrderBy: "createdAt", Direction: Desc}, []string{"p2", "p3", "p1", "p4"}},
		{"order on filtered field", Query{Filters: []Filter{{"price", OpGreaterThan, 100}}, OrderBy: "price"}, []string{"p3", "p1"}},
		{"no match", Query{Filters: []Filter{{"category", OpEqual, "linen"}}}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := c.Query(ctx, tc.q)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if got := ids(res.Docs); !equalIDs(got, tc.want...) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestQuery_IndexUnavailable(t *testing.T) {
	ctx := context.Background()
	c := seedQueryStore(t)
	q := Query{Filters: []Filter{{"featured", OpEqual, true}}, OrderBy: "price"}

	_, err := c.Query(ctx, q)
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("want ErrIndexUnavailable, got %v", err)
	}
	var qe *QueryError
	if !errors.As(err, &qe) || qe.Kind != IndexUnavailable || qe.Index.OrderBy != "price" {
		t.Fatalf("unexpected error shape: %#v", err)
	}

	c.store.DeclareIndex("products", Index{Fields: []string{"featured"}, OrderBy: "price"})
	res, err := c.Query(ctx, q)
	if err != nil {
		t.Fatalf("query with index: %v", err)
	}
	if got := ids(res.Docs); !equalIDs(got, "p4", "p3", "p1") {
		t.Fatalf("got %v", got)
	}
}

func TestQuery_CursorPagination(t *testing.T) {
	ctx := context.Background()
	c := seedQueryStore(t)

	for _, q := range []Query{
		{OrderBy: "price", Direction: Desc, Limit: 3},
		{Limit: 3},
	} {
		first, err := c.Query(ctx, q)
		if err != nil {
			t.Fatalf("page 1: %v", err)
		}
		q.StartAfter = first.Cursor
		second, err := c.Query(ctx, q)
		if err != nil {
			t.Fatalf("page 2: %v", err)
		}
		all := append(ids(first.Docs), ids(second.Docs)...)
		if len(first.Docs) != 3 || len(second.Docs) != 1 || len(all) != 4 {
			t.Fatalf("pages %v / %v", ids(first.Docs), ids(second.Docs))
		}
		seen := map[string]bool{}
		for _, id := range all {
			if seen[id] {
				t.Fatalf("duplicate across pages: %v", all)
			}
			seen[id] = true
		}
	}
}

func TestQuery_InvalidInput(t *testing.T) {
	ctx := context.Background()
	c := seedQueryStore(t)
	if _, err := c.Query(ctx, Query{StartAfter: "%%%"}); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("want ErrInvalidCursor, got %v", err)
	}
	if _, err := c.Query(ctx, Query{Filters: []Filter{{"price", "<", 1}}}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("want ErrInvalidQuery, got %v", err)
	}
}

func TestCompareValues(t *testing.T) {
	if compareValues(nil, false) >= 0 || compareValues(true, 1.0) >= 0 || compareValues(2.0, "a") >= 0 {
		t.Fatalf("type ranks out of order")
	}
	if compareValues("2024-01-01T00:00:00.5Z", "2024-01-01T00:00:00Z") <= 0 {
		t.Fatalf("timestamps should compare chronologically")
	}
	if compareValues("b", "a") <= 0 {
		t.Fatalf("string compare")
	}
}

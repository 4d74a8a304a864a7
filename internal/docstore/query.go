package docstore

import (
	"cmp"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

type Op string

const (
	OpEqual       Op = "=="
	OpGreaterThan Op = ">"
)

type Direction int

const (
	Asc Direction = iota
	Desc
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents of one collection. StartAfter takes the Cursor of
// a previous Result.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Direction  Direction
	Limit      int
	StartAfter string
}

type Result struct {
	Docs   []Document
	Cursor string
}

var (
	ErrIndexUnavailable = errors.New("docstore: query requires a composite index")
	ErrInvalidCursor    = errors.New("docstore: invalid cursor")
	ErrInvalidQuery     = errors.New("docstore: invalid query")
)

type QueryErrorKind int

const (
	IndexUnavailable QueryErrorKind = iota + 1
	InvalidCursor
	InvalidQuery
)

// QueryError is the typed failure of Collection.Query.
type QueryError struct {
	Kind       QueryErrorKind
	Collection string
	Index      Index
	Err        error
}

func (e *QueryError) Error() string {
	switch e.Kind {
	case IndexUnavailable:
		return fmt.Sprintf("%s: collection %s needs index on [%s] ordered by %s",
			ErrIndexUnavailable, e.Collection, strings.Join(e.Index.Fields, ","), e.Index.OrderBy)
	case InvalidCursor:
		return fmt.Sprintf("%s: %v", ErrInvalidCursor, e.Err)
	default:
		return fmt.Sprintf("%s: %v", ErrInvalidQuery, e.Err)
	}
}

func (e *QueryError) Unwrap() error {
	switch e.Kind {
	case IndexUnavailable:
		return ErrIndexUnavailable
	case InvalidCursor:
		return ErrInvalidCursor
	default:
		return ErrInvalidQuery
	}
}

// requiredIndex reports the composite index a query needs, if any. Filters
// alone, or an order on the only filtered field, are served without one.
func requiredIndex(q Query) (Index, bool) {
	if q.OrderBy == "" || len(q.Filters) == 0 {
		return Index{}, false
	}
	seen := make(map[string]struct{})
	var fields []string
	needs := false
	for _, f := range q.Filters {
		if f.Field != q.OrderBy {
			needs = true
		}
		if _, ok := seen[f.Field]; !ok {
			seen[f.Field] = struct{}{}
			fields = append(fields, f.Field)
		}
	}
	sort.Strings(fields)
	return Index{Fields: fields, OrderBy: q.OrderBy}, needs
}

type cursorPos struct {
	ID    string `json:"id"`
	Value any    `json:"v,omitempty"`
}

func encodeCursor(p cursorPos) string {
	b, _ := json.Marshal(p)
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(s string) (cursorPos, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return cursorPos{}, err
	}
	var p cursorPos
	if err := json.Unmarshal(b, &p); err != nil {
		return cursorPos{}, err
	}
	if p.ID == "" {
		return cursorPos{}, errors.New("empty position")
	}
	return p, nil
}

// Query runs q against the collection.
func (c *Collection) Query(ctx context.Context, q Query) (Result, error) {
	filters := make([]Filter, 0, len(q.Filters))
	for _, f := range q.Filters {
		if f.Field == "" || (f.Op != OpEqual && f.Op != OpGreaterThan) {
			return Result{}, &QueryError{Kind: InvalidQuery, Collection: c.name, Err: fmt.Errorf("filter %q %q", f.Field, f.Op)}
		}
		v, err := normalizeValue(f.Value)
		if err != nil {
			return Result{}, &QueryError{Kind: InvalidQuery, Collection: c.name, Err: err}
		}
		filters = append(filters, Filter{Field: f.Field, Op: f.Op, Value: v})
	}
	if idx, needs := requiredIndex(q); needs && !c.store.hasIndex(c.name, idx) {
		return Result{}, &QueryError{Kind: IndexUnavailable, Collection: c.name, Index: idx}
	}
	var after *cursorPos
	if q.StartAfter != "" {
		p, err := decodeCursor(q.StartAfter)
		if err != nil {
			return Result{}, &QueryError{Kind: InvalidCursor, Collection: c.name, Err: err}
		}
		after = &p
	}

	var docs []Document
	err := c.Stream(ctx, func(d Document) error {
		for _, f := range filters {
			if !matches(d.Fields[f.Field], f) {
				return nil
			}
		}
		docs = append(docs, d)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("query %s: %w", c.name, err)
	}

	order := func(a, b Document) int {
		if q.OrderBy != "" {
			r := compareValues(a.Fields[q.OrderBy], b.Fields[q.OrderBy])
			if q.Direction == Desc {
				r = -r
			}
			if r != 0 {
				return r
			}
		}
		return cmp.Compare(a.ID, b.ID)
	}
	if q.OrderBy != "" {
		slices.SortStableFunc(docs, order)
	}
	if after != nil {
		pivot := Document{ID: after.ID, Fields: Fields{q.OrderBy: after.Value}}
		i := 0
		for i < len(docs) && order(docs[i], pivot) <= 0 {
			i++
		}
		docs = docs[i:]
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}

	res := Result{Docs: docs}
	if n := len(docs); n > 0 {
		last := docs[n-1]
		p := cursorPos{ID: last.ID}
		if q.OrderBy != "" {
			p.Value = last.Fields[q.OrderBy]
		}
		res.Cursor = encodeCursor(p)
	}
	return res, nil
}

func matches(v any, f Filter) bool {
	if typeRank(v) != typeRank(f.Value) {
		return false
	}
	c := compareValues(v, f.Value)
	switch f.Op {
	case OpEqual:
		return c == 0
	case OpGreaterThan:
		return c > 0
	}
	return false
}

// normalizeValue gives Go values the shape they have after a JSON decode.
func normalizeValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

// compareValues orders null < bool < number < string < other. Strings that
// both parse as RFC 3339 timestamps compare chronologically.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		return cmp.Compare(av, b.(float64))
	case string:
		bv := b.(string)
		ta, errA := time.Parse(time.RFC3339Nano, av)
		tb, errB := time.Parse(time.RFC3339Nano, bv)
		if errA == nil && errB == nil {
			return ta.Compare(tb)
		}
		return strings.Compare(av, bv)
	default:
		ja, _ := json.Marshal(a)
		jb, _ := json.Marshal(b)
		return strings.Compare(string(ja), string(jb))
	}
}

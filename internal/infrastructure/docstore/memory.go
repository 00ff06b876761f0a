package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory implementation of Store. It backs
// tests and local development and mirrors driver semantics: create conflicts
// and update-on-missing fail the whole batch, queries exclude documents
// missing the sort field, and returned data is always a copy.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]any),
	}
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// Collection returns a handle on a named collection.
func (s *MemoryStore) Collection(name string) Collection {
	return &memoryCollection{store: s, name: name}
}

// Batch starts an atomic write batch.
func (s *MemoryStore) Batch() Batch {
	return &memoryBatch{store: s}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Len reports the number of documents in a collection. Test helper.
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

type memoryCollection struct {
	store *MemoryStore
	name  string
}

func (c *memoryCollection) Get(ctx context.Context, key string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	data, ok := c.store.collections[c.name][key]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s/%s", ErrNotFound, c.name, key)
	}
	return Document{Key: key, Data: copyData(data)}, nil
}

func (c *memoryCollection) Query() Query {
	return &memoryQuery{coll: c}
}

type filterClause struct {
	field string
	op    string
	value any
}

type inClause struct {
	field  string
	values []any
}

type memoryQuery struct {
	coll       *memoryCollection
	filters    []filterClause
	ins        []inClause
	orderField string
	orderDesc  bool
	cursor     any
	hasCursor  bool
	limit      int
	err        error
}

func (q *memoryQuery) clone() *memoryQuery {
	next := *q
	next.filters = append([]filterClause(nil), q.filters...)
	next.ins = append([]inClause(nil), q.ins...)
	return &next
}

func (q *memoryQuery) Where(field, op string, value any) Query {
	next := q.clone()
	switch op {
	case "==", "<", "<=", ">", ">=":
	default:
		next.err = fmt.Errorf("docstore: unsupported operator %q", op)
	}
	next.filters = append(next.filters, filterClause{field: field, op: op, value: value})
	return next
}

func (q *memoryQuery) WhereIn(field string, values []any) Query {
	next := q.clone()
	if len(values) > MaxKeySetSize {
		next.err = fmt.Errorf("%w: %d values", ErrTooManyKeys, len(values))
	}
	next.ins = append(next.ins, inClause{field: field, values: append([]any(nil), values...)})
	return next
}

func (q *memoryQuery) OrderBy(field string, desc bool) Query {
	next := q.clone()
	next.orderField = field
	next.orderDesc = desc
	return next
}

func (q *memoryQuery) StartAfter(value any) Query {
	next := q.clone()
	next.cursor = value
	next.hasCursor = true
	return next
}

func (q *memoryQuery) Limit(n int) Query {
	next := q.clone()
	next.limit = n
	return next
}

func (q *memoryQuery) GetAll(ctx context.Context) ([]Document, error) {
	if q.err != nil {
		return nil, q.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.coll.store.mu.RLock()
	docs := make([]Document, 0)
	for key, data := range q.coll.store.collections[q.coll.name] {
		if q.matches(data) {
			docs = append(docs, Document{Key: key, Data: copyData(data)})
		}
	}
	q.coll.store.mu.RUnlock()

	q.sortDocs(docs)

	if q.hasCursor {
		docs = q.afterCursor(docs)
	}
	if q.limit > 0 && len(docs) > q.limit {
		docs = docs[:q.limit]
	}
	return docs, nil
}

func (q *memoryQuery) matches(data map[string]any) bool {
	for _, f := range q.filters {
		value, ok := data[f.field]
		if !ok {
			return false
		}
		cmp, comparable := compareValues(value, f.value)
		if !comparable {
			return false
		}
		switch f.op {
		case "==":
			if cmp != 0 {
				return false
			}
		case "<":
			if cmp >= 0 {
				return false
			}
		case "<=":
			if cmp > 0 {
				return false
			}
		case ">":
			if cmp <= 0 {
				return false
			}
		case ">=":
			if cmp < 0 {
				return false
			}
		}
	}
	for _, in := range q.ins {
		value, ok := data[in.field]
		if !ok {
			return false
		}
		found := false
		for _, candidate := range in.values {
			if cmp, comparable := compareValues(value, candidate); comparable && cmp == 0 {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	// Documents missing the sort field are excluded, matching how the
	// hosted store treats ordered queries.
	if q.orderField != "" {
		if _, ok := data[q.orderField]; !ok {
			return false
		}
	}
	return true
}

func (q *memoryQuery) sortKey(d Document) any {
	if q.orderField == "" {
		return d.Key
	}
	return d.Data[q.orderField]
}

func (q *memoryQuery) sortDocs(docs []Document) {
	sort.SliceStable(docs, func(a, b int) bool {
		cmp, ok := compareValues(q.sortKey(docs[a]), q.sortKey(docs[b]))
		if !ok {
			return docs[a].Key < docs[b].Key
		}
		if cmp == 0 {
			return docs[a].Key < docs[b].Key
		}
		if q.orderDesc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func (q *memoryQuery) afterCursor(docs []Document) []Document {
	for i, d := range docs {
		cmp, ok := compareValues(q.sortKey(d), q.cursor)
		if !ok {
			continue
		}
		if (!q.orderDesc && cmp > 0) || (q.orderDesc && cmp < 0) {
			return docs[i:]
		}
	}
	return nil
}

type batchOp struct {
	kind       string // create, set, update, updateIf, delete
	collection string
	key        string
	data       map[string]any
	guardField string
	guardValue any
}

type memoryBatch struct {
	store *MemoryStore
	ops   []batchOp
}

func (b *memoryBatch) Create(collection, key string, data map[string]any) Batch {
	b.ops = append(b.ops, batchOp{kind: "create", collection: collection, key: key, data: copyData(data)})
	return b
}

func (b *memoryBatch) Set(collection, key string, data map[string]any) Batch {
	b.ops = append(b.ops, batchOp{kind: "set", collection: collection, key: key, data: copyData(data)})
	return b
}

func (b *memoryBatch) Update(collection, key string, fields map[string]any) Batch {
	b.ops = append(b.ops, batchOp{kind: "update", collection: collection, key: key, data: copyData(fields)})
	return b
}

func (b *memoryBatch) UpdateIf(collection, key, field string, expected any, fields map[string]any) Batch {
	b.ops = append(b.ops, batchOp{
		kind:       "updateIf",
		collection: collection,
		key:        key,
		data:       copyData(fields),
		guardField: field,
		guardValue: expected,
	})
	return b
}

func (b *memoryBatch) Delete(collection, key string) Batch {
	b.ops = append(b.ops, batchOp{kind: "delete", collection: collection, key: key})
	return b
}

func (b *memoryBatch) Len() int {
	return len(b.ops)
}

func (b *memoryBatch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(b.ops) > MaxBatchWrites {
		return fmt.Errorf("%w: %d writes", ErrBatchTooLarge, len(b.ops))
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	// Validate the whole batch before touching anything so a failed commit
	// applies none of its writes.
	for _, op := range b.ops {
		coll := b.store.collections[op.collection]
		switch op.kind {
		case "create":
			if _, exists := coll[op.key]; exists {
				return fmt.Errorf("%w: %s/%s", ErrAlreadyExists, op.collection, op.key)
			}
		case "update":
			if _, exists := coll[op.key]; !exists {
				return fmt.Errorf("%w: %s/%s", ErrNotFound, op.collection, op.key)
			}
		case "updateIf":
			data, exists := coll[op.key]
			if !exists {
				return fmt.Errorf("%w: %s/%s", ErrNotFound, op.collection, op.key)
			}
			cmp, comparable := compareValues(data[op.guardField], op.guardValue)
			if !comparable || cmp != 0 {
				return fmt.Errorf("%w: %s/%s field %s changed",
					ErrPreconditionFailed, op.collection, op.key, op.guardField)
			}
		}
	}

	for _, op := range b.ops {
		coll, ok := b.store.collections[op.collection]
		if !ok {
			coll = make(map[string]map[string]any)
			b.store.collections[op.collection] = coll
		}
		switch op.kind {
		case "create", "set":
			coll[op.key] = copyData(op.data)
		case "update", "updateIf":
			for field, value := range op.data {
				coll[op.key][field] = value
			}
		case "delete":
			delete(coll, op.key)
		}
	}
	b.ops = nil
	return nil
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch vv := v.(type) {
		case []int64:
			out[k] = append([]int64(nil), vv...)
		case []any:
			out[k] = append([]any(nil), vv...)
		case map[string]any:
			out[k] = copyData(vv)
		default:
			out[k] = v
		}
	}
	return out
}

// compareValues compares two scalar document values. Numeric values compare
// across integer widths; times compare chronologically; strings compare
// lexically with case preserved. Returns false when the values are not
// mutually comparable.
func compareValues(a, b any) (int, bool) {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case ta.Before(tb):
			return -1, true
		case ta.After(tb):
			return 1, true
		default:
			return 0, true
		}
	}

	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}

	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}

	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if ba == bb {
			return 0, true
		}
		if !ba {
			return -1, true
		}
		return 1, true
	}

	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

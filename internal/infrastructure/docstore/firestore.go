package docstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore implements Store on Cloud Firestore. The port's limits are
// Firestore's own: 500 writes per atomic batch, 10 values per "in" filter.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore connects to Firestore for the given project.
func NewFirestoreStore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("connect to firestore: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

// Ensure FirestoreStore implements Store
var _ Store = (*FirestoreStore)(nil)

// Collection returns a handle on a named collection.
func (s *FirestoreStore) Collection(name string) Collection {
	return &firestoreCollection{store: s, name: name}
}

// Batch starts an atomic write batch.
func (s *FirestoreStore) Batch() Batch {
	return &firestoreBatch{store: s}
}

// Close releases the underlying client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

type firestoreCollection struct {
	store *FirestoreStore
	name  string
}

func (c *firestoreCollection) Get(ctx context.Context, key string) (Document, error) {
	snap, err := c.store.client.Collection(c.name).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Document{}, fmt.Errorf("%w: %s/%s", ErrNotFound, c.name, key)
		}
		return Document{}, fmt.Errorf("get %s/%s: %w", c.name, key, err)
	}
	return Document{Key: snap.Ref.ID, Data: snap.Data()}, nil
}

func (c *firestoreCollection) Query() Query {
	return &firestoreQuery{
		coll:  c,
		query: c.store.client.Collection(c.name).Query,
	}
}

type firestoreQuery struct {
	coll       *firestoreCollection
	query      firestore.Query
	orderField string
	ordered    bool
	cursor     any
	hasCursor  bool
	err        error
}

func (q *firestoreQuery) clone() *firestoreQuery {
	next := *q
	return &next
}

func (q *firestoreQuery) Where(field, op string, value any) Query {
	next := q.clone()
	next.query = next.query.Where(field, op, value)
	return next
}

func (q *firestoreQuery) WhereIn(field string, values []any) Query {
	next := q.clone()
	if len(values) > MaxKeySetSize {
		next.err = fmt.Errorf("%w: %d values", ErrTooManyKeys, len(values))
		return next
	}
	next.query = next.query.Where(field, "in", values)
	return next
}

func (q *firestoreQuery) OrderBy(field string, desc bool) Query {
	next := q.clone()
	dir := firestore.Asc
	if desc {
		dir = firestore.Desc
	}
	next.query = next.query.OrderBy(field, dir)
	next.orderField = field
	next.ordered = true
	return next
}

func (q *firestoreQuery) StartAfter(value any) Query {
	next := q.clone()
	next.cursor = value
	next.hasCursor = true
	return next
}

func (q *firestoreQuery) Limit(n int) Query {
	next := q.clone()
	next.query = next.query.Limit(n)
	return next
}

func (q *firestoreQuery) GetAll(ctx context.Context) ([]Document, error) {
	if q.err != nil {
		return nil, q.err
	}

	query := q.query
	if !q.ordered {
		// Unordered queries page by document ID so cursors stay stable.
		query = query.OrderBy(firestore.DocumentID, firestore.Asc)
	}
	if q.hasCursor {
		query = query.StartAfter(q.cursor)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	docs := make([]Document, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.coll.name, err)
		}
		docs = append(docs, Document{Key: snap.Ref.ID, Data: snap.Data()})
	}
	return docs, nil
}

type firestoreWrite struct {
	kind       string // create, set, update, updateIf, delete
	ref        *firestore.DocumentRef
	data       map[string]any
	updates    []firestore.Update
	guardField string
	guardValue any
}

type firestoreBatch struct {
	store   *FirestoreStore
	writes  []firestoreWrite
	guarded bool
}

func (b *firestoreBatch) doc(collection, key string) *firestore.DocumentRef {
	return b.store.client.Collection(collection).Doc(key)
}

func (b *firestoreBatch) Create(collection, key string, data map[string]any) Batch {
	b.writes = append(b.writes, firestoreWrite{kind: "create", ref: b.doc(collection, key), data: data})
	return b
}

func (b *firestoreBatch) Set(collection, key string, data map[string]any) Batch {
	b.writes = append(b.writes, firestoreWrite{kind: "set", ref: b.doc(collection, key), data: data})
	return b
}

func (b *firestoreBatch) Update(collection, key string, fields map[string]any) Batch {
	b.writes = append(b.writes, firestoreWrite{kind: "update", ref: b.doc(collection, key), updates: fieldUpdates(fields)})
	return b
}

func (b *firestoreBatch) UpdateIf(collection, key, field string, expected any, fields map[string]any) Batch {
	b.writes = append(b.writes, firestoreWrite{
		kind:       "updateIf",
		ref:        b.doc(collection, key),
		updates:    fieldUpdates(fields),
		guardField: field,
		guardValue: expected,
	})
	b.guarded = true
	return b
}

func (b *firestoreBatch) Delete(collection, key string) Batch {
	b.writes = append(b.writes, firestoreWrite{kind: "delete", ref: b.doc(collection, key)})
	return b
}

func (b *firestoreBatch) Len() int {
	return len(b.writes)
}

func (b *firestoreBatch) Commit(ctx context.Context) error {
	if len(b.writes) > MaxBatchWrites {
		return fmt.Errorf("%w: %d writes", ErrBatchTooLarge, len(b.writes))
	}

	var err error
	if b.guarded {
		err = b.commitTx(ctx)
	} else {
		err = b.commitBatch(ctx)
	}
	if err != nil {
		if errors.Is(err, ErrPreconditionFailed) || errors.Is(err, ErrNotFound) {
			return err
		}
		switch status.Code(err) {
		case codes.AlreadyExists:
			return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
		case codes.NotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (b *firestoreBatch) commitBatch(ctx context.Context) error {
	batch := b.store.client.Batch()
	for _, w := range b.writes {
		switch w.kind {
		case "create":
			batch.Create(w.ref, w.data)
		case "set":
			batch.Set(w.ref, w.data)
		case "update":
			batch.Update(w.ref, w.updates)
		case "delete":
			batch.Delete(w.ref)
		}
	}
	_, err := batch.Commit(ctx)
	return err
}

// commitTx applies the batch inside a transaction so guarded updates can
// re-read their documents and verify the guard field before any write lands.
func (b *firestoreBatch) commitTx(ctx context.Context) error {
	return b.store.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, w := range b.writes {
			if w.kind != "updateIf" {
				continue
			}
			snap, err := tx.Get(w.ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return fmt.Errorf("%w: %s", ErrNotFound, w.ref.Path)
				}
				return err
			}
			// Timestamps read back from Firestore are microsecond-truncated,
			// so guards built from a prior read compare equal.
			if stored, _ := snap.DataAt(w.guardField); !guardHolds(stored, w.guardValue) {
				return fmt.Errorf("%w: %s field %s changed",
					ErrPreconditionFailed, w.ref.Path, w.guardField)
			}
		}
		for _, w := range b.writes {
			var err error
			switch w.kind {
			case "create":
				err = tx.Create(w.ref, w.data)
			case "set":
				err = tx.Set(w.ref, w.data)
			case "update", "updateIf":
				err = tx.Update(w.ref, w.updates)
			case "delete":
				err = tx.Delete(w.ref)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func fieldUpdates(fields map[string]any) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for field, value := range fields {
		updates = append(updates, firestore.Update{Path: field, Value: value})
	}
	return updates
}

func guardHolds(stored, expected any) bool {
	if ts, ok := stored.(time.Time); ok {
		te, ok := expected.(time.Time)
		return ok && ts.Equal(te)
	}
	return reflect.DeepEqual(stored, expected)
}

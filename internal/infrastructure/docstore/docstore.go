// Package docstore defines the document-store port consumed by the
// persistence layer, plus the drivers that implement it. The contract is a
// schemaless store with per-document reads and writes, single-field
// equality/range filters, bounded key-set queries, cursor pagination, and
// bounded atomic write batches. No atomicity is assumed across two separate
// batch commits.
package docstore

import (
	"context"
	"errors"
)

// Store limits that callers must respect. Key-set queries and batches beyond
// these bounds are rejected before any round trip.
const (
	// MaxBatchWrites is the maximum number of writes in one atomic batch.
	MaxBatchWrites = 500
	// MaxKeySetSize is the maximum number of values in a WhereIn filter.
	MaxKeySetSize = 10
)

// Sentinel errors shared by all drivers.
var (
	ErrNotFound           = errors.New("docstore: document not found")
	ErrAlreadyExists      = errors.New("docstore: document already exists")
	ErrBatchTooLarge      = errors.New("docstore: batch exceeds maximum write count")
	ErrTooManyKeys        = errors.New("docstore: key-set query exceeds maximum size")
	ErrPreconditionFailed = errors.New("docstore: write precondition failed")
)

// Document is one schemaless record addressed by key within a collection.
type Document struct {
	Key  string
	Data map[string]any
}

// Store is the root handle on a document store.
type Store interface {
	// Collection returns a handle on a named collection. Collections spring
	// into existence on first write.
	Collection(name string) Collection

	// Batch starts an atomic write batch spanning any collections of this
	// store. The batch applies fully or not at all.
	Batch() Batch

	// Close releases the underlying client.
	Close() error
}

// Collection supports keyed reads and filtered queries.
type Collection interface {
	// Get reads one document. Returns ErrNotFound if the key is absent.
	Get(ctx context.Context, key string) (Document, error)

	// Query starts a query over the collection.
	Query() Query
}

// Query is an immutable query builder. Each method returns a derived query.
type Query interface {
	// Where adds a single-field filter. op is one of "==", "<", "<=", ">", ">=".
	Where(field, op string, value any) Query

	// WhereIn adds a bounded key-set membership filter (at most MaxKeySetSize
	// values).
	WhereIn(field string, values []any) Query

	// OrderBy sets the sort field and direction. Queries without an explicit
	// order sort by document key ascending.
	OrderBy(field string, desc bool) Query

	// StartAfter resumes after the given value of the sort field, for cursor
	// pagination.
	StartAfter(value any) Query

	// Limit caps the number of returned documents.
	Limit(n int) Query

	// GetAll executes the query.
	GetAll(ctx context.Context) ([]Document, error)
}

// Batch accumulates writes for one atomic commit.
type Batch interface {
	// Create writes a document that must not already exist. A commit
	// containing a Create for an existing key fails with ErrAlreadyExists
	// and applies nothing.
	Create(collection, key string, data map[string]any) Batch

	// Set writes a document unconditionally.
	Set(collection, key string, data map[string]any) Batch

	// Update patches named fields of an existing document. A commit
	// containing an Update for a missing key fails with ErrNotFound and
	// applies nothing.
	Update(collection, key string, fields map[string]any) Batch

	// UpdateIf patches named fields of an existing document only while the
	// stored value of field still equals expected. A commit whose guard no
	// longer holds fails with ErrPreconditionFailed and applies nothing;
	// a missing key fails with ErrNotFound. This is the optimistic-locking
	// primitive for read-validate-write flows.
	UpdateIf(collection, key, field string, expected any, fields map[string]any) Batch

	// Delete removes a document. Deleting an absent key is not an error.
	Delete(collection, key string) Batch

	// Len reports the number of accumulated writes.
	Len() int

	// Commit applies the batch atomically.
	Commit(ctx context.Context) error
}

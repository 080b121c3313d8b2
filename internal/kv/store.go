// Package kv defines the generic keyed store the rest of the engine is
// built on: every Session, Message, TokenLedger and Metadata record lives
// in one table partitioned by PK, ordered within a partition by SK, with
// one secondary index (LSI1) for reverse-chronological listing.
package kv

import "context"

// Item is one record in the store. Attrs holds the record's non-key
// fields; callers marshal/unmarshal their own domain types into it.
type Item struct {
	PK    string
	SK    string
	LSI1  string
	Attrs map[string]any
}

// QueryOptions constrains a Query call.
type QueryOptions struct {
	// Index selects a secondary index ("LSI1") instead of the primary
	// (PK, SK) ordering. Empty means primary.
	Index string

	// Limit caps the number of items returned. Zero means unbounded
	// (the store pages internally and returns everything).
	Limit int

	// Reverse returns items in descending order of the chosen key.
	Reverse bool

	// After resumes a paged query after the given sort value (exclusive),
	// scoped to whichever key (SK or LSI1) Index selects.
	After string
}

// Store is the external key-value interface the engine consumes. It
// intentionally exposes DynamoDB-shaped primitives (single table,
// composite key, one LSI, conditional transactional writes) since that is
// the natural backing store for this data model; MemoryStore implements
// the same contract for tests.
type Store interface {
	Get(ctx context.Context, pk, sk string) (*Item, error)
	Put(ctx context.Context, item *Item) error
	// Update applies a partial attribute set to an existing item, creating
	// it if absent. It always upserts and never returns ErrNotFound.
	Update(ctx context.Context, pk, sk string, partial map[string]any) error
	// Add atomically increments a numeric attribute (DynamoDB's ADD update
	// expression), creating the item/attribute at zero if absent.
	Add(ctx context.Context, pk, sk, attr string, delta float64) error
	// TransactWrite persists every item or none, used for the Message
	// Store's atomic (toolUse, toolResult) pair append.
	TransactWrite(ctx context.Context, items []*Item) error
	Query(ctx context.Context, pk string, opts QueryOptions) ([]*Item, error)
}

// ErrNotFound matches, via errors.Is, the *NotFoundError that Get returns
// when no item matches the key.
var ErrNotFound = &NotFoundError{}

// NotFoundError signals a missing item without committing callers to a
// sentinel value comparison when they want key context.
type NotFoundError struct {
	PK, SK string
}

func (e *NotFoundError) Error() string {
	if e.PK == "" && e.SK == "" {
		return "kv: item not found"
	}
	return "kv: item not found: pk=" + e.PK + " sk=" + e.SK
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

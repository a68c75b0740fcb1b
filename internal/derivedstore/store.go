// Package derivedstore implements the handler pipeline's user-facing entity
// store (spec.md §3/§4.5): versioned rows written exclusively inside a
// per-page transaction, with whole-store rollback to a timestamp on reorg.
package derivedstore

import (
	"context"

	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
)

// Store is the derived store's capability set, mirroring eventstore's
// "one interface, two SQL backends" shape (spec.md §9 Polymorphic stores).
type Store interface {
	// BeginTx opens a transactional view for one handler-pipeline page.
	// atTimestamp is recorded on the transaction; reads inside it are not
	// filtered by it and see the live rows.
	BeginTx(ctx context.Context, atTimestamp uint64) (Tx, error)

	// GetLive returns the current live row for (entityName, id), outside any
	// transaction — used by the read-only contracts/entities views exposed to
	// GraphQL queries.
	GetLive(ctx context.Context, entityName, id string) (chaintypes.DerivedEntityRow, bool, error)

	// RollbackTo reverts the store to its state as of timestamp T: rows with
	// validFrom > T are deleted, and rows with validTo > T (and != Forever)
	// are reopened to ForeverTimestamp. Spec.md §3's rollback invariant.
	RollbackTo(ctx context.Context, timestamp uint64) error

	// Reset deletes every row, returning the store to its initial empty
	// state (spec.md §4.5 hot-reload reset).
	Reset(ctx context.Context) error

	Migrate(ctx context.Context) error
	Close() error
}

// Tx is a per-page transactional view over the derived store. A handler
// invocation writes through Put; Commit and Rollback are mutually exclusive
// and each may be called at most once.
type Tx interface {
	// Get returns the entity visible within this transaction: either a row
	// written earlier in the same transaction, or the current live row
	// (the one with no validTo).
	Get(ctx context.Context, entityName, id string) (chaintypes.DerivedEntityRow, bool, error)

	// Put writes a new version of (entityName, id) effective at validFrom,
	// closing the previously live row (if any) at the same timestamp.
	Put(ctx context.Context, entityName, id string, data []byte, validFrom uint64) error

	Commit() error
	Rollback() error
}

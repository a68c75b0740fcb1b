// Package eventstore implements the canonical event store of spec.md §4.1:
// blocks, transactions, logs, per-filter cached ranges, and a content-addressed
// contract-read cache, behind one capability interface with SQLite and
// Postgres backends (spec.md §9 "Polymorphic stores").
package eventstore

import (
	"context"
	"errors"

	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
)

// ErrJoinMiss is returned by GetLogEvents when a log's block or transaction is
// missing from the store — a fatal invariant violation per spec.md §4.1.
var ErrJoinMiss = errors.New("eventstore: log referenced a block or transaction not present in the store")

// HistoricalBlockOpts carries the CachedRange bookkeeping that accompanies an
// insertHistoricalBlock call.
type HistoricalBlockOpts struct {
	FilterKey              string
	BlockNumberToCacheFrom uint64
}

// ContractReadResult is one row of the content-addressed eth_call cache
// (spec.md §4.1).
type ContractReadResult struct {
	ChainID     uint64
	Address     string // hex address
	BlockNumber uint64
	Calldata    []byte
	Result      []byte
	InsertedAt  int64 // unix seconds, used only for the eviction budget (SPEC_FULL.md §9)
}

// EventCounts tallies logs within a page by (filterName, topic0).
type EventCounts map[string]map[string]int

// Page is one page of the getLogEvents iteration contract.
type Page struct {
	Events   []chaintypes.Log
	Metadata PageMetadata
}

// PageMetadata carries the resumption cursor and per-page bookkeeping.
type PageMetadata struct {
	PageEndsAtTimestamp uint64
	Counts              EventCounts
	Cursor              *chaintypes.Cursor // nil when this is the final page
	IsLastPage          bool
}

// LogEventsQuery parameterizes GetLogEvents.
type LogEventsQuery struct {
	FromTimestamp         uint64
	ToTimestamp           uint64
	Filters               []chaintypes.LogFilter
	PageSize              int
	Cursor                *chaintypes.Cursor
	IncludeEventSelectors []string // topic0 hex values; empty means "all"
}

// Store is the event store's capability set: both backends implement it
// identically, matching spec.md §9's "do not leak backend-specific types
// beyond the adapter."
type Store interface {
	// InsertHistoricalLogs idempotently inserts logs keyed on their ID;
	// conflicting IDs are silently ignored.
	InsertHistoricalLogs(ctx context.Context, chainID uint64, logs []chaintypes.Log) error

	// InsertHistoricalBlock atomically inserts a block and its transactions
	// (idempotent) and then a CachedRange row per opts.
	InsertHistoricalBlock(ctx context.Context, chainID uint64, block chaintypes.Block, txs []chaintypes.Transaction, opts HistoricalBlockOpts) error

	// InsertRealtimeBlock atomically upserts a block, its transactions, and
	// logs. Logs inserted here are not backed by a CachedRange.
	InsertRealtimeBlock(ctx context.Context, chainID uint64, block chaintypes.Block, txs []chaintypes.Transaction, logs []chaintypes.Log) error

	// DeleteRealtimeData deletes blocks, transactions, and logs at
	// blockNumber >= fromBlockNumber for chainID. Cached ranges are untouched.
	DeleteRealtimeData(ctx context.Context, chainID uint64, fromBlockNumber uint64) error

	// MergeLogFilterCachedRanges coalesces the leading contiguous run of
	// CachedRange rows for filterKey (the run whose combined interval starts
	// at or before logFilterStartBlockNumber) into one row, returning its
	// endBlockTimestamp (0 if there is no such leading run).
	MergeLogFilterCachedRanges(ctx context.Context, filterKey string, logFilterStartBlockNumber uint64) (startingRangeEndTimestamp uint64, err error)

	// GetLogFilterCachedRanges returns all cached ranges for filterKey,
	// ordered by startBlock.
	GetLogFilterCachedRanges(ctx context.Context, filterKey string) ([]chaintypes.CachedRange, error)

	// InsertContractReadResult records an immutable eth_call result.
	InsertContractReadResult(ctx context.Context, r ContractReadResult) error

	// GetContractReadResult looks up a cached eth_call result; ok is false on a miss.
	GetContractReadResult(ctx context.Context, chainID uint64, address string, blockNumber uint64, calldata []byte) (result []byte, ok bool, err error)

	// GetLogEvents returns one page of the event iteration contract
	// (spec.md §4.1's "key algorithm").
	GetLogEvents(ctx context.Context, q LogEventsQuery) (Page, error)

	// Migrate applies the store's embedded migration set.
	Migrate(ctx context.Context) error

	Close() error
}

// Package rpcclient implements the indexing core's RPC Abstraction (spec
// §4.6): a uniform client interface with three transports — direct HTTP,
// paid (voucher-gated), and remote-indexer (GraphQL-backed) — all sharing
// the same retry/backoff policy.
package rpcclient

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Client is the polymorphic contract every transport satisfies. Historical
// and realtime sync depend only on this, never on a concrete transport.
type Client interface {
	Close()

	// GetLogs retrieves logs matching the given filter query.
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)

	// GetBlockByNumber retrieves a full block (with transactions) by number.
	// A nil number means "latest".
	GetBlockByNumber(ctx context.Context, number *uint64, fullTx bool) (*types.Header, types.Transactions, error)

	// GetBlockByHash retrieves a full block (with transactions) by hash.
	GetBlockByHash(ctx context.Context, hash []byte, fullTx bool) (*types.Header, types.Transactions, error)

	// GetFinalizedBlockHeader retrieves the finalized block header.
	GetFinalizedBlockHeader(ctx context.Context) (*types.Header, error)

	// GetSafeBlockHeader retrieves the safe block header.
	GetSafeBlockHeader(ctx context.Context) (*types.Header, error)

	// GetLatestBlockNumber retrieves the current head block number.
	GetLatestBlockNumber(ctx context.Context) (uint64, error)

	// CallContract executes an eth_call against the given contract at
	// blockNumber (nil means latest), returning the raw return data. Used by
	// the Handler Pipeline's read-only contracts view (spec.md §4.5).
	CallContract(ctx context.Context, to common.Address, calldata []byte, blockNumber *uint64) ([]byte, error)
}

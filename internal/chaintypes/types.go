// Package chaintypes holds the domain types shared by every component of the
// indexing core: blocks, transactions, logs, log filters, cached ranges,
// cursors and checkpoints. These are storage- and transport-agnostic; the
// event store and the GraphQL layer convert at their own boundaries.
package chaintypes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Block mirrors the subset of an EVM block header the event store persists.
// Identity is (ChainID, Hash).
type Block struct {
	ChainID          uint64
	Hash             common.Hash
	ParentHash       common.Hash
	Number           uint64
	Timestamp        uint64
	Miner            common.Address
	GasLimit         uint64
	GasUsed          uint64
	BaseFeePerGas    *big.Int // nil pre-EIP-1559
	Difficulty       *big.Int
	TotalDifficulty  *big.Int
	ExtraData        []byte
	LogsBloom        []byte
	MixHash          common.Hash
	Nonce            uint64
	ReceiptsRoot     common.Hash
	Sha3Uncles       common.Hash
	Size             uint64
	StateRoot        common.Hash
	TransactionsRoot common.Hash
}

// TxType enumerates the transaction envelope kinds the store round-trips.
type TxType string

const (
	TxTypeLegacy  TxType = "legacy"
	TxTypeEIP2930 TxType = "eip2930"
	TxTypeEIP1559 TxType = "eip1559"
)

// Transaction mirrors the subset of an EVM transaction the event store
// persists. Identity is (ChainID, Hash).
type Transaction struct {
	ChainID              uint64
	Hash                 common.Hash
	BlockHash            common.Hash
	BlockNumber          uint64
	TransactionIndex     uint64
	From                 common.Address
	To                   *common.Address // nil for contract creation
	Input                []byte
	Nonce                uint64
	Value                *big.Int
	Gas                  uint64
	V                    *big.Int
	R                    *big.Int
	S                    *big.Int
	Type                 TxType
	GasPrice             *big.Int // legacy / eip2930
	MaxFeePerGas         *big.Int // eip1559
	MaxPriorityFeePerGas *big.Int // eip1559
	AccessList           []byte   // opaque RLP/JSON encoding of the access list
}

// Log mirrors an EVM log entry. Identity is ID (BlockHash‖LogIndex).
type Log struct {
	ChainID     uint64
	ID          string // BlockHash.Hex() + "-" + logIndex, see LogID
	Address     common.Address
	BlockHash   common.Hash
	BlockNumber uint64
	// Timestamp is the containing block's timestamp. It is not a persisted
	// column (logs are stored without it; eventstore.GetLogEvents joins it in
	// from the blocks table) — populated only on logs returned from a query,
	// zero on logs passed to Insert*.
	Timestamp        uint64
	TransactionHash  common.Hash
	TransactionIndex uint64
	LogIndex         uint64
	Data             []byte
	Topic0           *common.Hash
	Topic1           *common.Hash
	Topic2           *common.Hash
	Topic3           *common.Hash
}

// Topics returns the non-nil topic slots in order, for RPC filter construction.
func (l Log) Topics() []common.Hash {
	out := make([]common.Hash, 0, 4)
	for _, t := range []*common.Hash{l.Topic0, l.Topic1, l.Topic2, l.Topic3} {
		if t == nil {
			break
		}
		out = append(out, *t)
	}
	return out
}

// LogID derives the storage identity for a log: blockHash‖logIndex.
func LogID(blockHash common.Hash, logIndex uint64) string {
	return blockHash.Hex() + "-" + big.NewInt(0).SetUint64(logIndex).String()
}

// TopicSlot matches a single topic position: nil matches anything, a
// non-empty set matches if the log's topic at that slot is a member.
type TopicSlot struct {
	OneOf []common.Hash // empty/nil means "match any"
}

// Match reports whether v satisfies this slot (nil v only matches a wildcard slot).
func (s TopicSlot) Match(v *common.Hash) bool {
	if len(s.OneOf) == 0 {
		return true
	}
	if v == nil {
		return false
	}
	for _, want := range s.OneOf {
		if want == *v {
			return true
		}
	}
	return false
}

// LogFilter is the unit of subscription for historical and realtime sync.
// Name is unique across the process; FilterKey is its content hash identity
// for cached-range bookkeeping.
type LogFilter struct {
	Name          string
	ChainID       uint64
	Addresses     []common.Address // empty means "any address"
	Topics        []TopicSlot      // ordered per-slot matchers, empty means "any"
	StartBlock    uint64
	EndBlock      *uint64 // nil means "realtime", i.e. no upper bound
	MaxBlockRange uint64
}

// Key derives FilterKey: a content hash of the chain, start block, addresses
// and topics, so two independently constructed LogFilters over the same
// chain/start/address/topic share one cached-range lineage. EndBlock and
// MaxBlockRange are not part of the hash.
func (f LogFilter) Key() string {
	h := sha256.New()
	fmt.Fprintf(h, "chain=%d;start=%d;", f.ChainID, f.StartBlock)
	addrs := make([]string, len(f.Addresses))
	for i, a := range f.Addresses {
		addrs[i] = a.Hex()
	}
	sort.Strings(addrs)
	fmt.Fprintf(h, "addrs=%s;", strings.Join(addrs, ","))
	for i, slot := range f.Topics {
		oneOf := make([]string, len(slot.OneOf))
		for j, t := range slot.OneOf {
			oneOf[j] = t.Hex()
		}
		sort.Strings(oneOf)
		fmt.Fprintf(h, "topic%d=%s;", i, strings.Join(oneOf, ","))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Matches reports whether a log satisfies this filter's chain/address/topic constraints.
func (f LogFilter) Matches(l Log) bool {
	if l.ChainID != f.ChainID {
		return false
	}
	if len(f.Addresses) > 0 {
		found := false
		for _, a := range f.Addresses {
			if a == l.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	slots := []*common.Hash{l.Topic0, l.Topic1, l.Topic2, l.Topic3}
	for i, slot := range f.Topics {
		if i >= len(slots) {
			break
		}
		if !slot.Match(slots[i]) {
			return false
		}
	}
	return true
}

// CachedRange records a contiguous block range already ingested for a given
// filter key. Ranges for the same FilterKey are kept pairwise disjoint by the
// event store's merge operation.
type CachedRange struct {
	FilterKey         string
	StartBlock        uint64
	EndBlock          uint64
	EndBlockTimestamp uint64
}

// Cursor is an iterator resume position, ordered lexicographically by
// (Timestamp, ChainID, BlockNumber, LogIndex).
type Cursor struct {
	Timestamp   uint64
	ChainID     uint64
	BlockNumber uint64
	LogIndex    uint64
}

// Less reports whether c sorts strictly before o under cursor ordering.
func (c Cursor) Less(o Cursor) bool {
	if c.Timestamp != o.Timestamp {
		return c.Timestamp < o.Timestamp
	}
	if c.ChainID != o.ChainID {
		return c.ChainID < o.ChainID
	}
	if c.BlockNumber != o.BlockNumber {
		return c.BlockNumber < o.BlockNumber
	}
	return c.LogIndex < o.LogIndex
}

// Checkpoint is the per-network sync watermark tracked by the aggregator.
type Checkpoint struct {
	HistoricalCheckpoint     uint64
	RealtimeCheckpoint       uint64
	FinalityCheckpoint       uint64
	IsHistoricalSyncComplete bool
}

// PerNetworkValue is the aggregator's contribution of one network toward the
// global checkpoint: historical-only until sync completes, then max(historical,realtime).
func (c Checkpoint) PerNetworkValue() uint64 {
	if !c.IsHistoricalSyncComplete {
		return c.HistoricalCheckpoint
	}
	if c.HistoricalCheckpoint > c.RealtimeCheckpoint {
		return c.HistoricalCheckpoint
	}
	return c.RealtimeCheckpoint
}

// DerivedEntityRow is one version of a handler-pipeline entity. Exactly one
// live row per (EntityName, ID) has ValidTo == ForeverTimestamp.
type DerivedEntityRow struct {
	EntityName string
	ID         string
	Data       []byte // handler-defined JSON payload
	ValidFrom  uint64
	ValidTo    uint64
}

// ForeverTimestamp marks a derived entity row as currently live.
const ForeverTimestamp = ^uint64(0)

package graphqlapi

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	gethcommon "github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
	"github.com/goran-ethernal/ChainIndexor/internal/eventstore"
	"github.com/goran-ethernal/ChainIndexor/internal/logger"
	"github.com/goran-ethernal/ChainIndexor/internal/rpcclient"
)

// NetworkHistoricalSync is one network's historical backfill status, as
// reported by whatever orchestrates historicalsync.Syncer for that chain.
type NetworkHistoricalSync struct {
	ChainID    uint64
	Checkpoint uint64
	IsComplete bool
}

// NetworkStatusProvider is the capability the Query resolver needs to answer
// getNetworkHistoricalSync without depending on a concrete sync orchestrator.
type NetworkStatusProvider interface {
	NetworkHistoricalSync(chainID uint64) (NetworkHistoricalSync, bool)
}

// Resolver implements the Query and Subscription root types against a local
// event store, a per-network sync status provider, an upstream RPC client
// (for getEthLogs/getEthBlock, mirroring what a Direct/PaidClient would see),
// and the Broadcaster feeding the subscription fields.
type Resolver struct {
	Store     eventstore.Store
	Status    NetworkStatusProvider
	Client    rpcclient.Client
	Broadcast *Broadcaster
	Log       *logger.Logger
}

// ---- getLogEvents ----

type topicSlotInput struct {
	OneOf *[]string
}

type logFilterInput struct {
	Name          string
	ChainId       float64
	Addresses     *[]string
	Topics        *[]topicSlotInput
	StartBlock    float64
	EndBlock      *float64
	MaxBlockRange *float64
}

type cursorInput struct {
	Timestamp   float64
	ChainId     float64
	BlockNumber float64
	LogIndex    float64
}

type getLogEventsArgs struct {
	FromTimestamp float64
	ToTimestamp   float64
	Filters       []logFilterInput
	Cursor        *cursorInput
	PageSize      *int32
}

func toLogFilter(in logFilterInput) chaintypes.LogFilter {
	f := chaintypes.LogFilter{
		Name:       in.Name,
		ChainID:    uint64(in.ChainId),
		StartBlock: uint64(in.StartBlock),
	}
	if in.Addresses != nil {
		for _, a := range *in.Addresses {
			f.Addresses = append(f.Addresses, gethcommon.HexToAddress(a))
		}
	}
	if in.Topics != nil {
		for _, slot := range *in.Topics {
			var ts chaintypes.TopicSlot
			if slot.OneOf != nil {
				for _, h := range *slot.OneOf {
					ts.OneOf = append(ts.OneOf, gethcommon.HexToHash(h))
				}
			}
			f.Topics = append(f.Topics, ts)
		}
	}
	if in.EndBlock != nil {
		v := uint64(*in.EndBlock)
		f.EndBlock = &v
	}
	if in.MaxBlockRange != nil {
		f.MaxBlockRange = uint64(*in.MaxBlockRange)
	}
	return f
}

type decodedLogResolver struct {
	ChainId          float64
	Id               string
	Address          string
	BlockHash        string
	BlockNumber      float64
	Timestamp        float64
	TransactionHash  string
	TransactionIndex float64
	LogIndex         float64
	Data             string
	Topics           []string
}

type cursorResolver struct {
	Timestamp   float64
	ChainId     float64
	BlockNumber float64
	LogIndex    float64
}

type pageMetadataResolver struct {
	PageEndsAtTimestamp float64
	IsLastPage          bool
	Cursor              *cursorResolver
}

type eventsPageResolver struct {
	Events   []*decodedLogResolver
	Metadata *pageMetadataResolver
}

func toDecodedLog(l chaintypes.Log) *decodedLogResolver {
	return &decodedLogResolver{
		ChainId:          float64(l.ChainID),
		Id:               l.ID,
		Address:          l.Address.Hex(),
		BlockHash:        l.BlockHash.Hex(),
		BlockNumber:      float64(l.BlockNumber),
		Timestamp:        float64(l.Timestamp),
		TransactionHash:  l.TransactionHash.Hex(),
		TransactionIndex: float64(l.TransactionIndex),
		LogIndex:         float64(l.LogIndex),
		Data:             gethcommon.Bytes2Hex(l.Data),
		Topics:           hexTopics(l),
	}
}

func hexTopics(l chaintypes.Log) []string {
	topics := make([]string, 0, 4)
	for _, t := range l.Topics() {
		topics = append(topics, t.Hex())
	}
	return topics
}

// GetLogEvents implements spec.md §4.1's event iteration contract over the
// network, one page per call — the same Store.GetLogEvents the aggregator's
// EventsIterator wraps in-process, exposed here for a remote Watcher.
func (r *Resolver) GetLogEvents(ctx context.Context, args getLogEventsArgs) (*eventsPageResolver, error) {
	filters := make([]chaintypes.LogFilter, 0, len(args.Filters))
	for _, in := range args.Filters {
		filters = append(filters, toLogFilter(in))
	}

	var cursor *chaintypes.Cursor
	if args.Cursor != nil {
		cursor = &chaintypes.Cursor{
			Timestamp:   uint64(args.Cursor.Timestamp),
			ChainID:     uint64(args.Cursor.ChainId),
			BlockNumber: uint64(args.Cursor.BlockNumber),
			LogIndex:    uint64(args.Cursor.LogIndex),
		}
	}

	pageSize := 0
	if args.PageSize != nil {
		pageSize = int(*args.PageSize)
	}

	page, err := r.Store.GetLogEvents(ctx, eventstore.LogEventsQuery{
		FromTimestamp: uint64(args.FromTimestamp),
		ToTimestamp:   uint64(args.ToTimestamp),
		Filters:       filters,
		PageSize:      pageSize,
		Cursor:        cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("graphqlapi: getLogEvents: %w", err)
	}

	events := make([]*decodedLogResolver, 0, len(page.Events))
	for _, l := range page.Events {
		events = append(events, toDecodedLog(l))
	}

	meta := &pageMetadataResolver{
		PageEndsAtTimestamp: float64(page.Metadata.PageEndsAtTimestamp),
		IsLastPage:          page.Metadata.IsLastPage,
	}
	if page.Metadata.Cursor != nil {
		c := page.Metadata.Cursor
		meta.Cursor = &cursorResolver{
			Timestamp:   float64(c.Timestamp),
			ChainId:     float64(c.ChainID),
			BlockNumber: float64(c.BlockNumber),
			LogIndex:    float64(c.LogIndex),
		}
	}

	return &eventsPageResolver{Events: events, Metadata: meta}, nil
}

// ---- getNetworkHistoricalSync ----

type chainIDArgs struct {
	ChainId float64
}

type networkHistoricalSyncResolver struct {
	ChainId    float64
	Checkpoint float64
	IsComplete bool
}

func (r *Resolver) GetNetworkHistoricalSync(ctx context.Context, args chainIDArgs) (*networkHistoricalSyncResolver, error) {
	if r.Status == nil {
		return nil, nil
	}
	status, ok := r.Status.NetworkHistoricalSync(uint64(args.ChainId))
	if !ok {
		return nil, nil
	}
	return &networkHistoricalSyncResolver{
		ChainId:    float64(status.ChainID),
		Checkpoint: float64(status.Checkpoint),
		IsComplete: status.IsComplete,
	}, nil
}

// ---- getEthLogs / getEthBlock ----

type ethLogsArgs struct {
	Address   *[]string
	Topics    *[][]string
	FromBlock string
	ToBlock   string
	BlockHash *string
}

type ethLogResolver struct {
	Address          string
	BlockHash        string
	BlockNumber      string
	TransactionHash  string
	TransactionIndex string
	LogIndex         string
	Data             string
	Topics           []string
}

func parseBlockArg(s string) (*big.Int, error) {
	if s == "" || s == "latest" {
		return nil, nil
	}
	n := new(big.Int)
	if strings.HasPrefix(s, "0x") {
		if _, ok := n.SetString(s[2:], 16); !ok {
			return nil, fmt.Errorf("graphqlapi: invalid hex block number %q", s)
		}
		return n, nil
	}
	if _, ok := n.SetString(s, 10); !ok {
		return nil, fmt.Errorf("graphqlapi: invalid block number %q", s)
	}
	return n, nil
}

// GetEthLogs answers the remote-indexer transport's eth_getLogs translation
// (rpcclient.RemoteIndexerClient.GetLogs), against this node's own upstream client.
func (r *Resolver) GetEthLogs(ctx context.Context, args ethLogsArgs) ([]*ethLogResolver, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("graphqlapi: no upstream RPC client configured")
	}

	from, err := parseBlockArg(args.FromBlock)
	if err != nil {
		return nil, err
	}
	to, err := parseBlockArg(args.ToBlock)
	if err != nil {
		return nil, err
	}

	query := ethereum.FilterQuery{FromBlock: from, ToBlock: to}
	if args.Address != nil {
		for _, a := range *args.Address {
			query.Addresses = append(query.Addresses, gethcommon.HexToAddress(a))
		}
	}
	if args.Topics != nil {
		for _, slot := range *args.Topics {
			hashes := make([]gethcommon.Hash, len(slot))
			for i, h := range slot {
				hashes[i] = gethcommon.HexToHash(h)
			}
			query.Topics = append(query.Topics, hashes)
		}
	}
	if args.BlockHash != nil {
		h := gethcommon.HexToHash(*args.BlockHash)
		query.BlockHash = &h
	}

	logs, err := r.Client.GetLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("graphqlapi: getEthLogs: %w", err)
	}

	out := make([]*ethLogResolver, 0, len(logs))
	for _, l := range logs {
		topics := make([]string, len(l.Topics))
		for i, t := range l.Topics {
			topics[i] = t.Hex()
		}
		out = append(out, &ethLogResolver{
			Address:          l.Address.Hex(),
			BlockHash:        l.BlockHash.Hex(),
			BlockNumber:      fmt.Sprintf("0x%x", l.BlockNumber),
			TransactionHash:  l.TxHash.Hex(),
			TransactionIndex: fmt.Sprintf("0x%x", l.TxIndex),
			LogIndex:         fmt.Sprintf("0x%x", l.Index),
			Data:             gethcommon.Bytes2Hex(l.Data),
			Topics:           topics,
		})
	}
	return out, nil
}

type ethBlockArgs struct {
	Number *string
	Hash   *string
}

type ethBlockResolver struct {
	Hash       string
	ParentHash string
	Number     string
	Timestamp  string
	Miner      string
	GasLimit   string
	GasUsed    string
}

// GetEthBlock answers the remote-indexer transport's eth_getBlockByNumber/
// eth_getBlockByHash translation against this node's own upstream client.
func (r *Resolver) GetEthBlock(ctx context.Context, args ethBlockArgs) (*ethBlockResolver, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("graphqlapi: no upstream RPC client configured")
	}

	var (
		header *rpcclientHeader
		err    error
	)
	switch {
	case args.Hash != nil:
		header, err = r.fetchBlockByHash(ctx, *args.Hash)
	case args.Number != nil:
		header, err = r.fetchBlockByNumber(ctx, *args.Number)
	default:
		header, err = r.fetchBlockByNumber(ctx, "latest")
	}
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, nil
	}

	return &ethBlockResolver{
		Hash:       header.Hash,
		ParentHash: header.ParentHash,
		Number:     header.Number,
		Timestamp:  header.Timestamp,
		Miner:      header.Miner,
		GasLimit:   header.GasLimit,
		GasUsed:    header.GasUsed,
	}, nil
}

// rpcclientHeader is the hex-encoded view of a go-ethereum header the
// getEthBlock resolver hands back, matching RemoteIndexerClient's gqlBlock wire shape.
type rpcclientHeader struct {
	Hash, ParentHash, Number, Timestamp, Miner, GasLimit, GasUsed string
}

func (r *Resolver) fetchBlockByNumber(ctx context.Context, s string) (*rpcclientHeader, error) {
	n, err := parseBlockArg(s)
	if err != nil {
		return nil, err
	}
	var number *uint64
	if n != nil {
		v := n.Uint64()
		number = &v
	}
	h, _, err := r.Client.GetBlockByNumber(ctx, number, false)
	if err != nil {
		return nil, fmt.Errorf("graphqlapi: getEthBlock: %w", err)
	}
	return headerToResolver(h), nil
}

func (r *Resolver) fetchBlockByHash(ctx context.Context, hash string) (*rpcclientHeader, error) {
	h, _, err := r.Client.GetBlockByHash(ctx, gethcommon.HexToHash(hash).Bytes(), false)
	if err != nil {
		return nil, fmt.Errorf("graphqlapi: getEthBlock: %w", err)
	}
	return headerToResolver(h), nil
}

func headerToResolver(h *gethtypes.Header) *rpcclientHeader {
	if h == nil {
		return nil
	}
	return &rpcclientHeader{
		Hash:       h.Hash().Hex(),
		ParentHash: h.ParentHash.Hex(),
		Number:     fmt.Sprintf("0x%x", h.Number),
		Timestamp:  fmt.Sprintf("0x%x", h.Time),
		Miner:      h.Coinbase.Hex(),
		GasLimit:   fmt.Sprintf("0x%x", h.GasLimit),
		GasUsed:    fmt.Sprintf("0x%x", h.GasUsed),
	}
}

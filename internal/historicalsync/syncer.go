package historicalsync

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
	"github.com/goran-ethernal/ChainIndexor/internal/eventstore"
	"github.com/goran-ethernal/ChainIndexor/internal/logger"
	"github.com/goran-ethernal/ChainIndexor/internal/metrics"
	"github.com/goran-ethernal/ChainIndexor/internal/rpcclient"
)

// CheckpointFunc is invoked whenever a filter's historicalCheckpoint advances
// (spec.md §4.2 steps 1 and "RangeCommitTask").
type CheckpointFunc func(filterName string, timestamp uint64)

// Syncer drives historical backfill for one network: for each configured
// filter, it subtracts cached ranges, partitions the remainder into
// LogTask/BlockTask/RangeCommitTask work, and runs it over a bounded pool
// (errgroup.SetLimit, same worker-pool idiom the teacher uses in
// internal/indexer/indexer_coordinator.go).
type Syncer struct {
	ChainID              uint64
	Client               rpcclient.Client
	Store                eventstore.Store
	Log                  *logger.Logger
	MaxRPCConcurrency    int
	DefaultMaxBlockRange uint64
	Signer               types.Signer
	OnCheckpoint         CheckpointFunc
}

// SyncFilter runs spec.md §4.2's backfill algorithm for one filter against
// latestFinalized, the finalized block number reported by realtime sync's setup.
func (s *Syncer) SyncFilter(ctx context.Context, filter chaintypes.LogFilter, latestFinalized uint64) error {
	key := filter.Key()

	startTS, err := s.Store.MergeLogFilterCachedRanges(ctx, key, filter.StartBlock)
	if err != nil {
		return fmt.Errorf("historicalsync: merge cached ranges for %s: %w", filter.Name, err)
	}
	if startTS > 0 && s.OnCheckpoint != nil {
		s.OnCheckpoint(filter.Name, startTS)
	}

	end := latestFinalized
	if filter.EndBlock != nil && *filter.EndBlock < end {
		end = *filter.EndBlock
	}
	if filter.StartBlock > end {
		return nil
	}

	cached, err := s.Store.GetLogFilterCachedRanges(ctx, key)
	if err != nil {
		return fmt.Errorf("historicalsync: get cached ranges for %s: %w", filter.Name, err)
	}

	missing := GetMissingRanges(filter.StartBlock, end, cached)
	maxRange := filter.MaxBlockRange
	if maxRange == 0 {
		maxRange = s.DefaultMaxBlockRange
	}
	tasks := Partition(missing, maxRange)

	g, gctx := errgroup.WithContext(ctx)
	if s.MaxRPCConcurrency > 0 {
		g.SetLimit(s.MaxRPCConcurrency)
	}
	for _, t := range tasks {
		t := t
		g.Go(func() error { return s.runLogTask(gctx, filter, t) })
	}
	return g.Wait()
}

// runLogTask is the LogTask of spec.md §4.2: eth_getLogs over one range,
// splitting the range in half (or to the provider's suggested range) on a
// too-many-results error, then fanning out BlockTasks before the terminal
// RangeCommitTask.
func (s *Syncer) runLogTask(ctx context.Context, filter chaintypes.LogFilter, r BlockRange) error {
	indexer := s.metricsIndexer()
	start := time.Now()
	defer func() { metrics.BlockProcessingTimeLog(indexer, time.Since(start)) }()

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(r.From),
		ToBlock:   new(big.Int).SetUint64(r.To),
		Addresses: filter.Addresses,
		Topics:    topicFilter(filter.Topics),
	}

	logs, err := s.Client.GetLogs(ctx, query)
	if err != nil {
		if tooMany, msg := rpcclient.IsTooManyResultsError(err); tooMany {
			return s.splitAndRetry(ctx, filter, r, msg)
		}
		return fmt.Errorf("historicalsync: eth_getLogs [%d,%d]: %w", r.From, r.To, err)
	}

	chainLogs := make([]chaintypes.Log, len(logs))
	blockHashes := map[common.Hash]struct{}{}
	for i, l := range logs {
		chainLogs[i] = chaintypes.FromGethLog(filter.ChainID, l)
		blockHashes[l.BlockHash] = struct{}{}
	}
	if err := s.Store.InsertHistoricalLogs(ctx, filter.ChainID, chainLogs); err != nil {
		return fmt.Errorf("historicalsync: insert historical logs: %w", err)
	}
	metrics.LogsIndexedInc(indexer, len(chainLogs))

	bg, bctx := errgroup.WithContext(ctx)
	if s.MaxRPCConcurrency > 0 {
		bg.SetLimit(s.MaxRPCConcurrency)
	}
	for hash := range blockHashes {
		hash := hash
		bg.Go(func() error { return s.runBlockTask(bctx, filter, hash, r.From) })
	}
	if err := bg.Wait(); err != nil {
		return err
	}

	metrics.BlocksProcessedInc(indexer, r.To-r.From+1)
	metrics.LastIndexedBlockInc(indexer, r.To)
	if elapsed := time.Since(start).Seconds(); elapsed > 0 {
		metrics.IndexingRateLog(indexer, float64(r.To-r.From+1)/elapsed)
	}

	return s.runRangeCommitTask(ctx, filter)
}

// metricsIndexer is the "indexer" label historicalsync reports under,
// mirroring how the teacher's indexer_coordinator.go labeled metrics by
// indexer name: here there's no per-filter indexer, so it's per-chain.
func (s *Syncer) metricsIndexer() string {
	return fmt.Sprintf("historicalsync-chain-%d", s.ChainID)
}

func (s *Syncer) splitAndRetry(ctx context.Context, filter chaintypes.LogFilter, r BlockRange, errMsg string) error {
	if r.From == r.To {
		return fmt.Errorf("historicalsync: single-block range [%d] rejected as too large and cannot be split further", r.From)
	}

	mid := r.From + (r.To-r.From)/2
	if from, to, ok := rpcclient.ParseSuggestedBlockRange(errMsg); ok && from >= r.From && to <= r.To && from <= to {
		mid = to
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.runLogTask(gctx, filter, BlockRange{From: r.From, To: mid}) })
	g.Go(func() error { return s.runLogTask(gctx, filter, BlockRange{From: mid + 1, To: r.To}) })
	return g.Wait()
}

// runBlockTask is the BlockTask of spec.md §4.2.
func (s *Syncer) runBlockTask(ctx context.Context, filter chaintypes.LogFilter, blockHash common.Hash, blockNumberToCacheFrom uint64) error {
	header, txs, err := s.Client.GetBlockByHash(ctx, blockHash.Bytes(), true)
	if err != nil {
		return fmt.Errorf("historicalsync: eth_getBlockByHash %s: %w", blockHash, err)
	}

	block := chaintypes.FromGethHeader(filter.ChainID, header, nil)
	chainTxs := make([]chaintypes.Transaction, len(txs))
	for i, tx := range txs {
		chainTxs[i] = chaintypes.FromGethTransaction(filter.ChainID, tx, block.Hash, block.Number, uint64(i), s.Signer)
	}

	return s.Store.InsertHistoricalBlock(ctx, filter.ChainID, block, chainTxs, eventstore.HistoricalBlockOpts{
		FilterKey:              filter.Key(),
		BlockNumberToCacheFrom: blockNumberToCacheFrom,
	})
}

// runRangeCommitTask is the RangeCommitTask of spec.md §4.2. It reuses
// MergeLogFilterCachedRanges to both coalesce the range just completed and
// compute the filter's advanced historicalCheckpoint in one call.
func (s *Syncer) runRangeCommitTask(ctx context.Context, filter chaintypes.LogFilter) error {
	ts, err := s.Store.MergeLogFilterCachedRanges(ctx, filter.Key(), filter.StartBlock)
	if err != nil {
		return fmt.Errorf("historicalsync: range commit merge: %w", err)
	}
	if ts > 0 && s.OnCheckpoint != nil {
		s.OnCheckpoint(filter.Name, ts)
	}
	return nil
}

func topicFilter(slots []chaintypes.TopicSlot) [][]common.Hash {
	if len(slots) == 0 {
		return nil
	}
	out := make([][]common.Hash, len(slots))
	for i, s := range slots {
		out[i] = s.OneOf
	}
	return out
}

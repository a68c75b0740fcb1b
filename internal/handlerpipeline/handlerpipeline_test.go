package handlerpipeline

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/ChainIndexor/internal/abidecode"
	"github.com/goran-ethernal/ChainIndexor/internal/aggregator"
	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
	"github.com/goran-ethernal/ChainIndexor/internal/config"
	"github.com/goran-ethernal/ChainIndexor/internal/db"
	"github.com/goran-ethernal/ChainIndexor/internal/derivedstore"
	"github.com/goran-ethernal/ChainIndexor/internal/eventstore"
	"github.com/goran-ethernal/ChainIndexor/internal/logger"
)

const transferABI = `[
	{"type":"event","name":"Transfer","inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}
	]}
]`

func setupEventStore(t *testing.T) eventstore.Store {
	t.Helper()
	tmpDir := t.TempDir()
	dbConfig := config.DatabaseConfig{Directory: tmpDir, JournalMode: "WAL"}
	dbConfig.ApplyDefaults()

	sqlDB, err := db.NewSQLiteDBFromConfig(dbConfig, "handlerpipeline_events_test.db")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	store := eventstore.NewSQLiteStore(sqlDB, logger.GetDefaultLogger())
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func setupDerivedStore(t *testing.T) derivedstore.Store {
	t.Helper()
	tmpDir := t.TempDir()
	dbConfig := config.DatabaseConfig{Directory: tmpDir, JournalMode: "WAL"}
	dbConfig.ApplyDefaults()

	sqlDB, err := db.NewSQLiteDBFromConfig(dbConfig, "handlerpipeline_derived_test.db")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	store := derivedstore.NewSQLiteStore(sqlDB, logger.GetDefaultLogger())
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func runAggregator(t *testing.T, a *aggregator.Aggregator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// insertTransferLog inserts one Transfer(from,to,value) log at the given
// block/timestamp into store, returning the ABI event set it decodes against.
func insertTransferLog(t *testing.T, store eventstore.Store, contract, from, to common.Address, blockNumber, timestamp uint64, value int64) abidecode.EventSet {
	t.Helper()
	ctx := context.Background()

	parsed, err := abi.JSON(strings.NewReader(transferABI))
	require.NoError(t, err)
	set := abidecode.NewEventSet(parsed)

	transferTopic := crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	fromTopic := common.BytesToHash(common.LeftPadBytes(from.Bytes(), 32))
	toTopic := common.BytesToHash(common.LeftPadBytes(to.Bytes(), 32))
	packed, err := set.ABI.Events["Transfer"].Inputs.NonIndexed().Pack(big.NewInt(value))
	require.NoError(t, err)

	block := chaintypes.Block{ChainID: 1, Number: blockNumber, Hash: blockHash(blockNumber), Timestamp: timestamp}
	l := chaintypes.Log{
		ID: chaintypes.LogID(block.Hash, 0), ChainID: 1, Address: contract,
		BlockHash: block.Hash, BlockNumber: blockNumber,
		Topic0: &transferTopic, Topic1: &fromTopic, Topic2: &toTopic, Data: packed,
	}

	txs := []chaintypes.Transaction{{ChainID: 1, Hash: l.TransactionHash, BlockHash: block.Hash, BlockNumber: blockNumber}}
	require.NoError(t, store.InsertHistoricalBlock(ctx, 1, block, txs, eventstore.HistoricalBlockOpts{FilterKey: "transfers"}))
	require.NoError(t, store.InsertHistoricalLogs(ctx, 1, []chaintypes.Log{l}))

	return set
}

func blockHash(n uint64) common.Hash {
	return common.BigToHash(big.NewInt(int64(n) + 1000))
}

// transferFilters builds the IncludeLogFilterEvents map Notify's
// GetEvents call needs for the "transfers" filter over contract.
func transferFilters(contract common.Address, set abidecode.EventSet) map[string]aggregator.FilterEvents {
	return map[string]aggregator.FilterEvents{
		"transfers": {
			Filter: chaintypes.LogFilter{Name: "transfers", ChainID: 1, Addresses: []common.Address{contract}},
			Events: set,
		},
	}
}

func setAggregatorCheckpoint(t *testing.T, agg *aggregator.Aggregator, timestamp uint64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, agg.HandleNewHistoricalCheckpoint(ctx, 1, timestamp))
	require.NoError(t, agg.HandleHistoricalSyncComplete(ctx, 1))
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if agg.Checkpoint() >= timestamp {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, timestamp, agg.Checkpoint())
}

type accountBalance struct {
	Balance int64 `json:"balance"`
}

func balanceHandler(t *testing.T) HandlerFunc {
	return func(ctx context.Context, evt aggregator.DecodedEvent, entities *EntitiesView, contracts *ContractsView) error {
		to, _ := evt.Params["to"].(common.Address)
		data, err := json.Marshal(accountBalance{Balance: 1})
		if err != nil {
			return err
		}
		return entities.Put(ctx, "Account", to.Hex(), data)
	}
}

func TestPipeline_NotifyProcessesPageAndAdvancesToTimestamp(t *testing.T) {
	events := setupEventStore(t)
	derived := setupDerivedStore(t)
	contract := common.HexToAddress("0xc0ffee")
	from := common.HexToAddress("0xaaaa")
	to := common.HexToAddress("0xbbbb")

	set := insertTransferLog(t, events, contract, from, to, 10, 1000, 1)

	agg := aggregator.New(events, logger.GetDefaultLogger(), aggregator.Signals{})
	runAggregator(t, agg)
	setAggregatorCheckpoint(t, agg, 2000)

	var processed []uint64
	p := New(derived, nil, logger.GetDefaultLogger(), Signals{
		OnEventsProcessed: func(toTimestamp uint64) { processed = append(processed, toTimestamp) },
	})
	p.RegisterHandler("transfers", "Transfer", balanceHandler(t))

	require.NoError(t, p.Notify(context.Background(), agg, transferFilters(contract, set)))
	require.Equal(t, []uint64{2000}, processed)
	require.Equal(t, uint64(2000), p.ToTimestamp())

	row, ok, err := derived.GetLive(context.Background(), "Account", to.Hex())
	require.NoError(t, err)
	require.True(t, ok)
	var bal accountBalance
	require.NoError(t, json.Unmarshal(row.Data, &bal))
	require.Equal(t, int64(1), bal.Balance)
}

func TestPipeline_HandlerErrorRollsBackPageAndLeavesToTimestampUnchanged(t *testing.T) {
	events := setupEventStore(t)
	derived := setupDerivedStore(t)
	contract := common.HexToAddress("0xc0ffee")
	from := common.HexToAddress("0xaaaa")
	to := common.HexToAddress("0xbbbb")

	set := insertTransferLog(t, events, contract, from, to, 10, 1000, 1)

	agg := aggregator.New(events, logger.GetDefaultLogger(), aggregator.Signals{})
	runAggregator(t, agg)
	setAggregatorCheckpoint(t, agg, 2000)

	wantErr := errors.New("boom")
	var failedEvt aggregator.DecodedEvent
	var failErr error
	p := New(derived, nil, logger.GetDefaultLogger(), Signals{
		OnHandlerError: func(evt aggregator.DecodedEvent, err error) { failedEvt = evt; failErr = err },
	})
	p.RegisterHandler("transfers", "Transfer", func(ctx context.Context, evt aggregator.DecodedEvent, entities *EntitiesView, contracts *ContractsView) error {
		_ = entities.Put(ctx, "Account", "0xshouldnotpersist", []byte(`{}`))
		return wantErr
	})

	err := p.Notify(context.Background(), agg, transferFilters(contract, set))
	require.Error(t, err)
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, "Transfer", failedEvt.EventName)
	require.ErrorIs(t, failErr, wantErr)
	require.Equal(t, uint64(0), p.ToTimestamp())

	_, ok, err := derived.GetLive(context.Background(), "Account", "0xshouldnotpersist")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPipeline_HandleReorgRollsBackDerivedStoreAndRewindsToTimestamp(t *testing.T) {
	events := setupEventStore(t)
	derived := setupDerivedStore(t)
	contract := common.HexToAddress("0xc0ffee")
	from := common.HexToAddress("0xaaaa")
	to := common.HexToAddress("0xbbbb")

	set := insertTransferLog(t, events, contract, from, to, 10, 500, 1)

	agg := aggregator.New(events, logger.GetDefaultLogger(), aggregator.Signals{})
	runAggregator(t, agg)
	setAggregatorCheckpoint(t, agg, 600)

	p := New(derived, nil, logger.GetDefaultLogger(), Signals{})
	p.RegisterHandler("transfers", "Transfer", balanceHandler(t))
	require.NoError(t, p.Notify(context.Background(), agg, transferFilters(contract, set)))
	require.Equal(t, uint64(600), p.ToTimestamp())

	require.NoError(t, p.HandleReorg(context.Background(), 300))
	require.Equal(t, uint64(300), p.ToTimestamp())
	require.Equal(t, StateIdle, p.State())

	_, ok, err := derived.GetLive(context.Background(), "Account", to.Hex())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPipeline_ResetWipesDerivedStoreAndRebuildsRegistry(t *testing.T) {
	events := setupEventStore(t)
	derived := setupDerivedStore(t)
	contract := common.HexToAddress("0xc0ffee")
	from := common.HexToAddress("0xaaaa")
	to := common.HexToAddress("0xbbbb")

	set := insertTransferLog(t, events, contract, from, to, 10, 500, 1)

	agg := aggregator.New(events, logger.GetDefaultLogger(), aggregator.Signals{})
	runAggregator(t, agg)
	setAggregatorCheckpoint(t, agg, 600)

	p := New(derived, nil, logger.GetDefaultLogger(), Signals{})
	p.SetHistoricalSyncCompletedAt(500)
	p.RegisterHandler("transfers", "Transfer", balanceHandler(t))
	require.NoError(t, p.Notify(context.Background(), agg, transferFilters(contract, set)))
	require.True(t, p.Healthy())

	called := false
	require.NoError(t, p.Reset(context.Background(), map[string]HandlerFunc{
		"transfers/Transfer": func(ctx context.Context, evt aggregator.DecodedEvent, entities *EntitiesView, contracts *ContractsView) error {
			called = true
			return nil
		},
	}))

	require.Equal(t, uint64(0), p.ToTimestamp())
	require.False(t, p.Healthy())
	_, ok, err := derived.GetLive(context.Background(), "Account", to.Hex())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, p.Notify(context.Background(), agg, transferFilters(contract, set)))
	require.True(t, called)
}

func TestPipeline_HealthyFlipsOnceToTimestampReachesHistoricalSyncCompletedAt(t *testing.T) {
	events := setupEventStore(t)
	derived := setupDerivedStore(t)
	contract := common.HexToAddress("0xc0ffee")
	from := common.HexToAddress("0xaaaa")
	to := common.HexToAddress("0xbbbb")

	set := insertTransferLog(t, events, contract, from, to, 10, 1000, 1)

	agg := aggregator.New(events, logger.GetDefaultLogger(), aggregator.Signals{})
	runAggregator(t, agg)
	setAggregatorCheckpoint(t, agg, 1000)

	var becameHealthy bool
	p := New(derived, nil, logger.GetDefaultLogger(), Signals{
		OnHealthy: func(healthy bool) { becameHealthy = healthy },
	})
	p.SetHistoricalSyncCompletedAt(1000)
	p.RegisterHandler("transfers", "Transfer", balanceHandler(t))

	require.False(t, p.Healthy())
	require.NoError(t, p.Notify(context.Background(), agg, transferFilters(contract, set)))
	require.True(t, p.Healthy())
	require.True(t, becameHealthy)
}

// fakeRPCClient is a minimal rpcclient.Client stub exercising only CallContract.
type fakeRPCClient struct {
	calls  int
	result []byte
}

func (f *fakeRPCClient) Close() {}
func (f *fakeRPCClient) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}
func (f *fakeRPCClient) GetBlockByNumber(ctx context.Context, number *uint64, fullTx bool) (*types.Header, types.Transactions, error) {
	return nil, nil, nil
}
func (f *fakeRPCClient) GetBlockByHash(ctx context.Context, hash []byte, fullTx bool) (*types.Header, types.Transactions, error) {
	return nil, nil, nil
}
func (f *fakeRPCClient) GetFinalizedBlockHeader(ctx context.Context) (*types.Header, error) {
	return nil, nil
}
func (f *fakeRPCClient) GetSafeBlockHeader(ctx context.Context) (*types.Header, error) {
	return nil, nil
}
func (f *fakeRPCClient) GetLatestBlockNumber(ctx context.Context) (uint64, error) { return 0, nil }
func (f *fakeRPCClient) CallContract(ctx context.Context, to common.Address, calldata []byte, blockNumber *uint64) ([]byte, error) {
	f.calls++
	return f.result, nil
}

func TestSQLContractCache_MissCallsRPCAndPersistsForNextRead(t *testing.T) {
	store := setupEventStore(t)
	client := &fakeRPCClient{result: []byte{0xde, 0xad, 0xbe, 0xef}}
	cache := NewSQLContractCache(store, client)

	result, err := cache.Read(context.Background(), 1, "0xc0ffee", 10, []byte{0x01})
	require.NoError(t, err)
	require.Equal(t, client.result, result)
	require.Equal(t, 1, client.calls)

	result2, err := cache.Read(context.Background(), 1, "0xc0ffee", 10, []byte{0x01})
	require.NoError(t, err)
	require.Equal(t, client.result, result2)
	require.Equal(t, 1, client.calls, "second read must be served from the cache, not another eth_call")
}

package graphqlapi

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
	"github.com/goran-ethernal/ChainIndexor/internal/config"
	"github.com/goran-ethernal/ChainIndexor/internal/db"
	"github.com/goran-ethernal/ChainIndexor/internal/eventstore"
	"github.com/goran-ethernal/ChainIndexor/internal/logger"
)

func setupResolverStore(t *testing.T) eventstore.Store {
	t.Helper()

	tmpDir := t.TempDir()
	dbConfig := config.DatabaseConfig{Directory: tmpDir, JournalMode: "WAL"}
	dbConfig.ApplyDefaults()

	sqlDB, err := db.NewSQLiteDBFromConfig(dbConfig, "graphqlapi_test.db")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	store := eventstore.NewSQLiteStore(sqlDB, logger.GetDefaultLogger())
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func insertTestTransferLog(t *testing.T, store eventstore.Store, chainID, blockNumber, timestamp uint64) {
	t.Helper()
	ctx := context.Background()

	blockHash := common.HexToHash("0xaa")
	topic0 := common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

	block := chaintypes.Block{
		ChainID:   chainID,
		Hash:      blockHash,
		Number:    blockNumber,
		Timestamp: timestamp,
		Miner:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
	}
	txs := []chaintypes.Transaction{{ChainID: chainID, Hash: common.HexToHash("0xtx"), BlockHash: blockHash, BlockNumber: blockNumber}}
	require.NoError(t, store.InsertHistoricalBlock(ctx, chainID, block, txs,
		eventstore.HistoricalBlockOpts{FilterKey: "transfers", BlockNumberToCacheFrom: blockNumber}))

	require.NoError(t, store.InsertHistoricalLogs(ctx, chainID, []chaintypes.Log{
		{
			ChainID:         chainID,
			ID:              chaintypes.LogID(blockHash, 0),
			Address:         common.HexToAddress("0x2222222222222222222222222222222222222222"),
			BlockHash:       blockHash,
			BlockNumber:     blockNumber,
			TransactionHash: common.HexToHash("0xtx"),
			LogIndex:        0,
			Data:            []byte{0x01},
			Topic0:          &topic0,
		},
	}))
}

func TestResolver_GetLogEvents_ReturnsInsertedLog(t *testing.T) {
	store := setupResolverStore(t)
	insertTestTransferLog(t, store, 1, 100, 5000)

	r := &Resolver{Store: store, Log: logger.GetDefaultLogger()}

	page, err := r.GetLogEvents(context.Background(), getLogEventsArgs{
		FromTimestamp: 0,
		ToTimestamp:   10000,
		Filters: []logFilterInput{{
			Name:       "transfers",
			ChainId:    1,
			StartBlock: 0,
		}},
	})
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	require.Equal(t, "0x2222222222222222222222222222222222222222", page.Events[0].Address)
	require.Equal(t, float64(5000), page.Events[0].Timestamp)
	require.True(t, page.Metadata.IsLastPage)
}

func TestResolver_GetNetworkHistoricalSync_NilProviderReturnsNil(t *testing.T) {
	r := &Resolver{}
	result, err := r.GetNetworkHistoricalSync(context.Background(), chainIDArgs{ChainId: 1})
	require.NoError(t, err)
	require.Nil(t, result)
}

type fakeStatusProvider struct {
	status NetworkHistoricalSync
	ok     bool
}

func (f *fakeStatusProvider) NetworkHistoricalSync(chainID uint64) (NetworkHistoricalSync, bool) {
	return f.status, f.ok
}

func TestResolver_GetNetworkHistoricalSync_ReturnsProviderStatus(t *testing.T) {
	r := &Resolver{Status: &fakeStatusProvider{
		status: NetworkHistoricalSync{ChainID: 1, Checkpoint: 9000, IsComplete: true},
		ok:     true,
	}}

	result, err := r.GetNetworkHistoricalSync(context.Background(), chainIDArgs{ChainId: 1})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, float64(9000), result.Checkpoint)
	require.True(t, result.IsComplete)
}

func TestParseSchema_BuildsAgainstResolver(t *testing.T) {
	r := &Resolver{Store: setupResolverStore(t), Broadcast: NewBroadcaster(), Log: logger.GetDefaultLogger()}
	schema, err := ParseSchema(r)
	require.NoError(t, err)
	require.NotNil(t, schema)

	resp := schema.Exec(context.Background(), `query($from: Float!, $to: Float!) {
		getLogEvents(fromTimestamp: $from, toTimestamp: $to, filters: []) {
			metadata { isLastPage }
		}
	}`, "", map[string]interface{}{"from": float64(0), "to": float64(1)})
	require.Empty(t, resp.Errors)

	var out struct {
		GetLogEvents struct {
			Metadata struct {
				IsLastPage bool `json:"isLastPage"`
			} `json:"metadata"`
		} `json:"getLogEvents"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	require.True(t, out.GetLogEvents.Metadata.IsLastPage)
}

func TestBroadcaster_PublishDeliversToMatchingChainSubscriberOnly(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chainOne := b.subscribe(ctx, topicNewHistoricalCheckpoint, 1)
	chainTwo := b.subscribe(ctx, topicNewHistoricalCheckpoint, 2)

	b.PublishNewHistoricalCheckpoint(1, 42)

	select {
	case v := <-chainOne:
		ev := v.(checkpointEvent)
		require.Equal(t, float64(42), ev.Timestamp)
	default:
		t.Fatal("expected event on chain 1's subscription")
	}

	select {
	case <-chainTwo:
		t.Fatal("chain 2's subscriber should not have received chain 1's event")
	default:
	}
}

func TestBroadcaster_SubscribeChannelClosesOnContextCancel(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())

	ch := b.subscribe(ctx, topicReorg, 1)
	cancel()

	_, ok := <-ch
	require.False(t, ok, "channel should be closed once the subscribing context is cancelled")
}

package aggregator

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/ChainIndexor/internal/abidecode"
	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
	"github.com/goran-ethernal/ChainIndexor/internal/config"
	"github.com/goran-ethernal/ChainIndexor/internal/db"
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

func mustParseABI(t *testing.T, j string) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(j))
	require.NoError(t, err)
	return parsed
}

func setupQueryTestStore(t *testing.T) eventstore.Store {
	t.Helper()
	tmpDir := t.TempDir()
	dbConfig := config.DatabaseConfig{Directory: tmpDir, JournalMode: "WAL"}
	dbConfig.ApplyDefaults()

	sqlDB, err := db.NewSQLiteDBFromConfig(dbConfig, "aggregator_test.db")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	store := eventstore.NewSQLiteStore(sqlDB, logger.GetDefaultLogger())
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestEventsIterator_DecodesMatchingLogsAndSkipsUnknownSelectors(t *testing.T) {
	store := setupQueryTestStore(t)
	ctx := context.Background()

	contract := common.HexToAddress("0xc0ffee")
	from := common.HexToAddress("0xaaaa")
	to := common.HexToAddress("0xbbbb")

	set := abidecode.NewEventSet(mustParseABI(t, transferABI))
	transferTopic := crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	fromTopic := common.BytesToHash(common.LeftPadBytes(from.Bytes(), 32))
	toTopic := common.BytesToHash(common.LeftPadBytes(to.Bytes(), 32))
	packed, err := set.ABI.Events["Transfer"].Inputs.NonIndexed().Pack(bigOne())
	require.NoError(t, err)

	block := chaintypes.Block{ChainID: 1, Number: 10, Hash: common.HexToHash("0xb10"), Timestamp: 1000}
	matching := chaintypes.Log{
		ID: chaintypes.LogID(block.Hash, 0), ChainID: 1, Address: contract, BlockHash: block.Hash, BlockNumber: 10,
		Topic0: &transferTopic, Topic1: &fromTopic, Topic2: &toTopic, Data: packed,
	}

	unknownTopic := crypto.Keccak256Hash([]byte("SomethingElse()"))
	unmatched := chaintypes.Log{
		ID: chaintypes.LogID(block.Hash, 1), ChainID: 1, Address: contract, BlockHash: block.Hash, BlockNumber: 10,
		Topic0: &unknownTopic,
	}

	txs := []chaintypes.Transaction{{ChainID: 1, Hash: matching.TransactionHash, BlockHash: block.Hash, BlockNumber: 10}}
	require.NoError(t, store.InsertHistoricalBlock(ctx, 1, block, txs, eventstore.HistoricalBlockOpts{FilterKey: "f1"}))
	require.NoError(t, store.InsertHistoricalLogs(ctx, 1, []chaintypes.Log{matching, unmatched}))

	a := New(store, logger.GetDefaultLogger(), Signals{})

	it := a.GetEvents(GetEventsQuery{
		FromTimestamp: 0,
		ToTimestamp:   2000,
		PageSize:      10,
		IncludeLogFilterEvents: map[string]FilterEvents{
			"erc20-transfers": {
				Filter: chaintypes.LogFilter{Name: "erc20-transfers", ChainID: 1, Addresses: []common.Address{contract}},
				Events: set,
			},
		},
	})

	var all []DecodedEvent
	for !it.Done() {
		page, err := it.Next(ctx)
		require.NoError(t, err)
		all = append(all, page.Events...)
		if page.Metadata.IsLastPage {
			break
		}
	}

	require.Len(t, all, 1)
	require.Equal(t, "erc20-transfers", all[0].FilterName)
	require.Equal(t, "Transfer", all[0].EventName)
	require.Equal(t, from, all[0].Params["from"])
	require.Equal(t, to, all[0].Params["to"])
}

func TestEventsIterator_ResolvesAmbiguousLogsDeterministically(t *testing.T) {
	store := setupQueryTestStore(t)
	ctx := context.Background()

	contract := common.HexToAddress("0xc0ffee")
	from := common.HexToAddress("0xaaaa")
	to := common.HexToAddress("0xbbbb")

	set := abidecode.NewEventSet(mustParseABI(t, transferABI))
	transferTopic := crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	fromTopic := common.BytesToHash(common.LeftPadBytes(from.Bytes(), 32))
	toTopic := common.BytesToHash(common.LeftPadBytes(to.Bytes(), 32))
	packed, err := set.ABI.Events["Transfer"].Inputs.NonIndexed().Pack(bigOne())
	require.NoError(t, err)

	block := chaintypes.Block{ChainID: 1, Number: 10, Hash: common.HexToHash("0xb10"), Timestamp: 1000}
	l := chaintypes.Log{
		ID: chaintypes.LogID(block.Hash, 0), ChainID: 1, Address: contract, BlockHash: block.Hash, BlockNumber: 10,
		Topic0: &transferTopic, Topic1: &fromTopic, Topic2: &toTopic, Data: packed,
	}
	txs := []chaintypes.Transaction{{ChainID: 1, Hash: l.TransactionHash, BlockHash: block.Hash, BlockNumber: 10}}
	require.NoError(t, store.InsertHistoricalBlock(ctx, 1, block, txs, eventstore.HistoricalBlockOpts{FilterKey: "f1"}))
	require.NoError(t, store.InsertHistoricalLogs(ctx, 1, []chaintypes.Log{l}))

	a := New(store, logger.GetDefaultLogger(), Signals{})

	// Two filters both match this log; resolution must always pick the
	// lexicographically-first filter name regardless of map iteration order.
	filters := map[string]FilterEvents{
		"zzz-later": {Filter: chaintypes.LogFilter{Name: "zzz-later", ChainID: 1, Addresses: []common.Address{contract}}, Events: set},
		"aaa-first": {Filter: chaintypes.LogFilter{Name: "aaa-first", ChainID: 1, Addresses: []common.Address{contract}}, Events: set},
	}

	it := a.GetEvents(GetEventsQuery{ToTimestamp: 2000, PageSize: 10, IncludeLogFilterEvents: filters})
	page, err := it.Next(ctx)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	require.Equal(t, "aaa-first", page.Events[0].FilterName)
}

func bigOne() *big.Int { return big.NewInt(1_000_000) }

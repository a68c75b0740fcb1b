package chaintypes

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestCursorLess(t *testing.T) {
	base := Cursor{Timestamp: 100, ChainID: 1, BlockNumber: 10, LogIndex: 0}

	assert.True(t, base.Less(Cursor{Timestamp: 101, ChainID: 0, BlockNumber: 0, LogIndex: 0}))
	assert.True(t, base.Less(Cursor{Timestamp: 100, ChainID: 2, BlockNumber: 0, LogIndex: 0}))
	assert.True(t, base.Less(Cursor{Timestamp: 100, ChainID: 1, BlockNumber: 11, LogIndex: 0}))
	assert.True(t, base.Less(Cursor{Timestamp: 100, ChainID: 1, BlockNumber: 10, LogIndex: 1}))
	assert.False(t, base.Less(base))
}

func TestLogFilterMatches(t *testing.T) {
	topicA := common.HexToHash("0xA")
	filter := LogFilter{
		ChainID:   1,
		Addresses: []common.Address{common.HexToAddress("0xAAA")},
		Topics:    []TopicSlot{{OneOf: []common.Hash{topicA}}},
	}

	matching := Log{
		ChainID: 1,
		Address: common.HexToAddress("0xAAA"),
		Topic0:  &topicA,
	}
	assert.True(t, filter.Matches(matching))

	wrongChain := matching
	wrongChain.ChainID = 2
	assert.False(t, filter.Matches(wrongChain))

	wrongAddress := matching
	wrongAddress.Address = common.HexToAddress("0xBBB")
	assert.False(t, filter.Matches(wrongAddress))

	otherTopic := common.HexToHash("0xB")
	wrongTopic := matching
	wrongTopic.Topic0 = &otherTopic
	assert.False(t, filter.Matches(wrongTopic))
}

func TestLogFilterMatchesEmptyTopicSlotMatchesAny(t *testing.T) {
	filter := LogFilter{ChainID: 1}
	topicA := common.HexToHash("0xA")
	assert.True(t, filter.Matches(Log{ChainID: 1, Topic0: &topicA}))
	assert.True(t, filter.Matches(Log{ChainID: 1}))
}

func TestCheckpointPerNetworkValue(t *testing.T) {
	incomplete := Checkpoint{HistoricalCheckpoint: 50, RealtimeCheckpoint: 80, IsHistoricalSyncComplete: false}
	assert.Equal(t, uint64(50), incomplete.PerNetworkValue())

	complete := Checkpoint{HistoricalCheckpoint: 50, RealtimeCheckpoint: 80, IsHistoricalSyncComplete: true}
	assert.Equal(t, uint64(80), complete.PerNetworkValue())
}

func TestLogID(t *testing.T) {
	h := common.HexToHash("0x1234")
	id1 := LogID(h, 0)
	id2 := LogID(h, 1)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, id1, LogID(h, 0))
}

func TestLogFilterKeyIsStableAndDistinguishesFilters(t *testing.T) {
	base := LogFilter{
		ChainID:    1,
		Addresses:  []common.Address{common.HexToAddress("0xAAA"), common.HexToAddress("0xBBB")},
		Topics:     []TopicSlot{{OneOf: []common.Hash{common.HexToHash("0xA")}}},
		StartBlock: 100,
	}
	reordered := base
	reordered.Addresses = []common.Address{common.HexToAddress("0xBBB"), common.HexToAddress("0xAAA")}
	assert.Equal(t, base.Key(), reordered.Key(), "address order must not affect FilterKey identity")

	differentChain := base
	differentChain.ChainID = 2
	assert.NotEqual(t, base.Key(), differentChain.Key())

	differentStart := base
	differentStart.StartBlock = 200
	assert.NotEqual(t, base.Key(), differentStart.Key())
}

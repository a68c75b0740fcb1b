package chaintypes

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	require.NoError(t, err)
	return key
}

func TestFromGethLog(t *testing.T) {
	topic0 := common.HexToHash("0xA")
	topic1 := common.HexToHash("0xB")
	blockHash := common.HexToHash("0xblock")

	l := types.Log{
		Address:     common.HexToAddress("0xAAA"),
		BlockHash:   blockHash,
		BlockNumber: 42,
		TxHash:      common.HexToHash("0xtx"),
		TxIndex:     2,
		Index:       3,
		Data:        []byte{0x01},
		Topics:      []common.Hash{topic0, topic1},
	}

	out := FromGethLog(7, l)
	assert.Equal(t, uint64(7), out.ChainID)
	assert.Equal(t, LogID(blockHash, 3), out.ID)
	assert.Equal(t, l.Address, out.Address)
	assert.Equal(t, uint64(42), out.BlockNumber)
	require.NotNil(t, out.Topic0)
	assert.Equal(t, topic0, *out.Topic0)
	require.NotNil(t, out.Topic1)
	assert.Equal(t, topic1, *out.Topic1)
	assert.Nil(t, out.Topic2)
	assert.Nil(t, out.Topic3)
}

func TestFromGethHeader(t *testing.T) {
	h := &types.Header{
		ParentHash: common.HexToHash("0xparent"),
		Number:     big.NewInt(10),
		Time:       12345,
		Difficulty: big.NewInt(1),
		GasLimit:   30_000_000,
		GasUsed:    21_000,
		Coinbase:   common.HexToAddress("0xminer"),
	}

	block := FromGethHeader(9, h, big.NewInt(500))
	assert.Equal(t, uint64(9), block.ChainID)
	assert.Equal(t, uint64(10), block.Number)
	assert.Equal(t, uint64(12345), block.Timestamp)
	assert.Equal(t, h.Coinbase, block.Miner)
	assert.Equal(t, big.NewInt(500), block.TotalDifficulty)
}

func TestFromGethTransactionLegacy(t *testing.T) {
	key := mustTestKey(t)
	to := common.HexToAddress("0xrecipient")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    1,
		To:       &to,
		Value:    big.NewInt(100),
		Gas:      21000,
		GasPrice: big.NewInt(1_000_000_000),
	})
	signer := types.NewEIP155Signer(big.NewInt(1))
	signedTx, err := types.SignTx(tx, signer, key)
	require.NoError(t, err)

	blockHash := common.HexToHash("0xblock")
	out := FromGethTransaction(1, signedTx, blockHash, 10, 0, signer)

	assert.Equal(t, TxTypeLegacy, out.Type)
	assert.Equal(t, blockHash, out.BlockHash)
	assert.Equal(t, uint64(10), out.BlockNumber)
	assert.Equal(t, to, *out.To)
	assert.Equal(t, big.NewInt(100), out.Value)
}

package chaintypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// FromGethLog converts a go-ethereum log into the store's domain type, the
// same explicit topic0..topic3 slot assignment the teacher's
// fetcher.ethLogToDbLog uses.
func FromGethLog(chainID uint64, l types.Log) Log {
	out := Log{
		ChainID:          chainID,
		ID:               LogID(l.BlockHash, uint64(l.Index)),
		Address:          l.Address,
		BlockHash:        l.BlockHash,
		BlockNumber:      l.BlockNumber,
		TransactionHash:  l.TxHash,
		TransactionIndex: uint64(l.TxIndex),
		LogIndex:         uint64(l.Index),
		Data:             l.Data,
	}
	if len(l.Topics) > 0 {
		t := l.Topics[0]
		out.Topic0 = &t
	}
	if len(l.Topics) > 1 {
		t := l.Topics[1]
		out.Topic1 = &t
	}
	if len(l.Topics) > 2 {
		t := l.Topics[2]
		out.Topic2 = &t
	}
	if len(l.Topics) > 3 {
		t := l.Topics[3]
		out.Topic3 = &t
	}
	return out
}

// FromGethHeader converts a go-ethereum header into the store's Block type.
// totalDifficulty is not carried on types.Header post-merge chains pass 0.
func FromGethHeader(chainID uint64, h *types.Header, totalDifficulty *big.Int) Block {
	baseFee := h.BaseFee
	if totalDifficulty == nil {
		totalDifficulty = big.NewInt(0)
	}
	return Block{
		ChainID:          chainID,
		Hash:             h.Hash(),
		ParentHash:       h.ParentHash,
		Number:           h.Number.Uint64(),
		Timestamp:        h.Time,
		Miner:            h.Coinbase,
		GasLimit:         h.GasLimit,
		GasUsed:          h.GasUsed,
		BaseFeePerGas:    baseFee,
		Difficulty:       h.Difficulty,
		TotalDifficulty:  totalDifficulty,
		ExtraData:        h.Extra,
		LogsBloom:        h.Bloom.Bytes(),
		MixHash:          h.MixDigest,
		Nonce:            h.Nonce.Uint64(),
		ReceiptsRoot:     h.ReceiptHash,
		Sha3Uncles:       h.UncleHash,
		Size:             uint64(h.Size()),
		StateRoot:        h.Root,
		TransactionsRoot: h.TxHash,
	}
}

// FromGethTransaction converts a go-ethereum transaction into the store's
// Transaction type. blockHash/blockNumber/txIndex come from the enclosing
// block, since types.Transaction does not carry them once decoded standalone.
func FromGethTransaction(chainID uint64, tx *types.Transaction, blockHash common.Hash, blockNumber, txIndex uint64, signer types.Signer) Transaction {
	from, _ := types.Sender(signer, tx)
	v, r, s := tx.RawSignatureValues()

	out := Transaction{
		ChainID:          chainID,
		Hash:             tx.Hash(),
		BlockHash:        blockHash,
		BlockNumber:      blockNumber,
		TransactionIndex: txIndex,
		From:             from,
		To:               tx.To(),
		Input:            tx.Data(),
		Nonce:            tx.Nonce(),
		Value:            tx.Value(),
		Gas:              tx.Gas(),
		V:                v,
		R:                r,
		S:                s,
		GasPrice:         tx.GasPrice(),
	}

	switch tx.Type() {
	case types.LegacyTxType:
		out.Type = TxTypeLegacy
	case types.AccessListTxType:
		out.Type = TxTypeEIP2930
	case types.DynamicFeeTxType:
		out.Type = TxTypeEIP1559
		out.MaxFeePerGas = tx.GasFeeCap()
		out.MaxPriorityFeePerGas = tx.GasTipCap()
	default:
		out.Type = TxTypeLegacy
	}

	return out
}

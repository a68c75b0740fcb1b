package eventstore

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
)

// dbBlock mirrors chaintypes.Block at the storage boundary, the same
// meddler-tagged-struct idiom the teacher's fetcher.dbLog uses.
type dbBlock struct {
	ChainID          uint64         `meddler:"chain_id"`
	Hash             common.Hash    `meddler:"hash,hash"`
	ParentHash       common.Hash    `meddler:"parent_hash,hash"`
	Number           uint64         `meddler:"number"`
	Timestamp        uint64         `meddler:"timestamp"`
	Miner            common.Address `meddler:"miner,address"`
	GasLimit         uint64         `meddler:"gas_limit"`
	GasUsed          uint64         `meddler:"gas_used"`
	BaseFeePerGas    *big.Int       `meddler:"base_fee_per_gas,bigint"`
	Difficulty       *big.Int       `meddler:"difficulty,bigint"`
	TotalDifficulty  *big.Int       `meddler:"total_difficulty,bigint"`
	ExtraData        []byte         `meddler:"extra_data"`
	LogsBloom        []byte         `meddler:"logs_bloom"`
	MixHash          common.Hash    `meddler:"mix_hash,hash"`
	Nonce            uint64         `meddler:"nonce"`
	ReceiptsRoot     common.Hash    `meddler:"receipts_root,hash"`
	Sha3Uncles       common.Hash    `meddler:"sha3_uncles,hash"`
	Size             uint64         `meddler:"size"`
	StateRoot        common.Hash    `meddler:"state_root,hash"`
	TransactionsRoot common.Hash    `meddler:"transactions_root,hash"`
}

func blockToRow(chainID uint64, b chaintypes.Block) *dbBlock {
	return &dbBlock{
		ChainID:          chainID,
		Hash:             b.Hash,
		ParentHash:       b.ParentHash,
		Number:           b.Number,
		Timestamp:        b.Timestamp,
		Miner:            b.Miner,
		GasLimit:         b.GasLimit,
		GasUsed:          b.GasUsed,
		BaseFeePerGas:    b.BaseFeePerGas,
		Difficulty:       b.Difficulty,
		TotalDifficulty:  b.TotalDifficulty,
		ExtraData:        b.ExtraData,
		LogsBloom:        b.LogsBloom,
		MixHash:          b.MixHash,
		Nonce:            b.Nonce,
		ReceiptsRoot:     b.ReceiptsRoot,
		Sha3Uncles:       b.Sha3Uncles,
		Size:             b.Size,
		StateRoot:        b.StateRoot,
		TransactionsRoot: b.TransactionsRoot,
	}
}

func (r *dbBlock) toChaintype() chaintypes.Block {
	return chaintypes.Block{
		ChainID:          r.ChainID,
		Hash:             r.Hash,
		ParentHash:       r.ParentHash,
		Number:           r.Number,
		Timestamp:        r.Timestamp,
		Miner:            r.Miner,
		GasLimit:         r.GasLimit,
		GasUsed:          r.GasUsed,
		BaseFeePerGas:    r.BaseFeePerGas,
		Difficulty:       r.Difficulty,
		TotalDifficulty:  r.TotalDifficulty,
		ExtraData:        r.ExtraData,
		LogsBloom:        r.LogsBloom,
		MixHash:          r.MixHash,
		Nonce:            r.Nonce,
		ReceiptsRoot:     r.ReceiptsRoot,
		Sha3Uncles:       r.Sha3Uncles,
		Size:             r.Size,
		StateRoot:        r.StateRoot,
		TransactionsRoot: r.TransactionsRoot,
	}
}

// dbTransaction mirrors chaintypes.Transaction.
type dbTransaction struct {
	ChainID              uint64          `meddler:"chain_id"`
	Hash                 common.Hash     `meddler:"hash,hash"`
	BlockHash            common.Hash     `meddler:"block_hash,hash"`
	BlockNumber          uint64          `meddler:"block_number"`
	TransactionIndex     uint64          `meddler:"transaction_index"`
	From                 common.Address  `meddler:"from_address,address"`
	To                   *common.Address `meddler:"to_address,address"`
	Input                []byte          `meddler:"input"`
	Nonce                uint64          `meddler:"nonce"`
	Value                *big.Int        `meddler:"value,bigint"`
	Gas                  uint64          `meddler:"gas"`
	V                    *big.Int        `meddler:"v,bigint"`
	R                    *big.Int        `meddler:"r,bigint"`
	S                    *big.Int        `meddler:"s,bigint"`
	Type                 string          `meddler:"type"`
	GasPrice             *big.Int        `meddler:"gas_price,bigint"`
	MaxFeePerGas         *big.Int        `meddler:"max_fee_per_gas,bigint"`
	MaxPriorityFeePerGas *big.Int        `meddler:"max_priority_fee_per_gas,bigint"`
	AccessList           []byte          `meddler:"access_list"`
}

func txToRow(chainID uint64, t chaintypes.Transaction) *dbTransaction {
	return &dbTransaction{
		ChainID:              chainID,
		Hash:                 t.Hash,
		BlockHash:            t.BlockHash,
		BlockNumber:          t.BlockNumber,
		TransactionIndex:     t.TransactionIndex,
		From:                 t.From,
		To:                   t.To,
		Input:                t.Input,
		Nonce:                t.Nonce,
		Value:                t.Value,
		Gas:                  t.Gas,
		V:                    t.V,
		R:                    t.R,
		S:                    t.S,
		Type:                 string(t.Type),
		GasPrice:             t.GasPrice,
		MaxFeePerGas:         t.MaxFeePerGas,
		MaxPriorityFeePerGas: t.MaxPriorityFeePerGas,
		AccessList:           t.AccessList,
	}
}

func (r *dbTransaction) toChaintype() chaintypes.Transaction {
	return chaintypes.Transaction{
		ChainID:              r.ChainID,
		Hash:                 r.Hash,
		BlockHash:            r.BlockHash,
		BlockNumber:          r.BlockNumber,
		TransactionIndex:     r.TransactionIndex,
		From:                 r.From,
		To:                   r.To,
		Input:                r.Input,
		Nonce:                r.Nonce,
		Value:                r.Value,
		Gas:                  r.Gas,
		V:                    r.V,
		R:                    r.R,
		S:                    r.S,
		Type:                 chaintypes.TxType(r.Type),
		GasPrice:             r.GasPrice,
		MaxFeePerGas:         r.MaxFeePerGas,
		MaxPriorityFeePerGas: r.MaxPriorityFeePerGas,
		AccessList:           r.AccessList,
	}
}

// dbLog mirrors chaintypes.Log, the same Topic0..Topic3 nullable-column shape
// as the teacher's fetcher.dbLog.
type dbLog struct {
	ID               string         `meddler:"id,pk"`
	ChainID          uint64         `meddler:"chain_id"`
	Address          common.Address `meddler:"address,address"`
	BlockHash        common.Hash    `meddler:"block_hash,hash"`
	BlockNumber      uint64         `meddler:"block_number"`
	TransactionHash  common.Hash    `meddler:"transaction_hash,hash"`
	TransactionIndex uint64         `meddler:"transaction_index"`
	LogIndex         uint64         `meddler:"log_index"`
	Data             []byte         `meddler:"data"`
	Topic0           *common.Hash   `meddler:"topic0,hash"`
	Topic1           *common.Hash   `meddler:"topic1,hash"`
	Topic2           *common.Hash   `meddler:"topic2,hash"`
	Topic3           *common.Hash   `meddler:"topic3,hash"`
}

func logToRow(chainID uint64, l chaintypes.Log) *dbLog {
	return &dbLog{
		ID:               l.ID,
		ChainID:          chainID,
		Address:          l.Address,
		BlockHash:        l.BlockHash,
		BlockNumber:      l.BlockNumber,
		TransactionHash:  l.TransactionHash,
		TransactionIndex: l.TransactionIndex,
		LogIndex:         l.LogIndex,
		Data:             l.Data,
		Topic0:           l.Topic0,
		Topic1:           l.Topic1,
		Topic2:           l.Topic2,
		Topic3:           l.Topic3,
	}
}

func (r *dbLog) toChaintype() chaintypes.Log {
	return chaintypes.Log{
		ChainID:          r.ChainID,
		ID:               r.ID,
		Address:          r.Address,
		BlockHash:        r.BlockHash,
		BlockNumber:      r.BlockNumber,
		TransactionHash:  r.TransactionHash,
		TransactionIndex: r.TransactionIndex,
		LogIndex:         r.LogIndex,
		Data:             r.Data,
		Topic0:           r.Topic0,
		Topic1:           r.Topic1,
		Topic2:           r.Topic2,
		Topic3:           r.Topic3,
	}
}

// dbCachedRange mirrors chaintypes.CachedRange.
type dbCachedRange struct {
	FilterKey         string `meddler:"filter_key"`
	StartBlock        uint64 `meddler:"start_block"`
	EndBlock          uint64 `meddler:"end_block"`
	EndBlockTimestamp uint64 `meddler:"end_block_timestamp"`
}

func (r *dbCachedRange) toChaintype() chaintypes.CachedRange {
	return chaintypes.CachedRange{
		FilterKey:         r.FilterKey,
		StartBlock:        r.StartBlock,
		EndBlock:          r.EndBlock,
		EndBlockTimestamp: r.EndBlockTimestamp,
	}
}

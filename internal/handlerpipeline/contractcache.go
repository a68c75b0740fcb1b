package handlerpipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/goran-ethernal/ChainIndexor/internal/eventstore"
	"github.com/goran-ethernal/ChainIndexor/internal/rpcclient"
)

// SQLContractCache implements ContractCache on top of the event store's
// content-addressed eth_call cache, falling back to a live RPC call on a
// miss and recording the result for next time (spec §4.5: "transparently
// uses the contract-read-result cache keyed on (chainId, address,
// blockNumber, calldata)").
type SQLContractCache struct {
	store  eventstore.Store
	client rpcclient.Client
}

var _ ContractCache = (*SQLContractCache)(nil)

// NewSQLContractCache wires the event store's cache to client for misses.
func NewSQLContractCache(store eventstore.Store, client rpcclient.Client) *SQLContractCache {
	return &SQLContractCache{store: store, client: client}
}

func (c *SQLContractCache) Read(ctx context.Context, chainID uint64, address string, blockNumber uint64, calldata []byte) ([]byte, error) {
	if result, ok, err := c.store.GetContractReadResult(ctx, chainID, address, blockNumber, calldata); err != nil {
		return nil, fmt.Errorf("handlerpipeline: contract cache lookup: %w", err)
	} else if ok {
		return result, nil
	}

	result, err := c.client.CallContract(ctx, common.HexToAddress(address), calldata, &blockNumber)
	if err != nil {
		return nil, fmt.Errorf("handlerpipeline: eth_call: %w", err)
	}

	if err := c.store.InsertContractReadResult(ctx, eventstore.ContractReadResult{
		ChainID:     chainID,
		Address:     address,
		BlockNumber: blockNumber,
		Calldata:    calldata,
		Result:      result,
		InsertedAt:  time.Now().Unix(),
	}); err != nil {
		return nil, fmt.Errorf("handlerpipeline: cache eth_call result: %w", err)
	}

	return result, nil
}

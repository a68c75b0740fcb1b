package handlerpipeline

import (
	"context"
	"fmt"

	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
	"github.com/goran-ethernal/ChainIndexor/internal/derivedstore"
)

// EntitiesView is the per-event transactional entities view passed to a
// HandlerFunc (spec §4.5). Writes are versioned effective at the triggering
// event's timestamp; reads see this transaction's own writes plus the
// current live row.
type EntitiesView struct {
	tx        derivedstore.Tx
	timestamp uint64
}

// Get returns the live entity row visible to this transaction.
func (v *EntitiesView) Get(ctx context.Context, entityName, id string) (chaintypes.DerivedEntityRow, bool, error) {
	return v.tx.Get(ctx, entityName, id)
}

// Put writes a new version of (entityName, id), effective as of the
// triggering event's timestamp.
func (v *EntitiesView) Put(ctx context.Context, entityName, id string, data []byte) error {
	return v.tx.Put(ctx, entityName, id, data, v.timestamp)
}

// ContractsView is the read-only eth_call view passed to a HandlerFunc,
// scoped to one chain and block number (the event's own), backed by the
// contract-read-result cache (spec §4.5).
type ContractsView struct {
	cache       ContractCache
	chainID     uint64
	blockNumber uint64
}

// Call returns the result of calling address with calldata as of this
// event's block, transparently using the content-addressed cache.
func (v *ContractsView) Call(ctx context.Context, address string, calldata []byte) ([]byte, error) {
	if v.cache == nil {
		return nil, fmt.Errorf("handlerpipeline: no contract cache configured")
	}
	return v.cache.Read(ctx, v.chainID, address, v.blockNumber, calldata)
}

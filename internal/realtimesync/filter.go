package realtimesync

import (
	gethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
)

// unionFilterQuery builds the eth_getLogs query restricted to a single
// block, scoped to the union of every filter's address/topics on this
// network (spec §4.3 step 3: "fetch matching logs ... restricted to
// blockHash=b.hash and the union of this network's log filters' address/topics").
func unionFilterQuery(chainID uint64, blockHash common.Hash, filters []chaintypes.LogFilter) gethereum.FilterQuery {
	var addresses []common.Address
	seenAddr := make(map[common.Address]bool)
	maxSlots := 0

	for _, f := range filters {
		if f.ChainID != chainID {
			continue
		}
		for _, a := range f.Addresses {
			if !seenAddr[a] {
				seenAddr[a] = true
				addresses = append(addresses, a)
			}
		}
		if len(f.Topics) > maxSlots {
			maxSlots = len(f.Topics)
		}
	}

	// Any filter on this network with zero addresses means "any address" -
	// the union can't be restricted at all, so the whole query is left
	// address-unscoped rather than silently dropping that filter's logs.
	for _, f := range filters {
		if f.ChainID == chainID && len(f.Addresses) == 0 {
			addresses = nil
			break
		}
	}

	topics := make([][]common.Hash, maxSlots)
	anySlot := make([]bool, maxSlots)
	for _, f := range filters {
		if f.ChainID != chainID {
			continue
		}
		for i := 0; i < maxSlots; i++ {
			if i >= len(f.Topics) || len(f.Topics[i].OneOf) == 0 {
				anySlot[i] = true
				continue
			}
			topics[i] = append(topics[i], f.Topics[i].OneOf...)
		}
	}
	for i := range topics {
		if anySlot[i] {
			topics[i] = nil
		}
	}

	return gethereum.FilterQuery{
		BlockHash: &blockHash,
		Addresses: addresses,
		Topics:    topics,
	}
}

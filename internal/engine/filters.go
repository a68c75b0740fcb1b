package engine

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/goran-ethernal/ChainIndexor/internal/abidecode"
	"github.com/goran-ethernal/ChainIndexor/internal/aggregator"
	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
	"github.com/goran-ethernal/ChainIndexor/internal/config"
)

// loadABI parses a config.FilterConfig's ABI field, which is either a
// filesystem path to a JSON ABI file or the JSON literal itself.
func loadABI(spec string) (abi.ABI, error) {
	body := spec
	if _, err := os.Stat(spec); err == nil {
		raw, err := os.ReadFile(spec)
		if err != nil {
			return abi.ABI{}, fmt.Errorf("engine: reading ABI file %q: %w", spec, err)
		}
		body = string(raw)
	}
	parsed, err := abi.JSON(strings.NewReader(body))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("engine: parsing ABI: %w", err)
	}
	return parsed, nil
}

// buildFilterEvents turns one config.FilterConfig into the (chaintypes.LogFilter,
// abidecode.EventSet) pair the aggregator and historical sync both need:
// the filter drives which logs are fetched/matched, the event set resolves
// what each matched log's topic0 decodes to.
func buildFilterEvents(cfg config.FilterConfig, chainID uint64) (aggregator.FilterEvents, error) {
	parsed, err := loadABI(cfg.ABI)
	if err != nil {
		return aggregator.FilterEvents{}, err
	}
	events := abidecode.NewEventSet(parsed)

	filter := chaintypes.LogFilter{
		Name:          cfg.Name,
		ChainID:       chainID,
		StartBlock:    cfg.StartBlock,
		EndBlock:      cfg.EndBlock,
		MaxBlockRange: cfg.MaxBlockRange,
	}

	switch {
	case cfg.Address != "":
		filter.Addresses = []common.Address{common.HexToAddress(cfg.Address)}
	case len(cfg.Addresses) > 0:
		for _, a := range cfg.Addresses {
			filter.Addresses = append(filter.Addresses, common.HexToAddress(a))
		}
	}

	topic0, err := eventTopics(cfg, parsed)
	if err != nil {
		return aggregator.FilterEvents{}, err
	}
	if len(topic0) > 0 {
		filter.Topics = []chaintypes.TopicSlot{{OneOf: topic0}}
	}

	return aggregator.FilterEvents{Filter: filter, Events: events}, nil
}

// eventTopics resolves a filter's "event" (single named event) or "topics"
// (explicit topic0 hex list) configuration into concrete topic0 hashes. Both
// empty means "every event in the ABI", i.e. no topic0 restriction.
func eventTopics(cfg config.FilterConfig, parsed abi.ABI) ([]common.Hash, error) {
	if cfg.Event != "" {
		ev, ok := parsed.Events[cfg.Event]
		if !ok {
			return nil, fmt.Errorf("engine: filter %q: event %q not found in ABI", cfg.Name, cfg.Event)
		}
		return []common.Hash{ev.ID}, nil
	}
	if len(cfg.Topics) > 0 {
		out := make([]common.Hash, len(cfg.Topics))
		for i, t := range cfg.Topics {
			out[i] = common.HexToHash(t)
		}
		return out, nil
	}
	return nil, nil
}

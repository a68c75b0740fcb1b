// Package abidecode decodes raw event store logs into named parameter maps
// against a contract's ABI, the shared primitive both the Event Aggregator
// (§4.4 getEvents) and the Handler Pipeline (§4.5) use to turn topic0 into a
// concrete event invocation.
package abidecode

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
)

// EventSet indexes one parsed contract ABI's events by their topic0
// selector, so a log's Topic0 resolves directly to the abi.Event describing it.
type EventSet struct {
	ABI        abi.ABI
	BySelector map[string]abi.Event // topic0 hex -> event definition
}

// NewEventSet builds the selector index for a parsed ABI.
func NewEventSet(parsed abi.ABI) EventSet {
	bySelector := make(map[string]abi.Event, len(parsed.Events))
	for _, ev := range parsed.Events {
		bySelector[strings.ToLower(ev.ID.Hex())] = ev
	}
	return EventSet{ABI: parsed, BySelector: bySelector}
}

// Lookup resolves a log's event definition by its topic0, reporting ok=false
// for a log whose selector isn't in this ABI (spec: "undecodable logs are
// logged and skipped, not fatal" — callers decide what to do with !ok).
func (s EventSet) Lookup(l chaintypes.Log) (abi.Event, bool) {
	if l.Topic0 == nil {
		return abi.Event{}, false
	}
	ev, ok := s.BySelector[strings.ToLower(l.Topic0.Hex())]
	return ev, ok
}

// Decode unpacks a log's indexed (topics[1:]) and non-indexed (data) fields
// into one name->value map, keyed by the event's parameter names.
func Decode(event abi.Event, l chaintypes.Log) (map[string]any, error) {
	out := make(map[string]any, len(event.Inputs))

	if err := event.Inputs.UnpackIntoMap(out, l.Data); err != nil {
		return nil, fmt.Errorf("abidecode: unpack %s data: %w", event.Name, err)
	}

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}

	topics := l.Topics()
	if len(indexed) > 0 && len(topics) > 1 {
		if err := abi.ParseTopicsIntoMap(out, indexed, topics[1:]); err != nil {
			return nil, fmt.Errorf("abidecode: unpack %s indexed topics: %w", event.Name, err)
		}
	}

	return out, nil
}

package aggregator

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/goran-ethernal/ChainIndexor/internal/abidecode"
	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
	"github.com/goran-ethernal/ChainIndexor/internal/eventstore"
	"github.com/goran-ethernal/ChainIndexor/internal/logger"
)

// FilterEvents pairs a log filter with the ABI event set used to decode the
// logs it matches, one entry per filterName in GetEventsQuery.IncludeLogFilterEvents.
type FilterEvents struct {
	Filter chaintypes.LogFilter
	Events abidecode.EventSet
}

// DecodedEvent is one event surfaced by the aggregator's getEvents stream:
// the raw log plus the filter/event identity and decoded parameters the
// Handler Pipeline dispatches on.
type DecodedEvent struct {
	Log        chaintypes.Log
	FilterName string
	EventName  string
	Params     map[string]any
}

// GetEventsQuery parameterizes EventsIterator, spec §4.4's getEvents.
type GetEventsQuery struct {
	FromTimestamp          uint64
	ToTimestamp            uint64
	IncludeLogFilterEvents map[string]FilterEvents
	PageSize               int
}

// EventsPage is one page of the lazy getEvents sequence.
type EventsPage struct {
	Events   []DecodedEvent
	Metadata eventstore.PageMetadata
}

// EventsIterator lazily pages through the event store, decoding each log
// against its matching filter's ABI as it goes (spec §4.4).
type EventsIterator struct {
	store   eventstore.Store
	log     *logger.Logger
	filters map[string]FilterEvents
	names   []string // sorted, for deterministic filter-match resolution order

	fromTimestamp uint64
	toTimestamp   uint64
	pageSize      int
	cursor        *chaintypes.Cursor
	done          bool
}

// GetEvents returns a lazy page iterator. No store query happens until Next
// is called.
func (a *Aggregator) GetEvents(q GetEventsQuery) *EventsIterator {
	names := make([]string, 0, len(q.IncludeLogFilterEvents))
	for name := range q.IncludeLogFilterEvents {
		names = append(names, name)
	}
	sort.Strings(names)

	return &EventsIterator{
		store:         a.store,
		log:           a.log,
		filters:       q.IncludeLogFilterEvents,
		names:         names,
		fromTimestamp: q.FromTimestamp,
		toTimestamp:   q.ToTimestamp,
		pageSize:      q.PageSize,
	}
}

// Done reports whether the previous Next call returned the final page.
func (it *EventsIterator) Done() bool { return it.done }

// Next fetches and decodes the next page. Callers stop once it.Done() is true.
func (it *EventsIterator) Next(ctx context.Context) (EventsPage, error) {
	filterList := make([]chaintypes.LogFilter, 0, len(it.filters))
	for _, name := range it.names {
		filterList = append(filterList, it.filters[name].Filter)
	}

	page, err := it.store.GetLogEvents(ctx, eventstore.LogEventsQuery{
		FromTimestamp: it.fromTimestamp,
		ToTimestamp:   it.toTimestamp,
		Filters:       filterList,
		PageSize:      it.pageSize,
		Cursor:        it.cursor,
	})
	if err != nil {
		return EventsPage{}, err
	}

	decoded := make([]DecodedEvent, 0, len(page.Events))
	for _, l := range page.Events {
		filterName, ev, ok := it.resolve(l)
		if !ok {
			it.log.Warnf("skipping undecodable log: chain_id=%d address=%s log_id=%s",
				l.ChainID, l.Address.Hex(), l.ID)
			continue
		}

		params, err := abidecode.Decode(ev, l)
		if err != nil {
			it.log.Warnf("skipping log, decode failed: filter=%s event=%s log_id=%s err=%v",
				filterName, ev.Name, l.ID, err)
			continue
		}

		decoded = append(decoded, DecodedEvent{Log: l, FilterName: filterName, EventName: ev.Name, Params: params})
	}

	it.cursor = page.Metadata.Cursor
	it.done = page.Metadata.IsLastPage

	return EventsPage{Events: decoded, Metadata: page.Metadata}, nil
}

// resolve finds which registered filter this log belongs to and looks up its
// ABI event by topic0, in deterministic filter-name order so a log matching
// more than one registered filter always resolves the same way.
func (it *EventsIterator) resolve(l chaintypes.Log) (string, abi.Event, bool) {
	for _, name := range it.names {
		fe := it.filters[name]
		if !fe.Filter.Matches(l) {
			continue
		}
		if ev, ok := fe.Events.Lookup(l); ok {
			return name, ev, true
		}
	}
	return "", abi.Event{}, false
}

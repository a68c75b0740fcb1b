// Package handlerpipeline implements the Handler Pipeline (spec §4.5): it
// drives the aggregator's getEvents stream page by page, invoking registered
// user handlers inside a per-page derived-store transaction and advancing
// toTimestamp only once a page commits. A reorg halts in-flight processing,
// rolls the derived store back to the common ancestor, and resumes.
//
// Grounded on the teacher's internal/indexer.IndexerCoordinator (the
// per-address/topic routing table, generalized here to route decoded events
// by (filterName, eventName)) and BaseIndexer.HandleReorg's
// delete-from-block-number-onward shape, generalized to the derived store's
// versioned-row rollback.
package handlerpipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goran-ethernal/ChainIndexor/internal/aggregator"
	"github.com/goran-ethernal/ChainIndexor/internal/derivedstore"
	"github.com/goran-ethernal/ChainIndexor/internal/logger"
	"github.com/goran-ethernal/ChainIndexor/internal/metrics"
)

// State mirrors spec §4.5's pipeline state machine.
type State int

const (
	StateIdle State = iota
	StateProcessing
	StateReorging
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateReorging:
		return "reorging"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// HandlerFunc is a user-registered event handler, invoked with the decoded
// event, a per-event transactional entities view, and a read-only contracts view.
type HandlerFunc func(ctx context.Context, evt aggregator.DecodedEvent, entities *EntitiesView, contracts *ContractsView) error

// handlerKey identifies a registered handler by filter and event name.
type handlerKey struct {
	filterName string
	eventName  string
}

// Signals are outward-facing callbacks the pipeline drives.
type Signals struct {
	OnEventsProcessed func(toTimestamp uint64)
	OnHandlerError    func(evt aggregator.DecodedEvent, err error)
	OnHealthy         func(healthy bool)
}

// Pipeline is the Handler Pipeline. It is not safe for concurrent use of its
// exported methods from more than one goroutine — spec §5 requires the
// Aggregator and Handler Pipeline be single-logical-threaded with respect to
// mutable state, so Notify/HandleReorg/Reset are expected to be called from
// one driving goroutine (typically a small dispatcher wired to the
// aggregator's Signals).
type Pipeline struct {
	derived   derivedstore.Store
	contracts ContractCache
	log       *logger.Logger
	signals   Signals

	mu       sync.Mutex
	handlers map[handlerKey]HandlerFunc

	toTimestamp              uint64
	historicalSyncCompleteAt uint64 // checkpoint at which healthy flips true, once reached
	healthy                  bool
	state                    State
}

// ContractCache is the capability set ContractsView needs: a cache-or-call
// read of one eth_call result (spec §4.5's "read-only contracts view...
// transparently uses the contract-read-result cache").
type ContractCache interface {
	Read(ctx context.Context, chainID uint64, address string, blockNumber uint64, calldata []byte) ([]byte, error)
}

// New constructs a Pipeline. The checkpoint at which the pipeline flips its
// healthy flag is set separately, with SetHistoricalSyncCompletedAt.
func New(derived derivedstore.Store, contracts ContractCache, log *logger.Logger, signals Signals) *Pipeline {
	return &Pipeline{
		derived:   derived,
		contracts: contracts,
		log:       log,
		signals:   signals,
		handlers:  make(map[handlerKey]HandlerFunc),
		state:     StateIdle,
	}
}

// RegisterHandler binds a handler to (filterName, eventName). Call before
// processing begins; the registry is not safe to mutate concurrently with Notify.
func (p *Pipeline) RegisterHandler(filterName, eventName string, fn HandlerFunc) {
	p.handlers[handlerKey{filterName: filterName, eventName: strings.ToLower(eventName)}] = fn
}

// SetHistoricalSyncCompletedAt records the checkpoint timestamp beyond which
// reaching toTimestamp flips the healthy flag (spec §4.5 step 2).
func (p *Pipeline) SetHistoricalSyncCompletedAt(t uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.historicalSyncCompleteAt = t
}

// State returns the pipeline's current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ToTimestamp returns the watermark through which events have been applied.
func (p *Pipeline) ToTimestamp() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.toTimestamp
}

// ErrStopped is returned by Notify/HandleReorg once the pipeline has been Stopped.
var ErrStopped = errors.New("handlerpipeline: stopped")

// Notify implements spec §4.5's "on newCheckpoint(t)": drains pages from
// agg.GetEvents from toTimestamp+1 through checkpoint, committing each page
// to the derived store in order. A handler error rolls back the page,
// reports it via OnHandlerError, and halts (the pipeline stays Idle pending a
// reset, per spec — it does not retry automatically).
func (p *Pipeline) Notify(ctx context.Context, agg *aggregator.Aggregator, filters map[string]aggregator.FilterEvents) error {
	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return ErrStopped
	}
	if p.state == StateReorging {
		p.mu.Unlock()
		return nil // a reorg is in flight; this checkpoint will be reprocessed after it resolves
	}
	p.state = StateProcessing
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.state == StateProcessing {
			p.state = StateIdle
		}
		p.mu.Unlock()
	}()

	for {
		p.mu.Lock()
		from := p.toTimestamp + 1
		p.mu.Unlock()

		target := agg.Checkpoint()
		if from > target {
			return nil
		}

		if err := p.processOnePage(ctx, agg, filters, from, target); err != nil {
			return err
		}
	}
}

func (p *Pipeline) processOnePage(ctx context.Context, agg *aggregator.Aggregator, filters map[string]aggregator.FilterEvents, from, to uint64) error {
	it := agg.GetEvents(aggregator.GetEventsQuery{
		FromTimestamp:          from,
		ToTimestamp:            to,
		IncludeLogFilterEvents: filters,
		PageSize:               500,
	})

	page, err := it.Next(ctx)
	if err != nil {
		return fmt.Errorf("handlerpipeline: fetch page: %w", err)
	}

	tx, err := p.derived.BeginTx(ctx, from-1)
	if err != nil {
		return fmt.Errorf("handlerpipeline: begin tx: %w", err)
	}

	for _, evt := range page.Events {
		if err := ctx.Err(); err != nil {
			_ = tx.Rollback()
			return err
		}

		fn, ok := p.handlers[handlerKey{filterName: evt.FilterName, eventName: strings.ToLower(evt.EventName)}]
		if !ok {
			continue // no handler registered for this (filter, event) pair — nothing to apply
		}

		entities := &EntitiesView{tx: tx, timestamp: evt.Log.Timestamp}
		contracts := &ContractsView{cache: p.contracts, chainID: evt.Log.ChainID, blockNumber: evt.Log.BlockNumber}

		if err := fn(ctx, evt, entities, contracts); err != nil {
			_ = tx.Rollback()
			if p.signals.OnHandlerError != nil {
				p.signals.OnHandlerError(evt, err)
			}
			return fmt.Errorf("handlerpipeline: handler %s/%s: %w", evt.FilterName, evt.EventName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("handlerpipeline: commit page: %w", err)
	}

	pageEnd := page.Metadata.PageEndsAtTimestamp
	if pageEnd < from {
		pageEnd = to // an empty page still advances through the requested range
	}

	p.mu.Lock()
	p.toTimestamp = pageEnd
	complete := p.historicalSyncCompleteAt > 0 && p.toTimestamp >= p.historicalSyncCompleteAt
	becameHealthy := complete && !p.healthy
	if becameHealthy {
		p.healthy = true
	}
	p.mu.Unlock()

	if p.signals.OnEventsProcessed != nil {
		p.signals.OnEventsProcessed(pageEnd)
	}
	if becameHealthy {
		metrics.ComponentHealthSet("handlerpipeline", true)
		if p.signals.OnHealthy != nil {
			p.signals.OnHealthy(true)
		}
	}

	return nil
}

// HandleReorg implements spec §4.5's "on reorg({commonAncestorTimestamp})":
// halts in-flight processing, rolls the derived store back, and rewinds
// toTimestamp so the next Notify reprocesses from the common ancestor.
func (p *Pipeline) HandleReorg(ctx context.Context, commonAncestorTimestamp uint64) error {
	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return ErrStopped
	}
	p.state = StateReorging
	p.mu.Unlock()

	if err := p.derived.RollbackTo(ctx, commonAncestorTimestamp); err != nil {
		return fmt.Errorf("handlerpipeline: rollback derived store: %w", err)
	}

	p.mu.Lock()
	p.toTimestamp = commonAncestorTimestamp
	p.state = StateIdle
	p.mu.Unlock()

	return nil
}

// Reset implements spec §4.5's hot-reload reset: empties the derived store,
// rewinds toTimestamp to zero, and replaces the handler registry.
func (p *Pipeline) Reset(ctx context.Context, handlers map[string]HandlerFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateStopped {
		return ErrStopped
	}

	if err := p.derived.Reset(ctx); err != nil {
		return fmt.Errorf("handlerpipeline: reset derived store: %w", err)
	}

	p.toTimestamp = 0
	p.healthy = false
	newRegistry := make(map[handlerKey]HandlerFunc, len(handlers))
	for key, fn := range handlers {
		filterName, eventName, ok := strings.Cut(key, "/")
		if !ok {
			continue
		}
		newRegistry[handlerKey{filterName: filterName, eventName: strings.ToLower(eventName)}] = fn
	}
	p.handlers = newRegistry
	p.state = StateIdle

	return nil
}

// Stop transitions the pipeline to Stopped (spec §5's shutdown sequencing:
// "Handler Pipeline finishes the current page and halts").
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateStopped
}

// Healthy reports whether toTimestamp has caught up to historicalSyncCompleteAt.
func (p *Pipeline) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthy
}

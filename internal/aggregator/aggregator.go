// Package aggregator implements the Event Aggregator (spec §4.4): per-network
// checkpoint tracking and a globally monotone checkpoint/finality stream,
// with handler invocations serialized on a single actor goroutine so the
// Handler Pipeline never observes a stale interleaving of checkpoint and
// reorg signals (spec §9's "shared mutable checkpoint state" design note).
//
// Grounded on the teacher's db.MaintenanceCoordinator.maintenanceWorker
// single-owner-goroutine shape, generalized from a ticker-driven loop to an
// event-driven one.
package aggregator

import (
	"context"
	"sync/atomic"

	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
	"github.com/goran-ethernal/ChainIndexor/internal/eventstore"
	"github.com/goran-ethernal/ChainIndexor/internal/logger"
)

// Signals are the outward-facing callbacks driven from the actor goroutine.
// Implementations must not block for long — they run inline with event
// processing and would stall the whole aggregator.
type Signals struct {
	OnNewCheckpoint         func(timestamp uint64)
	OnNewFinalityCheckpoint func(timestamp uint64)
	OnReorg                 func(commonAncestorTimestamp uint64)
}

type eventKind int

const (
	evtNewHistoricalCheckpoint eventKind = iota
	evtHistoricalSyncComplete
	evtNewRealtimeCheckpoint
	evtNewFinalityCheckpoint
	evtReorg
)

type event struct {
	kind                    eventKind
	chainID                 uint64
	timestamp               uint64
	commonAncestorTimestamp uint64
}

// Aggregator owns per-chainId Checkpoint state and the derived global
// checkpoint/finalityCheckpoint, mutated only by its own Run loop.
type Aggregator struct {
	log     *logger.Logger
	store   eventstore.Store
	signals Signals

	events chan event

	networks map[uint64]*chaintypes.Checkpoint // actor-owned, no lock needed

	checkpoint         atomic.Uint64 // safe for concurrent reads from Handler Pipeline
	finalityCheckpoint atomic.Uint64
}

// New constructs an Aggregator. Call Run in its own goroutine before sending
// any Handle* calls, and cancel its context as part of the shutdown sequence
// (spec §5: "Aggregator stops emitting" first).
func New(store eventstore.Store, log *logger.Logger, signals Signals) *Aggregator {
	return &Aggregator{
		log:      log,
		store:    store,
		signals:  signals,
		events:   make(chan event, 256),
		networks: make(map[uint64]*chaintypes.Checkpoint),
	}
}

// Run drains the event channel on the calling goroutine until ctx is done.
func (a *Aggregator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-a.events:
			a.handle(e)
		}
	}
}

func (a *Aggregator) send(ctx context.Context, e event) error {
	select {
	case a.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleNewHistoricalCheckpoint implements spec §4.4's handleNewHistoricalCheckpoint.
func (a *Aggregator) HandleNewHistoricalCheckpoint(ctx context.Context, chainID, timestamp uint64) error {
	return a.send(ctx, event{kind: evtNewHistoricalCheckpoint, chainID: chainID, timestamp: timestamp})
}

// HandleHistoricalSyncComplete implements spec §4.4's handleHistoricalSyncComplete.
func (a *Aggregator) HandleHistoricalSyncComplete(ctx context.Context, chainID uint64) error {
	return a.send(ctx, event{kind: evtHistoricalSyncComplete, chainID: chainID})
}

// HandleNewRealtimeCheckpoint implements spec §4.4's handleNewRealtimeCheckpoint.
func (a *Aggregator) HandleNewRealtimeCheckpoint(ctx context.Context, chainID, timestamp uint64) error {
	return a.send(ctx, event{kind: evtNewRealtimeCheckpoint, chainID: chainID, timestamp: timestamp})
}

// HandleNewFinalityCheckpoint implements spec §4.4's handleNewFinalityCheckpoint.
func (a *Aggregator) HandleNewFinalityCheckpoint(ctx context.Context, chainID, timestamp uint64) error {
	return a.send(ctx, event{kind: evtNewFinalityCheckpoint, chainID: chainID, timestamp: timestamp})
}

// HandleReorg implements spec §4.4's handleReorg: it re-emits the signal
// verbatim, totally ordered with respect to every checkpoint event already
// queued ahead of it (spec §5's ordering guarantee).
func (a *Aggregator) HandleReorg(ctx context.Context, commonAncestorTimestamp uint64) error {
	return a.send(ctx, event{kind: evtReorg, commonAncestorTimestamp: commonAncestorTimestamp})
}

// Checkpoint returns the current global checkpoint. Safe for concurrent callers.
func (a *Aggregator) Checkpoint() uint64 { return a.checkpoint.Load() }

// FinalityCheckpoint returns the current global finality checkpoint. Safe for concurrent callers.
func (a *Aggregator) FinalityCheckpoint() uint64 { return a.finalityCheckpoint.Load() }

func (a *Aggregator) handle(e event) {
	switch e.kind {
	case evtNewHistoricalCheckpoint:
		a.stateFor(e.chainID).HistoricalCheckpoint = e.timestamp
		a.recomputeCheckpoint()
	case evtHistoricalSyncComplete:
		a.stateFor(e.chainID).IsHistoricalSyncComplete = true
		a.recomputeCheckpoint()
	case evtNewRealtimeCheckpoint:
		a.stateFor(e.chainID).RealtimeCheckpoint = e.timestamp
		a.recomputeCheckpoint()
	case evtNewFinalityCheckpoint:
		a.stateFor(e.chainID).FinalityCheckpoint = e.timestamp
		a.recomputeFinality()
	case evtReorg:
		if a.signals.OnReorg != nil {
			a.signals.OnReorg(e.commonAncestorTimestamp)
		}
	}
}

func (a *Aggregator) stateFor(chainID uint64) *chaintypes.Checkpoint {
	st, ok := a.networks[chainID]
	if !ok {
		st = &chaintypes.Checkpoint{}
		a.networks[chainID] = st
	}
	return st
}

// recomputeCheckpoint implements spec §4.4's recompute: new_global = min
// over networks of their PerNetworkValue; checkpoint only ever advances.
func (a *Aggregator) recomputeCheckpoint() {
	newGlobal, ok := a.minAcross(func(c *chaintypes.Checkpoint) uint64 { return c.PerNetworkValue() })
	if !ok {
		return
	}
	if newGlobal > a.checkpoint.Load() {
		a.checkpoint.Store(newGlobal)
		if a.signals.OnNewCheckpoint != nil {
			a.signals.OnNewCheckpoint(newGlobal)
		}
	}
}

func (a *Aggregator) recomputeFinality() {
	newGlobal, ok := a.minAcross(func(c *chaintypes.Checkpoint) uint64 { return c.FinalityCheckpoint })
	if !ok {
		return
	}
	if newGlobal > a.finalityCheckpoint.Load() {
		a.finalityCheckpoint.Store(newGlobal)
		if a.signals.OnNewFinalityCheckpoint != nil {
			a.signals.OnNewFinalityCheckpoint(newGlobal)
		}
	}
}

func (a *Aggregator) minAcross(value func(*chaintypes.Checkpoint) uint64) (uint64, bool) {
	if len(a.networks) == 0 {
		return 0, false
	}
	var min uint64
	first := true
	for _, st := range a.networks {
		v := value(st)
		if first || v < min {
			min = v
			first = false
		}
	}
	return min, true
}

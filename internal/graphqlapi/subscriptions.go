package graphqlapi

import (
	"context"
	"sync"
)

// checkpointEvent and reorgEvent are the payloads fanned out to subscribers;
// field names mirror the Checkpoint/Reorg GraphQL types.
type checkpointEvent struct {
	ChainId   float64
	Timestamp float64
}

type reorgEvent struct {
	ChainId                 float64
	CommonAncestorTimestamp float64
}

type checkpointResolver struct{ e checkpointEvent }

func (r *checkpointResolver) ChainId() float64   { return r.e.ChainId }
func (r *checkpointResolver) Timestamp() float64 { return r.e.Timestamp }

type reorgResolver struct{ e reorgEvent }

func (r *reorgResolver) ChainId() float64                 { return r.e.ChainId }
func (r *reorgResolver) CommonAncestorTimestamp() float64 { return r.e.CommonAncestorTimestamp }

// topic identifies one of the five fixed subscription streams, scoped to a chain.
type topic struct {
	kind    string
	chainID uint64
}

// Broadcaster fans out the Indexer's outbound events (spec.md §4.2/§4.3's
// per-network checkpoint signals, and §4.4's reorg signal) to every
// currently-subscribed GraphQL client. One subscriber channel per Subscribe
// call; Publish never blocks on a slow subscriber beyond its buffer.
//
// Grounded on the teacher's db.MaintenanceCoordinator single-owner-map shape
// (internal/aggregator's actor loop covers the same idiom for mutable
// per-chain state), generalized here to a fan-out registry since, unlike the
// aggregator, more than one GraphQL client may be subscribed at once.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[topic][]chan any
}

// NewBroadcaster constructs an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[topic][]chan any)}
}

func (b *Broadcaster) subscribe(ctx context.Context, kind string, chainID uint64) <-chan any {
	ch := make(chan any, 16)
	t := topic{kind: kind, chainID: chainID}

	b.mu.Lock()
	b.subs[t] = append(b.subs[t], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[t]
		for i, c := range list {
			if c == ch {
				b.subs[t] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch
}

func (b *Broadcaster) publish(kind string, chainID uint64, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[topic{kind: kind, chainID: chainID}] {
		select {
		case ch <- payload:
		default: // slow subscriber drops an update rather than stalling the publisher
		}
	}
}

const (
	topicNewHistoricalCheckpoint = "onNewHistoricalCheckpoint"
	topicHistoricalSyncComplete  = "onHistoricalSyncComplete"
	topicNewRealtimeCheckpoint   = "onNewRealtimeCheckpoint"
	topicNewFinalityCheckpoint   = "onNewFinalityCheckpoint"
	topicReorg                   = "onReorg"
)

// PublishNewHistoricalCheckpoint fans out spec §4.2's per-filter checkpoint
// advance to subscribers of chainID's onNewHistoricalCheckpoint stream.
func (b *Broadcaster) PublishNewHistoricalCheckpoint(chainID, timestamp uint64) {
	b.publish(topicNewHistoricalCheckpoint, chainID, checkpointEvent{ChainId: float64(chainID), Timestamp: float64(timestamp)})
}

// PublishHistoricalSyncComplete fans out historical sync completion for chainID.
func (b *Broadcaster) PublishHistoricalSyncComplete(chainID, timestamp uint64) {
	b.publish(topicHistoricalSyncComplete, chainID, checkpointEvent{ChainId: float64(chainID), Timestamp: float64(timestamp)})
}

// PublishNewRealtimeCheckpoint fans out spec §4.3's realtime checkpoint advance.
func (b *Broadcaster) PublishNewRealtimeCheckpoint(chainID, timestamp uint64) {
	b.publish(topicNewRealtimeCheckpoint, chainID, checkpointEvent{ChainId: float64(chainID), Timestamp: float64(timestamp)})
}

// PublishNewFinalityCheckpoint fans out spec §4.3's finality checkpoint advance.
func (b *Broadcaster) PublishNewFinalityCheckpoint(chainID, timestamp uint64) {
	b.publish(topicNewFinalityCheckpoint, chainID, checkpointEvent{ChainId: float64(chainID), Timestamp: float64(timestamp)})
}

// PublishReorg fans out a detected reorg's common ancestor timestamp.
func (b *Broadcaster) PublishReorg(chainID, commonAncestorTimestamp uint64) {
	b.publish(topicReorg, chainID, reorgEvent{ChainId: float64(chainID), CommonAncestorTimestamp: float64(commonAncestorTimestamp)})
}

func checkpointChannel(ctx context.Context, b *Broadcaster, kind string, chainID uint64) <-chan *checkpointResolver {
	out := make(chan *checkpointResolver)
	in := b.subscribe(ctx, kind, chainID)
	go func() {
		defer close(out)
		for v := range in {
			ev, ok := v.(checkpointEvent)
			if !ok {
				continue
			}
			select {
			case out <- &checkpointResolver{e: ev}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// OnNewHistoricalCheckpoint streams chainId's historical checkpoint advances.
func (r *Resolver) OnNewHistoricalCheckpoint(ctx context.Context, args chainIDArgs) <-chan *checkpointResolver {
	return checkpointChannel(ctx, r.Broadcast, topicNewHistoricalCheckpoint, uint64(args.ChainId))
}

// OnHistoricalSyncComplete streams chainId's historical-sync-complete signal.
func (r *Resolver) OnHistoricalSyncComplete(ctx context.Context, args chainIDArgs) <-chan *checkpointResolver {
	return checkpointChannel(ctx, r.Broadcast, topicHistoricalSyncComplete, uint64(args.ChainId))
}

// OnNewRealtimeCheckpoint streams chainId's realtime checkpoint advances.
func (r *Resolver) OnNewRealtimeCheckpoint(ctx context.Context, args chainIDArgs) <-chan *checkpointResolver {
	return checkpointChannel(ctx, r.Broadcast, topicNewRealtimeCheckpoint, uint64(args.ChainId))
}

// OnNewFinalityCheckpoint streams chainId's finality checkpoint advances.
func (r *Resolver) OnNewFinalityCheckpoint(ctx context.Context, args chainIDArgs) <-chan *checkpointResolver {
	return checkpointChannel(ctx, r.Broadcast, topicNewFinalityCheckpoint, uint64(args.ChainId))
}

// OnReorg streams chainId's detected reorgs.
func (r *Resolver) OnReorg(ctx context.Context, args chainIDArgs) <-chan *reorgResolver {
	out := make(chan *reorgResolver)
	in := r.Broadcast.subscribe(ctx, topicReorg, uint64(args.ChainId))
	go func() {
		defer close(out)
		for v := range in {
			ev, ok := v.(reorgEvent)
			if !ok {
				continue
			}
			select {
			case out <- &reorgResolver{e: ev}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/ChainIndexor/internal/logger"
)

// runFor starts a.Run in the background and returns a cancel func that stops
// it; tests send events then call drain to let the actor goroutine process
// its queue before asserting.
func runFor(t *testing.T, a *Aggregator) (cancel func(), drain func()) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	return func() {
			cancelFn()
			<-done
		}, func() {
			// The actor processes sends in order off a buffered channel; a
			// trailing send queues behind everything sent before it, and the
			// short sleep gives the actor time to apply the queue.
			_ = a.send(ctx, event{kind: evtReorg, commonAncestorTimestamp: 0})
			time.Sleep(10 * time.Millisecond)
		}
}

func TestAggregator_CrossNetworkCheckpointScenario(t *testing.T) {
	// Spec §8 scenario 3, reproduced exactly.
	var checkpoints []uint64
	a := New(nil, logger.GetDefaultLogger(), Signals{
		OnNewCheckpoint: func(t uint64) { checkpoints = append(checkpoints, t) },
	})
	cancel, drain := runFor(t, a)
	defer cancel()
	ctx := context.Background()

	require.NoError(t, a.HandleNewHistoricalCheckpoint(ctx, 1 /* A */, 50))
	require.NoError(t, a.HandleNewRealtimeCheckpoint(ctx, 1, 80))
	require.NoError(t, a.HandleHistoricalSyncComplete(ctx, 1))
	require.NoError(t, a.HandleNewHistoricalCheckpoint(ctx, 2 /* B */, 60))
	drain()

	require.Equal(t, uint64(60), a.Checkpoint())

	require.NoError(t, a.HandleNewHistoricalCheckpoint(ctx, 2, 75))
	drain()
	require.Equal(t, uint64(75), a.Checkpoint())

	require.NoError(t, a.HandleHistoricalSyncComplete(ctx, 2))
	require.NoError(t, a.HandleNewRealtimeCheckpoint(ctx, 2, 90))
	drain()
	require.Equal(t, uint64(80), a.Checkpoint())

	require.Equal(t, []uint64{60, 75, 80}, checkpoints)
}

func TestAggregator_CheckpointIsMonotone(t *testing.T) {
	a := New(nil, logger.GetDefaultLogger(), Signals{})
	cancel, drain := runFor(t, a)
	defer cancel()
	ctx := context.Background()

	require.NoError(t, a.HandleNewHistoricalCheckpoint(ctx, 1, 100))
	drain()
	require.Equal(t, uint64(100), a.Checkpoint())

	// A stale, smaller report must never move the checkpoint backward.
	require.NoError(t, a.HandleNewHistoricalCheckpoint(ctx, 1, 40))
	drain()
	require.Equal(t, uint64(100), a.Checkpoint())
}

func TestAggregator_FinalityCheckpointTracksMinimumAcrossNetworks(t *testing.T) {
	var finality []uint64
	a := New(nil, logger.GetDefaultLogger(), Signals{
		OnNewFinalityCheckpoint: func(t uint64) { finality = append(finality, t) },
	})
	cancel, drain := runFor(t, a)
	defer cancel()
	ctx := context.Background()

	require.NoError(t, a.HandleNewFinalityCheckpoint(ctx, 1, 500))
	require.NoError(t, a.HandleNewFinalityCheckpoint(ctx, 2, 300))
	drain()
	require.Equal(t, uint64(300), a.FinalityCheckpoint())
	require.Equal(t, []uint64{300}, finality)
}

func TestAggregator_ReorgIsForwardedVerbatim(t *testing.T) {
	var ancestors []uint64
	a := New(nil, logger.GetDefaultLogger(), Signals{
		OnReorg: func(t uint64) { ancestors = append(ancestors, t) },
	})
	cancel, _ := runFor(t, a)
	defer cancel()

	require.NoError(t, a.HandleReorg(context.Background(), 600))
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, []uint64{600}, ancestors)
}

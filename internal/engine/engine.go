// Package engine assembles the indexing core's components per spec.md §6's
// three process modes (Standalone, Indexer, Watcher) and drives the ordered
// startup/shutdown sequence spec.md §5 specifies, the way
// cmd/indexer/main.go wires the teacher's components by hand — except here
// the wiring is reusable across modes instead of living in a single main.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/goran-ethernal/ChainIndexor/internal/aggregator"
	"github.com/goran-ethernal/ChainIndexor/internal/config"
	"github.com/goran-ethernal/ChainIndexor/internal/db"
	"github.com/goran-ethernal/ChainIndexor/internal/derivedstore"
	"github.com/goran-ethernal/ChainIndexor/internal/eventstore"
	"github.com/goran-ethernal/ChainIndexor/internal/graphqlapi"
	"github.com/goran-ethernal/ChainIndexor/internal/handlerpipeline"
	"github.com/goran-ethernal/ChainIndexor/internal/logger"
	"github.com/goran-ethernal/ChainIndexor/internal/realtimesync"
	"github.com/goran-ethernal/ChainIndexor/internal/rpcclient"
)

// Engine owns every long-lived component for one process and implements
// spec.md §5's shutdown order on Run's context cancellation: aggregator,
// then handler pipeline, then each network's realtime sync, then its
// historical sync, then the event store, then the derived store.
type Engine struct {
	cfg config.Config
	log *logger.Logger

	eventStore         eventstore.Store
	derived            derivedstore.Store
	eventMaintenance   db.Maintenance
	derivedMaintenance db.Maintenance

	networks  []*network
	agg       *aggregator.Aggregator
	pipeline  *handlerpipeline.Pipeline
	status    *networkStatus
	broadcast *graphqlapi.Broadcaster

	graphql *graphqlapi.Server
	metrics *metricsServer
}

// New builds every component New's caller needs, without starting any of
// them — call Run to start and block until ctx is cancelled.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*Engine, error) {
	eventStore, eventMaintenance, err := openEventStore(cfg.Database, cfg.Maintenance, log)
	if err != nil {
		return nil, err
	}
	if err := eventStore.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("engine: migrating event store: %w", err)
	}

	chainIDs := make([]uint64, 0, len(cfg.Networks))
	for _, netCfg := range cfg.Networks {
		chainIDs = append(chainIDs, netCfg.ChainID)
	}

	e := &Engine{
		cfg:              cfg,
		log:              log,
		eventStore:       eventStore,
		eventMaintenance: eventMaintenance,
		status:           newNetworkStatus(),
		broadcast:        graphqlapi.NewBroadcaster(),
	}
	e.metrics = newMetricsServer(cfg.Metrics, func() bool {
		return e.status.AllHealthy(chainIDs, cfg.Options.MaxHealthcheckDuration.Duration)
	})

	needsDerivedStore := cfg.Options.Mode == config.ModeWatcher || cfg.Options.Mode == config.ModeStandalone
	if needsDerivedStore {
		derived, derivedMaintenance, err := openDerivedStore(cfg.Database, cfg.Maintenance, log)
		if err != nil {
			return nil, err
		}
		if err := derived.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("engine: migrating derived store: %w", err)
		}
		e.derived = derived
		e.derivedMaintenance = derivedMaintenance
	}

	e.agg = aggregator.New(eventStore, log.WithComponent("aggregator"), aggregator.Signals{
		OnNewCheckpoint:         e.onAggregatorCheckpoint,
		OnNewFinalityCheckpoint: e.onAggregatorFinality,
		OnReorg:                 e.onAggregatorReorg,
	})

	for _, netCfg := range cfg.Networks {
		n, err := buildNetwork(ctx, cfg, netCfg, eventStore, eventMaintenance, log)
		if err != nil {
			return nil, err
		}
		chainID := netCfg.ChainID
		n.historical.OnCheckpoint = func(filterName string, timestamp uint64) {
			e.onHistoricalCheckpoint(chainID, timestamp)
		}
		n.realtime.Signals = realtimesync.Signals{
			OnRealtimeCheckpoint: e.onRealtimeCheckpoint,
			OnFinalityCheckpoint: e.onFinalityCheckpoint,
			OnShallowReorg:       e.onShallowReorg,
			OnFatal:              e.onFatal,
		}
		e.networks = append(e.networks, n)
	}

	// The contracts view and the GraphQL passthrough queries (getEthLogs,
	// getEthBlock) are both single-client abstractions; with multiple
	// configured networks they bind to the first one. Fanning either out
	// per-chain would need chainID threaded through rpcclient.Client's
	// CallContract/resolver signatures, which is out of scope here.
	if needsDerivedStore {
		var client rpcclient.Client
		if len(e.networks) > 0 {
			client = e.networks[0].client
		}
		contracts := handlerpipeline.NewSQLContractCache(eventStore, client)
		e.pipeline = handlerpipeline.New(e.derived, contracts, log.WithComponent("handlerpipeline"), handlerpipeline.Signals{
			OnHandlerError: func(evt aggregator.DecodedEvent, err error) {
				log.WithComponent("handlerpipeline").Errorf("handler error: filter=%s event=%s err=%v", evt.FilterName, evt.EventName, err)
			},
		})
	}

	resolver := &graphqlapi.Resolver{
		Store:     eventStore,
		Status:    e.status,
		Broadcast: e.broadcast,
		Log:       log.WithComponent("graphqlapi"),
	}
	if len(e.networks) > 0 {
		resolver.Client = e.networks[0].client
	}
	graphqlServer, err := graphqlapi.NewServer(&cfg.GraphQL, resolver, log.WithComponent("graphqlapi"))
	if err != nil {
		return nil, fmt.Errorf("engine: building graphql server: %w", err)
	}
	e.graphql = graphqlServer

	return e, nil
}

// OpenEventStoreForMigration opens the event store configured by cfg without
// migrating it, for use by standalone migration tooling (cmd/chainindexor's
// migrate subcommand) that wants to run migrations outside of New/Run.
func OpenEventStoreForMigration(cfg config.DatabaseConfig, log *logger.Logger) (eventstore.Store, error) {
	store, _, err := openEventStore(cfg, nil, log)
	return store, err
}

// OpenDerivedStoreForMigration is OpenEventStoreForMigration's derived-store
// counterpart.
func OpenDerivedStoreForMigration(cfg config.DatabaseConfig, log *logger.Logger) (derivedstore.Store, error) {
	store, _, err := openDerivedStore(cfg, nil, log)
	return store, err
}

// openEventStore opens the event store and, for SQLite, the
// db.MaintenanceCoordinator (WAL checkpoint + VACUUM) that keeps its file
// from growing unbounded under append-only writes (SPEC_FULL.md §9).
// Postgres gets db.NoOpMaintenance: WAL checkpoint/VACUUM are SQLite-file
// concepts.
func openEventStore(cfg config.DatabaseConfig, maint *config.MaintenanceConfig, log *logger.Logger) (eventstore.Store, db.Maintenance, error) {
	switch cfg.Kind {
	case "postgres":
		sqlDB, err := db.NewPostgresDB(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("engine: opening postgres event store: %w", err)
		}
		return eventstore.NewPostgresStore(sqlDB, log.WithComponent("eventstore")), &db.NoOpMaintenance{}, nil
	default:
		const filename = "events.sqlite"
		sqlDB, err := db.NewSQLiteDBFromConfig(cfg, filename)
		if err != nil {
			return nil, nil, fmt.Errorf("engine: opening sqlite event store: %w", err)
		}
		dbPath := filepath.Join(cfg.Directory, filename)
		maintenance := db.NewMaintenanceCoordinator(dbPath, sqlDB, maint, log.WithComponent("eventstore"))
		return eventstore.NewSQLiteStore(sqlDB, log.WithComponent("eventstore")), maintenance, nil
	}
}

// openDerivedStore is openEventStore's derived-store counterpart.
func openDerivedStore(cfg config.DatabaseConfig, maint *config.MaintenanceConfig, log *logger.Logger) (derivedstore.Store, db.Maintenance, error) {
	switch cfg.Kind {
	case "postgres":
		sqlDB, err := db.NewPostgresDB(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("engine: opening postgres derived store: %w", err)
		}
		return derivedstore.NewPostgresStore(sqlDB, log.WithComponent("derivedstore")), &db.NoOpMaintenance{}, nil
	default:
		const filename = "derived.sqlite"
		sqlDB, err := db.NewSQLiteDBFromConfig(cfg, filename)
		if err != nil {
			return nil, nil, fmt.Errorf("engine: opening sqlite derived store: %w", err)
		}
		dbPath := filepath.Join(cfg.Directory, filename)
		maintenance := db.NewMaintenanceCoordinator(dbPath, sqlDB, maint, log.WithComponent("derivedstore"))
		return derivedstore.NewSQLiteStore(sqlDB, log.WithComponent("derivedstore")), maintenance, nil
	}
}

// ---- aggregator/realtime/historical signal plumbing ----

func (e *Engine) onAggregatorCheckpoint(timestamp uint64) {
	if e.pipeline == nil {
		return
	}
	if err := e.pipeline.Notify(context.Background(), e.agg, e.filterEventsByName()); err != nil {
		e.log.Errorf("handler pipeline notify failed: %v", err)
	}
}

func (e *Engine) onAggregatorFinality(timestamp uint64) {}

func (e *Engine) onAggregatorReorg(commonAncestorTimestamp uint64) {
	if e.pipeline == nil {
		return
	}
	if err := e.pipeline.HandleReorg(context.Background(), commonAncestorTimestamp); err != nil {
		e.log.Errorf("handler pipeline reorg handling failed: %v", err)
	}
}

func (e *Engine) onHistoricalCheckpoint(chainID, timestamp uint64) {
	e.status.setCheckpoint(chainID, timestamp)
	e.broadcast.PublishNewHistoricalCheckpoint(chainID, timestamp)
	_ = e.agg.HandleNewHistoricalCheckpoint(context.Background(), chainID, timestamp)
}

func (e *Engine) onRealtimeCheckpoint(chainID, timestamp uint64) {
	e.status.touch(chainID)
	e.broadcast.PublishNewRealtimeCheckpoint(chainID, timestamp)
	_ = e.agg.HandleNewRealtimeCheckpoint(context.Background(), chainID, timestamp)
}

func (e *Engine) onFinalityCheckpoint(chainID, timestamp uint64) {
	e.broadcast.PublishNewFinalityCheckpoint(chainID, timestamp)
	_ = e.agg.HandleNewFinalityCheckpoint(context.Background(), chainID, timestamp)
}

func (e *Engine) onShallowReorg(chainID, commonAncestorTimestamp uint64) {
	e.broadcast.PublishReorg(chainID, commonAncestorTimestamp)
	_ = e.agg.HandleReorg(context.Background(), commonAncestorTimestamp)
}

func (e *Engine) onFatal(chainID uint64, err error) {
	e.log.Errorf("realtime sync fatal error: chain_id=%d err=%v", chainID, err)
}

func (e *Engine) filterEventsByName() map[string]aggregator.FilterEvents {
	out := make(map[string]aggregator.FilterEvents)
	for _, n := range e.networks {
		for _, fe := range n.filters {
			out[fe.Filter.Name] = fe
		}
	}
	return out
}

// Run starts every component and blocks until ctx is cancelled, then
// performs spec.md §5's ordered shutdown: Aggregator stops emitting, Handler
// Pipeline finishes its current page and halts, Realtime Sync stops
// polling, Historical Sync cancels outstanding tasks, Event Store flushes,
// Derived Store tears down.
func (e *Engine) Run(ctx context.Context) error {
	aggCtx, stopAgg := context.WithCancel(context.Background())
	defer stopAgg()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = e.agg.Run(aggCtx)
	}()

	e.metrics.Start(ctx)

	if err := e.eventMaintenance.Start(ctx); err != nil {
		e.log.Errorf("event store maintenance failed to start: %v", err)
	}
	if e.derivedMaintenance != nil {
		if err := e.derivedMaintenance.Start(ctx); err != nil {
			e.log.Errorf("derived store maintenance failed to start: %v", err)
		}
	}

	graphqlErrCh := make(chan error, 1)
	go func() { graphqlErrCh <- e.graphql.Start(ctx) }()

	histCtx, stopHist := context.WithCancel(ctx)
	defer stopHist()

	if err := e.runHistoricalSync(histCtx); err != nil && ctx.Err() == nil {
		e.log.Errorf("historical sync failed: %v", err)
	}

	realtimeCtx, stopRealtime := context.WithCancel(context.Background())
	defer stopRealtime()
	for _, n := range e.networks {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := n.realtime.Run(realtimeCtx); err != nil && realtimeCtx.Err() == nil {
				e.log.Errorf("realtime sync stopped: chain_id=%d err=%v", n.cfg.ChainID, err)
			}
		}()
	}

	<-ctx.Done()

	// 1. Aggregator stops emitting.
	stopAgg()

	// 2. Handler Pipeline finishes the current page and halts.
	if e.pipeline != nil {
		e.pipeline.Stop()
	}

	// 3. Realtime Sync stops polling.
	stopRealtime()

	// 4. Historical Sync cancels outstanding tasks.
	stopHist()

	wg.Wait()

	shutdownCtx := context.Background()
	_ = e.graphql.Stop(shutdownCtx)
	_ = e.metrics.Stop(shutdownCtx)
	_ = e.eventMaintenance.Stop()
	if e.derivedMaintenance != nil {
		_ = e.derivedMaintenance.Stop()
	}

	// 5. Event Store flushes.
	_ = e.eventStore.Close()

	// 6. Derived Store tears down.
	if e.derived != nil {
		_ = e.derived.Close()
	}

	return nil
}

// runHistoricalSync backfills every network's filters up to the finalized
// block its realtime syncer observes at setup, per spec.md §4.3's
// "on setup()" handoff from realtime sync to historical sync.
func (e *Engine) runHistoricalSync(ctx context.Context) error {
	for _, n := range e.networks {
		_, finalized, err := n.realtime.Setup(ctx)
		if err != nil {
			return fmt.Errorf("engine: network %q: realtime setup: %w", n.cfg.Name, err)
		}
		for _, fe := range n.filters {
			if err := n.historical.SyncFilter(ctx, fe.Filter, finalized); err != nil {
				return fmt.Errorf("engine: network %q: historical sync filter %q: %w", n.cfg.Name, fe.Filter.Name, err)
			}
		}
		e.status.setComplete(n.cfg.ChainID)
		e.broadcast.PublishHistoricalSyncComplete(n.cfg.ChainID, e.agg.Checkpoint())
		if err := e.agg.HandleHistoricalSyncComplete(ctx, n.cfg.ChainID); err != nil {
			return fmt.Errorf("engine: network %q: historical sync complete signal: %w", n.cfg.Name, err)
		}
	}
	if e.pipeline != nil {
		e.pipeline.SetHistoricalSyncCompletedAt(e.agg.Checkpoint())
	}
	return nil
}

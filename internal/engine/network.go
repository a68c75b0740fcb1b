package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/goran-ethernal/ChainIndexor/internal/aggregator"
	"github.com/goran-ethernal/ChainIndexor/internal/config"
	"github.com/goran-ethernal/ChainIndexor/internal/db"
	"github.com/goran-ethernal/ChainIndexor/internal/eventstore"
	"github.com/goran-ethernal/ChainIndexor/internal/historicalsync"
	"github.com/goran-ethernal/ChainIndexor/internal/logger"
	"github.com/goran-ethernal/ChainIndexor/internal/realtimesync"
	"github.com/goran-ethernal/ChainIndexor/internal/rpcclient"
)

// network bundles one configured network's live components: the RPC
// transport chain (direct, optionally payment-gated, or remote-indexer), its
// historical and realtime syncers, and the filters it backfills.
type network struct {
	cfg     config.NetworkConfig
	client  rpcclient.Client
	filters []aggregator.FilterEvents

	historical *historicalsync.Syncer
	realtime   *realtimesync.Syncer
}

// buildClient constructs the RPC transport for one network per spec.md
// §4.6: a remote-indexer transport when indexerUrl is set (optionally
// falling back to direct when rpcUrl is also set), otherwise direct,
// optionally wrapped with payment-gating when payments is configured.
func buildClient(ctx context.Context, cfg config.NetworkConfig, retry config.RetryConfig) (rpcclient.Client, error) {
	var direct rpcclient.Client
	if cfg.RPCURL != "" {
		c, err := rpcclient.NewDirectClient(ctx, cfg.RPCURL, retry)
		if err != nil {
			return nil, fmt.Errorf("engine: network %q: dialing direct RPC: %w", cfg.Name, err)
		}
		direct = c
	}

	var client rpcclient.Client
	switch {
	case cfg.IndexerURL != "":
		client = rpcclient.NewRemoteIndexerClient(cfg.IndexerURL, direct)
	case direct != nil:
		client = direct
	default:
		return nil, fmt.Errorf("engine: network %q: one of rpcUrl or indexerUrl is required", cfg.Name)
	}

	if cfg.Payments != nil {
		payments := newHTTPPayments(*cfg.Payments)
		client = rpcclient.NewPaidClient(client, payments, paidMethodSet(cfg.Payments.PaidMethods))
	}

	return client, nil
}

// buildNetwork wires one network's client, filters, and syncers against a
// shared event store and its maintenance coordinator (shared across
// networks, since they write into the same store). The
// aggregator/handler-pipeline wiring lives in engine.go, since it spans all
// networks.
func buildNetwork(ctx context.Context, cfg config.Config, netCfg config.NetworkConfig, store eventstore.Store, maintenance db.Maintenance, log *logger.Logger) (*network, error) {
	client, err := buildClient(ctx, netCfg, cfg.Retry)
	if err != nil {
		return nil, err
	}

	var filters []aggregator.FilterEvents
	for _, f := range cfg.Filters {
		if f.Network != netCfg.Name {
			continue
		}
		fe, err := buildFilterEvents(f, netCfg.ChainID)
		if err != nil {
			return nil, fmt.Errorf("engine: network %q: %w", netCfg.Name, err)
		}
		filters = append(filters, fe)
	}

	signer := types.NewLondonSigner(new(big.Int).SetUint64(netCfg.ChainID))
	maxBlockRange := config.DefaultMaxBlockRange(netCfg.ChainID, netCfg.RPCURL)
	finalityBlocks := config.FinalityBlockCount(netCfg.ChainID)

	historical := &historicalsync.Syncer{
		ChainID:              netCfg.ChainID,
		Client:               client,
		Store:                store,
		Log:                  log.WithComponent("historicalsync"),
		MaxRPCConcurrency:    netCfg.MaxRPCRequestConcurrency,
		DefaultMaxBlockRange: maxBlockRange,
		Signer:               signer,
	}

	realtime := &realtimesync.Syncer{
		ChainID:            netCfg.ChainID,
		Client:             client,
		Store:              store,
		Log:                log.WithComponent("realtimesync"),
		Maintenance:        maintenance,
		FinalityBlockCount: finalityBlocks,
		PollingInterval:    netCfg.PollingInterval.Duration,
		Signer:             signer,
	}
	for _, fe := range filters {
		realtime.Filters = append(realtime.Filters, fe.Filter)
	}

	return &network{
		cfg:        netCfg,
		client:     client,
		filters:    filters,
		historical: historical,
		realtime:   realtime,
	}, nil
}

// Package config defines the indexing core's configuration shape and the
// multi-format loader (YAML/JSON/TOML) that parses it, in the same idiom the
// teacher's internal/config + pkg/config split used for its single-network
// downloader config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/goran-ethernal/ChainIndexor/internal/common"
)

// Mode selects which components a process hosts. See spec §6.
type Mode string

const (
	ModeStandalone Mode = "Standalone"
	ModeIndexer    Mode = "Indexer"
	ModeWatcher    Mode = "Watcher"
)

// Config is the top-level configuration for a chainindexor process.
type Config struct {
	Database    DatabaseConfig     `yaml:"database" json:"database" toml:"database"`
	Networks    []NetworkConfig    `yaml:"networks" json:"networks" toml:"networks"`
	Filters     []FilterConfig     `yaml:"filters" json:"filters" toml:"filters"`
	Options     OptionsConfig      `yaml:"options" json:"options" toml:"options"`
	Retry       RetryConfig        `yaml:"retry" json:"retry" toml:"retry"`
	Maintenance *MaintenanceConfig `yaml:"maintenance" json:"maintenance" toml:"maintenance"`
	Metrics     MetricsConfig      `yaml:"metrics" json:"metrics" toml:"metrics"`
	GraphQL     GraphQLConfig      `yaml:"graphql" json:"graphql" toml:"graphql"`
}

// DatabaseConfig selects and configures the event/derived store backend.
type DatabaseConfig struct {
	Kind string `yaml:"kind" json:"kind" toml:"kind"` // "sqlite" | "postgres"

	// Directory is the SQLite data directory (kind == "sqlite").
	Directory string `yaml:"directory" json:"directory" toml:"directory"`

	// ConnectionString is the Postgres DSN (kind == "postgres").
	ConnectionString string `yaml:"connectionString" json:"connectionString" toml:"connectionString"`

	JournalMode        string `yaml:"journalMode" json:"journalMode" toml:"journalMode"`
	Synchronous        string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`
	BusyTimeout        int    `yaml:"busyTimeout" json:"busyTimeout" toml:"busyTimeout"`
	CacheSize          int    `yaml:"cacheSize" json:"cacheSize" toml:"cacheSize"`
	MaxOpenConnections int    `yaml:"maxOpenConnections" json:"maxOpenConnections" toml:"maxOpenConnections"`
	MaxIdleConnections int    `yaml:"maxIdleConnections" json:"maxIdleConnections" toml:"maxIdleConnections"`
}

// ApplyDefaults fills in the database section's default values.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.Kind == "" {
		d.Kind = "sqlite"
	}
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
}

func (d DatabaseConfig) validate() error {
	switch d.Kind {
	case "sqlite":
		if d.Directory == "" {
			return fmt.Errorf("database.directory is required for kind=sqlite")
		}
	case "postgres":
		if d.ConnectionString == "" {
			return fmt.Errorf("database.connectionString is required for kind=postgres")
		}
	default:
		return fmt.Errorf("database.kind must be one of: sqlite, postgres (got %q)", d.Kind)
	}
	return nil
}

// PaymentsConfig configures the paid-RPC transport's voucher collaborator.
// The payment-channel negotiation lifecycle itself is out of scope (spec §9);
// this only carries enough to address the collaborator and the method set it covers.
type PaymentsConfig struct {
	Endpoint    string   `yaml:"endpoint" json:"endpoint" toml:"endpoint"`
	PaidMethods []string `yaml:"paidMethods" json:"paidMethods" toml:"paidMethods"`
}

// NetworkConfig describes one chain this process syncs or aggregates.
type NetworkConfig struct {
	Name                     string          `yaml:"name" json:"name" toml:"name"`
	ChainID                  uint64          `yaml:"chainId" json:"chainId" toml:"chainId"`
	RPCURL                   string          `yaml:"rpcUrl" json:"rpcUrl" toml:"rpcUrl"`
	IndexerURL               string          `yaml:"indexerUrl" json:"indexerUrl" toml:"indexerUrl"`
	PollingInterval          common.Duration `yaml:"pollingInterval" json:"pollingInterval" toml:"pollingInterval"`
	MaxRPCRequestConcurrency int             `yaml:"maxRpcRequestConcurrency" json:"maxRpcRequestConcurrency" toml:"maxRpcRequestConcurrency"`
	Payments                 *PaymentsConfig `yaml:"payments" json:"payments" toml:"payments"`
}

func (n *NetworkConfig) applyDefaults() {
	if n.PollingInterval.Duration == 0 {
		n.PollingInterval = common.NewDuration(1000 * time.Millisecond)
	}
	if n.MaxRPCRequestConcurrency == 0 {
		n.MaxRPCRequestConcurrency = 10
	}
}

func (n NetworkConfig) validate() error {
	if n.Name == "" {
		return fmt.Errorf("network.name is required")
	}
	if n.ChainID == 0 {
		return fmt.Errorf("network[%s].chainId is required", n.Name)
	}
	if n.RPCURL == "" && n.IndexerURL == "" {
		return fmt.Errorf("network[%s]: one of rpcUrl or indexerUrl is required", n.Name)
	}
	return nil
}

// FilterConfig is a configured log filter (spec calls this "contracts[] /
// filters[]" — the same shape serves both: a filter with one address and one
// event is a "contract", a filter with many is a free-form subscription).
type FilterConfig struct {
	Name          string   `yaml:"name" json:"name" toml:"name"`
	Network       string   `yaml:"network" json:"network" toml:"network"`
	ABI           string   `yaml:"abi" json:"abi" toml:"abi"` // path or inline JSON literal
	Address       string   `yaml:"address" json:"address" toml:"address"`
	Addresses     []string `yaml:"addresses" json:"addresses" toml:"addresses"`
	Event         string   `yaml:"event" json:"event" toml:"event"`
	Topics        []string `yaml:"topics" json:"topics" toml:"topics"`
	StartBlock    uint64   `yaml:"startBlock" json:"startBlock" toml:"startBlock"`
	EndBlock      *uint64  `yaml:"endBlock" json:"endBlock" toml:"endBlock"`
	MaxBlockRange uint64   `yaml:"maxBlockRange" json:"maxBlockRange" toml:"maxBlockRange"`
}

func (f FilterConfig) validate() error {
	if f.Name == "" {
		return fmt.Errorf("filter.name is required")
	}
	if f.Network == "" {
		return fmt.Errorf("filter[%s].network is required", f.Name)
	}
	return nil
}

// OptionsConfig carries process-wide options, including mode selection.
type OptionsConfig struct {
	MaxHealthcheckDuration common.Duration `yaml:"maxHealthcheckDuration" json:"maxHealthcheckDuration" toml:"maxHealthcheckDuration"`
	Mode                   Mode            `yaml:"mode" json:"mode" toml:"mode"`
}

func (o *OptionsConfig) applyDefaults() {
	if o.MaxHealthcheckDuration.Duration == 0 {
		o.MaxHealthcheckDuration = common.NewDuration(240 * time.Second)
	}
	if o.Mode == "" {
		o.Mode = ModeStandalone
	}
}

func (o OptionsConfig) validate() error {
	switch o.Mode {
	case ModeStandalone, ModeIndexer, ModeWatcher:
	default:
		return fmt.Errorf("options.mode must be one of Standalone, Indexer, Watcher (got %q)", o.Mode)
	}
	return nil
}

// RetryConfig drives the exponential-backoff-with-jitter retry policy shared
// by every RPC transport (spec §7's "Transient RPC" row).
type RetryConfig struct {
	MaxAttempts       int             `yaml:"maxAttempts" json:"maxAttempts" toml:"maxAttempts"`
	InitialBackoff    common.Duration `yaml:"initialBackoff" json:"initialBackoff" toml:"initialBackoff"`
	MaxBackoff        common.Duration `yaml:"maxBackoff" json:"maxBackoff" toml:"maxBackoff"`
	BackoffMultiplier float64         `yaml:"backoffMultiplier" json:"backoffMultiplier" toml:"backoffMultiplier"`
}

func (r *RetryConfig) applyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 8
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(200 * time.Millisecond)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second)
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// MaintenanceConfig drives the event store's background WAL checkpoint/VACUUM
// worker, carried over from the teacher's db.MaintenanceCoordinator.
type MaintenanceConfig struct {
	Enabled           bool            `yaml:"enabled" json:"enabled" toml:"enabled"`
	VacuumOnStartup   bool            `yaml:"vacuumOnStartup" json:"vacuumOnStartup" toml:"vacuumOnStartup"`
	CheckInterval     common.Duration `yaml:"checkInterval" json:"checkInterval" toml:"checkInterval"`
	WALCheckpointMode string          `yaml:"walCheckpointMode" json:"walCheckpointMode" toml:"walCheckpointMode"`
}

func (m *MaintenanceConfig) applyDefaults() {
	if m.CheckInterval.Duration == 0 {
		m.CheckInterval = common.NewDuration(1 * time.Hour)
	}
	if m.WALCheckpointMode == "" {
		m.WALCheckpointMode = "PASSIVE"
	}
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled" toml:"enabled"`
	ListenAddress string `yaml:"listenAddress" json:"listenAddress" toml:"listenAddress"`
	Path          string `yaml:"path" json:"path" toml:"path"`
}

func (m *MetricsConfig) applyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// GraphQLConfig configures the Indexer/Watcher mode GraphQL server.
type GraphQLConfig struct {
	ListenAddress string `yaml:"listenAddress" json:"listenAddress" toml:"listenAddress"`
}

func (g *GraphQLConfig) applyDefaults() {
	if g.ListenAddress == "" {
		g.ListenAddress = ":8080"
	}
}

// ApplyDefaults fills in every optional field's default value.
func (c *Config) ApplyDefaults() {
	c.Database.ApplyDefaults()
	for i := range c.Networks {
		c.Networks[i].applyDefaults()
	}
	c.Options.applyDefaults()
	c.Retry.applyDefaults()
	if c.Maintenance != nil {
		c.Maintenance.applyDefaults()
	}
	c.Metrics.applyDefaults()
	c.GraphQL.applyDefaults()
}

// Validate checks the configuration for the "Config error" taxonomy row
// (spec §7): missing rpcUrl/indexerUrl, unknown network name, etc. are fatal
// on startup.
func (c *Config) Validate() error {
	if err := c.Database.validate(); err != nil {
		return err
	}
	if len(c.Networks) == 0 {
		return fmt.Errorf("at least one network must be configured")
	}

	names := make(map[string]bool, len(c.Networks))
	for _, n := range c.Networks {
		if err := n.validate(); err != nil {
			return err
		}
		if names[n.Name] {
			return fmt.Errorf("duplicate network name %q", n.Name)
		}
		names[n.Name] = true
	}

	filterNames := make(map[string]bool, len(c.Filters))
	for _, f := range c.Filters {
		if err := f.validate(); err != nil {
			return err
		}
		if filterNames[f.Name] {
			return fmt.Errorf("duplicate filter name %q", f.Name)
		}
		filterNames[f.Name] = true
		if !names[f.Network] {
			return fmt.Errorf("filter[%s] references unknown network %q", f.Name, f.Network)
		}
	}

	if err := c.Options.validate(); err != nil {
		return err
	}

	return nil
}

// NetworkByName looks up a configured network, used by components that only
// carry a network name (e.g. a FilterConfig).
func (c *Config) NetworkByName(name string) (NetworkConfig, bool) {
	for _, n := range c.Networks {
		if strings.EqualFold(n.Name, name) {
			return n, true
		}
	}
	return NetworkConfig{}, false
}

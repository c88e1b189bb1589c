package config

import (
	"fmt"
	"slices"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/logrange/internal/common"
	"github.com/goran-ethernal/logrange/internal/logger"
	"github.com/goran-ethernal/logrange/internal/types"
)

const (
	// DefaultMaxRetries is the number of consecutive failures a branch tolerates.
	DefaultMaxRetries = 3

	// DefaultSafetyMargin is the number of blocks below the upper bound at which fetching stops.
	DefaultSafetyMargin uint64 = 10

	// DefaultHoldersLimit caps the number of unique holders written to the output file.
	DefaultHoldersLimit = 100

	// DefaultHoldersEvent is the event decoded by the holders sink.
	DefaultHoldersEvent = "Transfer(address,address,uint256)"

	maxTopicPositions = 4
)

// Config represents the complete configuration for logrange.
type Config struct {
	// RPC contains the node connection configuration
	RPC RPCConfig `yaml:"rpc" json:"rpc" toml:"rpc"`

	// Fetch describes the logs to fetch and how to shrink windows on failure
	Fetch FetchConfig `yaml:"fetch" json:"fetch" toml:"fetch"`

	// Store enables the SQLite log store sink when set
	Store *DatabaseConfig `yaml:"store,omitempty" json:"store,omitempty" toml:"store,omitempty"`

	// Holders enables the token holders sink when set
	Holders *HoldersConfig `yaml:"holders,omitempty" json:"holders,omitempty" toml:"holders,omitempty"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// RPCConfig represents the node connection configuration.
type RPCConfig struct {
	// URL is the Ethereum RPC endpoint URL
	URL string `yaml:"url" json:"url" toml:"url" jsonschema:"required"`

	// Finality selects the block tag used as the chain head when no to_block is set
	// Options: "latest", "safe", "finalized"
	Finality string `yaml:"finality,omitempty" json:"finality,omitempty" toml:"finality,omitempty" jsonschema:"enum=latest,enum=safe,enum=finalized"` //nolint:lll

	// Retry configures exponential backoff for chain head lookups.
	// Log queries are never retried here, the range fetcher owns that policy.
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// ApplyDefaults sets default values for optional RPC configuration fields.
func (r *RPCConfig) ApplyDefaults() {
	if r.Finality == "" {
		r.Finality = types.FinalityLatest.String()
	}
	if r.Retry != nil {
		r.Retry.ApplyDefaults()
	}
}

// RetryConfig represents RPC retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// FetchConfig describes a single log fetch.
type FetchConfig struct {
	// Address is the contract address whose logs are fetched
	Address string `yaml:"address" json:"address" toml:"address" jsonschema:"required"`

	// Topics is the positional topic filter, at most 4 positions.
	// Each position lists accepted hashes; an empty position matches anything.
	Topics [][]string `yaml:"topics,omitempty" json:"topics,omitempty" toml:"topics,omitempty"`

	// FromBlock is the first block to fetch
	FromBlock uint64 `yaml:"from_block" json:"from_block" toml:"from_block"`

	// ToBlock is the upper bound; when unset the chain head is followed
	ToBlock *uint64 `yaml:"to_block,omitempty" json:"to_block,omitempty" toml:"to_block,omitempty"`

	// PageLimit is the number of blocks per eth_getLogs window (0 = one window up to the bound)
	PageLimit uint64 `yaml:"page_limit" json:"page_limit" toml:"page_limit"`

	// Timeout is the wait before retrying a window that timed out
	Timeout common.Duration `yaml:"timeout" json:"timeout" toml:"timeout"`

	// MaxRetries is the number of consecutive failures a branch tolerates
	MaxRetries int `yaml:"max_retries" json:"max_retries" toml:"max_retries"`

	// SafetyMargin stops fetching this many blocks below the upper bound
	SafetyMargin *uint64 `yaml:"safety_margin,omitempty" json:"safety_margin,omitempty" toml:"safety_margin,omitempty"`

	// ParallelBisection fetches both halves of a split window concurrently
	ParallelBisection bool `yaml:"parallel_bisection" json:"parallel_bisection" toml:"parallel_bisection"`

	// MaxTotalRetries caps failed log queries across the whole fetch (0 = unbounded)
	MaxTotalRetries int `yaml:"max_total_retries" json:"max_total_retries" toml:"max_total_retries"`

	// Resume restarts the fetch from the last reached block until the bound is covered
	Resume bool `yaml:"resume" json:"resume" toml:"resume"`
}

// ApplyDefaults sets default values for optional fetch configuration fields.
func (f *FetchConfig) ApplyDefaults() {
	if f.MaxRetries == 0 {
		f.MaxRetries = DefaultMaxRetries
	}
	if f.SafetyMargin == nil {
		margin := DefaultSafetyMargin
		f.SafetyMargin = &margin
	}
}

// Validate checks if the fetch configuration is valid.
func (f *FetchConfig) Validate() error {
	if f.Address == "" {
		return fmt.Errorf("fetch.address is required")
	}

	if _, err := common.ParseAddress(f.Address); err != nil {
		return fmt.Errorf("fetch.address: %w", err)
	}

	if _, err := f.TopicFilter(); err != nil {
		return err
	}

	if f.ToBlock != nil && *f.ToBlock < f.FromBlock {
		return fmt.Errorf("fetch.to_block (%d) must not be lower than fetch.from_block (%d)", *f.ToBlock, f.FromBlock)
	}

	if f.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must not be negative")
	}

	if f.MaxTotalRetries < 0 {
		return fmt.Errorf("fetch.max_total_retries must not be negative")
	}

	if f.Timeout.Duration < 0 {
		return fmt.Errorf("fetch.timeout must not be negative")
	}

	return nil
}

// ContractAddress returns the parsed contract address.
func (f *FetchConfig) ContractAddress() ethcommon.Address {
	addr, _ := common.ParseAddress(f.Address)
	return addr
}

// TopicFilter parses the configured topics into a positional filter.
func (f *FetchConfig) TopicFilter() ([][]ethcommon.Hash, error) {
	if len(f.Topics) > maxTopicPositions {
		return nil, fmt.Errorf("fetch.topics: at most %d positions allowed, got %d", maxTopicPositions, len(f.Topics))
	}

	topics := make([][]ethcommon.Hash, len(f.Topics))
	for i, position := range f.Topics {
		for j, raw := range position {
			hash, err := common.ParseHash(raw)
			if err != nil {
				return nil, fmt.Errorf("fetch.topics[%d][%d]: %w", i, j, err)
			}
			topics[i] = append(topics[i], hash)
		}
	}

	return topics, nil
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
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

// Validate checks if the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("path is required")
	}

	validJournalModes := []string{"WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY"}
	if d.JournalMode != "" && !slices.Contains(validJournalModes, d.JournalMode) {
		return fmt.Errorf("journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}

	validSynchronous := []string{"FULL", "NORMAL", "OFF"}
	if d.Synchronous != "" && !slices.Contains(validSynchronous, d.Synchronous) {
		return fmt.Errorf("synchronous must be one of: FULL, NORMAL, OFF")
	}

	return nil
}

// HoldersConfig configures the token holders sink.
type HoldersConfig struct {
	// Output is the JSON file the holders are written to
	Output string `yaml:"output" json:"output" toml:"output"`

	// Limit caps the number of unique holders kept
	Limit int `yaml:"limit" json:"limit" toml:"limit"`

	// Event is the transfer event signature to decode
	Event string `yaml:"event" json:"event" toml:"event"`

	// Field selects the indexed address collected: "to" or "from"
	Field string `yaml:"field" json:"field" toml:"field"`

	// MintsOnly restricts the fetch to transfers from the zero address
	MintsOnly bool `yaml:"mints_only" json:"mints_only" toml:"mints_only"`
}

// ApplyDefaults sets default values for optional holders configuration fields.
func (h *HoldersConfig) ApplyDefaults() {
	if h.Output == "" {
		h.Output = "holders.json"
	}
	if h.Limit == 0 {
		h.Limit = DefaultHoldersLimit
	}
	if h.Event == "" {
		h.Event = DefaultHoldersEvent
	}
	if h.Field == "" {
		h.Field = "to"
	}
}

// Validate checks if the holders configuration is valid.
func (h *HoldersConfig) Validate() error {
	if h.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}

	if h.Field != "to" && h.Field != "from" {
		return fmt.Errorf("field must be one of: to, from")
	}

	return nil
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components:
	//   - rpc-client: Node connection and eth_getLogs calls
	//   - range-fetcher: Window bisection and retries
	//   - log-store: SQLite log store sink
	//   - holders: Token holders sink
	//   - cli: Command line runs and the metrics server
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return common.ToLowerWithTrim(level)
	}
	return l.GetDefaultLevel()
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.RPC.ApplyDefaults()
	c.Fetch.ApplyDefaults()

	if c.Store != nil {
		c.Store.ApplyDefaults()
	}

	if c.Holders != nil {
		c.Holders.ApplyDefaults()
	}

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	c.Logging.ApplyDefaults()

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.RPC.URL == "" {
		return fmt.Errorf("rpc.url is required")
	}

	if c.RPC.Finality != "" {
		if _, err := types.ParseBlockFinality(c.RPC.Finality); err != nil {
			return fmt.Errorf("rpc.finality: %w", err)
		}
	}

	if err := c.Fetch.Validate(); err != nil {
		return err
	}

	if c.Store != nil {
		if err := c.Store.Validate(); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}

	if c.Holders != nil {
		if err := c.Holders.Validate(); err != nil {
			return fmt.Errorf("holders: %w", err)
		}
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}

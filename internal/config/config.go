// Package config loads and resolves runtime configuration for every
// subsystem of the sequencer: the Bridge Batcher, Disruptor core, Shard
// Router, Checkpoint/Recovery engine, and Telemetry facade.
package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// Rollup Sequencer - Configuration with Environment Overrides
// =============================================================================

type Config struct {
	Bridge     BridgeConfig     `yaml:"bridge"`
	Disruptor  DisruptorConfig  `yaml:"disruptor"`
	ShardRouter ShardRouterConfig `yaml:"shard_router"`
	Recovery   RecoveryConfig   `yaml:"recovery"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// BridgeConfig configures the Bridge Batcher (C6).
type BridgeConfig struct {
	BatchSize               int     `yaml:"batch_size"`
	MaxParallelism          int     `yaml:"max_parallelism"`
	ConfirmationLevels      int     `yaml:"confirmation_levels"`
	AdaptiveConfirmations   bool    `yaml:"adaptive_confirmations"`
	MinConf                 int     `yaml:"min_conf"`
	MaxConf                 int     `yaml:"max_conf"`
	HighValueThreshold      uint64  `yaml:"high_value_threshold"`
	OptimisticExecution     bool    `yaml:"optimistic_execution"`
	PrefetchingEnabled      bool    `yaml:"prefetching_enabled"`
	CachingEnabled          bool    `yaml:"caching_enabled"`
	CacheSize               int     `yaml:"cache_size"`
	CacheTTLMs              int64   `yaml:"cache_ttl_ms"`
	PriorityLevels          int     `yaml:"priority_levels"`
	MonitoringEnabled       bool    `yaml:"monitoring_enabled"`
	MetricsIntervalMs       int64   `yaml:"metrics_interval_ms"`
	GasOptimizationEnabled  bool    `yaml:"gas_optimization_enabled"`
}

// DisruptorConfig configures the Disruptor core (C5) and its ring (C2).
type DisruptorConfig struct {
	BufferSize                int    `yaml:"buffer_size"`
	WorkerCount               int    `yaml:"worker_count"`
	EnableParallelProcessing  bool   `yaml:"enable_parallel_processing"`
	BatchSize                 int    `yaml:"batch_size"`
	WaitStrategy              string `yaml:"wait_strategy"` // yielding|sleeping|blocking
	ClaimStrategy             string `yaml:"claim_strategy"` // single|multi
	EnableMetrics             bool   `yaml:"enable_metrics"`
	MetricsIntervalMs         int64  `yaml:"metrics_interval_ms"`
	EnableDependencyTracking  bool   `yaml:"enable_dependency_tracking"`
	MaxDependencies           int    `yaml:"max_dependencies"`
	EnableBatchProcessing     bool   `yaml:"enable_batch_processing"`
	BatchTimeoutMs            int64  `yaml:"batch_timeout_ms"`
	EnablePrioritization      bool   `yaml:"enable_prioritization"`
	PriorityLevels            int    `yaml:"priority_levels"`
	DefaultPriority           int    `yaml:"default_priority"`
}

// ShardRouterConfig configures the Shard Router (C3).
type ShardRouterConfig struct {
	Shards   []ShardConfig  `yaml:"shards"`
	Strategy StrategyConfig `yaml:"strategy"`
}

type ShardConfig struct {
	ShardID  int    `yaml:"shard_id"`
	Backend  string `yaml:"backend"` // postgres|redis|spanner
	Endpoint string `yaml:"endpoint"`
}

type StrategyConfig struct {
	Type         string            `yaml:"type"` // hash|range|lookup|consistent-hash
	KeyField     string            `yaml:"key_field"`
	Function     string            `yaml:"function"` // md5|sha1|crc32
	Ranges       []RangeConfig     `yaml:"ranges"`
	LookupTable  map[string]int    `yaml:"lookup_table"`
	VirtualNodes int               `yaml:"virtual_nodes"`
}

type RangeConfig struct {
	Min     uint64 `yaml:"min"`
	Max     uint64 `yaml:"max"`
	ShardID int    `yaml:"shard_id"`
}

// RecoveryConfig configures the Checkpoint & Recovery Engine (C4).
type RecoveryConfig struct {
	CheckpointDir      string `yaml:"checkpoint_dir"`
	CheckpointInterval int    `yaml:"checkpoint_interval"`
	MaxCheckpoints     int    `yaml:"max_checkpoints"`
}

// TelemetryConfig configures the Telemetry Facade (C1).
type TelemetryConfig struct {
	MetricsDir          string `yaml:"metrics_dir"`
	MaxPoints           int    `yaml:"max_points"`
	PersistIntervalMs   int64  `yaml:"persist_interval_ms"`
	RetainSnapshots     int    `yaml:"retain_snapshots"`
	HTTPAddr            string `yaml:"http_addr"`
	PushEnabled         bool   `yaml:"push_enabled"`
}

// Load reads a YAML config file from path, applies environment overrides and
// defaults. A missing file is not an error — defaults apply.
func Load(path string) (*Config, error) {
	// Boolean switches whose §6.5 default is on are preset before decoding,
	// since a decoded false cannot be told apart from an absent key later.
	cfg := &Config{
		Bridge: BridgeConfig{
			AdaptiveConfirmations: true, OptimisticExecution: true, PrefetchingEnabled: true,
			CachingEnabled: true, MonitoringEnabled: true,
		},
		Disruptor: DisruptorConfig{
			EnableParallelProcessing: true, EnableMetrics: true, EnableDependencyTracking: true,
			EnableBatchProcessing: true, EnablePrioritization: true,
		},
	}
	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		if decErr := yaml.NewDecoder(f).Decode(cfg); decErr != nil {
			return nil, decErr
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Bridge.BatchSize = getEnvInt("ROLLUP_BRIDGE_BATCH_SIZE", c.Bridge.BatchSize)
	c.Bridge.MaxParallelism = getEnvInt("ROLLUP_BRIDGE_MAX_PARALLELISM", c.Bridge.MaxParallelism)
	c.Bridge.AdaptiveConfirmations = getEnvBool("ROLLUP_BRIDGE_ADAPTIVE_CONF", c.Bridge.AdaptiveConfirmations)
	c.Bridge.OptimisticExecution = getEnvBool("ROLLUP_BRIDGE_OPTIMISTIC", c.Bridge.OptimisticExecution)
	c.Bridge.GasOptimizationEnabled = getEnvBool("ROLLUP_BRIDGE_GAS_OPT", c.Bridge.GasOptimizationEnabled)

	c.Disruptor.BufferSize = getEnvInt("ROLLUP_DISRUPTOR_BUFFER_SIZE", c.Disruptor.BufferSize)
	c.Disruptor.WorkerCount = getEnvInt("ROLLUP_DISRUPTOR_WORKERS", c.Disruptor.WorkerCount)
	c.Disruptor.WaitStrategy = getEnv("ROLLUP_DISRUPTOR_WAIT_STRATEGY", c.Disruptor.WaitStrategy)
	c.Disruptor.ClaimStrategy = getEnv("ROLLUP_DISRUPTOR_CLAIM_STRATEGY", c.Disruptor.ClaimStrategy)

	c.Recovery.CheckpointDir = getEnv("ROLLUP_CHECKPOINT_DIR", c.Recovery.CheckpointDir)
	c.Recovery.CheckpointInterval = getEnvInt("ROLLUP_CHECKPOINT_INTERVAL", c.Recovery.CheckpointInterval)
	c.Recovery.MaxCheckpoints = getEnvInt("ROLLUP_MAX_CHECKPOINTS", c.Recovery.MaxCheckpoints)

	c.Telemetry.MetricsDir = getEnv("ROLLUP_METRICS_DIR", c.Telemetry.MetricsDir)
	c.Telemetry.HTTPAddr = getEnv("ROLLUP_TELEMETRY_ADDR", c.Telemetry.HTTPAddr)
}

// applyDefaults fills in the §6.5 enumerated numeric and string defaults for
// zero-valued fields; Load presets the boolean defaults before decoding.
func (c *Config) applyDefaults() {
	if c.Bridge.BatchSize == 0 {
		c.Bridge.BatchSize = 100
	}
	if c.Bridge.MaxParallelism == 0 {
		c.Bridge.MaxParallelism = 8
	}
	if c.Bridge.ConfirmationLevels == 0 {
		c.Bridge.ConfirmationLevels = 2
	}
	if c.Bridge.MinConf == 0 {
		c.Bridge.MinConf = 1
	}
	if c.Bridge.MaxConf == 0 {
		c.Bridge.MaxConf = 5
	}
	if c.Bridge.HighValueThreshold == 0 {
		c.Bridge.HighValueThreshold = 100_000_000_000
	}
	if c.Bridge.CacheSize == 0 {
		c.Bridge.CacheSize = 10_000
	}
	if c.Bridge.CacheTTLMs == 0 {
		c.Bridge.CacheTTLMs = 3_600_000
	}
	if c.Bridge.PriorityLevels == 0 {
		c.Bridge.PriorityLevels = 3
	}
	if c.Bridge.MetricsIntervalMs == 0 {
		c.Bridge.MetricsIntervalMs = 10_000
	}

	if c.Disruptor.BufferSize == 0 {
		c.Disruptor.BufferSize = 1024
	}
	if c.Disruptor.WorkerCount == 0 {
		c.Disruptor.WorkerCount = defaultWorkerCount()
	}
	if c.Disruptor.BatchSize == 0 {
		c.Disruptor.BatchSize = 100
	}
	if c.Disruptor.WaitStrategy == "" {
		c.Disruptor.WaitStrategy = "yielding"
	}
	if c.Disruptor.ClaimStrategy == "" {
		c.Disruptor.ClaimStrategy = "single"
	}
	if c.Disruptor.MetricsIntervalMs == 0 {
		c.Disruptor.MetricsIntervalMs = 10_000
	}
	if c.Disruptor.MaxDependencies == 0 {
		c.Disruptor.MaxDependencies = 1000
	}
	if c.Disruptor.BatchTimeoutMs == 0 {
		c.Disruptor.BatchTimeoutMs = 10
	}
	if c.Disruptor.PriorityLevels == 0 {
		c.Disruptor.PriorityLevels = 3
	}

	if c.ShardRouter.Strategy.VirtualNodes == 0 {
		c.ShardRouter.Strategy.VirtualNodes = 100
	}
	if c.ShardRouter.Strategy.Type == "" {
		c.ShardRouter.Strategy.Type = "hash"
	}
	if c.ShardRouter.Strategy.Function == "" {
		c.ShardRouter.Strategy.Function = "md5"
	}

	if c.Recovery.CheckpointDir == "" {
		c.Recovery.CheckpointDir = "./checkpoints"
	}
	if c.Recovery.CheckpointInterval == 0 {
		c.Recovery.CheckpointInterval = 100
	}
	if c.Recovery.MaxCheckpoints == 0 {
		c.Recovery.MaxCheckpoints = 10
	}

	if c.Telemetry.MetricsDir == "" {
		c.Telemetry.MetricsDir = "./metrics"
	}
	if c.Telemetry.MaxPoints == 0 {
		c.Telemetry.MaxPoints = 1440
	}
	if c.Telemetry.PersistIntervalMs == 0 {
		c.Telemetry.PersistIntervalMs = 5 * 60 * 1000
	}
	if c.Telemetry.RetainSnapshots == 0 {
		c.Telemetry.RetainSnapshots = 24
	}
	if c.Telemetry.HTTPAddr == "" {
		c.Telemetry.HTTPAddr = ":9090"
	}
}

func defaultWorkerCount() int {
	n := runtime.NumCPU() - 1
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

// BatchTimeout returns the Disruptor's batch flush timeout as a duration.
func (d DisruptorConfig) BatchTimeout() time.Duration {
	return time.Duration(d.BatchTimeoutMs) * time.Millisecond
}

// CacheTTL returns the bridge proof cache TTL as a duration.
func (b BridgeConfig) CacheTTL() time.Duration {
	return time.Duration(b.CacheTTLMs) * time.Millisecond
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}


package quadrant

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/quadrant/agent"
	"github.com/arloliu/quadrant/types"
)

// TelemetryConfig controls the per-host telemetry agent.
type TelemetryConfig struct {
	// Enabled turns on agent supervision on elected host leaders.
	Enabled bool `yaml:"enabled"`

	// OutputDir receives one CSV per host plus the agent capture files.
	OutputDir string `yaml:"outputDir"`

	// Interval is the agent's sampling cadence.
	// Recommended: 3-10 seconds; sub-second sampling distorts the counters
	// it is trying to observe.
	Interval time.Duration `yaml:"interval"`

	// AgentPath is the agent executable or script to launch.
	AgentPath string `yaml:"agentPath"`

	// AgentRuntime optionally names an interpreter for AgentPath.
	// Empty means AgentPath is executed directly.
	AgentRuntime string `yaml:"agentRuntime"`

	// GracefulTimeout bounds the wait for voluntary agent exit after the
	// interrupt signal at shutdown.
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`

	// ForceTimeout bounds the wait for reaping after the kill signal.
	ForceTimeout time.Duration `yaml:"forceTimeout"`
}

// Config is the configuration for the Runner.
//
// All duration fields accept standard Go duration strings like "30s", "5m".
type Config struct {
	// RunID identifies one run; all ranks of a run must share it. It scopes
	// the NATS subject namespace and seeds the sampling kernel.
	RunID string `yaml:"runId"`

	// TotalTrials is the workload distributed across all ranks.
	TotalTrials uint64 `yaml:"totalTrials"`

	// MaxBatchSize bounds the size of one worker batch.
	// Larger batches amortize dispatch overhead; smaller batches smooth
	// load across workers. Recommended: 100k for the built-in kernel.
	MaxBatchSize uint64 `yaml:"maxBatchSize"`

	// Workers is the local worker-pool size. Zero means auto-detect:
	// QUADRANT_POOL_WORKERS, then SLURM_CPUS_PER_TASK, then the host's
	// logical CPU count.
	Workers int `yaml:"workers"`

	// Hostname overrides the host identity used for leader election and
	// telemetry file naming. Empty means os.Hostname().
	Hostname string `yaml:"hostname"`

	// CollectiveTimeout bounds each collective call. Zero means no bound
	// beyond the caller's context; set it when a hung peer should surface
	// as an error instead of an indefinite wait.
	CollectiveTimeout time.Duration `yaml:"collectiveTimeout"`

	// Telemetry controls the per-host telemetry agent.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		RunID:        "quadrant",
		TotalTrials:  100_000_000,
		MaxBatchSize: 100_000,
		Telemetry: TelemetryConfig{
			OutputDir:       ".",
			Interval:        agent.DefaultInterval,
			GracefulTimeout: agent.DefaultGracefulTimeout,
			ForceTimeout:    agent.DefaultForceTimeout,
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.RunID == "" {
		cfg.RunID = defaults.RunID
	}
	if cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = defaults.MaxBatchSize
	}
	if cfg.Telemetry.OutputDir == "" {
		cfg.Telemetry.OutputDir = defaults.Telemetry.OutputDir
	}
	if cfg.Telemetry.Interval == 0 {
		cfg.Telemetry.Interval = defaults.Telemetry.Interval
	}
	if cfg.Telemetry.GracefulTimeout == 0 {
		cfg.Telemetry.GracefulTimeout = defaults.Telemetry.GracefulTimeout
	}
	if cfg.Telemetry.ForceTimeout == 0 {
		cfg.Telemetry.ForceTimeout = defaults.Telemetry.ForceTimeout
	}
	if cfg.Hostname == "" {
		if name, err := os.Hostname(); err == nil {
			cfg.Hostname = name
		} else {
			cfg.Hostname = "unknown-host"
		}
	}
}

// Validate checks configuration constraints and returns an error for invalid
// values.
//
// Hard Validation Rules:
//   - RunID non-empty (shared rendezvous namespace and kernel seed)
//   - MaxBatchSize >= 1
//   - Workers >= 0 (zero means auto-detect)
//   - Telemetry.AgentPath non-empty when telemetry is enabled
//   - Telemetry timeouts > 0 when telemetry is enabled
//
// Returns:
//   - error: Validation error wrapping types.ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	if cfg.RunID == "" {
		return fmt.Errorf("%w: RunID must not be empty", types.ErrInvalidConfig)
	}
	if cfg.MaxBatchSize < 1 {
		return fmt.Errorf("%w: MaxBatchSize must be >= 1, got %d", types.ErrInvalidConfig, cfg.MaxBatchSize)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("%w: Workers must be >= 0, got %d", types.ErrInvalidConfig, cfg.Workers)
	}
	if cfg.CollectiveTimeout < 0 {
		return fmt.Errorf("%w: CollectiveTimeout must be >= 0, got %v", types.ErrInvalidConfig, cfg.CollectiveTimeout)
	}

	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.AgentPath == "" {
			return fmt.Errorf("%w: Telemetry.AgentPath is required when telemetry is enabled", types.ErrInvalidConfig)
		}
		if cfg.Telemetry.Interval <= 0 {
			return fmt.Errorf("%w: Telemetry.Interval must be > 0, got %v", types.ErrInvalidConfig, cfg.Telemetry.Interval)
		}
		if cfg.Telemetry.GracefulTimeout <= 0 {
			return fmt.Errorf("%w: Telemetry.GracefulTimeout must be > 0, got %v", types.ErrInvalidConfig, cfg.Telemetry.GracefulTimeout)
		}
		if cfg.Telemetry.ForceTimeout <= 0 {
			return fmt.Errorf("%w: Telemetry.ForceTimeout must be > 0, got %v", types.ErrInvalidConfig, cfg.Telemetry.ForceTimeout)
		}
	}

	return nil
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Shutdown timeouts are shortened by an order of magnitude so supervisor
// escalation paths complete in test time. Use DefaultConfig() for
// production runs.
//
// Returns:
//   - Config: Configuration with fast timings for tests
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.RunID = "test-run"
	cfg.TotalTrials = 10_000
	cfg.MaxBatchSize = 1_000
	cfg.Workers = 2
	cfg.CollectiveTimeout = 5 * time.Second
	cfg.Telemetry.Interval = time.Second
	cfg.Telemetry.GracefulTimeout = 500 * time.Millisecond
	cfg.Telemetry.ForceTimeout = 2 * time.Second

	return cfg
}

// LoadConfig reads a YAML configuration file and applies defaults.
//
// Parameters:
//   - path: YAML file path
//
// Returns:
//   - Config: Parsed configuration with defaults applied
//   - error: Read, parse, or validation error
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

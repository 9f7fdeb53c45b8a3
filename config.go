package crawlsource

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ============================================================================
// Timing Configuration Model
// ============================================================================
//
// Ownership is lease based. The only renewal point is a successful progress
// save, so every loop must save well inside LeaseDuration:
//
//	Leader:  acquire ─► discover ─► save (renew) ─► wait DiscoveryInterval ─► discover ...
//	Worker:  acquire ─► fetch page ─► write records ─► save (renew) ─► fetch page ...
//
// A page whose records take longer than LeaseDuration to write cannot keep its
// lease, which is why BufferWriteTimeout must stay below LeaseDuration.
//
// Configuration Constraints:
//   - LeaseDuration >= 2 * DiscoveryInterval (one missed renewal tolerated)
//   - LeaseDuration > BufferWriteTimeout
//   - WorkerMaxIdleBackoff >= WorkerIdleBackoff
//
// ============================================================================

// Config is the configuration for a Source.
//
// All duration fields accept standard Go duration strings like "30s", "5m", "1h".
type Config struct {
	// WorkerCount is the number of worker loops processing work items.
	WorkerCount int `yaml:"workerCount"`

	// LeaseDuration is how long an acquired partition stays owned without a
	// progress save. Also the renewal applied by every save.
	LeaseDuration time.Duration `yaml:"leaseDuration"`

	// LeaderAcquireBackoff is the wait between attempts to become leader.
	LeaderAcquireBackoff time.Duration `yaml:"leaderAcquireBackoff"`

	// DiscoveryInterval is the time between discovery passes while leader.
	DiscoveryInterval time.Duration `yaml:"discoveryInterval"`

	// WorkerIdleBackoff is the first wait after finding no work.
	WorkerIdleBackoff time.Duration `yaml:"workerIdleBackoff"`

	// WorkerMaxIdleBackoff caps the jittered idle wait.
	WorkerMaxIdleBackoff time.Duration `yaml:"workerMaxIdleBackoff"`

	// BufferWriteTimeout bounds each buffer write. A timeout abandons the attempt.
	BufferWriteTimeout time.Duration `yaml:"bufferWriteTimeout"`

	// ReopenDelay is how long a work item stays CLOSED after a recoverable failure.
	ReopenDelay time.Duration `yaml:"reopenDelay"`

	// MaxClosedCount is how many closes a work item survives. The close that
	// exceeds it fails the item permanently. Zero fails on the first close.
	MaxClosedCount int `yaml:"maxClosedCount"`

	// OperationTimeout bounds the release writes made during shutdown.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// StartupTimeout bounds the store calls made by Start.
	StartupTimeout time.Duration `yaml:"startupTimeout"`

	// ShutdownTimeout is how long Stop waits for the loops to exit.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// FetchRateLimit caps fetches per second across all workers. 0 disables pacing.
	FetchRateLimit float64 `yaml:"fetchRateLimit"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		WorkerCount:          1,
		LeaseDuration:        30 * time.Second,
		LeaderAcquireBackoff: 10 * time.Second,
		DiscoveryInterval:    10 * time.Second,
		WorkerIdleBackoff:    1 * time.Second,
		WorkerMaxIdleBackoff: 10 * time.Second,
		BufferWriteTimeout:   10 * time.Second,
		ReopenDelay:          5 * time.Minute,
		MaxClosedCount:       3,
		OperationTimeout:     5 * time.Second,
		StartupTimeout:       30 * time.Second,
		ShutdownTimeout:      30 * time.Second,
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// MaxClosedCount and FetchRateLimit keep their zero values, which are meaningful.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = defaults.WorkerCount
	}
	if cfg.LeaseDuration == 0 {
		cfg.LeaseDuration = defaults.LeaseDuration
	}
	if cfg.LeaderAcquireBackoff == 0 {
		cfg.LeaderAcquireBackoff = defaults.LeaderAcquireBackoff
	}
	if cfg.DiscoveryInterval == 0 {
		cfg.DiscoveryInterval = defaults.DiscoveryInterval
	}
	if cfg.WorkerIdleBackoff == 0 {
		cfg.WorkerIdleBackoff = defaults.WorkerIdleBackoff
	}
	if cfg.WorkerMaxIdleBackoff == 0 {
		cfg.WorkerMaxIdleBackoff = defaults.WorkerMaxIdleBackoff
	}
	if cfg.BufferWriteTimeout == 0 {
		cfg.BufferWriteTimeout = defaults.BufferWriteTimeout
	}
	if cfg.ReopenDelay == 0 {
		cfg.ReopenDelay = defaults.ReopenDelay
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = defaults.StartupTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Hard Validation Rules:
//   - WorkerCount > 0
//   - All durations > 0
//   - MaxClosedCount >= 0, FetchRateLimit >= 0
//   - LeaseDuration >= 2 * DiscoveryInterval
//   - LeaseDuration > BufferWriteTimeout
//   - WorkerMaxIdleBackoff >= WorkerIdleBackoff
//
// Returns:
//   - error: Error wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	if cfg.WorkerCount <= 0 {
		return fmt.Errorf("%w: WorkerCount must be > 0, got %d", ErrInvalidConfig, cfg.WorkerCount)
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"LeaseDuration", cfg.LeaseDuration},
		{"LeaderAcquireBackoff", cfg.LeaderAcquireBackoff},
		{"DiscoveryInterval", cfg.DiscoveryInterval},
		{"WorkerIdleBackoff", cfg.WorkerIdleBackoff},
		{"WorkerMaxIdleBackoff", cfg.WorkerMaxIdleBackoff},
		{"BufferWriteTimeout", cfg.BufferWriteTimeout},
		{"ReopenDelay", cfg.ReopenDelay},
		{"OperationTimeout", cfg.OperationTimeout},
		{"StartupTimeout", cfg.StartupTimeout},
		{"ShutdownTimeout", cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%w: %s must be > 0, got %v", ErrInvalidConfig, d.name, d.value)
		}
	}

	if cfg.MaxClosedCount < 0 {
		return fmt.Errorf("%w: MaxClosedCount must be >= 0, got %d", ErrInvalidConfig, cfg.MaxClosedCount)
	}
	if cfg.FetchRateLimit < 0 {
		return fmt.Errorf("%w: FetchRateLimit must be >= 0, got %v", ErrInvalidConfig, cfg.FetchRateLimit)
	}

	if cfg.LeaseDuration < 2*cfg.DiscoveryInterval {
		return fmt.Errorf(
			"%w: LeaseDuration (%v) must be >= 2*DiscoveryInterval (%v) to tolerate one missed renewal",
			ErrInvalidConfig, cfg.LeaseDuration, cfg.DiscoveryInterval,
		)
	}

	if cfg.LeaseDuration <= cfg.BufferWriteTimeout {
		return fmt.Errorf(
			"%w: LeaseDuration (%v) must be > BufferWriteTimeout (%v)",
			ErrInvalidConfig, cfg.LeaseDuration, cfg.BufferWriteTimeout,
		)
	}

	if cfg.WorkerMaxIdleBackoff < cfg.WorkerIdleBackoff {
		return fmt.Errorf(
			"%w: WorkerMaxIdleBackoff (%v) must be >= WorkerIdleBackoff (%v)",
			ErrInvalidConfig, cfg.WorkerMaxIdleBackoff, cfg.WorkerIdleBackoff,
		)
	}

	return nil
}

// ValidateWithWarnings logs warnings for valid but non-recommended values.
//
// This is called after Validate() in New() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.LeaseDuration < 3*cfg.DiscoveryInterval {
		logger.Warn(
			"LeaseDuration leaves little room for slow discovery passes",
			"lease_duration", cfg.LeaseDuration,
			"discovery_interval", cfg.DiscoveryInterval,
			"recommended", 3*cfg.DiscoveryInterval,
		)
	}

	if cfg.LeaderAcquireBackoff > cfg.LeaseDuration {
		logger.Warn(
			"LeaderAcquireBackoff exceeds LeaseDuration, leadership may stay vacant after a crash",
			"leader_acquire_backoff", cfg.LeaderAcquireBackoff,
			"lease_duration", cfg.LeaseDuration,
		)
	}

	if cfg.OperationTimeout >= cfg.ShutdownTimeout {
		logger.Warn(
			"OperationTimeout is not below ShutdownTimeout, releases may outlive Stop",
			"operation_timeout", cfg.OperationTimeout,
			"shutdown_timeout", cfg.ShutdownTimeout,
		)
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Returns:
//   - Config: Configuration with fast timings for tests
//
// Example:
//
//	cfg := crawlsource.TestConfig()
//	cfg.WorkerCount = 2
//	src, err := crawlsource.New(&cfg, crawler)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.LeaseDuration = 2 * time.Second
	cfg.LeaderAcquireBackoff = 50 * time.Millisecond
	cfg.DiscoveryInterval = 100 * time.Millisecond
	cfg.WorkerIdleBackoff = 10 * time.Millisecond
	cfg.WorkerMaxIdleBackoff = 50 * time.Millisecond
	cfg.BufferWriteTimeout = 200 * time.Millisecond
	cfg.ReopenDelay = 100 * time.Millisecond
	cfg.OperationTimeout = 1 * time.Second
	cfg.StartupTimeout = 5 * time.Second
	cfg.ShutdownTimeout = 5 * time.Second

	return cfg
}

// ParseConfig decodes a YAML document over DefaultConfig.
//
// Keys missing from the document keep their defaults, including
// MaxClosedCount which SetDefaults leaves alone.
//
// Returns:
//   - Config: Decoded configuration, not yet validated
//   - error: YAML decoding error
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	SetDefaults(&cfg)

	return cfg, nil
}

// LoadConfig reads and decodes a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return ParseConfig(data)
}

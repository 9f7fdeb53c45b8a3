package crawlsource

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, 1, cfg.WorkerCount)
	require.Equal(t, 30*time.Second, cfg.LeaseDuration)
	require.Equal(t, 10*time.Second, cfg.LeaderAcquireBackoff)
	require.Equal(t, 10*time.Second, cfg.DiscoveryInterval)
	require.Equal(t, 1*time.Second, cfg.WorkerIdleBackoff)
	require.Equal(t, 10*time.Second, cfg.WorkerMaxIdleBackoff)
	require.Equal(t, 10*time.Second, cfg.BufferWriteTimeout)
	require.Equal(t, 5*time.Minute, cfg.ReopenDelay)
	require.Equal(t, 3, cfg.MaxClosedCount)
	require.Equal(t, 5*time.Second, cfg.OperationTimeout)
	require.Equal(t, 30*time.Second, cfg.StartupTimeout)
	require.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	require.Zero(t, cfg.FetchRateLimit)
	require.NoError(t, cfg.Validate())
}

func TestSetDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)

		require.Equal(t, 1, cfg.WorkerCount)
		require.Equal(t, 30*time.Second, cfg.LeaseDuration)
		require.Equal(t, 5*time.Minute, cfg.ReopenDelay)
		// Zero is a meaningful MaxClosedCount
		require.Zero(t, cfg.MaxClosedCount)
		require.NoError(t, cfg.Validate())
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			WorkerCount:          8,
			LeaseDuration:        time.Minute,
			LeaderAcquireBackoff: 2 * time.Second,
			DiscoveryInterval:    20 * time.Second,
			WorkerIdleBackoff:    500 * time.Millisecond,
			WorkerMaxIdleBackoff: 5 * time.Second,
			BufferWriteTimeout:   15 * time.Second,
			ReopenDelay:          time.Hour,
			MaxClosedCount:       7,
			OperationTimeout:     3 * time.Second,
			StartupTimeout:       time.Minute,
			ShutdownTimeout:      time.Minute,
			FetchRateLimit:       2.5,
		}
		want := cfg
		SetDefaults(&cfg)

		require.Equal(t, want, cfg)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.WorkerCount = 0 }},
		{"negative lease", func(c *Config) { c.LeaseDuration = -time.Second }},
		{"zero reopen delay", func(c *Config) { c.ReopenDelay = 0 }},
		{"negative closed count", func(c *Config) { c.MaxClosedCount = -1 }},
		{"negative rate limit", func(c *Config) { c.FetchRateLimit = -1 }},
		{"lease below two discovery intervals", func(c *Config) {
			c.LeaseDuration = 15 * time.Second
			c.DiscoveryInterval = 10 * time.Second
		}},
		{"lease not above buffer timeout", func(c *Config) {
			c.LeaseDuration = 30 * time.Second
			c.BufferWriteTimeout = 30 * time.Second
		}},
		{"max idle backoff below idle backoff", func(c *Config) {
			c.WorkerIdleBackoff = 5 * time.Second
			c.WorkerMaxIdleBackoff = time.Second
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("test config is valid", func(t *testing.T) {
		cfg := TestConfig()
		require.NoError(t, cfg.Validate())
	})
}

type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any) {}
func (l *recordingLogger) Warn(msg string, _ ...any) { l.warnings = append(l.warnings, msg) }
func (l *recordingLogger) Error(string, ...any) {}
func (l *recordingLogger) Fatal(string, ...any) {}

func TestConfig_ValidateWithWarnings(t *testing.T) {
	cfg := DefaultConfig()
	logger := &recordingLogger{}
	cfg.ValidateWithWarnings(logger)
	require.Empty(t, logger.warnings)

	cfg.LeaseDuration = 25 * time.Second
	cfg.LeaderAcquireBackoff = time.Minute
	cfg.OperationTimeout = cfg.ShutdownTimeout
	cfg.ValidateWithWarnings(logger)
	require.Len(t, logger.warnings, 3)
}

func TestConfig_YAML(t *testing.T) {
	data := `
workerCount: 4
leaseDuration: 1m
discoveryInterval: 15s
reopenDelay: 10m
maxClosedCount: 5
fetchRateLimit: 3.5
`
	cfg, err := ParseConfig([]byte(data))
	require.NoError(t, err)

	require.Equal(t, 4, cfg.WorkerCount)
	require.Equal(t, time.Minute, cfg.LeaseDuration)
	require.Equal(t, 15*time.Second, cfg.DiscoveryInterval)
	require.Equal(t, 10*time.Minute, cfg.ReopenDelay)
	require.Equal(t, 5, cfg.MaxClosedCount)
	require.InDelta(t, 3.5, cfg.FetchRateLimit, 0)
	require.NoError(t, cfg.Validate())

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	var roundTrip Config
	require.NoError(t, yaml.Unmarshal(out, &roundTrip))
	require.Equal(t, cfg, roundTrip)
}

func TestConfig_DefaultsWithPartialYAML(t *testing.T) {
	cfg, err := ParseConfig([]byte("workerCount: 2\n"))
	require.NoError(t, err)

	want := DefaultConfig()
	want.WorkerCount = 2
	require.Equal(t, want, cfg)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawlsource.yaml")
	require.NoError(t, os.WriteFile(path, []byte("maxClosedCount: 0\nbufferWriteTimeout: 2s\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Zero(t, cfg.MaxClosedCount)
	require.Equal(t, 2*time.Second, cfg.BufferWriteTimeout)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = ParseConfig([]byte("workerCount: [1"))
	require.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost:50051", cfg.Server.GRPCListenAddr)
	assert.InDelta(t, 20.0, cfg.Server.RateLimit, 0.001)
	assert.Equal(t, 40, cfg.Server.Burst)
	assert.Equal(t, 10*time.Second, cfg.Server.RequestTimeout())
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "HIGH", cfg.Slack.MinAlertLevel)
	assert.False(t, cfg.Slack.Enabled())
	assert.True(t, cfg.Resilience.CircuitBreakerEnabled)
	assert.Equal(t, 5, cfg.Resilience.MaxFailures)
	assert.Equal(t, 3, cfg.Resilience.MaxRetries)
	assert.Equal(t, 100, cfg.Ingest.BatchSize)
	assert.Equal(t, 3, cfg.Ranking.TopN)
	assert.Equal(t, 90, cfg.Market.WindowDays)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: file:vantage.db
log:
  level: debug
  format: console
server:
  port: 9090
ingest:
  batch_size: 25
  feeds:
    - name: pitchbook
      url: https://feeds.example.com/pe.json
      format: json
    - name: preqin
      url: https://feeds.example.com/vc.csv
      format: csv
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "file:vantage.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Ingest.BatchSize)
	require.Len(t, cfg.Ingest.Feeds, 2)
	assert.Equal(t, "preqin", cfg.Ingest.Feeds[1].Name)
	assert.Equal(t, "csv", cfg.Ingest.Feeds[1].Format)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Ranking.TopN)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
slack:
  min_alert_level: MEDIUM
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("VANTAGE_STORE_DRIVER", "postgres")
	t.Setenv("VANTAGE_SLACK_MIN_ALERT_LEVEL", "CRITICAL")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "CRITICAL", cfg.Slack.MinAlertLevel)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("VANTAGE_RANKING_TOP_N=5\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("VANTAGE_RANKING_TOP_N") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Ranking.TopN)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unterminated"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.GRPCListenAddr = "localhost:50051"
	cfg.Store.Driver = "memory"
	cfg.Ingest.BatchSize = 100
	cfg.Ranking.TopN = 3
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "api defaults", mode: "api", mutate: func(*Config) {}},
		{
			name:    "api bad port",
			mode:    "api",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port 0 is out of range",
		},
		{
			name:    "postgres without url",
			mode:    "api",
			mutate:  func(c *Config) { c.Store.Driver = "postgres" },
			wantErr: "store.database_url is required",
		},
		{
			name:    "unknown driver",
			mode:    "grpc",
			mutate:  func(c *Config) { c.Store.Driver = "mongo" },
			wantErr: `store.driver "mongo" is not supported`,
		},
		{
			name:    "ingest without feeds",
			mode:    "ingest",
			mutate:  func(*Config) {},
			wantErr: "ingest.feeds must list at least one feed",
		},
		{
			name: "ingest bad feed format",
			mode: "ingest",
			mutate: func(c *Config) {
				c.Ingest.Feeds = []FeedConfig{{Name: "x", URL: "https://x", Format: "xml"}}
			},
			wantErr: "ingest.feeds[0].format must be json or csv",
		},
		{
			name:    "misspelled alert level",
			mode:    "api",
			mutate:  func(c *Config) { c.Slack.MinAlertLevel = "medum" },
			wantErr: `slack.min_alert_level: unknown alert level "medum"`,
		},
		{name: "alert on everything", mode: "api", mutate: func(c *Config) { c.Slack.MinAlertLevel = "NONE" }},
		{
			name:    "zero top n",
			mode:    "cli",
			mutate:  func(c *Config) { c.Ranking.TopN = 0 },
			wantErr: "ranking.top_n must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate(tt.mode)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

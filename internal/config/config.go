package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hive-corporation/vantage/internal/core/domain"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Slack      SlackConfig      `yaml:"slack" mapstructure:"slack"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Ranking    RankingConfig    `yaml:"ranking" mapstructure:"ranking"`
	Market     MarketConfig     `yaml:"market" mapstructure:"market"`
}

// ServerConfig configures the REST and gRPC listeners.
type ServerConfig struct {
	Port            int     `yaml:"port" mapstructure:"port"`
	GRPCListenAddr  string  `yaml:"grpc_listen_addr" mapstructure:"grpc_listen_addr"`
	AuthToken       string  `yaml:"auth_token" mapstructure:"auth_token"`
	RateLimit       float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst           int     `yaml:"burst" mapstructure:"burst"`
	RequestTimeoutS int     `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// RequestTimeout returns the per-request deadline applied by handlers.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutS) * time.Second
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SlackConfig configures risk alert notifications.
type SlackConfig struct {
	BotToken      string `yaml:"bot_token" mapstructure:"bot_token"`
	Channel       string `yaml:"channel" mapstructure:"channel"`
	MentionTeam   string `yaml:"mention_team" mapstructure:"mention_team"`
	MinAlertLevel string `yaml:"min_alert_level" mapstructure:"min_alert_level"`
	APIURL        string `yaml:"api_url" mapstructure:"api_url"`
}

// Enabled reports whether enough is configured to post alerts.
func (s SlackConfig) Enabled() bool {
	return s.BotToken != "" && s.Channel != ""
}

// ResilienceConfig holds circuit breaker and retry settings for outbound HTTP.
type ResilienceConfig struct {
	CircuitBreakerEnabled bool `yaml:"circuit_breaker_enabled" mapstructure:"circuit_breaker_enabled"`
	MaxFailures           int  `yaml:"max_failures" mapstructure:"max_failures"`
	CircuitTimeoutSecs    int  `yaml:"circuit_timeout_secs" mapstructure:"circuit_timeout_secs"`
	MaxRetries            int  `yaml:"max_retries" mapstructure:"max_retries"`
	InitialIntervalMs     int  `yaml:"initial_interval_ms" mapstructure:"initial_interval_ms"`
	MaxIntervalMs         int  `yaml:"max_interval_ms" mapstructure:"max_interval_ms"`
	HTTPTimeoutSecs       int  `yaml:"http_timeout_secs" mapstructure:"http_timeout_secs"`
}

// FeedConfig describes one market indicator feed.
type FeedConfig struct {
	Name   string `yaml:"name" mapstructure:"name"`
	URL    string `yaml:"url" mapstructure:"url"`
	Format string `yaml:"format" mapstructure:"format"` // json or csv
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// IngestConfig configures the market data ingester.
type IngestConfig struct {
	Feeds              []FeedConfig `yaml:"feeds" mapstructure:"feeds"`
	BatchSize          int          `yaml:"batch_size" mapstructure:"batch_size"`
	FlushIntervalSecs  int          `yaml:"flush_interval_secs" mapstructure:"flush_interval_secs"`
	PollIntervalMins   int          `yaml:"poll_interval_mins" mapstructure:"poll_interval_mins"`
	MaxConcurrentFeeds int          `yaml:"max_concurrent_feeds" mapstructure:"max_concurrent_feeds"`
}

// RankingConfig configures template recommendation.
type RankingConfig struct {
	TopN int `yaml:"top_n" mapstructure:"top_n"`
}

// MarketConfig configures the market snapshot window.
type MarketConfig struct {
	WindowDays int `yaml:"window_days" mapstructure:"window_days"`
}

// Load reads an optional .env, then configuration from file and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VANTAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_listen_addr", "localhost:50051")
	v.SetDefault("server.auth_token", "")
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.burst", 40)
	v.SetDefault("server.request_timeout_secs", 10)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.database_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("slack.bot_token", "")
	v.SetDefault("slack.channel", "")
	v.SetDefault("slack.mention_team", "")
	v.SetDefault("slack.min_alert_level", "HIGH")
	v.SetDefault("slack.api_url", "https://slack.com/api/chat.postMessage")
	v.SetDefault("resilience.circuit_breaker_enabled", true)
	v.SetDefault("resilience.max_failures", 5)
	v.SetDefault("resilience.circuit_timeout_secs", 30)
	v.SetDefault("resilience.max_retries", 3)
	v.SetDefault("resilience.initial_interval_ms", 500)
	v.SetDefault("resilience.max_interval_ms", 5000)
	v.SetDefault("resilience.http_timeout_secs", 10)
	v.SetDefault("ingest.batch_size", 100)
	v.SetDefault("ingest.flush_interval_secs", 5)
	v.SetDefault("ingest.poll_interval_mins", 60)
	v.SetDefault("ingest.max_concurrent_feeds", 4)
	v.SetDefault("ranking.top_n", 3)
	v.SetDefault("market.window_days", 90)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it starts.
// mode is one of "api", "grpc", "ingest" or "cli".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Store.DatabaseURL == "" && mode != "cli" {
			errs = append(errs, fmt.Sprintf("store.database_url is required for driver %q", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported (memory, postgres, sqlite)", c.Store.Driver))
	}

	switch mode {
	case "api":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server.rate_limit must not be negative")
		}
	case "grpc", "cli":
		if c.Server.GRPCListenAddr == "" {
			errs = append(errs, "server.grpc_listen_addr is required")
		}
	case "ingest":
		if len(c.Ingest.Feeds) == 0 {
			errs = append(errs, "ingest.feeds must list at least one feed")
		}
		for i, f := range c.Ingest.Feeds {
			if f.URL == "" {
				errs = append(errs, fmt.Sprintf("ingest.feeds[%d].url is required", i))
			}
			if f.Format != "json" && f.Format != "csv" {
				errs = append(errs, fmt.Sprintf("ingest.feeds[%d].format must be json or csv", i))
			}
		}
		if c.Ingest.BatchSize <= 0 {
			errs = append(errs, "ingest.batch_size must be positive")
		}
	}

	if c.Slack.MinAlertLevel != "" {
		if _, err := domain.ParseAlertLevel(c.Slack.MinAlertLevel); err != nil {
			errs = append(errs, "slack.min_alert_level: "+err.Error())
		}
	}

	if c.Ranking.TopN <= 0 {
		errs = append(errs, "ranking.top_n must be positive")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

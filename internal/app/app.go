// Package app wires configuration, storage, notifiers and services into the
// graph shared by the API, gRPC and ingester binaries.
package app

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hive-corporation/vantage/internal/adapter/handler"
	"github.com/hive-corporation/vantage/internal/adapter/notifier"
	"github.com/hive-corporation/vantage/internal/adapter/provider"
	"github.com/hive-corporation/vantage/internal/adapter/repository"
	"github.com/hive-corporation/vantage/internal/adapter/resilience"
	"github.com/hive-corporation/vantage/internal/config"
	"github.com/hive-corporation/vantage/internal/core/domain"
	"github.com/hive-corporation/vantage/internal/core/ports"
	"github.com/hive-corporation/vantage/internal/core/services"
	"github.com/hive-corporation/vantage/internal/ingest"
)

type App struct {
	Config   *config.Config
	Store    ports.Store
	Services handler.Services
}

// New opens the configured store and builds every service on top of it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	minAlert := domain.AlertHigh
	if cfg.Slack.MinAlertLevel != "" {
		level, err := domain.ParseAlertLevel(cfg.Slack.MinAlertLevel)
		if err != nil {
			return nil, eris.Wrap(err, "app: slack.min_alert_level")
		}
		minAlert = level
	}

	store, err := repository.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "app: open store")
	}

	defaults, err := services.DefaultTemplates()
	if err != nil {
		store.Close()
		return nil, eris.Wrap(err, "app: load default templates")
	}

	var alerts ports.AlertNotifier
	if cfg.Slack.Enabled() {
		client := resilience.NewClient("slack", resilience.FromConfig(cfg.Resilience))
		alerts = notifier.NewSlackNotifier(cfg.Slack, client)
		zap.L().Info("slack notifier enabled", zap.String("channel", cfg.Slack.Channel))
	} else {
		zap.L().Warn("slack notifier disabled (slack.bot_token or slack.channel not set)")
	}

	window := time.Duration(cfg.Market.WindowDays) * 24 * time.Hour

	risk := services.NewRiskService(store, alerts, minAlert, nil)
	svc := handler.Services{
		Risk:       risk,
		Templates:  services.NewTemplateService(store, cfg.Ranking.TopN, nil),
		Market:     services.NewMarketService(store, window, nil),
		Workspaces: services.NewWorkspaceService(store, store, defaults, nil),
		Funds:      services.NewFundService(risk),
	}

	zap.L().Info("application initialised",
		zap.String("store", cfg.Store.Driver),
		zap.String("min_alert_level", string(minAlert)),
		zap.Int("default_templates", len(defaults)),
	)
	return &App{Config: cfg, Store: store, Services: svc}, nil
}

// Ingester builds a market ingester over the configured feeds. Each feed gets
// its own circuit breaker.
func (a *App) Ingester() (*ingest.Ingester, error) {
	providers := make([]ports.MarketDataProvider, 0, len(a.Config.Ingest.Feeds))
	for _, feed := range a.Config.Ingest.Feeds {
		client := resilience.NewClient("feed:"+feed.Name, resilience.FromConfig(a.Config.Resilience))
		p, err := provider.NewFeedProvider(feed, client)
		if err != nil {
			return nil, eris.Wrapf(err, "app: build feed %s", feed.Name)
		}
		providers = append(providers, p)
	}
	return ingest.New(providers, a.Services.Market, ingest.FromConfig(a.Config.Ingest)), nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hive-corporation/vantage/internal/app"
	"github.com/hive-corporation/vantage/internal/config"
	"github.com/hive-corporation/vantage/internal/metrics"
)

func main() {
	once := flag.Bool("once", false, "run a single ingestion pass and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer zap.L().Sync() //nolint:errcheck

	if err := cfg.Validate("ingest"); err != nil {
		zap.L().Fatal("invalid configuration", zap.Error(err))
	}
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		zap.L().Fatal("failed to initialise application", zap.Error(err))
	}
	defer application.Close()

	ing, err := application.Ingester()
	if err != nil {
		zap.L().Fatal("failed to build ingester", zap.Error(err))
	}

	if *once {
		passCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		res, err := ing.RunOnce(passCtx)
		if err != nil {
			zap.L().Error("market ingestion failed", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Info("market ingestion complete", zap.Int("saved", res.Saved), zap.Int("failed_feeds", res.FailedFeeds))
		return
	}

	interval := time.Duration(cfg.Ingest.PollIntervalMins) * time.Minute
	zap.L().Info("market ingester started", zap.Int("feeds", len(cfg.Ingest.Feeds)), zap.Duration("interval", interval))
	if err := ing.Run(ctx, interval); err != nil {
		zap.L().Error("market ingester stopped", zap.Error(err))
	}
	zap.L().Info("market ingester stopped")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hive-corporation/vantage/internal/adapter/handler"
	"github.com/hive-corporation/vantage/internal/app"
	"github.com/hive-corporation/vantage/internal/config"
	"github.com/hive-corporation/vantage/internal/metrics"
)

func main() {
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

	if err := cfg.Validate("api"); err != nil {
		zap.L().Fatal("invalid configuration", zap.Error(err))
	}

	metrics.Init()
	zap.L().Info("prometheus metrics initialized")

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		zap.L().Fatal("failed to initialise application", zap.Error(err))
	}
	defer application.Close()

	restHandler := handler.NewRestHandler(application.Services, cfg.Server.RequestTimeout())
	router := handler.NewRouter(restHandler, cfg.Server)

	// HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		zap.L().Info("vantage REST API listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("server forced to shutdown", zap.Error(err))
		return
	}
	zap.L().Info("server stopped gracefully")
}

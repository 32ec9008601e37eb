package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

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

	if err := cfg.Validate("grpc"); err != nil {
		zap.L().Fatal("invalid configuration", zap.Error(err))
	}
	metrics.Init()

	application, err := app.New(context.Background(), cfg)
	if err != nil {
		zap.L().Fatal("failed to initialise application", zap.Error(err))
	}
	defer application.Close()

	// Defaults to localhost; binding elsewhere must be configured explicitly.
	listenAddr := cfg.Server.GRPCListenAddr
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		zap.L().Fatal("failed to listen", zap.String("addr", listenAddr), zap.Error(err))
	}

	s := handler.NewRiskGRPCServer(application.Services, cfg.Server.AuthToken)

	go func() {
		zap.L().Info("vantage gRPC API listening", zap.String("addr", listenAddr))
		if err := s.Serve(lis); err != nil {
			zap.L().Fatal("failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.L().Info("shutting down gRPC server")
	s.GracefulStop()
}

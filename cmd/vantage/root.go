package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gopkg.in/yaml.v3"

	"github.com/hive-corporation/vantage/internal/adapter/handler"
	"github.com/hive-corporation/vantage/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "vantage",
	Short: "Portfolio risk scoring and deal template recommendations",
	Long: `Client for the Vantage risk engine.

Assessments and recommendations run against the gRPC API; grading and
template validation run locally.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("server", "", "gRPC address of the Vantage API (default server.grpc_listen_addr)")
	pf.String("token", "", "bearer token (default server.auth_token)")
	pf.Duration("timeout", 10*time.Second, "request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// dial connects to the API and returns a client plus a closer.
func dial(cmd *cobra.Command) (*handler.RiskServiceClient, func(), error) {
	addr, _ := cmd.Flags().GetString("server")
	if addr == "" {
		addr = cfg.Server.GRPCListenAddr
	}
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = cfg.Server.AuthToken
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, eris.Wrapf(err, "cli: connect to %s", addr)
	}
	return handler.NewRiskServiceClient(conn, token), func() { conn.Close() }, nil
}

// readInput reads path, or the command's stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cli: read %s", path)
	}
	return data, nil
}

// readYAML decodes a YAML (or JSON) input into v.
func readYAML(cmd *cobra.Command, path string, v interface{}) error {
	data, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "cli: parse %s", path)
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/strata/internal/cmd/client"
	serverrun "github.com/rzbill/strata/internal/cmd/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "strata",
		Short: "strata runtime CLI",
		Long:  "strata is a single-binary stream store with lazily created streams and an overload breaker on creation.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start strata server (gRPC and HTTP)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := serverOptions(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, opts); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	addServerFlags(serverStartCmd)
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// config show
	configCmd := &cobra.Command{Use: "config", Short: "Configuration commands"}
	configShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := serverOptions(cmd)
			if err != nil {
				return err
			}
			cfg, err := serverrun.Resolve(opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
	addServerFlags(configShowCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.AddCommand(clientcmd.NewStreamCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewControllerCommand(apiURL))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", os.Getenv("STRATA_CONFIG"), "Config file (yaml or json)")
	cmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	cmd.Flags().String("grpc", "", "gRPC listen address (default :7070)")
	cmd.Flags().String("http", "", "HTTP listen address (default :7080)")
	cmd.Flags().String("fsync", "", "Fsync mode: always|interval|never")
	cmd.Flags().Int("fsync-interval-ms", 0, "When --fsync=interval, group-commit window in ms")
	cmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	cmd.Flags().String("log-format", "", "Log format: text|json")
}

func serverOptions(cmd *cobra.Command) (serverrun.Options, error) {
	configPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	grpcAddr, _ := cmd.Flags().GetString("grpc")
	httpAddr, _ := cmd.Flags().GetString("http")
	fsyncMode, _ := cmd.Flags().GetString("fsync")
	fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logFormat, _ := cmd.Flags().GetString("log-format")

	switch fsyncMode {
	case "", "always", "interval", "never":
	default:
		return serverrun.Options{}, fmt.Errorf("invalid --fsync; use always|interval|never")
	}
	return serverrun.Options{
		ConfigPath:    configPath,
		DataDir:       dataDir,
		GRPCAddr:      grpcAddr,
		HTTPAddr:      httpAddr,
		Fsync:         fsyncMode,
		FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
		LogLevel:      logLevel,
		LogFormat:     logFormat,
	}, nil
}

func apiURL() string {
	if v := os.Getenv("STRATA_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:7080"
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/angeloszaimis/mcp-gateway/config"
	"github.com/angeloszaimis/mcp-gateway/internal/gateway"
	"github.com/angeloszaimis/mcp-gateway/internal/handler"
	"github.com/angeloszaimis/mcp-gateway/internal/httpserver"
	"github.com/angeloszaimis/mcp-gateway/pkg/logger"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-gateway",
		Short: "mcp-gateway fronts many MCP servers behind a single JSON-RPC endpoint.",
		Long: `mcp-gateway aggregates the tools, resources and prompts of registered
MCP backends under namespaced names and routes calls to the owning backend
with retries, circuit breaking and health checks.

Configuration is read from the file given with --config, or from
config.yaml in ./config or the working directory. Any key can be
overridden with an MCP_GATEWAY_ prefixed environment variable.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCmd(), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", gateway.ServerName, version)
			return err
		},
	}
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return serve(ctx, cfg, logger.New(cfg.Logging.Level, true, cfg.Server.Environment))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	gw, err := gateway.New(cfg, version, log)
	if err != nil {
		log.Error("failed to build gateway", slog.Any("err", err))
		return err
	}

	srv, err := httpserver.New(cfg.Server.Address, handler.New(gw, log).Routes(), httpserver.Options{
		CORSOrigins:  cfg.Server.CORSOrigins,
		WriteTimeout: cfg.HTTPWriteTimeout(),
	})
	if err != nil {
		log.Error("failed to create server", slog.Any("err", err))
		return err
	}

	gw.Start(ctx)

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("gateway listening",
		slog.String("address", cfg.Server.Address),
		slog.Int("backends", gw.Registry.Len()),
		slog.String("version", version))

	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("error during shutdown", slog.Any("err", err))
			return err
		}
		return nil
	case err := <-srvErrCh:
		if err != nil {
			log.Error("server stopped", slog.Any("err", err))
		}
		return err
	}
}

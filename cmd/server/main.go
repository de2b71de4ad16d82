package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wrongjunior/updaterelay/internal/config"
	"github.com/wrongjunior/updaterelay/internal/logging"
	"github.com/wrongjunior/updaterelay/internal/metrics"
	"github.com/wrongjunior/updaterelay/internal/server"
	"github.com/wrongjunior/updaterelay/internal/service"
	transportServer "github.com/wrongjunior/updaterelay/internal/transport/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		port       int
		production bool
	)
	cmd := &cobra.Command{
		Use:          "relay-server",
		Short:        "Real-time update relay: HTTP API plus WebSocket broadcast",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("production") {
				cfg.Production = production
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (JSON or YAML)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides PORT)")
	cmd.Flags().BoolVar(&production, "production", false, "Serve the built client from static_dir")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer closer.Close()

	// Инициализация бизнес-логики сервера.
	m := metrics.New()
	updateService := service.NewUpdateService(service.Options{
		Capacity: cfg.HistoryCapacity,
		Buffer:   cfg.SubscriberBuffer,
		Metrics:  m,
	}, logger)

	router := transportServer.SetupRouter(transportServer.NewHandler(updateService, m, logger), transportServer.RouterOptions{
		WSPath:     cfg.WSPath,
		Production: cfg.Production,
		StaticDir:  cfg.StaticDir,
	})

	ln, err := server.Listen(cfg.Host, cfg.Port, cfg.PortAttempts, logger)
	if err != nil {
		return err
	}
	srv := server.New(ln, router, logger)
	srv.OnShutdown(updateService.Shutdown)
	logger.Info("WebSocket endpoint available", "path", cfg.WSPath, "addr", srv.Addr().String())

	// Обработка graceful shutdown.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

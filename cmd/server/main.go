package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/garyjia/invoice-memory/internal/config"
	"github.com/garyjia/invoice-memory/internal/container"
	httpapi "github.com/garyjia/invoice-memory/internal/interfaces/http"
	"github.com/garyjia/invoice-memory/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting invoice memory service",
		zap.String("driver", cfg.Database.Driver),
		zap.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}
	if err := app.Start(ctx, true); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Container shutdown failed", zap.Error(err))
		}
	}()

	serverConfig := httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	if cfg.Metrics.Enabled {
		serverConfig.MetricsPath = cfg.Metrics.Path
	}

	services := app.Services()
	server := httpapi.NewServer(serverConfig, httpapi.Services{
		Invoices: services.Invoices,
		Exporter: services.Exporter,
		Health: func(ctx context.Context) (bool, interface{}) {
			status := app.Health(ctx)
			return status.Overall, status.Components
		},
	}, utils.NewZapAdapter(logger))

	// Blocks until SIGINT/SIGTERM
	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server failed", zap.Error(err))
		return
	}

	logger.Info("Server exited successfully")
}

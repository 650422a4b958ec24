// Package main implements memctl, the operator CLI for the invoice memory store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-memory/internal/config"
	"github.com/garyjia/invoice-memory/internal/container"
	"github.com/garyjia/invoice-memory/pkg/utils"
)

var (
	// configPath is the YAML configuration shared with the server
	configPath string
	// driverOverride replaces database.driver when set
	driverOverride string
	// verbose enables debug logging to stderr
	verbose bool

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "memctl",
	Short: "Operate the invoice memory store",
	Long: `memctl inspects and maintains the learned invoice memory.

It reads the same configuration as the server, so it operates on the
same store unless --driver overrides it.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&driverOverride, "driver", "", "storage driver override (sqlite3, pgx or memory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// openContainer loads configuration and starts the container without background workers
func openContainer(ctx context.Context) (*container.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err := utils.NewLogger(utils.LoggerConfig{Level: level, OutputPath: "stderr", Format: "console"})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return nil, err
	}
	if err := app.Start(ctx, false); err != nil {
		return nil, err
	}

	logger.Debug("Container ready", zap.String("driver", cfg.Database.Driver))
	return app, nil
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = ""
	}

	if driverOverride != "" {
		if err := os.Setenv(config.EnvPrefix+"_DATABASE_DRIVER", driverOverride); err != nil {
			return nil, fmt.Errorf("failed to apply driver override: %w", err)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// withContainer runs fn against a started container and closes it afterwards
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, app *container.Container) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := openContainer(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}

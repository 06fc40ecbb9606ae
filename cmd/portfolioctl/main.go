// Package main provides portfolioctl, the operator CLI for migrations,
// journal replay checks and reports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hexastock/internal/app"
	"github.com/hexastock/internal/config"
	"github.com/hexastock/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "portfolioctl",
		Short:         "Operate the portfolio engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newMigrateCommand(), newReplayCommand(), newReportCommand())
	return root
}

// loadConfig loads and validates configuration and initializes logging
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	return cfg, nil
}

// withEngine builds the engine for the duration of fn
func withEngine(ctx context.Context, fn func(engine *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	return fn(engine)
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/iesdispatch/app"
	"github.com/kilianp07/iesdispatch/config"
	"github.com/kilianp07/iesdispatch/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "iesdispatch",
	Short:         "Integrated energy system dispatch optimizer",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// withService loads the configuration, applies mutate and runs fn with a
// service bound to an interruptible context.
func withService(mutate func(*config.Config) error, fn func(ctx context.Context, cfg *config.Config, svc *app.Service) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if mutate != nil {
		if err := mutate(cfg); err != nil {
			return err
		}
	}
	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return fn(ctx, cfg, svc)
}

// Package cmd implements the bmsctl command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bmsctl/app"
	"github.com/kilianp07/bmsctl/config"
	"github.com/kilianp07/bmsctl/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "bmsctl",
	Short:         "Predictive battery thermal and current controller",
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          run,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control loop until the source ends or a signal arrives",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.AddCommand(runCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}

// loadOrDefault reads the config file when it exists and falls back to the
// built-in defaults otherwise. Commands that work offline use it.
func loadOrDefault() (*config.Config, error) {
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.Load(cfgPath)
}

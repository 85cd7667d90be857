// Command digimartctl is the operator console: it manages the catalog and
// repairs purchases directly against the store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iurnickita/digimart/internal/config"
	"github.com/iurnickita/digimart/internal/logger"
	"github.com/iurnickita/digimart/internal/store"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "digimartctl",
		Short:         "Digimart operator console",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("env-file", "", "load variables from this file before the environment")

	rootCmd.AddCommand(listingCmd())
	rootCmd.AddCommand(confirmCmd())
	rootCmd.AddCommand(refundCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(recountCmd())
	rootCmd.AddCommand(tokenCmd())
	return rootCmd
}

// app holds what every subcommand needs.
type app struct {
	cfg    config.Config
	zaplog *zap.Logger
	store  store.Store
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		return config.GetConfig(envFile)
	}
	return config.GetConfig()
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return nil, err
	}
	store, err := store.NewStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, zaplog: zaplog, store: store}, nil
}

func (a *app) Close() {
	a.store.Close()
	a.zaplog.Sync()
}

func withApp(run func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd.Context(), cmd, a, args)
	}
}

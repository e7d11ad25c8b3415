package cli

import (
	"context"
	"fmt"
	"os"

	"CardSignals/internal/di"
	"CardSignals/pkg/config"
	"CardSignals/pkg/server"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *server.App
	cleanup   func()
)

var rootCmd = &cobra.Command{
	Use:           "cardsignals",
	Short:         "Trading card comp features, fair value and deal signals",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}
		cfg, err := config.LoadWithEnv(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		app, done, err := di.InitializeApp(cfg)
		if err != nil {
			return fmt.Errorf("app initialization failed: %w", err)
		}
		appHandle, cleanup = app, done
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cleanup != nil {
			cleanup()
		}
	},
}

// Execute runs the root command under ctx.
func Execute(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && cleanup != nil {
		cleanup()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(featurizeCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(migrateCmd)
}

func getApp() *server.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}

package main

import (
	"context"
	"fmt"
	"os"

	"ctxnav/internal/config"
	"ctxnav/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose    bool
	configPath string
	envFile    string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ctxnav",
	Short: "ctxnav - incremental context navigation for archival finding aids",
	Long: `ctxnav renders a bounded context window into a large collection hierarchy
around the node being viewed. It resolves every context navigation mount
point of a page by querying only the siblings and ancestors it needs, and
recursively discloses the ancestor chain down to the viewed node.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && envFile != ".env" {
			return fmt.Errorf("failed to load env file: %w", err)
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger, err = logging.Initialize(logging.Options{
			Level:    cfg.Logging.Level,
			Format:   cfg.Logging.Format,
			File:     cfg.Logging.File,
			Disabled: cfg.Logging.DisabledCategories,
		})
		if err != nil {
			return err
		}
		logging.Get(logging.CategoryBoot).Debug("Configuration loaded",
			zap.String("config", configPath),
			zap.String("base_url", cfg.Fetch.BaseURL),
			zap.Int("max_in_flight", cfg.Engine.MaxInFlight))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "ctxnav.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Env file with CTXNAV_* overrides")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(fixturesCmd)
	rootCmd.AddCommand(configCmd)
}

// commandContext falls back to Background for commands run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

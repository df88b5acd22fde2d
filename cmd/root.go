// Package cmd holds the settleflow command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"settleflow/config"
	"settleflow/logger"
)

var (
	configPath string
	envFiles   []string
	logLevel   string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "settleflow",
	Short: "Build the daily futures settlement report",
	Long: `settleflow fetches futures settlements from CME Group for every configured
market, fills the report and summary workbooks from their templates and
rewrites the templates for the next run.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to configuration file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "Environment files loaded before the configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment files and the configuration and applies
// the logging section to the global logger.
func loadConfig() (*config.Config, error) {
	log := logger.GetLogger()

	if err := config.LoadDotEnv(envFiles...); err != nil {
		log.WithError(err).Warn("Error loading .env file")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := log.Configure(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	}); err != nil {
		return nil, fmt.Errorf("failed to configure logger: %w", err)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Settleflow.Name,
		"version":     cfg.Settleflow.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting settleflow")
	return cfg, nil
}

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/govgrant/internal/config"
	"github.com/dukerupert/govgrant/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "govgrant",
	Short: "Household grant eligibility service",
	Long: `govgrant tracks households and their family members and finds the
households that qualify for a grant by income, age, marital and housing
criteria.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("GOVGRANT_CONFIG"), "path to YAML config file")
	rootCmd.AddCommand(serveCmd, seedCmd, filterCmd)
}

// setup loads the config and installs the default logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.Setup(cfg.LogLevel, cfg.LogFormat), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

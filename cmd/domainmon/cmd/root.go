// cmd/domainmon/cmd/root.go

// Package cmd contains the domainmon CLI commands.
package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/config"
	"github.com/MORADOK/VaccineHomeBot-sub001/internal/database"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "domainmon",
	Short: "Domain health monitor",
	Long: `domainmon periodically probes configured domains over HTTPS, tracks
certificate expiry and raises deduplicated alerts.

Examples:
  # Run the monitor and HTTP API
  domainmon serve --config config.yaml

  # Probe one domain now
  domainmon check example.com

  # Show open alerts
  domainmon alerts list --domain example.com`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "configuration file")
}

// loadConfig reads the configuration and applies its logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.Logging)
	return cfg, nil
}

func openStore(cfg *config.Config) (database.Store, error) {
	store, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open %s database at %s: %w", cfg.Database.Type, cfg.Database.Path, err)
	}
	return store, nil
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}

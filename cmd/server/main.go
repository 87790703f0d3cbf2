package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gianglt2198/webrtc-detect/internal/config"
	"github.com/gianglt2198/webrtc-detect/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:          "detect-server",
	Short:        "Signaling and detection relay server",
	SilenceUsage: true,
	Long: `detect-server stores the offer and answer of each session so two peers can
rendezvous over plain HTTP polling, relays detection results to viewers over
websockets, and keeps the final benchmark summary.`,
}

var (
	configPath string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text, json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// loadConfig resolves the configuration for cmd and configures the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}
	level := logger.ParseLevel(cfg.LogLevel)
	if verbose {
		level = logger.ParseLevel("debug")
	}
	logger.Configure(cfg.LogFormat, level, nil)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

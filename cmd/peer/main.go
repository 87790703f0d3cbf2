package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gianglt2198/webrtc-detect/internal/config"
	"github.com/gianglt2198/webrtc-detect/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:          "detect-peer",
	Short:        "Offering and answering peer for the detection pipeline",
	SilenceUsage: true,
	Long: `detect-peer runs either side of a detection session.

The offering side publishes an offer, waits for the answer, then captures
frames, runs inference locally or against a remote service, streams the
results to the answering side and records a benchmark summary. The answering
side joins a session by id and receives the results.`,
}

var (
	configPath string
	verbose    bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("log-format", "", "Log format (text, json)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.String("signaling-url", config.DefaultSignalingURL, "Base URL of the signaling server")
	pf.StringSlice("ice-servers", []string{config.DefaultSTUNServer}, "STUN/TURN server urls")
	pf.Duration("poll-interval", config.DefaultPollInterval, "Answer polling interval")
	pf.Duration("rendezvous-timeout", config.DefaultRendezvousTimeout, "Give up waiting for an answer after this long")
	pf.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090 (default: disabled)")
}

// addPipelineFlags declares the capture and inference flags shared by offer and bench.
func addPipelineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("mode", string(config.DefaultMode), "Inference mode (local, remote)")
	f.String("inference-url", config.DefaultInferenceURL, "Remote inference endpoint")
	f.Duration("inference-timeout", config.DefaultInferenceTimeout, "Remote inference request timeout")
	f.Int("width", config.DefaultWidth, "Frame width")
	f.Int("height", config.DefaultHeight, "Frame height")
	f.Float64("fps", config.DefaultFPS, "Target frame rate")
	f.Bool("drop-on-busy", true, "Skip frames while an inference is outstanding")
	f.Duration("benchmark", config.DefaultBenchmark, "Benchmark window")
	f.Int("jpeg-quality", config.DefaultJPEGQuality, "JPEG quality of submitted frames")
	f.String("frames", "", "Directory of jpg/png frames to cycle through (default: synthetic pattern)")
	f.Bool("marker", false, "Use the built-in red marker detector for local mode")
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

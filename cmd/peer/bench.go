package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gianglt2198/webrtc-detect/internal/benchmark"
	"github.com/gianglt2198/webrtc-detect/internal/pipeline"
	"github.com/gianglt2198/webrtc-detect/internal/signaling"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the frame pipeline for one benchmark window without a peer",
	Long: `Captures frames and runs inference exactly like an offering session but
without a peer link, then writes the summary to --summary-path. Useful to
measure a detector or a remote inference service in isolation.

Examples:
  detect-peer bench --benchmark 10s
  detect-peer bench --mode remote --upload`,
	RunE: runBench,
}

func init() {
	addPipelineFlags(benchCmd)
	benchCmd.Flags().String("summary-path", "", "Write the summary here (default: <data-dir>/metrics.json)")
	benchCmd.Flags().String("data-dir", "", "Data directory")
	benchCmd.Flags().Bool("upload", false, "Also upload the summary to the signaling server")
	benchCmd.Flags().String("relay-id", "", "Forward results to the relay room of this session id")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	stopMetrics, err := startMetrics(cmd)
	if err != nil {
		return err
	}
	defer stopMetrics()
	source, err := newSource(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks []pipeline.Sink
	if relayID, _ := cmd.Flags().GetString("relay-id"); relayID != "" {
		if err := signaling.ValidateID(relayID); err != nil {
			return err
		}
		relay := newRelaySink(cfg.SignalingURL, "producer")
		relay.Dial(ctx, relayID)
		defer relay.Close()
		sinks = append(sinks, relay)
	}

	strategy := newStrategy(cmd, cfg)
	agg := benchmark.NewAggregator(string(strategy.Mode()), cfg.Resolution())
	sched := pipeline.NewScheduler(source, strategy, agg, pipeline.Options{
		TargetInterval: cfg.TargetInterval(),
		DropOnBusy:     cfg.DropOnBusy,
	}, sinks...)

	summary, err := benchmark.Run(ctx, sched, agg, cfg.Benchmark)
	if err != nil {
		return err
	}

	publishers := []benchmark.Publisher{benchmark.FilePublisher{Store: signaling.NewSummaryStore(cfg.SummaryPath)}}
	if upload, _ := cmd.Flags().GetBool("upload"); upload {
		publishers = append(publishers, signaling.NewClient(cfg.SignalingURL))
	}
	if err := benchmark.Publish(cmd.Context(), summary, publishers...); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), benchmark.String(summary))
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gianglt2198/webrtc-detect/internal/benchmark"
	"github.com/gianglt2198/webrtc-detect/internal/config"
	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/peer"
	"github.com/gianglt2198/webrtc-detect/internal/pipeline"
	"github.com/gianglt2198/webrtc-detect/internal/session"
	"github.com/gianglt2198/webrtc-detect/internal/signaling"
)

var offerCmd = &cobra.Command{
	Use:   "offer",
	Short: "Publish an offer, wait for a viewer and run the benchmark",
	Long: `Publishes an offer under a fresh session id and prints the id. Once a
viewer answers with "detect-peer answer --id <id>", frames are captured,
inferred and streamed to the viewer for the benchmark window. The summary is
uploaded to the signaling server.

Examples:
  detect-peer offer
  detect-peer offer --mode remote --inference-url http://gpu:8000/infer
  detect-peer offer --frames ./samples --fps 15 --benchmark 1m`,
	RunE: runOffer,
}

func init() {
	addPipelineFlags(offerCmd)
	offerCmd.Flags().Bool("mode-from-server", false, "Use the mode advertised by the signaling server")
	rootCmd.AddCommand(offerCmd)
}

func runOffer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	stopMetrics, err := startMetrics(cmd)
	if err != nil {
		return err
	}
	defer stopMetrics()
	client := signaling.NewClient(cfg.SignalingURL)

	if fromServer, _ := cmd.Flags().GetBool("mode-from-server"); fromServer {
		name, err := client.Mode(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read mode from server: %w", err)
		}
		if cfg.Mode, err = config.ParseMode(name); err != nil {
			return err
		}
	}

	source, err := newSource(cmd, cfg)
	if err != nil {
		return err
	}

	link, err := peer.NewTransport(cfg.ICEServers)
	if err != nil {
		return err
	}
	defer link.Close()

	relay := newRelaySink(cfg.SignalingURL, "producer")
	defer relay.Close()

	out := cmd.OutOrStdout()
	s := session.New(cfg, session.Deps{
		Store:      client,
		Link:       link,
		Source:     source,
		Strategy:   newStrategy(cmd, cfg),
		Sinks:      []pipeline.Sink{relay},
		Publishers: []benchmark.Publisher{client},
		OnPublished: func(id string) {
			fmt.Fprintf(out, "Session id: %s\nOn the viewer run: detect-peer answer --id %s\n", id, id)
			relay.Dial(cmd.Context(), id)
		},
	})

	sessions := session.NewManager()
	defer sessions.Track(s)()

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		sessions.StopAll()
	}()

	summary, err := s.Run(context.WithoutCancel(cmd.Context()))
	if err != nil {
		logger.Error("Session failed", "session_id", s.ID(), "error", err)
		return err
	}

	stats := s.Stats()
	logger.Info("Pipeline stats",
		"submitted", stats.Submitted, "completed", stats.Completed,
		"dropped_busy", stats.DroppedBusy, "no_input", stats.NoInput)
	fmt.Fprintln(out, benchmark.String(summary))
	return nil
}

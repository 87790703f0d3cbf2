package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/peer"
	"github.com/gianglt2198/webrtc-detect/internal/pipeline"
	"github.com/gianglt2198/webrtc-detect/internal/session"
	"github.com/gianglt2198/webrtc-detect/internal/signaling"
)

var answerCmd = &cobra.Command{
	Use:   "answer",
	Short: "Join a session by id and receive its detections",
	Long: `Fetches the offer of the given session, publishes an answer and logs every
detection result received over the peer link until interrupted.

Examples:
  detect-peer answer --id k3x9qa
  detect-peer answer --id k3x9qa --relay`,
	RunE: runAnswer,
}

func init() {
	answerCmd.Flags().String("id", "", "Session id printed by the offering side")
	answerCmd.Flags().Bool("relay", false, "Also forward received results to the detection relay")
	_ = answerCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(answerCmd)
}

func runAnswer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	stopMetrics, err := startMetrics(cmd)
	if err != nil {
		return err
	}
	defer stopMetrics()
	id, _ := cmd.Flags().GetString("id")
	if err := signaling.ValidateID(id); err != nil {
		return err
	}

	link, err := peer.NewTransport(cfg.ICEServers)
	if err != nil {
		return err
	}
	defer link.Close()

	sinks := []pipeline.Sink{pipeline.SinkFunc(logSink)}
	if useRelay, _ := cmd.Flags().GetBool("relay"); useRelay {
		relay := newRelaySink(cfg.SignalingURL, "viewer")
		relay.Dial(cmd.Context(), id)
		defer relay.Close()
		sinks = append(sinks, relay)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	viewer := session.NewViewer(id, signaling.NewClient(cfg.SignalingURL), link, sinks...)
	if err := viewer.Run(ctx); err != nil {
		logger.Error("Failed to join session", "session_id", id, "error", err)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Received %d results\n", viewer.Received())
	return nil
}

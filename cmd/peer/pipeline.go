package main

import (
	"context"
	"errors"
	"sync"

	"github.com/spf13/cobra"

	"github.com/gianglt2198/webrtc-detect/internal/config"
	"github.com/gianglt2198/webrtc-detect/internal/inference"
	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/models"
	"github.com/gianglt2198/webrtc-detect/internal/pipeline"
)

var errRelayNotDialed = errors.New("relay not connected")

// newSource returns the frame source named by --frames, or the synthetic
// pattern when none is given.
func newSource(cmd *cobra.Command, cfg *config.Config) (pipeline.Source, error) {
	enc := pipeline.Encoder{Width: cfg.Width, Height: cfg.Height, Quality: cfg.JPEGQuality}
	dir, _ := cmd.Flags().GetString("frames")
	if dir == "" {
		return pipeline.NewPatternSource(enc), nil
	}
	src, err := pipeline.NewDirSource(dir, enc)
	if err != nil {
		return nil, err
	}
	logger.Info("Cycling frames from directory", "dir", dir, "frames", src.Len())
	return src, nil
}

// newStrategy selects the inference variant once for the whole run.
func newStrategy(cmd *cobra.Command, cfg *config.Config) inference.Strategy {
	var detector inference.Detector
	if marker, _ := cmd.Flags().GetBool("marker"); marker {
		detector = inference.MarkerDetector{}
	}
	return inference.New(cfg, detector)
}

// relaySink forwards results to the detection relay once a session id is
// known. Results before Dial are dropped.
type relaySink struct {
	baseURL string
	member  string

	mu   sync.Mutex
	sink *pipeline.WebSocketSink
}

func newRelaySink(baseURL, member string) *relaySink {
	return &relaySink{baseURL: baseURL, member: member}
}

// Dial connects to the relay room of session id. Failure is logged only;
// the relay is optional.
func (r *relaySink) Dial(ctx context.Context, id string) {
	sink, err := pipeline.DialRelay(ctx, r.baseURL, id, r.member)
	if err != nil {
		logger.WarnContext(ctx, "Detection relay unavailable", "error", err)
		return
	}
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
}

func (r *relaySink) Deliver(ctx context.Context, result models.DetectionResult) error {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	if sink == nil {
		return errRelayNotDialed
	}
	return sink.Deliver(ctx, result)
}

func (r *relaySink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sink == nil {
		return nil
	}
	err := r.sink.Close()
	r.sink = nil
	return err
}

// logSink logs one line per received result.
func logSink(ctx context.Context, result models.DetectionResult) error {
	logger.InfoContext(ctx, "Detections",
		"frame_id", result.FrameID,
		"count", len(result.Detections),
		"latency_ms", result.LatencyMs())
	return nil
}

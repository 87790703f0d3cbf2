// Package inference provides the local and remote detection strategies.
package inference

import (
	"context"

	"github.com/gianglt2198/webrtc-detect/internal/config"
	"github.com/gianglt2198/webrtc-detect/internal/models"
)

// Strategy detects objects in one frame. Detect never fails: any error
// degrades to an empty, non-nil list. Coordinates are normalized to [0,1].
type Strategy interface {
	Mode() config.Mode
	Detect(ctx context.Context, frame models.Frame) []models.Detection
}

// New selects the strategy for cfg.Mode. detector backs the local strategy;
// nil means no model is loaded.
func New(cfg *config.Config, detector Detector) Strategy {
	if cfg.Mode == config.ModeRemote {
		return NewRemote(cfg.InferenceURL, cfg.InferenceTimeout)
	}
	return NewLocal(detector)
}

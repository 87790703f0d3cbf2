package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/gianglt2198/webrtc-detect/internal/config"
	apperrors "github.com/gianglt2198/webrtc-detect/internal/errors"
	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/metrics"
	"github.com/gianglt2198/webrtc-detect/internal/models"
)

// ErrNoModel is returned by detectors with nothing loaded.
var ErrNoModel = errors.New("no local model available")

// Detector runs a model in-process. Boxes may be in pixels or normalized.
type Detector interface {
	Detect(ctx context.Context, frame models.Frame) ([]models.Detection, error)
}

// NopDetector has no model and always returns ErrNoModel.
type NopDetector struct{}

func (NopDetector) Detect(context.Context, models.Frame) ([]models.Detection, error) {
	return nil, ErrNoModel
}

// Local runs detection in-process.
type Local struct {
	detector Detector
	warnOnce sync.Once
}

func NewLocal(detector Detector) *Local {
	if detector == nil {
		detector = NopDetector{}
	}
	return &Local{detector: detector}
}

func (l *Local) Mode() config.Mode { return config.ModeLocal }

func (l *Local) Detect(ctx context.Context, frame models.Frame) []models.Detection {
	raw, err := l.detector.Detect(ctx, frame)
	if err != nil {
		if errors.Is(err, ErrNoModel) {
			l.warnOnce.Do(func() {
				logger.WarnContext(ctx, "No local model available, skipping detection")
			})
			return []models.Detection{}
		}
		metrics.RecordInferenceFailure(string(config.ModeLocal))
		logger.WarnContext(ctx, "Local inference failed", "frame_id", frame.ID,
			"error", fmt.Errorf("%w: %w", apperrors.ErrInferenceFailure, err))
		return []models.Detection{}
	}
	return NormalizeAll(raw, frame.Width, frame.Height)
}

// MarkerDetector finds the bounding box of strongly red pixels and reports it
// in normalized coordinates. It needs no model file.
type MarkerDetector struct {
	Label string
}

func (m MarkerDetector) Detect(_ context.Context, frame models.Frame) ([]models.Detection, error) {
	img, err := jpeg.Decode(bytes.NewReader(frame.Payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	b := img.Bounds()
	box := image.Rectangle{}
	hits := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r>>8 > 180 && g>>8 < 140 && bl>>8 < 120 {
				box = box.Union(image.Rect(x, y, x+1, y+1))
				hits++
			}
		}
	}
	if hits == 0 {
		return []models.Detection{}, nil
	}

	label := m.Label
	if label == "" {
		label = "marker"
	}
	area := float64(box.Dx() * box.Dy())
	w, h := float64(b.Dx()), float64(b.Dy())
	return []models.Detection{{
		Label: label,
		Score: float64(hits) / area,
		XMin:  float64(box.Min.X-b.Min.X) / w,
		YMin:  float64(box.Min.Y-b.Min.Y) / h,
		XMax:  float64(box.Max.X-b.Min.X) / w,
		YMax:  float64(box.Max.Y-b.Min.Y) / h,
	}}, nil
}

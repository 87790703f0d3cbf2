package inference

import (
	"math"

	"github.com/gianglt2198/webrtc-detect/internal/models"
)

// pixelTolerance absorbs float noise from detectors that emit normalized
// coordinates slightly above 1.
const pixelTolerance = 1e-6

// Normalize maps a raw box into [0,1] frame coordinates with min <= max.
//
// A box with any coordinate above 1+pixelTolerance is taken to be in pixels
// and divided by the frame size. NaN becomes 0, values outside [0,1] are clamped, and
// swapped corners are reordered. Scores are clamped to [0,1].
func Normalize(d models.Detection, width, height int) models.Detection {
	xmin, ymin, xmax, ymax := finite(d.XMin), finite(d.YMin), finite(d.XMax), finite(d.YMax)

	const limit = 1 + pixelTolerance
	if xmin > limit || ymin > limit || xmax > limit || ymax > limit {
		if width > 0 {
			xmin /= float64(width)
			xmax /= float64(width)
		}
		if height > 0 {
			ymin /= float64(height)
			ymax /= float64(height)
		}
	}

	xmin, xmax = clamp01(xmin), clamp01(xmax)
	ymin, ymax = clamp01(ymin), clamp01(ymax)
	if xmin > xmax {
		xmin, xmax = xmax, xmin
	}
	if ymin > ymax {
		ymin, ymax = ymax, ymin
	}

	return models.Detection{
		Label: d.Label,
		Score: clamp01(finite(d.Score)),
		XMin:  xmin,
		YMin:  ymin,
		XMax:  xmax,
		YMax:  ymax,
	}
}

// NormalizeAll normalizes every box of a frame. The result is never nil.
func NormalizeAll(raw []models.Detection, width, height int) []models.Detection {
	out := make([]models.Detection, 0, len(raw))
	for _, d := range raw {
		out = append(out, Normalize(d, width, height))
	}
	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

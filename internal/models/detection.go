package models

import "time"

// Frame is one captured image handed to an inference strategy.
// Payload is JPEG encoded and must not be modified after submission.
type Frame struct {
	ID         uint64
	CapturedAt time.Time
	Payload    []byte
	Width      int
	Height     int
}

// CaptureTS is the capture wall-clock time in unix milliseconds.
func (f *Frame) CaptureTS() int64 {
	return f.CapturedAt.UnixMilli()
}

// Detection is a labeled box with coordinates normalized to [0,1].
type Detection struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	XMin  float64 `json:"xmin"`
	YMin  float64 `json:"ymin"`
	XMax  float64 `json:"xmax"`
	YMax  float64 `json:"ymax"`
}

// DetectionResult is produced once per submitted frame.
type DetectionResult struct {
	FrameID          uint64      `json:"frame_id"`
	CaptureTS        int64       `json:"capture_ts"`
	OverlayDisplayTS int64       `json:"overlay_display_ts"`
	Detections       []Detection `json:"detections"`
}

// LatencyMs is the end-to-end latency of the frame.
func (r *DetectionResult) LatencyMs() int64 {
	return r.OverlayDisplayTS - r.CaptureTS
}

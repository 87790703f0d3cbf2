// Package benchmark collects per-frame samples over a window and reduces them
// to a BenchmarkSummary.
package benchmark

import (
	"fmt"
	"math"
	"slices"
	"sync"

	apperrors "github.com/gianglt2198/webrtc-detect/internal/errors"
	"github.com/gianglt2198/webrtc-detect/internal/models"
)

// DefaultNotes describes how the summary figures are measured.
const DefaultNotes = "latency is overlay_display_ts - capture_ts per processed frame; " +
	"uplink is estimated from encoded frame sizes; downlink is not measured"

// Aggregator is the append-only sample log of one benchmark window.
// Finalize drains it; a second Finalize is an error.
type Aggregator struct {
	mode       string
	resolution string

	mu        sync.Mutex
	samples   []models.MetricsSample
	finalized bool
	late      int
}

func NewAggregator(mode, resolution string) *Aggregator {
	return &Aggregator{mode: mode, resolution: resolution}
}

// Record appends a sample. Samples arriving after Finalize are counted and dropped.
func (a *Aggregator) Record(sample models.MetricsSample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		a.late++
		return
	}
	a.samples = append(a.samples, sample)
}

// Len returns the number of samples recorded so far.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.samples)
}

// Finalize reduces the window to a summary. With no samples every statistic
// is zero. Rates are zero for a non-positive duration.
func (a *Aggregator) Finalize(durationSec float64) (models.BenchmarkSummary, error) {
	a.mu.Lock()
	if a.finalized {
		a.mu.Unlock()
		return models.BenchmarkSummary{}, apperrors.New("benchmark", "finalize", apperrors.ErrFinalizeMisuse)
	}
	a.finalized = true
	samples := a.samples
	a.samples = nil
	a.mu.Unlock()

	latencies := make([]int64, len(samples))
	var totalBytes int64
	for i, s := range samples {
		latencies[i] = s.LatencyMs
		totalBytes += int64(s.Bytes)
	}
	slices.Sort(latencies)

	summary := models.BenchmarkSummary{
		Mode:            a.mode,
		DurationSec:     durationSec,
		MedianLatencyMs: Percentile(latencies, 0.5),
		P95LatencyMs:    Percentile(latencies, 0.95),
		Resolution:      a.resolution,
		Notes:           DefaultNotes,
	}
	if durationSec > 0 {
		summary.ProcessedFPS = float64(len(samples)) / durationSec
		summary.UplinkKbps = float64(totalBytes) * 8 / durationSec / 1024
	}
	return summary, nil
}

// Percentile returns the element at index floor(p*n) of an ascending slice,
// clamped to the last element. Empty input yields 0.
func Percentile(sorted []int64, p float64) int64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Floor(p * float64(n)))
	idx = max(0, min(idx, n-1))
	return sorted[idx]
}

// Dropped returns how many samples arrived after Finalize.
func (a *Aggregator) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.late
}

// String renders a summary for terminal output.
func String(s models.BenchmarkSummary) string {
	return fmt.Sprintf("mode=%s resolution=%s duration=%.1fs median=%dms p95=%dms fps=%.2f uplink=%.1fkbps downlink=%.1fkbps",
		s.Mode, s.Resolution, s.DurationSec, s.MedianLatencyMs, s.P95LatencyMs, s.ProcessedFPS, s.UplinkKbps, s.DownlinkKbps)
}

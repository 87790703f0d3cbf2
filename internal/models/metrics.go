package models

// MetricsSample is recorded once per processed frame.
type MetricsSample struct {
	LatencyMs int64
	Bytes     int
}

// BenchmarkSummary is the reduced statistics of one benchmark window.
// DownlinkKbps is always zero: downlink traffic is not measured.
type BenchmarkSummary struct {
	Mode            string  `json:"mode"`
	DurationSec     float64 `json:"duration_sec"`
	MedianLatencyMs int64   `json:"median_latency_ms"`
	P95LatencyMs    int64   `json:"p95_latency_ms"`
	ProcessedFPS    float64 `json:"processed_fps"`
	UplinkKbps      float64 `json:"uplink_kbps"`
	DownlinkKbps    float64 `json:"downlink_kbps"`
	Resolution      string  `json:"resolution"`
	Notes           string  `json:"notes,omitempty"`
}

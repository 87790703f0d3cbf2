package signaling

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gianglt2198/webrtc-detect/internal/models"
)

// SummaryStore persists benchmark summaries: the final one at a fixed path and
// ad-hoc snapshots as metrics/metrics-<unixms>.json next to it.
type SummaryStore struct {
	finalPath   string
	snapshotDir string
}

// NewSummaryStore creates a SummaryStore writing the final summary to finalPath.
func NewSummaryStore(finalPath string) *SummaryStore {
	return &SummaryStore{
		finalPath:   finalPath,
		snapshotDir: filepath.Join(filepath.Dir(finalPath), "metrics"),
	}
}

// FinalPath is where SaveFinal writes.
func (s *SummaryStore) FinalPath() string {
	return s.finalPath
}

// SaveFinal replaces the final summary file.
func (s *SummaryStore) SaveFinal(summary models.BenchmarkSummary) (string, error) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := writeFileAtomic(s.finalPath, data); err != nil {
		return "", err
	}
	return s.finalPath, nil
}

// SaveSnapshot stores raw as a new timestamped snapshot.
func (s *SummaryStore) SaveSnapshot(raw []byte) (string, error) {
	path := filepath.Join(s.snapshotDir, fmt.Sprintf("metrics-%d.json", time.Now().UnixMilli()))
	if err := writeFileAtomic(path, raw); err != nil {
		return "", err
	}
	return path, nil
}

// LoadFinal reads back the final summary.
func (s *SummaryStore) LoadFinal() (*models.BenchmarkSummary, error) {
	data, err := os.ReadFile(s.finalPath)
	if err != nil {
		return nil, err
	}
	var summary models.BenchmarkSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	return &summary, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

package benchmark

import (
	"context"

	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/models"
	"github.com/gianglt2198/webrtc-detect/internal/signaling"
)

// Publisher persists a final summary.
type Publisher interface {
	SaveFinal(ctx context.Context, summary models.BenchmarkSummary) error
}

// FilePublisher writes the summary through a local SummaryStore.
type FilePublisher struct {
	Store *signaling.SummaryStore
}

func (p FilePublisher) SaveFinal(_ context.Context, summary models.BenchmarkSummary) error {
	path, err := p.Store.SaveFinal(summary)
	if err != nil {
		return err
	}
	logger.Info("Benchmark summary written", "path", path)
	return nil
}

// Publish sends the summary to every publisher and returns the first error.
// All publishers are tried.
func Publish(ctx context.Context, summary models.BenchmarkSummary, publishers ...Publisher) error {
	var first error
	for _, p := range publishers {
		if err := p.SaveFinal(ctx, summary); err != nil {
			logger.WarnContext(ctx, "Failed to publish benchmark summary", "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

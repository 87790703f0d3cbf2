package benchmark

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/models"
)

// Runner is a stoppable loop such as pipeline.Scheduler. Run must return
// only after its outstanding work has been recorded.
type Runner interface {
	Run(ctx context.Context) error
	Stop()
}

// Run drives runner for the window, stops it, waits for it to drain and then
// finalizes agg. If ctx ends first the summary covers the elapsed time only.
func Run(ctx context.Context, runner Runner, agg *Aggregator, window time.Duration) (models.BenchmarkSummary, error) {
	start := time.Now()
	elapsed := window

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(gctx)
	})
	g.Go(func() error {
		t := time.NewTimer(window)
		defer t.Stop()
		select {
		case <-t.C:
		case <-gctx.Done():
			elapsed = time.Since(start)
			logger.DebugContext(ctx, "Benchmark window cut short", "elapsed", elapsed)
		}
		runner.Stop()
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.BenchmarkSummary{}, err
	}

	summary, err := agg.Finalize(elapsed.Seconds())
	if err != nil {
		return models.BenchmarkSummary{}, err
	}
	logger.InfoContext(ctx, "Benchmark finished", "summary", String(summary))
	return summary, nil
}

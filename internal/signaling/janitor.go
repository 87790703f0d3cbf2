package signaling

import (
	"context"
	"time"

	"github.com/gianglt2198/webrtc-detect/internal/logger"
)

// RunJanitor sweeps records older than ttl every interval until ctx is done.
// Stores without a Sweeper (Redis expires keys itself) return immediately.
func RunJanitor(ctx context.Context, store Store, interval, ttl time.Duration) {
	sweeper, ok := store.(Sweeper)
	if !ok || ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = ttl / 2
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sweeper.Sweep(ctx, ttl)
			if err != nil {
				logger.Warn("Signaling sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("Swept expired sessions", "removed", removed)
			}
		}
	}
}

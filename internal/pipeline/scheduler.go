// Package pipeline paces frame capture against inference latency and fans
// detection results out to sinks.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/metrics"
	"github.com/gianglt2198/webrtc-detect/internal/models"
)

// DefaultIdleWait is how long the loop waits when the source has nothing new.
const DefaultIdleWait = 20 * time.Millisecond

// DefaultBusyPoll is how often a drop-on-busy loop re-checks the busy flag.
const DefaultBusyPoll = 10 * time.Millisecond

// Strategy turns one frame into normalized detections. It must not fail:
// errors degrade to an empty list inside the strategy.
type Strategy interface {
	Detect(ctx context.Context, frame models.Frame) []models.Detection
}

// Recorder receives one sample per processed frame.
type Recorder interface {
	Record(sample models.MetricsSample)
}

// Options tunes a Scheduler.
type Options struct {
	// TargetInterval is the minimum spacing between submissions (1/fps).
	TargetInterval time.Duration

	// DropOnBusy skips ticks while an inference is outstanding. When false the
	// loop blocks until the outstanding inference completes.
	DropOnBusy bool

	// IdleWait is the retry delay when the source has no fresh input.
	IdleWait time.Duration

	// BusyPoll is the re-check delay while an inference is outstanding under
	// DropOnBusy. It is capped at TargetInterval.
	BusyPoll time.Duration

	// Now overrides the wall clock for timestamps.
	Now func() time.Time
}

// Stats counts what the loop did.
type Stats struct {
	Submitted   uint64
	Completed   uint64
	DroppedBusy uint64
	NoInput     uint64
}

// Scheduler submits at most one frame at a time to the strategy, never faster
// than the target rate. Results are delivered in frame id order.
type Scheduler struct {
	source   Source
	strategy Strategy
	recorder Recorder
	sinks    []Sink
	opts     Options

	busy     *semaphore.Weighted
	inflight sync.WaitGroup
	nextID   atomic.Uint64

	started  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	deliverMu     sync.Mutex
	lastDelivered uint64

	submitted   atomic.Uint64
	completed   atomic.Uint64
	droppedBusy atomic.Uint64
	noInput     atomic.Uint64
}

func NewScheduler(source Source, strategy Strategy, recorder Recorder, opts Options, sinks ...Sink) *Scheduler {
	if opts.TargetInterval <= 0 {
		opts.TargetInterval = 100 * time.Millisecond
	}
	if opts.IdleWait <= 0 {
		opts.IdleWait = DefaultIdleWait
	}
	if opts.BusyPoll <= 0 {
		opts.BusyPoll = DefaultBusyPoll
	}
	opts.BusyPoll = min(opts.BusyPoll, opts.TargetInterval)
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		source:   source,
		strategy: strategy,
		recorder: recorder,
		sinks:    sinks,
		opts:     opts,
		busy:     semaphore.NewWeighted(1),
		stopCh:   make(chan struct{}),
	}
}

// Run loops until ctx is done or Stop is called, then waits for the
// outstanding inference (if any) to finish and record its sample.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("pipeline: scheduler already running")
	}
	defer s.inflight.Wait()

	var lastSubmit, lastDrop time.Time
	for !s.stopped() && ctx.Err() == nil {
		if s.opts.DropOnBusy {
			if !s.busy.TryAcquire(1) {
				// one drop per frame slot that passed while busy
				now := s.opts.Now()
				if now.Sub(lastSubmit) >= s.opts.TargetInterval && now.Sub(lastDrop) >= s.opts.TargetInterval {
					lastDrop = now
					s.droppedBusy.Add(1)
					metrics.RecordDrop("busy")
				}
				s.sleep(ctx, s.opts.BusyPoll)
				continue
			}
		} else if err := s.acquire(ctx); err != nil {
			break
		}

		if wait := s.opts.TargetInterval - s.opts.Now().Sub(lastSubmit); wait > 0 {
			s.busy.Release(1)
			s.sleep(ctx, wait)
			continue
		}

		img, err := s.source.Capture(ctx)
		if err != nil {
			s.busy.Release(1)
			if errors.Is(err, ErrNoInput) {
				s.noInput.Add(1)
				metrics.RecordDrop("no_input")
			} else if ctx.Err() == nil {
				logger.WarnContext(ctx, "Frame capture failed", "error", err)
			}
			s.sleep(ctx, s.opts.IdleWait)
			continue
		}

		now := s.opts.Now()
		lastSubmit = now
		frame := models.Frame{
			ID:         s.nextID.Add(1),
			CapturedAt: now,
			Payload:    img.Payload,
			Width:      img.Width,
			Height:     img.Height,
		}

		s.submitted.Add(1)
		metrics.RecordSubmit()
		s.inflight.Add(1)
		go s.process(context.WithoutCancel(ctx), frame)
	}
	return nil
}

// acquire blocks until the outstanding inference finishes, the context is
// canceled or Stop is called.
func (s *Scheduler) acquire(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return s.busy.Acquire(ctx, 1)
}

func (s *Scheduler) process(ctx context.Context, frame models.Frame) {
	defer s.inflight.Done()

	detections := s.strategy.Detect(ctx, frame)
	if detections == nil {
		detections = []models.Detection{}
	}

	displayTS := s.opts.Now().UnixMilli()
	if displayTS < frame.CaptureTS() {
		displayTS = frame.CaptureTS()
	}
	result := models.DetectionResult{
		FrameID:          frame.ID,
		CaptureTS:        frame.CaptureTS(),
		OverlayDisplayTS: displayTS,
		Detections:       detections,
	}

	s.deliver(ctx, result)
	sample := models.MetricsSample{LatencyMs: result.LatencyMs(), Bytes: len(frame.Payload)}
	if s.recorder != nil {
		s.recorder.Record(sample)
	}
	metrics.RecordComplete(sample.LatencyMs)
	s.completed.Add(1)

	s.busy.Release(1)
}

func (s *Scheduler) deliver(ctx context.Context, result models.DetectionResult) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if result.FrameID <= s.lastDelivered {
		logger.WarnContext(ctx, "Dropping out-of-order result", "frame_id", result.FrameID, "last", s.lastDelivered)
		return
	}
	s.lastDelivered = result.FrameID

	for _, sink := range s.sinks {
		if err := sink.Deliver(ctx, result); err != nil {
			logger.DebugContext(ctx, "Sink delivery failed", "frame_id", result.FrameID, "error", err)
		}
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-s.stopCh:
	case <-t.C:
	}
}

// Stop asks the loop to exit. Run returns once the outstanding inference is done.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// Stats returns a snapshot of the loop counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Submitted:   s.submitted.Load(),
		Completed:   s.completed.Load(),
		DroppedBusy: s.droppedBusy.Load(),
		NoInput:     s.noInput.Load(),
	}
}

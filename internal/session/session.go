// Package session ties one rendezvous attempt to the frame pipeline and the
// benchmark window that measures it. All per-session state lives here.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gianglt2198/webrtc-detect/internal/benchmark"
	"github.com/gianglt2198/webrtc-detect/internal/config"
	apperrors "github.com/gianglt2198/webrtc-detect/internal/errors"
	"github.com/gianglt2198/webrtc-detect/internal/inference"
	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/models"
	"github.com/gianglt2198/webrtc-detect/internal/pipeline"
	"github.com/gianglt2198/webrtc-detect/internal/rendezvous"
	"github.com/gianglt2198/webrtc-detect/internal/signaling"
)

const publishTimeout = 10 * time.Second

var errAlreadyRun = errors.New("session: already run")

// OfferLink is the peer transport seen from the offering side.
type OfferLink interface {
	rendezvous.OfferTransport
	pipeline.Sink
	WaitOpen(ctx context.Context) error
}

// Deps are the collaborators of an offering session.
type Deps struct {
	Store      signaling.Store
	Link       OfferLink
	Source     pipeline.Source
	Strategy   inference.Strategy
	Sinks      []pipeline.Sink
	Publishers []benchmark.Publisher

	// Rendezvous overrides the polling options derived from the config.
	Rendezvous rendezvous.Options

	// OnPublished receives the session id once the offer is stored, so it can
	// be shown to the answering operator.
	OnPublished func(id string)
}

// Session is one offering attempt: rendezvous, then the frame pipeline for
// one benchmark window, then the summary.
type Session struct {
	cfg  *config.Config
	deps Deps

	aggregator *benchmark.Aggregator
	scheduler  *pipeline.Scheduler

	mu       sync.Mutex
	id       string
	cancel   context.CancelFunc
	started  bool
	stopping bool
	done     chan struct{}
}

// New builds a session. The inference mode is fixed here for its lifetime.
func New(cfg *config.Config, deps Deps) *Session {
	if deps.Rendezvous.PollInterval <= 0 {
		deps.Rendezvous.PollInterval = cfg.PollInterval
	}
	if deps.Rendezvous.Timeout <= 0 {
		deps.Rendezvous.Timeout = cfg.RendezvousTimeout
	}

	agg := benchmark.NewAggregator(string(deps.Strategy.Mode()), cfg.Resolution())
	sinks := append([]pipeline.Sink{deps.Link}, deps.Sinks...)
	sched := pipeline.NewScheduler(deps.Source, deps.Strategy, agg, pipeline.Options{
		TargetInterval: cfg.TargetInterval(),
		DropOnBusy:     cfg.DropOnBusy,
	}, sinks...)

	return &Session{
		cfg:        cfg,
		deps:       deps,
		aggregator: agg,
		scheduler:  sched,
		done:       make(chan struct{}),
	}
}

// ID returns the session id, empty until the offer is published.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) Mode() config.Mode {
	return s.deps.Strategy.Mode()
}

// Stats returns the pipeline counters.
func (s *Session) Stats() pipeline.Stats {
	return s.scheduler.Stats()
}

// Run performs the rendezvous, waits for the detections channel and runs
// the benchmark window. The summary is published before Run returns.
func (s *Session) Run(ctx context.Context) (models.BenchmarkSummary, error) {
	ctx, err := s.begin(ctx)
	if err != nil {
		return models.BenchmarkSummary{}, err
	}
	defer s.finish()

	offerer := rendezvous.NewOfferer(s.deps.Store, s.deps.Link, s.deps.Rendezvous)
	id, err := offerer.Run(ctx, func(id string) {
		s.mu.Lock()
		s.id = id
		s.mu.Unlock()
		if s.deps.OnPublished != nil {
			s.deps.OnPublished(id)
		}
	})
	if err != nil {
		return models.BenchmarkSummary{}, err
	}
	ctx = logger.WithSessionID(ctx, id)

	openCtx, cancel := context.WithTimeout(ctx, s.deps.Rendezvous.Timeout)
	err = s.deps.Link.WaitOpen(openCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return models.BenchmarkSummary{}, ctx.Err()
		}
		return models.BenchmarkSummary{}, apperrors.New("session", "open channel",
			fmt.Errorf("%w: %w", apperrors.ErrTransportApply, err)).WithSession(id).WithPhase("established")
	}

	logger.InfoContext(ctx, "Session established, starting pipeline",
		"mode", s.Mode(), "resolution", s.cfg.Resolution(), "fps", s.cfg.FPS, "window", s.cfg.Benchmark)

	summary, err := benchmark.Run(ctx, s.scheduler, s.aggregator, s.cfg.Benchmark)
	if err != nil {
		return models.BenchmarkSummary{}, err
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := benchmark.Publish(pubCtx, summary, s.deps.Publishers...); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *Session) begin(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, errAlreadyRun
	}
	s.started = true
	if s.stopping {
		close(s.done)
		return nil, context.Canceled
	}
	ctx, s.cancel = context.WithCancel(ctx)
	return logger.WithRole(ctx, "offerer"), nil
}

func (s *Session) finish() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	close(s.done)
}

// Stop cancels the rendezvous or the pipeline, whichever is running, and
// waits until the outstanding inference has been recorded.
func (s *Session) Stop() {
	s.mu.Lock()
	s.stopping = true
	cancel, started := s.cancel, s.started
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-s.done
	}
}

package collector

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"db-health-agent/internal/model"
	"db-health-agent/internal/telemetry"
)

type CycleRunner interface {
	RunCycle(ctx context.Context) model.Report
}

type ReportOfferer interface {
	Offer(r model.Report)
}

// Scheduler drives cycles on a fixed interval plus jitter. Cycles run on the scheduler's own
// goroutine, so they never overlap; ticks missed while a cycle overran are skipped.
type Scheduler struct {
	logger          *slog.Logger
	runner          CycleRunner
	emitter         ReportOfferer
	metrics         *telemetry.Metrics
	interval        time.Duration
	maxJitter       time.Duration
	shutdownTimeout time.Duration
	now             func() time.Time

	mu      sync.Mutex
	randSrc *rand.Rand
	last    model.Report
	hasLast bool
}

func NewScheduler(
	logger *slog.Logger,
	runner CycleRunner,
	emitter ReportOfferer,
	metrics *telemetry.Metrics,
	interval, maxJitter, shutdownTimeout time.Duration,
) *Scheduler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if maxJitter < 0 || maxJitter >= interval {
		maxJitter = 0
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &Scheduler{
		logger:          logger,
		runner:          runner,
		emitter:         emitter,
		metrics:         metrics,
		interval:        interval,
		maxJitter:       maxJitter,
		shutdownTimeout: shutdownTimeout,
		now:             time.Now,
		randSrc:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run blocks until ctx is done. The first cycle starts immediately. Ticks stay on the
// unjittered interval grid; jitter only delays the start of each cycle.
func (s *Scheduler) Run(ctx context.Context) error {
	tick := s.now()
	for {
		if !s.sleepUntil(ctx, tick.Add(s.jitter())) {
			return nil
		}

		start := s.now()
		report := s.runCycle(ctx)
		end := s.now()
		elapsed := end.Sub(start)

		var skipped int64
		tick, skipped = s.advance(tick, end, elapsed)
		if skipped > 0 {
			report.Stats.SlowCycle = true
			report.Stats.OverrunMs = (elapsed - s.interval).Milliseconds()
			report.Stats.SkippedTicks = int(skipped)
			s.logger.Warn("slow cycle, skipping missed ticks",
				"cycle", report.Cycle,
				"elapsed", elapsed,
				"interval", s.interval,
				"skipped_ticks", skipped,
			)
		}

		s.metrics.ObserveReport(report)
		s.remember(report)
		s.emitter.Offer(report)
		s.logger.Debug("cycle complete",
			"cycle", report.Cycle,
			"processes", report.Stats.Collected,
			"worst_level", report.Stats.WorstLevel.String(),
			"abandoned", report.Stats.Abandoned,
			"duration_ms", report.Stats.DurationMs,
		)

		if ctx.Err() != nil {
			return nil
		}
	}
}

// LastReport returns the most recent report handed to the emitter.
func (s *Scheduler) LastReport() (model.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

func (s *Scheduler) remember(r model.Report) {
	s.mu.Lock()
	s.last = r
	s.hasLast = true
	s.mu.Unlock()
}

// runCycle detaches the cycle from ctx so an in-flight cycle survives shutdown until the
// hard deadline, after which its context is cancelled.
func (s *Scheduler) runCycle(ctx context.Context) model.Report {
	cycleCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		t := time.NewTimer(s.shutdownTimeout)
		defer t.Stop()
		select {
		case <-done:
		case <-t.C:
			s.logger.Warn("shutdown deadline reached, abandoning in-flight cycle", "deadline", s.shutdownTimeout)
			cancel()
		}
	}()

	return s.runner.RunCycle(cycleCtx)
}

// advance returns the tick after tick. A cycle that ran longer than the interval skips every
// tick that passed before it ended; a cycle of exactly one interval is on time.
func (s *Scheduler) advance(tick, end time.Time, elapsed time.Duration) (time.Time, int64) {
	next := tick.Add(s.interval)
	if elapsed <= s.interval || !end.After(next) {
		return next, 0
	}
	behind := end.Sub(next)
	skipped := int64((behind + s.interval - 1) / s.interval)
	return next.Add(time.Duration(skipped) * s.interval), skipped
}

func (s *Scheduler) jitter() time.Duration {
	if s.maxJitter <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.randSrc.Int63n(int64(s.maxJitter)))
}

func (s *Scheduler) sleepUntil(ctx context.Context, at time.Time) bool {
	if ctx.Err() != nil {
		return false
	}
	d := at.Sub(s.now())
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

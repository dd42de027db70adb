package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"db-health-agent/internal/collector"
	"db-health-agent/internal/config"
	"db-health-agent/internal/health"
	"db-health-agent/internal/model"
	"db-health-agent/internal/process"
	"db-health-agent/internal/stream"
	"db-health-agent/internal/system"
	"db-health-agent/internal/telemetry"
)

// ErrFatalStartup marks failures that make monitoring impossible. main exits non-zero on it.
var ErrFatalStartup = errors.New("fatal startup")

type Agent struct {
	cfg       config.Config
	logger    *slog.Logger
	scheduler *collector.Scheduler
	emitter   *stream.Emitter
	sink      stream.Sink
	health    *HealthStatus
	metrics   *telemetry.Metrics
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Agent, error) {
	fsys := system.NewFS(cfg.ProcRoot, cfg.SysRoot, cfg.HostRoot, cfg.ReadTimeout)
	if err := fsys.CheckProcRoot(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFatalStartup, err)
	}
	if err := fsys.CheckSysRoot(); err != nil {
		logger.Warn("sys root unreadable, network counters will be unknown", "sys_root", cfg.SysRoot, "error", err)
	}
	host, err := system.LoadHostConstants(cfg.ClockTicks, cfg.PageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFatalStartup, err)
	}

	pred, err := process.NewPredicate(cfg.Watch)
	if err != nil {
		return nil, fmt.Errorf("watch predicate: %w", err)
	}

	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}
	sink, err := stream.NewSinkFromConfig(ctx, cfg, tlsCfg, logger.With("component", "sink"))
	if err != nil {
		return nil, fmt.Errorf("stream sink: %w", err)
	}

	metrics := telemetry.New()
	status := NewHealthStatus(time.Now())
	wrappedSink := &healthSink{sink: sink, health: status}

	scanner := process.NewScanner(fsys, pred, cfg.WorkerPoolSize, logger.With("component", "scanner"))
	if err := scanner.Open(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFatalStartup, err)
	}
	metricsCollector := collector.NewMetricsCollector(
		process.NewReader(fsys, host),
		system.NewSnapshotReader(fsys, logger.With("component", "system")),
		host,
		cfg.WorkerPoolSize,
		logger.With("component", "collector"),
	)
	pipeline := collector.NewPipeline(
		logger.With("component", "pipeline"),
		scanner,
		metricsCollector,
		health.NewClassifier(health.NewRules(cfg.Thresholds)),
		collector.Source{NodeID: cfg.NodeID, Hostname: cfg.Hostname, AgentVersion: cfg.AgentVersion},
	)
	emitter := stream.NewEmitter(wrappedSink, cfg.SinkWriteTimeout, metrics, logger.With("component", "emitter"))
	scheduler := collector.NewScheduler(
		logger.With("component", "scheduler"),
		pipeline,
		&cycleRecorder{emitter: emitter, health: status},
		metrics,
		cfg.PollInterval,
		cfg.PollJitter,
		cfg.ShutdownTimeout,
	)

	logger.Info("host constants loaded", "host", host.String())
	return &Agent{
		cfg:       cfg,
		logger:    logger,
		scheduler: scheduler,
		emitter:   emitter,
		sink:      wrappedSink,
		health:    status,
		metrics:   metrics,
	}, nil
}

func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting db-health-agent",
		"node_id", a.cfg.NodeID,
		"version", a.cfg.AgentVersion,
		"proc_root", a.cfg.ProcRoot,
		"stream_mode", a.cfg.StreamMode,
		"interval", a.cfg.PollInterval,
	)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- a.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
		// Agent terminated by itself (runtime error or parent ctx canceled).
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", a.cfg.ShutdownTimeout)
		cancelRun()

		// The scheduler abandons its cycle at ShutdownTimeout; allow one write on top of that.
		graceTimer := time.NewTimer(a.cfg.ShutdownTimeout + a.cfg.SinkWriteTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
			// graceful stop completed in time
		case sig2 := <-sigCh:
			a.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			a.closeSink()
			return nil
		case <-graceTimer.C:
			a.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", a.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.cfg.SinkWriteTimeout)
	defer cancelShutdown()
	a.shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	a.logger.Info("db-health-agent stopped")
	return nil
}

func BuildLogger(cfg config.Config) *slog.Logger {
	return newLogger(os.Stdout, cfg.LogLevel, cfg.LogJSON)
}

func newLogger(w io.Writer, levelName string, json bool) *slog.Logger {
	level := slog.LevelInfo
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, hOpts))
	}
	return slog.New(slog.NewTextHandler(w, hOpts))
}

// cycleRecorder sits between the scheduler and the emitter so the probe sees every cycle.
type cycleRecorder struct {
	emitter *stream.Emitter
	health  *HealthStatus
}

func (c *cycleRecorder) Offer(r model.Report) {
	c.health.MarkCycle(r)
	c.emitter.Offer(r)
}

type healthSink struct {
	sink   stream.Sink
	health *HealthStatus
}

func (s *healthSink) SendReport(ctx context.Context, r model.Report) error {
	err := s.sink.SendReport(ctx, r)
	if err != nil {
		s.health.SetStreamConnected(false)
		return err
	}
	s.health.SetStreamConnected(true)
	s.health.MarkReportSent(time.Now())
	return nil
}

func (s *healthSink) Close(ctx context.Context) error {
	return s.sink.Close(ctx)
}

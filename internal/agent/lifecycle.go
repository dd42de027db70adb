package agent

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"db-health-agent/internal/stream"
)

func (a *Agent) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		return a.emitter.Run(gctx)
	})
	g.Go(func() error {
		// The probe is auxiliary; losing it must not stop monitoring.
		if err := a.runProbeListener(gctx); err != nil {
			a.logger.Error("probe endpoint failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *Agent) logHealth(status string) {
	a.logger.Log(context.Background(), slog.LevelDebug, "agent health", "status", status, "snapshot", a.health.Snapshot())
}

// shutdown makes the final delivery attempt for the latest report, then closes the sink.
func (a *Agent) shutdown(ctx context.Context) {
	if err := a.emitter.Flush(ctx); err != nil && !errors.Is(err, stream.ErrNoPendingReport) {
		a.logger.Warn("final report flush failed", "error", err)
	}
	if err := a.sink.Close(ctx); err != nil {
		a.logger.Warn("stream sink close failed", "error", err)
	}
	a.health.SetStreamConnected(false)
	a.logHealth("stopped")
}

func (a *Agent) closeSink() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.SinkWriteTimeout)
	defer cancel()
	if err := a.sink.Close(ctx); err != nil {
		a.logger.Warn("stream sink close failed", "error", err)
	}
}

package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"db-health-agent/internal/model"
	"db-health-agent/internal/process"
	"db-health-agent/internal/system"
)

// Collection is everything gathered for one cycle before classification.
type Collection struct {
	Records            []model.ProcessRecord
	System             model.SystemSnapshot
	Dropped            int
	Partial            int
	CounterRegressions int
	SystemDuration     time.Duration
	// Skipped lists pids that were dropped this cycle but still exist. Their previous
	// entries are carried forward instead of being reported as exited.
	Skipped []int
	// Interrupted is set when the context ended before every candidate was read.
	Interrupted bool
}

type MetricsCollector struct {
	reader  *process.Reader
	system  *system.SnapshotReader
	host    system.HostConstants
	workers int
	logger  *slog.Logger
	now     func() time.Time
}

func NewMetricsCollector(
	reader *process.Reader,
	snapshots *system.SnapshotReader,
	host system.HostConstants,
	workers int,
	logger *slog.Logger,
) *MetricsCollector {
	if workers <= 0 {
		workers = 1
	}
	return &MetricsCollector{
		reader:  reader,
		system:  snapshots,
		host:    host,
		workers: workers,
		logger:  logger,
		now:     time.Now,
	}
}

// Collect reads every candidate on the worker pool while the system snapshot is taken
// concurrently. Rates are derived against prev, which is only read.
func (c *MetricsCollector) Collect(ctx context.Context, candidates []process.Candidate, prev model.CycleTable) Collection {
	var out Collection
	results := make([]*model.ProcessRecord, len(candidates))
	alive := make([]bool, len(candidates))
	var dropped atomic.Int64

	var g errgroup.Group
	g.Go(func() error {
		start := time.Now()
		out.System = c.system.Read(ctx, prev.System, c.now())
		out.SystemDuration = time.Since(start)
		return nil
	})
	g.Go(func() error {
		pool, pctx := errgroup.WithContext(ctx)
		pool.SetLimit(c.workers)
		for i, cand := range candidates {
			if pctx.Err() != nil {
				break
			}
			if cand.Unreadable {
				dropped.Add(1)
				alive[i] = true
				continue
			}
			i, cand := i, cand
			pool.Go(func() error {
				rec, err := c.reader.Read(pctx, cand.PID, c.now())
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return nil
					}
					dropped.Add(1)
					alive[i] = !errors.Is(err, process.ErrVanished)
					c.logger.Debug("process observation dropped", "pid", cand.PID, "command", cand.Command, "error", err)
					return nil
				}
				results[i] = &rec
				return nil
			})
		}
		return pool.Wait()
	})
	_ = g.Wait()

	out.Interrupted = ctx.Err() != nil
	out.Dropped = int(dropped.Load())
	for i, ok := range alive {
		if ok {
			out.Skipped = append(out.Skipped, candidates[i].PID)
		}
	}
	out.Records = make([]model.ProcessRecord, 0, len(candidates))
	for _, rec := range results {
		if rec == nil {
			continue
		}
		var prevRecord *model.ProcessRecord
		if e, ok := prev.Lookup(rec.Identity); ok {
			prevRecord = &e.Record
		}
		if n := deriveRates(rec, prevRecord, c.host); n > 0 {
			out.CounterRegressions += n
			c.logger.Info("counter regression; rate baseline reset", "pid", rec.PID, "identity", rec.Identity.String(), "counters", n)
		}
		if rec.Partial {
			out.Partial++
		}
		out.Records = append(out.Records, *rec)
	}
	return out
}

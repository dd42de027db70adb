package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"db-health-agent/internal/model"
	"db-health-agent/internal/telemetry"
)

var ErrNoPendingReport = errors.New("no pending report")

// Emitter decouples the cycle loop from the sink. It holds at most one undelivered report;
// a newer report always replaces an older one.
type Emitter struct {
	logger       *slog.Logger
	sink         Sink
	writeTimeout time.Duration
	metrics      *telemetry.Metrics
	warn         rate.Sometimes

	mu      sync.Mutex
	pending *model.Report
	offers  uint64
	notify  chan struct{}

	sendMu sync.Mutex
}

func NewEmitter(sink Sink, writeTimeout time.Duration, metrics *telemetry.Metrics, logger *slog.Logger) *Emitter {
	if writeTimeout <= 0 {
		writeTimeout = 3 * time.Second
	}
	return &Emitter{
		logger:       logger,
		sink:         sink,
		writeTimeout: writeTimeout,
		metrics:      metrics,
		warn:         rate.Sometimes{First: 1, Interval: 30 * time.Second},
		notify:       make(chan struct{}, 1),
	}
}

// Offer stores r as the pending report and wakes the delivery goroutine. It never blocks.
func (e *Emitter) Offer(r model.Report) {
	e.mu.Lock()
	if e.pending != nil {
		if e.metrics != nil {
			e.metrics.ReportsReplaced.Inc()
		}
		e.logger.Debug("pending report replaced", "dropped_report_id", e.pending.ID, "report_id", r.ID)
	}
	e.pending = &r
	e.offers++
	e.mu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Pending returns the undelivered report, if any.
func (e *Emitter) Pending() (model.Report, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return model.Report{}, false
	}
	return *e.pending, true
}

// Run makes one delivery attempt per wake-up until ctx is done.
func (e *Emitter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.notify:
			_ = e.attempt(ctx)
		}
	}
}

// Flush makes a final delivery attempt for the pending report, bounded by ctx and the write
// timeout. It returns ErrNoPendingReport when there is nothing to send.
func (e *Emitter) Flush(ctx context.Context) error {
	return e.attempt(ctx)
}

func (e *Emitter) attempt(ctx context.Context) error {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	e.mu.Lock()
	if e.pending == nil {
		e.mu.Unlock()
		return ErrNoPendingReport
	}
	r := *e.pending
	seq := e.offers
	e.pending = nil
	e.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(ctx, e.writeTimeout)
	err := e.sink.SendReport(sendCtx, r)
	cancel()
	if err == nil {
		if e.metrics != nil {
			e.metrics.ReportsSent.Inc()
		}
		return nil
	}

	if e.metrics != nil {
		e.metrics.SinkFailures.Inc()
	}
	e.mu.Lock()
	if e.offers == seq {
		e.pending = &r
	} else if e.metrics != nil {
		e.metrics.ReportsReplaced.Inc()
	}
	e.mu.Unlock()
	e.warn.Do(func() {
		e.logger.Warn("report delivery failed, keeping latest report pending", "report_id", r.ID, "cycle", r.Cycle, "error", err)
	})
	return err
}

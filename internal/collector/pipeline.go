package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"db-health-agent/internal/health"
	"db-health-agent/internal/model"
	"db-health-agent/internal/process"
)

// Source identifies the agent on every report it produces.
type Source struct {
	NodeID       string
	Hostname     string
	AgentVersion string
}

// Pipeline runs one scan, collect and classify pass. It owns the cycle table and is the
// only writer of it; RunCycle must not be called concurrently.
type Pipeline struct {
	logger     *slog.Logger
	scanner    *process.Scanner
	collector  *MetricsCollector
	classifier *health.Classifier
	source     Source
	now        func() time.Time
	newID      func() string

	table model.CycleTable
	cycle uint64
}

func NewPipeline(
	logger *slog.Logger,
	scanner *process.Scanner,
	collector *MetricsCollector,
	classifier *health.Classifier,
	source Source,
) *Pipeline {
	return &Pipeline{
		logger:     logger,
		scanner:    scanner,
		collector:  collector,
		classifier: classifier,
		source:     source,
		now:        time.Now,
		newID:      uuid.NewString,
		table:      model.NewCycleTable(),
	}
}

// Table returns the last completed cycle table.
func (p *Pipeline) Table() model.CycleTable {
	return p.table
}

// RunCycle produces the report for one cycle. When ctx ends before collection finishes
// the report is flagged abandoned, carries whatever was already computed, and the cycle
// table is left untouched so the next cycle compares against the last complete one.
func (p *Pipeline) RunCycle(ctx context.Context) model.Report {
	p.cycle++
	started := p.now()
	report := model.Report{
		ID:           p.newID(),
		NodeID:       p.source.NodeID,
		Hostname:     p.source.Hostname,
		AgentVersion: p.source.AgentVersion,
		Cycle:        p.cycle,
		StartedAt:    started,
		Processes:    []model.ProcessRecord{},
		Verdicts:     []model.HealthVerdict{},
	}

	candidates, err := p.scanner.Scan(ctx)
	if err != nil {
		p.logger.Warn("process scan failed, cycle abandoned", "cycle", p.cycle, "error", err)
		report.Stats.Abandoned = true
		return p.finish(report)
	}

	col := p.collector.Collect(ctx, candidates, p.table)
	report.System = col.System
	report.Processes = col.Records
	report.Stats.Candidates = len(candidates)
	report.Stats.Collected = len(col.Records)
	report.Stats.DroppedObservations = col.Dropped
	report.Stats.PartialRecords = col.Partial
	report.Stats.CounterRegressions = col.CounterRegressions
	report.Stats.SystemDurationMs = col.SystemDuration.Milliseconds()

	complete := !col.Interrupted
	verdicts, next := p.classifier.ClassifyCycle(col.Records, p.table, col.System, p.now(), col.Skipped, complete)
	report.Verdicts = verdicts
	if !complete {
		p.logger.Warn("cycle interrupted, emitting partial results", "cycle", p.cycle, "collected", len(col.Records), "candidates", len(candidates))
		report.Stats.Abandoned = true
		return p.finish(report)
	}

	p.logTransitions(col.Records, verdicts)
	p.table = next
	return p.finish(report)
}

func (p *Pipeline) finish(r model.Report) model.Report {
	r.CompletedAt = p.now()
	r.Stats.DurationMs = r.CompletedAt.Sub(r.StartedAt).Milliseconds()
	r.Stats.WorstLevel = r.WorstVerdict()
	return r
}

func (p *Pipeline) logTransitions(records []model.ProcessRecord, verdicts []model.HealthVerdict) {
	rss := make(map[model.IdentityKey]*uint64, len(records))
	for _, rec := range records {
		rss[rec.Identity] = rec.RSSBytes
	}
	for _, v := range verdicts {
		prevLevel := model.LevelUnknown
		if e, ok := p.table.Lookup(v.Subject); ok {
			prevLevel = e.Verdict.Level
		}
		if v.Level == prevLevel {
			continue
		}
		attrs := []any{
			"pid", v.Subject.PID,
			"identity", v.Subject.String(),
			"command", v.Command,
			"from", prevLevel.String(),
			"to", v.Level.String(),
			"reasons", v.Reasons,
		}
		if b := rss[v.Subject]; b != nil {
			attrs = append(attrs, "rss", humanize.IBytes(*b))
		}
		if v.Level >= model.LevelDegraded && v.Level > prevLevel {
			p.logger.Warn("health level changed", attrs...)
		} else {
			p.logger.Info("health level changed", attrs...)
		}
	}
}

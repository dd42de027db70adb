package process

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"db-health-agent/internal/system"
)

// Candidate is a pid that matched the watch predicate at enumeration time. Unreadable
// candidates exist but could not be examined; they are skipped for the cycle, not treated as gone.
type Candidate struct {
	PID        int
	Command    string
	Unreadable bool
}

type Scanner struct {
	fs      system.FS
	pred    *Predicate
	workers int
	logger  *slog.Logger
}

func NewScanner(fsys system.FS, pred *Predicate, workers int, logger *slog.Logger) *Scanner {
	if workers <= 0 {
		workers = 1
	}
	return &Scanner{fs: fsys, pred: pred, workers: workers, logger: logger}
}

// Open verifies the process root can be listed. Failure here is not retried.
func (s *Scanner) Open() error {
	return s.fs.CheckProcRoot()
}

// Scan returns the matching pids present at enumeration time, ascending, plus pids that could
// not be examined (flagged Unreadable).
func (s *Scanner) Scan(ctx context.Context) ([]Candidate, error) {
	var pids []int
	if s.pred.PIDsOnly() {
		pids = s.pred.ListedPIDs()
	} else {
		names, err := s.fs.ReadDirNames(ctx, s.fs.ProcRoot)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", s.fs.ProcRoot, err)
		}
		pids = make([]int, 0, len(names))
		for _, name := range names {
			if pid, ok := parsePID(name); ok {
				pids = append(pids, pid)
			}
		}
	}

	var (
		mu  sync.Mutex
		out = make([]Candidate, 0, 8)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, pid := range pids {
		if gctx.Err() != nil {
			break
		}
		pid := pid
		g.Go(func() error {
			c, ok, err := s.pred.Match(gctx, s.fs, pid)
			if err != nil {
				s.logger.Debug("process unreadable during scan", "pid", pid, "error", err)
				c.Unreadable = true
			} else if !ok {
				return nil
			}
			mu.Lock()
			out = append(out, c)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	s.logger.Debug("process scan complete", "examined", len(pids), "matched", len(out))
	return out, nil
}

func parsePID(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < '0' || name[i] > '9' {
			return 0, false
		}
	}
	pid, err := strconv.Atoi(name)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

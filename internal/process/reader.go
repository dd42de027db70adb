package process

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"db-health-agent/internal/model"
	"db-health-agent/internal/system"
)

// Reader turns the files under <proc>/<pid> into a ProcessRecord.
type Reader struct {
	fs   system.FS
	host system.HostConstants
}

func NewReader(fsys system.FS, host system.HostConstants) *Reader {
	return &Reader{fs: fsys, host: host}
}

// Read collects one observation. ErrVanished, ErrUnreadable and ErrNoIdentity mean the pid is
// skipped for this cycle; only ErrVanished means it is gone. Any other file failing only leaves
// its fields Unknown.
func (r *Reader) Read(ctx context.Context, pid int, now time.Time) (model.ProcessRecord, error) {
	dir := strconv.Itoa(pid)
	st, err := r.readStat(ctx, dir)
	if err != nil {
		return model.ProcessRecord{}, fmt.Errorf("pid %d: %w", pid, err)
	}
	if st.StartTime == nil {
		return model.ProcessRecord{}, fmt.Errorf("pid %d: %w", pid, ErrNoIdentity)
	}

	rec := model.ProcessRecord{
		PID:        pid,
		Identity:   model.IdentityKey{PID: pid, StartTicks: *st.StartTime},
		Command:    st.Comm,
		State:      st.State,
		ObservedAt: now,
	}
	if st.Utime != nil && st.Stime != nil {
		ticks := *st.Utime + *st.Stime
		rec.CPUTicksTotal = model.Uint64(ticks)
		rec.CPUSecondsTotal = model.Float64(r.host.TicksToSeconds(ticks))
	}
	rec.VSizeBytes = st.VSize
	rec.NumThreads = st.NumThreads
	if st.RSSPages != nil {
		rec.RSSBytes = model.Uint64(r.host.PagesToBytes(*st.RSSPages))
	}

	var missing bool
	note := func(err error) {
		if gone(err) {
			missing = true
		}
	}

	if raw, err := r.fs.ReadFile(ctx, r.fs.ProcPath(dir, "status")); err == nil {
		status := parseStatus(raw)
		if rec.Command == "" {
			rec.Command = status.Name
		}
		if rec.RSSBytes == nil {
			rec.RSSBytes = status.VmRSS
		}
		if rec.NumThreads == nil {
			rec.NumThreads = status.Threads
		}
	} else {
		note(err)
	}

	if raw, err := r.fs.ReadFile(ctx, r.fs.ProcPath(dir, "cmdline")); err == nil {
		rec.Cmdline = string(bytes.TrimSpace(bytes.ReplaceAll(raw, []byte{0}, []byte{' '})))
	} else {
		note(err)
	}

	if raw, err := r.fs.ReadFile(ctx, r.fs.ProcPath(dir, "io")); err == nil {
		io := parseIO(raw)
		rec.IOReadBytes = io.ReadBytes
		rec.IOWriteBytes = io.WriteBytes
	} else {
		note(err)
	}

	if names, err := r.fs.ReadDirNames(ctx, r.fs.ProcPath(dir, "fd")); err == nil {
		rec.NumOpenFDs = model.Uint64(uint64(len(names)))
	} else {
		note(err)
	}

	unlimitedFDs := false
	if raw, err := r.fs.ReadFile(ctx, r.fs.ProcPath(dir, "limits")); err == nil {
		rec.MaxOpenFDs, unlimitedFDs = parseMaxOpenFiles(raw)
	} else {
		note(err)
	}

	if raw, err := r.fs.ReadFile(ctx, r.fs.ProcPath(dir, "oom_score")); err == nil {
		rec.OOMScore = parseIntPtr(string(raw))
	} else {
		note(err)
	}

	if err := ctx.Err(); err != nil {
		return model.ProcessRecord{}, err
	}
	if missing {
		if err := r.confirmInstance(ctx, dir, rec.Identity); err != nil {
			return model.ProcessRecord{}, fmt.Errorf("pid %d: %w", pid, err)
		}
	}

	markUnknownFields(&rec, unlimitedFDs)
	return rec, nil
}

func (r *Reader) readStat(ctx context.Context, dir string) (statFields, error) {
	raw, err := r.fs.ReadFile(ctx, r.fs.ProcPath(dir, "stat"))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return statFields{}, ctxErr
		}
		return statFields{}, readFailure(err)
	}
	st, err := parseStat(raw)
	if err != nil {
		return statFields{}, fmt.Errorf("%w: %w", ErrNoIdentity, err)
	}
	return st, nil
}

// confirmInstance re-reads stat after a file went missing mid-read: the pid must still exist
// with the same start time for the partial record to be kept.
func (r *Reader) confirmInstance(ctx context.Context, dir string, id model.IdentityKey) error {
	st, err := r.readStat(ctx, dir)
	if err != nil {
		return err
	}
	if st.StartTime == nil {
		return ErrNoIdentity
	}
	if *st.StartTime != id.StartTicks {
		return ErrVanished
	}
	return nil
}

func markUnknownFields(rec *model.ProcessRecord, unlimitedFDs bool) {
	if rec.CPUTicksTotal == nil {
		rec.MarkUnknown("cpu_ticks_total")
	}
	if rec.RSSBytes == nil {
		rec.MarkUnknown("rss_bytes")
	}
	if rec.VSizeBytes == nil {
		rec.MarkUnknown("vsize_bytes")
	}
	if rec.NumThreads == nil {
		rec.MarkUnknown("num_threads")
	}
	if rec.NumOpenFDs == nil {
		rec.MarkUnknown("num_open_fds")
	}
	if rec.MaxOpenFDs == nil && !unlimitedFDs {
		rec.MarkUnknown("max_open_fds")
	}
	if rec.IOReadBytes == nil {
		rec.MarkUnknown("io_read_bytes")
	}
	if rec.IOWriteBytes == nil {
		rec.MarkUnknown("io_write_bytes")
	}
	if rec.OOMScore == nil {
		rec.MarkUnknown("oom_score")
	}
}

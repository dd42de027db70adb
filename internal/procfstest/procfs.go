// Package procfstest builds throwaway proc and sys trees for tests.
package procfstest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// Proc describes one fake process. Zero values produce a plausible idle process.
type Proc struct {
	PID        int
	Comm       string
	State      string
	Utime      uint64
	Stime      uint64
	Threads    uint64
	StartTime  uint64
	VSize      uint64
	RSSPages   uint64
	Cmdline    []string
	Cgroup     string
	ReadBytes  uint64
	WriteBytes uint64
	OpenFDs    int
	MaxFDs     string
	OOMScore   int
}

type Root struct {
	t    testing.TB
	Proc string
	Sys  string
}

// New creates proc and sys roots with host-wide files for an 8 GiB machine.
func New(t testing.TB) *Root {
	t.Helper()
	base := t.TempDir()
	r := &Root{t: t, Proc: filepath.Join(base, "proc"), Sys: filepath.Join(base, "sys")}
	r.mkdir(r.Proc)
	r.mkdir(filepath.Join(r.Sys, "class", "net"))
	r.SetLoadAvg("0.50 0.40 0.30 1/200 4242")
	r.SetMeminfo(8*1024*1024, 6*1024*1024)
	r.SetCPU(1000, 0, 500, 8000, 100)
	return r
}

func (r *Root) SetLoadAvg(line string) {
	r.write(filepath.Join(r.Proc, "loadavg"), line+"\n")
}

// SetMeminfo writes MemTotal and MemAvailable in KiB, plus a fixed swap section.
func (r *Root) SetMeminfo(totalKiB, availableKiB uint64) {
	r.write(filepath.Join(r.Proc, "meminfo"), fmt.Sprintf(
		"MemTotal:       %d kB\nMemFree:        %d kB\nMemAvailable:   %d kB\nSwapTotal:      2097152 kB\nSwapFree:       2097152 kB\n",
		totalKiB, availableKiB/2, availableKiB,
	))
}

func (r *Root) SetCPU(user, nice, system, idle, iowait uint64) {
	r.write(filepath.Join(r.Proc, "stat"), fmt.Sprintf(
		"cpu  %d %d %d %d %d 0 0 0 0 0\ncpu0 %d %d %d %d %d 0 0 0 0 0\nbtime 1700000000\n",
		user, nice, system, idle, iowait, user, nice, system, idle, iowait,
	))
}

func (r *Root) AddInterface(name string, up bool, rxBytes, txBytes uint64) {
	dir := filepath.Join(r.Sys, "class", "net", name)
	r.mkdir(filepath.Join(dir, "statistics"))
	state := "down"
	if up {
		state = "up"
	}
	r.write(filepath.Join(dir, "operstate"), state+"\n")
	stats := map[string]uint64{
		"rx_bytes": rxBytes, "tx_bytes": txBytes,
		"rx_packets": rxBytes / 100, "tx_packets": txBytes / 100,
		"rx_errors": 0, "tx_errors": 0, "rx_dropped": 0, "tx_dropped": 0,
	}
	for k, v := range stats {
		r.write(filepath.Join(dir, "statistics", k), strconv.FormatUint(v, 10)+"\n")
	}
}

// WriteProc creates or overwrites <proc>/<pid>.
func (r *Root) WriteProc(p Proc) {
	r.t.Helper()
	if p.Comm == "" {
		p.Comm = "postgres"
	}
	if p.State == "" {
		p.State = "S"
	}
	if p.Threads == 0 {
		p.Threads = 1
	}
	if p.MaxFDs == "" {
		p.MaxFDs = "1024"
	}
	if p.Cgroup == "" {
		p.Cgroup = "0::/system.slice/" + p.Comm + ".service"
	}
	if len(p.Cmdline) == 0 {
		p.Cmdline = []string{"/usr/bin/" + p.Comm}
	}

	dir := r.PIDDir(p.PID)
	r.mkdir(dir)
	r.write(filepath.Join(dir, "stat"), StatLine(p))
	r.write(filepath.Join(dir, "comm"), p.Comm+"\n")
	r.write(filepath.Join(dir, "cmdline"), strings.Join(p.Cmdline, "\x00")+"\x00")
	r.write(filepath.Join(dir, "cgroup"), p.Cgroup+"\n")
	r.write(filepath.Join(dir, "status"), fmt.Sprintf(
		"Name:\t%s\nState:\t%s (sleeping)\nVmRSS:\t%d kB\nVmSwap:\t0 kB\nThreads:\t%d\n",
		p.Comm, p.State, p.RSSPages*4, p.Threads,
	))
	r.write(filepath.Join(dir, "io"), fmt.Sprintf(
		"rchar: 0\nwchar: 0\nsyscr: 0\nsyscw: 0\nread_bytes: %d\nwrite_bytes: %d\ncancelled_write_bytes: 0\n",
		p.ReadBytes, p.WriteBytes,
	))
	r.write(filepath.Join(dir, "limits"), fmt.Sprintf(
		"Limit                     Soft Limit           Hard Limit           Units     \n"+
			"Max cpu time              unlimited            unlimited            seconds   \n"+
			"Max open files            %-20s 1048576              files     \n",
		p.MaxFDs,
	))
	r.write(filepath.Join(dir, "oom_score"), strconv.Itoa(p.OOMScore)+"\n")

	fdDir := filepath.Join(dir, "fd")
	_ = os.RemoveAll(fdDir)
	r.mkdir(fdDir)
	for i := 0; i < p.OpenFDs; i++ {
		r.write(filepath.Join(fdDir, strconv.Itoa(i)), "")
	}
}

// StatLine renders a proc(5) stat line with utime, stime, num_threads, starttime, vsize and
// rss in their documented positions.
func StatLine(p Proc) string {
	return fmt.Sprintf("%d (%s) %s 1 %d %d 0 -1 4194560 100 0 0 0 %d %d 0 0 20 0 %d 0 %d %d %d 18446744073709551615\n",
		p.PID, p.Comm, p.State, p.PID, p.PID, p.Utime, p.Stime, p.Threads, p.StartTime, p.VSize, p.RSSPages)
}

func (r *Root) RemoveProc(pid int) {
	r.t.Helper()
	if err := os.RemoveAll(r.PIDDir(pid)); err != nil {
		r.t.Fatalf("remove pid %d: %v", pid, err)
	}
}

// RemoveFile deletes one file below <proc>/<pid>, simulating an unreadable source.
func (r *Root) RemoveFile(pid int, name string) {
	r.t.Helper()
	if err := os.RemoveAll(filepath.Join(r.PIDDir(pid), name)); err != nil {
		r.t.Fatalf("remove %s of pid %d: %v", name, pid, err)
	}
}

// MakeUnreadable replaces one file below <proc>/<pid> with a directory, so reading it fails
// with EISDIR while the pid itself stays present. Permission bits do not stop root.
func (r *Root) MakeUnreadable(pid int, name string) {
	r.t.Helper()
	path := filepath.Join(r.PIDDir(pid), name)
	if err := os.RemoveAll(path); err != nil {
		r.t.Fatalf("remove %s of pid %d: %v", name, pid, err)
	}
	r.mkdir(path)
}

// WriteFile overwrites one file below <proc>/<pid>.
func (r *Root) WriteFile(pid int, name, content string) {
	r.write(filepath.Join(r.PIDDir(pid), name), content)
}

func (r *Root) PIDDir(pid int) string {
	return filepath.Join(r.Proc, strconv.Itoa(pid))
}

func (r *Root) mkdir(path string) {
	r.t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		r.t.Fatalf("mkdir %s: %v", path, err)
	}
}

func (r *Root) write(path, content string) {
	r.t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		r.t.Fatalf("write %s: %v", path, err)
	}
}

package process

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db-health-agent/internal/config"
	"db-health-agent/internal/procfstest"
	"db-health-agent/internal/system"
)

func newTestScanner(t *testing.T, root *procfstest.Root, w config.WatchConfig) *Scanner {
	t.Helper()
	pred, err := NewPredicate(w)
	require.NoError(t, err)
	fsys := system.NewFS(root.Proc, root.Sys, "", time.Second)
	return NewScanner(fsys, pred, 4, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func pids(cands []Candidate) []int {
	out := make([]int, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.PID)
	}
	return out
}

func TestNewPredicateRequiresCriteria(t *testing.T) {
	_, err := NewPredicate(config.WatchConfig{})
	require.Error(t, err)

	_, err = NewPredicate(config.WatchConfig{NamePattern: "("})
	require.Error(t, err)
}

func TestScannerMatchesByName(t *testing.T) {
	root := procfstest.New(t)
	root.WriteProc(procfstest.Proc{PID: 300, Comm: "postgres", StartTime: 1})
	root.WriteProc(procfstest.Proc{PID: 20, Comm: "postgres", StartTime: 1})
	root.WriteProc(procfstest.Proc{PID: 21, Comm: "nginx", StartTime: 1})
	require.NoError(t, os.MkdirAll(filepath.Join(root.Proc, "self"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root.Proc, "sys"), 0o755))

	s := newTestScanner(t, root, config.WatchConfig{NamePattern: "^postgres$"})
	require.NoError(t, s.Open())

	cands, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{20, 300}, pids(cands))
	assert.Equal(t, "postgres", cands[0].Command)
}

func TestScannerCriteriaAreAnded(t *testing.T) {
	root := procfstest.New(t)
	root.WriteProc(procfstest.Proc{PID: 10, Comm: "mysqld", StartTime: 1, Cgroup: "0::/system.slice/mysql.service"})
	root.WriteProc(procfstest.Proc{PID: 11, Comm: "mysqld", StartTime: 1, Cgroup: "0::/user.slice/session-3.scope"})
	root.WriteProc(procfstest.Proc{PID: 12, Comm: "mysqld", StartTime: 1, Cgroup: "0::/system.slice/mysql.service",
		Cmdline: []string{"mysqld", "--defaults-file=/etc/test.cnf"}})

	s := newTestScanner(t, root, config.WatchConfig{
		NamePattern:    "mysqld",
		CgroupPattern:  `^/system\.slice/mysql\.service$`,
		CmdlinePattern: `^/usr/bin/mysqld`,
	})
	cands, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{10}, pids(cands))
}

func TestScannerPIDList(t *testing.T) {
	root := procfstest.New(t)
	root.WriteProc(procfstest.Proc{PID: 5, Comm: "redis-server", StartTime: 1})
	root.WriteProc(procfstest.Proc{PID: 6, Comm: "redis-server", StartTime: 1})

	s := newTestScanner(t, root, config.WatchConfig{PIDs: []int{6, 5, 404}})
	cands, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6}, pids(cands), "listed pids that do not exist are not candidates")
	assert.Equal(t, "redis-server", cands[1].Command)

	s = newTestScanner(t, root, config.WatchConfig{PIDs: []int{5, 6}, NamePattern: "nope"})
	cands, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestScannerFlagsUnreadableProcesses(t *testing.T) {
	root := procfstest.New(t)
	root.WriteProc(procfstest.Proc{PID: 30, Comm: "postgres", StartTime: 1})
	root.WriteProc(procfstest.Proc{PID: 31, Comm: "postgres", StartTime: 1})
	root.WriteProc(procfstest.Proc{PID: 32, Comm: "postgres", StartTime: 1})
	root.MakeUnreadable(31, "comm")
	root.MakeUnreadable(32, "cgroup")

	s := newTestScanner(t, root, config.WatchConfig{NamePattern: "^postgres$", CgroupPattern: "postgres"})
	cands, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{30, 31, 32}, pids(cands))
	assert.False(t, cands[0].Unreadable)
	assert.True(t, cands[1].Unreadable, "comm unreadable leaves the pid undecided")
	assert.True(t, cands[2].Unreadable, "cgroup unreadable after the name matched")
	assert.Equal(t, "postgres", cands[2].Command)

	root.RemoveProc(31)
	cands, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{30, 32}, pids(cands), "a pid that is gone is not a candidate")
}

func TestScannerOpenFailsOnMissingRoot(t *testing.T) {
	root := procfstest.New(t)
	pred, err := NewPredicate(config.WatchConfig{NamePattern: "x"})
	require.NoError(t, err)
	fsys := system.NewFS(filepath.Join(root.Proc, "absent"), root.Sys, "", time.Second)
	s := NewScanner(fsys, pred, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, s.Open())

	_, err = s.Scan(context.Background())
	require.Error(t, err)
}

func TestMatchCgroup(t *testing.T) {
	raw := []byte("12:memory:/docker/abc\n0::/system.slice/postgresql@15-main.service\n")
	pred, err := NewPredicate(config.WatchConfig{CgroupPattern: `postgresql@.*\.service`})
	require.NoError(t, err)
	assert.True(t, matchCgroup(pred.cgroup, raw))
	assert.False(t, matchCgroup(pred.cgroup, []byte("0::/user.slice\n")))
}

package system

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := bounded(context.Background(), 20*time.Millisecond, "/proc/1/stat", func() ([]byte, error) {
		<-release
		return nil, nil
	})
	require.ErrorIs(t, err, ErrReadTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBoundedHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bounded(ctx, time.Second, "x", func() (int, error) { return 1, nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestFSPaths(t *testing.T) {
	fsys := NewFS("/host/proc", "/host/sys", "/host", 0)
	assert.Equal(t, "/host/proc/42/stat", fsys.ProcPath("42", "stat"))
	assert.Equal(t, "/host/sys/class/net", fsys.SysPath("class", "net"))
	assert.Equal(t, "/host/var/lib/postgresql", fsys.HostPath("/var/lib/postgresql"))
	assert.Equal(t, defaultReadTimeout, fsys.ReadTimeout)

	noHost := NewFS("/proc", "/sys", "", time.Second)
	assert.Equal(t, "/data", noHost.HostPath("/data"))
}

func TestFSReadAndCheck(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loadavg"), []byte("1 2 3\n"), 0o644))
	fsys := NewFS(dir, filepath.Join(dir, "missing"), "", time.Second)

	require.NoError(t, fsys.CheckProcRoot())
	require.Error(t, fsys.CheckSysRoot())

	raw, err := fsys.ReadFile(context.Background(), fsys.ProcPath("loadavg"))
	require.NoError(t, err)
	assert.Equal(t, "1 2 3\n", string(raw))

	names, err := fsys.ReadDirNames(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"loadavg"}, names)

	_, err = fsys.ReadFile(context.Background(), fsys.ProcPath("nope"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

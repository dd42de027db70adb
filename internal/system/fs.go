package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/common"
)

var ErrReadTimeout = errors.New("pseudo-file read timed out")

const defaultReadTimeout = 500 * time.Millisecond

// FS resolves pseudo-filesystem paths against configurable roots so the agent can run against
// a host's /proc and /sys bind-mounted into a container under other names.
type FS struct {
	ProcRoot    string
	SysRoot     string
	HostRoot    string
	ReadTimeout time.Duration
}

func NewFS(procRoot, sysRoot, hostRoot string, readTimeout time.Duration) FS {
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	return FS{ProcRoot: procRoot, SysRoot: sysRoot, HostRoot: hostRoot, ReadTimeout: readTimeout}
}

func (f FS) ProcPath(elem ...string) string {
	return filepath.Join(append([]string{f.ProcRoot}, elem...)...)
}

func (f FS) SysPath(elem ...string) string {
	return filepath.Join(append([]string{f.SysRoot}, elem...)...)
}

// HostPath maps a path as seen by the host (a mountpoint from mountinfo) into this agent's view.
func (f FS) HostPath(path string) string {
	if f.HostRoot == "" {
		return path
	}
	return filepath.Join(f.HostRoot, path)
}

// CheckProcRoot fails when the process root cannot be listed.
func (f FS) CheckProcRoot() error {
	if _, err := os.ReadDir(f.ProcRoot); err != nil {
		return fmt.Errorf("read proc root %s: %w", f.ProcRoot, err)
	}
	return nil
}

func (f FS) CheckSysRoot() error {
	if _, err := os.ReadDir(f.SysRoot); err != nil {
		return fmt.Errorf("read sys root %s: %w", f.SysRoot, err)
	}
	return nil
}

// ReadFile reads one pseudo-file with its own deadline. A read stuck in the kernel is abandoned;
// its goroutine finishes on its own and the result is discarded.
func (f FS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return bounded(ctx, f.ReadTimeout, path, func() ([]byte, error) {
		return os.ReadFile(path)
	})
}

// ReadDirNames lists a directory with the same per-read deadline as ReadFile.
func (f FS) ReadDirNames(ctx context.Context, path string) ([]string, error) {
	return bounded(ctx, f.ReadTimeout, path, func() ([]string, error) {
		d, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer d.Close()
		return d.Readdirnames(-1)
	})
}

// GopsutilContext points gopsutil at the configured roots instead of the agent's own /proc.
func (f FS) GopsutilContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, common.EnvKey, common.EnvMap{
		common.HostProcEnvKey: f.ProcRoot,
		common.HostSysEnvKey:  f.SysRoot,
	})
}

type readResult[T any] struct {
	value T
	err   error
}

func bounded[T any](ctx context.Context, timeout time.Duration, path string, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	done := make(chan readResult[T], 1)
	go func() {
		v, err := fn()
		done <- readResult[T]{value: v, err: err}
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case res := <-done:
		return res.value, res.err
	case <-t.C:
		return zero, fmt.Errorf("%s: %w", path, ErrReadTimeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

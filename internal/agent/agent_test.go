package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db-health-agent/internal/config"
	"db-health-agent/internal/model"
	"db-health-agent/internal/procfstest"
	"db-health-agent/internal/stream"
)

func testConfig(root *procfstest.Root, dbPath string) config.Config {
	return config.Config{
		NodeID:          "db-01",
		Hostname:        "db-01.internal",
		AgentVersion:    config.HardcodedVersion,
		ProbeListenAddr: "127.0.0.1:0",
		ProcRoot:        root.Proc,
		SysRoot:         root.Sys,
		ReadTimeout:     time.Second,
		ClockTicks:      100,
		PageSize:        4096,
		PollInterval:    30 * time.Millisecond,
		PollJitter:      5 * time.Millisecond,
		ShutdownTimeout: time.Second,
		WorkerPoolSize:  2,
		Watch:           config.WatchConfig{NamePattern: "^postgres$"},
		Thresholds: config.Thresholds{
			CPUSaturationPercent:  90,
			CPUSaturationCycles:   3,
			MemoryDegradedBytes:   1 << 30,
			FDDegradedPercent:     80,
			FDCriticalPercent:     95,
			SystemMemAvailablePct: 5,
			HysteresisCycles:      5,
		},
		StreamMode:       config.StreamModeSQLite,
		SQLitePath:       dbPath,
		SQLiteRetention:  100,
		SinkWriteTimeout: time.Second,
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAgentJournalsCycles(t *testing.T) {
	root := procfstest.New(t)
	root.WriteProc(procfstest.Proc{PID: 100, StartTime: 5000, RSSPages: 1024, OpenFDs: 3})
	root.WriteProc(procfstest.Proc{PID: 200, Comm: "bash", StartTime: 6000})
	dbPath := filepath.Join(t.TempDir(), "reports.db")

	a, err := New(context.Background(), testConfig(root, dbPath), discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	require.Eventually(t, func() bool { return a.health.lastCycle.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	a.shutdown(context.Background())

	journal, err := stream.NewSQLiteSink(context.Background(), dbPath, 0, discard())
	require.NoError(t, err)
	defer journal.Close(context.Background())

	reports, err := journal.Reports(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, reports)

	// Intermediate reports may be replaced before delivery; the final one is always flushed.
	latest := reports[0]
	assert.Equal(t, a.health.lastCycle.Load(), latest.Cycle)
	assert.Equal(t, "db-01", latest.NodeID)
	require.Len(t, latest.Processes, 1)
	assert.Equal(t, 100, latest.Processes[0].Identity.PID)
	require.Len(t, latest.Verdicts, 1)
	assert.Equal(t, model.LevelHealthy, latest.Verdicts[0].Level)
}

func TestAgentFatalStartupWithoutProcRoot(t *testing.T) {
	root := procfstest.New(t)
	cfg := testConfig(root, filepath.Join(t.TempDir(), "reports.db"))
	cfg.ProcRoot = filepath.Join(t.TempDir(), "missing")

	_, err := New(context.Background(), cfg, discard())
	require.ErrorIs(t, err, ErrFatalStartup)
}

func TestAgentMissingSysRootIsNotFatal(t *testing.T) {
	root := procfstest.New(t)
	cfg := testConfig(root, filepath.Join(t.TempDir(), "reports.db"))
	cfg.SysRoot = filepath.Join(t.TempDir(), "missing")

	a, err := New(context.Background(), cfg, discard())
	require.NoError(t, err)
	require.NoError(t, a.sink.Close(context.Background()))
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "warn", true).Info("hidden")
	newLogger(&buf, "warn", true).Warn("shown", "pid", 42)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, float64(42), line["pid"])

	buf.Reset()
	newLogger(&buf, "debug", false).Debug("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}

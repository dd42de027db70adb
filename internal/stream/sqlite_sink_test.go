package stream

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db-health-agent/internal/model"
)

func TestSQLiteSinkJournalsWithRetention(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reports.db")
	sink, err := NewSQLiteSink(ctx, path, 3, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close(ctx) })

	for i := 1; i <= 5; i++ {
		r := model.Report{
			ID:          "report-" + strconv.Itoa(i),
			NodeID:      "db-01",
			Cycle:       uint64(i),
			CompletedAt: time.Unix(1700000000+int64(i), 0),
			Verdicts: []model.HealthVerdict{{
				Subject: model.IdentityKey{PID: 42, StartTicks: 7},
				Level:   model.LevelDegraded,
				Reasons: []model.Reason{model.ReasonMemoryThreshold},
			}},
			Stats: model.CycleStats{WorstLevel: model.LevelDegraded},
		}
		require.NoError(t, sink.SendReport(ctx, r))
	}

	got, err := sink.Reports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "report-5", got[0].ID)
	assert.Equal(t, "report-3", got[2].ID)
	require.Len(t, got[0].Verdicts, 1)
	assert.Equal(t, model.LevelDegraded, got[0].Verdicts[0].Level)
	assert.Equal(t, model.IdentityKey{PID: 42, StartTicks: 7}, got[0].Verdicts[0].Subject)
}

func TestSQLiteSinkResendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	sink, err := NewSQLiteSink(ctx, filepath.Join(t.TempDir(), "reports.db"), 0, discardLogger())
	require.NoError(t, err)

	r := model.Report{ID: "same", NodeID: "db-01", CompletedAt: time.Now()}
	require.NoError(t, sink.SendReport(ctx, r))
	require.NoError(t, sink.SendReport(ctx, r))

	got, err := sink.Reports(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, sink.Close(ctx))
	require.Error(t, sink.SendReport(ctx, r))
	require.NoError(t, sink.Close(ctx))
}

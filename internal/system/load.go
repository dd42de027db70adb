package system

import (
	"context"

	"github.com/shirou/gopsutil/v3/load"

	"db-health-agent/internal/model"
)

var loadAvg = load.AvgWithContext

func ReadLoadAverage(ctx context.Context, fs FS) (model.LoadAverage, error) {
	gctx := fs.GopsutilContext(ctx)
	avg, err := bounded(ctx, fs.ReadTimeout, fs.ProcPath("loadavg"), func() (*load.AvgStat, error) {
		return loadAvg(gctx)
	})
	if err != nil {
		return model.LoadAverage{}, err
	}
	return model.LoadAverage{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}, nil
}

package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db-health-agent/internal/model"
	"db-health-agent/internal/system"
)

var host = system.HostConstants{ClockTicks: 100, PageSize: 4096}

func sample(ticks, read, write uint64, at time.Time) model.ProcessRecord {
	return model.ProcessRecord{
		PID:           7,
		Identity:      model.IdentityKey{PID: 7, StartTicks: 42},
		CPUTicksTotal: model.Uint64(ticks),
		IOReadBytes:   model.Uint64(read),
		IOWriteBytes:  model.Uint64(write),
		ObservedAt:    at,
	}
}

func TestDeriveRatesFirstObservationIsUnknown(t *testing.T) {
	cur := sample(100, 100, 100, time.Now())
	assert.Equal(t, 0, deriveRates(&cur, nil, host))
	assert.Nil(t, cur.Rates.CPUPercent)
	assert.Nil(t, cur.Rates.IOReadBytesPerSec)
	assert.Nil(t, cur.Rates.IOWriteBytesPerSec)
	assert.Nil(t, cur.Rates.ElapsedSeconds)
}

func TestDeriveRatesDelta(t *testing.T) {
	at := time.Unix(1700000000, 0)
	prev := sample(100, 1000, 0, at)
	cur := sample(150, 2000, 0, at.Add(10*time.Second))

	require.Equal(t, 0, deriveRates(&cur, &prev, host))
	require.NotNil(t, cur.Rates.CPUPercent)
	// 50 ticks at 100 Hz over 10s is 5% of one core
	assert.InDelta(t, 5.0, *cur.Rates.CPUPercent, 1e-9)
	assert.InDelta(t, 100.0, *cur.Rates.IOReadBytesPerSec, 1e-9)
	require.NotNil(t, cur.Rates.IOWriteBytesPerSec)
	assert.Equal(t, 0.0, *cur.Rates.IOWriteBytesPerSec, "an idle counter is a real zero")
	assert.InDelta(t, 10.0, *cur.Rates.ElapsedSeconds, 1e-9)
}

func TestDeriveRatesCounterRegression(t *testing.T) {
	at := time.Unix(1700000000, 0)
	prev := sample(500, 1000, 1000, at)
	cur := sample(400, 2000, 900, at.Add(5*time.Second))

	assert.Equal(t, 2, deriveRates(&cur, &prev, host))
	assert.Nil(t, cur.Rates.CPUPercent)
	assert.Nil(t, cur.Rates.IOWriteBytesPerSec)
	require.NotNil(t, cur.Rates.IOReadBytesPerSec)
	assert.InDelta(t, 200.0, *cur.Rates.IOReadBytesPerSec, 1e-9)
}

func TestDeriveRatesNeedsElapsedTimeAndSameIdentity(t *testing.T) {
	at := time.Unix(1700000000, 0)
	prev := sample(100, 0, 0, at)
	cur := sample(200, 0, 0, at)
	deriveRates(&cur, &prev, host)
	assert.Nil(t, cur.Rates.CPUPercent)

	other := sample(100, 0, 0, at)
	other.Identity.StartTicks = 1
	cur = sample(200, 0, 0, at.Add(time.Second))
	deriveRates(&cur, &other, host)
	assert.Nil(t, cur.Rates.CPUPercent)

	unknown := sample(100, 0, 0, at)
	unknown.CPUTicksTotal = nil
	cur = sample(200, 0, 0, at.Add(time.Second))
	assert.Equal(t, 0, deriveRates(&cur, &unknown, host))
	assert.Nil(t, cur.Rates.CPUPercent)
	assert.NotNil(t, cur.Rates.IOReadBytesPerSec)
}

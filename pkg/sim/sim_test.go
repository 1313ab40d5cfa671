package sim

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tosih/motronic-fuel-trim/pkg/models"
	"github.com/tosih/motronic-fuel-trim/pkg/stft"
	"github.com/tosih/motronic-fuel-trim/pkg/trim"
)

func newRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	calib := models.DefaultStftConfig()
	table, err := stft.NewTable(calib)
	require.NoError(t, err)
	return NewRunner(New(cfg), trim.NewEngine(calib, table))
}

func TestTrimConverges(t *testing.T) {
	t.Parallel()

	r := newRunner(t, DefaultConfig())

	// One full sweep of the drive cycle is ~1047 periods
	const sweep = 1047
	var first, last [models.BankCount]float64
	for n := 1; n <= 6*sweep; n++ {
		c := r.Step()
		for b := 0; b < models.BankCount; b++ {
			dev := math.Abs(c.State.Sensors[models.BankSensor(models.FuelBank(b))].Lambda - 1)
			switch {
			case n <= sweep:
				first[b] += dev
			case n > 5*sweep:
				last[b] += dev
			}
		}
	}

	assert.Zero(t, r.DecodeErrors)
	for b := 0; b < models.BankCount; b++ {
		assert.Less(t, last[b], first[b]/2, "bank %d", b)
	}
}

func TestSensorDropoutHoldsCorrection(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.DropoutBank = 1
	cfg.DropoutStart = 300
	cfg.DropoutCycles = 50
	r := newRunner(t, cfg)

	var before models.ClosedLoopFuelResult
	for {
		c := r.Step()
		if c.Number == cfg.DropoutStart-1 {
			before = c.Result
			break
		}
	}

	for i := 0; i < cfg.DropoutCycles; i++ {
		c := r.Step()
		assert.Equal(t, before.Banks[1], c.Result.Banks[1], "cycle %d", c.Number)
		assert.True(t, c.Status.Banks[1].Held)
		assert.False(t, c.Status.Banks[0].Held)
	}

	c := r.Step()
	assert.False(t, c.Status.Banks[1].Held)
}

func TestTuningSessionPassesThrough(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.TuningStart = 200
	cfg.TuningCycles = 30
	r := newRunner(t, cfg)
	holdoff := models.DefaultStftConfig().TuningHoldoff
	end := cfg.TuningStart + cfg.TuningCycles + int(holdoff/cfg.Period)

	for n := 1; n <= end+5; n++ {
		c := r.Step()
		tuning := n >= cfg.TuningStart && n < end
		assert.Equal(t, tuning, c.Status.Tuning, "cycle %d", n)
		if tuning {
			assert.Equal(t, models.NewClosedLoopFuelResult(), c.Result, "cycle %d", n)
		}
	}
}

func TestColdStartHolds(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ColdStart = true
	r := newRunner(t, cfg)

	for i := 0; i < 100; i++ {
		c := r.Step()
		assert.Equal(t, models.NewClosedLoopFuelResult(), c.Result)
		assert.True(t, c.Status.Banks[0].Held)
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	r := newRunner(t, DefaultConfig())
	var seen []int
	require.NoError(t, r.Run(context.Background(), 25, func(c Cycle) {
		seen = append(seen, c.Number)
	}))
	assert.Len(t, seen, 25)
	assert.Equal(t, 25, seen[24])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Run(ctx, 0, nil), context.Canceled)
}

func TestFuelErrorIsPlausible(t *testing.T) {
	t.Parallel()

	calib := models.DefaultStftConfig()
	for rpm := 800.0; rpm <= 6000; rpm += 200 {
		for load := 10.0; load <= 95; load += 5 {
			for b := 0; b < models.BankCount; b++ {
				v := FuelError(models.FuelBank(b), rpm, load)
				assert.Greater(t, v, calib.MinCorrection)
				assert.Less(t, v, calib.MaxCorrection)
			}
		}
	}
}

package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClosedLoopFuelResultIsPassThrough(t *testing.T) {
	t.Parallel()

	r := NewClosedLoopFuelResult()
	require.Len(t, r.Banks, BankCount)
	for i, v := range r.Banks {
		assert.Equal(t, 1.0, v, "bank %d", i)
	}
}

func TestBankSensor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SensorLambda1, BankSensor(0))
	assert.Equal(t, SensorLambda2, BankSensor(1))
	assert.Equal(t, SensorNone, BankSensor(7))
	assert.Equal(t, SensorNone, BankSensor(-1))

	for b := 0; b < BankCount; b++ {
		assert.True(t, BankSensor(FuelBank(b)).Valid(), "bank %d needs a sensor", b)
	}
}

func TestSensorTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "none", SensorNone.String())
	assert.Equal(t, "lambda1", SensorLambda1.String())
	assert.Equal(t, "lambda2", SensorLambda2.String())
	assert.Equal(t, "sensor(9)", SensorType(9).String())
	assert.False(t, SensorNone.Valid())
	assert.False(t, SensorCount.Valid())
}

func TestDefaultStftConfigIsValid(t *testing.T) {
	t.Parallel()

	cfg := DefaultStftConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 64, cfg.NumBins())
}

func TestStftConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*StftConfig)
		field  string
	}{
		{
			name:   "zero rpm bins",
			mutate: func(c *StftConfig) { c.RpmBins = nil },
			field:  "rpm_bins",
		},
		{
			name:   "zero load bins",
			mutate: func(c *StftConfig) { c.LoadBins = []float64{} },
			field:  "load_bins",
		},
		{
			name:   "descending edges",
			mutate: func(c *StftConfig) { c.RpmBins = []float64{1000, 500} },
			field:  "rpm_bins",
		},
		{
			name:   "repeated edge",
			mutate: func(c *StftConfig) { c.LoadBins = []float64{20, 20} },
			field:  "load_bins",
		},
		{
			name:   "nan edge",
			mutate: func(c *StftConfig) { c.LoadBins = []float64{math.NaN()} },
			field:  "load_bins",
		},
		{
			name:   "clamp excludes 1.0",
			mutate: func(c *StftConfig) { c.MinCorrection = 1.1 },
			field:  "min_correction/max_correction",
		},
		{
			name:   "inverted lambda window",
			mutate: func(c *StftConfig) { c.MinLambda, c.MaxLambda = 1.2, 0.8 },
			field:  "min_lambda/max_lambda",
		},
		{
			name:   "negative gain",
			mutate: func(c *StftConfig) { c.Ki = -1 },
			field:  "ki",
		},
		{
			name:   "negative fault cycles",
			mutate: func(c *StftConfig) { c.SensorFaultCycles = -1 },
			field:  "sensor_fault_cycles",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultStftConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrConfiguration)

			var cerr *ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestValidateBinsNilConfig(t *testing.T) {
	t.Parallel()

	var cfg *StftConfig
	assert.ErrorIs(t, cfg.ValidateBins(), ErrConfiguration)
}

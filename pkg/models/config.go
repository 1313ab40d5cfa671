package models

import (
	"math"
	"time"
)

// StftConfig describes the short-term fuel trim grid and the limits that
// apply to learning. Bin edges must be strictly increasing; the number of
// edges is the number of bins on that axis.
type StftConfig struct {
	Name     string    `yaml:"name" json:"name"`
	RpmBins  []float64 `yaml:"rpm_bins" json:"rpmBins"`
	LoadBins []float64 `yaml:"load_bins" json:"loadBins"`

	// Correction clamp, as multipliers (e.g. 0.75 .. 1.25)
	MinCorrection float64 `yaml:"min_correction" json:"minCorrection"`
	MaxCorrection float64 `yaml:"max_correction" json:"maxCorrection"`

	// Update gate thresholds
	StartupDelay     time.Duration `yaml:"startup_delay" json:"startupDelay"`
	MinCoolantTemp   float64       `yaml:"min_coolant_temp" json:"minCoolantTemp"`
	MinSensorTemp    float64       `yaml:"min_sensor_temp" json:"minSensorTemp"`
	MinLambda        float64       `yaml:"min_lambda" json:"minLambda"`
	MaxLambda        float64       `yaml:"max_lambda" json:"maxLambda"`
	TransientHoldoff time.Duration `yaml:"transient_holdoff" json:"transientHoldoff"`

	// TuningHoldoff keeps learning suppressed for this long after the
	// tuning tool last wrote the VE table.
	TuningHoldoff time.Duration `yaml:"tuning_holdoff" json:"tuningHoldoff"`

	// SensorFaultCycles is how many consecutive held cycles count as a
	// sustained sensor outage. Zero disables the report.
	SensorFaultCycles int `yaml:"sensor_fault_cycles" json:"sensorFaultCycles"`

	// Correction policy parameters
	Kp       float64 `yaml:"kp" json:"kp"`
	Ki       float64 `yaml:"ki" json:"ki"`
	Deadband float64 `yaml:"deadband" json:"deadband"`
}

// NumRpmBins returns the number of RPM bins
func (c *StftConfig) NumRpmBins() int { return len(c.RpmBins) }

// NumLoadBins returns the number of load bins
func (c *StftConfig) NumLoadBins() int { return len(c.LoadBins) }

// NumBins returns the size of the flattened RPM x load grid
func (c *StftConfig) NumBins() int { return len(c.RpmBins) * len(c.LoadBins) }

// ValidateBins checks only the grid layout. It is what the bin indexer needs.
func (c *StftConfig) ValidateBins() error {
	if c == nil {
		return &ConfigurationError{Field: "stft", Reason: "no configuration"}
	}
	if err := validateEdges("rpm_bins", c.RpmBins); err != nil {
		return err
	}
	return validateEdges("load_bins", c.LoadBins)
}

// Validate checks the whole configuration
func (c *StftConfig) Validate() error {
	if err := c.ValidateBins(); err != nil {
		return err
	}

	if !isFinite(c.MinCorrection) || !isFinite(c.MaxCorrection) {
		return &ConfigurationError{Field: "min_correction/max_correction", Reason: "must be finite"}
	}
	if c.MinCorrection <= 0 || c.MinCorrection > 1 || c.MaxCorrection < 1 {
		return &ConfigurationError{
			Field:  "min_correction/max_correction",
			Reason: "clamp must satisfy 0 < min <= 1 <= max",
		}
	}
	if !isFinite(c.MinLambda) || !isFinite(c.MaxLambda) || c.MinLambda >= c.MaxLambda {
		return &ConfigurationError{Field: "min_lambda/max_lambda", Reason: "min must be below max"}
	}
	params := []struct {
		name  string
		value float64
	}{
		{"kp", c.Kp},
		{"ki", c.Ki},
		{"deadband", c.Deadband},
	}
	for _, p := range params {
		if !isFinite(p.value) || p.value < 0 {
			return &ConfigurationError{Field: p.name, Reason: "must be finite and non-negative"}
		}
	}
	if c.StartupDelay < 0 || c.TransientHoldoff < 0 || c.TuningHoldoff < 0 {
		return &ConfigurationError{Field: "holdoff", Reason: "durations must not be negative"}
	}
	if c.SensorFaultCycles < 0 {
		return &ConfigurationError{Field: "sensor_fault_cycles", Reason: "must not be negative"}
	}

	return nil
}

func validateEdges(field string, edges []float64) error {
	if len(edges) == 0 {
		return &ConfigurationError{Field: field, Reason: "zero bins configured"}
	}
	for i, e := range edges {
		if !isFinite(e) {
			return &ConfigurationError{Field: field, Reason: "bin edge is not finite"}
		}
		if i > 0 && e <= edges[i-1] {
			return &ConfigurationError{Field: field, Reason: "bin edges must be strictly increasing"}
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// DefaultStftConfig returns the stock calibration: an 8x8 grid over
// 0-7000 RPM and 0-100% load with a +/-25% clamp.
func DefaultStftConfig() *StftConfig {
	return &StftConfig{
		Name:              "Default STFT",
		RpmBins:           []float64{0, 1000, 1800, 2600, 3400, 4200, 5200, 6200},
		LoadBins:          []float64{0, 15, 25, 35, 50, 65, 80, 95},
		MinCorrection:     0.75,
		MaxCorrection:     1.25,
		StartupDelay:      60 * time.Second,
		MinCoolantTemp:    60,
		MinSensorTemp:     600,
		MinLambda:         0.7,
		MaxLambda:         1.3,
		TransientHoldoff:  500 * time.Millisecond,
		TuningHoldoff:     5 * time.Second,
		SensorFaultCycles: 100,
		Kp:                0.1,
		Ki:                0.5,
		Deadband:          0.005,
	}
}

package gate

import (
	"math"

	"github.com/tosih/motronic-fuel-trim/pkg/models"
)

// Reason explains a gate verdict. It exists for diagnostics only.
type Reason int

const (
	ReasonOK Reason = iota
	ReasonUnknownSensor
	ReasonNoReading
	ReasonSensorCold
	ReasonOpenLoop
	ReasonCranking
	ReasonFuelCut
	ReasonStartupDelay
	ReasonCoolantCold
	ReasonTransient
	ReasonLambdaRange
)

var reasonNames = map[Reason]string{
	ReasonOK:            "ok",
	ReasonUnknownSensor: "unknown sensor",
	ReasonNoReading:     "no valid reading",
	ReasonSensorCold:    "sensor not ready",
	ReasonOpenLoop:      "open loop",
	ReasonCranking:      "cranking",
	ReasonFuelCut:       "overrun fuel cut",
	ReasonStartupDelay:  "startup delay",
	ReasonCoolantCold:   "coolant below threshold",
	ReasonTransient:     "transient holdoff",
	ReasonLambdaRange:   "lambda out of range",
}

func (r Reason) String() string {
	if n, ok := reasonNames[r]; ok {
		return n
	}
	return "unknown"
}

// UpdateGate decides whether a sensor's feedback may update the trim table
type UpdateGate struct {
	cfg *models.StftConfig
}

// NewUpdateGate returns a gate using the thresholds in cfg
func NewUpdateGate(cfg *models.StftConfig) *UpdateGate {
	return &UpdateGate{cfg: cfg}
}

// ShouldUpdateCorrection reports whether sensor feedback is trustworthy this
// cycle. Anything that cannot be determined counts as "do not update".
func (g *UpdateGate) ShouldUpdateCorrection(sensor models.SensorType, st *State) bool {
	return g.Check(sensor, st) == ReasonOK
}

// Check is ShouldUpdateCorrection with the first failing condition
func (g *UpdateGate) Check(sensor models.SensorType, st *State) Reason {
	if g == nil || g.cfg == nil || st == nil {
		return ReasonNoReading
	}

	reading, ok := st.Sensor(sensor)
	if !ok {
		return ReasonUnknownSensor
	}
	if !reading.Valid || !finite(reading.Lambda) || !finite(reading.Temperature) {
		return ReasonNoReading
	}
	if !reading.HeaterReady || reading.Temperature < g.cfg.MinSensorTemp {
		return ReasonSensorCold
	}

	eng := st.Engine
	switch {
	case !eng.ClosedLoop:
		return ReasonOpenLoop
	case eng.Cranking:
		return ReasonCranking
	case eng.FuelCut:
		return ReasonFuelCut
	case eng.RunTime < g.cfg.StartupDelay:
		return ReasonStartupDelay
	case !eng.CoolantValid || !finite(eng.CoolantTemp) || eng.CoolantTemp < g.cfg.MinCoolantTemp:
		return ReasonCoolantCold
	case eng.SinceTransient < g.cfg.TransientHoldoff:
		return ReasonTransient
	}

	if reading.Lambda < g.cfg.MinLambda || reading.Lambda > g.cfg.MaxLambda {
		return ReasonLambdaRange
	}

	return ReasonOK
}

// TuningGate reports live VE tuning sessions
type TuningGate struct {
	cfg *models.StftConfig
}

// NewTuningGate returns a gate using cfg.TuningHoldoff
func NewTuningGate(cfg *models.StftConfig) *TuningGate {
	return &TuningGate{cfg: cfg}
}

// CheckIfTuningVeNow reports whether the operator is tuning VE right now:
// the session flag is set, or the tool wrote the VE table within the holdoff.
func (g *TuningGate) CheckIfTuningVeNow(st *State) bool {
	if st == nil {
		return false
	}
	if st.Tuning.Active {
		return true
	}
	if g == nil || g.cfg == nil || !st.Tuning.VeWritten {
		return false
	}
	return st.Tuning.SinceVeWrite < g.cfg.TuningHoldoff
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

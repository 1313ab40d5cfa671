// Package gate decides, once per control cycle, whether feedback may drive
// trim learning. All inputs arrive through an explicit State value filled in
// by the caller; the gates keep no hidden globals.
package gate

import (
	"time"

	"github.com/tosih/motronic-fuel-trim/pkg/models"
)

// SensorReading is the latest sample from one feedback sensor
type SensorReading struct {
	Valid       bool    `json:"valid"`
	HeaterReady bool    `json:"heaterReady"`
	Lambda      float64 `json:"lambda"`
	Temperature float64 `json:"temperature"` // sensor element, °C
}

// EngineState is the run state relevant to closed-loop fueling
type EngineState struct {
	Rpm            float64       `json:"rpm"`
	Load           float64       `json:"load"`
	LambdaTarget   float64       `json:"lambdaTarget"` // 0 means stoichiometric
	CoolantTemp    float64       `json:"coolantTemp"`
	CoolantValid   bool          `json:"coolantValid"`
	ClosedLoop     bool          `json:"closedLoop"`
	Cranking       bool          `json:"cranking"`
	FuelCut        bool          `json:"fuelCut"`
	RunTime        time.Duration `json:"runTime"`
	SinceTransient time.Duration `json:"sinceTransient"`
}

// TuningSession is toggled by the tuning tool interface
type TuningSession struct {
	Active       bool          `json:"active"`
	VeWritten    bool          `json:"veWritten"`
	SinceVeWrite time.Duration `json:"sinceVeWrite"`
}

// State is everything the gates and the correction engine read in one cycle
type State struct {
	Engine  EngineState                       `json:"engine"`
	Sensors [models.SensorCount]SensorReading `json:"sensors"`
	Tuning  TuningSession                     `json:"tuning"`
	Period  time.Duration                     `json:"period"` // since the previous cycle
}

// Sensor returns the reading for s. ok is false for unknown sensors.
func (s *State) Sensor(t models.SensorType) (SensorReading, bool) {
	if s == nil || !t.Valid() {
		return SensorReading{}, false
	}
	return s.Sensors[t], true
}

// Target returns the commanded lambda, defaulting to 1.0
func (e EngineState) Target() float64 {
	if e.LambdaTarget > 0 {
		return e.LambdaTarget
	}
	return 1.0
}

// Package trim computes the closed-loop fuel correction once per control cycle.
package trim

import (
	"math"
	"time"

	"github.com/tosih/motronic-fuel-trim/pkg/diag"
	"github.com/tosih/motronic-fuel-trim/pkg/gate"
	"github.com/tosih/motronic-fuel-trim/pkg/models"
	"github.com/tosih/motronic-fuel-trim/pkg/stft"
)

// maxPeriod bounds the integration step when the scheduler stalls
const maxPeriod = time.Second

// BankStatus describes what happened to one bank in the last cycle
type BankStatus struct {
	Sensor     models.SensorType `json:"sensor"`
	Bin        int               `json:"bin"`
	Reason     string            `json:"reason"`
	Held       bool              `json:"held"`
	HeldCycles int               `json:"heldCycles"`
	Value      float64           `json:"value"`
}

// Status is the engine's view of the last cycle
type Status struct {
	Tuning      bool                         `json:"tuning"`
	ConfigError string                       `json:"configError,omitempty"`
	Banks       [models.BankCount]BankStatus `json:"banks"`
}

// Engine owns the STFT table and is its only writer. FuelClosedLoopCorrection
// must be called from a single goroutine.
type Engine struct {
	cfg    *models.StftConfig
	table  *stft.Table
	update *gate.UpdateGate
	tuning *gate.TuningGate
	policy Policy
	faults diag.Reporter

	last      [models.BankCount]float64
	hasLast   [models.BankCount]bool
	held      [models.BankCount]int
	configBad bool
	status    Status
}

// Option customises an Engine
type Option func(*Engine)

// WithPolicy replaces the default PI policy
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithFaults sets where trouble indicators are reported
func WithFaults(r diag.Reporter) Option {
	return func(e *Engine) { e.faults = r }
}

// NewEngine wires the gates, the policy and the table. The configuration is
// not validated here: it is checked every cycle and any error, in the grid or
// the clamp, degrades to pass-through.
func NewEngine(cfg *models.StftConfig, table *stft.Table, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		table:  table,
		update: gate.NewUpdateGate(cfg),
		tuning: gate.NewTuningGate(cfg),
		policy: NewPIPolicy(cfg),
		faults: diag.Discard{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Table returns the table the engine writes to
func (e *Engine) Table() *stft.Table {
	return e.table
}

// Status returns the per-bank outcome of the last cycle
func (e *Engine) Status() Status {
	return e.status
}

// FuelClosedLoopCorrection produces this cycle's per-bank fuel multipliers
func (e *Engine) FuelClosedLoopCorrection(st *gate.State) models.ClosedLoopFuelResult {
	result := models.NewClosedLoopFuelResult()

	if e.tuning.CheckIfTuningVeNow(st) {
		e.status.Tuning = true
		for b := range result.Banks {
			e.policy.Reset(models.FuelBank(b))
			e.record(models.FuelBank(b), 1.0)
			e.status.Banks[b] = BankStatus{
				Sensor: models.BankSensor(models.FuelBank(b)),
				Bin:    -1,
				Reason: "tuning",
				Value:  1.0,
			}
		}
		return result
	}
	e.status.Tuning = false

	var rpm, load float64
	if st != nil {
		rpm, load = sanitize(st.Engine.Rpm), sanitize(st.Engine.Load)
	}
	bin, binErr := e.computeBin(rpm, load)

	for b := range result.Banks {
		bank := models.FuelBank(b)
		result.Banks[b] = e.correctBank(bank, st, bin, binErr)
	}
	return result
}

func (e *Engine) correctBank(bank models.FuelBank, st *gate.State, bin int, binErr error) float64 {
	sensor := models.BankSensor(bank)
	reason := e.update.Check(sensor, st)
	bs := BankStatus{Sensor: sensor, Bin: bin, Reason: reason.String()}

	if binErr != nil {
		e.policy.Reset(bank)
		bs.Bin = -1
		bs.Value = 1.0
		e.status.Banks[bank] = bs
		e.record(bank, 1.0)
		return 1.0
	}

	if reason != gate.ReasonOK {
		v := e.hold(bank, bin)
		bs.Held = true
		bs.HeldCycles = e.held[bank]
		bs.Value = v
		e.status.Banks[bank] = bs
		return v
	}

	if e.held[bank] > 0 {
		if e.cfg.SensorFaultCycles > 0 && e.held[bank] >= e.cfg.SensorFaultCycles {
			e.faults.Clear(diag.FaultSensorUnavailable, "bank", int(bank))
		}
		e.held[bank] = 0
	}

	reading, _ := st.Sensor(sensor)
	current := e.table.Get(bank, bin)
	next := e.policy.Adjust(bank, current, Feedback{
		Lambda: reading.Lambda,
		Target: st.Engine.Target(),
		Period: clampPeriod(st.Period),
	})
	if math.IsNaN(next) || math.IsInf(next, 0) {
		next = current
	}
	next = e.clamp(next)

	e.table.Set(bank, bin, next)
	e.record(bank, next)

	bs.Value = next
	e.status.Banks[bank] = bs
	return next
}

// hold returns the bank's previous output unchanged. Before the first output
// the learned cell for the current operating point stands in.
func (e *Engine) hold(bank models.FuelBank, bin int) float64 {
	e.policy.Reset(bank)
	e.held[bank]++
	if e.cfg.SensorFaultCycles > 0 && e.held[bank] == e.cfg.SensorFaultCycles {
		e.faults.Raise(diag.FaultSensorUnavailable, "feedback sensor unavailable, holding trim",
			"bank", int(bank))
	}

	if e.hasLast[bank] {
		return e.last[bank]
	}
	v := e.clamp(e.table.Get(bank, bin))
	e.record(bank, v)
	return v
}

func (e *Engine) computeBin(rpm, load float64) (int, error) {
	var bin int
	err := e.cfg.Validate()
	if err == nil && !e.table.Matches(e.cfg) {
		// Calibration changed under a table built for another grid.
		err = &models.ConfigurationError{Field: "stft", Reason: "table does not match bin configuration"}
	}
	if err == nil {
		bin, err = stft.ComputeBin(rpm, load, e.cfg)
	}

	if err != nil {
		e.status.ConfigError = err.Error()
		if !e.configBad {
			e.configBad = true
			e.faults.Raise(diag.FaultStftConfig, err.Error())
		}
		return 0, err
	}

	if e.configBad {
		e.configBad = false
		e.status.ConfigError = ""
		e.faults.Clear(diag.FaultStftConfig)
	}
	return bin, nil
}

func (e *Engine) record(bank models.FuelBank, v float64) {
	e.last[bank] = v
	e.hasLast[bank] = true
}

func (e *Engine) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 1.0
	}
	return math.Min(math.Max(v, e.cfg.MinCorrection), e.cfg.MaxCorrection)
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, -1) {
		return 0
	}
	return v
}

func clampPeriod(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > maxPeriod {
		return maxPeriod
	}
	return d
}

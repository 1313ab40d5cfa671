// Package sim drives the trim engine with a simulated engine and wideband
// sensors. Everything it produces goes over encoded CAN frames so the decode
// path is exercised the same way a real bus would.
package sim

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/tosih/motronic-fuel-trim/pkg/canrx"
	"github.com/tosih/motronic-fuel-trim/pkg/gate"
	"github.com/tosih/motronic-fuel-trim/pkg/models"
)

// Config controls the simulated session
type Config struct {
	Period    time.Duration
	Seed      uint64
	ColdStart bool
	Noise     float64 // lambda noise amplitude

	// Sensor dropout on one bank
	DropoutBank   models.FuelBank
	DropoutStart  int
	DropoutCycles int

	// Live tuning session window
	TuningStart  int
	TuningCycles int
}

// DefaultConfig is a warm engine at a 10 ms control period
func DefaultConfig() Config {
	return Config{
		Period: 10 * time.Millisecond,
		Seed:   1,
		Noise:  0.005,
	}
}

// Tick is what the simulated vehicle emits for one control cycle
type Tick struct {
	Cycle  int
	Frames []canrx.Frame
	Tuning gate.TuningSession
	Period time.Duration
}

// Simulator is a small plant model: each bank has a fueling error that
// depends on the operating point, and the measured lambda is that error
// divided by the correction applied on the previous cycle.
type Simulator struct {
	cfg   Config
	rng   *rand.Rand
	cycle int
	t     float64

	runTime        time.Duration
	sinceTransient time.Duration
	prevLoad       float64
	coolant        float64
	sensorTemp     float64
}

// New returns a simulator for cfg
func New(cfg Config) *Simulator {
	if cfg.Period <= 0 {
		cfg.Period = DefaultConfig().Period
	}
	s := &Simulator{
		cfg:            cfg,
		rng:            rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		coolant:        88,
		sensorTemp:     780,
		runTime:        10 * time.Minute,
		sinceTransient: time.Minute,
		prevLoad:       21,
	}
	if cfg.ColdStart {
		s.coolant = 20
		s.sensorTemp = 20
		s.runTime = 0
	}
	return s
}

// FuelError returns the true mixture error for a bank at an operating point.
// A perfectly learned trim equals this value.
func FuelError(bank models.FuelBank, rpm, load float64) float64 {
	r := rpm / 7000
	l := load / 100
	if bank == 0 {
		return 1 + 0.08*math.Sin(math.Pi*r) - 0.04*l
	}
	return 1 - 0.06*math.Cos(math.Pi*l) + 0.03*r
}

// Step advances one control period. applied is the correction the engine
// returned for the previous cycle.
func (s *Simulator) Step(applied models.ClosedLoopFuelResult) Tick {
	dt := s.cfg.Period
	s.cycle++
	s.t += dt.Seconds()
	s.runTime += dt

	rpm := 850 + 3000*math.Pow(math.Sin(s.t*0.3), 2) + s.rng.Float64()*30
	load := 20 + 60*(rpm-850)/3000 + s.rng.Float64()*2

	if math.Abs(load-s.prevLoad)/dt.Seconds() > 400 {
		s.sinceTransient = 0
	} else {
		s.sinceTransient += dt
	}
	s.prevLoad = load

	if s.cfg.ColdStart {
		s.coolant = math.Min(s.coolant+0.5*dt.Seconds(), 88)
		s.sensorTemp = math.Min(s.sensorTemp+60*dt.Seconds(), 780)
	}

	eng := gate.EngineState{
		Rpm:            rpm,
		Load:           load,
		LambdaTarget:   1.0,
		CoolantTemp:    s.coolant,
		CoolantValid:   true,
		ClosedLoop:     true,
		Cranking:       s.runTime < 2*time.Second,
		RunTime:        s.runTime,
		SinceTransient: s.sinceTransient,
	}

	frames := []canrx.Frame{
		canrx.EncodeEngineFrame(eng),
		canrx.EncodeTimingFrame(eng),
	}

	for b := 0; b < models.BankCount; b++ {
		bank := models.FuelBank(b)
		correction := applied.Banks[b]
		if correction <= 0 {
			correction = 1
		}
		lambda := FuelError(bank, rpm, load)/correction + (s.rng.Float64()*2-1)*s.cfg.Noise

		reading := gate.SensorReading{
			Valid:       !s.droppedOut(bank),
			HeaterReady: s.sensorTemp >= 700,
			Lambda:      lambda,
			Temperature: s.sensorTemp,
		}
		frames = append(frames, canrx.EncodeLambdaFrame(models.BankSensor(bank), reading))
	}

	return Tick{
		Cycle:  s.cycle,
		Frames: frames,
		Tuning: s.tuning(),
		Period: dt,
	}
}

func (s *Simulator) droppedOut(bank models.FuelBank) bool {
	c := s.cfg
	return c.DropoutCycles > 0 && bank == c.DropoutBank &&
		s.cycle >= c.DropoutStart && s.cycle < c.DropoutStart+c.DropoutCycles
}

func (s *Simulator) tuning() gate.TuningSession {
	c := s.cfg
	if c.TuningCycles <= 0 || s.cycle < c.TuningStart {
		return gate.TuningSession{}
	}
	end := c.TuningStart + c.TuningCycles
	if s.cycle < end {
		return gate.TuningSession{Active: true, VeWritten: true}
	}
	// Session closed; the tool's last VE write ages from here
	return gate.TuningSession{
		VeWritten:    true,
		SinceVeWrite: time.Duration(s.cycle-end) * c.Period,
	}
}

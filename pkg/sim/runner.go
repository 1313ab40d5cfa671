package sim

import (
	"context"
	"time"

	"github.com/tosih/motronic-fuel-trim/pkg/canrx"
	"github.com/tosih/motronic-fuel-trim/pkg/gate"
	"github.com/tosih/motronic-fuel-trim/pkg/models"
	"github.com/tosih/motronic-fuel-trim/pkg/trim"
)

// Cycle is one completed control cycle
type Cycle struct {
	Number int                         `json:"cycle"`
	State  gate.State                  `json:"state"`
	Result models.ClosedLoopFuelResult `json:"result"`
	Status trim.Status                 `json:"status"`
}

// Runner feeds simulator frames into a gate.State and calls the engine once
// per cycle, like the fueling scheduler would.
type Runner struct {
	sim    *Simulator
	engine *trim.Engine
	state  gate.State
	last   models.ClosedLoopFuelResult

	// RealTime paces Run at the simulator period instead of running flat out
	RealTime bool
	// DecodeErrors counts frames that failed to decode
	DecodeErrors int
}

// NewRunner pairs a simulator with an engine
func NewRunner(s *Simulator, e *trim.Engine) *Runner {
	return &Runner{
		sim:    s,
		engine: e,
		last:   models.NewClosedLoopFuelResult(),
	}
}

// Step runs a single control cycle
func (r *Runner) Step() Cycle {
	tick := r.sim.Step(r.last)
	for i := range tick.Frames {
		if err := canrx.Apply(&r.state, &tick.Frames[i]); err != nil {
			r.DecodeErrors++
		}
	}
	r.state.Tuning = tick.Tuning
	r.state.Period = tick.Period

	r.last = r.engine.FuelClosedLoopCorrection(&r.state)
	return Cycle{
		Number: tick.Cycle,
		State:  r.state,
		Result: r.last,
		Status: r.engine.Status(),
	}
}

// Run executes cycles until the count is reached (cycles <= 0 runs until ctx
// is done). observe, if set, sees every cycle.
func (r *Runner) Run(ctx context.Context, cycles int, observe func(Cycle)) error {
	var tick <-chan time.Time
	if r.RealTime {
		ticker := time.NewTicker(r.sim.cfg.Period)
		defer ticker.Stop()
		tick = ticker.C
	}

	for n := 0; cycles <= 0 || n < cycles; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}

		c := r.Step()
		if observe != nil {
			observe(c)
		}
	}
	return nil
}

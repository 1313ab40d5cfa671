package trim

import (
	"math"
	"time"

	"github.com/tosih/motronic-fuel-trim/pkg/models"
)

// Feedback is what a policy sees for one bank in one cycle
type Feedback struct {
	Lambda float64
	Target float64
	Period time.Duration
}

// Policy turns sensor feedback into a new cell value. Its output is clamped
// by the engine, so a policy only has to move in the right direction.
type Policy interface {
	Adjust(bank models.FuelBank, current float64, fb Feedback) float64
	// Reset drops any per-bank history, called when feedback goes away
	Reset(bank models.FuelBank)
}

// PIPolicy is a velocity-form PI controller. The table cell carries the
// accumulated output, so each cycle only adds the increment
//
//	Kp*(e - e_prev) + Ki*e*dt
//
// where e = lambda/target - 1 (positive when lean).
type PIPolicy struct {
	Kp       float64
	Ki       float64
	Deadband float64

	prevErr [models.BankCount]float64
	primed  [models.BankCount]bool
}

// NewPIPolicy builds a PI policy from the calibration gains
func NewPIPolicy(cfg *models.StftConfig) *PIPolicy {
	return &PIPolicy{Kp: cfg.Kp, Ki: cfg.Ki, Deadband: cfg.Deadband}
}

func (p *PIPolicy) Adjust(bank models.FuelBank, current float64, fb Feedback) float64 {
	if bank < 0 || int(bank) >= models.BankCount || fb.Target <= 0 {
		return current
	}

	e := fb.Lambda/fb.Target - 1
	if math.Abs(e) < p.Deadband {
		e = 0
	}

	prev := e
	if p.primed[bank] {
		prev = p.prevErr[bank]
	}
	p.prevErr[bank] = e
	p.primed[bank] = true

	dt := fb.Period.Seconds()
	return current + p.Kp*(e-prev) + p.Ki*e*dt
}

func (p *PIPolicy) Reset(bank models.FuelBank) {
	if bank < 0 || int(bank) >= models.BankCount {
		return
	}
	p.prevErr[bank] = 0
	p.primed[bank] = false
}

package models

import "fmt"

// BankCount is the number of independently corrected fuel banks
const BankCount = 2

// FuelBank identifies one fuel circuit with its own feedback sensor
type FuelBank int

func (b FuelBank) String() string {
	return fmt.Sprintf("bank %d", int(b))
}

// SensorType identifies a feedback sensor
type SensorType int

const (
	SensorNone SensorType = iota
	SensorLambda1
	SensorLambda2

	// SensorCount is the number of sensor slots in a gate.State
	SensorCount
)

func (s SensorType) String() string {
	switch s {
	case SensorNone:
		return "none"
	case SensorLambda1:
		return "lambda1"
	case SensorLambda2:
		return "lambda2"
	default:
		return fmt.Sprintf("sensor(%d)", int(s))
	}
}

// Valid reports whether s names a real feedback sensor
func (s SensorType) Valid() bool {
	return s > SensorNone && s < SensorCount
}

// BankSensor returns the feedback sensor that drives a bank's trim
func BankSensor(bank FuelBank) SensorType {
	switch bank {
	case 0:
		return SensorLambda1
	case 1:
		return SensorLambda2
	default:
		return SensorNone
	}
}

// ClosedLoopFuelResult holds one fuel multiplier per bank
type ClosedLoopFuelResult struct {
	Banks [BankCount]float64 `json:"banks"`
}

// NewClosedLoopFuelResult returns a result with no correction (1.0) on every bank
func NewClosedLoopFuelResult() ClosedLoopFuelResult {
	var r ClosedLoopFuelResult
	for i := range r.Banks {
		r.Banks[i] = 1.0
	}
	return r
}

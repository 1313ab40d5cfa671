package canrx

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/tosih/motronic-fuel-trim/pkg/gate"
	"github.com/tosih/motronic-fuel-trim/pkg/models"
)

// Frame IDs on the engine bus
const (
	LambdaFrameBase uint32 = 0x190 // +0 lambda1, +1 lambda2
	EngineFrameID   uint32 = 0x360
	TimingFrameID   uint32 = 0x361
)

// Status bits
const (
	lambdaValid       = 1 << 0
	lambdaHeaterReady = 1 << 1

	engineClosedLoop   = 1 << 0
	engineCranking     = 1 << 1
	engineFuelCut      = 1 << 2
	engineCoolantValid = 1 << 3
)

// Signal is one scaled field in a frame: real = raw*Scale + Bias
type Signal struct {
	Name   string
	Offset int // byte offset in the payload
	Width  int // 1, 2 or 4
	MSB    bool
	Scale  float64
	Bias   float64
	Unit   string
}

// Signal layouts, lambda frame
var (
	SigLambda     = Signal{Name: "Lambda", Offset: 2, Width: 2, Scale: 0.0001, Unit: "λ"}
	SigSensorTemp = Signal{Name: "Sensor Temp", Offset: 4, Width: 2, Scale: 1, Unit: "°C"}
)

// Signal layouts, engine frame
var (
	SigRpm          = Signal{Name: "RPM", Offset: 0, Width: 2, MSB: true, Scale: 1, Unit: "RPM"}
	SigLoad         = Signal{Name: "Load", Offset: 2, Width: 2, MSB: true, Scale: 0.1, Unit: "%"}
	SigCoolant      = Signal{Name: "Coolant", Offset: 4, Width: 2, MSB: true, Scale: 0.1, Bias: -40, Unit: "°C"}
	SigLambdaTarget = Signal{Name: "Lambda Target", Offset: 7, Width: 1, Scale: 0.01, Bias: 0.5, Unit: "λ"}
)

// Signal layouts, timing frame
var (
	SigRunTime        = Signal{Name: "Run Time", Offset: 0, Width: 4, Scale: 1, Unit: "ms"}
	SigSinceTransient = Signal{Name: "Since Transient", Offset: 4, Width: 4, Scale: 1, Unit: "ms"}
)

// Decode reads the signal from f
func (s Signal) Decode(f *Frame) (float64, error) {
	if err := CheckRange(f, s.Offset, s.Width); err != nil {
		return 0, fmt.Errorf("%s: %w", s.Name, err)
	}

	var raw uint32
	switch {
	case s.Width == 1:
		raw = uint32(f.Data[s.Offset])
	case s.Width == 4:
		raw = GetFourBytesLsb(f, s.Offset)
	case s.MSB:
		raw = uint32(GetTwoBytesMsb(f, s.Offset))
	default:
		raw = uint32(GetTwoBytesLsb(f, s.Offset))
	}

	return float64(raw)*s.Scale + s.Bias, nil
}

// Encode writes value into f, saturating at the raw range
func (s Signal) Encode(f *Frame, value float64) {
	raw := math.Round((value - s.Bias) / s.Scale)
	top := math.Ldexp(1, 8*s.Width) - 1
	raw = math.Min(math.Max(raw, 0), top)

	switch {
	case s.Width == 1:
		f.Data[s.Offset] = byte(raw)
	case s.Width == 4:
		binary.LittleEndian.PutUint32(f.Data[s.Offset:], uint32(raw))
	case s.MSB:
		binary.BigEndian.PutUint16(f.Data[s.Offset:], uint16(raw))
	default:
		binary.LittleEndian.PutUint16(f.Data[s.Offset:], uint16(raw))
	}
}

// DecodeLambdaFrame parses a wideband controller frame
func DecodeLambdaFrame(f *Frame) (models.SensorType, gate.SensorReading, error) {
	sensor := models.SensorType(int(f.ID-LambdaFrameBase) + int(models.SensorLambda1))
	if f.ID < LambdaFrameBase || !sensor.Valid() {
		return models.SensorNone, gate.SensorReading{}, fmt.Errorf("%w: 0x%03X", ErrWrongID, f.ID)
	}
	if err := CheckRange(f, 0, 6); err != nil {
		return sensor, gate.SensorReading{}, err
	}

	lambda, _ := SigLambda.Decode(f)
	temp, _ := SigSensorTemp.Decode(f)
	status := f.Data[0]

	return sensor, gate.SensorReading{
		Valid:       status&lambdaValid != 0,
		HeaterReady: status&lambdaHeaterReady != 0,
		Lambda:      lambda,
		Temperature: temp,
	}, nil
}

// EncodeLambdaFrame builds the wideband frame for sensor
func EncodeLambdaFrame(sensor models.SensorType, r gate.SensorReading) Frame {
	f := Frame{ID: LambdaFrameBase + uint32(sensor-models.SensorLambda1), DLC: PayloadSize}
	if r.Valid {
		f.Data[0] |= lambdaValid
	}
	if r.HeaterReady {
		f.Data[0] |= lambdaHeaterReady
	}
	SigLambda.Encode(&f, r.Lambda)
	SigSensorTemp.Encode(&f, r.Temperature)
	return f
}

// DecodeEngineFrame fills the run-state part of e
func DecodeEngineFrame(f *Frame, e *gate.EngineState) error {
	if f.ID != EngineFrameID {
		return fmt.Errorf("%w: 0x%03X", ErrWrongID, f.ID)
	}
	if err := CheckRange(f, 0, PayloadSize); err != nil {
		return err
	}

	e.Rpm, _ = SigRpm.Decode(f)
	e.Load, _ = SigLoad.Decode(f)
	e.CoolantTemp, _ = SigCoolant.Decode(f)
	e.LambdaTarget, _ = SigLambdaTarget.Decode(f)

	flags := f.Data[6]
	e.ClosedLoop = flags&engineClosedLoop != 0
	e.Cranking = flags&engineCranking != 0
	e.FuelCut = flags&engineFuelCut != 0
	e.CoolantValid = flags&engineCoolantValid != 0
	return nil
}

// EncodeEngineFrame builds the engine frame from e
func EncodeEngineFrame(e gate.EngineState) Frame {
	f := Frame{ID: EngineFrameID, DLC: PayloadSize}
	SigRpm.Encode(&f, e.Rpm)
	SigLoad.Encode(&f, e.Load)
	SigCoolant.Encode(&f, e.CoolantTemp)
	SigLambdaTarget.Encode(&f, e.Target())

	var flags byte
	if e.ClosedLoop {
		flags |= engineClosedLoop
	}
	if e.Cranking {
		flags |= engineCranking
	}
	if e.FuelCut {
		flags |= engineFuelCut
	}
	if e.CoolantValid {
		flags |= engineCoolantValid
	}
	f.Data[6] = flags
	return f
}

// DecodeTimingFrame fills run time and time since the last transient
func DecodeTimingFrame(f *Frame, e *gate.EngineState) error {
	if f.ID != TimingFrameID {
		return fmt.Errorf("%w: 0x%03X", ErrWrongID, f.ID)
	}
	if err := CheckRange(f, 0, PayloadSize); err != nil {
		return err
	}

	run, _ := SigRunTime.Decode(f)
	since, _ := SigSinceTransient.Decode(f)
	e.RunTime = time.Duration(run) * time.Millisecond
	e.SinceTransient = time.Duration(since) * time.Millisecond
	return nil
}

// EncodeTimingFrame builds the timing frame from e
func EncodeTimingFrame(e gate.EngineState) Frame {
	f := Frame{ID: TimingFrameID, DLC: PayloadSize}
	SigRunTime.Encode(&f, float64(e.RunTime.Milliseconds()))
	SigSinceTransient.Encode(&f, float64(e.SinceTransient.Milliseconds()))
	return f
}

// Apply decodes f into st. Unknown IDs are ignored.
func Apply(st *gate.State, f *Frame) error {
	switch {
	case f.ID == EngineFrameID:
		return DecodeEngineFrame(f, &st.Engine)
	case f.ID == TimingFrameID:
		return DecodeTimingFrame(f, &st.Engine)
	case f.ID >= LambdaFrameBase && f.ID < LambdaFrameBase+uint32(models.SensorCount-models.SensorLambda1):
		sensor, reading, err := DecodeLambdaFrame(f)
		if err != nil {
			// A garbled frame means the reading cannot be trusted
			st.Sensors[sensor] = gate.SensorReading{}
			return err
		}
		st.Sensors[sensor] = reading
	}
	return nil
}

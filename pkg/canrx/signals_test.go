package canrx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tosih/motronic-fuel-trim/pkg/gate"
	"github.com/tosih/motronic-fuel-trim/pkg/models"
)

func TestSignalScaling(t *testing.T) {
	t.Parallel()

	var f Frame
	f.DLC = PayloadSize

	SigCoolant.Encode(&f, 85.3)
	v, err := SigCoolant.Decode(&f)
	require.NoError(t, err)
	assert.InDelta(t, 85.3, v, 0.05)
	// (85.3 + 40) / 0.1 = 1253 big-endian
	assert.Equal(t, [2]byte{0x04, 0xE5}, [2]byte{f.Data[4], f.Data[5]})

	SigLambda.Encode(&f, 0.9876)
	assert.Equal(t, uint16(9876), GetTwoBytesLsb(&f, 2))

	// Saturates instead of wrapping
	SigRpm.Encode(&f, 1e9)
	assert.Equal(t, uint16(0xFFFF), GetTwoBytesMsb(&f, 0))
	SigLoad.Encode(&f, -5)
	assert.Equal(t, uint16(0), GetTwoBytesMsb(&f, 2))
}

func TestSignalDecodeShortFrame(t *testing.T) {
	t.Parallel()

	f := Frame{DLC: 3}
	_, err := SigLambda.Decode(&f)
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestLambdaFrameRoundTrip(t *testing.T) {
	t.Parallel()

	in := gate.SensorReading{Valid: true, HeaterReady: true, Lambda: 1.0342, Temperature: 781}
	f := EncodeLambdaFrame(models.SensorLambda2, in)
	assert.Equal(t, LambdaFrameBase+1, f.ID)

	sensor, out, err := DecodeLambdaFrame(&f)
	require.NoError(t, err)
	assert.Equal(t, models.SensorLambda2, sensor)
	assert.True(t, out.Valid)
	assert.True(t, out.HeaterReady)
	assert.InDelta(t, in.Lambda, out.Lambda, 1e-4)
	assert.Equal(t, in.Temperature, out.Temperature)

	f = EncodeLambdaFrame(models.SensorLambda1, gate.SensorReading{Lambda: 1})
	_, out, err = DecodeLambdaFrame(&f)
	require.NoError(t, err)
	assert.False(t, out.Valid)
	assert.False(t, out.HeaterReady)
}

func TestDecodeLambdaFrameErrors(t *testing.T) {
	t.Parallel()

	_, _, err := DecodeLambdaFrame(&Frame{ID: LambdaFrameBase + 7, DLC: 8})
	assert.ErrorIs(t, err, ErrWrongID)

	_, _, err = DecodeLambdaFrame(&Frame{ID: 0x100, DLC: 8})
	assert.ErrorIs(t, err, ErrWrongID)

	_, _, err = DecodeLambdaFrame(&Frame{ID: LambdaFrameBase, DLC: 4})
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestEngineFramesRoundTrip(t *testing.T) {
	t.Parallel()

	in := gate.EngineState{
		Rpm:            3150,
		Load:           47.5,
		LambdaTarget:   0.88,
		CoolantTemp:    91.2,
		CoolantValid:   true,
		ClosedLoop:     true,
		FuelCut:        true,
		RunTime:        12*time.Minute + 345*time.Millisecond,
		SinceTransient: 1500 * time.Millisecond,
	}

	var out gate.EngineState
	ef := EncodeEngineFrame(in)
	require.NoError(t, DecodeEngineFrame(&ef, &out))
	tf := EncodeTimingFrame(in)
	require.NoError(t, DecodeTimingFrame(&tf, &out))

	assert.Equal(t, in.Rpm, out.Rpm)
	assert.InDelta(t, in.Load, out.Load, 0.05)
	assert.InDelta(t, in.LambdaTarget, out.LambdaTarget, 0.005)
	assert.InDelta(t, in.CoolantTemp, out.CoolantTemp, 0.05)
	assert.True(t, out.CoolantValid)
	assert.True(t, out.ClosedLoop)
	assert.False(t, out.Cranking)
	assert.True(t, out.FuelCut)
	assert.Equal(t, in.RunTime, out.RunTime)
	assert.Equal(t, in.SinceTransient, out.SinceTransient)

	assert.ErrorIs(t, DecodeEngineFrame(&tf, &out), ErrWrongID)
	assert.ErrorIs(t, DecodeTimingFrame(&ef, &out), ErrWrongID)

	ef.DLC = 6
	assert.ErrorIs(t, DecodeEngineFrame(&ef, &out), ErrShortFrame)
}

func TestApply(t *testing.T) {
	t.Parallel()

	var st gate.State
	good := EncodeLambdaFrame(models.SensorLambda1, gate.SensorReading{Valid: true, HeaterReady: true, Lambda: 0.97, Temperature: 760})
	require.NoError(t, Apply(&st, &good))
	assert.True(t, st.Sensors[models.SensorLambda1].Valid)

	eng := EncodeEngineFrame(gate.EngineState{Rpm: 2200, ClosedLoop: true})
	require.NoError(t, Apply(&st, &eng))
	assert.Equal(t, 2200.0, st.Engine.Rpm)
	assert.True(t, st.Engine.ClosedLoop)

	// Unrelated traffic is ignored
	require.NoError(t, Apply(&st, &Frame{ID: 0x7E8, DLC: 8}))

	// A truncated lambda frame invalidates that sensor
	short := good
	short.DLC = 2
	assert.ErrorIs(t, Apply(&st, &short), ErrShortFrame)
	assert.Equal(t, gate.SensorReading{}, st.Sensors[models.SensorLambda1])
}

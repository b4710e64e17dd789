package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHallEngineSweep(t *testing.T) {
	source := &fakeSource{}
	meter := &fakeMeter{source: source, resistance: 1000}
	magnet := &fakeMagnet{}
	engine := &HallEngine{
		Magnet:       magnet,
		Probe:        &Probe{Source: source, Meter: meter},
		Safety:       defaultChecker(),
		RampTimeout:  50 * time.Millisecond,
		PollInterval: time.Millisecond,
	}

	result, err := engine.Run(context.Background(), HallSpec{
		Axis:       "x",
		FieldStart: 0, FieldStop: 0.2, FieldPoints: 3,
		Excitation:  1e-5,
		SettleDelay: time.Nanosecond,
	})
	require.NoError(t, err)
	require.Len(t, result.Samples, 3)

	// setpoints are the measured x-component readbacks
	assert.Equal(t, 0.0, result.Samples[0].Setpoint)
	assert.InDelta(t, 0.1, result.Samples[1].Setpoint, 1e-12)
	assert.InDelta(t, 0.2, result.Samples[2].Setpoint, 1e-12)

	for _, s := range result.Samples {
		assert.InDelta(t, 1e-5, s.Current, 1e-15)
		assert.InDelta(t, 1000, s.Resistance, 1e-6)
	}

	// excitation zeroed and output off after the run
	assert.Equal(t, 0.0, source.current.value)
	assert.False(t, source.output.on)
	assert.Equal(t, []bool{true, false}, source.output.sets)
}

func TestHallEngineTransverseNotWired(t *testing.T) {
	source := &fakeSource{}
	engine := &HallEngine{
		Magnet: &fakeMagnet{},
		Probe:  &Probe{Source: source, Meter: &fakeMeter{source: source, resistance: 1000}},
		Safety: defaultChecker(),
	}

	_, err := engine.Run(context.Background(), HallSpec{
		Axis:       "x",
		FieldStart: 0, FieldStop: 0.1, FieldPoints: 2,
		Excitation: 1e-5,
		Transverse: true,
	})
	require.ErrorIs(t, err, ErrChannelNotWired)
	assert.Empty(t, source.current.sets)
}

func TestHallEngineRejectsUnsafeField(t *testing.T) {
	source := &fakeSource{}
	magnet := &fakeMagnet{}
	engine := &HallEngine{
		Magnet: magnet,
		Probe:  &Probe{Source: source, Meter: &fakeMeter{source: source, resistance: 1000}},
		Safety: defaultChecker(),
	}

	_, err := engine.Run(context.Background(), HallSpec{
		Axis:       "x",
		FieldStart: 0, FieldStop: 12, FieldPoints: 2,
		Excitation: 1e-5,
	})
	require.ErrorIs(t, err, ErrUnsafeSweep)
	assert.Empty(t, magnet.ramps)
	assert.Empty(t, source.current.sets)
}

func TestProbeAveraging(t *testing.T) {
	source := &fakeSource{}
	source.current.value = 1e-5
	meter := &fakeMeter{source: source, resistance: 2000}
	probe := &Probe{Source: source, Meter: meter, Averages: 4, InterAverageDelay: time.Microsecond}

	reading, err := probe.Measure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, meter.reads)
	assert.InDelta(t, 0.02, reading.Voltage, 1e-12)
	assert.InDelta(t, 1e-5, reading.Current, 1e-15)
	assert.InDelta(t, 2000, reading.Resistance, 1e-9)
}

package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRTEngineSweep(t *testing.T) {
	source := &fakeSource{}
	meter := &fakeMeter{source: source, resistance: 1000}
	ctrl := &fakeTempController{sample: 4.2003, settled: true}
	engine := &RTEngine{
		Controller:  ctrl,
		Probe:       &Probe{Source: source, Meter: meter},
		Safety:      defaultChecker(),
		Excitation:  1e-5,
		Timeout:     10 * time.Millisecond,
		SettleDelay: time.Nanosecond,
	}

	result, err := engine.Run(context.Background(), []float64{4.2, 10, 20})
	require.NoError(t, err)
	require.Len(t, result.Samples, 3)

	assert.Equal(t, "rt", result.Kind)
	assert.Equal(t, []float64{4.2, 10, 20}, ctrl.setpoint.sets)
	for i, want := range []float64{4.2, 10, 20} {
		assert.Equal(t, want, result.Samples[i].Setpoint)
		assert.Equal(t, 4.2003, result.Samples[i].Temperature)
		assert.InDelta(t, 1000, result.Samples[i].Resistance, 1e-6)
	}

	// excitation zeroed and output off after the run
	assert.Equal(t, 0.0, source.current.value)
	assert.Equal(t, []bool{true, false}, source.output.sets)
}

func TestRTEngineRejectsUnsafeTemperature(t *testing.T) {
	source := &fakeSource{}
	ctrl := &fakeTempController{settled: true}
	engine := &RTEngine{
		Controller: ctrl,
		Probe:      &Probe{Source: source, Meter: &fakeMeter{source: source, resistance: 1000}},
		Safety:     defaultChecker(),
		Excitation: 1e-5,
	}

	_, err := engine.Run(context.Background(), []float64{4.2, 0.001})
	require.ErrorIs(t, err, ErrUnsafeSweep)
	assert.Empty(t, ctrl.setpoint.sets)
	assert.Empty(t, source.current.sets)
}

package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attolab/cryosweep/internal/instrument"
)

func fastFieldOrchestrator(magnet *fakeMagnet) *FieldOrchestrator {
	return &FieldOrchestrator{
		Magnet:       magnet,
		Safety:       defaultChecker(),
		RampTimeout:  50 * time.Millisecond,
		PollInterval: time.Millisecond,
		SettleDelay:  time.Nanosecond,
	}
}

func TestFieldOrchestratorAttachesReadback(t *testing.T) {
	magnet := &fakeMagnet{}
	orch := fastFieldOrchestrator(magnet)

	targets := []instrument.FieldVector{{X: 0.5}, {X: 1.0}}
	calls := 0
	results, err := orch.Sweep(context.Background(), targets, func(ctx context.Context) (*RunResult, error) {
		calls++
		return newRunResult("iv", Spec{NumPoints: 2}).finish(), nil
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, targets, magnet.ramps)

	for i, res := range results {
		require.NotNil(t, res.Outer)
		require.NotNil(t, res.Outer.Field)
		assert.Equal(t, targets[i], *res.Outer.Field)
	}
}

func TestFieldOrchestratorRampTimeoutIsNotFatal(t *testing.T) {
	magnet := &fakeMagnet{status: "RAMPING"}
	orch := fastFieldOrchestrator(magnet)
	orch.RampTimeout = 5 * time.Millisecond

	results, err := orch.Sweep(context.Background(),
		[]instrument.FieldVector{{X: 0.1}},
		func(ctx context.Context) (*RunResult, error) {
			return newRunResult("iv", Spec{NumPoints: 2}).finish(), nil
		})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestFieldOrchestratorRejectsUnsafeTarget(t *testing.T) {
	magnet := &fakeMagnet{}
	orch := fastFieldOrchestrator(magnet)

	// second target is unsafe; the magnet must never start ramping
	_, err := orch.Sweep(context.Background(),
		[]instrument.FieldVector{{X: 0.5}, {X: 10, Y: 10}},
		func(ctx context.Context) (*RunResult, error) {
			t.Fatal("inner run must not be called")
			return nil, nil
		})
	require.ErrorIs(t, err, ErrUnsafeSweep)
	assert.Empty(t, magnet.ramps)
}

func TestFieldOrchestratorInnerErrorAborts(t *testing.T) {
	magnet := &fakeMagnet{}
	orch := fastFieldOrchestrator(magnet)

	innerErr := errors.New("device fault")
	calls := 0
	results, err := orch.Sweep(context.Background(),
		[]instrument.FieldVector{{X: 0.1}, {X: 0.2}, {X: 0.3}},
		func(ctx context.Context) (*RunResult, error) {
			calls++
			if calls == 2 {
				return nil, innerErr
			}
			return newRunResult("iv", Spec{NumPoints: 2}).finish(), nil
		})
	require.ErrorIs(t, err, innerErr)
	assert.Len(t, results, 1)
	assert.Equal(t, 2, calls)
	// no third ramp after the failure
	assert.Len(t, magnet.ramps, 2)
}

func TestAngleTargets(t *testing.T) {
	targets := AngleTargets(1.0, []float64{0, 90, 180})
	require.Len(t, targets, 3)

	assert.InDelta(t, 1.0, targets[0].X, 1e-12)
	assert.InDelta(t, 1.0, targets[1].Y, 1e-12)
	assert.InDelta(t, -1.0, targets[2].X, 1e-12)
	for _, tgt := range targets {
		assert.InDelta(t, 1.0, tgt.Magnitude(), 1e-12)
	}
}

func TestAxisTargets(t *testing.T) {
	xs, err := AxisTargets("x", []float64{0, 0.5})
	require.NoError(t, err)
	assert.Equal(t, []instrument.FieldVector{{}, {X: 0.5}}, xs)

	ys, err := AxisTargets("y", []float64{0.5})
	require.NoError(t, err)
	assert.Equal(t, []instrument.FieldVector{{Y: 0.5}}, ys)

	_, err = AxisTargets("z", []float64{0.5})
	assert.Error(t, err)
}

func fastTempOrchestrator(ctrl *fakeTempController) *TempOrchestrator {
	return &TempOrchestrator{
		Controller:  ctrl,
		Safety:      defaultChecker(),
		Loop:        0,
		Timeout:     10 * time.Millisecond,
		SettleDelay: time.Nanosecond,
	}
}

func TestTempOrchestratorRecordsSetpointAndActual(t *testing.T) {
	ctrl := &fakeTempController{sample: 4.2001, settled: true}
	orch := fastTempOrchestrator(ctrl)

	results, err := orch.Sweep(context.Background(), []float64{4.2},
		func(ctx context.Context) (*RunResult, error) {
			return newRunResult("rt", Spec{NumPoints: 2}).finish(), nil
		})
	require.NoError(t, err)
	require.Len(t, results, 1)

	outer := results[0].Outer
	require.NotNil(t, outer)
	require.NotNil(t, outer.Temperature)
	require.NotNil(t, outer.ActualTemperature)
	assert.Equal(t, 4.2, *outer.Temperature)
	assert.Equal(t, 4.2001, *outer.ActualTemperature)
	assert.Equal(t, []float64{4.2}, ctrl.setpoint.sets)
	assert.Equal(t, 1, ctrl.waits)
}

func TestTempOrchestratorSettleTimeoutIsNotFatal(t *testing.T) {
	ctrl := &fakeTempController{sample: 3.9, settled: false}
	orch := fastTempOrchestrator(ctrl)

	results, err := orch.Sweep(context.Background(), []float64{4.2},
		func(ctx context.Context) (*RunResult, error) {
			return newRunResult("rt", Spec{NumPoints: 2}).finish(), nil
		})
	require.NoError(t, err)
	require.Len(t, results, 1)
	// the drifted temperature is recorded with the run
	assert.Equal(t, 3.9, *results[0].Outer.ActualTemperature)
}

func TestTempOrchestratorRejectsUnsafeSetpoint(t *testing.T) {
	ctrl := &fakeTempController{settled: true}
	orch := fastTempOrchestrator(ctrl)

	_, err := orch.Sweep(context.Background(), []float64{4.2, 500},
		func(ctx context.Context) (*RunResult, error) {
			t.Fatal("inner run must not be called")
			return nil, nil
		})
	require.ErrorIs(t, err, ErrUnsafeSweep)
	assert.Empty(t, ctrl.setpoint.sets)
}

package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/attolab/cryosweep/internal/instrument"
	"github.com/attolab/cryosweep/internal/monitoring"
	"github.com/attolab/cryosweep/internal/safety"
	"github.com/attolab/cryosweep/internal/settle"
)

// InnerRun performs one complete measurement at the current outer condition.
// The orchestrators call it once per outer point, after the field or
// temperature has settled.
type InnerRun func(ctx context.Context) (*RunResult, error)

const (
	defaultRampTimeout     = time.Hour
	defaultRampPoll        = time.Second
	defaultFieldSettle     = 10 * time.Second
	defaultTempTolerance   = 0.01 // K
	defaultTempSettleDelay = 300 * time.Second
)

// settleHolding polls the magnet status until it reads HOLDING or the
// timeout elapses. A timeout returns false without error.
func settleHolding(ctx context.Context, magnet instrument.Magnet, timeout, poll time.Duration) (bool, error) {
	return settle.WaitCond(ctx, func() (bool, error) {
		status, err := magnet.Status()
		if err != nil {
			return false, err
		}
		return status == instrument.StatusHolding, nil
	}, timeout, poll)
}

// FieldOrchestrator steps a vector magnet through a sequence of field
// setpoints, running an inner measurement at each one.
type FieldOrchestrator struct {
	Magnet instrument.Magnet
	Safety *safety.Checker

	// RampTimeout bounds the wait for the controller to report HOLDING.
	// Zero means one hour. A ramp that has not settled by then is logged
	// and measured anyway; field drift shows up in the recorded readback.
	RampTimeout time.Duration
	// PollInterval is the status readback cadence. Zero means 1s.
	PollInterval time.Duration
	// SettleDelay is an extra wait after HOLDING before measuring, for
	// eddy currents in the sample stage to die out. Zero means 10s.
	SettleDelay time.Duration
}

func (o *FieldOrchestrator) rampTimeout() time.Duration {
	if o.RampTimeout <= 0 {
		return defaultRampTimeout
	}
	return o.RampTimeout
}

func (o *FieldOrchestrator) pollInterval() time.Duration {
	if o.PollInterval <= 0 {
		return defaultRampPoll
	}
	return o.PollInterval
}

func (o *FieldOrchestrator) settleDelay() time.Duration {
	if o.SettleDelay <= 0 {
		return defaultFieldSettle
	}
	return o.SettleDelay
}

// Sweep ramps to each target in order and runs inner at each one. Every
// target is safety-checked before any ramp starts, so an unsafe point late in
// the list cannot strand the magnet mid-sequence.
//
// Each result carries the measured field readback, not the commanded target.
// A hardware error from the magnet or the inner run aborts the sweep; results
// collected so far are returned alongside the error. The magnet is left at
// its last commanded field: unlike an electrical output, ramping a
// superconducting magnet to zero on every error is slower and riskier than
// holding.
func (o *FieldOrchestrator) Sweep(ctx context.Context, targets []instrument.FieldVector, inner InnerRun) ([]*RunResult, error) {
	for _, t := range targets {
		if !o.Safety.CheckMagneticField(t.X, t.Y) {
			return nil, fmt.Errorf("field target (%g, %g) T: %w", t.X, t.Y, ErrUnsafeSweep)
		}
	}

	results := make([]*RunResult, 0, len(targets))
	for _, target := range targets {
		if err := o.Magnet.StartRamp(target); err != nil {
			return results, fmt.Errorf("start ramp to (%g, %g) T: %w", target.X, target.Y, err)
		}
		settled, err := settleHolding(ctx, o.Magnet, o.rampTimeout(), o.pollInterval())
		if err != nil {
			return results, fmt.Errorf("wait for ramp to (%g, %g) T: %w", target.X, target.Y, err)
		}
		if !settled {
			monitoring.Logf("sweep: field ramp to (%g, %g) T not holding after %s, measuring anyway",
				target.X, target.Y, o.rampTimeout())
		}
		if err := sleep(ctx, o.settleDelay()); err != nil {
			return results, err
		}

		actual, err := o.Magnet.Field()
		if err != nil {
			return results, fmt.Errorf("read field: %w", err)
		}

		res, err := inner(ctx)
		if res != nil {
			field := actual
			res.Outer = &OuterPoint{Field: &field}
			results = append(results, res)
		}
		if err != nil {
			return results, fmt.Errorf("measurement at (%g, %g) T: %w", target.X, target.Y, err)
		}
	}
	return results, nil
}

// AngleTargets builds the target sequence for a rotation sweep: a fixed
// field magnitude stepped through the given angles in degrees.
func AngleTargets(magnitude float64, anglesDeg []float64) []instrument.FieldVector {
	targets := make([]instrument.FieldVector, len(anglesDeg))
	for i, a := range anglesDeg {
		targets[i] = instrument.PolarField(magnitude, a)
	}
	return targets
}

// AxisTargets builds the target sequence for a single-axis magnitude sweep
// along "x" or "y", with the other component held at zero.
func AxisTargets(axis string, magnitudes []float64) ([]instrument.FieldVector, error) {
	targets := make([]instrument.FieldVector, len(magnitudes))
	switch axis {
	case "x":
		for i, m := range magnitudes {
			targets[i] = instrument.FieldVector{X: m}
		}
	case "y":
		for i, m := range magnitudes {
			targets[i] = instrument.FieldVector{Y: m}
		}
	default:
		return nil, fmt.Errorf("unknown field axis %q (want \"x\" or \"y\")", axis)
	}
	return targets, nil
}

// TempOrchestrator steps a cryostat control loop through a sequence of
// temperature setpoints, running an inner measurement at each one.
type TempOrchestrator struct {
	Controller instrument.TempController
	Safety     *safety.Checker
	// Loop is the controller loop driving the sample stage.
	Loop int

	// Tolerance is the settling window in Kelvin. Zero means 0.01 K.
	Tolerance float64
	// Timeout bounds the settling wait per setpoint. Zero means one hour.
	// A setpoint that has not settled by then is logged and measured
	// anyway; the actual temperature is recorded with the result.
	Timeout time.Duration
	// SettleDelay is an extra thermalization wait after the controller
	// reports settled, for the sample to catch up with the stage
	// thermometer. Zero means 300s.
	SettleDelay time.Duration
}

func (o *TempOrchestrator) tolerance() float64 {
	if o.Tolerance <= 0 {
		return defaultTempTolerance
	}
	return o.Tolerance
}

func (o *TempOrchestrator) timeout() time.Duration {
	if o.Timeout <= 0 {
		return defaultRampTimeout
	}
	return o.Timeout
}

func (o *TempOrchestrator) settleDelay() time.Duration {
	if o.SettleDelay <= 0 {
		return defaultTempSettleDelay
	}
	return o.SettleDelay
}

// Sweep sets each temperature in order and runs inner at each one. All
// setpoints are safety-checked up front. Each result carries both the
// commanded setpoint and the actual sample temperature at measurement time,
// so a timed-out settle is visible in the data.
func (o *TempOrchestrator) Sweep(ctx context.Context, setpoints []float64, inner InnerRun) ([]*RunResult, error) {
	for _, t := range setpoints {
		if !o.Safety.CheckTemperature(t) {
			return nil, fmt.Errorf("temperature setpoint %g K: %w", t, ErrUnsafeSweep)
		}
	}

	results := make([]*RunResult, 0, len(setpoints))
	for _, target := range setpoints {
		if err := o.Controller.Setpoint(o.Loop).Set(target); err != nil {
			return results, fmt.Errorf("set temperature %g K: %w", target, err)
		}
		settled, err := o.Controller.WaitForTemperature(ctx, o.Loop, target, o.tolerance(), o.timeout())
		if err != nil {
			return results, fmt.Errorf("wait for %g K: %w", target, err)
		}
		if !settled {
			monitoring.Logf("sweep: temperature did not settle at %g K within %s, measuring anyway",
				target, o.timeout())
		}
		if err := sleep(ctx, o.settleDelay()); err != nil {
			return results, err
		}

		actual, err := o.Controller.SampleTemperature()
		if err != nil {
			return results, fmt.Errorf("read sample temperature: %w", err)
		}

		res, err := inner(ctx)
		if res != nil {
			setpoint, sample := target, actual
			res.Outer = &OuterPoint{Temperature: &setpoint, ActualTemperature: &sample}
			results = append(results, res)
		}
		if err != nil {
			return results, fmt.Errorf("measurement at %g K: %w", target, err)
		}
	}
	return results, nil
}

package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/attolab/cryosweep/internal/instrument"
	"github.com/attolab/cryosweep/internal/monitoring"
	"github.com/attolab/cryosweep/internal/safety"
)

// RTEngine measures resistance against temperature: one averaged probe
// reading per temperature setpoint, collected into a single run.
type RTEngine struct {
	Controller instrument.TempController
	Probe      *Probe
	Safety     *safety.Checker
	// Loop is the controller loop driving the sample stage.
	Loop int

	// Excitation is the fixed probe current in Ampere.
	Excitation float64

	// Tolerance, Timeout and SettleDelay have the TempOrchestrator
	// defaults: 0.01 K, one hour, 300s. A settle timeout is logged and
	// measured anyway; the drifted temperature is in the sample.
	Tolerance   float64
	Timeout     time.Duration
	SettleDelay time.Duration
}

func (e *RTEngine) tolerance() float64 {
	if e.Tolerance <= 0 {
		return defaultTempTolerance
	}
	return e.Tolerance
}

func (e *RTEngine) timeout() time.Duration {
	if e.Timeout <= 0 {
		return defaultRampTimeout
	}
	return e.Timeout
}

func (e *RTEngine) settleDelay() time.Duration {
	if e.SettleDelay <= 0 {
		return defaultTempSettleDelay
	}
	return e.SettleDelay
}

// Run steps through the setpoints in order. Each sample's Setpoint is the
// commanded temperature and Temperature is the thermometer readback at
// measurement time. The probe output is enabled once and is zeroed and
// disabled on every exit path.
func (e *RTEngine) Run(ctx context.Context, setpoints []float64) (result *RunResult, err error) {
	for _, t := range setpoints {
		if !e.Safety.CheckTemperature(t) {
			return nil, fmt.Errorf("temperature setpoint %g K: %w", t, ErrUnsafeSweep)
		}
	}
	if !e.Safety.CheckCurrent(e.Excitation) {
		return nil, fmt.Errorf("excitation %g A: %w", e.Excitation, ErrUnsafeSweep)
	}

	if err := e.Probe.Source.Current().Set(e.Excitation); err != nil {
		return nil, fmt.Errorf("set excitation %g A: %w", e.Excitation, err)
	}
	if err := e.Probe.Source.Output().Set(true); err != nil {
		return nil, fmt.Errorf("enable output: %w", err)
	}
	defer func() {
		if zeroErr := e.Probe.Source.Current().Set(0); zeroErr != nil {
			monitoring.Logf("sweep: failed to zero excitation on shutdown: %v", zeroErr)
		}
		if offErr := e.Probe.Source.Output().Set(false); offErr != nil {
			monitoring.Logf("sweep: failed to disable output on shutdown: %v", offErr)
		}
	}()

	spec := Spec{NumPoints: len(setpoints)}
	if len(setpoints) > 0 {
		spec.Start = setpoints[0]
		spec.Stop = setpoints[len(setpoints)-1]
	}

	result = newRunResult("rt", spec)
	for _, target := range setpoints {
		if err := e.Controller.Setpoint(e.Loop).Set(target); err != nil {
			return result, fmt.Errorf("set temperature %g K: %w", target, err)
		}
		settled, err := e.Controller.WaitForTemperature(ctx, e.Loop, target, e.tolerance(), e.timeout())
		if err != nil {
			return result, fmt.Errorf("wait for %g K: %w", target, err)
		}
		if !settled {
			monitoring.Logf("sweep: temperature did not settle at %g K within %s, measuring anyway",
				target, e.timeout())
		}
		if err := sleep(ctx, e.settleDelay()); err != nil {
			return result, err
		}

		actual, err := e.Controller.SampleTemperature()
		if err != nil {
			return result, fmt.Errorf("read sample temperature: %w", err)
		}
		reading, err := e.Probe.Measure(ctx)
		if err != nil {
			return result, fmt.Errorf("measure at %g K: %w", target, err)
		}

		result.append(Sample{
			Setpoint:    target,
			Temperature: actual,
			Voltage:     reading.Voltage,
			Current:     reading.Current,
			Resistance:  reading.Resistance,
		})
	}

	return result.finish(), nil
}

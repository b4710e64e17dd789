package sweep

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/attolab/cryosweep/internal/instrument"
	"github.com/attolab/cryosweep/internal/monitoring"
	"github.com/attolab/cryosweep/internal/safety"
)

// sleep waits for d or until the context is cancelled, whichever comes
// first. Cancellation surfaces as the context's error so the engines unwind
// through their shutdown defers.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// secondsToDuration converts a wait expressed in instrument units (seconds)
// to a Duration.
func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// IVEngine runs DC current-voltage sweeps on a current source paired with a
// separate voltmeter (6221 + 2182A on this rig).
type IVEngine struct {
	Source instrument.CurrentSource
	Meter  instrument.Voltmeter
	Safety *safety.Checker
}

// Run drives the current source across the spec's point sequence, measuring
// averaged voltage at each point.
//
// The output is enabled once before the first point and is guaranteed to be
// zeroed and disabled on every exit path: completion, hardware error, or
// cancellation. On error the returned RunResult holds the samples measured
// before the failure; no partial sample exists for the failing point.
func (e *IVEngine) Run(ctx context.Context, spec Spec) (result *RunResult, err error) {
	points, err := spec.Points()
	if err != nil {
		return nil, err
	}
	check := safety.SweepCheck{
		CurrentRange:       &[2]float64{spec.Start, spec.Stop},
		NumPoints:          len(points),
		DelayBetweenPoints: spec.InterPointDelay,
	}
	if !e.Safety.CheckSweep(check) {
		return nil, fmt.Errorf("current sweep %g..%g A: %w", spec.Start, spec.Stop, ErrUnsafeSweep)
	}
	monitoring.Logf("sweep: iv %d points, estimated duration %s", len(points), e.Safety.EstimateDuration(check))

	// instrument-wide configuration happens once per run, not per point
	if spec.Compliance != 0 {
		if err := e.Source.ComplianceVoltage().Set(spec.Compliance); err != nil {
			return nil, fmt.Errorf("set compliance voltage: %w", err)
		}
	}

	if err := e.Source.Output().Set(true); err != nil {
		return nil, fmt.Errorf("enable output: %w", err)
	}
	// registered before the first setpoint write so the output can never be
	// left enabled, whatever path leaves this function
	defer func() {
		if zeroErr := e.Source.Current().Set(0); zeroErr != nil {
			monitoring.Logf("sweep: failed to zero current on shutdown: %v", zeroErr)
		}
		if offErr := e.Source.Output().Set(false); offErr != nil {
			monitoring.Logf("sweep: failed to disable output on shutdown: %v", offErr)
		}
	}()

	result = newRunResult("iv", spec)
	for _, setpoint := range points {
		if err := e.Source.Current().Set(setpoint); err != nil {
			return result, fmt.Errorf("set current %g A: %w", setpoint, err)
		}
		if err := sleep(ctx, spec.InterPointDelay); err != nil {
			return result, err
		}

		voltage, err := averageReadings(ctx, spec, func() (float64, error) { return e.Meter.Voltage() })
		if err != nil {
			return result, fmt.Errorf("read voltage at %g A: %w", setpoint, err)
		}

		result.append(Sample{
			Setpoint:   setpoint,
			Current:    setpoint,
			Voltage:    voltage,
			Resistance: Quotient(voltage, setpoint),
		})
	}

	return result.finish(), nil
}

// averageReadings takes the spec's configured number of readings with the
// inter-average delay between them and returns their arithmetic mean.
func averageReadings(ctx context.Context, spec Spec, read func() (float64, error)) (float64, error) {
	n := spec.averages()
	readings := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v, err := read()
		if err != nil {
			return 0, err
		}
		readings = append(readings, v)
		if i < n-1 {
			if err := sleep(ctx, spec.interAverageDelay()); err != nil {
				return 0, err
			}
		}
	}
	return stat.Mean(readings, nil), nil
}

// SMUIVEngine runs I-V sweeps on a single SMU channel that both sources the
// current and measures the voltage (2636B single-box configuration).
type SMUIVEngine struct {
	smu    instrument.SMU
	ch     *instrument.SMUChannel
	safety *safety.Checker
}

// NewSMUIVEngine resolves the channel accessors up front; an unknown channel
// fails here, before any run starts.
func NewSMUIVEngine(smu instrument.SMU, id instrument.ChannelID, checker *safety.Checker) (*SMUIVEngine, error) {
	ch, err := smu.Channel(id)
	if err != nil {
		return nil, err
	}
	return &SMUIVEngine{smu: smu, ch: ch, safety: checker}, nil
}

// Run drives the channel across the spec's current sequence. Shutdown
// semantics match IVEngine.
func (e *SMUIVEngine) Run(ctx context.Context, spec Spec) (result *RunResult, err error) {
	points, err := spec.Points()
	if err != nil {
		return nil, err
	}
	check := safety.SweepCheck{
		CurrentRange:       &[2]float64{spec.Start, spec.Stop},
		NumPoints:          len(points),
		DelayBetweenPoints: spec.InterPointDelay,
	}
	if !e.safety.CheckSweep(check) {
		return nil, fmt.Errorf("current sweep %g..%g A: %w", spec.Start, spec.Stop, ErrUnsafeSweep)
	}
	monitoring.Logf("sweep: smu iv %d points, estimated duration %s", len(points), e.safety.EstimateDuration(check))

	if err := e.smu.ConfigureCurrentSource(e.ch.ID); err != nil {
		return nil, fmt.Errorf("configure current source: %w", err)
	}
	if spec.Compliance != 0 {
		if err := e.smu.SetVoltageLimit(e.ch.ID, spec.Compliance); err != nil {
			return nil, fmt.Errorf("set compliance voltage: %w", err)
		}
	}

	if err := e.ch.Output.Set(true); err != nil {
		return nil, fmt.Errorf("enable output: %w", err)
	}
	defer func() {
		if zeroErr := e.ch.Current.Set(0); zeroErr != nil {
			monitoring.Logf("sweep: failed to zero channel %s current on shutdown: %v", e.ch.ID, zeroErr)
		}
		if offErr := e.ch.Output.Set(false); offErr != nil {
			monitoring.Logf("sweep: failed to disable channel %s output on shutdown: %v", e.ch.ID, offErr)
		}
	}()

	result = newRunResult("iv-smu", spec)
	for _, setpoint := range points {
		if err := e.ch.Current.Set(setpoint); err != nil {
			return result, fmt.Errorf("set current %g A: %w", setpoint, err)
		}
		if err := sleep(ctx, spec.InterPointDelay); err != nil {
			return result, err
		}

		voltage, err := averageReadings(ctx, spec, e.ch.Voltage.Get)
		if err != nil {
			return result, fmt.Errorf("read voltage at %g A: %w", setpoint, err)
		}

		result.append(Sample{
			Setpoint:   setpoint,
			Current:    setpoint,
			Voltage:    voltage,
			Resistance: Quotient(voltage, setpoint),
		})
	}

	return result.finish(), nil
}

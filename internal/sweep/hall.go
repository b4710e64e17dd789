package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/attolab/cryosweep/internal/instrument"
	"github.com/attolab/cryosweep/internal/monitoring"
	"github.com/attolab/cryosweep/internal/safety"
)

// HallSpec describes a Hall measurement: a fixed excitation current while
// the field is swept along one axis.
type HallSpec struct {
	// Axis is the swept field axis, "x" or "y".
	Axis string
	// FieldStart and FieldStop bound the swept component in Tesla.
	FieldStart float64
	FieldStop  float64
	// FieldPoints is the number of field setpoints.
	FieldPoints int
	// Bidirectional retraces the field sequence in reverse, duplicating
	// the turnaround point.
	Bidirectional bool

	// Excitation is the fixed probe current in Ampere.
	Excitation float64
	// Averages and InterAverageDelay configure the per-point voltage
	// averaging; zero means 1 reading / 50 ms.
	Averages          int
	InterAverageDelay time.Duration
	// SettleDelay is the post-ramp wait before measuring. Zero means 10s.
	SettleDelay time.Duration

	// Transverse requests the transverse voltage pair as well. The rig
	// has no second voltmeter wired to those contacts, so setting this
	// fails up front rather than recording zeros.
	Transverse bool
}

// HallEngine sweeps the magnetic field and measures the longitudinal probe
// voltage at each field point.
type HallEngine struct {
	Magnet instrument.Magnet
	Probe  *Probe
	Safety *safety.Checker

	// RampTimeout and PollInterval bound the per-point field settle, with
	// the same defaults and timeout-is-not-fatal behavior as
	// FieldOrchestrator.
	RampTimeout  time.Duration
	PollInterval time.Duration
}

// Run executes the Hall sweep. The probe output is enabled once and is
// zeroed and disabled on every exit path. Each sample's Setpoint is the
// measured swept-axis field component, not the commanded value.
func (e *HallEngine) Run(ctx context.Context, spec HallSpec) (result *RunResult, err error) {
	if spec.Transverse {
		return nil, fmt.Errorf("transverse hall pair: %w", ErrChannelNotWired)
	}

	fieldSpec := Spec{
		Start:         spec.FieldStart,
		Stop:          spec.FieldStop,
		NumPoints:     spec.FieldPoints,
		Bidirectional: spec.Bidirectional,
	}
	magnitudes, err := fieldSpec.Points()
	if err != nil {
		return nil, err
	}
	targets, err := AxisTargets(spec.Axis, magnitudes)
	if err != nil {
		return nil, err
	}
	for _, t := range targets {
		if !e.Safety.CheckMagneticField(t.X, t.Y) {
			return nil, fmt.Errorf("field target (%g, %g) T: %w", t.X, t.Y, ErrUnsafeSweep)
		}
	}
	if !e.Safety.CheckCurrent(spec.Excitation) {
		return nil, fmt.Errorf("excitation %g A: %w", spec.Excitation, ErrUnsafeSweep)
	}

	if err := e.Probe.Source.Current().Set(spec.Excitation); err != nil {
		return nil, fmt.Errorf("set excitation %g A: %w", spec.Excitation, err)
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

	probe := *e.Probe
	if spec.Averages > 0 {
		probe.Averages = spec.Averages
	}
	if spec.InterAverageDelay > 0 {
		probe.InterAverageDelay = spec.InterAverageDelay
	}
	settleDelay := spec.SettleDelay
	if settleDelay <= 0 {
		settleDelay = defaultFieldSettle
	}

	orch := FieldOrchestrator{
		Magnet:       e.Magnet,
		Safety:       e.Safety,
		RampTimeout:  e.RampTimeout,
		PollInterval: e.PollInterval,
	}

	result = newRunResult("hall", fieldSpec)
	for _, target := range targets {
		if err := e.Magnet.StartRamp(target); err != nil {
			return result, fmt.Errorf("start ramp to (%g, %g) T: %w", target.X, target.Y, err)
		}
		settled, err := settleHolding(ctx, e.Magnet, orch.rampTimeout(), orch.pollInterval())
		if err != nil {
			return result, fmt.Errorf("wait for ramp to (%g, %g) T: %w", target.X, target.Y, err)
		}
		if !settled {
			monitoring.Logf("sweep: field ramp to (%g, %g) T not holding after %s, measuring anyway",
				target.X, target.Y, orch.rampTimeout())
		}
		if err := sleep(ctx, settleDelay); err != nil {
			return result, err
		}

		actual, err := e.Magnet.Field()
		if err != nil {
			return result, fmt.Errorf("read field: %w", err)
		}
		reading, err := probe.Measure(ctx)
		if err != nil {
			return result, fmt.Errorf("measure at (%g, %g) T: %w", actual.X, actual.Y, err)
		}

		setpoint := actual.X
		if spec.Axis == "y" {
			setpoint = actual.Y
		}
		result.append(Sample{
			Setpoint:   setpoint,
			Voltage:    reading.Voltage,
			Current:    reading.Current,
			Resistance: reading.Resistance,
		})
	}

	return result.finish(), nil
}

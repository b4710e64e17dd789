package sweep

import (
	"context"
	"fmt"
	"math"

	"github.com/attolab/cryosweep/internal/instrument"
	"github.com/attolab/cryosweep/internal/monitoring"
	"github.com/attolab/cryosweep/internal/safety"
)

const (
	defaultSettlingFactor = 5.0
	defaultCurrentLimit   = 1e-6 // A
)

// DiffSpec extends a DC bias sweep with the AC excitation parameters for a
// lock-in differential conductance measurement. The embedded Spec's Start and
// Stop are DC bias voltages.
type DiffSpec struct {
	Spec

	ACAmplitude  float64 // V rms, the lock-in excitation
	Frequency    float64 // Hz
	TimeConstant float64 // s
	// SettlingFactor scales the time constant into a per-point settling
	// wait. Zero means 5, which leaves the lock-in output within a fraction
	// of a percent of its final value.
	SettlingFactor float64
	// CurrentLimit is the bias channel's compliance current. Zero means 1 uA.
	CurrentLimit float64
}

func (s DiffSpec) settlingFactor() float64 {
	if s.SettlingFactor <= 0 {
		return defaultSettlingFactor
	}
	return s.SettlingFactor
}

func (s DiffSpec) currentLimit() float64 {
	if s.CurrentLimit <= 0 {
		return defaultCurrentLimit
	}
	return s.CurrentLimit
}

// DifferentialEngine runs dI/dV sweeps: an SMU channel sources the DC bias
// and measures DC current while a lock-in reads the AC response to a small
// superimposed excitation.
type DifferentialEngine struct {
	smu    instrument.SMU
	ch     *instrument.SMUChannel
	lockin instrument.LockIn
	safety *safety.Checker
}

func NewDifferentialEngine(smu instrument.SMU, id instrument.ChannelID, lockin instrument.LockIn, checker *safety.Checker) (*DifferentialEngine, error) {
	ch, err := smu.Channel(id)
	if err != nil {
		return nil, err
	}
	return &DifferentialEngine{smu: smu, ch: ch, lockin: lockin, safety: checker}, nil
}

// Run sweeps the DC bias across the spec's point sequence. At every point the
// engine waits out the lock-in settling time (settling factor times the time
// constant) before averaging DC current and lock-in X/Y together.
//
// Derived quantities per sample: AC magnitude R and phase from the averaged
// X/Y pair, differential conductance as excitation over R (zero when R is
// zero), differential resistance as R over excitation, and DC resistance from
// the bias and averaged current.
func (e *DifferentialEngine) Run(ctx context.Context, spec DiffSpec) (result *RunResult, err error) {
	points, err := spec.Points()
	if err != nil {
		return nil, err
	}
	check := safety.SweepCheck{
		VoltageRange:       &[2]float64{spec.Start, spec.Stop},
		NumPoints:          len(points),
		DelayBetweenPoints: spec.InterPointDelay + secondsToDuration(spec.settlingFactor()*spec.TimeConstant),
	}
	if !e.safety.CheckSweep(check) {
		return nil, fmt.Errorf("bias sweep %g..%g V: %w", spec.Start, spec.Stop, ErrUnsafeSweep)
	}
	if !e.safety.CheckCurrent(spec.currentLimit()) {
		return nil, fmt.Errorf("compliance current %g A: %w", spec.currentLimit(), ErrUnsafeSweep)
	}
	monitoring.Logf("sweep: diff %d points, estimated duration %s", len(points), e.safety.EstimateDuration(check))

	if err := e.lockin.Frequency().Set(spec.Frequency); err != nil {
		return nil, fmt.Errorf("set lock-in frequency: %w", err)
	}
	if err := e.lockin.Amplitude().Set(spec.ACAmplitude); err != nil {
		return nil, fmt.Errorf("set lock-in amplitude: %w", err)
	}
	if err := e.lockin.TimeConstant().Set(spec.TimeConstant); err != nil {
		return nil, fmt.Errorf("set lock-in time constant: %w", err)
	}
	if err := e.smu.ConfigureVoltageSource(e.ch.ID); err != nil {
		return nil, fmt.Errorf("configure voltage source: %w", err)
	}
	if err := e.smu.SetCurrentLimit(e.ch.ID, spec.currentLimit()); err != nil {
		return nil, fmt.Errorf("set compliance current: %w", err)
	}

	if err := e.ch.Output.Set(true); err != nil {
		return nil, fmt.Errorf("enable output: %w", err)
	}
	defer func() {
		if zeroErr := e.ch.Voltage.Set(0); zeroErr != nil {
			monitoring.Logf("sweep: failed to zero channel %s bias on shutdown: %v", e.ch.ID, zeroErr)
		}
		if offErr := e.ch.Output.Set(false); offErr != nil {
			monitoring.Logf("sweep: failed to disable channel %s output on shutdown: %v", e.ch.ID, offErr)
		}
	}()

	settling := secondsToDuration(spec.settlingFactor() * spec.TimeConstant)

	result = newRunResult("diff", spec.Spec)
	for _, bias := range points {
		if err := e.ch.Voltage.Set(bias); err != nil {
			return result, fmt.Errorf("set bias %g V: %w", bias, err)
		}
		if err := sleep(ctx, spec.InterPointDelay); err != nil {
			return result, err
		}
		if err := sleep(ctx, settling); err != nil {
			return result, err
		}

		var iSum, xSum, ySum float64
		n := spec.averages()
		for i := 0; i < n; i++ {
			iDC, err := e.ch.Current.Get()
			if err != nil {
				return result, fmt.Errorf("read current at %g V: %w", bias, err)
			}
			x, err := e.lockin.AmplitudeX()
			if err != nil {
				return result, fmt.Errorf("read lock-in X at %g V: %w", bias, err)
			}
			y, err := e.lockin.AmplitudeY()
			if err != nil {
				return result, fmt.Errorf("read lock-in Y at %g V: %w", bias, err)
			}
			iSum += iDC
			xSum += x
			ySum += y
			if i < n-1 {
				if err := sleep(ctx, spec.interAverageDelay()); err != nil {
					return result, err
				}
			}
		}
		iDC := iSum / float64(n)
		x := xSum / float64(n)
		y := ySum / float64(n)
		r := math.Hypot(x, y)

		result.append(Sample{
			Setpoint:        bias,
			Voltage:         bias,
			Current:         iDC,
			Resistance:      Quotient(bias, iDC),
			ACVoltageX:      x,
			ACVoltageY:      y,
			ACVoltageR:      r,
			ACPhaseDeg:      math.Atan2(y, x) * 180 / math.Pi,
			DiffConductance: Reciprocal(spec.ACAmplitude, r),
			DiffResistance:  Quotient(r, spec.ACAmplitude),
		})
	}

	return result.finish(), nil
}

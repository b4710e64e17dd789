package station

import (
	"context"
	"errors"
	"fmt"

	"github.com/attolab/cryosweep/internal/instrument"
	"github.com/attolab/cryosweep/internal/monitor"
	"github.com/attolab/cryosweep/internal/sweep"
)

// RunIV runs a DC I-V sweep on the 6221/2182A pair. The run is persisted
// before being returned, partial samples included when the sweep aborted.
func (s *Station) RunIV(ctx context.Context, spec sweep.Spec) (*sweep.RunResult, error) {
	if s.source == nil || s.meter == nil {
		return nil, fmt.Errorf("iv sweep needs current source and nanovoltmeter: %w", ErrMissingInstrument)
	}
	engine := &sweep.IVEngine{Source: s.source, Meter: s.meter, Safety: s.safety}
	result, err := engine.Run(ctx, spec)
	return s.finishRun(ctx, result, err)
}

// RunSMUIV runs an I-V sweep on one SMU channel.
func (s *Station) RunSMUIV(ctx context.Context, channel instrument.ChannelID, spec sweep.Spec) (*sweep.RunResult, error) {
	if s.smu == nil {
		return nil, fmt.Errorf("smu iv sweep: %w", ErrMissingInstrument)
	}
	engine, err := sweep.NewSMUIVEngine(s.smu, channel, s.safety)
	if err != nil {
		return nil, err
	}
	result, err := engine.Run(ctx, spec)
	return s.finishRun(ctx, result, err)
}

// RunDifferential runs a lock-in dI/dV sweep with the SMU sourcing the DC
// bias.
func (s *Station) RunDifferential(ctx context.Context, channel instrument.ChannelID, spec sweep.DiffSpec) (*sweep.RunResult, error) {
	if s.smu == nil || s.lockin == nil {
		return nil, fmt.Errorf("differential sweep needs smu and lockin: %w", ErrMissingInstrument)
	}
	engine, err := sweep.NewDifferentialEngine(s.smu, channel, s.lockin, s.safety)
	if err != nil {
		return nil, err
	}
	result, err := engine.Run(ctx, spec)
	return s.finishRun(ctx, result, err)
}

// RunHall runs a fixed-current Hall sweep over the magnetic field.
func (s *Station) RunHall(ctx context.Context, spec sweep.HallSpec) (*sweep.RunResult, error) {
	if s.magnet == nil {
		return nil, fmt.Errorf("hall sweep needs magnet: %w", ErrMissingInstrument)
	}
	probe, err := s.probe()
	if err != nil {
		return nil, err
	}
	engine := &sweep.HallEngine{Magnet: s.magnet, Probe: probe, Safety: s.safety}
	result, err := engine.Run(ctx, spec)
	return s.finishRun(ctx, result, err)
}

// RunRT measures resistance against temperature at a fixed excitation.
func (s *Station) RunRT(ctx context.Context, setpoints []float64, excitation float64) (*sweep.RunResult, error) {
	if s.temp == nil {
		return nil, fmt.Errorf("rt sweep needs temperature controller: %w", ErrMissingInstrument)
	}
	probe, err := s.probe()
	if err != nil {
		return nil, err
	}
	engine := &sweep.RTEngine{
		Controller: s.temp,
		Probe:      probe,
		Safety:     s.safety,
		Loop:       s.cfg.GetControlLoop(),
		Excitation: excitation,
	}
	result, err := engine.Run(ctx, setpoints)
	return s.finishRun(ctx, result, err)
}

// RunFieldSweep runs an I-V sweep at each field target. Completed inner runs
// are persisted even when a later target aborts the sweep.
func (s *Station) RunFieldSweep(ctx context.Context, targets []instrument.FieldVector, spec sweep.Spec) ([]*sweep.RunResult, error) {
	if s.magnet == nil {
		return nil, fmt.Errorf("field sweep needs magnet: %w", ErrMissingInstrument)
	}
	if s.source == nil || s.meter == nil {
		return nil, fmt.Errorf("field sweep needs current source and nanovoltmeter: %w", ErrMissingInstrument)
	}

	orch := &sweep.FieldOrchestrator{Magnet: s.magnet, Safety: s.safety}
	engine := &sweep.IVEngine{Source: s.source, Meter: s.meter, Safety: s.safety}
	results, sweepErr := orch.Sweep(ctx, targets, func(ctx context.Context) (*sweep.RunResult, error) {
		return engine.Run(ctx, spec)
	})
	if err := s.saveRuns(ctx, results); err != nil {
		return results, err
	}
	return results, sweepErr
}

// RunAngleSweep rotates a fixed-magnitude field through the given angles,
// running an I-V sweep at each orientation.
func (s *Station) RunAngleSweep(ctx context.Context, magnitude float64, anglesDeg []float64, spec sweep.Spec) ([]*sweep.RunResult, error) {
	return s.RunFieldSweep(ctx, sweep.AngleTargets(magnitude, anglesDeg), spec)
}

// RunTemperatureSweep runs an I-V sweep at each temperature setpoint.
func (s *Station) RunTemperatureSweep(ctx context.Context, setpoints []float64, spec sweep.Spec) ([]*sweep.RunResult, error) {
	if s.temp == nil {
		return nil, fmt.Errorf("temperature sweep needs temperature controller: %w", ErrMissingInstrument)
	}
	if s.source == nil || s.meter == nil {
		return nil, fmt.Errorf("temperature sweep needs current source and nanovoltmeter: %w", ErrMissingInstrument)
	}

	orch := &sweep.TempOrchestrator{
		Controller: s.temp,
		Safety:     s.safety,
		Loop:       s.cfg.GetControlLoop(),
	}
	engine := &sweep.IVEngine{Source: s.source, Meter: s.meter, Safety: s.safety}
	results, sweepErr := orch.Sweep(ctx, setpoints, func(ctx context.Context) (*sweep.RunResult, error) {
		return engine.Run(ctx, spec)
	})
	if err := s.saveRuns(ctx, results); err != nil {
		return results, err
	}
	return results, sweepErr
}

// StartMonitoring launches the background resistance watcher at the
// configured excitation already on the source. Starting twice is a no-op.
func (s *Station) StartMonitoring(excitation float64) error {
	probe, err := s.probe()
	if err != nil {
		return err
	}
	if !s.safety.CheckCurrent(excitation) {
		return fmt.Errorf("monitor excitation %g A: %w", excitation, sweep.ErrUnsafeSweep)
	}
	if err := s.source.Current().Set(excitation); err != nil {
		return fmt.Errorf("set monitor excitation: %w", err)
	}
	if err := s.source.Output().Set(true); err != nil {
		return fmt.Errorf("enable output: %w", err)
	}
	if s.mon == nil {
		s.mon = monitor.New(probe, s.cfg.GetMonitorInterval())
	}
	s.mon.Start()
	return nil
}

// StopMonitoring stops the watcher, shuts the excitation off and persists
// the collected samples when a store is attached.
func (s *Station) StopMonitoring(ctx context.Context) ([]monitor.Sample, error) {
	if s.mon == nil {
		return nil, nil
	}
	samples := s.mon.Stop()

	var errs []error
	if s.source != nil {
		if err := s.source.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("shutdown source: %w", err))
		}
	}
	if s.store != nil {
		if err := s.store.SaveMonitorSamples(ctx, samples); err != nil {
			errs = append(errs, err)
		}
	}
	return samples, errors.Join(errs...)
}

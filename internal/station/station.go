// Package station binds the configured instruments, safety limits and run
// store into one object exposing the measurement protocols. Which physical
// box serves each role is decided here, once, at construction time; the
// engines underneath only ever see capability interfaces.
package station

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/attolab/cryosweep/internal/config"
	"github.com/attolab/cryosweep/internal/db"
	"github.com/attolab/cryosweep/internal/instrument"
	"github.com/attolab/cryosweep/internal/monitor"
	"github.com/attolab/cryosweep/internal/monitoring"
	"github.com/attolab/cryosweep/internal/safety"
	"github.com/attolab/cryosweep/internal/scpi"
	"github.com/attolab/cryosweep/internal/sweep"
)

// ErrMissingInstrument is returned when a protocol needs an instrument the
// config does not assign a port to.
var ErrMissingInstrument = errors.New("required instrument not configured")

// DialFunc opens a command connection to an instrument port. Production use
// is scpi.Open; tests inject mock connections.
type DialFunc func(port string, mode *scpi.PortMode) (*scpi.Conn, error)

// Options adjusts station construction.
type Options struct {
	// Dial defaults to scpi.Open.
	Dial DialFunc
	// Store, when set, persists every completed run. A nil store means
	// runs are only returned to the caller.
	Store *db.DB
}

// Station owns the instrument connections for one cryostat rig.
type Station struct {
	cfg    *config.Config
	safety *safety.Checker
	store  *db.DB

	magnet *instrument.AMI430
	source *instrument.Keithley6221
	meter  *instrument.Keithley2182A
	smu    *instrument.Keithley2636B
	lockin *instrument.MFLI
	temp   *instrument.Lakeshore372

	mon   *monitor.Monitor
	conns []io.Closer
}

// New connects to every instrument the config assigns a port to.
// Instruments without a port are simply absent; protocols that need them
// fail with ErrMissingInstrument when invoked, not at startup.
func New(cfg *config.Config, opts Options) (*Station, error) {
	dial := opts.Dial
	if dial == nil {
		dial = scpi.Open
	}

	s := &Station{
		cfg:    cfg,
		safety: safety.NewChecker(cfg.SafetyLimits()),
		store:  opts.Store,
	}

	type binding struct {
		name string
		ic   *config.InstrumentConfig
		bind func(*scpi.Conn)
	}
	bindings := []binding{
		{"magnet", cfg.Magnet, func(c *scpi.Conn) { s.magnet = instrument.NewAMI430(c) }},
		{"current_source", cfg.CurrentSource, func(c *scpi.Conn) { s.source = instrument.NewKeithley6221(c) }},
		{"nanovoltmeter", cfg.Nanovoltmeter, func(c *scpi.Conn) { s.meter = instrument.NewKeithley2182A(c) }},
		{"smu", cfg.SMU, func(c *scpi.Conn) { s.smu = instrument.NewKeithley2636B(c) }},
		{"lockin", cfg.LockIn, func(c *scpi.Conn) { s.lockin = instrument.NewMFLI(c) }},
		{"temperature_controller", cfg.TempController, func(c *scpi.Conn) { s.temp = instrument.NewLakeshore372(c) }},
	}

	for _, b := range bindings {
		if !b.ic.Configured() {
			continue
		}
		mode := scpi.DefaultPortMode()
		mode.BaudRate = b.ic.GetBaudRate()
		conn, err := dial(b.ic.GetPort(), mode)
		if err != nil {
			s.closeConns()
			return nil, fmt.Errorf("connect %s at %s: %w", b.name, b.ic.GetPort(), err)
		}
		conn.SetTerminator(b.ic.GetTerminator())
		s.conns = append(s.conns, conn)
		b.bind(conn)
		monitoring.Logf("station: connected %s at %s", b.name, b.ic.GetPort())
	}

	return s, nil
}

// Safety exposes the station's limit checker.
func (s *Station) Safety() *safety.Checker { return s.safety }

func (s *Station) closeConns() {
	for _, c := range s.conns {
		if err := c.Close(); err != nil {
			monitoring.Logf("station: close connection: %v", err)
		}
	}
	s.conns = nil
}

// Close stops any background monitoring and closes all instrument
// connections. Runs still buffered in the monitor are discarded; call
// StopMonitoring first to keep them.
func (s *Station) Close() error {
	if s.mon != nil {
		s.mon.Stop()
	}
	s.closeConns()
	return nil
}

// probe builds the shared averaged-measurement primitive over the current
// source and nanovoltmeter.
func (s *Station) probe() (*sweep.Probe, error) {
	if s.source == nil || s.meter == nil {
		return nil, fmt.Errorf("probe needs current source and nanovoltmeter: %w", ErrMissingInstrument)
	}
	return &sweep.Probe{
		Source:   s.source,
		Meter:    s.meter,
		Averages: s.cfg.GetAverages(),
	}, nil
}

// Delta-mode source levels for DC transport: alternating +/-1 uA with a
// 1 ms inter-level delay cancels thermal EMF offsets in the voltage reading.
const (
	dcDeltaHigh  = 1e-6
	dcDeltaLow   = -1e-6
	dcDeltaDelay = 0.001
)

// SetupDCTransport configures the source/meter pair for DC transport: the
// source fixed on the delta range and armed in delta mode, the meter
// autoranged at 1 NPLC.
func (s *Station) SetupDCTransport() error {
	if s.source == nil || s.meter == nil {
		return fmt.Errorf("setup dc transport needs current source and nanovoltmeter: %w", ErrMissingInstrument)
	}
	if err := s.source.SetCurrentRange(dcDeltaHigh); err != nil {
		return fmt.Errorf("set current range: %w", err)
	}
	if err := s.source.ConfigureDeltaMode(dcDeltaHigh, dcDeltaLow, dcDeltaDelay); err != nil {
		return err
	}
	if err := s.meter.SetAutoRange(true); err != nil {
		return fmt.Errorf("set autorange: %w", err)
	}
	if err := s.meter.NPLC().Set(1); err != nil {
		return fmt.Errorf("set nplc: %w", err)
	}
	return nil
}

// SetFieldRampRate validates and applies a magnet ramp rate in T/min on
// both axes.
func (s *Station) SetFieldRampRate(tPerMin float64) error {
	if s.magnet == nil {
		return fmt.Errorf("set field ramp rate: %w", ErrMissingInstrument)
	}
	if !s.safety.CheckFieldRampRate(tPerMin) {
		return fmt.Errorf("field ramp rate %g T/min: %w", tPerMin, sweep.ErrUnsafeSweep)
	}
	return s.magnet.SetRampRate(tPerMin)
}

// SetTemperatureRampRate validates and applies a setpoint ramp rate in K/min
// on the configured control loop. A non-positive rate disables ramping.
func (s *Station) SetTemperatureRampRate(kPerMin float64) error {
	if s.temp == nil {
		return fmt.Errorf("set temperature ramp rate: %w", ErrMissingInstrument)
	}
	if kPerMin > 0 && !s.safety.CheckTemperatureRampRate(kPerMin) {
		return fmt.Errorf("temperature ramp rate %g K/min: %w", kPerMin, sweep.ErrUnsafeSweep)
	}
	return s.temp.SetRampRate(s.cfg.GetControlLoop(), kPerMin)
}

// SetHeaterRange selects the heater output range on the configured control
// loop. Range 0 turns the heater off.
func (s *Station) SetHeaterRange(rangeSetting int) error {
	if s.temp == nil {
		return fmt.Errorf("set heater range: %w", ErrMissingInstrument)
	}
	return s.temp.SetHeaterRange(s.cfg.GetControlLoop(), rangeSetting)
}

// EmergencyStop zeroes and disables every output-capable instrument and
// pauses any field ramp. Errors are collected, not short-circuited: every
// instrument gets its shutdown attempt.
func (s *Station) EmergencyStop() error {
	var errs []error
	if s.source != nil {
		if err := s.source.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("current source: %w", err))
		}
	}
	if s.smu != nil {
		if err := s.smu.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("smu: %w", err))
		}
	}
	if s.magnet != nil {
		if err := s.magnet.Pause(); err != nil {
			errs = append(errs, fmt.Errorf("magnet: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Status is a point-in-time snapshot of the rig.
type Status struct {
	Connected         []string
	Field             *instrument.FieldVector
	FieldRampRate     *float64
	SampleTemperature *float64
	MonitorRunning    bool
}

// Status reads back whatever the connected instruments report. A readback
// failure drops that entry from the snapshot rather than failing the whole
// status call.
func (s *Station) Status() Status {
	var st Status
	if s.magnet != nil {
		st.Connected = append(st.Connected, "magnet")
		if f, err := s.magnet.Field(); err == nil {
			st.Field = &f
		} else {
			monitoring.Logf("station: field readback: %v", err)
		}
		if r, err := s.magnet.RampRate(); err == nil {
			st.FieldRampRate = &r
		} else {
			monitoring.Logf("station: ramp rate readback: %v", err)
		}
	}
	if s.source != nil {
		st.Connected = append(st.Connected, "current_source")
	}
	if s.meter != nil {
		st.Connected = append(st.Connected, "nanovoltmeter")
	}
	if s.smu != nil {
		st.Connected = append(st.Connected, "smu")
	}
	if s.lockin != nil {
		st.Connected = append(st.Connected, "lockin")
	}
	if s.temp != nil {
		st.Connected = append(st.Connected, "temperature_controller")
		if t, err := s.temp.SampleTemperature(); err == nil {
			st.SampleTemperature = &t
		} else {
			monitoring.Logf("station: temperature readback: %v", err)
		}
	}
	st.MonitorRunning = s.mon != nil && s.mon.Running()
	return st
}

// saveRun persists a run when a store is attached.
func (s *Station) saveRun(ctx context.Context, run *sweep.RunResult) error {
	if s.store == nil || run == nil {
		return nil
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("persist run %s: %w", run.ID, err)
	}
	return nil
}

// finishRun persists a run, partial or complete, before handing it back. A
// sweep error takes precedence: a persistence failure on an already-broken
// run is only logged.
func (s *Station) finishRun(ctx context.Context, run *sweep.RunResult, sweepErr error) (*sweep.RunResult, error) {
	saveErr := s.saveRun(ctx, run)
	if sweepErr != nil {
		if saveErr != nil {
			monitoring.Logf("station: persist partial run: %v", saveErr)
		}
		return run, sweepErr
	}
	return run, saveErr
}

func (s *Station) saveRuns(ctx context.Context, runs []*sweep.RunResult) error {
	for _, run := range runs {
		if err := s.saveRun(ctx, run); err != nil {
			return err
		}
	}
	return nil
}

package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/attolab/cryosweep/internal/instrument"
)

// fakeScalar records every Set and serves Get from the last value written.
type fakeScalar struct {
	value  float64
	sets   []float64
	setErr error
	getErr error
}

func (s *fakeScalar) Get() (float64, error) { return s.value, s.getErr }

func (s *fakeScalar) Set(v float64) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.value = v
	s.sets = append(s.sets, v)
	return nil
}

type fakeSwitch struct {
	on   bool
	sets []bool
	err  error
}

func (s *fakeSwitch) Get() (bool, error) { return s.on, s.err }

func (s *fakeSwitch) Set(v bool) error {
	if s.err != nil {
		return s.err
	}
	s.on = v
	s.sets = append(s.sets, v)
	return nil
}

type fakeSource struct {
	current    fakeScalar
	compliance fakeScalar
	output     fakeSwitch
}

func (f *fakeSource) Current() instrument.Scalar           { return &f.current }
func (f *fakeSource) ComplianceVoltage() instrument.Scalar { return &f.compliance }
func (f *fakeSource) Output() instrument.Switch            { return &f.output }

// fakeMeter models an ohmic device: the voltage reading is the source's
// current setpoint times a fixed resistance.
type fakeMeter struct {
	source     *fakeSource
	resistance float64

	reads     int
	failAfter int // reads before returning err; 0 means never fail
	err       error
}

func (m *fakeMeter) Voltage() (float64, error) {
	m.reads++
	if m.failAfter > 0 && m.reads > m.failAfter {
		return 0, m.err
	}
	return m.source.current.value * m.resistance, nil
}

type fakeChannel struct {
	current fakeScalar
	voltage fakeScalar
	output  fakeSwitch
}

type fakeSMU struct {
	a, b fakeChannel

	currentSourced []instrument.ChannelID
	voltageSourced []instrument.ChannelID
	voltageLimits  map[instrument.ChannelID]float64
	currentLimits  map[instrument.ChannelID]float64
}

func (f *fakeSMU) channel(id instrument.ChannelID) (*fakeChannel, error) {
	switch id {
	case instrument.ChannelA:
		return &f.a, nil
	case instrument.ChannelB:
		return &f.b, nil
	}
	return nil, fmt.Errorf("unknown channel %q", id)
}

func (f *fakeSMU) Channel(id instrument.ChannelID) (*instrument.SMUChannel, error) {
	ch, err := f.channel(id)
	if err != nil {
		return nil, err
	}
	return &instrument.SMUChannel{
		ID:      id,
		Current: &ch.current,
		Voltage: &ch.voltage,
		Output:  &ch.output,
	}, nil
}

func (f *fakeSMU) ConfigureCurrentSource(id instrument.ChannelID) error {
	f.currentSourced = append(f.currentSourced, id)
	return nil
}

func (f *fakeSMU) ConfigureVoltageSource(id instrument.ChannelID) error {
	f.voltageSourced = append(f.voltageSourced, id)
	return nil
}

func (f *fakeSMU) SetVoltageLimit(id instrument.ChannelID, limit float64) error {
	if f.voltageLimits == nil {
		f.voltageLimits = make(map[instrument.ChannelID]float64)
	}
	f.voltageLimits[id] = limit
	return nil
}

func (f *fakeSMU) SetCurrentLimit(id instrument.ChannelID, limit float64) error {
	if f.currentLimits == nil {
		f.currentLimits = make(map[instrument.ChannelID]float64)
	}
	f.currentLimits[id] = limit
	return nil
}

type fakeLockIn struct {
	x, y float64

	freq fakeScalar
	amp  fakeScalar
	tc   fakeScalar
}

func (l *fakeLockIn) AmplitudeX() (float64, error)    { return l.x, nil }
func (l *fakeLockIn) AmplitudeY() (float64, error)    { return l.y, nil }
func (l *fakeLockIn) Frequency() instrument.Scalar    { return &l.freq }
func (l *fakeLockIn) Amplitude() instrument.Scalar    { return &l.amp }
func (l *fakeLockIn) TimeConstant() instrument.Scalar { return &l.tc }

// fakeMagnet completes every ramp instantly and serves the commanded field
// back as its readback.
type fakeMagnet struct {
	field  instrument.FieldVector
	ramps  []instrument.FieldVector
	status string // "" means HOLDING

	rampErr error
}

func (m *fakeMagnet) Field() (instrument.FieldVector, error) { return m.field, nil }

func (m *fakeMagnet) StartRamp(target instrument.FieldVector) error {
	if m.rampErr != nil {
		return m.rampErr
	}
	m.ramps = append(m.ramps, target)
	m.field = target
	return nil
}

func (m *fakeMagnet) Status() (string, error) {
	if m.status == "" {
		return instrument.StatusHolding, nil
	}
	return m.status, nil
}

func (m *fakeMagnet) Pause() error { return nil }

type fakeTempController struct {
	setpoint fakeScalar
	sample   float64

	settled bool
	waits   int
}

func (f *fakeTempController) Setpoint(loop int) instrument.Scalar { return &f.setpoint }

func (f *fakeTempController) Temperature(channel int) (float64, error) { return f.sample, nil }

func (f *fakeTempController) SampleTemperature() (float64, error) { return f.sample, nil }

func (f *fakeTempController) WaitForTemperature(ctx context.Context, loop int, target, tolerance float64, timeout time.Duration) (bool, error) {
	f.waits++
	return f.settled, nil
}

// Package instrument defines the capability interfaces the measurement
// engines depend on, plus thin drivers for the physical devices on the rig.
//
// Engines never depend on a concrete driver, only on these interfaces: which
// box actually satisfies them is decided once, at station construction time.
package instrument

import (
	"context"
	"math"
	"time"
)

// Scalar is a single settable instrument parameter (a current, a voltage, a
// time constant). Both directions can fail with a communication error.
type Scalar interface {
	Get() (float64, error)
	Set(float64) error
}

// Switch is a boolean instrument parameter, typically an output-enable relay.
type Switch interface {
	Get() (bool, error)
	Set(bool) error
}

// FieldVector is an in-plane magnetic field in Tesla. The magnet hardware is
// the single source of truth for the current field: readbacks, not cached
// vectors, are authoritative.
type FieldVector struct {
	X float64
	Y float64
}

// Magnitude returns the vector magnitude in Tesla.
func (f FieldVector) Magnitude() float64 {
	return math.Sqrt(f.X*f.X + f.Y*f.Y)
}

// Angle returns the field angle in degrees, in atan2's native
// [-180, 180] range. Callers sweeping through ±180° will observe a
// discontinuity in this readback; that is inherent to the representation.
func (f FieldVector) Angle() float64 {
	return math.Atan2(f.Y, f.X) * 180 / math.Pi
}

// PolarField builds a FieldVector from magnitude and angle in degrees.
func PolarField(magnitude, angleDeg float64) FieldVector {
	rad := angleDeg * math.Pi / 180
	return FieldVector{
		X: magnitude * math.Cos(rad),
		Y: magnitude * math.Sin(rad),
	}
}

// StatusHolding is the magnet controller state once a ramp has completed
// and the field is being held at the setpoint.
const StatusHolding = "HOLDING"

// Magnet is a vector magnet power supply.
type Magnet interface {
	// Field reads the current field vector from the hardware.
	Field() (FieldVector, error)
	// StartRamp commands new setpoints and begins ramping toward them.
	// It does not wait for completion.
	StartRamp(target FieldVector) error
	// Status returns the controller state readback, e.g. "HOLDING" once a
	// ramp has completed.
	Status() (string, error)
	// Pause halts any ramp in progress.
	Pause() error
}

// CurrentSource is a precision DC current source.
type CurrentSource interface {
	Current() Scalar
	ComplianceVoltage() Scalar
	Output() Switch
}

// Voltmeter is a precision DC voltmeter.
type Voltmeter interface {
	// Voltage triggers and returns one reading.
	Voltage() (float64, error)
}

// ChannelID names one channel of a multi-channel source-measure unit.
type ChannelID string

const (
	ChannelA ChannelID = "a"
	ChannelB ChannelID = "b"
)

// SMUChannel is the accessor set for one SMU channel, resolved once at
// configuration time rather than looked up per access.
type SMUChannel struct {
	ID      ChannelID
	Current Scalar
	Voltage Scalar
	Output  Switch
}

// SMU is a multi-channel source-measure unit.
type SMU interface {
	// Channel resolves the accessor set for a channel. Unknown channel IDs
	// are a configuration error, reported here rather than at first use.
	Channel(id ChannelID) (*SMUChannel, error)
	// ConfigureCurrentSource puts a channel into current-sourcing mode.
	ConfigureCurrentSource(id ChannelID) error
	// ConfigureVoltageSource puts a channel into voltage-sourcing mode.
	ConfigureVoltageSource(id ChannelID) error
	// SetVoltageLimit sets the compliance voltage for a channel.
	SetVoltageLimit(id ChannelID, limit float64) error
	// SetCurrentLimit sets the compliance current for a channel.
	SetCurrentLimit(id ChannelID, limit float64) error
}

// LockIn is a lock-in amplifier demodulating at a reference frequency.
type LockIn interface {
	AmplitudeX() (float64, error)
	AmplitudeY() (float64, error)
	Frequency() Scalar
	Amplitude() Scalar
	TimeConstant() Scalar
}

// TempController is a multi-loop cryostat temperature controller.
type TempController interface {
	// Setpoint returns the setpoint parameter for a control loop.
	Setpoint(loop int) Scalar
	// Temperature reads one sensor channel in Kelvin.
	Temperature(channel int) (float64, error)
	// SampleTemperature reads the channel the sample thermometer is on.
	SampleTemperature() (float64, error)
	// WaitForTemperature blocks until the loop's input channel is within
	// tolerance of target, or timeout elapses. Returns false on timeout;
	// a timeout is reported, not an error.
	WaitForTemperature(ctx context.Context, loop int, target, tolerance float64, timeout time.Duration) (bool, error)
}

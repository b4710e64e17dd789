package instrument

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/attolab/cryosweep/internal/scpi"
	"github.com/attolab/cryosweep/internal/settle"
)

// Sensor channel assignments on the LD-400 insert.
const (
	ChannelCold          = 4
	ChannelStill         = 5
	ChannelMixingChamber = 6
)

// defaultCheckInterval is the temperature poll cadence; dilution fridge
// thermometry updates slowly, so polling faster just loads the scanner.
const defaultCheckInterval = 10 * time.Second

// Lakeshore372 drives the Model 372 AC resistance bridge and temperature
// controller.
type Lakeshore372 struct {
	conn *scpi.Conn
}

// NewLakeshore372 wraps an open connection to the temperature controller.
func NewLakeshore372(conn *scpi.Conn) *Lakeshore372 {
	return &Lakeshore372{conn: conn}
}

// Setpoint returns the setpoint parameter for a control loop in K.
func (l *Lakeshore372) Setpoint(loop int) Scalar {
	return scpi.FloatParam{
		Conn:      l.conn,
		Query:     fmt.Sprintf("SETP? %d", loop),
		SetFormat: fmt.Sprintf("SETP %d,%%.6f", loop),
	}
}

// Temperature reads one sensor channel in K.
func (l *Lakeshore372) Temperature(channel int) (float64, error) {
	return l.conn.AskFloat(fmt.Sprintf("KRDG? %d", channel))
}

// SampleTemperature reads the mixing chamber thermometer, the channel the
// sample stage is referenced to.
func (l *Lakeshore372) SampleTemperature() (float64, error) {
	return l.Temperature(ChannelMixingChamber)
}

// ControlInput returns the sensor channel a control loop regulates on.
func (l *Lakeshore372) ControlInput(loop int) (int, error) {
	resp, err := l.conn.Ask(fmt.Sprintf("CSET? %d", loop))
	if err != nil {
		return 0, err
	}
	fields := strings.Split(resp, ",")
	ch, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return 0, fmt.Errorf("parse control input from %q: %w", resp, err)
	}
	return ch, nil
}

// SetHeaterRange selects the heater output range for a loop (0 = off).
func (l *Lakeshore372) SetHeaterRange(loop, rangeSetting int) error {
	return l.conn.Write(fmt.Sprintf("RANGE %d,%d", loop, rangeSetting))
}

// SetRampRate enables setpoint ramping for a loop at the given rate in
// K/min. A non-positive rate disables ramping so setpoint changes step
// immediately.
func (l *Lakeshore372) SetRampRate(loop int, kPerMin float64) error {
	if kPerMin <= 0 {
		return l.conn.Write(fmt.Sprintf("RAMP %d,0,0", loop))
	}
	return l.conn.Write(fmt.Sprintf("RAMP %d,1,%.3f", loop, kPerMin))
}

// WaitForTemperature polls the loop's input channel until it is within
// tolerance of target, or timeout elapses. Returns false on a timeout —
// reported, not raised — and an error only for communication failures.
func (l *Lakeshore372) WaitForTemperature(ctx context.Context, loop int, target, tolerance float64, timeout time.Duration) (bool, error) {
	channel, err := l.ControlInput(loop)
	if err != nil {
		return false, fmt.Errorf("resolve control input for loop %d: %w", loop, err)
	}
	return settle.Wait(ctx, func() (float64, error) { return l.Temperature(channel) },
		target, tolerance, timeout, defaultCheckInterval)
}

package instrument

import (
	"fmt"

	"github.com/attolab/cryosweep/internal/scpi"
)

// AMI430 drives the AMI Model 430 two-axis magnet power supply. Setpoint
// writes stage the target; the RAMP command starts the excursion and the
// STATE? readback reports "HOLDING" once both axes have arrived.
type AMI430 struct {
	conn *scpi.Conn

	fieldX    scpi.FloatParam
	fieldY    scpi.FloatParam
	rampRateX scpi.FloatParam
	rampRateY scpi.FloatParam
}

// NewAMI430 wraps an open connection to the magnet controller.
func NewAMI430(conn *scpi.Conn) *AMI430 {
	return &AMI430{
		conn:      conn,
		fieldX:    scpi.FloatParam{Conn: conn, Query: "FIELD:MAG:X?", SetFormat: "CONF:FIELD:MAG:X %.6f"},
		fieldY:    scpi.FloatParam{Conn: conn, Query: "FIELD:MAG:Y?", SetFormat: "CONF:FIELD:MAG:Y %.6f"},
		rampRateX: scpi.FloatParam{Conn: conn, Query: "RAMP:RATE:FIELD:X?", SetFormat: "CONF:RAMP:RATE:FIELD:X %.4f"},
		rampRateY: scpi.FloatParam{Conn: conn, Query: "RAMP:RATE:FIELD:Y?", SetFormat: "CONF:RAMP:RATE:FIELD:Y %.4f"},
	}
}

// Field reads the live field vector from both axes.
func (m *AMI430) Field() (FieldVector, error) {
	x, err := m.fieldX.Get()
	if err != nil {
		return FieldVector{}, fmt.Errorf("read field x: %w", err)
	}
	y, err := m.fieldY.Get()
	if err != nil {
		return FieldVector{}, fmt.Errorf("read field y: %w", err)
	}
	return FieldVector{X: x, Y: y}, nil
}

// StartRamp stages both axis setpoints and starts the ramp. It returns as
// soon as the RAMP command is accepted.
func (m *AMI430) StartRamp(target FieldVector) error {
	if err := m.fieldX.Set(target.X); err != nil {
		return fmt.Errorf("stage field x: %w", err)
	}
	if err := m.fieldY.Set(target.Y); err != nil {
		return fmt.Errorf("stage field y: %w", err)
	}
	return m.conn.Write("RAMP")
}

// Status returns the controller state readback.
func (m *AMI430) Status() (string, error) {
	return m.conn.Ask("STATE?")
}

// Pause halts any ramp in progress, leaving the field where it is.
func (m *AMI430) Pause() error {
	return m.conn.Write("PAUSE")
}

// SetRampRate sets both axis ramp rates in T/min.
func (m *AMI430) SetRampRate(tPerMin float64) error {
	if err := m.rampRateX.Set(tPerMin); err != nil {
		return fmt.Errorf("set ramp rate x: %w", err)
	}
	if err := m.rampRateY.Set(tPerMin); err != nil {
		return fmt.Errorf("set ramp rate y: %w", err)
	}
	return nil
}

// RampRate reads the X-axis ramp rate; both axes are kept identical.
func (m *AMI430) RampRate() (float64, error) {
	return m.rampRateX.Get()
}

package instrument

import (
	"math"

	"github.com/attolab/cryosweep/internal/scpi"
)

// MFLI drives a Zurich Instruments MFLI lock-in amplifier through its
// text-command data server gateway. Only the single demodulator used for
// transport measurements is exposed.
type MFLI struct {
	conn *scpi.Conn

	frequency    scpi.FloatParam
	amplitude    scpi.FloatParam
	timeConstant scpi.FloatParam
}

// NewMFLI wraps an open connection to the lock-in gateway.
func NewMFLI(conn *scpi.Conn) *MFLI {
	return &MFLI{
		conn:         conn,
		frequency:    scpi.FloatParam{Conn: conn, Query: "OSC:FREQ?", SetFormat: "OSC:FREQ %.6f"},
		amplitude:    scpi.FloatParam{Conn: conn, Query: "SIGOUT:AMP?", SetFormat: "SIGOUT:AMP %.9f"},
		timeConstant: scpi.FloatParam{Conn: conn, Query: "DEMOD:TC?", SetFormat: "DEMOD:TC %.6f"},
	}
}

// AmplitudeX reads the in-phase demodulator output in V.
func (m *MFLI) AmplitudeX() (float64, error) {
	return m.conn.AskFloat("DEMOD:SAMPLE:X?")
}

// AmplitudeY reads the quadrature demodulator output in V.
func (m *MFLI) AmplitudeY() (float64, error) {
	return m.conn.AskFloat("DEMOD:SAMPLE:Y?")
}

func (m *MFLI) Frequency() Scalar    { return m.frequency }
func (m *MFLI) Amplitude() Scalar    { return m.amplitude }
func (m *MFLI) TimeConstant() Scalar { return m.timeConstant }

// AmplitudeR reads both components and returns the magnitude in V.
func (m *MFLI) AmplitudeR() (float64, error) {
	x, err := m.AmplitudeX()
	if err != nil {
		return 0, err
	}
	y, err := m.AmplitudeY()
	if err != nil {
		return 0, err
	}
	return math.Hypot(x, y), nil
}

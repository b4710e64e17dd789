package instrument

import (
	"fmt"
	"time"

	"github.com/attolab/cryosweep/internal/scpi"
)

// Keithley2182A drives the Model 2182A nanovoltmeter.
type Keithley2182A struct {
	conn *scpi.Conn

	nplc scpi.FloatParam
}

// NewKeithley2182A wraps an open connection to the nanovoltmeter.
func NewKeithley2182A(conn *scpi.Conn) *Keithley2182A {
	return &Keithley2182A{
		conn: conn,
		nplc: scpi.FloatParam{Conn: conn, Query: "SENS:VOLT:NPLC?", SetFormat: "SENS:VOLT:NPLC %.2f"},
	}
}

// Voltage triggers and returns one reading in V.
func (k *Keithley2182A) Voltage() (float64, error) {
	return k.conn.AskFloat("READ?")
}

// NPLC is the integration time in power-line cycles.
func (k *Keithley2182A) NPLC() Scalar { return k.nplc }

// SetAutoRange enables or disables voltage autoranging.
func (k *Keithley2182A) SetAutoRange(on bool) error {
	if on {
		return k.conn.Write("SENS:VOLT:RANG:AUTO ON")
	}
	return k.conn.Write("SENS:VOLT:RANG:AUTO OFF")
}

// TakeMeasurement returns the arithmetic mean of n consecutive readings with
// a short fixed delay between them.
func (k *Keithley2182A) TakeMeasurement(n int) (float64, error) {
	if n < 1 {
		return 0, fmt.Errorf("average count must be >= 1, got %d", n)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		v, err := k.Voltage()
		if err != nil {
			return 0, err
		}
		sum += v
		if i < n-1 {
			time.Sleep(50 * time.Millisecond)
		}
	}
	return sum / float64(n), nil
}

package instrument

import (
	"fmt"

	"github.com/attolab/cryosweep/internal/scpi"
)

// Keithley6221 drives the Model 6221 AC/DC current source. Paired over its
// RS-232 link with a 2182A nanovoltmeter it also runs delta-mode
// measurements, alternating source polarity to cancel thermal EMFs.
type Keithley6221 struct {
	conn *scpi.Conn

	current    scpi.FloatParam
	compliance scpi.FloatParam
	output     scpi.BoolParam
}

// NewKeithley6221 wraps an open connection to the current source.
func NewKeithley6221(conn *scpi.Conn) *Keithley6221 {
	return &Keithley6221{
		conn:       conn,
		current:    scpi.FloatParam{Conn: conn, Query: "SOUR:CURR?", SetFormat: "SOUR:CURR %.9e"},
		compliance: scpi.FloatParam{Conn: conn, Query: "SOUR:CURR:COMP?", SetFormat: "SOUR:CURR:COMP %.4f"},
		output:     scpi.BoolParam{Conn: conn, Query: "OUTP?", OnCmd: "OUTP ON", OffCmd: "OUTP OFF"},
	}
}

func (k *Keithley6221) Current() Scalar           { return k.current }
func (k *Keithley6221) ComplianceVoltage() Scalar { return k.compliance }
func (k *Keithley6221) Output() Switch            { return k.output }

// SetCurrentRange fixes the source range in A, disabling autoranging.
func (k *Keithley6221) SetCurrentRange(amps float64) error {
	return k.conn.Write(fmt.Sprintf("SOUR:CURR:RANG %.9e", amps))
}

// ConfigureDeltaMode arms delta mode with the given high/low current levels
// and inter-level delay in seconds.
func (k *Keithley6221) ConfigureDeltaMode(high, low, delay float64) error {
	for _, cmd := range []string{
		fmt.Sprintf("SOUR:DELT:HIGH %.9e", high),
		fmt.Sprintf("SOUR:DELT:LOW %.9e", low),
		fmt.Sprintf("SOUR:DELT:DEL %.6f", delay),
		"SOUR:DELT:ARM",
	} {
		if err := k.conn.Write(cmd); err != nil {
			return fmt.Errorf("configure delta mode: %w", err)
		}
	}
	return nil
}

// Shutdown zeroes the output and disables it. Safe to call repeatedly.
func (k *Keithley6221) Shutdown() error {
	if err := k.current.Set(0); err != nil {
		return err
	}
	return k.output.Set(false)
}

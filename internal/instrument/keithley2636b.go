package instrument

import (
	"fmt"

	"github.com/attolab/cryosweep/internal/scpi"
)

// Keithley2636B drives the Model 2636B dual-channel source-measure unit via
// its TSP command set. The channel accessor table is built once in the
// constructor; Channel is a map lookup, never a per-access string build.
type Keithley2636B struct {
	conn     *scpi.Conn
	channels map[ChannelID]*SMUChannel
}

// NewKeithley2636B wraps an open connection to the SMU.
func NewKeithley2636B(conn *scpi.Conn) *Keithley2636B {
	k := &Keithley2636B{
		conn:     conn,
		channels: make(map[ChannelID]*SMUChannel),
	}
	for _, id := range []ChannelID{ChannelA, ChannelB} {
		node := "smu" + string(id)
		k.channels[id] = &SMUChannel{
			ID: id,
			Current: scpi.FloatParam{
				Conn:      conn,
				Query:     fmt.Sprintf("print(%s.measure.i())", node),
				SetFormat: node + ".source.leveli = %.9e",
			},
			Voltage: scpi.FloatParam{
				Conn:      conn,
				Query:     fmt.Sprintf("print(%s.measure.v())", node),
				SetFormat: node + ".source.levelv = %.6f",
			},
			Output: scpi.BoolParam{
				Conn:   conn,
				Query:  fmt.Sprintf("print(%s.source.output)", node),
				OnCmd:  node + ".source.output = 1",
				OffCmd: node + ".source.output = 0",
				// TSP prints booleans as floats
				OnValues: []string{"1", "1.0", "1.00000e+00"},
			},
		}
	}
	return k
}

// Channel resolves the accessor set for one channel.
func (k *Keithley2636B) Channel(id ChannelID) (*SMUChannel, error) {
	ch, ok := k.channels[id]
	if !ok {
		return nil, fmt.Errorf("smu has no channel %q", id)
	}
	return ch, nil
}

// ConfigureCurrentSource puts a channel into current-sourcing mode.
func (k *Keithley2636B) ConfigureCurrentSource(id ChannelID) error {
	if _, err := k.Channel(id); err != nil {
		return err
	}
	return k.conn.Write(fmt.Sprintf("smu%s.source.func = smu%s.OUTPUT_DCAMPS", id, id))
}

// ConfigureVoltageSource puts a channel into voltage-sourcing mode.
func (k *Keithley2636B) ConfigureVoltageSource(id ChannelID) error {
	if _, err := k.Channel(id); err != nil {
		return err
	}
	return k.conn.Write(fmt.Sprintf("smu%s.source.func = smu%s.OUTPUT_DCVOLTS", id, id))
}

// SetVoltageLimit sets the compliance voltage for a channel.
func (k *Keithley2636B) SetVoltageLimit(id ChannelID, limit float64) error {
	if _, err := k.Channel(id); err != nil {
		return err
	}
	return k.conn.Write(fmt.Sprintf("smu%s.source.limitv = %.6f", id, limit))
}

// SetCurrentLimit sets the compliance current for a channel.
func (k *Keithley2636B) SetCurrentLimit(id ChannelID, limit float64) error {
	if _, err := k.Channel(id); err != nil {
		return err
	}
	return k.conn.Write(fmt.Sprintf("smu%s.source.limiti = %.9e", id, limit))
}

// Shutdown zeroes and disables both channels. Safe to call repeatedly.
func (k *Keithley2636B) Shutdown() error {
	for _, id := range []ChannelID{ChannelA, ChannelB} {
		ch := k.channels[id]
		if err := ch.Voltage.Set(0); err != nil {
			return err
		}
		if err := ch.Current.Set(0); err != nil {
			return err
		}
		if err := ch.Output.Set(false); err != nil {
			return err
		}
	}
	return nil
}

package scpi

import (
	"go.bug.st/serial"
)

// Open opens a Conn backed by a real serial port at the given path.
func Open(path string, mode *PortMode) (*Conn, error) {
	if mode == nil {
		mode = DefaultPortMode()
	}

	sm := &serial.Mode{
		BaudRate: mode.BaudRate,
		DataBits: mode.DataBits,
	}
	switch mode.Parity {
	case OddParity:
		sm.Parity = serial.OddParity
	case EvenParity:
		sm.Parity = serial.EvenParity
	default:
		sm.Parity = serial.NoParity
	}
	switch mode.StopBits {
	case TwoStopBits:
		sm.StopBits = serial.TwoStopBits
	default:
		sm.StopBits = serial.OneStopBit
	}

	port, err := serial.Open(path, sm)
	if err != nil {
		return nil, err
	}

	return NewConn(port), nil
}

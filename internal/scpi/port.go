package scpi

import (
	"io"
)

// Porter defines the minimal interface needed for an instrument port.
// This abstraction enables unit testing without real hardware on the bench.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// Parity defines serial port parity options.
type Parity int

const (
	NoParity Parity = iota
	OddParity
	EvenParity
)

// StopBits defines serial port stop bit options.
type StopBits int

const (
	OneStopBit StopBits = iota
	TwoStopBits
)

// PortMode defines serial port configuration parameters.
type PortMode struct {
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits StopBits
}

// DefaultPortMode returns the mode used by the bench instruments
// (Keithley and Lakeshore serial interfaces ship at 9600 8N1).
func DefaultPortMode() *PortMode {
	return &PortMode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   NoParity,
		StopBits: OneStopBit,
	}
}

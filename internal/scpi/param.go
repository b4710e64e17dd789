package scpi

import (
	"fmt"
	"strings"
)

// FloatParam binds a query command and a set-format command to one scalar
// instrument parameter, e.g. {Query: "SOUR:CURR?", SetFormat: "SOUR:CURR %.9f"}.
// A FloatParam with an empty SetFormat is read-only; setting it fails.
type FloatParam struct {
	Conn      *Conn
	Query     string
	SetFormat string
}

func (p FloatParam) Get() (float64, error) {
	return p.Conn.AskFloat(p.Query)
}

func (p FloatParam) Set(value float64) error {
	if p.SetFormat == "" {
		return fmt.Errorf("parameter %q is read-only", p.Query)
	}
	return p.Conn.Write(fmt.Sprintf(p.SetFormat, value))
}

// BoolParam binds a query command and a pair of set commands to one on/off
// instrument parameter, e.g. an output-enable relay.
type BoolParam struct {
	Conn   *Conn
	Query  string
	OnCmd  string
	OffCmd string

	// OnValues lists query responses that mean "on". Defaults to "1"/"ON".
	OnValues []string
}

func (p BoolParam) Get() (bool, error) {
	resp, err := p.Conn.Ask(p.Query)
	if err != nil {
		return false, err
	}
	resp = strings.TrimSpace(resp)
	onValues := p.OnValues
	if len(onValues) == 0 {
		onValues = []string{"1", "ON"}
	}
	for _, v := range onValues {
		if strings.EqualFold(resp, v) {
			return true, nil
		}
	}
	return false, nil
}

func (p BoolParam) Set(on bool) error {
	if on {
		return p.Conn.Write(p.OnCmd)
	}
	return p.Conn.Write(p.OffCmd)
}

package scpi

import (
	"errors"
	"strings"
	"testing"
)

func TestWriteAppendsTerminator(t *testing.T) {
	conn, port := NewMockConn()

	if err := conn.Write("OUTP ON"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := string(port.WrittenData); got != "OUTP ON\r\n" {
		t.Errorf("written %q, want %q", got, "OUTP ON\r\n")
	}
}

func TestAskRoundTrip(t *testing.T) {
	conn, port := NewMockConn("HOLDING")

	resp, err := conn.Ask("STATE?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "HOLDING" {
		t.Errorf("response %q, want %q", resp, "HOLDING")
	}
	if !strings.HasPrefix(string(port.WrittenData), "STATE?") {
		t.Errorf("query was not written, got %q", port.WrittenData)
	}
}

func TestAskFloat(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     float64
		wantErr  bool
	}{
		{"plain float", "1.234", 1.234, false},
		{"scientific notation", "9.99e-07", 9.99e-07, false},
		{"padded response", "  -2.5 ", -2.5, false},
		{"garbage response", "ERR -113", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, _ := NewMockConn(tt.response)
			got, err := conn.AskFloat("FIELD:MAG:X?")
			if tt.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWriteErrorPropagates(t *testing.T) {
	wantErr := errors.New("port unplugged")
	port := &MockPort{WriteError: wantErr}
	conn := NewConn(port)

	if err := conn.Write("SOUR:CURR 0"); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped %v", err, wantErr)
	}
}

func TestAskReadErrorPropagates(t *testing.T) {
	// no response data queued: the read hits EOF
	conn, _ := NewMockConn()
	if _, err := conn.Ask("*IDN?"); err == nil {
		t.Error("expected error when instrument sends no response")
	}
}

func TestFloatParam(t *testing.T) {
	conn, port := NewMockConn("0.005")
	p := FloatParam{Conn: conn, Query: "SOUR:CURR?", SetFormat: "SOUR:CURR %.9f"}

	got, err := p.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0.005 {
		t.Errorf("got %v, want 0.005", got)
	}

	if err := p.Set(1e-6); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(port.WrittenData), "SOUR:CURR 0.000001000") {
		t.Errorf("set command not written, got %q", port.WrittenData)
	}
}

func TestFloatParamReadOnly(t *testing.T) {
	conn, _ := NewMockConn()
	p := FloatParam{Conn: conn, Query: "FIELD:MAG?"}
	if err := p.Set(1.0); err == nil {
		t.Error("expected error setting a read-only parameter")
	}
}

func TestBoolParam(t *testing.T) {
	conn, port := NewMockConn("1", "OFF")
	p := BoolParam{Conn: conn, Query: "OUTP?", OnCmd: "OUTP ON", OffCmd: "OUTP OFF"}

	on, err := p.Get()
	if err != nil || !on {
		t.Fatalf("got %v, %v; want on", on, err)
	}
	on, err = p.Get()
	if err != nil || on {
		t.Fatalf("got %v, %v; want off", on, err)
	}

	if err := p.Set(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Set(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	written := string(port.WrittenData)
	if !strings.Contains(written, "OUTP ON") || !strings.Contains(written, "OUTP OFF") {
		t.Errorf("on/off commands not written, got %q", written)
	}
}

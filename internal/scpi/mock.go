package scpi

import (
	"io"
	"time"
)

// MockPort implements Porter for testing without hardware.
type MockPort struct {
	ReadData    []byte
	WrittenData []byte
	ReadError   error
	WriteError  error
	CloseError  error
	Closed      bool
	ReadDelay   time.Duration
}

func (m *MockPort) Read(p []byte) (n int, err error) {
	if m.ReadError != nil {
		return 0, m.ReadError
	}
	if m.ReadDelay > 0 {
		time.Sleep(m.ReadDelay)
	}
	if len(m.ReadData) == 0 {
		return 0, io.EOF
	}
	n = copy(p, m.ReadData)
	m.ReadData = m.ReadData[n:]
	return n, nil
}

func (m *MockPort) Write(p []byte) (n int, err error) {
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	m.WrittenData = append(m.WrittenData, p...)
	return len(p), nil
}

func (m *MockPort) Close() error {
	m.Closed = true
	return m.CloseError
}

// NewMockConn returns a Conn backed by a MockPort preloaded with the given
// response lines. The MockPort is returned for inspecting written commands.
func NewMockConn(responses ...string) (*Conn, *MockPort) {
	var data []byte
	for _, r := range responses {
		data = append(data, []byte(r+"\r\n")...)
	}
	port := &MockPort{ReadData: data}
	return NewConn(port), port
}

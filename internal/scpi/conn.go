// Package scpi provides a line-oriented command transport for SCPI-style
// instruments, plus parameter bindings that pair a query command with a set
// command behind a typed accessor.
//
// One Conn wraps one physical port. Command round-trips are serialised with a
// mutex so concurrent callers (a sweep and the real-time monitor) cannot
// interleave a write with another caller's read.
package scpi

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

var ErrWriteFailed = fmt.Errorf("failed to write to instrument port")

// Conn is a line-oriented connection to a single instrument.
type Conn struct {
	port Porter
	r    *bufio.Reader
	mu   sync.Mutex

	// terminator appended to outgoing commands; instrument responses are
	// read up to a newline and trimmed of trailing CR/LF.
	terminator string
}

// NewConn wraps an open port. The default command terminator is "\r\n",
// which every instrument on this rig accepts.
func NewConn(port Porter) *Conn {
	return &Conn{
		port:       port,
		r:          bufio.NewReader(port),
		terminator: "\r\n",
	}
}

// SetTerminator overrides the outgoing command terminator.
func (c *Conn) SetTerminator(term string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminator = term
}

// Write sends a bare command that produces no response.
func (c *Conn) Write(command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(command)
}

func (c *Conn) write(command string) error {
	if !strings.HasSuffix(command, c.terminator) {
		command += c.terminator
	}
	n, err := c.port.Write([]byte(command))
	if err != nil {
		return fmt.Errorf("write %q: %w", strings.TrimSpace(command), err)
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Ask sends a query and returns the instrument's one-line response with the
// line terminator stripped. The write and read happen under one lock so the
// response cannot be claimed by another caller.
func (c *Conn) Ask(query string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.write(query); err != nil {
		return "", err
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read response to %q: %w", query, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// AskFloat sends a query and parses the response as a float64.
func (c *Conn) AskFloat(query string) (float64, error) {
	resp, err := c.Ask(query)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(resp), 64)
	if err != nil {
		return 0, fmt.Errorf("response to %q is not a number: %w", query, err)
	}
	return v, nil
}

// Close closes the underlying port.
func (c *Conn) Close() error {
	return c.port.Close()
}

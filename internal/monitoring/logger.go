package monitoring

import "log"

// Logf is the package-level diagnostic logger used across the measurement
// stack. It defaults to log.Printf and may be swapped with SetLogger, e.g.
// to mute output in tests or to route it to a file.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Package monitoring holds the process-wide diagnostic logger and the
// counters that back the debug endpoints and the terminal status bar.
package monitoring

import (
	"fmt"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Subsystem returns a logger that prefixes every line with "[name] ". The
// returned function resolves Logf at call time so SetLogger still applies.
func Subsystem(name string) func(format string, v ...interface{}) {
	prefix := fmt.Sprintf("[%s] ", name)
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}

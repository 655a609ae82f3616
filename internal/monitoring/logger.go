// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import (
	"log"
	"sync/atomic"
)

// LogFunc is the printf-style signature shared by every logger here.
type LogFunc func(format string, v ...interface{})

var current atomic.Value

func init() {
	current.Store(LogFunc(log.Printf))
}

// Logf writes through the currently installed logger. It defaults to
// log.Printf and may be replaced by SetLogger.
func Logf(format string, v ...interface{}) {
	current.Load().(LogFunc)(format, v...)
}

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger, which tests use to mute replay output.
func SetLogger(f LogFunc) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	current.Store(f)
}

// Tagged returns a logger that prefixes each line with "[tag] " and writes
// through whatever logger is installed at call time.
func Tagged(tag string) LogFunc {
	prefix := "[" + tag + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}

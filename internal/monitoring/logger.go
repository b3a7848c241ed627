package monitoring

import "log"

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

// Prefixed returns a logger that routes through Logf with a bracketed
// subsystem prefix, e.g. Prefixed("sweep") logs as "[sweep] ...". The
// returned function reads Logf at call time, so SetLogger applies to
// previously created prefixed loggers as well.
func Prefixed(subsystem string) func(format string, v ...interface{}) {
	prefix := "[" + subsystem + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}

// Package monitoring provides a package-level diagnostic logger for the
// CLI and batch-runner collaborators. The simulation kernel packages
// (course, segment, rider, physics, pacing, solver, aggregate) never import
// this package: they are pure and return diagnostics as data instead of
// logging.
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

// Package debug provides global debug logging flags
package debug

import "fmt"

// Enabled controls whether debug logging is active
var Enabled bool

// Tracking controls whether per-frame detection logs are shown.
// Use --debug-tracking flag to enable these very verbose logs
var Tracking bool

// Render controls whether per-tick render loop logs are shown.
// Use --debug-render flag; at 60 Hz this is extremely noisy.
var Render bool

// Log prints a message only if debug mode is enabled
func Log(format string, args ...interface{}) {
	if Enabled {
		fmt.Printf(format, args...)
	}
}

// TrackLog prints a message only if tracking debug mode is enabled
func TrackLog(format string, args ...interface{}) {
	if Tracking {
		fmt.Printf(format, args...)
	}
}

// RenderLog prints a message only if render debug mode is enabled
func RenderLog(format string, args ...interface{}) {
	if Render {
		fmt.Printf(format, args...)
	}
}

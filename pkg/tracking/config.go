// Package tracking samples camera frames, runs face landmark detection on
// each new frame and hands the result to the retargeting state.
package tracking

import (
	"time"
)

// Config holds the tunable parameters of the detection sampler
type Config struct {
	// SampleInterval is how often the sampler polls the camera for a new
	// frame. The default matches a 60 Hz display refresh.
	SampleInterval time.Duration

	// MaxDetectRate caps detections per second after the new-frame gate.
	// Zero disables the cap.
	MaxDetectRate float64

	// MissLogEvery logs a "face lost" line every N consecutive misses.
	MissLogEvery int
}

// DefaultConfig returns the configuration used by the service
func DefaultConfig() Config {
	return Config{
		SampleInterval: 16 * time.Millisecond,
		MaxDetectRate:  0,
		MissLogEvery:   30,
	}
}

// LowPowerConfig bounds detector compute for CPU-only sidecars
func LowPowerConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleInterval = 33 * time.Millisecond
	cfg.MaxDetectRate = 15
	return cfg
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.SampleInterval < time.Millisecond || c.SampleInterval > time.Second {
		errors = append(errors, "sample interval must be between 1ms and 1s")
	}
	if c.MaxDetectRate < 0 {
		errors = append(errors, "max detect rate must not be negative")
	}
	if c.MissLogEvery < 1 {
		errors = append(errors, "miss log interval must be at least 1")
	}

	return errors
}

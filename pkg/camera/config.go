// Package camera provides video frame sources for the retargeting pipeline.
// Sources only decode frames and stamp them; they never configure codecs.
package camera

import (
	"strconv"
)

// Config holds the capture parameters requested from a device.
type Config struct {
	// Device is a numeric device index ("0") or a file/stream URL.
	Device string `json:"device"`

	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Target FPS
	Quality   int `json:"quality"`   // JPEG quality 1-100
}

// Capture limits accepted by Validate.
const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns the 1280x720 configuration the browser client requests
// from getUserMedia, so server-side and browser capture match.
func DefaultConfig() Config {
	return Config{
		Device:    "0",
		Width:     1280,
		Height:    720,
		Framerate: 30,
		Quality:   85,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}

// DeviceID returns the device as an int when it is a plain index, otherwise
// the raw string. This matches what gocv.OpenVideoCapture accepts.
func (c *Config) DeviceID() interface{} {
	if n, err := strconv.Atoi(c.Device); err == nil {
		return n
	}
	return c.Device
}

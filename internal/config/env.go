// Package config provides configuration helpers for go-mimic commands.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Default service configuration.
const (
	DefaultPort        = "8181"
	DefaultDetectorURL = "ws://127.0.0.1:8765/landmarker"
	DefaultAvatarURL   = "https://models.readyplayer.me/66b6f3137313deab56801afd.glb?morphTargets=ARKit&textureAtlas=1024"
	DefaultLogLevel    = "info"
)

// LoadDotEnv loads variables from the given .env files (or ./.env when none
// are given). Existing environment variables win. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load %v: %w", present, err)
	}
	return nil
}

// String returns the env var value or def when unset or empty.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the env var parsed as int, or def when unset or invalid.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Float returns the env var parsed as float64, or def when unset or invalid.
func Float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// Port returns the HTTP port from MIMIC_PORT env var or default.
func Port() string {
	return String("MIMIC_PORT", DefaultPort)
}

// DetectorURL returns the landmarker sidecar URL from DETECTOR_URL env var.
func DetectorURL() string {
	return String("DETECTOR_URL", DefaultDetectorURL)
}

// AvatarURL returns the initial avatar asset from AVATAR_URL env var.
func AvatarURL() string {
	return String("AVATAR_URL", DefaultAvatarURL)
}

// CameraDevice returns the capture device from CAMERA_DEVICE env var.
// Numeric values select a local device index; anything else is passed to
// OpenCV as a file or stream URL. Empty means no local camera.
func CameraDevice() string {
	return os.Getenv("CAMERA_DEVICE")
}

// YuNetModel returns the optional face presence model path from YUNET_MODEL.
func YuNetModel() string {
	return os.Getenv("YUNET_MODEL")
}

// LogLevel returns the log level from LOG_LEVEL env var or default.
func LogLevel() string {
	return String("LOG_LEVEL", DefaultLogLevel)
}

// Package mimic wires the camera, detector, retargeting state, avatar and
// render loop into the running service.
package mimic

import (
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-mimic/internal/config"
	"github.com/teslashibe/go-mimic/pkg/camera"
	"github.com/teslashibe/go-mimic/pkg/render"
	"github.com/teslashibe/go-mimic/pkg/tracking"
	"github.com/teslashibe/go-mimic/pkg/tracking/detection"
)

// Camera input modes.
const (
	CameraBrowser   = "browser"   // Frames pushed over /ws/camera or WebRTC
	CameraDevice    = "device"    // Local capture device or stream via OpenCV
	CameraSynthetic = "synthetic" // Generated frames, no hardware
)

// Config holds all configuration for the mimic service.
// Flag parsing is done in cmd/mimic/main.go; this struct is data only.
type Config struct {
	// Debug flags.
	Debug         bool
	DebugTracking bool
	DebugRender   bool

	// Demo replaces the detector with an animated static landmarker and
	// the camera with a synthetic source.
	Demo bool

	// HTTP.
	Port      string
	StaticDir string

	// Avatar shown at startup.
	AvatarURL string

	// Detector sidecar.
	DetectorURL    string
	ModelAssetPath string
	Delegate       string // "GPU" or "CPU"
	YuNetModel     string // Optional face presence gate

	// Camera.
	CameraMode   string
	CameraDevice string
	CameraPreset string
	WebRTC       bool // Accept browser webcams over WebRTC
	ICEServers   []string

	// Loop rates.
	RefreshRate   float64 // Render ticks per second
	MaxDetectRate float64 // 0 = every new frame
	LowPower      bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:           config.DefaultPort,
		StaticDir:      "./web",
		AvatarURL:      config.DefaultAvatarURL,
		DetectorURL:    config.DefaultDetectorURL,
		ModelAssetPath: detection.DefaultModelAssetPath,
		Delegate:       "GPU",
		CameraMode:     CameraBrowser,
		CameraPreset:   camera.Preset720p,
		WebRTC:         true,
		RefreshRate:    render.DefaultConfig().RefreshRate,
	}
}

// LoadEnvConfig applies environment overrides.
// Call this before flag parsing so explicit flags win.
func (c *Config) LoadEnvConfig() {
	c.Port = config.String("MIMIC_PORT", c.Port)
	c.AvatarURL = config.String("AVATAR_URL", c.AvatarURL)
	c.DetectorURL = config.String("DETECTOR_URL", c.DetectorURL)
	c.ModelAssetPath = config.String("MODEL_ASSET_PATH", c.ModelAssetPath)
	c.Delegate = config.String("DETECTOR_DELEGATE", c.Delegate)
	c.YuNetModel = config.String("YUNET_MODEL", c.YuNetModel)
	c.StaticDir = config.String("STATIC_DIR", c.StaticDir)
	c.MaxDetectRate = config.Float("MAX_DETECT_RATE", c.MaxDetectRate)

	if dev := config.CameraDevice(); dev != "" && c.CameraDevice == "" {
		c.CameraDevice = dev
		if c.CameraMode == CameraBrowser {
			c.CameraMode = CameraDevice
		}
	}
	if ice := config.String("ICE_SERVERS", ""); ice != "" && len(c.ICEServers) == 0 {
		for _, u := range strings.Split(ice, ",") {
			if u = strings.TrimSpace(u); u != "" {
				c.ICEServers = append(c.ICEServers, u)
			}
		}
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Port == "" {
		return &ConfigError{Field: "Port", Message: "port is required"}
	}
	switch c.CameraMode {
	case CameraBrowser, CameraSynthetic:
	case CameraDevice:
		if c.CameraDevice == "" {
			return &ConfigError{Field: "CameraDevice", Message: "camera device is required in device mode (set CAMERA_DEVICE)"}
		}
	default:
		return &ConfigError{Field: "CameraMode", Message: fmt.Sprintf("unknown camera mode %q", c.CameraMode)}
	}
	if camera.GetPreset(c.CameraPreset) == nil {
		return &ConfigError{Field: "CameraPreset", Message: fmt.Sprintf("unknown camera preset %q (have %v)", c.CameraPreset, camera.PresetNames())}
	}
	if !c.Demo && c.DetectorURL == "" {
		return &ConfigError{Field: "DetectorURL", Message: "detector URL is required (set DETECTOR_URL or use --demo)"}
	}

	rc := c.renderConfig()
	if errs := rc.Validate(); len(errs) > 0 {
		return &ConfigError{Field: "RefreshRate", Message: strings.Join(errs, "; ")}
	}
	tc := c.trackingConfig()
	if errs := tc.Validate(); len(errs) > 0 {
		return &ConfigError{Field: "MaxDetectRate", Message: strings.Join(errs, "; ")}
	}
	return nil
}

func (c *Config) renderConfig() render.Config {
	rc := render.DefaultConfig()
	if c.RefreshRate != 0 {
		rc.RefreshRate = c.RefreshRate
	}
	return rc
}

func (c *Config) trackingConfig() tracking.Config {
	tc := tracking.DefaultConfig()
	if c.LowPower {
		tc = tracking.LowPowerConfig()
	}
	if c.MaxDetectRate != 0 {
		tc.MaxDetectRate = c.MaxDetectRate
	}
	if c.RefreshRate > 0 {
		// Poll at least as often as the display refreshes
		if iv := time.Duration(float64(time.Second) / c.RefreshRate); iv < tc.SampleInterval && iv >= time.Millisecond {
			tc.SampleInterval = iv
		}
	}
	return tc
}

func (c *Config) cameraConfig() camera.Config {
	cc := *camera.GetPreset(c.CameraPreset)
	if c.CameraDevice != "" {
		cc.Device = c.CameraDevice
	}
	return cc
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

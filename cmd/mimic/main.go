// go-mimic - drives a 3D avatar's face from webcam landmarks
// Camera frames go to a MediaPipe sidecar; blendshapes and head pose are
// retargeted onto the avatar and streamed to browser renderers.
package main

import (
	"context"
	"flag"
	stdlog "log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/teslashibe/go-mimic/internal/config"
	"github.com/teslashibe/go-mimic/internal/log"
	"github.com/teslashibe/go-mimic/pkg/camera"
	"github.com/teslashibe/go-mimic/pkg/mimic"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		stdlog.Printf("⚠️  %v", err)
	}

	cfg, level := parseFlags()
	log.Init(level)

	app, err := mimic.New(cfg)
	if err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}

	if err := app.Init(); err != nil {
		stdlog.Fatalf("❌ Initialization failed: %v", err)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		stdlog.Fatalf("❌ Runtime error: %v", err)
	}
}

// parseFlags parses command line flags on top of env-derived defaults.
func parseFlags() (mimic.Config, string) {
	cfg := mimic.DefaultConfig()
	cfg.LoadEnvConfig()

	flag.BoolVar(&cfg.Debug, "debug", false, "Enable verbose debug logging")
	flag.BoolVar(&cfg.DebugTracking, "debug-tracking", false, "Log every detection")
	flag.BoolVar(&cfg.DebugRender, "debug-render", false, "Log every render tick")
	flag.BoolVar(&cfg.Demo, "demo", false, "Animated fake detector, no sidecar or camera needed")
	flag.StringVar(&cfg.Port, "port", cfg.Port, "HTTP port (MIMIC_PORT)")
	flag.StringVar(&cfg.StaticDir, "static", cfg.StaticDir, "Directory served at / (STATIC_DIR)")
	flag.StringVar(&cfg.AvatarURL, "avatar", cfg.AvatarURL, "Initial avatar .glb URL or path (AVATAR_URL)")
	flag.StringVar(&cfg.DetectorURL, "detector", cfg.DetectorURL, "Landmarker sidecar websocket URL (DETECTOR_URL)")
	flag.StringVar(&cfg.Delegate, "delegate", cfg.Delegate, "Landmarker delegate: GPU or CPU")
	flag.StringVar(&cfg.CameraMode, "camera", cfg.CameraMode, "Camera mode: browser, device, synthetic")
	flag.StringVar(&cfg.CameraDevice, "device", cfg.CameraDevice, "Capture device index or stream URL (CAMERA_DEVICE)")
	flag.StringVar(&cfg.CameraPreset, "preset", cfg.CameraPreset, "Camera preset: "+strings.Join(camera.PresetNames(), ", "))
	flag.StringVar(&cfg.YuNetModel, "yunet", cfg.YuNetModel, "YuNet ONNX model enabling the face presence gate (YUNET_MODEL)")
	flag.BoolVar(&cfg.WebRTC, "webrtc", cfg.WebRTC, "Accept browser webcams over WebRTC")
	flag.Float64Var(&cfg.RefreshRate, "refresh", cfg.RefreshRate, "Render ticks per second")
	flag.Float64Var(&cfg.MaxDetectRate, "max-detect-rate", cfg.MaxDetectRate, "Cap detections per second, 0 = every new frame (MAX_DETECT_RATE)")
	flag.BoolVar(&cfg.LowPower, "low-power", false, "Lower sampling rate for CPU-only detectors")
	level := flag.String("log-level", config.LogLevel(), "Log level: debug, info, warn, error (LOG_LEVEL)")

	deviceSet := false
	flag.Parse()
	flag.Visit(func(f *flag.Flag) { deviceSet = deviceSet || f.Name == "device" })

	if deviceSet && cfg.CameraMode == mimic.CameraBrowser {
		cfg.CameraMode = mimic.CameraDevice
	}
	if cfg.Debug && *level == config.DefaultLogLevel {
		*level = "debug"
	}
	return cfg, *level
}

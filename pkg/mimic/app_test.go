package mimic

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-mimic/pkg/camera"
)

// skeletonGLTF has the driven joints and no meshes.
const skeletonGLTF = `{
	"asset": {"version": "2.0"},
	"scene": 0,
	"scenes": [{"nodes": [0]}],
	"nodes": [
		{"name": "Hips", "children": [1]},
		{"name": "Spine2", "children": [2]},
		{"name": "Neck", "children": [3]},
		{"name": "Head"}
	]
}`

func demoConfig(t *testing.T, port string) Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skeleton.gltf")
	if err := os.WriteFile(path, []byte(skeletonGLTF), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Demo = true
	cfg.Port = port
	cfg.StaticDir = ""
	cfg.AvatarURL = path
	cfg.CameraPreset = camera.Preset480p
	cfg.WebRTC = false
	return cfg
}

func TestNew_DemoUsesSyntheticCamera(t *testing.T) {
	app, err := New(demoConfig(t, "18196"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if app.config.CameraMode != CameraSynthetic {
		t.Errorf("CameraMode = %q, want synthetic", app.config.CameraMode)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = ""
	if _, err := New(cfg); err == nil {
		t.Error("New() should reject an invalid config")
	}
}

func TestApp_DemoPipeline(t *testing.T) {
	app, err := New(demoConfig(t, "18195"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := app.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after cancel")
		}
		app.Shutdown()
	}()

	deadline := time.Now().Add(5 * time.Second)
	var st Status
	for time.Now().Before(deadline) {
		st = app.Status()
		if st.Render.AssetID != "" && st.Render.StateSequence > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if !st.DetectorReady {
		t.Error("demo detector should be ready")
	}
	if st.Render.AssetID == "" {
		t.Fatal("avatar never loaded")
	}
	if st.Render.StateSequence == 0 {
		t.Fatal("render loop never applied a detection")
	}
	if st.LastDetectionAgeMs < 0 {
		t.Errorf("LastDetectionAgeMs = %d, want >= 0", st.LastDetectionAgeMs)
	}
	if st.FramesPublished == 0 {
		t.Error("synthetic camera published nothing")
	}

	resp, err := http.Get("http://localhost:18195/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || !strings.Contains(string(body), "detector_ready") {
		t.Errorf("status = %d %s", resp.StatusCode, body)
	}
}

func TestApp_DetectorInitFailureKeepsRendering(t *testing.T) {
	cfg := demoConfig(t, "18197")
	cfg.Demo = false
	cfg.CameraMode = CameraSynthetic
	cfg.DetectorURL = "ws://127.0.0.1:1/landmarker" // nothing listens here

	app, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := app.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	if err := app.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	app.Shutdown()

	st := app.Status()
	if st.DetectorReady {
		t.Error("detector should not be ready")
	}
	if st.Render.Ticks == 0 {
		t.Error("render loop should keep ticking without a detector")
	}
	if st.Render.StateSequence != 0 {
		t.Errorf("StateSequence = %d, want 0", st.Render.StateSequence)
	}
}

func TestApp_FailedAvatarChangeRestoresSettings(t *testing.T) {
	cfg := demoConfig(t, "18198")
	app, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := app.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	defer func() {
		cancel()
		<-done
		app.Shutdown()
	}()

	waitUntil(t, "initial avatar", func() bool { return app.avatars.Current() != nil })
	first := app.avatars.Current()

	missing := filepath.Join(t.TempDir(), "missing.glb")
	if err := app.settings.Update(map[string]interface{}{"avatar_url": missing}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	waitUntil(t, "settings restored", func() bool { return app.settings.Get().AvatarURL == cfg.AvatarURL })
	if app.avatars.Current() != first {
		t.Error("failed load replaced the displayed avatar")
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

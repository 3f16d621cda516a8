package mimic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-mimic/internal/log"
	"github.com/teslashibe/go-mimic/pkg/avatar"
	"github.com/teslashibe/go-mimic/pkg/camera"
	"github.com/teslashibe/go-mimic/pkg/debug"
	"github.com/teslashibe/go-mimic/pkg/ingest"
	"github.com/teslashibe/go-mimic/pkg/render"
	"github.com/teslashibe/go-mimic/pkg/retarget"
	"github.com/teslashibe/go-mimic/pkg/settings"
	"github.com/teslashibe/go-mimic/pkg/tracking"
	"github.com/teslashibe/go-mimic/pkg/tracking/detection"
	"github.com/teslashibe/go-mimic/pkg/video"
	"github.com/teslashibe/go-mimic/pkg/web"
)

// demoExpressions is what the demo landmarker reports before animation.
var demoExpressions = []detection.Category{
	{Name: "_neutral", Score: 0.4},
	{Name: "eyeBlinkLeft", Score: 0},
	{Name: "eyeBlinkRight", Score: 0},
	{Name: "jawOpen", Score: 0.2},
	{Name: "mouthSmileLeft", Score: 0.5},
	{Name: "mouthSmileRight", Score: 0.5},
}

// runner is a frame source with its own capture loop.
type runner interface {
	camera.Source
	Run(ctx context.Context) error
	Close() error
}

// App is the main mimic application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config Config

	// Input
	frames     *camera.Mailbox // Browser pushed frames
	capture    runner          // Local or synthetic source, may be nil
	cameraHub  *ingest.Hub
	receiver   *video.Receiver
	landmarker detection.Landmarker
	gate       *detection.Gate

	// Pipeline
	adapter *tracking.Adapter
	sampler *tracking.Sampler
	state   *retarget.StateStore

	// Output
	settings *settings.Manager
	avatars  *avatar.Switcher
	renderer *web.SceneRenderer
	loop     *render.Loop

	webServer *web.Server

	started time.Time
}

// New creates a new mimic application with the given configuration.
func New(cfg Config) (*App, error) {
	if cfg.Demo && cfg.CameraMode == CameraBrowser {
		cfg.CameraMode = CameraSynthetic
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	debug.Enabled = cfg.Debug
	debug.Tracking = cfg.DebugTracking
	debug.Render = cfg.DebugRender

	return &App{config: cfg}, nil
}

// Init builds all components.
// Call this after New() and before Run().
func (a *App) Init() error {
	log.Info("initializing go-mimic", "demo", a.config.Demo, "camera", a.config.CameraMode)
	a.started = time.Now()

	if err := a.initCamera(); err != nil {
		return fmt.Errorf("camera init: %w", err)
	}
	if err := a.initDetector(); err != nil {
		return fmt.Errorf("detector init: %w", err)
	}

	a.state = retarget.NewStateStore()
	a.adapter = tracking.NewAdapter(a.landmarker)
	a.sampler = tracking.NewSampler(a.config.trackingConfig(), a.source(), a.adapter, a.state)

	a.initAvatar()
	a.initWeb()

	a.renderer = web.NewSceneRenderer(a.webServer.SceneHub())
	a.loop = render.NewLoop(a.config.renderConfig(), a.state, a.avatars, a.settings, a.renderer)
	return nil
}

// initCamera sets up the frame source for the configured mode.
func (a *App) initCamera() error {
	a.frames = camera.NewMailbox()
	a.cameraHub = ingest.NewHub(a.frames)

	if a.config.WebRTC {
		vc := video.DefaultConfig()
		vc.ICEServers = a.config.ICEServers
		a.receiver = video.NewReceiver(vc, a.frames, nil)
	}

	cc := a.config.cameraConfig()
	switch a.config.CameraMode {
	case CameraDevice:
		src, err := camera.OpenGoCV(cc)
		if err != nil {
			return err
		}
		a.capture = src
	case CameraSynthetic:
		a.capture = camera.NewSynthetic(cc)
	}
	return nil
}

// source is what the sampler reads: a capture loop when one is configured,
// otherwise frames pushed by browsers.
func (a *App) source() camera.Source {
	if a.capture != nil {
		return a.capture
	}
	return a.frames
}

// initDetector builds the landmarker chain.
func (a *App) initDetector() error {
	if a.config.Demo {
		lm := detection.NewStatic(demoExpressions)
		lm.Animate = true
		a.landmarker = lm
	} else {
		rc := detection.DefaultRemoteConfig(a.config.DetectorURL)
		if a.config.ModelAssetPath != "" {
			rc.Options.ModelAssetPath = a.config.ModelAssetPath
		}
		if a.config.Delegate != "" {
			rc.Options.Delegate = a.config.Delegate
		}
		a.landmarker = detection.NewRemote(rc)
	}

	if a.config.YuNetModel != "" {
		yc := detection.DefaultConfig()
		yc.ModelPath = a.config.YuNetModel
		gate, err := detection.NewYuNetGate(yc, a.landmarker)
		if err != nil {
			log.Warn("face presence gate disabled", "error", err)
			return nil
		}
		a.gate = gate
		a.landmarker = gate
	}
	return nil
}

func (a *App) initAvatar() {
	a.settings = settings.NewManager(a.config.AvatarURL)
	a.avatars = avatar.NewSwitcher(avatar.NewLoader(), avatar.DefaultNodeNames())

	// Changes from PATCH /api/settings and websocket clients load in the
	// background; the HTTP avatar endpoints switch synchronously.
	a.settings.OnAvatarChange = func(src avatar.Source) {
		a.avatars.Set(context.Background(), src)
	}
}

func (a *App) initWeb() {
	wc := web.DefaultConfig()
	wc.Port = a.config.Port
	wc.StaticDir = a.config.StaticDir

	deps := web.Deps{
		Settings: a.settings,
		Avatars:  a.avatars,
		Cameras:  a.cameraHub,
		Status:   func() any { return a.Status() },
	}
	if a.receiver != nil {
		deps.WebRTC = a.receiver
	}
	a.webServer = web.NewServer(wc, deps)

	a.avatars.OnChange = a.webServer.AnnounceAvatar
	a.avatars.OnError = a.avatarFailed
}

// avatarFailed puts the displayed avatar back into the settings after a
// background load fails, so /api/settings matches what is rendered.
func (a *App) avatarFailed(src avatar.Source, err error) {
	cur := a.avatars.Current()
	if cur == nil {
		return
	}
	if a.settings.RestoreAvatar(src, cur.Source) {
		log.Info("avatar setting restored after failed load",
			"failed", src.String(), "restored", cur.Source.String(), "error", err)
		a.webServer.AnnounceSettings()
	}
}

// Run starts all tasks. Blocks until ctx is cancelled or a task fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.webServer.Run(ctx) })
	g.Go(func() error { return a.loop.Run(ctx) })

	if a.capture != nil {
		g.Go(func() error { return a.capture.Run(ctx) })
	}

	// Detector init is awaited off the render path; on failure rendering
	// continues without detections.
	g.Go(func() error {
		if err := a.adapter.Init(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("face detector unavailable, avatar will not track", "error", err)
			return nil
		}
		log.Info("face detector ready")
		return a.sampler.Run(ctx)
	})

	a.avatars.Set(ctx, a.settings.Avatar())

	log.Info("go-mimic running", "url", "http://localhost:"+a.config.Port)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown releases all components.
func (a *App) Shutdown() {
	log.Info("shutting down")

	if a.avatars != nil {
		a.avatars.Close()
	}
	if a.receiver != nil {
		a.receiver.Close()
	}
	if a.adapter != nil {
		a.adapter.Close()
	}
	if a.capture != nil {
		a.capture.Close()
	}
}

// Status is the pipeline section of /api/status.
type Status struct {
	Uptime             string                `json:"uptime"`
	DetectorReady      bool                  `json:"detector_ready"`
	Sampler            tracking.SamplerStats `json:"sampler"`
	Render             render.Stats          `json:"render"`
	LastDetectionAgeMs int64                 `json:"last_detection_age_ms"` // -1 before the first detection
	FramesPublished    uint64                `json:"frames_published"`
	GateSkipped        uint64                `json:"gate_skipped,omitempty"`
	WebRTC             *video.Stats          `json:"webrtc,omitempty"`
}

// Status returns pipeline diagnostics.
func (a *App) Status() Status {
	st := Status{
		DetectorReady:      a.adapter.Ready(),
		Sampler:            a.sampler.Stats(),
		Render:             a.loop.Stats(),
		LastDetectionAgeMs: -1,
		FramesPublished:    a.frames.Published(),
	}
	if !a.started.IsZero() {
		st.Uptime = time.Since(a.started).Round(time.Second).String()
	}
	if st.Sampler.LastDetectionMs > 0 {
		st.LastDetectionAgeMs = time.Now().UnixMilli() - st.Sampler.LastDetectionMs
	}
	if p, ok := a.capture.(interface{ Published() uint64 }); ok {
		st.FramesPublished += p.Published()
	}
	if a.gate != nil {
		st.GateSkipped = a.gate.Skipped()
	}
	if a.receiver != nil {
		vs := a.receiver.Stats()
		st.WebRTC = &vs
	}
	return st
}

package render

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-mimic/internal/log"
	"github.com/teslashibe/go-mimic/pkg/avatar"
	"github.com/teslashibe/go-mimic/pkg/debug"
	"github.com/teslashibe/go-mimic/pkg/retarget"
)

// Config holds render loop parameters.
type Config struct {
	RefreshRate    float64 // Ticks per second
	HeartbeatEvery uint64  // Log a heartbeat every N ticks, 0 disables
}

// DefaultConfig returns a 60 Hz loop.
func DefaultConfig() Config {
	return Config{
		RefreshRate:    60,
		HeartbeatEvery: 3600,
	}
}

// Validate checks if the config values are within valid ranges.
func (c *Config) Validate() []string {
	var errors []string
	if c.RefreshRate < 1 || c.RefreshRate > 240 {
		errors = append(errors, "refresh rate must be between 1 and 240")
	}
	return errors
}

// Interval returns the tick period.
func (c *Config) Interval() time.Duration {
	return time.Duration(float64(time.Second) / c.RefreshRate)
}

// Stats counts render loop activity.
type Stats struct {
	Ticks          uint64    `json:"ticks"`
	Errors         uint64    `json:"errors"`
	MorphWrites    uint64    `json:"morph_writes"`
	AssetID        string    `json:"asset_id"`
	StateSequence  uint64    `json:"state_sequence"`
	LastDetectedAt time.Time `json:"last_detected_at"`
}

// Loop applies state to the active avatar once per tick.
type Loop struct {
	config     Config
	state      StateSource
	bindings   BindingSource
	brightness BrightnessSource
	renderer   Renderer

	ticks       atomic.Uint64
	errors      atomic.Uint64
	morphWrites atomic.Uint64
	last        atomic.Pointer[Stats]

	lastBinding *avatar.Binding
}

// NewLoop creates a render loop.
func NewLoop(cfg Config, state StateSource, bindings BindingSource, brightness BrightnessSource, renderer Renderer) *Loop {
	return &Loop{
		config:     cfg,
		state:      state,
		bindings:   bindings,
		brightness: brightness,
		renderer:   renderer,
	}
}

// Run ticks until ctx is done. Renderer errors never stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.config.Interval())
	defer ticker.Stop()

	log.Info("render loop started", "hz", l.config.RefreshRate)

	for {
		select {
		case <-ctx.Done():
			log.Info("render loop stopped", "ticks", l.ticks.Load(), "errors", l.errors.Load())
			return nil
		case now := <-ticker.C:
			l.Tick(ctx, now)
		}
	}
}

// Tick runs one render cycle and returns the frame handed to the renderer.
func (l *Loop) Tick(ctx context.Context, now time.Time) Frame {
	tick := l.ticks.Add(1)
	state := l.state.Snapshot()
	binding := l.bindings.Current()
	brightness := l.brightness.Brightness()

	if binding != l.lastBinding {
		if binding != nil {
			log.Info("render loop using new avatar", "asset", binding.AssetID, "tick", tick)
		}
		l.lastBinding = binding
	}

	frame := Frame{
		Tick:       tick,
		Time:       now,
		Brightness: brightness,
	}

	if binding != nil {
		if state.Populated {
			n := retarget.Apply(binding.Targets(), state)
			l.morphWrites.Add(uint64(n))
			frame.Sequence = state.Sequence
			debug.RenderLog("🎭 tick %d: seq=%d morph writes=%d rot=(%.2f, %.2f, %.2f)\n",
				tick, state.Sequence, n, state.Rotation.X, state.Rotation.Y, state.Rotation.Z)
		}
		binding.SetBrightness(brightness)
		frame.AssetID = binding.AssetID
	}
	frame.Meshes, frame.Joints = snapshot(binding)

	if err := l.renderer.Draw(ctx, frame); err != nil {
		n := l.errors.Add(1)
		if n%100 == 1 {
			log.Warn("renderer draw failed", "error", err, "count", n)
		}
	}

	if l.config.HeartbeatEvery > 0 && tick%l.config.HeartbeatEvery == 0 {
		log.Info("render heartbeat", "ticks", tick, "errors", l.errors.Load(),
			"asset", frame.AssetID, "seq", state.Sequence)
	}

	l.last.Store(&Stats{
		AssetID:        frame.AssetID,
		StateSequence:  state.Sequence,
		LastDetectedAt: state.UpdatedAt,
	})
	return frame
}

// Stats returns loop counters. Safe to call from any goroutine.
func (l *Loop) Stats() Stats {
	s := Stats{}
	if last := l.last.Load(); last != nil {
		s = *last
	}
	s.Ticks = l.ticks.Load()
	s.Errors = l.errors.Load()
	s.MorphWrites = l.morphWrites.Load()
	return s
}

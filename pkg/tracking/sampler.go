package tracking

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-mimic/internal/log"
	"github.com/teslashibe/go-mimic/pkg/camera"
	"github.com/teslashibe/go-mimic/pkg/tracking/detection"
)

// StateWriter receives detection frames. A nil frame means no face.
type StateWriter interface {
	Update(frame *detection.Frame) bool
}

// Sampler polls a camera source and feeds new frames through the adapter
// into the state. It runs independently of the render loop.
type Sampler struct {
	config  Config
	source  camera.Source
	adapter *Adapter
	state   StateWriter
	clock   *FrameClock

	consecutiveMisses int
	lastDetection     atomic.Int64 // Unix ms, 0 before the first face

	polls   atomic.Uint64
	sampled atomic.Uint64
}

// NewSampler creates a sampler.
func NewSampler(cfg Config, source camera.Source, adapter *Adapter, state StateWriter) *Sampler {
	return &Sampler{
		config:  cfg,
		source:  source,
		adapter: adapter,
		state:   state,
		clock:   NewFrameClock(cfg.MaxDetectRate),
	}
}

// readySource is a source that signals its first frame.
type readySource interface {
	Ready() <-chan struct{}
}

// Run polls until ctx is done. Sources that signal their first frame are
// waited on before polling starts.
func (s *Sampler) Run(ctx context.Context) error {
	if s.source == nil {
		return ErrNoSource
	}

	if rs, ok := s.source.(readySource); ok {
		log.Info("detection sampler waiting for the first camera frame")
		select {
		case <-ctx.Done():
			return nil
		case <-rs.Ready():
		}
	}

	ticker := time.NewTicker(s.config.SampleInterval)
	defer ticker.Stop()

	log.Info("detection sampler started", "interval", s.config.SampleInterval, "max_rate", s.config.MaxDetectRate)

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Step(now)
		}
	}
}

// Step runs one poll. It reports whether a new detection was written.
func (s *Sampler) Step(now time.Time) bool {
	s.polls.Add(1)

	frame, ok := s.source.Latest()
	if !ok || !s.clock.ShouldSample(frame.Timestamp) {
		return false
	}
	s.sampled.Add(1)

	df := s.adapter.Detect(frame, now.UnixMilli())
	if df == nil {
		s.consecutiveMisses++
		if s.config.MissLogEvery > 0 && s.consecutiveMisses%s.config.MissLogEvery == 0 && s.adapter.Ready() {
			log.Info("no face detected", "consecutive_misses", s.consecutiveMisses)
		}
		return false
	}

	if s.consecutiveMisses >= s.config.MissLogEvery && s.config.MissLogEvery > 0 {
		log.Info("face reacquired", "after_misses", s.consecutiveMisses)
	}
	s.consecutiveMisses = 0
	s.lastDetection.Store(now.UnixMilli())

	return s.state.Update(df)
}

// SamplerStats reports sampler activity.
type SamplerStats struct {
	Polls           uint64 `json:"polls"`
	Sampled         uint64 `json:"sampled"`
	LastDetectionMs int64  `json:"last_detection_ms"`
	AdapterStats
}

// Stats returns sampler and adapter counters.
func (s *Sampler) Stats() SamplerStats {
	return SamplerStats{
		Polls:           s.polls.Load(),
		Sampled:         s.sampled.Load(),
		LastDetectionMs: s.lastDetection.Load(),
		AdapterStats:    s.adapter.Stats(),
	}
}

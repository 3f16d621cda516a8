package tracking

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-mimic/internal/log"
	"github.com/teslashibe/go-mimic/pkg/camera"
	"github.com/teslashibe/go-mimic/pkg/debug"
	"github.com/teslashibe/go-mimic/pkg/tracking/detection"
)

// AdapterStats counts detection outcomes.
type AdapterStats struct {
	Detections uint64 `json:"detections"`
	Misses     uint64 `json:"misses"`
	Errors     uint64 `json:"errors"`
}

// Adapter turns landmarker results into detection frames. Detect never
// returns an error: every failure becomes "no detection".
type Adapter struct {
	landmarker detection.Landmarker
	ready      atomic.Bool

	mu     sync.Mutex // Protects lastTs
	lastTs int64

	detections atomic.Uint64
	misses     atomic.Uint64
	errors     atomic.Uint64
}

// NewAdapter wraps a landmarker.
func NewAdapter(lm detection.Landmarker) *Adapter {
	return &Adapter{landmarker: lm, lastTs: -1}
}

// Init initializes the landmarker. Until it succeeds Detect returns nil.
func (a *Adapter) Init(ctx context.Context) error {
	if err := a.landmarker.Init(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrDetectorInit, err)
	}
	a.ready.Store(true)
	return nil
}

// Ready reports whether Init succeeded.
func (a *Adapter) Ready() bool {
	return a.ready.Load()
}

// Detect runs the landmarker on frame and returns the first face, or nil.
// nowMs is the wall-clock time in milliseconds; the value passed to the
// landmarker is bumped when needed so it strictly increases.
func (a *Adapter) Detect(frame camera.Frame, nowMs int64) *detection.Frame {
	if !a.ready.Load() {
		return nil
	}

	a.mu.Lock()
	ts := nowMs
	if ts <= a.lastTs {
		ts = a.lastTs + 1
	}
	a.lastTs = ts
	a.mu.Unlock()

	result, err := a.landmarker.DetectForVideo(frame, ts)
	if err != nil {
		if n := a.errors.Add(1); n == 1 || n%100 == 0 {
			log.Warn("landmarker detect failed", "error", err, "count", n)
		}
		return nil
	}
	if result.NumFaces() < 1 {
		a.misses.Add(1)
		return nil
	}

	out := &detection.Frame{Timestamp: float64(nowMs)}
	if len(result.FaceBlendshapes) > 0 {
		out.Expressions = append([]detection.Category{}, result.FaceBlendshapes[0]...)
	} else {
		out.Expressions = []detection.Category{}
	}
	if len(result.FacialTransformationMatrixes) > 0 {
		m := result.FacialTransformationMatrixes[0]
		out.HeadTransform = &m
	}

	a.detections.Add(1)
	debug.TrackLog("👁️  face: %d expressions, transform=%v (ts=%d)\n",
		len(out.Expressions), out.HeadTransform != nil, ts)
	return out
}

// Stats returns detection counters.
func (a *Adapter) Stats() AdapterStats {
	return AdapterStats{
		Detections: a.detections.Load(),
		Misses:     a.misses.Load(),
		Errors:     a.errors.Load(),
	}
}

// Close closes the landmarker.
func (a *Adapter) Close() error {
	a.ready.Store(false)
	return a.landmarker.Close()
}

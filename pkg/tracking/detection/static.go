package detection

import (
	"context"
	"math"
	"sync"

	"github.com/teslashibe/go-mimic/pkg/camera"
)

// StaticLandmarker returns a fixed result for every frame.
// Set Animate to sweep the head and blink over time, for demo mode.
type StaticLandmarker struct {
	Result  Result
	Animate bool
	InitErr error

	mu    sync.Mutex
	calls int
	last  int64
}

// NewStatic creates a landmarker that always reports one face with the given
// expressions and an identity head transform.
func NewStatic(exprs []Category) *StaticLandmarker {
	return &StaticLandmarker{
		Result: Result{
			FaceBlendshapes:              [][]Category{exprs},
			FacialTransformationMatrixes: [][16]float64{Identity()},
		},
	}
}

// Identity returns the 4x4 identity matrix in row-major order.
func Identity() [16]float64 {
	return [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Init returns InitErr.
func (s *StaticLandmarker) Init(ctx context.Context) error {
	return s.InitErr
}

// DetectForVideo returns a copy of Result.
func (s *StaticLandmarker) DetectForVideo(frame camera.Frame, timestampMs int64) (*Result, error) {
	s.mu.Lock()
	s.calls++
	s.last = timestampMs
	s.mu.Unlock()

	out := &Result{
		FaceBlendshapes:              make([][]Category, len(s.Result.FaceBlendshapes)),
		FacialTransformationMatrixes: append([][16]float64(nil), s.Result.FacialTransformationMatrixes...),
	}
	for i, face := range s.Result.FaceBlendshapes {
		out.FaceBlendshapes[i] = append([]Category(nil), face...)
	}

	if s.Animate {
		animate(out, float64(timestampMs)/1000)
	}
	return out, nil
}

// Calls returns how many detections ran and the last timestamp passed in.
func (s *StaticLandmarker) Calls() (int, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.last
}

// Close is a no-op.
func (s *StaticLandmarker) Close() error { return nil }

// animate yaws the head side to side and blinks every few seconds.
func animate(r *Result, t float64) {
	yaw := 0.4 * math.Sin(t)
	c, s := math.Cos(yaw), math.Sin(yaw)
	m := [16]float64{
		c, 0, s, 0,
		0, 1, 0, 0,
		-s, 0, c, 0,
		0, 0, 0, 1,
	}
	if len(r.FacialTransformationMatrixes) == 0 {
		r.FacialTransformationMatrixes = append(r.FacialTransformationMatrixes, m)
	} else {
		r.FacialTransformationMatrixes[0] = m
	}

	blink := 0.0
	if math.Mod(t, 4) < 0.15 {
		blink = 1
	}
	if len(r.FaceBlendshapes) == 0 {
		r.FaceBlendshapes = append(r.FaceBlendshapes, nil)
	}
	r.FaceBlendshapes[0] = append(r.FaceBlendshapes[0],
		Category{Name: "eyeBlinkLeft", Score: blink},
		Category{Name: "eyeBlinkRight", Score: blink},
	)
}

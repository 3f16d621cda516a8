// Package detection provides face landmark detection backends: a websocket
// client for the landmark sidecar, a gocv presence gate, and a static
// landmarker for demos and tests.
package detection

import (
	"context"

	"github.com/teslashibe/go-mimic/pkg/camera"
)

// Category is one named expression score (an ARKit-style blendshape).
type Category struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Frame is the per-video-frame detection output consumed by the retargeting
// state. Timestamp is in milliseconds. HeadTransform is a row-major 4x4
// matrix and is nil when the detector produced none.
type Frame struct {
	Timestamp     float64
	Expressions   []Category
	HeadTransform *[16]float64
}

// Result is the raw landmarker output. Both slices are indexed by face.
type Result struct {
	FaceBlendshapes              [][]Category
	FacialTransformationMatrixes [][16]float64
}

// NumFaces returns how many faces the result describes.
func (r *Result) NumFaces() int {
	if r == nil {
		return 0
	}
	n := len(r.FaceBlendshapes)
	if m := len(r.FacialTransformationMatrixes); m > n {
		n = m
	}
	return n
}

// Landmarker runs face landmark detection in video mode.
type Landmarker interface {
	// Init prepares the landmarker. It may download model assets and must
	// complete before DetectForVideo is called.
	Init(ctx context.Context) error

	// DetectForVideo detects faces in frame. timestampMs must be strictly
	// increasing across calls.
	DetectForVideo(frame camera.Frame, timestampMs int64) (*Result, error)

	// Close releases resources
	Close() error
}

// Detection represents a detected face box
type Detection struct {
	X, Y       float64 // Top-left position (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64 // Detection confidence (0-1)
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.W * d.H
}

// Detector finds face boxes in a JPEG image.
type Detector interface {
	Detect(jpeg []byte) ([]Detection, error)
	Close() error
}

// SelectBest picks the primary face from multiple detections.
// Score: confidence * 0.7 + relative area * 0.3
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}

	if len(dets) == 1 {
		return &dets[0]
	}

	maxArea := 0.0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}

	bestScore := -1.0
	var best *Detection

	for i := range dets {
		score := dets[i].Confidence * 0.7
		if maxArea > 0 {
			score += (dets[i].Area() / maxArea) * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}

	return best
}

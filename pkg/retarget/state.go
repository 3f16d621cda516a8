// Package retarget maps detected expressions and head pose onto avatar
// morph targets and skeleton joints.
package retarget

import (
	"sync"
	"time"

	"github.com/teslashibe/go-mimic/pkg/tracking/detection"
)

// Euler is an XYZ-order rotation in radians.
type Euler struct {
	X, Y, Z float64
}

// State is the latest detection as seen by the render loop.
type State struct {
	Expressions []detection.Category
	Rotation    Euler

	// Populated is false until the first detection arrives. Nothing is
	// written to the avatar before then.
	Populated bool
	Sequence  uint64
	UpdatedAt time.Time
}

// StateStore hands detections from the sampler goroutine to the render
// goroutine. Expressions and rotation are always replaced together.
type StateStore struct {
	mu    sync.Mutex
	state State
	now   func() time.Time
}

// NewStateStore creates an empty store.
func NewStateStore() *StateStore {
	return &StateStore{now: time.Now}
}

// Update stores frame. A nil frame leaves the state unchanged and returns
// false. A frame without a head transform keeps the previous rotation.
func (s *StateStore) Update(frame *detection.Frame) bool {
	if frame == nil {
		return false
	}

	exprs := make([]detection.Category, len(frame.Expressions))
	copy(exprs, frame.Expressions)

	var rot *Euler
	if frame.HeadTransform != nil {
		r := MatrixToEuler(*frame.HeadTransform)
		rot = &r
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Expressions = exprs
	if rot != nil {
		s.state.Rotation = *rot
	}
	s.state.Populated = true
	s.state.Sequence++
	s.state.UpdatedAt = s.now()
	return true
}

// Snapshot returns a copy of the current state.
func (s *StateStore) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.state
	out.Expressions = append([]detection.Category(nil), s.state.Expressions...)
	if out.Expressions == nil && s.state.Populated {
		out.Expressions = []detection.Category{}
	}
	return out
}

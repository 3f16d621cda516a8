// Package render drives the per-display-refresh loop: it applies the latest
// retargeting state and brightness to the active avatar and hands a pose
// snapshot to the renderer.
package render

import (
	"context"
	"time"

	"github.com/teslashibe/go-mimic/pkg/avatar"
	"github.com/teslashibe/go-mimic/pkg/retarget"
)

// Renderer draws one frame. Draw is called from the render loop goroutine
// only.
type Renderer interface {
	Draw(ctx context.Context, frame Frame) error
}

// StateSource provides the latest retargeting state.
type StateSource interface {
	Snapshot() retarget.State
}

// BindingSource provides the active avatar binding, or nil.
type BindingSource interface {
	Current() *avatar.Binding
}

// BrightnessSource provides the current brightness.
type BrightnessSource interface {
	Brightness() float64
}

// MeshPose is the drawn state of one mesh.
type MeshPose struct {
	Name              string
	Influences        map[string]float64
	EmissiveIntensity float64
	ToneMapped        bool
}

// JointPose is the drawn rotation of one driven joint.
type JointPose struct {
	Name     string
	Rotation retarget.Euler
}

// Frame is an immutable snapshot of the avatar pose for one tick.
type Frame struct {
	Tick       uint64
	Time       time.Time
	AssetID    string
	Sequence   uint64 // State sequence applied, 0 before the first detection
	Brightness float64
	Meshes     []MeshPose
	Joints     map[retarget.JointRole]JointPose
}

// Mesh returns the pose of the named mesh.
func (f Frame) Mesh(name string) (MeshPose, bool) {
	for _, m := range f.Meshes {
		if m.Name == name {
			return m, true
		}
	}
	return MeshPose{}, false
}

// snapshot copies the binding state into a Frame.
func snapshot(b *avatar.Binding) ([]MeshPose, map[retarget.JointRole]JointPose) {
	if b == nil {
		return nil, map[retarget.JointRole]JointPose{}
	}

	meshes := make([]MeshPose, 0, len(b.Meshes))
	for _, m := range b.Meshes {
		p := MeshPose{Name: m.Name, Influences: m.InfluenceMap()}
		if m.Material != nil {
			p.EmissiveIntensity = m.Material.EmissiveIntensity
			p.ToneMapped = m.Material.ToneMapped
		}
		meshes = append(meshes, p)
	}

	joints := make(map[retarget.JointRole]JointPose, len(b.Joints))
	for role, j := range b.Joints {
		joints[role] = JointPose{Name: j.Name, Rotation: j.Rotation}
	}
	return meshes, joints
}

package web

import (
	"context"
	"sync/atomic"

	"github.com/teslashibe/go-mimic/pkg/hub"
	"github.com/teslashibe/go-mimic/pkg/protocol"
	"github.com/teslashibe/go-mimic/pkg/render"
)

// Broadcaster sends a protocol message to connected renderer clients.
// *hub.Hub satisfies it.
type Broadcaster interface {
	BroadcastMessage(msg *protocol.Message) error
	ClientCount() int
}

var _ Broadcaster = (*hub.Hub)(nil)

// SceneRenderer draws by broadcasting each frame's pose to renderer clients.
// Frames are not encoded while no client is connected.
type SceneRenderer struct {
	out  Broadcaster
	sent atomic.Uint64
}

// NewSceneRenderer creates a renderer broadcasting to out.
func NewSceneRenderer(out Broadcaster) *SceneRenderer {
	return &SceneRenderer{out: out}
}

// Draw implements render.Renderer.
func (r *SceneRenderer) Draw(_ context.Context, frame render.Frame) error {
	if r.out.ClientCount() == 0 {
		return nil
	}
	msg, err := protocol.NewSceneMessage(SceneData(frame))
	if err != nil {
		return err
	}
	if err := r.out.BroadcastMessage(msg); err != nil {
		return err
	}
	r.sent.Add(1)
	return nil
}

// Sent returns how many frames were broadcast.
func (r *SceneRenderer) Sent() uint64 {
	return r.sent.Load()
}

// SceneData converts a render frame to its wire form. Joints are keyed by
// node name.
func SceneData(f render.Frame) protocol.SceneData {
	sd := protocol.SceneData{
		AssetID:  f.AssetID,
		Sequence: f.Sequence,
		Tick:     f.Tick,
		Meshes:   make([]protocol.MeshPose, 0, len(f.Meshes)),
	}
	for _, m := range f.Meshes {
		sd.Meshes = append(sd.Meshes, protocol.MeshPose{
			Name:              m.Name,
			Influences:        m.Influences,
			EmissiveIntensity: m.EmissiveIntensity,
			ToneMapped:        m.ToneMapped,
		})
	}
	if len(f.Joints) > 0 {
		sd.Joints = make(map[string][3]float64, len(f.Joints))
		for _, j := range f.Joints {
			sd.Joints[j.Name] = [3]float64{j.Rotation.X, j.Rotation.Y, j.Rotation.Z}
		}
	}
	return sd
}

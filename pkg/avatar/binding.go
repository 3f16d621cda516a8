package avatar

import (
	"github.com/teslashibe/go-mimic/internal/log"
	"github.com/teslashibe/go-mimic/pkg/retarget"
)

// Binding is the set of retargeting targets resolved from one scene.
// It is built once per asset and never shared between assets.
type Binding struct {
	AssetID string
	Source  Source
	Names   string // NodeNames.Version used to build it
	Scene   *Scene

	// TargetMeshes are the expression meshes found, in NodeNames order.
	TargetMeshes []*Mesh

	// Joints holds the driven joints that exist in the scene.
	Joints map[retarget.JointRole]*Joint

	// Meshes is every renderable mesh.
	Meshes []*Mesh
}

// Bind resolves names in scene. Missing nodes are skipped, not errors.
// Every mesh material is switched out of tone mapping so the emissive
// brightness control is linear.
func Bind(scene *Scene, names NodeNames) *Binding {
	b := &Binding{
		AssetID: scene.ID,
		Names:   names.Version,
		Scene:   scene,
		Joints:  make(map[retarget.JointRole]*Joint, len(names.Joints)),
		Meshes:  append([]*Mesh(nil), scene.Meshes...),
	}

	for _, name := range names.Meshes {
		if n, ok := scene.Nodes[name]; ok && n.Mesh != nil {
			b.TargetMeshes = append(b.TargetMeshes, n.Mesh)
		}
	}

	for _, role := range retarget.Roles {
		name, ok := names.Joints[role]
		if !ok {
			continue
		}
		if n, ok := scene.Nodes[name]; ok && n.Joint != nil {
			b.Joints[role] = n.Joint
		}
	}

	for _, m := range b.Meshes {
		if m.Material != nil {
			m.Material.ToneMapped = false
		}
	}

	log.Debug("avatar bound",
		"asset", b.AssetID, "names", names.Version,
		"target_meshes", len(b.TargetMeshes), "joints", len(b.Joints), "meshes", len(b.Meshes))
	return b
}

// Targets returns the binding as engine targets.
func (b *Binding) Targets() retarget.Targets {
	t := retarget.Targets{
		Meshes: make([]retarget.MorphTarget, len(b.TargetMeshes)),
		Joints: make(map[retarget.JointRole]retarget.JointTarget, len(b.Joints)),
	}
	for i, m := range b.TargetMeshes {
		t.Meshes[i] = m
	}
	for role, j := range b.Joints {
		t.Joints[role] = j
	}
	return t
}

// SetBrightness sets the emissive intensity of every mesh material.
func (b *Binding) SetBrightness(v float64) {
	for _, m := range b.Meshes {
		if m.Material != nil {
			m.Material.EmissiveIntensity = v
		}
	}
}

// Package avatar decodes glTF/GLB avatar assets and binds their morph-target
// meshes and skeleton joints for retargeting.
package avatar

import (
	"strconv"

	"github.com/teslashibe/go-mimic/pkg/retarget"
)

// Scene is the typed view of a decoded avatar. A Scene belongs to exactly
// one asset and is replaced, never reused, when the avatar changes.
type Scene struct {
	ID string

	// Nodes by name. When names repeat, the first node in traversal order wins.
	Nodes map[string]*Node

	// Meshes holds every renderable mesh in traversal order.
	Meshes []*Mesh

	// Materials holds every distinct material referenced by a mesh.
	Materials []*Material
}

// Node is a named scene graph node. Mesh is set for renderable nodes.
type Node struct {
	Name  string
	Mesh  *Mesh
	Joint *Joint
}

// Mesh is a renderable mesh with named morph targets.
type Mesh struct {
	Name     string
	Material *Material

	// MorphTargets maps a target name to its index in Influences.
	MorphTargets map[string]int
	Influences   []float64
}

// SetInfluence implements retarget.MorphTarget.
func (m *Mesh) SetInfluence(name string, value float64) bool {
	i, ok := m.MorphTargets[name]
	if !ok || i < 0 || i >= len(m.Influences) {
		return false
	}
	m.Influences[i] = value
	return true
}

// Influence returns the current influence of the named target.
func (m *Mesh) Influence(name string) (float64, bool) {
	i, ok := m.MorphTargets[name]
	if !ok || i < 0 || i >= len(m.Influences) {
		return 0, false
	}
	return m.Influences[i], true
}

// InfluenceMap returns the non-empty influences keyed by target name.
func (m *Mesh) InfluenceMap() map[string]float64 {
	out := make(map[string]float64, len(m.MorphTargets))
	for name, i := range m.MorphTargets {
		if i >= 0 && i < len(m.Influences) {
			out[name] = m.Influences[i]
		}
	}
	return out
}

// Material holds the shading parameters the pipeline controls.
type Material struct {
	Name              string
	ToneMapped        bool
	Emissive          [3]float64
	EmissiveIntensity float64
}

// Joint is a skeleton bone.
type Joint struct {
	Name     string
	Rotation retarget.Euler
}

// SetRotation implements retarget.JointTarget.
func (j *Joint) SetRotation(r retarget.Euler) {
	j.Rotation = r
}

func newMaterial(name string) *Material {
	return &Material{Name: name, ToneMapped: true, EmissiveIntensity: 1}
}

// morphDictionary maps target names to indices. Unnamed targets are keyed by
// their index.
func morphDictionary(names []string, count int) map[string]int {
	dict := make(map[string]int, count)
	for i := 0; i < count; i++ {
		if i < len(names) && names[i] != "" {
			dict[names[i]] = i
		} else {
			dict[strconv.Itoa(i)] = i
		}
	}
	return dict
}

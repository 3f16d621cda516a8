package avatar

import (
	"bytes"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	jsoniter "github.com/json-iterator/go"
	"github.com/qmuntal/gltf"
	"github.com/teslashibe/go-mimic/pkg/retarget"
)

// Decode parses a glTF or GLB document into a Scene. Morph target names come
// from the mesh extras "targetNames" array.
func Decode(data []byte) (*Scene, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode avatar: empty document")
	}

	var doc gltf.Document
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode avatar: %w", err)
	}
	return sceneFromDocument(&doc)
}

func sceneFromDocument(doc *gltf.Document) (*Scene, error) {
	s := &Scene{Nodes: make(map[string]*Node)}

	materials := make([]*Material, len(doc.Materials))
	for i, m := range doc.Materials {
		mat := newMaterial(m.Name)
		mat.Emissive = m.EmissiveFactor
		materials[i] = mat
		s.Materials = append(s.Materials, mat)
	}

	skinJoints := make(map[int]bool)
	for _, skin := range doc.Skins {
		for _, j := range skin.Joints {
			skinJoints[j] = true
		}
	}

	visited := make([]bool, len(doc.Nodes))
	var visit func(idx int) error
	visit = func(idx int) error {
		if idx < 0 || idx >= len(doc.Nodes) {
			return fmt.Errorf("decode avatar: node index %d out of range", idx)
		}
		if visited[idx] {
			return nil
		}
		visited[idx] = true

		n := doc.Nodes[idx]
		node := &Node{Name: n.Name}

		if n.Mesh != nil {
			mesh, err := buildMesh(doc, *n.Mesh, n, materials)
			if err != nil {
				return err
			}
			if mesh.Material == nil {
				mesh.Material = newMaterial("")
				s.Materials = append(s.Materials, mesh.Material)
			}
			if node.Name == "" {
				node.Name = mesh.Name
			}
			mesh.Name = node.Name
			node.Mesh = mesh
			s.Meshes = append(s.Meshes, mesh)
		} else if skinJoints[idx] || n.Name != "" {
			node.Joint = &Joint{Name: n.Name, Rotation: quatToEuler(n.Rotation)}
		}

		if node.Name != "" {
			if _, dup := s.Nodes[node.Name]; !dup {
				s.Nodes[node.Name] = node
			}
		}

		for _, child := range n.Children {
			if err := visit(child); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range rootNodes(doc) {
		if err := visit(root); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// rootNodes returns the nodes of the default scene, or every node that is
// nobody's child when the document has no scenes.
func rootNodes(doc *gltf.Document) []int {
	if len(doc.Scenes) > 0 {
		idx := 0
		if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
			idx = *doc.Scene
		}
		return doc.Scenes[idx].Nodes
	}

	isChild := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(isChild) {
				isChild[c] = true
			}
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !isChild[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

func buildMesh(doc *gltf.Document, idx int, n *gltf.Node, materials []*Material) (*Mesh, error) {
	if idx < 0 || idx >= len(doc.Meshes) {
		return nil, fmt.Errorf("decode avatar: mesh index %d out of range", idx)
	}
	m := doc.Meshes[idx]

	count := 0
	var mat *Material
	for _, p := range m.Primitives {
		if len(p.Targets) > count {
			count = len(p.Targets)
		}
		if mat == nil && p.Material != nil && *p.Material < len(materials) {
			mat = materials[*p.Material]
		}
	}

	influences := make([]float64, count)
	weights := m.Weights
	if len(n.Weights) > 0 {
		weights = n.Weights
	}
	copy(influences, weights)

	return &Mesh{
		Name:         m.Name,
		Material:     mat,
		MorphTargets: morphDictionary(targetNames(m.Extras), count),
		Influences:   influences,
	}, nil
}

func targetNames(extras any) []string {
	var ex map[string]any
	switch v := extras.(type) {
	case map[string]any:
		ex = v
	default:
		raw, err := jsoniter.Marshal(v)
		if err != nil || jsoniter.Unmarshal(raw, &ex) != nil {
			return nil
		}
	}
	raw, ok := ex["targetNames"].([]any)
	if !ok {
		return nil
	}
	names := make([]string, len(raw))
	for i, v := range raw {
		names[i], _ = v.(string)
	}
	return names
}

// quatToEuler converts a glTF (x, y, z, w) rotation. A zero quaternion is
// treated as identity.
func quatToEuler(q [4]float64) retarget.Euler {
	if q == [4]float64{} {
		return retarget.Euler{}
	}
	quat := mgl64.Quat{W: q[3], V: mgl64.Vec3{q[0], q[1], q[2]}}.Normalize()
	m := quat.Mat4()

	var rm [16]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			rm[r*4+c] = m.At(r, c)
		}
	}
	e := retarget.MatrixToEuler(rm)
	if math.IsNaN(e.X) || math.IsNaN(e.Y) || math.IsNaN(e.Z) {
		return retarget.Euler{}
	}
	return e
}

package avatar

import (
	"testing"

	"github.com/teslashibe/go-mimic/pkg/retarget"
	"github.com/teslashibe/go-mimic/pkg/tracking/detection"
)

func mustDecode(t *testing.T, doc string, id string) *Scene {
	t.Helper()
	s, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	s.ID = id
	return s
}

func TestBind(t *testing.T) {
	b := Bind(mustDecode(t, wolfGLTF, "wolf"), ReadyPlayerMe)

	if b.AssetID != "wolf" || b.Names != "rpm-wolf3d-v1" {
		t.Errorf("binding identity = %q/%q", b.AssetID, b.Names)
	}
	if len(b.TargetMeshes) != 2 || b.TargetMeshes[0].Name != "Wolf3D_Head" || b.TargetMeshes[1].Name != "Wolf3D_Teeth" {
		t.Errorf("target meshes = %v", meshNames(b.TargetMeshes))
	}
	for _, role := range retarget.Roles {
		if b.Joints[role] == nil {
			t.Errorf("joint %s missing", role)
		}
	}
	if len(b.Meshes) != 3 {
		t.Errorf("meshes = %d, want 3", len(b.Meshes))
	}
	for _, m := range b.Meshes {
		if m.Material.ToneMapped {
			t.Errorf("%s: tone mapping still enabled", m.Name)
		}
	}
}

func TestBind_MissingNodes(t *testing.T) {
	b := Bind(mustDecode(t, customGLTF, "custom"), ReadyPlayerMe)

	if len(b.TargetMeshes) != 1 || b.TargetMeshes[0].Name != "Wolf3D_Avatar" {
		t.Errorf("target meshes = %v", meshNames(b.TargetMeshes))
	}
	if len(b.Joints) != 1 || b.Joints[retarget.RoleHead] == nil {
		t.Errorf("joints = %v, want head only", b.Joints)
	}

	// Applying a full pose must not fail on the missing joints.
	retarget.Apply(b.Targets(), retarget.State{
		Populated:   true,
		Expressions: []detection.Category{{Name: "jawOpen", Score: 0.7}},
		Rotation:    retarget.Euler{X: 0.1},
	})
	if v, _ := b.TargetMeshes[0].Influence("jawOpen"); v != 0.7 {
		t.Errorf("jawOpen = %v, want 0.7", v)
	}
}

func TestRebind_NoLeaks(t *testing.T) {
	a := Bind(mustDecode(t, wolfGLTF, "a"), ReadyPlayerMe)
	state := retarget.State{
		Populated:   true,
		Expressions: []detection.Category{{Name: "jawOpen", Score: 0.9}},
		Rotation:    retarget.Euler{X: 0.5},
	}
	retarget.Apply(a.Targets(), state)
	headA, _ := a.TargetMeshes[0].Influence("jawOpen")

	b := Bind(mustDecode(t, customGLTF, "b"), ReadyPlayerMe)

	aMeshes := make(map[*Mesh]bool)
	for _, m := range a.Meshes {
		aMeshes[m] = true
	}
	for _, m := range b.TargetMeshes {
		if aMeshes[m] {
			t.Fatalf("binding B references mesh %s from asset A", m.Name)
		}
	}
	for role, j := range b.Joints {
		if j == a.Joints[role] {
			t.Fatalf("binding B shares joint %s with asset A", role)
		}
	}
	if b.Joints[retarget.RoleNeck] != nil {
		t.Error("binding B gained a neck from asset A")
	}

	state.Expressions[0].Score = 0.1
	retarget.Apply(b.Targets(), state)
	if v, _ := a.TargetMeshes[0].Influence("jawOpen"); v != headA {
		t.Errorf("writing to B changed A: %v -> %v", headA, v)
	}
}

func TestBindingSetBrightness(t *testing.T) {
	b := Bind(mustDecode(t, wolfGLTF, "wolf"), ReadyPlayerMe)
	b.SetBrightness(1.5)
	for _, m := range b.Meshes {
		if m.Material.EmissiveIntensity != 1.5 {
			t.Errorf("%s: emissive = %v, want 1.5", m.Name, m.Material.EmissiveIntensity)
		}
	}
}

func meshNames(ms []*Mesh) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Name
	}
	return out
}

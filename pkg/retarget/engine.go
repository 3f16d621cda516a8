package retarget

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/teslashibe/go-mimic/pkg/tracking/detection"
)

// NeckTiltOffset is added to the neck X rotation so the avatar looks
// slightly down at the viewer.
const NeckTiltOffset = 0.3

// Scale factors of the head rotation distributed down the chain.
const (
	neckShare  = 1.0 / 5
	spineShare = 1.0 / 10
)

// gimbalThreshold is where the Y rotation is treated as ±90° and X absorbs Z.
const gimbalThreshold = 0.9999999

// JointRole names a skeleton joint the engine drives.
type JointRole string

const (
	RoleHead  JointRole = "head"
	RoleNeck  JointRole = "neck"
	RoleSpine JointRole = "spine"
)

// Roles lists the driven joints from the top of the chain down.
var Roles = []JointRole{RoleHead, RoleNeck, RoleSpine}

// MorphTarget is a mesh with named morph targets.
type MorphTarget interface {
	// SetInfluence sets the influence of the named target and reports
	// whether the mesh declares it.
	SetInfluence(name string, value float64) bool
}

// JointTarget is a joint whose local rotation can be set.
type JointTarget interface {
	SetRotation(r Euler)
}

// Targets is what the engine writes to.
type Targets struct {
	Meshes []MorphTarget
	Joints map[JointRole]JointTarget
}

// JointAngles holds one rotation per driven joint.
type JointAngles map[JointRole]Euler

// Matrix returns the rotation matrix for e in XYZ order.
func (e Euler) Matrix() mgl64.Mat4 {
	return mgl64.HomogRotate3DX(e.X).
		Mul4(mgl64.HomogRotate3DY(e.Y)).
		Mul4(mgl64.HomogRotate3DZ(e.Z))
}

// MatrixToEuler extracts an XYZ Euler rotation from a row-major 4x4 matrix
// whose upper 3x3 is a pure rotation.
func MatrixToEuler(m [16]float64) Euler {
	mat := mgl64.Mat4FromRows(
		mgl64.Vec4{m[0], m[1], m[2], m[3]},
		mgl64.Vec4{m[4], m[5], m[6], m[7]},
		mgl64.Vec4{m[8], m[9], m[10], m[11]},
		mgl64.Vec4{m[12], m[13], m[14], m[15]},
	)
	return rotationToEuler(mat)
}

func rotationToEuler(mat mgl64.Mat4) Euler {
	m11, m12, m13 := mat.At(0, 0), mat.At(0, 1), mat.At(0, 2)
	m22, m23 := mat.At(1, 1), mat.At(1, 2)
	m32, m33 := mat.At(2, 1), mat.At(2, 2)

	var e Euler
	e.Y = math.Asin(mgl64.Clamp(m13, -1, 1))
	if math.Abs(m13) < gimbalThreshold {
		e.X = math.Atan2(-m23, m33)
		e.Z = math.Atan2(-m12, m11)
	} else {
		e.X = math.Atan2(m32, m22)
		e.Z = 0
	}
	return e
}

// ChainAngles distributes the head rotation to the neck and upper spine.
func ChainAngles(r Euler) JointAngles {
	return JointAngles{
		RoleHead:  r,
		RoleNeck:  Euler{X: r.X*neckShare + NeckTiltOffset, Y: r.Y * neckShare, Z: r.Z * neckShare},
		RoleSpine: Euler{X: r.X * spineShare, Y: r.Y * spineShare, Z: r.Z * spineShare},
	}
}

// ApplyJoints writes the chain angles for r. Missing joints are skipped.
func ApplyJoints(joints map[JointRole]JointTarget, r Euler) int {
	n := 0
	for role, angle := range ChainAngles(r) {
		if j, ok := joints[role]; ok && j != nil {
			j.SetRotation(angle)
			n++
		}
	}
	return n
}

// ApplyExpressions writes each score to every mesh that declares a morph
// target of the same name. It returns the number of influences written.
func ApplyExpressions(meshes []MorphTarget, exprs []detection.Category) int {
	n := 0
	for _, e := range exprs {
		for _, m := range meshes {
			if m.SetInfluence(e.Name, e.Score) {
				n++
			}
		}
	}
	return n
}

// Apply writes state to targets. Nothing is written before the first
// detection. It returns the number of morph influences written.
func Apply(t Targets, s State) int {
	if !s.Populated {
		return 0
	}
	n := ApplyExpressions(t.Meshes, s.Expressions)
	ApplyJoints(t.Joints, s.Rotation)
	return n
}

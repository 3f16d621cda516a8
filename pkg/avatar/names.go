package avatar

import "github.com/teslashibe/go-mimic/pkg/retarget"

// NodeNames is the set of node names a binding looks up. Avatar pipelines
// differ in naming, so the set is versioned.
type NodeNames struct {
	Version string
	Meshes  []string
	Joints  map[retarget.JointRole]string
}

// ReadyPlayerMe is the Wolf3D naming used by Ready Player Me avatars.
var ReadyPlayerMe = NodeNames{
	Version: "rpm-wolf3d-v1",
	Meshes: []string{
		"Wolf3D_Head",
		"Wolf3D_Teeth",
		"Wolf3D_Beard",
		"Wolf3D_Avatar",
		"Wolf3D_Head_Custom",
	},
	Joints: map[retarget.JointRole]string{
		retarget.RoleHead:  "Head",
		retarget.RoleNeck:  "Neck",
		retarget.RoleSpine: "Spine2",
	},
}

// DefaultNodeNames returns the naming used when none is configured.
func DefaultNodeNames() NodeNames {
	return ReadyPlayerMe
}

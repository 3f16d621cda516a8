package avatar

// wolfGLTF is a minimal Ready Player Me style document: a skeleton with
// Spine2/Neck/Head, two expression meshes and one body mesh.
const wolfGLTF = `{
  "asset": {"version": "2.0"},
  "scene": 0,
  "scenes": [{"nodes": [0]}],
  "nodes": [
    {"name": "Armature", "children": [1, 5, 6, 7]},
    {"name": "Hips", "children": [2]},
    {"name": "Spine2", "children": [3]},
    {"name": "Neck", "children": [4]},
    {"name": "Head", "rotation": [0, 0, 0, 1]},
    {"name": "Wolf3D_Head", "mesh": 0, "skin": 0},
    {"name": "Wolf3D_Teeth", "mesh": 1, "skin": 0},
    {"name": "Wolf3D_Body", "mesh": 2, "skin": 0}
  ],
  "skins": [{"joints": [1, 2, 3, 4]}],
  "materials": [
    {"name": "Wolf3D_Skin"},
    {"name": "Wolf3D_Teeth"},
    {"name": "Wolf3D_Body", "emissiveFactor": [0.1, 0.2, 0.3]}
  ],
  "meshes": [
    {
      "name": "Wolf3D_Head",
      "primitives": [{"attributes": {}, "material": 0, "targets": [{}, {}, {}]}],
      "extras": {"targetNames": ["eyeBlinkLeft", "eyeBlinkRight", "jawOpen"]}
    },
    {
      "name": "Wolf3D_Teeth",
      "primitives": [{"attributes": {}, "material": 1, "targets": [{}]}],
      "extras": {"targetNames": ["jawOpen"]}
    },
    {
      "name": "Wolf3D_Body",
      "primitives": [{"attributes": {}, "material": 2}]
    }
  ]
}`

// customGLTF is a single-mesh avatar with no neck or spine joint.
const customGLTF = `{
  "asset": {"version": "2.0"},
  "scenes": [{"nodes": [0, 1]}],
  "nodes": [
    {"name": "Head", "rotation": [0, 0.7071068, 0, 0.7071068]},
    {"name": "Wolf3D_Avatar", "mesh": 0}
  ],
  "meshes": [
    {
      "name": "Wolf3D_Avatar",
      "weights": [0.25, 0],
      "primitives": [{"attributes": {}, "targets": [{}, {}]}],
      "extras": {"targetNames": ["mouthSmileLeft", "jawOpen"]}
    }
  ]
}`

// unnamedTargetsGLTF has morph targets but no target names.
const unnamedTargetsGLTF = `{
  "asset": {"version": "2.0"},
  "nodes": [{"name": "Wolf3D_Head", "mesh": 0}],
  "meshes": [{"primitives": [{"attributes": {}, "targets": [{}, {}]}]}]
}`

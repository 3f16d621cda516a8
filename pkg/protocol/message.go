// Package protocol defines the WebSocket message types exchanged between the
// mimic service, browser camera clients, scene renderers and the landmark
// detector sidecar.
package protocol

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Camera client → service
	TypeFrame MessageType = "frame" // Video frame

	// Service ↔ detector sidecar
	TypeInit   MessageType = "init"   // Create the landmarker
	TypeReady  MessageType = "ready"  // Landmarker created
	TypeDetect MessageType = "detect" // Run detection on one frame
	TypeResult MessageType = "result" // Detection output
	TypeError  MessageType = "error"  // Sidecar-side failure

	// Service → renderer clients
	TypeScene  MessageType = "scene"  // Pose snapshot for one render tick
	TypeAvatar MessageType = "avatar" // Active avatar asset changed

	// Bidirectional
	TypeSettings MessageType = "settings" // User settings
	TypePing     MessageType = "ping"     // Health check
	TypePong     MessageType = "pong"     // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType         `json:"type"`
	Timestamp int64               `json:"ts,omitempty"` // Unix milliseconds
	Data      jsoniter.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData jsoniter.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Camera frames
// =============================================================================

// FrameData contains a video frame
type FrameData struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "jpeg"
	Data    string `json:"data"`   // base64 encoded
	FrameID uint64 `json:"frame_id,omitempty"`

	// CurrentTime is the presentation time of the frame in seconds.
	CurrentTime float64 `json:"current_time"`
}

// =============================================================================
// Detector sidecar
// =============================================================================

// LandmarkerOptions mirrors the FaceLandmarker creation options.
type LandmarkerOptions struct {
	ModelAssetPath                     string `json:"model_asset_path"`
	Delegate                           string `json:"delegate"`     // "GPU", "CPU"
	RunningMode                        string `json:"running_mode"` // "VIDEO"
	NumFaces                           int    `json:"num_faces"`
	OutputFaceBlendshapes              bool   `json:"output_face_blendshapes"`
	OutputFacialTransformationMatrixes bool   `json:"output_facial_transformation_matrixes"`
}

// ReadyData acknowledges an init request.
type ReadyData struct {
	Model string `json:"model,omitempty"`
}

// DetectData asks the sidecar to run one detection.
type DetectData struct {
	Frame       FrameData `json:"frame"`
	TimestampMs int64     `json:"timestamp_ms"`
}

// CategoryData is one named score.
type CategoryData struct {
	Index        int     `json:"index,omitempty"`
	CategoryName string  `json:"category_name"`
	Score        float64 `json:"score"`
}

// ResultData is the landmarker output for one frame. Both slices are indexed
// by face.
type ResultData struct {
	TimestampMs                  int64            `json:"timestamp_ms"`
	FaceBlendshapes              [][]CategoryData `json:"face_blendshapes"`
	FacialTransformationMatrixes [][]float64      `json:"facial_transformation_matrixes"`
}

// ErrorData reports a sidecar failure.
type ErrorData struct {
	Message string `json:"message"`
}

// =============================================================================
// Renderer clients
// =============================================================================

// MeshPose is the per-mesh state a renderer applies.
type MeshPose struct {
	Name              string             `json:"name"`
	Influences        map[string]float64 `json:"influences,omitempty"`
	EmissiveIntensity float64            `json:"emissive_intensity"`
	ToneMapped        bool               `json:"tone_mapped"`
}

// SceneData is the full pose snapshot sent once per render tick.
type SceneData struct {
	AssetID  string                `json:"asset_id"`
	Sequence uint64                `json:"seq"`
	Tick     uint64                `json:"tick"`
	Meshes   []MeshPose            `json:"meshes"`
	Joints   map[string][3]float64 `json:"joints,omitempty"` // Euler XYZ radians
}

// AvatarData announces the active avatar asset.
type AvatarData struct {
	AssetID string `json:"asset_id"`
	URL     string `json:"url,omitempty"` // Empty for uploaded blobs
	Name    string `json:"name,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// SettingsData contains user settings. Nil fields are left unchanged.
type SettingsData struct {
	Brightness *float64 `json:"brightness,omitempty"`
	AvatarURL  *string  `json:"avatar_url,omitempty"`
}

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}

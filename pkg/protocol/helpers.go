package protocol

import (
	"encoding/base64"
	"fmt"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(width, height int, jpegData []byte, frameID uint64, currentTime float64) (*Message, error) {
	return NewMessage(TypeFrame, NewFrameData(width, height, jpegData, frameID, currentTime))
}

// NewFrameData encodes a JPEG frame for transport.
func NewFrameData(width, height int, jpegData []byte, frameID uint64, currentTime float64) FrameData {
	return FrameData{
		Width:       width,
		Height:      height,
		Format:      "jpeg",
		Data:        base64.StdEncoding.EncodeToString(jpegData),
		FrameID:     frameID,
		CurrentTime: currentTime,
	}
}

// NewInitMessage creates a landmarker init request
func NewInitMessage(opts LandmarkerOptions) (*Message, error) {
	return NewMessage(TypeInit, opts)
}

// NewDetectMessage creates a detect request for one frame
func NewDetectMessage(frame FrameData, timestampMs int64) (*Message, error) {
	return NewMessage(TypeDetect, DetectData{
		Frame:       frame,
		TimestampMs: timestampMs,
	})
}

// NewSceneMessage creates a render snapshot message
func NewSceneMessage(scene SceneData) (*Message, error) {
	return NewMessage(TypeScene, scene)
}

// NewAvatarMessage creates an avatar change message
func NewAvatarMessage(assetID, url, name string) (*Message, error) {
	return NewMessage(TypeAvatar, AvatarData{AssetID: assetID, URL: url, Name: name})
}

// NewSettingsMessage creates a settings message
func NewSettingsMessage(s SettingsData) (*Message, error) {
	return NewMessage(TypeSettings, s)
}

// NewErrorMessage creates an error message
func NewErrorMessage(format string, args ...any) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: fmt.Sprintf(format, args...)})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: 0, // Will be set by NewMessage
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// GetInitOptions extracts landmarker options from a message
func (m *Message) GetInitOptions() (*LandmarkerOptions, error) {
	var data LandmarkerOptions
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetDetectData extracts a detect request from a message
func (m *Message) GetDetectData() (*DetectData, error) {
	var data DetectData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetResultData extracts detection output from a message
func (m *Message) GetResultData() (*ResultData, error) {
	var data ResultData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts an error from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSceneData extracts a render snapshot from a message
func (m *Message) GetSceneData() (*SceneData, error) {
	var data SceneData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAvatarData extracts an avatar change from a message
func (m *Message) GetAvatarData() (*AvatarData, error) {
	var data AvatarData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSettingsData extracts settings from a message
func (m *Message) GetSettingsData() (*SettingsData, error) {
	var data SettingsData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Package settings holds the user-adjustable state of the service: avatar
// brightness and the avatar source. All values are last-write-wins.
package settings

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/teslashibe/go-mimic/pkg/avatar"
)

// Brightness limits and step.
const (
	MinBrightness     = 0.0
	MaxBrightness     = 2.0
	BrightnessStep    = 0.1
	DefaultBrightness = 1.0
)

// ErrNoAvatarData is returned for an empty avatar upload.
var ErrNoAvatarData = errors.New("settings: avatar upload is empty")

// Settings is a snapshot of the user settings.
type Settings struct {
	Brightness float64 `json:"brightness" validate:"min=0,max=2"`
	AvatarURL  string  `json:"avatar_url,omitempty"`
	AvatarName string  `json:"avatar_name,omitempty"` // Set for uploads
}

// Manager holds the current settings and notifies on avatar changes.
type Manager struct {
	mu       sync.RWMutex
	settings Settings
	avatar   avatar.Source
	validate *validator.Validate

	// OnAvatarChange is called after the avatar source changes.
	OnAvatarChange func(src avatar.Source)
}

// NewManager creates a manager with default brightness and the given
// initial avatar URL.
func NewManager(avatarURL string) *Manager {
	url := avatar.NormalizeURL(avatarURL)
	return &Manager{
		settings: Settings{Brightness: DefaultBrightness, AvatarURL: url},
		avatar:   avatar.URLSource(url),
		validate: validator.New(),
	}
}

// Get returns the current settings.
func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// Brightness returns the current emissive intensity.
func (m *Manager) Brightness() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings.Brightness
}

// SetBrightness validates v against [0, 2] and stores it rounded to the
// nearest 0.1.
func (m *Manager) SetBrightness(v float64) error {
	if math.IsNaN(v) {
		return fmt.Errorf("settings: brightness is not a number")
	}
	if err := m.validate.Var(v, "min=0,max=2"); err != nil {
		return fmt.Errorf("settings: brightness %v out of range [%v, %v]: %w", v, MinBrightness, MaxBrightness, err)
	}

	q := math.Round(v/BrightnessStep) / (1 / BrightnessStep)

	m.mu.Lock()
	m.settings.Brightness = q
	m.mu.Unlock()
	return nil
}

// Avatar returns the current avatar source.
func (m *Manager) Avatar() avatar.Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.avatar
}

// SetAvatarURL switches the avatar to url. Ready Player Me URLs get the
// ARKit morph target parameters added.
func (m *Manager) SetAvatarURL(url string) error {
	url = avatar.NormalizeURL(url)
	if err := m.validate.Var(url, "required"); err != nil {
		return fmt.Errorf("settings: avatar url: %w", err)
	}
	m.setAvatar(avatar.URLSource(url))
	return nil
}

// SetAvatarBlob switches the avatar to an uploaded file.
func (m *Manager) SetAvatarBlob(name string, data []byte) error {
	if len(data) == 0 {
		return ErrNoAvatarData
	}
	m.setAvatar(avatar.BlobSource(name, data))
	return nil
}

// RecordAvatar stores src as the current avatar without calling
// OnAvatarChange. Used by callers that already switched the avatar.
func (m *Manager) RecordAvatar(src avatar.Source) {
	m.store(src)
}

// RestoreAvatar puts prev back when the stored avatar is still failed, the
// source whose load just failed. It reports whether anything changed; a
// newer request stored in the meantime is left alone.
func (m *Manager) RestoreAvatar(failed, prev avatar.Source) bool {
	m.mu.RLock()
	current := m.avatar
	m.mu.RUnlock()
	if !sameSource(current, failed) {
		return false
	}
	m.store(prev)
	return true
}

func sameSource(a, b avatar.Source) bool {
	if a.URL != b.URL || a.Name != b.Name || len(a.Blob) != len(b.Blob) {
		return false
	}
	return len(a.Blob) == 0 || &a.Blob[0] == &b.Blob[0]
}

func (m *Manager) setAvatar(src avatar.Source) {
	m.store(src)

	m.mu.RLock()
	callback := m.OnAvatarChange
	m.mu.RUnlock()

	if callback != nil {
		callback(src)
	}
}

func (m *Manager) store(src avatar.Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.avatar = src
	if len(src.Blob) > 0 {
		m.settings.AvatarURL = ""
		m.settings.AvatarName = src.Name
	} else {
		m.settings.AvatarURL = src.URL
		m.settings.AvatarName = ""
	}
}

// Update applies a partial update such as a decoded PATCH body.
// Unknown keys are ignored. Nothing is applied when any value is invalid.
func (m *Manager) Update(params map[string]interface{}) error {
	cur := m.Get()
	next := cur

	for key, value := range params {
		switch key {
		case "brightness":
			v, ok := toFloat(value)
			if !ok {
				return fmt.Errorf("settings: brightness must be a number")
			}
			next.Brightness = v
		case "avatar_url":
			v, ok := value.(string)
			if !ok {
				return fmt.Errorf("settings: avatar_url must be a string")
			}
			next.AvatarURL = v
		}
	}

	if math.IsNaN(next.Brightness) {
		return fmt.Errorf("settings: brightness is not a number")
	}
	if err := m.validate.Struct(next); err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	if next.Brightness != cur.Brightness {
		if err := m.SetBrightness(next.Brightness); err != nil {
			return err
		}
	}
	if next.AvatarURL != cur.AvatarURL && next.AvatarURL != "" {
		return m.SetAvatarURL(next.AvatarURL)
	}
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

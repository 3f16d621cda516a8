package settings

import (
	"errors"
	"math"
	"testing"

	"github.com/teslashibe/go-mimic/pkg/avatar"
)

func TestNewManager(t *testing.T) {
	m := NewManager("https://models.readyplayer.me/abc.glb")
	if m.Brightness() != DefaultBrightness {
		t.Errorf("Brightness = %v, want %v", m.Brightness(), DefaultBrightness)
	}
	want := "https://models.readyplayer.me/abc.glb?morphTargets=ARKit&textureAtlas=1024"
	if m.Avatar().URL != want || m.Get().AvatarURL != want {
		t.Errorf("avatar = %q, want %q", m.Avatar().URL, want)
	}
}

func TestSetBrightness(t *testing.T) {
	tests := []struct {
		in      float64
		want    float64
		wantErr bool
	}{
		{0, 0, false},
		{2, 2, false},
		{1.04, 1, false},
		{1.06, 1.1, false},
		{0.36, 0.4, false},
		{-0.1, 0, true},
		{2.01, 0, true},
		{math.NaN(), 0, true},
	}

	for _, tc := range tests {
		m := NewManager("")
		err := m.SetBrightness(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("SetBrightness(%v) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if tc.wantErr {
			if m.Brightness() != DefaultBrightness {
				t.Errorf("SetBrightness(%v) changed the value on error", tc.in)
			}
			continue
		}
		if m.Brightness() != tc.want {
			t.Errorf("SetBrightness(%v) stored %v, want %v", tc.in, m.Brightness(), tc.want)
		}
	}
}

func TestAvatarSource_LastWriteWins(t *testing.T) {
	m := NewManager("/tmp/a.glb")
	var seen []avatar.Source
	m.OnAvatarChange = func(src avatar.Source) { seen = append(seen, src) }

	if err := m.SetAvatarBlob("dropped.glb", []byte{1, 2, 3}); err != nil {
		t.Fatalf("SetAvatarBlob: %v", err)
	}
	if src := m.Avatar(); src.URL != "" || len(src.Blob) != 3 {
		t.Errorf("after blob: %+v", src)
	}
	if s := m.Get(); s.AvatarURL != "" || s.AvatarName != "dropped.glb" {
		t.Errorf("settings after blob = %+v", s)
	}

	if err := m.SetAvatarURL("/tmp/b.glb"); err != nil {
		t.Fatalf("SetAvatarURL: %v", err)
	}
	if src := m.Avatar(); src.URL != "/tmp/b.glb" || src.Blob != nil {
		t.Errorf("after url: %+v", src)
	}
	if s := m.Get(); s.AvatarName != "" {
		t.Errorf("upload name survived a url change: %+v", s)
	}

	if len(seen) != 2 {
		t.Errorf("OnAvatarChange calls = %d, want 2", len(seen))
	}

	if err := m.SetAvatarBlob("x", nil); !errors.Is(err, ErrNoAvatarData) {
		t.Errorf("empty blob: %v", err)
	}
	if err := m.SetAvatarURL("  "); err == nil {
		t.Error("blank url should be rejected")
	}
}

func TestRecordAvatar_NoCallback(t *testing.T) {
	m := NewManager("/tmp/a.glb")
	calls := 0
	m.OnAvatarChange = func(avatar.Source) { calls++ }

	m.RecordAvatar(avatar.BlobSource("up.glb", []byte{1}))
	if calls != 0 {
		t.Errorf("OnAvatarChange calls = %d, want 0", calls)
	}
	if s := m.Get(); s.AvatarName != "up.glb" || s.AvatarURL != "" {
		t.Errorf("settings = %+v", s)
	}

	m.RecordAvatar(avatar.URLSource("/tmp/c.glb"))
	if s := m.Get(); s.AvatarURL != "/tmp/c.glb" || s.AvatarName != "" {
		t.Errorf("settings = %+v", s)
	}
}

func TestRestoreAvatar(t *testing.T) {
	prev := avatar.URLSource("/tmp/a.glb")
	blob := []byte{1, 2}

	tests := []struct {
		name     string
		stored   avatar.Source
		failed   avatar.Source
		restored bool
		wantURL  string
	}{
		{"failed url still stored", avatar.URLSource("/tmp/bad.glb"), avatar.URLSource("/tmp/bad.glb"), true, "/tmp/a.glb"},
		{"newer url stored since", avatar.URLSource("/tmp/c.glb"), avatar.URLSource("/tmp/bad.glb"), false, "/tmp/c.glb"},
		{"failed blob still stored", avatar.BlobSource("up.glb", blob), avatar.BlobSource("up.glb", blob), true, "/tmp/a.glb"},
		{"same name different upload", avatar.BlobSource("up.glb", []byte{1, 2}), avatar.BlobSource("up.glb", blob), false, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager("/tmp/a.glb")
			calls := 0
			m.OnAvatarChange = func(avatar.Source) { calls++ }
			m.RecordAvatar(tc.stored)

			if got := m.RestoreAvatar(tc.failed, prev); got != tc.restored {
				t.Errorf("RestoreAvatar = %v, want %v", got, tc.restored)
			}
			if s := m.Get(); s.AvatarURL != tc.wantURL {
				t.Errorf("AvatarURL = %q, want %q", s.AvatarURL, tc.wantURL)
			}
			if calls != 0 {
				t.Errorf("OnAvatarChange calls = %d, want 0", calls)
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	tests := []struct {
		name      string
		params    map[string]interface{}
		wantErr   bool
		wantB     float64
		wantURL   string
		wantCalls int
	}{
		{"brightness", map[string]interface{}{"brightness": 0.5}, false, 0.5, "/a.glb", 0},
		{"int brightness", map[string]interface{}{"brightness": 2}, false, 2, "/a.glb", 0},
		{"avatar", map[string]interface{}{"avatar_url": "/b.glb"}, false, 1, "/b.glb", 1},
		{"both", map[string]interface{}{"brightness": 0.0, "avatar_url": "/b.glb"}, false, 0, "/b.glb", 1},
		{"out of range", map[string]interface{}{"brightness": 3.0, "avatar_url": "/b.glb"}, true, 1, "/a.glb", 0},
		{"wrong type", map[string]interface{}{"brightness": "bright"}, true, 1, "/a.glb", 0},
		{"unknown key", map[string]interface{}{"volume": 11}, false, 1, "/a.glb", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager("/a.glb")
			calls := 0
			m.OnAvatarChange = func(avatar.Source) { calls++ }

			err := m.Update(tc.params)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Update error = %v, wantErr %v", err, tc.wantErr)
			}
			s := m.Get()
			if s.Brightness != tc.wantB || s.AvatarURL != tc.wantURL {
				t.Errorf("settings = %+v, want brightness %v url %q", s, tc.wantB, tc.wantURL)
			}
			if calls != tc.wantCalls {
				t.Errorf("avatar callbacks = %d, want %d", calls, tc.wantCalls)
			}
		})
	}
}

package avatar

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestLoader_Load(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wolf.glb":
			w.Write([]byte(wolfGLTF))
		case "/broken.glb":
			w.Write([]byte("nope"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "custom.gltf")
	if err := os.WriteFile(path, []byte(customGLTF), 0o644); err != nil {
		t.Fatal(err)
	}

	dataURL := "data:model/gltf-binary;base64," + base64.StdEncoding.EncodeToString([]byte(wolfGLTF))

	tests := []struct {
		name       string
		src        Source
		wantErr    bool
		wantMeshes int
	}{
		{"http", URLSource(srv.URL + "/wolf.glb"), false, 3},
		{"http 404", URLSource(srv.URL + "/missing.glb"), true, 0},
		{"http not a gltf", URLSource(srv.URL + "/broken.glb"), true, 0},
		{"data url", URLSource(dataURL), false, 3},
		{"bad data url", URLSource("data:nothing"), true, 0},
		{"file path", URLSource(path), false, 1},
		{"file url", URLSource("file://" + path), false, 1},
		{"missing file", URLSource(filepath.Join(dir, "nope.glb")), true, 0},
		{"blob", BlobSource("avatar.glb", []byte(customGLTF)), false, 1},
		{"empty", Source{}, true, 0},
		{"unsupported scheme", URLSource("ftp://example.com/a.glb"), true, 0},
	}

	loader := NewLoader()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			asset, err := loader.Load(context.Background(), tc.src)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Load error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				if !errors.Is(err, ErrAssetLoad) {
					t.Errorf("error %v does not wrap ErrAssetLoad", err)
				}
				var le *LoadError
				if !errors.As(err, &le) {
					t.Errorf("error %T is not a *LoadError", err)
				}
				return
			}
			if asset.ID == "" || asset.Scene.ID != asset.ID {
				t.Errorf("asset id = %q, scene id = %q", asset.ID, asset.Scene.ID)
			}
			if len(asset.Scene.Meshes) != tc.wantMeshes {
				t.Errorf("meshes = %d, want %d", len(asset.Scene.Meshes), tc.wantMeshes)
			}
		})
	}
}

func TestLoader_MaxBytes(t *testing.T) {
	loader := &Loader{MaxBytes: 10}
	_, err := loader.Load(context.Background(), BlobSource("big.glb", []byte(wolfGLTF)))
	if !errors.Is(err, ErrAssetLoad) {
		t.Errorf("oversized blob: got %v", err)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{
			"https://models.readyplayer.me/66b6f3137313deab56801afd.glb",
			"https://models.readyplayer.me/66b6f3137313deab56801afd.glb?morphTargets=ARKit&textureAtlas=1024",
		},
		{
			"  https://models.readyplayer.me/abc.glb?quality=low ",
			"https://models.readyplayer.me/abc.glb?morphTargets=ARKit&quality=low&textureAtlas=1024",
		},
		{
			"https://models.readyplayer.me/abc.glb?morphTargets=Oculus+Visemes&textureAtlas=512",
			"https://models.readyplayer.me/abc.glb?morphTargets=Oculus+Visemes&textureAtlas=512",
		},
		{"https://example.com/avatar.glb", "https://example.com/avatar.glb"},
		{"https://models.readyplayer.me/abc.png", "https://models.readyplayer.me/abc.png"},
		{"/tmp/avatar.glb", "/tmp/avatar.glb"},
		{"data:model/gltf-binary;base64,AAAA", "data:model/gltf-binary;base64,AAAA"},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := NormalizeURL(tc.in); got != tc.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSourceString(t *testing.T) {
	if got := URLSource("data:abc").String(); got != "data URL" {
		t.Errorf("data url source = %q", got)
	}
	if got := BlobSource("a.glb", []byte{1, 2}).String(); got != `upload "a.glb" (2 bytes)` {
		t.Errorf("blob source = %q", got)
	}
	if !(Source{}).IsZero() {
		t.Error("zero source should report IsZero")
	}
}

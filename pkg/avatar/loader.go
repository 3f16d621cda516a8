package avatar

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-mimic/internal/httpc"
	"github.com/teslashibe/go-mimic/internal/log"
)

// DefaultMaxBytes bounds downloaded and uploaded assets.
const DefaultMaxBytes = 64 << 20

// Source identifies an avatar asset: a URL or an in-memory blob.
// URL and Blob are mutually exclusive.
type Source struct {
	URL  string
	Blob []byte
	Name string // Display name for blobs
}

// URLSource returns a source for url.
func URLSource(url string) Source {
	return Source{URL: url}
}

// BlobSource returns a source for an uploaded file.
func BlobSource(name string, data []byte) Source {
	return Source{Name: name, Blob: data}
}

// IsZero reports whether the source names nothing.
func (s Source) IsZero() bool {
	return s.URL == "" && len(s.Blob) == 0
}

func (s Source) String() string {
	switch {
	case s.URL != "" && strings.HasPrefix(s.URL, "data:"):
		return "data URL"
	case s.URL != "":
		return s.URL
	case s.Name != "":
		return fmt.Sprintf("upload %q (%d bytes)", s.Name, len(s.Blob))
	case len(s.Blob) > 0:
		return fmt.Sprintf("upload (%d bytes)", len(s.Blob))
	}
	return "empty source"
}

// Asset is a decoded avatar.
type Asset struct {
	ID     string
	Source Source
	Scene  *Scene
	Size   int
}

// Loader fetches and decodes avatar assets.
type Loader struct {
	Client   *http.Client
	MaxBytes int64
}

// NewLoader creates a loader using the shared HTTP client.
func NewLoader() *Loader {
	return &Loader{Client: httpc.Client, MaxBytes: DefaultMaxBytes}
}

// Load fetches src and decodes it. Every failure is a *LoadError.
func (l *Loader) Load(ctx context.Context, src Source) (*Asset, error) {
	start := time.Now()

	data, err := l.fetch(ctx, src)
	if err != nil {
		return nil, &LoadError{Source: src.String(), Err: err}
	}

	scene, err := Decode(data)
	if err != nil {
		return nil, &LoadError{Source: src.String(), Err: err}
	}
	scene.ID = uuid.New().String()

	log.Info("avatar loaded",
		"source", src.String(), "asset", scene.ID, "bytes", len(data),
		"meshes", len(scene.Meshes), "duration", time.Since(start))

	return &Asset{ID: scene.ID, Source: src, Scene: scene, Size: len(data)}, nil
}

func (l *Loader) fetch(ctx context.Context, src Source) ([]byte, error) {
	if src.IsZero() {
		return nil, ErrEmptySource
	}
	if src.URL == "" {
		if l.MaxBytes > 0 && int64(len(src.Blob)) > l.MaxBytes {
			return nil, fmt.Errorf("blob exceeds %d bytes", l.MaxBytes)
		}
		return src.Blob, nil
	}

	raw := strings.TrimSpace(src.URL)
	if strings.HasPrefix(raw, "data:") {
		return decodeDataURL(raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		return httpc.Fetch(ctx, l.Client, u.String(), l.MaxBytes)
	case "file":
		return l.readFile(u.Path)
	case "":
		return l.readFile(raw)
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
}

func (l *Loader) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if l.MaxBytes > 0 && info.Size() > l.MaxBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", path, l.MaxBytes)
	}
	return os.ReadFile(path)
}

// decodeDataURL decodes an RFC 2397 data URL as produced by a browser
// FileReader.
func decodeDataURL(raw string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data url")
	}
	if strings.HasSuffix(header, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("data url: %w", err)
		}
		return data, nil
	}
	data, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("data url: %w", err)
	}
	return []byte(data), nil
}

// NormalizeURL adds the query parameters Ready Player Me needs to export
// ARKit morph targets and an atlased texture. Other URLs are returned
// trimmed but otherwise unchanged.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return raw
	}
	host := strings.ToLower(u.Hostname())
	if host != "readyplayer.me" && !strings.HasSuffix(host, ".readyplayer.me") {
		return raw
	}
	if !strings.HasSuffix(strings.ToLower(u.Path), ".glb") {
		return raw
	}

	q := u.Query()
	if q.Get("morphTargets") == "" {
		q.Set("morphTargets", "ARKit")
	}
	if q.Get("textureAtlas") == "" {
		q.Set("textureAtlas", "1024")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

package camera

import (
	"bytes"
	"context"
	"time"

	"gocv.io/x/gocv"
)

// SyntheticSource publishes a solid-color frame at a fixed rate. It stands in
// for a camera in demo mode and tests.
type SyntheticSource struct {
	*Mailbox

	config Config
	jpeg   []byte
}

// NewSynthetic creates a synthetic source using cfg's size and framerate.
func NewSynthetic(cfg Config) *SyntheticSource {
	return &SyntheticSource{
		Mailbox: NewMailbox(),
		config:  cfg,
		jpeg:    solidJPEG(cfg.Width, cfg.Height, gocv.NewScalar(90, 90, 90, 0)),
	}
}

// Run publishes frames until ctx is done.
func (s *SyntheticSource) Run(ctx context.Context) error {
	fps := s.config.Framerate
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Publish(Frame{
				Data:      s.jpeg,
				Width:     s.config.Width,
				Height:    s.config.Height,
				Timestamp: now.Sub(start).Seconds(),
			})
		}
	}
}

// Close is a no-op.
func (s *SyntheticSource) Close() error { return nil }

// solidJPEG encodes a single-color BGR image. Returns nil if encoding fails.
func solidJPEG(width, height int, bgr gocv.Scalar) []byte {
	if width <= 0 || height <= 0 {
		width, height = 64, 48
	}
	img := gocv.NewMatWithSizeFromScalar(bgr, height, width, gocv.MatTypeCV8UC3)
	defer img.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), 70})
	if err != nil {
		return nil
	}
	defer buf.Close()
	return bytes.Clone(buf.GetBytes())
}

package camera

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/go-mimic/internal/log"
	"gocv.io/x/gocv"
)

// GoCVSource captures frames from a local device or stream through OpenCV.
type GoCVSource struct {
	*Mailbox

	config  Config
	capture *gocv.VideoCapture
	mu      sync.Mutex // Protects capture

	readFailures uint64
}

// OpenGoCV opens the configured capture device and requests its resolution.
func OpenGoCV(cfg Config) (*GoCVSource, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera config: %v", errs)
	}

	capture, err := gocv.OpenVideoCapture(cfg.DeviceID())
	if err != nil {
		return nil, fmt.Errorf("open capture %q: %w", cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("capture %q did not open", cfg.Device)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	return &GoCVSource{
		Mailbox: NewMailbox(),
		config:  cfg,
		capture: capture,
	}, nil
}

// Run reads frames until ctx is done. Each decoded frame is JPEG encoded and
// published with the capture position as its timestamp, falling back to the
// wall clock for devices that do not report one.
func (s *GoCVSource) Run(ctx context.Context) error {
	img := gocv.NewMat()
	defer img.Close()

	start := time.Now()
	idle := time.Second / time.Duration(s.config.Framerate)
	params := []int{int(gocv.IMWriteJpegQuality), s.config.Quality}

	log.Info("camera capture started",
		"device", s.config.Device, "width", s.config.Width, "height", s.config.Height, "fps", s.config.Framerate)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		s.mu.Lock()
		ok := s.capture.Read(&img)
		pos := s.capture.Get(gocv.VideoCapturePosMsec)
		s.mu.Unlock()

		if !ok || img.Empty() {
			s.readFailures++
			if s.readFailures%100 == 1 {
				log.Warn("camera read failed", "device", s.config.Device, "failures", s.readFailures)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(idle):
			}
			continue
		}

		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, params)
		if err != nil {
			log.Warn("camera encode failed", "error", err)
			continue
		}
		data := bytes.Clone(buf.GetBytes())
		buf.Close()

		ts := pos / 1000
		if ts <= 0 {
			ts = time.Since(start).Seconds()
		}

		s.Publish(Frame{
			Data:      data,
			Width:     img.Cols(),
			Height:    img.Rows(),
			Timestamp: ts,
		})
	}
}

// Close releases the capture device.
func (s *GoCVSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture.Close()
}

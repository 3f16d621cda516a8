package detection

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/teslashibe/go-mimic/pkg/camera"
	"github.com/teslashibe/go-mimic/pkg/debug"
	"gocv.io/x/gocv"
)

// Config holds YuNet detector configuration
type Config struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.5)
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// YuNetDetector uses OpenCV's FaceDetectorYN for face detection
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   Config
	mu       sync.Mutex // Protects inference
}

// NewYuNet creates a YuNet face detector using GoCV's built-in FaceDetectorYN
func NewYuNet(cfg Config) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	// Input size is updated per image in Detect
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
	}, nil
}

// Detect finds faces in the JPEG image
func (d *YuNetDetector) Detect(jpeg []byte) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())

	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()

	d.detector.Detect(img, &faces)

	var detections []Detection
	for r := 0; r < faces.Rows(); r++ {
		// Row layout: x, y, w, h, 5 landmark pairs, score
		x := float64(faces.GetFloatAt(r, 0))
		y := float64(faces.GetFloatAt(r, 1))
		w := float64(faces.GetFloatAt(r, 2))
		h := float64(faces.GetFloatAt(r, 3))
		score := float64(faces.GetFloatAt(r, 14))

		detections = append(detections, Detection{
			X:          x / imgW,
			Y:          y / imgH,
			W:          w / imgW,
			H:          h / imgH,
			Confidence: score,
		})
	}

	return detections, nil
}

// Close releases the detector resources
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

// Gate runs a cheap face detector before the landmarker and skips the
// landmarker when no face is present.
type Gate struct {
	Detector Detector
	Next     Landmarker

	mu      sync.Mutex
	skipped uint64
}

// NewYuNetGate wraps next behind a YuNet presence check.
func NewYuNetGate(cfg Config, next Landmarker) (*Gate, error) {
	det, err := NewYuNet(cfg)
	if err != nil {
		return nil, err
	}
	return &Gate{Detector: det, Next: next}, nil
}

// Init initializes the wrapped landmarker.
func (g *Gate) Init(ctx context.Context) error {
	return g.Next.Init(ctx)
}

// DetectForVideo returns an empty result when the gate finds no face.
func (g *Gate) DetectForVideo(frame camera.Frame, timestampMs int64) (*Result, error) {
	dets, err := g.Detector.Detect(frame.Data)
	if err != nil {
		return nil, fmt.Errorf("presence check: %w", err)
	}
	best := SelectBest(dets)
	if best == nil {
		g.mu.Lock()
		g.skipped++
		g.mu.Unlock()
		return &Result{}, nil
	}

	cx, cy := best.Center()
	debug.TrackLog("👁️  gate: %d face(s), best at (%.2f, %.2f) conf=%.2f\n", len(dets), cx, cy, best.Confidence)

	return g.Next.DetectForVideo(frame, timestampMs)
}

// Skipped returns how many frames the gate rejected.
func (g *Gate) Skipped() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.skipped
}

// Close closes both the gate detector and the landmarker.
func (g *Gate) Close() error {
	err := g.Detector.Close()
	if nerr := g.Next.Close(); err == nil {
		err = nerr
	}
	return err
}

package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-mimic/internal/log"
	"github.com/teslashibe/go-mimic/pkg/camera"
	"github.com/teslashibe/go-mimic/pkg/debug"
	"github.com/teslashibe/go-mimic/pkg/protocol"
)

// DefaultModelAssetPath is the float16 FaceLandmarker bundle.
const DefaultModelAssetPath = "https://storage.googleapis.com/mediapipe-models/face_landmarker/face_landmarker/float16/1/face_landmarker.task"

var (
	// ErrNotInitialized is returned by DetectForVideo before Init succeeded.
	ErrNotInitialized = errors.New("landmarker not initialized")

	// ErrDisconnected is returned while the connection is down and the next
	// redial is still backing off.
	ErrDisconnected = errors.New("landmarker disconnected")
)

// RemoteConfig configures the sidecar client.
type RemoteConfig struct {
	URL              string
	Options          protocol.LandmarkerOptions
	HandshakeTimeout time.Duration
	InitTimeout      time.Duration // Model download can be slow
	RequestTimeout   time.Duration
	ReconnectBackoff time.Duration // Wait after a failed redial
}

// DefaultRemoteConfig returns the options the pipeline needs: one face, video
// mode, blendshapes and transformation matrices, GPU delegate.
func DefaultRemoteConfig(url string) RemoteConfig {
	return RemoteConfig{
		URL: url,
		Options: protocol.LandmarkerOptions{
			ModelAssetPath:                     DefaultModelAssetPath,
			Delegate:                           "GPU",
			RunningMode:                        "VIDEO",
			NumFaces:                           1,
			OutputFaceBlendshapes:              true,
			OutputFacialTransformationMatrixes: true,
		},
		HandshakeTimeout: 10 * time.Second,
		InitTimeout:      60 * time.Second,
		RequestTimeout:   2 * time.Second,
		ReconnectBackoff: time.Second,
	}
}

// RemoteLandmarker talks to a landmark detector sidecar over a websocket.
// Requests are serialized: one detect in flight at a time. After a transport
// error the connection is dropped and redialed on a later detect.
type RemoteLandmarker struct {
	config RemoteConfig

	mu          sync.Mutex // Protects everything below and the request/response exchange
	ws          *websocket.Conn
	initialized bool      // Init succeeded and Close was not called
	retryAt     time.Time // No redial before this
	reconnects  int
}

// NewRemote creates an unconnected sidecar client.
func NewRemote(cfg RemoteConfig) *RemoteLandmarker {
	return &RemoteLandmarker{config: cfg}
}

// Init dials the sidecar, sends the landmarker options and waits for ready.
func (r *RemoteLandmarker) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ws != nil {
		return nil
	}
	ws, err := r.connect(ctx)
	if err != nil {
		return err
	}
	r.ws = ws
	r.initialized = true
	return nil
}

// connect runs the init handshake on a new connection.
func (r *RemoteLandmarker) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: r.config.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, r.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial landmarker %s: %w", r.config.URL, err)
	}

	msg, err := protocol.NewInitMessage(r.config.Options)
	if err != nil {
		ws.Close()
		return nil, err
	}
	if err := writeMessage(ws, msg, r.config.HandshakeTimeout); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send init: %w", err)
	}

	deadline := time.Now().Add(r.config.InitTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ws.SetReadDeadline(deadline)

	for {
		reply, err := readMessage(ws)
		if err != nil {
			ws.Close()
			return nil, fmt.Errorf("await ready: %w", err)
		}
		switch reply.Type {
		case protocol.TypeReady:
			var ready protocol.ReadyData
			reply.ParseData(&ready)
			log.Info("landmarker ready", "url", r.config.URL, "model", ready.Model)
			return ws, nil
		case protocol.TypeError:
			ws.Close()
			return nil, sidecarError(reply)
		default:
			debug.Log("landmarker: ignoring %s during init\n", reply.Type)
		}
	}
}

// reconnect redials after a dropped connection. Must hold r.mu.
func (r *RemoteLandmarker) reconnect() error {
	if time.Now().Before(r.retryAt) {
		return ErrDisconnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.config.HandshakeTimeout+r.config.InitTimeout)
	defer cancel()

	ws, err := r.connect(ctx)
	if err != nil {
		r.retryAt = time.Now().Add(r.config.ReconnectBackoff)
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	r.ws = ws
	r.reconnects++
	log.Info("landmarker reconnected", "url", r.config.URL, "reconnects", r.reconnects)
	return nil
}

// DetectForVideo sends one frame and waits for its result.
func (r *RemoteLandmarker) DetectForVideo(frame camera.Frame, timestampMs int64) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return nil, ErrNotInitialized
	}
	if r.ws == nil {
		if err := r.reconnect(); err != nil {
			return nil, err
		}
	}

	data := protocol.NewFrameData(frame.Width, frame.Height, frame.Data, frame.Seq, frame.Timestamp)
	msg, err := protocol.NewDetectMessage(data, timestampMs)
	if err != nil {
		return nil, err
	}
	if err := writeMessage(r.ws, msg, r.config.RequestTimeout); err != nil {
		return nil, r.fail(fmt.Errorf("send detect: %w", err))
	}

	r.ws.SetReadDeadline(time.Now().Add(r.config.RequestTimeout))
	for {
		reply, err := readMessage(r.ws)
		if err != nil {
			return nil, r.fail(fmt.Errorf("read result: %w", err))
		}
		switch reply.Type {
		case protocol.TypeResult:
			res, err := reply.GetResultData()
			if err != nil {
				return nil, fmt.Errorf("decode result: %w", err)
			}
			if res.TimestampMs != timestampMs {
				// Not ours; the sidecar answered some other request.
				continue
			}
			return resultFromProtocol(res), nil
		case protocol.TypeError:
			return nil, sidecarError(reply)
		}
	}
}

// Close closes the sidecar connection.
func (r *RemoteLandmarker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = false
	if r.ws == nil {
		return nil
	}
	err := r.ws.Close()
	r.ws = nil
	return err
}

// fail drops the connection after a transport error; the next detect
// redials. Must hold r.mu.
func (r *RemoteLandmarker) fail(err error) error {
	if r.ws != nil {
		log.Warn("landmarker connection dropped", "error", err)
		r.ws.Close()
		r.ws = nil
	}
	return err
}

func writeMessage(ws *websocket.Conn, msg *protocol.Message, timeout time.Duration) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	ws.SetWriteDeadline(time.Now().Add(timeout))
	return ws.WriteMessage(websocket.TextMessage, data)
}

func readMessage(ws *websocket.Conn) (*protocol.Message, error) {
	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return protocol.ParseMessage(data)
}

func sidecarError(msg *protocol.Message) error {
	e, err := msg.GetErrorData()
	if err != nil || e.Message == "" {
		return errors.New("landmarker error")
	}
	return fmt.Errorf("landmarker error: %s", e.Message)
}

// resultFromProtocol converts a sidecar result. A face whose matrix is
// malformed is dropped entirely so both slices stay indexed by face.
func resultFromProtocol(res *protocol.ResultData) *Result {
	faces := len(res.FaceBlendshapes)
	if m := len(res.FacialTransformationMatrixes); m > faces {
		faces = m
	}

	out := &Result{}
	for i := 0; i < faces; i++ {
		var mat *[16]float64
		if i < len(res.FacialTransformationMatrixes) {
			m := res.FacialTransformationMatrixes[i]
			if len(m) != 16 {
				debug.TrackLog("👁️  landmarker: face %d has a %d-element matrix, dropped\n", i, len(m))
				continue
			}
			mat = new([16]float64)
			copy(mat[:], m)
		}

		var cats []Category
		if i < len(res.FaceBlendshapes) {
			cats = make([]Category, len(res.FaceBlendshapes[i]))
			for j, c := range res.FaceBlendshapes[i] {
				cats[j] = Category{Name: c.CategoryName, Score: c.Score}
			}
		}
		if len(res.FaceBlendshapes) > 0 {
			out.FaceBlendshapes = append(out.FaceBlendshapes, cats)
		}
		if mat != nil {
			out.FacialTransformationMatrixes = append(out.FacialTransformationMatrixes, *mat)
		}
	}
	return out
}

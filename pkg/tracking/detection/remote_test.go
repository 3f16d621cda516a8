package detection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-mimic/pkg/camera"
	"github.com/teslashibe/go-mimic/pkg/protocol"
)

// fakeSidecar answers init with ready and detect with a fixed result.
func fakeSidecar(t *testing.T, initReply protocol.MessageType, gotOpts chan<- protocol.LandmarkerOptions) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.ParseMessage(data)
			if err != nil {
				return
			}

			var reply *protocol.Message
			switch msg.Type {
			case protocol.TypeInit:
				opts, _ := msg.GetInitOptions()
				if gotOpts != nil {
					gotOpts <- *opts
				}
				if initReply == protocol.TypeError {
					reply, _ = protocol.NewErrorMessage("model download failed")
				} else {
					reply, _ = protocol.NewMessage(protocol.TypeReady, protocol.ReadyData{Model: "test"})
				}
			case protocol.TypeDetect:
				req, _ := msg.GetDetectData()
				// A stale reply first, which the client must skip.
				stale, _ := protocol.NewMessage(protocol.TypeResult, protocol.ResultData{TimestampMs: req.TimestampMs - 1})
				b, _ := stale.Bytes()
				ws.WriteMessage(websocket.TextMessage, b)

				reply, _ = protocol.NewMessage(protocol.TypeResult, protocol.ResultData{
					TimestampMs: req.TimestampMs,
					FaceBlendshapes: [][]protocol.CategoryData{{
						{CategoryName: "jawOpen", Score: 0.4},
					}},
					FacialTransformationMatrixes: [][]float64{
						{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1},
						{1, 2, 3}, // malformed: face 1 is dropped
					},
				})
			}
			if reply != nil {
				b, _ := reply.Bytes()
				ws.WriteMessage(websocket.TextMessage, b)
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRemoteLandmarker(t *testing.T) {
	opts := make(chan protocol.LandmarkerOptions, 1)
	srv := fakeSidecar(t, protocol.TypeReady, opts)
	defer srv.Close()

	r := NewRemote(DefaultRemoteConfig(wsURL(srv)))
	defer r.Close()

	if _, err := r.DetectForVideo(camera.Frame{}, 1); err != ErrNotInitialized {
		t.Errorf("detect before init: got %v, want ErrNotInitialized", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	got := <-opts
	if got.NumFaces != 1 || got.RunningMode != "VIDEO" || !got.OutputFaceBlendshapes ||
		!got.OutputFacialTransformationMatrixes || got.Delegate != "GPU" {
		t.Errorf("init options = %+v", got)
	}

	res, err := r.DetectForVideo(camera.Frame{Data: []byte{0xFF, 0xD8}, Width: 2, Height: 2}, 100)
	if err != nil {
		t.Fatalf("DetectForVideo: %v", err)
	}
	if len(res.FaceBlendshapes) != 1 || res.FaceBlendshapes[0][0] != (Category{Name: "jawOpen", Score: 0.4}) {
		t.Errorf("blendshapes = %+v", res.FaceBlendshapes)
	}
	if len(res.FacialTransformationMatrixes) != 1 || res.FacialTransformationMatrixes[0] != Identity() {
		t.Errorf("matrices = %+v", res.FacialTransformationMatrixes)
	}
}

func TestRemoteLandmarker_InitError(t *testing.T) {
	srv := fakeSidecar(t, protocol.TypeError, nil)
	defer srv.Close()

	r := NewRemote(DefaultRemoteConfig(wsURL(srv)))
	err := r.Init(context.Background())
	if err == nil || !strings.Contains(err.Error(), "model download failed") {
		t.Fatalf("Init error = %v, want sidecar error", err)
	}
	if _, err := r.DetectForVideo(camera.Frame{}, 1); err != ErrNotInitialized {
		t.Errorf("detect after failed init: got %v", err)
	}
}

func TestRemoteLandmarker_DialError(t *testing.T) {
	cfg := DefaultRemoteConfig("ws://127.0.0.1:1/landmarker")
	cfg.HandshakeTimeout = 500 * time.Millisecond
	if err := NewRemote(cfg).Init(context.Background()); err == nil {
		t.Error("expected dial error")
	}
}

// stallingSidecar answers detects with one face, but sleeps past the client's
// request timeout on the first detect it sees.
func stallingSidecar(t *testing.T, stall time.Duration, conns *atomic.Int32) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	var stalled atomic.Bool

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		conns.Add(1)

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.ParseMessage(data)
			if err != nil {
				return
			}

			var reply *protocol.Message
			switch msg.Type {
			case protocol.TypeInit:
				reply, _ = protocol.NewMessage(protocol.TypeReady, protocol.ReadyData{Model: "test"})
			case protocol.TypeDetect:
				req, _ := msg.GetDetectData()
				if stalled.CompareAndSwap(false, true) {
					time.Sleep(stall)
				}
				reply, _ = protocol.NewMessage(protocol.TypeResult, protocol.ResultData{
					TimestampMs: req.TimestampMs,
					FaceBlendshapes: [][]protocol.CategoryData{{
						{CategoryName: "eyeBlinkLeft", Score: 1},
					}},
				})
			}
			b, _ := reply.Bytes()
			if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}))
}

func TestRemoteLandmarker_RecoversAfterSlowReply(t *testing.T) {
	var conns atomic.Int32
	srv := stallingSidecar(t, 300*time.Millisecond, &conns)
	defer srv.Close()

	cfg := DefaultRemoteConfig(wsURL(srv))
	cfg.RequestTimeout = 100 * time.Millisecond
	r := NewRemote(cfg)
	defer r.Close()

	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	frame := camera.Frame{Data: []byte{0xFF, 0xD8}, Width: 2, Height: 2}
	if _, err := r.DetectForVideo(frame, 1); err == nil {
		t.Fatal("first detect should time out")
	}

	var res *Result
	var err error
	for ts := int64(2); ts < 20; ts++ {
		if res, err = r.DetectForVideo(frame, ts); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("detect after a slow reply: %v", err)
	}
	if res.NumFaces() != 1 || res.FaceBlendshapes[0][0].Name != "eyeBlinkLeft" {
		t.Errorf("result = %+v", res)
	}
	if n := conns.Load(); n != 2 {
		t.Errorf("connections = %d, want 2", n)
	}
}

func TestRemoteLandmarker_RedialBackoff(t *testing.T) {
	var conns atomic.Int32
	srv := stallingSidecar(t, 300*time.Millisecond, &conns)

	cfg := DefaultRemoteConfig(wsURL(srv))
	cfg.RequestTimeout = 100 * time.Millisecond
	cfg.HandshakeTimeout = 500 * time.Millisecond
	cfg.ReconnectBackoff = time.Hour
	r := NewRemote(cfg)
	defer r.Close()

	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	frame := camera.Frame{Data: []byte{0xFF, 0xD8}}
	if _, err := r.DetectForVideo(frame, 1); err == nil {
		t.Fatal("first detect should time out")
	}
	srv.Close()

	// The redial fails, then the backoff holds further attempts off.
	if _, err := r.DetectForVideo(frame, 2); !errors.Is(err, ErrDisconnected) {
		t.Errorf("redial to a dead sidecar: got %v, want ErrDisconnected", err)
	}
	start := time.Now()
	if _, err := r.DetectForVideo(frame, 3); !errors.Is(err, ErrDisconnected) {
		t.Errorf("detect during backoff: got %v, want ErrDisconnected", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("detect during backoff should not dial")
	}
}

func TestRemoteLandmarker_NoRedialAfterClose(t *testing.T) {
	srv := fakeSidecar(t, protocol.TypeReady, nil)
	defer srv.Close()

	r := NewRemote(DefaultRemoteConfig(wsURL(srv)))
	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	r.Close()
	if _, err := r.DetectForVideo(camera.Frame{}, 1); err != ErrNotInitialized {
		t.Errorf("detect after Close: got %v, want ErrNotInitialized", err)
	}
}

func TestResultFromProtocol_KeepsFacesAligned(t *testing.T) {
	ident := []float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

	tests := []struct {
		name      string
		in        protocol.ResultData
		wantFaces int
		wantFirst string
		wantMats  int
	}{
		{
			name: "malformed first matrix drops face 0",
			in: protocol.ResultData{
				FaceBlendshapes: [][]protocol.CategoryData{
					{{CategoryName: "face0", Score: 1}},
					{{CategoryName: "face1", Score: 1}},
				},
				FacialTransformationMatrixes: [][]float64{{1, 2, 3}, ident},
			},
			wantFaces: 1, wantFirst: "face1", wantMats: 1,
		},
		{
			name: "blendshapes without matrices",
			in: protocol.ResultData{
				FaceBlendshapes: [][]protocol.CategoryData{{{CategoryName: "face0", Score: 1}}},
			},
			wantFaces: 1, wantFirst: "face0", wantMats: 0,
		},
		{
			name: "matrices without blendshapes",
			in: protocol.ResultData{
				FacialTransformationMatrixes: [][]float64{ident},
			},
			wantFaces: 1, wantMats: 1,
		},
		{
			name:      "only a malformed matrix",
			in:        protocol.ResultData{FacialTransformationMatrixes: [][]float64{{1}}},
			wantFaces: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := resultFromProtocol(&tc.in)
			if got.NumFaces() != tc.wantFaces {
				t.Fatalf("NumFaces = %d, want %d", got.NumFaces(), tc.wantFaces)
			}
			if len(got.FacialTransformationMatrixes) != tc.wantMats {
				t.Errorf("matrices = %d, want %d", len(got.FacialTransformationMatrixes), tc.wantMats)
			}
			if tc.wantFirst != "" && got.FaceBlendshapes[0][0].Name != tc.wantFirst {
				t.Errorf("face 0 = %q, want %q", got.FaceBlendshapes[0][0].Name, tc.wantFirst)
			}
			if tc.wantMats > 0 && got.FacialTransformationMatrixes[0] != Identity() {
				t.Errorf("matrix 0 = %v", got.FacialTransformationMatrixes[0])
			}
		})
	}
}

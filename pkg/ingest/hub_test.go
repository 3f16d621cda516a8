package ingest

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-mimic/pkg/camera"
	"github.com/teslashibe/go-mimic/pkg/protocol"
)

func TestNewHub(t *testing.T) {
	hub := NewHub(camera.NewMailbox())

	if hub.CameraCount() != 0 {
		t.Error("CameraCount should be 0 initially")
	}
	stats := hub.GetStats()
	if stats.FramesReceived != 0 || stats.MessagesReceived != 0 {
		t.Errorf("GetStats() = %+v, want zeros", stats)
	}
	if len(hub.GetCameraInfos()) != 0 {
		t.Error("GetCameraInfos should be empty initially")
	}
}

func TestSendToMissingCamera(t *testing.T) {
	hub := NewHub(nil)
	if err := hub.SendPong("nope", "", 0); err == nil {
		t.Error("SendPong should fail for a camera that is not connected")
	}
}

func TestBroadcastEmpty(t *testing.T) {
	hub := NewHub(nil)
	msg, _ := protocol.NewMessage(protocol.TypePing, nil)
	hub.Broadcast(msg) // must not panic
}

func TestAPIRoutes(t *testing.T) {
	hub := NewHub(nil)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	hub.RegisterRoutes(app)
	hub.RegisterAPIRoutes(app.Group("/api"))

	tests := []struct {
		path string
		want string
	}{
		{"/api/cameras/", "cameras"},
		{"/api/cameras/stats", "frames_received"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			if err != nil {
				t.Fatalf("Request error: %v", err)
			}
			if resp.StatusCode != 200 {
				t.Errorf("Status = %d, want 200", resp.StatusCode)
			}
			body, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(body), tt.want) {
				t.Errorf("body %s missing %q", body, tt.want)
			}
		})
	}
}

func TestUpgradeRequired(t *testing.T) {
	hub := NewHub(nil)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	hub.RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/ws/camera", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("Status = %d, want 426", resp.StatusCode)
	}
}

func listen(t *testing.T, hub *Hub, addr string) {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	hub.RegisterRoutes(app)
	go app.Listen(addr)
	t.Cleanup(func() { app.Shutdown() })
	time.Sleep(100 * time.Millisecond)
}

func TestFramePublished(t *testing.T) {
	box := camera.NewMailbox()
	hub := NewHub(box)
	listen(t, hub, ":18180")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18180/ws/camera/webcam", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	time.Sleep(50 * time.Millisecond)
	if hub.GetCamera("webcam") == nil {
		t.Fatal("GetCamera should return the connected camera")
	}

	msg, _ := protocol.NewFrameMessage(4, 2, []byte{0xFF, 0xD8, 0xFF}, 1, 2.5)
	data, _ := msg.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	select {
	case <-box.Ready():
	case <-time.After(time.Second):
		t.Fatal("frame was not published")
	}

	f, ok := box.Latest()
	if !ok {
		t.Fatal("Latest() = false")
	}
	if f.Timestamp != 2.5 || f.Width != 4 || f.Height != 2 || len(f.Data) != 3 {
		t.Errorf("frame = %+v", f)
	}
	if got := hub.GetStats().FramesReceived; got != 1 {
		t.Errorf("FramesReceived = %d, want 1", got)
	}

	ws.Close()
	time.Sleep(100 * time.Millisecond)
	if hub.CameraCount() != 0 {
		t.Errorf("CameraCount = %d, want 0 after disconnect", hub.CameraCount())
	}
}

func TestEmptyFrameRejected(t *testing.T) {
	box := camera.NewMailbox()
	hub := NewHub(box)
	listen(t, hub, ":18181")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18181/ws/camera", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	msg, _ := protocol.NewFrameMessage(4, 2, nil, 1, 1)
	data, _ := msg.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	time.Sleep(100 * time.Millisecond)
	if box.Published() != 0 {
		t.Error("empty frame should not be published")
	}
	if got := hub.GetStats().FramesRejected; got != 1 {
		t.Errorf("FramesRejected = %d, want 1", got)
	}
}

func TestSettingsCallback(t *testing.T) {
	hub := NewHub(nil)

	var got atomic.Value
	hub.OnSettings(func(cameraID string, s *protocol.SettingsData) {
		if s.Brightness != nil {
			got.Store(*s.Brightness)
		}
	})
	listen(t, hub, ":18182")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18182/ws/camera/ui", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	b := 1.2
	msg, _ := protocol.NewSettingsMessage(protocol.SettingsData{Brightness: &b})
	data, _ := msg.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	time.Sleep(100 * time.Millisecond)
	if v, _ := got.Load().(float64); v != 1.2 {
		t.Errorf("brightness = %v, want 1.2", v)
	}
}

func TestPingPong(t *testing.T) {
	hub := NewHub(nil)
	listen(t, hub, ":18183")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18183/ws/camera/ping-test", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	time.Sleep(50 * time.Millisecond)

	msg, _ := protocol.NewPingMessage("p1")
	data, _ := msg.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	ws.SetReadDeadline(time.Now().Add(time.Second))
	_, respData, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	resp, err := protocol.ParseMessage(respData)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Type != protocol.TypePong {
		t.Fatalf("Type = %s, want pong", resp.Type)
	}
	pong, _ := resp.GetPongData()
	if pong.ID != "p1" {
		t.Errorf("pong ID = %q, want p1", pong.ID)
	}
}

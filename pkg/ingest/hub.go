// Package ingest receives camera frames pushed by browser clients over
// websocket and publishes them to a camera mailbox.
package ingest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/teslashibe/go-mimic/internal/log"
	"github.com/teslashibe/go-mimic/pkg/camera"
	"github.com/teslashibe/go-mimic/pkg/debug"
	"github.com/teslashibe/go-mimic/pkg/protocol"
)

// CameraConnection represents a connected camera client
type CameraConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send sends a message to the camera client
func (c *CameraConnection) Send(msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Hub manages websocket connections from camera clients
type Hub struct {
	mu      sync.RWMutex
	cameras map[string]*CameraConnection
	sink    camera.Publisher

	onSettings func(cameraID string, s *protocol.SettingsData)

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	framesRejected   atomic.Uint64
}

// NewHub creates a camera hub publishing frames to sink
func NewHub(sink camera.Publisher) *Hub {
	return &Hub{
		cameras: make(map[string]*CameraConnection),
		sink:    sink,
	}
}

// OnSettings sets the callback for settings messages sent by camera clients
func (h *Hub) OnSettings(callback func(cameraID string, s *protocol.SettingsData)) {
	h.mu.Lock()
	h.onSettings = callback
	h.mu.Unlock()
}

// RegisterRoutes registers websocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app fiber.Router) {
	app.Use("/ws/camera", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/camera", websocket.New(h.handleCamera))
	app.Get("/ws/camera/:id", websocket.New(h.handleCamera))
}

// handleCamera handles a camera websocket connection
func (h *Hub) handleCamera(c *websocket.Conn) {
	cameraID := c.Params("id")
	if cameraID == "" {
		cameraID = uuid.New().String()
	}

	cam := &CameraConnection{
		ID:        cameraID,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	h.mu.Lock()
	h.cameras[cameraID] = cam
	count := len(h.cameras)
	h.mu.Unlock()

	log.Info("camera connected", "camera", cameraID, "total", count)

	defer func() {
		h.mu.Lock()
		// A reconnect with the same ID may have replaced us
		if h.cameras[cameraID] == cam {
			delete(h.cameras, cameraID)
		}
		count := len(h.cameras)
		h.mu.Unlock()

		log.Info("camera disconnected", "camera", cameraID, "total", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			debug.Log("ingest: camera %s read error: %v\n", cameraID, err)
			return
		}

		cam.mu.Lock()
		cam.LastSeen = time.Now()
		cam.mu.Unlock()

		h.messagesReceived.Add(1)
		h.handleMessage(cam, data)
	}
}

// handleMessage processes an incoming message from a camera client
func (h *Hub) handleMessage(cam *CameraConnection, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		debug.Log("ingest: parse error from %s: %v\n", cam.ID, err)
		return
	}

	switch msg.Type {
	case protocol.TypeFrame:
		frame, err := msg.GetFrameData()
		if err != nil {
			h.framesRejected.Add(1)
			return
		}
		f, err := h.decodeFrame(cam, frame)
		if err != nil {
			h.framesRejected.Add(1)
			debug.Log("ingest: bad frame from %s: %v\n", cam.ID, err)
			return
		}
		h.framesReceived.Add(1)
		if h.sink != nil {
			h.sink.Publish(f)
		}

	case protocol.TypeSettings:
		h.mu.RLock()
		cb := h.onSettings
		h.mu.RUnlock()
		if cb == nil {
			return
		}
		s, err := msg.GetSettingsData()
		if err == nil {
			cb(cam.ID, s)
		}

	case protocol.TypePing:
		var id string
		if p, err := msg.GetPingData(); err == nil && p != nil {
			id = p.ID
		}
		h.SendPong(cam.ID, id, msg.Timestamp)
	}
}

// decodeFrame converts a wire frame to a camera frame. Clients that do not
// report a presentation time get the time since they connected.
func (h *Hub) decodeFrame(cam *CameraConnection, fd *protocol.FrameData) (camera.Frame, error) {
	jpeg, err := fd.DecodeFrameData()
	if err != nil {
		return camera.Frame{}, err
	}
	if len(jpeg) == 0 {
		return camera.Frame{}, errEmptyFrame
	}

	ts := fd.CurrentTime
	if ts <= 0 {
		ts = time.Since(cam.Connected).Seconds()
	}

	return camera.Frame{
		Data:      jpeg,
		Width:     fd.Width,
		Height:    fd.Height,
		Timestamp: ts,
	}, nil
}

// SendPong sends a pong response to a camera client
func (h *Hub) SendPong(cameraID, pingID string, pingTS int64) error {
	msg, err := protocol.NewPongMessage(pingID, pingTS, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	return h.sendToCamera(cameraID, msg)
}

// sendToCamera sends a message to a specific camera client
func (h *Hub) sendToCamera(cameraID string, msg *protocol.Message) error {
	h.mu.RLock()
	cam, ok := h.cameras[cameraID]
	h.mu.RUnlock()

	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "camera not connected")
	}

	h.messagesSent.Add(1)
	return cam.Send(msg)
}

// Broadcast sends a message to all connected camera clients
func (h *Hub) Broadcast(msg *protocol.Message) {
	h.mu.RLock()
	cams := make([]*CameraConnection, 0, len(h.cameras))
	for _, c := range h.cameras {
		cams = append(cams, c)
	}
	h.mu.RUnlock()

	for _, cam := range cams {
		h.messagesSent.Add(1)
		if err := cam.Send(msg); err != nil {
			log.Warn("camera broadcast failed", "camera", cam.ID, "error", err)
		}
	}
}

// GetCamera returns a camera connection by ID
func (h *Hub) GetCamera(cameraID string) *CameraConnection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cameras[cameraID]
}

// CameraCount returns the number of connected camera clients
func (h *Hub) CameraCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.cameras)
}

// Stats contains hub statistics
type Stats struct {
	CameraCount      int    `json:"camera_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	FramesRejected   uint64 `json:"frames_rejected"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		CameraCount:      h.CameraCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		FramesReceived:   h.framesReceived.Load(),
		FramesRejected:   h.framesRejected.Load(),
	}
}

// CameraInfo contains info about a connected camera client
type CameraInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// GetCameraInfos returns info about all connected camera clients
func (h *Hub) GetCameraInfos() []CameraInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]CameraInfo, 0, len(h.cameras))
	for _, c := range h.cameras {
		c.mu.Lock()
		infos = append(infos, CameraInfo{
			ID:        c.ID,
			Connected: c.Connected,
			LastSeen:  c.LastSeen,
		})
		c.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers API routes for camera client inspection
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	cams := api.Group("/cameras")

	cams.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"cameras": h.GetCameraInfos(),
			"count":   h.CameraCount(),
		})
	})

	cams.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}

package web

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/pion/webrtc/v3"
	"github.com/teslashibe/go-mimic/internal/log"
	"github.com/teslashibe/go-mimic/pkg/avatar"
	"github.com/teslashibe/go-mimic/pkg/hub"
	"github.com/teslashibe/go-mimic/pkg/protocol"
	"github.com/teslashibe/go-mimic/pkg/video"
)

// avatarTimeout bounds a synchronous avatar switch.
const avatarTimeout = 60 * time.Second

// handleStatus returns pipeline and connection diagnostics
func (s *Server) handleStatus(c *fiber.Ctx) error {
	status := fiber.Map{
		"scene_clients": s.sceneHub.Stats(),
		"settings":      s.deps.Settings.Get(),
	}
	if b := s.deps.Avatars.Current(); b != nil {
		status["asset_id"] = b.AssetID
	}
	if s.deps.Cameras != nil {
		status["cameras"] = s.deps.Cameras.GetStats()
	}
	if s.deps.Status != nil {
		status["pipeline"] = s.deps.Status()
	}
	return c.JSON(status)
}

func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	return c.JSON(s.deps.Settings.Get())
}

// handlePatchSettings applies a partial settings update
func (s *Server) handlePatchSettings(c *fiber.Ctx) error {
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := s.deps.Settings.Update(params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	s.broadcastSettings()
	return c.JSON(s.deps.Settings.Get())
}

func (s *Server) handleGetAvatar(c *fiber.Ctx) error {
	b := s.deps.Avatars.Current()
	if b == nil {
		return fiber.NewError(fiber.StatusNotFound, "no avatar loaded")
	}
	return c.JSON(avatarResponse(b))
}

// SetAvatarRequest is the body of POST /api/avatar
type SetAvatarRequest struct {
	URL string `json:"url"`
}

// handleSetAvatar switches to an avatar URL and waits for it to load
func (s *Server) handleSetAvatar(c *fiber.Ctx) error {
	var req SetAvatarRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	url := avatar.NormalizeURL(req.URL)
	if url == "" {
		return fiber.NewError(fiber.StatusBadRequest, "url is required")
	}
	return s.switchAvatar(c, avatar.URLSource(url))
}

// handleUploadAvatar switches to an uploaded glTF/GLB file (multipart
// field "file")
func (s *Server) handleUploadAvatar(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart field \"file\" is required")
	}
	if fh.Size > int64(s.config.MaxUploadBytes) {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "avatar file too large")
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, int64(s.config.MaxUploadBytes)+1))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "avatar file is empty")
	}
	if len(data) > s.config.MaxUploadBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "avatar file too large")
	}

	return s.switchAvatar(c, avatar.BlobSource(fh.Filename, data))
}

func (s *Server) switchAvatar(c *fiber.Ctx, src avatar.Source) error {
	ctx, cancel := context.WithTimeout(context.Background(), avatarTimeout)
	defer cancel()

	b, err := s.deps.Avatars.SetSync(ctx, src)
	switch {
	case errors.Is(err, avatar.ErrSuperseded):
		return fiber.NewError(fiber.StatusConflict, "superseded by a newer avatar request")
	case errors.Is(err, avatar.ErrAssetLoad):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case err != nil:
		return err
	}

	s.deps.Settings.RecordAvatar(src)
	s.broadcastSettings()
	return c.JSON(avatarResponse(b))
}

func avatarResponse(b *avatar.Binding) fiber.Map {
	joints := make([]string, 0, len(b.Joints))
	for role := range b.Joints {
		joints = append(joints, string(role))
	}
	return fiber.Map{
		"asset_id":      b.AssetID,
		"source":        b.Source.String(),
		"target_meshes": len(b.TargetMeshes),
		"meshes":        len(b.Meshes),
		"joints":        joints,
	}
}

// OfferRequest is a browser SDP offer
type OfferRequest struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// handleCameraOffer answers a WebRTC offer carrying the browser webcam
func (s *Server) handleCameraOffer(c *fiber.Ctx) error {
	if s.deps.WebRTC == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "webrtc camera input disabled")
	}

	var req OfferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	offer := webrtc.SessionDescription{
		Type: webrtc.NewSDPType(strings.ToLower(req.Type)),
		SDP:  req.SDP,
	}

	answer, id, err := s.deps.WebRTC.HandleOffer(c.UserContext(), offer)
	switch {
	case errors.Is(err, video.ErrBadOffer):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, video.ErrClosed):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case err != nil:
		return err
	}

	return c.JSON(fiber.Map{
		"type":       answer.Type.String(),
		"sdp":        answer.SDP,
		"session_id": id,
	})
}

// handleSceneWS attaches a renderer client to the scene hub
func (s *Server) handleSceneWS(c *websocket.Conn) {
	client := hub.NewClient(s.sceneHub, c)
	client.Run()
}

// handleSceneMessage processes messages sent by renderer clients
func (s *Server) handleSceneMessage(client *hub.Client, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		log.Debug("bad scene client message", "client", client.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeSettings:
		sd, err := msg.GetSettingsData()
		if err != nil {
			return
		}
		if err := s.applySettings(sd); err != nil {
			s.sendError(client, err)
		}

	case protocol.TypePing:
		var id string
		if p, err := msg.GetPingData(); err == nil && p != nil {
			id = p.ID
		}
		pong, err := protocol.NewPongMessage(id, msg.Timestamp, time.Now().UnixMilli())
		if err != nil {
			return
		}
		if m, err := hub.NewProtocolMessage(pong); err == nil {
			client.Send(m)
		}
	}
}

func (s *Server) sendError(client *hub.Client, err error) {
	msg, merr := protocol.NewErrorMessage("%v", err)
	if merr != nil {
		return
	}
	if m, merr := hub.NewProtocolMessage(msg); merr == nil {
		client.Send(m)
	}
}

// applySettings applies a settings message from any websocket client.
func (s *Server) applySettings(sd *protocol.SettingsData) error {
	params := make(map[string]interface{}, 2)
	if sd.Brightness != nil {
		params["brightness"] = *sd.Brightness
	}
	if sd.AvatarURL != nil {
		params["avatar_url"] = *sd.AvatarURL
	}
	if len(params) == 0 {
		return nil
	}
	if err := s.deps.Settings.Update(params); err != nil {
		return err
	}
	s.broadcastSettings()
	return nil
}

// broadcastSettings pushes the current settings to every client.
func (s *Server) broadcastSettings() {
	cur := s.deps.Settings.Get()
	sd := protocol.SettingsData{Brightness: &cur.Brightness}
	if cur.AvatarURL != "" {
		sd.AvatarURL = &cur.AvatarURL
	}
	msg, err := protocol.NewSettingsMessage(sd)
	if err != nil {
		return
	}
	s.sceneHub.BroadcastMessage(msg)
	if s.deps.Cameras != nil {
		s.deps.Cameras.Broadcast(msg)
	}
}

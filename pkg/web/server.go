// Package web serves the control API and the websocket endpoints renderer
// and camera clients connect to.
package web

import (
	"context"
	"errors"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/pion/webrtc/v3"
	"github.com/teslashibe/go-mimic/internal/log"
	"github.com/teslashibe/go-mimic/pkg/avatar"
	"github.com/teslashibe/go-mimic/pkg/hub"
	"github.com/teslashibe/go-mimic/pkg/ingest"
	"github.com/teslashibe/go-mimic/pkg/protocol"
	"github.com/teslashibe/go-mimic/pkg/settings"
)

// Config controls the HTTP server.
type Config struct {
	Port           string
	StaticDir      string // Served at / when it exists
	MaxUploadBytes int
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Port:           "8181",
		StaticDir:      "./web",
		MaxUploadBytes: avatar.DefaultMaxBytes,
	}
}

// AvatarSwitcher loads and activates avatars. *avatar.Switcher satisfies it.
type AvatarSwitcher interface {
	SetSync(ctx context.Context, src avatar.Source) (*avatar.Binding, error)
	Current() *avatar.Binding
}

// OfferHandler answers WebRTC offers. *video.Receiver satisfies it.
type OfferHandler interface {
	HandleOffer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, string, error)
}

// Deps are the components the server exposes. Settings and Avatars are
// required; the rest are optional.
type Deps struct {
	Settings *settings.Manager
	Avatars  AvatarSwitcher
	Cameras  *ingest.Hub
	WebRTC   OfferHandler

	// Status returns pipeline diagnostics for /api/status.
	Status func() any
}

// Server is the web control server
type Server struct {
	app    *fiber.App
	config Config
	deps   Deps

	sceneHub *hub.Hub
}

// NewServer creates a new server
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = avatar.DefaultMaxBytes
	}

	s := &Server{
		config:   cfg,
		deps:     deps,
		sceneHub: hub.New("scene"),
	}
	s.sceneHub.OnMessage = s.handleSceneMessage

	app := fiber.New(fiber.Config{
		AppName:               "go-mimic",
		DisableStartupMessage: true,
		BodyLimit:             cfg.MaxUploadBytes + 1<<20,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	// CORS for local development
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		if fi, err := os.Stat(cfg.StaticDir); err == nil && fi.IsDir() {
			app.Static("/", cfg.StaticDir)
		}
	}

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/settings", s.handleGetSettings)
	api.Patch("/settings", s.handlePatchSettings)
	api.Get("/avatar", s.handleGetAvatar)
	api.Post("/avatar", s.handleSetAvatar)
	api.Post("/avatar/upload", s.handleUploadAvatar)
	api.Post("/camera/offer", s.handleCameraOffer)

	// WebSocket upgrade middleware
	app.Use("/ws/scene", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/scene", websocket.New(s.handleSceneWS))

	if deps.Cameras != nil {
		deps.Cameras.OnSettings(func(_ string, sd *protocol.SettingsData) {
			if err := s.applySettings(sd); err != nil {
				log.Warn("camera client settings rejected", "error", err)
			}
		})
		deps.Cameras.RegisterRoutes(app)
		deps.Cameras.RegisterAPIRoutes(api)
	}

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// SceneHub returns the hub renderer clients subscribe to.
func (s *Server) SceneHub() *hub.Hub {
	return s.sceneHub
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go s.sceneHub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("web server listening", "url", "http://localhost:"+s.config.Port)
		errCh <- s.app.Listen(":" + s.config.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.Shutdown(); err != nil {
			return err
		}
		return nil
	}
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// AnnounceSettings pushes the current settings to renderers and cameras.
func (s *Server) AnnounceSettings() {
	s.broadcastSettings()
}

// AnnounceAvatar tells renderer clients, including ones that connect later,
// which asset is active.
func (s *Server) AnnounceAvatar(b *avatar.Binding) {
	if b == nil {
		return
	}
	msg, err := protocol.NewAvatarMessage(b.AssetID, b.Source.URL, b.Source.Name)
	if err != nil {
		log.Error("encode avatar message", "error", err)
		return
	}
	if err := s.sceneHub.Retain(msg); err != nil {
		log.Error("broadcast avatar message", "error", err)
	}
}

// errorHandler renders errors as {"error": "..."}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

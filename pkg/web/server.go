// Package web serves the browser shell: a live camera preview, the
// conversation log and the Start/Stop interaction buttons.
package web

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-quickagent/pkg/camera"
	"github.com/teslashibe/go-quickagent/pkg/hub"
	"github.com/teslashibe/go-quickagent/pkg/preview"
	"github.com/teslashibe/go-quickagent/pkg/session"
)

//go:embed static/index.html
var indexHTML []byte

const (
	defaultQuality  = 80
	snapshotLines   = 200
	shutdownTimeout = 5 * time.Second
)

// Interaction is the controller API the shell drives.
type Interaction interface {
	Start() error
	Stop() error
	State() session.State
	Interactions() int64
	Transcript() *session.Transcript
	Subscribe() (<-chan session.Line, func())
}

// Status is the shell's view of the agent.
type Status struct {
	State         string `json:"state"`
	Interactions  int64  `json:"interactions"`
	Lines         int    `json:"lines"`
	Frames        int64  `json:"frames"`
	CameraClients int    `json:"camera_clients"`
}

// Server is the web shell. It is also the preview surface: every frame set
// on it is JPEG-encoded and pushed to camera clients.
type Server struct {
	app    *fiber.App
	port   int
	ctrl   Interaction
	camera *camera.Manager
	logger *slog.Logger

	statusHub     *hub.Hub
	transcriptHub *hub.Hub
	cameraHub     *hub.Hub

	frameMu sync.RWMutex
	frame   []byte
	frames  atomic.Int64
}

var _ preview.Surface = (*Server)(nil)

// Option configures a Server.
type Option func(*Server)

// WithCamera exposes the camera settings at /api/camera and takes the JPEG
// quality from them.
func WithCamera(m *camera.Manager) Option {
	return func(s *Server) {
		s.camera = m
	}
}

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a web shell for ctrl listening on port.
func NewServer(port int, ctrl Interaction, opts ...Option) *Server {
	s := &Server{
		port:   port,
		ctrl:   ctrl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web.server")
	s.statusHub = hub.New("status", s.logger)
	s.transcriptHub = hub.New("transcript", s.logger)
	s.cameraHub = hub.New("camera", s.logger)

	app := fiber.New(fiber.Config{
		AppName:               "QuickAgent",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	app.Get("/", s.handleIndex)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/interaction/start", s.handleStart)
	api.Post("/interaction/stop", s.handleStop)
	api.Get("/transcript", s.handleTranscript)
	api.Get("/camera", s.handleGetCamera)
	api.Post("/camera", s.handleSetCamera)
	api.Get("/camera/frame", s.handleFrame)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/transcript", websocket.New(s.handleTranscriptWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.port)
}

// Run listens on the configured port until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", s.Addr(), err)
	}
	s.logger.Info("web shell listening", "url", fmt.Sprintf("http://localhost:%d", s.port))
	return s.Serve(ctx, ln)
}

// Serve runs the hubs and serves HTTP on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.statusHub.Run(ctx)
	go s.transcriptHub.Run(ctx)
	go s.cameraHub.Run(ctx)

	lines, unsubscribe := s.ctrl.Subscribe()
	go s.pumpTranscript(ctx, lines, unsubscribe)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	cancel()
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	return nil
}

// pumpTranscript forwards new lines to transcript clients, and the status
// with them since every state change writes a line.
func (s *Server) pumpTranscript(ctx context.Context, lines <-chan session.Line, unsubscribe func()) {
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := s.transcriptHub.BroadcastJSON(line); err != nil {
				s.logger.Warn("encoding transcript line", "error", err)
			}
			if err := s.statusHub.BroadcastJSON(s.Status()); err != nil {
				s.logger.Warn("encoding status", "error", err)
			}
		}
	}
}

// Status returns the current status.
func (s *Server) Status() Status {
	return Status{
		State:         s.ctrl.State().String(),
		Interactions:  s.ctrl.Interactions(),
		Lines:         s.ctrl.Transcript().Len(),
		Frames:        s.frames.Load(),
		CameraClients: s.cameraHub.ClientCount(),
	}
}

// SetFrame encodes img as JPEG, keeps it as the latest frame and pushes it
// to camera clients.
func (s *Server) SetFrame(img image.Image) {
	data, err := encodeJPEG(img, s.quality())
	if err != nil {
		s.logger.Debug("encoding frame", "error", err)
		return
	}

	s.frameMu.Lock()
	s.frame = data
	s.frameMu.Unlock()
	s.frames.Add(1)

	if s.cameraHub.ClientCount() > 0 {
		s.cameraHub.BroadcastBinary(data)
	}
}

// Frame returns the latest encoded frame, or nil before the first one.
func (s *Server) Frame() []byte {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	return s.frame
}

func (s *Server) quality() int {
	if s.camera == nil {
		return defaultQuality
	}
	if q := s.camera.GetConfig().Quality; q > 0 {
		return q
	}
	return defaultQuality
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

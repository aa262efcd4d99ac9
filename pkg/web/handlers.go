package web

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-quickagent/pkg/camera"
	"github.com/teslashibe/go-quickagent/pkg/hub"
	"github.com/teslashibe/go-quickagent/pkg/session"
)

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html")
	return c.Send(indexHTML)
}

// handleStatus returns the current status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	if err := s.ctrl.Start(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.Status())
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.ctrl.Stop(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.Status())
}

// handleTranscript returns the log, optionally only lines after ?since=<seq>.
func (s *Server) handleTranscript(c *fiber.Ctx) error {
	since := c.QueryInt("since", 0)

	lines := s.ctrl.Transcript().Lines()
	out := make([]session.Line, 0, len(lines))
	for _, l := range lines {
		if l.Seq > since {
			out = append(out, l)
		}
	}
	return c.JSON(out)
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "camera not configured"})
	}
	return c.JSON(fiber.Map{
		"config":       s.camera.GetConfigJSON(),
		"capabilities": camera.Capabilities(),
	})
}

// handleSetCamera applies a partial camera config, e.g. {"preset":"low"} or
// {"quality":60,"mirror":true}.
func (s *Server) handleSetCamera(c *fiber.Ctx) error {
	if s.camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "camera not configured"})
	}

	var params map[string]interface{}
	if err := json.Unmarshal(c.Body(), &params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if err := s.camera.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	s.logger.Info("camera config updated", "config", s.camera.GetConfig())
	return c.JSON(fiber.Map{"config": s.camera.GetConfigJSON()})
}

// handleFrame returns the latest preview frame as JPEG.
func (s *Server) handleFrame(c *fiber.Ctx) error {
	frame := s.Frame()
	if frame == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	c.Type("jpg")
	return c.Send(frame)
}

func (s *Server) handleStatusWS(c *websocket.Conn) {
	client := hub.NewClient(s.statusHub, c)
	if err := queueJSON(client, s.Status()); err != nil {
		s.logger.Warn("encoding status", "error", err)
	}
	client.Run()
}

// handleTranscriptWS sends recent lines, then streams new ones. The
// snapshot is read when the hub registers the client, so no line falls
// between it and the live stream. A line can arrive twice around the
// snapshot; clients skip it by sequence number.
func (s *Server) handleTranscriptWS(c *websocket.Conn) {
	client := hub.NewClient(s.transcriptHub, c)
	client.Snapshot(s.transcriptSnapshot)
	client.Run()
}

func (s *Server) transcriptSnapshot() []hub.Message {
	lines := s.ctrl.Transcript().Lines()
	if len(lines) > snapshotLines {
		lines = lines[len(lines)-snapshotLines:]
	}

	msgs := make([]hub.Message, 0, len(lines))
	for _, l := range lines {
		data, err := json.Marshal(l)
		if err != nil {
			s.logger.Warn("encoding transcript line", "error", err)
			break
		}
		msgs = append(msgs, hub.NewJSONMessage(data))
	}
	return msgs
}

func (s *Server) handleCameraWS(c *websocket.Conn) {
	client := hub.NewClient(s.cameraHub, c)
	if frame := s.Frame(); frame != nil {
		client.Queue(hub.NewBinaryMessage(frame))
	}
	client.Run()
}

func queueJSON(c *hub.Client, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.Queue(hub.NewJSONMessage(data))
	return nil
}

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-quickagent/pkg/camera"
	"github.com/teslashibe/go-quickagent/pkg/session"
	"github.com/teslashibe/go-quickagent/pkg/stt"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *session.Controller) {
	t.Helper()
	echo := session.LanguageModelFunc(func(_ context.Context, in string) (string, error) {
		return "re: " + in, nil
	})
	ctrl := session.NewController(stt.NewMock(), echo, nil)
	t.Cleanup(func() { ctrl.Close() })
	return NewServer(0, ctrl, opts...), ctrl
}

func doRequest(t *testing.T, s *Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestIndex(t *testing.T) {
	s, _ := newTestServer(t)

	resp, body := doRequest(t, s, "GET", "/", "")
	if resp.StatusCode != 200 {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type = %s, want text/html", resp.Header.Get("Content-Type"))
	}
	for _, want := range []string{"Start Interaction", "Stop Interaction", "/ws/camera"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("index should contain %q", want)
		}
	}
}

func TestStartStop(t *testing.T) {
	s, ctrl := newTestServer(t)

	resp, body := doRequest(t, s, "POST", "/api/interaction/start", "")
	if resp.StatusCode != 200 {
		t.Fatalf("start: status = %d", resp.StatusCode)
	}
	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "active" || st.Interactions != 1 {
		t.Errorf("Unexpected status after start: %+v", st)
	}
	if ctrl.State() != session.Active {
		t.Error("controller should be active")
	}

	// A second start is a no-op.
	doRequest(t, s, "POST", "/api/interaction/start", "")
	if ctrl.Interactions() != 1 {
		t.Errorf("Expected 1 interaction, got %d", ctrl.Interactions())
	}

	_, body = doRequest(t, s, "POST", "/api/interaction/stop", "")
	json.Unmarshal(body, &st)
	if st.State != "idle" {
		t.Errorf("State = %s, want idle", st.State)
	}
	if st.Lines != 2 {
		t.Errorf("Lines = %d, want 2", st.Lines)
	}
}

func TestStartAfterClose(t *testing.T) {
	s, ctrl := newTestServer(t)
	ctrl.Close()

	resp, _ := doRequest(t, s, "POST", "/api/interaction/start", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", resp.StatusCode)
	}
}

func TestTranscript(t *testing.T) {
	s, ctrl := newTestServer(t)
	ctrl.Start()
	ctrl.Stop()

	_, body := doRequest(t, s, "GET", "/api/transcript", "")
	var lines []session.Line
	if err := json.Unmarshal(body, &lines); err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0].Text != session.MsgStarting || lines[1].Text != session.MsgStopping {
		t.Errorf("Unexpected transcript: %+v", lines)
	}

	_, body = doRequest(t, s, "GET", "/api/transcript?since=1", "")
	json.Unmarshal(body, &lines)
	if len(lines) != 1 || lines[0].Seq != 2 {
		t.Errorf("since=1 should return only line 2, got %+v", lines)
	}
}

func TestCameraNotConfigured(t *testing.T) {
	s, _ := newTestServer(t)

	resp, _ := doRequest(t, s, "GET", "/api/camera", "")
	if resp.StatusCode != 404 {
		t.Errorf("Status = %d, want 404", resp.StatusCode)
	}
	resp, _ = doRequest(t, s, "POST", "/api/camera", `{"width":320}`)
	if resp.StatusCode != 404 {
		t.Errorf("Status = %d, want 404", resp.StatusCode)
	}
}

func TestCameraConfig(t *testing.T) {
	mgr := camera.NewManager(camera.DefaultConfig())
	var applied camera.Config
	mgr.OnConfigChange = func(cfg camera.Config) error {
		applied = cfg
		return nil
	}
	s, _ := newTestServer(t, WithCamera(mgr))

	resp, body := doRequest(t, s, "GET", "/api/camera", "")
	if resp.StatusCode != 200 || !strings.Contains(string(body), "capabilities") {
		t.Fatalf("GET /api/camera: %d %s", resp.StatusCode, body)
	}

	resp, _ = doRequest(t, s, "POST", "/api/camera", `{"preset":"low","mirror":true}`)
	if resp.StatusCode != 200 {
		t.Fatalf("POST /api/camera: status = %d", resp.StatusCode)
	}
	if applied.Width != 320 || applied.Height != 240 || !applied.Mirror {
		t.Errorf("Unexpected applied config: %+v", applied)
	}
	if s.quality() != 60 {
		t.Errorf("quality = %d, want preset quality 60", s.quality())
	}

	resp, _ = doRequest(t, s, "POST", "/api/camera", `{"width":10}`)
	if resp.StatusCode != 400 {
		t.Errorf("invalid width: status = %d, want 400", resp.StatusCode)
	}
	resp, _ = doRequest(t, s, "POST", "/api/camera", `not json`)
	if resp.StatusCode != 400 {
		t.Errorf("invalid body: status = %d, want 400", resp.StatusCode)
	}
}

func TestFrame(t *testing.T) {
	s, _ := newTestServer(t)

	resp, _ := doRequest(t, s, "GET", "/api/camera/frame", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Status before first frame = %d, want 204", resp.StatusCode)
	}

	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	s.SetFrame(img)

	resp, body := doRequest(t, s, "GET", "/api/camera/frame", "")
	if resp.StatusCode != 200 {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("Content-Type = %s", resp.Header.Get("Content-Type"))
	}
	decoded, err := jpeg.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("frame is not a JPEG: %v", err)
	}
	if decoded.Bounds().Dx() != 40 || decoded.Bounds().Dy() != 30 {
		t.Errorf("Unexpected frame size %v", decoded.Bounds())
	}
	if s.Status().Frames != 1 {
		t.Errorf("Frames = %d, want 1", s.Status().Frames)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{"/ws/status", "/ws/transcript", "/ws/camera"} {
		resp, _ := doRequest(t, s, "GET", path, "")
		if resp.StatusCode != fiber.StatusUpgradeRequired {
			t.Errorf("%s: status = %d, want 426", path, resp.StatusCode)
		}
	}
}

func TestTranscriptWebSocket(t *testing.T) {
	s, ctrl := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	defer func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("Serve did not return after cancel")
		}
	}()

	ctrl.Start()

	conn := dialWS(t, "ws://"+ln.Addr().String()+"/ws/transcript")
	defer conn.Close()

	// Snapshot first.
	if line := readLine(t, conn); line.Text != session.MsgStarting {
		t.Fatalf("snapshot line = %q", line.Text)
	}

	// Then live lines.
	ctrl.Stop()
	if line := readLine(t, conn); line.Text != session.MsgStopping || line.Seq != 2 {
		t.Fatalf("live line = %+v", line)
	}
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			return conn
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial %s: %v", url, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func readLine(t *testing.T, conn *websocket.Conn) session.Line {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var line session.Line
	if err := conn.ReadJSON(&line); err != nil {
		t.Fatalf("reading line: %v", err)
	}
	return line
}

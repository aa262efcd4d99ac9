package tts_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-quickagent/pkg/tts"
)

func TestDeepgramSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speak" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("model") != "aura-helios-en" || q.Get("encoding") != "linear16" ||
			q.Get("sample_rate") != "24000" || q.Get("container") != "none" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Token dg-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["text"] != "hi there" {
			t.Errorf("unexpected text %q", body["text"])
		}
		w.Write(make([]byte, 4800)) // 100ms at 24kHz
	}))
	defer srv.Close()

	p, err := tts.NewDeepgram(tts.WithAPIKey("dg-key"), tts.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewDeepgram failed: %v", err)
	}
	defer p.Close()

	result, err := p.Synthesize(context.Background(), "hi there")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if result.Format.SampleRate != 24000 || result.Format.Channels != 1 {
		t.Errorf("unexpected format %+v", result.Format)
	}
	if result.Duration != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", result.Duration)
	}
	if result.CharCount != 8 {
		t.Errorf("expected 8 chars, got %d", result.CharCount)
	}
}

func TestDeepgramError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"err_code":"INVALID_AUTH","err_msg":"Invalid credentials."}`))
	}))
	defer srv.Close()

	p, _ := tts.NewDeepgram(tts.WithAPIKey("bad"), tts.WithBaseURL(srv.URL))

	_, err := p.Synthesize(context.Background(), "hello")
	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !apiErr.IsUnauthorized() || apiErr.Code != "INVALID_AUTH" || apiErr.Message != "Invalid credentials." {
		t.Errorf("unexpected error %+v", apiErr)
	}

	if err := p.Health(context.Background()); err == nil {
		t.Error("expected health error")
	}
}

func TestDeepgramRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte{0, 0, 1, 0})
	}))
	defer srv.Close()

	p, _ := tts.NewDeepgram(
		tts.WithAPIKey("k"),
		tts.WithBaseURL(srv.URL),
		tts.WithRetry(2, time.Millisecond),
	)

	result, err := p.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(result.Audio) != 4 {
		t.Errorf("expected 4 bytes, got %d", len(result.Audio))
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", hits.Load())
	}
}

func TestDeepgramEmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	p, _ := tts.NewDeepgram(tts.WithAPIKey("k"), tts.WithBaseURL(srv.URL))
	if _, err := p.Synthesize(context.Background(), "hello"); !errors.Is(err, tts.ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestOpenAISynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/audio/speech":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["response_format"] != "pcm" || body["voice"] != tts.VoiceNova || body["input"] != "hello" {
				t.Errorf("unexpected payload %v", body)
			}
			if r.Header.Get("Authorization") != "Bearer oa-key" {
				t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
			}
			w.Write(make([]byte, 480))
		case "/models":
			w.Write([]byte(`{"data":[]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	p, err := tts.NewOpenAI(tts.WithAPIKey("oa-key"), tts.WithBaseURL(srv.URL), tts.WithVoice(tts.VoiceNova))
	if err != nil {
		t.Fatalf("NewOpenAI failed: %v", err)
	}

	result, err := p.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if result.Format.SampleRate != 24000 || result.Duration != 10*time.Millisecond {
		t.Errorf("unexpected result %+v", result.Format)
	}
	if err := p.Health(context.Background()); err != nil {
		t.Errorf("Health failed: %v", err)
	}
}

func TestOpenAIRequiresKey(t *testing.T) {
	if _, err := tts.NewOpenAI(); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestElevenLabsSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text-to-speech/21m00Tcm4TlvDq8ikWAM" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != "pcm_24000" {
			t.Errorf("unexpected output format %q", r.URL.Query().Get("output_format"))
		}
		if r.Header.Get("xi-api-key") != "el-key" {
			t.Errorf("unexpected key header %q", r.Header.Get("xi-api-key"))
		}
		raw, _ := io.ReadAll(r.Body)
		var body struct {
			Text    string `json:"text"`
			ModelID string `json:"model_id"`
		}
		json.Unmarshal(raw, &body)
		if body.Text != "hello" || body.ModelID != tts.ModelTurboV2_5 {
			t.Errorf("unexpected payload %s", raw)
		}
		w.Write(make([]byte, 960))
	}))
	defer srv.Close()

	p, err := tts.NewElevenLabs(tts.WithAPIKey("el-key"), tts.WithBaseURL(srv.URL), tts.WithVoice("rachel"))
	if err != nil {
		t.Fatalf("NewElevenLabs failed: %v", err)
	}

	result, err := p.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if result.Duration != 20*time.Millisecond {
		t.Errorf("expected 20ms, got %v", result.Duration)
	}
}

func TestElevenLabsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":{"status":"voice_not_found","message":"A voice with that ID does not exist."}}`))
	}))
	defer srv.Close()

	p, _ := tts.NewElevenLabs(tts.WithAPIKey("k"), tts.WithBaseURL(srv.URL), tts.WithVoice("missing"))

	_, err := p.Synthesize(context.Background(), "hello")
	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "voice_not_found" || apiErr.IsRetryable() {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestResolveElevenLabsVoice(t *testing.T) {
	if got := tts.ResolveElevenLabsVoice("adam"); got != "pNInz6obpgDQGcFmaJgB" {
		t.Errorf("expected adam's voice ID, got %s", got)
	}
	if got := tts.ResolveElevenLabsVoice("customID"); got != "customID" {
		t.Errorf("expected passthrough, got %s", got)
	}
}

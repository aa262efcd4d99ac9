package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/teslashibe/go-quickagent/internal/httpc"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ElevenLabs model IDs
const (
	// ModelTurboV2_5 is the fastest English model.
	ModelTurboV2_5 = "eleven_turbo_v2_5"

	// ModelFlashV2_5 is the fastest multilingual model.
	ModelFlashV2_5 = "eleven_flash_v2_5"

	ModelMultilingualV2 = "eleven_multilingual_v2"
)

// ElevenLabsVoices maps friendly preset names to ElevenLabs voice IDs.
var ElevenLabsVoices = map[string]string{
	"rachel":    "21m00Tcm4TlvDq8ikWAM",
	"charlotte": "XB0fDUnXU5powFXDhCwa",
	"aria":      "9BWtsMINqrJLrRacOk9x",
	"sarah":     "EXAVITQu4vr4xnSDxMaL",
	"josh":      "TxGEqnHWrfWFTfGW9XjX",
	"adam":      "pNInz6obpgDQGcFmaJgB",
}

// DefaultElevenLabsVoice is the preset used when no voice is configured.
const DefaultElevenLabsVoice = "rachel"

// ResolveElevenLabsVoice returns the voice ID for a preset name,
// or the input unchanged if it's already a voice ID.
func ResolveElevenLabsVoice(name string) string {
	if id, ok := ElevenLabsVoices[name]; ok {
		return id
	}
	return name
}

// ElevenLabs implements Provider for the ElevenLabs REST API.
type ElevenLabs struct {
	config  *Config
	rest    *restClient
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewElevenLabs creates a new ElevenLabs TTS provider.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTurboV2_5
	cfg.VoiceID = DefaultElevenLabsVoice
	cfg.Apply(opts...)

	cfg.VoiceID = ResolveElevenLabsVoice(cfg.VoiceID)
	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	client := httpc.NewClient(cfg.Timeout)
	logger := cfg.Logger.With("component", "tts.elevenlabs")

	e := &ElevenLabs{
		config:  cfg,
		client:  client,
		logger:  logger,
		baseURL: baseURL,
	}
	e.rest = &restClient{
		provider:   providerElevenLabs,
		client:     client,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		parseError: e.parseError,
	}
	return e, nil
}

// Synthesize converts text to mono PCM16 at the configured rate.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	body, err := json.Marshal(e.buildPayload(text))
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("marshal payload: %w", err))
	}

	q := url.Values{}
	q.Set("output_format", string(e.config.OutputFormat))
	endpoint := fmt.Sprintf("%s/text-to-speech/%s?%s", e.baseURL, url.PathEscape(e.config.VoiceID), q.Encode())

	audio, err := e.rest.readAudio(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		e.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	e.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", e.config.VoiceID,
		"model", e.config.ModelID,
	)

	return pcmResult(audio, e.config.sampleRate(), text, latency), nil
}

// Health checks API connectivity and key validity.
func (e *ElevenLabs) Health(ctx context.Context) error {
	return e.rest.ping(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/user", nil)
		if err != nil {
			return nil, err
		}
		e.setHeaders(req)
		return req, nil
	})
}

// Close releases resources.
func (e *ElevenLabs) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// VoiceID returns the configured voice ID.
func (e *ElevenLabs) VoiceID() string {
	return e.config.VoiceID
}

// ModelID returns the configured model ID.
func (e *ElevenLabs) ModelID() string {
	return e.config.ModelID
}

func (e *ElevenLabs) buildPayload(text string) map[string]any {
	vs := e.config.VoiceSettings
	return map[string]any{
		"text":     text,
		"model_id": e.config.ModelID,
		"voice_settings": map[string]any{
			"stability":         vs.Stability,
			"similarity_boost":  vs.SimilarityBoost,
			"style":             vs.Style,
			"use_speaker_boost": vs.SpeakerBoost,
		},
	}
}

func (e *ElevenLabs) setHeaders(req *http.Request) {
	req.Header.Set("xi-api-key", e.config.APIKey)
}

func (e *ElevenLabs) parseError(resp *http.Response) error {
	return jsonError(providerElevenLabs, resp, func(body []byte) (string, string) {
		var errResp struct {
			Detail struct {
				Status  string `json:"status"`
				Message string `json:"message"`
			} `json:"detail"`
		}
		if unmarshalInto(body, &errResp) {
			return errResp.Detail.Message, errResp.Detail.Status
		}
		return "", ""
	})
}

var _ Provider = (*ElevenLabs)(nil)

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
	deepgramBaseURL  = "https://api.deepgram.com/v1"
	providerDeepgram = "deepgram"
)

// Deepgram Aura voices.
const (
	VoiceAuraHelios  = "aura-helios-en"
	VoiceAuraAsteria = "aura-asteria-en"
	VoiceAuraOrion   = "aura-orion-en"
	VoiceAuraLuna    = "aura-luna-en"
	VoiceAuraStella  = "aura-stella-en"
	VoiceAuraArcas   = "aura-arcas-en"
	VoiceAuraPerseus = "aura-perseus-en"
	VoiceAuraAngus   = "aura-angus-en"
	VoiceAuraAthena  = "aura-athena-en"
	VoiceAuraHera    = "aura-hera-en"
	VoiceAuraOrpheus = "aura-orpheus-en"
	VoiceAuraZeus    = "aura-zeus-en"

	// DefaultAuraVoice is the voice used when no voice is configured.
	DefaultAuraVoice = VoiceAuraHelios
)

// deepgramContainer requests headerless PCM.
const deepgramContainer = "none"

// Deepgram implements Provider for Deepgram Aura speech.
// The Aura model name doubles as the voice, so VoiceID selects it.
type Deepgram struct {
	config  *Config
	rest    *restClient
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewDeepgram creates a new Deepgram Aura TTS provider.
func NewDeepgram(opts ...Option) (*Deepgram, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = DefaultAuraVoice
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = deepgramBaseURL
	}

	client := httpc.NewClient(cfg.Timeout)
	logger := cfg.Logger.With("component", "tts.deepgram")

	d := &Deepgram{
		config:  cfg,
		client:  client,
		logger:  logger,
		baseURL: baseURL,
	}
	d.rest = &restClient{
		provider:   providerDeepgram,
		client:     client,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		parseError: d.parseError,
	}
	return d, nil
}

// Synthesize converts text to mono linear16 PCM at the configured rate.
func (d *Deepgram) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()
	rate := d.config.sampleRate()

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, WrapError(providerDeepgram, fmt.Errorf("marshal payload: %w", err))
	}

	q := url.Values{}
	q.Set("model", d.config.VoiceID)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", itoa(rate))
	q.Set("container", deepgramContainer)
	endpoint := d.baseURL + "/speak?" + q.Encode()

	audio, err := d.rest.readAudio(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		d.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	d.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"model", d.config.VoiceID,
	)

	return pcmResult(audio, rate, text, latency), nil
}

// Health verifies the API key against the projects endpoint.
func (d *Deepgram) Health(ctx context.Context) error {
	return d.rest.ping(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/projects", nil)
		if err != nil {
			return nil, err
		}
		d.setHeaders(req)
		return req, nil
	})
}

// Close releases resources.
func (d *Deepgram) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

// VoiceID returns the configured Aura model.
func (d *Deepgram) VoiceID() string {
	return d.config.VoiceID
}

func (d *Deepgram) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Token "+d.config.APIKey)
}

func (d *Deepgram) parseError(resp *http.Response) error {
	return jsonError(providerDeepgram, resp, func(body []byte) (string, string) {
		var errResp struct {
			Code    string `json:"err_code"`
			Message string `json:"err_msg"`
		}
		if unmarshalInto(body, &errResp) {
			return errResp.Message, errResp.Code
		}
		return "", ""
	})
}

var _ Provider = (*Deepgram)(nil)

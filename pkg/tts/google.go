package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-audio/wav"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/texttospeech/v1"

	"github.com/teslashibe/go-quickagent/pkg/audioio"
)

const providerGoogle = "google"

// DefaultGoogleVoice is used when no voice name is configured.
const DefaultGoogleVoice = "en-US-Neural2-D"

// Google implements Provider for Google Cloud Text-to-Speech.
// An API key is used when set; otherwise application default credentials.
type Google struct {
	config  *Config
	service *texttospeech.Service
	logger  *slog.Logger
}

// NewGoogle creates a new Google Cloud TTS provider.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	return newGoogle(ctx, opts, nil)
}

func newGoogle(ctx context.Context, opts []Option, extra []option.ClientOption) (*Google, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = DefaultGoogleVoice
	cfg.Apply(opts...)

	var clientOpts []option.ClientOption
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.BaseURL))
	}

	switch {
	case len(extra) > 0:
		clientOpts = append(clientOpts, extra...)
	case cfg.APIKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	default:
		client, err := google.DefaultClient(ctx, texttospeech.CloudPlatformScope)
		if err != nil {
			return nil, WrapError(providerGoogle, fmt.Errorf("default credentials: %w", err))
		}
		clientOpts = append(clientOpts, option.WithHTTPClient(client))
	}

	service, err := texttospeech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create service: %w", err))
	}

	return &Google{
		config:  cfg,
		service: service,
		logger:  cfg.Logger.With("component", "tts.google"),
	}, nil
}

// Synthesize converts text to mono LINEAR16 PCM.
func (g *Google) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: g.config.LanguageCode,
			Name:         g.config.VoiceID,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: int64(g.config.sampleRate()),
		},
	}

	var resp *texttospeech.SynthesizeSpeechResponse
	var err error
	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.config.RetryDelay * time.Duration(attempt)):
			}
		}
		resp, err = g.service.Text.Synthesize(req).Context(ctx).Do()
		if err == nil || ctx.Err() != nil || !isRetryableGoogle(err) {
			break
		}
		g.logger.Warn("retrying request", "attempt", attempt+1, "error", err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, WrapError(providerGoogle, err)
	}

	raw, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("decode audio content: %w", err))
	}

	pcm, rate, err := decodeLinear16(raw, g.config.sampleRate())
	if err != nil {
		return nil, WrapError(providerGoogle, err)
	}

	latency := time.Since(start).Milliseconds()
	g.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(pcm),
		"latency_ms", latency,
		"voice", g.config.VoiceID,
	)

	return pcmResult(pcm, rate, text, latency), nil
}

// Health lists voices for the configured language.
func (g *Google) Health(ctx context.Context) error {
	_, err := g.service.Voices.List().LanguageCode(g.config.LanguageCode).Context(ctx).Do()
	return WrapError(providerGoogle, err)
}

// Close releases resources.
func (g *Google) Close() error {
	return nil
}

// VoiceID returns the configured voice name.
func (g *Google) VoiceID() string {
	return g.config.VoiceID
}

// decodeLinear16 returns mono PCM16 bytes and their sample rate. LINEAR16
// content arrives wrapped in a WAV header; headerless data is taken as
// PCM at fallbackRate.
func decodeLinear16(data []byte, fallbackRate int) ([]byte, int, error) {
	if len(data) == 0 {
		return nil, 0, ErrEmptyAudio
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return data, fallbackRate, nil
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, ErrUnsupportedAudio
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	if dec.BitDepth != 16 {
		return nil, 0, fmt.Errorf("%w: %d-bit wav", ErrUnsupportedAudio, dec.BitDepth)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	if buf.Format.NumChannels == 2 {
		samples = audioio.StereoToMono(samples)
	}

	return audioio.SamplesToBytes(samples), buf.Format.SampleRate, nil
}

var _ Provider = (*Google)(nil)

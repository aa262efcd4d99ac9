package stt

import (
	"log/slog"
	"time"
)

// DeepgramListenURL is the live transcription endpoint.
const DeepgramListenURL = "wss://api.deepgram.com/v1/listen"

// Config holds streaming transcription settings.
type Config struct {
	APIKey  string
	BaseURL string

	Model    string
	Language string

	// SampleRate and Channels describe the linear16 audio sent upstream.
	SampleRate int
	Channels   int

	// Endpointing is the silence that ends an utterance.
	Endpointing time.Duration

	SmartFormat bool
	Punctuate   bool

	// KeepAlive is how often a keepalive is sent while no audio flows.
	KeepAlive time.Duration

	HandshakeTimeout time.Duration

	Logger *slog.Logger
}

// Option is a functional option for configuring a transcriber.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithBaseURL overrides the websocket endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithModel sets the recognition model. Empty keeps the default.
func WithModel(model string) Option {
	return func(c *Config) {
		if model != "" {
			c.Model = model
		}
	}
}

// WithLanguage sets the recognition language. Empty keeps the default.
func WithLanguage(lang string) Option {
	return func(c *Config) {
		if lang != "" {
			c.Language = lang
		}
	}
}

// WithSampleRate sets the upstream sample rate.
func WithSampleRate(rate int) Option {
	return func(c *Config) {
		if rate > 0 {
			c.SampleRate = rate
		}
	}
}

// WithEndpointing sets the silence that ends an utterance.
func WithEndpointing(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Endpointing = d
		}
	}
}

// WithSmartFormat toggles smart formatting.
func WithSmartFormat(on bool) Option {
	return func(c *Config) {
		c.SmartFormat = on
	}
}

// WithKeepAlive sets the keepalive interval.
func WithKeepAlive(d time.Duration) Option {
	return func(c *Config) {
		c.KeepAlive = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// DefaultConfig returns the Deepgram settings of the assistant:
// nova-2, en-US, linear16 16 kHz mono, 300ms endpointing.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          DeepgramListenURL,
		Model:            "nova-2",
		Language:         "en-US",
		SampleRate:       16000,
		Channels:         1,
		Endpointing:      300 * time.Millisecond,
		SmartFormat:      true,
		Punctuate:        true,
		KeepAlive:        5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		Logger:           slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

package tts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-quickagent/pkg/audioio"
)

// Speaker synthesizes text and plays it through an audio sink.
type Speaker struct {
	provider Provider
	sink     audioio.Sink
	logger   *slog.Logger
}

// SpeakerOption configures a Speaker.
type SpeakerOption func(*Speaker)

// WithSpeakerLogger sets the speaker's logger.
func WithSpeakerLogger(logger *slog.Logger) SpeakerOption {
	return func(s *Speaker) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSpeaker creates a speaker playing provider output on sink.
func NewSpeaker(provider Provider, sink audioio.Sink, opts ...SpeakerOption) *Speaker {
	s := &Speaker{
		provider: provider,
		sink:     sink,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "tts.speaker")
	return s
}

// Speak synthesizes text and blocks until it has been played.
// Cancelling ctx stops playback and discards queued audio.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	result, err := s.provider.Synthesize(ctx, text)
	if err != nil {
		return err
	}

	if err := s.sink.Start(ctx); err != nil {
		return fmt.Errorf("start sink: %w", err)
	}

	cfg := s.sink.Config()
	pcm := audioio.Convert(result.Chunk(), cfg.SampleRate, cfg.Channels)

	step := cfg.BufferSize() * pcm.Channels
	if step <= 0 {
		step = len(pcm.Samples)
	}

	for off := 0; off < len(pcm.Samples); off += step {
		if err := ctx.Err(); err != nil {
			s.sink.Clear()
			return err
		}
		end := min(off+step, len(pcm.Samples))
		piece := audioio.AudioChunk{
			Samples:    pcm.Samples[off:end],
			SampleRate: pcm.SampleRate,
			Channels:   pcm.Channels,
		}
		if err := s.sink.Write(ctx, piece); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
	}

	if err := s.sink.Flush(ctx); err != nil {
		if ctx.Err() != nil {
			s.sink.Clear()
		}
		return err
	}

	s.logger.Debug("spoke",
		"chars", len(text),
		"duration", result.Duration,
		"latency_ms", result.LatencyMs,
	)
	return nil
}

// Provider returns the underlying provider.
func (s *Speaker) Provider() Provider {
	return s.provider
}

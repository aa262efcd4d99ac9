// Package tts turns assistant replies into speech.
//
// Providers (Deepgram Aura, OpenAI, ElevenLabs, Google Cloud) all return
// mono PCM16, so callers never deal with codecs. A Chain tries providers in
// order, and a Speaker synthesizes text and plays it through an audio sink,
// returning only once playback has finished.
//
// Example usage:
//
//	provider, _ := tts.NewDeepgram(
//	    tts.WithAPIKey(os.Getenv("DEEPGRAM_API_KEY")),
//	)
//	defer provider.Close()
//
//	speaker := tts.NewSpeaker(provider, sink)
//	_ = speaker.Speak(ctx, "Hello there")
package tts

import (
	"context"
	"time"

	"github.com/teslashibe/go-quickagent/pkg/audioio"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete PCM buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio is little-endian signed 16-bit PCM.
	Audio []byte

	// Format describes the sample rate and channel count of Audio.
	Format AudioFormat

	// Duration is the playback duration of Audio.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the request round trip in milliseconds.
	LatencyMs int64
}

// Chunk returns the result as an audio chunk ready for a sink.
func (r *AudioResult) Chunk() audioio.AudioChunk {
	var chunk audioio.AudioChunk
	chunk.FromBytes(r.Audio, r.Format.SampleRate, r.Format.Channels)
	return chunk
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding names a raw PCM output format.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"
)

// VoiceSettings controls voice characteristics for providers that support it.
type VoiceSettings struct {
	// Stability controls voice consistency (0.0-1.0).
	Stability float64

	// SimilarityBoost controls how closely the voice matches the original (0.0-1.0).
	SimilarityBoost float64

	// Style controls style exaggeration (0.0-1.0).
	Style float64

	SpeakerBoost bool
}

// DefaultVoiceSettings returns sensible defaults for voice synthesis.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Style:           0.0,
		SpeakerBoost:    true,
	}
}

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM44:
		return 44100
	default:
		return 24000
	}
}

// pcmResult builds an AudioResult for mono PCM16 audio.
func pcmResult(audio []byte, rate int, text string, latency int64) *AudioResult {
	if rate <= 0 {
		rate = 24000
	}
	samples := len(audio) / 2
	return &AudioResult{
		Audio: audio,
		Format: AudioFormat{
			Encoding:   Encoding("pcm_" + itoa(rate)),
			SampleRate: rate,
			Channels:   1,
			BitDepth:   16,
		},
		Duration:  time.Duration(samples) * time.Second / time.Duration(rate),
		CharCount: len(text),
		LatencyMs: latency,
	}
}

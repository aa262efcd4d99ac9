//go:build portaudio

package audioio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const portAudioAvailable = true

// PortAudioSource captures microphone audio from the default input device.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	gen      uint64
	stream   *portaudio.Stream
	buf      []int16
	streamCh chan AudioChunk
	stopCh   chan struct{}
	done     chan struct{}

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	return &PortAudioSource{
		cfg:      cfg,
		logger:   logger.With("component", "audioio.portaudio"),
		streamCh: make(chan AudioChunk, 64),
	}, nil
}

// Start opens the default input stream and begins capture.
func (s *PortAudioSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	s.buf = make([]int16, s.cfg.BufferSize()*s.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(
		s.cfg.Channels,
		0,
		float64(s.cfg.SampleRate),
		s.cfg.BufferSize(),
		s.buf,
	)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting stream: %w", err)
	}

	s.stream = stream
	s.running = true
	s.streamCh = make(chan AudioChunk, 64)
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.gen++

	go s.captureLoop(ctx, s.gen, stream, s.streamCh, s.stopCh, s.done)

	s.logger.Info("portaudio source started", "sample_rate", s.cfg.SampleRate)
	return nil
}

func (s *PortAudioSource) captureLoop(ctx context.Context, gen uint64, stream *portaudio.Stream, out chan AudioChunk, stopCh, done chan struct{}) {
	defer close(done)
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			go s.stop(gen)
			return
		case <-stopCh:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			s.overruns.Add(1)
			s.logger.Debug("portaudio read failed", "error", err)
			continue
		}

		samples := make([]int16, len(s.buf))
		copy(samples, s.buf)

		select {
		case out <- AudioChunk{Samples: samples, SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels}:
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(samples)))
		default:
			s.overruns.Add(1)
		}
	}
}

// Stop halts capture and waits for the read loop to exit.
func (s *PortAudioSource) Stop() error {
	return s.stop(0)
}

// stop ends capture generation gen, or the current one when gen is 0.
func (s *PortAudioSource) stop(gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || (gen != 0 && gen != s.gen) {
		return nil
	}
	s.running = false
	close(s.stopCh)
	<-s.done

	s.stream.Stop()
	s.stream.Close()
	s.stream = nil
	portaudio.Terminate()

	s.logger.Info("portaudio source stopped")
	return nil
}

// Read reads the next audio chunk.
func (s *PortAudioSource) Read(ctx context.Context) (AudioChunk, error) {
	return readChunk(ctx, s.Stream())
}

// Stream returns the audio chunk channel.
func (s *PortAudioSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *PortAudioSource) Config() Config { return s.cfg }

// Name returns "portaudio".
func (s *PortAudioSource) Name() string { return string(BackendPortAudio) }

// Close releases resources.
func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns source statistics.
func (s *PortAudioSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     string(BackendPortAudio),
	}
}

// PortAudioSink plays audio on the default output device. Write blocks
// until each buffer has been handed to the device.
type PortAudioSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	stream  *portaudio.Stream
	buf     []int16
	cleared atomic.Bool

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

func newPortAudioSink(cfg Config, logger *slog.Logger) (Sink, error) {
	return &PortAudioSink{
		cfg:    cfg,
		logger: logger.With("component", "audioio.portaudio"),
	}, nil
}

// Start opens the default output stream.
func (s *PortAudioSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	s.buf = make([]int16, s.cfg.BufferSize()*s.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(
		0,
		s.cfg.Channels,
		float64(s.cfg.SampleRate),
		s.cfg.BufferSize(),
		s.buf,
	)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting stream: %w", err)
	}

	s.stream = stream
	s.running = true

	s.logger.Info("portaudio sink started", "sample_rate", s.cfg.SampleRate)
	return nil
}

// Stop halts playback.
func (s *PortAudioSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.stream.Stop()
	s.stream.Close()
	s.stream = nil
	portaudio.Terminate()

	s.logger.Info("portaudio sink stopped")
	return nil
}

// Write plays a chunk, one device buffer at a time. A cancelled context or
// a concurrent Clear abandons the rest of the chunk.
func (s *PortAudioSink) Write(ctx context.Context, chunk AudioChunk) error {
	samples := Convert(chunk, s.cfg.SampleRate, s.cfg.Channels).Samples

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrClosed
	}
	s.cleared.Store(false)

	for off := 0; off < len(samples); off += len(s.buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.cleared.Load() {
			return nil
		}

		n := copy(s.buf, samples[off:])
		for i := n; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("writing to stream: %w", err)
		}
	}

	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(samples)))
	return nil
}

// Flush is a no-op; Write returns once the device has the audio.
func (s *PortAudioSink) Flush(ctx context.Context) error {
	return ctx.Err()
}

// Clear abandons any in-progress Write.
func (s *PortAudioSink) Clear() error {
	s.cleared.Store(true)
	return nil
}

// Config returns the audio configuration.
func (s *PortAudioSink) Config() Config { return s.cfg }

// Name returns "portaudio".
func (s *PortAudioSink) Name() string { return string(BackendPortAudio) }

// Close releases resources.
func (s *PortAudioSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns sink statistics.
func (s *PortAudioSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SinkStats{
		ChunksWritten:  s.chunksWritten.Load(),
		SamplesWritten: s.samplesWritten.Load(),
		Running:        running,
		Backend:        string(BackendPortAudio),
	}
}

var (
	_ SourceWithStats = (*PortAudioSource)(nil)
	_ SinkWithStats   = (*PortAudioSink)(nil)
)

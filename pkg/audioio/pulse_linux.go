//go:build linux

package audioio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
)

const pulseAvailable = true

// PulseSource captures microphone audio from a PulseAudio server.
type PulseSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	gen     uint64
	unwatch func() bool
	client  *pulse.Client
	stream  *pulse.RecordStream

	// sendMu guards streamCh and capturing; the record callback only
	// takes this lock so it never contends with Start.
	sendMu    sync.Mutex
	capturing bool
	streamCh  chan AudioChunk

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newPulseSource(cfg Config, logger *slog.Logger) (Source, error) {
	return &PulseSource{
		cfg:      cfg,
		logger:   logger.With("component", "audioio.pulse"),
		streamCh: make(chan AudioChunk, 64),
	}, nil
}

// Start connects to the server and begins recording.
func (s *PulseSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.running {
		return nil
	}

	client, err := pulse.NewClient(pulse.ClientApplicationName(s.cfg.Name))
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}

	writer := pulse.Int16Writer(func(buf []int16) (int, error) {
		samples := make([]int16, len(buf))
		copy(samples, buf)
		chunk := AudioChunk{Samples: samples, SampleRate: s.cfg.SampleRate, Channels: 1}

		s.sendMu.Lock()
		defer s.sendMu.Unlock()
		if !s.capturing {
			return len(buf), nil
		}
		select {
		case s.streamCh <- chunk:
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(samples)))
		default:
			s.overruns.Add(1)
		}
		return len(buf), nil
	})

	stream, err := client.NewRecord(writer,
		pulse.RecordMono,
		pulse.RecordSampleRate(s.cfg.SampleRate),
		pulse.RecordLatency(s.cfg.BufferDuration.Seconds()),
	)
	if err != nil {
		client.Close()
		return fmt.Errorf("create pulse record stream: %w", err)
	}

	s.client = client
	s.stream = stream
	s.running = true

	s.sendMu.Lock()
	s.streamCh = make(chan AudioChunk, 64)
	s.capturing = true
	s.sendMu.Unlock()

	stream.Start()

	s.gen++
	gen := s.gen
	s.unwatch = context.AfterFunc(ctx, func() { s.stop(gen) })

	s.logger.Info("pulse audio source started", "sample_rate", s.cfg.SampleRate)
	return nil
}

// Stop halts recording and closes the stream channel.
func (s *PulseSource) Stop() error {
	return s.stop(0)
}

// stop ends recording generation gen, or the current one when gen is 0.
func (s *PulseSource) stop(gen uint64) error {
	s.mu.Lock()
	if !s.running || (gen != 0 && gen != s.gen) {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stream, client := s.stream, s.client
	s.stream, s.client = nil, nil
	unwatch := s.unwatch
	s.unwatch = nil
	s.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}

	s.sendMu.Lock()
	s.capturing = false
	close(s.streamCh)
	s.sendMu.Unlock()

	stream.Stop()
	stream.Close()
	client.Close()

	s.logger.Info("pulse audio source stopped")
	return nil
}

// Read reads the next audio chunk.
func (s *PulseSource) Read(ctx context.Context) (AudioChunk, error) {
	return readChunk(ctx, s.Stream())
}

// Stream returns the audio chunk channel.
func (s *PulseSource) Stream() <-chan AudioChunk {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *PulseSource) Config() Config { return s.cfg }

// Name returns "pulse".
func (s *PulseSource) Name() string { return string(BackendPulse) }

// Close releases resources.
func (s *PulseSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns source statistics.
func (s *PulseSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     string(BackendPulse),
	}
}

// PulseSink plays audio through a PulseAudio server. Written samples are
// queued and pulled by the playback stream; silence fills any gap.
type PulseSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	client  *pulse.Client
	stream  *pulse.PlaybackStream
	running atomic.Bool

	// qMu guards queue, which the playback callback drains.
	qMu   sync.Mutex
	queue []int16

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	underruns      atomic.Int64
}

func newPulseSink(cfg Config, logger *slog.Logger) (Sink, error) {
	return &PulseSink{
		cfg:    cfg,
		logger: logger.With("component", "audioio.pulse"),
	}, nil
}

// Start connects to the server and opens a playback stream.
func (s *PulseSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.running.Load() {
		return nil
	}

	client, err := pulse.NewClient(pulse.ClientApplicationName(s.cfg.Name))
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}

	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		s.qMu.Lock()
		defer s.qMu.Unlock()
		n := copy(buf, s.queue)
		s.queue = s.queue[n:]
		if n < len(buf) {
			if n == 0 {
				s.underruns.Add(1)
			}
			for i := n; i < len(buf); i++ {
				buf[i] = 0
			}
		}
		return len(buf), nil
	})

	stream, err := client.NewPlayback(reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(s.cfg.SampleRate),
		pulse.PlaybackLatency(s.cfg.BufferDuration.Seconds()*4),
	)
	if err != nil {
		client.Close()
		return fmt.Errorf("create pulse playback stream: %w", err)
	}

	s.client = client
	s.stream = stream
	s.running.Store(true)
	stream.Start()

	s.logger.Info("pulse audio sink started", "sample_rate", s.cfg.SampleRate)
	return nil
}

// Stop halts playback.
func (s *PulseSink) Stop() error {
	s.mu.Lock()
	if !s.running.Swap(false) {
		s.mu.Unlock()
		return nil
	}
	stream, client := s.stream, s.client
	s.stream, s.client = nil, nil
	s.mu.Unlock()

	s.Clear()

	stream.Stop()
	stream.Close()
	client.Close()

	s.logger.Info("pulse audio sink stopped")
	return nil
}

// Write queues a chunk for playback. Chunks at other rates are resampled.
func (s *PulseSink) Write(ctx context.Context, chunk AudioChunk) error {
	samples := Convert(chunk, s.cfg.SampleRate, 1).Samples

	if !s.running.Load() {
		return ErrClosed
	}
	s.qMu.Lock()
	defer s.qMu.Unlock()
	s.queue = append(s.queue, samples...)
	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(samples)))
	return nil
}

// Flush blocks until the queue has drained to the server.
func (s *PulseSink) Flush(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.BufferDuration)
	defer ticker.Stop()

	for {
		s.qMu.Lock()
		remaining := len(s.queue)
		s.qMu.Unlock()

		if remaining == 0 || !s.running.Load() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Clear discards queued audio.
func (s *PulseSink) Clear() error {
	s.qMu.Lock()
	defer s.qMu.Unlock()
	s.queue = nil
	return nil
}

// Config returns the audio configuration.
func (s *PulseSink) Config() Config { return s.cfg }

// Name returns "pulse".
func (s *PulseSink) Name() string { return string(BackendPulse) }

// Close releases resources.
func (s *PulseSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns sink statistics.
func (s *PulseSink) Stats() SinkStats {
	s.qMu.Lock()
	buffered := int64(len(s.queue))
	s.qMu.Unlock()
	return SinkStats{
		ChunksWritten:   s.chunksWritten.Load(),
		SamplesWritten:  s.samplesWritten.Load(),
		Underruns:       s.underruns.Load(),
		Running:         s.running.Load(),
		Backend:         string(BackendPulse),
		BufferedSamples: buffered,
	}
}

var (
	_ SourceWithStats = (*PulseSource)(nil)
	_ SinkWithStats   = (*PulseSink)(nil)
)

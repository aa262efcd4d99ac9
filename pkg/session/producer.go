package session

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/teslashibe/go-quickagent/pkg/stt"
)

// EventKind identifies a producer event.
type EventKind int

const (
	// EventUtterance carries one finished utterance.
	EventUtterance EventKind = iota
	// EventFinished is the producer's last event; Err is nil on a clean stop.
	EventFinished
)

// Event is sent from a producer to its controller.
type Event struct {
	Kind     EventKind
	Producer string
	Text     string
	Err      error
}

// Producer awaits utterances one at a time and republishes them as events.
// It runs until stopped or until the transcriber fails; it never retries.
type Producer struct {
	id          string
	transcriber stt.Transcriber
	events      chan<- Event
	logger      *slog.Logger

	running atomic.Bool
	calls   atomic.Int64
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewProducer creates a producer publishing to events.
func NewProducer(transcriber stt.Transcriber, events chan<- Event, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Producer{
		id:          id,
		transcriber: transcriber,
		events:      events,
		logger:      logger.With("component", "session.producer", "producer", id),
		done:        make(chan struct{}),
	}
}

// ID returns the producer's identifier, carried on its events.
func (p *Producer) ID() string {
	return p.id
}

// Start runs the producer in its own goroutine, in a scope derived from
// parent. Start must be called at most once.
func (p *Producer) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	p.running.Store(true)

	go func() {
		defer close(p.done)
		defer cancel()
		p.Run(ctx)
	}()
}

// Run is the producer loop. Each iteration checks the running flag and the
// scope, then makes exactly one transcription call.
func (p *Producer) Run(ctx context.Context) {
	p.logger.Debug("producer started")

	var err error
	for p.running.Load() && ctx.Err() == nil {
		p.calls.Add(1)
		if err = p.transcriber.NextUtterance(ctx, func(text string) {
			p.send(ctx, Event{Kind: EventUtterance, Producer: p.id, Text: text})
		}); err != nil {
			break
		}
	}

	// Errors caused by Stop are a clean exit.
	if !p.running.Load() || ctx.Err() != nil {
		err = nil
	}
	p.running.Store(false)

	p.logger.Debug("producer finished", "calls", p.calls.Load(), "error", err)
	p.send(ctx, Event{Kind: EventFinished, Producer: p.id, Err: err})
}

// send delivers ev unless the producer's scope has ended.
func (p *Producer) send(ctx context.Context, ev Event) {
	select {
	case p.events <- ev:
	case <-ctx.Done():
	}
}

// Stop clears the running flag and cancels the in-flight call.
func (p *Producer) Stop() {
	p.running.Store(false)
	if p.cancel != nil {
		p.cancel()
	}
}

// Done is closed once the producer goroutine has exited.
func (p *Producer) Done() <-chan struct{} {
	return p.done
}

// Running reports whether the loop will make another call.
func (p *Producer) Running() bool {
	return p.running.Load()
}

// Calls returns how many transcription calls were issued.
func (p *Producer) Calls() int64 {
	return p.calls.Load()
}

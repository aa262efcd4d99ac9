package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/teslashibe/go-quickagent/pkg/stt"
)

// Transcript lines written by the controller.
const (
	MsgStarting = "Starting interaction..."
	MsgStopping = "Stopping interaction..."

	prefixYouSaid    = "You said: "
	prefixAIResponse = "AI response: "
	prefixError      = "Error: "
	prefixSTTStopped = "Transcription stopped: "
)

// ErrClosed is returned by controller calls after Close.
var ErrClosed = errors.New("session: controller closed")

// LanguageModel produces a reply for one utterance.
type LanguageModel interface {
	Process(ctx context.Context, input string) (string, error)
}

// LanguageModelFunc adapts a function to LanguageModel.
type LanguageModelFunc func(ctx context.Context, input string) (string, error)

// Process calls f.
func (f LanguageModelFunc) Process(ctx context.Context, input string) (string, error) {
	return f(ctx, input)
}

// Speaker speaks a reply, returning once playback is done.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// SpeakerFunc adapts a function to Speaker.
type SpeakerFunc func(ctx context.Context, text string) error

// Speak calls f.
func (f SpeakerFunc) Speak(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Silent is a Speaker that plays nothing.
var Silent Speaker = SpeakerFunc(func(context.Context, string) error { return nil })

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdClose
)

type command struct {
	kind  commandKind
	reply chan struct{}
}

// Controller owns the interaction state. Start, Stop and Close are
// serialized through its dispatch goroutine, as are utterance handling,
// language model and speech calls.
type Controller struct {
	transcriber stt.Transcriber
	llm         LanguageModel
	speaker     Speaker
	transcript  *Transcript
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	cmds     chan command
	events   chan Event
	loopDone chan struct{}
	close    sync.Once

	state        atomic.Int32
	interactions atomic.Int64
	alive        atomic.Int32

	// Owned by the dispatch goroutine.
	producer  *Producer
	sessionID string
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTranscript makes the controller append to an existing transcript.
func WithTranscript(t *Transcript) Option {
	return func(c *Controller) {
		if t != nil {
			c.transcript = t
		}
	}
}

// NewController creates a controller and starts its dispatch goroutine.
// The controller begins Idle. A nil speaker is replaced by Silent.
func NewController(transcriber stt.Transcriber, llm LanguageModel, speaker Speaker, opts ...Option) *Controller {
	if speaker == nil {
		speaker = Silent
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		transcriber: transcriber,
		llm:         llm,
		speaker:     speaker,
		transcript:  NewTranscript(),
		logger:      slog.Default(),
		ctx:         ctx,
		cancel:      cancel,
		cmds:        make(chan command),
		events:      make(chan Event, 16),
		loopDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "session.controller")

	go c.loop()
	return c
}

// Start begins an interaction. It is a no-op while one is active.
func (c *Controller) Start() error {
	return c.do(cmdStart)
}

// Stop ends the interaction and waits for its producer to exit.
// It is a no-op while idle.
func (c *Controller) Stop() error {
	return c.do(cmdStop)
}

// Close stops any interaction, waits for the producer and ends the
// dispatch goroutine. Later calls return ErrClosed.
func (c *Controller) Close() error {
	err := ErrClosed
	c.close.Do(func() {
		err = c.do(cmdClose)
	})
	return err
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Transcript returns the conversation log.
func (c *Controller) Transcript() *Transcript {
	return c.transcript
}

// Subscribe streams new transcript lines. Call the returned function to
// unsubscribe.
func (c *Controller) Subscribe() (<-chan Line, func()) {
	return c.transcript.Subscribe()
}

// Interactions returns how many interactions have been started.
func (c *Controller) Interactions() int64 {
	return c.interactions.Load()
}

// LiveProducers returns how many producers have been started and not yet
// joined.
func (c *Controller) LiveProducers() int {
	return int(c.alive.Load())
}

func (c *Controller) do(kind commandKind) error {
	reply := make(chan struct{})
	select {
	case c.cmds <- command{kind: kind, reply: reply}:
	case <-c.loopDone:
		return ErrClosed
	}
	<-reply
	return nil
}

func (c *Controller) loop() {
	defer close(c.loopDone)

	for {
		select {
		case cmd := <-c.cmds:
			switch cmd.kind {
			case cmdStart:
				c.start()
			case cmdStop:
				c.stop(TriggerStop)
			case cmdClose:
				c.stop(TriggerClose)
				c.cancel()
				c.logger.Info("controller closed", "lines", c.transcript.Len())
				close(cmd.reply)
				return
			}
			close(cmd.reply)

		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Controller) setState(t Trigger) bool {
	next, err := Transition(c.State(), t)
	if err != nil {
		return false
	}
	c.state.Store(int32(next))
	return true
}

func (c *Controller) start() {
	if !c.setState(TriggerStart) {
		return
	}

	c.sessionID = uuid.NewString()
	c.interactions.Add(1)
	c.append(LineSystem, "", MsgStarting)

	p := NewProducer(c.transcriber, c.events, c.logger)
	c.producer = p
	c.alive.Add(1)
	p.Start(c.ctx)

	c.logger.Info("interaction started", "session", c.sessionID, "producer", p.ID())
}

func (c *Controller) stop(t Trigger) {
	wasActive := c.State() == Active
	c.setState(t)
	if !wasActive {
		return
	}

	c.append(LineSystem, "", MsgStopping)
	c.joinProducer()
	c.logger.Info("interaction stopped", "session", c.sessionID)
}

// joinProducer stops the current producer and waits for it to exit.
func (c *Controller) joinProducer() {
	p := c.producer
	if p == nil {
		return
	}
	c.producer = nil
	p.Stop()
	<-p.Done()
	c.alive.Add(-1)
}

func (c *Controller) handle(ev Event) {
	current := c.producer != nil && ev.Producer == c.producer.ID()

	switch ev.Kind {
	case EventUtterance:
		if !current || c.State() != Active {
			c.logger.Debug("dropping utterance while idle", "chars", len(ev.Text))
			return
		}
		c.respond(ev.Text)

	case EventFinished:
		if !current {
			return
		}
		<-c.producer.Done()
		c.producer = nil
		c.alive.Add(-1)
		if !c.setState(TriggerTranscriptionFailed) {
			return
		}
		if ev.Err != nil {
			c.append(LineError, "", prefixSTTStopped+ev.Err.Error())
			c.logger.Warn("transcription stopped", "session", c.sessionID, "error", ev.Err)
		}
	}
}

// respond runs one utterance through the language model and the speaker.
// Failures are logged to the transcript and the interaction continues.
func (c *Controller) respond(text string) {
	turn := uuid.NewString()
	log := c.logger.With("session", c.sessionID, "turn", turn)

	c.append(LineUser, turn, prefixYouSaid+text)

	reply, err := c.llm.Process(c.ctx, text)
	if err != nil {
		log.Error("language model failed", "error", err)
		c.append(LineError, turn, prefixError+err.Error())
		return
	}
	c.append(LineAssistant, turn, prefixAIResponse+reply)

	if err := c.speaker.Speak(c.ctx, reply); err != nil {
		log.Error("speech failed", "error", err)
		c.append(LineError, turn, prefixError+err.Error())
		return
	}
	log.Debug("turn complete", "chars_in", len(text), "chars_out", len(reply))
}

func (c *Controller) append(kind LineKind, turn, text string) {
	line := c.transcript.Append(kind, turn, text)
	c.logger.Info("transcript", "seq", line.Seq, "kind", kind, "text", text)
}

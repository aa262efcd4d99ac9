package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-quickagent/pkg/audioio"
	"github.com/teslashibe/go-quickagent/pkg/inference"
	"github.com/teslashibe/go-quickagent/pkg/stt"
	"github.com/teslashibe/go-quickagent/pkg/tts"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func echoModel(calls *int) LanguageModel {
	return LanguageModelFunc(func(_ context.Context, in string) (string, error) {
		*calls++
		return "re: " + in, nil
	})
}

func newTestController(t *testing.T, tr stt.Transcriber, llm LanguageModel, sp Speaker) *Controller {
	t.Helper()
	c := NewController(tr, llm, sp)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func hasLine(c *Controller, text string) func() bool {
	return func() bool {
		for _, l := range c.Transcript().Texts() {
			if l == text {
				return true
			}
		}
		return false
	}
}

// drain waits until the controller has handled every queued event.
func drain(t *testing.T, c *Controller) {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.events) == 0 }, waitFor, tick)
	require.NoError(t, c.Stop())
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from    State
		trigger Trigger
		want    State
		invalid bool
	}{
		{Idle, TriggerStart, Active, false},
		{Active, TriggerStart, Active, true},
		{Active, TriggerStop, Idle, false},
		{Idle, TriggerStop, Idle, true},
		{Active, TriggerTranscriptionFailed, Idle, false},
		{Idle, TriggerTranscriptionFailed, Idle, true},
		{Active, TriggerClose, Idle, false},
		{Idle, TriggerClose, Idle, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.trigger.String(), func(t *testing.T) {
			got, err := Transition(tt.from, tt.trigger)
			assert.Equal(t, tt.want, got)
			if tt.invalid {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "unknown", State(7).String())
}

func TestControllerStartsIdle(t *testing.T) {
	c := newTestController(t, stt.NewMock(), echoModel(new(int)), nil)

	assert.Equal(t, Idle, c.State())
	assert.Zero(t, c.Transcript().Len())
	assert.Zero(t, c.LiveProducers())
}

func TestControllerStartStop(t *testing.T) {
	tr := stt.NewMock()
	c := newTestController(t, tr, echoModel(new(int)), nil)

	require.NoError(t, c.Start())
	assert.Equal(t, Active, c.State())
	assert.Equal(t, 1, c.LiveProducers())
	require.Eventually(t, func() bool { return tr.Active() == 1 }, waitFor, tick)

	require.NoError(t, c.Stop())
	assert.Equal(t, Idle, c.State())
	assert.Zero(t, c.LiveProducers())
	assert.Zero(t, tr.Active(), "in-flight call should be cancelled")

	assert.Equal(t, []string{MsgStarting, MsgStopping}, c.Transcript().Texts())
}

func TestControllerStartWhileActiveIsNoop(t *testing.T) {
	c := newTestController(t, stt.NewMock(), echoModel(new(int)), nil)

	require.NoError(t, c.Start())
	require.NoError(t, c.Start())
	require.NoError(t, c.Start())

	assert.Equal(t, int64(1), c.Interactions())
	assert.Equal(t, 1, c.LiveProducers())
	assert.Equal(t, []string{MsgStarting}, c.Transcript().Texts())
}

func TestControllerStopWhileIdleIsNoop(t *testing.T) {
	c := newTestController(t, stt.NewMock(), echoModel(new(int)), nil)

	require.NoError(t, c.Stop())
	assert.Equal(t, Idle, c.State())
	assert.Zero(t, c.Transcript().Len())
}

func TestControllerNoCallsAfterStop(t *testing.T) {
	tr := stt.NewMock()
	c := newTestController(t, tr, echoModel(new(int)), nil)

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return tr.Calls() == 1 }, waitFor, tick)
	require.NoError(t, c.Stop())

	calls := tr.Calls()
	tr.Push("too late")
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, calls, tr.Calls())
	assert.False(t, hasLine(c, "You said: too late")())
}

func TestControllerRestart(t *testing.T) {
	c := newTestController(t, stt.NewMock(), echoModel(new(int)), nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Start())
		require.NoError(t, c.Stop())
	}

	assert.Equal(t, int64(3), c.Interactions())
	assert.Zero(t, c.LiveProducers())
	assert.Len(t, c.Transcript().Texts(), 6)
}

func TestControllerConversation(t *testing.T) {
	llm := inference.NewProcessor(inference.NewReplyMock("hi there"))
	voice := tts.NewMock()
	sink := audioio.NewMockSink(audioio.DefaultConfig(), nil)
	speaker := tts.NewSpeaker(voice, sink)

	c := newTestController(t, stt.NewMock("hello"), llm, speaker)

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return sink.Flushes() == 1 }, waitFor, tick)
	require.NoError(t, c.Stop())

	assert.Equal(t, []string{
		MsgStarting,
		"You said: hello",
		"AI response: hi there",
		MsgStopping,
	}, c.Transcript().Texts())

	require.NotNil(t, voice.LastCall())
	assert.Equal(t, "hi there", voice.LastCall().Text)
	assert.NotEmpty(t, sink.Played())

	lines := c.Transcript().Lines()
	assert.Equal(t, LineUser, lines[1].Kind)
	assert.Equal(t, LineAssistant, lines[2].Kind)
	assert.NotEmpty(t, lines[1].Turn)
	assert.Equal(t, lines[1].Turn, lines[2].Turn)
}

func TestControllerMultipleUtterances(t *testing.T) {
	calls := 0
	spoken := make(chan string, 4)
	sp := SpeakerFunc(func(_ context.Context, text string) error {
		spoken <- text
		return nil
	})

	c := newTestController(t, stt.NewMock("one", "two"), echoModel(&calls), sp)
	require.NoError(t, c.Start())

	assert.Equal(t, "re: one", <-spoken)
	assert.Equal(t, "re: two", <-spoken)
	require.NoError(t, c.Stop())

	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{
		MsgStarting,
		"You said: one",
		"AI response: re: one",
		"You said: two",
		"AI response: re: two",
		MsgStopping,
	}, c.Transcript().Texts())
}

func TestControllerLanguageModelError(t *testing.T) {
	tr := stt.NewMock("hello")
	llm := LanguageModelFunc(func(context.Context, string) (string, error) {
		return "", errors.New("rate limited")
	})
	spoke := false
	sp := SpeakerFunc(func(context.Context, string) error {
		spoke = true
		return nil
	})

	c := newTestController(t, tr, llm, sp)
	require.NoError(t, c.Start())

	require.Eventually(t, hasLine(c, "Error: rate limited"), waitFor, tick)
	assert.Equal(t, Active, c.State(), "interaction continues after a model error")
	require.Eventually(t, func() bool { return tr.Calls() == 2 }, waitFor, tick)

	drain(t, c)
	assert.False(t, spoke)
	assert.False(t, hasLine(c, "AI response: ")())

	lines := c.Transcript().Lines()
	assert.Equal(t, LineError, lines[2].Kind)
}

func TestControllerSpeakerError(t *testing.T) {
	sp := SpeakerFunc(func(context.Context, string) error {
		return errors.New("no output device")
	})

	c := newTestController(t, stt.NewMock("hello"), echoModel(new(int)), sp)
	require.NoError(t, c.Start())

	require.Eventually(t, hasLine(c, "Error: no output device"), waitFor, tick)
	assert.True(t, hasLine(c, "AI response: re: hello")())
	assert.Equal(t, Active, c.State())
}

func TestControllerTranscriptionError(t *testing.T) {
	tr := stt.WithError(errors.New("socket closed"))
	c := newTestController(t, tr, echoModel(new(int)), nil)

	require.NoError(t, c.Start())
	require.Eventually(t, hasLine(c, "Transcription stopped: socket closed"), waitFor, tick)

	assert.Equal(t, Idle, c.State())
	assert.Zero(t, c.LiveProducers())
	assert.Equal(t, int64(1), tr.Calls(), "the producer never retries")
	assert.Equal(t, []string{MsgStarting, "Transcription stopped: socket closed"}, c.Transcript().Texts())

	// Start works again after a failure.
	require.NoError(t, c.Start())
	assert.Equal(t, int64(2), c.Interactions())
	assert.Equal(t, MsgStarting, c.Transcript().Texts()[2])
}

func TestControllerDropsStaleUtterances(t *testing.T) {
	calls := 0
	c := newTestController(t, stt.NewMock(), echoModel(&calls), nil)

	// Idle, no producer.
	c.events <- Event{Kind: EventUtterance, Producer: "gone", Text: "late"}
	drain(t, c)

	// Active, but from a producer that is no longer current.
	require.NoError(t, c.Start())
	c.events <- Event{Kind: EventUtterance, Producer: "gone", Text: "stale"}
	c.events <- Event{Kind: EventFinished, Producer: "gone", Err: errors.New("old failure")}
	require.Eventually(t, func() bool { return len(c.events) == 0 }, waitFor, tick)
	require.NoError(t, c.Start())

	assert.Zero(t, calls)
	assert.Equal(t, Active, c.State())
	assert.Equal(t, []string{MsgStarting}, c.Transcript().Texts())
}

func TestControllerDropsUtteranceDuringStop(t *testing.T) {
	calls := 0
	tr := stt.NewMock()
	tr.NextFunc = func(ctx context.Context, onComplete func(string)) error {
		<-ctx.Done()
		onComplete("late")
		return ctx.Err()
	}

	c := newTestController(t, tr, echoModel(&calls), nil)
	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return tr.Active() == 1 }, waitFor, tick)
	require.NoError(t, c.Stop())
	drain(t, c)

	assert.Zero(t, calls)
	assert.False(t, hasLine(c, "You said: late")())
	assert.Equal(t, []string{MsgStarting, MsgStopping}, c.Transcript().Texts())
}

func TestControllerClose(t *testing.T) {
	tr := stt.NewMock()
	c := NewController(tr, echoModel(new(int)), nil)

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return tr.Active() == 1 }, waitFor, tick)

	require.NoError(t, c.Close())
	assert.Equal(t, Idle, c.State())
	assert.Zero(t, c.LiveProducers())
	assert.Zero(t, tr.Active())
	assert.Equal(t, []string{MsgStarting, MsgStopping}, c.Transcript().Texts())

	assert.ErrorIs(t, c.Close(), ErrClosed)
	assert.ErrorIs(t, c.Start(), ErrClosed)
	assert.ErrorIs(t, c.Stop(), ErrClosed)
}

func TestControllerCloseWhileIdle(t *testing.T) {
	c := NewController(stt.NewMock(), echoModel(new(int)), nil)
	require.NoError(t, c.Close())
	assert.Zero(t, c.Transcript().Len())
}

func TestControllerSubscribe(t *testing.T) {
	c := newTestController(t, stt.NewMock("hello"), echoModel(new(int)), nil)

	lines, unsubscribe := c.Subscribe()
	defer unsubscribe()

	require.NoError(t, c.Start())

	want := []string{MsgStarting, "You said: hello", "AI response: re: hello"}
	for i, text := range want {
		select {
		case l := <-lines:
			assert.Equal(t, text, l.Text)
			assert.Equal(t, i+1, l.Seq)
		case <-time.After(waitFor):
			t.Fatalf("timed out waiting for %q", text)
		}
	}
}

func TestWithTranscript(t *testing.T) {
	shared := NewTranscript()
	shared.Append(LineSystem, "", "booted")

	c := NewController(stt.NewMock(), echoModel(new(int)), nil, WithTranscript(shared), WithLogger(nil))
	defer c.Close()

	require.NoError(t, c.Start())
	assert.Equal(t, []string{"booted", MsgStarting}, shared.Texts())
}

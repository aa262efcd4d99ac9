// Package session runs the voice interaction lifecycle.
//
// A Controller owns a two-state machine (Idle, Active). Starting an
// interaction launches a Producer that repeatedly waits for the next
// utterance from a transcriber and hands it to the controller, which asks
// the language model for a reply and speaks it. All state and transcript
// changes happen on the controller's dispatch goroutine.
package session

import "errors"

// State is the interaction state.
type State int32

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Trigger is an input to the state machine.
type Trigger int

const (
	TriggerStart Trigger = iota
	TriggerStop
	TriggerClose
	// TriggerTranscriptionFailed fires when the producer ends with an error.
	TriggerTranscriptionFailed
)

func (t Trigger) String() string {
	switch t {
	case TriggerStart:
		return "start"
	case TriggerStop:
		return "stop"
	case TriggerClose:
		return "close"
	case TriggerTranscriptionFailed:
		return "transcription_failed"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned by Transition when a trigger does not
// apply to the current state. The state is returned unchanged.
var ErrInvalidTransition = errors.New("session: invalid transition")

// Transition returns the state after applying t to s.
func Transition(s State, t Trigger) (State, error) {
	switch t {
	case TriggerStart:
		if s == Idle {
			return Active, nil
		}
	case TriggerStop, TriggerTranscriptionFailed:
		if s == Active {
			return Idle, nil
		}
	case TriggerClose:
		return Idle, nil
	}
	return s, ErrInvalidTransition
}

// Package stt turns microphone audio into finished utterances.
//
// A Transcriber blocks until the speaker completes one utterance and hands
// the text to a callback. Deepgram streams audio from an audioio.Source to
// the Deepgram live API; Mock replays scripted utterances for tests.
package stt

import (
	"context"
	"errors"
	"fmt"
)

// Transcriber yields one utterance per call.
type Transcriber interface {
	// NextUtterance blocks until one utterance boundary, then invokes
	// onComplete exactly once with the finalized text and returns nil.
	// Cancelling ctx aborts the call without invoking onComplete.
	NextUtterance(ctx context.Context, onComplete func(text string)) error
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, onComplete func(text string)) error

// NextUtterance calls f.
func (f TranscriberFunc) NextUtterance(ctx context.Context, onComplete func(text string)) error {
	return f(ctx, onComplete)
}

var (
	// ErrNoAPIKey is returned when the API key is missing.
	ErrNoAPIKey = errors.New("stt: API key required")

	// ErrNoSource is returned when no audio source is configured.
	ErrNoSource = errors.New("stt: audio source required")

	// ErrStreamClosed is returned when the service closes the stream before
	// an utterance completed.
	ErrStreamClosed = errors.New("stt: stream closed before utterance completed")
)

// ServiceError is an error reported by the transcription service.
type ServiceError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("stt [%s]: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("stt [%s]: %s", e.Provider, e.Message)
}

// IsUnauthorized reports whether the service rejected the credentials.
func (e *ServiceError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

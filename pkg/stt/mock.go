package stt

import (
	"context"
	"sync"
	"sync/atomic"
)

// Mock implements Transcriber for testing.
// Queued utterances are delivered one per call; once the queue is empty a
// call blocks until its context ends, like a silent microphone.
type Mock struct {
	// NextFunc overrides the queue when set.
	NextFunc func(ctx context.Context, onComplete func(text string)) error

	mu     sync.Mutex
	queue  []string
	err    error
	calls  atomic.Int64
	active atomic.Int64
	waitCh chan struct{}
}

// NewMock creates a mock that yields the given utterances in order.
func NewMock(utterances ...string) *Mock {
	return &Mock{
		queue:  append([]string(nil), utterances...),
		waitCh: make(chan struct{}, 64),
	}
}

// WithError returns a mock whose calls fail with err once the queue is empty.
func WithError(err error, utterances ...string) *Mock {
	m := NewMock(utterances...)
	m.err = err
	return m
}

// Push queues another utterance for a waiting or future call.
func (m *Mock) Push(text string) {
	m.mu.Lock()
	m.queue = append(m.queue, text)
	m.mu.Unlock()

	select {
	case m.waitCh <- struct{}{}:
	default:
	}
}

// NextUtterance implements Transcriber.
func (m *Mock) NextUtterance(ctx context.Context, onComplete func(text string)) error {
	m.calls.Add(1)
	m.active.Add(1)
	defer m.active.Add(-1)

	if m.NextFunc != nil {
		return m.NextFunc(ctx, onComplete)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		m.mu.Lock()
		if len(m.queue) > 0 {
			text := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()
			onComplete(text)
			return nil
		}
		err := m.err
		m.mu.Unlock()

		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.waitCh:
		}
	}
}

// Calls returns how many times NextUtterance was entered.
func (m *Mock) Calls() int64 {
	return m.calls.Load()
}

// Active returns how many NextUtterance calls are in flight.
func (m *Mock) Active() int64 {
	return m.active.Load()
}

var _ Transcriber = (*Mock)(nil)

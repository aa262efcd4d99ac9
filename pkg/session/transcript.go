package session

import (
	"sync"
	"time"
)

// LineKind classifies a transcript line.
type LineKind string

const (
	LineSystem    LineKind = "system"
	LineUser      LineKind = "user"
	LineAssistant LineKind = "assistant"
	LineError     LineKind = "error"
)

// Line is one entry of the conversation log.
type Line struct {
	Seq  int       `json:"seq"`
	Time time.Time `json:"time"`
	Kind LineKind  `json:"kind"`
	// Turn ties the lines of one utterance together.
	Turn string `json:"turn,omitempty"`
	Text string `json:"text"`
}

// subscriberBuffer is the queue depth per subscriber.
const subscriberBuffer = 256

// Transcript is an append-only conversation log. Subscribers receive every
// line appended after they subscribe; a subscriber that falls a full buffer
// behind misses lines and can resync with Lines.
type Transcript struct {
	mu      sync.RWMutex
	lines   []Line
	subs    map[int]chan Line
	nextSub int
	dropped int64
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{subs: make(map[int]chan Line)}
}

// Append adds a line and fans it out to subscribers.
func (t *Transcript) Append(kind LineKind, turn, text string) Line {
	t.mu.Lock()
	defer t.mu.Unlock()

	line := Line{
		Seq:  len(t.lines) + 1,
		Time: time.Now(),
		Kind: kind,
		Turn: turn,
		Text: text,
	}
	t.lines = append(t.lines, line)

	for _, ch := range t.subs {
		select {
		case ch <- line:
		default:
			t.dropped++
		}
	}
	return line
}

// Lines returns a copy of every line.
func (t *Transcript) Lines() []Line {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Line, len(t.lines))
	copy(out, t.lines)
	return out
}

// Texts returns the text of every line.
func (t *Transcript) Texts() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.lines))
	for i, l := range t.lines {
		out[i] = l.Text
	}
	return out
}

// Len returns the number of lines.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.lines)
}

// Subscribe returns a channel of new lines and a function that ends the
// subscription and closes the channel.
func (t *Transcript) Subscribe() (<-chan Line, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSub
	t.nextSub++
	ch := make(chan Line, subscriberBuffer)
	t.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			close(ch)
		})
	}
}

// Dropped returns how many line deliveries were skipped for slow subscribers.
func (t *Transcript) Dropped() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dropped
}

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptAppend(t *testing.T) {
	tr := NewTranscript()

	a := tr.Append(LineSystem, "", "first")
	b := tr.Append(LineUser, "turn-1", "second")

	assert.Equal(t, 1, a.Seq)
	assert.Equal(t, 2, b.Seq)
	assert.False(t, b.Time.Before(a.Time))
	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, []string{"first", "second"}, tr.Texts())

	lines := tr.Lines()
	lines[0].Text = "mutated"
	assert.Equal(t, "first", tr.Lines()[0].Text, "Lines returns a copy")
}

func TestTranscriptSubscribe(t *testing.T) {
	tr := NewTranscript()
	tr.Append(LineSystem, "", "before")

	ch, unsubscribe := tr.Subscribe()
	tr.Append(LineUser, "", "after")

	l := <-ch
	assert.Equal(t, "after", l.Text)

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)

	tr.Append(LineUser, "", "ignored")
	assert.Zero(t, tr.Dropped())
}

func TestTranscriptSlowSubscriber(t *testing.T) {
	tr := NewTranscript()
	ch, unsubscribe := tr.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		tr.Append(LineSystem, "", "x")
	}

	assert.Equal(t, int64(10), tr.Dropped())
	assert.Len(t, ch, subscriberBuffer)
	require.Equal(t, subscriberBuffer+10, tr.Len(), "the log itself keeps every line")
}

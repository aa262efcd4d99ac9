package stt

import "strings"

// Result is one transcript update from a streaming service.
type Result struct {
	Transcript string
	// IsFinal marks text that will not be revised.
	IsFinal bool
	// SpeechFinal marks the end of an utterance (endpoint detected).
	SpeechFinal bool
}

// Collector joins final transcript parts into an utterance.
// Interim results are ignored; a speech-final result closes the utterance.
type Collector struct {
	parts []string
}

// Add appends a finalized part. Blank parts are dropped.
func (c *Collector) Add(part string) {
	if part = strings.TrimSpace(part); part != "" {
		c.parts = append(c.parts, part)
	}
}

// Full returns the parts joined by single spaces.
func (c *Collector) Full() string {
	return strings.Join(c.parts, " ")
}

// Reset discards collected parts.
func (c *Collector) Reset() {
	c.parts = c.parts[:0]
}

// Feed consumes one result. It returns the utterance and true when r ends
// a non-empty utterance, and resets for the next one. A speech-final result
// with nothing collected keeps waiting.
func (c *Collector) Feed(r Result) (string, bool) {
	if r.IsFinal || r.SpeechFinal {
		c.Add(r.Transcript)
	}
	if !r.SpeechFinal {
		return "", false
	}

	full := c.Full()
	if full == "" {
		return "", false
	}
	c.Reset()
	return full, true
}

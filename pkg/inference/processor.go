package inference

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// DefaultSystemPrompt is used when no prompt is configured.
const DefaultSystemPrompt = "You are a conversational assistant named Eliza. " +
	"Use short, conversational responses as if you're having a live conversation. " +
	"Your response should be under 20 words. " +
	"Do not respond with any code, only conversation."

// Processor turns one user utterance into one assistant reply, keeping the
// conversation history so every request carries the full context.
type Processor struct {
	provider     Provider
	systemPrompt string
	maxHistory   int
	logger       *slog.Logger

	mu      sync.Mutex
	history []Message
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithSystemPrompt sets the system prompt sent ahead of the history.
func WithSystemPrompt(prompt string) ProcessorOption {
	return func(p *Processor) { p.systemPrompt = prompt }
}

// WithMaxHistory bounds the number of retained user/assistant messages.
// History is trimmed in whole exchanges, so an odd limit rounds down and
// the latest exchange is always kept. Zero keeps everything.
func WithMaxHistory(n int) ProcessorOption {
	return func(p *Processor) { p.maxHistory = n }
}

// WithProcessorLogger sets the structured logger.
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProcessor creates a Processor backed by provider.
func NewProcessor(provider Provider, opts ...ProcessorOption) *Processor {
	p := &Processor{
		provider:     provider,
		systemPrompt: DefaultSystemPrompt,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "inference.processor")
	return p
}

// Process sends input with the accumulated history and returns the reply.
// The exchange is only committed to memory when the provider succeeds.
func (p *Processor) Process(ctx context.Context, input string) (string, error) {
	p.mu.Lock()
	msgs := make([]Message, 0, len(p.history)+2)
	if p.systemPrompt != "" {
		msgs = append(msgs, NewSystemMessage(p.systemPrompt))
	}
	msgs = append(msgs, p.history...)
	msgs = append(msgs, NewUserMessage(input))
	p.mu.Unlock()

	resp, err := p.provider.Chat(ctx, &ChatRequest{Messages: msgs})
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(resp.Message.Content)
	if reply == "" {
		return "", ErrEmptyResponse
	}

	p.mu.Lock()
	p.history = append(p.history, NewUserMessage(input), NewAssistantMessage(reply))
	if keep := p.historyLimit(); keep > 0 && len(p.history) > keep {
		p.history = append([]Message(nil), p.history[len(p.history)-keep:]...)
	}
	retained := len(p.history)
	p.mu.Unlock()

	p.logger.Debug("processed utterance",
		"latency_ms", resp.LatencyMs,
		"history", retained,
	)

	return reply, nil
}

// historyLimit is maxHistory rounded down to a whole number of
// user/assistant pairs, never below one pair. Zero means unbounded.
func (p *Processor) historyLimit() int {
	if p.maxHistory <= 0 {
		return 0
	}
	return max(p.maxHistory&^1, 2)
}

// History returns a copy of the retained conversation.
func (p *Processor) History() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.history))
	copy(out, p.history)
	return out
}

// Reset clears the conversation memory.
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = nil
}

package inference

import (
	"context"
	"errors"
	"testing"
)

func TestProcessorReturnsReply(t *testing.T) {
	mock := NewReplyMock("  hi there \n")
	proc := NewProcessor(mock)

	reply, err := proc.Process(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if reply != "hi there" {
		t.Errorf("Expected trimmed reply 'hi there', got %q", reply)
	}
	if mock.CallCount("Chat") != 1 {
		t.Errorf("Expected 1 Chat call, got %d", mock.CallCount("Chat"))
	}
}

func TestProcessorSendsSystemPromptAndHistory(t *testing.T) {
	mock := NewReplyMock("ok")
	proc := NewProcessor(mock, WithSystemPrompt("be brief"))
	ctx := context.Background()

	if _, err := proc.Process(ctx, "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := proc.Process(ctx, "second"); err != nil {
		t.Fatal(err)
	}

	req := mock.LastRequest()
	if req == nil {
		t.Fatal("Expected a recorded request")
	}

	want := []Message{
		NewSystemMessage("be brief"),
		NewUserMessage("first"),
		NewAssistantMessage("ok"),
		NewUserMessage("second"),
	}
	if len(req.Messages) != len(want) {
		t.Fatalf("Expected %d messages, got %d", len(want), len(req.Messages))
	}
	for i := range want {
		if req.Messages[i] != want[i] {
			t.Errorf("message %d: expected %+v, got %+v", i, want[i], req.Messages[i])
		}
	}
}

func TestProcessorEmptySystemPrompt(t *testing.T) {
	mock := NewReplyMock("ok")
	proc := NewProcessor(mock, WithSystemPrompt(""))

	if _, err := proc.Process(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}
	req := mock.LastRequest()
	if len(req.Messages) != 1 || req.Messages[0].Role != RoleUser {
		t.Errorf("Expected only the user message, got %+v", req.Messages)
	}
}

func TestProcessorErrorDoesNotCommit(t *testing.T) {
	testErr := errors.New("upstream down")
	proc := NewProcessor(WithError(testErr))

	_, err := proc.Process(context.Background(), "hello")
	if !errors.Is(err, testErr) {
		t.Errorf("Expected upstream error, got %v", err)
	}
	if len(proc.History()) != 0 {
		t.Errorf("Failed exchange should not be remembered, got %d messages", len(proc.History()))
	}
}

func TestProcessorEmptyReply(t *testing.T) {
	proc := NewProcessor(NewReplyMock("   "))

	_, err := proc.Process(context.Background(), "hello")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Expected ErrEmptyResponse, got %v", err)
	}
}

func TestProcessorMaxHistory(t *testing.T) {
	proc := NewProcessor(NewReplyMock("ok"), WithMaxHistory(2))
	ctx := context.Background()

	for _, in := range []string{"a", "b", "c"} {
		if _, err := proc.Process(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	h := proc.History()
	if len(h) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(h))
	}
	if h[0] != NewUserMessage("c") || h[1] != NewAssistantMessage("ok") {
		t.Errorf("Unexpected history: %+v", h)
	}

	proc.Reset()
	if len(proc.History()) != 0 {
		t.Error("Expected empty history after Reset")
	}
}

func TestProcessorOddMaxHistoryKeepsPairs(t *testing.T) {
	proc := NewProcessor(NewReplyMock("ok"), WithMaxHistory(3))
	ctx := context.Background()

	for _, in := range []string{"a", "b", "c"} {
		if _, err := proc.Process(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	h := proc.History()
	if len(h) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(h))
	}
	if h[0].Role != RoleUser {
		t.Errorf("Expected history to start with a user message, got %s", h[0].Role)
	}
	if h[0] != NewUserMessage("c") {
		t.Errorf("Unexpected history: %+v", h)
	}
}

func TestProcessorMaxHistoryOneKeepsLatestExchange(t *testing.T) {
	proc := NewProcessor(NewReplyMock("ok"), WithMaxHistory(1))
	ctx := context.Background()

	for _, in := range []string{"a", "b"} {
		if _, err := proc.Process(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	h := proc.History()
	if len(h) != 2 || h[0] != NewUserMessage("b") || h[1] != NewAssistantMessage("ok") {
		t.Errorf("Expected only the latest exchange, got %+v", h)
	}
}

func TestProcessorNilLogger(t *testing.T) {
	var proc *Processor
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("NewProcessor panicked with a nil logger: %v", r)
			}
		}()
		proc = NewProcessor(NewReplyMock("ok"), WithProcessorLogger(nil))
	}()

	if _, err := proc.Process(context.Background(), "hi"); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
}

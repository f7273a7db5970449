package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"story_draft_agent/internal/remote"
)

type fakeChat struct {
	mu      sync.Mutex
	body    []byte
	err     error
	calls   int
	history [][]remote.Message
	block   chan struct{}
}

func (f *fakeChat) Chat(ctx context.Context, messages []remote.Message) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	history := append([]remote.Message(nil), messages...)
	f.history = append(f.history, history)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.body, f.err
}

type fakeGenerator struct {
	mu       sync.Mutex
	body     []byte
	err      error
	calls    int
	requests []remote.GenRequest
	kinds    []string
}

func (f *fakeGenerator) Generate(ctx context.Context, kind string, req remote.GenRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.kinds = append(f.kinds, kind)
	f.requests = append(f.requests, req)
	return f.body, f.err
}

func newTestController(t *testing.T, chat *fakeChat, gen *fakeGenerator) *Controller {
	t.Helper()
	c, err := New(Options{Chat: chat, Generator: gen, Greeting: "Welcome!"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSubmit_PlainChatAppendsUserAndAssistantTurns(t *testing.T) {
	chat := &fakeChat{body: []byte(`{"answer":"An RTR is a technical readiness report.","kendra_sources":["kb/rtr.md"]}`)}
	c := newTestController(t, chat, &fakeGenerator{})

	if err := c.Submit(context.Background(), "what is an RTR?"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s := c.Snapshot()
	if len(s.Turns) != 3 {
		t.Fatalf("turns = %d, want 3 (greeting, user, assistant)", len(s.Turns))
	}
	if s.Turns[1].Speaker != SpeakerUser || s.Turns[1].Text != "what is an RTR?" {
		t.Fatalf("user turn = %+v", s.Turns[1])
	}
	last := s.Turns[2]
	if last.Speaker != SpeakerAssistant || !strings.Contains(last.Text, "readiness report") {
		t.Fatalf("assistant turn = %+v", last)
	}
	if len(last.Citations) != 1 || last.Citations[0].Ref != "kb/rtr.md" {
		t.Fatalf("citations = %v", last.Citations)
	}
	if s.Phase != PhaseIdle {
		t.Fatalf("phase = %q, want idle", s.Phase)
	}
}

func TestSubmit_HistorySentOldestFirstWithoutGeneratorMetadata(t *testing.T) {
	gen := &fakeGenerator{body: []byte(`{"preview":"Draft..."}`)}
	chat := &fakeChat{body: []byte(`{"answer":"ok"}`)}
	c := newTestController(t, chat, gen)

	if err := c.Submit(context.Background(), "/story improve onboarding"); err != nil {
		t.Fatalf("Submit command: %v", err)
	}
	if err := c.Submit(context.Background(), "thanks"); err != nil {
		t.Fatalf("Submit chat: %v", err)
	}

	if chat.calls != 1 {
		t.Fatalf("chat calls = %d, want 1", chat.calls)
	}
	history := chat.history[0]
	// greeting, the /story user turn, then the new user turn; the preview
	// turn has no text and is not part of the conversational history.
	want := []remote.Message{
		{Role: remote.RoleAssistant, Content: "Welcome!"},
		{Role: remote.RoleUser, Content: "/story improve onboarding"},
		{Role: remote.RoleUser, Content: "thanks"},
	}
	if len(history) != len(want) {
		t.Fatalf("history = %+v, want %+v", history, want)
	}
	for i := range want {
		if history[i] != want[i] {
			t.Fatalf("history[%d] = %+v, want %+v", i, history[i], want[i])
		}
	}
}

func TestSubmit_BlankInputRejectedWithoutTranscriptChange(t *testing.T) {
	c := newTestController(t, &fakeChat{}, &fakeGenerator{})
	before := len(c.Snapshot().Turns)

	if err := c.Submit(context.Background(), "   "); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("err = %v, want ErrEmptyInput", err)
	}
	if got := len(c.Snapshot().Turns); got != before {
		t.Fatalf("turns = %d, want %d", got, before)
	}
}

func TestSubmit_DroppedWhileInFlight(t *testing.T) {
	block := make(chan struct{})
	chat := &fakeChat{body: []byte(`{"answer":"late"}`), block: block}
	c := newTestController(t, chat, &fakeGenerator{})

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background(), "first") }()

	waitFor(t, func() bool { return c.Snapshot().Phase == PhaseAwaiting })

	if err := c.Submit(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	if got := c.Snapshot(); len(got.Turns) != 2 {
		t.Fatalf("turns = %d, want 2 (greeting + first user turn)", len(got.Turns))
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if got := c.Snapshot(); len(got.Turns) != 3 {
		t.Fatalf("turns after completion = %d, want 3", len(got.Turns))
	}
}

func TestSubmit_RemoteFailureAppendsErrorTurnAndBanner(t *testing.T) {
	chat := &fakeChat{err: &remote.Error{Status: 502, Detail: "Bedrock invoke error"}}
	c := newTestController(t, chat, &fakeGenerator{})

	if err := c.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s := c.Snapshot()
	last := s.Turns[len(s.Turns)-1]
	if last.Speaker != SpeakerAssistant || last.Text != errorTurnText {
		t.Fatalf("error turn = %+v", last)
	}
	if s.Banner != "Bedrock invoke error" {
		t.Fatalf("banner = %q", s.Banner)
	}
	if s.Phase != PhaseIdle {
		t.Fatalf("phase = %q, controller must stay usable", s.Phase)
	}

	// next submission proceeds and clears the banner
	chat.err = nil
	chat.body = []byte(`{"answer":"recovered"}`)
	if err := c.Submit(context.Background(), "retry"); err != nil {
		t.Fatalf("Submit retry: %v", err)
	}
	if got := c.Snapshot(); got.Banner != "" {
		t.Fatalf("banner after retry = %q, want cleared", got.Banner)
	}
}

func TestSubmit_EmptyObjectiveShowsUsageWithoutRequest(t *testing.T) {
	gen := &fakeGenerator{}
	c := newTestController(t, &fakeChat{}, gen)

	if err := c.Submit(context.Background(), "/story"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator calls = %d, want 0", gen.calls)
	}
	s := c.Snapshot()
	last := s.Turns[len(s.Turns)-1]
	if last.Speaker != SpeakerAssistant || !strings.HasPrefix(last.Text, "Usage: /story") {
		t.Fatalf("usage turn = %+v", last)
	}
}

func TestPreviewThenApprove_EndToEnd(t *testing.T) {
	gen := &fakeGenerator{body: []byte(`{"preview":"Draft...","sources":["doc1"]}`)}
	c := newTestController(t, &fakeChat{}, gen)

	if err := c.Submit(context.Background(), "/story improve onboarding"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s := c.Snapshot()
	if len(s.Turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(s.Turns))
	}
	preview := s.Turns[2]
	if preview.Generation == nil {
		t.Fatalf("expected preview turn, got %+v", preview)
	}
	if preview.Generation.PreviewBody != "Draft..." {
		t.Fatalf("preview body = %q", preview.Generation.PreviewBody)
	}
	if len(preview.Citations) != 1 || preview.Citations[0].Ref != "doc1" {
		t.Fatalf("citations = %v", preview.Citations)
	}
	if !preview.Generation.ApprovalRequest.Approve {
		t.Fatalf("approval request must have approve=true: %+v", preview.Generation.ApprovalRequest)
	}
	if preview.Generation.ApprovalRequest.Objective != "improve onboarding" {
		t.Fatalf("approval objective = %q", preview.Generation.ApprovalRequest.Objective)
	}

	gen.body = []byte(`{"saved":"store://artifacts/123"}`)
	if err := c.Approve(context.Background(), 2); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	s = c.Snapshot()
	g := s.Turns[2].Generation
	if g.SavedLocation != "store://artifacts/123" {
		t.Fatalf("saved location = %q", g.SavedLocation)
	}
	if gen.calls != 2 {
		t.Fatalf("generator calls = %d, want 2 (preview + approve)", gen.calls)
	}
	if !gen.requests[1].Approve || gen.requests[1].Objective != "improve onboarding" {
		t.Fatalf("approve request = %+v", gen.requests[1])
	}
}

func TestApprove_SecondCallIsNoOp(t *testing.T) {
	gen := &fakeGenerator{body: []byte(`{"preview":"Draft..."}`)}
	c := newTestController(t, &fakeChat{}, gen)

	if err := c.Submit(context.Background(), "/rtr migrate billing"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	gen.body = []byte(`{"saved":"store://artifacts/9"}`)
	if err := c.Approve(context.Background(), 2); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	callsAfterFirst := gen.calls

	if err := c.Approve(context.Background(), 2); err != nil {
		t.Fatalf("second Approve: %v", err)
	}
	if gen.calls != callsAfterFirst {
		t.Fatalf("generator calls = %d, want %d (no-op)", gen.calls, callsAfterFirst)
	}
	if got := c.Snapshot().Turns[2].Generation.SavedLocation; got != "store://artifacts/9" {
		t.Fatalf("saved location changed: %q", got)
	}
}

func TestApprove_FailureKeepsPreviewForRetry(t *testing.T) {
	gen := &fakeGenerator{body: []byte(`{"preview":"Draft..."}`)}
	c := newTestController(t, &fakeChat{}, gen)

	if err := c.Submit(context.Background(), "/story fix login"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	gen.err = &remote.Error{Status: 500, Detail: "S3 write denied"}
	if err := c.Approve(context.Background(), 2); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	s := c.Snapshot()
	g := s.Turns[2].Generation
	if g.SavedLocation != "" {
		t.Fatalf("saved location = %q, want empty after failure", g.SavedLocation)
	}
	if g.LastError != "S3 write denied" {
		t.Fatalf("last error = %q", g.LastError)
	}
	if g.PreviewBody != "Draft..." {
		t.Fatalf("preview discarded: %q", g.PreviewBody)
	}

	gen.err = nil
	gen.body = []byte(`{"saved":"store://artifacts/retry"}`)
	if err := c.Approve(context.Background(), 2); err != nil {
		t.Fatalf("retry Approve: %v", err)
	}
	if got := c.Snapshot().Turns[2].Generation; got.SavedLocation != "store://artifacts/retry" || got.LastError != "" {
		t.Fatalf("after retry = %+v", got)
	}
}

func TestApprove_NonPreviewTurnRejected(t *testing.T) {
	c := newTestController(t, &fakeChat{}, &fakeGenerator{})
	if err := c.Approve(context.Background(), 0); err == nil {
		t.Fatalf("expected error approving the greeting turn")
	}
	if err := c.Approve(context.Background(), 42); err == nil {
		t.Fatalf("expected error for out-of-range index")
	}
}

func TestReset_YieldsSingleGreetingTurn(t *testing.T) {
	chat := &fakeChat{body: []byte(`{"answer":"ok"}`)}
	c := newTestController(t, chat, &fakeGenerator{})

	if err := c.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	c.Reset()

	s := c.Snapshot()
	if len(s.Turns) != 1 {
		t.Fatalf("turns = %d, want 1", len(s.Turns))
	}
	if s.Turns[0].Speaker != SpeakerAssistant || s.Turns[0].Text != "Welcome!" {
		t.Fatalf("greeting turn = %+v", s.Turns[0])
	}
	if s.Banner != "" || s.Phase != PhaseIdle {
		t.Fatalf("state after reset = %+v", s)
	}
}

func TestReset_DropsLateResponseFromPreviousEpoch(t *testing.T) {
	block := make(chan struct{})
	chat := &fakeChat{body: []byte(`{"answer":"stale"}`), block: block}
	c := newTestController(t, chat, &fakeGenerator{})

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background(), "slow question") }()
	waitFor(t, func() bool { return c.Snapshot().Phase == PhaseAwaiting })

	c.Reset()
	close(block)
	if err := <-done; err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s := c.Snapshot()
	if len(s.Turns) != 1 {
		t.Fatalf("late response leaked into fresh transcript: %+v", s.Turns)
	}
	if s.Phase != PhaseIdle {
		t.Fatalf("phase = %q", s.Phase)
	}
}

func TestSubscribe_ReceivesSnapshots(t *testing.T) {
	chat := &fakeChat{body: []byte(`{"answer":"ok"}`)}
	c := newTestController(t, chat, &fakeGenerator{})

	var mu sync.Mutex
	var phases []Phase
	c.Subscribe(func(s State) {
		mu.Lock()
		phases = append(phases, s.Phase)
		mu.Unlock()
	})

	if err := c.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(phases) < 2 || phases[0] != PhaseAwaiting || phases[len(phases)-1] != PhaseIdle {
		t.Fatalf("observed phases = %v", phases)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}

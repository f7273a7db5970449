package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"story_draft_agent/internal/command"
	"story_draft_agent/internal/normalize"
	"story_draft_agent/internal/remote"
)

var (
	// ErrEmptyInput rejects a blank submission. Nothing is appended to
	// the transcript.
	ErrEmptyInput = errors.New("input is empty")
	// ErrBusy drops a submission while another request is in flight.
	// Nothing is queued and nothing is appended to the transcript.
	ErrBusy = errors.New("a request is already in flight")
)

type Options struct {
	Chat      remote.ChatBackend
	Generator remote.GeneratorBackend
	Registry  *command.Registry
	Greeting  string
}

// Controller is the single writer of the transcript. Host adapters call
// Submit/Approve/Reset from their own goroutine and observe the session
// through Subscribe snapshots; they never mutate state themselves.
type Controller struct {
	chat      remote.ChatBackend
	generator remote.GeneratorBackend
	registry  *command.Registry
	greeting  string

	mu    sync.Mutex
	state State
	subs  []func(State)
}

func New(opts Options) (*Controller, error) {
	if opts.Chat == nil {
		return nil, errors.New("chat backend is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("generator backend is required")
	}
	registry := opts.Registry
	if registry == nil {
		registry = command.DefaultRegistry()
	}
	greeting := strings.TrimSpace(opts.Greeting)
	if greeting == "" {
		greeting = "Hi! Ask me anything, or use a /command to draft an artifact."
	}
	c := &Controller{
		chat:      opts.Chat,
		generator: opts.Generator,
		registry:  registry,
		greeting:  greeting,
	}
	c.state = State{
		Phase: PhaseIdle,
		Turns: []Turn{{Speaker: SpeakerAssistant, Text: greeting}},
	}
	return c, nil
}

// Subscribe registers a callback invoked with a fresh snapshot after every
// state change. Callbacks run outside the controller lock.
func (c *Controller) Subscribe(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

func (c *Controller) Registry() *command.Registry {
	return c.registry
}

// Submit routes one user input through the command parser and the matching
// workflow, blocking until the submission cycle is complete. Remote
// failures never surface as errors: they land in the transcript and the
// banner. Only local validation (blank input, busy session) returns one.
func (c *Controller) Submit(ctx context.Context, raw string) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	if c.state.Phase != PhaseIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	epoch := c.state.Epoch
	c.state = reduce(c.state, submitAccepted{text: text})
	history := chatHistory(c.state)
	c.mu.Unlock()
	c.notify()

	parsed, isCommand := c.registry.Parse(text)
	if isCommand {
		c.runGeneration(ctx, epoch, parsed)
	} else {
		c.runChat(ctx, epoch, history)
	}
	return nil
}

// Approve persists the preview carried by the turn at index, reusing the
// request captured at preview time. Approving an already-saved turn is a
// no-op. A failed approval records the error on the turn and leaves the
// preview intact for retry.
func (c *Controller) Approve(ctx context.Context, index int) error {
	c.mu.Lock()
	g := generationAt(c.state, index)
	if g == nil {
		c.mu.Unlock()
		return fmt.Errorf("turn %d is not an artifact preview", index)
	}
	if g.Saved() {
		c.mu.Unlock()
		return nil
	}
	if c.state.Phase != PhaseIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	epoch := c.state.Epoch
	req := g.ApprovalRequest
	kind := g.Kind
	c.state = reduce(c.state, approveStarted{index: index})
	c.mu.Unlock()
	c.notify()

	body, err := c.generator.Generate(ctx, kind, req)
	if err != nil {
		c.apply(epoch, approveFailed{index: index, detail: err.Error()})
		return nil
	}
	var payload remote.ApprovePayload
	if err := json.Unmarshal(body, &payload); err != nil || strings.TrimSpace(payload.Saved) == "" {
		c.apply(epoch, approveFailed{index: index, detail: "backend did not return a storage location"})
		return nil
	}
	c.apply(epoch, approveSaved{index: index, location: strings.TrimSpace(payload.Saved)})
	return nil
}

// Reset replaces the transcript with a single fresh greeting turn. The
// epoch bump makes any in-flight response stale; it is dropped instead of
// appending to the new transcript.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.state = reduce(c.state, sessionReset{greeting: c.greeting})
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) runChat(ctx context.Context, epoch int, history []remote.Message) {
	body, err := c.chat.Chat(ctx, history)
	if err != nil {
		c.apply(epoch, submissionFailed{detail: err.Error()})
		return
	}
	result := normalize.Normalize(body)
	c.apply(epoch, assistantAppended{turn: Turn{
		Speaker:   SpeakerAssistant,
		Text:      result.Text,
		Citations: result.Citations,
	}})
}

func (c *Controller) runGeneration(ctx context.Context, epoch int, parsed command.Parsed) {
	if parsed.Objective == "" {
		c.apply(epoch, assistantAppended{turn: Turn{
			Speaker: SpeakerAssistant,
			Text:    c.usageHint(parsed.Kind),
		}})
		return
	}

	req := remote.GenRequest{
		Objective: parsed.Objective,
		Context:   parsed.Context,
		Approve:   false,
	}
	body, err := c.generator.Generate(ctx, parsed.Kind, req)
	if err != nil {
		c.apply(epoch, submissionFailed{detail: err.Error()})
		return
	}

	var payload remote.PreviewPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.apply(epoch, submissionFailed{detail: "backend returned an unreadable preview"})
		return
	}

	approval := req
	approval.Approve = true

	turn := Turn{
		Speaker: SpeakerAssistant,
		Text:    normalize.CleanText(payload.Notice),
		Generation: &GenerationState{
			Kind:            parsed.Kind,
			PreviewBody:     normalize.CleanText(payload.Preview),
			ApprovalRequest: approval,
		},
	}
	for _, src := range payload.Sources {
		turn.Citations = append(turn.Citations, normalize.Citation{Ref: src})
	}
	c.apply(epoch, assistantAppended{turn: turn})
}

func (c *Controller) usageHint(kind string) string {
	if gen, ok := c.registry.Lookup(kind); ok && strings.TrimSpace(gen.Usage) != "" {
		return "Usage: " + gen.Usage
	}
	return fmt.Sprintf("Usage: /%s <objective> [| ctx: <extra context>]", kind)
}

// apply feeds an event through reduce unless the session epoch moved on,
// in which case the event belongs to a request that outlived a reset and
// is dropped.
func (c *Controller) apply(epoch int, ev event) {
	c.mu.Lock()
	if c.state.Epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.state = reduce(c.state, ev)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	c.mu.Lock()
	subs := append([]func(State){}, c.subs...)
	snapshot := c.state.clone()
	c.mu.Unlock()
	for _, fn := range subs {
		fn(snapshot)
	}
}

// chatHistory projects the transcript for the chat endpoint: speaker and
// text only, oldest first, generator metadata stripped. Turns whose only
// content is a preview body carry no text and are skipped.
func chatHistory(s State) []remote.Message {
	out := make([]remote.Message, 0, len(s.Turns))
	for _, t := range s.Turns {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		role := remote.RoleUser
		if t.Speaker == SpeakerAssistant {
			role = remote.RoleAssistant
		}
		out = append(out, remote.Message{Role: role, Content: t.Text})
	}
	return out
}

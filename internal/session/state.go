// Package session owns the conversation transcript and the state machine
// that routes user input to either the chat workflow or the artifact
// generation workflow.
package session

import (
	"story_draft_agent/internal/normalize"
	"story_draft_agent/internal/remote"
)

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// GenerationState is present only on assistant turns that carry a
// generator preview. ApprovalRequest is captured by value at preview time
// with Approve forced true, so approving never re-reads UI inputs.
type GenerationState struct {
	Kind            string
	PreviewBody     string
	ApprovalRequest remote.GenRequest
	SavedLocation   string
	LastError       string
}

// Saved reports whether the artifact behind this preview has been
// persisted. Once saved the turn is immutable; approve becomes a no-op.
func (g *GenerationState) Saved() bool {
	return g != nil && g.SavedLocation != ""
}

// Turn is one transcript entry. Empty Text is valid for turns that carry
// only preview content.
type Turn struct {
	Speaker    Speaker
	Text       string
	Citations  []normalize.Citation
	Generation *GenerationState
}

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseAwaiting Phase = "awaiting"
)

// State is the full session snapshot handed to subscribers. The
// controller keeps the only mutable copy; snapshots are deep copies and
// safe to hold across updates.
type State struct {
	Phase  Phase
	Epoch  int
	Banner string
	Turns  []Turn
}

func (s State) clone() State {
	out := s
	out.Turns = make([]Turn, len(s.Turns))
	for i, t := range s.Turns {
		out.Turns[i] = t.clone()
	}
	return out
}

func (t Turn) clone() Turn {
	out := t
	if len(t.Citations) > 0 {
		out.Citations = make([]normalize.Citation, len(t.Citations))
		copy(out.Citations, t.Citations)
	}
	if t.Generation != nil {
		g := *t.Generation
		out.Generation = &g
	}
	return out
}

// Package remote holds the two backend contracts the session depends on:
// the chat endpoint and the per-kind generator endpoints.
package remote

import (
	"context"
	"fmt"
	"strings"
)

// Message is one entry of the conversational history sent to the chat
// endpoint, oldest first.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GenRequest is the generator wire request. The same body is used for
// preview (Approve=false) and persistence (Approve=true); Context is an
// explicit null when the command carried no context segment.
type GenRequest struct {
	Objective string  `json:"objective"`
	Context   *string `json:"context"`
	Approve   bool    `json:"approve"`
}

// PreviewPayload is the generator response to a preview request.
type PreviewPayload struct {
	Preview string   `json:"preview"`
	Sources []string `json:"sources"`
	Notice  string   `json:"notice"`
}

// ApprovePayload is the generator response to an approval request. Saved
// is an opaque storage locator surfaced verbatim to the user.
type ApprovePayload struct {
	Saved string         `json:"saved"`
	Meta  map[string]any `json:"meta"`
}

// ChatBackend issues one conversational request. The raw body is returned
// untouched; payload shape detection belongs to the normalizer.
type ChatBackend interface {
	Chat(ctx context.Context, messages []Message) ([]byte, error)
}

// GeneratorBackend issues one generation request against the endpoint
// registered for kind.
type GeneratorBackend interface {
	Generate(ctx context.Context, kind string, req GenRequest) ([]byte, error)
}

// Error is a non-success backend response. Detail carries the response
// body verbatim when one was readable, else a status-derived message.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	detail := strings.TrimSpace(e.Detail)
	if detail == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return detail
}

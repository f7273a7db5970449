package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"story_draft_agent/internal/command"
)

// HTTPClient talks to the orchestrator backend over JSON POST requests.
// It implements both ChatBackend and GeneratorBackend.
type HTTPClient struct {
	BaseURL    string
	ChatPath   string
	Registry   *command.Registry
	HTTPClient *http.Client
}

func NewHTTPClient(baseURL string, chatPath string, registry *command.Registry, timeout time.Duration) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("backend base url is required")
	}
	if strings.TrimSpace(chatPath) == "" {
		chatPath = "/chat"
	}
	if registry == nil {
		registry = command.DefaultRegistry()
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPClient{
		BaseURL:  base,
		ChatPath: chatPath,
		Registry: registry,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type chatRequest struct {
	Messages []Message `json:"messages"`
}

func (c *HTTPClient) Chat(ctx context.Context, messages []Message) ([]byte, error) {
	return c.post(ctx, c.ChatPath, chatRequest{Messages: messages})
}

func (c *HTTPClient) Generate(ctx context.Context, kind string, req GenRequest) ([]byte, error) {
	gen, ok := c.Registry.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("unknown generator kind %q", kind)
	}
	return c.post(ctx, gen.Path, req)
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if c == nil {
		return nil, errors.New("nil client")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := ""
		if readErr == nil {
			detail = strings.TrimSpace(string(data))
		}
		return nil, &Error{Status: resp.StatusCode, Detail: detail}
	}
	if readErr != nil {
		return nil, fmt.Errorf("read response: %w", readErr)
	}
	return data, nil
}

// Package decompose turns an operator's epic prompt into a set of concrete
// tasks via a one-shot call to an LLM chat-completion endpoint. It performs
// no Git operations and persists nothing itself; callers are responsible
// for creating the returned tasks in the issue store and coordination store.
package decompose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hekateai/hekate/internal/tlsutil"
)

// DefaultTimeout bounds the decomposition call, matching spec.md's 30s budget.
const DefaultTimeout = 30 * time.Second

// epicPatterns mirrors the loose natural-language detection the original
// hook used: ambiguous prompts intentionally produce no match rather than a
// guessed epic (spec.md §9 "Epic regex detection").
var epicPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:create|new)\s+epic:\s*(.+)`),
	regexp.MustCompile(`(?i)epic:\s*(.+)`),
	regexp.MustCompile(`(?i)create\s+epic\s+(.+)`),
	regexp.MustCompile(`(?i)new\s+epic\s+(.+)`),
}

// Detect reports whether prompt looks like an epic-creation request, and if
// so, the epic description extracted from it.
func Detect(prompt string) (description string, ok bool) {
	for _, re := range epicPatterns {
		if m := re.FindStringSubmatch(prompt); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

// TaskSpec is one task the decomposer proposes for an epic.
type TaskSpec struct {
	Description string `json:"description"`
	Complexity  int    `json:"complexity"`
}

// ErrNoAPIKey is returned when the decomposition endpoint has no credentials
// configured; callers should surface spec.md's "create tasks manually" note.
var ErrNoAPIKey = fmt.Errorf("decompose: no API key configured")

const systemPrompt = `Decompose the epic into tasks. For each task:
1. Provide a clear description (max 100 chars)
2. Estimate complexity (1-10):
   - 1-3: Simple CRUD, config changes
   - 4-6: Medium features, some logic
   - 7-8: Complex features, multiple components
   - 9-10: Architecture, complex integrations

Return JSON only:
{
  "tasks": [
    {"description": "...", "complexity": 7},
    ...
  ]
}`

var jsonBlock = regexp.MustCompile(`(?s)\{.*\}`)

// Client calls an OpenRouter-compatible chat-completion endpoint to
// decompose an epic description into tasks.
type Client struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

// New builds a Client. An empty apiKey makes every call fail with
// ErrNoAPIKey, matching the original hook's explicit operator-facing note.
func New(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		model:      "anthropic/claude-3.5-sonnet",
		endpoint:   "https://openrouter.ai/api/v1/chat/completions",
		httpClient: tlsutil.SecureHTTPClient(DefaultTimeout),
	}
}

// Decompose calls the chat-completion endpoint and parses its response into
// task specs. A malformed or empty response is a decomposition-failure per
// spec.md §7: the caller should inject an operator-facing note, not crash.
func (c *Client) Decompose(ctx context.Context, epicDescription string) ([]TaskSpec, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	reqBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": "Epic: " + epicDescription},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("decompose: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decompose: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("decompose: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decompose: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("decompose: openrouter status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decompose: parse chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("decompose: empty choices in chat response")
	}

	content := parsed.Choices[0].Message.Content
	if block := jsonBlock.FindString(content); block != "" {
		content = block
	}

	var result struct {
		Tasks []TaskSpec `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("decompose: parse tasks JSON: %w", err)
	}
	if len(result.Tasks) == 0 {
		return nil, fmt.Errorf("decompose: no tasks returned")
	}

	for i := range result.Tasks {
		if result.Tasks[i].Complexity < 1 {
			result.Tasks[i].Complexity = 1
		}
		if result.Tasks[i].Complexity > 10 {
			result.Tasks[i].Complexity = 10
		}
	}
	return result.Tasks, nil
}

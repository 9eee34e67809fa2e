// Package hooks implements hekate's Claude Code event handlers: one
// function per hook event, each reading a JSON envelope from stdin (via
// cmd/hekate-hook), doing its work against the coordination store and the
// rest of the orchestrator's internal packages, and returning at most one
// JSON response to inject as additional context. Handlers never fail the
// calling process — errors are returned to the caller for logging, and the
// dispatcher always exits 0.
package hooks

import (
	"context"
	"fmt"
	"time"

	"github.com/hekateai/hekate/internal/agentmanager"
	"github.com/hekateai/hekate/internal/decompose"
	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/issuestore"
	"github.com/hekateai/hekate/internal/memorybus"
	"github.com/hekateai/hekate/internal/metrics"
	"github.com/hekateai/hekate/internal/pattern"
	"github.com/hekateai/hekate/internal/quota"
	"github.com/hekateai/hekate/internal/router"
	"github.com/hekateai/hekate/internal/store"
	"github.com/hekateai/hekate/internal/verify"
	"go.uber.org/zap"
)

// Envelope is the JSON object every hook event receives on stdin. Not every
// field is populated by every event; handlers read only the ones relevant
// to them, matching the original hook scripts' permissive input_data.get().
type Envelope struct {
	SessionID    string         `json:"session_id"`
	Source       string         `json:"source,omitempty"`
	Prompt       string         `json:"prompt,omitempty"`
	ToolName     string         `json:"tool_name,omitempty"`
	ToolInput    map[string]any `json:"tool_input,omitempty"`
	ToolResponse *ToolResponse  `json:"tool_response,omitempty"`
}

// ToolResponse wraps a completed tool call's outcome, used by every
// PostToolUse handler.
type ToolResponse struct {
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
	Result    any            `json:"result,omitempty"`
	Success   *bool          `json:"success,omitempty"`
}

// commandOf reads the Bash tool's "command" argument from tool_input, the
// one field every handler that inspects a shell command actually needs.
func commandOf(toolName string, toolInput map[string]any) string {
	if toolName != "Bash" || toolInput == nil {
		return ""
	}
	if c, ok := toolInput["command"].(string); ok {
		return c
	}
	return ""
}

// Succeeded reports whether the tool call completed successfully, treating
// an absent success field as success (matching the original scripts'
// `if tool_response.get('success') == False`).
func (r *ToolResponse) Succeeded() bool {
	if r == nil || r.Success == nil {
		return true
	}
	return *r.Success
}

// Response is the single JSON object a handler may print to stdout.
type Response struct {
	HookSpecificOutput HookSpecificOutput `json:"hookSpecificOutput"`
}

// HookSpecificOutput carries the injected context block.
type HookSpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext"`
}

func response(eventName, context string) *Response {
	return &Response{HookSpecificOutput{HookEventName: eventName, AdditionalContext: context}}
}

// Timeouts bound every coordination-store, issue-tracker, embedding, and
// decomposition call a hook makes, matching SPEC_FULL.md's per-suspension-
// point budgets.
const (
	storeTimeout     = 2 * time.Second
	issueTimeout     = 10 * time.Second
	embedTimeout     = 10 * time.Second
	decomposeTimeout = 30 * time.Second
)

// Deps wires every package a hook handler may need. Fields may be nil when
// a deployment omits that concern (e.g. Memory with no embedding chain
// configured); handlers degrade gracefully rather than failing.
type Deps struct {
	Store      *store.Store
	Issues     *issuestore.Client
	Agents     *agentmanager.Manager
	Router     *router.Router
	Pattern    *pattern.Learner
	Quotas     map[domain.Provider]*quota.Tracker
	Verify     *verify.Pipeline
	Memory     *memorybus.Bus
	Decompose  *decompose.Client
	Metrics    *metrics.Collector
	Logger     *zap.Logger
	Worktrees  string
}

func (d *Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Coordination-store key helpers, matching spec.md §6's persisted prefixes.
func sessionTaskKey(sessionID string) string     { return fmt.Sprintf("session:%s:task_id", sessionID) }
func sessionProviderKey(sessionID string) string { return fmt.Sprintf("session:%s:provider", sessionID) }
func taskEpicKey(taskID string) string           { return fmt.Sprintf("task:%s:epic_id", taskID) }
func taskComplexityKey(taskID string) string     { return fmt.Sprintf("task:%s:complexity", taskID) }
func taskProviderKey(taskID string) string       { return fmt.Sprintf("task:%s:provider", taskID) }
func taskStatusKey(taskID string) string         { return fmt.Sprintf("task:%s:status", taskID) }
func taskClaimedKey(taskID string) string        { return fmt.Sprintf("task:%s:claimed", taskID) }
func epicStatusKey(epicID string) string         { return fmt.Sprintf("epic:%s:status", epicID) }
func epicTaskCountKey(epicID string) string      { return fmt.Sprintf("epic:%s:task_count", epicID) }
func epicCompleteCountKey(epicID string) string  { return fmt.Sprintf("epic:%s:complete_count", epicID) }
func epicDescriptionKey(epicID string) string    { return fmt.Sprintf("epic:%s:description", epicID) }
func epicTasksKey(epicID string) string { return fmt.Sprintf("epic:%s:tasks", epicID) }

const quotaWarningAlertKey = "alerts:quota_warning"

// sessionTask resolves the task (and its recorded provider) bound to a
// session by session-start. Every per-tool-call hook needs this pair and
// exits quietly if it's absent, matching the originals' "not a hekate
// agent, exit silently" behavior.
func (d *Deps) sessionTask(ctx context.Context, sessionID string) (taskID string, provider domain.Provider, ok bool) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	taskID, err := d.Store.Get(ctx, sessionTaskKey(sessionID))
	if err != nil || taskID == "" {
		return "", 0, false
	}
	raw, _ := d.Store.Get(ctx, sessionProviderKey(sessionID))
	p, _ := domain.ParseProvider(raw)
	return taskID, p, true
}

func (d *Deps) taskComplexity(ctx context.Context, taskID string) int {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	raw, err := d.Store.Get(ctx, taskComplexityKey(taskID))
	if err != nil {
		return 5
	}
	var c int
	if _, err := fmt.Sscanf(raw, "%d", &c); err != nil || c < 1 || c > 10 {
		return 5
	}
	return c
}

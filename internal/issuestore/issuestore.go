// Package issuestore is a thin wrapper around the external issue-tracker
// CLI. It owns no state of its own: every call shells out, with a bounded
// deadline, and returns the CLI's own answer.
package issuestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// DefaultTimeout bounds every CLI invocation.
const DefaultTimeout = 10 * time.Second

// Client shells out to the issue-tracker binary (named "bd" in the
// reference deployment).
type Client struct {
	binary  string
	dir     string
	timeout time.Duration
}

// New builds a Client. dir is the working directory the CLI runs in
// (typically the task's project worktree); an empty dir uses the
// supervisor's own working directory.
func New(binary, dir string) *Client {
	if binary == "" {
		binary = "bd"
	}
	return &Client{binary: binary, dir: dir, timeout: DefaultTimeout}
}

// Task is the subset of issue-tracker fields the orchestrator needs.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	EpicID      string `json:"epic_id"`
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = c.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("issuestore: %s timed out: %w", args, ctx.Err())
		}
		return nil, fmt.Errorf("issuestore: %s failed: %w (%s)", args, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// ListReady returns tasks the tracker considers ready to claim, optionally
// scoped to one epic.
func (c *Client) ListReady(ctx context.Context, epicID string) ([]Task, error) {
	args := []string{"ready", "--json"}
	if epicID != "" {
		args = append(args, "--parent", epicID)
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	var tasks []Task
	if err := json.Unmarshal(out, &tasks); err != nil {
		return nil, fmt.Errorf("issuestore: parse ready tasks: %w", err)
	}
	return tasks, nil
}

// Show fetches one task's full detail.
func (c *Client) Show(ctx context.Context, taskID string) (Task, error) {
	out, err := c.run(ctx, "show", taskID, "--json")
	if err != nil {
		return Task{}, err
	}
	var t Task
	if err := json.Unmarshal(out, &t); err != nil {
		return Task{}, fmt.Errorf("issuestore: parse task %q: %w", taskID, err)
	}
	return t, nil
}

// UpdateMetadata sets an advisory owner/metadata field on a task. Returns
// false (not an error) when the CLI itself rejects the update, since a
// metadata race is an expected outcome, not a fault.
func (c *Client) UpdateMetadata(ctx context.Context, taskID, key, value string) bool {
	_, err := c.run(ctx, "update", taskID, "--metadata", fmt.Sprintf("%s=%s", key, value))
	return err == nil
}

// UpdateStatus transitions a task to a new status, with an optional reason.
func (c *Client) UpdateStatus(ctx context.Context, taskID, status, reason string) bool {
	args := []string{"update", taskID, "--status", status}
	if reason != "" {
		args = append(args, "--reason", reason)
	}
	_, err := c.run(ctx, args...)
	return err == nil
}

// Create opens a new task under epicID with the given metadata payload and
// returns its assigned ID.
func (c *Client) Create(ctx context.Context, title, epicID string, metadata map[string]any) (string, error) {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("issuestore: marshal metadata: %w", err)
	}
	out, err := c.run(ctx, "create", title, "--parent", epicID, "--metadata", string(meta))
	if err != nil {
		return "", err
	}
	return string(bytes.TrimSpace(out)), nil
}

// Close marks a task completed, recording the branch it landed in.
func (c *Client) Close(ctx context.Context, taskID, branch string) bool {
	meta, _ := json.Marshal(map[string]any{
		"completed_branch": branch,
		"completed_at":     time.Now().Format(time.RFC3339),
	})
	_, err := c.run(ctx, "update", taskID, "--status", "completed", "--metadata", string(meta))
	return err == nil
}

package hooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/memorybus"
	"github.com/hekateai/hekate/internal/pattern"
	"github.com/hekateai/hekate/internal/verify"
	"go.uber.org/zap"
)

func isWriteOp(tool string) bool { return tool == "Write" || tool == "Edit" || tool == "MultiEdit" }
func isReadOp(tool string) bool  { return tool == "Read" || tool == "Glob" || tool == "Grep" }

// PostToolUseTrackOutcome records the tool call's outcome against the
// pattern learner: routing history, the feature-hash pattern, per-provider
// stats, and per-(provider,complexity) stats, grounded on
// hooks/posttooluse_track_outcome.py.
func (d *Deps) PostToolUseTrackOutcome(ctx context.Context, e Envelope) (*Response, error) {
	if e.ToolResponse == nil {
		return nil, nil
	}
	taskID, provider, ok := d.sessionTask(ctx, e.SessionID)
	if !ok {
		return nil, nil
	}

	complexity := d.taskComplexity(ctx, taskID)
	toolInput := fmt.Sprintf("%v", e.ToolResponse.ToolInput)

	features := domain.FeatureVector{
		Complexity:    complexity,
		ToolKind:      e.ToolResponse.ToolName,
		IsWrite:       isWriteOp(e.ToolResponse.ToolName),
		IsRead:        isReadOp(e.ToolResponse.ToolName),
		IsTestRelated: strings.Contains(strings.ToLower(toolInput), "test"),
	}

	outcome := pattern.Outcome{
		TaskID:     taskID,
		Provider:   provider,
		Complexity: complexity,
		ToolName:   e.ToolResponse.ToolName,
		Features:   features,
		Success:    e.ToolResponse.Succeeded(),
	}
	if err := d.Pattern.RecordOutcome(ctx, outcome); err != nil {
		return nil, fmt.Errorf("hooks: track outcome: %w", err)
	}

	if d.Metrics != nil {
		d.Metrics.RecordTaskOutcome(provider, outcome.Success, 0)
		d.Metrics.RecordRouted(provider, complexity, "observed")
	}
	return nil, nil
}

// PostToolUseMemory classifies and sanitizes a Bash command that looks like
// a solution worth remembering, then records it into the memory bus's
// recent FIFOs and, if embeddings are configured, the semantic index,
// grounded on hooks/PostToolUse/memory.py (adapted to the Go memory bus
// instead of a local chromadb collection).
func (d *Deps) PostToolUseMemory(ctx context.Context, e Envelope) (*Response, error) {
	if e.ToolResponse == nil {
		return nil, nil
	}
	taskID, provider, ok := d.sessionTask(ctx, e.SessionID)
	if !ok {
		return nil, nil
	}

	command := commandOf(e.ToolResponse.ToolName, e.ToolResponse.ToolInput)
	if command == "" {
		return nil, nil
	}

	output := fmt.Sprintf("%v", e.ToolResponse.Result)
	if !isSolutionPattern(command, output) {
		return nil, nil
	}

	entry := domain.MemoryEntry{
		Tool:            e.ToolResponse.ToolName,
		OriginalCommand: command,
		TaskID:          taskID,
		Provider:        provider,
		Success:         e.ToolResponse.Succeeded(),
	}
	if err := d.Memory.Record(ctx, entry); err != nil {
		return nil, fmt.Errorf("hooks: record memory: %w", err)
	}

	if d.Metrics != nil {
		d.Metrics.RecordMemoryWrite(memorybus.Classify(command))
	}
	return nil, nil
}

var (
	solutionWords = []string{"fix", "solve", "resolve", "patch", "correct", "repair", "debug", "working"}
	errorWords     = []string{"error", "fail", "bug", "issue", "broken", "not working", "exception", "traceback"}
)

// isSolutionPattern mirrors PostToolUse/memory.py's heuristic for deciding
// a command is worth remembering: a fix applied to an error, a successful
// outcome after a solution-shaped command, a new test, or a significant
// structural change.
func isSolutionPattern(command, output string) bool {
	cmd := strings.ToLower(command)
	out := strings.ToLower(output)

	hasSolutionWord := containsAny(cmd, solutionWords)
	hasErrorContext := containsAny(cmd, errorWords)
	outputIndicatesSuccess := strings.Contains(out, "success") || strings.Contains(out, "fixed") ||
		strings.Contains(out, "resolved") || (strings.Contains(cmd, "error") && !strings.Contains(out, "error"))
	isTestAddition := strings.Contains(cmd, "test") && containsAny(cmd, []string{"add", "create", "write"})
	isSignificant := strings.Contains(cmd, "refactor") || strings.Contains(cmd, "optimize") || strings.Contains(cmd, "implement")

	return (hasSolutionWord && hasErrorContext) || (hasSolutionWord && outputIndicatesSuccess) || isTestAddition || isSignificant
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// shouldPrefetchVerification mirrors verify_prefetch.py's trigger
// condition: a write-class tool, or a Bash git add/commit.
func shouldPrefetchVerification(toolName string, toolInput map[string]any) bool {
	if isWriteOp(toolName) {
		return true
	}
	if toolName == "Bash" {
		command := commandOf(toolName, toolInput)
		if strings.Contains(command, "git") && (strings.Contains(command, "commit") || strings.Contains(command, "add")) {
			return true
		}
	}
	return false
}

// PostToolUseVerifyPrefetch queues a verification slot per provider in the
// task's complexity cascade after a write-class tool call or git
// add/commit, grounded on hooks/PostToolUse/verify_prefetch.py.
func (d *Deps) PostToolUseVerifyPrefetch(ctx context.Context, e Envelope) (*Response, error) {
	if e.ToolResponse == nil {
		return nil, nil
	}
	taskID, _, ok := d.sessionTask(ctx, e.SessionID)
	if !ok {
		return nil, nil
	}
	if !shouldPrefetchVerification(e.ToolResponse.ToolName, e.ToolResponse.ToolInput) {
		return nil, nil
	}

	complexity := d.taskComplexity(ctx, taskID)
	if err := d.Verify.Prefetch(ctx, taskID, complexity); err != nil {
		return nil, fmt.Errorf("hooks: verify prefetch: %w", err)
	}

	for _, p := range verify.ProvidersForComplexity(complexity) {
		d.logger().Info("queued verification", zap.String("task_id", taskID), zap.String("provider", p.String()))
	}
	return nil, nil
}

// PostToolUseMetrics increments the per-(provider,complexity-bucket) task
// counter, publishes the provider's remaining quota, and raises a 5-minute
// alert when remaining quota drops to 5 or fewer, grounded on
// hooks/posttooluse_metrics.py.
func (d *Deps) PostToolUseMetrics(ctx context.Context, e Envelope) (*Response, error) {
	taskID, provider, ok := d.sessionTask(ctx, e.SessionID)
	if !ok {
		return nil, nil
	}

	complexity := d.taskComplexity(ctx, taskID)
	if d.Metrics != nil {
		d.Metrics.RecordRouted(provider, complexity, "metrics")
	}

	tr, found := d.Quotas[provider]
	if !found {
		return nil, nil
	}
	usage, err := tr.GetUsage(ctx)
	if err != nil {
		return nil, fmt.Errorf("hooks: metrics quota usage: %w", err)
	}

	if d.Metrics != nil {
		d.Metrics.SetQuotaRemaining(provider, float64(usage.Remaining)/float64(usage.Limit))
	}

	const lowQuotaThreshold = 5
	if usage.Remaining <= lowQuotaThreshold {
		level := "buffer"
		if usage.Remaining <= 0 {
			level = "emergency"
		}
		if d.Metrics != nil {
			d.Metrics.RecordQuotaWarning(provider, level)
		}
		alert := map[string]any{
			"type":      "quota",
			"severity":  level,
			"provider":  provider.String(),
			"remaining": usage.Remaining,
			"threshold": lowQuotaThreshold,
			"timestamp": time.Now().Unix(),
		}
		if err := d.Store.SetJSON(ctx, quotaWarningAlertKey, alert, 5*time.Minute); err != nil {
			d.logger().Warn("failed to publish quota alert", zap.Error(err))
		}
	}
	return nil, nil
}

// PostToolUseCompleteTask detects a git commit/push and, if the task
// belongs to an epic, closes it in the issue tracker, increments the
// epic's completion count, and marks the epic complete (with a banner)
// once every task is done, grounded on hooks/PostToolUse/complete_task.py.
func (d *Deps) PostToolUseCompleteTask(ctx context.Context, e Envelope) (*Response, error) {
	if e.ToolResponse == nil || e.ToolResponse.ToolName != "Bash" {
		return nil, nil
	}
	taskID, _, ok := d.sessionTask(ctx, e.SessionID)
	if !ok {
		return nil, nil
	}

	command := commandOf(e.ToolResponse.ToolName, e.ToolResponse.ToolInput)
	if !strings.Contains(command, "git commit") && !strings.Contains(command, "git push") {
		return nil, nil
	}

	epicID, err := d.Store.Get(ctx, taskEpicKey(taskID))
	if err != nil || epicID == "" {
		return nil, nil
	}

	d.Issues.Close(ctx, taskID, "")
	if err := d.Store.Set(ctx, taskStatusKey(taskID), string(domain.TaskComplete), 0); err != nil {
		d.logger().Warn("failed to record task completion", zap.Error(err))
	}

	newCount, err := d.Store.IncrBy(ctx, epicCompleteCountKey(epicID), 1)
	if err != nil {
		return nil, fmt.Errorf("hooks: increment epic complete count: %w", err)
	}

	taskCountRaw, _ := d.Store.Get(ctx, epicTaskCountKey(epicID))
	var taskCount int
	fmt.Sscanf(taskCountRaw, "%d", &taskCount)

	d.logger().Info("epic progress", zap.String("epic_id", epicID), zap.Int64("complete", newCount), zap.Int("total", taskCount))
	if d.Metrics != nil {
		d.Metrics.SetEpicProgress(epicID, float64(newCount)/float64(maxInt(taskCount, 1)))
	}

	if taskCount == 0 || int(newCount) < taskCount {
		return nil, nil
	}

	if err := d.Store.Set(ctx, epicStatusKey(epicID), string(domain.EpicComplete), 0); err != nil {
		d.logger().Warn("failed to mark epic complete", zap.Error(err))
	}
	if d.Metrics != nil {
		d.Metrics.RecordEpicCompleted()
	}

	context := fmt.Sprintf("\n[HEKATE] Epic %s is complete! All %d tasks finished.\n", epicID, taskCount)
	return response("PostToolUse", context), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

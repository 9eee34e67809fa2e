package hooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/memorybus"
	"github.com/hekateai/hekate/internal/router"
	"github.com/hekateai/hekate/internal/verify"
	"go.uber.org/zap"
)

// PreToolUseRouter re-runs the routing decision tree for the task's current
// complexity and logs whether quota pressure would pick a different
// provider than the one assigned at spawn time. It never changes the
// running agent's provider — that would require restarting the process —
// this is an advisory signal for the operator and for metrics, grounded on
// hooks/pretooluse_router.py.
func (d *Deps) PreToolUseRouter(ctx context.Context, e Envelope) (*Response, error) {
	taskID, assigned, ok := d.sessionTask(ctx, e.SessionID)
	if !ok {
		return nil, nil
	}

	complexity := d.taskComplexity(ctx, taskID)
	decision, err := d.Router.Route(ctx, domain.Task{ID: taskID, Complexity: complexity}, router.TaskImplementation)
	if err != nil {
		return nil, fmt.Errorf("hooks: pre-tool-use router: %w", err)
	}

	if decision.Provider != assigned {
		d.logger().Warn("router would switch provider under current quota pressure",
			zap.String("task_id", taskID),
			zap.String("assigned", assigned.String()),
			zap.String("recommended", decision.Provider.String()),
			zap.String("reason", decision.Reason))
	}

	if tr, found := d.Quotas[assigned]; found {
		if _, err := tr.Increment(ctx); err != nil {
			d.logger().Warn("quota increment failed", zap.Error(err))
		}
	}

	return nil, nil
}

// PreToolUseMemoryRecent scans the recent-memory FIFOs for entries from
// other providers within the last 30 minutes whose pattern type or keyword
// overlap matches the current Bash command, injecting up to 5, grounded on
// hooks/PreToolUse/memory.py (the Go memory bus's classify/FIFO
// implementation, not the chromadb-backed PostToolUse/memory.py).
func (d *Deps) PreToolUseMemoryRecent(ctx context.Context, e Envelope) (*Response, error) {
	_, provider, ok := d.sessionTask(ctx, e.SessionID)
	if !ok {
		return nil, nil
	}

	command := commandOf(e.ToolName, e.ToolInput)
	if command == "" {
		return nil, nil
	}

	patternType, err := d.recentMemoryPatternType(ctx, command)
	if err != nil {
		return nil, err
	}
	keywords := commandKeywords(command)

	entries, err := d.Memory.RecallRecent(ctx, "", nil, 50)
	if err != nil {
		return nil, fmt.Errorf("hooks: recall recent memory: %w", err)
	}

	const maxAgeMinutes = 30
	var relevant []relevantMemory
	for _, m := range entries {
		if m.ProviderName == provider.String() {
			continue
		}
		if time.Since(m.Timestamp) > maxAgeMinutes*time.Minute {
			continue
		}
		sameType := m.PatternType == patternType
		if !sameType && !keywordsOverlap(keywords, commandKeywords(m.CommandSnippet+" "+m.OriginalCommand)) {
			continue
		}
		relevant = append(relevant, relevantMemory{entry: m, ageMinutes: int(time.Since(m.Timestamp).Minutes())})
		if len(relevant) >= 5 {
			break
		}
	}
	if len(relevant) == 0 {
		return nil, nil
	}

	if d.Metrics != nil {
		d.Metrics.RecordMemoryRecall("recent")
	}
	return response("PreToolUse", formatRecentMemories(relevant)), nil
}

type relevantMemory struct {
	entry      domain.MemoryEntry
	ageMinutes int
}

// recentMemoryPatternType classifies the live command the same way memory
// bus entries were classified when recorded, so a type match counts as
// relevant (the original's "same pattern type" rule).
func (d *Deps) recentMemoryPatternType(_ context.Context, command string) (domain.MemoryPatternType, error) {
	return memorybus.Classify(command), nil
}

// minKeywordLen excludes short filler words (flags, articles) from the
// overlap check so "the" or "-f" never counts as a shared keyword.
const minKeywordLen = 4

// commandKeywords splits command into its lowercase significant words,
// the same coarse tokenization the original's keyword-overlap rule used.
func commandKeywords(command string) map[string]bool {
	words := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(command)) {
		f = strings.Trim(f, ".,:;()[]{}\"'")
		if len(f) >= minKeywordLen {
			words[f] = true
		}
	}
	return words
}

// keywordsOverlap reports whether a and b share at least one significant word.
func keywordsOverlap(a, b map[string]bool) bool {
	for w := range a {
		if b[w] {
			return true
		}
	}
	return false
}

func formatRecentMemories(memories []relevantMemory) string {
	out := "[HEKATE MEMORY] Recent relevant work from other agents:\n\n"
	for _, m := range memories {
		out += fmt.Sprintf("  - %s agent (%dm ago, %s):\n    %s\n    Task: %s\n\n",
			m.entry.ProviderName, m.ageMinutes, m.entry.PatternType, m.entry.CommandSnippet, m.entry.TaskID)
	}
	return out
}

// semanticMinSimilarity and semanticWindow bound PreToolUseMemorySemantic's
// query, matching hooks/PreToolUse/memory.py's similarity and recency cuts.
const (
	semanticMinSimilarity = 0.65
	semanticWindow        = 2 * time.Hour
	semanticTopK          = 5
	semanticInjectMax     = 3
)

// PreToolUseMemorySemantic embeds the current Bash command, searches the
// semantic vector index for similar past commands within the last 2 hours,
// and injects up to 3 results above the similarity floor from other
// providers, grounded on hooks/PreToolUse/memory.py's get_embedding.
func (d *Deps) PreToolUseMemorySemantic(ctx context.Context, e Envelope) (*Response, error) {
	_, provider, ok := d.sessionTask(ctx, e.SessionID)
	if !ok || d.Memory == nil {
		return nil, nil
	}

	command := commandOf(e.ToolName, e.ToolInput)
	if command == "" {
		return nil, nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()
	filter := map[string]any{"timestamp_gte": time.Now().Add(-semanticWindow).Unix()}
	results, err := d.Memory.RecallSemantic(embedCtx, "command: "+command, semanticTopK, filter)
	if err != nil {
		return nil, fmt.Errorf("hooks: recall semantic memory: %w", err)
	}

	var kept []memorybus.SearchResult
	for _, r := range results {
		if r.Score < semanticMinSimilarity {
			continue
		}
		if providerName, _ := r.Entry.Metadata["provider"].(string); providerName == provider.String() {
			continue
		}
		kept = append(kept, r)
		if len(kept) >= semanticInjectMax {
			break
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}

	if d.Metrics != nil {
		d.Metrics.RecordMemoryRecall("semantic")
	}
	return response("PreToolUse", formatSemanticMemories(kept)), nil
}

func formatSemanticMemories(results []memorybus.SearchResult) string {
	out := "[HEKATE MEMORY] Semantically similar past work:\n\n"
	for _, r := range results {
		providerName, _ := r.Entry.Metadata["provider"].(string)
		out += fmt.Sprintf("  - %s agent (similarity %.2f):\n    %s\n\n", providerName, r.Score, r.Entry.DocText)
	}
	return out
}

// verifyInjectTools is the set of tools that read completed work back, the
// original's heuristic for "probably checking verification status".
var verifyInjectTools = map[string]bool{"Read": true, "Bash": true}

// PreToolUseVerifyInject advances any pending verification slot for the
// session's task aged past verify.AgeBeforeComplete, then injects every
// completed slot's result, grounded on hooks/PreToolUse/verify_inject.py.
func (d *Deps) PreToolUseVerifyInject(ctx context.Context, e Envelope) (*Response, error) {
	if !verifyInjectTools[e.ToolName] {
		return nil, nil
	}
	taskID, _, ok := d.sessionTask(ctx, e.SessionID)
	if !ok {
		return nil, nil
	}

	slots, err := d.Verify.CheckAndAdvance(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("hooks: verify inject: %w", err)
	}
	if len(slots) == 0 {
		return nil, nil
	}

	for _, s := range slots {
		if d.Metrics != nil {
			d.Metrics.RecordVerificationRun(s.Provider, s.Status)
		}
	}

	formatted := verify.FormatResults(slots)
	if formatted == "" {
		return nil, nil
	}
	return response("PreToolUse", "\n"+formatted+"\n"), nil
}

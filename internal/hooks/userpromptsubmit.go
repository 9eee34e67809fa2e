package hooks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hekateai/hekate/internal/decompose"
	"github.com/hekateai/hekate/internal/domain"
	"go.uber.org/zap"
)

// UserPromptSubmitDecompose detects an epic-creation prompt, calls the
// one-shot LLM decomposition endpoint, creates one task per returned spec in
// the issue tracker, and records each task's complexity and the new epic's
// state in the coordination store, grounded on
// hooks/userpromptsubmit_decompose.py. A prompt that doesn't match the loose
// epic-creation pattern produces no output at all, matching spec.md §9's
// "do not guess intent" rule.
func (d *Deps) UserPromptSubmitDecompose(ctx context.Context, e Envelope) (*Response, error) {
	description, ok := decompose.Detect(e.Prompt)
	if !ok {
		return nil, nil
	}
	if d.Decompose == nil {
		return response("UserPromptSubmit", "[HEKATE] Epic decomposition is not configured; create tasks manually."), nil
	}

	decomposeCtx, cancel := context.WithTimeout(ctx, decomposeTimeout)
	defer cancel()
	tasks, err := d.Decompose.Decompose(decomposeCtx, description)
	if err != nil {
		d.logger().Warn("epic decomposition failed", zap.Error(err))
		status := "error"
		if err == decompose.ErrNoAPIKey {
			status = "no_api_key"
		}
		if d.Metrics != nil {
			d.Metrics.RecordDecomposeCall(status)
		}
		return response("UserPromptSubmit",
			fmt.Sprintf("[HEKATE] Could not decompose epic automatically (%v). Please create tasks manually.", err)), nil
	}

	epicID := uuid.NewString()
	storeCtx, storeCancel := context.WithTimeout(ctx, storeTimeout)
	defer storeCancel()

	if err := d.Store.Set(storeCtx, epicDescriptionKey(epicID), description, 0); err != nil {
		d.logger().Warn("failed to record epic description", zap.Error(err))
	}
	if err := d.Store.Set(storeCtx, epicTaskCountKey(epicID), fmt.Sprintf("%d", len(tasks)), 0); err != nil {
		d.logger().Warn("failed to record epic task count", zap.Error(err))
	}
	if err := d.Store.Set(storeCtx, epicCompleteCountKey(epicID), "0", 0); err != nil {
		d.logger().Warn("failed to initialize epic complete count", zap.Error(err))
	}
	if err := d.Store.Set(storeCtx, epicStatusKey(epicID), string(domain.EpicActive), 0); err != nil {
		d.logger().Warn("failed to activate epic", zap.Error(err))
	}

	issueCtx, issueCancel := context.WithTimeout(ctx, issueTimeout)
	defer issueCancel()

	created := 0
	for _, t := range tasks {
		taskID, err := d.Issues.Create(issueCtx, t.Description, epicID, map[string]any{"complexity": t.Complexity})
		if err != nil {
			d.logger().Warn("failed to create decomposed task", zap.String("epic_id", epicID), zap.Error(err))
			continue
		}
		if err := d.Store.Set(storeCtx, taskEpicKey(taskID), epicID, 0); err != nil {
			d.logger().Warn("failed to bind task to epic", zap.Error(err))
		}
		if err := d.Store.Set(storeCtx, taskComplexityKey(taskID), fmt.Sprintf("%d", t.Complexity), 0); err != nil {
			d.logger().Warn("failed to record task complexity", zap.Error(err))
		}
		if err := d.Store.LPushTrim(storeCtx, epicTasksKey(epicID), 0, taskID); err != nil {
			d.logger().Warn("failed to append task to epic list", zap.Error(err))
		}
		created++
	}

	if d.Metrics != nil {
		d.Metrics.RecordDecomposeCall("ok")
	}

	block := fmt.Sprintf("[HEKATE] Decomposed epic %q into %d task(s) under epic %s.\n", description, created, epicID)
	return response("UserPromptSubmit", block), nil
}

package hooks

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// SessionStart binds the new session to the task HEKATE_TASK_ID/HEKATE_PROVIDER
// name (set by the supervisor when it spawned the agent), fetches the task's
// detail from the issue tracker, and injects a system-context block. A
// session started outside a hekate-spawned agent (no HEKATE_TASK_ID) exits
// with no output, grounded on hooks/sessionstart_init.py.
func (d *Deps) SessionStart(ctx context.Context, e Envelope) (*Response, error) {
	taskID := os.Getenv("HEKATE_TASK_ID")
	provider := os.Getenv("HEKATE_PROVIDER")
	if taskID == "" {
		return nil, nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := d.Store.Set(storeCtx, sessionTaskKey(e.SessionID), taskID, 0); err != nil {
		d.logger().Warn("session-start: bind task", zap.Error(err))
	}
	if err := d.Store.Set(storeCtx, sessionProviderKey(e.SessionID), provider, 0); err != nil {
		d.logger().Warn("session-start: bind provider", zap.Error(err))
	}

	complexity := d.taskComplexity(ctx, taskID)

	epicID, _ := d.Store.Get(storeCtx, taskEpicKey(taskID))
	epicDescription, _ := d.Store.Get(storeCtx, epicDescriptionKey(epicID))

	issueCtx, issueCancel := context.WithTimeout(ctx, issueTimeout)
	defer issueCancel()
	title := taskID
	if task, err := d.Issues.Show(issueCtx, taskID); err == nil && task.Title != "" {
		title = task.Title
	}

	block := fmt.Sprintf(`
[HEKATE AGENT SESSION]
%s
Session ID: %s
Task ID: %s
Provider: %s
Complexity: %d/10

Epic: %s
%s

Task: %s
%s

You are an autonomous hekate agent working on this task.

Guidelines:
- Focus on completing the specific task described above
- Write tests first (TDD) when implementing features
- Commit your work when the task is complete
- The system will automatically detect completion and update status
`, rule, e.SessionID, taskID, provider, complexity, epicID, truncate(epicDescription, 100), title, rule)

	return response("SessionStart", block), nil
}

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

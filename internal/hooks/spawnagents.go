package hooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/providerregistry"
	"github.com/hekateai/hekate/internal/router"
	"go.uber.org/zap"
)

// isTaskCreationCommand reports whether a Bash command looks like it just
// created a new task in the issue tracker, the trigger condition for
// PostToolUseSpawnAgents, grounded on hooks/posttooluse_spawn_agents.py.
func isTaskCreationCommand(toolName string, toolInput map[string]any) bool {
	if toolName != "Bash" {
		return false
	}
	cmd := commandOf(toolName, toolInput)
	return strings.Contains(cmd, "create") && strings.Contains(cmd, "--parent")
}

// PostToolUseSpawnAgents fires whenever the running agent creates a new
// task in the issue tracker. It walks every active epic, finds pending
// unclaimed tasks, and spawns agents for as many as the per-provider
// concurrency caps allow, so new work discovered mid-session doesn't have
// to wait for the next supervisor tick, grounded on
// hooks/posttooluse_spawn_agents.py.
func (d *Deps) PostToolUseSpawnAgents(ctx context.Context, e Envelope) (*Response, error) {
	if e.ToolResponse == nil || !isTaskCreationCommand(e.ToolResponse.ToolName, e.ToolResponse.ToolInput) {
		return nil, nil
	}
	if d.Agents == nil || d.Router == nil || d.Issues == nil {
		return nil, nil
	}

	epics, err := d.activeEpics(ctx)
	if err != nil {
		return nil, fmt.Errorf("hooks: spawn-agents list active epics: %w", err)
	}

	spawned := 0
	for _, epicID := range epics {
		issueCtx, issueCancel := context.WithTimeout(ctx, issueTimeout)
		tasks, err := d.Issues.ListReady(issueCtx, epicID)
		issueCancel()
		if err != nil {
			d.logger().Warn("spawn-agents: list ready failed", zap.String("epic_id", epicID), zap.Error(err))
			continue
		}

		for _, t := range tasks {
			storeCtx, storeCancel := context.WithTimeout(ctx, storeTimeout)
			n, existsErr := d.Store.Exists(storeCtx, ownerKeyOf(t.ID))
			storeCancel()
			if existsErr != nil || n > 0 {
				continue
			}

			complexity := d.taskComplexity(ctx, t.ID)
			decision, err := d.Router.Route(ctx, domain.Task{ID: t.ID, Complexity: complexity}, router.TaskImplementation)
			if err != nil {
				d.logger().Warn("spawn-agents: routing failed", zap.String("task_id", t.ID), zap.Error(err))
				continue
			}

			if d.Agents.ActiveCountByProvider(decision.Provider) >= providerregistry.PoolCap(decision.Provider) {
				continue
			}

			claimCtx, claimCancel := context.WithTimeout(ctx, storeTimeout)
			claimed, err := d.Store.ClaimNX(claimCtx, ownerKeyOf(t.ID), decision.Provider.String(), claimTTL)
			claimCancel()
			if err != nil || !claimed {
				continue // claim-conflict: the supervisor or another hook invocation got there first
			}

			metaCtx, metaCancel := context.WithTimeout(ctx, issueTimeout)
			ok := d.Issues.UpdateMetadata(metaCtx, t.ID, "owner", decision.Provider.String())
			metaCancel()
			if !ok {
				unclaimCtx, unclaimCancel := context.WithTimeout(ctx, storeTimeout)
				_ = d.Store.Delete(unclaimCtx, ownerKeyOf(t.ID))
				unclaimCancel()
				continue
			}

			if _, err := d.Agents.Spawn(ctx, decision.Provider, t.ID, d.Worktrees); err != nil {
				d.logger().Warn("spawn-agents: spawn failed", zap.String("task_id", t.ID), zap.Error(err))
				unclaimCtx, unclaimCancel := context.WithTimeout(ctx, storeTimeout)
				_ = d.Store.Delete(unclaimCtx, ownerKeyOf(t.ID))
				unclaimCancel()
				continue
			}

			if d.Metrics != nil {
				d.Metrics.RecordAgentSpawned(decision.Provider)
			}
			spawned++
		}
	}

	if spawned == 0 {
		return nil, nil
	}
	return response("PostToolUse", fmt.Sprintf("[HEKATE] Spawned %d new agent(s) for newly ready tasks.\n", spawned)), nil
}

func ownerKeyOf(taskID string) string { return fmt.Sprintf("task:%s:owner", taskID) }

// claimTTL matches supervisor.ClaimTTL. It is duplicated here rather than
// imported so the hook binary doesn't pull in the supervisor package's
// scheduler-loop dependencies for the sake of one constant.
const claimTTL = 1 * time.Hour

// activeEpics scans the coordination store for every epic whose status key
// reads "active".
func (d *Deps) activeEpics(ctx context.Context) ([]string, error) {
	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	keys, err := d.Store.ScanPrefix(storeCtx, "epic:")
	if err != nil {
		return nil, err
	}

	var out []string
	for _, k := range keys {
		if !strings.HasSuffix(k, ":status") {
			continue
		}
		epicID := strings.TrimSuffix(strings.TrimPrefix(k, "epic:"), ":status")

		valCtx, valCancel := context.WithTimeout(ctx, storeTimeout)
		val, err := d.Store.Get(valCtx, k)
		valCancel()
		if err != nil {
			continue
		}
		if domain.EpicStatus(val) == domain.EpicActive {
			out = append(out, epicID)
		}
	}
	return out, nil
}

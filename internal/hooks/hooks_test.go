package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hekateai/hekate/internal/agentmanager"
	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/issuestore"
	"github.com/hekateai/hekate/internal/pattern"
	"github.com/hekateai/hekate/internal/providerregistry"
	"github.com/hekateai/hekate/internal/quota"
	"github.com/hekateai/hekate/internal/router"
	"github.com/hekateai/hekate/internal/store"
	"github.com/hekateai/hekate/internal/verify"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := store.DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0

	s, err := store.New(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fakeIssueCLI writes a tiny shell script standing in for the issue-tracker
// binary, mirroring issuestore's own test helper.
func fakeIssueCLI(t *testing.T, script string) *issuestore.Client {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bd")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return issuestore.New(path, "")
}

func TestSessionStart_NoTaskIDExitsSilently(t *testing.T) {
	d := &Deps{Store: newTestStore(t), Issues: fakeIssueCLI(t, "echo '{}'")}
	resp, err := d.SessionStart(context.Background(), Envelope{SessionID: "s1"})
	require.NoError(t, err)
	require.Nil(t, resp)
}

func TestSessionStart_BindsSessionAndInjectsContext(t *testing.T) {
	t.Setenv("HEKATE_TASK_ID", "t1")
	t.Setenv("HEKATE_PROVIDER", "glm")

	s := newTestStore(t)
	require.NoError(t, s.Set(context.Background(), taskComplexityKey("t1"), "7", 0))

	d := &Deps{Store: s, Issues: fakeIssueCLI(t, `echo '{"id":"t1","title":"Fix the thing"}'`)}
	resp, err := d.SessionStart(context.Background(), Envelope{SessionID: "s1"})
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Contains(t, resp.HookSpecificOutput.AdditionalContext, "Fix the thing")
	require.Contains(t, resp.HookSpecificOutput.AdditionalContext, "Complexity: 7/10")

	taskID, provider, ok := d.sessionTask(context.Background(), "s1")
	require.True(t, ok)
	require.Equal(t, "t1", taskID)
	require.Equal(t, domain.ProviderGLM, provider)
}

func TestUserPromptSubmitDecompose_NonEpicPromptProducesNoOutput(t *testing.T) {
	d := &Deps{Store: newTestStore(t)}
	resp, err := d.UserPromptSubmitDecompose(context.Background(), Envelope{Prompt: "what's the weather like"})
	require.NoError(t, err)
	require.Nil(t, resp)
}

func TestUserPromptSubmitDecompose_NoDecomposeClientAsksForManualCreation(t *testing.T) {
	d := &Deps{Store: newTestStore(t)}
	resp, err := d.UserPromptSubmitDecompose(context.Background(), Envelope{Prompt: "build a new epic for the billing overhaul"})
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Contains(t, resp.HookSpecificOutput.AdditionalContext, "not configured")
}

func TestPostToolUseSpawnAgents_IgnoresNonTaskCreationCommands(t *testing.T) {
	d := &Deps{Store: newTestStore(t)}
	resp, err := d.PostToolUseSpawnAgents(context.Background(), Envelope{
		ToolResponse: &ToolResponse{ToolName: "Bash", ToolInput: map[string]any{"command": "ls -la"}},
	})
	require.NoError(t, err)
	require.Nil(t, resp)
}

func TestPostToolUseSpawnAgents_SpawnsForReadyUnclaimedTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, epicStatusKey("e1"), string(domain.EpicActive), 0))

	issues := fakeIssueCLI(t, `
if [ "$1" = "ready" ]; then
  echo '[{"id":"t1","title":"Do it","status":"open","epic_id":"e1"}]'
fi
`)
	agents := agentmanager.New(s, zap.NewNop())
	quotas := map[domain.Provider]*quota.Tracker{
		domain.ProviderDeepSeek: quota.New(s, domain.ProviderDeepSeek, 200, 24, 10),
	}
	r := router.New(quotas, router.Thresholds{}, pattern.New(s), zap.NewNop())

	d := &Deps{
		Store:  s,
		Issues: issues,
		Agents: agents,
		Router: r,
	}

	resp, err := d.PostToolUseSpawnAgents(context.Background(), Envelope{
		ToolResponse: &ToolResponse{ToolName: "Bash", ToolInput: map[string]any{"command": "bd create --parent e1 'do it'"}},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Contains(t, resp.HookSpecificOutput.AdditionalContext, "Spawned 1")

	n, err := s.Exists(ctx, ownerKeyOf("t1"))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestPostToolUseSpawnAgents_SkipsTaskAlreadyClaimed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, epicStatusKey("e1"), string(domain.EpicActive), 0))
	claimed, err := s.ClaimNX(ctx, ownerKeyOf("t1"), "glm", time.Hour)
	require.NoError(t, err)
	require.True(t, claimed)

	issues := fakeIssueCLI(t, `
if [ "$1" = "ready" ]; then
  echo '[{"id":"t1","title":"Do it","status":"open","epic_id":"e1"}]'
fi
`)
	agents := agentmanager.New(s, zap.NewNop())
	quotas := map[domain.Provider]*quota.Tracker{
		domain.ProviderDeepSeek: quota.New(s, domain.ProviderDeepSeek, 200, 24, 10),
	}
	r := router.New(quotas, router.Thresholds{}, pattern.New(s), zap.NewNop())

	d := &Deps{Store: s, Issues: issues, Agents: agents, Router: r}
	resp, err := d.PostToolUseSpawnAgents(ctx, Envelope{
		ToolResponse: &ToolResponse{ToolName: "Bash", ToolInput: map[string]any{"command": "bd create --parent e1 'do it'"}},
	})
	require.NoError(t, err)
	require.Nil(t, resp)
}

func TestPostToolUseMetrics_PublishesAlertOnLowQuota(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, sessionTaskKey("s1"), "t1", 0))
	require.NoError(t, s.Set(ctx, sessionProviderKey("s1"), "claude", 0))

	tr := quota.New(s, domain.ProviderClaude, 45, 5, 20)
	for i := 0; i < 42; i++ {
		_, err := tr.Increment(ctx)
		require.NoError(t, err)
	}

	d := &Deps{Store: s, Quotas: map[domain.Provider]*quota.Tracker{domain.ProviderClaude: tr}}
	resp, err := d.PostToolUseMetrics(ctx, Envelope{SessionID: "s1"})
	require.NoError(t, err)
	require.Nil(t, resp)

	raw, err := s.Get(ctx, quotaWarningAlertKey)
	require.NoError(t, err)
	require.Contains(t, raw, `"provider":"claude"`)
}

func TestPostToolUseCompleteTask_CompletesEpicOnFinalTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, sessionTaskKey("s1"), "t1", 0))
	require.NoError(t, s.Set(ctx, taskEpicKey("t1"), "e1", 0))
	require.NoError(t, s.Set(ctx, epicTaskCountKey("e1"), "1", 0))
	require.NoError(t, s.Set(ctx, epicCompleteCountKey("e1"), "0", 0))

	d := &Deps{Store: s, Issues: fakeIssueCLI(t, "exit 0")}
	resp, err := d.PostToolUseCompleteTask(ctx, Envelope{
		SessionID:    "s1",
		ToolResponse: &ToolResponse{ToolName: "Bash", ToolInput: map[string]any{"command": "git commit -m done"}},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Contains(t, resp.HookSpecificOutput.AdditionalContext, "is complete")

	status, err := s.Get(ctx, epicStatusKey("e1"))
	require.NoError(t, err)
	require.Equal(t, string(domain.EpicComplete), status)
}

func TestPreToolUseVerifyInject_NoSessionTaskExitsSilently(t *testing.T) {
	s := newTestStore(t)
	d := &Deps{Store: s, Verify: verify.New(s)}
	resp, err := d.PreToolUseVerifyInject(context.Background(), Envelope{SessionID: "unknown", ToolName: "Read"})
	require.NoError(t, err)
	require.Nil(t, resp)
}

var _ = time.Second

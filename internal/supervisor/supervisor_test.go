package supervisor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hekateai/hekate/internal/agentmanager"
	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/issuestore"
	"github.com/hekateai/hekate/internal/pattern"
	"github.com/hekateai/hekate/internal/quota"
	"github.com/hekateai/hekate/internal/router"
	"github.com/hekateai/hekate/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sleepSpawner struct{}

func (sleepSpawner) Command(ctx context.Context, _ string, _ []string, dir string, env []string) *exec.Cmd {
	cmd := exec.Command("sh", "-c", "sleep 2")
	cmd.Dir = dir
	cmd.Env = env
	return cmd
}

func fakeIssueCLI(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bd")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func newTestSupervisor(t *testing.T, issueScript string, capacity int) (*Supervisor, *store.Store) {
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

	bin := fakeIssueCLI(t, issueScript)
	issues := issuestore.New(bin, "")

	am := agentmanager.New(s, zap.NewNop())
	am.WithSpawner(sleepSpawner{})
	t.Cleanup(func() { am.Shutdown(context.Background()) })

	r := router.New(map[domain.Provider]*quota.Tracker{}, router.Thresholds{}, pattern.New(s), zap.NewNop())

	sup := New(Config{ProjectDir: t.TempDir(), PoolCapacity: capacity}, s, issues, am, r, nil, zap.NewNop())
	return sup, s
}

func TestRunIteration_ClaimsAndSpawnsSingleTask(t *testing.T) {
	sup, s := newTestSupervisor(t, `echo '[{"id":"t1","title":"implement thing","status":"open"}]'`, 8)
	ctx := context.Background()

	assigned, err := sup.RunIteration(ctx)
	require.NoError(t, err)
	require.Equal(t, "t1", assigned)

	n, err := s.Exists(ctx, ownerKey("t1"))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestRunIteration_SkipsAlreadyOwnedTask(t *testing.T) {
	sup, s := newTestSupervisor(t, `echo '[{"id":"t1","title":"implement thing","status":"open"}]'`, 8)
	ctx := context.Background()

	claimed, err := s.ClaimNX(ctx, ownerKey("t1"), "deepseek", ClaimTTL)
	require.NoError(t, err)
	require.True(t, claimed)

	assigned, err := sup.RunIteration(ctx)
	require.NoError(t, err)
	require.Equal(t, "", assigned)
}

func TestRunIteration_StopsAtPoolCapacity(t *testing.T) {
	sup, _ := newTestSupervisor(t, `echo '[{"id":"t1","title":"implement thing","status":"open"}]'`, 1)
	ctx := context.Background()

	// Fill the single pool slot with a running agent first.
	_, err := sup.agents.Spawn(ctx, domain.ProviderGLM, "busy", t.TempDir())
	require.NoError(t, err)

	assigned, err := sup.RunIteration(ctx)
	require.NoError(t, err)
	require.Equal(t, "", assigned)
}

func TestRunIteration_OnlyAssignsOnePerTick(t *testing.T) {
	sup, _ := newTestSupervisor(t, `echo '[{"id":"t1","title":"implement a"},{"id":"t2","title":"implement b"}]'`, 8)
	ctx := context.Background()

	assigned, err := sup.RunIteration(ctx)
	require.NoError(t, err)
	require.Contains(t, []string{"t1", "t2"}, assigned)
}

func TestRunIteration_RollsBackClaimWhenMetadataUpdateFails(t *testing.T) {
	sup, s := newTestSupervisor(t, `
if [ "$1" = "ready" ]; then
  echo '[{"id":"t1","title":"implement thing","status":"open"}]'
else
  exit 1
fi`, 8)
	ctx := context.Background()

	assigned, err := sup.RunIteration(ctx)
	require.NoError(t, err)
	require.Equal(t, "", assigned)

	n, err := s.Exists(ctx, ownerKey("t1"))
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestClassifyTaskType(t *testing.T) {
	require.Equal(t, router.TaskPlanning, classifyTaskType("plan the migration"))
	require.Equal(t, router.TaskReview, classifyTaskType("review the PR"))
	require.Equal(t, router.TaskVerification, classifyTaskType("verify output"))
	require.Equal(t, router.TaskImplementation, classifyTaskType("add a button"))
}

func TestTaskComplexity_DefaultsWhenUnset(t *testing.T) {
	sup, _ := newTestSupervisor(t, `echo '[]'`, 8)
	require.Equal(t, defaultComplexity, sup.taskComplexity(context.Background(), "missing"))
}

func TestTaskComplexity_ReadsStoredValue(t *testing.T) {
	sup, s := newTestSupervisor(t, `echo '[]'`, 8)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, complexityKey("t1"), "8", 0))
	require.Equal(t, 8, sup.taskComplexity(ctx, "t1"))
}

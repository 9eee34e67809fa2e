package agentmanager

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sleepSpawner struct{ sleep string }

func (s sleepSpawner) Command(ctx context.Context, _ string, _ []string, dir string, env []string) *exec.Cmd {
	cmd := exec.Command("sh", "-c", s.sleep)
	cmd.Dir = dir
	cmd.Env = env
	return cmd
}

func newTestManager(t *testing.T, spawner Spawner) *Manager {
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

	m := New(s, zap.NewNop())
	m.WithSpawner(spawner)
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m
}

func TestSpawn_TracksAgentAsRunning(t *testing.T) {
	m := newTestManager(t, sleepSpawner{sleep: "sleep 2"})
	ctx := context.Background()

	agent, err := m.Spawn(ctx, domain.ProviderDeepSeek, "task-1", t.TempDir())
	require.NoError(t, err)
	require.Contains(t, agent.ID, "agent-deepseek-")

	require.Equal(t, domain.AgentRunning, m.Status(ctx, agent.ID))
}

func TestSpawn_CompletesWhenProcessExits(t *testing.T) {
	m := newTestManager(t, sleepSpawner{sleep: "true"})
	ctx := context.Background()

	agent, err := m.Spawn(ctx, domain.ProviderGLM, "task-2", t.TempDir())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return m.Status(ctx, agent.ID) == domain.AgentCompleted
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSpawn_FailsWhenProcessExitsNonZero(t *testing.T) {
	m := newTestManager(t, sleepSpawner{sleep: "exit 1"})
	ctx := context.Background()

	agent, err := m.Spawn(ctx, domain.ProviderGLM, "task-3", t.TempDir())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return m.Status(ctx, agent.ID) == domain.AgentFailed
	}, 2*time.Second, 20*time.Millisecond)
}

func TestReap_RemovesOnlyTerminalAgents(t *testing.T) {
	m := newTestManager(t, sleepSpawner{sleep: "true"})
	ctx := context.Background()

	agent, err := m.Spawn(ctx, domain.ProviderGLM, "task-4", t.TempDir())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return m.Status(ctx, agent.ID) == domain.AgentCompleted
	}, 2*time.Second, 20*time.Millisecond)

	reaped := m.Reap(ctx)
	require.Contains(t, reaped, agent.ID)
	require.Equal(t, domain.AgentUnknown, m.Status(ctx, agent.ID))
}

func TestKill_RemovesHeartbeatKey(t *testing.T) {
	m := newTestManager(t, sleepSpawner{sleep: "sleep 5"})
	ctx := context.Background()

	agent, err := m.Spawn(ctx, domain.ProviderDeepSeek, "task-5", t.TempDir())
	require.NoError(t, err)

	require.NoError(t, m.Kill(ctx, agent.ID))

	n, err := m.store.Exists(ctx, heartbeatKey(agent.ID))
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}

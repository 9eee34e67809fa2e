// Package agentmanager spawns, tracks, and reaps the external child
// processes ("agents") that execute claimed tasks. Every agent's liveness is
// published to the coordination store as a heartbeat key so other processes
// (hooks, the dashboard) can observe it without touching the OS process table.
package agentmanager

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/providerregistry"
	"github.com/hekateai/hekate/internal/store"
	"go.uber.org/zap"
)

// heartbeatTTL matches the 90s TTL the rest of the system (hooks, dashboard
// staleness checks) assumes for a live agent.
const heartbeatTTL = 90 * time.Second

// heartbeatInterval is how often the background goroutine refreshes every
// tracked agent's heartbeat key, well inside heartbeatTTL.
const heartbeatInterval = 30 * time.Second

// killWait is how long Kill waits for a graceful exit after SIGTERM before
// escalating to SIGKILL.
const killWait = 10 * time.Second

// Spawner abstracts process creation so tests can substitute a fake binary
// without touching the real provider CLIs.
type Spawner interface {
	Command(ctx context.Context, binary string, args []string, dir string, env []string) *exec.Cmd
}

type execSpawner struct{}

func (execSpawner) Command(ctx context.Context, binary string, args []string, dir string, env []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd
}

type trackedAgent struct {
	agent   domain.Agent
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// Manager owns the set of live child processes.
type Manager struct {
	store   *store.Store
	spawner Spawner
	logger  *zap.Logger

	mu     sync.Mutex
	agents map[string]*trackedAgent

	stopHeartbeat chan struct{}
}

// New builds a Manager and starts its heartbeat-refresh goroutine.
func New(s *store.Store, logger *zap.Logger) *Manager {
	m := &Manager{
		store:         s,
		spawner:       execSpawner{},
		logger:        logger.With(zap.String("component", "agentmanager")),
		agents:        make(map[string]*trackedAgent),
		stopHeartbeat: make(chan struct{}),
	}
	go m.heartbeatLoop()
	return m
}

// WithSpawner overrides the process spawner, for tests.
func (m *Manager) WithSpawner(s Spawner) *Manager {
	m.spawner = s
	return m
}

func heartbeatKey(agentID string) string { return fmt.Sprintf("agent:%s:heartbeat", agentID) }
func taskKey(agentID string) string      { return fmt.Sprintf("agent:%s:task", agentID) }

// Spawn starts a provider's coding binary for taskID in projectDir and
// begins tracking it. The agent ID embeds the provider and a start
// timestamp, matching the scheme the rest of the system expects.
func (m *Manager) Spawn(ctx context.Context, provider domain.Provider, taskID, projectDir string) (domain.Agent, error) {
	agentID := fmt.Sprintf("agent-%s-%d", provider, time.Now().Unix())

	binary, args := providerCommand(provider)
	env := append(providerregistry.EnvSlice(provider), "TASK_ID="+taskID, "AGENT_ID="+agentID,
		"HEKATE_TASK_ID="+taskID, "HEKATE_PROVIDER="+provider.String())

	cmd := m.spawner.Command(context.Background(), binary, args, projectDir, env)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return domain.Agent{}, fmt.Errorf("agentmanager: spawn %s: %w", provider, err)
	}

	agent := domain.Agent{ID: agentID, Provider: provider, TaskID: taskID, Heartbeat: time.Now()}
	ta := &trackedAgent{agent: agent, cmd: cmd, done: make(chan struct{})}

	go func() {
		ta.waitErr = cmd.Wait()
		close(ta.done)
	}()

	m.mu.Lock()
	m.agents[agentID] = ta
	m.mu.Unlock()

	if err := m.store.Set(ctx, heartbeatKey(agentID), "1", heartbeatTTL); err != nil {
		m.logger.Warn("failed to publish initial heartbeat", zap.String("agent_id", agentID), zap.Error(err))
	}
	if err := m.store.Set(ctx, taskKey(agentID), taskID, 0); err != nil {
		m.logger.Warn("failed to publish task binding", zap.String("agent_id", agentID), zap.Error(err))
	}

	return agent, nil
}

// providerCommand names the binary and arguments used to launch a coding
// session for a provider. Claude uses its own CLI directly; every other
// provider goes through the operator's shell function of the same name,
// sourced from .bashrc, matching the deployment the hooks assume.
func providerCommand(p domain.Provider) (string, []string) {
	if p == domain.ProviderClaude {
		return "claude", []string{"--dangerously-skip-permissions"}
	}
	home, _ := os.UserHomeDir()
	bashrc := home + "/.bashrc"
	return "bash", []string{"-c", fmt.Sprintf("source %s && %s --dangerously-skip-permissions", bashrc, p)}
}

// Status reports an agent's liveness as last observed.
func (m *Manager) Status(ctx context.Context, agentID string) domain.AgentState {
	m.mu.Lock()
	ta, ok := m.agents[agentID]
	m.mu.Unlock()
	if !ok {
		return domain.AgentUnknown
	}

	select {
	case <-ta.done:
		if ta.waitErr == nil {
			return domain.AgentCompleted
		}
		return domain.AgentFailed
	default:
	}

	n, err := m.store.Exists(ctx, heartbeatKey(agentID))
	if err != nil || n == 0 {
		return domain.AgentStale
	}
	return domain.AgentRunning
}

// Kill sends SIGTERM, waits up to killWait for a graceful exit, then
// escalates to SIGKILL, and always removes the agent's coordination-store
// registration regardless of how the process ended.
func (m *Manager) Kill(ctx context.Context, agentID string) error {
	m.mu.Lock()
	ta, ok := m.agents[agentID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if ta.cmd.Process != nil {
		_ = ta.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-ta.done:
		case <-time.After(killWait):
			_ = ta.cmd.Process.Kill()
			<-ta.done
		}
	}

	m.mu.Lock()
	delete(m.agents, agentID)
	m.mu.Unlock()

	return m.store.Delete(ctx, heartbeatKey(agentID), taskKey(agentID))
}

// ActiveCount returns the number of agents currently tracked, live or not
// yet reaped, used by the supervisor loop to enforce the pool capacity cap.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.agents)
}

// ActiveCountByProvider returns the number of tracked agents running under
// a specific provider, used to enforce per-provider concurrency caps when
// spawning agents outside the main scheduler tick (e.g. the
// post-tool-use/spawn-agents hook).
func (m *Manager) ActiveCountByProvider(p domain.Provider) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ta := range m.agents {
		if ta.agent.Provider == p {
			n++
		}
	}
	return n
}

// Reap drops every agent that has reached a terminal state from the
// in-process tracking map. It does not touch the coordination store;
// callers that want those keys cleared should Kill the agent instead.
func (m *Manager) Reap(ctx context.Context) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reaped []string
	for id, ta := range m.agents {
		select {
		case <-ta.done:
			reaped = append(reaped, id)
			delete(m.agents, id)
		default:
		}
	}
	return reaped
}

// Shutdown kills every tracked agent, used on supervisor termination.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Kill(ctx, id); err != nil {
			m.logger.Warn("failed to kill agent during shutdown", zap.String("agent_id", id), zap.Error(err))
		}
	}
	close(m.stopHeartbeat)
}

// heartbeatLoop is the single writer refreshing every live agent's
// heartbeat key; Reap is the single reader/writer of the tracking map from
// the scheduler side, so the two never contend beyond the shared mutex.
func (m *Manager) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopHeartbeat:
			return
		case <-ticker.C:
			m.refreshHeartbeats()
		}
	}
}

func (m *Manager) refreshHeartbeats() {
	m.mu.Lock()
	live := make([]string, 0, len(m.agents))
	for id, ta := range m.agents {
		select {
		case <-ta.done:
		default:
			live = append(live, id)
		}
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, id := range live {
		if err := m.store.Set(ctx, heartbeatKey(id), "1", heartbeatTTL); err != nil {
			m.logger.Warn("heartbeat refresh failed", zap.String("agent_id", id), zap.Error(err))
		}
	}
}

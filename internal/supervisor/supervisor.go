// Package supervisor runs the scheduler tick that claims ready tasks and
// hands them to the agent manager: list ready work, route and claim at most
// one task per tick, spawn its agent, then reap finished agents. It is the
// single writer of the in-process agent map; agentmanager's heartbeat
// goroutine is the only other actor touching agent state.
package supervisor

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/hekateai/hekate/internal/agentmanager"
	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/issuestore"
	"github.com/hekateai/hekate/internal/metrics"
	"github.com/hekateai/hekate/internal/router"
	"github.com/hekateai/hekate/internal/store"
	"go.uber.org/zap"
)

// TickInterval is the fixed pause between scheduler iterations.
const TickInterval = 10 * time.Second

// ClaimTTL bounds how long a task claim survives in the coordination store
// before another supervisor instance may retry it.
const ClaimTTL = 1 * time.Hour

// defaultComplexity is assumed for a ready task with no complexity recorded
// in the coordination store (e.g. one created outside the decompose hook).
const defaultComplexity = 5

// Config configures one Supervisor instance.
type Config struct {
	ProjectDir   string
	PoolCapacity int
}

// Supervisor owns one scheduler loop instance.
type Supervisor struct {
	cfg     Config
	store   *store.Store
	issues  *issuestore.Client
	agents  *agentmanager.Manager
	router  *router.Router
	metrics *metrics.Collector
	logger  *zap.Logger
}

// New builds a Supervisor. metrics may be nil, in which case no metrics are recorded.
func New(cfg Config, s *store.Store, issues *issuestore.Client, agents *agentmanager.Manager, r *router.Router, m *metrics.Collector, logger *zap.Logger) *Supervisor {
	if cfg.PoolCapacity <= 0 {
		cfg.PoolCapacity = 1
	}
	return &Supervisor{
		cfg:     cfg,
		store:   s,
		issues:  issues,
		agents:  agents,
		router:  r,
		metrics: m,
		logger:  logger.With(zap.String("component", "supervisor")),
	}
}

func ownerKey(taskID string) string      { return fmt.Sprintf("task:%s:owner", taskID) }
func complexityKey(taskID string) string { return fmt.Sprintf("task:%s:complexity", taskID) }

var (
	planWords   = regexp.MustCompile(`(?i)\b(plan|design|architecture)\b`)
	reviewWords = regexp.MustCompile(`(?i)\b(review|audit)\b`)
	verifyWords = regexp.MustCompile(`(?i)\b(verify|validate|qa)\b`)
	writeWords  = regexp.MustCompile(`(?i)\b(add|implement|fix|write|create|update)\b`)
	readWords   = regexp.MustCompile(`(?i)\b(read|inspect|investigate|analyze)\b`)
	testWords   = regexp.MustCompile(`(?i)\b(test|spec|coverage)\b`)
)

// classifyTaskType infers the routing TaskType from a task's title, since
// the issue tracker itself carries no explicit type field.
func classifyTaskType(title string) router.TaskType {
	switch {
	case planWords.MatchString(title):
		return router.TaskPlanning
	case reviewWords.MatchString(title):
		return router.TaskReview
	case verifyWords.MatchString(title):
		return router.TaskVerification
	default:
		return router.TaskImplementation
	}
}

func deriveFeatures(title string, complexity int) domain.FeatureVector {
	return domain.FeatureVector{
		Complexity:    complexity,
		ToolKind:      "task",
		IsWrite:       writeWords.MatchString(title),
		IsRead:        readWords.MatchString(title),
		IsTestRelated: testWords.MatchString(title),
	}
}

func (s *Supervisor) taskComplexity(ctx context.Context, taskID string) int {
	raw, err := s.store.Get(ctx, complexityKey(taskID))
	if err != nil {
		return defaultComplexity
	}
	var complexity int
	if _, err := fmt.Sscanf(raw, "%d", &complexity); err != nil || complexity < 1 || complexity > 10 {
		return defaultComplexity
	}
	return complexity
}

// RunIteration executes one scheduler tick: list ready tasks, skip already
// claimed ones, route and claim at most one new task, spawn its agent, then
// reap finished agents. It returns the ID of the task it spawned an agent
// for, or "" if it assigned nothing this tick.
func (s *Supervisor) RunIteration(ctx context.Context) (string, error) {
	tasks, err := s.issues.ListReady(ctx, "")
	if err != nil {
		s.logger.Warn("list ready tasks failed", zap.Error(err))
		return "", nil
	}

	assigned := ""
	if s.agents.ActiveCount() < s.cfg.PoolCapacity {
		for _, t := range tasks {
			n, err := s.store.Exists(ctx, ownerKey(t.ID))
			if err != nil {
				s.logger.Warn("owner check failed", zap.String("task_id", t.ID), zap.Error(err))
				continue
			}
			if n > 0 {
				continue
			}

			complexity := s.taskComplexity(ctx, t.ID)
			taskType := classifyTaskType(t.Title)
			domainTask := domain.Task{
				ID:         t.ID,
				Title:      t.Title,
				EpicID:     t.EpicID,
				Complexity: complexity,
				Status:     domain.TaskPending,
				Features:   deriveFeatures(t.Title, complexity),
			}

			decision, err := s.router.Route(ctx, domainTask, taskType)
			if err != nil {
				s.logger.Warn("routing failed", zap.String("task_id", t.ID), zap.Error(err))
				continue
			}

			claimed, err := s.store.ClaimNX(ctx, ownerKey(t.ID), decision.Provider.String(), ClaimTTL)
			if err != nil {
				s.logger.Warn("claim failed", zap.String("task_id", t.ID), zap.Error(err))
				continue
			}
			if !claimed {
				continue // claim-conflict: another supervisor instance got there first
			}

			if ok := s.issues.UpdateMetadata(ctx, t.ID, "owner", decision.Provider.String()); !ok {
				_ = s.store.Delete(ctx, ownerKey(t.ID))
				continue // advisory-claim-failure: reverse the CS claim
			}

			if _, err := s.agents.Spawn(ctx, decision.Provider, t.ID, s.cfg.ProjectDir); err != nil {
				s.logger.Warn("spawn failed", zap.String("task_id", t.ID), zap.Error(err))
				_ = s.store.Delete(ctx, ownerKey(t.ID))
				continue // spawn-failure: do not leave the task claimed, do not retry this tick
			}

			if s.metrics != nil {
				s.metrics.RecordRouted(decision.Provider, complexity, "static")
				s.metrics.RecordAgentSpawned(decision.Provider)
			}
			s.logger.Info("assigned task",
				zap.String("task_id", t.ID),
				zap.String("provider", decision.Provider.String()),
				zap.String("reason", decision.Reason))

			assigned = t.ID
			break // at most one new assignment per tick
		}
	}

	s.agents.Reap(ctx)
	return assigned, nil
}

// Run blocks, executing RunIteration every TickInterval until ctx is
// cancelled, then kills every live agent before returning.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("supervisor shutting down, killing live agents")
			s.agents.Shutdown(context.Background())
			return
		case <-ticker.C:
			if _, err := s.RunIteration(ctx); err != nil {
				s.logger.Warn("iteration failed", zap.Error(err))
			}
		}
	}
}

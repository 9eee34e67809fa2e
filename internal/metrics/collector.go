// Package metrics provides Prometheus instrumentation for the supervisor
// loop and hook subprocesses. This package is internal and should not be
// imported by external projects.
package metrics

import (
	"time"

	"github.com/hekateai/hekate/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds every Prometheus metric the supervisor and hooks report.
type Collector struct {
	tasksRouted       *prometheus.CounterVec
	routingDecisions  *prometheus.CounterVec
	taskOutcomes      *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec
	quotaRemaining    *prometheus.GaugeVec
	quotaWarnings     *prometheus.CounterVec
	agentsSpawned     *prometheus.CounterVec
	agentStateCurrent *prometheus.GaugeVec
	agentTransitions  *prometheus.CounterVec
	epicsActive       prometheus.Gauge
	epicTaskProgress  *prometheus.GaugeVec
	epicsCompleted    prometheus.Counter
	verificationRuns  *prometheus.CounterVec
	memoryWrites      *prometheus.CounterVec
	memoryRecalls     *prometheus.CounterVec
	decomposeCalls    *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers every hekate metric under namespace (typically
// "hekate") and returns the collector used to record them.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.tasksRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_routed_total",
			Help:      "Total number of tasks routed to a provider",
		},
		[]string{"provider", "complexity_bucket"},
	)

	c.routingDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Total routing decisions by which tier of the decision tree resolved them",
		},
		[]string{"tier"}, // static, adaptive_pattern, provider_stats, quota_fallback
	)

	c.taskOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_outcomes_total",
			Help:      "Total task outcomes by provider and result",
		},
		[]string{"provider", "success"},
	)

	c.taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task execution duration from claim to completion",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 2400},
		},
		[]string{"provider"},
	)

	c.quotaRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_remaining_ratio",
			Help:      "Fraction of a provider's quota window remaining, 0 to 1",
		},
		[]string{"provider"},
	)

	c.quotaWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_warnings_total",
			Help:      "Total times a provider crossed its buffer or emergency quota threshold",
		},
		[]string{"provider", "level"}, // buffer, emergency
	)

	c.agentsSpawned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agents_spawned_total",
			Help:      "Total agent processes spawned",
		},
		[]string{"provider"},
	)

	c.agentStateCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents_current",
			Help:      "Current number of agents in each state",
		},
		[]string{"state"},
	)

	c.agentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_state_transitions_total",
			Help:      "Total agent state transitions observed by the supervisor",
		},
		[]string{"from_state", "to_state"},
	)

	c.epicsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "epics_active",
			Help:      "Current number of epics with incomplete tasks",
		},
	)

	c.epicTaskProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "epic_task_progress_ratio",
			Help:      "Fraction of an epic's tasks completed, 0 to 1",
		},
		[]string{"epic_id"},
	)

	c.epicsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "epics_completed_total",
			Help:      "Total epics whose task count and complete count converged",
		},
	)

	c.verificationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_runs_total",
			Help:      "Total verification slot runs by provider and status",
		},
		[]string{"provider", "status"},
	)

	c.memoryWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_writes_total",
			Help:      "Total memory bus writes by pattern type",
		},
		[]string{"pattern_type"},
	)

	c.memoryRecalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_recalls_total",
			Help:      "Total memory bus recalls by recall kind",
		},
		[]string{"kind"}, // recent, semantic
	)

	c.decomposeCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decompose_calls_total",
			Help:      "Total epic decomposition calls by outcome",
		},
		[]string{"status"}, // ok, no_api_key, error
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordRouted records that a task was routed to provider at a given
// complexity, via the decision tree tier that produced the result.
func (c *Collector) RecordRouted(provider domain.Provider, complexity int, tier string) {
	c.tasksRouted.WithLabelValues(provider.String(), complexityBucket(complexity)).Inc()
	c.routingDecisions.WithLabelValues(tier).Inc()
}

// RecordTaskOutcome records a completed task's provider, success, and
// end-to-end duration.
func (c *Collector) RecordTaskOutcome(provider domain.Provider, success bool, duration time.Duration) {
	c.taskOutcomes.WithLabelValues(provider.String(), successLabel(success)).Inc()
	c.taskDuration.WithLabelValues(provider.String()).Observe(duration.Seconds())
}

// SetQuotaRemaining records a provider's remaining quota as a 0..1 ratio.
func (c *Collector) SetQuotaRemaining(provider domain.Provider, ratio float64) {
	c.quotaRemaining.WithLabelValues(provider.String()).Set(ratio)
}

// RecordQuotaWarning records that a provider crossed the buffer or
// emergency quota threshold.
func (c *Collector) RecordQuotaWarning(provider domain.Provider, level string) {
	c.quotaWarnings.WithLabelValues(provider.String(), level).Inc()
}

// RecordAgentSpawned records that the supervisor spawned an agent for provider.
func (c *Collector) RecordAgentSpawned(provider domain.Provider) {
	c.agentsSpawned.WithLabelValues(provider.String()).Inc()
}

// SetAgentsCurrent sets the current gauge count of agents in state.
func (c *Collector) SetAgentsCurrent(state domain.AgentState, count int) {
	c.agentStateCurrent.WithLabelValues(string(state)).Set(float64(count))
}

// RecordAgentTransition records an agent moving from one observed state to another.
func (c *Collector) RecordAgentTransition(from, to domain.AgentState) {
	c.agentTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// SetEpicsActive sets the current count of epics with incomplete tasks.
func (c *Collector) SetEpicsActive(count int) {
	c.epicsActive.Set(float64(count))
}

// SetEpicProgress records an epic's completion ratio.
func (c *Collector) SetEpicProgress(epicID string, ratio float64) {
	c.epicTaskProgress.WithLabelValues(epicID).Set(ratio)
}

// RecordEpicCompleted increments the completed-epics counter.
func (c *Collector) RecordEpicCompleted() {
	c.epicsCompleted.Inc()
}

// RecordVerificationRun records a verification slot transitioning to status
// (pending, complete, expired) for provider.
func (c *Collector) RecordVerificationRun(provider domain.Provider, status domain.VerificationStatus) {
	c.verificationRuns.WithLabelValues(provider.String(), string(status)).Inc()
}

// RecordMemoryWrite records one memory bus write of the given pattern type.
func (c *Collector) RecordMemoryWrite(patternType domain.MemoryPatternType) {
	c.memoryWrites.WithLabelValues(string(patternType)).Inc()
}

// RecordMemoryRecall records one memory bus recall of the given kind
// ("recent" or "semantic").
func (c *Collector) RecordMemoryRecall(kind string) {
	c.memoryRecalls.WithLabelValues(kind).Inc()
}

// RecordDecomposeCall records an epic decomposition attempt's outcome
// ("ok", "no_api_key", or "error").
func (c *Collector) RecordDecomposeCall(status string) {
	c.decomposeCalls.WithLabelValues(status).Inc()
}

func successLabel(success bool) string {
	if success {
		return "true"
	}
	return "false"
}

// complexityBucket groups a 1..10 complexity score into the three bands the
// router itself reasons about.
func complexityBucket(complexity int) string {
	switch {
	case complexity <= 4:
		return "simple"
	case complexity <= 7:
		return "medium"
	default:
		return "complex"
	}
}

package metrics

import (
	"testing"
	"time"

	"github.com/hekateai/hekate/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector("hekate_test_"+t.Name(), zap.NewNop())
}

func counterValue(t *testing.T, c *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.WithLabelValues(labels...).Write(m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.WithLabelValues(labels...).Write(m))
	return m.GetGauge().GetValue()
}

func TestNewCollector(t *testing.T) {
	c := newTestCollector(t)
	require.NotNil(t, c)
}

func TestCollector_RecordRouted(t *testing.T) {
	c := newTestCollector(t)
	c.RecordRouted(domain.ProviderDeepSeek, 2, "static")
	c.RecordRouted(domain.ProviderDeepSeek, 9, "adaptive_pattern")

	require.Equal(t, 1.0, counterValue(t, c.tasksRouted, "deepseek", "simple"))
	require.Equal(t, 1.0, counterValue(t, c.tasksRouted, "deepseek", "complex"))
	require.Equal(t, 1.0, counterValue(t, c.routingDecisions, "static"))
	require.Equal(t, 1.0, counterValue(t, c.routingDecisions, "adaptive_pattern"))
}

func TestCollector_RecordTaskOutcome(t *testing.T) {
	c := newTestCollector(t)
	c.RecordTaskOutcome(domain.ProviderClaude, true, 5*time.Second)
	c.RecordTaskOutcome(domain.ProviderClaude, false, 2*time.Second)

	require.Equal(t, 1.0, counterValue(t, c.taskOutcomes, "claude", "true"))
	require.Equal(t, 1.0, counterValue(t, c.taskOutcomes, "claude", "false"))
}

func TestCollector_QuotaMetrics(t *testing.T) {
	c := newTestCollector(t)
	c.SetQuotaRemaining(domain.ProviderGLM, 0.25)
	c.RecordQuotaWarning(domain.ProviderGLM, "buffer")

	require.Equal(t, 0.25, gaugeValue(t, c.quotaRemaining, "glm"))
	require.Equal(t, 1.0, counterValue(t, c.quotaWarnings, "glm", "buffer"))
}

func TestCollector_AgentMetrics(t *testing.T) {
	c := newTestCollector(t)
	c.RecordAgentSpawned(domain.ProviderOpenRouter)
	c.SetAgentsCurrent(domain.AgentRunning, 3)
	c.RecordAgentTransition(domain.AgentRunning, domain.AgentCompleted)

	require.Equal(t, 1.0, counterValue(t, c.agentsSpawned, "openrouter"))
	require.Equal(t, 3.0, gaugeValue(t, c.agentStateCurrent, "running"))
	require.Equal(t, 1.0, counterValue(t, c.agentTransitions, "running", "completed"))
}

func TestCollector_EpicMetrics(t *testing.T) {
	c := newTestCollector(t)
	c.SetEpicsActive(4)
	c.SetEpicProgress("epic-1", 0.5)
	c.RecordEpicCompleted()

	m := &dto.Metric{}
	require.NoError(t, c.epicsActive.Write(m))
	require.Equal(t, 4.0, m.GetGauge().GetValue())
	require.Equal(t, 0.5, gaugeValue(t, c.epicTaskProgress, "epic-1"))

	m2 := &dto.Metric{}
	require.NoError(t, c.epicsCompleted.Write(m2))
	require.Equal(t, 1.0, m2.GetCounter().GetValue())
}

func TestCollector_VerificationAndMemoryMetrics(t *testing.T) {
	c := newTestCollector(t)
	c.RecordVerificationRun(domain.ProviderDeepSeek, domain.VerificationComplete)
	c.RecordMemoryWrite(domain.PatternBugfix)
	c.RecordMemoryRecall("semantic")
	c.RecordDecomposeCall("ok")

	require.Equal(t, 1.0, counterValue(t, c.verificationRuns, "deepseek", "complete"))
	require.Equal(t, 1.0, counterValue(t, c.memoryWrites, "bugfix"))
	require.Equal(t, 1.0, counterValue(t, c.memoryRecalls, "semantic"))
	require.Equal(t, 1.0, counterValue(t, c.decomposeCalls, "ok"))
}

func TestComplexityBucket(t *testing.T) {
	require.Equal(t, "simple", complexityBucket(1))
	require.Equal(t, "simple", complexityBucket(4))
	require.Equal(t, "medium", complexityBucket(5))
	require.Equal(t, "medium", complexityBucket(7))
	require.Equal(t, "complex", complexityBucket(8))
	require.Equal(t, "complex", complexityBucket(10))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c := newTestCollector(t)
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			c.RecordRouted(domain.ProviderClaude, 5, "static")
			c.RecordTaskOutcome(domain.ProviderClaude, true, time.Second)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	require.Equal(t, 10.0, counterValue(t, c.tasksRouted, "claude", "medium"))
}

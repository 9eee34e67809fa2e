package router

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/pattern"
	"github.com/hekateai/hekate/internal/quota"
	"github.com/hekateai/hekate/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRig(t *testing.T) (*store.Store, *pattern.Learner) {
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

	return s, pattern.New(s)
}

func TestRoute_SimpleComplexityGoesToDeepSeek(t *testing.T) {
	s, p := newTestRig(t)
	r := New(map[domain.Provider]*quota.Tracker{}, Thresholds{}, p, zap.NewNop())

	d, err := r.Route(context.Background(), domain.Task{Complexity: 2}, TaskImplementation)
	require.NoError(t, err)
	require.Equal(t, domain.ProviderDeepSeek, d.Provider)
	_ = s
}

func TestRoute_ComplexGoesToClaudeWhenAvailable(t *testing.T) {
	_, p := newTestRig(t)
	r := New(map[domain.Provider]*quota.Tracker{}, Thresholds{}, p, zap.NewNop())

	d, err := r.Route(context.Background(), domain.Task{Complexity: 9}, TaskImplementation)
	require.NoError(t, err)
	require.Equal(t, domain.ProviderClaude, d.Provider)
}

func TestRoute_ComplexFallsBackToGLMWhenClaudeExhausted(t *testing.T) {
	s, p := newTestRig(t)
	ctx := context.Background()
	claudeQuota := quota.New(s, domain.ProviderClaude, 1, 24, 20)
	_, err := claudeQuota.Increment(ctx) // exhaust the only slot
	require.NoError(t, err)

	r := New(map[domain.Provider]*quota.Tracker{domain.ProviderClaude: claudeQuota}, Thresholds{}, p, zap.NewNop())

	d, err := r.Route(ctx, domain.Task{Complexity: 9}, TaskImplementation)
	require.NoError(t, err)
	require.Equal(t, domain.ProviderGLM, d.Provider)
}

func TestRoute_VerificationPrefersGLM(t *testing.T) {
	_, p := newTestRig(t)
	r := New(map[domain.Provider]*quota.Tracker{}, Thresholds{}, p, zap.NewNop())

	d, err := r.Route(context.Background(), domain.Task{}, TaskVerification)
	require.NoError(t, err)
	require.Equal(t, domain.ProviderGLM, d.Provider)
}

func TestRoute_AdaptivePatternOverridesStaticPolicy(t *testing.T) {
	s, p := newTestRig(t)
	ctx := context.Background()
	features := domain.FeatureVector{Complexity: 2, ToolKind: "Edit"}

	for i := 0; i < 4; i++ {
		require.NoError(t, p.RecordOutcome(ctx, pattern.Outcome{
			Provider: domain.ProviderOpenRouter, Complexity: 2, ToolName: "Edit",
			Features: features, Success: true,
		}))
	}

	r := New(map[domain.Provider]*quota.Tracker{}, Thresholds{}, p, zap.NewNop())
	d, err := r.Route(ctx, domain.Task{Complexity: 2, Features: features}, TaskImplementation)
	require.NoError(t, err)
	require.Equal(t, domain.ProviderOpenRouter, d.Provider)
	_ = s
}

func TestCascadeAdvancesThroughChain(t *testing.T) {
	require.Equal(t, domain.ProviderGLM, Cascade(domain.ProviderDeepSeek))
	require.Equal(t, domain.ProviderOpenRouter, Cascade(domain.ProviderGLM))
	require.Equal(t, domain.ProviderClaude, Cascade(domain.ProviderOpenRouter))
	require.Equal(t, domain.ProviderClaude, Cascade(domain.ProviderClaude))
}

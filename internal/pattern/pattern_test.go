package pattern

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLearner(t *testing.T) *Learner {
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

	return New(s)
}

func TestFeatureHash_StableAndDistinguishing(t *testing.T) {
	a := domain.FeatureVector{Complexity: 5, ToolKind: "Write", IsWrite: true}
	b := domain.FeatureVector{Complexity: 5, ToolKind: "Write", IsWrite: true}
	c := domain.FeatureVector{Complexity: 9, ToolKind: "Read", IsRead: true}

	ha, err := FeatureHash(a)
	require.NoError(t, err)
	hb, err := FeatureHash(b)
	require.NoError(t, err)
	hc, err := FeatureHash(c)
	require.NoError(t, err)

	require.Equal(t, ha, hb)
	require.NotEqual(t, ha, hc)
}

func TestLearner_LookupMissReturnsFalse(t *testing.T) {
	l := newTestLearner(t)
	_, ok, err := l.Lookup(context.Background(), domain.FeatureVector{Complexity: 1})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLearner_RecordOutcomeBuildsPattern(t *testing.T) {
	l := newTestLearner(t)
	ctx := context.Background()
	features := domain.FeatureVector{Complexity: 6, ToolKind: "Edit", IsWrite: true}

	for i := 0; i < 4; i++ {
		err := l.RecordOutcome(ctx, Outcome{
			TaskID: "t1", Provider: domain.ProviderGLM, Complexity: 6,
			ToolName: "Edit", Features: features, Success: i != 0,
		})
		require.NoError(t, err)
	}

	p, ok, err := l.Lookup(ctx, features)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.ProviderGLM, p.Provider)
	require.Equal(t, 4, p.Attempts)
	require.Equal(t, 3, p.Successes)
}

func TestLearner_BestProviderForComplexityPicksHighestSuccessRate(t *testing.T) {
	l := newTestLearner(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.RecordOutcome(ctx, Outcome{
			Provider: domain.ProviderDeepSeek, Complexity: 3, ToolName: "Edit",
			Features: domain.FeatureVector{Complexity: 3}, Success: i < 2,
		}))
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, l.RecordOutcome(ctx, Outcome{
			Provider: domain.ProviderGLM, Complexity: 3, ToolName: "Edit",
			Features: domain.FeatureVector{Complexity: 3, ToolKind: "x"}, Success: i < 4,
		}))
	}

	best, ok, err := l.BestProviderForComplexity(ctx, 3, 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.ProviderGLM, best.Provider)
}

func TestLearner_BestProviderForComplexityFiltersByMinAttempts(t *testing.T) {
	l := newTestLearner(t)
	ctx := context.Background()

	// Claude: 2 attempts, both successful (100% rate, but under-qualified).
	for i := 0; i < 2; i++ {
		require.NoError(t, l.RecordOutcome(ctx, Outcome{
			Provider: domain.ProviderClaude, Complexity: 7, ToolName: "Edit",
			Features: domain.FeatureVector{Complexity: 7}, Success: true,
		}))
	}
	// GLM: 5 attempts, 4 successful (80% rate, qualified).
	for i := 0; i < 5; i++ {
		require.NoError(t, l.RecordOutcome(ctx, Outcome{
			Provider: domain.ProviderGLM, Complexity: 7, ToolName: "Edit",
			Features: domain.FeatureVector{Complexity: 7, ToolKind: "x"}, Success: i < 4,
		}))
	}

	best, ok, err := l.BestProviderForComplexity(ctx, 7, 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.ProviderGLM, best.Provider, "claude's perfect-but-unqualified record must not shadow the qualified provider")
}

func TestLearner_RecordOutcomeConcurrentSuccessesNeverExceedAttempts(t *testing.T) {
	l := newTestLearner(t)
	ctx := context.Background()
	features := domain.FeatureVector{Complexity: 4, ToolKind: "Bash"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.RecordOutcome(ctx, Outcome{
				Provider: domain.ProviderClaude, Complexity: 4, ToolName: "Bash",
				Features: features, Success: true,
			})
		}()
	}
	wg.Wait()

	p, ok, err := l.Lookup(ctx, features)
	require.NoError(t, err)
	require.True(t, ok)
	require.LessOrEqual(t, p.Successes, p.Attempts)
}

package memorybus

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/store"
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

func TestClassify(t *testing.T) {
	cases := map[string]domain.MemoryPatternType{
		"fix the crash in login":       domain.PatternBugfix,
		"add unit tests for parser":    domain.PatternTest,
		"refactor the router package":  domain.PatternRefactor,
		"implement new dashboard page": domain.PatternFeature,
		"configure CI pipeline":        domain.PatternSetup,
		"look at the weather today":    domain.PatternGeneral,
	}
	for input, want := range cases {
		require.Equal(t, want, Classify(input), input)
	}
}

func TestSanitize_StripsQuotesAndPaths(t *testing.T) {
	in := `edit /root/module/secret.txt because config says "token=abc"`
	out := Sanitize(in)
	require.NotContains(t, out, "/root/module/secret.txt")
	require.NotContains(t, out, "token=abc")
	require.Contains(t, out, "<path>")
}

func TestBus_RecordAndRecallRecent(t *testing.T) {
	s := newTestStore(t)
	bus := New(s, nil, nil, zap.NewNop())
	ctx := context.Background()

	err := bus.Record(ctx, domain.MemoryEntry{
		Tool:            "edit",
		OriginalCommand: "fix bug in \"auth.go\"",
		TaskID:          "task-1",
		Provider:        domain.ProviderClaude,
		Success:         true,
	})
	require.NoError(t, err)

	all, err := bus.RecallRecent(ctx, "", nil, 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, domain.PatternBugfix, all[0].PatternType)
	require.Equal(t, "claude", all[0].ProviderName)

	byType, err := bus.RecallRecent(ctx, domain.PatternBugfix, nil, 10)
	require.NoError(t, err)
	require.Len(t, byType, 1)

	byProvider := domain.ProviderGLM
	none, err := bus.RecallRecent(ctx, "", &byProvider, 10)
	require.NoError(t, err)
	require.Len(t, none, 0)
}

func TestBus_RecordWithSemanticIndex(t *testing.T) {
	s := newTestStore(t)
	idx := NewInMemoryVectorIndex(nil, nil)
	embed := newFakeEmbedChain()
	bus := New(s, idx, embed, zap.NewNop())
	ctx := context.Background()

	err := bus.Record(ctx, domain.MemoryEntry{
		Tool:            "edit",
		OriginalCommand: "add unit tests for router",
		TaskID:          "task-2",
		Provider:        domain.ProviderDeepSeek,
		Success:         true,
	})
	require.NoError(t, err)

	results, err := bus.RecallSemantic(ctx, "add unit tests for router", 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestBus_RecallSemanticNoopWithoutVectorIndex(t *testing.T) {
	s := newTestStore(t)
	bus := New(s, nil, nil, zap.NewNop())
	results, err := bus.RecallSemantic(context.Background(), "anything", 5, nil)
	require.NoError(t, err)
	require.Nil(t, results)
}

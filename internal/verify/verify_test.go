package verify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPipeline(t *testing.T) (*Pipeline, *miniredis.Miniredis) {
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

	return New(s), mr
}

func TestProvidersForComplexity(t *testing.T) {
	require.Equal(t, []domain.Provider{domain.ProviderDeepSeek}, ProvidersForComplexity(3))
	require.Equal(t, []domain.Provider{domain.ProviderDeepSeek, domain.ProviderGLM}, ProvidersForComplexity(6))
	require.Equal(t, []domain.Provider{domain.ProviderGLM, domain.ProviderClaude}, ProvidersForComplexity(9))
}

func TestPrefetch_QueuesOneSlotPerCascadeProvider(t *testing.T) {
	p, mr := newTestPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.Prefetch(ctx, "task-1", 6))

	slots, err := p.store.ScanPrefix(ctx, "verify:prefetch:task-1:")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	_ = mr
}

func TestCheckAndAdvance_LeavesFreshSlotsPending(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()
	require.NoError(t, p.Prefetch(ctx, "task-2", 3))

	slots, err := p.CheckAndAdvance(ctx, "task-2")
	require.NoError(t, err)
	require.Empty(t, slots)
}

func TestCheckAndAdvance_ResolvesAgedSlots(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()
	require.NoError(t, p.Prefetch(ctx, "task-3", 3))

	// Slot age is measured against the wall clock, so backdate the stored slot.
	key := slotKey("task-3", domain.ProviderDeepSeek)
	var rec slotRecord
	require.NoError(t, p.store.GetJSON(ctx, key, &rec))
	rec.Timestamp = time.Now().Add(-(AgeBeforeComplete + time.Second)).Unix()
	require.NoError(t, p.store.SetJSON(ctx, key, rec, SlotTTL))

	slots, err := p.CheckAndAdvance(ctx, "task-3")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.Equal(t, domain.VerificationComplete, slots[0].Status)
}

func TestRun_IsDeterministicForSamePair(t *testing.T) {
	r1, c1 := Run(domain.ProviderGLM, 6)
	r2, c2 := Run(domain.ProviderGLM, 6)
	require.Equal(t, r1, r2)
	require.Equal(t, c1, c2)
}

func TestFormatResults_EmptyIsEmptyString(t *testing.T) {
	require.Equal(t, "", FormatResults(nil))
}

func TestFormatResults_MentionsMergeReadyOnPass(t *testing.T) {
	out := FormatResults([]domain.VerificationSlot{{Provider: domain.ProviderGLM, Result: "PASS", Confidence: 0.9}})
	require.Contains(t, out, "ready for merge")
}

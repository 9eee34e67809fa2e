package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0

	s, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_GetSetMiss(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	require.True(t, IsMiss(err))

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestStore_ClaimNXIsExclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.ClaimNX(ctx, "task:1:owner", "agent-a", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.ClaimNX(ctx, "task:1:owner", "agent-b", time.Hour)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_IncrBy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.IncrBy(ctx, "counter", 5)
	require.NoError(t, err)
	require.EqualValues(t, 5, v)

	v, err = s.IncrBy(ctx, "counter", 3)
	require.NoError(t, err)
	require.EqualValues(t, 8, v)
}

func TestStore_LPushTrimBoundsLength(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.LPushTrim(ctx, "fifo", 5, "entry"))
	}

	vals, err := s.LRange(ctx, "fifo", 100)
	require.NoError(t, err)
	require.Len(t, vals, 5)
}

func TestStore_ScanPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "task:1:owner", "a", time.Minute))
	require.NoError(t, s.Set(ctx, "task:2:owner", "b", time.Minute))
	require.NoError(t, s.Set(ctx, "other:key", "c", time.Minute))

	keys, err := s.ScanPrefix(ctx, "task:")
	require.NoError(t, err)
	require.Len(t, keys, 2)
}

func TestStore_JSONRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}

	in := payload{Name: "x", N: 7}
	require.NoError(t, s.SetJSON(ctx, "obj", in, time.Minute))

	var out payload
	require.NoError(t, s.GetJSON(ctx, "obj", &out))
	require.Equal(t, in, out)
}

func TestStore_DeleteAndExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	n, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	require.NoError(t, s.Delete(ctx, "k"))
	n, err = s.Exists(ctx, "k")
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}

func TestStore_OperationsFailAfterClose(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
}

package memorybus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInMemoryVectorIndex_SearchRanksBySimilarity(t *testing.T) {
	idx := NewInMemoryVectorIndex(nil, nil)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, Entry{ID: "a", Embedding: []float64{1, 0}, DocText: "run tests"}))
	require.NoError(t, idx.Index(ctx, Entry{ID: "b", Embedding: []float64{0, 1}, DocText: "fix bug"}))
	require.NoError(t, idx.Index(ctx, Entry{ID: "c", Embedding: []float64{0.9, 0.1}, DocText: "run lint"}))

	results, err := idx.Search(ctx, []float64{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "a", results[0].Entry.ID)
	require.Equal(t, "c", results[1].Entry.ID)
}

func TestInMemoryVectorIndex_SearchAppliesMetadataFilter(t *testing.T) {
	idx := NewInMemoryVectorIndex(nil, nil)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, Entry{
		ID: "a", Embedding: []float64{1, 0},
		Metadata: map[string]any{"provider": "claude"},
	}))
	require.NoError(t, idx.Index(ctx, Entry{
		ID: "b", Embedding: []float64{1, 0},
		Metadata: map[string]any{"provider": "glm"},
	}))

	results, err := idx.Search(ctx, []float64{1, 0}, 5, map[string]any{"provider": "glm"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "b", results[0].Entry.ID)
}

func TestInMemoryVectorIndex_IndexRejectsEmptyIDOrEmbedding(t *testing.T) {
	idx := NewInMemoryVectorIndex(nil, nil)
	ctx := context.Background()

	require.Error(t, idx.Index(ctx, Entry{Embedding: []float64{1}}))
	require.Error(t, idx.Index(ctx, Entry{ID: "x"}))
}

func TestInMemoryVectorIndex_SearchTopKClampsToAvailable(t *testing.T) {
	idx := NewInMemoryVectorIndex(nil, nil)
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, Entry{ID: "a", Embedding: []float64{1, 0}}))

	results, err := idx.Search(ctx, []float64{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestCosineSimilarity(t *testing.T) {
	require.InDelta(t, 1.0, cosineSimilarity([]float64{1, 1}, []float64{2, 2}), 1e-9)
	require.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	require.Equal(t, 0.0, cosineSimilarity(nil, []float64{1}))
	require.Equal(t, 0.0, cosineSimilarity([]float64{1}, []float64{1, 2}))
}

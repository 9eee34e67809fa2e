package memorybus

import (
	"context"
	"hash/fnv"

	"github.com/hekateai/hekate/internal/embedding"
	"go.uber.org/zap"
)

// fakeEmbedProvider derives a deterministic low-dimensional vector from the
// input text's hash, avoiding any network call in tests.
type fakeEmbedProvider struct{}

func (fakeEmbedProvider) Name() string { return "fake" }

func (fakeEmbedProvider) Embed(_ context.Context, text string) ([]float64, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := float64(h.Sum32())
	return []float64{seed, -seed, seed / 2}, nil
}

func newFakeEmbedChain() *embedding.Chain {
	return embedding.NewChain(zap.NewNop(), fakeEmbedProvider{})
}

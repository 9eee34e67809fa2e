package memorybus

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Entry is one semantic memory record: an embedded command pattern plus the
// metadata the memory bus filters and displays on recall.
type Entry struct {
	ID        string
	Embedding []float64
	DocText   string
	Metadata  map[string]any
}

// SearchResult pairs an indexed entry with its similarity score against a
// query vector.
type SearchResult struct {
	Entry Entry
	Score float64
}

// VectorIndex stores and searches embedded command patterns. Implementations
// must be safe for concurrent use, since many short-lived hook processes
// may query and index concurrently.
type VectorIndex interface {
	Index(ctx context.Context, e Entry) error
	Search(ctx context.Context, query []float64, topK int, filter map[string]any) ([]SearchResult, error)
}

// InMemoryVectorIndex is a cosine-similarity index over an in-process map,
// adapted from the teacher's in-memory vector store for use without a
// standalone Qdrant deployment (tests, local development). The wiring
// package does not select it: with no embedding key configured, semantic
// memory is disabled instead.
type InMemoryVectorIndex struct {
	mu     sync.RWMutex
	items  map[string]Entry
	now    func() time.Time
	logger *zap.Logger
}

// NewInMemoryVectorIndex builds an empty index. now defaults to time.Now
// when nil. Search does not consult now: filters match metadata by exact
// equality only, and "_gte" range keys are not supported.
func NewInMemoryVectorIndex(now func() time.Time, logger *zap.Logger) *InMemoryVectorIndex {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryVectorIndex{
		items:  make(map[string]Entry),
		now:    now,
		logger: logger.With(zap.String("component", "vectorindex_inmemory")),
	}
}

func (s *InMemoryVectorIndex) Index(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.ID == "" {
		return fmt.Errorf("memorybus: entry id is required")
	}
	if len(e.Embedding) == 0 {
		return fmt.Errorf("memorybus: entry embedding is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[e.ID] = Entry{
		ID:        e.ID,
		Embedding: append([]float64(nil), e.Embedding...),
		DocText:   e.DocText,
		Metadata:  cloneMap(e.Metadata),
	}
	return nil
}

func (s *InMemoryVectorIndex) Search(ctx context.Context, query []float64, topK int, filter map[string]any) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]SearchResult, 0, len(s.items))
	for _, e := range s.items {
		if !matchesFilter(e.Metadata, filter) {
			continue
		}
		results = append(results, SearchResult{
			Entry: Entry{ID: e.ID, Embedding: e.Embedding, DocText: e.DocText, Metadata: cloneMap(e.Metadata)},
			Score: cosineSimilarity(query, e.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

func matchesFilter(metadata map[string]any, filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	if metadata == nil {
		return false
	}
	for k, v := range filter {
		mv, ok := metadata[k]
		if !ok || !reflect.DeepEqual(mv, v) {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

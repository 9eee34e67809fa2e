// Package verify manages the verification-slot lifecycle: a task's write
// operations queue one slot per cascade provider, slots age from pending to
// complete, and completed results get surfaced back into the next tool call.
//
// The actual verification call (run the test suite, ask a provider to
// review the diff) is an external LLM/CI concern and out of scope here; Run
// is a stable, deterministic stand-in so the rest of the pipeline (queuing,
// aging, formatting, merge-readiness hints) can be built and tested against
// a contract a real implementation will later fill in.
package verify

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"time"

	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/store"
)

// SlotTTL is how long a verification slot (pending or complete) survives in
// the coordination store before it silently expires.
const SlotTTL = 10 * time.Minute

// AgeBeforeComplete is how long a pending slot must exist before
// CheckAndAdvance will resolve it.
const AgeBeforeComplete = 30 * time.Second

// Pipeline queues and resolves verification slots.
type Pipeline struct {
	store *store.Store
}

// New builds a Pipeline.
func New(s *store.Store) *Pipeline {
	return &Pipeline{store: s}
}

// ProvidersForComplexity returns the verification cascade for a task's
// complexity: deepseek alone for simple tasks, deepseek then glm for
// medium, glm then claude for complex ones.
func ProvidersForComplexity(complexity int) []domain.Provider {
	switch {
	case complexity <= 4:
		return []domain.Provider{domain.ProviderDeepSeek}
	case complexity <= 7:
		return []domain.Provider{domain.ProviderDeepSeek, domain.ProviderGLM}
	default:
		return []domain.Provider{domain.ProviderGLM, domain.ProviderClaude}
	}
}

func slotKey(taskID string, provider domain.Provider) string {
	return fmt.Sprintf("verify:prefetch:%s:%s", taskID, provider)
}

type slotRecord struct {
	TaskID      string  `json:"task_id"`
	Provider    string  `json:"provider"`
	Complexity  int     `json:"complexity"`
	Status      string  `json:"status"`
	Result      string  `json:"result,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Timestamp   int64   `json:"timestamp"`
	CompletedAt int64   `json:"completed_at,omitempty"`
}

// Prefetch queues one pending verification slot per cascade provider for
// taskID, each with a 10-minute TTL.
func (p *Pipeline) Prefetch(ctx context.Context, taskID string, complexity int) error {
	now := time.Now()
	for _, provider := range ProvidersForComplexity(complexity) {
		rec := slotRecord{
			TaskID:     taskID,
			Provider:   provider.String(),
			Complexity: complexity,
			Status:     string(domain.VerificationPending),
			Timestamp:  now.Unix(),
		}
		if err := p.store.SetJSON(ctx, slotKey(taskID, provider), rec, SlotTTL); err != nil {
			return fmt.Errorf("verify: prefetch %s/%s: %w", taskID, provider, err)
		}
	}
	return nil
}

// CheckAndAdvance resolves any pending slot for taskID at least
// AgeBeforeComplete old to complete, using the deterministic stub result, and
// returns every complete slot (newly resolved or already resolved) in
// stable completion order.
func (p *Pipeline) CheckAndAdvance(ctx context.Context, taskID string) ([]domain.VerificationSlot, error) {
	keys, err := p.store.ScanPrefix(ctx, fmt.Sprintf("verify:prefetch:%s:", taskID))
	if err != nil {
		return nil, fmt.Errorf("verify: scan slots: %w", err)
	}

	var out []domain.VerificationSlot
	now := time.Now()

	for _, key := range keys {
		var rec slotRecord
		if err := p.store.GetJSON(ctx, key, &rec); err != nil {
			if store.IsMiss(err) {
				continue
			}
			return nil, fmt.Errorf("verify: load slot %q: %w", key, err)
		}

		provider, _ := domain.ParseProvider(rec.Provider)

		if domain.VerificationStatus(rec.Status) == domain.VerificationPending {
			age := now.Sub(time.Unix(rec.Timestamp, 0))
			if age >= AgeBeforeComplete {
				result, confidence := Run(provider, rec.Complexity)
				rec.Status = string(domain.VerificationComplete)
				rec.Result = result
				rec.Confidence = confidence
				rec.CompletedAt = now.Unix()
				if err := p.store.SetJSON(ctx, key, rec, SlotTTL); err != nil {
					return nil, fmt.Errorf("verify: advance slot %q: %w", key, err)
				}
			}
		}

		if domain.VerificationStatus(rec.Status) == domain.VerificationComplete {
			out = append(out, domain.VerificationSlot{
				TaskID:      rec.TaskID,
				Provider:    provider,
				Complexity:  rec.Complexity,
				Status:      domain.VerificationComplete,
				Result:      rec.Result,
				Confidence:  rec.Confidence,
				CreatedAt:   time.Unix(rec.Timestamp, 0),
				CompletedAt: time.Unix(rec.CompletedAt, 0),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out, nil
}

// Run is the verification stub: a deterministic pass/needs-review result
// seeded by (provider, complexity) so repeated calls for the same pair
// agree, with higher complexity skewing toward lower pass rates.
func Run(provider domain.Provider, complexity int) (result string, confidence float64) {
	seed := fnv.New64a()
	fmt.Fprintf(seed, "%s:%d", provider, complexity)
	rng := rand.New(rand.NewSource(int64(seed.Sum64())))

	var passRate float64
	switch {
	case complexity <= 4:
		passRate = 0.95
	case complexity <= 7:
		passRate = 0.85
	default:
		passRate = 0.75
	}

	if rng.Float64() < passRate {
		return "PASS", 0.9
	}
	return "NEEDS_REVIEW", 0.5
}

// FormatResults renders slots as the human-readable block injected into a
// tool call's context, matching the symbol/column layout hook output used.
func FormatResults(slots []domain.VerificationSlot) string {
	if len(slots) == 0 {
		return ""
	}

	out := "Prefetched verification results:\n\n"
	readyForMerge := false
	for _, s := range slots {
		symbol := "≈"
		if s.Result == "PASS" {
			symbol = "✓"
			readyForMerge = true
		}
		out += fmt.Sprintf("  %s %-10s | %-12s | confidence %.2f\n", symbol, s.Provider, s.Result, s.Confidence)
	}
	if readyForMerge {
		out += "\nNote: At least one verification passed. Task may be ready for merge.\n"
	}
	return out
}

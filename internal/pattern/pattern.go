// Package pattern learns routing quality from task outcomes: a per-feature
// routing pattern (did this shape of task succeed with this provider?) and
// per-provider / per-(provider,complexity) aggregate success stats.
package pattern

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/store"
	"github.com/redis/go-redis/v9"
)

// Learner reads and updates the pattern/stats records in the coordination store.
type Learner struct {
	store *store.Store
}

// New builds a Learner.
func New(s *store.Store) *Learner {
	return &Learner{store: s}
}

// patternTTL matches the original hook scripts' 24h pattern expiry.
const patternTTL = 24 * time.Hour

// casRetries bounds the optimistic compare-and-set loop used for every
// read-modify-write against a shared JSON blob. After casRetries failed
// attempts the update is dropped and the transaction error is returned, so
// a heavily contended write is lost rather than retried indefinitely.
const casRetries = 5

// FeatureHash returns a stable identifier for a feature vector, computed
// over its canonical JSON encoding with FNV-1a. Unlike a salted in-process
// hash, this value is stable across restarts and safe to persist as a key.
func FeatureHash(f domain.FeatureVector) (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("pattern: hash features: %w", err)
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return fmt.Sprintf("%x", h.Sum64()), nil
}

type patternRecord struct {
	Features  domain.FeatureVector `json:"features"`
	Provider  string               `json:"provider"`
	Attempts  int                  `json:"attempts"`
	Successes int                  `json:"successes"`
	CreatedAt int64                `json:"created_at"`
	LastUsed  int64                `json:"last_used"`
}

func patternKey(hash string) string { return fmt.Sprintf("routing:pattern:%s", hash) }

// Lookup returns the learned routing pattern for a feature vector, if any.
func (l *Learner) Lookup(ctx context.Context, f domain.FeatureVector) (domain.RoutingPattern, bool, error) {
	hash, err := FeatureHash(f)
	if err != nil {
		return domain.RoutingPattern{}, false, err
	}

	var rec patternRecord
	if err := l.store.GetJSON(ctx, patternKey(hash), &rec); err != nil {
		if store.IsMiss(err) {
			return domain.RoutingPattern{}, false, nil
		}
		return domain.RoutingPattern{}, false, err
	}

	provider, ok := domain.ParseProvider(rec.Provider)
	if !ok {
		return domain.RoutingPattern{}, false, nil
	}

	return domain.RoutingPattern{
		FeatureHash: hash,
		Provider:    provider,
		Attempts:    rec.Attempts,
		Successes:   rec.Successes,
		LastUsed:    time.Unix(rec.LastUsed, 0),
	}, true, nil
}

type statsRecord struct {
	TotalTasks      int     `json:"total_tasks"`
	SuccessfulTasks int     `json:"successful_tasks"`
	SuccessRate     float64 `json:"success_rate"`
	CreatedAt       int64   `json:"created_at,omitempty"`
}

type complexityStatsRecord struct {
	Attempts    int     `json:"attempts"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
}

func providerStatsKey(p domain.Provider) string { return fmt.Sprintf("provider:stats:%s", p) }
func complexityStatsKey(p domain.Provider, complexity int) string {
	return fmt.Sprintf("provider:complexity:%s:%d", p, complexity)
}

// BestProviderForComplexity scans every provider's complexity-scoped stats
// for the given complexity, discards any provider with fewer than
// minAttempts recorded attempts, and returns the one with the highest
// success rate among the remaining eligible candidates.
func (l *Learner) BestProviderForComplexity(ctx context.Context, complexity, minAttempts int) (domain.ProviderStats, bool, error) {
	var best domain.ProviderStats
	found := false

	for _, p := range domain.AllProviders() {
		var rec complexityStatsRecord
		if err := l.store.GetJSON(ctx, complexityStatsKey(p, complexity), &rec); err != nil {
			if store.IsMiss(err) {
				continue
			}
			return domain.ProviderStats{}, false, err
		}
		if rec.Attempts < minAttempts {
			continue
		}

		stats := domain.ProviderStats{
			Provider:        p,
			Complexity:      complexity,
			TotalTasks:      rec.Attempts,
			SuccessfulTasks: rec.Successes,
		}
		if !found || stats.SuccessRate() > best.SuccessRate() {
			best = stats
			found = true
		}
	}

	return best, found, nil
}

// Outcome is one recorded tool-use result fed into the learner.
type Outcome struct {
	TaskID     string
	Provider   domain.Provider
	Complexity int
	ToolName   string
	Features   domain.FeatureVector
	Success    bool
}

const routingHistoryKey = "routing:history"
const routingHistoryCap = 1000

// RecordOutcome appends the outcome to routing history and updates the
// feature-hash pattern, the provider-wide stats, and the
// (provider,complexity) stats, each via an optimistic compare-and-set loop
// bounded by casRetries.
func (l *Learner) RecordOutcome(ctx context.Context, o Outcome) error {
	now := time.Now().Unix()

	historyEntry := map[string]any{
		"task_id":    o.TaskID,
		"provider":   o.Provider.String(),
		"complexity": o.Complexity,
		"tool_name":  o.ToolName,
		"success":    o.Success,
		"timestamp":  now,
		"features":   o.Features,
	}
	data, err := json.Marshal(historyEntry)
	if err != nil {
		return fmt.Errorf("pattern: marshal history entry: %w", err)
	}
	if err := l.store.LPushTrim(ctx, routingHistoryKey, routingHistoryCap, string(data)); err != nil {
		return fmt.Errorf("pattern: record history: %w", err)
	}

	hash, err := FeatureHash(o.Features)
	if err != nil {
		return err
	}
	if err := l.casUpdatePattern(ctx, hash, o, now); err != nil {
		return err
	}
	if err := l.casUpdateProviderStats(ctx, o, now); err != nil {
		return err
	}
	if err := l.casUpdateComplexityStats(ctx, o); err != nil {
		return err
	}
	return nil
}

func (l *Learner) casUpdatePattern(ctx context.Context, hash string, o Outcome, now int64) error {
	key := patternKey(hash)
	client := l.store.Client()

	txf := func(tx *redis.Tx) error {
		var rec patternRecord
		raw, err := tx.Get(ctx, key).Result()
		switch {
		case err == redis.Nil:
			rec = patternRecord{
				Features:  o.Features,
				Provider:  o.Provider.String(),
				Attempts:  1,
				Successes: boolToInt(o.Success),
				CreatedAt: now,
				LastUsed:  now,
			}
		case err != nil:
			return err
		default:
			if jsonErr := json.Unmarshal([]byte(raw), &rec); jsonErr != nil {
				return jsonErr
			}
			rec.Attempts++
			if o.Success {
				rec.Successes++
			}
			rec.LastUsed = now
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, patternTTL)
			return nil
		})
		return err
	}

	err := client.Watch(ctx, txf, key)
	for attempt := 1; err == redis.TxFailedErr && attempt < casRetries; attempt++ {
		err = client.Watch(ctx, txf, key)
	}
	if err != nil {
		return fmt.Errorf("pattern: update pattern %q: %w", key, err)
	}
	return nil
}

func (l *Learner) casUpdateProviderStats(ctx context.Context, o Outcome, now int64) error {
	key := providerStatsKey(o.Provider)
	client := l.store.Client()

	txf := func(tx *redis.Tx) error {
		var rec statsRecord
		raw, err := tx.Get(ctx, key).Result()
		switch {
		case err == redis.Nil:
			rec = statsRecord{TotalTasks: 1, SuccessfulTasks: boolToInt(o.Success), CreatedAt: now}
		case err != nil:
			return err
		default:
			if jsonErr := json.Unmarshal([]byte(raw), &rec); jsonErr != nil {
				return jsonErr
			}
			rec.TotalTasks++
			if o.Success {
				rec.SuccessfulTasks++
			}
		}
		rec.SuccessRate = float64(rec.SuccessfulTasks) / float64(rec.TotalTasks)

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	err := client.Watch(ctx, txf, key)
	for attempt := 1; err == redis.TxFailedErr && attempt < casRetries; attempt++ {
		err = client.Watch(ctx, txf, key)
	}
	if err != nil {
		return fmt.Errorf("pattern: update provider stats %q: %w", key, err)
	}
	return nil
}

func (l *Learner) casUpdateComplexityStats(ctx context.Context, o Outcome) error {
	key := complexityStatsKey(o.Provider, o.Complexity)
	client := l.store.Client()

	txf := func(tx *redis.Tx) error {
		var rec complexityStatsRecord
		raw, err := tx.Get(ctx, key).Result()
		switch {
		case err == redis.Nil:
			rec = complexityStatsRecord{Attempts: 1, Successes: boolToInt(o.Success)}
		case err != nil:
			return err
		default:
			if jsonErr := json.Unmarshal([]byte(raw), &rec); jsonErr != nil {
				return jsonErr
			}
			rec.Attempts++
			if o.Success {
				rec.Successes++
			}
		}
		rec.SuccessRate = float64(rec.Successes) / float64(rec.Attempts)

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	err := client.Watch(ctx, txf, key)
	for attempt := 1; err == redis.TxFailedErr && attempt < casRetries; attempt++ {
		err = client.Watch(ctx, txf, key)
	}
	if err != nil {
		return fmt.Errorf("pattern: update complexity stats %q: %w", key, err)
	}
	return nil
}

// ProviderStats returns a provider's all-complexity aggregate stats, if any
// outcomes have been recorded for it yet.
func (l *Learner) ProviderStats(ctx context.Context, p domain.Provider) (domain.ProviderStats, bool, error) {
	var rec statsRecord
	if err := l.store.GetJSON(ctx, providerStatsKey(p), &rec); err != nil {
		if store.IsMiss(err) {
			return domain.ProviderStats{}, false, nil
		}
		return domain.ProviderStats{}, false, err
	}
	return domain.ProviderStats{
		Provider:        p,
		TotalTasks:      rec.TotalTasks,
		SuccessfulTasks: rec.SuccessfulTasks,
	}, true, nil
}

// ComplexityStats returns a (provider, complexity) aggregate, if recorded.
func (l *Learner) ComplexityStats(ctx context.Context, p domain.Provider, complexity int) (domain.ProviderStats, bool, error) {
	var rec complexityStatsRecord
	if err := l.store.GetJSON(ctx, complexityStatsKey(p, complexity), &rec); err != nil {
		if store.IsMiss(err) {
			return domain.ProviderStats{}, false, nil
		}
		return domain.ProviderStats{}, false, err
	}
	return domain.ProviderStats{
		Provider:        p,
		Complexity:      complexity,
		TotalTasks:      rec.Attempts,
		SuccessfulTasks: rec.Successes,
	}, true, nil
}

// HistoryEntry is one decoded entry from the routing history FIFO.
type HistoryEntry struct {
	TaskID     string               `json:"task_id"`
	Provider   string               `json:"provider"`
	Complexity int                  `json:"complexity"`
	ToolName   string               `json:"tool_name"`
	Success    bool                 `json:"success"`
	Timestamp  int64                `json:"timestamp"`
	Features   domain.FeatureVector `json:"features"`
}

// RecentHistory returns up to limit of the most recently recorded routing
// outcomes, newest first.
func (l *Learner) RecentHistory(ctx context.Context, limit int64) ([]HistoryEntry, error) {
	raw, err := l.store.LRange(ctx, routingHistoryKey, limit)
	if err != nil {
		return nil, fmt.Errorf("pattern: read history: %w", err)
	}
	out := make([]HistoryEntry, 0, len(raw))
	for _, r := range raw {
		var e HistoryEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// AllPatterns returns every learned routing pattern currently in the store,
// keyed by feature hash, by scanning the pattern: key namespace.
func (l *Learner) AllPatterns(ctx context.Context) ([]domain.RoutingPattern, error) {
	keys, err := l.store.ScanPrefix(ctx, "routing:pattern:")
	if err != nil {
		return nil, fmt.Errorf("pattern: scan patterns: %w", err)
	}
	out := make([]domain.RoutingPattern, 0, len(keys))
	for _, key := range keys {
		var rec patternRecord
		if err := l.store.GetJSON(ctx, key, &rec); err != nil {
			if store.IsMiss(err) {
				continue
			}
			return nil, err
		}
		provider, ok := domain.ParseProvider(rec.Provider)
		if !ok {
			continue
		}
		hash := key[len("routing:pattern:"):]
		out = append(out, domain.RoutingPattern{
			FeatureHash: hash,
			Provider:    provider,
			Attempts:    rec.Attempts,
			Successes:   rec.Successes,
			LastUsed:    time.Unix(rec.LastUsed, 0),
		})
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

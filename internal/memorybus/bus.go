package memorybus

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/embedding"
	"github.com/hekateai/hekate/internal/store"
	"go.uber.org/zap"
)

// FIFO sizing and retention, matching spec.md §4.7's three recent-memory views.
const (
	recentAllKey      = "memory:recent:all"
	recentAllCap      = 100
	recentAllTTL      = 1 * time.Hour
	recentTypeCap     = 50
	recentTypeTTL     = 2 * time.Hour
	recentProviderCap = 50
	recentProviderTTL = 1 * time.Hour
)

func recentTypeKey(t domain.MemoryPatternType) string { return "memory:recent:type:" + string(t) }
func recentProviderKey(p domain.Provider) string      { return "memory:recent:provider:" + p.String() }

// Bus is the memory bus: it writes every completed tool use into the three
// short-lived FIFOs and, when an embedding chain is configured, into the
// long-lived semantic index, and it serves recall reads for both.
type Bus struct {
	store  *store.Store
	vec    VectorIndex
	embed  *embedding.Chain
	logger *zap.Logger
}

// New builds a Bus. vec and embed may be nil: Record then degrades to
// recent-only memory and RecallSemantic always returns no results, matching
// spec.md's "semantic recall is best-effort" note.
func New(st *store.Store, vec VectorIndex, embed *embedding.Chain, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{store: st, vec: vec, embed: embed, logger: logger.With(zap.String("component", "memorybus"))}
}

var (
	bugfixWords   = regexp.MustCompile(`(?i)\b(fix|bug|error|crash|broken|regression)\b`)
	testWords     = regexp.MustCompile(`(?i)\b(tests?|spec|assert|coverage)\b`)
	refactorWords = regexp.MustCompile(`(?i)\b(refactor|rename|cleanup|simplify|extract)\b`)
	featureWords  = regexp.MustCompile(`(?i)\b(add|implement|feature|support|new)\b`)
	setupWords    = regexp.MustCompile(`(?i)\b(setup|install|configure|init|bootstrap)\b`)
)

// Classify maps free-form command text to the closest memory pattern type by
// keyword match, falling back to PatternGeneral when nothing matches.
func Classify(command string) domain.MemoryPatternType {
	switch {
	case bugfixWords.MatchString(command):
		return domain.PatternBugfix
	case testWords.MatchString(command):
		return domain.PatternTest
	case refactorWords.MatchString(command):
		return domain.PatternRefactor
	case featureWords.MatchString(command):
		return domain.PatternFeature
	case setupWords.MatchString(command):
		return domain.PatternSetup
	default:
		return domain.PatternGeneral
	}
}

var (
	quotedString = regexp.MustCompile(`"[^"]*"|'[^']*'`)
	filePath     = regexp.MustCompile(`(?:/|\.\.?/|~/)[\w./-]+`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Sanitize strips quoted strings and filesystem paths from a raw command
// before it is stored, so recalled snippets don't leak task-specific
// literals (credentials, absolute paths) into other agents' prompts.
func Sanitize(command string) string {
	s := quotedString.ReplaceAllString(command, `"..."`)
	s = filePath.ReplaceAllString(s, "<path>")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

const maxSnippetLen = 200

func snippet(command string) string {
	s := Sanitize(command)
	if len(s) > maxSnippetLen {
		s = s[:maxSnippetLen]
	}
	return s
}

// Record writes one completed tool use into the recent FIFOs and, best
// effort, into the semantic index. Failures indexing semantically are
// logged, not returned, since recent-memory recording must still succeed.
func (b *Bus) Record(ctx context.Context, e domain.MemoryEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.PatternType == "" {
		e.PatternType = Classify(e.OriginalCommand)
	}
	if e.CommandSnippet == "" {
		e.CommandSnippet = snippet(e.OriginalCommand)
	}
	e.ProviderName = e.Provider.String()
	e.OriginalCommand = ""

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("memorybus: marshal entry: %w", err)
	}
	raw := string(payload)

	if err := b.store.LPushTrim(ctx, recentAllKey, recentAllCap, raw); err != nil {
		return fmt.Errorf("memorybus: record recent-all: %w", err)
	}
	if err := b.store.Expire(ctx, recentAllKey, recentAllTTL); err != nil {
		return fmt.Errorf("memorybus: expire recent-all: %w", err)
	}
	if err := b.store.LPushTrim(ctx, recentTypeKey(e.PatternType), recentTypeCap, raw); err != nil {
		return fmt.Errorf("memorybus: record recent-type: %w", err)
	}
	if err := b.store.Expire(ctx, recentTypeKey(e.PatternType), recentTypeTTL); err != nil {
		return fmt.Errorf("memorybus: expire recent-type: %w", err)
	}
	if err := b.store.LPushTrim(ctx, recentProviderKey(e.Provider), recentProviderCap, raw); err != nil {
		return fmt.Errorf("memorybus: record recent-provider: %w", err)
	}
	if err := b.store.Expire(ctx, recentProviderKey(e.Provider), recentProviderTTL); err != nil {
		return fmt.Errorf("memorybus: expire recent-provider: %w", err)
	}

	if b.vec == nil || b.embed == nil || e.CommandSnippet == "" {
		return nil
	}
	result, err := b.embed.Embed(ctx, e.CommandSnippet)
	if err != nil {
		b.logger.Warn("semantic embed failed, recent memory still recorded", zap.Error(err))
		return nil
	}
	entry := Entry{
		ID:        uuid.NewString(),
		Embedding: result.Vector,
		DocText:   e.CommandSnippet,
		Metadata: map[string]any{
			"pattern_type": string(e.PatternType),
			"provider":     e.ProviderName,
			"task_id":      e.TaskID,
			"success":      e.Success,
			"timestamp":    e.Timestamp.Unix(),
		},
	}
	if err := b.vec.Index(ctx, entry); err != nil {
		b.logger.Warn("semantic index failed, recent memory still recorded", zap.Error(err))
	}
	return nil
}

// RecallRecent returns up to count of the most recent entries, optionally
// scoped to a pattern type and/or provider. Scoping by both reads the
// type-scoped FIFO and filters by provider client-side, since no combined
// index exists.
func (b *Bus) RecallRecent(ctx context.Context, patternType domain.MemoryPatternType, provider *domain.Provider, count int) ([]domain.MemoryEntry, error) {
	if count <= 0 {
		return nil, nil
	}

	var key string
	switch {
	case patternType != "":
		key = recentTypeKey(patternType)
	case provider != nil:
		key = recentProviderKey(*provider)
	default:
		key = recentAllKey
	}

	raws, err := b.store.LRange(ctx, key, int64(count)*2)
	if err != nil && !store.IsMiss(err) {
		return nil, fmt.Errorf("memorybus: recall recent: %w", err)
	}

	out := make([]domain.MemoryEntry, 0, count)
	for _, raw := range raws {
		var e domain.MemoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		if patternType != "" && provider != nil && e.ProviderName != provider.String() {
			continue
		}
		out = append(out, e)
		if len(out) >= count {
			break
		}
	}
	return out, nil
}

// RecallSemantic finds the topK entries most similar to query by embedding
// it and searching the vector index. Returns no results, not an error, when
// no embedding chain or vector index is configured.
func (b *Bus) RecallSemantic(ctx context.Context, query string, topK int, filter map[string]any) ([]SearchResult, error) {
	if b.vec == nil || b.embed == nil || topK <= 0 {
		return nil, nil
	}
	result, err := b.embed.Embed(ctx, query)
	if err != nil {
		b.logger.Warn("semantic recall embed failed", zap.Error(err))
		return nil, nil
	}
	return b.vec.Search(ctx, result.Vector, topK, filter)
}

package memorybus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hekateai/hekate/internal/tlsutil"
	"go.uber.org/zap"
)

// QdrantConfig configures the Qdrant-backed VectorIndex. Qdrant point IDs
// are UUIDs, so Hekate derives a stable UUID from each entry's ID.
type QdrantConfig struct {
	BaseURL              string `yaml:"base_url" json:"base_url"`
	APIKey               string `yaml:"api_key" json:"api_key"`
	Collection           string `yaml:"collection" json:"collection"`
	AutoCreateCollection bool   `yaml:"auto_create_collection" json:"auto_create_collection"`
	Distance             string `yaml:"distance" json:"distance"`
}

// DefaultQdrantConfig matches spec.md §6: a collection named "sessions".
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		BaseURL:              "http://localhost:6333",
		Collection:           "sessions",
		AutoCreateCollection: true,
		Distance:             "Cosine",
	}
}

// QdrantVectorIndex implements VectorIndex against Qdrant's REST API.
type QdrantVectorIndex struct {
	cfg     QdrantConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	ensureOnce sync.Once
	ensureErr  error
}

// NewQdrantVectorIndex builds a Qdrant-backed index.
func NewQdrantVectorIndex(cfg QdrantConfig, logger *zap.Logger) *QdrantVectorIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	return &QdrantVectorIndex{
		cfg:     cfg,
		baseURL: baseURL,
		client:  tlsutil.SecureHTTPClient(10 * time.Second),
		logger:  logger.With(zap.String("component", "vectorindex_qdrant")),
	}
}

var qdrantNamespace = uuid.MustParse("d9bde6d4-4f3a-4e6b-8f7a-5d8d2f3b4c1a")

func qdrantPointID(entryID string) string {
	return uuid.NewSHA1(qdrantNamespace, []byte(entryID)).String()
}

func (q *QdrantVectorIndex) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(q.cfg.APIKey) != "" {
		req.Header.Set("api-key", q.cfg.APIKey)
	}
}

func (q *QdrantVectorIndex) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, body)
	if err != nil {
		return err
	}
	q.applyHeaders(req)

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant: %s %s status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (q *QdrantVectorIndex) ensureCollection(ctx context.Context, vectorSize int) error {
	if !q.cfg.AutoCreateCollection || vectorSize <= 0 {
		return nil
	}
	q.ensureOnce.Do(func() {
		body := map[string]any{
			"vectors": map[string]any{"size": vectorSize, "distance": q.cfg.Distance},
		}
		path := fmt.Sprintf("/collections/%s", url.PathEscape(q.cfg.Collection))
		var resp any
		if err := q.doJSON(ctx, http.MethodPut, path, body, &resp); err != nil {
			// Qdrant returns 409 for an existing collection; doJSON already
			// treats non-2xx as an error, so a 409 here is a genuine failure
			// for any other status and a benign race for 409, which is rare
			// enough not to special-case further.
			q.ensureErr = err
		}
	})
	return q.ensureErr
}

func (q *QdrantVectorIndex) Index(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("qdrant: entry id is required")
	}
	if len(e.Embedding) == 0 {
		return fmt.Errorf("qdrant: entry embedding is required")
	}
	if strings.TrimSpace(q.cfg.Collection) == "" {
		return fmt.Errorf("qdrant: collection is required")
	}

	if err := q.ensureCollection(ctx, len(e.Embedding)); err != nil {
		q.logger.Warn("qdrant collection ensure failed, attempting upsert anyway", zap.Error(err))
	}

	payload := map[string]any{
		"id":     e.ID,
		"text":   e.DocText,
		"fields": e.Metadata,
	}
	point := map[string]any{
		"id":      qdrantPointID(e.ID),
		"vector":  e.Embedding,
		"payload": payload,
	}
	req := map[string]any{"points": []any{point}}

	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(q.cfg.Collection))
	var resp any
	return q.doJSON(ctx, http.MethodPut, path, req, &resp)
}

func (q *QdrantVectorIndex) Search(ctx context.Context, query []float64, topK int, filter map[string]any) ([]SearchResult, error) {
	if strings.TrimSpace(q.cfg.Collection) == "" {
		return nil, fmt.Errorf("qdrant: collection is required")
	}
	if topK <= 0 {
		return nil, nil
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("qdrant: query embedding is required")
	}

	req := map[string]any{
		"vector":       query,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
	}
	if qdrantFilter := buildQdrantFilter(filter); qdrantFilter != nil {
		req["filter"] = qdrantFilter
	}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(q.cfg.Collection))
	if err := q.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		entry := Entry{}
		if r.Payload != nil {
			if v, ok := r.Payload["id"].(string); ok {
				entry.ID = v
			}
			if v, ok := r.Payload["text"].(string); ok {
				entry.DocText = v
			}
			if v, ok := r.Payload["fields"].(map[string]any); ok {
				entry.Metadata = v
			}
		}
		if entry.ID == "" {
			entry.ID = fmt.Sprint(r.ID)
		}
		out = append(out, SearchResult{Entry: entry, Score: r.Score})
	}
	return out, nil
}

// buildQdrantFilter translates the memory bus's simple equality/gte filter
// map into Qdrant's filter DSL. Keys ending in "_gte" become range filters;
// every other key is an exact-match condition.
func buildQdrantFilter(filter map[string]any) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	var must []map[string]any
	for k, v := range filter {
		if strings.HasSuffix(k, "_gte") {
			field := strings.TrimSuffix(k, "_gte")
			must = append(must, map[string]any{
				"key":   "fields." + field,
				"range": map[string]any{"gte": v},
			})
			continue
		}
		must = append(must, map[string]any{
			"key":   "fields." + k,
			"match": map[string]any{"value": v},
		})
	}
	return map[string]any{"must": must}
}

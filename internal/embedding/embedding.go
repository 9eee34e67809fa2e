// Package embedding provides the text-to-vector function the memory bus
// needs to index and recall command patterns. Two interchangeable HTTP
// providers back it: OpenRouter is tried first, Voyage AI second, matching
// the fallback chain the original hook scripts implemented by hand.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hekateai/hekate/internal/tlsutil"
	"go.uber.org/zap"
)

// DefaultTimeout bounds every embedding call, matching spec.md's 10s budget.
const DefaultTimeout = 10 * time.Second

// Provider is a single embedding backend.
type Provider interface {
	// Name identifies the provider for logging and metadata.
	Name() string
	// Embed returns a vector for text, or an error if the backend is
	// unreachable, unauthorized, or returns an unparseable response.
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Chain tries each Provider in order and returns the first successful
// embedding, recording which provider served the request.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

// NewChain builds a fallback chain from providers in priority order. A nil
// or zero-value provider (e.g. missing API key) should be omitted by the
// caller before construction.
func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	return &Chain{providers: providers, logger: logger.With(zap.String("component", "embedding_chain"))}
}

// Result pairs an embedding with the provider name that produced it.
type Result struct {
	Vector       []float64
	ProviderName string
}

// Embed tries each configured provider in order, returning the first
// success. Returns an error only when every provider failed or none are
// configured, so callers can degrade to "no semantic recall" silently.
func (c *Chain) Embed(ctx context.Context, text string) (Result, error) {
	if len(c.providers) == 0 {
		return Result{}, fmt.Errorf("embedding: no providers configured")
	}
	var lastErr error
	for _, p := range c.providers {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			lastErr = err
			c.logger.Warn("embedding provider failed, trying next", zap.String("provider", p.Name()), zap.Error(err))
			continue
		}
		return Result{Vector: vec, ProviderName: p.Name()}, nil
	}
	return Result{}, fmt.Errorf("embedding: all providers failed: %w", lastErr)
}

// httpProvider is the shared request/response plumbing for the two REST
// embedding backends; each concrete provider supplies its own endpoint,
// headers, and request/response shape via buildRequest/parseResponse.
type httpProvider struct {
	name       string
	endpoint   string
	apiKey     string
	client     *http.Client
	buildBody  func(text string) any
	extractVec func(body []byte) ([]float64, error)
}

func (p *httpProvider) Name() string { return p.name }

func (p *httpProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%s: no API key configured", p.name)
	}
	if len(text) > 500 {
		text = text[:500]
	}

	payload, err := json.Marshal(p.buildBody(text))
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d: %s", p.name, resp.StatusCode, string(body))
	}

	return p.extractVec(body)
}

// NewOpenRouter builds the primary embedding provider, using OpenRouter's
// OpenAI-compatible embeddings endpoint with text-embedding-3-small.
func NewOpenRouter(apiKey string) Provider {
	return &httpProvider{
		name:     "openrouter",
		endpoint: "https://openrouter.ai/api/v1/embeddings",
		apiKey:   apiKey,
		client:   tlsutil.SecureHTTPClient(DefaultTimeout),
		buildBody: func(text string) any {
			return map[string]any{
				"model": "openai/text-embedding-3-small",
				"input": text,
			}
		},
		extractVec: func(body []byte) ([]float64, error) {
			var parsed struct {
				Data []struct {
					Embedding []float64 `json:"embedding"`
				} `json:"data"`
			}
			if err := json.Unmarshal(body, &parsed); err != nil {
				return nil, fmt.Errorf("openrouter: parse response: %w", err)
			}
			if len(parsed.Data) == 0 {
				return nil, fmt.Errorf("openrouter: empty embedding data")
			}
			return parsed.Data[0].Embedding, nil
		},
	}
}

// NewVoyage builds the fallback embedding provider, using Voyage AI's
// code-tuned embedding model with the "query" input type the original hooks
// used for command-pattern recall.
func NewVoyage(apiKey string) Provider {
	return &httpProvider{
		name:     "voyage",
		endpoint: "https://api.voyageai.com/v1/embeddings",
		apiKey:   apiKey,
		client:   tlsutil.SecureHTTPClient(DefaultTimeout),
		buildBody: func(text string) any {
			return map[string]any{
				"model":      "voyage-code-3",
				"input":      text,
				"input_type": "query",
			}
		},
		extractVec: func(body []byte) ([]float64, error) {
			var parsed struct {
				Data []struct {
					Embedding []float64 `json:"embedding"`
				} `json:"data"`
			}
			if err := json.Unmarshal(body, &parsed); err != nil {
				return nil, fmt.Errorf("voyage: parse response: %w", err)
			}
			if len(parsed.Data) == 0 {
				return nil, fmt.Errorf("voyage: empty embedding data")
			}
			return parsed.Data[0].Embedding, nil
		},
	}
}

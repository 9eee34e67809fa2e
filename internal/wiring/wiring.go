// Package wiring assembles hekate's full dependency graph — the
// coordination store, issue-tracker client, quota trackers, router, pattern
// learner, agent manager, verification pipeline, memory bus, and epic
// decomposer — from a loaded config.Config, so cmd/hekate (the supervisor)
// and cmd/hekate-hook (the per-event hook dispatcher) build an identical
// graph from the same configuration file.
package wiring

import (
	"fmt"
	"os"
	"time"

	"github.com/hekateai/hekate/config"
	"github.com/hekateai/hekate/internal/agentmanager"
	"github.com/hekateai/hekate/internal/decompose"
	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/embedding"
	"github.com/hekateai/hekate/internal/hooks"
	"github.com/hekateai/hekate/internal/issuestore"
	"github.com/hekateai/hekate/internal/memorybus"
	"github.com/hekateai/hekate/internal/metrics"
	"github.com/hekateai/hekate/internal/pattern"
	"github.com/hekateai/hekate/internal/quota"
	"github.com/hekateai/hekate/internal/router"
	"github.com/hekateai/hekate/internal/store"
	"github.com/hekateai/hekate/internal/supervisor"
	"github.com/hekateai/hekate/internal/verify"
	"go.uber.org/zap"
)

// App holds every wired component. Supervisor is nil unless built via
// BuildSupervisor — the hook dispatcher has no use for the scheduler loop
// itself, only the components hooks call into.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Store      *store.Store
	Issues     *issuestore.Client
	Quotas     map[domain.Provider]*quota.Tracker
	Pattern    *pattern.Learner
	Router     *router.Router
	Agents     *agentmanager.Manager
	Verify     *verify.Pipeline
	Memory     *memorybus.Bus
	Decompose  *decompose.Client
	Metrics    *metrics.Collector
	Hooks      *hooks.Deps
	Supervisor *supervisor.Supervisor
}

// Options carries the handful of settings that come from flags/environment
// rather than config.yaml: where the issue-tracker CLI runs and where
// spawned agents do their work.
type Options struct {
	IssueStoreBinary string
	ProjectDir       string
}

// Build wires every component except the supervisor loop itself, suitable
// for both cmd/hekate and cmd/hekate-hook.
func Build(cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if opts.IssueStoreBinary == "" {
		opts.IssueStoreBinary = "bd"
	}
	if opts.ProjectDir == "" {
		if wd, err := os.Getwd(); err == nil {
			opts.ProjectDir = wd
		}
	}

	storeCfg := store.Config{
		Addr:                cfg.Redis.Addr(),
		Password:            cfg.Redis.Password,
		DB:                  cfg.Redis.DB,
		PoolSize:            cfg.Redis.PoolSize,
		MinIdleConns:        cfg.Redis.MinIdleConns,
		HealthCheckInterval: 30 * time.Second,
		OpTimeout:           2 * time.Second,
	}
	cs, err := store.New(storeCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("wiring: connect coordination store: %w", err)
	}

	quotas := map[domain.Provider]*quota.Tracker{
		domain.ProviderClaude:     quota.New(cs, domain.ProviderClaude, cfg.Providers.Claude.QuotaLimit, cfg.Providers.Claude.WindowHours, cfg.Providers.Claude.BufferPercent),
		domain.ProviderGLM:        quota.New(cs, domain.ProviderGLM, cfg.Providers.GLM.QuotaLimit, cfg.Providers.GLM.WindowHours, cfg.Providers.GLM.BufferPercent),
		domain.ProviderDeepSeek:   quota.New(cs, domain.ProviderDeepSeek, cfg.Providers.DeepSeek.QuotaLimit, cfg.Providers.DeepSeek.WindowHours, cfg.Providers.DeepSeek.BufferPercent),
		domain.ProviderOpenRouter: quota.New(cs, domain.ProviderOpenRouter, cfg.Providers.OpenRouter.QuotaLimit, cfg.Providers.OpenRouter.WindowHours, cfg.Providers.OpenRouter.BufferPercent),
	}

	patterns := pattern.New(cs)
	thresholds := router.Thresholds{
		ClaudeConservativePercent: cfg.QuotaThresholds.ClaudeConservative * 100,
		GLMConservativePercent:    cfg.QuotaThresholds.GLMConservative * 100,
	}
	r := router.New(quotas, thresholds, patterns, logger)

	issues := issuestore.New(opts.IssueStoreBinary, opts.ProjectDir)
	agents := agentmanager.New(cs, logger)
	verifyPipeline := verify.New(cs)

	vec, embedChain := buildMemoryBackends(cfg, logger)
	memBus := memorybus.New(cs, vec, embedChain, logger)

	var decomposeClient *decompose.Client
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		decomposeClient = decompose.New(key)
	}

	metricsCollector := metrics.NewCollector("hekate", logger)

	deps := &hooks.Deps{
		Store:     cs,
		Issues:    issues,
		Agents:    agents,
		Router:    r,
		Pattern:   patterns,
		Quotas:    quotas,
		Verify:    verifyPipeline,
		Memory:    memBus,
		Decompose: decomposeClient,
		Metrics:   metricsCollector,
		Logger:    logger,
		Worktrees: opts.ProjectDir,
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     cs,
		Issues:    issues,
		Quotas:    quotas,
		Pattern:   patterns,
		Router:    r,
		Agents:    agents,
		Verify:    verifyPipeline,
		Memory:    memBus,
		Decompose: decomposeClient,
		Metrics:   metricsCollector,
		Hooks:     deps,
	}, nil
}

// BuildSupervisor wires a full App plus its supervisor loop, ready to Run.
func BuildSupervisor(cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	app, err := Build(cfg, logger, opts)
	if err != nil {
		return nil, err
	}
	app.Supervisor = supervisor.New(
		supervisor.Config{ProjectDir: opts.ProjectDir, PoolCapacity: cfg.AgentPools.TotalAgents},
		app.Store, app.Issues, app.Agents, app.Router, app.Metrics, logger,
	)
	return app, nil
}

// buildMemoryBackends wires the semantic vector index and embedding
// fallback chain when credentials are configured, degrading to nil (recent
// memory only) when they are not.
func buildMemoryBackends(cfg *config.Config, logger *zap.Logger) (memorybus.VectorIndex, *embedding.Chain) {
	var providers []embedding.Provider
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		providers = append(providers, embedding.NewOpenRouter(key))
	}
	if key := os.Getenv("VOYAGE_API_KEY"); key != "" {
		providers = append(providers, embedding.NewVoyage(key))
	}
	if len(providers) == 0 {
		return nil, nil
	}

	vec := memorybus.NewQdrantVectorIndex(memorybus.QdrantConfig{
		BaseURL:              cfg.Qdrant.BaseURL(),
		APIKey:               cfg.Qdrant.APIKey,
		Collection:           cfg.Qdrant.Collection,
		AutoCreateCollection: cfg.Qdrant.AutoCreateCollection,
	}, logger)
	return vec, embedding.NewChain(logger, providers...)
}

// Close shuts down every component that owns a live connection.
func (a *App) Close() error {
	return a.Store.Close()
}

// Package router implements the task-to-provider decision tree: a static
// policy by task type and complexity, overridden by adaptive routing
// patterns and provider success-rate stats once they have enough evidence,
// and finally bounded by quota availability.
package router

import (
	"context"
	"fmt"

	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/pattern"
	"github.com/hekateai/hekate/internal/quota"
	"go.uber.org/zap"
)

// TaskType classifies the kind of work a task represents, driving the
// static routing policy.
type TaskType string

const (
	TaskPlanning       TaskType = "planning"
	TaskReview         TaskType = "review"
	TaskVerification   TaskType = "verification"
	TaskImplementation TaskType = "implementation"
)

// Thresholds configures the conservative-usage cutoffs the router checks
// before preferring Claude for medium-complexity implementation work.
type Thresholds struct {
	ClaudeConservativePercent float64
	GLMConservativePercent    float64
}

// Router selects a provider for a task using the four-step decision tree:
// static policy, adaptive pattern override, provider-stats fallback, and
// quota-driven substitution.
type Router struct {
	quotas     map[domain.Provider]*quota.Tracker
	thresholds Thresholds
	patterns   *pattern.Learner
	logger     *zap.Logger
}

// New builds a Router. quotas may omit entries for providers with no
// configured quota tracker, in which case that provider is always usable.
func New(quotas map[domain.Provider]*quota.Tracker, thresholds Thresholds, patterns *pattern.Learner, logger *zap.Logger) *Router {
	return &Router{quotas: quotas, thresholds: thresholds, patterns: patterns, logger: logger.With(zap.String("component", "router"))}
}

// Decision is the outcome of a routing pass, including why it was made so
// callers can log and the pattern learner can later be told the outcome.
type Decision struct {
	Provider domain.Provider
	Reason   string
}

// Route picks a provider for task using the full decision tree, including
// the adaptive pattern and provider-stats overrides, then enforces quota
// availability on the result.
func (r *Router) Route(ctx context.Context, task domain.Task, taskType TaskType) (Decision, error) {
	var (
		d   Decision
		err error
	)
	if r.patterns != nil {
		var ok bool
		d, ok, err = r.adaptiveOverride(ctx, task)
		if err != nil {
			return Decision{}, err
		}
		if !ok {
			d, err = r.staticRoute(ctx, task, taskType)
		}
	} else {
		d, err = r.staticRoute(ctx, task, taskType)
	}
	if err != nil {
		return Decision{}, err
	}
	return r.enforceQuota(ctx, d)
}

// enforceQuota implements step 4 of the decision tree: if the chosen
// provider's quota is exhausted, fall through the fixed preference order
// deepseek -> glm -> openrouter -> claude and take the first usable one.
func (r *Router) enforceQuota(ctx context.Context, d Decision) (Decision, error) {
	ok, err := r.canUse(ctx, d.Provider, false)
	if err != nil {
		return Decision{}, err
	}
	if ok {
		return d, nil
	}
	for _, p := range []domain.Provider{domain.ProviderDeepSeek, domain.ProviderGLM, domain.ProviderOpenRouter, domain.ProviderClaude} {
		usable, err := r.canUse(ctx, p, false)
		if err != nil {
			return Decision{}, err
		}
		if usable {
			return Decision{Provider: p, Reason: d.Reason + " (quota fallback)"}, nil
		}
	}
	return Decision{}, ErrNoProvider
}

// adaptiveOverride returns a routing decision from the learned pattern for
// task's feature vector when it has at least 3 attempts and a success rate
// above 0.7, falling back to provider/complexity stats with at least 5
// attempts and the highest success rate among eligible providers.
func (r *Router) adaptiveOverride(ctx context.Context, task domain.Task) (Decision, bool, error) {
	p, ok, err := r.patterns.Lookup(ctx, task.Features)
	if err != nil {
		return Decision{}, false, err
	}
	if ok && p.Attempts >= 3 && p.SuccessRate() > 0.7 {
		return Decision{Provider: p.Provider, Reason: "adaptive pattern override"}, true, nil
	}

	best, ok, err := r.patterns.BestProviderForComplexity(ctx, task.Complexity, minStatsAttempts)
	if err != nil {
		return Decision{}, false, err
	}
	if ok {
		return Decision{Provider: best.Provider, Reason: "provider/complexity stats override"}, true, nil
	}
	return Decision{}, false, nil
}

// minStatsAttempts is the minimum number of recorded attempts a
// (provider, complexity) stats record needs before it is eligible to
// override the static routing policy.
const minStatsAttempts = 5

func (r *Router) staticRoute(ctx context.Context, task domain.Task, taskType TaskType) (Decision, error) {
	switch taskType {
	case TaskPlanning:
		return r.routePlanning(ctx)
	case TaskReview:
		return r.routeReview(ctx)
	case TaskVerification:
		return r.routeVerification(ctx)
	default:
		return r.routeImplementation(ctx, task.Complexity)
	}
}

func (r *Router) routePlanning(ctx context.Context) (Decision, error) {
	if ok, err := r.canUse(ctx, domain.ProviderClaude, false); err != nil {
		return Decision{}, err
	} else if ok {
		return Decision{Provider: domain.ProviderClaude, Reason: "planning: claude available"}, nil
	}
	if ok, err := r.canUse(ctx, domain.ProviderOpenRouter, false); err != nil {
		return Decision{}, err
	} else if ok {
		return Decision{Provider: domain.ProviderOpenRouter, Reason: "planning: claude exhausted, openrouter available"}, nil
	}
	return Decision{Provider: domain.ProviderGLM, Reason: "planning: fallback to glm"}, nil
}

func (r *Router) routeReview(ctx context.Context) (Decision, error) {
	if ok, err := r.canUse(ctx, domain.ProviderClaude, true); err != nil {
		return Decision{}, err
	} else if ok {
		return Decision{Provider: domain.ProviderClaude, Reason: "review: claude within emergency reserve"}, nil
	}
	return Decision{Provider: domain.ProviderGLM, Reason: "review: fallback to glm"}, nil
}

func (r *Router) routeVerification(ctx context.Context) (Decision, error) {
	if ok, err := r.canUse(ctx, domain.ProviderGLM, false); err != nil {
		return Decision{}, err
	} else if ok {
		return Decision{Provider: domain.ProviderGLM, Reason: "verification: glm available"}, nil
	}
	return Decision{Provider: domain.ProviderOpenRouter, Reason: "verification: fallback to openrouter"}, nil
}

func (r *Router) routeImplementation(ctx context.Context, complexity int) (Decision, error) {
	switch {
	case complexity >= 8:
		if ok, err := r.canUse(ctx, domain.ProviderClaude, false); err != nil {
			return Decision{}, err
		} else if ok {
			return Decision{Provider: domain.ProviderClaude, Reason: "complex: claude available"}, nil
		}
		return Decision{Provider: domain.ProviderGLM, Reason: "complex: claude exhausted"}, nil

	case complexity >= 5:
		if ok, err := r.canUse(ctx, domain.ProviderClaude, false); err != nil {
			return Decision{}, err
		} else if ok {
			pct, err := r.quotaPercentage(ctx, domain.ProviderClaude)
			if err != nil {
				return Decision{}, err
			}
			if pct < r.thresholds.ClaudeConservativePercent {
				return Decision{Provider: domain.ProviderClaude, Reason: "medium: claude under conservative threshold"}, nil
			}
		}
		if ok, err := r.canUse(ctx, domain.ProviderGLM, false); err != nil {
			return Decision{}, err
		} else if ok {
			return Decision{Provider: domain.ProviderGLM, Reason: "medium: glm available"}, nil
		}
		return Decision{Provider: domain.ProviderDeepSeek, Reason: "medium: glm exhausted"}, nil

	default:
		return Decision{Provider: domain.ProviderDeepSeek, Reason: "simple: deepseek"}, nil
	}
}

func (r *Router) canUse(ctx context.Context, p domain.Provider, emergency bool) (bool, error) {
	tr, ok := r.quotas[p]
	if !ok || tr == nil {
		return true, nil
	}
	return tr.CanUse(ctx, emergency)
}

func (r *Router) quotaPercentage(ctx context.Context, p domain.Provider) (float64, error) {
	tr, ok := r.quotas[p]
	if !ok || tr == nil {
		return 0, nil
	}
	usage, err := tr.GetUsage(ctx)
	if err != nil {
		return 0, err
	}
	return usage.Percentage, nil
}

var cascadeChain = []domain.Provider{domain.ProviderDeepSeek, domain.ProviderGLM, domain.ProviderOpenRouter, domain.ProviderClaude}

// Cascade advances previous to the next provider in the fixed fallback
// chain deepseek -> glm -> openrouter -> claude, used when a provider fails
// a task outright and it should be retried under a different backend.
func Cascade(previous domain.Provider) domain.Provider {
	for i, p := range cascadeChain {
		if p == previous {
			if i+1 < len(cascadeChain) {
				return cascadeChain[i+1]
			}
			return domain.ProviderClaude
		}
	}
	return domain.ProviderClaude
}

// ErrNoProvider is returned when no provider can be selected at all (every
// provider's quota exhausted and no fallback remains).
var ErrNoProvider = fmt.Errorf("router: no provider available")

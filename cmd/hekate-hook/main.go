// =============================================================================
// Hekate hook dispatcher
// =============================================================================
// hekate-hook is the external binding for every hekate event handler: the
// agent host invokes it once per event with the handler name as its single
// argument and a JSON envelope on stdin, matching spec.md §6's hook I/O
// contract. It always exits 0 — a handler error is logged to stderr, never
// surfaced as a nonzero exit code, since a misbehaving hook must never
// abort the agent session it's attached to.
//
// Usage:
//
//	hekate-hook <handler-name> < envelope.json
//
// Handler names:
//
//	session-start
//	pretooluse-router
//	pretooluse-memory-recent
//	pretooluse-memory-semantic
//	pretooluse-verify-inject
//	posttooluse-track-outcome
//	posttooluse-memory
//	posttooluse-verify-prefetch
//	posttooluse-spawn-agents
//	posttooluse-complete-task
//	posttooluse-metrics
//	userpromptsubmit-decompose
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hekateai/hekate/config"
	"github.com/hekateai/hekate/internal/hooks"
	"github.com/hekateai/hekate/internal/wiring"
	"go.uber.org/zap"
)

// budget bounds the dispatcher's own lifetime; individual handlers enforce
// their own tighter per-call deadlines on CS/IS/embedding/decompose calls.
const budget = 35 * time.Second

type handlerFunc func(*hooks.Deps, context.Context, hooks.Envelope) (*hooks.Response, error)

var handlers = map[string]handlerFunc{
	"session-start":              (*hooks.Deps).SessionStart,
	"pretooluse-router":          (*hooks.Deps).PreToolUseRouter,
	"pretooluse-memory-recent":   (*hooks.Deps).PreToolUseMemoryRecent,
	"pretooluse-memory-semantic": (*hooks.Deps).PreToolUseMemorySemantic,
	"pretooluse-verify-inject":   (*hooks.Deps).PreToolUseVerifyInject,
	"posttooluse-track-outcome":  (*hooks.Deps).PostToolUseTrackOutcome,
	"posttooluse-memory":         (*hooks.Deps).PostToolUseMemory,
	"posttooluse-verify-prefetch": (*hooks.Deps).PostToolUseVerifyPrefetch,
	"posttooluse-spawn-agents":   (*hooks.Deps).PostToolUseSpawnAgents,
	"posttooluse-complete-task":  (*hooks.Deps).PostToolUseCompleteTask,
	"posttooluse-metrics":        (*hooks.Deps).PostToolUseMetrics,
	"userpromptsubmit-decompose": (*hooks.Deps).UserPromptSubmitDecompose,
}

func main() {
	// Every exit path is 0: a hook that fails the calling process would
	// abort the agent's tool call mid-flight, which spec.md §7 forbids.
	defer os.Exit(0)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "hekate-hook: missing handler name")
		return
	}
	handler, ok := handlers[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "hekate-hook: unknown handler %q\n", os.Args[1])
		return
	}

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hekate-hook: read stdin: %v\n", err)
		return
	}

	var envelope hooks.Envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil {
			fmt.Fprintf(os.Stderr, "hekate-hook: parse envelope: %v\n", err)
			return
		}
	}

	logger := buildLogger()
	defer logger.Sync()

	deps, closeFn, err := build(logger)
	if err != nil {
		logger.Warn("hekate-hook: failed to wire dependencies", zap.Error(err))
		return
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	resp, err := handler(deps, ctx, envelope)
	if err != nil {
		logger.Warn("hekate-hook: handler error", zap.String("handler", os.Args[1]), zap.Error(err))
		return
	}
	if resp == nil {
		return
	}

	out, err := json.Marshal(resp)
	if err != nil {
		logger.Warn("hekate-hook: marshal response", zap.Error(err))
		return
	}
	fmt.Println(string(out))
}

func buildLogger() *zap.Logger {
	cfg, err := config.NewLoader().WithConfigPath(config.ResolveConfigPath()).Load()
	if err != nil {
		return zap.NewNop()
	}
	return config.BuildLogger(cfg.Log)
}

func build(logger *zap.Logger) (*hooks.Deps, func(), error) {
	cfg, err := config.NewLoader().WithConfigPath(config.ResolveConfigPath()).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	app, err := wiring.Build(cfg, logger, wiring.Options{})
	if err != nil {
		return nil, nil, err
	}
	return app.Hooks, func() { _ = app.Close() }, nil
}

// =============================================================================
// Hekate routing analysis report
// =============================================================================
// hekate-analyze prints a one-shot snapshot of routing quality: per-provider
// success stats, a complexity breakdown, the learned adaptive patterns, and
// the most recent routing decisions. It reads the coordination store
// directly and does not touch the scheduler loop or any live agent.
//
// Usage:
//
//	hekate-analyze [--config path.yaml] [--history N]
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/hekateai/hekate/config"
	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/pattern"
	"github.com/hekateai/hekate/internal/store"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	historyN := flag.Int64("history", 20, "Number of recent routing decisions to show")
	flag.Parse()

	if *configPath == "" {
		*configPath = config.ResolveConfigPath()
	}
	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hekate-analyze: load config: %v\n", err)
		os.Exit(1)
	}

	logger := zap.NewNop()
	cs, err := store.New(store.Config{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		OpTimeout:    5 * time.Second,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hekate-analyze: connect store: %v\n", err)
		os.Exit(1)
	}
	defer cs.Close()

	learner := pattern.New(cs)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	printProviderStats(ctx, learner)
	printComplexityBreakdown(ctx, learner)
	printPatterns(ctx, learner)
	printHistory(ctx, learner, *historyN)
}

func printProviderStats(ctx context.Context, learner *pattern.Learner) {
	fmt.Println("== Provider stats ==")
	for _, p := range domain.AllProviders() {
		stats, ok, err := learner.ProviderStats(ctx, p)
		if err != nil {
			fmt.Printf("  %-10s error: %v\n", p, err)
			continue
		}
		if !ok {
			fmt.Printf("  %-10s no data\n", p)
			continue
		}
		fmt.Printf("  %-10s %4d attempts  %6.1f%% success\n", p, stats.TotalTasks, stats.SuccessRate()*100)
	}
	fmt.Println()
}

func printComplexityBreakdown(ctx context.Context, learner *pattern.Learner) {
	fmt.Println("== Complexity breakdown ==")
	for complexity := 1; complexity <= 10; complexity++ {
		var rows []string
		for _, p := range domain.AllProviders() {
			stats, ok, err := learner.ComplexityStats(ctx, p, complexity)
			if err != nil || !ok || stats.TotalTasks == 0 {
				continue
			}
			rows = append(rows, fmt.Sprintf("%s=%.0f%%(%d)", p, stats.SuccessRate()*100, stats.TotalTasks))
		}
		if len(rows) == 0 {
			continue
		}
		fmt.Printf("  complexity %2d: %s\n", complexity, joinWithSpace(rows))
	}
	fmt.Println()
}

func printPatterns(ctx context.Context, learner *pattern.Learner) {
	patterns, err := learner.AllPatterns(ctx)
	if err != nil {
		fmt.Printf("== Learned patterns ==\n  error: %v\n\n", err)
		return
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].LastUsed.After(patterns[j].LastUsed) })

	fmt.Printf("== Learned patterns (%d) ==\n", len(patterns))
	for i, p := range patterns {
		if i >= 25 {
			fmt.Printf("  ... %d more\n", len(patterns)-25)
			break
		}
		fmt.Printf("  %s  provider=%-10s attempts=%-4d success=%5.1f%%  last_used=%s\n",
			p.FeatureHash[:12], p.Provider, p.Attempts, p.SuccessRate()*100, p.LastUsed.Format(time.RFC3339))
	}
	fmt.Println()
}

func printHistory(ctx context.Context, learner *pattern.Learner, n int64) {
	history, err := learner.RecentHistory(ctx, n)
	if err != nil {
		fmt.Printf("== Recent routing history ==\n  error: %v\n\n", err)
		return
	}
	fmt.Printf("== Recent routing history (%d) ==\n", len(history))
	for _, h := range history {
		outcome := "FAIL"
		if h.Success {
			outcome = "PASS"
		}
		fmt.Printf("  %s  task=%-12s provider=%-10s complexity=%-2d tool=%-10s %s\n",
			time.Unix(h.Timestamp, 0).Format("15:04:05"), h.TaskID, h.Provider, h.Complexity, h.ToolName, outcome)
	}
}

func joinWithSpace(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "  "
		}
		out += p
	}
	return out
}

// =============================================================================
// Hekate live dashboard
// =============================================================================
// hekate-dashboard renders a continuously refreshing snapshot of the
// orchestrator's live state: active alerts, the epic progress table,
// currently running agents, and per-provider quota bars. It reads the
// coordination store directly, the same way cmd/hekate-analyze does, and
// never claims or mutates anything.
//
// Usage:
//
//	hekate-dashboard [--config path.yaml] [--interval 2s] [--prometheus]
//
// In --prometheus mode it prints one Prometheus text-exposition snapshot
// (built from internal/metrics.Collector, the same gauges the supervisor
// itself reports) and exits, suitable for a scrape-on-demand textfile
// collector rather than the interactive table.
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hekateai/hekate/config"
	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/metrics"
	"github.com/hekateai/hekate/internal/quota"
	"github.com/hekateai/hekate/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	interval := flag.Duration("interval", 2*time.Second, "Refresh interval")
	prom := flag.Bool("prometheus", false, "Print one Prometheus text snapshot and exit")
	flag.Parse()

	if *configPath == "" {
		*configPath = config.ResolveConfigPath()
	}
	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hekate-dashboard: load config: %v\n", err)
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
		fmt.Fprintf(os.Stderr, "hekate-dashboard: connect store: %v\n", err)
		os.Exit(1)
	}
	defer cs.Close()

	quotas := map[domain.Provider]*quota.Tracker{
		domain.ProviderClaude:     quota.New(cs, domain.ProviderClaude, cfg.Providers.Claude.QuotaLimit, cfg.Providers.Claude.WindowHours, cfg.Providers.Claude.BufferPercent),
		domain.ProviderGLM:        quota.New(cs, domain.ProviderGLM, cfg.Providers.GLM.QuotaLimit, cfg.Providers.GLM.WindowHours, cfg.Providers.GLM.BufferPercent),
		domain.ProviderDeepSeek:   quota.New(cs, domain.ProviderDeepSeek, cfg.Providers.DeepSeek.QuotaLimit, cfg.Providers.DeepSeek.WindowHours, cfg.Providers.DeepSeek.BufferPercent),
		domain.ProviderOpenRouter: quota.New(cs, domain.ProviderOpenRouter, cfg.Providers.OpenRouter.QuotaLimit, cfg.Providers.OpenRouter.WindowHours, cfg.Providers.OpenRouter.BufferPercent),
	}

	if *prom {
		printPrometheusSnapshot(cs, quotas)
		return
	}

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		renderFrame(ctx, cs, quotas)
		cancel()
		time.Sleep(*interval)
	}
}

// renderFrame redraws the whole screen with the current snapshot.
func renderFrame(ctx context.Context, cs *store.Store, quotas map[domain.Provider]*quota.Tracker) {
	fmt.Print("\033[H\033[2J")
	fmt.Printf("hekate — %s\n\n", time.Now().Format(time.RFC3339))

	printAlerts(ctx, cs)
	printEpics(ctx, cs)
	printAgents(ctx, cs)
	printQuotaBars(ctx, quotas)
}

func printAlerts(ctx context.Context, cs *store.Store) {
	fmt.Println("ALERTS")
	raw, err := cs.Get(ctx, "alerts:quota_warning")
	if store.IsMiss(err) {
		fmt.Println("  (none)")
	} else if err != nil {
		fmt.Printf("  error reading alerts: %v\n", err)
	} else {
		symbol := "⚠"
		if strings.Contains(raw, `"severity":"emergency"`) {
			symbol = "✖"
		}
		fmt.Printf("  %s %s\n", symbol, raw)
	}
	fmt.Println()
}

func printEpics(ctx context.Context, cs *store.Store) {
	fmt.Println("EPICS")
	keys, err := cs.ScanPrefix(ctx, "epic:")
	if err != nil {
		fmt.Printf("  error: %v\n", err)
		fmt.Println()
		return
	}

	ids := map[string]bool{}
	for _, k := range keys {
		if strings.HasSuffix(k, ":status") {
			ids[strings.TrimSuffix(strings.TrimPrefix(k, "epic:"), ":status")] = true
		}
	}
	if len(ids) == 0 {
		fmt.Println("  (none active)")
		fmt.Println()
		return
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	for _, id := range sorted {
		status, _ := cs.Get(ctx, fmt.Sprintf("epic:%s:status", id))
		total := getInt(ctx, cs, fmt.Sprintf("epic:%s:task_count", id))
		complete := getInt(ctx, cs, fmt.Sprintf("epic:%s:complete_count", id))
		desc, _ := cs.Get(ctx, fmt.Sprintf("epic:%s:description", id))
		fmt.Printf("  %-14s [%-8s] %d/%d  %s\n", id, status, complete, total, truncate(desc, 50))
	}
	fmt.Println()
}

func printAgents(ctx context.Context, cs *store.Store) {
	fmt.Println("ACTIVE AGENTS")
	keys, err := cs.ScanPrefix(ctx, "agent:")
	if err != nil {
		fmt.Printf("  error: %v\n", err)
		fmt.Println()
		return
	}

	var agentIDs []string
	for _, k := range keys {
		if strings.HasSuffix(k, ":heartbeat") {
			agentIDs = append(agentIDs, strings.TrimSuffix(strings.TrimPrefix(k, "agent:"), ":heartbeat"))
		}
	}
	if len(agentIDs) == 0 {
		fmt.Println("  (none)")
		fmt.Println()
		return
	}
	sort.Strings(agentIDs)

	for _, id := range agentIDs {
		taskID, _ := cs.Get(ctx, fmt.Sprintf("agent:%s:task", id))
		fmt.Printf("  %-28s task=%s\n", id, taskID)
	}
	fmt.Println()
}

func printQuotaBars(ctx context.Context, quotas map[domain.Provider]*quota.Tracker) {
	fmt.Println("QUOTAS")
	for _, p := range domain.AllProviders() {
		tr, ok := quotas[p]
		if !ok {
			continue
		}
		usage, err := tr.GetUsage(ctx)
		if err != nil {
			fmt.Printf("  %-10s error: %v\n", p, err)
			continue
		}
		fmt.Printf("  %-10s %s %3d/%-3d (%5.1f%%)\n", p, bar(usage.Percentage), usage.Count, usage.Limit, usage.Percentage)
	}
}

func bar(pct float64) string {
	const width = 20
	filled := int(pct / 100 * width)
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func getInt(ctx context.Context, cs *store.Store, key string) int {
	raw, err := cs.Get(ctx, key)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(raw)
	return n
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// printPrometheusSnapshot populates a fresh Collector from the current
// quota and epic state and dumps it in Prometheus text-exposition format,
// the same shape promhttp.Handler would serve from a live supervisor.
func printPrometheusSnapshot(cs *store.Store, quotas map[domain.Provider]*quota.Tracker) {
	collector := metrics.NewCollector("hekate", zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, p := range domain.AllProviders() {
		tr, ok := quotas[p]
		if !ok {
			continue
		}
		usage, err := tr.GetUsage(ctx)
		if err != nil {
			continue
		}
		collector.SetQuotaRemaining(p, float64(usage.Remaining)/float64(usage.Limit))
	}

	keys, _ := cs.ScanPrefix(ctx, "epic:")
	ids := map[string]bool{}
	for _, k := range keys {
		if strings.HasSuffix(k, ":status") {
			ids[strings.TrimSuffix(strings.TrimPrefix(k, "epic:"), ":status")] = true
		}
	}
	active := 0
	for id := range ids {
		status, _ := cs.Get(ctx, fmt.Sprintf("epic:%s:status", id))
		total := getInt(ctx, cs, fmt.Sprintf("epic:%s:task_count", id))
		complete := getInt(ctx, cs, fmt.Sprintf("epic:%s:complete_count", id))
		if status != string(domain.EpicComplete) {
			active++
		}
		if total > 0 {
			collector.SetEpicProgress(id, float64(complete)/float64(total))
		}
	}
	collector.SetEpicsActive(active)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hekate-dashboard: gather metrics: %v\n", err)
		return
	}
	enc := expfmt.NewEncoder(os.Stdout, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			fmt.Fprintf(os.Stderr, "hekate-dashboard: encode metric: %v\n", err)
			return
		}
	}
}

// =============================================================================
// Hekate supervisor entry point
// =============================================================================
// Usage:
//
//	hekate serve                      # run the supervisor loop
//	hekate serve --config path.yaml   # use a specific config file
//	hekate version                    # print version information
//	hekate health                     # verify coordination-store connectivity
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hekateai/hekate/config"
	"github.com/hekateai/hekate/internal/wiring"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealth(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func loadConfig(configPath, logLevel string) (*config.Config, error) {
	if configPath == "" {
		configPath = config.ResolveConfigPath()
	}
	cfg, err := config.NewLoader().
		WithConfigPath(configPath).
		WithValidator((*config.Config).Validate).
		Load()
	if err != nil {
		return nil, err
	}
	config.ParseLevel(logLevel, cfg)
	return cfg, nil
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	logLevel := fs.String("log-level", "", "Override the configured log level")
	projectDir := fs.String("project-dir", "", "Workspace directory spawned agents run in (default: cwd)")
	issueStoreBinary := fs.String("issue-store-binary", "", "Issue-tracker CLI binary (default: bd)")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := config.BuildLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting hekate supervisor",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	app, err := wiring.BuildSupervisor(cfg, logger, wiring.Options{
		IssueStoreBinary: *issueStoreBinary,
		ProjectDir:       *projectDir,
	})
	if err != nil {
		logger.Fatal("failed to wire supervisor", zap.Error(err))
	}
	defer app.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app.Supervisor.Run(ctx)
	logger.Info("hekate supervisor stopped")
}

func runHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		os.Exit(1)
	}

	logger := zap.NewNop()
	app, err := wiring.Build(cfg, logger, wiring.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Store.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK")
}

func printVersion() {
	fmt.Printf("hekate %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`hekate - autonomous multi-agent coding supervisor

Usage:
  hekate <command> [options]

Commands:
  serve   Run the supervisor loop
  version Show version information
  health  Verify coordination-store connectivity
  help    Show this help message

Options for 'serve':
  --config <path>             Path to configuration file (YAML)
  --log-level <level>         Override the configured log level
  --project-dir <path>        Workspace directory spawned agents run in
  --issue-store-binary <name> Issue-tracker CLI binary (default: bd)

Examples:
  hekate serve
  hekate serve --config /etc/hekate/config.yaml --log-level debug
  hekate health
  hekate version`)
}

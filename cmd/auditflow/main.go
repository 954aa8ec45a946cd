// Command auditflow runs compliance pipelines.
//
//	auditflow run pipeline.yaml              # execute a pipeline
//	auditflow run --out report.json p.yaml   # execute and export
//	auditflow plan pipeline.yaml             # validate and show the plan
//	auditflow list                           # list runs in the store
//	auditflow version                        # show version information
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/auditflow/auditflow/analysers/patterns"
	"github.com/auditflow/auditflow/analysers/report"
	"github.com/auditflow/auditflow/artifact"
	"github.com/auditflow/auditflow/component"
	"github.com/auditflow/auditflow/config"
	"github.com/auditflow/auditflow/connectors/database"
	"github.com/auditflow/auditflow/connectors/file"
	"github.com/auditflow/auditflow/exporters"
	"github.com/auditflow/auditflow/internal/metrics"
	"github.com/auditflow/auditflow/internal/telemetry"
	"github.com/auditflow/auditflow/pipeline"
	"github.com/auditflow/auditflow/pipeline/dsl"
)

// Version information, injected at build time.
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
	case "run":
		runPipeline(os.Args[2:])
	case "plan":
		runPlan(os.Args[2:])
	case "list":
		runList(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// app bundles everything a command needs after configuration is resolved.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     artifact.Store
	registry  *component.Registry
	providers *telemetry.Providers
	collector *metrics.Collector
}

func newApp(configPath string) (*app, error) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry initialization failed", zap.Error(err))
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, prometheus.DefaultRegisterer, logger)
	}

	store, err := cfg.Store.NewStore(logger)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	if collector != nil {
		store = artifact.NewInstrumentedStore(store, cfg.Store.Backend, collector)
	}

	reg := component.NewRegistry(logger)
	for name, factory := range map[string]component.ConnectorFactory{
		file.TypeName:     file.Factory,
		database.TypeName: database.Factory,
	} {
		if err := reg.RegisterConnector(name, factory); err != nil {
			return nil, err
		}
	}
	for name, factory := range map[string]component.AnalyserFactory{
		patterns.TypeName: patterns.Factory,
		report.TypeName:   report.Factory,
	} {
		if err := reg.RegisterAnalyser(name, factory); err != nil {
			return nil, err
		}
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		registry:  reg,
		providers: providers,
		collector: collector,
	}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.providers.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func runPipeline(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (YAML)")
	out := fs.String("out", "", "Export the run document to this file (.json)")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fatalf("usage: auditflow run [--config <path>] [--out <path>] <pipeline.yaml>")
	}

	a, err := newApp(*configPath)
	if err != nil {
		fatalf("%v", err)
	}
	defer a.close()

	def, err := dsl.ParseFile(fs.Arg(0))
	if err != nil {
		fatalf("parse pipeline: %v", err)
	}
	plan, err := pipeline.NewPlanner(a.registry, a.logger).Plan(def)
	if err != nil {
		fatalf("plan pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if a.cfg.Executor.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Executor.Timeout)
		defer cancel()
	}

	executor := pipeline.NewDAGExecutor(a.store, pipeline.ExecutorConfig{
		MaxConcurrency:    a.cfg.Executor.MaxConcurrency,
		DispatchPerSecond: a.cfg.Executor.DispatchPerSecond,
		Metrics:           a.collector,
	}, a.logger)

	result, err := executor.Execute(ctx, plan)
	if err != nil {
		fatalf("execute pipeline: %v", err)
	}

	printSummary(result)

	if *out != "" {
		doc, err := exporters.BuildDocument(context.Background(), result, plan, a.store)
		if err != nil {
			fatalf("build export document: %v", err)
		}
		if err := exporters.WriteFile(context.Background(), doc, *out); err != nil {
			fatalf("write export: %v", err)
		}
		fmt.Printf("Exported to %s\n", *out)
	}

	if !result.Success() {
		os.Exit(1)
	}
}

func runPlan(args []string) {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (YAML)")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fatalf("usage: auditflow plan [--config <path>] <pipeline.yaml>")
	}

	a, err := newApp(*configPath)
	if err != nil {
		fatalf("%v", err)
	}
	defer a.close()

	def, err := dsl.ParseFile(fs.Arg(0))
	if err != nil {
		fatalf("parse pipeline: %v", err)
	}
	plan, err := pipeline.NewPlanner(a.registry, a.logger).Plan(def)
	if err != nil {
		fatalf("plan pipeline: %v", err)
	}

	fmt.Printf("Pipeline: %s (%d artifacts)\n", plan.Name(), len(plan.ArtifactIDs()))
	for _, id := range plan.ArtifactIDs() {
		step, _ := plan.Step(id)
		kind := "source"
		componentType := ""
		if step.Definition.IsSource() {
			componentType = step.Definition.Source.Type
		} else {
			kind = "derived"
			componentType = step.Definition.Transform.Type
		}
		fmt.Printf("  %-20s %-8s %-12s -> %s", id, kind, componentType, step.OutputSchema)
		if len(step.Definition.Inputs) > 0 {
			fmt.Printf("  (inputs: %v)", step.Definition.Inputs)
		}
		if step.Definition.Output {
			fmt.Print("  [output]")
		}
		fmt.Println()
	}
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (YAML)")
	_ = fs.Parse(args)

	a, err := newApp(*configPath)
	if err != nil {
		fatalf("%v", err)
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runs, err := a.store.ListRuns(ctx)
	if err != nil {
		fatalf("list runs: %v", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs found")
		return
	}
	sort.Strings(runs)

	for _, runID := range runs {
		meta, err := a.store.GetJSON(ctx, runID, "run")
		if err != nil {
			fmt.Printf("  %s  (no metadata)\n", runID)
			continue
		}
		pipelineName, _ := meta["pipeline"].(string)
		status, _ := meta["status"].(string)
		started, _ := meta["started_at"].(string)
		fmt.Printf("  %s  %-20s %-10s %s\n", runID, pipelineName, status, started)
	}
}

func printSummary(result *pipeline.ExecutionResult) {
	fmt.Printf("Run %s (%s) finished in %s\n",
		result.RunID(),
		result.PipelineName(),
		result.FinishedAt().Sub(result.StartedAt()).Round(time.Millisecond),
	)
	fmt.Printf("  succeeded: %d  failed: %d  skipped: %d\n",
		len(result.Succeeded()), len(result.Failed()), len(result.Skipped()))

	for _, id := range result.Failed() {
		res, _ := result.Result(id)
		fmt.Printf("  FAILED  %s: %v\n", id, res.Err)
	}
	for _, id := range result.Skipped() {
		res, _ := result.Result(id)
		fmt.Printf("  SKIPPED %s (reason: %s)\n", id, res.SkipReason)
	}
}

func printVersion() {
	fmt.Printf("auditflow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`auditflow - compliance pipeline runner

Usage:
  auditflow <command> [options]

Commands:
  run       Execute a pipeline definition
  plan      Validate a pipeline and print the resolved plan
  list      List runs recorded in the artifact store
  version   Show version information
  help      Show this help message

Options:
  --config <path>   Path to configuration file (YAML)
  --out <path>      (run) Export the run document to this file

Examples:
  auditflow run pipeline.yaml
  auditflow run --config /etc/auditflow/config.yaml --out report.json pipeline.yaml
  auditflow plan pipeline.yaml
  auditflow list`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// Command qaengine drives the pipeline from the terminal, one stage
// per subcommand:
//
//	qaengine crawl    -target https://example.com
//	qaengine plan
//	qaengine execute  [-plan path]
//	qaengine run      -target https://example.com   (all stages)
//	qaengine coverage show | gaps | reset
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/qaengine/qaengine/internal/config"
	"github.com/qaengine/qaengine/internal/domain"
	"github.com/qaengine/qaengine/internal/observability"
	"github.com/qaengine/qaengine/internal/pipeline"
	"github.com/qaengine/qaengine/internal/report"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow)
	bold   = color.New(color.Bold)
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		red.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.GetLogLevel())
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("qaengine")
	service, err := pipeline.New(cfg, metrics, logger)
	if err != nil {
		red.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}

	var cmdErr error
	switch os.Args[1] {
	case "crawl":
		cmdErr = runCrawl(ctx, service, os.Args[2:])
	case "plan":
		cmdErr = runPlan(ctx, service, os.Args[2:])
	case "execute":
		cmdErr = runExecute(ctx, service, cfg, logger, os.Args[2:])
	case "run":
		cmdErr = runAll(ctx, service, cfg, logger, os.Args[2:])
	case "coverage":
		cmdErr = runCoverage(service, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if cmdErr != nil {
		red.Fprintf(os.Stderr, "error: %v\n", cmdErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: qaengine <crawl|plan|execute|run|coverage> [flags]")
	fmt.Fprintln(os.Stderr, "  crawl    -target URL        discover the site surface")
	fmt.Fprintln(os.Stderr, "  plan                        generate a test plan from the last crawl")
	fmt.Fprintln(os.Stderr, "  execute  [-plan path]       run the latest (or given) plan")
	fmt.Fprintln(os.Stderr, "  run      -target URL        crawl, plan, execute, merge, report")
	fmt.Fprintln(os.Stderr, "  coverage show|gaps|reset    inspect or reset the registry")
}

func runCrawl(ctx context.Context, service *pipeline.Service, args []string) error {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	target := fs.String("target", "", "target URL (defaults to QA_TARGET_URL)")
	fs.Parse(args)

	bold.Println("Crawling...")
	site, err := service.Crawl(ctx, *target)
	if err != nil {
		return err
	}
	green.Printf("✓ %d pages, %d API endpoints discovered\n", len(site.Pages), len(site.APIEndpoints))
	return nil
}

func runPlan(ctx context.Context, service *pipeline.Service, args []string) error {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	fs.Parse(args)

	bold.Println("Planning...")
	testPlan, err := service.Plan(ctx, nil)
	if err != nil {
		return err
	}
	green.Printf("✓ plan %s with %d test cases\n", testPlan.PlanID, len(testPlan.TestCases))
	return nil
}

func runExecute(ctx context.Context, service *pipeline.Service, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("execute", flag.ExitOnError)
	planPath := fs.String("plan", "", "path to a serialized plan (defaults to the stored latest plan)")
	fs.Parse(args)

	var testPlan *domain.TestPlan
	if *planPath != "" {
		data, err := os.ReadFile(*planPath)
		if err != nil {
			return fmt.Errorf("reading plan: %w", err)
		}
		testPlan = &domain.TestPlan{}
		if err := json.Unmarshal(data, testPlan); err != nil {
			return fmt.Errorf("decoding plan: %w", err)
		}
	}

	bold.Println("Executing...")
	run, err := service.Execute(ctx, testPlan)
	if err != nil {
		return err
	}
	printRunSummary(run)

	if _, err := service.MergeCoverage(run); err != nil {
		return err
	}
	return writeReports(ctx, service, cfg, logger, run)
}

func runAll(ctx context.Context, service *pipeline.Service, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	target := fs.String("target", "", "target URL (defaults to QA_TARGET_URL)")
	fs.Parse(args)

	stages := []string{"crawl", "plan", "execute", "merge", "report"}
	bar := progressbar.NewOptions(len(stages),
		progressbar.OptionSetDescription("pipeline"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
	)

	site, err := service.Crawl(ctx, *target)
	if err != nil {
		return err
	}
	bar.Add(1)
	yellow.Printf("  crawl: %d pages\n", len(site.Pages))

	testPlan, err := service.Plan(ctx, site)
	if err != nil {
		return err
	}
	bar.Add(1)
	yellow.Printf("  plan: %d test cases\n", len(testPlan.TestCases))

	run, err := service.Execute(ctx, testPlan)
	if err != nil {
		return err
	}
	bar.Add(1)
	printRunSummary(run)

	reg, err := service.MergeCoverage(run)
	if err != nil {
		return err
	}
	bar.Add(1)
	yellow.Printf("  coverage: %.0f%% overall, %d regression(s)\n",
		reg.GlobalStats.OverallScore*100, reg.GlobalStats.RegressionCount)

	if err := writeReports(ctx, service, cfg, logger, run); err != nil {
		return err
	}
	bar.Add(1)
	fmt.Println()
	return nil
}

func writeReports(ctx context.Context, service *pipeline.Service, cfg *config.Config, logger *zap.Logger, run *domain.RunResult) error {
	generator, err := report.New(service.LLMClient(), logger)
	if err != nil {
		return err
	}
	outDir := filepath.Join(service.RunsDir(), run.RunID)
	paths, err := generator.Generate(ctx, run, nil, cfg.Report.Formats, outDir)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Printf("  report: %s\n", p)
	}
	return nil
}

func printRunSummary(run *domain.RunResult) {
	if run.Totals.Failed > 0 || run.Totals.Errored > 0 {
		red.Printf("  %d/%d passed, %d failed, %d errored, %d skipped",
			run.Totals.Passed, run.Totals.Total, run.Totals.Failed, run.Totals.Errored, run.Totals.Skipped)
	} else {
		green.Printf("  %d/%d passed", run.Totals.Passed, run.Totals.Total)
	}
	if run.Totals.Flaky > 0 {
		yellow.Printf("  (%d potentially flaky)", run.Totals.Flaky)
	}
	fmt.Println()
}

func runCoverage(service *pipeline.Service, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: qaengine coverage <show|gaps|reset>")
	}

	switch args[0] {
	case "show":
		reg, err := service.Store().LoadRegistry()
		if err != nil {
			return err
		}
		if reg == nil {
			yellow.Println("no coverage registry yet; run the pipeline first")
			return nil
		}
		data, err := json.MarshalIndent(reg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil

	case "gaps":
		gaps, err := service.Gaps()
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(gaps, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil

	case "reset":
		if err := service.Store().ResetCoverage(); err != nil {
			return err
		}
		green.Println("✓ coverage registry reset")
		return nil

	default:
		return fmt.Errorf("unknown coverage subcommand %q", args[0])
	}
}

func initLogger(level string) *zap.Logger {
	zapLevel := zapcore.WarnLevel // keep CLI output readable; -v via LOG_LEVEL
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

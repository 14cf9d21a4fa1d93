// Package workflows defines the Temporal workflow threading the
// pipeline stages together: crawl, plan, execute, coverage merge, and
// report. Each stage is an activity; per-test and per-page failures
// never reach this level, only whole-stage crashes do.
package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Activity names - must match registered activity names
const (
	CrawlActivityName   = "CrawlActivity"
	PlanActivityName    = "PlanActivity"
	ExecuteActivityName = "ExecuteActivity"
	MergeActivityName   = "MergeCoverageActivity"
	ReportActivityName  = "ReportActivity"
)

// QARunWorkflow drives one full crawl → plan → execute → merge →
// report cycle. A failed stage ends the run; partial results already
// persisted by earlier stages remain on disk.
func QARunWorkflow(ctx workflow.Context, input RunInput) (*RunOutput, error) {
	logger := workflow.GetLogger(ctx)
	startTime := workflow.Now(ctx)

	logger.Info("Starting QA run workflow", "target_url", input.TargetURL)

	output := &RunOutput{Status: "running"}
	fail := func(stage string, err error) (*RunOutput, error) {
		output.Status = "failed"
		output.Error = fmt.Sprintf("%s failed: %v", stage, err)
		output.CompletedAt = workflow.Now(ctx)
		output.TotalDuration = output.CompletedAt.Sub(startTime)
		return output, nil // Return output even on failure for visibility
	}

	// Stage 1: Crawl
	if !input.SkipCrawl {
		crawlOutput, err := executeCrawl(ctx, input)
		if err != nil {
			return fail("crawl", err)
		}
		logger.Info("Crawl completed",
			"pages_found", crawlOutput.PagesFound,
			"api_endpoints", crawlOutput.APIEndpoints)
	}

	// Stage 2: Plan
	if !input.SkipPlan {
		planOutput, err := executePlan(ctx)
		if err != nil {
			return fail("plan", err)
		}
		logger.Info("Plan completed",
			"plan_id", planOutput.PlanID,
			"test_cases", planOutput.TestCases)
	}

	// Stage 3: Execute
	executeOutput, err := executeTests(ctx)
	if err != nil {
		return fail("execute", err)
	}
	logger.Info("Execution completed",
		"run_id", executeOutput.RunID,
		"passed", executeOutput.Totals.Passed,
		"failed", executeOutput.Totals.Failed)
	output.RunID = executeOutput.RunID
	output.Totals = executeOutput.Totals

	// Stage 4: Coverage merge
	mergeOutput, err := executeMerge(ctx, executeOutput.RunID)
	if err != nil {
		return fail("coverage merge", err)
	}
	logger.Info("Coverage merged",
		"overall_score", mergeOutput.OverallScore,
		"regressions", mergeOutput.RegressionCount)
	output.OverallScore = mergeOutput.OverallScore
	output.Regressions = mergeOutput.RegressionCount

	// Stage 5: Reports (best effort)
	reportOutput, err := executeReport(ctx, executeOutput.RunID)
	if err != nil {
		logger.Warn("Report generation failed", "error", err)
	} else if len(reportOutput.ReportPaths) > 0 {
		output.ReportPath = reportOutput.ReportPaths[0]
	}

	output.Status = "completed"
	output.CompletedAt = workflow.Now(ctx)
	output.TotalDuration = output.CompletedAt.Sub(startTime)

	logger.Info("QA run workflow completed",
		"run_id", output.RunID,
		"status", output.Status,
		"duration", output.TotalDuration)

	return output, nil
}

func executeCrawl(ctx workflow.Context, input RunInput) (*CrawlOutput, error) {
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var output CrawlOutput
	err := workflow.ExecuteActivity(ctx, CrawlActivityName, CrawlInput{TargetURL: input.TargetURL}).Get(ctx, &output)
	return &output, err
}

func executePlan(ctx workflow.Context) (*PlanOutput, error) {
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var output PlanOutput
	err := workflow.ExecuteActivity(ctx, PlanActivityName, PlanInput{}).Get(ctx, &output)
	return &output, err
}

func executeTests(ctx workflow.Context) (*ExecuteOutput, error) {
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: time.Hour,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    1, // tests are not idempotent against a live target
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var output ExecuteOutput
	err := workflow.ExecuteActivity(ctx, ExecuteActivityName, ExecuteInput{}).Get(ctx, &output)
	return &output, err
}

func executeMerge(ctx workflow.Context, runID string) (*MergeOutput, error) {
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var output MergeOutput
	err := workflow.ExecuteActivity(ctx, MergeActivityName, MergeInput{RunID: runID}).Get(ctx, &output)
	return &output, err
}

func executeReport(ctx workflow.Context, runID string) (*ReportOutput, error) {
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var output ReportOutput
	err := workflow.ExecuteActivity(ctx, ReportActivityName, ReportInput{RunID: runID}).Get(ctx, &output)
	return &output, err
}

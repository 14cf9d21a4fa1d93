package workflows

import (
	"time"

	"github.com/qaengine/qaengine/internal/domain"
)

// RunInput is the input for the QA run workflow.
type RunInput struct {
	TargetURL string `json:"target_url"`

	// Stage toggles: a run may reuse the stored site model or plan
	// instead of recomputing them.
	SkipCrawl bool `json:"skip_crawl"`
	SkipPlan  bool `json:"skip_plan"`
}

// RunOutput is the output of the QA run workflow.
type RunOutput struct {
	RunID         string           `json:"run_id"`
	Status        string           `json:"status"`
	Totals        domain.RunTotals `json:"totals"`
	OverallScore  float64          `json:"overall_score"`
	Regressions   int              `json:"regressions"`
	ReportPath    string           `json:"report_path,omitempty"`
	Error         string           `json:"error,omitempty"`
	CompletedAt   time.Time        `json:"completed_at"`
	TotalDuration time.Duration    `json:"total_duration"`
}

// CrawlInput is input for the crawl activity.
type CrawlInput struct {
	TargetURL string `json:"target_url"`
}

// CrawlOutput is output from the crawl activity.
type CrawlOutput struct {
	PagesFound   int           `json:"pages_found"`
	APIEndpoints int           `json:"api_endpoints"`
	Duration     time.Duration `json:"duration"`
}

// PlanInput is input for the plan activity.
type PlanInput struct{}

// PlanOutput is output from the plan activity.
type PlanOutput struct {
	PlanID    string        `json:"plan_id"`
	TestCases int           `json:"test_cases"`
	Duration  time.Duration `json:"duration"`
}

// ExecuteInput is input for the execute activity.
type ExecuteInput struct{}

// ExecuteOutput is output from the execute activity.
type ExecuteOutput struct {
	RunID    string           `json:"run_id"`
	Totals   domain.RunTotals `json:"totals"`
	Duration time.Duration    `json:"duration"`
}

// MergeInput is input for the coverage merge activity.
type MergeInput struct {
	RunID string `json:"run_id"`
}

// MergeOutput is output from the coverage merge activity.
type MergeOutput struct {
	OverallScore    float64 `json:"overall_score"`
	RegressionCount int     `json:"regression_count"`
	PagesTested     int     `json:"pages_tested"`
}

// ReportInput is input for the report activity.
type ReportInput struct {
	RunID string `json:"run_id"`
}

// ReportOutput is output from the report activity.
type ReportOutput struct {
	ReportPaths []string `json:"report_paths"`
}

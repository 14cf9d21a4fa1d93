package domain

import "time"

// StepResult records the outcome of one precondition or step action.
type StepResult struct {
	Order          int          `json:"order"`
	Action         Action       `json:"action"`
	Status         ResultStatus `json:"status"`
	ErrorMessage   string       `json:"error_message,omitempty"`
	ScreenshotPath string       `json:"screenshot_path,omitempty"`
	Adapted        bool         `json:"adapted"`
	StrategyUsed   string       `json:"strategy_used,omitempty"`
}

// AssertionResult records the outcome of one assertion evaluation.
type AssertionResult struct {
	Assertion      Assertion    `json:"assertion"`
	Status         ResultStatus `json:"status"`
	ActualValue    string       `json:"actual_value,omitempty"`
	ErrorMessage   string       `json:"error_message,omitempty"`
	ScreenshotPath string       `json:"screenshot_path,omitempty"`
}

// FallbackRecord logs one AI-assisted recovery invocation during step execution.
type FallbackRecord struct {
	StepOrder    int       `json:"step_order"`
	Decision     string    `json:"decision"` // retry | skip | adapt | abort
	NewSelector  string    `json:"new_selector,omitempty"`
	NewAction    *Action   `json:"new_action,omitempty"`
	Reasoning    string    `json:"reasoning,omitempty"`
	InvokedAt    time.Time `json:"invoked_at"`
	BudgetUsed   int       `json:"budget_used"`
	BudgetTotal  int       `json:"budget_total"`
}

// Evidence lists artifact paths captured for one test's execution.
type Evidence struct {
	ScreenshotPaths []string `json:"screenshot_paths,omitempty"`
	ConsoleLogPath  string   `json:"console_log_path,omitempty"`
	NetworkLogPath  string   `json:"network_log_path,omitempty"`
	DOMSnapshotPath string   `json:"dom_snapshot_path,omitempty"`
	VideoPath       string   `json:"video_path,omitempty"`
}

// TestResult is the executor's output for one TestCase.
type TestResult struct {
	TestID              string            `json:"test_id"`
	Name                string            `json:"name"`
	Category            Category          `json:"category"`
	Priority            Priority          `json:"priority"`
	TargetPageID        string            `json:"target_page_id"`
	ActualPageID        string            `json:"actual_page_id,omitempty"`
	ActualURL           string            `json:"actual_url,omitempty"`
	CoverageSignature   string            `json:"coverage_signature"`
	Result              ResultStatus      `json:"result"`
	Duration            time.Duration     `json:"duration"`
	FailureReason       string            `json:"failure_reason,omitempty"`
	Evidence            Evidence          `json:"evidence"`
	FallbackRecords     []FallbackRecord  `json:"fallback_records,omitempty"`
	PreconditionResults []StepResult      `json:"precondition_results,omitempty"`
	StepResults         []StepResult      `json:"step_results"`
	AssertionResults    []AssertionResult `json:"assertion_results"`
	AssertionsPassed    int               `json:"assertions_passed"`
	AssertionsFailed    int               `json:"assertions_failed"`
	AssertionsTotal     int               `json:"assertions_total"`
	PotentiallyFlaky    bool              `json:"potentially_flaky"`
}

// EffectivePageID returns actual_page_id if known, else target_page_id,
// else test_id — the coverage merger's page_id fallback chain.
func (r *TestResult) EffectivePageID() string {
	if r.ActualPageID != "" {
		return r.ActualPageID
	}
	if r.TargetPageID != "" {
		return r.TargetPageID
	}
	return r.TestID
}

// TallyAssertions recomputes AssertionsPassed/Failed/Total from AssertionResults.
func (r *TestResult) TallyAssertions() {
	r.AssertionsPassed, r.AssertionsFailed, r.AssertionsTotal = 0, 0, len(r.AssertionResults)
	for _, ar := range r.AssertionResults {
		switch ar.Status {
		case ResultPass:
			r.AssertionsPassed++
		case ResultFail, ResultError:
			r.AssertionsFailed++
		}
	}
}

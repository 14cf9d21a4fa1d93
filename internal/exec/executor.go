// Package exec runs a test plan against the live site: a worker pool
// of isolated browser sessions, per-test evidence capture, AI-assisted
// recovery from failed steps within a bounded budget, and a flake
// re-run pass for failures.
package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/browserfactory"
	"github.com/qaengine/qaengine/internal/crawl/urlnorm"
	"github.com/qaengine/qaengine/internal/domain"
	"github.com/qaengine/qaengine/internal/exec/action"
	"github.com/qaengine/qaengine/internal/exec/assertion"
	"github.com/qaengine/qaengine/internal/llm"
)

// Config controls one plan execution.
type Config struct {
	MaxParallelContexts       int
	MaxExecutionTime          time.Duration // 0 disables the global budget
	AIMaxFallbackCallsPerTest int
	SmartResolve              bool
	FlakeDetection            bool
	RunsDir                   string
	BaselineDir               string
	Headless                  bool
}

// DefaultConfig mirrors how a single-operator run is usually driven.
func DefaultConfig() Config {
	return Config{
		MaxParallelContexts:       3,
		MaxExecutionTime:          30 * time.Minute,
		AIMaxFallbackCallsPerTest: 3,
		SmartResolve:              true,
		RunsDir:                   "runs",
		Headless:                  true,
	}
}

// AuthStateProvider lazily produces the storage state for
// auth-required tests. It is called at most once per run, on the first
// test that needs it; returning nil means tests run with an empty jar
// and observe redirects.
type AuthStateProvider func(ctx context.Context) []byte

// Executor drives a plan to a RunResult.
type Executor struct {
	factory   *browserfactory.Factory
	llmClient *llm.ClaudeClient
	checker   *assertion.Checker
	cfg       Config
	logger    *zap.Logger

	authProvider AuthStateProvider
	authOnce     sync.Once
	authBlob     []byte
}

func New(factory *browserfactory.Factory, llmClient *llm.ClaudeClient, authProvider AuthStateProvider, cfg Config, logger *zap.Logger) *Executor {
	if cfg.MaxParallelContexts <= 0 {
		cfg.MaxParallelContexts = 1
	}
	if cfg.AIMaxFallbackCallsPerTest < 0 {
		cfg.AIMaxFallbackCallsPerTest = 0
	}
	return &Executor{
		factory:      factory,
		llmClient:    llmClient,
		checker:      assertion.NewChecker(llmClient, logger),
		cfg:          cfg,
		logger:       logger,
		authProvider: authProvider,
	}
}

// Execute runs every test of the plan and returns the RunResult. Tests
// run priority-ascending, grouped by target page, across up to
// MaxParallelContexts workers; each worker owns its session for the
// duration of one test only. Results flow through a collector channel
// and are assembled single-threaded.
func (e *Executor) Execute(ctx context.Context, testPlan *domain.TestPlan) (*domain.RunResult, error) {
	runID := uuid.New().String()
	run := &domain.RunResult{
		RunID:     runID,
		PlanID:    testPlan.PlanID,
		TargetURL: testPlan.TargetURL,
		StartedAt: time.Now().UTC(),
	}

	evidenceRoot := filepath.Join(e.cfg.RunsDir, runID, "evidence")
	if err := os.MkdirAll(evidenceRoot, 0o755); err != nil {
		return nil, fmt.Errorf("exec: creating evidence dir: %w", err)
	}

	ordered := orderTests(testPlan.TestCases)

	workers := e.cfg.MaxParallelContexts
	if workers > len(ordered) {
		workers = len(ordered)
	}
	if workers < 1 {
		workers = 1
	}

	tests := make(chan *domain.TestCase)
	results := make(chan domain.TestResult, len(ordered))
	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tc := range tests {
				if e.cfg.MaxExecutionTime > 0 && time.Since(start) > e.cfg.MaxExecutionTime {
					results <- skippedResult(tc, "Time limit reached")
					continue
				}
				results <- e.runTest(ctx, tc, filepath.Join(evidenceRoot, tc.TestID))
			}
		}()
	}

	for i := range ordered {
		tests <- ordered[i]
	}
	close(tests)
	wg.Wait()
	close(results)

	for res := range results {
		run.TestResults = append(run.TestResults, res)
	}
	// Collector order is nondeterministic across workers; restore plan order.
	indexOf := make(map[string]int, len(ordered))
	for i, tc := range ordered {
		indexOf[tc.TestID] = i
	}
	sort.SliceStable(run.TestResults, func(i, j int) bool {
		return indexOf[run.TestResults[i].TestID] < indexOf[run.TestResults[j].TestID]
	})

	if e.cfg.FlakeDetection {
		e.rerunFailures(ctx, testPlan, run)
	}

	run.CompletedAt = time.Now().UTC()
	run.RecomputeTotals()
	return run, nil
}

// orderTests sorts by priority ascending (stable, so plan order breaks
// ties) and then groups by target page so one page's tests run near
// each other, keeping its server-side state warm.
func orderTests(tcs []domain.TestCase) []*domain.TestCase {
	byPriority := make([]*domain.TestCase, len(tcs))
	for i := range tcs {
		byPriority[i] = &tcs[i]
	}
	sort.SliceStable(byPriority, func(i, j int) bool {
		return byPriority[i].Priority < byPriority[j].Priority
	})

	groupOrder := []string{}
	groups := map[string][]*domain.TestCase{}
	for _, tc := range byPriority {
		if _, ok := groups[tc.TargetPageID]; !ok {
			groupOrder = append(groupOrder, tc.TargetPageID)
		}
		groups[tc.TargetPageID] = append(groups[tc.TargetPageID], tc)
	}

	var ordered []*domain.TestCase
	for _, pageID := range groupOrder {
		ordered = append(ordered, groups[pageID]...)
	}
	return ordered
}

// authState resolves the login storage state at most once per run.
func (e *Executor) authState(ctx context.Context) []byte {
	e.authOnce.Do(func() {
		if e.authProvider != nil {
			e.authBlob = e.authProvider(ctx)
		}
	})
	return e.authBlob
}

// runTest owns one test end to end: session, dynamic variables,
// preconditions, steps with AI fallback, assertions, evidence. A dead
// session or a panic becomes an error result, never a crashed worker.
func (e *Executor) runTest(ctx context.Context, tc *domain.TestCase, evidenceDir string) (result domain.TestResult) {
	started := time.Now()
	result = domain.TestResult{
		TestID:            tc.TestID,
		Name:              tc.Name,
		Category:          tc.Category,
		Priority:          tc.Priority,
		TargetPageID:      tc.TargetPageID,
		CoverageSignature: tc.CoverageSignature,
	}
	defer func() {
		if r := recover(); r != nil {
			result.Result = domain.ResultError
			result.FailureReason = fmt.Sprintf("test crashed: %v", r)
		}
		result.Duration = time.Since(started)
	}()

	_ = os.MkdirAll(evidenceDir, 0o755)

	var storageState []byte
	if tc.RequiresAuth {
		storageState = e.authState(ctx)
	}
	session, err := e.factory.NewSession(browserfactory.Options{
		Headless:     e.cfg.Headless,
		StorageState: storageState,
	})
	if err != nil {
		result.Result = domain.ResultError
		result.FailureReason = fmt.Sprintf("acquiring session: %v", err)
		return result
	}
	defer session.Close()

	var mu sync.Mutex
	var consoleErrors []string
	var requests []domain.NetworkRequest
	session.Page.OnConsole(func(msg playwright.ConsoleMessage) {
		if msg.Type() == "error" {
			mu.Lock()
			consoleErrors = append(consoleErrors, msg.Text())
			mu.Unlock()
		}
	})
	session.Page.OnResponse(func(resp playwright.Response) {
		mu.Lock()
		requests = append(requests, domain.NetworkRequest{
			Method: resp.Request().Method(),
			URL:    resp.URL(),
			Status: resp.Status(),
			Failed: resp.Status() >= 400,
		})
		mu.Unlock()
	})

	// One timestamp per test: preconditions and steps see the same value.
	resolveDynamicVars(tc, time.Now().UTC(), e.logger)

	timeout := time.Duration(tc.TimeoutSeconds) * time.Second
	runner := action.NewRunner(timeout, e.cfg.SmartResolve)

	// Preconditions are best effort: a failure is recorded but never fatal.
	for i, pre := range tc.Preconditions {
		sr := e.runStep(ctx, session.Page, runner, tc, pre, i, evidenceDir, "pre", nil, nil, &consoleErrors, &mu)
		result.PreconditionResults = append(result.PreconditionResults, sr)
	}

	budget := e.cfg.AIMaxFallbackCallsPerTest
	aborted := false
	for i := 0; i < len(tc.Steps); i++ {
		if aborted {
			result.StepResults = append(result.StepResults, domain.StepResult{
				Order:        i,
				Action:       tc.Steps[i],
				Status:       domain.ResultSkip,
				ErrorMessage: "aborted",
			})
			continue
		}
		sr := e.runStep(ctx, session.Page, runner, tc, tc.Steps[i], i, evidenceDir, "step", &budget, &result.FallbackRecords, &consoleErrors, &mu)
		if sr.ErrorMessage == "aborted" && sr.Status == domain.ResultFail {
			aborted = true
		}
		result.StepResults = append(result.StepResults, sr)
	}

	mu.Lock()
	envConsole := append([]string(nil), consoleErrors...)
	envRequests := append([]domain.NetworkRequest(nil), requests...)
	mu.Unlock()

	env := &assertion.Env{
		Page:          session.Page,
		ConsoleErrors: envConsole,
		Requests:      envRequests,
		BaselineDir:   e.cfg.BaselineDir,
		BaselineKey:   tc.TestID,
		EvidenceDir:   evidenceDir,
	}
	for _, a := range tc.Assertions {
		result.AssertionResults = append(result.AssertionResults, e.checker.Check(ctx, env, a))
	}
	result.TallyAssertions()

	result.ActualURL = session.Page.URL()
	if normalized, err := urlnorm.Normalize(result.ActualURL, result.ActualURL); err == nil {
		result.ActualPageID = urlnorm.PageID(normalized)
	}

	result.Result = deriveResult(aborted, result.AssertionsFailed)
	if result.Result != domain.ResultPass && result.FailureReason == "" {
		result.FailureReason = firstFailureReason(&result)
	}

	e.writeEvidence(evidenceDir, &result, envConsole, envRequests, session.Page)
	return result
}

// runStep executes one action with before/after screenshots. For
// steps (budget != nil), a failure consults the AI fallback while the
// budget lasts; preconditions (budget == nil) just record the failure.
func (e *Executor) runStep(ctx context.Context, page playwright.Page, runner *action.Runner, tc *domain.TestCase, act domain.Action, order int, evidenceDir, kind string, budget *int, records *[]domain.FallbackRecord, consoleErrors *[]string, mu *sync.Mutex) domain.StepResult {
	sr := domain.StepResult{Order: order, Action: act, Status: domain.ResultPass}

	e.captureStepScreenshot(page, evidenceDir, fmt.Sprintf("%s-%02d-before.png", kind, order))

	strategy, err := runner.Run(page, act)
	sr.StrategyUsed = strategy

	if err != nil && budget != nil {
		err = e.recoverStep(ctx, page, runner, tc, &sr, act, order, err, budget, records, consoleErrors, mu)
	}

	if err != nil {
		sr.Status = domain.ResultFail
		if sr.ErrorMessage == "" {
			sr.ErrorMessage = err.Error()
		}
	}

	if path := e.captureStepScreenshot(page, evidenceDir, fmt.Sprintf("%s-%02d-after.png", kind, order)); path != "" {
		sr.ScreenshotPath = path
	}
	return sr
}

// recoverStep consults the fallback LLM about a failed step and
// applies its decision. Returns nil if the step ultimately succeeded.
// An abort decision surfaces as a failure with ErrorMessage "aborted",
// which the step loop translates into skipping the remainder.
func (e *Executor) recoverStep(ctx context.Context, page playwright.Page, runner *action.Runner, tc *domain.TestCase, sr *domain.StepResult, act domain.Action, order int, stepErr error, budget *int, records *[]domain.FallbackRecord, consoleErrors *[]string, mu *sync.Mutex) error {
	if *budget <= 0 {
		return stepErr
	}
	*budget--

	mu.Lock()
	recent := append([]string(nil), *consoleErrors...)
	mu.Unlock()

	resp := e.aiFallback(ctx, page, tc, act, order, stepErr, recent)
	*records = append(*records, domain.FallbackRecord{
		StepOrder:   order,
		Decision:    resp.Decision,
		NewSelector: resp.NewSelector,
		NewAction:   resp.NewAction,
		Reasoning:   resp.Reasoning,
		InvokedAt:   time.Now().UTC(),
		BudgetUsed:  e.cfg.AIMaxFallbackCallsPerTest - *budget,
		BudgetTotal: e.cfg.AIMaxFallbackCallsPerTest,
	})

	switch resp.Decision {
	case DecisionRetry:
		retried := act
		retried.Selector = resp.NewSelector
		if _, err := runner.Run(page, retried); err != nil {
			return fmt.Errorf("retry with %s: %w", resp.NewSelector, err)
		}
		sr.StrategyUsed = "ai_fallback"
		return nil
	case DecisionAdapt:
		if _, err := runner.Run(page, *resp.NewAction); err != nil {
			return fmt.Errorf("adapted action: %w", err)
		}
		sr.Adapted = true
		return nil
	case DecisionAbort:
		sr.ErrorMessage = "aborted"
		return stepErr
	default: // skip
		return stepErr
	}
}

func (e *Executor) captureStepScreenshot(page playwright.Page, evidenceDir, name string) string {
	path := filepath.Join(evidenceDir, name)
	if _, err := page.Screenshot(playwright.PageScreenshotOptions{Path: playwright.String(path)}); err != nil {
		return ""
	}
	return path
}

// deriveResult maps step/assertion outcomes to the test verdict: pass
// when nothing aborted and every assertion held; error when an abort
// happened with no failing assertion to blame; fail otherwise.
func deriveResult(aborted bool, assertionsFailed int) domain.ResultStatus {
	if !aborted && assertionsFailed == 0 {
		return domain.ResultPass
	}
	if aborted && assertionsFailed == 0 {
		return domain.ResultError
	}
	return domain.ResultFail
}

func firstFailureReason(result *domain.TestResult) string {
	for _, ar := range result.AssertionResults {
		if ar.Status == domain.ResultFail {
			return ar.ErrorMessage
		}
	}
	for _, sr := range result.StepResults {
		if sr.Status == domain.ResultFail {
			return sr.ErrorMessage
		}
	}
	return ""
}

func skippedResult(tc *domain.TestCase, reason string) domain.TestResult {
	return domain.TestResult{
		TestID:            tc.TestID,
		Name:              tc.Name,
		Category:          tc.Category,
		Priority:          tc.Priority,
		TargetPageID:      tc.TargetPageID,
		CoverageSignature: tc.CoverageSignature,
		Result:            domain.ResultSkip,
		FailureReason:     reason,
	}
}

// rerunFailures re-executes each failed test once in a fresh
// video-recording session. A second-run pass marks the original as
// potentially flaky but leaves its verdict untouched: flake detection
// is observability, not retry-to-green.
func (e *Executor) rerunFailures(ctx context.Context, testPlan *domain.TestPlan, run *domain.RunResult) {
	byID := make(map[string]*domain.TestCase, len(testPlan.TestCases))
	for i := range testPlan.TestCases {
		byID[testPlan.TestCases[i].TestID] = &testPlan.TestCases[i]
	}

	for i := range run.TestResults {
		res := &run.TestResults[i]
		if res.Result != domain.ResultFail {
			continue
		}
		tc, ok := byID[res.TestID]
		if !ok {
			continue
		}

		videoDir := filepath.Join(e.cfg.RunsDir, run.RunID, "evidence", res.TestID)
		rerun := e.runTestWithVideo(ctx, tc, videoDir)
		if rerun.Result == domain.ResultPass {
			res.PotentiallyFlaky = true
			res.Evidence.VideoPath = rerun.Evidence.VideoPath
			if e.logger != nil {
				e.logger.Info("exec: test passed on re-run, flagging as potentially flaky",
					zap.String("test_id", res.TestID))
			}
		}
	}
}

// runTestWithVideo runs one test in a video-recording session by
// temporarily routing session creation through video options.
func (e *Executor) runTestWithVideo(ctx context.Context, tc *domain.TestCase, videoDir string) domain.TestResult {
	var storageState []byte
	if tc.RequiresAuth {
		storageState = e.authState(ctx)
	}
	session, err := e.factory.NewSession(browserfactory.Options{
		Headless:     e.cfg.Headless,
		StorageState: storageState,
		RecordVideo:  true,
		VideoDir:     videoDir,
	})
	if err != nil {
		return domain.TestResult{TestID: tc.TestID, Result: domain.ResultError}
	}
	defer session.Close()

	// Fresh copy so the re-run resolves its own dynamic variables.
	fresh := *tc
	fresh.Steps = append([]domain.Action(nil), tc.Steps...)
	fresh.Preconditions = append([]domain.Action(nil), tc.Preconditions...)
	resolveDynamicVars(&fresh, time.Now().UTC(), e.logger)

	timeout := time.Duration(fresh.TimeoutSeconds) * time.Second
	runner := action.NewRunner(timeout, e.cfg.SmartResolve)

	result := domain.TestResult{TestID: fresh.TestID}
	for _, pre := range fresh.Preconditions {
		_, _ = runner.Run(session.Page, pre)
	}
	// No AI fallback on the re-run: the point is whether the test passes
	// unchanged, so step failures just fall through to the assertions.
	for _, step := range fresh.Steps {
		_, _ = runner.Run(session.Page, step)
	}
	env := &assertion.Env{Page: session.Page, BaselineDir: e.cfg.BaselineDir, BaselineKey: fresh.TestID}
	failed := 0
	for _, a := range fresh.Assertions {
		if ar := e.checker.Check(ctx, env, a); ar.Status == domain.ResultFail {
			failed++
		}
	}
	result.Result = deriveResult(false, failed)

	if video := session.Page.Video(); video != nil {
		if path, err := video.Path(); err == nil {
			result.Evidence.VideoPath = path
		}
	}
	return result
}

// writeEvidence persists the console log, network log, and a DOM
// snapshot next to the step screenshots.
func (e *Executor) writeEvidence(evidenceDir string, result *domain.TestResult, consoleErrors []string, requests []domain.NetworkRequest, page playwright.Page) {
	consolePath := filepath.Join(evidenceDir, "console.log")
	if err := os.WriteFile(consolePath, []byte(strings.Join(consoleErrors, "\n")), 0o644); err == nil {
		result.Evidence.ConsoleLogPath = consolePath
	}

	networkPath := filepath.Join(evidenceDir, "network.json")
	if data, err := json.MarshalIndent(requests, "", "  "); err == nil {
		if err := os.WriteFile(networkPath, data, 0o644); err == nil {
			result.Evidence.NetworkLogPath = networkPath
		}
	}

	if content, err := page.Content(); err == nil {
		domPath := filepath.Join(evidenceDir, "dom.html")
		if err := os.WriteFile(domPath, []byte(content), 0o644); err == nil {
			result.Evidence.DOMSnapshotPath = domPath
		}
	}

	for _, sr := range result.StepResults {
		if sr.ScreenshotPath != "" {
			result.Evidence.ScreenshotPaths = append(result.Evidence.ScreenshotPaths, sr.ScreenshotPath)
		}
	}
}

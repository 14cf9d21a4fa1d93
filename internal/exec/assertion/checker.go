// Package assertion evaluates every assertion kind against the
// current page state: element visibility, text, URL, screenshot diff,
// network and console logs, and LLM-judged natural-language intent.
package assertion

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/domain"
	"github.com/qaengine/qaengine/internal/llm"
)

// DefaultScreenshotTolerance is the allowed pixel-diff ratio when the
// assertion carries none.
const DefaultScreenshotTolerance = 0.05

// benignConsolePatterns are console errors that fail nothing: every
// site in the wild triggers at least one of these.
var benignConsolePatterns = []string{
	"favicon",
	"net::ERR_BLOCKED_BY_CLIENT",
	"third-party cookie",
	"DevTools",
}

// Env is the page state one assertion evaluates against.
type Env struct {
	Page          playwright.Page
	ConsoleErrors []string
	Requests      []domain.NetworkRequest
	BaselineDir   string // screenshot_diff baselines; empty means first run everywhere
	BaselineKey   string // file stem for this test's baseline
	EvidenceDir   string // failed-assertion screenshots land here
}

// Checker evaluates assertions. The LLM client may be nil, in which
// case ai_evaluate fails with low confidence.
type Checker struct {
	llmClient *llm.ClaudeClient
	logger    *zap.Logger
}

func NewChecker(llmClient *llm.ClaudeClient, logger *zap.Logger) *Checker {
	return &Checker{llmClient: llmClient, logger: logger}
}

// Check evaluates one assertion, never panicking or raising: any
// evaluation error becomes a failed AssertionResult.
func (c *Checker) Check(ctx context.Context, env *Env, a domain.Assertion) domain.AssertionResult {
	res := domain.AssertionResult{Assertion: a, Status: domain.ResultFail}

	var pass bool
	var actual string
	var err error

	switch a.AssertionType {
	case domain.AssertElementVisible:
		pass, err = c.elementVisible(env.Page, a.Selector)
	case domain.AssertElementHidden:
		pass, err = c.elementHidden(env.Page, a.Selector)
	case domain.AssertTextContains:
		actual, err = c.elementText(env.Page, a.Selector)
		pass = err == nil && strings.Contains(actual, a.ExpectedValue)
	case domain.AssertTextEquals:
		actual, err = c.elementText(env.Page, a.Selector)
		pass = err == nil && strings.TrimSpace(actual) == a.ExpectedValue
	case domain.AssertTextMatches:
		actual, err = c.elementText(env.Page, a.Selector)
		if err == nil {
			var re *regexp.Regexp
			if re, err = regexp.Compile(a.ExpectedValue); err == nil {
				pass = re.MatchString(actual)
			}
		}
	case domain.AssertURLMatches:
		actual = env.Page.URL()
		pass = strings.Contains(actual, a.ExpectedValue)
		if !pass {
			if re, reErr := regexp.Compile(a.ExpectedValue); reErr == nil {
				pass = re.MatchString(actual)
			}
		}
	case domain.AssertScreenshotDiff:
		pass, actual, err = c.screenshotDiff(env, a)
	case domain.AssertElementCount:
		var count int
		count, err = env.Page.Locator(a.Selector).Count()
		actual = strconv.Itoa(count)
		if err == nil {
			var want int
			if want, err = strconv.Atoi(strings.TrimSpace(a.ExpectedValue)); err == nil {
				pass = count == want
			}
		}
	case domain.AssertNetworkRequestMade:
		for _, req := range env.Requests {
			if strings.Contains(req.URL, a.ExpectedValue) {
				pass = true
				actual = req.Method + " " + req.URL
				break
			}
		}
	case domain.AssertNoConsoleErrors:
		var remaining []string
		for _, msg := range env.ConsoleErrors {
			if !isBenignConsoleError(msg) {
				remaining = append(remaining, msg)
			}
		}
		pass = len(remaining) == 0
		if !pass {
			actual = strings.Join(remaining, "\n")
		}
	case domain.AssertResponseStatus:
		var want int
		if want, err = strconv.Atoi(strings.TrimSpace(a.ExpectedValue)); err == nil {
			for _, req := range env.Requests {
				if req.Status == want {
					pass = true
					actual = fmt.Sprintf("%d %s", req.Status, req.URL)
					break
				}
			}
		}
	case domain.AssertAIEvaluate:
		pass, actual, err = c.aiEvaluate(ctx, env, a)
	default:
		err = fmt.Errorf("unknown assertion type %q", a.AssertionType)
	}

	res.ActualValue = actual
	if err != nil {
		res.ErrorMessage = err.Error()
	}
	if pass {
		res.Status = domain.ResultPass
	} else {
		if res.ErrorMessage == "" {
			res.ErrorMessage = fmt.Sprintf("%s: expected %q", a.AssertionType, a.ExpectedValue)
		}
		c.captureFailureScreenshot(env, &res)
	}
	return res
}

func (c *Checker) elementVisible(page playwright.Page, selector string) (bool, error) {
	_, err := page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(5000),
	})
	return err == nil, nil
}

// elementHidden passes when the element is absent from the DOM, or
// present but not visible.
func (c *Checker) elementHidden(page playwright.Page, selector string) (bool, error) {
	count, err := page.Locator(selector).Count()
	if err != nil {
		return false, err
	}
	if count == 0 {
		return true, nil
	}
	visible, err := page.Locator(selector).First().IsVisible()
	if err != nil {
		return false, err
	}
	return !visible, nil
}

// elementText reads the element's text, or the body text when the
// assertion has no selector.
func (c *Checker) elementText(page playwright.Page, selector string) (string, error) {
	if selector == "" {
		selector = "body"
	}
	text, err := page.Locator(selector).First().TextContent()
	if err != nil {
		return "", fmt.Errorf("reading text of %s: %w", selector, err)
	}
	return text, nil
}

func isBenignConsoleError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, pattern := range benignConsolePatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// screenshotDiff compares the current viewport (or full page, when
// expected_value is "full_page") against the stored baseline. A
// missing baseline passes and becomes the baseline: the first run of a
// visual test has nothing to regress from.
func (c *Checker) screenshotDiff(env *Env, a domain.Assertion) (bool, string, error) {
	// Let fonts and animations settle before capturing.
	env.Page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(3000),
	})
	env.Page.WaitForTimeout(500)

	fullPage := a.ExpectedValue == "full_page"
	shot, err := env.Page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
	})
	if err != nil {
		return false, "", fmt.Errorf("capturing screenshot: %w", err)
	}

	if env.BaselineDir == "" || env.BaselineKey == "" {
		return true, "no baseline configured", nil
	}
	baselinePath := filepath.Join(env.BaselineDir, env.BaselineKey+".png")
	baseline, err := os.ReadFile(baselinePath)
	if os.IsNotExist(err) {
		_ = os.MkdirAll(env.BaselineDir, 0o755)
		if writeErr := os.WriteFile(baselinePath, shot, 0o644); writeErr != nil && c.logger != nil {
			c.logger.Warn("assertion: writing screenshot baseline failed", zap.Error(writeErr))
		}
		return true, "baseline created", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("reading baseline: %w", err)
	}

	tolerance := a.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultScreenshotTolerance
	}
	ratio, err := DiffRatio(baseline, shot, channelThreshold)
	if err != nil {
		return false, "", err
	}
	return ratio <= tolerance, fmt.Sprintf("diff ratio %.4f (tolerance %.4f)", ratio, tolerance), nil
}

// aiEvaluateResponse is the JSON the judging prompt demands back.
type aiEvaluateResponse struct {
	Passed     bool    `json:"passed"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

const aiEvaluateSystemPrompt = `You judge whether a web page satisfies a natural-language expectation. ` +
	`You receive the page URL, its visible text, a screenshot, and the expectation. Respond with ONLY ` +
	`a JSON object: {"passed": true|false, "confidence": 0.0-1.0, "reasoning": "..."}`

// aiEvaluate asks the LLM to judge the page against the assertion's
// natural-language expectation; passes only at confidence >= 0.7.
// Without a client the assertion fails with zero confidence rather
// than silently passing.
func (c *Checker) aiEvaluate(ctx context.Context, env *Env, a domain.Assertion) (bool, string, error) {
	if c.llmClient == nil {
		return false, "confidence 0.00 (llm unavailable)", nil
	}

	visibleText, _ := env.Page.Locator("body").InnerText()
	if len(visibleText) > 4000 {
		visibleText = visibleText[:4000]
	}
	shot, err := env.Page.Screenshot(playwright.PageScreenshotOptions{})
	if err != nil {
		return false, "", fmt.Errorf("capturing screenshot for ai_evaluate: %w", err)
	}

	prompt := fmt.Sprintf("## URL\n%s\n\n## Visible text\n%s\n\n## Expectation\n%s",
		env.Page.URL(), visibleText, a.ExpectedValue)
	text, _, err := c.llmClient.CompleteWithImage(ctx, aiEvaluateSystemPrompt, prompt, shot)
	if err != nil {
		return false, "confidence 0.00 (llm error)", nil
	}

	var resp aiEvaluateResponse
	if jsonErr := json.Unmarshal([]byte(extractFencedJSON(text)), &resp); jsonErr != nil {
		return false, "confidence 0.00 (unparseable judgment)", nil
	}
	actual := fmt.Sprintf("confidence %.2f: %s", resp.Confidence, resp.Reasoning)
	return resp.Passed && resp.Confidence >= 0.7, actual, nil
}

func extractFencedJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}

func (c *Checker) captureFailureScreenshot(env *Env, res *domain.AssertionResult) {
	if env.EvidenceDir == "" {
		return
	}
	name := fmt.Sprintf("assert-fail-%s.png", res.Assertion.AssertionType)
	path := filepath.Join(env.EvidenceDir, name)
	if _, err := env.Page.Screenshot(playwright.PageScreenshotOptions{Path: playwright.String(path)}); err == nil {
		res.ScreenshotPath = path
	}
}

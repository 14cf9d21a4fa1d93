package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/domain"
)

// Fallback decisions the recovery LLM may return.
const (
	DecisionRetry = "retry"
	DecisionSkip  = "skip"
	DecisionAdapt = "adapt"
	DecisionAbort = "abort"
)

// fallbackResponse is the JSON the recovery prompt demands back.
type fallbackResponse struct {
	Decision    string         `json:"decision"`
	NewSelector string         `json:"new_selector,omitempty"`
	NewAction   *domain.Action `json:"new_action,omitempty"`
	Reasoning   string         `json:"reasoning,omitempty"`
}

const fallbackSystemPrompt = `You are a test-automation recovery assistant. A test step just failed in a ` +
	`real browser. Decide how to recover. You receive the test's intent, the failed action, the error, a DOM ` +
	`snippet, recent console errors, and a screenshot.

Respond with ONLY a JSON object:
{"decision": "retry" | "skip" | "adapt" | "abort", "new_selector": "...", "new_action": {...}, "reasoning": "..."}

- "retry" with new_selector: the element exists under a different selector.
- "adapt" with new_action: a different action achieves the step's intent (same action schema:
  action_type/selector/value/description).
- "skip": the step cannot succeed but later steps may.
- "abort": the test's premise is broken; remaining steps are pointless.`

const maxDOMSnippet = 3 * 1024

// aiFallback asks the recovery LLM what to do about a failed step.
// Every path returns a usable decision; LLM trouble degrades to skip.
func (e *Executor) aiFallback(ctx context.Context, page playwright.Page, tc *domain.TestCase, act domain.Action, stepOrder int, stepErr error, consoleErrors []string) fallbackResponse {
	if e.llmClient == nil {
		return fallbackResponse{Decision: DecisionSkip, Reasoning: "llm unavailable"}
	}

	dom, _ := page.Content()
	if len(dom) > maxDOMSnippet {
		dom = dom[:maxDOMSnippet]
	}
	recent := consoleErrors
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Test\n%s (%s)\n\n## Failed step %d\n", tc.Name, tc.TestID, stepOrder)
	fmt.Fprintf(&b, "action: %s\nselector: %s\nvalue: %s\ndescription: %s\nerror: %v\n",
		act.ActionType, act.Selector, act.Value, act.Description, stepErr)
	fmt.Fprintf(&b, "\n## Current URL\n%s\n", page.URL())
	if len(recent) > 0 {
		fmt.Fprintf(&b, "\n## Recent console errors\n%s\n", strings.Join(recent, "\n"))
	}
	fmt.Fprintf(&b, "\n## DOM snippet\n```html\n%s\n```\n", dom)

	shot, shotErr := page.Screenshot(playwright.PageScreenshotOptions{})

	callCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var text string
	var err error
	if shotErr == nil {
		text, _, err = e.llmClient.CompleteWithImage(callCtx, fallbackSystemPrompt, b.String(), shot)
	} else {
		text, _, err = e.llmClient.Complete(callCtx, fallbackSystemPrompt, b.String())
	}
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("exec: fallback llm call failed", zap.Error(err))
		}
		return fallbackResponse{Decision: DecisionSkip, Reasoning: "llm call failed"}
	}

	resp, ok := parseFallbackResponse(text)
	if !ok {
		return fallbackResponse{Decision: DecisionSkip, Reasoning: "unparseable llm decision"}
	}
	return resp
}

// parseFallbackResponse validates the decision and its required
// companion fields; anything malformed degrades to skip.
func parseFallbackResponse(text string) (fallbackResponse, bool) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}

	var resp fallbackResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return fallbackResponse{}, false
	}
	switch resp.Decision {
	case DecisionRetry:
		if resp.NewSelector == "" {
			return fallbackResponse{}, false
		}
	case DecisionAdapt:
		if resp.NewAction == nil {
			return fallbackResponse{}, false
		}
	case DecisionSkip, DecisionAbort:
	default:
		return fallbackResponse{}, false
	}
	return resp, true
}

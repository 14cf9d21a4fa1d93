// Package action executes one test action against a live page,
// resolving flaky selectors through derived alternatives before the
// action runs.
package action

import (
	"fmt"
	"strconv"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/qaengine/qaengine/internal/domain"
)

// Runner dispatches a single Action against a page.
type Runner struct {
	resolver     *Resolver
	smartResolve bool
	timeout      time.Duration
}

// NewRunner builds a runner with the per-action timeout; smartResolve
// enables the selector-alternative ladder for selector-bearing actions.
func NewRunner(timeout time.Duration, smartResolve bool) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{
		resolver:     NewResolver(timeout),
		smartResolve: smartResolve,
		timeout:      timeout,
	}
}

// Run executes act on page and returns the selector-resolution
// strategy used (empty for selector-less actions).
func (r *Runner) Run(page playwright.Page, act domain.Action) (string, error) {
	switch act.ActionType {
	case domain.ActionNavigate:
		return "", r.navigate(page, act.Value)
	case domain.ActionClick:
		sel, strategy := r.resolveSelector(page, act)
		return strategy, page.Locator(sel).Click(playwright.LocatorClickOptions{Timeout: r.timeoutMs()})
	case domain.ActionFill:
		sel, strategy := r.resolveSelector(page, act)
		return strategy, page.Locator(sel).Fill(act.Value, playwright.LocatorFillOptions{Timeout: r.timeoutMs()})
	case domain.ActionSelect:
		sel, strategy := r.resolveSelector(page, act)
		_, err := page.Locator(sel).SelectOption(playwright.SelectOptionValues{
			ValuesOrLabels: &[]string{act.Value},
		}, playwright.LocatorSelectOptionOptions{Timeout: r.timeoutMs()})
		return strategy, err
	case domain.ActionHover:
		sel, strategy := r.resolveSelector(page, act)
		return strategy, page.Locator(sel).Hover(playwright.LocatorHoverOptions{Timeout: r.timeoutMs()})
	case domain.ActionScroll:
		return "", r.scroll(page, act)
	case domain.ActionWait:
		return r.wait(page, act)
	case domain.ActionKeyboard:
		key := act.Value
		if key == "" {
			key = "Enter"
		}
		return "", page.Keyboard().Press(key)
	case domain.ActionScreenshot:
		// Captured by the evidence collector around every step; nothing to do here.
		return "", nil
	default:
		return "", fmt.Errorf("unknown action type %q", act.ActionType)
	}
}

func (r *Runner) navigate(page playwright.Page, target string) error {
	if _, err := page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   r.timeoutMs(),
	}); err != nil {
		return fmt.Errorf("navigating to %s: %w", target, err)
	}
	// networkidle is best effort: SPAs with long-polling never settle.
	page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(5000),
	})
	return nil
}

func (r *Runner) scroll(page playwright.Page, act domain.Action) error {
	if act.Value != "" {
		if y, err := strconv.Atoi(act.Value); err == nil {
			_, err := page.Evaluate(fmt.Sprintf("window.scrollTo(0, %d)", y))
			return err
		}
	}
	if act.Selector != "" {
		return page.Locator(act.Selector).ScrollIntoViewIfNeeded()
	}
	_, err := page.Evaluate("window.scrollTo(0, document.body.scrollHeight)")
	return err
}

func (r *Runner) wait(page playwright.Page, act domain.Action) (string, error) {
	if act.Selector != "" {
		sel := act.Selector
		strategy := ""
		if r.smartResolve {
			sel, strategy = r.resolver.Resolve(page, act.Selector, act.ActionType)
		}
		_, err := page.WaitForSelector(sel, playwright.PageWaitForSelectorOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: r.timeoutMs(),
		})
		return strategy, err
	}
	ms := 1000
	if act.Value != "" {
		if v, err := strconv.Atoi(act.Value); err == nil {
			ms = v
		}
	}
	page.WaitForTimeout(float64(ms))
	return "", nil
}

func (r *Runner) resolveSelector(page playwright.Page, act domain.Action) (string, string) {
	if !r.smartResolve {
		return act.Selector, ""
	}
	return r.resolver.Resolve(page, act.Selector, act.ActionType)
}

func (r *Runner) timeoutMs() *float64 {
	return playwright.Float(float64(r.timeout.Milliseconds()))
}

package action

import (
	"regexp"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/qaengine/qaengine/internal/domain"
)

// Strategy names recorded on StepResult.StrategyUsed.
const (
	StrategyOriginal         = "original"
	StrategyIDOnly           = "id_only"
	StrategyNameAttr         = "name_attr"
	StrategyPlaceholder      = "placeholder"
	StrategyAriaLabel        = "aria_label"
	StrategyText             = "text"
	StrategyHasText          = "has_text"
	StrategyRelaxedCSS       = "relaxed_css"
	StrategyNetworkidleRetry = "networkidle_retry"
)

// alternative is one derived selector candidate.
type alternative struct {
	selector string
	strategy string
}

// Resolver finds a working selector when the original misses: derived
// alternatives first, then a DOM-stability retry of the original after
// waiting for the network to settle.
type Resolver struct {
	fullTimeout time.Duration
}

func NewResolver(fullTimeout time.Duration) *Resolver {
	if fullTimeout <= 0 {
		fullTimeout = 30 * time.Second
	}
	return &Resolver{fullTimeout: fullTimeout}
}

// Resolve returns the first selector that matches an attached element,
// plus the strategy that found it. If nothing matches, the original
// selector comes back so the caller observes the underlying not-found
// error from the action itself.
func (r *Resolver) Resolve(page playwright.Page, original string, actionType domain.ActionType) (string, string) {
	if r.waitFor(page, original, r.fullTimeout) {
		return original, StrategyOriginal
	}

	altTimeout := r.fullTimeout / 3
	if altTimeout > 2*time.Second {
		altTimeout = 2 * time.Second
	}
	for _, alt := range DeriveAlternatives(original, actionType) {
		if r.waitFor(page, alt.selector, altTimeout) {
			return alt.selector, alt.strategy
		}
	}

	idleTimeout := r.fullTimeout / 4
	if idleTimeout > 2*time.Second {
		idleTimeout = 2 * time.Second
	}
	page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(idleTimeout.Milliseconds())),
	})
	if r.waitFor(page, original, altTimeout) {
		return original, StrategyNetworkidleRetry
	}

	return original, StrategyOriginal
}

func (r *Resolver) waitFor(page playwright.Page, selector string, timeout time.Duration) bool {
	_, err := page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	return err == nil
}

var (
	idRe          = regexp.MustCompile(`#([A-Za-z][\w-]*)`)
	nameAttrRe    = regexp.MustCompile(`\[name=["']([^"']+)["']\]`)
	placeholderRe = regexp.MustCompile(`\[placeholder=["']([^"']+)["']\]`)
	ariaLabelRe   = regexp.MustCompile(`\[aria-label=["']([^"']+)["']\]`)
	textSelRe     = regexp.MustCompile(`text[=~](.+)$`)
	hasTextRe     = regexp.MustCompile(`:has-text\(["']([^"']+)["']\)`)

	nthChildRe   = regexp.MustCompile(`:nth-child\([^)]*\)`)
	firstLastRe  = regexp.MustCompile(`:(?:first|last)-child`)
	notRe        = regexp.MustCompile(`:not\([^)]*\)`)
	hasTextCutRe = regexp.MustCompile(`:has-text\([^)]*\)`)
)

// DeriveAlternatives generates fallback selectors from the original,
// in fixed priority order. Text-lifting of :has-text is only offered
// for click/hover, where matching by visible text is safe.
func DeriveAlternatives(original string, actionType domain.ActionType) []alternative {
	var alts []alternative
	seen := map[string]bool{original: true}
	add := func(selector, strategy string) {
		if selector != "" && !seen[selector] {
			seen[selector] = true
			alts = append(alts, alternative{selector: selector, strategy: strategy})
		}
	}

	if m := idRe.FindStringSubmatch(original); len(m) == 2 {
		add("#"+m[1], StrategyIDOnly)
	}
	if m := nameAttrRe.FindStringSubmatch(original); len(m) == 2 {
		add(`[name="`+m[1]+`"]`, StrategyNameAttr)
	}
	if m := placeholderRe.FindStringSubmatch(original); len(m) == 2 {
		add(`[placeholder="`+m[1]+`"]`, StrategyPlaceholder)
	}
	if m := ariaLabelRe.FindStringSubmatch(original); len(m) == 2 {
		add(`[aria-label="`+m[1]+`"]`, StrategyAriaLabel)
	}
	if m := textSelRe.FindStringSubmatch(original); len(m) == 2 {
		add("text="+strings.Trim(m[1], `"'`), StrategyText)
	}
	if actionType == domain.ActionClick || actionType == domain.ActionHover {
		if m := hasTextRe.FindStringSubmatch(original); len(m) == 2 {
			add("text="+m[1], StrategyHasText)
		}
	}
	add(relaxCSS(original), StrategyRelaxedCSS)

	return alts
}

// relaxCSS drops fragile pseudo-classes and, for long descendant
// chains, keeps only the last two segments.
func relaxCSS(selector string) string {
	relaxed := nthChildRe.ReplaceAllString(selector, "")
	relaxed = firstLastRe.ReplaceAllString(relaxed, "")
	relaxed = notRe.ReplaceAllString(relaxed, "")
	relaxed = hasTextCutRe.ReplaceAllString(relaxed, "")
	relaxed = strings.Join(strings.Fields(relaxed), " ")

	segments := strings.Split(relaxed, " ")
	if len(segments) > 3 {
		segments = segments[len(segments)-2:]
		relaxed = strings.Join(segments, " ")
	}

	relaxed = strings.TrimSpace(relaxed)
	if relaxed == selector {
		return ""
	}
	return relaxed
}

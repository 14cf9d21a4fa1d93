// Package smartauth implements the smart-authentication state
// resolver: a three-tier fallback that decides which selectors drive a
// login form — explicit config, heuristic form scoring, or a vision
// LLM — then fills, submits, verifies, and captures the resulting
// storage state for later isolated sessions to reuse. The heuristic
// scorer reuses internal/crawl/extract's form catalogue so both layers
// agree on what counts as a field or a submit control.
package smartauth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/crawl/extract"
	"github.com/qaengine/qaengine/internal/domain"
	"github.com/qaengine/qaengine/internal/llm"
)

// Tier names recorded on AuthFlow for each resolution mechanism.
const (
	TierExplicit   = "explicit"
	TierAutoDetect = "auto_detect"
	TierLLM        = "llm_fallback"
)

// Config is the auth config input to Resolve/Login: credentials, any
// explicit selectors, and the feature flags gating tiers 2 and 3.
type Config struct {
	LoginURL         string
	Username         string
	Password         string
	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string
	SuccessIndicator string // selector, or a URL substring if it starts with "/" or "http"
	AutoDetect       bool
	LLMFallback      bool
}

// Result is what Resolve/Login produces for the crawler and the
// orchestrator's site model.
type Result struct {
	Success      bool
	Tier         string
	PostLoginURL string
	Error        string
	StorageState []byte
}

// Resolver drives one browser page through tiered selector resolution
// and the login flow itself.
type Resolver struct {
	extractor *extract.Extractor
	llmClient *llm.ClaudeClient // nil disables tier 3 regardless of config
	logger    *zap.Logger
}

func New(llmClient *llm.ClaudeClient, logger *zap.Logger) *Resolver {
	return &Resolver{extractor: extract.New(), llmClient: llmClient, logger: logger}
}

// selectors is the tuple every tier ultimately produces.
type selectors struct {
	username string
	password string
	submit   string
	tier     string
}

func (s selectors) complete() bool {
	return s.username != "" && s.password != "" && s.submit != ""
}

// Login navigates to cfg.LoginURL, resolves selectors via the
// three-tier fallback, fills and submits the form, verifies success,
// and on success captures storage state from ctxt.
func (r *Resolver) Login(ctx context.Context, page playwright.Page, ctxt playwright.BrowserContext, cfg Config) *Result {
	if _, err := page.Goto(cfg.LoginURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(30000),
	}); err != nil {
		return &Result{Error: fmt.Sprintf("navigating to login page: %v", err)}
	}

	sel, err := r.resolve(ctx, page, cfg)
	if err != nil {
		return &Result{Error: err.Error()}
	}

	if err := page.Locator(sel.username).Fill(cfg.Username); err != nil {
		return &Result{Tier: sel.tier, Error: fmt.Sprintf("filling username: %v", err)}
	}
	if err := page.Locator(sel.password).Fill(cfg.Password); err != nil {
		return &Result{Tier: sel.tier, Error: fmt.Sprintf("filling password: %v", err)}
	}
	if err := page.Locator(sel.submit).Click(); err != nil {
		return &Result{Tier: sel.tier, Error: fmt.Sprintf("clicking submit: %v", err)}
	}

	r.waitForURLChange(page, cfg.LoginURL, 5*time.Second)
	page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(5000),
	})

	if !r.verifySuccess(page, cfg) {
		return &Result{Tier: sel.tier, Error: "login verification failed: no success signal observed"}
	}

	state, err := ctxt.StorageState()
	if err != nil {
		return &Result{Tier: sel.tier, Error: fmt.Sprintf("capturing storage state: %v", err)}
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return &Result{Tier: sel.tier, Error: fmt.Sprintf("encoding storage state: %v", err)}
	}

	return &Result{
		Success:      true,
		Tier:         sel.tier,
		PostLoginURL: page.URL(),
		StorageState: blob,
	}
}

// resolve runs the three-tier fallback, returning the first tier that
// produces a complete (username, password, submit) tuple.
func (r *Resolver) resolve(ctx context.Context, page playwright.Page, cfg Config) (selectors, error) {
	// Tier 1 — explicit.
	if !cfg.AutoDetect || (cfg.UsernameSelector != "" && cfg.PasswordSelector != "" && cfg.SubmitSelector != "") {
		sel := selectors{username: cfg.UsernameSelector, password: cfg.PasswordSelector, submit: cfg.SubmitSelector, tier: TierExplicit}
		if sel.complete() {
			return sel, nil
		}
		if !cfg.AutoDetect {
			return selectors{}, fmt.Errorf("auth: auto_detect disabled and explicit selectors incomplete")
		}
	}

	// Tier 2 — heuristic form scoring.
	if sel, ok := r.heuristicResolve(page); ok {
		return sel, nil
	}

	// Tier 3 — vision LLM.
	if cfg.LLMFallback && r.llmClient != nil {
		if sel, ok := r.llmResolve(ctx, page); ok {
			return sel, nil
		}
	}

	return selectors{}, fmt.Errorf("auth: no tier produced a complete selector set")
}

// heuristicResolve scores every <form> on the page (plus an orphan
// password-field detector) and returns the winner if its score clears
// the 12-point threshold.
func (r *Resolver) heuristicResolve(page playwright.Page) (selectors, bool) {
	extracted := r.extractor.ExtractPage(page)

	bestScore := 0
	var bestForm *playwright.Locator
	var bestFormIdx = -1

	formLoc := page.Locator("form")
	count, err := formLoc.Count()
	if err == nil {
		for i := 0; i < count && i < len(extracted.Forms); i++ {
			score := scoreForm(extracted.Forms[i])
			if score > bestScore {
				bestScore = score
				l := formLoc.Nth(i)
				bestForm = &l
				bestFormIdx = i
			}
		}
	}

	if bestScore >= 12 && bestForm != nil {
		fm := extracted.Forms[bestFormIdx]
		passwordSel := fieldSelector(fm, "password")
		usernameSel := usernameFieldSelector(fm)
		submitSel := fm.SubmitSelector
		if passwordSel != "" && usernameSel != "" && submitSel != "" {
			return selectors{username: usernameSel, password: passwordSel, submit: submitSel, tier: TierAutoDetect}, true
		}
	}

	return r.orphanResolve(page)
}

// scoreForm rates how login-like one FormModel looks: password and
// text fields, a small field count, a found submit control, and an
// auth-flavored action path all add points.
func scoreForm(fm domain.FormModel) int {
	score := 0
	hasPassword, hasTextOrEmail := false, false
	for _, f := range fm.Fields {
		if f.FieldType == "password" {
			hasPassword = true
		}
		if f.FieldType == "text" || f.FieldType == "email" {
			hasTextOrEmail = true
		}
	}
	if hasPassword {
		score += 10
	}
	if hasTextOrEmail {
		score += 5
	}
	if n := len(fm.Fields); n >= 1 && n <= 4 {
		score += 3
	}
	if len(fm.Fields) < 6 {
		score += 1
	}
	if fm.SubmitSelector != "" {
		score += 2
	}
	action := strings.ToLower(fm.Action)
	for _, kw := range []string{"login", "signin", "sign-in", "auth", "session", "log-in"} {
		if strings.Contains(action, kw) {
			score += 3
			break
		}
	}
	return score
}

func fieldSelector(fm domain.FormModel, fieldType string) string {
	for _, f := range fm.Fields {
		if f.FieldType == fieldType {
			return f.Selector
		}
	}
	return ""
}

// usernameFieldSelector picks the username field by priority:
// email-type > text/email/tel matching a username-ish name > sole text
// field > first text field.
func usernameFieldSelector(fm domain.FormModel) string {
	usernameNames := []string{"user", "login", "email", "account", "uname", "identifier"}

	for _, f := range fm.Fields {
		if f.FieldType == "email" {
			return f.Selector
		}
	}
	for _, f := range fm.Fields {
		if f.FieldType != "text" && f.FieldType != "email" && f.FieldType != "tel" {
			continue
		}
		nameLower := strings.ToLower(f.Name)
		for _, kw := range usernameNames {
			if strings.Contains(nameLower, kw) {
				return f.Selector
			}
		}
	}
	var textFields []domain.FormField
	for _, f := range fm.Fields {
		if f.FieldType == "text" {
			textFields = append(textFields, f)
		}
	}
	if len(textFields) == 1 {
		return textFields[0].Selector
	}
	if len(textFields) > 0 {
		return textFields[0].Selector
	}
	return ""
}

// orphanResolve handles a visible password input with no enclosing
// <form> — common in JS-framework login widgets — by picking nearby
// visible text/email/tel inputs and a submit button from the smallest
// enclosing container.
func (r *Resolver) orphanResolve(page playwright.Page) (selectors, bool) {
	orphanPassword := page.Locator(`input[type="password"]`).First()
	if visible, err := orphanPassword.IsVisible(); err != nil || !visible {
		return selectors{}, false
	}
	// Is it inside a form? If so, the form scorer already had its shot.
	if count, err := page.Locator(`form input[type="password"]`).Count(); err == nil && count > 0 {
		return selectors{}, false
	}

	passwordSel := `input[type="password"]`
	usernameSel := ""
	for _, css := range []string{`input[type="email"]`, `input[type="text"]`, `input[type="tel"]`} {
		loc := page.Locator(css).First()
		if visible, err := loc.IsVisible(); err == nil && visible {
			usernameSel = css
			break
		}
	}
	submitSel := ""
	for _, css := range []string{`button[type="submit"]`, `button:has-text("Log in")`, `button:has-text("Sign in")`, `input[type="submit"]`} {
		loc := page.Locator(css).First()
		if visible, err := loc.IsVisible(); err == nil && visible {
			submitSel = css
			break
		}
	}

	if usernameSel == "" || submitSel == "" {
		return selectors{}, false
	}
	return selectors{username: usernameSel, password: passwordSel, submit: submitSel, tier: TierAutoDetect}, true
}

// visionResponse is the strict JSON shape the vision tier demands back.
type visionResponse struct {
	UsernameSelector string  `json:"username_selector"`
	PasswordSelector string  `json:"password_selector"`
	SubmitSelector   string  `json:"submit_selector"`
	Confidence       float64 `json:"confidence"`
	Reasoning        string  `json:"reasoning"`
}

const visionSystemPrompt = `You are a web automation selector-resolution assistant. Given a screenshot ` +
	`and the page's DOM content, identify the CSS selectors for the username field, password field, and ` +
	`submit button of the login form. Respond with ONLY a JSON object: ` +
	`{"username_selector": "...", "password_selector": "...", "submit_selector": "...", "confidence": 0.0-1.0, "reasoning": "..."}`

// llmResolve screenshots the page and asks the vision LLM for
// selectors, accepting only if confidence >= 0.5 and all three
// selectors are non-empty.
func (r *Resolver) llmResolve(ctx context.Context, page playwright.Page) (selectors, bool) {
	shot, err := page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(false)})
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("smartauth: screenshot for vision tier failed", zap.Error(err))
		}
		return selectors{}, false
	}

	dom, err := page.Content()
	if err != nil {
		dom = ""
	}
	if len(dom) > 8000 {
		dom = dom[:8000]
	}

	prompt := fmt.Sprintf("## Page DOM (truncated)\n```html\n%s\n```\n\nIdentify the login form selectors.", dom)
	text, _, err := r.llmClient.CompleteWithImage(ctx, visionSystemPrompt, prompt, shot)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("smartauth: vision LLM call failed", zap.Error(err))
		}
		return selectors{}, false
	}

	var resp visionResponse
	if err := json.Unmarshal([]byte(cleanJSON(text)), &resp); err != nil {
		return selectors{}, false
	}
	if resp.Confidence < 0.5 || resp.UsernameSelector == "" || resp.PasswordSelector == "" || resp.SubmitSelector == "" {
		return selectors{}, false
	}

	return selectors{username: resp.UsernameSelector, password: resp.PasswordSelector, submit: resp.SubmitSelector, tier: TierLLM}, true
}

func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// waitForURLChange polls page.URL() until it no longer matches
// loginURL (trailing-slash-stripped) or budget elapses.
func (r *Resolver) waitForURLChange(page playwright.Page, loginURL string, budget time.Duration) {
	target := strings.TrimSuffix(loginURL, "/")
	deadline := time.Now().Add(budget)
	for time.Now().Before(deadline) {
		if strings.TrimSuffix(page.URL(), "/") != target {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// verifySuccess checks three signals in order: the configured
// success_indicator selector/URL, then the URL having moved off the
// login path, then absence of any visible password field.
func (r *Resolver) verifySuccess(page playwright.Page, cfg Config) bool {
	if cfg.SuccessIndicator != "" {
		if strings.HasPrefix(cfg.SuccessIndicator, "http") || strings.HasPrefix(cfg.SuccessIndicator, "/") {
			return strings.Contains(page.URL(), cfg.SuccessIndicator)
		}
		_, err := page.WaitForSelector(cfg.SuccessIndicator, playwright.PageWaitForSelectorOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(10000),
		})
		return err == nil
	}

	if strings.TrimSuffix(page.URL(), "/") != strings.TrimSuffix(cfg.LoginURL, "/") {
		return true
	}

	count, err := page.Locator(`input[type="password"]:visible`).Count()
	if err != nil {
		// :visible pseudo-class unsupported in this evaluation context; fall
		// back to a plain presence check rather than treating it as success.
		count, err = page.Locator(`input[type="password"]`).Count()
		if err != nil {
			return false
		}
	}
	return count == 0
}

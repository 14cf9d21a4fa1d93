package plan

import (
	"fmt"
	"strings"

	"github.com/qaengine/qaengine/internal/domain"
)

func systemPrompt() string {
	return `You are an expert QA engineer designing black-box tests for a web application.
You receive a condensed site model (pages, forms, interactive elements) and a coverage-gap
report describing which pages and behaviors are untested, stale, or recently failing.

Design concrete, executable test cases. Return ONLY a JSON object with this exact shape:

{
  "test_cases": [
    {
      "test_id": "unique-id",
      "name": "human-readable name",
      "category": "functional" | "visual" | "security",
      "priority": 1-5,
      "target_page_id": "page_id from the site model",
      "coverage_signature": "stable label for the behavior under test, e.g. login_form_submit_valid",
      "requires_auth": true | false,
      "preconditions": [ { "action_type": "...", "selector": "...", "value": "...", "description": "..." } ],
      "steps": [ ...same action shape, at least one... ],
      "assertions": [ { "assertion_type": "...", "selector": "...", "expected_value": "...", "tolerance": 0.05, "description": "..." } ],
      "timeout_seconds": 30
    }
  ]
}

Action types: navigate, click, fill, select, hover, scroll, wait, screenshot, keyboard.
Assertion types: element_visible, element_hidden, text_contains, text_equals, text_matches,
url_matches, screenshot_diff, element_count, network_request_made, no_console_errors,
response_status, ai_evaluate.

Rules:
- click/fill/select/hover actions MUST carry a selector; fill MUST carry a value.
- Use selectors that appear in the site model wherever possible.
- coverage_signature identifies WHAT behavior is tested, independent of selectors; reuse
  the signatures in the gap report when re-testing a failing behavior.
- For login flows use the placeholders {{auth_username}}, {{auth_password}} and
  {{auth_login_url}} in action values; never invent credentials.
- Use {{$timestamp}} in values that must be unique per run.
- Prioritize pages the gap report flags; priority 1 is most urgent, 5 least.`
}

// userPrompt assembles the site summary, gap report, and configuration
// blurb into one planning request.
func userPrompt(siteJSON, gapsJSON string, cfg Config) string {
	var b strings.Builder

	b.WriteString("## Site model\n```json\n")
	b.WriteString(siteJSON)
	b.WriteString("\n```\n\n## Coverage gaps\n```json\n")
	b.WriteString(gapsJSON)
	b.WriteString("\n```\n\n## Configuration\n")

	cats := make([]string, len(cfg.Categories))
	for i, c := range cfg.Categories {
		cats[i] = string(c)
	}
	fmt.Fprintf(&b, "- enabled categories: %s\n", strings.Join(cats, ", "))
	fmt.Fprintf(&b, "- max tests: %d\n", cfg.MaxTests)
	if enabled(cfg.Categories, domain.CategoryVisual) {
		fmt.Fprintf(&b, "- visual diff tolerance: %.2f\n", cfg.VisualDiffTolerance)
	}
	if len(cfg.Viewports) > 0 {
		fmt.Fprintf(&b, "- viewports: %s\n", strings.Join(cfg.Viewports, ", "))
	}

	if len(cfg.Hints) > 0 {
		b.WriteString("\n## Operator hints\n")
		for _, h := range cfg.Hints {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}

	fmt.Fprintf(&b, "\nDesign up to %d test cases now.", cfg.MaxTests)
	return b.String()
}

func enabled(cats []domain.Category, want domain.Category) bool {
	for _, c := range cats {
		if c == want {
			return true
		}
	}
	return false
}

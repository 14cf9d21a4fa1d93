package plan

import (
	"fmt"
	"strings"

	"github.com/qaengine/qaengine/internal/domain"
)

// typeDerivedValue supplies a plausible fill value for a form field
// when the LLM is unavailable and the fallback plan has to invent one.
func typeDerivedValue(f domain.FormField) string {
	nameLower := strings.ToLower(f.Name)
	switch {
	case f.FieldType == "email" || strings.Contains(nameLower, "email"):
		return "test@example.com"
	case f.FieldType == "password":
		return "TestP@ssw0rd123"
	case f.FieldType == "tel" || strings.Contains(nameLower, "phone"):
		return "+15555550123"
	case f.FieldType == "number":
		return "42"
	case f.FieldType == "url":
		return "https://example.com"
	case f.FieldType == "date":
		return "2026-01-15"
	case strings.Contains(nameLower, "name"):
		return "Test User"
	case f.FieldType == "search" || strings.Contains(nameLower, "search"):
		return "test"
	default:
		return "test value"
	}
}

// FallbackPlan builds the deterministic plan used when the LLM is
// unavailable or its response is unusable: one navigate-and-smoke test
// per page, one screenshot-diff test per page if visual is enabled,
// and one form-submit test per form with type-derived values.
func FallbackPlan(planID string, site *domain.SiteModel, cfg Config) *domain.TestPlan {
	p := &domain.TestPlan{PlanID: planID, TargetURL: site.BaseURL}
	visual := enabled(cfg.Categories, domain.CategoryVisual)

	for i := range site.Pages {
		pm := &site.Pages[i]

		p.TestCases = append(p.TestCases, domain.TestCase{
			TestID:            fmt.Sprintf("fallback-smoke-%s", pm.PageID),
			Name:              fmt.Sprintf("Smoke: load %s", pm.URL),
			Category:          domain.CategoryFunctional,
			Priority:          3,
			TargetPageID:      pm.PageID,
			CoverageSignature: "page_load_smoke",
			RequiresAuth:      pm.AuthRequired == domain.AuthRequiredTrue,
			Steps: []domain.Action{
				{ActionType: domain.ActionNavigate, Value: pm.URL, Description: "open the page"},
			},
			Assertions: []domain.Assertion{
				{AssertionType: domain.AssertURLMatches, ExpectedValue: pm.URL, Description: "page URL reached"},
				{AssertionType: domain.AssertNoConsoleErrors, Description: "no console errors on load"},
			},
			TimeoutSeconds: 30,
		})

		if visual {
			p.TestCases = append(p.TestCases, domain.TestCase{
				TestID:            fmt.Sprintf("fallback-visual-%s", pm.PageID),
				Name:              fmt.Sprintf("Visual: %s unchanged", pm.URL),
				Category:          domain.CategoryVisual,
				Priority:          4,
				TargetPageID:      pm.PageID,
				CoverageSignature: "page_visual_baseline",
				RequiresAuth:      pm.AuthRequired == domain.AuthRequiredTrue,
				Steps: []domain.Action{
					{ActionType: domain.ActionNavigate, Value: pm.URL, Description: "open the page"},
				},
				Assertions: []domain.Assertion{
					{
						AssertionType: domain.AssertScreenshotDiff,
						Tolerance:     cfg.VisualDiffTolerance,
						Description:   "screenshot within tolerance of baseline",
					},
				},
				TimeoutSeconds: 30,
			})
		}

		for fi, fm := range pm.Forms {
			tc := domain.TestCase{
				TestID:            fmt.Sprintf("fallback-form-%s-%d", pm.PageID, fi),
				Name:              fmt.Sprintf("Form submit: %s on %s", fm.FormID, pm.URL),
				Category:          domain.CategoryFunctional,
				Priority:          3,
				TargetPageID:      pm.PageID,
				CoverageSignature: fmt.Sprintf("form_submit_%s", fm.FormID),
				RequiresAuth:      pm.AuthRequired == domain.AuthRequiredTrue,
				Steps: []domain.Action{
					{ActionType: domain.ActionNavigate, Value: pm.URL, Description: "open the page"},
				},
				TimeoutSeconds: 45,
			}
			for _, f := range fm.Fields {
				if f.Selector == "" {
					continue
				}
				tc.Steps = append(tc.Steps, domain.Action{
					ActionType:  domain.ActionFill,
					Selector:    f.Selector,
					Value:       typeDerivedValue(f),
					Description: fmt.Sprintf("fill %s", f.Name),
				})
			}
			if fm.SubmitSelector != "" {
				tc.Steps = append(tc.Steps, domain.Action{
					ActionType:  domain.ActionClick,
					Selector:    fm.SubmitSelector,
					Description: "submit the form",
				})
			}
			tc.Assertions = []domain.Assertion{
				{AssertionType: domain.AssertNoConsoleErrors, Description: "no console errors after submit"},
			}
			p.TestCases = append(p.TestCases, tc)
		}
	}

	if cfg.MaxTests > 0 && len(p.TestCases) > cfg.MaxTests {
		p.TestCases = p.TestCases[:cfg.MaxTests]
	}
	return p
}

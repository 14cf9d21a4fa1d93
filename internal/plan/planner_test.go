package plan

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/domain"
)

func siteWithLoginForm() *domain.SiteModel {
	return &domain.SiteModel{
		BaseURL: "https://example.com",
		Pages: []domain.PageModel{
			{
				PageID:   "aaa111bbb222",
				URL:      "https://example.com",
				PageType: domain.PageTypeStatic,
			},
			{
				PageID:       "ccc333ddd444",
				URL:          "https://example.com/login",
				PageType:     domain.PageTypeForm,
				AuthRequired: domain.AuthRequiredFalse,
				Forms: []domain.FormModel{{
					FormID: "login-form",
					Action: "/api/login",
					Method: "POST",
					Fields: []domain.FormField{
						{Name: "email", FieldType: "email", Selector: `input[name="email"]`},
						{Name: "password", FieldType: "password", Selector: `input[name="password"]`},
					},
					SubmitSelector: `button[type="submit"]`,
				}},
			},
		},
	}
}

func TestPlan_NilClientUsesFallback(t *testing.T) {
	p := New(nil, DefaultConfig(), zap.NewNop())
	testPlan, err := p.Plan(context.Background(), siteWithLoginForm(), nil, AuthCredentials{})
	require.NoError(t, err)
	require.NotEmpty(t, testPlan.TestCases)

	// Fallback: one smoke + one visual per page, one form test for the login page.
	var smoke, visual, form int
	for _, tc := range testPlan.TestCases {
		switch {
		case strings.HasPrefix(tc.TestID, "fallback-smoke-"):
			smoke++
		case strings.HasPrefix(tc.TestID, "fallback-visual-"):
			visual++
		case strings.HasPrefix(tc.TestID, "fallback-form-"):
			form++
		}
	}
	assert.Equal(t, 2, smoke)
	assert.Equal(t, 2, visual)
	assert.Equal(t, 1, form)

	for _, tc := range testPlan.TestCases {
		assert.NoError(t, tc.Validate())
	}
}

func TestPlan_FallbackFormValuesAreTypeDerived(t *testing.T) {
	p := New(nil, DefaultConfig(), zap.NewNop())
	testPlan, err := p.Plan(context.Background(), siteWithLoginForm(), nil, AuthCredentials{})
	require.NoError(t, err)

	var formTC *domain.TestCase
	for i := range testPlan.TestCases {
		if strings.HasPrefix(testPlan.TestCases[i].TestID, "fallback-form-") {
			formTC = &testPlan.TestCases[i]
		}
	}
	require.NotNil(t, formTC)

	values := map[string]string{}
	for _, step := range formTC.Steps {
		if step.ActionType == domain.ActionFill {
			values[step.Selector] = step.Value
		}
	}
	assert.Equal(t, "test@example.com", values[`input[name="email"]`])
	assert.Equal(t, "TestP@ssw0rd123", values[`input[name="password"]`])
}

func TestPlan_EmptySiteErrors(t *testing.T) {
	p := New(nil, DefaultConfig(), zap.NewNop())
	_, err := p.Plan(context.Background(), &domain.SiteModel{}, nil, AuthCredentials{})
	assert.Error(t, err)
}

func TestFilterInvalid_DropsBadCasesKeepsGood(t *testing.T) {
	p := New(nil, DefaultConfig(), zap.NewNop())
	step := domain.Action{ActionType: domain.ActionNavigate, Value: "https://example.com"}
	testPlan := &domain.TestPlan{TestCases: []domain.TestCase{
		{TestID: "ok", Category: domain.CategoryFunctional, Priority: 1, Steps: []domain.Action{step}},
		{TestID: "no-steps", Category: domain.CategoryFunctional, Priority: 1},
		{TestID: "bad-category", Category: "chaos", Priority: 1, Steps: []domain.Action{step}},
		{TestID: "bad-priority", Category: domain.CategorySecurity, Priority: 9, Steps: []domain.Action{step}},
		{TestID: "ok", Category: domain.CategoryFunctional, Priority: 1, Steps: []domain.Action{step}},
		{TestID: "fill-no-value", Category: domain.CategoryFunctional, Priority: 2,
			Steps: []domain.Action{{ActionType: domain.ActionFill, Selector: "#x"}}},
	}}

	p.filterInvalid(testPlan)

	require.Len(t, testPlan.TestCases, 1)
	assert.Equal(t, "ok", testPlan.TestCases[0].TestID)
}

func TestSummarizeSite_CapsPagesAndElements(t *testing.T) {
	site := &domain.SiteModel{BaseURL: "https://example.com"}
	for i := 0; i < 40; i++ {
		pm := domain.PageModel{PageID: string(rune('a' + i%26)), URL: "https://example.com"}
		for j := 0; j < 30; j++ {
			pm.Elements = append(pm.Elements, domain.ElementModel{Selector: "#el", Interactive: true})
		}
		site.Pages = append(site.Pages, pm)
	}

	s := summarizeSite(site)
	assert.Len(t, s.Pages, 30)
	assert.Equal(t, 40, s.PageCount)
	for _, ps := range s.Pages {
		assert.LessOrEqual(t, len(ps.KeyElements), 20)
	}
}

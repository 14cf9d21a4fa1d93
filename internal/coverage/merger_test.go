package coverage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/domain"
)

func testSite() *domain.SiteModel {
	return &domain.SiteModel{
		BaseURL: "https://example.com",
		Pages: []domain.PageModel{
			{PageID: "aaa111bbb222", URL: "https://example.com", PageType: domain.PageTypeStatic},
			{PageID: "ccc333ddd444", URL: "https://example.com/login", PageType: domain.PageTypeForm},
		},
	}
}

func runWith(results ...domain.TestResult) *domain.RunResult {
	return &domain.RunResult{
		RunID:       "run-1",
		CompletedAt: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
		TestResults: results,
	}
}

func TestMerger_MergeCreatesSignatureRecord(t *testing.T) {
	reg := domain.NewCoverageRegistry("https://example.com")
	m := NewMerger(10, zap.NewNop())

	m.Merge(reg, runWith(domain.TestResult{
		TestID:            "t1",
		Name:              "login happy path",
		Category:          domain.CategoryFunctional,
		TargetPageID:      "ccc333ddd444",
		CoverageSignature: "login_form_submit_valid",
		Result:            domain.ResultPass,
	}), testSite())

	pc := reg.Pages["ccc333ddd444"]
	require.NotNil(t, pc)
	assert.Equal(t, "https://example.com/login", pc.URL)
	assert.Equal(t, domain.PageTypeForm, pc.PageType)

	cc := pc.Categories[domain.CategoryFunctional]
	require.NotNil(t, cc)
	rec := cc.SignaturesTested["login_form_submit_valid"]
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.TestCount)
	assert.Equal(t, domain.ResultPass, rec.LastResult)
}

func TestMerger_AttributesCoverageToActualPage(t *testing.T) {
	reg := domain.NewCoverageRegistry("https://example.com")
	m := NewMerger(10, zap.NewNop())

	m.Merge(reg, runWith(domain.TestResult{
		TestID:            "t1",
		Name:              "login redirects to dashboard",
		Category:          domain.CategoryFunctional,
		TargetPageID:      "ccc333ddd444",
		ActualPageID:      "aaa111bbb222",
		CoverageSignature: "login_redirect",
		Result:            domain.ResultPass,
	}), testSite())

	assert.Contains(t, reg.Pages, "aaa111bbb222")
	assert.NotContains(t, reg.Pages, "ccc333ddd444")
	assert.Equal(t, 1, reg.GlobalStats.RedirectDriftCount)
}

func TestMerger_FallsBackToTestNameAsSignature(t *testing.T) {
	reg := domain.NewCoverageRegistry("https://example.com")
	m := NewMerger(10, zap.NewNop())

	m.Merge(reg, runWith(domain.TestResult{
		TestID:       "t1",
		Name:         "smoke test home",
		Category:     domain.CategoryFunctional,
		TargetPageID: "aaa111bbb222",
		Result:       domain.ResultPass,
	}), testSite())

	cc := reg.Pages["aaa111bbb222"].Categories[domain.CategoryFunctional]
	assert.Contains(t, cc.SignaturesTested, "smoke test home")
}

func TestMerger_RegressionCountAfterPassPassFail(t *testing.T) {
	reg := domain.NewCoverageRegistry("https://example.com")
	m := NewMerger(10, zap.NewNop())

	result := domain.TestResult{
		TestID:            "t1",
		Name:              "login",
		Category:          domain.CategoryFunctional,
		TargetPageID:      "ccc333ddd444",
		CoverageSignature: "login_form_submit_valid",
		Result:            domain.ResultPass,
	}
	m.Merge(reg, runWith(result), testSite())
	m.Merge(reg, runWith(result), testSite())

	result.Result = domain.ResultFail
	result.FailureReason = "assertion url_matches failed"
	m.Merge(reg, runWith(result), testSite())

	assert.GreaterOrEqual(t, reg.GlobalStats.RegressionCount, 1)
}

func TestMerger_HistoryMonotonicAndBounded(t *testing.T) {
	reg := domain.NewCoverageRegistry("https://example.com")
	m := NewMerger(3, zap.NewNop())

	for i := 0; i < 6; i++ {
		run := runWith(domain.TestResult{
			TestID:            "t1",
			Name:              "login",
			Category:          domain.CategoryFunctional,
			TargetPageID:      "ccc333ddd444",
			CoverageSignature: "login_form_submit_valid",
			Result:            domain.ResultPass,
		})
		run.CompletedAt = time.Date(2026, 7, 1, 12, i, 0, 0, time.UTC)
		m.Merge(reg, run, testSite())
	}

	rec := reg.Pages["ccc333ddd444"].Categories[domain.CategoryFunctional].SignaturesTested["login_form_submit_valid"]
	require.Len(t, rec.History, 3)
	assert.Equal(t, 6, rec.TestCount)
	for i := 0; i < len(rec.History)-1; i++ {
		assert.True(t, !rec.History[i].Timestamp.After(rec.History[i+1].Timestamp))
	}
}

func TestMerger_OverallScoreMeanOfCategoryMeans(t *testing.T) {
	reg := domain.NewCoverageRegistry("https://example.com")
	m := NewMerger(10, zap.NewNop())

	m.Merge(reg, runWith(
		domain.TestResult{
			TestID: "t1", Name: "a", Category: domain.CategoryFunctional,
			TargetPageID: "aaa111bbb222", CoverageSignature: "sig-pass", Result: domain.ResultPass,
		},
		domain.TestResult{
			TestID: "t2", Name: "b", Category: domain.CategoryFunctional,
			TargetPageID: "aaa111bbb222", CoverageSignature: "sig-fail", Result: domain.ResultFail,
		},
		domain.TestResult{
			TestID: "t3", Name: "c", Category: domain.CategoryVisual,
			TargetPageID: "ccc333ddd444", CoverageSignature: "sig-visual", Result: domain.ResultPass,
		},
	), testSite())

	// functional: one page at 0.5; visual: one page at 1.0 -> overall 0.75.
	assert.InDelta(t, 0.75, reg.GlobalStats.OverallScore, 1e-9)
	assert.InDelta(t, 0.5, reg.GlobalStats.CategoryScores[domain.CategoryFunctional], 1e-9)
	assert.InDelta(t, 1.0, reg.GlobalStats.CategoryScores[domain.CategoryVisual], 1e-9)
	assert.Equal(t, 2, reg.GlobalStats.TotalPages)
	assert.Equal(t, 2, reg.GlobalStats.PagesTested)
}

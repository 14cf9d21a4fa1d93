package coverage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/domain"
)

func TestAnalyzeGaps_UntestedAndStale(t *testing.T) {
	now := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	reg := domain.NewCoverageRegistry("https://example.com")

	// Page aaa tested long ago; page ccc never tested.
	pc := reg.EnsurePage("aaa111bbb222", "https://example.com", domain.PageTypeStatic)
	pc.LastTested = now.AddDate(0, 0, -30)
	pc.TestCount = 1

	report := AnalyzeGaps(reg, testSite(), 7, now)

	require.Len(t, report.UntestedPages, 1)
	assert.Equal(t, "ccc333ddd444", report.UntestedPages[0].PageID)
	require.Len(t, report.StalePages, 1)
	assert.Equal(t, "aaa111bbb222", report.StalePages[0].PageID)
}

func TestAnalyzeGaps_LowCoverageAndRecentFailures(t *testing.T) {
	now := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	reg := domain.NewCoverageRegistry("https://example.com")
	m := NewMerger(10, zap.NewNop())

	m.Merge(reg, runWith(domain.TestResult{
		TestID: "t1", Name: "login", Category: domain.CategoryFunctional,
		TargetPageID: "ccc333ddd444", CoverageSignature: "login_form_submit_valid",
		Result: domain.ResultFail, FailureReason: "submit button not found",
	}), testSite())

	report := AnalyzeGaps(reg, testSite(), 7, now)

	require.Len(t, report.LowCoverage, 1)
	assert.Equal(t, domain.CategoryFunctional, report.LowCoverage[0].Category)
	assert.Equal(t, 0.0, report.LowCoverage[0].Score)

	require.Len(t, report.RecentFailures, 1)
	assert.Equal(t, "login_form_submit_valid", report.RecentFailures[0].Signature)
	assert.Equal(t, "submit button not found", report.RecentFailures[0].FailureReason)
}

func TestAnalyzeGaps_EmptyOnFullyCoveredFreshSite(t *testing.T) {
	now := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	reg := domain.NewCoverageRegistry("https://example.com")
	m := NewMerger(10, zap.NewNop())

	run := runWith(
		domain.TestResult{
			TestID: "t1", Name: "a", Category: domain.CategoryFunctional,
			TargetPageID: "aaa111bbb222", CoverageSignature: "sig-a", Result: domain.ResultPass,
		},
		domain.TestResult{
			TestID: "t2", Name: "b", Category: domain.CategoryFunctional,
			TargetPageID: "ccc333ddd444", CoverageSignature: "sig-b", Result: domain.ResultPass,
		},
	)
	run.CompletedAt = now.AddDate(0, 0, -1)
	m.Merge(reg, run, testSite())

	report := AnalyzeGaps(reg, testSite(), 7, now)
	assert.True(t, report.IsEmpty())
}

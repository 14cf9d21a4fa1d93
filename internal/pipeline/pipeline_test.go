package pipeline

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/config"
	"github.com/qaengine/qaengine/internal/domain"
)

func testService(t *testing.T) *Service {
	t.Helper()
	cfg := &config.Config{Env: config.EnvDevelopment}
	cfg.Crawl.WorkDir = filepath.Join(t.TempDir(), ".qa-framework")
	cfg.Executor.RunsDir = filepath.Join(t.TempDir(), "runs")
	cfg.Executor.MaxParallelContexts = 1
	cfg.Coverage.RetentionCap = 10
	cfg.Coverage.StalenessDays = 7

	service, err := New(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	return service
}

func TestMergeCoverage_CreatesRegistryAndPersists(t *testing.T) {
	s := testService(t)

	site := &domain.SiteModel{
		BaseURL: "https://example.com",
		Pages: []domain.PageModel{
			{PageID: "aaa111bbb222", URL: "https://example.com", PageType: domain.PageTypeStatic},
		},
	}
	require.NoError(t, s.Store().SaveSiteModel(site))

	run := &domain.RunResult{
		RunID:       "run-1",
		TargetURL:   "https://example.com",
		CompletedAt: time.Now().UTC(),
		TestResults: []domain.TestResult{{
			TestID:            "t1",
			Name:              "smoke",
			Category:          domain.CategoryFunctional,
			TargetPageID:      "aaa111bbb222",
			CoverageSignature: "page_load_smoke",
			Result:            domain.ResultPass,
		}},
	}
	run.RecomputeTotals()

	reg, err := s.MergeCoverage(run)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.GlobalStats.PagesTested)

	// Persisted: a reload sees the same registry.
	loaded, err := s.Store().LoadRegistry()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Contains(t, loaded.Pages, "aaa111bbb222")
}

func TestGaps_EmptyStateIsAllUntested(t *testing.T) {
	s := testService(t)

	site := &domain.SiteModel{
		BaseURL: "https://example.com",
		Pages: []domain.PageModel{
			{PageID: "aaa111bbb222", URL: "https://example.com"},
			{PageID: "ccc333ddd444", URL: "https://example.com/login"},
		},
	}
	require.NoError(t, s.Store().SaveSiteModel(site))

	report, err := s.Gaps()
	require.NoError(t, err)
	assert.Len(t, report.UntestedPages, 2)
}

func TestLoadRun_MissingIsNilNil(t *testing.T) {
	s := testService(t)
	run, err := s.LoadRun("nope")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestCompilePatterns(t *testing.T) {
	res, err := compilePatterns([]string{`^/admin`, "", `\.php$`})
	require.NoError(t, err)
	assert.Len(t, res, 2)

	_, err = compilePatterns([]string{"("})
	assert.Error(t, err)
}

func TestToCategories(t *testing.T) {
	cats := toCategories([]string{"functional", "visual", "chaos"})
	assert.Equal(t, []domain.Category{domain.CategoryFunctional, domain.CategoryVisual}, cats)

	// Nothing valid falls back to functional.
	assert.Equal(t, []domain.Category{domain.CategoryFunctional}, toCategories([]string{"nope"}))
}

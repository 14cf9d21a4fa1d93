// Package coverage maintains the registry that survives across runs:
// signature-keyed history per (page, category), global scores, and the
// gap analysis the planner uses to aim the next run at untested or
// stale regions of the site.
package coverage

import (
	"time"

	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/domain"
)

// DefaultRetentionCap bounds how many history entries one signature keeps.
const DefaultRetentionCap = 20

// Merger folds a run's results into the registry. The registry is
// owned single-threaded by the orchestrator; Merge is never called
// concurrently.
type Merger struct {
	retentionCap int
	logger       *zap.Logger
}

func NewMerger(retentionCap int, logger *zap.Logger) *Merger {
	if retentionCap <= 0 {
		retentionCap = DefaultRetentionCap
	}
	return &Merger{retentionCap: retentionCap, logger: logger}
}

// Merge records every test result of run into reg, backfilling page
// URL/type from site where known, then recomputes global stats.
// Coverage is attributed to the page the browser actually ended on
// (actual_page_id), falling back to target_page_id, then test_id.
func (m *Merger) Merge(reg *domain.CoverageRegistry, run *domain.RunResult, site *domain.SiteModel) {
	drift := 0
	for i := range run.TestResults {
		tr := &run.TestResults[i]

		pageID := tr.EffectivePageID()
		var pageURL string
		var pageType domain.PageType
		if site != nil {
			if pm := site.PageByID(pageID); pm != nil {
				pageURL = pm.URL
				pageType = pm.PageType
			}
		}
		if pageURL == "" && tr.ActualURL != "" {
			pageURL = tr.ActualURL
		}

		pc := reg.EnsurePage(pageID, pageURL, pageType)
		cc := pc.EnsureCategory(tr.Category)

		sig := tr.CoverageSignature
		if sig == "" {
			// Falling back to the test name breaks history continuity
			// whenever the planner renames the test, so make it loud.
			sig = tr.Name
			if m.logger != nil {
				m.logger.Warn("coverage: test has no coverage_signature, keying history by test name",
					zap.String("test_id", tr.TestID),
					zap.String("page_id", pageID))
			}
		}

		rec := cc.EnsureSignature(sig)
		timestamp := run.CompletedAt
		if timestamp.IsZero() {
			timestamp = time.Now().UTC()
		}
		rec.Append(domain.TestResultSummary{
			RunID:         run.RunID,
			Timestamp:     timestamp,
			Result:        tr.Result,
			Duration:      tr.Duration,
			FailureReason: tr.FailureReason,
		}, m.retentionCap)

		cc.LastTested = timestamp
		pc.LastTested = timestamp
		pc.TestCount++

		if tr.ActualPageID != "" && tr.TargetPageID != "" && tr.ActualPageID != tr.TargetPageID {
			drift++
		}
	}

	reg.LastUpdated = time.Now().UTC()
	reg.GlobalStats.LastFullRun = run.CompletedAt
	reg.GlobalStats.RedirectDriftCount = drift

	m.RecomputeStats(reg, site)
}

// RecomputeStats refreshes global stats from the registry's current
// contents: per-category scores are the mean across pages of that
// page's category score, the overall score the mean across categories,
// and the regression count the number of signatures whose last two
// history entries are (pass, fail).
func (m *Merger) RecomputeStats(reg *domain.CoverageRegistry, site *domain.SiteModel) {
	stats := &reg.GlobalStats

	stats.PagesTested = len(reg.Pages)
	if site != nil {
		stats.TotalPages = len(site.Pages)
	} else if stats.TotalPages < stats.PagesTested {
		stats.TotalPages = stats.PagesTested
	}

	perCategory := make(map[domain.Category][]float64)
	regressions := 0
	for _, pc := range reg.Pages {
		for cat, cc := range pc.Categories {
			perCategory[cat] = append(perCategory[cat], cc.CoverageScore())
			for _, rec := range cc.SignaturesTested {
				if rec.IsRegression() {
					regressions++
				}
			}
		}
	}

	stats.CategoryScores = make(map[domain.Category]float64, len(perCategory))
	var overall float64
	for cat, scores := range perCategory {
		stats.CategoryScores[cat] = mean(scores)
		overall += stats.CategoryScores[cat]
	}
	if len(perCategory) > 0 {
		stats.OverallScore = overall / float64(len(perCategory))
	} else {
		stats.OverallScore = 0
	}
	stats.RegressionCount = regressions
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

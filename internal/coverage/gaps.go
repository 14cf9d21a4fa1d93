package coverage

import (
	"sort"
	"time"

	"github.com/qaengine/qaengine/internal/domain"
)

// DefaultStalenessDays is how old a page's last_tested may be before
// the gap analyzer flags it as stale.
const DefaultStalenessDays = 7

// lowCoverageThreshold flags a (page, category) whose score is below it.
const lowCoverageThreshold = 0.5

// PageGap identifies one page the next plan should target.
type PageGap struct {
	PageID   string          `json:"page_id"`
	URL      string          `json:"url"`
	PageType domain.PageType `json:"page_type,omitempty"`
}

// CategoryGap identifies one under-covered (page, category) pair.
type CategoryGap struct {
	PageID   string          `json:"page_id"`
	URL      string          `json:"url"`
	Category domain.Category `json:"category"`
	Score    float64         `json:"score"`
}

// FailureGap identifies one signature whose most recent result failed.
type FailureGap struct {
	PageID        string          `json:"page_id"`
	Category      domain.Category `json:"category"`
	Signature     string          `json:"signature"`
	LastTested    time.Time       `json:"last_tested"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

// GapReport is the analyzer's output, consumed by the planner on the
// next cycle to concentrate tests on untested or weak regions.
type GapReport struct {
	GeneratedAt    time.Time     `json:"generated_at"`
	UntestedPages  []PageGap     `json:"untested_pages"`
	StalePages     []PageGap     `json:"stale_pages"`
	LowCoverage    []CategoryGap `json:"low_coverage"`
	RecentFailures []FailureGap  `json:"recent_failures"`
}

// IsEmpty reports whether the report surfaces nothing actionable.
func (g *GapReport) IsEmpty() bool {
	return len(g.UntestedPages) == 0 && len(g.StalePages) == 0 &&
		len(g.LowCoverage) == 0 && len(g.RecentFailures) == 0
}

// AnalyzeGaps compares the site model against the registry: pages with
// no registry entry are untested, pages tested longer ago than
// stalenessDays are stale, (page, category) pairs scoring under 0.5
// are low-coverage, and signatures whose last result failed are recent
// failures.
func AnalyzeGaps(reg *domain.CoverageRegistry, site *domain.SiteModel, stalenessDays int, now time.Time) *GapReport {
	if stalenessDays <= 0 {
		stalenessDays = DefaultStalenessDays
	}
	staleBefore := now.AddDate(0, 0, -stalenessDays)

	report := &GapReport{GeneratedAt: now}

	if site != nil {
		for i := range site.Pages {
			pm := &site.Pages[i]
			pc, tested := reg.Pages[pm.PageID]
			if !tested || pc.TestCount == 0 {
				report.UntestedPages = append(report.UntestedPages, PageGap{
					PageID: pm.PageID, URL: pm.URL, PageType: pm.PageType,
				})
				continue
			}
			if pc.LastTested.Before(staleBefore) {
				report.StalePages = append(report.StalePages, PageGap{
					PageID: pm.PageID, URL: pm.URL, PageType: pm.PageType,
				})
			}
		}
	}

	for _, pc := range reg.Pages {
		for cat, cc := range pc.Categories {
			if score := cc.CoverageScore(); score < lowCoverageThreshold {
				report.LowCoverage = append(report.LowCoverage, CategoryGap{
					PageID: pc.PageID, URL: pc.URL, Category: cat, Score: score,
				})
			}
			for _, rec := range cc.SignaturesTested {
				if rec.LastResult != domain.ResultFail {
					continue
				}
				gap := FailureGap{
					PageID:     pc.PageID,
					Category:   cat,
					Signature:  rec.Signature,
					LastTested: rec.LastTested,
				}
				if n := len(rec.History); n > 0 {
					gap.FailureReason = rec.History[n-1].FailureReason
				}
				report.RecentFailures = append(report.RecentFailures, gap)
			}
		}
	}

	// Map iteration order is random; keep the report deterministic for
	// the planner prompt and for the golden output of `coverage gaps`.
	sort.Slice(report.LowCoverage, func(i, j int) bool {
		a, b := report.LowCoverage[i], report.LowCoverage[j]
		if a.PageID != b.PageID {
			return a.PageID < b.PageID
		}
		return a.Category < b.Category
	})
	sort.Slice(report.RecentFailures, func(i, j int) bool {
		a, b := report.RecentFailures[i], report.RecentFailures[j]
		if a.PageID != b.PageID {
			return a.PageID < b.PageID
		}
		return a.Signature < b.Signature
	})

	return report
}

package domain

import "time"

// TestResultSummary is one entry in a SignatureRecord's bounded history.
type TestResultSummary struct {
	RunID         string       `json:"run_id"`
	Timestamp     time.Time    `json:"timestamp"`
	Result        ResultStatus `json:"result"`
	Duration      time.Duration `json:"duration"`
	FailureReason string       `json:"failure_reason,omitempty"`
}

// SignatureRecord is one row in a category's history: every run of one
// coverage signature, capped to RetentionCap entries.
type SignatureRecord struct {
	Signature  string              `json:"signature"`
	LastTested time.Time           `json:"last_tested"`
	LastResult ResultStatus        `json:"last_result"`
	TestCount  int                 `json:"test_count"`
	History    []TestResultSummary `json:"history"`
}

// Append records a new run in the history, then truncates to cap —
// history is append-then-truncate, never reordered, so
// history[i].Timestamp <= history[i+1].Timestamp always holds.
func (s *SignatureRecord) Append(summary TestResultSummary, cap int) {
	s.History = append(s.History, summary)
	if cap > 0 && len(s.History) > cap {
		s.History = s.History[len(s.History)-cap:]
	}
	s.LastTested = summary.Timestamp
	s.LastResult = summary.Result
	s.TestCount++
}

// IsRegression reports whether this signature's last two history
// entries are (pass, fail).
func (s *SignatureRecord) IsRegression() bool {
	n := len(s.History)
	if n < 2 {
		return false
	}
	return s.History[n-2].Result == ResultPass && s.History[n-1].Result == ResultFail
}

// CategoryCoverage holds one category's signature history for one page.
type CategoryCoverage struct {
	Category           Category                    `json:"category"`
	SignaturesTested   map[string]*SignatureRecord `json:"signatures_tested"`
	LastTested         time.Time                   `json:"last_tested"`
}

// CoverageScore is the fraction of this category's signatures whose
// last_result is pass.
func (c *CategoryCoverage) CoverageScore() float64 {
	if len(c.SignaturesTested) == 0 {
		return 0
	}
	passed := 0
	for _, sig := range c.SignaturesTested {
		if sig.LastResult == ResultPass {
			passed++
		}
	}
	return float64(passed) / float64(len(c.SignaturesTested))
}

// PageCoverage holds all category coverage for one page.
type PageCoverage struct {
	PageID     string                       `json:"page_id"`
	URL        string                       `json:"url"`
	PageType   PageType                     `json:"page_type"`
	Categories map[Category]*CategoryCoverage `json:"categories"`
	LastTested time.Time                   `json:"last_tested"`
	TestCount  int                         `json:"test_count"`
}

// GlobalStats summarizes the registry across every page and category.
type GlobalStats struct {
	TotalPages       int                  `json:"total_pages"`
	PagesTested      int                  `json:"pages_tested"`
	OverallScore     float64              `json:"overall_score"`
	CategoryScores   map[Category]float64 `json:"category_scores"`
	LastFullRun      time.Time            `json:"last_full_run"`
	RegressionCount  int                  `json:"regression_count"`
	// RedirectDriftCount counts tests across the run whose
	// actual_page_id differed from target_page_id. Coverage lands on
	// the actual page while planning still budgets the target, so a
	// high count means intended targets may be under-covered.
	RedirectDriftCount int `json:"redirect_drift_count"`
}

// CoverageRegistry is the one long-lived piece of state, owned
// exclusively by the orchestrator during a run.
type CoverageRegistry struct {
	TargetURL   string                   `json:"target_url"`
	LastUpdated time.Time                `json:"last_updated"`
	Pages       map[string]*PageCoverage `json:"pages"`
	GlobalStats GlobalStats              `json:"global_stats"`
}

// NewCoverageRegistry builds an empty registry for targetURL.
func NewCoverageRegistry(targetURL string) *CoverageRegistry {
	return &CoverageRegistry{
		TargetURL: targetURL,
		Pages:     make(map[string]*PageCoverage),
		GlobalStats: GlobalStats{
			CategoryScores: make(map[Category]float64),
		},
	}
}

// EnsurePage returns the PageCoverage for pageID, creating it
// (backfilling url/type) if absent.
func (r *CoverageRegistry) EnsurePage(pageID, url string, pageType PageType) *PageCoverage {
	if r.Pages == nil {
		r.Pages = make(map[string]*PageCoverage)
	}
	pc, ok := r.Pages[pageID]
	if !ok {
		pc = &PageCoverage{
			PageID:     pageID,
			URL:        url,
			PageType:   pageType,
			Categories: make(map[Category]*CategoryCoverage),
		}
		r.Pages[pageID] = pc
		return pc
	}
	if pc.URL == "" && url != "" {
		pc.URL = url
	}
	if pc.PageType == "" && pageType != "" {
		pc.PageType = pageType
	}
	return pc
}

// EnsureCategory returns the CategoryCoverage for cat within pc, creating it if absent.
func (pc *PageCoverage) EnsureCategory(cat Category) *CategoryCoverage {
	if pc.Categories == nil {
		pc.Categories = make(map[Category]*CategoryCoverage)
	}
	cc, ok := pc.Categories[cat]
	if !ok {
		cc = &CategoryCoverage{Category: cat, SignaturesTested: make(map[string]*SignatureRecord)}
		pc.Categories[cat] = cc
	}
	return cc
}

// EnsureSignature returns the SignatureRecord for sig within cc, creating it if absent.
func (cc *CategoryCoverage) EnsureSignature(sig string) *SignatureRecord {
	if cc.SignaturesTested == nil {
		cc.SignaturesTested = make(map[string]*SignatureRecord)
	}
	rec, ok := cc.SignaturesTested[sig]
	if !ok {
		rec = &SignatureRecord{Signature: sig}
		cc.SignaturesTested[sig] = rec
	}
	return rec
}
